package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/callebjorkell/nfc-midi/midi"
	"github.com/callebjorkell/nfc-midi/nfc"
)

// Settings is the complete runtime configuration. Defaults come from Default, a TOML file may override them, and
// command line flags override both.
type Settings struct {
	ReaderPattern string
	Protocols     []string
	Settle        time.Duration

	PollInterval time.Duration
	Debounce     int
	HoldOff      time.Duration
	ReadUID      bool

	MidiPort string
	Channel  int
	Note     int
	Velocity int
	Hold     time.Duration
	DryRun   bool
}

func Default() Settings {
	return Settings{
		Protocols:    []string{"t0", "t1"},
		Settle:       nfc.DefaultSettle,
		PollInterval: nfc.DefaultPollInterval,
		Debounce:     1,
		Channel:      0,
		Note:         int(midi.MiddleC),
		Velocity:     int(midi.DefaultVelocity),
		Hold:         midi.DefaultHold,
	}
}

type fileConfig struct {
	Reader struct {
		Pattern   string   `toml:"pattern"`
		Protocols []string `toml:"protocols"`
		Settle    string   `toml:"settle"`
	} `toml:"reader"`
	Poll struct {
		Interval string `toml:"interval"`
		Debounce int    `toml:"debounce"`
		HoldOff  string `toml:"hold_off"`
		ReadUID  bool   `toml:"read_uid"`
	} `toml:"poll"`
	Midi struct {
		Port     string `toml:"port"`
		Channel  int    `toml:"channel"`
		Note     int    `toml:"note"`
		Velocity int    `toml:"velocity"`
		Hold     string `toml:"hold"`
		DryRun   bool   `toml:"dry_run"`
	} `toml:"midi"`
}

// Load reads the TOML file at path on top of the defaults. Keys that are not in the file keep their default value.
func Load(path string) (Settings, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Settings{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Settings{}, fmt.Errorf("unknown config keys: %v", undecoded)
	}

	if meta.IsDefined("reader", "pattern") {
		cfg.ReaderPattern = strings.TrimSpace(raw.Reader.Pattern)
	}
	if meta.IsDefined("reader", "protocols") {
		cfg.Protocols = raw.Reader.Protocols
	}
	durations := []struct {
		key    []string
		value  string
		target *time.Duration
	}{
		{[]string{"reader", "settle"}, raw.Reader.Settle, &cfg.Settle},
		{[]string{"poll", "interval"}, raw.Poll.Interval, &cfg.PollInterval},
		{[]string{"poll", "hold_off"}, raw.Poll.HoldOff, &cfg.HoldOff},
		{[]string{"midi", "hold"}, raw.Midi.Hold, &cfg.Hold},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key...) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.value))
		if err != nil {
			return Settings{}, fmt.Errorf("parse %v: %w", strings.Join(d.key, "."), err)
		}
		*d.target = v
	}
	if meta.IsDefined("poll", "debounce") {
		cfg.Debounce = raw.Poll.Debounce
	}
	if meta.IsDefined("poll", "read_uid") {
		cfg.ReadUID = raw.Poll.ReadUID
	}
	if meta.IsDefined("midi", "port") {
		cfg.MidiPort = strings.TrimSpace(raw.Midi.Port)
	}
	if meta.IsDefined("midi", "channel") {
		cfg.Channel = raw.Midi.Channel
	}
	if meta.IsDefined("midi", "note") {
		cfg.Note = raw.Midi.Note
	}
	if meta.IsDefined("midi", "velocity") {
		cfg.Velocity = raw.Midi.Velocity
	}
	if meta.IsDefined("midi", "dry_run") {
		cfg.DryRun = raw.Midi.DryRun
	}

	return cfg, nil
}

func (s Settings) Validate() error {
	if s.ReaderPattern != "" {
		if _, err := regexp.Compile(s.ReaderPattern); err != nil {
			return fmt.Errorf("reader pattern: %w", err)
		}
	}
	if s.MidiPort != "" {
		if _, err := regexp.Compile(s.MidiPort); err != nil {
			return fmt.Errorf("midi port pattern: %w", err)
		}
	}
	if _, err := s.protocolMasks(); err != nil {
		return err
	}
	if s.Channel < 0 || s.Channel > 15 {
		return fmt.Errorf("midi channel %v out of range 0-15", s.Channel)
	}
	if s.Note < 0 || s.Note > 127 {
		return fmt.Errorf("midi note %v out of range 0-127", s.Note)
	}
	if s.Velocity < 1 || s.Velocity > 127 {
		return fmt.Errorf("midi velocity %v out of range 1-127", s.Velocity)
	}
	if s.Debounce < 1 {
		return fmt.Errorf("debounce must be at least 1, got %v", s.Debounce)
	}
	for name, d := range map[string]time.Duration{
		"settle":        s.Settle,
		"poll interval": s.PollInterval,
		"hold":          s.Hold,
		"hold off":      s.HoldOff,
	} {
		if d < 0 {
			return fmt.Errorf("%v can not be negative", name)
		}
	}
	if s.PollInterval == 0 {
		return fmt.Errorf("poll interval can not be zero")
	}
	return nil
}

func (s Settings) protocolMasks() ([]nfc.Protocol, error) {
	var out []nfc.Protocol
	for _, p := range s.Protocols {
		mask, err := nfc.ParseProtocol(p)
		if err != nil {
			return nil, err
		}
		out = append(out, mask)
	}
	return out, nil
}

// SessionOptions assumes that the settings have been validated.
func (s Settings) SessionOptions() nfc.Options {
	masks, _ := s.protocolMasks()
	settle := s.Settle
	if settle == 0 {
		settle = -1
	}
	// t0 followed by t1 is the classic "T0 or T1" mask, so ask for both at once
	if len(masks) == 2 && masks[0] == nfc.ProtocolT0 && masks[1] == nfc.ProtocolT1 {
		masks = []nfc.Protocol{nfc.ProtocolAny}
	}
	return nfc.Options{
		ReaderPattern: s.ReaderPattern,
		Protocols:     masks,
		Settle:        settle,
	}
}

func (s Settings) WatchOptions() nfc.WatchOptions {
	return nfc.WatchOptions{PollInterval: s.PollInterval, Debounce: s.Debounce, ReadUID: s.ReadUID}
}

func (s Settings) PortOptions() midi.PortOptions {
	return midi.PortOptions{Pattern: s.MidiPort, Channel: uint8(s.Channel)}
}

func (s Settings) MidiNote() midi.Note {
	return midi.Note{Key: uint8(s.Note), Velocity: uint8(s.Velocity)}
}
