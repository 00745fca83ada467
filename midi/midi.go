package midi

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// MiddleC is the note played when nothing else has been configured.
	MiddleC         uint8 = 60
	DefaultVelocity uint8 = 64
	DefaultHold           = 500 * time.Millisecond
)

var ErrNoPort = errors.New("no midi output port found")

// Output is anything that can play notes.
type Output interface {
	NoteOn(key, velocity uint8) error
	NoteOff(key uint8) error
	Close() error
}

type Note struct {
	Key      uint8
	Velocity uint8
}

func (n Note) String() string {
	return fmt.Sprintf("note %v (velocity %v)", n.Key, n.Velocity)
}

// Trigger plays a single note: one note on, a pause of hold, and one note off for the same key. Nothing is switched
// off if the note could not be switched on.
func Trigger(out Output, n Note, hold time.Duration) error {
	if err := out.NoteOn(n.Key, n.Velocity); err != nil {
		return fmt.Errorf("note on: %w", err)
	}
	time.Sleep(hold)
	if err := out.NoteOff(n.Key); err != nil {
		return fmt.Errorf("note off: %w", err)
	}
	return nil
}

// NewLogOutput returns an output that only logs the notes. Handy on machines without any MIDI ports.
func NewLogOutput(channel uint8) Output {
	return logOutput{channel: channel}
}

type logOutput struct {
	channel uint8
}

func (l logOutput) NoteOn(key, velocity uint8) error {
	log.Infof("MIDI: note on %v, velocity %v, channel %v", key, velocity, l.channel)
	return nil
}

func (l logOutput) NoteOff(key uint8) error {
	log.Infof("MIDI: note off %v, channel %v", key, l.channel)
	return nil
}

func (logOutput) Close() error {
	return nil
}

// selectPort returns the index of the first name that matches the pattern, or the first port if the pattern is
// empty.
func selectPort(names []string, pattern string) (int, error) {
	if len(names) == 0 {
		return -1, ErrNoPort
	}
	if pattern == "" {
		return 0, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return -1, fmt.Errorf("invalid port pattern %q: %w", pattern, err)
	}
	for i, n := range names {
		if re.MatchString(n) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w matching %q (have %q)", ErrNoPort, pattern, names)
}
