package midi

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	gomidi "gitlab.com/gomidi/midi"
	"gitlab.com/gomidi/midi/writer"
	driver "gitlab.com/gomidi/rtmididrv"
)

type PortOptions struct {
	// Pattern is a regular expression matched against the output port names. Empty means the first port.
	Pattern string
	Channel uint8
}

type port struct {
	drv *driver.Driver
	out gomidi.Out
	wr  *writer.Writer
}

// Open opens an rtmidi output port.
func Open(opts PortOptions) (Output, error) {
	drv, err := driver.New()
	if err != nil {
		return nil, fmt.Errorf("could not initialise midi driver: %w", err)
	}

	outs, err := drv.Outs()
	if err != nil {
		drv.Close()
		return nil, err
	}

	i, err := selectPort(portNames(outs), opts.Pattern)
	if err != nil {
		drv.Close()
		return nil, err
	}

	out := outs[i]
	if err := out.Open(); err != nil {
		drv.Close()
		return nil, fmt.Errorf("could not open %v: %w", out.String(), err)
	}
	log.Infof("Using MIDI output %v on channel %v", out.String(), opts.Channel)

	wr := writer.New(out)
	wr.SetChannel(opts.Channel)
	return &port{drv: drv, out: out, wr: wr}, nil
}

// ListPorts returns the names of all the output ports.
func ListPorts() ([]string, error) {
	drv, err := driver.New()
	if err != nil {
		return nil, err
	}
	defer drv.Close()

	outs, err := drv.Outs()
	if err != nil {
		return nil, err
	}
	return portNames(outs), nil
}

func portNames(outs []gomidi.Out) []string {
	names := make([]string, len(outs))
	for i, o := range outs {
		names[i] = o.String()
	}
	return names
}

func (p *port) NoteOn(key, velocity uint8) error {
	return writer.NoteOn(p.wr, key, velocity)
}

func (p *port) NoteOff(key uint8) error {
	return writer.NoteOff(p.wr, key)
}

func (p *port) Close() error {
	if err := p.out.Close(); err != nil {
		log.Warnf("Could not close MIDI port: %v", err)
	}
	return p.drv.Close()
}
