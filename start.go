package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/callebjorkell/nfc-midi/config"
	"github.com/callebjorkell/nfc-midi/midi"
	"github.com/callebjorkell/nfc-midi/nfc"
	log "github.com/sirupsen/logrus"
)

func startPlayer(s config.Settings) error {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalChan)

	session, err := nfc.Open(nfc.NewDriver(), s.SessionOptions())
	if err != nil {
		return err
	}
	defer session.Close()
	log.Infof("Using reader %v", session.Reader())

	out, err := openOutput(s)
	if err != nil {
		return err
	}
	defer out.Close()

	seen, err := nfc.NewSeenCache(s.HoldOff)
	if err != nil {
		return err
	}
	defer seen.Close()

	watcher := nfc.Watch(session, s.WatchOptions())
	defer watcher.Close()

	p := &player{
		out:  out,
		note: s.MidiNote(),
		hold: s.Hold,
		seen: seen,
		w:    os.Stdout,
	}
	fmt.Println("Waiting for cards...")
	err = p.watch(watcher, signalChan, *startOnce)
	p.summary()
	if err != nil {
		return fmt.Errorf("polling %v: %w", session.Reader(), err)
	}
	return nil
}

func openOutput(s config.Settings) (midi.Output, error) {
	if s.DryRun {
		log.Infoln("Dry run, notes are only logged")
		return midi.NewLogOutput(uint8(s.Channel)), nil
	}
	return midi.Open(s.PortOptions())
}

type player struct {
	out  midi.Output
	note midi.Note
	hold time.Duration
	seen *nfc.SeenCache
	w    io.Writer
}

type eventSource interface {
	Events() <-chan nfc.CardEvent
	Err() error
}

// watch plays the events of src and returns the error that stopped it, if any.
func (p *player) watch(src eventSource, stop <-chan os.Signal, once bool) error {
	p.run(src.Events(), stop, once)
	return src.Err()
}

// run handles card events until the events channel closes, a signal arrives, or, with once set, the first card has
// been handled.
func (p *player) run(events <-chan nfc.CardEvent, stop <-chan os.Signal, once bool) {
	for {
		select {
		case sig := <-stop:
			log.Infof("Got %v, shutting down", sig)
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if ev.State == nfc.Deactivated {
				fmt.Fprintln(p.w, "Card removed...")
				continue
			}
			p.activated(ev)
			if once {
				return
			}
		}
	}
}

func (p *player) activated(ev nfc.CardEvent) {
	printStatus(p.w, ev.Status)
	if ev.UID != "" {
		fmt.Fprintf(p.w, "UID: %v\n", ev.UID)
	}

	sighting, fresh, err := p.seen.Record(ev.ID(), ev.Status.Reader)
	if err != nil {
		log.Warnf("Could not record card %v: %v", ev.ID(), err)
		fresh = true
	}
	if !fresh {
		log.Infof("Card %v seen %v times since %v, not playing", ev.ID(), sighting.Count, sighting.FirstSeen.Format(time.Kitchen))
		return
	}

	log.Debugf("Playing %v", p.note)
	if err := midi.Trigger(p.out, p.note, p.hold); err != nil {
		log.Errorf("Could not play %v: %v", p.note, err)
	}
}

func (p *player) summary() {
	sightings, err := p.seen.All()
	if err != nil {
		log.Warnf("Could not read the seen cards: %v", err)
		return
	}
	if len(sightings) == 0 {
		return
	}

	fmt.Fprintln(p.w, "                            Card │ Count │ Last seen")
	fmt.Fprintln(p.w, "─────────────────────────────────┼───────┼──────────")
	for _, s := range sightings {
		fmt.Fprintf(p.w, "%32v │ %5v │ %v\n", checkLength(s.ID, 31), s.Count, s.LastSeen.Format(time.Kitchen))
	}
}

func printStatus(w io.Writer, st nfc.Status) {
	fmt.Fprintf(w, "Reader: %v\n", st.Reader)
	fmt.Fprintf(w, "State: %v\n", st.State)
	fmt.Fprintf(w, "Protocol: %v\n", st.Protocol)
	fmt.Fprintf(w, "ATR: %v\n", formatATR(st.ATR))
	fmt.Fprintln(w, "------------------------")
}

// formatATR writes the bytes the way card tools usually show an ATR, e.g. 0x3B 0x8F 0x80.
func formatATR(atr []byte) string {
	parts := make([]string, len(atr))
	for i, b := range atr {
		parts[i] = fmt.Sprintf("0x%02X", b)
	}
	return strings.Join(parts, " ")
}

func checkLength(s string, l int) string {
	if len(s) > l {
		return s[:l] + "…"
	}
	return s
}
