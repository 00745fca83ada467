package main

import (
	"bytes"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/callebjorkell/nfc-midi/apdu"
	"github.com/callebjorkell/nfc-midi/config"
	"github.com/callebjorkell/nfc-midi/midi"
	"github.com/callebjorkell/nfc-midi/nfc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutput struct {
	notes []string
	onErr error
}

func (f *fakeOutput) NoteOn(key, velocity uint8) error {
	if f.onErr != nil {
		return f.onErr
	}
	f.notes = append(f.notes, "on")
	return nil
}

func (f *fakeOutput) NoteOff(key uint8) error {
	f.notes = append(f.notes, "off")
	return nil
}

func (f *fakeOutput) Close() error {
	return nil
}

var testStatus = nfc.Status{
	Reader:   "ACS ACR122U PICC Interface 00 00",
	State:    nfc.StatePresent | nfc.StatePowered | nfc.StateSpecific,
	Protocol: nfc.ProtocolT1,
	ATR:      []byte{0x3B, 0x8F, 0x80, 0x01},
}

func newTestPlayer(t *testing.T, holdOff time.Duration) (*player, *fakeOutput, *bytes.Buffer) {
	t.Helper()
	seen, err := nfc.NewSeenCache(holdOff)
	require.NoError(t, err)
	t.Cleanup(func() { seen.Close() })

	out := &fakeOutput{}
	buf := &bytes.Buffer{}
	return &player{
		out:  out,
		note: midi.Note{Key: midi.MiddleC, Velocity: midi.DefaultVelocity},
		hold: time.Millisecond,
		seen: seen,
		w:    buf,
	}, out, buf
}

func feed(events ...nfc.CardEvent) <-chan nfc.CardEvent {
	c := make(chan nfc.CardEvent, len(events))
	for _, ev := range events {
		c <- ev
	}
	close(c)
	return c
}

func activated(st nfc.Status) nfc.CardEvent {
	return nfc.CardEvent{State: nfc.Activated, Status: st}
}

func TestPlayerHandlesEvents(t *testing.T) {
	other := testStatus
	other.ATR = []byte{0x3B, 0x01}

	tests := []struct {
		name    string
		holdOff time.Duration
		events  []nfc.CardEvent
		notes   []string
		output  assert.ValueAssertionFunc
	}{
		{
			"card played once",
			0,
			[]nfc.CardEvent{activated(testStatus), {State: nfc.Deactivated}},
			[]string{"on", "off"},
			func(t assert.TestingT, v interface{}, _ ...interface{}) bool {
				return assert.Contains(t, v, "ATR: 0x3B 0x8F 0x80 0x01") && assert.Contains(t, v, "Card removed...")
			},
		},
		{
			"no card means no notes",
			0,
			[]nfc.CardEvent{{State: nfc.Deactivated}},
			nil,
			func(t assert.TestingT, v interface{}, _ ...interface{}) bool {
				return assert.NotContains(t, v, "ATR:")
			},
		},
		{
			"same card within the hold-off",
			time.Minute,
			[]nfc.CardEvent{activated(testStatus), {State: nfc.Deactivated}, activated(testStatus)},
			[]string{"on", "off"},
			assert.NotEmpty,
		},
		{
			"same card without hold-off",
			0,
			[]nfc.CardEvent{activated(testStatus), {State: nfc.Deactivated}, activated(testStatus)},
			[]string{"on", "off", "on", "off"},
			assert.NotEmpty,
		},
		{
			"different cards within the hold-off",
			time.Minute,
			[]nfc.CardEvent{activated(testStatus), activated(other)},
			[]string{"on", "off", "on", "off"},
			func(t assert.TestingT, v interface{}, _ ...interface{}) bool {
				return assert.Contains(t, v, "ATR: 0x3B 0x01\n")
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, out, buf := newTestPlayer(t, tc.holdOff)
			p.run(feed(tc.events...), nil, false)

			assert.Equal(t, tc.notes, out.notes)
			tc.output(t, buf.String())
		})
	}
}

func TestPlayerOnceStopsAfterFirstCard(t *testing.T) {
	p, out, _ := newTestPlayer(t, 0)
	events := feed(activated(testStatus), activated(testStatus))

	p.run(events, nil, true)

	assert.Equal(t, []string{"on", "off"}, out.notes)
	assert.Len(t, events, 1)
}

func TestPlayerStopsOnSignal(t *testing.T) {
	p, out, _ := newTestPlayer(t, 0)
	stop := make(chan os.Signal, 1)
	stop <- syscall.SIGTERM

	done := make(chan struct{})
	go func() {
		p.run(make(chan nfc.CardEvent), stop, false)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("player did not stop")
	}
	assert.Empty(t, out.notes)
}

func TestPlayerNoteOnFailure(t *testing.T) {
	p, out, buf := newTestPlayer(t, 0)
	out.onErr = errors.New("port gone")

	p.run(feed(activated(testStatus)), nil, false)

	assert.Empty(t, out.notes)
	assert.Contains(t, buf.String(), "Reader: ACS ACR122U")
}

func TestPlayerPrintsUID(t *testing.T) {
	p, _, buf := newTestPlayer(t, 0)
	ev := activated(testStatus)
	ev.UID = "04A1B2C3"

	p.run(feed(ev), nil, false)

	assert.Contains(t, buf.String(), "UID: 04A1B2C3\n")
	s, err := p.seen.Lookup("04A1B2C3")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Count)
}

func TestPlayerSummary(t *testing.T) {
	p, _, buf := newTestPlayer(t, time.Minute)
	p.run(feed(activated(testStatus), activated(testStatus)), nil, false)
	buf.Reset()

	p.summary()

	assert.Contains(t, buf.String(), "3B8F8001 │     2 │")
}

func TestPrintStatus(t *testing.T) {
	buf := &bytes.Buffer{}
	printStatus(buf, testStatus)

	lines := []string{
		"Reader: ACS ACR122U PICC Interface 00 00",
		"State: " + testStatus.State.String(),
		"Protocol: " + nfc.ProtocolT1.String(),
		"ATR: 0x3B 0x8F 0x80 0x01",
		"------------------------",
	}
	for _, l := range lines {
		assert.Contains(t, buf.String(), l+"\n")
	}
}

func TestFormatATR(t *testing.T) {
	assert.Equal(t, "", formatATR(nil))
	assert.Equal(t, "0x3B", formatATR([]byte{0x3B}))
	assert.Equal(t, "0x3B 0x8F 0x0A", formatATR([]byte{0x3B, 0x8F, 0x0A}))
}

func TestPrintCommands(t *testing.T) {
	buf := &bytes.Buffer{}
	printCommands(buf, apdu.Commands())

	assert.Contains(t, buf.String(), "get-uid │ FF CA 00 00 04")
	assert.Contains(t, buf.String(), "read-16 │ FF B0 00 04 10")
}

func TestPrintIndexed(t *testing.T) {
	buf := &bytes.Buffer{}
	printIndexed(buf, "Reader", []string{"first", "second"})

	assert.Contains(t, buf.String(), "  0 │ first\n")
	assert.Contains(t, buf.String(), "  1 │ second\n")
}

func TestCheckLength(t *testing.T) {
	assert.Equal(t, "short", checkLength("short", 10))
	assert.Equal(t, "abc…", checkLength("abcdef", 3))
}

func TestOverrides(t *testing.T) {
	s := "keep"
	overrideString(&s, "")
	assert.Equal(t, "keep", s)
	overrideString(&s, "new")
	assert.Equal(t, "new", s)

	i := 5
	overrideInt(&i, 0)
	assert.Equal(t, 5, i)
	overrideInt(&i, 7)
	assert.Equal(t, 7, i)

	d := time.Second
	overrideDuration(&d, 0)
	assert.Equal(t, time.Second, d)
	overrideDuration(&d, time.Minute)
	assert.Equal(t, time.Minute, d)
}

// failingSource reports a card once and then a driver failure.
type failingSource struct {
	calls int
	err   error
}

func (f *failingSource) Status() (nfc.Status, error) {
	f.calls++
	if f.calls == 1 {
		return testStatus, nil
	}
	return nfc.Status{}, f.err
}

func TestPlayerReturnsDriverError(t *testing.T) {
	p, out, _ := newTestPlayer(t, 0)
	src := &failingSource{err: errors.New("reader unavailable")}
	w := nfc.Watch(src, nfc.WatchOptions{PollInterval: time.Millisecond})
	defer w.Close()

	done := make(chan error, 1)
	go func() {
		done <- p.watch(w, nil, false)
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, src.err)
	case <-time.After(2 * time.Second):
		t.Fatal("player did not stop on a driver error")
	}
	assert.Equal(t, []string{"on", "off"}, out.notes)
}

func TestPlayerStopsWithoutErrorOnce(t *testing.T) {
	p, _, _ := newTestPlayer(t, 0)
	w := nfc.Watch(&failingSource{err: nfc.ErrNoCard}, nfc.WatchOptions{PollInterval: time.Millisecond})
	defer w.Close()

	assert.NoError(t, p.watch(w, nil, true))
}

func TestChannelFlagMatchesValidation(t *testing.T) {
	assert.Contains(t, start.GetFlag("channel").Model().Help, "0-15")

	for _, ch := range []int{0, 15} {
		s := config.Default()
		s.Channel = ch
		assert.NoError(t, s.Validate(), "channel %v", ch)
	}
	s := config.Default()
	s.Channel = 16
	assert.Error(t, s.Validate())
}
