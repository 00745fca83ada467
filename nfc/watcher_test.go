package nfc

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusResult struct {
	status Status
	err    error
}

// scriptedSource plays back a list of results, repeating the last one forever.
type scriptedSource struct {
	mu      sync.Mutex
	results []statusResult
	calls   int
}

func (s *scriptedSource) Status() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.results) {
		i = len(s.results) - 1
	}
	s.calls++
	return s.results[i].status, s.results[i].err
}

func (s *scriptedSource) consumed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls > len(s.results)
}

var (
	noCard   = statusResult{err: ErrNoCard}
	cardA    = statusResult{status: Status{Reader: "reader", State: StatePresent, ATR: []byte{0x3B, 0x01}}}
	cardB    = statusResult{status: Status{Reader: "reader", State: StatePresent, ATR: []byte{0x3B, 0x02}}}
	ioFailed = statusResult{err: errors.New("transport failure")}
)

// runWatcher runs the script to the end and returns every emitted event.
func runWatcher(t *testing.T, debounce int, script ...statusResult) []CardEvent {
	t.Helper()
	src := &scriptedSource{results: script}
	w := Watch(src, WatchOptions{PollInterval: time.Millisecond, Debounce: debounce})

	require.Eventually(t, src.consumed, 2*time.Second, time.Millisecond)
	require.NoError(t, w.Close())

	var events []CardEvent
	for ev := range w.Events() {
		events = append(events, ev)
	}
	return events
}

func states(events []CardEvent) []CardState {
	var out []CardState
	for _, ev := range events {
		out = append(out, ev.State)
	}
	return out
}

func TestWatchPresenceChanges(t *testing.T) {
	tests := []struct {
		name     string
		debounce int
		script   []statusResult
		expected []CardState
	}{
		{
			"no card at all",
			1,
			[]statusResult{noCard, noCard, noCard},
			nil,
		},
		{
			"card on and off",
			1,
			[]statusResult{noCard, cardA, cardA, noCard},
			[]CardState{Activated, Deactivated},
		},
		{
			"card swapped",
			1,
			[]statusResult{cardA, cardB, noCard},
			[]CardState{Activated, Activated, Deactivated},
		},
		{
			"single read is ignored when debouncing",
			2,
			[]statusResult{noCard, cardA, noCard, cardA, cardA, cardA},
			[]CardState{Activated},
		},
		{
			"card left on the reader",
			3,
			[]statusResult{cardA, cardA, cardA, cardA, cardA, cardA},
			[]CardState{Activated},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, states(runWatcher(t, tc.debounce, tc.script...)))
		})
	}
}

func TestWatchActivationCarriesStatus(t *testing.T) {
	events := runWatcher(t, 1, cardA, noCard)

	require.Len(t, events, 2)
	assert.Equal(t, cardA.status, events[0].Status)
	assert.Equal(t, Status{}, events[1].Status)
}

func TestWatcherCloseIsIdempotent(t *testing.T) {
	w := Watch(&scriptedSource{results: []statusResult{noCard}}, WatchOptions{PollInterval: time.Millisecond})

	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())

	_, open := <-w.Events()
	assert.False(t, open)
	assert.NoError(t, w.Err())
}

func TestWatchStopsOnDriverError(t *testing.T) {
	src := &scriptedSource{results: []statusResult{cardA, ioFailed, noCard}}
	w := Watch(src, WatchOptions{PollInterval: time.Millisecond})
	defer w.Close()

	var events []CardEvent
	timeout := time.After(2 * time.Second)
	for open := true; open; {
		select {
		case ev, ok := <-w.Events():
			if ok {
				events = append(events, ev)
			}
			open = ok
		case <-timeout:
			t.Fatal("watcher kept polling after a driver error")
		}
	}

	assert.Equal(t, []CardState{Activated}, states(events))
	assert.ErrorIs(t, w.Err(), ioFailed.err)

	// no polls after the failing one
	time.Sleep(20 * time.Millisecond)
	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Equal(t, 2, src.calls)
}

func TestWatchErrClosedStops(t *testing.T) {
	w := Watch(&scriptedSource{results: []statusResult{{err: ErrClosed}}}, WatchOptions{PollInterval: time.Millisecond})

	_, open := <-w.Events()
	assert.False(t, open)
	assert.ErrorIs(t, w.Err(), ErrClosed)
	assert.NoError(t, w.Close())
}

func TestCardStateString(t *testing.T) {
	assert.Equal(t, "activated", Activated.String())
	assert.Equal(t, "deactivated", Deactivated.String())
}

type uidSource struct {
	scriptedSource
	uid   string
	err   error
	reads int
}

func (s *uidSource) ReadUID() (string, error) {
	s.reads++
	return s.uid, s.err
}

func TestWatchReadsUID(t *testing.T) {
	src := &uidSource{scriptedSource: scriptedSource{results: []statusResult{cardA, cardA, noCard}}, uid: "04A1B2C3"}
	w := Watch(src, WatchOptions{PollInterval: time.Millisecond, ReadUID: true})

	require.Eventually(t, src.consumed, 2*time.Second, time.Millisecond)
	require.NoError(t, w.Close())

	var events []CardEvent
	for ev := range w.Events() {
		events = append(events, ev)
	}
	require.Len(t, events, 2)
	assert.Equal(t, "04A1B2C3", events[0].UID)
	assert.Equal(t, "04A1B2C3", events[0].ID())
	assert.Equal(t, 1, src.reads)
}

func TestWatchUIDFailureFallsBackToATR(t *testing.T) {
	src := &uidSource{scriptedSource: scriptedSource{results: []statusResult{cardA}}, err: ErrNoCard}
	w := Watch(src, WatchOptions{PollInterval: time.Millisecond, ReadUID: true})

	ev := <-w.Events()
	require.NoError(t, w.Close())

	assert.Equal(t, Activated, ev.State)
	assert.Empty(t, ev.UID)
	assert.Equal(t, "3B01", ev.ID())
}
