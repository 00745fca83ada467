package nfc

import (
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const DefaultPollInterval = 150 * time.Millisecond

type StatusSource interface {
	Status() (Status, error)
}

type uidReader interface {
	ReadUID() (string, error)
}

type WatchOptions struct {
	PollInterval time.Duration
	// Debounce is the number of equal reads needed before a change in presence is reported. Values below 1 are
	// treated as 1.
	Debounce int
	// ReadUID makes the watcher ask the card for its UID on activation, if the source supports it.
	ReadUID bool
}

// Watcher polls a status source and turns changes in card presence into events. It does not own the source.
// Polling stops on the first error other than ErrNoCard; the events channel is then closed and Err reports it.
type Watcher struct {
	events chan CardEvent
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error
}

var _ CardReader = (*Watcher)(nil)

func Watch(src StatusSource, opts WatchOptions) *Watcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Debounce < 1 {
		opts.Debounce = 1
	}

	w := &Watcher{
		events: make(chan CardEvent, 10),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go w.run(src, opts)
	return w
}

func (w *Watcher) Events() <-chan CardEvent {
	return w.events
}

// Err returns the error that stopped the polling, or nil if it was stopped by Close.
func (w *Watcher) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close stops the polling and waits for the poll goroutine to return. The events channel is closed afterwards.
func (w *Watcher) Close() error {
	w.once.Do(func() {
		close(w.stop)
	})
	<-w.done
	return nil
}

func (w *Watcher) run(src StatusSource, opts WatchOptions) {
	defer close(w.done)
	defer close(w.events)

	// the key is the ATR of the card in the field, or empty when there is none.
	lastConfirmed, lastSeen := "", ""
	seen := 0
	for {
		st, err := src.Status()
		key := ""
		switch {
		case err == nil:
			key = st.ATRHex()
			if key == "" {
				key = st.Reader
			}
		case errors.Is(err, ErrNoCard):
		default:
			log.Errorf("Error when reading card status: %v", err)
			w.mu.Lock()
			w.err = err
			w.mu.Unlock()
			return
		}

		if key != lastSeen {
			lastSeen = key
			seen = 0
		}
		seen++

		log.Debugf("ATR: %v, lastConfirmed: %v, debounce: %v", key, lastConfirmed, seen)

		if key != lastConfirmed && seen >= opts.Debounce {
			lastConfirmed = key
			ev := CardEvent{State: Deactivated}
			if key != "" {
				ev = CardEvent{State: Activated, Status: st}
				if r, ok := src.(uidReader); ok && opts.ReadUID {
					if uid, err := r.ReadUID(); err != nil {
						log.Warnf("Could not read the UID: %v", err)
					} else {
						ev.UID = uid
					}
				}
				log.Debugf("Sending activation event for %v", ev.ID())
			} else {
				log.Debugln("Sending deactivation event")
			}
			select {
			case w.events <- ev:
			case <-w.stop:
				return
			}
		}

		select {
		case <-w.stop:
			log.Debugln("Watcher stopped. Returning.")
			return
		case <-time.After(opts.PollInterval):
			// just do another loop
		}
	}
}
