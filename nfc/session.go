package nfc

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/callebjorkell/nfc-midi/apdu"
	log "github.com/sirupsen/logrus"
)

// DefaultSettle is how long a session waits after every transmit. The ACR122U needs a moment before it takes the
// next command.
const DefaultSettle = 500 * time.Millisecond

type Options struct {
	// ReaderPattern is a regular expression matched against the reader names. The first match is used. Empty means
	// the first reader.
	ReaderPattern string
	// Protocols is the preference order used when connecting to a card. Defaults to T0|T1.
	Protocols []Protocol
	// Settle is the pause after every transmit. Zero means DefaultSettle, a negative value disables it.
	Settle time.Duration
}

// Session holds a context and a single reader for its whole lifetime. The card connection is made lazily and is
// dropped again when the card leaves the field, so a session can be polled for as long as the program runs.
type Session struct {
	ctx       Context
	card      Card
	reader    string
	protocols []Protocol
	active    Protocol
	settle    time.Duration
	uid       string
	closed    bool
	sleep     func(time.Duration)
}

// Open establishes a context and selects a reader. A missing card is not an error here; the first Status or
// Transmit call will try again. The context is released if Open fails.
func Open(driver Driver, opts Options) (*Session, error) {
	pattern, err := compilePattern(opts.ReaderPattern)
	if err != nil {
		return nil, err
	}

	ctx, err := driver.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("could not establish context: %w", err)
	}

	readers, err := ctx.ListReaders()
	if err != nil {
		releaseContext(ctx)
		return nil, fmt.Errorf("could not list readers: %w", err)
	}

	reader, err := selectReader(readers, pattern)
	if err != nil {
		releaseContext(ctx)
		return nil, err
	}
	log.Infof("Found reader: %v", reader)

	s := &Session{
		ctx:       ctx,
		reader:    reader,
		protocols: opts.Protocols,
		settle:    opts.Settle,
		sleep:     time.Sleep,
	}
	if len(s.protocols) == 0 {
		s.protocols = []Protocol{ProtocolAny}
	}
	if s.settle == 0 {
		s.settle = DefaultSettle
	}

	if err := s.connect(); err != nil && !errors.Is(err, ErrNoCard) {
		s.Close()
		return nil, err
	}
	return s, nil
}

// ListReaders lists the readers known to the driver, using a short lived context.
func ListReaders(driver Driver) ([]string, error) {
	ctx, err := driver.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("could not establish context: %w", err)
	}
	defer releaseContext(ctx)
	return ctx.ListReaders()
}

func compilePattern(p string) (*regexp.Regexp, error) {
	if p == "" {
		return nil, nil
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return nil, fmt.Errorf("invalid reader pattern %q: %w", p, err)
	}
	return re, nil
}

func selectReader(readers []string, pattern *regexp.Regexp) (string, error) {
	if len(readers) == 0 {
		return "", ErrNoReaderFound
	}
	if pattern == nil {
		return readers[0], nil
	}
	for _, r := range readers {
		if pattern.MatchString(r) {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w matching %q (have %q)", ErrNoReaderFound, pattern.String(), readers)
}

func releaseContext(ctx Context) {
	if err := ctx.Release(); err != nil {
		log.Warnf("Could not release context: %v", err)
	}
}

func (s *Session) Reader() string {
	return s.reader
}

func (s *Session) Protocol() Protocol {
	return s.active
}

// UID is the value stored by the last successful ReadUID.
func (s *Session) UID() string {
	return s.uid
}

func (s *Session) connect() error {
	if s.card != nil {
		return nil
	}
	var lastErr error
	for _, p := range s.protocols {
		card, err := s.ctx.Connect(s.reader, ShareShared, p)
		if err == nil {
			log.Debugf("Connected to card in %v using %v", s.reader, p)
			s.card = card
			s.active = p
			return nil
		}
		if errors.Is(err, ErrNoCard) {
			return err
		}
		log.Debugf("Connecting with %v failed: %v", p, err)
		lastErr = err
	}
	return fmt.Errorf("could not connect to %v: %w", s.reader, lastErr)
}

// dropCard forgets a card connection that has gone stale.
func (s *Session) dropCard() {
	if s.card == nil {
		return
	}
	if err := s.card.Disconnect(); err != nil {
		log.Debugf("Disconnecting stale card: %v", err)
	}
	s.card = nil
	s.active = ProtocolUndefined
}

// Status queries the reader for the card in it. It has no side effects apart from (re)connecting to the card.
func (s *Session) Status() (Status, error) {
	if s.closed {
		return Status{}, ErrClosed
	}
	if err := s.connect(); err != nil {
		return Status{}, err
	}

	st, err := s.card.Status()
	if err != nil {
		if errors.Is(err, ErrNoCard) {
			s.dropCard()
		}
		return Status{}, err
	}
	if st.State&StateAbsent != 0 {
		s.dropCard()
		return Status{}, ErrNoCard
	}
	if st.Protocol != ProtocolUndefined {
		s.active = st.Protocol
	}
	return st, nil
}

// Transmit sends the command to the card exactly once and then waits for the settle time, whatever the outcome.
func (s *Session) Transmit(cmd []byte) (apdu.Response, error) {
	if s.closed {
		return apdu.Response{}, ErrClosed
	}
	if s.settle > 0 {
		defer s.sleep(s.settle)
	}

	log.Debugf("Sending command %v", apdu.Hex(cmd))
	if err := s.connect(); err != nil {
		return apdu.Response{}, err
	}

	raw, err := s.card.Transmit(cmd)
	if err != nil {
		if errors.Is(err, ErrNoCard) {
			s.dropCard()
		}
		return apdu.Response{}, err
	}

	resp, err := apdu.ParseResponse(raw)
	if err != nil {
		return apdu.Response{}, err
	}
	log.Debug(resp)
	return resp, nil
}

// ReadUID asks the card for its UID and keeps it on the session.
func (s *Session) ReadUID() (string, error) {
	resp, err := s.Transmit(apdu.GetUID.Bytes())
	if err != nil {
		return "", err
	}
	if err := resp.Err(); err != nil {
		return "", fmt.Errorf("get uid: %w", err)
	}
	s.uid = resp.Value()
	log.Debugf("UID: %v", s.uid)
	return s.uid, nil
}

// Close disconnects the card and releases the context. Calling it more than once is fine.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.dropCard()
	return s.ctx.Release()
}
