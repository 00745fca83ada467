package nfc

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/callebjorkell/nfc-midi/apdu"
)

var (
	// ErrNoReaderFound is returned when no reader is attached, or none matches the configured pattern.
	ErrNoReaderFound = errors.New("no reader found")
	// ErrNoCard means that there is no card in the field of the reader. This is the only error that polling treats
	// as a normal condition.
	ErrNoCard = errors.New("no card detected")
	ErrClosed = errors.New("session closed")
)

const (
	Activated   CardState = 0
	Deactivated CardState = 1
)

type CardReader interface {
	io.Closer
	Events() <-chan CardEvent
}

type CardState int

func (s CardState) String() string {
	if s == Activated {
		return "activated"
	}
	return "deactivated"
}

type CardEvent struct {
	State CardState
	// Status is the status read when the card was activated. Empty on deactivation.
	Status Status
	// UID is only set on activation, and only when the watcher was asked to read it.
	UID string
}

// ID identifies the card of an activation: the UID when known, the ATR otherwise.
func (e CardEvent) ID() string {
	if e.UID != "" {
		return e.UID
	}
	return e.Status.ATRHex()
}

// Status is a snapshot of the reader and the card in it.
type Status struct {
	Reader   string
	State    ReaderState
	Protocol Protocol
	ATR      []byte
}

func (s Status) ATRHex() string {
	return apdu.CompactHex(s.ATR)
}

// ReaderState is the card state bit mask reported by the resource manager.
type ReaderState uint32

const (
	StateUnknown    ReaderState = 0x0001
	StateAbsent     ReaderState = 0x0002
	StatePresent    ReaderState = 0x0004
	StateSwallowed  ReaderState = 0x0008
	StatePowered    ReaderState = 0x0010
	StateNegotiable ReaderState = 0x0020
	StateSpecific   ReaderState = 0x0040
)

var stateNames = []struct {
	state ReaderState
	name  string
}{
	{StateUnknown, "unknown"},
	{StateAbsent, "absent"},
	{StatePresent, "present"},
	{StateSwallowed, "swallowed"},
	{StatePowered, "powered"},
	{StateNegotiable, "negotiable"},
	{StateSpecific, "specific"},
}

func (s ReaderState) String() string {
	var names []string
	for _, n := range stateNames {
		if s&n.state != 0 {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return fmt.Sprintf("0x%04X", uint32(s))
	}
	return strings.Join(names, "|")
}

type Protocol uint32

const (
	ProtocolUndefined Protocol = 0x0
	ProtocolT0        Protocol = 0x1
	ProtocolT1        Protocol = 0x2
	ProtocolRaw       Protocol = 0x4
	ProtocolAny                = ProtocolT0 | ProtocolT1
)

func (p Protocol) String() string {
	switch p {
	case ProtocolUndefined:
		return "undefined"
	case ProtocolT0:
		return "T0"
	case ProtocolT1:
		return "T1"
	case ProtocolRaw:
		return "raw"
	case ProtocolAny:
		return "T0|T1"
	}
	return fmt.Sprintf("0x%X", uint32(p))
}

// ParseProtocol maps the configuration names t0, t1, raw and any to a protocol mask.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "t0":
		return ProtocolT0, nil
	case "t1":
		return ProtocolT1, nil
	case "raw":
		return ProtocolRaw, nil
	case "any", "t0|t1":
		return ProtocolAny, nil
	}
	return ProtocolUndefined, fmt.Errorf("unknown protocol %q", s)
}

type ShareMode int

const (
	ShareShared ShareMode = iota
	ShareExclusive
	ShareDirect
)

// Driver is the entry point into the smart card subsystem.
type Driver interface {
	EstablishContext() (Context, error)
}

// Context is an established resource manager context. Release must be called when done.
type Context interface {
	ListReaders() ([]string, error)
	// Connect returns ErrNoCard (possibly wrapped) when the reader is empty.
	Connect(reader string, mode ShareMode, protocol Protocol) (Card, error)
	Release() error
}

// Card is a connection to a card in a reader. Status and Transmit return ErrNoCard (possibly wrapped) when the card
// has left the field.
type Card interface {
	Status() (Status, error)
	Transmit(cmd []byte) ([]byte, error)
	Disconnect() error
}
