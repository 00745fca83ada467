package apdu

import (
	"errors"
	"fmt"
)

var ErrShortResponse = errors.New("response shorter than a status word")

var statusText = map[uint16]string{
	0x9000: "success",
	0x6282: "end of data reached before Le bytes",
	0x6300: "operation failed",
	0x6700: "wrong length",
	0x6981: "command incompatible",
	0x6982: "security status not satisfied",
	0x6986: "command not allowed",
	0x6A81: "function not supported",
	0x6A82: "file or block not found",
	0x6B00: "wrong parameters P1-P2",
}

// Response is a response APDU split into its data and the trailing status word.
type Response struct {
	Data []byte
	SW1  byte
	SW2  byte
}

func ParseResponse(raw []byte) (Response, error) {
	if len(raw) < 2 {
		return Response{}, fmt.Errorf("%w: got %d bytes", ErrShortResponse, len(raw))
	}
	n := len(raw) - 2
	data := make([]byte, n)
	copy(data, raw[:n])
	return Response{Data: data, SW1: raw[n], SW2: raw[n+1]}, nil
}

func (r Response) SW() uint16 {
	return uint16(r.SW1)<<8 | uint16(r.SW2)
}

func (r Response) OK() bool {
	return r.SW() == 0x9000
}

// Err returns a *StatusError when the card did not answer 90 00.
func (r Response) Err() error {
	if r.OK() {
		return nil
	}
	return &StatusError{SW1: r.SW1, SW2: r.SW2}
}

// Value is the data part as compact hex.
func (r Response) Value() string {
	return CompactHex(r.Data)
}

func (r Response) String() string {
	return fmt.Sprintf("Value: %v, SW: %04X", r.Value(), r.SW())
}

type StatusError struct {
	SW1 byte
	SW2 byte
}

func (e *StatusError) Error() string {
	sw := uint16(e.SW1)<<8 | uint16(e.SW2)
	if text, ok := statusText[sw]; ok {
		return fmt.Sprintf("card returned %04X (%v)", sw, text)
	}
	return fmt.Sprintf("card returned %04X", sw)
}
