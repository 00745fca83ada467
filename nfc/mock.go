//go:build mock
// +build mock

package nfc

import (
	"bytes"
	"time"

	"github.com/callebjorkell/nfc-midi/apdu"
)

const mockReaderName = "ACS ACR122U PICC Interface 00 00"

var (
	// ATR of a MIFARE Ultralight as reported by the ACR122U
	mockATR = []byte{0x3B, 0x8F, 0x80, 0x01, 0x80, 0x4F, 0x0C, 0xA0, 0x00, 0x00, 0x03, 0x06, 0x03, 0x00, 0x03, 0x00, 0x00, 0x00, 0x00, 0x68}
	mockUID = []byte{0x04, 0xA1, 0xB2, 0xC3}
)

// NewDriver returns a simulated reader, where a card is placed on the reader for 5 seconds every 15 seconds.
func NewDriver() Driver {
	return &mockDriver{start: time.Now()}
}

type mockDriver struct {
	start time.Time
}

func (m *mockDriver) present() bool {
	return time.Since(m.start)%(15*time.Second) < 5*time.Second
}

func (m *mockDriver) EstablishContext() (Context, error) {
	return mockContext{m}, nil
}

type mockContext struct {
	driver *mockDriver
}

func (mockContext) ListReaders() ([]string, error) {
	return []string{mockReaderName}, nil
}

func (c mockContext) Connect(reader string, _ ShareMode, protocol Protocol) (Card, error) {
	if !c.driver.present() {
		return nil, ErrNoCard
	}
	if protocol&ProtocolT1 == 0 {
		protocol = ProtocolT0
	} else {
		protocol = ProtocolT1
	}
	return &mockCard{driver: c.driver, reader: reader, protocol: protocol}, nil
}

func (mockContext) Release() error {
	return nil
}

type mockCard struct {
	driver   *mockDriver
	reader   string
	protocol Protocol
	removed  bool
}

func (c *mockCard) Status() (Status, error) {
	if c.removed || !c.driver.present() {
		c.removed = true
		return Status{}, ErrNoCard
	}
	return Status{
		Reader:   c.reader,
		State:    StatePresent | StatePowered | StateSpecific,
		Protocol: c.protocol,
		ATR:      mockATR,
	}, nil
}

func (c *mockCard) Transmit(cmd []byte) ([]byte, error) {
	if c.removed || !c.driver.present() {
		c.removed = true
		return nil, ErrNoCard
	}
	ok := []byte{0x90, 0x00}
	switch {
	case bytes.Equal(cmd, apdu.GetUID.Bytes()):
		return append(append([]byte{}, mockUID...), ok...), nil
	case bytes.HasPrefix(cmd, apdu.ReadRecentlyUpdated.Bytes()) && len(cmd) == 5:
		return append(make([]byte, cmd[4]), ok...), nil
	case bytes.HasPrefix(cmd, apdu.UpdateBlocksWithData.Bytes()):
		return ok, nil
	}
	return []byte{0x6A, 0x81}, nil
}

func (c *mockCard) Disconnect() error {
	return nil
}
