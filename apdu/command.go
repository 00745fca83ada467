package apdu

// ACR122U pseudo APDU reference: http://downloads.acs.com.hk/drivers/en/API-ACR122U-2.02.pdf

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// BlockNumber is the data block all the block commands are addressed to.
	BlockNumber byte = 0x04
	// BytesToUpdate is the payload length used by the update commands.
	BytesToUpdate byte = 0x10
)

var ErrEmptyCommand = errors.New("empty command")

// Command is a named, pre-built command APDU. The bytes can not be changed once created, Bytes always hands out
// a copy.
type Command struct {
	name        string
	description string
	bytes       []byte
}

func newCommand(name, description string, b ...byte) Command {
	return Command{name: name, description: description, bytes: b}
}

var (
	GetUID       = newCommand("get-uid", "Get the UID of the card in the field", 0xFF, 0xCA, 0x00, 0x00, 0x04)
	GetData      = newCommand("get-data", "Get data, full length", 0xFF, 0xCA, 0x00, 0x00, 0x00)
	Select       = newCommand("select", "Select file", 0xA0, 0xA4, 0x00, 0x00, 0x02)
	Authenticate = newCommand("authenticate", "Authenticate block 0x04 with key A from slot 0",
		0xFF, 0x88, 0x00, BlockNumber, 0x60, 0x00)
	ReadBytes          = newCommand("read-bytes", "Read 4 bytes from block 0x04", 0xFF, 0xB0, 0x00, BlockNumber, 0x04)
	Read4BinaryBlocks  = newCommand("read-4", "Read 4 bytes from binary block 0x04", 0xFF, 0xB0, 0x00, BlockNumber, 0x04)
	Read16BinaryBlocks = newCommand("read-16", "Read 16 bytes from binary block 0x04", 0xFF, 0xB0, 0x00, BlockNumber, 0x10)
	WriteBlocks        = newCommand("write-blocks", "Write FF FF FF FF into block 0x04",
		0xFF, 0xD6, 0x00, BlockNumber, 0x04, 0xFF, 0xFF, 0xFF, 0xFF)
	UpdateBlocks = newCommand("update-blocks", "Write 00..0F into the 16 bytes from block 0x04",
		0xFF, 0xD6, 0x00, BlockNumber, BytesToUpdate,
		0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F)
	UpdateFixedBlocks    = newCommand("update-fixed", "Update header for 16 bytes, no data", 0xFF, 0xD6, 0x00, BlockNumber, BytesToUpdate)
	UpdateBlocksWithData = newCommand("update-with-data", "Update header, data is appended", 0xFF, 0xD6, 0x00, BlockNumber)
	ReadRecentlyUpdated  = newCommand("read-updated", "Read header, length is appended", 0xFF, 0xB0, 0x00, BlockNumber)
)

var registry = []Command{
	GetUID,
	GetData,
	Select,
	Authenticate,
	ReadBytes,
	Read4BinaryBlocks,
	Read16BinaryBlocks,
	WriteBlocks,
	UpdateBlocks,
	UpdateFixedBlocks,
	UpdateBlocksWithData,
	ReadRecentlyUpdated,
}

func (c Command) Name() string {
	return c.name
}

func (c Command) Description() string {
	return c.description
}

func (c Command) Len() int {
	return len(c.bytes)
}

// Bytes returns a copy of the command buffer.
func (c Command) Bytes() []byte {
	out := make([]byte, len(c.bytes))
	copy(out, c.bytes)
	return out
}

// WithData appends Lc and the given data to the command header.
func (c Command) WithData(data ...byte) []byte {
	out := c.Bytes()
	out = append(out, byte(len(data)))
	return append(out, data...)
}

// WithLength appends Le to the command header.
func (c Command) WithLength(le byte) []byte {
	return append(c.Bytes(), le)
}

func (c Command) String() string {
	return Hex(c.bytes)
}

// Commands returns all the named commands in a stable order.
func Commands() []Command {
	out := make([]Command, len(registry))
	copy(out, registry)
	return out
}

func Lookup(name string) (Command, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, c := range registry {
		if c.name == name {
			return c, true
		}
	}
	return Command{}, false
}

// Parse resolves a command argument. It is either the name of a known command or a hex string, where spaces, colons
// and dashes between the bytes are ignored.
func Parse(s string) ([]byte, error) {
	if c, ok := Lookup(s); ok {
		return c.Bytes(), nil
	}
	clean := strings.NewReplacer(" ", "", ":", "", "-", "", "\t", "").Replace(s)
	clean = strings.TrimPrefix(strings.TrimPrefix(clean, "0x"), "0X")
	if clean == "" {
		return nil, ErrEmptyCommand
	}
	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%q is neither a known command nor hex: %w", s, err)
	}
	return b, nil
}

// Hex formats bytes as upper case hex pairs separated by spaces, e.g. "FF CA 00 00 04".
func Hex(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02X", v)
	}
	return strings.Join(parts, " ")
}

// CompactHex formats bytes as upper case hex without separators, e.g. "04A1B2C3".
func CompactHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}
