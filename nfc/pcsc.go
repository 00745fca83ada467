//go:build !mock
// +build !mock

package nfc

import (
	"errors"
	"fmt"

	"github.com/ebfe/scard"
)

// SCARD_PROTOCOL_RAW in pcsclite
const scardProtocolRaw scard.Protocol = 0x0004

// NewDriver returns the PC/SC driver.
func NewDriver() Driver {
	return pcscDriver{}
}

type pcscDriver struct{}

func (pcscDriver) EstablishContext() (Context, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, err
	}
	return &pcscContext{ctx: ctx}, nil
}

type pcscContext struct {
	ctx *scard.Context
}

func (c *pcscContext) ListReaders() ([]string, error) {
	readers, err := c.ctx.ListReaders()
	// pcsclite reports an empty reader list as an error
	if errors.Is(err, scard.ErrNoReadersAvailable) {
		return nil, nil
	}
	return readers, err
}

func (c *pcscContext) Connect(reader string, mode ShareMode, protocol Protocol) (Card, error) {
	card, err := c.ctx.Connect(reader, toScardShareMode(mode), toScardProtocol(protocol))
	if err != nil {
		return nil, mapError(err)
	}
	return &pcscCard{card: card}, nil
}

func (c *pcscContext) Release() error {
	return c.ctx.Release()
}

type pcscCard struct {
	card *scard.Card
}

func (c *pcscCard) Status() (Status, error) {
	st, err := c.card.Status()
	if err != nil {
		return Status{}, mapError(err)
	}
	return Status{
		Reader:   st.Reader,
		State:    fromScardState(st.State),
		Protocol: fromScardProtocol(st.ActiveProtocol),
		ATR:      st.Atr,
	}, nil
}

func (c *pcscCard) Transmit(cmd []byte) ([]byte, error) {
	rsp, err := c.card.Transmit(cmd)
	if err != nil {
		return nil, mapError(err)
	}
	return rsp, nil
}

func (c *pcscCard) Disconnect() error {
	return c.card.Disconnect(scard.LeaveCard)
}

// mapError folds the "card is not (or no longer) there" family of errors into ErrNoCard.
func mapError(err error) error {
	switch {
	case errors.Is(err, scard.ErrNoSmartcard),
		errors.Is(err, scard.ErrRemovedCard),
		errors.Is(err, scard.ErrResetCard),
		errors.Is(err, scard.ErrUnpoweredCard),
		errors.Is(err, scard.ErrUnresponsiveCard):
		return fmt.Errorf("%w: %v", ErrNoCard, err)
	}
	return err
}

func toScardShareMode(m ShareMode) scard.ShareMode {
	switch m {
	case ShareExclusive:
		return scard.ShareExclusive
	case ShareDirect:
		return scard.ShareDirect
	}
	return scard.ShareShared
}

func toScardProtocol(p Protocol) scard.Protocol {
	var out scard.Protocol
	if p&ProtocolT0 != 0 {
		out |= scard.ProtocolT0
	}
	if p&ProtocolT1 != 0 {
		out |= scard.ProtocolT1
	}
	if p&ProtocolRaw != 0 {
		out |= scardProtocolRaw
	}
	return out
}

func fromScardProtocol(p scard.Protocol) Protocol {
	var out Protocol
	if p&scard.ProtocolT0 != 0 {
		out |= ProtocolT0
	}
	if p&scard.ProtocolT1 != 0 {
		out |= ProtocolT1
	}
	if p&scardProtocolRaw != 0 {
		out |= ProtocolRaw
	}
	return out
}

func fromScardState(s scard.State) ReaderState {
	pairs := []struct {
		from scard.State
		to   ReaderState
	}{
		{scard.Unknown, StateUnknown},
		{scard.Absent, StateAbsent},
		{scard.Present, StatePresent},
		{scard.Swallowed, StateSwallowed},
		{scard.Powered, StatePowered},
		{scard.Negotiable, StateNegotiable},
		{scard.Specific, StateSpecific},
	}
	var out ReaderState
	for _, p := range pairs {
		if s&p.from != 0 {
			out |= p.to
		}
	}
	return out
}
