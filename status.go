package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/callebjorkell/nfc-midi/apdu"
	"github.com/callebjorkell/nfc-midi/config"
	"github.com/callebjorkell/nfc-midi/nfc"
	"github.com/kr/pretty"
	log "github.com/sirupsen/logrus"
)

func printCardStatus(s config.Settings) error {
	session, err := nfc.Open(nfc.NewDriver(), s.SessionOptions())
	if err != nil {
		return err
	}
	defer session.Close()

	st, err := session.Status()
	if errors.Is(err, nfc.ErrNoCard) {
		fmt.Printf("No card found on %v\n", session.Reader())
		return nil
	}
	if err != nil {
		return err
	}

	if *statusVerbose {
		fmt.Printf("%# v\n", pretty.Formatter(st))
		return nil
	}
	printStatus(os.Stdout, st)
	return nil
}

func printUID(s config.Settings) error {
	session, err := nfc.Open(nfc.NewDriver(), s.SessionOptions())
	if err != nil {
		return err
	}
	defer session.Close()

	id, err := session.ReadUID()
	if errors.Is(err, nfc.ErrNoCard) {
		fmt.Printf("No card found on %v\n", session.Reader())
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func sendToCard(s config.Settings, command string) error {
	cmd, err := apdu.Parse(command)
	if err != nil {
		return fmt.Errorf("invalid command %q: %w", command, err)
	}

	session, err := nfc.Open(nfc.NewDriver(), s.SessionOptions())
	if err != nil {
		return err
	}
	defer session.Close()

	resp, err := session.Transmit(cmd)
	if errors.Is(err, nfc.ErrNoCard) {
		fmt.Printf("No card found on %v\n", session.Reader())
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Println(resp)
	if err := resp.Err(); err != nil {
		log.Warn(err)
	}
	return nil
}
