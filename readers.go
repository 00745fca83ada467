package main

import (
	"fmt"
	"io"
	"os"

	"github.com/callebjorkell/nfc-midi/apdu"
	"github.com/callebjorkell/nfc-midi/midi"
	"github.com/callebjorkell/nfc-midi/nfc"
)

func listReaders() error {
	r, err := nfc.ListReaders(nfc.NewDriver())
	if err != nil {
		return err
	}
	if len(r) == 0 {
		fmt.Println("No readers found. Is pcscd running?")
		return nil
	}
	printIndexed(os.Stdout, "Reader", r)
	return nil
}

func listPorts() error {
	p, err := midi.ListPorts()
	if err != nil {
		return err
	}
	if len(p) == 0 {
		fmt.Println("No MIDI output ports found. Use --dry-run to only log the notes.")
		return nil
	}
	printIndexed(os.Stdout, "Port", p)
	return nil
}

func listCommands() {
	printCommands(os.Stdout, apdu.Commands())
}

func printIndexed(w io.Writer, title string, names []string) {
	fmt.Fprintf(w, "  # │ %v\n", title)
	fmt.Fprintln(w, "────┼────────────────────────────────────")
	for i, n := range names {
		fmt.Fprintf(w, "%3v │ %v\n", i, n)
	}
}

func printCommands(w io.Writer, commands []apdu.Command) {
	fmt.Fprintln(w, "                Name │ Bytes                                            │ Description")
	fmt.Fprintln(w, "─────────────────────┼──────────────────────────────────────────────────┼────────────────────")
	for _, c := range commands {
		fmt.Fprintf(w, "%20v │ %-48v │ %v\n", c.Name(), checkLength(c.String(), 47), c.Description())
	}
}
