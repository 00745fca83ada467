package main

import (
	"fmt"
	"os"
	"time"

	"github.com/callebjorkell/nfc-midi/config"
	log "github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"
)

var (
	app        = kingpin.New("nfc-midi", "Plays a MIDI note whenever an NFC card is put on a PC/SC card reader.")
	configFile = app.Flag("config", "TOML file with the settings. Flags override the file.").Envar("NFCMIDI_CONFIG").ExistingFile()
	debug      = app.Flag("debug", "Enable debug logging.").Envar("NFCMIDI_DEBUG").Bool()
	logFormat  = app.Flag("log-format", "Log format, text or json.").Default("text").Enum("text", "json")
	reader     = app.Flag("reader", "Regular expression selecting the reader. The first reader is used if not set.").Envar("NFCMIDI_READER").String()
	protocols  = app.Flag("protocol", "Protocol to connect with (t0, t1, raw or any). Repeat to give a preference order.").Strings()
	settle     = app.Flag("settle", "Pause after every command sent to the card.").Duration()

	start         = app.Command("start", "Poll the reader and play a note every time a card is put on it.").Default()
	startPoll     = start.Flag("poll", "Poll interval.").Duration()
	startDebounce = start.Flag("debounce", "Number of equal reads before a card counts as added or removed.").Int()
	startHoldOff  = start.Flag("hold-off", "Do not play again for the same card within this time.").Duration()
	startUID      = start.Flag("uid", "Read the UID of every card put on the reader.").Bool()
	startPort     = start.Flag("port", "Regular expression selecting the MIDI output port. The first port is used if not set.").Envar("NFCMIDI_PORT").String()
	startChannel  = start.Flag("channel", "MIDI channel, 0-15.").Int()
	startNote     = start.Flag("note", "MIDI note to play. Defaults to 60 (middle C).").Int()
	startVelocity = start.Flag("velocity", "Note velocity. Defaults to 64.").Int()
	startHold     = start.Flag("hold", "How long the note is held.").Duration()
	startDryRun   = start.Flag("dry-run", "Log the notes instead of sending them to a MIDI port.").Bool()
	startOnce     = start.Flag("once", "Exit after the first card.").Bool()

	status        = app.Command("status", "Print the status of the reader and the card on it.")
	statusVerbose = status.Flag("verbose", "Dump the complete status.").Short('v').Bool()

	uid = app.Command("uid", "Read the UID of the card on the reader.")

	send        = app.Command("send", "Send a command to the card and print the response.")
	sendCommand = send.Arg("apdu", "Name of a known command (see the commands command), or the command bytes in hex.").Required().String()

	readers  = app.Command("readers", "List the available readers.")
	ports    = app.Command("ports", "List the available MIDI output ports.")
	commands = app.Command("commands", "List the known commands.")
)

func main() {
	app.Version(fmt.Sprintf("%v (commit %v, built %v)", VERSION, GITCOMMIT, BUILDTIME))
	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	setupLogging()

	var err error
	switch cmd {
	case start.FullCommand():
		err = startPlayer(loadSettings())
	case status.FullCommand():
		err = printCardStatus(loadSettings())
	case uid.FullCommand():
		err = printUID(loadSettings())
	case send.FullCommand():
		err = sendToCard(loadSettings(), *sendCommand)
	case readers.FullCommand():
		err = listReaders()
	case ports.FullCommand():
		err = listPorts()
	case commands.FullCommand():
		listCommands()
	default:
		kingpin.FatalUsage("Unrecognized command")
	}

	if err != nil {
		log.Fatal(err)
	}
}

func setupLogging() {
	if *debug {
		log.SetLevel(log.DebugLevel)
	}
	if *logFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
}

// loadSettings applies the flags on top of the defaults and the config file. Flags left at their zero value do not
// override anything.
func loadSettings() config.Settings {
	s := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			log.Fatal(err)
		}
		s = loaded
	}

	overrideString(&s.ReaderPattern, *reader)
	if len(*protocols) > 0 {
		s.Protocols = *protocols
	}
	overrideDuration(&s.Settle, *settle)

	overrideDuration(&s.PollInterval, *startPoll)
	overrideInt(&s.Debounce, *startDebounce)
	overrideDuration(&s.HoldOff, *startHoldOff)
	s.ReadUID = s.ReadUID || *startUID
	overrideString(&s.MidiPort, *startPort)
	overrideInt(&s.Channel, *startChannel)
	overrideInt(&s.Note, *startNote)
	overrideInt(&s.Velocity, *startVelocity)
	overrideDuration(&s.Hold, *startHold)
	s.DryRun = s.DryRun || *startDryRun

	if err := s.Validate(); err != nil {
		log.Fatal(err)
	}
	log.Debugf("Settings: %+v", s)
	return s
}

func overrideString(target *string, v string) {
	if v != "" {
		*target = v
	}
}

func overrideInt(target *int, v int) {
	if v != 0 {
		*target = v
	}
}

func overrideDuration(target *time.Duration, v time.Duration) {
	if v != 0 {
		*target = v
	}
}
