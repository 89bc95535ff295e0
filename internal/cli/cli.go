package cli

import (
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Status  *StatusCommand
	Track   *TrackCommand
	Consent *ConsentCommand
	Flush   *FlushCommand
	Purge   *PurgeCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "tracker"
	parser.LongDescription = "Privacy-first campaign analytics collection: consent-gated event tracking, offline spooling, and batch delivery."

	cmds := &commands{
		Status:  &StatusCommand{globals: &globals, version: version},
		Track:   &TrackCommand{globals: &globals, version: version},
		Consent: &ConsentCommand{globals: &globals, version: version},
		Flush:   &FlushCommand{globals: &globals, version: version},
		Purge:   &PurgeCommand{globals: &globals, version: version},
	}

	parser.AddCommand("status", "Show tracker state", "Show visitor identity, consent state, spool depth, and configuration summary.", cmds.Status)
	parser.AddCommand("track", "Record an event", "Record an event through the engine into the local spool.", cmds.Track)
	parser.AddCommand("consent", "Set the consent decision", "Record an explicit consent grant or denial.", cmds.Consent)
	parser.AddCommand("flush", "Deliver spooled batches", "Deliver spooled batches to the configured delivery endpoint.", cmds.Flush)
	parser.AddCommand("purge", "Delete ALL tracker data", "Delete ALL tracker data. Destructive operation with safety prompt.", cmds.Purge)

	return parser, &globals, cmds
}

// Run is the main entry point for the tracker CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	// Handle --version before parser (go-flags requires a subcommand, but
	// --version is valid without one).
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Printf("tracker %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok {
			if flagsErr.Type == goflags.ErrHelp {
				return nil
			}
		}
		return err
	}

	return nil
}
