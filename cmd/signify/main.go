// Command signify collects sign samples, trains the sign classifier and runs
// live recognition from a webcam.
package main

import (
	"fmt"
	"os"

	"github.com/gonuts/commander"
	"github.com/gonuts/flag"
)

func rootCmd() *commander.Command {
	return &commander.Command{
		UsageLine: "signify <command> [options]",
		Short:     "real-time sign language recognition",
		Subcommands: []*commander.Command{
			serveCmd(),
			collectCmd(),
			trainCmd(),
			recognizeCmd(),
			samplesCmd(),
			modelsCmd(),
		},
		Flag: *flag.NewFlagSet("signify", flag.ExitOnError),
	}
}

func main() {
	if err := rootCmd().Dispatch(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "**err**: %v\n", err)
		os.Exit(1)
	}
}
