package main

import (
	"fmt"
	"time"

	"github.com/gonuts/commander"
	"github.com/gonuts/flag"
	"github.com/google/uuid"

	"github.com/ayusman/signify/internal/store"
)

var (
	collectLabel    string
	collectN        int
	collectInterval time.Duration
	collectEvery    int
)

func collectCmd() *commander.Command {
	cmd := &commander.Command{
		Run:       runCollect,
		UsageLine: "collect -label <sign> [-n count] [-interval d] [-every n]",
		Short:     "records labeled samples from the camera",
		Long: `
records labeled hand samples from the camera until ctrl-c or -n samples

	$ signify collect -label hola -n 50

`,
		Flag: *flag.NewFlagSet("collect", flag.ExitOnError),
	}
	addConfigFlag(cmd)
	cmd.Flag.StringVar(&collectLabel, "label", "", "Sign label for the recorded samples")
	cmd.Flag.IntVar(&collectN, "n", 0, "Stop after this many samples (0 uses the config)")
	cmd.Flag.DurationVar(&collectInterval, "interval", 0, "Minimum time between samples (0 uses the config)")
	cmd.Flag.IntVar(&collectEvery, "every", 0, "Process only every Nth frame (0 uses the config)")
	return cmd
}

func runCollect(cmd *commander.Command, args []string) error {
	if collectLabel == "" {
		return fmt.Errorf("collect: -label is required")
	}

	a, closeAll, err := openApp()
	if err != nil {
		return err
	}
	defer closeAll()

	opts := a.DefaultCollectOptions()
	if collectN > 0 {
		opts.MaxSamples = collectN
	}
	if collectInterval > 0 {
		opts.Interval = collectInterval
	}
	if collectEvery > 0 {
		opts.ProcessEveryN = collectEvery
	}
	opts.SessionID = uuid.NewString()
	opts.OnSample = func(n int, s *store.Sample) {
		fmt.Printf("\rsaved %d samples of %q", n, s.Label)
	}

	ctx, cancel := interruptContext()
	defer cancel()

	fmt.Printf("Collecting %q, press ctrl-c to stop\n", store.NormalizeLabel(collectLabel))
	n, err := a.Collect(ctx, collectLabel, opts)
	fmt.Println()
	if n > 0 || err == nil {
		fmt.Printf("Saved %d samples (session %s)\n", n, opts.SessionID)
	}
	return err
}
