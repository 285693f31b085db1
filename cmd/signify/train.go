package main

import (
	"fmt"

	"github.com/gonuts/commander"
	"github.com/gonuts/flag"
)

func trainCmd() *commander.Command {
	cmd := &commander.Command{
		Run:       runTrain,
		UsageLine: "train",
		Short:     "trains and publishes a new model from all samples",
		Flag:      *flag.NewFlagSet("train", flag.ExitOnError),
	}
	addConfigFlag(cmd)
	return cmd
}

func runTrain(cmd *commander.Command, args []string) error {
	a, closeAll, err := openApp()
	if err != nil {
		return err
	}
	defer closeAll()

	mv, err := a.Train()
	if err != nil {
		return err
	}
	fmt.Printf("Model %s: %d samples, %d signs, k=%d\n", mv.Version, mv.Samples, mv.Labels, mv.K)
	return nil
}
