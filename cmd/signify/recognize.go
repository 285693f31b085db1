package main

import (
	"fmt"

	"github.com/gonuts/commander"
	"github.com/gonuts/flag"

	"github.com/ayusman/signify/internal/app"
)

var recognizeHooks bool

func recognizeCmd() *commander.Command {
	cmd := &commander.Command{
		Run:       runRecognize,
		UsageLine: "recognize [-hooks]",
		Short:     "prints committed signs from the camera until ctrl-c",
		Flag:      *flag.NewFlagSet("recognize", flag.ExitOnError),
	}
	addConfigFlag(cmd)
	cmd.Flag.BoolVar(&recognizeHooks, "hooks", false, "Load plugins and run configured sign hooks")
	return cmd
}

func runRecognize(cmd *commander.Command, args []string) error {
	a, closeAll, err := openApp()
	if err != nil {
		return err
	}
	defer closeAll()

	if recognizeHooks {
		if err := a.DiscoverPlugins(); err != nil {
			return err
		}
	}

	a.OnSign(func(ev app.SignEvent) {
		fmt.Printf("%s  %-20s %3.0f%%\n", ev.At.Format("15:04:05"), ev.Label, ev.Confidence*100)
	})

	ctx, cancel := interruptContext()
	defer cancel()

	if err := a.StartRecognition(); err != nil {
		return err
	}
	defer a.StopRecognition()

	fmt.Println("Recognizing, press ctrl-c to stop")
	<-ctx.Done()
	return nil
}
