package main

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"runtime"
	"time"

	"github.com/gonuts/commander"
	"github.com/gonuts/flag"

	"github.com/ayusman/signify/internal/app"
	"github.com/ayusman/signify/internal/server"
	"github.com/ayusman/signify/internal/store"
	"github.com/ayusman/signify/internal/tray"
)

var (
	serveAddr      string
	serveTray      bool
	serveRecognize bool
)

func serveCmd() *commander.Command {
	cmd := &commander.Command{
		Run:       runServe,
		UsageLine: "serve [-addr host:port] [-tray] [-recognize]",
		Short:     "runs the HTTP API, optionally with the tray and live recognition",
		Long: `
runs the HTTP API on the configured address

	$ signify serve -tray -recognize

`,
		Flag: *flag.NewFlagSet("serve", flag.ExitOnError),
	}
	addConfigFlag(cmd)
	cmd.Flag.StringVar(&serveAddr, "addr", "", "Listen address (default from config)")
	cmd.Flag.BoolVar(&serveTray, "tray", false, "Show the system tray menu")
	cmd.Flag.BoolVar(&serveRecognize, "recognize", false, "Start camera recognition at startup")
	return cmd
}

func runServe(cmd *commander.Command, args []string) error {
	a, closeAll, err := openApp()
	if err != nil {
		return err
	}
	defer closeAll()

	cfg := a.Settings()
	if err := a.DiscoverPlugins(); err != nil {
		log.Printf("Plugin discovery failed: %v", err)
	}

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}

	staticDir := cfg.Server.StaticDir
	if staticDir == "" {
		staticDir = findWebDir(cfg.DataDir)
	}
	if staticDir != "" {
		log.Printf("Serving static files from: %s", staticDir)
	}

	srv := server.New(server.Config{StaticDir: staticDir, App: a})
	ctx, cancel := interruptContext()
	defer cancel()
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown: %v", err)
		}
	}()

	if serveRecognize {
		if err := a.StartRecognition(); err != nil {
			log.Printf("Recognition not started: %v", err)
		}
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s", addr)
		errc <- srv.ListenAndServe(addr)
	}()

	if !serveTray {
		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
			log.Println("Shutting down")
			return nil
		}
	}

	t := tray.New(tray.Handlers{
		Toggle: func(enabled bool) {
			if enabled && !a.Running() {
				if err := a.StartRecognition(); err != nil {
					log.Printf("Recognition not started: %v", err)
				}
			}
			a.SetEnabled(enabled)
		},
		Train: func() {
			if _, err := a.Train(); err != nil {
				log.Printf("Training failed: %v", err)
			}
		},
		Settings: func() { openBrowser("http://" + addr) },
	})
	t.SetEnabled(a.IsEnabled())
	if m := a.Engine().Model(); m != nil {
		t.SetModel(m.Version, len(m.Classes()))
	}
	a.OnSign(func(ev app.SignEvent) { t.AddSign(ev.Label, ev.Confidence) })
	a.OnTrain(func(mv *store.ModelVersion) { t.SetModel(mv.Version, mv.Labels) })

	go func() {
		select {
		case err := <-errc:
			if err != nil {
				log.Printf("Server failed: %v", err)
			}
		case <-ctx.Done():
		}
		t.Quit()
	}()

	// Blocks until Quit is chosen
	t.Run()
	return nil
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		fmt.Printf("Open %s in a browser\n", url)
	}
}
