package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/gonuts/commander"
	"github.com/unixpickle/rip"

	"github.com/ayusman/signify/internal/app"
	"github.com/ayusman/signify/internal/config"
	"github.com/ayusman/signify/internal/store"
)

var configPath string

// addConfigFlag registers the -config flag shared by every command.
func addConfigFlag(cmd *commander.Command) {
	cmd.Flag.StringVar(&configPath, "config", config.DefaultPath(), "Configuration file (YAML)")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

// openApp loads the configuration, opens the store and builds the App with
// the current model loaded. The returned func releases both.
func openApp() (*app.App, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	st, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	a, err := app.New(app.Config{Store: st, Settings: cfg})
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	if err := a.LoadModel(); err != nil {
		log.Printf("Failed to load model: %v", err)
	}

	closeAll := func() {
		if err := a.Close(); err != nil {
			log.Printf("Error closing app: %v", err)
		}
		st.Close()
	}
	return a, closeAll, nil
}

// interruptContext returns a context that is cancelled on ctrl-c.
func interruptContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	r := rip.NewRIP()
	go func() {
		select {
		case <-r.Chan():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and <data dir>/web.
// Returns the first existing directory or empty string if none found.
func findWebDir(dataDir string) string {
	for _, p := range []string{"web", "../web", "../../web", filepath.Join(dataDir, "web")} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}
