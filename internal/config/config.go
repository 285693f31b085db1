// Package config loads the YAML configuration for signify.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/signify/internal/features"
	"github.com/ayusman/signify/internal/stabilizer"
)

// Config represents the complete signify configuration
type Config struct {
	DataDir    string            `yaml:"data_dir"`
	Camera     CameraConfig      `yaml:"camera"`
	Detector   DetectorConfig    `yaml:"detector"`
	Features   FeaturesConfig    `yaml:"features"`
	Classifier ClassifierConfig  `yaml:"classifier"`
	Stabilizer stabilizer.Config `yaml:"stabilizer"`
	Collect    CollectConfig     `yaml:"collect"`
	Server     ServerConfig      `yaml:"server"`
	Plugins    PluginsConfig     `yaml:"plugins"`
}

// CameraConfig contains camera and motion gating settings
type CameraConfig struct {
	Device          int     `yaml:"device"`
	Source          string  `yaml:"source"` // video file or URL read instead of the device
	Width           int     `yaml:"width"`
	Height          int     `yaml:"height"`
	IdleFPS         int     `yaml:"idle_fps"`
	ActiveFPS       int     `yaml:"active_fps"`
	IdleTimeoutMs   int     `yaml:"idle_timeout_ms"`
	MotionThreshold float64 `yaml:"motion_threshold"` // percent of pixels that must change
	Mirror          bool    `yaml:"mirror"`
}

// DetectorConfig contains hand detector settings
type DetectorConfig struct {
	Script                 string  `yaml:"script"` // hands_service.py, searched for when empty
	Python                 string  `yaml:"python"`
	MaxHands               int     `yaml:"max_hands"`
	ModelComplexity        int     `yaml:"model_complexity"`
	MinDetectionConfidence float64 `yaml:"min_detection_confidence"`
	MinTrackingConfidence  float64 `yaml:"min_tracking_confidence"`
	IdleShutdownMs         int     `yaml:"idle_shutdown_ms"` // stop the service after this long without frames
	ReplyTimeoutMs         int     `yaml:"reply_timeout_ms"` // restart the service when a frame goes unanswered this long
}

// FeaturesConfig contains feature extraction settings
type FeaturesConfig struct {
	SlotPolicy string `yaml:"slot_policy"` // detection, handedness
}

// ClassifierConfig contains classifier settings
type ClassifierConfig struct {
	K        int    `yaml:"k"`
	ModelDir string `yaml:"model_dir"`
}

// CollectConfig contains sample collection pacing
type CollectConfig struct {
	IntervalMs    int `yaml:"interval_ms"`     // minimum time between saved samples
	ProcessEveryN int `yaml:"process_every_n"` // only every Nth frame is processed
	MaxSamples    int `yaml:"max_samples"`     // 0 means until stopped
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Addr                 string `yaml:"addr"`
	StaticDir            string `yaml:"static_dir"`
	SessionIdleTimeoutMs int    `yaml:"session_idle_timeout_ms"` // end API sessions unused this long, 0 never
	MaxSessions          int    `yaml:"max_sessions"`            // 0 means unlimited
}

// PluginsConfig contains sign hook settings
type PluginsConfig struct {
	Dir       string       `yaml:"dir"`
	TimeoutMs int          `yaml:"timeout_ms"`
	Hooks     []HookConfig `yaml:"hooks"`
}

// HookConfig binds a committed sign to a plugin action. An empty Sign matches
// every sign.
type HookConfig struct {
	Sign          string         `yaml:"sign"`
	Plugin        string         `yaml:"plugin"`
	Action        string         `yaml:"action"`
	MinConfidence float64        `yaml:"min_confidence"`
	Config        map[string]any `yaml:"config,omitempty"`
	Params        map[string]any `yaml:"params,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir: "~/.signify",
		Camera: CameraConfig{
			Width:           640,
			Height:          480,
			IdleFPS:         5,
			ActiveFPS:       15,
			IdleTimeoutMs:   2000,
			MotionThreshold: 1.0,
			Mirror:          true,
		},
		Detector: DetectorConfig{
			MaxHands:               2,
			ModelComplexity:        0,
			MinDetectionConfidence: 0.5,
			MinTrackingConfidence:  0.5,
			IdleShutdownMs:         30000,
			ReplyTimeoutMs:         10000,
		},
		Features: FeaturesConfig{
			SlotPolicy: string(features.SlotDetectionOrder),
		},
		Classifier: ClassifierConfig{
			K: 3,
		},
		Stabilizer: stabilizer.DefaultConfig(),
		Collect: CollectConfig{
			IntervalMs:    200,
			ProcessEveryN: 2,
		},
		Server: ServerConfig{
			Addr:                 "127.0.0.1:8080",
			SessionIdleTimeoutMs: 300000,
			MaxSessions:          64,
		},
		Plugins: PluginsConfig{
			TimeoutMs: 5000,
		},
	}
}

// DefaultPath returns ~/.signify/config.yaml.
func DefaultPath() string {
	return expandHome("~/.signify/config.yaml")
}

// Load reads and parses a YAML configuration file. Keys missing from the file
// keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path, or returns the defaults if the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		return cfg, cfg.Validate()
	}
	return cfg, err
}

// Validate checks the configuration and fills in derived values.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must be set")
	}
	c.DataDir = expandHome(c.DataDir)

	if c.Camera.Device < 0 {
		return fmt.Errorf("camera.device must be >= 0, got %d", c.Camera.Device)
	}
	if c.Camera.IdleFPS <= 0 || c.Camera.ActiveFPS <= 0 {
		return fmt.Errorf("camera fps must be positive (idle %d, active %d)", c.Camera.IdleFPS, c.Camera.ActiveFPS)
	}
	if c.Camera.MotionThreshold < 0 || c.Camera.MotionThreshold > 100 {
		return fmt.Errorf("camera.motion_threshold must be between 0 and 100, got %f", c.Camera.MotionThreshold)
	}

	if c.Detector.MaxHands < 1 || c.Detector.MaxHands > features.HandSlots {
		return fmt.Errorf("detector.max_hands must be between 1 and %d, got %d", features.HandSlots, c.Detector.MaxHands)
	}
	if c.Detector.IdleShutdownMs < 0 {
		return fmt.Errorf("detector.idle_shutdown_ms must not be negative, got %d", c.Detector.IdleShutdownMs)
	}
	if c.Detector.ReplyTimeoutMs < 0 {
		return fmt.Errorf("detector.reply_timeout_ms must not be negative, got %d", c.Detector.ReplyTimeoutMs)
	}

	if _, err := features.ParseSlotPolicy(c.Features.SlotPolicy); err != nil {
		return fmt.Errorf("features.slot_policy: %w", err)
	}

	if c.Classifier.K < 1 {
		return fmt.Errorf("classifier.k must be at least 1, got %d", c.Classifier.K)
	}
	if c.Classifier.ModelDir == "" {
		c.Classifier.ModelDir = filepath.Join(c.DataDir, "models")
	}
	c.Classifier.ModelDir = expandHome(c.Classifier.ModelDir)

	if err := c.Stabilizer.Validate(); err != nil {
		return err
	}

	if c.Collect.IntervalMs < 0 {
		return fmt.Errorf("collect.interval_ms must be >= 0, got %d", c.Collect.IntervalMs)
	}
	if c.Collect.ProcessEveryN < 1 {
		return fmt.Errorf("collect.process_every_n must be at least 1, got %d", c.Collect.ProcessEveryN)
	}
	if c.Collect.MaxSamples < 0 {
		return fmt.Errorf("collect.max_samples must be >= 0, got %d", c.Collect.MaxSamples)
	}

	if c.Server.SessionIdleTimeoutMs < 0 {
		return fmt.Errorf("server.session_idle_timeout_ms must be >= 0, got %d", c.Server.SessionIdleTimeoutMs)
	}
	if c.Server.MaxSessions < 0 {
		return fmt.Errorf("server.max_sessions must be >= 0, got %d", c.Server.MaxSessions)
	}

	if c.Plugins.Dir == "" {
		c.Plugins.Dir = filepath.Join(c.DataDir, "plugins")
	}
	c.Plugins.Dir = expandHome(c.Plugins.Dir)
	if c.Plugins.TimeoutMs <= 0 {
		return fmt.Errorf("plugins.timeout_ms must be positive, got %d", c.Plugins.TimeoutMs)
	}
	for i, h := range c.Plugins.Hooks {
		if h.Plugin == "" || h.Action == "" {
			return fmt.Errorf("plugins.hooks[%d]: plugin and action are required", i)
		}
	}

	return nil
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "signify.db")
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
