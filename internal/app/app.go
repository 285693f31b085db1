// Package app provides the main application logic for signify: live
// recognition, sample collection and training over one camera and detector.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/ayusman/signify/internal/capture"
	"github.com/ayusman/signify/internal/classifier"
	"github.com/ayusman/signify/internal/config"
	"github.com/ayusman/signify/internal/detector"
	"github.com/ayusman/signify/internal/features"
	"github.com/ayusman/signify/internal/plugin"
	"github.com/ayusman/signify/internal/session"
	"github.com/ayusman/signify/internal/store"
)

// ErrCameraBusy is returned when recognition and collection both want the camera.
var ErrCameraBusy = errors.New("camera is in use")

// ErrCollecting is returned when a second collection session is started.
var ErrCollecting = errors.New("a collection session is already running")

// Config holds the collaborators of an App. Camera and Detector may be left
// nil to use the devices described by Settings.
type Config struct {
	Store    *store.Store
	Settings *config.Config
	Camera   capture.Camera
	Detector detector.Detector
}

// SignEvent is a committed sign.
type SignEvent struct {
	Label        string    `json:"label"`
	Confidence   float64   `json:"confidence"`
	Agreement    int       `json:"agreement"`
	Window       int       `json:"window"`
	ModelVersion string    `json:"model_version"`
	At           time.Time `json:"at"`
}

// App is the main application that orchestrates capture, recognition,
// collection and training.
type App struct {
	settings  *config.Config
	store     *store.Store
	camera    capture.Camera
	motion    *capture.MotionDetector
	gate      *capture.Gate
	detector  detector.Detector
	extractor *features.Extractor
	trainer   *classifier.Trainer
	models    *classifier.ModelDir
	engine    *classifier.Engine
	sessions  *session.Registry
	pluginMgr *plugin.Manager
	hooks     *plugin.Dispatcher
	preview   previewHub

	// camMu is held by whichever pipeline owns the camera.
	camMu      sync.Mutex
	collectMu  sync.Mutex
	trainMu    sync.Mutex
	mu         sync.RWMutex
	enabled    bool
	cancel     context.CancelFunc
	done       chan struct{}
	live       *session.Session
	committed  string
	lastSign   *SignEvent
	callbacks  []func(SignEvent)
	trainCalls []func(*store.ModelVersion)
}

// New creates a new App. A nil Settings uses config.Default.
func New(cfg Config) (*App, error) {
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
		if err := settings.Validate(); err != nil {
			return nil, err
		}
	}

	policy, err := features.ParseSlotPolicy(settings.Features.SlotPolicy)
	if err != nil {
		return nil, err
	}

	extractor := features.NewExtractor(policy)
	engine := classifier.NewEngine()
	sessions, err := session.NewRegistry(extractor, engine, settings.Stabilizer)
	if err != nil {
		return nil, fmt.Errorf("stabilizer: %w", err)
	}
	sessions.SetLimits(session.Limits{
		IdleTimeout: time.Duration(settings.Server.SessionIdleTimeoutMs) * time.Millisecond,
		MaxSessions: settings.Server.MaxSessions,
	})

	hooks, err := buildHooks(settings.Plugins.Hooks)
	if err != nil {
		return nil, err
	}

	motion := capture.NewMotionDetector(settings.Camera.MotionThreshold)
	pluginMgr := plugin.NewManager(settings.Plugins.Dir)

	a := &App{
		settings:  settings,
		store:     cfg.Store,
		camera:    cfg.Camera,
		motion:    motion,
		gate:      capture.NewGate(motion, settings.Camera.IdleFPS, settings.Camera.ActiveFPS, time.Duration(settings.Camera.IdleTimeoutMs)*time.Millisecond),
		detector:  cfg.Detector,
		extractor: extractor,
		trainer:   classifier.NewTrainer(settings.Classifier.K),
		models:    classifier.NewModelDir(settings.Classifier.ModelDir),
		engine:    engine,
		sessions:  sessions,
		pluginMgr: pluginMgr,
		hooks:     plugin.NewDispatcher(pluginMgr, plugin.NewExecutor(settings.Plugins.TimeoutMs), hooks),
		enabled:   true,
	}

	if a.camera == nil {
		a.camera = capture.NewCamera(capture.Options{
			Device: settings.Camera.Device,
			Source: settings.Camera.Source,
			Width:  settings.Camera.Width,
			Height: settings.Camera.Height,
			FPS:    settings.Camera.IdleFPS,
			Mirror: settings.Camera.Mirror,
		})
	}

	// Try MediaPipe first, fall back to mock detector
	if a.detector == nil {
		dc := detector.Config{
			MaxHands:        settings.Detector.MaxHands,
			ModelComplexity: settings.Detector.ModelComplexity,
			MinConfidence:   settings.Detector.MinDetectionConfidence,
			MinTrackingConf: settings.Detector.MinTrackingConfidence,
			Script:          settings.Detector.Script,
			Python:          settings.Detector.Python,
			IdleTimeout:     time.Duration(settings.Detector.IdleShutdownMs) * time.Millisecond,
			ReplyTimeout:    time.Duration(settings.Detector.ReplyTimeoutMs) * time.Millisecond,
		}
		if mp, err := detector.NewMediaPipeDetector(dc); err == nil {
			a.detector = mp
			log.Println("Using MediaPipe hand detection")
		} else {
			log.Printf("MediaPipe not available (%v), using mock detector", err)
			a.detector = detector.NewMockDetector()
		}
	}

	return a, nil
}

// buildHooks converts configured hooks to plugin hooks.
func buildHooks(configs []config.HookConfig) ([]plugin.Hook, error) {
	hooks := make([]plugin.Hook, 0, len(configs))
	for i, hc := range configs {
		h := plugin.Hook{
			Sign:          hc.Sign,
			Plugin:        hc.Plugin,
			Action:        hc.Action,
			MinConfidence: hc.MinConfidence,
		}
		if hc.Config != nil {
			data, err := json.Marshal(hc.Config)
			if err != nil {
				return nil, fmt.Errorf("hook %d config: %w", i, err)
			}
			h.Config = data
		}
		if hc.Params != nil {
			data, err := json.Marshal(hc.Params)
			if err != nil {
				return nil, fmt.Errorf("hook %d params: %w", i, err)
			}
			h.Params = data
		}
		hooks = append(hooks, h)
	}
	return hooks, nil
}

// SetEnabled pauses or resumes recognition without releasing the camera.
// Pausing discards the live window.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.enabled && !enabled && a.live != nil {
		a.live.Start()
		a.committed = ""
	}
	a.enabled = enabled
}

// IsEnabled returns whether recognition is currently enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// DiscoverPlugins scans the plugin directory and reports configured hooks
// that cannot run.
func (a *App) DiscoverPlugins() error {
	if err := a.pluginMgr.Discover(); err != nil {
		return err
	}
	for _, err := range a.pluginMgr.CheckHooks(a.hooks.Hooks()) {
		log.Printf("Hook disabled: %v", err)
	}
	return nil
}

// LoadModel loads the current model version. A missing model leaves the
// engine not ready and is not an error.
func (a *App) LoadModel() error {
	m, err := a.models.LoadCurrent()
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("No trained model in %s, recognition disabled until training", a.models.Dir)
		return nil
	}
	if err != nil {
		return err
	}
	if err := a.engine.Swap(m); err != nil {
		return err
	}
	log.Printf("Loaded model %s (%d vectors, %d signs)", m.Version, len(m.Vectors), len(m.Classes()))
	return nil
}

// Train fits a model on every stored sample, publishes it as a new version
// and makes it active. On failure the previously loaded model stays active.
func (a *App) Train() (*store.ModelVersion, error) {
	if a.store == nil {
		return nil, fmt.Errorf("train: no sample store")
	}

	a.trainMu.Lock()
	defer a.trainMu.Unlock()

	rows, err := a.store.Samples().All()
	if err != nil {
		return nil, fmt.Errorf("read samples: %w", err)
	}

	samples := make([]classifier.Sample, len(rows))
	for i, r := range rows {
		samples[i] = classifier.Sample{Label: r.Label, Vector: r.Vector}
	}

	m, err := a.trainer.Fit(samples)
	if err != nil {
		return nil, err
	}

	path, err := a.models.Publish(m)
	if err != nil {
		return nil, err
	}

	mv := &store.ModelVersion{
		Version:   m.Version,
		Path:      path,
		K:         m.K,
		Samples:   len(m.Vectors),
		Labels:    len(m.Classes()),
		CreatedAt: m.CreatedAt,
	}
	if err := a.store.Models().Record(mv); err != nil {
		return nil, fmt.Errorf("record model version: %w", err)
	}

	if err := a.engine.Swap(m); err != nil {
		return nil, err
	}

	log.Printf("Trained model %s on %d samples of %d signs", mv.Version, mv.Samples, mv.Labels)

	a.mu.RLock()
	callbacks := slices.Clone(a.trainCalls)
	a.mu.RUnlock()
	for _, fn := range callbacks {
		fn(mv)
	}
	return mv, nil
}

// OnSign registers a callback for committed signs. Callbacks run on the
// recognition goroutine and must not block.
func (a *App) OnSign(fn func(SignEvent)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.callbacks = append(a.callbacks, fn)
}

// OnTrain registers a callback run after every successful training.
func (a *App) OnTrain(fn func(*store.ModelVersion)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.trainCalls = append(a.trainCalls, fn)
}

// LastSign returns the most recently committed sign.
func (a *App) LastSign() (SignEvent, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.lastSign == nil {
		return SignEvent{}, false
	}
	return *a.lastSign, true
}

// WatchPreview subscribes to JPEG previews of captured frames. Previews are
// only encoded while at least one watcher is subscribed.
func (a *App) WatchPreview() (<-chan []byte, func()) {
	return a.preview.watch()
}

// Close stops recognition and releases every resource held by the App.
func (a *App) Close() error {
	a.StopRecognition()
	a.hooks.Close()
	a.sessions.EndAll()
	a.motion.Close()

	if err := a.detector.Close(); err != nil {
		return fmt.Errorf("close detector: %w", err)
	}
	return nil
}

// Settings returns the configuration the App was built with.
func (a *App) Settings() *config.Config {
	return a.settings
}

// Store returns the sample store, which may be nil.
func (a *App) Store() *store.Store {
	return a.store
}

// Engine returns the inference engine.
func (a *App) Engine() *classifier.Engine {
	return a.engine
}

// Extractor returns the feature extractor.
func (a *App) Extractor() *features.Extractor {
	return a.extractor
}

// Sessions returns the registry of externally driven sessions.
func (a *App) Sessions() *session.Registry {
	return a.sessions
}

// Models returns the versioned model directory.
func (a *App) Models() *classifier.ModelDir {
	return a.models
}

// PluginManager returns the plugin manager.
func (a *App) PluginManager() *plugin.Manager {
	return a.pluginMgr
}

// Hooks returns the sign hook dispatcher.
func (a *App) Hooks() *plugin.Dispatcher {
	return a.hooks
}

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera {
	return a.camera
}

// Detector returns the hand detector.
func (a *App) Detector() detector.Detector {
	return a.detector
}
