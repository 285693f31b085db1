package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ayusman/signify/internal/capture"
	"github.com/ayusman/signify/internal/store"
)

// CollectOptions paces a collection session.
type CollectOptions struct {
	// Interval is the minimum time between two saved samples.
	Interval time.Duration
	// ProcessEveryN sends only every Nth captured frame to the detector.
	ProcessEveryN int
	// MaxSamples stops the session after that many samples; 0 runs until the
	// context is done.
	MaxSamples int
	// SessionID tags the saved samples. Empty leaves them untagged.
	SessionID string
	// OnSample, if set, is called after each saved sample with the running count.
	OnSample func(n int, s *store.Sample)
}

// DefaultCollectOptions returns the collection pacing from the configuration.
func (a *App) DefaultCollectOptions() CollectOptions {
	return CollectOptions{
		Interval:      time.Duration(a.settings.Collect.IntervalMs) * time.Millisecond,
		ProcessEveryN: a.settings.Collect.ProcessEveryN,
		MaxSamples:    a.settings.Collect.MaxSamples,
	}
}

// Collect captures labeled samples from the camera until ctx is done or
// MaxSamples have been saved, and returns how many were saved. Losing the
// camera ends the session with capture.ErrCameraLost; samples saved before
// that are kept. Frames
// without a hand are never saved. Only one collection runs at a time, and
// not while recognition holds the camera.
func (a *App) Collect(ctx context.Context, label string, opts CollectOptions) (int, error) {
	label = store.NormalizeLabel(label)
	if label == "" {
		return 0, fmt.Errorf("%w: empty label", store.ErrInvalidSample)
	}
	if a.store == nil {
		return 0, fmt.Errorf("collect: no sample store")
	}
	if opts.ProcessEveryN < 1 {
		opts.ProcessEveryN = 1
	}

	if !a.collectMu.TryLock() {
		return 0, ErrCollecting
	}
	defer a.collectMu.Unlock()

	if !a.camMu.TryLock() {
		return 0, ErrCameraBusy
	}
	defer a.camMu.Unlock()

	if err := a.camera.Open(); err != nil {
		return 0, err
	}
	defer func() {
		if err := a.camera.Close(); err != nil {
			log.Printf("Error closing camera: %v", err)
		}
	}()

	fps := a.settings.Camera.ActiveFPS
	a.camera.SetFPS(fps)
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	log.Printf("Collecting samples for %q", label)

	var (
		frames    int
		saved     int
		lastSaved time.Time
	)
	for {
		select {
		case <-ctx.Done():
			log.Printf("Collected %d samples for %q", saved, label)
			return saved, nil
		case <-ticker.C:
		}

		frame, err := a.camera.ReadFrame()
		if errors.Is(err, capture.ErrCameraLost) {
			log.Printf("Collected %d samples for %q before losing the camera", saved, label)
			return saved, err
		}
		if err != nil {
			log.Printf("Error reading frame: %v", err)
			continue
		}
		a.preview.publish(frame)

		frames++
		if frames%opts.ProcessEveryN != 0 {
			frame.Close()
			continue
		}

		hands, err := a.detector.Detect(frame)
		frame.Close()
		if err != nil {
			log.Printf("Error detecting hands: %v", err)
			continue
		}
		if len(hands) == 0 {
			continue
		}

		now := time.Now()
		if !lastSaved.IsZero() && now.Sub(lastSaved) < opts.Interval {
			continue
		}

		v, err := a.extractor.Extract(hands)
		if err != nil {
			log.Printf("Discarding landmarks: %v", err)
			continue
		}

		s, err := a.store.Samples().Append(label, v, opts.SessionID)
		if err != nil {
			return saved, fmt.Errorf("save sample: %w", err)
		}
		saved++
		lastSaved = now

		if opts.OnSample != nil {
			opts.OnSample(saved, s)
		}
		if opts.MaxSamples > 0 && saved >= opts.MaxSamples {
			log.Printf("Collected %d samples for %q", saved, label)
			return saved, nil
		}
	}
}
