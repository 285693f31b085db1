package app

import (
	"context"
	"errors"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/ayusman/signify/internal/capture"
	"github.com/ayusman/signify/internal/classifier"
	"github.com/ayusman/signify/internal/session"
	"github.com/ayusman/signify/internal/stabilizer"
)

// StartRecognition opens the camera and starts the live recognition
// pipeline. It requires a loaded model.
//
// Pipeline logic:
//  1. The capture goroutine reads frames at the idle or active rate chosen by
//     the motion gate and publishes active frames to a keep-latest mailbox.
//  2. The compute goroutine takes the newest frame, detects hands and pushes
//     them through the live session.
//  3. A STABLE label that differs from the last committed one is committed:
//     OnSign callbacks run and matching plugin hooks fire.
func (a *App) StartRecognition() error {
	if !a.engine.Ready() {
		return classifier.ErrNotReady
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Don't start if already running
	if a.cancel != nil {
		return nil
	}

	if !a.camMu.TryLock() {
		return ErrCameraBusy
	}

	live, err := session.New(uuid.NewString(), a.extractor, a.engine, a.settings.Stabilizer)
	if err != nil {
		a.camMu.Unlock()
		return err
	}

	if err := a.camera.Open(); err != nil {
		a.camMu.Unlock()
		return err
	}
	a.gate.Reset()
	a.camera.SetFPS(a.gate.FPS())

	live.Start()
	a.live = live
	a.committed = ""

	ctx, cancel := context.WithCancel(context.Background())
	mailbox := capture.NewMailbox()
	done := make(chan struct{})
	a.cancel = cancel
	a.done = done

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.captureLoop(ctx, mailbox)
	}()
	go func() {
		defer wg.Done()
		a.computeLoop(ctx, mailbox, live)
	}()
	go func() {
		wg.Wait()
		close(done)
		if ctx.Err() == nil {
			// The loops ended on their own: the camera is gone
			a.stop(done)
		}
	}()

	log.Println("Recognition pipeline started")
	return nil
}

// StopRecognition halts the pipeline, discards the live window and releases
// the camera. Frames in flight are dropped.
func (a *App) StopRecognition() {
	a.stop(nil)
}

// stop tears down the running pipeline. A non-nil only restricts it to the
// pipeline whose done channel is only.
func (a *App) stop(only chan struct{}) {
	a.mu.Lock()
	if a.cancel == nil || (only != nil && a.done != only) {
		a.mu.Unlock()
		return
	}
	a.cancel()
	done := a.done
	live := a.live
	a.cancel = nil
	a.done = nil
	a.live = nil
	a.mu.Unlock()

	<-done
	live.End()

	if err := a.camera.Close(); err != nil {
		log.Printf("Error closing camera: %v", err)
	}
	a.camMu.Unlock()

	log.Println("Recognition pipeline stopped")
}

// Running reports whether the recognition pipeline is running.
func (a *App) Running() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cancel != nil
}

// LiveStatus returns the status of the live recognition session.
func (a *App) LiveStatus() (session.Status, bool) {
	a.mu.RLock()
	live := a.live
	a.mu.RUnlock()
	if live == nil {
		return session.Status{}, false
	}
	return live.Status(), true
}

// captureLoop reads frames at the rate chosen by the motion gate. Frames seen
// while the gate is idle never reach the detector.
func (a *App) captureLoop(ctx context.Context, mailbox *capture.Mailbox) {
	defer mailbox.Close()

	ticker := time.NewTicker(time.Second / time.Duration(a.gate.FPS()))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !a.IsEnabled() {
			continue
		}

		frame, err := a.camera.ReadFrame()
		if errors.Is(err, capture.ErrCameraLost) {
			log.Printf("Stopping recognition: %v", err)
			return
		}
		if err != nil {
			log.Printf("Error reading frame: %v", err)
			continue
		}
		a.preview.publish(frame)

		active, changed := a.gate.Observe(frame)
		if changed {
			fps := a.gate.FPS()
			a.camera.SetFPS(fps)
			ticker.Reset(time.Second / time.Duration(fps))
		}

		if !active {
			frame.Close()
			continue
		}
		mailbox.Publish(frame)
	}
}

// computeLoop runs detection and recognition on the newest captured frame.
func (a *App) computeLoop(ctx context.Context, mailbox *capture.Mailbox, live *session.Session) {
	for {
		frame, err := mailbox.Next(ctx)
		if err != nil {
			stats := mailbox.Stats()
			log.Printf("Recognition loop exiting: %d frames consumed, %d dropped", stats.Consumed, stats.Dropped)
			return
		}

		if a.IsEnabled() {
			a.processFrame(live, frame.Mat)
		}
		frame.Close()
	}
}

// processFrame detects hands in one frame and feeds them to the session.
func (a *App) processFrame(live *session.Session, frame *gocv.Mat) {
	hands, detectErr := a.detector.Detect(frame)
	if detectErr != nil {
		log.Printf("Error detecting hands: %v", detectErr)
	}

	st, out, err := live.PushFrameStatus(hands, detectErr)
	if err != nil {
		if !errors.Is(err, session.ErrSessionEnded) {
			log.Printf("Skipping frame: %v", err)
		}
		return
	}
	if out == nil {
		return
	}

	var version string
	if p := st.Prediction; p != nil {
		version = p.ModelVersion
	}
	a.commit(*out, version)
}

// commit publishes a stable label unless it repeats the last committed one.
func (a *App) commit(out stabilizer.Output, modelVersion string) {
	a.mu.Lock()
	if out.Label == a.committed {
		a.mu.Unlock()
		return
	}

	ev := SignEvent{
		Label:        out.Label,
		Confidence:   float64(out.Agreement) / float64(out.Size),
		Agreement:    out.Agreement,
		Window:       out.Size,
		ModelVersion: modelVersion,
		At:           time.Now(),
	}
	a.committed = out.Label
	a.lastSign = &ev
	callbacks := slices.Clone(a.callbacks)
	a.mu.Unlock()

	log.Printf("Sign committed: %s (%d/%d)", ev.Label, ev.Agreement, ev.Window)

	for _, fn := range callbacks {
		fn(ev)
	}
	a.hooks.Fire(ev.Label, ev.Confidence)
}
