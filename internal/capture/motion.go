package capture

import (
	"image"
	"log"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

const (
	// motionWidth is the width frames are shrunk to before differencing.
	motionWidth = 160
	// motionBlur is the Gaussian kernel size applied to the shrunk frame.
	motionBlur = 7
	// pixelDelta is the grey-level change that counts a pixel as moved.
	pixelDelta = 25
)

// MotionDetector compares each frame with the previous one and reports the
// share of pixels that changed. Frames are shrunk to motionWidth, converted
// to grey and blurred first so sensor noise does not register as motion.
type MotionDetector struct {
	mu        sync.Mutex
	threshold float64 // percent of pixels

	prev  gocv.Mat
	small gocv.Mat
	gray  gocv.Mat
	diff  gocv.Mat
}

// NewMotionDetector returns a detector that reports motion once more than
// threshold percent of the pixels change between frames.
func NewMotionDetector(threshold float64) *MotionDetector {
	return &MotionDetector{
		threshold: threshold,
		prev:      gocv.NewMat(),
		small:     gocv.NewMat(),
		gray:      gocv.NewMat(),
		diff:      gocv.NewMat(),
	}
}

// Detect reports whether frame differs from the previous frame, and by what
// percentage. The first frame after construction or Reset only sets the
// baseline.
func (m *MotionDetector) Detect(frame *gocv.Mat) (bool, float64) {
	if frame == nil || frame.Empty() {
		return false, 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.prepare(*frame)

	if m.prev.Empty() || m.prev.Rows() != m.gray.Rows() || m.prev.Cols() != m.gray.Cols() {
		m.gray.CopyTo(&m.prev)
		return false, 0
	}

	gocv.AbsDiff(m.gray, m.prev, &m.diff)
	gocv.Threshold(m.diff, &m.diff, pixelDelta, 255, gocv.ThresholdBinary)
	changed := float64(gocv.CountNonZero(m.diff)) * 100 / float64(m.diff.Rows()*m.diff.Cols())

	m.gray.CopyTo(&m.prev)
	return changed > m.threshold, changed
}

// prepare leaves the shrunk, grey, blurred version of frame in m.gray.
func (m *MotionDetector) prepare(frame gocv.Mat) {
	src := frame
	if frame.Cols() > motionWidth {
		h := frame.Rows() * motionWidth / frame.Cols()
		if h < 1 {
			h = 1
		}
		gocv.Resize(frame, &m.small, image.Pt(motionWidth, h), 0, 0, gocv.InterpolationArea)
		src = m.small
	}

	if src.Channels() > 1 {
		gocv.CvtColor(src, &m.gray, gocv.ColorBGRToGray)
	} else {
		src.CopyTo(&m.gray)
	}
	gocv.GaussianBlur(m.gray, &m.gray, image.Pt(motionBlur, motionBlur), 0, 0, gocv.BorderDefault)
}

// Reset drops the baseline frame.
func (m *MotionDetector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prev.Close()
	m.prev = gocv.NewMat()
}

// Close releases the detector's buffers. A closed detector can still be used
// and starts again from a fresh baseline.
func (m *MotionDetector) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mat := range []*gocv.Mat{&m.prev, &m.small, &m.gray, &m.diff} {
		mat.Close()
		*mat = gocv.NewMat()
	}
}

// Gate switches the capture rate between idle and active based on motion.
// Frames are only worth sending to the hand detector while the gate is active.
type Gate struct {
	motion      *MotionDetector
	idleFPS     int
	activeFPS   int
	idleTimeout time.Duration

	mu         sync.Mutex
	active     bool
	lastMotion time.Time
}

// NewGate creates a Gate. It stays active for idleTimeout after the last
// detected motion.
func NewGate(motion *MotionDetector, idleFPS, activeFPS int, idleTimeout time.Duration) *Gate {
	return &Gate{
		motion:      motion,
		idleFPS:     idleFPS,
		activeFPS:   activeFPS,
		idleTimeout: idleTimeout,
	}
}

// Observe runs motion detection on frame and updates the gate. It returns
// whether the gate is active and whether the frame rate must change.
func (g *Gate) Observe(frame *gocv.Mat) (active bool, changed bool) {
	moved, _ := g.motion.Detect(frame)
	return g.update(moved, time.Now())
}

func (g *Gate) update(moved bool, now time.Time) (bool, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if moved {
		g.lastMotion = now
		if !g.active {
			g.active = true
			log.Println("Motion detected, switching to active mode")
			return true, true
		}
		return true, false
	}

	if g.active && now.Sub(g.lastMotion) > g.idleTimeout {
		g.active = false
		log.Println("No motion, switching to idle mode")
		return false, true
	}
	return g.active, false
}

// Active reports whether motion was seen within the idle timeout.
func (g *Gate) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// FPS returns the capture rate for the current mode.
func (g *Gate) FPS() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active {
		return g.activeFPS
	}
	return g.idleFPS
}

// Reset returns the gate to idle and clears the motion baseline.
func (g *Gate) Reset() {
	g.mu.Lock()
	g.active = false
	g.lastMotion = time.Time{}
	g.mu.Unlock()

	g.motion.Reset()
}
