// Package capture reads frames from a camera, gates work on motion and hands
// the newest frame to the recognition loop.
package capture

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// Default camera settings
const (
	DefaultFPS    = 5
	DefaultWidth  = 640
	DefaultHeight = 480
)

// MaxReadFailures is how many consecutive failed reads mark the camera lost.
const MaxReadFailures = 30

var (
	// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")

	// ErrFrameRead is returned for a single failed or empty read.
	ErrFrameRead = errors.New("failed to read frame")

	// ErrCameraLost is returned once reads keep failing, e.g. after the device
	// was unplugged or a recorded clip ended.
	ErrCameraLost = errors.New("camera lost")
)

// Camera defines the interface for camera capture implementations.
type Camera interface {
	Open() error
	Close() error
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// Options configures a camera device.
type Options struct {
	Device int
	// Source is a video file or stream URL read instead of Device, used to
	// collect samples from recorded signing.
	Source string
	Width  int
	Height int
	FPS    int
	// Mirror flips frames horizontally so the preview matches the signer's view.
	Mirror bool
}

// DefaultOptions returns the settings used when no configuration is given.
func DefaultOptions() Options {
	return Options{
		Width:  DefaultWidth,
		Height: DefaultHeight,
		FPS:    DefaultFPS,
		Mirror: true,
	}
}

func (o Options) String() string {
	if o.Source != "" {
		return o.Source
	}
	return fmt.Sprintf("device %d", o.Device)
}

// cameraImpl manages video capture from a camera device using GoCV.
type cameraImpl struct {
	opts     Options
	capture  *gocv.VideoCapture
	mu       sync.Mutex
	fps      int
	failures int
}

// NewCamera creates a Camera for the configured device. Zero sizes and
// rates fall back to the defaults.
func NewCamera(opts Options) Camera {
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.FPS <= 0 {
		opts.FPS = DefaultFPS
	}
	return &cameraImpl{
		opts: opts,
		fps:  opts.FPS,
	}
}

// Open opens the device or source. Opening an open camera is a no-op.
func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture != nil {
		return nil
	}

	var (
		capture *gocv.VideoCapture
		err     error
	)
	if c.opts.Source != "" {
		capture, err = gocv.OpenVideoCapture(c.opts.Source)
	} else {
		capture, err = gocv.OpenVideoCapture(c.opts.Device)
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", c.opts, err)
	}

	// Recorded clips keep their own size and rate
	if c.opts.Source == "" {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(c.opts.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(c.opts.Height))
		capture.Set(gocv.VideoCaptureFPS, float64(c.fps))
	}

	c.capture = capture
	c.failures = 0
	return nil
}

// Close closes the camera and releases resources.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil
	}
	err := c.capture.Close()
	c.capture = nil
	return err
}

// ReadFrame reads a single frame, mirrored if configured. The caller closes
// the returned Mat. After MaxReadFailures consecutive failures every read
// returns ErrCameraLost until the camera is reopened.
func (c *cameraImpl) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capture == nil {
		return nil, ErrCameraNotOpen
	}
	if c.failures >= MaxReadFailures {
		return nil, fmt.Errorf("%w: %s", ErrCameraLost, c.opts)
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		c.failures++
		if c.failures >= MaxReadFailures {
			return nil, fmt.Errorf("%w: %s: %d reads failed", ErrCameraLost, c.opts, c.failures)
		}
		return nil, ErrFrameRead
	}
	c.failures = 0

	if c.opts.Mirror {
		gocv.Flip(mat, &mat, 1)
	}
	return &mat, nil
}

// SetFPS sets the frames per second for capture.
// Values less than or equal to 0 are ignored.
func (c *cameraImpl) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.fps = fps
	if c.capture != nil && c.opts.Source == "" {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

// FPS returns the current frames per second setting.
func (c *cameraImpl) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fps
}

// IsOpen reports whether the camera is open.
func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capture != nil
}
