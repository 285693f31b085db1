package capture

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockCamera plays back in-memory frames through the Camera interface. A
// non-looping MockCamera behaves like a recorded clip: once the frames run
// out every read fails with ErrCameraLost.
type MockCamera struct {
	mu     sync.Mutex
	frames []*gocv.Mat
	loop   bool
	next   int
	reads  int
	fps    int
	open   bool
	fail   error
}

// NewMockCamera returns a closed MockCamera over frames. The frames stay
// owned by the caller; ReadFrame hands out clones.
func NewMockCamera(frames []*gocv.Mat, loop bool) *MockCamera {
	return &MockCamera{frames: frames, loop: loop, fps: DefaultOptions().FPS}
}

// SyntheticFrames returns n frames alternating between black and white, so
// every pair of consecutive frames registers as motion. The caller closes
// them.
func SyntheticFrames(n, width, height int) []*gocv.Mat {
	frames := make([]*gocv.Mat, 0, n)
	for i := 0; i < n; i++ {
		mat := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
		if i%2 == 1 {
			mat.SetTo(gocv.NewScalar(255, 255, 255, 0))
		}
		frames = append(frames, &mat)
	}
	return frames
}

// Open rewinds playback.
func (c *MockCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = true
	c.next = 0
	return nil
}

func (c *MockCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	return nil
}

func (c *MockCamera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case !c.open:
		return nil, ErrCameraNotOpen
	case c.fail != nil:
		return nil, c.fail
	case len(c.frames) == 0:
		return nil, ErrFrameRead
	}

	if c.next == len(c.frames) {
		if !c.loop {
			return nil, ErrCameraLost
		}
		c.next = 0
	}

	frame := c.frames[c.next].Clone()
	c.next++
	c.reads++
	return &frame, nil
}

// Fail makes every following read return err until Fail(nil) is called.
func (c *MockCamera) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = err
}

func (c *MockCamera) SetFPS(fps int) {
	if fps <= 0 {
		return
	}
	c.mu.Lock()
	c.fps = fps
	c.mu.Unlock()
}

func (c *MockCamera) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fps
}

func (c *MockCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Reads returns the number of frames handed out so far.
func (c *MockCamera) Reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reads
}
