package capture

import (
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"
)

func TestNewCamera(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantFPS int
		desc    string
	}{
		{"zero options use defaults", Options{}, DefaultFPS, "device 0"},
		{"device 1 at 15 fps", Options{Device: 1, FPS: 15}, 15, "device 1"},
		{"negative fps falls back", Options{Device: 2, FPS: -1}, DefaultFPS, "device 2"},
		{"recorded clip", Options{Source: "clips/hola.avi"}, DefaultFPS, "clips/hola.avi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam := NewCamera(tt.opts)
			if got := cam.FPS(); got != tt.wantFPS {
				t.Errorf("FPS() = %d, want %d", got, tt.wantFPS)
			}
			if cam.IsOpen() {
				t.Error("camera should not be open initially")
			}
			if got := tt.opts.String(); got != tt.desc {
				t.Errorf("String() = %q, want %q", got, tt.desc)
			}
		})
	}
}

func TestCamera_SetFPS(t *testing.T) {
	cam := NewCamera(DefaultOptions())

	for _, fps := range []int{15, 0, -3} {
		cam.SetFPS(fps)
	}
	if got := cam.FPS(); got != 15 {
		t.Errorf("FPS() = %d, want 15 (non-positive rates ignored)", got)
	}
}

func TestCamera_NotOpened(t *testing.T) {
	cam := NewCamera(DefaultOptions())

	if _, err := cam.ReadFrame(); !errors.Is(err, ErrCameraNotOpen) {
		t.Errorf("ReadFrame() error = %v, want ErrCameraNotOpen", err)
	}
	if err := cam.Close(); err != nil {
		t.Errorf("Close() on a closed camera = %v", err)
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	if !opts.Mirror {
		t.Error("frames should be mirrored by default")
	}
	if opts.Width != DefaultWidth || opts.Height != DefaultHeight {
		t.Errorf("size = %dx%d, want %dx%d", opts.Width, opts.Height, DefaultWidth, DefaultHeight)
	}
}

// writeClip records n solid frames to an MJPEG AVI file.
func writeClip(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.avi")

	w, err := gocv.VideoWriterFile(path, "MJPG", 10, 64, 48, true)
	if err != nil || !w.IsOpened() {
		t.Skipf("video writer unavailable: %v", err)
	}
	defer w.Close()

	for i := 0; i < n; i++ {
		mat := gocv.NewMatWithSize(48, 64, gocv.MatTypeCV8UC3)
		gocv.Rectangle(&mat, image.Rect(0, 0, 64, 48), color.RGBA{R: uint8(i * 40), A: 255}, -1)
		if err := w.Write(mat); err != nil {
			mat.Close()
			t.Fatalf("Write() error = %v", err)
		}
		mat.Close()
	}
	return path
}

func TestCamera_RecordedClip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	cam := NewCamera(Options{Source: writeClip(t, 3), Mirror: true})
	if err := cam.Open(); err != nil {
		t.Skipf("cannot open clip: %v", err)
	}
	defer cam.Close()

	frames := 0
	var err error
	for i := 0; i < 3+MaxReadFailures; i++ {
		var mat *gocv.Mat
		mat, err = cam.ReadFrame()
		if err != nil {
			if !errors.Is(err, ErrFrameRead) {
				break
			}
			continue
		}
		if mat.Cols() != 64 || mat.Rows() != 48 {
			t.Errorf("frame %d is %dx%d", frames, mat.Cols(), mat.Rows())
		}
		mat.Close()
		frames++
	}

	if frames != 3 {
		t.Errorf("read %d frames, want 3", frames)
	}
	if !errors.Is(err, ErrCameraLost) {
		t.Errorf("after the clip ended error = %v, want ErrCameraLost", err)
	}

	// Reopening rewinds and clears the failure count
	cam.Close()
	if err := cam.Open(); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	mat, err := cam.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() after reopen error = %v", err)
	}
	mat.Close()
}

func TestCamera_OpenClose_Device(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	cam := NewCamera(DefaultOptions())
	if err := cam.Open(); err != nil {
		t.Skipf("camera not available: %v", err)
	}
	if !cam.IsOpen() {
		t.Error("IsOpen() should be true after Open()")
	}

	mat, err := cam.ReadFrame()
	if err != nil {
		t.Errorf("ReadFrame() error = %v", err)
	} else {
		mat.Close()
	}

	if err := cam.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if cam.IsOpen() {
		t.Error("IsOpen() should be false after Close()")
	}
}
