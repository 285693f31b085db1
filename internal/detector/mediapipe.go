package detector

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// DefaultIdleTimeout is how long the landmark service may sit unused before
// it is stopped. The next Detect starts it again.
const DefaultIdleTimeout = 30 * time.Second

// DefaultReplyTimeout bounds one frame's round trip, including the service's
// startup on the first frame.
const DefaultReplyTimeout = 10 * time.Second

// MediaPipeDetector runs hands_service.py as a child process and exchanges
// frames with it over stdin and stdout. The process is started on the first
// Detect, stopped after IdleTimeout without frames and restarted after any
// transport failure. A frame left unanswered for ReplyTimeout kills the
// process.
type MediaPipeDetector struct {
	config Config
	script string
	python string

	// command builds the service process; replaced in tests.
	command func() *exec.Cmd

	mu     sync.Mutex
	svc    *handService
	idle   *time.Timer
	starts int
}

// NewMediaPipeDetector locates the service script and interpreter. It fails
// with ErrDetectorUnavailable when no script can be found.
func NewMediaPipeDetector(config Config) (*MediaPipeDetector, error) {
	d := &MediaPipeDetector{
		config: config,
		script: config.Script,
		python: config.Python,
	}
	if d.script == "" {
		d.script = searchNearExecutable("scripts", "hands_service.py")
	}
	if d.script == "" {
		return nil, fmt.Errorf("hands_service.py not found: %w", ErrDetectorUnavailable)
	}
	if d.python == "" {
		d.python = searchNearExecutable("venv", "bin", "python")
	}
	if d.python == "" {
		d.python = "python3"
	}
	if d.config.IdleTimeout <= 0 {
		d.config.IdleTimeout = DefaultIdleTimeout
	}
	if d.config.ReplyTimeout <= 0 {
		d.config.ReplyTimeout = DefaultReplyTimeout
	}
	d.command = d.serviceCommand
	return d, nil
}

func (d *MediaPipeDetector) serviceCommand() *exec.Cmd {
	cmd := exec.Command(d.python, d.script,
		"--max-hands", strconv.Itoa(d.config.MaxHands),
		"--model-complexity", strconv.Itoa(d.config.ModelComplexity),
		"--min-detection-confidence", strconv.FormatFloat(d.config.MinConfidence, 'f', -1, 64),
		"--min-tracking-confidence", strconv.FormatFloat(d.config.MinTrackingConf, 'f', -1, 64),
	)
	cmd.Stderr = os.Stderr
	return cmd
}

// Detect encodes frame as JPEG and returns the landmarks the service finds.
func (d *MediaPipeDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	if frame == nil || frame.Empty() {
		return nil, errors.New("detect: empty frame")
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	return d.detectEncoded(buf.GetBytes())
}

func (d *MediaPipeDetector) detectEncoded(jpeg []byte) ([]HandLandmarks, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.svc == nil {
		svc, err := startService(d.command())
		if err != nil {
			return nil, err
		}
		d.svc = svc
		d.starts++
		log.Printf("Started hands service (%s)", d.script)
	}

	hands, err := d.svc.roundTrip(jpeg, d.config.ReplyTimeout)
	if err != nil && !errors.Is(err, ErrMalformedResponse) {
		// The stream is out of step; start over on the next frame
		d.stopLocked()
		return nil, err
	}

	if d.idle == nil {
		d.idle = time.AfterFunc(d.config.IdleTimeout, d.idleStop)
	} else {
		d.idle.Reset(d.config.IdleTimeout)
	}
	return hands, err
}

func (d *MediaPipeDetector) idleStop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.svc != nil {
		log.Println("Stopping idle hands service")
	}
	d.stopLocked()
}

func (d *MediaPipeDetector) stopLocked() error {
	if d.idle != nil {
		d.idle.Stop()
		d.idle = nil
	}
	if d.svc == nil {
		return nil
	}
	err := d.svc.stop()
	d.svc = nil
	return err
}

// Running reports whether the service process is up.
func (d *MediaPipeDetector) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.svc != nil
}

// Close stops the service process.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopLocked()
}

// searchNearExecutable returns the absolute path of the first existing
// rel path under the working directory, its parent, the executable's
// directory or ~/.signify.
func searchNearExecutable(rel ...string) string {
	roots := []string{".", ".."}
	if exe, err := os.Executable(); err == nil {
		roots = append(roots, filepath.Dir(exe))
	}
	if home, err := os.UserHomeDir(); err == nil {
		roots = append(roots, filepath.Join(home, ".signify"))
	}

	for _, root := range roots {
		p := filepath.Join(append([]string{root}, rel...)...)
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			return abs
		}
		return p
	}
	return ""
}
