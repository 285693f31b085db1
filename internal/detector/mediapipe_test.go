package detector

import (
	"bufio"
	"errors"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// TestHelperHandsService is not a real test. It is re-executed as the hands
// service by fakeService. It answers a frame starting with '0' with no hands,
// dies on a frame starting with 'X', goes silent on a frame starting with 'S'
// and answers anything else with an open palm.
func TestHelperHandsService(t *testing.T) {
	if os.Getenv("SIGNIFY_FAKE_HANDS_SERVICE") != "1" {
		t.Skip("helper process")
	}

	in := bufio.NewReader(os.Stdin)
	for {
		frame, err := readMessage(in)
		if err != nil {
			os.Exit(0)
		}
		if len(frame) > 0 && frame[0] == 'X' {
			os.Exit(3)
		}
		if len(frame) > 0 && frame[0] == 'S' {
			time.Sleep(time.Hour)
		}

		palm := OpenPalmLandmarks()
		points := make([][]float64, NumLandmarks)
		for i, p := range palm.Points {
			points[i] = []float64{p.X, p.Y, p.Z}
		}
		hands := []wireHand{}
		if len(frame) == 0 || frame[0] != '0' {
			hands = append(hands, wireHand{Points: points, Handedness: palm.Handedness, Score: palm.Score})
		}
		body, _ := msgpack.Marshal(wireResponse{Hands: hands})
		if err := writeFrame(os.Stdout, body); err != nil {
			os.Exit(1)
		}
	}
}

// fakeService returns a detector whose service is this test binary running
// TestHelperHandsService.
func fakeService(t *testing.T, idle time.Duration) *MediaPipeDetector {
	t.Helper()
	d, err := NewMediaPipeDetector(Config{Script: os.Args[0], IdleTimeout: idle})
	if err != nil {
		t.Fatalf("NewMediaPipeDetector() error = %v", err)
	}
	d.command = func() *exec.Cmd {
		cmd := exec.Command(os.Args[0], "-test.run=^TestHelperHandsService$")
		cmd.Env = append(os.Environ(), "SIGNIFY_FAKE_HANDS_SERVICE=1")
		return cmd
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestMediaPipeDetector_RoundTrip(t *testing.T) {
	d := fakeService(t, time.Minute)

	hands, err := d.detectEncoded([]byte("jpeg"))
	if err != nil {
		t.Fatalf("detect error = %v", err)
	}
	if len(hands) != 1 || hands[0].Points != OpenPalmLandmarks().Points {
		t.Fatalf("hands = %+v, want one open palm", hands)
	}

	hands, err = d.detectEncoded([]byte("0"))
	if err != nil || len(hands) != 0 {
		t.Errorf("empty frame = %v, %v", hands, err)
	}
	if d.starts != 1 {
		t.Errorf("service started %d times, want 1", d.starts)
	}
}

func TestMediaPipeDetector_RestartsAfterCrash(t *testing.T) {
	d := fakeService(t, time.Minute)

	if _, err := d.detectEncoded([]byte("X")); err == nil {
		t.Fatal("expected an error when the service dies")
	}
	if d.Running() {
		t.Error("dead service still marked running")
	}

	if _, err := d.detectEncoded([]byte("jpeg")); err != nil {
		t.Fatalf("detect after crash error = %v", err)
	}
	if d.starts != 2 {
		t.Errorf("service started %d times, want 2", d.starts)
	}
}

func TestMediaPipeDetector_ReplyTimeout(t *testing.T) {
	d := fakeService(t, time.Minute)
	d.config.ReplyTimeout = time.Second

	start := time.Now()
	_, err := d.detectEncoded([]byte("S"))
	if !errors.Is(err, ErrServiceTimeout) {
		t.Fatalf("expected ErrServiceTimeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("silent service held Detect for %v", elapsed)
	}
	if d.Running() {
		t.Error("silent service still marked running")
	}

	d.config.ReplyTimeout = DefaultReplyTimeout
	hands, err := d.detectEncoded([]byte("jpeg"))
	if err != nil {
		t.Fatalf("detect after timeout error = %v", err)
	}
	if len(hands) != 1 {
		t.Errorf("hands = %+v, want one open palm", hands)
	}
	if d.starts != 2 {
		t.Errorf("service started %d times, want 2", d.starts)
	}
}

func TestMediaPipeDetector_IdleShutdown(t *testing.T) {
	d := fakeService(t, 50*time.Millisecond)

	if _, err := d.detectEncoded([]byte("jpeg")); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for d.Running() {
		if time.Now().After(deadline) {
			t.Fatal("service still running after idle timeout")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNewMediaPipeDetector(t *testing.T) {
	t.Run("missing script", func(t *testing.T) {
		wd, wdErr := os.Getwd()
		if wdErr != nil {
			t.Fatal(wdErr)
		}
		if err := os.Chdir(t.TempDir()); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { os.Chdir(wd) })
		t.Setenv("HOME", t.TempDir())
		_, err := NewMediaPipeDetector(Config{})
		// The test binary's directory never holds scripts/hands_service.py
		if !errors.Is(err, ErrDetectorUnavailable) {
			t.Errorf("error = %v, want %v", err, ErrDetectorUnavailable)
		}
	})

	t.Run("defaults", func(t *testing.T) {
		d, err := NewMediaPipeDetector(Config{Script: "hands_service.py", Python: "py"})
		if err != nil {
			t.Fatal(err)
		}
		if d.config.IdleTimeout != DefaultIdleTimeout {
			t.Errorf("IdleTimeout = %v", d.config.IdleTimeout)
		}
		if d.config.ReplyTimeout != DefaultReplyTimeout {
			t.Errorf("ReplyTimeout = %v", d.config.ReplyTimeout)
		}
		args := d.serviceCommand().Args
		if args[0] != "py" || args[1] != "hands_service.py" || args[3] != "0" {
			t.Errorf("args = %v", args)
		}
	})

	t.Run("empty frame", func(t *testing.T) {
		d, _ := NewMediaPipeDetector(Config{Script: "hands_service.py"})
		if _, err := d.Detect(nil); err == nil {
			t.Error("expected an error for a nil frame")
		}
		if d.Running() {
			t.Error("service started for an empty frame")
		}
	})
}
