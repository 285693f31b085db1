package detector

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// maxResponseSize bounds a single msgpack response from the service.
const maxResponseSize = 1 << 20

// ErrServiceTimeout is returned when the service does not answer a frame in
// time. The process is killed and restarted on the next frame.
var ErrServiceTimeout = errors.New("hands service did not reply")

// ErrMalformedResponse is returned when the service replies with hands whose
// shape is not 21 points of 3 coordinates.
var ErrMalformedResponse = errors.New("malformed landmark response")

// handService is one running landmark process.
//
// Both directions are length-prefixed with 4 bytes big-endian. A request body
// is a JPEG frame and a response body is the msgpack document
// {"hands": [{"points": [[x,y,z], ...], "handedness": "Left", "score": 0.9}]}.
type handService struct {
	cmd *exec.Cmd
	in  io.WriteCloser
	out *bufio.Reader
}

func startService(cmd *exec.Cmd) (*handService, error) {
	in, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start hands service: %w", err)
	}
	return &handService{cmd: cmd, in: in, out: bufio.NewReader(out)}, nil
}

// roundTrip sends one encoded frame and waits up to timeout for its
// landmarks. On timeout the process is killed, which unblocks the pending
// write or read.
func (s *handService) roundTrip(jpeg []byte, timeout time.Duration) ([]HandLandmarks, error) {
	type result struct {
		hands []HandLandmarks
		err   error
	}
	done := make(chan result, 1)
	go func() {
		if err := writeFrame(s.in, jpeg); err != nil {
			done <- result{err: err}
			return
		}
		hands, err := readResponse(s.out)
		done <- result{hands: hands, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.hands, r.err
	case <-timer.C:
		if err := s.cmd.Process.Kill(); err != nil {
			return nil, fmt.Errorf("%w after %v (kill: %v)", ErrServiceTimeout, timeout, err)
		}
		return nil, fmt.Errorf("%w after %v", ErrServiceTimeout, timeout)
	}
}

// stop closes the request pipe, which ends the service loop, and reaps the
// process.
func (s *handService) stop() error {
	s.in.Close()
	return s.cmd.Wait()
}

func writeFrame(w io.Writer, data []byte) error {
	msg := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(msg, uint32(len(data)))
	copy(msg[4:], data)
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func readMessage(r io.Reader) ([]byte, error) {
	var length [4]byte
	if _, err := io.ReadFull(r, length[:]); err != nil {
		return nil, fmt.Errorf("read response length: %w", err)
	}
	n := binary.BigEndian.Uint32(length[:])
	if n > maxResponseSize {
		return nil, fmt.Errorf("response of %d bytes exceeds limit", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

// readResponse reads one response and converts its hands.
func readResponse(r io.Reader) ([]HandLandmarks, error) {
	body, err := readMessage(r)
	if err != nil {
		return nil, err
	}

	var response wireResponse
	if err := msgpack.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	hands := make([]HandLandmarks, 0, len(response.Hands))
	for i, h := range response.Hands {
		points, err := ParsePoints(h.Points)
		if err != nil {
			return nil, fmt.Errorf("%w: hand %d: %v", ErrMalformedResponse, i, err)
		}
		hands = append(hands, HandLandmarks{Points: points, Handedness: h.Handedness, Score: h.Score})
	}
	return hands, nil
}

type wireResponse struct {
	Hands []wireHand `msgpack:"hands"`
}

type wireHand struct {
	Points     [][]float64 `msgpack:"points"`
	Handedness string      `msgpack:"handedness"`
	Score      float64     `msgpack:"score"`
}
