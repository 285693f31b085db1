package plugin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

var (
	// ErrTimeout is returned when a plugin does not finish within the executor timeout.
	ErrTimeout = errors.New("plugin execution timeout")

	// ErrPluginFailed is returned when a plugin exits non-zero or answers with
	// something other than a Response.
	ErrPluginFailed = errors.New("plugin failed")
)

// DefaultTimeoutMs bounds a plugin run when no timeout is configured.
const DefaultTimeoutMs = 5000

// Executor runs one plugin request at a time per call, bounded by a timeout.
type Executor struct {
	timeoutMs int
}

// NewExecutor creates an Executor. A non-positive timeout uses DefaultTimeoutMs.
func NewExecutor(timeoutMs int) *Executor {
	if timeoutMs <= 0 {
		timeoutMs = DefaultTimeoutMs
	}
	return &Executor{timeoutMs: timeoutMs}
}

// Timeout returns the per-execution time limit.
func (e *Executor) Timeout() time.Duration {
	return time.Duration(e.timeoutMs) * time.Millisecond
}

// Execute writes req to the plugin's stdin as JSON and parses its stdout as
// a Response. The run is bounded by both ctx and the executor timeout.
func (e *Executor) Execute(ctx context.Context, plugin *Plugin, req *Request) (*Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.Timeout())
	defer cancel()

	cmd := exec.CommandContext(ctx, plugin.Executable)
	cmd.Dir = plugin.Path
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("plugin %s: %w after %dms", plugin.Manifest.Name, ErrTimeout, e.timeoutMs)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if runErr != nil {
		msg := strings.TrimSpace(stderr.String())
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return nil, fmt.Errorf("plugin %s: %w: exit status %d: %s", plugin.Manifest.Name, ErrPluginFailed, exitErr.ExitCode(), msg)
		}
		return nil, fmt.Errorf("plugin %s: %w", plugin.Manifest.Name, runErr)
	}

	var response Response
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &response); err != nil {
		return nil, fmt.Errorf("plugin %s: %w: bad response %q: %v", plugin.Manifest.Name, ErrPluginFailed, firstLine(stdout.String()), err)
	}
	return &response, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
