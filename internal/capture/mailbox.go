package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// ErrMailboxClosed is returned by Next once the mailbox is closed.
var ErrMailboxClosed = errors.New("mailbox closed")

// Frame is a captured image handed from the capture loop to the recognition loop.
type Frame struct {
	Mat        *gocv.Mat
	Seq        uint64
	CapturedAt time.Time
}

// Close releases the frame's image.
func (f *Frame) Close() {
	if f != nil && f.Mat != nil {
		f.Mat.Close()
		f.Mat = nil
	}
}

// MailboxStats reports mailbox counters.
type MailboxStats struct {
	Published uint64 `json:"published"`
	Consumed  uint64 `json:"consumed"`
	Dropped   uint64 `json:"dropped"`
}

// Mailbox is a single-slot handoff that always holds the newest frame.
// Publishing over a frame nobody has taken yet closes the old frame and
// counts it as dropped, so a slow consumer always sees fresh frames and the
// producer never blocks.
type Mailbox struct {
	mu     sync.Mutex
	cond   *sync.Cond
	frame  *Frame
	seq    uint64
	stats  MailboxStats
	closed bool
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	m := &Mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Publish hands mat to the consumer. The mailbox takes ownership of mat.
// After Close, published frames are closed immediately.
func (m *Mailbox) Publish(mat *gocv.Mat) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		if mat != nil {
			mat.Close()
		}
		return
	}

	if m.frame != nil {
		m.frame.Close()
		m.stats.Dropped++
	}

	m.seq++
	m.stats.Published++
	m.frame = &Frame{Mat: mat, Seq: m.seq, CapturedAt: time.Now()}
	m.cond.Signal()
}

// Next blocks until a frame is available, the mailbox is closed or ctx is
// done. The caller owns the returned frame and must Close it.
func (m *Mailbox) Next(ctx context.Context) (*Frame, error) {
	stop := context.AfterFunc(ctx, func() {
		m.mu.Lock()
		m.cond.Broadcast()
		m.mu.Unlock()
	})
	defer stop()

	m.mu.Lock()
	defer m.mu.Unlock()

	for m.frame == nil && !m.closed && ctx.Err() == nil {
		m.cond.Wait()
	}

	if m.frame != nil && !m.closed {
		f := m.frame
		m.frame = nil
		m.stats.Consumed++
		return f, nil
	}
	if m.closed {
		return nil, ErrMailboxClosed
	}
	return nil, ctx.Err()
}

// Close wakes any waiting consumer and releases an unconsumed frame.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	if m.frame != nil {
		m.frame.Close()
		m.frame = nil
	}
	m.cond.Broadcast()
}

// Stats returns the mailbox counters.
func (m *Mailbox) Stats() MailboxStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}
