package app

import (
	"log"
	"sync"

	"gocv.io/x/gocv"
)

// previewHub fans JPEG-encoded frames out to stream watchers. Slow watchers
// miss frames instead of stalling capture.
type previewHub struct {
	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

func (h *previewHub) watch() (<-chan []byte, func()) {
	ch := make(chan []byte, 1)

	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[chan []byte]struct{})
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
		})
	}
}

func (h *previewHub) watching() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs) > 0
}

// publish encodes frame once and offers it to every watcher.
func (h *previewHub) publish(frame *gocv.Mat) {
	if !h.watching() {
		return
	}

	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		log.Printf("Error encoding preview: %v", err)
		return
	}
	data := append([]byte(nil), buf.GetBytes()...)
	buf.Close()

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- data:
		default:
		}
	}
}
