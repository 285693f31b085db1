package server

import (
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"time"
)

// streamBoundary separates JPEG parts in the MJPEG response.
const streamBoundary = "frame"

// PreviewSource publishes JPEG previews of the frames the pipeline captures.
// The returned func stops the subscription.
type PreviewSource interface {
	WatchPreview() (<-chan []byte, func())
}

// StreamHandler serves the capture preview as multipart/x-mixed-replace.
// Frames only flow while recognition or collection owns the camera.
type StreamHandler struct {
	source    PreviewSource
	keepalive time.Duration
}

func NewStreamHandler(source PreviewSource) *StreamHandler {
	return &StreamHandler{source: source, keepalive: 5 * time.Second}
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	frames, stop := h.source.WatchPreview()
	defer stop()

	mw := multipart.NewWriter(w)
	if err := mw.SetBoundary(streamBoundary); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+streamBoundary)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}
	flush()

	idle := time.NewTicker(h.keepalive)
	defer idle.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-idle.C:
			flush()
		case jpeg := <-frames:
			part, err := mw.CreatePart(textproto.MIMEHeader{
				"Content-Type":   {"image/jpeg"},
				"Content-Length": {strconv.Itoa(len(jpeg))},
			})
			if err != nil {
				return
			}
			if _, err := part.Write(jpeg); err != nil {
				return
			}
			flush()
		}
	}
}
