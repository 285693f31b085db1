package api

import (
	"net/http"
	"strings"

	"github.com/ayusman/signify/internal/features"
	"github.com/ayusman/signify/internal/session"
	"github.com/ayusman/signify/internal/stabilizer"
)

// SessionsHandler handles HTTP requests for externally driven recognition
// sessions. Clients run their own landmark detection and push one frame at a
// time.
type SessionsHandler struct {
	registry *session.Registry
}

// NewSessionsHandler creates a new SessionsHandler over registry.
func NewSessionsHandler(registry *session.Registry) *SessionsHandler {
	return &SessionsHandler{registry: registry}
}

// ServeHTTP routes session requests.
// Expected paths: /api/sessions, /api/sessions/{id} and /api/sessions/{id}/frames
func (h *SessionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions")
	path = strings.Trim(path, "/")

	if path == "" {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.create(w, r)
		return
	}

	parts := strings.Split(path, "/")
	id := parts[0]

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			h.get(w, r, id)
		case http.MethodDelete:
			h.end(w, r, id)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case len(parts) == 2 && parts[1] == "frames":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.pushFrame(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

type createSessionResponse struct {
	ID string `json:"id"`
}

type frameResponse struct {
	State     stabilizer.State `json:"state"`
	Label     string           `json:"label,omitempty"`
	Leader    string           `json:"leader,omitempty"`
	Agreement int              `json:"agreement"`
	Size      int              `json:"size"`
	Hands     int              `json:"hands"`
	Frame     int              `json:"frame"` // 1-based position of this frame in the session
}

// create handles POST /api/sessions.
func (h *SessionsHandler) create(w http.ResponseWriter, r *http.Request) {
	s := h.registry.Start()
	writeJSON(w, http.StatusCreated, createSessionResponse{ID: s.ID()})
}

// get handles GET /api/sessions/{id}.
func (h *SessionsHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	s, err := h.registry.Get(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Status())
}

// end handles DELETE /api/sessions/{id}.
func (h *SessionsHandler) end(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.registry.End(id); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pushFrame handles POST /api/sessions/{id}/frames and answers with the
// window state after the frame. Only a STABLE state carries a label.
func (h *SessionsHandler) pushFrame(w http.ResponseWriter, r *http.Request, id string) {
	s, err := h.registry.Get(id)
	if err != nil {
		writeErr(w, err)
		return
	}

	var req frameInput
	if err := decode(w, r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := req.check(); err != nil {
		writeErr(w, err)
		return
	}

	var (
		hands int
		st    session.Status
	)
	if req.Vector != nil {
		st, _, err = s.PushVectorStatus(req.Vector)
		hands = features.HandCount(req.Vector)
	} else {
		parsed, perr := features.ParseHands(req.Hands)
		if perr != nil {
			writeErr(w, perr)
			return
		}
		st, _, err = s.PushFrameStatus(parsed, nil)
		hands = len(parsed)
	}
	if err != nil {
		writeErr(w, err)
		return
	}

	out := st.Output
	writeJSON(w, http.StatusOK, frameResponse{
		State:     out.State,
		Label:     out.Label,
		Leader:    out.Leader,
		Agreement: out.Agreement,
		Size:      out.Size,
		Hands:     hands,
		Frame:     st.Frames,
	})
}
