package api

import (
	"fmt"
	"net/http"

	"github.com/ayusman/signify/internal/features"
	"github.com/ayusman/signify/internal/store"
)

// SamplesHandler handles HTTP requests for collected training samples.
type SamplesHandler struct {
	store     *store.Store
	extractor *features.Extractor
}

// NewSamplesHandler creates a new SamplesHandler with the given store.
func NewSamplesHandler(s *store.Store, e *features.Extractor) *SamplesHandler {
	return &SamplesHandler{store: s, extractor: e}
}

// ServeHTTP implements the http.Handler interface.
// Expected path: /api/samples
func (h *SamplesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	case http.MethodDelete:
		h.delete(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Request types

type createSampleRequest struct {
	Label     string `json:"label"`
	SessionID string `json:"session_id,omitempty"`
	frameInput
}

// Response types

type sampleResponse struct {
	ID        string `json:"id"`
	Seq       int64  `json:"seq"`
	Label     string `json:"label"`
	Hands     int    `json:"hands"`
	SessionID string `json:"session_id,omitempty"`
	CreatedAt string `json:"created_at"`
}

type listSamplesResponse struct {
	Total  int                `json:"total"`
	Labels []store.LabelCount `json:"labels"`
}

type deleteSamplesResponse struct {
	Deleted int64 `json:"deleted"`
}

// list handles GET /api/samples and returns per-label counts.
func (h *SamplesHandler) list(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.Samples().Counts()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count samples")
		return
	}

	response := listSamplesResponse{Labels: counts}
	if response.Labels == nil {
		response.Labels = []store.LabelCount{}
	}
	for _, c := range counts {
		response.Total += c.Count
	}

	writeJSON(w, http.StatusOK, response)
}

// create handles POST /api/samples. The body carries a label and either raw
// landmarks or a feature vector; samples without a hand are rejected.
func (h *SamplesHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createSampleRequest
	if err := decode(w, r, &req); err != nil {
		writeErr(w, err)
		return
	}

	v, err := req.vector(h.extractor)
	if err != nil {
		writeErr(w, err)
		return
	}
	hands := features.HandCount(v)
	if hands == 0 {
		writeErr(w, fmt.Errorf("%w: sample has no hand", features.ErrMalformed))
		return
	}

	s, err := h.store.Samples().Append(req.Label, v, req.SessionID)
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, sampleResponse{
		ID:        s.ID,
		Seq:       s.Seq,
		Label:     s.Label,
		Hands:     hands,
		SessionID: s.SessionID,
		CreatedAt: s.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	})
}

// delete handles DELETE /api/samples[?label=x].
func (h *SamplesHandler) delete(w http.ResponseWriter, r *http.Request) {
	var (
		n   int64
		err error
	)
	if r.URL.Query().Has("label") {
		n, err = h.store.Samples().DeleteLabel(r.URL.Query().Get("label"))
	} else {
		n, err = h.store.Samples().DeleteAll()
	}
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, deleteSamplesResponse{Deleted: n})
}
