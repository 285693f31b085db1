package api

import (
	"net/http"

	"github.com/ayusman/signify/internal/classifier"
	"github.com/ayusman/signify/internal/features"
)

// PredictHandler classifies a single frame without stabilization.
type PredictHandler struct {
	engine    *classifier.Engine
	extractor *features.Extractor
}

// NewPredictHandler creates a new PredictHandler.
func NewPredictHandler(e *classifier.Engine, x *features.Extractor) *PredictHandler {
	return &PredictHandler{engine: e, extractor: x}
}

type predictResponse struct {
	Hands int `json:"hands"`
	*classifier.Prediction
}

// ServeHTTP handles POST /api/predict. A frame without a hand is answered
// with hands=0 and no label.
func (h *PredictHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req frameInput
	if err := decode(w, r, &req); err != nil {
		writeErr(w, err)
		return
	}

	v, err := req.vector(h.extractor)
	if err != nil {
		writeErr(w, err)
		return
	}

	if !h.engine.Ready() {
		writeErr(w, classifier.ErrNotReady)
		return
	}

	hands := features.HandCount(v)
	if hands == 0 {
		writeJSON(w, http.StatusOK, predictResponse{})
		return
	}

	p, err := h.engine.Predict(v)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, predictResponse{Hands: hands, Prediction: p})
}
