package api

import (
	"net/http"
	"time"

	"github.com/ayusman/signify/internal/classifier"
	"github.com/ayusman/signify/internal/store"
)

// Trainer trains and activates a new model version.
type Trainer interface {
	Train() (*store.ModelVersion, error)
}

// TrainHandler handles POST /api/train.
type TrainHandler struct {
	trainer Trainer
}

// NewTrainHandler creates a new TrainHandler.
func NewTrainHandler(t Trainer) *TrainHandler {
	return &TrainHandler{trainer: t}
}

// ServeHTTP trains on every stored sample and returns the new model version.
func (h *TrainHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	mv, err := h.trainer.Train()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, mv)
}

// ModelHandler handles GET /api/model.
type ModelHandler struct {
	engine *classifier.Engine
	store  *store.Store
}

// NewModelHandler creates a new ModelHandler. The store may be nil, in which
// case no version history is reported.
func NewModelHandler(e *classifier.Engine, s *store.Store) *ModelHandler {
	return &ModelHandler{engine: e, store: s}
}

type modelResponse struct {
	Ready     bool                  `json:"ready"`
	Version   string                `json:"version,omitempty"`
	K         int                   `json:"k,omitempty"`
	Dim       int                   `json:"dim,omitempty"`
	Vectors   int                   `json:"vectors,omitempty"`
	Classes   []string              `json:"classes,omitempty"`
	CreatedAt *time.Time            `json:"created_at,omitempty"`
	History   []*store.ModelVersion `json:"history"`
}

// ServeHTTP reports the active model and the trained version history.
func (h *ModelHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := modelResponse{History: []*store.ModelVersion{}}

	if m := h.engine.Model(); m != nil {
		created := m.CreatedAt
		response.Ready = true
		response.Version = m.Version
		response.K = m.K
		response.Dim = m.Dim
		response.Vectors = len(m.Vectors)
		response.Classes = m.Classes()
		response.CreatedAt = &created
	}

	if h.store != nil {
		history, err := h.store.Models().List()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list model versions")
			return
		}
		if history != nil {
			response.History = history
		}
	}

	writeJSON(w, http.StatusOK, response)
}
