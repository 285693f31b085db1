// Package api provides HTTP API handlers for the signify sign recognition system.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ayusman/signify/internal/classifier"
	"github.com/ayusman/signify/internal/features"
	"github.com/ayusman/signify/internal/session"
	"github.com/ayusman/signify/internal/store"
)

// maxBodySize bounds request bodies. A frame is a few kilobytes of JSON.
const maxBodySize = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeErr maps err to its status code and writes it.
func writeErr(w http.ResponseWriter, err error) {
	writeError(w, StatusFor(err), err.Error())
}

// StatusFor maps the error taxonomy onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, features.ErrMalformed), errors.Is(err, store.ErrInvalidSample):
		return http.StatusBadRequest
	case errors.Is(err, classifier.ErrNotReady):
		return http.StatusServiceUnavailable
	case errors.Is(err, classifier.ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrUnknownSession), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSessionEnded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON request body into v. Decoding failures are malformed input.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", features.ErrMalformed, err)
	}
	return nil
}

// frameInput is one frame given either as raw landmarks (hands x 21 x 3) or
// as an extracted feature vector.
type frameInput struct {
	Hands  [][][]float64 `json:"hands,omitempty"`
	Vector []float64     `json:"vector,omitempty"`
}

func (in *frameInput) check() error {
	if in.Hands != nil && in.Vector != nil {
		return fmt.Errorf("%w: give either hands or vector, not both", features.ErrMalformed)
	}
	return nil
}

// vector returns the feature vector for the frame.
func (in *frameInput) vector(e *features.Extractor) (features.Vector, error) {
	if err := in.check(); err != nil {
		return nil, err
	}
	if in.Vector != nil {
		if err := features.Validate(in.Vector); err != nil {
			return nil, err
		}
		return features.Vector(in.Vector), nil
	}
	return e.ExtractRaw(in.Hands)
}
