// Package server exposes the signify pipeline over HTTP: the REST API under
// /api, the committed-sign websocket, the MJPEG preview and the web UI.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/ayusman/signify/internal/app"
	"github.com/ayusman/signify/internal/server/api"
)

// Config holds the server configuration. Without an App only the health
// check and static files are served.
type Config struct {
	StaticDir string
	App       *app.App
}

// Server routes HTTP requests to the pipeline.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	signs  *SignsHandler

	mu   sync.Mutex
	http *http.Server
}

func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	if a := s.config.App; a != nil {
		s.mux.Handle("/api/predict", api.NewPredictHandler(a.Engine(), a.Extractor()))
		s.mux.Handle("/api/model", api.NewModelHandler(a.Engine(), a.Store()))

		sessions := api.NewSessionsHandler(a.Sessions())
		s.mux.Handle("/api/sessions", sessions)
		s.mux.Handle("/api/sessions/", sessions)

		if a.Store() != nil {
			s.mux.Handle("/api/samples", api.NewSamplesHandler(a.Store(), a.Extractor()))
			s.mux.Handle("/api/train", api.NewTrainHandler(a))
		}

		s.mux.HandleFunc("GET /api/recognition", s.recognitionStatus)
		s.mux.HandleFunc("POST /api/recognition", s.startRecognition)
		s.mux.HandleFunc("DELETE /api/recognition", s.stopRecognition)
		s.mux.Handle("GET /api/stream", NewStreamHandler(a))

		s.signs = NewSignsHandler()
		a.OnSign(func(ev app.SignEvent) { s.signs.Broadcast(ev) })
		s.mux.Handle("/api/signs", s.signs)
	}

	if s.config.StaticDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).Round(time.Second).String(),
	}
	if a := s.config.App; a != nil {
		health["model_ready"] = a.Engine().Ready()
		health["recognizing"] = a.Running()
		health["sessions"] = a.Sessions().Len()
	}
	writeJSON(w, health)
}

type recognitionResponse struct {
	Running  bool           `json:"running"`
	Enabled  bool           `json:"enabled"`
	LastSign *app.SignEvent `json:"last_sign,omitempty"`
}

func (s *Server) recognitionStatus(w http.ResponseWriter, r *http.Request) {
	a := s.config.App
	resp := recognitionResponse{Running: a.Running(), Enabled: a.IsEnabled()}
	if ev, ok := a.LastSign(); ok {
		resp.LastSign = &ev
	}
	writeJSON(w, resp)
}

func (s *Server) startRecognition(w http.ResponseWriter, r *http.Request) {
	if err := s.config.App.StartRecognition(); err != nil {
		status := api.StatusFor(err)
		if errors.Is(err, app.ErrCameraBusy) {
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		return
	}
	s.recognitionStatus(w, r)
}

func (s *Server) stopRecognition(w http.ResponseWriter, r *http.Request) {
	s.config.App.StopRecognition()
	s.recognitionStatus(w, r)
}

// ListenAndServe serves on addr until Shutdown. It returns nil after a
// Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
// Websocket and stream clients are disconnected first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Close()
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Close disconnects websocket clients.
func (s *Server) Close() {
	if s.signs != nil {
		s.signs.Close()
	}
}
