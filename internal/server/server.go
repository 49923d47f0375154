// Package server exposes the run guard over HTTP: start, cancel, state and
// last result as JSON endpoints, plus a server-sent event stream of run
// notifications.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"imgpress/internal/events"
	"imgpress/internal/guard"
	"imgpress/internal/processor"
)

// eventBuffer is the per-client backlog kept by the event stream.
const eventBuffer = 256

type Server struct {
	guard *guard.Guard
	bus   *events.Bus
	log   *zap.Logger

	// runCtx bounds runs started over HTTP; request contexts end with the
	// response and must not cancel the batch.
	runCtx context.Context
}

// New wires a server. ctx should live as long as the process.
func New(ctx context.Context, g *guard.Guard, bus *events.Bus, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{guard: g, bus: bus, log: log, runCtx: ctx}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/runs", s.startRun())
		r.Post("/runs/cancel", s.cancelRun())
		r.Get("/runs/state", s.runState())
		r.Get("/runs/last", s.lastResult())
		r.Get("/events", s.eventStream())
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.renderError(w, http.StatusNotFound, "no such endpoint")
	})
	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("control surface listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type startResponse struct {
	RunID string `json:"run_id"`
}

type stateResponse struct {
	Running bool `json:"running"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) startRun() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := processor.DefaultRunConfig()
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			s.renderError(w, http.StatusBadRequest, "invalid run request: "+err.Error())
			return
		}
		if err := cfg.Validate(); err != nil {
			s.renderError(w, http.StatusBadRequest, err.Error())
			return
		}

		h, err := s.guard.Start(s.runCtx, cfg)
		switch {
		case errors.Is(err, guard.ErrAlreadyRunning):
			s.renderError(w, http.StatusConflict, err.Error())
			return
		case errors.Is(err, guard.ErrClosed):
			s.renderError(w, http.StatusServiceUnavailable, err.Error())
			return
		case err != nil:
			s.log.Error("start run", zap.Error(err))
			s.renderError(w, http.StatusInternalServerError, "")
			return
		}

		writeJSON(w, http.StatusAccepted, startResponse{RunID: h.ID.String()})
	}
}

func (s *Server) cancelRun() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.guard.Cancel()
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) runState() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, stateResponse{Running: s.guard.Running()})
	}
}

func (s *Server) lastResult() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, ok := s.guard.LastResult()
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, res.Report())
	}
}

func (s *Server) eventStream() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			s.renderError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}

		ch, unsubscribe := s.bus.Subscribe(eventBuffer)
		defer unsubscribe()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case e, ok := <-ch:
				if !ok {
					return
				}
				if err := writeEvent(w, e); err != nil {
					s.log.Debug("event stream closed", zap.Error(err))
					return
				}
				flusher.Flush()
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, e events.Event) error {
	data, err := json.Marshal(e.Payload())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Kind, data)
	return err
}

func (s *Server) renderError(w http.ResponseWriter, code int, msg string) {
	if msg == "" {
		msg = http.StatusText(code)
	}
	writeJSON(w, code, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
