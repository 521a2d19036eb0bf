package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/s0up4200/seedbrake/store"
)

// defaultFailureLimit is used when /api/failures has no limit parameter.
const defaultFailureLimit = 20

// maxBodySize caps request bodies on write endpoints.
const maxBodySize = 1 << 20

// restoreTimeout bounds a forced restore, which outlives its request.
const restoreTimeout = 5 * time.Minute

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/metrics", promhttp.Handler().ServeHTTP)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/controller", func(r chi.Router) {
			r.Get("/state", s.handleState)
			r.Post("/start", s.handleStart)
			r.Post("/stop", s.handleStop)
			r.Post("/restore", s.handleRestore)
		})

		r.Get("/services", s.handleServices)
		r.Put("/services", s.handleServicesBatch)
		r.Put("/services/{id}", s.handleService)

		r.Get("/failures", s.handleFailures)
		r.Get("/targets/{name}/status", s.handleTargetStatus)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	state := s.ctrl.State()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"running": state.Running,
		"mode":    state.Mode,
	})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.State())
}

type toggleResponse struct {
	Changed bool `json:"changed"`
	Running bool `json:"running"`
}

func (s *Server) handleStart(w http.ResponseWriter, _ *http.Request) {
	changed := s.ctrl.Start()
	writeJSON(w, http.StatusOK, toggleResponse{Changed: changed, Running: s.ctrl.State().Running})
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	changed := s.ctrl.Stop()
	writeJSON(w, http.StatusOK, toggleResponse{Changed: changed, Running: s.ctrl.State().Running})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target")

	// A restore must not stop halfway when the client goes away.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), restoreTimeout)
	defer cancel()

	if err := s.ctrl.ForceRestore(ctx, target); err != nil {
		HandleError(w, r, err)
		return
	}

	if target == "" {
		target = "all"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"restored": target,
		"state":    s.ctrl.State(),
	})
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	state, err := s.ctrl.ServiceControlState()
	if err != nil {
		HandleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

type serviceUpdate struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body serviceUpdate
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if body.Enabled == nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("missing field %q", "enabled"))
		return
	}

	if err := s.ctrl.SetServiceEnabled(id, *body.Enabled); err != nil {
		HandleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{id: *body.Enabled})
}

func (s *Server) handleServicesBatch(w http.ResponseWriter, r *http.Request) {
	var flags map[string]bool
	if err := decodeBody(w, r, &flags); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	if err := s.ctrl.SetServicesEnabled(flags); err != nil {
		HandleError(w, r, err)
		return
	}

	state, err := s.ctrl.ServiceControlState()
	if err != nil {
		HandleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleFailures(w http.ResponseWriter, r *http.Request) {
	limit := defaultFailureLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}

	records, err := s.ctrl.FailureRecords(limit)
	if err != nil {
		HandleError(w, r, err)
		return
	}
	if records == nil {
		records = []store.FailureRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleTargetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.ctrl.TargetStatus(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		HandleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
