package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"lightning_backend/diffusion"
	"lightning_backend/history"
	"lightning_backend/logging"
	"lightning_backend/metrics"
	"lightning_backend/predictor"
)

// predictionService is the slice of the predictor the HTTP layer uses.
type predictionService interface {
	Predict(ctx context.Context, req predictor.Request) (*predictor.Result, error)
	Ready() bool
}

// Server exposes the predictor over HTTP.
type Server struct {
	predictor predictionService
	store     *history.Store
	collector *metrics.Collector
	logger    *logging.Logger
}

// NewServer wires the HTTP layer. store and collector may be nil when those
// features are disabled.
func NewServer(p predictionService, store *history.Store, collector *metrics.Collector, logger *logging.Logger) *Server {
	return &Server{
		predictor: p,
		store:     store,
		collector: collector,
		logger:    logger.Named("http"),
	}
}

// Routes returns the HTTP handler for the service.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/predictions", s.handlePredict)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/history", s.handleHistory)
	return mux
}

type errorResponse struct {
	Error string `json:"error"`
}

// handlePredict serves POST /predictions. The request body is a JSON
// predictor.Request; the response is the prediction result. Requests queue
// behind the single in-flight prediction.
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req predictor.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	start := time.Now()
	result, err := s.predictor.Predict(r.Context(), req)
	if err != nil {
		s.logger.Warn("prediction failed",
			zap.Error(err),
			zap.Duration("took", time.Since(start)))
		s.writeError(w, statusForError(err), err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// statusForError maps prediction errors to HTTP status codes. Caller
// mistakes are 4xx; the all-filtered outcome is distinct from a fault.
func statusForError(err error) int {
	switch {
	case errors.Is(err, diffusion.ErrInvalidParams),
		errors.Is(err, diffusion.ErrInvalidPrompt),
		errors.Is(err, diffusion.ErrUnknownScheduler):
		return http.StatusBadRequest
	case errors.Is(err, predictor.ErrAllOutputsFiltered):
		return http.StatusUnprocessableEntity
	case errors.Is(err, predictor.ErrNotSetup):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

type healthResponse struct {
	Status  string              `json:"status"`
	Ready   bool                `json:"ready"`
	Backend string              `json:"backend"`
	GPU     *metrics.GPUMetrics `json:"gpu,omitempty"`
}

// handleHealth serves GET /health. The service reports ok once setup has
// completed; GPU state is included when the collector is running.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := healthResponse{
		Ready:   s.predictor.Ready(),
		Backend: diffusion.BackendInfo(),
	}
	if resp.Ready {
		resp.Status = "ok"
	} else {
		resp.Status = "starting"
	}

	if s.collector != nil {
		if sample, ok := s.collector.Current(); ok {
			resp.GPU = &sample
		}
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, resp)
}

// handleHistory serves GET /history: the most recent prediction records.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.store == nil {
		s.writeError(w, http.StatusNotFound, "history is disabled")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	records, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read history", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	if records == nil {
		records = []predictor.Record{}
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
