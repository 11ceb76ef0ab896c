// Package api exposes the coordinator workflows over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/abhaldrota/SubManage-FHE/internal/coordinator"
	"github.com/abhaldrota/SubManage-FHE/internal/health"
	"github.com/abhaldrota/SubManage-FHE/internal/metrics"
)

// Service is the coordinator surface served over HTTP.
type Service interface {
	Records() []coordinator.Record
	Filter(query, category string) []coordinator.Record
	ListAll(ctx context.Context) ([]coordinator.Record, error)
	Create(ctx context.Context, req coordinator.CreateRequest) (string, error)
	RequestDecryption(ctx context.Context, id string) (coordinator.DecryptResult, error)
	Phase(id string) coordinator.Phase
	Stats() coordinator.Stats
	History(n int) []coordinator.HistoryEntry
	CheckAvailability(ctx context.Context) (bool, error)
}

// Limiter guards mutating requests, keyed by account.
type Limiter interface {
	Allow(key string) bool
}

// EventSource lists recent status events.
type EventSource interface {
	Events() []coordinator.Event
}

// Options holds the optional collaborators of a Server.
type Options struct {
	// Account keys the rate limiter; it is the daemon's signing identity.
	Account string
	Limiter Limiter
	Health  *health.Checker
	Metrics *metrics.Collector
	Events  EventSource
	Log     coordinator.Logger
	// Timeout bounds each workflow request. Zero means no deadline.
	Timeout time.Duration
	// HistoryLimit is the default size of the history view.
	HistoryLimit int
}

// Server serves the HTTP API.
type Server struct {
	svc  Service
	opts Options
}

// NewServer creates a server over svc.
func NewServer(svc Service, opts Options) *Server {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 10
	}
	return &Server{svc: svc, opts: opts}
}

// Routes returns the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if s.opts.Log != nil {
		r.Use(s.logRequests)
	}

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/events", s.handleEvents)
	r.Get("/availability", s.handleAvailability)
	r.Get("/stats", s.handleStats)
	r.Get("/history", s.handleHistory)

	r.Route("/records", func(rr chi.Router) {
		rr.Get("/", s.handleList)
		rr.With(s.limit).Post("/", s.handleCreate)
		rr.Post("/refresh", s.handleRefresh)
		rr.Get("/{id}/phase", s.handlePhase)
		rr.With(s.limit).Post("/{id}/decrypt", s.handleDecrypt)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.opts.Log.Debug("%s %s -> %d (%s)", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}

func (s *Server) limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Limiter != nil && !s.opts.Limiter.Allow(s.opts.Account) {
			if s.opts.Metrics != nil {
				s.opts.Metrics.RecordRateLimited(s.opts.Account)
			}
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) workflowContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.opts.Timeout > 0 {
		return context.WithTimeout(r.Context(), s.opts.Timeout)
	}
	return context.WithCancel(r.Context())
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	category := q.Get("category")
	if category == "" {
		category = "all"
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": s.svc.Filter(q.Get("q"), category)})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.workflowContext(r)
	defer cancel()
	records, err := s.svc.ListAll(ctx)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req coordinator.CreateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_JSON", err.Error())
		return
	}
	ctx, cancel := s.workflowContext(r)
	defer cancel()
	id, err := s.svc.Create(ctx, req)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	resp := map[string]any{"id": id}
	for _, rec := range s.svc.Records() {
		if rec.ID == id {
			resp["record"] = rec
			break
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleDecrypt(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.workflowContext(r)
	defer cancel()
	res, err := s.svc.RequestDecryption(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePhase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "phase": s.svc.Phase(id)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Stats())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	n := s.opts.HistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "BAD_LIMIT", "limit must be an integer")
			return
		}
		n = parsed
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": s.svc.History(n)})
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.workflowContext(r)
	defer cancel()
	ok, err := s.svc.CheckAvailability(ctx)
	if err != nil {
		writeWorkflowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"available": ok})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.opts.Health == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "success", "message": "System is healthy"})
		return
	}
	h := s.opts.Health.Check(r.Context())
	status := http.StatusOK
	if h.OverallStatus == health.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health.NewResponse(h))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.opts.Metrics == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "metrics are disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Metrics.Summary())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events := []coordinator.Event{}
	if s.opts.Events != nil {
		events = s.opts.Events.Events()
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// statusFor maps a workflow failure to an HTTP status.
func statusFor(err error) (int, string) {
	if errors.Is(err, coordinator.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND"
	}
	switch coordinator.KindOf(err) {
	case coordinator.KindInvalidInput:
		return http.StatusBadRequest, "INVALID_INPUT"
	case coordinator.KindUnauthenticated:
		return http.StatusUnauthorized, "UNAUTHENTICATED"
	case coordinator.KindUserRejected:
		return http.StatusForbidden, "USER_REJECTED"
	case coordinator.KindAlreadyVerified:
		return http.StatusConflict, "ALREADY_VERIFIED"
	case coordinator.KindEncryptionFailure, coordinator.KindVerificationFailure:
		return http.StatusUnprocessableEntity, "VERIFICATION_FAILED"
	case coordinator.KindNetworkFailure:
		return http.StatusBadGateway, "LEDGER_UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func writeWorkflowError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeError(w, status, code, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": code, "message": message},
	})
}
