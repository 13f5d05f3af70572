// Package server exposes the admin HTTP surface: on-demand single-user sync,
// the fleet "sync all" task, and a health probe.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ayzhao/gradesync/internal/errs"
	"github.com/ayzhao/gradesync/internal/model"
)

// UserSync is the single-user sync contract, implemented by *service.SyncService.
type UserSync interface {
	Sync(ctx context.Context, src model.CredentialSource, bypass bool) (model.SyncReport, error)
}

// FleetSync is the fleet contract, implemented by *service.FleetService.
type FleetSync interface {
	SyncAll(ctx context.Context, staleAfter time.Duration) model.BatchReport
}

// Server is the admin HTTP server.
type Server struct {
	router     *chi.Mux
	log        *zap.Logger
	userSync   UserSync
	fleet      FleetSync
	adminToken string
	staleAfter time.Duration
}

// New wires the router. adminToken guards the fleet task endpoint.
func New(userSync UserSync, fleet FleetSync, adminToken string, staleAfter time.Duration, log *zap.Logger) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		log:        log,
		userSync:   userSync,
		fleet:      fleet,
		adminToken: adminToken,
		staleAfter: staleAfter,
	}

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(s.logRequests)
	s.router.Use(chimiddleware.Recoverer)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Post("/v1/sync", s.handleSync)
	s.router.With(s.requireAdmin).Post("/v1/tasks/sync-all", s.handleSyncAll)

	return s
}

// ServeHTTP makes Server usable directly with http.Server and httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type syncRequest struct {
	StudentID string `json:"studentId"`
	Password  string `json:"password"`
}

// handleSync runs one user's sync from submitted credentials, gate enforced.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.StudentID == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "studentId and password are required")
		return
	}

	report, err := s.userSync.Sync(r.Context(),
		model.ByCredentials{StudentID: req.StudentID, Password: req.Password}, false)
	if err != nil {
		s.writeSyncError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// handleSyncAll triggers a fleet run and reports the batch summary.
func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	report := s.fleet.SyncAll(r.Context(), s.staleAfter)
	writeJSON(w, http.StatusOK, report)
}

// writeSyncError maps the sync error taxonomy onto HTTP statuses without
// leaking portal internals or credentials.
func (s *Server) writeSyncError(w http.ResponseWriter, err error) {
	var rl *errs.RateLimitedError
	switch {
	case errors.As(err, &rl):
		writeError(w, http.StatusTooManyRequests, rl.Error())
	case errors.Is(err, errs.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid student number or password")
	case errors.Is(err, errs.ErrPortalUnavailable):
		writeError(w, http.StatusServiceUnavailable, "portal is currently unavailable")
	case errors.Is(err, errs.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "no account for that student number")
	default:
		s.log.Error("sync failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "sync failed")
	}
}

// requireAdmin guards administrative endpoints with a shared bearer token.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			writeError(w, http.StatusForbidden, "admin endpoints are disabled")
			return
		}
		got := r.Header.Get("Authorization")
		want := "Bearer " + s.adminToken
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
		)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
