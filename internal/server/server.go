// Package server exposes scoring, nudges and AI artifacts over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spigell/referral-matcher/internal/budget"
	"github.com/spigell/referral-matcher/internal/nudge"
	"github.com/spigell/referral-matcher/internal/orchestrator"
	"github.com/spigell/referral-matcher/internal/ratelimit"
	"github.com/spigell/referral-matcher/internal/scoring"
	"github.com/spigell/referral-matcher/internal/store"
	"go.uber.org/zap"
)

const (
	HeaderPrincipal = "X-Principal-ID"
	HeaderTenant    = "X-Tenant-ID"
	HeaderRequestID = "X-Request-ID"

	maxBodyBytes    = 1 << 20
	shutdownTimeout = 30 * time.Second
)

// Config holds server configuration.
type Config struct {
	Listen string
	// TrustProxy makes the first X-Forwarded-For hop the client address.
	TrustProxy bool
}

// ArtifactGenerator produces catalog artifacts.
type ArtifactGenerator interface {
	GenerateArtifact(ctx context.Context, operation string, inputs map[string]any, scope string) (orchestrator.Result, error)
}

// NudgeGenerator scores a pair and writes a nudge for it.
type NudgeGenerator interface {
	Generate(ctx context.Context, profile scoring.Profile, job scoring.JobPosting, opts nudge.Options) nudge.Outcome
}

// BudgetChecker reports the spend status of a scope.
type BudgetChecker interface {
	Check(ctx context.Context, scope string, estimate int64) (budget.Status, error)
}

// Deps are the collaborators the handlers use. Budget and Limiter may be nil.
type Deps struct {
	Records   store.Records
	Artifacts ArtifactGenerator
	Nudges    NudgeGenerator
	Budget    BudgetChecker
	Limiter   *ratelimit.Limiter
}

// Server represents the HTTP server.
type Server struct {
	config  Config
	deps    Deps
	handler http.Handler
	logger  *zap.Logger
}

func New(config Config, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{config: config, deps: deps, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("POST /v1/score", s.withRateLimit(ratelimit.ClassRead, http.HandlerFunc(s.handleScore)))
	mux.Handle("POST /v1/nudges", s.withRateLimit(ratelimit.ClassAI, http.HandlerFunc(s.handleNudge)))
	mux.Handle("POST /v1/artifacts/{operation}", s.withRateLimit(ratelimit.ClassAI, http.HandlerFunc(s.handleArtifact)))
	mux.Handle("GET /v1/budget", s.withRateLimit(ratelimit.ClassRead, http.HandlerFunc(s.handleBudget)))

	s.handler = s.withLogging(mux)
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("listen", s.config.Listen))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Info("request served",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) withRateLimit(class ratelimit.Class, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		clientKey := ratelimit.ClientKey(
			r.Header.Get(HeaderPrincipal),
			r.RemoteAddr,
			r.Header.Get("X-Forwarded-For"),
			s.config.TrustProxy,
		)

		decision, err := s.deps.Limiter.Check(r.Context(), clientKey, class)
		if err != nil {
			// Admission stays open when the counter store is unreachable.
			s.logger.Warn("rate limit check failed", zap.String("client", clientKey), zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		setRateLimitHeaders(w, decision)
		if !decision.Allowed {
			s.rateLimitResponse(w, decision)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func setRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	if d.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
	}
}

func (s *Server) rateLimitResponse(w http.ResponseWriter, d ratelimit.Decision) {
	retryAfter := int((d.RetryAfter + time.Second - 1) / time.Second)
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

	s.jsonResponse(w, http.StatusTooManyRequests, map[string]any{
		"error":       "rate_limit_exceeded",
		"message":     "Rate limit exceeded. Please try again later.",
		"limit":       d.Limit,
		"remaining":   d.Remaining,
		"reset_at":    d.ResetAt.Format(time.RFC3339),
		"retry_after": retryAfter,
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("encoding json response", zap.Error(err))
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
