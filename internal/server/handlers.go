package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spigell/referral-matcher/internal/artifacts"
	"github.com/spigell/referral-matcher/internal/budget"
	"github.com/spigell/referral-matcher/internal/nudge"
	"github.com/spigell/referral-matcher/internal/scoring"
	"github.com/spigell/referral-matcher/internal/store"
	"go.uber.org/zap"
)

var validate = validator.New()

// pairRequest names a profile and a job either by id or inline.
type pairRequest struct {
	ProfileID string              `json:"profileId" validate:"required_without=Profile"`
	Profile   *scoring.Profile    `json:"profile"`
	JobID     string              `json:"jobId" validate:"required_without=Job"`
	Job       *scoring.JobPosting `json:"job"`
	Preset    string              `json:"preset"`
}

type nudgeRequest struct {
	pairRequest
	Context string `json:"context" validate:"max=2000"`
}

type nudgeResponse struct {
	Nudge  *nudge.Nudge `json:"nudge"`
	Source string       `json:"source"`
}

type budgetResponse struct {
	budget.Status
	Error string `json:"error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if err := decodeBody(r, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	preset, err := scoring.ParsePreset(req.Preset)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	profile, job, status, err := s.resolvePair(r, req)
	if err != nil {
		s.errorResponse(w, status, err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, scoring.Score(profile, job, preset))
}

func (s *Server) handleNudge(w http.ResponseWriter, r *http.Request) {
	var req nudgeRequest
	if err := decodeBody(r, &req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	preset, err := scoring.ParsePreset(req.Preset)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	profile, job, status, err := s.resolvePair(r, req.pairRequest)
	if err != nil {
		s.errorResponse(w, status, err.Error())
		return
	}

	// Low-tier matches never reach the model, so they are not held to the budget.
	scope := tenantOf(r)
	if scoring.Score(profile, job, preset).Tier != scoring.TierLow && !s.admitBudget(w, r, scope) {
		return
	}

	out := s.deps.Nudges.Generate(r.Context(), profile, job, nudge.Options{
		Preset: preset,
		Scope:  scope,
		Note:   req.Context,
	})
	s.jsonResponse(w, http.StatusOK, nudgeResponse{Nudge: out.Nudge, Source: string(out.Source)})
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	operation := r.PathValue("operation")
	if !artifacts.Known(operation) {
		s.errorResponse(w, http.StatusNotFound, fmt.Sprintf("unknown operation %q", operation))
		return
	}

	var inputs map[string]any
	if err := decodeJSON(r, &inputs); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := artifacts.Prepare(operation, inputs); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	scope := tenantOf(r)
	if !s.admitBudget(w, r, scope) {
		return
	}

	res, err := s.deps.Artifacts.GenerateArtifact(r.Context(), operation, inputs, scope)
	switch {
	case errors.Is(err, artifacts.ErrUnknownOperation):
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, res)
}

func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	scope := tenantOf(r)
	if s.deps.Budget == nil {
		s.jsonResponse(w, http.StatusOK, budget.Status{Scope: scope, WithinBudget: true, RemainingBudget: -1})
		return
	}

	status, err := s.deps.Budget.Check(r.Context(), scope, 0)
	if err != nil {
		s.logger.Error("budget check failed", zap.String("scope", scope), zap.Error(err))
		s.errorResponse(w, http.StatusServiceUnavailable, "budget status unavailable")
		return
	}
	s.jsonResponse(w, http.StatusOK, status)
}

// admitBudget rejects the request with 429 when the scope has no budget
// left. A failing budget store does not block the request: the orchestrator
// falls back on its own check.
func (s *Server) admitBudget(w http.ResponseWriter, r *http.Request, scope string) bool {
	if s.deps.Budget == nil {
		return true
	}

	status, err := s.deps.Budget.Check(r.Context(), scope, 0)
	if err != nil {
		s.logger.Warn("budget pre-check failed", zap.String("scope", scope), zap.Error(err))
		return true
	}
	if status.WithinBudget {
		return true
	}

	s.logger.Info("daily ai budget exhausted",
		zap.String("scope", scope),
		zap.Int64("daily_spend", status.DailySpend),
		zap.Int64("daily_cap", status.DailyCap),
	)
	s.jsonResponse(w, http.StatusTooManyRequests, budgetResponse{Status: status, Error: "budget_exceeded"})
	return false
}

// resolvePair returns the inline records or loads them from the record
// store. The returned status is meaningful only when err is non-nil.
func (s *Server) resolvePair(r *http.Request, req pairRequest) (scoring.Profile, scoring.JobPosting, int, error) {
	var (
		profile scoring.Profile
		job     scoring.JobPosting
	)

	if req.Profile != nil {
		profile = *req.Profile
	} else {
		if s.deps.Records == nil {
			return profile, job, http.StatusBadRequest, errors.New("profile lookup by id is not configured")
		}
		p, err := s.deps.Records.Profile(r.Context(), req.ProfileID)
		if err != nil {
			return profile, job, statusFor(err), err
		}
		profile = p
	}

	if req.Job != nil {
		job = *req.Job
	} else {
		if s.deps.Records == nil {
			return profile, job, http.StatusBadRequest, errors.New("job lookup by id is not configured")
		}
		j, err := s.deps.Records.Job(r.Context(), req.JobID)
		if err != nil {
			return profile, job, statusFor(err), err
		}
		job = j
	}

	return profile, job, 0, nil
}

func statusFor(err error) int {
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func tenantOf(r *http.Request) string {
	if t := strings.TrimSpace(r.Header.Get(HeaderTenant)); t != "" {
		return t
	}
	return budget.GlobalScope
}

// decodeBody decodes and validates a JSON request body.
func decodeBody(r *http.Request, dst any) error {
	if err := decodeJSON(r, dst); err != nil {
		return err
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

func decodeJSON(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
