// Package orchestrator runs AI-backed generation behind the response cache,
// the spend budget and a hard deadline, falling back to deterministic output
// whenever the provider cannot be used.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spigell/referral-matcher/internal/ai"
	"github.com/spigell/referral-matcher/internal/artifacts"
	"github.com/spigell/referral-matcher/internal/budget"
	"github.com/spigell/referral-matcher/internal/cache"
	"github.com/spigell/referral-matcher/internal/fingerprint"
	"github.com/spigell/referral-matcher/internal/logger"
	"github.com/spigell/referral-matcher/internal/utils"
	"go.uber.org/zap"
)

// Source tells whether a payload came from the provider or a fallback.
type Source string

const (
	SourceAI     Source = "ai"
	SourceStatic Source = "static"
)

// Fallback reasons.
const (
	ReasonDisabled       = "ai_disabled"
	ReasonBudgetExceeded = "budget_exceeded"
	ReasonBudgetError    = "budget_unavailable"
	ReasonTimeout        = "timeout"
	ReasonProviderError  = "provider_error"
	ReasonInvalidOutput  = "invalid_output"
	ReasonCanceled       = "canceled"
	ReasonInternal       = "internal"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultCostPerCall = 1
	defaultFallbackTTL = 10 * time.Minute

	previewLength = 200
)

// Config controls provider usage.
type Config struct {
	Enabled bool
	// Timeout bounds a single provider call.
	Timeout time.Duration
	// CostPerCall is the spend estimate used when a request sets none.
	CostPerCall int64
	// UnitsPer1KTokens converts reported token usage into cost units. Zero
	// means the estimate is recorded instead.
	UnitsPer1KTokens int64
	// CacheFallbacks stores static results for FallbackTTL.
	CacheFallbacks bool
	FallbackTTL    time.Duration
}

// Request describes one generation.
type Request struct {
	Operation string
	// Inputs identify the result; equal inputs share a cache entry.
	Inputs any
	// Scope is the billing scope charged for the call.
	Scope string
	Call  ai.Request
	// Parse validates provider output. An error rejects the output.
	Parse func(raw string) (artifacts.Artifact, error)
	// Fallback must be deterministic and must not fail.
	Fallback      func() artifacts.Artifact
	EstimatedCost int64
}

// Result is a generated artifact.
type Result struct {
	ID             uuid.UUID          `json:"id"`
	Operation      string             `json:"operation"`
	Fingerprint    string             `json:"fingerprint"`
	Payload        artifacts.Artifact `json:"payload"`
	Source         Source             `json:"source"`
	GeneratedAt    time.Time          `json:"generatedAt"`
	Cached         bool               `json:"cached"`
	FallbackReason string             `json:"fallbackReason,omitempty"`
}

// entry is the cached form of a result.
type entry struct {
	Payload        artifacts.Artifact `json:"payload"`
	Source         Source             `json:"source"`
	GeneratedAt    time.Time          `json:"generatedAt"`
	FallbackReason string             `json:"fallbackReason,omitempty"`
}

// uncached carries a result that must not be stored under the normal TTL
// back to every caller sharing the flight.
type uncached struct {
	entry entry
}

func (u *uncached) Error() string {
	return "uncached result: " + u.entry.FallbackReason
}

// Orchestrator generates artifacts.
type Orchestrator struct {
	generator ai.Generator
	cache     *cache.Store
	budget    *budget.Guard
	config    Config
	now       func() time.Time
	logger    *zap.Logger
}

// New creates an Orchestrator. A nil generator or disabled config always
// falls back; a nil guard means no budget; a nil store means no caching.
func New(generator ai.Generator, store *cache.Store, guard *budget.Guard, config Config, now func() time.Time, log *zap.Logger) *Orchestrator {
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if config.CostPerCall <= 0 {
		config.CostPerCall = defaultCostPerCall
	}
	if config.FallbackTTL <= 0 {
		config.FallbackTTL = defaultFallbackTTL
	}
	if store == nil {
		store = cache.New(nil)
	}
	if now == nil {
		now = time.Now
	}
	if generator != nil {
		log = logger.WithCommonFields(log, generator.Provider(), generator.Model())
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Orchestrator{
		generator: generator,
		cache:     store,
		budget:    guard,
		config:    config,
		now:       now,
		logger:    log,
	}
}

// GenerateArtifact runs a catalog operation over untyped inputs. Only
// unknown operations and invalid inputs are errors.
func (o *Orchestrator) GenerateArtifact(ctx context.Context, operation string, inputs map[string]any, scope string) (Result, error) {
	prep, err := artifacts.Prepare(operation, inputs)
	if err != nil {
		return Result{}, err
	}
	return o.Generate(ctx, FromPrepared(prep, scope)), nil
}

// FromPrepared turns a prepared artifact into a Request.
func FromPrepared(prep artifacts.Prepared, scope string) Request {
	return Request{
		Operation: prep.Operation,
		Inputs:    prep.Inputs,
		Scope:     scope,
		Call:      prep.Call,
		Parse:     prep.Parse,
		Fallback:  prep.Fallback,
	}
}

// Generate returns the cached result for the request or produces a new one.
// It never fails: every error path ends in the request's fallback.
func (o *Orchestrator) Generate(ctx context.Context, req Request) Result {
	log := o.logger.With(zap.String(logger.FieldOperation, req.Operation), logger.ScopeField(scopeOf(req.Scope)))

	fp, err := fingerprint.Of(req.Operation, req.Inputs)
	if err != nil {
		log.Error("fingerprint inputs", zap.Error(err))
		return o.result(req, "", o.fallback(req, ReasonInternal), false)
	}
	log = log.With(zap.String("fingerprint", short(fp)))

	value, cached, err := o.cache.GetOrCompute(ctx, req.Operation, fp, func(ctx context.Context) ([]byte, error) {
		e := o.compute(ctx, req, log)
		if e.Source == SourceAI {
			return json.Marshal(e)
		}

		if o.config.CacheFallbacks {
			if data, err := json.Marshal(e); err == nil {
				o.cache.Put(ctx, req.Operation, fp, data, o.config.FallbackTTL)
			}
		}
		return nil, &uncached{entry: e}
	})

	var skip *uncached
	switch {
	case errors.As(err, &skip):
		return o.result(req, fp, skip.entry, false)
	case err != nil:
		reason := ReasonInternal
		if ctx.Err() != nil {
			reason = ReasonCanceled
		}
		log.Warn("generation aborted", zap.Error(err))
		return o.result(req, fp, o.fallback(req, reason), false)
	}

	var e entry
	if err := json.Unmarshal(value, &e); err != nil {
		log.Warn("discarding unreadable cache entry", zap.Error(err))
		return o.result(req, fp, o.fallback(req, ReasonInternal), false)
	}

	if cached {
		log.Debug("served from cache", logger.OperationFields("", string(e.Source))...)
	}
	return o.result(req, fp, e, cached)
}

func (o *Orchestrator) compute(ctx context.Context, req Request, log *zap.Logger) entry {
	if !o.config.Enabled || o.generator == nil {
		return o.fallback(req, ReasonDisabled)
	}

	estimate := req.EstimatedCost
	if estimate <= 0 {
		estimate = o.config.CostPerCall
	}

	if o.budget != nil {
		status, err := o.budget.Check(ctx, req.Scope, estimate)
		if err != nil {
			log.Warn("budget check failed", zap.Error(err))
			return o.fallback(req, ReasonBudgetError)
		}
		if !status.WithinBudget {
			log.Info("budget exceeded, using fallback",
				zap.Int64("daily_spend", status.DailySpend),
				zap.Int64("daily_cap", status.DailyCap),
				zap.Int64("estimate", estimate),
			)
			return o.fallback(req, ReasonBudgetExceeded)
		}
	}

	resp, err := o.call(ctx, req.Call)
	if err != nil {
		reason := ReasonProviderError
		if errors.Is(err, context.DeadlineExceeded) {
			reason = ReasonTimeout
		}
		log.Warn("ai call failed, using fallback", zap.String("reason", reason), zap.Error(err))
		return o.fallback(req, reason)
	}

	payload, err := req.Parse(resp.Text)
	if err != nil {
		log.Warn("ai output rejected, using fallback",
			zap.String("response_preview", utils.TruncateForLog(resp.Text, previewLength)),
			zap.Error(err),
		)
		return o.fallback(req, ReasonInvalidOutput)
	}

	if o.budget != nil {
		cost := o.cost(resp, estimate)
		if err := o.budget.Record(ctx, req.Scope, cost); err != nil {
			log.Error("record spend", zap.Int64("amount", cost), zap.Error(err))
		}
	}

	log.Info("ai artifact generated",
		append(logger.OperationFields("", string(SourceAI)), zap.Int("total_tokens", resp.TotalTokens))...,
	)
	return entry{Payload: payload, Source: SourceAI, GeneratedAt: o.now()}
}

// call races the provider against the deadline. A response arriving after
// the deadline is dropped and a provider panic is returned as an error.
func (o *Orchestrator) call(ctx context.Context, req ai.Request) (ai.Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.config.Timeout)
	defer cancel()

	type outcome struct {
		resp ai.Response
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("ai call panicked: %v", r)}
			}
		}()
		resp, err := o.generator.Generate(callCtx, req)
		done <- outcome{resp: resp, err: err}
	}()

	select {
	case out := <-done:
		return out.resp, out.err
	case <-callCtx.Done():
		return ai.Response{}, fmt.Errorf("ai call: %w", callCtx.Err())
	}
}

func (o *Orchestrator) cost(resp ai.Response, estimate int64) int64 {
	if resp.TotalTokens <= 0 || o.config.UnitsPer1KTokens <= 0 {
		return estimate
	}
	// Rounded up: a paid call costs at least one unit.
	return (int64(resp.TotalTokens)*o.config.UnitsPer1KTokens + 999) / 1000
}

func (o *Orchestrator) fallback(req Request, reason string) entry {
	var payload artifacts.Artifact
	if req.Fallback != nil {
		payload = req.Fallback()
	}

	o.logger.Debug("fallback used",
		append(logger.OperationFields(req.Operation, string(SourceStatic)), zap.String("reason", reason))...,
	)
	return entry{Payload: payload, Source: SourceStatic, GeneratedAt: o.now(), FallbackReason: reason}
}

func (o *Orchestrator) result(req Request, fp string, e entry, cached bool) Result {
	return Result{
		ID:             uuid.New(),
		Operation:      req.Operation,
		Fingerprint:    fp,
		Payload:        e.Payload,
		Source:         e.Source,
		GeneratedAt:    e.GeneratedAt,
		Cached:         cached,
		FallbackReason: e.FallbackReason,
	}
}

func scopeOf(scope string) string {
	if scope == "" {
		return budget.GlobalScope
	}
	return scope
}

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
