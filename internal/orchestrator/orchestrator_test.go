package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spigell/referral-matcher/internal/ai"
	"github.com/spigell/referral-matcher/internal/artifacts"
	"github.com/spigell/referral-matcher/internal/budget"
	"github.com/spigell/referral-matcher/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const summaryJSON = `{"bullets": ["Go services", "Payments", "Small team"]}`

type stubGenerator struct {
	calls   atomic.Int64
	respond func(ctx context.Context, req ai.Request) (ai.Response, error)
}

func (s *stubGenerator) Generate(ctx context.Context, req ai.Request) (ai.Response, error) {
	s.calls.Add(1)
	return s.respond(ctx, req)
}

func (s *stubGenerator) Provider() string { return "stub" }

func (s *stubGenerator) Model() string { return "stub-model" }

func reply(text string, tokens int) *stubGenerator {
	return &stubGenerator{respond: func(context.Context, ai.Request) (ai.Response, error) {
		return ai.Response{Text: text, TotalTokens: tokens}, nil
	}}
}

func summaryRequest(t *testing.T, description, scope string) Request {
	t.Helper()
	prep, err := artifacts.Prepare(artifacts.OpJobSummary, map[string]any{
		"jobTitle":    "Backend Engineer",
		"description": description,
	})
	require.NoError(t, err)
	return FromPrepared(prep, scope)
}

func newGuard(limit int64) *budget.Guard {
	return budget.NewGuard(budget.NewMemory(), budget.Config{DefaultCap: limit}, nil, nil)
}

func spent(t *testing.T, guard *budget.Guard, scope string) int64 {
	t.Helper()
	status, err := guard.Check(context.Background(), scope, 0)
	require.NoError(t, err)
	return status.DailySpend
}

func newOrchestrator(gen ai.Generator, guard *budget.Guard, cfg Config) *Orchestrator {
	cfg.Enabled = true
	return New(gen, cache.New(cache.NewMemory(nil)), guard, cfg, nil, nil)
}

func TestGenerateAISuccessIsCached(t *testing.T) {
	ctx := context.Background()
	gen := reply(summaryJSON, 0)
	guard := newGuard(100)
	orch := newOrchestrator(gen, guard, Config{CostPerCall: 3})

	first := orch.Generate(ctx, summaryRequest(t, "Build payment APIs in Go.", "acme"))
	assert.Equal(t, SourceAI, first.Source)
	assert.False(t, first.Cached)
	assert.Empty(t, first.FallbackReason)
	assert.Equal(t, []string{"Go services", "Payments", "Small team"}, first.Payload.Bullets)
	assert.NotEmpty(t, first.Fingerprint)

	second := orch.Generate(ctx, summaryRequest(t, "  Build   payment APIs in Go. ", "acme"))
	assert.Equal(t, SourceAI, second.Source)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Payload, second.Payload)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.NotEqual(t, first.ID, second.ID)

	assert.Equal(t, int64(1), gen.calls.Load())
	assert.Equal(t, int64(3), spent(t, guard, "acme"))
}

func TestGenerateConcurrentIdenticalRequestsCallProviderOnce(t *testing.T) {
	release := make(chan struct{})
	gen := &stubGenerator{respond: func(context.Context, ai.Request) (ai.Response, error) {
		<-release
		return ai.Response{Text: summaryJSON}, nil
	}}
	orch := newOrchestrator(gen, nil, Config{Timeout: time.Second})

	req := summaryRequest(t, "Same description.", "")

	const callers = 12
	results := make([]Result, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = orch.Generate(context.Background(), req)
		}(i)
	}

	require.Eventually(t, func() bool { return gen.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), gen.calls.Load())
	for _, r := range results {
		assert.Equal(t, SourceAI, r.Source)
		assert.Equal(t, results[0].Payload, r.Payload)
	}
}

func TestGenerateFallsBackWhenBudgetExhausted(t *testing.T) {
	ctx := context.Background()
	gen := reply(summaryJSON, 0)
	guard := newGuard(10)
	orch := newOrchestrator(gen, guard, Config{})

	for i := 0; i < 3; i++ {
		req := summaryRequest(t, fmt.Sprintf("Role number %d.", i), "tenant")
		req.EstimatedCost = 4
		res := orch.Generate(ctx, req)

		if i < 2 {
			assert.Equal(t, SourceAI, res.Source, "call %d", i+1)
			continue
		}
		assert.Equal(t, SourceStatic, res.Source)
		assert.Equal(t, ReasonBudgetExceeded, res.FallbackReason)
		assert.Equal(t, []string{"Role number 2."}, res.Payload.Bullets)
	}

	assert.Equal(t, int64(2), gen.calls.Load())
	assert.Equal(t, int64(8), spent(t, guard, "tenant"))
}

func TestGenerateFallbackSafety(t *testing.T) {
	cases := []struct {
		name    string
		gen     *stubGenerator
		timeout time.Duration
		reason  string
	}{
		{
			name: "provider error",
			gen: &stubGenerator{respond: func(context.Context, ai.Request) (ai.Response, error) {
				return ai.Response{}, errors.New("503 unavailable")
			}},
			reason: ReasonProviderError,
		},
		{
			name: "provider panic",
			gen: &stubGenerator{respond: func(context.Context, ai.Request) (ai.Response, error) {
				panic("provider blew up")
			}},
			reason: ReasonProviderError,
		},
		{
			name:   "invalid output",
			gen:    reply(`{"bullets": ["just one"]}`, 100),
			reason: ReasonInvalidOutput,
		},
		{
			name:   "not json",
			gen:    reply("I cannot help with that.", 100),
			reason: ReasonInvalidOutput,
		},
		{
			name: "timeout",
			gen: &stubGenerator{respond: func(ctx context.Context, _ ai.Request) (ai.Response, error) {
				<-ctx.Done()
				return ai.Response{}, ctx.Err()
			}},
			timeout: 10 * time.Millisecond,
			reason:  ReasonTimeout,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			guard := newGuard(100)
			orch := newOrchestrator(tc.gen, guard, Config{Timeout: tc.timeout, UnitsPer1KTokens: 5})

			req := summaryRequest(t, "First sentence. Second sentence.", "s")
			res := orch.Generate(context.Background(), req)

			assert.Equal(t, SourceStatic, res.Source)
			assert.Equal(t, tc.reason, res.FallbackReason)
			assert.Equal(t, req.Fallback(), res.Payload)
			assert.Equal(t, int64(0), spent(t, guard, "s"))

			// Failures are not cached: the next call tries the provider again.
			orch.Generate(context.Background(), req)
			assert.Equal(t, int64(2), tc.gen.calls.Load())
		})
	}
}

func TestGenerateDiscardsLateResponse(t *testing.T) {
	gen := &stubGenerator{respond: func(context.Context, ai.Request) (ai.Response, error) {
		time.Sleep(60 * time.Millisecond)
		return ai.Response{Text: summaryJSON, TotalTokens: 2000}, nil
	}}
	guard := newGuard(100)
	store := cache.New(cache.NewMemory(nil))
	orch := New(gen, store, guard, Config{Enabled: true, Timeout: 10 * time.Millisecond, UnitsPer1KTokens: 1}, nil, nil)

	req := summaryRequest(t, "Late answer.", "s")
	res := orch.Generate(context.Background(), req)
	assert.Equal(t, SourceStatic, res.Source)
	assert.Equal(t, ReasonTimeout, res.FallbackReason)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(0), spent(t, guard, "s"))
	_, ok := store.Lookup(context.Background(), req.Operation, res.Fingerprint)
	assert.False(t, ok)
}

func TestGenerateRecordsTokenCost(t *testing.T) {
	guard := newGuard(0)
	orch := newOrchestrator(reply(summaryJSON, 1500), guard, Config{UnitsPer1KTokens: 2})

	res := orch.Generate(context.Background(), summaryRequest(t, "Token priced.", "s"))
	require.Equal(t, SourceAI, res.Source)
	assert.Equal(t, int64(3), spent(t, guard, "s"))
}

func TestGenerateCachesFallbacksWhenEnabled(t *testing.T) {
	gen := &stubGenerator{respond: func(context.Context, ai.Request) (ai.Response, error) {
		return ai.Response{}, errors.New("down")
	}}
	orch := newOrchestrator(gen, nil, Config{CacheFallbacks: true, FallbackTTL: time.Minute})

	req := summaryRequest(t, "Cached fallback.", "")
	first := orch.Generate(context.Background(), req)
	second := orch.Generate(context.Background(), req)

	assert.Equal(t, SourceStatic, first.Source)
	assert.False(t, first.Cached)
	assert.Equal(t, SourceStatic, second.Source)
	assert.True(t, second.Cached)
	assert.Equal(t, ReasonProviderError, second.FallbackReason)
	assert.Equal(t, int64(1), gen.calls.Load())
}

func TestGenerateDisabled(t *testing.T) {
	gen := reply(summaryJSON, 0)
	orch := New(gen, nil, nil, Config{Enabled: false}, nil, nil)

	res := orch.Generate(context.Background(), summaryRequest(t, "Disabled.", ""))
	assert.Equal(t, SourceStatic, res.Source)
	assert.Equal(t, ReasonDisabled, res.FallbackReason)
	assert.Equal(t, int64(0), gen.calls.Load())

	nilGen := New(nil, nil, nil, Config{Enabled: true}, nil, nil)
	res = nilGen.Generate(context.Background(), summaryRequest(t, "No provider.", ""))
	assert.Equal(t, ReasonDisabled, res.FallbackReason)
}

func TestGenerateCanceledWaiterFallsBack(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	gen := &stubGenerator{respond: func(context.Context, ai.Request) (ai.Response, error) {
		<-release
		return ai.Response{Text: summaryJSON}, nil
	}}
	orch := newOrchestrator(gen, nil, Config{Timeout: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	res := orch.Generate(ctx, summaryRequest(t, "Slow.", ""))
	assert.Equal(t, SourceStatic, res.Source)
	assert.Equal(t, ReasonCanceled, res.FallbackReason)
}

func TestGenerateBudgetStoreErrorFallsBack(t *testing.T) {
	gen := reply(summaryJSON, 0)
	guard := budget.NewGuard(failingBudgetStore{}, budget.Config{DefaultCap: 10}, nil, nil)
	orch := newOrchestrator(gen, guard, Config{})

	res := orch.Generate(context.Background(), summaryRequest(t, "Broken budget.", ""))
	assert.Equal(t, ReasonBudgetError, res.FallbackReason)
	assert.Equal(t, int64(0), gen.calls.Load())
}

func TestGenerateArtifact(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	orch := New(reply(`{"subject": "Ada", "body": "Please meet Ada."}`, 0), nil, nil, Config{Enabled: true}, nil, zap.New(core))

	res, err := orch.GenerateArtifact(context.Background(), artifacts.OpReferralMessage, map[string]any{
		"candidateName": "Ada",
		"referrerName":  "Grace",
		"jobTitle":      "Engineer",
		"company":       "Acme",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, SourceAI, res.Source)
	assert.Equal(t, "Please meet Ada.", res.Payload.Text)

	entries := logs.FilterMessage("ai artifact generated").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "stub", fields["ai_provider"])
	assert.Equal(t, artifacts.OpReferralMessage, fields["ai_operation"])
	assert.Equal(t, "ai", fields["ai_source"])

	_, err = orch.GenerateArtifact(context.Background(), "haiku", nil, "")
	assert.ErrorIs(t, err, artifacts.ErrUnknownOperation)

	_, err = orch.GenerateArtifact(context.Background(), artifacts.OpJobSummary, map[string]any{}, "")
	assert.ErrorIs(t, err, artifacts.ErrInvalidInput)
}

type failingBudgetStore struct{}

func (failingBudgetStore) Add(context.Context, string, time.Time, int64) (int64, error) {
	return 0, errors.New("down")
}

func (failingBudgetStore) Spent(context.Context, string, time.Time) (int64, error) {
	return 0, errors.New("down")
}
