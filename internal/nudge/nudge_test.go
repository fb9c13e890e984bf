package nudge

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/spigell/referral-matcher/internal/ai"
	"github.com/spigell/referral-matcher/internal/orchestrator"
	"github.com/spigell/referral-matcher/internal/scoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingGenerator struct {
	calls atomic.Int64
	text  string
}

func (g *countingGenerator) Generate(context.Context, ai.Request) (ai.Response, error) {
	g.calls.Add(1)
	return ai.Response{Text: g.text}, nil
}

func (g *countingGenerator) Provider() string { return "stub" }

func (g *countingGenerator) Model() string { return "" }

var (
	strongProfile = scoring.Profile{ID: "p1", Skills: []string{"Go", "Postgres"}, Domains: []string{"fintech"}, ExperienceLevel: "senior"}
	job           = scoring.JobPosting{
		ID:              "j1",
		Title:           "Backend Engineer",
		Company:         "Acme",
		Skills:          []string{"go", "postgres"},
		Domains:         []string{"fintech"},
		ExperienceLevel: "Senior",
	}
)

func TestGenerateAINudge(t *testing.T) {
	gen := &countingGenerator{text: `{"headline": "Refer a Go dev to Acme", "body": "Your network has a great fit."}`}
	svc := NewService(orchestrator.New(gen, nil, nil, orchestrator.Config{Enabled: true}, nil, nil), nil)

	out := svc.Generate(context.Background(), strongProfile, job, Options{Scope: "acme"})
	require.NotNil(t, out.Nudge)

	assert.Equal(t, orchestrator.SourceAI, out.Source)
	assert.Equal(t, "Refer a Go dev to Acme", out.Nudge.Headline)
	assert.Equal(t, "Your network has a great fit.", out.Nudge.Body)
	assert.Equal(t, 100, out.Nudge.MatchScore)
	assert.Equal(t, scoring.TierHigh, out.Nudge.Tier)
	assert.Equal(t, "j1", out.Nudge.JobID)
	assert.Len(t, out.Nudge.Why, 3)
	assert.Equal(t, scoring.PresetNetworkFit, out.Breakdown.Preset)
}

func TestGenerateFallbackNudge(t *testing.T) {
	gen := &countingGenerator{text: "not json"}
	svc := NewService(orchestrator.New(gen, nil, nil, orchestrator.Config{Enabled: true}, nil, nil), nil)

	profile := scoring.Profile{Skills: []string{"go"}, Domains: []string{"fintech"}}
	out := svc.Generate(context.Background(), profile, job, Options{})
	require.NotNil(t, out.Nudge)

	assert.Equal(t, orchestrator.SourceStatic, out.Source)
	assert.Equal(t, orchestrator.SourceStatic, out.Nudge.Source)
	assert.Equal(t, scoring.TierMedium, out.Nudge.Tier)
	assert.Equal(t, "Worth a look: Backend Engineer at Acme", out.Nudge.Headline)
	assert.Contains(t, out.Nudge.Body, out.Nudge.Why[0])
}

func TestGenerateSuppressesLowTier(t *testing.T) {
	gen := &countingGenerator{text: `{"headline": "x", "body": "y"}`}
	svc := NewService(orchestrator.New(gen, nil, nil, orchestrator.Config{Enabled: true}, nil, nil), nil)

	out := svc.Generate(context.Background(), scoring.Profile{Skills: []string{"cobol"}}, job, Options{})

	assert.Nil(t, out.Nudge)
	assert.Equal(t, orchestrator.SourceStatic, out.Source)
	assert.Equal(t, scoring.TierLow, out.Breakdown.Tier)
	assert.Equal(t, int64(0), gen.calls.Load())
}

func TestRank(t *testing.T) {
	profile := scoring.Profile{Skills: []string{"go", "sql"}, ExperienceLevel: "mid"}
	jobs := []scoring.JobPosting{
		{ID: "c", Skills: []string{"go", "rust"}},
		{ID: "b", Skills: []string{"go", "sql"}, ExperienceLevel: "mid"},
		{ID: "a", Skills: []string{"sql", "java"}},
		{ID: "d", Skills: []string{"haskell"}, Domains: []string{"x"}, ExperienceLevel: "mid"},
	}

	ranked := Rank(profile, jobs, scoring.PresetNetworkFit)
	ids := make([]string, len(ranked))
	for i, r := range ranked {
		ids[i] = r.Job.ID
	}

	// b=70, then a and c tie on overall and skill match, then d=20.
	assert.Equal(t, []string{"b", "a", "c", "d"}, ids)
	assert.Equal(t, 70, ranked[0].Breakdown.Overall)
	assert.Empty(t, Rank(profile, nil, scoring.PresetNetworkFit))
}
