// Package nudge turns score breakdowns into ranked, explainable
// recommendations.
package nudge

import (
	"context"
	"sort"
	"strings"

	"github.com/spigell/referral-matcher/internal/artifacts"
	"github.com/spigell/referral-matcher/internal/orchestrator"
	"github.com/spigell/referral-matcher/internal/scoring"
	"go.uber.org/zap"
)

// Nudge is a recommendation to act on a job.
type Nudge struct {
	Headline   string              `json:"headline"`
	Body       string              `json:"body"`
	MatchScore int                 `json:"matchScore"`
	Tier       scoring.Tier        `json:"tier"`
	Why        []string            `json:"why"`
	JobID      string              `json:"jobId"`
	Source     orchestrator.Source `json:"source"`
}

// Outcome is the result of asking for a nudge. Nudge is nil when the match
// is too weak to recommend.
type Outcome struct {
	Nudge     *Nudge              `json:"nudge"`
	Source    orchestrator.Source `json:"source"`
	Breakdown scoring.Breakdown   `json:"breakdown"`
}

// Options carries the request context of a nudge.
type Options struct {
	Preset scoring.Preset
	// Scope is the billing scope for the AI call.
	Scope string
	// Note is free-text guidance from the caller, passed to the model.
	Note string
}

// Generator is the part of the orchestrator a Service needs.
type Generator interface {
	Generate(ctx context.Context, req orchestrator.Request) orchestrator.Result
}

type Service struct {
	generator Generator
	logger    *zap.Logger
}

func NewService(generator Generator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{generator: generator, logger: logger}
}

// Generate scores profile against job and, unless the tier is LOW, writes a
// nudge for it.
func (s *Service) Generate(ctx context.Context, profile scoring.Profile, job scoring.JobPosting, opts Options) Outcome {
	preset := opts.Preset
	if preset == "" {
		preset = scoring.PresetNetworkFit
	}

	breakdown := scoring.Score(profile, job, preset)
	if breakdown.Tier == scoring.TierLow {
		s.logger.Debug("nudge suppressed for low tier",
			zap.String("job_id", job.ID),
			zap.String("profile_id", profile.ID),
			zap.Int("overall", breakdown.Overall),
		)
		return Outcome{Source: orchestrator.SourceStatic, Breakdown: breakdown}
	}

	prep := artifacts.Nudge(artifacts.NudgeInput{
		Profile: profile,
		Job:     job,
		Preset:  preset.String(),
		Context: opts.Note,
	}, breakdown)
	res := s.generator.Generate(ctx, orchestrator.FromPrepared(prep, opts.Scope))

	headline := strings.TrimSpace(res.Payload.Fields["headline"])
	if headline == "" {
		headline = strings.TrimSpace(job.Title)
	}
	body := strings.TrimSpace(res.Payload.Fields["body"])
	if body == "" {
		body = res.Payload.Text
	}

	return Outcome{
		Nudge: &Nudge{
			Headline:   headline,
			Body:       body,
			MatchScore: breakdown.Overall,
			Tier:       breakdown.Tier,
			Why:        artifacts.Explanations(breakdown),
			JobID:      job.ID,
			Source:     res.Source,
		},
		Source:    res.Source,
		Breakdown: breakdown,
	}
}

// Ranked is a job with its score.
type Ranked struct {
	Job       scoring.JobPosting `json:"job"`
	Breakdown scoring.Breakdown  `json:"breakdown"`
}

// Rank scores every job for profile and orders them by overall score, then
// skill match, then job id.
func Rank(profile scoring.Profile, jobs []scoring.JobPosting, preset scoring.Preset) []Ranked {
	out := make([]Ranked, len(jobs))
	for i, job := range jobs {
		out[i] = Ranked{Job: job, Breakdown: scoring.Score(profile, job, preset)}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Breakdown, out[j].Breakdown
		if a.Overall != b.Overall {
			return a.Overall > b.Overall
		}
		if a.SkillMatch != b.SkillMatch {
			return a.SkillMatch > b.SkillMatch
		}
		return out[i].Job.ID < out[j].Job.ID
	})
	return out
}
