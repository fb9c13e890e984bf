package artifacts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spigell/referral-matcher/internal/ai"
	"github.com/spigell/referral-matcher/internal/fingerprint"
	"github.com/spigell/referral-matcher/internal/scoring"
)

// TopReasonCount is how many score reasons a nudge explains.
const TopReasonCount = 3

var nudgePrompt = loadPrompt(OpNudge)

type NudgeInput struct {
	Profile scoring.Profile    `json:"profile"`
	Job     scoring.JobPosting `json:"job"`
	Preset  string             `json:"preset,omitempty"`
	Context string             `json:"context,omitempty"`
}

func prepareNudgeFromMap(inputs map[string]any) (Prepared, error) {
	var in NudgeInput
	if err := decode(inputs, &in); err != nil {
		return Prepared{}, err
	}

	preset, err := scoring.ParsePreset(in.Preset)
	if err != nil {
		return Prepared{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	in.Preset = preset.String()

	return Nudge(in, scoring.Score(in.Profile, in.Job, preset)), nil
}

// Nudge writes a short recommendation for a scored match. The breakdown must
// be the score of in.Profile against in.Job.
func Nudge(in NudgeInput, breakdown scoring.Breakdown) Prepared {
	reasons := Explanations(breakdown)

	prompt := render(nudgePrompt, map[string]string{
		"JOB_TITLE":      sanitizeLine(in.Job.Title, maxLineRunes),
		"COMPANY":        sanitizeLine(in.Job.Company, maxLineRunes),
		"SCORE":          strconv.Itoa(breakdown.Overall),
		"TIER":           breakdown.Tier.Label(),
		"MATCHED_SKILLS": sanitizeLine(listOrNone(breakdown.MatchedSkills), maxLineRunes),
		"MISSING_SKILLS": sanitizeLine(listOrNone(breakdown.MissingSkills), maxLineRunes),
		"REASONS":        bulletLines(reasons),
		"CONTEXT":        sanitizeInstructions(in.Context),
	})

	return Prepared{
		Operation: OpNudge,
		Inputs:    nudgeKey(in),
		Call:      ai.Request{Prompt: prompt, Temperature: 0.6, MaxTokens: 256},
		Parse:     parseFieldPair("headline", "body"),
		Fallback:  func() Artifact { return nudgeFallback(in.Job, breakdown, reasons) },
	}
}

// nudgeKey is in with the unordered profile and job fields canonicalized.
func nudgeKey(in NudgeInput) NudgeInput {
	in.Profile.Skills = fingerprint.Set(in.Profile.Skills)
	in.Profile.PastCompanies = fingerprint.Set(in.Profile.PastCompanies)
	in.Profile.Domains = fingerprint.Set(in.Profile.Domains)
	in.Profile.Industries = fingerprint.Set(in.Profile.Industries)
	in.Job.Skills = fingerprint.Set(in.Job.Skills)
	in.Job.Domains = fingerprint.Set(in.Job.Domains)
	return in
}

// Explanations returns the explanations of the top reasons of b.
func Explanations(b scoring.Breakdown) []string {
	top := b.TopReasons(TopReasonCount)
	out := make([]string, 0, len(top))
	for _, r := range top {
		if r.Explanation != "" {
			out = append(out, r.Explanation)
		}
	}
	return out
}

func nudgeFallback(job scoring.JobPosting, b scoring.Breakdown, reasons []string) Artifact {
	role := strings.TrimSpace(job.Title)
	if company := strings.TrimSpace(job.Company); company != "" {
		role += " at " + company
	}

	var headline string
	switch b.Tier {
	case scoring.TierHigh:
		headline = "Strong match: " + role
	case scoring.TierMedium:
		headline = "Worth a look: " + role
	default:
		headline = "Possible match: " + role
	}

	body := fmt.Sprintf("This role scores %d/100 for you.", b.Overall)
	if len(reasons) > 0 {
		body += " " + strings.Join(reasons, ". ") + "."
	}

	return Artifact{Text: body, Fields: map[string]string{"headline": headline, "body": body}}
}
