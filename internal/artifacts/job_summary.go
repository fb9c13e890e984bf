package artifacts

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/spigell/referral-matcher/internal/ai"
)

const (
	minSummaryBullets = 3
	maxSummaryBullets = 5
)

var jobSummaryPrompt = loadPrompt(OpJobSummary)

type JobSummaryInput struct {
	JobTitle    string `json:"jobTitle" validate:"required"`
	Description string `json:"description" validate:"required"`
}

func prepareJobSummary(inputs map[string]any) (Prepared, error) {
	var in JobSummaryInput
	if err := decode(inputs, &in); err != nil {
		return Prepared{}, err
	}
	return JobSummary(in), nil
}

// JobSummary summarises a job description into short bullets.
func JobSummary(in JobSummaryInput) Prepared {
	prompt := render(jobSummaryPrompt, map[string]string{
		"JOB_TITLE":   sanitizeLine(in.JobTitle, maxLineRunes),
		"DESCRIPTION": strings.TrimSpace(in.Description),
	})

	return Prepared{
		Operation: OpJobSummary,
		Inputs:    in,
		Call:      ai.Request{Prompt: prompt, Temperature: 0.2, MaxTokens: 512},
		Parse:     parseJobSummary,
		Fallback:  func() Artifact { return jobSummaryFallback(in) },
	}
}

func parseJobSummary(raw string) (Artifact, error) {
	data, err := ai.DecodeObject(raw)
	if err != nil {
		return Artifact{}, err
	}

	bullets := ai.CoerceStrings(data["bullets"])
	if len(bullets) < minSummaryBullets {
		return Artifact{}, fmt.Errorf("%w: expected at least %d bullets, got %d", ai.ErrInvalidOutput, minSummaryBullets, len(bullets))
	}
	if len(bullets) > maxSummaryBullets {
		bullets = bullets[:maxSummaryBullets]
	}

	return Artifact{Bullets: bullets, Text: strings.Join(bullets, "\n")}, nil
}

func jobSummaryFallback(in JobSummaryInput) Artifact {
	bullets := sentences(in.Description, maxSummaryBullets)
	if len(bullets) == 0 {
		bullets = []string{strings.TrimSpace(in.JobTitle)}
	}
	return Artifact{Bullets: bullets, Text: strings.Join(bullets, "\n")}
}

// sentences returns at most limit sentences of text. A sentence ends at
// terminal punctuation followed by whitespace, or at a line break.
func sentences(text string, limit int) []string {
	var (
		out     []string
		current strings.Builder
	)

	flush := func() {
		s := strings.Join(strings.Fields(current.String()), " ")
		s = strings.TrimLeft(s, "-*• ")
		if s != "" {
			out = append(out, s)
		}
		current.Reset()
	}

	runes := []rune(text)
	for i, r := range runes {
		if len(out) >= limit {
			break
		}
		if r == '\n' {
			flush()
			continue
		}
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
				flush()
			}
		}
	}
	if len(out) < limit {
		flush()
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
