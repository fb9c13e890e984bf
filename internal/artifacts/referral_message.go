package artifacts

import (
	"fmt"
	"strings"

	"github.com/spigell/referral-matcher/internal/ai"
)

const defaultTone = "Friendly"

var referralMessagePrompt = loadPrompt(OpReferralMessage)

type ReferralMessageInput struct {
	CandidateName string   `json:"candidateName" validate:"required"`
	ReferrerName  string   `json:"referrerName" validate:"required"`
	JobTitle      string   `json:"jobTitle" validate:"required"`
	Company       string   `json:"company" validate:"required"`
	Reasons       []string `json:"reasons"`
	Tone          string   `json:"tone"`
	Note          string   `json:"note"`
}

func prepareReferralMessage(inputs map[string]any) (Prepared, error) {
	var in ReferralMessageInput
	if err := decode(inputs, &in); err != nil {
		return Prepared{}, err
	}
	return ReferralMessage(in), nil
}

// ReferralMessage drafts the message a referrer sends about a candidate.
func ReferralMessage(in ReferralMessageInput) Prepared {
	tone := sanitizeLine(in.Tone, 40)
	if tone == "" {
		tone = defaultTone
	}

	prompt := render(referralMessagePrompt, map[string]string{
		"CANDIDATE_NAME": sanitizeLine(in.CandidateName, maxLineRunes),
		"REFERRER_NAME":  sanitizeLine(in.ReferrerName, maxLineRunes),
		"JOB_TITLE":      sanitizeLine(in.JobTitle, maxLineRunes),
		"COMPANY":        sanitizeLine(in.Company, maxLineRunes),
		"TONE":           tone,
		"REASONS":        bulletLines(in.Reasons),
		"NOTE":           sanitizeInstructions(in.Note),
	})

	return Prepared{
		Operation: OpReferralMessage,
		Inputs:    in,
		Call:      ai.Request{Prompt: prompt, Temperature: 0.7, MaxTokens: 512},
		Parse:     parseFieldPair("subject", "body"),
		Fallback:  func() Artifact { return referralMessageFallback(in) },
	}
}

func referralMessageFallback(in ReferralMessageInput) Artifact {
	subject := fmt.Sprintf("Referral: %s for %s", strings.TrimSpace(in.CandidateName), strings.TrimSpace(in.JobTitle))

	var body strings.Builder
	fmt.Fprintf(&body, "Hi,\n\nI'd like to refer %s for the %s role at %s.",
		strings.TrimSpace(in.CandidateName), strings.TrimSpace(in.JobTitle), strings.TrimSpace(in.Company))

	reasons := make([]string, 0, len(in.Reasons))
	for _, r := range in.Reasons {
		if r = strings.TrimSpace(r); r != "" {
			reasons = append(reasons, r)
		}
	}
	if len(reasons) > 0 {
		body.WriteString(" A few reasons I think they're a strong fit:\n")
		for _, r := range reasons {
			body.WriteString("\n- " + r)
		}
		body.WriteString("\n")
	}
	fmt.Fprintf(&body, "\nHappy to share more context.\n\nBest,\n%s", strings.TrimSpace(in.ReferrerName))

	return Artifact{
		Text:   body.String(),
		Fields: map[string]string{"subject": subject, "body": body.String()},
	}
}

// parseFieldPair accepts an object carrying two non-empty string fields. The
// second field is also exposed as the artifact text.
func parseFieldPair(first, second string) func(string) (Artifact, error) {
	return func(raw string) (Artifact, error) {
		data, err := ai.DecodeObject(raw)
		if err != nil {
			return Artifact{}, err
		}

		a := ai.CoerceString(data[first])
		b := ai.CoerceString(data[second])
		if a == "" || b == "" {
			return Artifact{}, fmt.Errorf("%w: %q and %q are required", ai.ErrInvalidOutput, first, second)
		}

		return Artifact{Text: b, Fields: map[string]string{first: a, second: b}}, nil
	}
}
