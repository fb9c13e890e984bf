package artifacts

import (
	"fmt"
	"strings"

	"github.com/spigell/referral-matcher/internal/ai"
	"github.com/spigell/referral-matcher/internal/fingerprint"
)

const (
	minInsights = 2
	maxInsights = 4
)

var contactInsightPrompt = loadPrompt(OpContactInsight)

type ContactInsightInput struct {
	ContactName     string   `json:"contactName" validate:"required"`
	Company         string   `json:"company" validate:"required"`
	SharedCompanies []string `json:"sharedCompanies"`
	SharedSkills    []string `json:"sharedSkills"`
}

func prepareContactInsight(inputs map[string]any) (Prepared, error) {
	var in ContactInsightInput
	if err := decode(inputs, &in); err != nil {
		return Prepared{}, err
	}
	return ContactInsight(in), nil
}

// ContactInsight suggests talking points for reaching out to a contact.
func ContactInsight(in ContactInsightInput) Prepared {
	in.SharedCompanies = fingerprint.Set(in.SharedCompanies)
	in.SharedSkills = fingerprint.Set(in.SharedSkills)

	prompt := render(contactInsightPrompt, map[string]string{
		"CONTACT_NAME":     sanitizeLine(in.ContactName, maxLineRunes),
		"COMPANY":          sanitizeLine(in.Company, maxLineRunes),
		"SHARED_COMPANIES": sanitizeLine(listOrNone(in.SharedCompanies), maxLineRunes),
		"SHARED_SKILLS":    sanitizeLine(listOrNone(in.SharedSkills), maxLineRunes),
	})

	return Prepared{
		Operation: OpContactInsight,
		Inputs:    in,
		Call:      ai.Request{Prompt: prompt, Temperature: 0.5, MaxTokens: 384},
		Parse:     parseContactInsight,
		Fallback:  func() Artifact { return contactInsightFallback(in) },
	}
}

func parseContactInsight(raw string) (Artifact, error) {
	data, err := ai.DecodeObject(raw)
	if err != nil {
		return Artifact{}, err
	}

	insights := ai.CoerceStrings(data["insights"])
	if len(insights) < minInsights {
		return Artifact{}, fmt.Errorf("%w: expected at least %d insights, got %d", ai.ErrInvalidOutput, minInsights, len(insights))
	}
	if len(insights) > maxInsights {
		insights = insights[:maxInsights]
	}
	return Artifact{Bullets: insights, Text: strings.Join(insights, "\n")}, nil
}

func contactInsightFallback(in ContactInsightInput) Artifact {
	name := strings.TrimSpace(in.ContactName)
	company := strings.TrimSpace(in.Company)

	var insights []string
	if len(in.SharedCompanies) > 0 {
		insights = append(insights, fmt.Sprintf("You and %s both worked at %s; open with that shared experience.", name, strings.Join(in.SharedCompanies, ", ")))
	}
	if len(in.SharedSkills) > 0 {
		insights = append(insights, fmt.Sprintf("You share skills in %s; ask how the team at %s uses them.", strings.Join(in.SharedSkills, ", "), company))
	}
	insights = append(insights, fmt.Sprintf("Ask %s what the hiring process at %s looks like and who owns the role.", name, company))

	return Artifact{Bullets: insights, Text: strings.Join(insights, "\n")}
}
