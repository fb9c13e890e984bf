// Package artifacts defines the AI-backed text artifacts the service can
// produce. Every operation has a prompt, a tolerant response parser with a
// minimum-viable-output check, and a deterministic fallback.
package artifacts

import (
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spigell/referral-matcher/internal/ai"
)

const (
	OpJobSummary      = "job-summary"
	OpReferralMessage = "referral-message"
	OpContactInsight  = "contact-insight"
	OpNudge           = "nudge"
)

var (
	// ErrUnknownOperation is returned for operation names outside the catalog.
	ErrUnknownOperation = errors.New("unknown artifact operation")
	// ErrInvalidInput is returned when operation inputs fail validation.
	ErrInvalidInput = errors.New("invalid artifact input")
)

//go:embed prompts/*.md
var promptFS embed.FS

var validate = validator.New()

// Artifact is the payload of an AI result.
type Artifact struct {
	Text    string            `json:"text,omitempty"`
	Bullets []string          `json:"bullets,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Prepared is a ready-to-run artifact request.
type Prepared struct {
	Operation string
	// Inputs are the decoded inputs the result is fingerprinted by.
	Inputs   any
	Call     ai.Request
	Parse    func(raw string) (Artifact, error)
	Fallback func() Artifact
}

type preparer func(inputs map[string]any) (Prepared, error)

var catalog = map[string]preparer{
	OpJobSummary:      prepareJobSummary,
	OpReferralMessage: prepareReferralMessage,
	OpContactInsight:  prepareContactInsight,
	OpNudge:           prepareNudgeFromMap,
}

// Operations returns the catalog operation names, sorted.
func Operations() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Known reports whether the operation exists.
func Known(operation string) bool {
	_, ok := catalog[operation]
	return ok
}

// Prepare decodes and validates untyped inputs for operation.
func Prepare(operation string, inputs map[string]any) (Prepared, error) {
	prep, ok := catalog[operation]
	if !ok {
		return Prepared{}, fmt.Errorf("%w: %q", ErrUnknownOperation, operation)
	}
	if inputs == nil {
		inputs = map[string]any{}
	}
	return prep(inputs)
}

func decode(inputs map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	if err := dec.Decode(inputs); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func loadPrompt(operation string) string {
	data, err := promptFS.ReadFile("prompts/" + operation + ".md")
	if err != nil {
		panic(fmt.Sprintf("missing prompt template for %s: %v", operation, err))
	}
	return string(data)
}

// render fills {{KEY}} placeholders in one pass, so values are never
// expanded again.
func render(template string, values map[string]string) string {
	pairs := make([]string, 0, 2*len(values))
	for key, value := range values {
		pairs = append(pairs, "{{"+key+"}}", value)
	}
	return strings.TrimSpace(strings.NewReplacer(pairs...).Replace(template))
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

func bulletLines(items []string) string {
	if len(items) == 0 {
		return "  - none"
	}
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "  - " + sanitizeLine(item, maxLineRunes)
	}
	return strings.Join(lines, "\n")
}
