package artifacts

import (
	"strings"
)

const (
	maxLineRunes             = 200
	maxUserInstructionRunes  = 500
	userInstructionsNoneLine = "  - none"
)

var bracketReplacer = strings.NewReplacer("[", "(", "]", ")", "{{", "(", "}}", ")")

// sanitizeLine flattens free text into a single prompt line.
func sanitizeLine(s string, limit int) string {
	s = bracketReplacer.Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	return truncateRunes(s, limit)
}

// sanitizeInstructions renders caller-supplied instructions as an indented
// list, one item per non-empty line.
func sanitizeInstructions(s string) string {
	s = truncateRunes(strings.TrimSpace(s), maxUserInstructionRunes)

	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = sanitizeLine(line, maxUserInstructionRunes)
		if line != "" {
			lines = append(lines, "  - "+line)
		}
	}
	if len(lines) == 0 {
		return userInstructionsNoneLine
	}
	return strings.Join(lines, "\n")
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if limit <= 0 || len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
