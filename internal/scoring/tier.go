package scoring

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tier is the coarse bucket derived from an overall score.
type Tier int

const (
	TierLow Tier = iota
	TierMedium
	TierHigh
)

const (
	highThreshold   = 70
	mediumThreshold = 40
)

// TierFor maps an overall score to its tier. Lower bounds are inclusive.
func TierFor(overall int) Tier {
	switch {
	case overall >= highThreshold:
		return TierHigh
	case overall >= mediumThreshold:
		return TierMedium
	default:
		return TierLow
	}
}

func (t Tier) String() string {
	switch t {
	case TierHigh:
		return "HIGH"
	case TierMedium:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// Label returns the lowercase label used by the network-facing UI.
func (t Tier) Label() string {
	switch t {
	case TierHigh:
		return "good"
	case TierMedium:
		return "medium"
	default:
		return "low"
	}
}

func (t Tier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Tier) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "good":
		*t = TierHigh
	case "medium":
		*t = TierMedium
	case "low":
		*t = TierLow
	default:
		return fmt.Errorf("unknown tier %q", s)
	}
	return nil
}
