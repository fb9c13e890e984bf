package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Preset selects one of the statically defined weight sets.
type Preset string

const (
	// PresetNetworkFit is the lightweight "fit for my network" score.
	PresetNetworkFit Preset = "network-fit"
	// PresetCandidateRank is the recruiter-facing candidate ranking score.
	PresetCandidateRank Preset = "candidate-rank"
)

const weightTolerance = 1e-9

// Weight is a single factor weight within a preset.
type Weight struct {
	Factor Factor
	Value  float64
}

var presetWeights = map[Preset][]Weight{
	PresetNetworkFit: {
		{Factor: FactorSkill, Value: 0.5},
		{Factor: FactorDomain, Value: 0.3},
		{Factor: FactorExperience, Value: 0.2},
	},
	PresetCandidateRank: {
		{Factor: FactorSkill, Value: 0.4},
		{Factor: FactorCompany, Value: 0.2},
		{Factor: FactorIndustry, Value: 0.15},
		{Factor: FactorExperience, Value: 0.15},
		{Factor: FactorLocation, Value: 0.10},
	},
}

// Presets returns all known presets in a stable order.
func Presets() []Preset {
	out := make([]Preset, 0, len(presetWeights))
	for p := range presetWeights {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParsePreset resolves a preset name. An empty name selects network-fit.
func ParsePreset(name string) (Preset, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return PresetNetworkFit, nil
	}
	p := Preset(name)
	if _, ok := presetWeights[p]; !ok {
		return "", fmt.Errorf("unknown scoring preset %q", name)
	}
	return p, nil
}

// Weights returns a copy of the preset's weights.
func (p Preset) Weights() []Weight {
	ws := presetWeights[p]
	out := make([]Weight, len(ws))
	copy(out, ws)
	return out
}

func (p Preset) String() string { return string(p) }

// ValidatePresets checks every preset: weights must be positive, factors
// unique, and the sum equal to 1.0. It is called once at startup.
func ValidatePresets() error {
	for _, p := range Presets() {
		if err := validateWeights(presetWeights[p]); err != nil {
			return fmt.Errorf("preset %s: %w", p, err)
		}
	}
	return nil
}

func validateWeights(ws []Weight) error {
	if len(ws) == 0 {
		return fmt.Errorf("no weights defined")
	}

	seen := make(map[Factor]struct{}, len(ws))
	sum := 0.0
	for _, w := range ws {
		if w.Value <= 0 || w.Value > 1 {
			return fmt.Errorf("weight for %s out of range: %v", w.Factor, w.Value)
		}
		if _, dup := seen[w.Factor]; dup {
			return fmt.Errorf("duplicate factor %s", w.Factor)
		}
		seen[w.Factor] = struct{}{}
		sum += w.Value
	}

	if math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("weights sum to %v, expected 1.0", sum)
	}
	return nil
}
