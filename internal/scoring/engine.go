package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Score computes the breakdown for profile against job using the preset.
// It never fails: missing inputs contribute zero. An unknown preset yields
// a zero overall score with no reasons; callers resolve presets with
// ParsePreset beforehand.
func Score(profile Profile, job JobPosting, preset Preset) Breakdown {
	matched, missing := intersect(job.Skills, profile.Skills)

	b := Breakdown{
		Preset:          preset,
		SkillMatch:      ratio(len(matched), len(matched)+len(missing)),
		DomainMatch:     overlap(job.Domains, profile.Domains),
		ExperienceMatch: boolScore(sameValue(job.ExperienceLevel, profile.ExperienceLevel)),
		CompanyMatch:    boolScore(contains(profile.PastCompanies, job.Company)),
		IndustryMatch:   boolScore(contains(profile.Industries, job.Industry)),
		LocationMatch:   boolScore(job.Remote || sameValue(job.Location, profile.Location)),
		MatchedSkills:   matched,
		MissingSkills:   missing,
	}

	weights := presetWeights[preset]
	reasons := make([]Reason, 0, len(weights))
	total := 0.0
	for _, w := range weights {
		sub := b.Subscore(w.Factor)
		total += w.Value * float64(sub)
		reasons = append(reasons, Reason{
			Factor:      w.Factor,
			Weight:      w.Value,
			Subscore:    sub,
			Explanation: explain(w.Factor, sub, profile, job, &b),
		})
	}

	sort.SliceStable(reasons, func(i, j int) bool {
		ci, cj := reasons[i].Contribution(), reasons[j].Contribution()
		if ci != cj {
			return ci > cj
		}
		if reasons[i].Weight != reasons[j].Weight {
			return reasons[i].Weight > reasons[j].Weight
		}
		return reasons[i].Factor < reasons[j].Factor
	})

	b.Overall = clamp(int(math.Round(total)))
	b.Tier = TierFor(b.Overall)
	b.Reasons = reasons
	return b
}

func explain(f Factor, sub int, profile Profile, job JobPosting, b *Breakdown) string {
	switch f {
	case FactorSkill:
		total := len(b.MatchedSkills) + len(b.MissingSkills)
		if total == 0 {
			return "The job lists no required skills"
		}
		if len(b.MatchedSkills) == 0 {
			return fmt.Sprintf("None of the %d required skills match", total)
		}
		return fmt.Sprintf("Matches %d of %d required skills: %s",
			len(b.MatchedSkills), total, strings.Join(b.MatchedSkills, ", "))
	case FactorDomain:
		if len(normalizeSet(job.Domains)) == 0 {
			return "The job lists no domains"
		}
		return fmt.Sprintf("Domain overlap %d%%", sub)
	case FactorExperience:
		if sub == 100 {
			return fmt.Sprintf("Experience level matches (%s)", normalize(job.ExperienceLevel))
		}
		if normalize(job.ExperienceLevel) == "" {
			return "The job does not state an experience level"
		}
		return fmt.Sprintf("Experience level differs: job wants %s", normalize(job.ExperienceLevel))
	case FactorCompany:
		if sub == 100 {
			return fmt.Sprintf("Previously worked at %s", strings.TrimSpace(job.Company))
		}
		return "No prior employment at the hiring company"
	case FactorIndustry:
		if sub == 100 {
			return fmt.Sprintf("Has %s industry background", strings.TrimSpace(job.Industry))
		}
		return "No matching industry background"
	case FactorLocation:
		if job.Remote {
			return "Role is remote"
		}
		if sub == 100 {
			return fmt.Sprintf("Located in %s", strings.TrimSpace(job.Location))
		}
		return "Location differs from the job"
	default:
		return ""
	}
}

func boolScore(ok bool) int {
	if ok {
		return 100
	}
	return 0
}

func ratio(n, d int) int {
	if d == 0 {
		return 0
	}
	return clamp(int(math.Round(100 * float64(n) / float64(d))))
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// overlap is the share of required values present in have, 0-100.
func overlap(required, have []string) int {
	matched, missing := intersect(required, have)
	return ratio(len(matched), len(matched)+len(missing))
}

// intersect splits the unique required values into matched and missing,
// preserving their first-seen order.
func intersect(required, have []string) (matched, missing []string) {
	haveSet := make(map[string]struct{}, len(have))
	for _, h := range have {
		if n := normalize(h); n != "" {
			haveSet[n] = struct{}{}
		}
	}

	seen := make(map[string]struct{}, len(required))
	for _, r := range required {
		n := normalize(r)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		if _, ok := haveSet[n]; ok {
			matched = append(matched, n)
		} else {
			missing = append(missing, n)
		}
	}
	return matched, missing
}

func contains(values []string, v string) bool {
	n := normalize(v)
	if n == "" {
		return false
	}
	for _, candidate := range values {
		if normalize(candidate) == n {
			return true
		}
	}
	return false
}

func sameValue(a, b string) bool {
	na := normalize(a)
	return na != "" && na == normalize(b)
}

func normalizeSet(values []string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		if n := normalize(v); n != "" {
			out[n] = struct{}{}
		}
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
