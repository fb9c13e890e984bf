// Package scoring computes deterministic, explainable compatibility scores
// between a candidate profile and a job posting.
package scoring

// Profile is a read-only snapshot of a candidate or network member.
type Profile struct {
	ID                string   `json:"id,omitempty"`
	Name              string   `json:"name,omitempty"`
	Skills            []string `json:"skills,omitempty"`
	PastCompanies     []string `json:"pastCompanies,omitempty"`
	Domains           []string `json:"domains,omitempty"`
	Industries        []string `json:"industries,omitempty"`
	ExperienceLevel   string   `json:"experienceLevel,omitempty"`
	YearsOfExperience float64  `json:"yearsOfExperience,omitempty"`
	Location          string   `json:"location,omitempty"`
}

// JobPosting is a read-only snapshot of a job.
type JobPosting struct {
	ID              string   `json:"id,omitempty"`
	Title           string   `json:"title,omitempty"`
	Company         string   `json:"company,omitempty"`
	Skills          []string `json:"skills,omitempty"`
	Domains         []string `json:"domains,omitempty"`
	Industry        string   `json:"industry,omitempty"`
	ExperienceLevel string   `json:"experienceLevel,omitempty"`
	Description     string   `json:"description,omitempty"`
	Location        string   `json:"location,omitempty"`
	Remote          bool     `json:"remote,omitempty"`
}

// Factor names a single scoring dimension.
type Factor string

const (
	FactorSkill      Factor = "skillMatch"
	FactorDomain     Factor = "domainMatch"
	FactorExperience Factor = "experienceMatch"
	FactorCompany    Factor = "companyMatch"
	FactorIndustry   Factor = "industryMatch"
	FactorLocation   Factor = "locationMatch"
)

// Reason explains how one factor contributed to the overall score.
type Reason struct {
	Factor      Factor  `json:"factor"`
	Weight      float64 `json:"weight"`
	Subscore    int     `json:"subscore"`
	Explanation string  `json:"explanation"`
}

// Contribution is the weighted share of the reason in the overall score.
func (r Reason) Contribution() float64 {
	return r.Weight * float64(r.Subscore)
}

// Breakdown is the full result of scoring a profile against a job.
type Breakdown struct {
	Preset          Preset   `json:"preset"`
	SkillMatch      int      `json:"skillMatch"`
	DomainMatch     int      `json:"domainMatch"`
	ExperienceMatch int      `json:"experienceMatch"`
	CompanyMatch    int      `json:"companyMatch"`
	IndustryMatch   int      `json:"industryMatch"`
	LocationMatch   int      `json:"locationMatch"`
	Overall         int      `json:"overall"`
	Tier            Tier     `json:"tier"`
	Reasons         []Reason `json:"reasons"`

	// MatchedSkills lists job skills the profile covers, in job order.
	MatchedSkills []string `json:"matchedSkills,omitempty"`
	// MissingSkills lists job skills the profile lacks, in job order.
	MissingSkills []string `json:"missingSkills,omitempty"`
}

// Subscore returns the sub-score recorded for the factor.
func (b *Breakdown) Subscore(f Factor) int {
	switch f {
	case FactorSkill:
		return b.SkillMatch
	case FactorDomain:
		return b.DomainMatch
	case FactorExperience:
		return b.ExperienceMatch
	case FactorCompany:
		return b.CompanyMatch
	case FactorIndustry:
		return b.IndustryMatch
	case FactorLocation:
		return b.LocationMatch
	default:
		return 0
	}
}

// TopReasons returns at most n reasons, highest contribution first.
func (b *Breakdown) TopReasons(n int) []Reason {
	if n <= 0 {
		return nil
	}
	if n > len(b.Reasons) {
		n = len(b.Reasons)
	}
	out := make([]Reason, n)
	copy(out, b.Reasons[:n])
	return out
}
