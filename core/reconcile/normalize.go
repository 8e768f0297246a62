package reconcile

import (
	"strconv"
	"strings"

	"listing-harvester/core/record"
	"listing-harvester/core/utils"
)

// NewGradsPhrase is the source's wording for "no experience required".
const NewGradsPhrase = "Any (new grads ok)"

// Rule rewrites fields of a merged record in place. applied reports whether
// anything changed; miss describes input the rule could not interpret.
type Rule interface {
	Name() string
	Apply(fields record.Fields) (applied bool, miss string)
}

// ExperienceRule turns an experience phrase into a year count.
type ExperienceRule struct {
	// Field holds the phrase and receives the normalized value.
	Field string
	// Years receives the same value as a separate column.
	Years string
}

func (r ExperienceRule) Name() string { return "experience" }

func (r ExperienceRule) Apply(fields record.Fields) (bool, string) {
	raw, ok := fields[r.Field]
	if !ok || raw == nil {
		return false, ""
	}
	phrase := strings.TrimSpace(utils.ToString(raw))
	if phrase == "" {
		fields[r.Years] = ""
		return false, ""
	}

	if phrase == NewGradsPhrase {
		fields[r.Field] = "0"
		fields[r.Years] = "0"
		return true, ""
	}

	years := firstInteger(phrase)
	if years == "" {
		fields[r.Years] = ""
		return false, "no number in " + r.Field + " " + strconv.Quote(phrase)
	}
	fields[r.Field] = years
	fields[r.Years] = years
	return true, ""
}

// SalaryRule splits a salary range phrase into numeric bounds.
type SalaryRule struct {
	Field string
	Min   string
	Max   string
}

func (r SalaryRule) Name() string { return "salary" }

func (r SalaryRule) Apply(fields record.Fields) (bool, string) {
	raw, ok := fields[r.Field]
	if !ok || raw == nil {
		return false, ""
	}
	phrase := strings.TrimSpace(utils.ToString(raw))
	if phrase == "" {
		return false, ""
	}

	nums := parseRange(phrase)
	switch len(nums) {
	case 0:
		fields[r.Min] = ""
		fields[r.Max] = ""
		return false, "no number in " + r.Field + " " + strconv.Quote(phrase)
	case 1:
		fields[r.Min] = nums[0]
		fields[r.Max] = nums[0]
	default:
		fields[r.Min] = nums[0]
		fields[r.Max] = nums[1]
	}
	return true, ""
}

// DefaultRules are the rules applied to job postings.
func DefaultRules() []Rule {
	return []Rule{
		ExperienceRule{Field: "minExperience", Years: "experience_years"},
		SalaryRule{Field: "salaryRange", Min: "salary_min", Max: "salary_max"},
	}
}

// firstInteger returns the first run of ASCII digits in s.
func firstInteger(s string) string {
	start := -1
	for i, c := range s {
		if c >= '0' && c <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			return s[start:i]
		}
	}
	if start >= 0 {
		return s[start:]
	}
	return ""
}

// parseRange keeps digits and dots of each dash-separated part:
// "$100K - $165K" -> ["100", "165"]. Unit suffixes are dropped, not scaled.
func parseRange(s string) []string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '-' || r == '–' || r == '—':
			return '-'
		case r == '.' || (r >= '0' && r <= '9'):
			return r
		default:
			return -1
		}
	}, s)

	var out []string
	for _, part := range strings.Split(s, "-") {
		if part == "" {
			continue
		}
		f, err := strconv.ParseFloat(part, 64)
		if err != nil {
			continue
		}
		out = append(out, strconv.FormatFloat(f, 'f', -1, 64))
	}
	return out
}
