// Package compliance turns an extracted certificate into ordered
// expected-vs-actual line items against a set of coverage requirements.
package compliance

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/davidahmann/coitrack/pkg/types"
)

// DefaultRequirements apply when a document has no template.
var DefaultRequirements = []types.Requirement{
	{PolicyType: "general_liability", MinEachOccurrence: 1_000_000, MinAggregate: 2_000_000},
	{PolicyType: "auto_liability", MinEachOccurrence: 1_000_000},
	{PolicyType: "workers_compensation"},
}

type Result struct {
	Items              []types.ComplianceLineItem
	EarliestExpiration *time.Time
}

// Evaluate checks payload against reqs as of now. An empty reqs uses
// DefaultRequirements.
func Evaluate(payload types.VerificationPayload, reqs []types.Requirement, now time.Time) Result {
	if len(reqs) == 0 {
		reqs = DefaultRequirements
	}

	var res Result
	for _, p := range payload.Policies {
		if p.ExpirationDate.IsZero() {
			continue
		}
		exp := p.ExpirationDate
		if res.EarliestExpiration == nil || exp.Before(*res.EarliestExpiration) {
			res.EarliestExpiration = &exp
		}
	}

	today := dateOnly(now)
	for _, req := range reqs {
		label := Label(req.PolicyType)
		policy, ok := findPolicy(payload.Policies, req.PolicyType)
		if !ok {
			res.Items = append(res.Items, types.ComplianceLineItem{
				Requirement: label + " coverage",
				Expected:    "Present",
				Actual:      "Missing",
				Passed:      false,
			})
			continue
		}

		confidence := policy.Confidence
		res.Items = append(res.Items, types.ComplianceLineItem{
			Requirement: label + " coverage",
			Expected:    "Present",
			Actual:      "Present",
			Passed:      true,
			Confidence:  &confidence,
		})
		if req.MinEachOccurrence > 0 {
			res.Items = append(res.Items, limitItem(label+" each occurrence", req.MinEachOccurrence, policy.EachOccurrence, confidence))
		}
		if req.MinAggregate > 0 {
			res.Items = append(res.Items, limitItem(label+" aggregate", req.MinAggregate, policy.Aggregate, confidence))
		}

		active := !dateOnly(policy.ExpirationDate).Before(today)
		actual := "Expires " + policy.ExpirationDate.Format("2006-01-02")
		if !active {
			actual = "Expired " + policy.ExpirationDate.Format("2006-01-02")
		}
		res.Items = append(res.Items, types.ComplianceLineItem{
			Requirement: label + " policy period",
			Expected:    "Active",
			Actual:      actual,
			Passed:      active,
			Confidence:  &confidence,
		})
	}
	return res
}

// FormatUSD renders whole dollars with US grouping, e.g. $1,000,000.
func FormatUSD(amount int64) string {
	return message.NewPrinter(language.AmericanEnglish).Sprintf("$%d", amount)
}

// Label turns a policy type key such as general_liability into display text.
func Label(policyType string) string {
	return cases.Title(language.AmericanEnglish).String(strings.ReplaceAll(policyType, "_", " "))
}

func limitItem(requirement string, min, actual int64, confidence float64) types.ComplianceLineItem {
	return types.ComplianceLineItem{
		Requirement: requirement,
		Expected:    "≥ " + FormatUSD(min),
		Actual:      FormatUSD(actual),
		Passed:      actual >= min,
		Confidence:  &confidence,
	}
}

func findPolicy(policies []types.Policy, policyType string) (types.Policy, bool) {
	want := normalizeType(policyType)
	for _, p := range policies {
		if normalizeType(p.Type) == want {
			return p, true
		}
	}
	return types.Policy{}, false
}

func normalizeType(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "_")
	return strings.ReplaceAll(s, "-", "_")
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
