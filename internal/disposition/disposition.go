// Package disposition maps a defect tally and its Ac/Re limits to a verdict.
package disposition

import (
	"fmt"
	"strings"

	"qualityline/internal/defects"
	"qualityline/internal/sampling"
)

// Verdict is the outcome of an inspection run.
type Verdict string

const (
	Approved            Verdict = "APPROVED"
	Rejected            Verdict = "REJECTED"
	ConditionalApproval Verdict = "CONDITIONAL_APPROVAL"
)

func (v Verdict) Valid() bool {
	return v == Approved || v == Rejected || v == ConditionalApproval
}

// ClassResult is the per-severity outcome.
type ClassResult string

const (
	Pass ClassResult = "PASS"
	Fail ClassResult = "FAIL"
)

// Validation is the persisted per-class summary plus the overall verdict.
type Validation struct {
	Critical ClassResult `json:"critical"`
	Major    ClassResult `json:"major"`
	Minor    ClassResult `json:"minor"`
	Overall  Verdict     `json:"overall"`
}

// Decide applies the precedence rules: too many critical defects reject the
// lot outright, all classes within Ac approve it, anything else needs a
// conditional approval.
func Decide(tally defects.Tally, limits sampling.Limits) Verdict {
	if tally.Critical > limits.Critical.Ac {
		return Rejected
	}
	if tally.Major <= limits.Major.Ac && tally.Minor <= limits.Minor.Ac {
		return Approved
	}
	return ConditionalApproval
}

// Validate returns the per-class PASS/FAIL summary together with Decide's verdict.
func Validate(tally defects.Tally, limits sampling.Limits) Validation {
	return Validation{
		Critical: classResult(tally.Critical, limits.Critical),
		Major:    classResult(tally.Major, limits.Major),
		Minor:    classResult(tally.Minor, limits.Minor),
		Overall:  Decide(tally, limits),
	}
}

func classResult(count int, l sampling.Limit) ClassResult {
	if l.Accepts(count) {
		return Pass
	}
	return Fail
}

// For returns the class result for sev.
func (v Validation) For(sev sampling.Severity) ClassResult {
	switch sev {
	case sampling.Critical:
		return v.Critical
	case sampling.Major:
		return v.Major
	default:
		return v.Minor
	}
}

// CanRequestConditionalApproval reports whether the verdict allows a human
// override: only borderline results whose critical class passed.
func (v Validation) CanRequestConditionalApproval() bool {
	return v.Overall == ConditionalApproval && v.Critical == Pass
}

// Message explains the verdict in terms of counts against acceptance numbers.
func Message(v Validation, tally defects.Tally, limits sampling.Limits) string {
	switch v.Overall {
	case Approved:
		return "inspection approved: all classes within acceptance numbers"
	case Rejected:
		return fmt.Sprintf("inspection rejected: %d critical defect(s) found, acceptance number %d", tally.Critical, limits.Critical.Ac)
	case ConditionalApproval:
		var reasons []string
		if tally.Major > limits.Major.Ac {
			reasons = append(reasons, fmt.Sprintf("%d major defect(s) over Ac %d", tally.Major, limits.Major.Ac))
		}
		if tally.Minor > limits.Minor.Ac {
			reasons = append(reasons, fmt.Sprintf("%d minor defect(s) over Ac %d", tally.Minor, limits.Minor.Ac))
		}
		return "conditional approval required: " + strings.Join(reasons, " and ")
	}
	return "verdict undetermined"
}
