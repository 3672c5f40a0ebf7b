package defects

import "qualityline/internal/sampling"

// Tally counts defects per severity class.
type Tally struct {
	Critical int `json:"critical"`
	Major    int `json:"major"`
	Minor    int `json:"minor"`
}

// Add increments the counter for sev.
func (t *Tally) Add(sev sampling.Severity) {
	switch sev {
	case sampling.Critical:
		t.Critical++
	case sampling.Major:
		t.Major++
	case sampling.Minor:
		t.Minor++
	}
}

// Plus returns the sum of two tallies. Partial tallies are combined only
// through Plus.
func (t Tally) Plus(o Tally) Tally {
	return Tally{
		Critical: t.Critical + o.Critical,
		Major:    t.Major + o.Major,
		Minor:    t.Minor + o.Minor,
	}
}

func (t Tally) Count(sev sampling.Severity) int {
	switch sev {
	case sampling.Critical:
		return t.Critical
	case sampling.Major:
		return t.Major
	case sampling.Minor:
		return t.Minor
	}
	return 0
}

func (t Tally) Total() int { return t.Critical + t.Major + t.Minor }
