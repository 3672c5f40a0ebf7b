package sampling

// SeverityAQLs assigns a curve to each defect class.
type SeverityAQLs struct {
	Critical AQL `json:"critical"`
	Major    AQL `json:"major"`
	Minor    AQL `json:"minor"`
}

// DefaultAQLs is the usual 0 / 2.5 / 4.0 split.
var DefaultAQLs = SeverityAQLs{Critical: AQLZero, Major: AQL2_5, Minor: AQL4_0}

// For returns the curve assigned to sev.
func (s SeverityAQLs) For(sev Severity) AQL {
	switch sev {
	case Critical:
		return s.Critical
	case Major:
		return s.Major
	default:
		return s.Minor
	}
}

// Limits holds the Ac/Re pair per severity class.
type Limits struct {
	Critical Limit `json:"critical"`
	Major    Limit `json:"major"`
	Minor    Limit `json:"minor"`
}

// For returns the limit for sev.
func (l Limits) For(sev Severity) Limit {
	switch sev {
	case Critical:
		return l.Critical
	case Major:
		return l.Major
	default:
		return l.Minor
	}
}

// ResolvedPlan is the outcome of ResolvePlan.
type ResolvedPlan struct {
	LotSize      int    `json:"lot_size"`
	Level        Level  `json:"level"`
	Code         Code   `json:"code"`
	SampleSize   int    `json:"sample_size"`
	Limits       Limits `json:"limits"`
	TableVersion string `json:"table_version"`
}

// ResolvePlan turns a lot size, level and per-class AQL into a sample size
// and the Ac/Re limits for each class.
func ResolvePlan(lotSize int, level Level, critical, major, minor AQL) (ResolvedPlan, error) {
	plan, err := PlanForLot(lotSize, level)
	if err != nil {
		return ResolvedPlan{}, err
	}
	limits, err := LimitsForPlan(plan.N, SeverityAQLs{Critical: critical, Major: major, Minor: minor})
	if err != nil {
		return ResolvedPlan{}, err
	}
	return ResolvedPlan{
		LotSize:      lotSize,
		Level:        level,
		Code:         plan.Code,
		SampleSize:   plan.N,
		Limits:       limits,
		TableVersion: TableVersion,
	}, nil
}

// LimitsForPlan resolves the three class limits for sample size n.
func LimitsForPlan(n int, aqls SeverityAQLs) (Limits, error) {
	var out Limits
	var err error
	if out.Critical, err = LimitsFor(n, aqls.Critical); err != nil {
		return Limits{}, err
	}
	if out.Major, err = LimitsFor(n, aqls.Major); err != nil {
		return Limits{}, err
	}
	if out.Minor, err = LimitsFor(n, aqls.Minor); err != nil {
		return Limits{}, err
	}
	return out, nil
}
