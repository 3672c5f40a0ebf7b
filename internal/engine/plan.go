package engine

import (
	"strings"

	"qualityline/internal/config"
	"qualityline/internal/coverage"
	"qualityline/internal/sampling"
)

// PlanOptions selects a sampling plan. Empty or nil fields fall back to the
// project config.
type PlanOptions struct {
	LotSize  int
	Level    string
	Critical *float64
	Major    *float64
	Minor    *float64
	Category string
	Kind     string
}

// PlanResult is a resolved plan together with its photo quota.
type PlanResult struct {
	Plan     sampling.ResolvedPlan `json:"plan"`
	AQLs     sampling.SeverityAQLs `json:"aqls"`
	Category coverage.Category     `json:"category"`
	Kind     coverage.Kind         `json:"kind"`
	Photos   coverage.Quota        `json:"photos"`
}

// ResolvePlan resolves a plan against the engine's config.
func (e Engine) ResolvePlan(opts PlanOptions) (PlanResult, error) {
	cfg := e.Config
	if cfg == nil {
		cfg = config.Default("default")
	}
	return e.resolvePlan(cfg, opts)
}

func (e Engine) resolvePlan(cfg *config.Config, opts PlanOptions) (res PlanResult, err error) {
	levelLabel := strings.ToUpper(strings.TrimSpace(opts.Level))
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		if levelLabel == "" {
			levelLabel = string(res.Plan.Level)
		}
		e.Metrics.ObservePlan(levelLabel, result)
	}()

	level, err := cfg.DefaultLevel()
	if err != nil {
		return PlanResult{}, err
	}
	if strings.TrimSpace(opts.Level) != "" {
		if level, err = sampling.ParseLevel(opts.Level); err != nil {
			return PlanResult{}, err
		}
	}
	aqls, err := cfg.AQLs()
	if err != nil {
		return PlanResult{}, err
	}
	for _, o := range []struct {
		v   *float64
		dst *sampling.AQL
	}{
		{opts.Critical, &aqls.Critical},
		{opts.Major, &aqls.Major},
		{opts.Minor, &aqls.Minor},
	} {
		if o.v == nil {
			continue
		}
		if *o.dst, err = sampling.ParseAQL(*o.v); err != nil {
			return PlanResult{}, err
		}
	}
	category := cfg.DefaultCategory()
	if strings.TrimSpace(opts.Category) != "" {
		if category, err = coverage.ParseCategory(opts.Category); err != nil {
			return PlanResult{}, InputError{Field: "category", Reason: err.Error()}
		}
	}
	kindName := opts.Kind
	if strings.TrimSpace(kindName) == "" {
		kindName = cfg.Photos.DefaultKind
	}
	kind, err := coverage.ParseKind(kindName)
	if err != nil {
		return PlanResult{}, InputError{Field: "kind", Reason: err.Error()}
	}

	plan, err := sampling.ResolvePlan(opts.LotSize, level, aqls.Critical, aqls.Major, aqls.Minor)
	if err != nil {
		return PlanResult{}, err
	}
	return PlanResult{
		Plan:     plan,
		AQLs:     aqls,
		Category: category,
		Kind:     kind,
		Photos:   coverage.QuotaFor(kind, category, plan.SampleSize),
	}, nil
}
