package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"qualityline/internal/coverage"
	"qualityline/internal/engine"
	"qualityline/internal/sampling"
)

// Sampling lookups are pure table reads and only need an authenticated caller.
func registerSampling(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "resolve-plan",
		Method:      http.MethodGet,
		Path:        "/sampling/plan",
		Summary:     "Resolve sample size, code letter, Ac/Re limits and photo quota for a lot",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		LotSize  int     `query:"lot_size" required:"true"`
		Level    string  `query:"level"`
		Critical float64 `query:"critical_aql" default:"-1"`
		Major    float64 `query:"major_aql" default:"-1"`
		Minor    float64 `query:"minor_aql" default:"-1"`
		Category string  `query:"category"`
		Kind     string  `query:"kind"`
	}) (*struct {
		Body PlanResponse `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		res, err := e.ResolvePlan(engine.PlanOptions{
			LotSize:  input.LotSize,
			Level:    input.Level,
			Critical: optionalAQL(input.Critical),
			Major:    optionalAQL(input.Major),
			Minor:    optionalAQL(input.Minor),
			Category: input.Category,
			Kind:     input.Kind,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PlanResponse `json:"body"`
		}{Body: planResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "aql-limits",
		Method:      http.MethodGet,
		Path:        "/sampling/limits",
		Summary:     "Acceptance and rejection numbers for a sample size on one AQL curve",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		N   int     `query:"n" required:"true"`
		AQL float64 `query:"aql" required:"true"`
	}) (*struct {
		Body LimitResponse `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		aql, err := sampling.ParseAQL(input.AQL)
		if err != nil {
			return nil, handleError(err)
		}
		limit, err := sampling.LimitsFor(input.N, aql)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body LimitResponse `json:"body"`
		}{Body: limitResponse(limit)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "photo-quota",
		Method:      http.MethodGet,
		Path:        "/sampling/photos",
		Summary:     "Photo quota for a sample size",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		N        int    `query:"n" required:"true"`
		Category string `query:"category" default:"graphic_material"`
		Kind     string `query:"kind"`
	}) (*struct {
		Body PhotoQuotaResponse `json:"body"`
	}, error) {
		if _, authErr := principalFromRequest(ctx); authErr != nil {
			return nil, authErr
		}
		if input.N < 0 || input.N > sampling.MaxSampleSize {
			return nil, handleError(sampling.OutOfRangeError{What: "sample size", Value: input.N, Min: 0, Max: sampling.MaxSampleSize})
		}
		category, err := coverage.ParseCategory(input.Category)
		if err != nil {
			return nil, handleError(engine.InputError{Field: "category", Reason: err.Error()})
		}
		kind, err := coverage.ParseKind(input.Kind)
		if err != nil {
			return nil, handleError(engine.InputError{Field: "kind", Reason: err.Error()})
		}
		return &struct {
			Body PhotoQuotaResponse `json:"body"`
		}{Body: photoQuotaResponse(coverage.QuotaFor(kind, category, input.N))}, nil
	})
}

// optionalAQL maps the negative query default to "use the project default".
func optionalAQL(v float64) *float64 {
	if v < 0 {
		return nil
	}
	return &v
}
