package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"qualityline/internal/config"
	"qualityline/internal/domain"
	"qualityline/internal/engine"
	"qualityline/internal/repo"
)

// inspectionInProject loads an inspection and hides it when it belongs to
// another project.
func inspectionInProject(ctx context.Context, e engine.Engine, projectID, id string) (domain.Inspection, error) {
	in, err := e.GetInspection(ctx, id)
	if err != nil {
		return domain.Inspection{}, err
	}
	if in.ProjectID != projectID {
		return domain.Inspection{}, fmt.Errorf("inspection %s: %w", id, repo.ErrNotFound)
	}
	return in, nil
}

func registerInspections(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-inspection",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/inspections",
		Summary:       "Open an inspection: resolve its sampling plan and snapshot its questions",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                  `path:"project_id"`
		Body      CreateInspectionRequest `json:"body"`
	}) (*struct {
		Body InspectionResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		c, authErr := callerFor(ctx, e, input.ProjectID)
		if authErr != nil {
			return nil, authErr
		}
		in, err := e.CreateInspection(ctx, engine.InspectionCreateOptions{
			ID:        input.Body.ID,
			ProjectID: input.ProjectID,
			Reference: input.Body.Reference,
			Product:   input.Body.Product,
			Plan:      input.Body.Plan.options(),
			Checklist: input.Body.Checklist,
			Questions: questionsFromRequest(input.Body.Questions),
			ActorID:   c.ActorID,
			Granted:   c.Granted,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body InspectionResponse `json:"body"`
		}{Body: inspectionResponse(in)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-inspections",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/inspections",
		Summary:     "List inspections, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Status    string `query:"status" enum:"open,evaluated"`
		Outcome   string `query:"outcome" enum:"APPROVED,REJECTED,CONDITIONAL_APPROVAL"`
		Limit     int    `query:"limit" default:"50"`
		Cursor    string `query:"cursor"`
	}) (*struct {
		Body paginatedInspections `json:"body"`
	}, error) {
		if _, authErr := requirePermission(ctx, e, input.ProjectID, config.PermInspectionRead); authErr != nil {
			return nil, authErr
		}
		cursorTS, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		limit := normalizeLimit(input.Limit)
		items, err := e.ListInspections(ctx, repo.InspectionFilters{
			ProjectID:       input.ProjectID,
			Status:          input.Status,
			Outcome:         input.Outcome,
			Limit:           limit + 1,
			CursorCreatedAt: cursorTS,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedInspections{Items: []InspectionResponse{}}
		if len(items) > limit {
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
			items = items[:limit]
		}
		for _, in := range items {
			resp.Items = append(resp.Items, inspectionResponse(in))
		}
		return &struct {
			Body paginatedInspections `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-inspection",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/inspections/{inspection_id}",
		Summary:     "Get inspection",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID    string `path:"project_id"`
		InspectionID string `path:"inspection_id"`
	}) (*struct {
		Body InspectionResponse `json:"body"`
	}, error) {
		if _, authErr := requirePermission(ctx, e, input.ProjectID, config.PermInspectionRead); authErr != nil {
			return nil, authErr
		}
		in, err := inspectionInProject(ctx, e, input.ProjectID, input.InspectionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body InspectionResponse `json:"body"`
		}{Body: inspectionResponse(in)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "evaluate-inspection",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/inspections/{inspection_id}/evaluation",
		Summary:     "Classify answers, count defects per class and decide the disposition",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID    string                    `path:"project_id"`
		InspectionID string                    `path:"inspection_id"`
		Body         EvaluateInspectionRequest `json:"body"`
	}) (*struct {
		Body InspectionResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		c, authErr := callerFor(ctx, e, input.ProjectID)
		if authErr != nil {
			return nil, authErr
		}
		if _, err := inspectionInProject(ctx, e, input.ProjectID, input.InspectionID); err != nil {
			return nil, handleError(err)
		}
		in, err := e.EvaluateInspection(ctx, engine.EvaluateOptions{
			InspectionID: input.InspectionID,
			Answers:      answersFromRequest(input.Body.Answers),
			ActorID:      c.ActorID,
			Granted:      c.Granted,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body InspectionResponse `json:"body"`
		}{Body: inspectionResponse(in)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-inspection-answers",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/inspections/{inspection_id}/answers",
		Summary:     "Answers recorded by the last evaluation",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID    string `path:"project_id"`
		InspectionID string `path:"inspection_id"`
	}) (*struct {
		Body []AnswerRequest `json:"body"`
	}, error) {
		if _, authErr := requirePermission(ctx, e, input.ProjectID, config.PermInspectionRead); authErr != nil {
			return nil, authErr
		}
		if _, err := inspectionInProject(ctx, e, input.ProjectID, input.InspectionID); err != nil {
			return nil, handleError(err)
		}
		answers, err := e.InspectionAnswers(ctx, input.InspectionID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]AnswerRequest, 0, len(answers))
		for _, a := range answers {
			res = append(res, AnswerRequest(a))
		}
		return &struct {
			Body []AnswerRequest `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-inspection-outcome",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/inspections/{inspection_id}/outcome",
		Summary:     "Operative verdict after any conditional approval decision",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ProjectID    string `path:"project_id"`
		InspectionID string `path:"inspection_id"`
	}) (*struct {
		Body OutcomeResponse `json:"body"`
	}, error) {
		if _, authErr := requirePermission(ctx, e, input.ProjectID, config.PermInspectionRead); authErr != nil {
			return nil, authErr
		}
		in, err := inspectionInProject(ctx, e, input.ProjectID, input.InspectionID)
		if err != nil {
			return nil, handleError(err)
		}
		outcome, err := e.InspectionOutcome(ctx, in.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OutcomeResponse `json:"body"`
		}{Body: OutcomeResponse{
			InspectionID: in.ID,
			Verdict:      string(in.Validation.Overall),
			Outcome:      string(outcome),
		}}, nil
	})
}
