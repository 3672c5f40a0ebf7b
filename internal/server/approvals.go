package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"qualityline/internal/approval"
	"qualityline/internal/config"
	"qualityline/internal/engine"
	"qualityline/internal/repo"
)

func registerApprovals(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "request-conditional-approval",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/inspections/{inspection_id}/conditional-approval",
		Summary:       "Ask for a conditional approval of a CONDITIONAL_APPROVAL inspection",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID    string                     `path:"project_id"`
		InspectionID string                     `path:"inspection_id"`
		Body         ConditionalApprovalRequest `json:"body"`
	}) (*struct {
		Body ApprovalResponse `json:"body"`
	}, error) {
		c, authErr := callerFor(ctx, e, input.ProjectID)
		if authErr != nil {
			return nil, authErr
		}
		if _, err := inspectionInProject(ctx, e, input.ProjectID, input.InspectionID); err != nil {
			return nil, handleError(err)
		}
		req, err := e.RequestConditionalApproval(ctx, engine.ApprovalRequestOptions{
			InspectionID: input.InspectionID,
			Reason:       input.Body.Reason,
			ActorID:      c.ActorID,
			Granted:      c.Granted,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ApprovalResponse `json:"body"`
		}{Body: approvalResponse(req)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-conditional-approvals",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/conditional-approvals",
		Summary:     "List conditional approval requests, oldest first",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID    string `path:"project_id"`
		Status       string `query:"status" enum:"PENDING,APPROVED,REJECTED"`
		InspectionID string `query:"inspection_id"`
		Limit        int    `query:"limit" default:"50"`
	}) (*struct {
		Body []ApprovalResponse `json:"body"`
	}, error) {
		if _, authErr := requirePermission(ctx, e, input.ProjectID, config.PermApprovalRead); authErr != nil {
			return nil, authErr
		}
		items, err := e.ListConditionalApprovals(ctx, repo.ApprovalFilters{
			ProjectID:    input.ProjectID,
			InspectionID: input.InspectionID,
			Status:       approval.Status(input.Status),
			Limit:        normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]ApprovalResponse, 0, len(items))
		for _, r := range items {
			res = append(res, approvalResponse(r))
		}
		return &struct {
			Body []ApprovalResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-conditional-approval",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/conditional-approvals/{request_id}",
		Summary:     "Get a conditional approval request",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		RequestID string `path:"request_id"`
	}) (*struct {
		Body ApprovalResponse `json:"body"`
	}, error) {
		if _, authErr := requirePermission(ctx, e, input.ProjectID, config.PermApprovalRead); authErr != nil {
			return nil, authErr
		}
		if err := approvalInProject(ctx, e, input.ProjectID, input.RequestID); err != nil {
			return nil, handleError(err)
		}
		req, err := e.GetConditionalApproval(ctx, input.RequestID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ApprovalResponse `json:"body"`
		}{Body: approvalResponse(req)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "decide-conditional-approval",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/conditional-approvals/{request_id}/decision",
		Summary:     "Approve or reject a pending conditional approval",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                  `path:"project_id"`
		RequestID string                  `path:"request_id"`
		Body      ApprovalDecisionRequest `json:"body"`
	}) (*struct {
		Body ApprovalResponse `json:"body"`
	}, error) {
		decision, err := approval.ParseDecision(input.Body.Decision)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"decision": input.Body.Decision})
		}
		c, authErr := callerFor(ctx, e, input.ProjectID)
		if authErr != nil {
			return nil, authErr
		}
		if err := approvalInProject(ctx, e, input.ProjectID, input.RequestID); err != nil {
			return nil, handleError(err)
		}
		req, err := e.DecideConditionalApproval(ctx, engine.ApprovalDecisionOptions{
			RequestID:     input.RequestID,
			Decision:      decision,
			Justification: input.Body.Justification,
			ActorID:       c.ActorID,
			Granted:       c.Granted,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ApprovalResponse `json:"body"`
		}{Body: approvalResponse(req)}, nil
	})
}

func approvalInProject(ctx context.Context, e engine.Engine, projectID, requestID string) error {
	owner, err := e.Repo.ApprovalProject(ctx, nil, requestID)
	if err != nil {
		return err
	}
	if owner != projectID {
		return fmt.Errorf("conditional approval %s: %w", requestID, repo.ErrNotFound)
	}
	return nil
}
