package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"qualityline/internal/approval"
	"qualityline/internal/config"
	"qualityline/internal/disposition"
	"qualityline/internal/events"
	"qualityline/internal/repo"
)

// ApprovalRequestOptions asks for a conditional approval of an evaluated
// inspection.
type ApprovalRequestOptions struct {
	InspectionID string
	Reason       string
	ActorID      string
	Granted      []string
}

// RequestConditionalApproval opens a PENDING request. It fails with
// approval.InvalidStateError unless the inspection's verdict is
// CONDITIONAL_APPROVAL with no critical failure and nothing is pending.
func (e Engine) RequestConditionalApproval(ctx context.Context, opts ApprovalRequestOptions) (approval.Request, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return approval.Request{}, err
	}
	defer tx.Rollback()

	in, err := e.Repo.GetInspection(ctx, tx, opts.InspectionID)
	if err != nil {
		return approval.Request{}, err
	}
	if err := e.Auth.Require(ctx, tx, in.ProjectID, opts.ActorID, config.PermApprovalRequest, opts.Granted); err != nil {
		return approval.Request{}, err
	}
	prev, err := e.Repo.LatestApproval(ctx, tx, in.ID)
	if err != nil {
		return approval.Request{}, err
	}
	if !in.Evaluated() {
		return approval.Request{}, approval.InvalidStateError{From: approval.CurrentStatus(prev), Action: "request", Reason: "inspection has not been evaluated"}
	}
	req, err := approval.Open(prev, *in.Validation, opts.Reason, opts.ActorID, e.now())
	if err != nil {
		return approval.Request{}, err
	}
	req.ID = uuid.New().String()
	req.InspectionID = in.ID
	if err := e.Repo.InsertApproval(ctx, tx, in.ProjectID, req); err != nil {
		if errors.Is(err, repo.ErrPendingExists) {
			return approval.Request{}, approval.InvalidStateError{From: approval.StatusPending, Action: "request", Reason: "a request is already pending"}
		}
		return approval.Request{}, fmt.Errorf("insert conditional approval: %w", err)
	}
	if err := e.appendEvent(ctx, tx, events.ApprovalRequested, in.ProjectID, events.EntityApproval, req.ID, opts.ActorID, events.EventPayload{
		"inspection_id": in.ID,
		"reason":        req.Reason,
	}); err != nil {
		return approval.Request{}, err
	}
	if err := tx.Commit(); err != nil {
		return approval.Request{}, err
	}
	e.Metrics.ObserveApproval(string(req.Status))
	e.log().Info("conditional approval requested", "request", req.ID, "inspection", in.ID, "actor", opts.ActorID)
	return req, nil
}

// ApprovalDecisionOptions carries a human decision on a pending request.
type ApprovalDecisionOptions struct {
	RequestID     string
	Decision      approval.Decision
	Justification string
	ActorID       string
	Granted       []string
}

// DecideConditionalApproval moves a PENDING request to APPROVED or REJECTED.
// The row is written with a version check, so of two concurrent decisions
// exactly one succeeds; the other gets approval.AlreadyDecidedError.
func (e Engine) DecideConditionalApproval(ctx context.Context, opts ApprovalDecisionOptions) (approval.Request, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return approval.Request{}, err
	}
	defer tx.Rollback()

	projectID, err := e.Repo.ApprovalProject(ctx, tx, opts.RequestID)
	if err != nil {
		return approval.Request{}, err
	}
	if err := e.Auth.Require(ctx, tx, projectID, opts.ActorID, config.PermApprovalDecide, opts.Granted); err != nil {
		return approval.Request{}, err
	}
	current, err := e.Repo.GetApproval(ctx, tx, opts.RequestID)
	if err != nil {
		return approval.Request{}, err
	}
	next, err := approval.Decide(current, opts.Decision, opts.ActorID, opts.Justification, e.now())
	if err != nil {
		return approval.Request{}, err
	}
	ok, err := e.Repo.UpdateApprovalIfVersion(ctx, tx, next, current.Version)
	if err != nil {
		return approval.Request{}, fmt.Errorf("update conditional approval: %w", err)
	}
	if !ok {
		return approval.Request{}, e.staleDecision(ctx, opts.RequestID)
	}
	in, err := e.Repo.GetInspection(ctx, tx, current.InspectionID)
	if err != nil {
		return approval.Request{}, err
	}
	outcome := approval.Outcome(disposition.ConditionalApproval, &next)
	if err := e.Repo.UpdateInspectionOutcome(ctx, tx, in.ID, outcome, e.timestamp()); err != nil {
		return approval.Request{}, err
	}
	if err := e.appendEvent(ctx, tx, events.ApprovalDecided, projectID, events.EntityApproval, next.ID, opts.ActorID, events.EventPayload{
		"inspection_id": in.ID,
		"status":        next.Status,
		"justification": next.Justification,
		"outcome":       outcome,
	}); err != nil {
		return approval.Request{}, err
	}
	if err := tx.Commit(); err != nil {
		return approval.Request{}, err
	}
	e.Metrics.ObserveApproval(string(next.Status))
	e.log().Info("conditional approval decided", "request", next.ID, "inspection", in.ID, "status", next.Status, "actor", opts.ActorID)
	return next, nil
}

// staleDecision explains a lost version check from the row as it is now.
func (e Engine) staleDecision(ctx context.Context, requestID string) error {
	latest, err := e.Repo.GetApproval(ctx, nil, requestID)
	if err != nil {
		return err
	}
	if latest.Status.Decided() {
		return approval.AlreadyDecidedError{RequestID: latest.ID, Status: latest.Status}
	}
	return approval.InvalidStateError{From: latest.Status, Action: "decide", Reason: "request changed concurrently"}
}

func (e Engine) GetConditionalApproval(ctx context.Context, id string) (approval.Request, error) {
	return e.Repo.GetApproval(ctx, nil, id)
}

// ListConditionalApprovals lists requests oldest first.
func (e Engine) ListConditionalApprovals(ctx context.Context, f repo.ApprovalFilters) ([]approval.Request, error) {
	if f.Status != "" {
		switch f.Status {
		case approval.StatusPending, approval.StatusApproved, approval.StatusRejected:
		default:
			return nil, InputError{Field: "status", Reason: fmt.Sprintf("unknown status %q", f.Status)}
		}
	}
	return e.Repo.ListApprovals(ctx, f)
}

// PendingApprovals lists the requests waiting for a decision in a project.
func (e Engine) PendingApprovals(ctx context.Context, projectID string) ([]approval.Request, error) {
	return e.ListConditionalApprovals(ctx, repo.ApprovalFilters{ProjectID: projectID, Status: approval.StatusPending})
}

// InspectionOutcome returns the operative verdict of an inspection.
func (e Engine) InspectionOutcome(ctx context.Context, id string) (disposition.Verdict, error) {
	in, err := e.GetInspection(ctx, id)
	if err != nil {
		return "", err
	}
	if in.Validation == nil {
		return "", approval.InvalidStateError{From: approval.CurrentStatus(in.ConditionalApproval), Action: "read outcome of", Reason: "inspection has not been evaluated"}
	}
	return approval.Outcome(in.Validation.Overall, in.ConditionalApproval), nil
}
