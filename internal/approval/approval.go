// Package approval holds the conditional approval state machine. Persistence
// and concurrency control live in the engine; every function here is a pure
// transition over a Request value.
package approval

import (
	"fmt"
	"strings"
	"time"

	"qualityline/internal/disposition"
)

// Status of a conditional approval request.
type Status string

const (
	StatusNone     Status = "NONE"
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

func (s Status) Decided() bool { return s == StatusApproved || s == StatusRejected }

// Decision is the human choice applied to a pending request.
type Decision string

const (
	Approve Decision = "approve"
	Reject  Decision = "reject"
)

// ParseDecision accepts approve/reject (and the APPROVED/REJECTED status names).
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve", "approved":
		return Approve, nil
	case "reject", "rejected":
		return Reject, nil
	}
	return "", fmt.Errorf("invalid decision %q (want approve or reject)", s)
}

// Request is the conditional approval attached to one inspection.
type Request struct {
	ID            string     `json:"id"`
	InspectionID  string     `json:"inspection_id"`
	Reason        string     `json:"reason"`
	RequestedBy   string     `json:"requested_by"`
	Status        Status     `json:"status"`
	DecidedBy     string     `json:"decided_by,omitempty"`
	Justification string     `json:"justification,omitempty"`
	Version       int        `json:"version"`
	RequestedAt   time.Time  `json:"requested_at"`
	DecidedAt     *time.Time `json:"decided_at,omitempty"`
}

// CurrentStatus treats a nil request as NONE.
func CurrentStatus(r *Request) Status {
	if r == nil || r.Status == "" {
		return StatusNone
	}
	return r.Status
}

// Open moves NONE to PENDING. prev is the latest request for the inspection,
// if any; v is the inspection's last validation.
func Open(prev *Request, v disposition.Validation, reason, requestedBy string, now time.Time) (Request, error) {
	if st := CurrentStatus(prev); st == StatusPending {
		return Request{}, InvalidStateError{From: st, Action: "request", Reason: "a request is already pending"}
	}
	if !v.CanRequestConditionalApproval() {
		return Request{}, InvalidStateError{
			From:   CurrentStatus(prev),
			Action: "request",
			Reason: fmt.Sprintf("verdict is %s with critical %s", v.Overall, v.Critical),
		}
	}
	if strings.TrimSpace(reason) == "" {
		return Request{}, InvalidStateError{From: CurrentStatus(prev), Action: "request", Reason: "reason is required"}
	}
	if strings.TrimSpace(requestedBy) == "" {
		return Request{}, InvalidStateError{From: CurrentStatus(prev), Action: "request", Reason: "requester is required"}
	}
	return Request{
		Reason:      strings.TrimSpace(reason),
		RequestedBy: requestedBy,
		Status:      StatusPending,
		Version:     1,
		RequestedAt: now.UTC(),
	}, nil
}

// Decide moves PENDING to APPROVED or REJECTED and bumps the version.
func Decide(r Request, d Decision, decidedBy, justification string, now time.Time) (Request, error) {
	switch r.Status {
	case StatusPending:
	case StatusApproved, StatusRejected:
		return Request{}, AlreadyDecidedError{RequestID: r.ID, Status: r.Status}
	default:
		return Request{}, InvalidStateError{From: CurrentStatus(&r), Action: "decide", Reason: "no pending request"}
	}
	if strings.TrimSpace(justification) == "" {
		return Request{}, InvalidStateError{From: r.Status, Action: "decide", Reason: "justification is required"}
	}
	if strings.TrimSpace(decidedBy) == "" {
		return Request{}, InvalidStateError{From: r.Status, Action: "decide", Reason: "decider is required"}
	}
	switch d {
	case Approve:
		r.Status = StatusApproved
	case Reject:
		r.Status = StatusRejected
	default:
		return Request{}, InvalidStateError{From: r.Status, Action: "decide", Reason: fmt.Sprintf("unknown decision %q", d)}
	}
	decidedAt := now.UTC()
	r.DecidedBy = decidedBy
	r.Justification = strings.TrimSpace(justification)
	r.DecidedAt = &decidedAt
	r.Version++
	return r, nil
}

// Outcome returns the inspection's operative verdict: a decided request
// overrides the original CONDITIONAL_APPROVAL.
func Outcome(v disposition.Verdict, r *Request) disposition.Verdict {
	if r == nil {
		return v
	}
	switch r.Status {
	case StatusApproved:
		return disposition.Approved
	case StatusRejected:
		return disposition.Rejected
	}
	return v
}
