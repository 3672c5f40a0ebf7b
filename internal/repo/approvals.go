package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"qualityline/internal/approval"
)

// ErrPendingExists reports a second pending request for the same inspection.
var ErrPendingExists = errors.New("a conditional approval is already pending")

const approvalColumns = `id,inspection_id,reason,requested_by,status,COALESCE(decided_by,''),COALESCE(justification,''),version,requested_at,decided_at`

// ApprovalFilters narrows ListApprovals.
type ApprovalFilters struct {
	ProjectID    string
	InspectionID string
	Status       approval.Status
	Limit        int
}

func scanApproval(row rowScanner) (approval.Request, error) {
	var (
		req                 approval.Request
		status, requestedAt string
		decidedAt           sql.NullString
	)
	err := row.Scan(&req.ID, &req.InspectionID, &req.Reason, &req.RequestedBy, &status, &req.DecidedBy, &req.Justification, &req.Version, &requestedAt, &decidedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return req, ErrNotFound
	}
	if err != nil {
		return req, err
	}
	req.Status = approval.Status(status)
	if req.RequestedAt, err = time.Parse(time.RFC3339Nano, requestedAt); err != nil {
		return req, fmt.Errorf("conditional approval %s: %w", req.ID, err)
	}
	if decidedAt.Valid {
		ts, err := time.Parse(time.RFC3339Nano, decidedAt.String)
		if err != nil {
			return req, fmt.Errorf("conditional approval %s: %w", req.ID, err)
		}
		req.DecidedAt = &ts
	}
	return req, nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// InsertApproval stores a new pending request. A unique index admits a single
// pending request per inspection; a violation surfaces as ErrPendingExists.
func (r Repo) InsertApproval(ctx context.Context, tx *sql.Tx, projectID string, req approval.Request) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO conditional_approvals(id,project_id,inspection_id,reason,requested_by,status,decided_by,justification,version,requested_at,decided_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		req.ID, projectID, req.InspectionID, req.Reason, req.RequestedBy, string(req.Status), nullable(req.DecidedBy), nullable(req.Justification),
		req.Version, req.RequestedAt.UTC().Format(time.RFC3339Nano), formatTime(req.DecidedAt))
	if err != nil && isUniqueViolation(err) {
		return ErrPendingExists
	}
	return err
}

func (r Repo) GetApproval(ctx context.Context, tx *sql.Tx, id string) (approval.Request, error) {
	return scanApproval(r.q(tx).QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM conditional_approvals WHERE id=?`, id))
}

// ApprovalProject returns the project owning a request.
func (r Repo) ApprovalProject(ctx context.Context, tx *sql.Tx, id string) (string, error) {
	var projectID string
	err := r.q(tx).QueryRowContext(ctx, `SELECT project_id FROM conditional_approvals WHERE id=?`, id).Scan(&projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return projectID, err
}

// LatestApproval returns the most recent request for an inspection, nil when
// none was ever opened.
func (r Repo) LatestApproval(ctx context.Context, tx *sql.Tx, inspectionID string) (*approval.Request, error) {
	req, err := scanApproval(r.q(tx).QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM conditional_approvals WHERE inspection_id=? ORDER BY requested_at DESC, rowid DESC LIMIT 1`, inspectionID))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// UpdateApprovalIfVersion writes next only if the stored row still carries
// expectedVersion. It reports whether the row was written.
func (r Repo) UpdateApprovalIfVersion(ctx context.Context, tx *sql.Tx, next approval.Request, expectedVersion int) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE conditional_approvals SET status=?, decided_by=?, justification=?, version=?, decided_at=? WHERE id=? AND version=?`,
		string(next.Status), nullable(next.DecidedBy), nullable(next.Justification), next.Version, formatTime(next.DecidedAt), next.ID, expectedVersion)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r Repo) ListApprovals(ctx context.Context, f ApprovalFilters) ([]approval.Request, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.InspectionID != "" {
		clauses = append(clauses, "inspection_id=?")
		args = append(args, f.InspectionID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, string(f.Status))
	}
	query := `SELECT ` + approvalColumns + ` FROM conditional_approvals WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY requested_at ASC, id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []approval.Request
	for rows.Next() {
		req, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, req)
	}
	return res, rows.Err()
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
