package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"qualityline/internal/coverage"
	"qualityline/internal/defects"
	"qualityline/internal/disposition"
	"qualityline/internal/domain"
	"qualityline/internal/sampling"
)

const inspectionColumns = `id,project_id,COALESCE(reference,''),COALESCE(product,''),kind,category,lot_size,level,sample_code,sample_size,table_version,
aqls_json,limits_json,questions_json,photo_quota_json,status,inspected_units,defects_json,findings_json,validation_json,statistics_json,warnings_json,
COALESCE(message,''),COALESCE(outcome,''),created_by,created_at,updated_at,evaluated_at`

// InspectionFilters narrows ListInspections. Results are newest first; the
// cursor pair is the (created_at, id) of the last row of the previous page.
type InspectionFilters struct {
	ProjectID       string
	Status          string
	Outcome         string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInspection(row rowScanner) (domain.Inspection, error) {
	var (
		in                                      domain.Inspection
		kind, category, level, code             string
		aqls, limits, questions, quota          string
		defectsJSON, findings, validation, stat sql.NullString
		warnings, evaluatedAt                   sql.NullString
		outcome                                 string
	)
	err := row.Scan(&in.ID, &in.ProjectID, &in.Reference, &in.Product, &kind, &category, &in.LotSize, &level, &code, &in.SampleSize, &in.TableVersion,
		&aqls, &limits, &questions, &quota, &in.Status, &in.InspectedUnits, &defectsJSON, &findings, &validation, &stat, &warnings,
		&in.Message, &outcome, &in.CreatedBy, &in.CreatedAt, &in.UpdatedAt, &evaluatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return in, ErrNotFound
	}
	if err != nil {
		return in, err
	}
	in.Kind = coverage.Kind(kind)
	in.Category = coverage.Category(category)
	in.Level = sampling.Level(level)
	in.Outcome = disposition.Verdict(outcome)
	if in.SampleCode, err = sampling.ParseCode(code); err != nil {
		return in, fmt.Errorf("inspection %s: %w", in.ID, err)
	}
	for _, f := range []struct {
		raw string
		dst any
	}{
		{aqls, &in.AQLs},
		{limits, &in.AQLLimits},
		{questions, &in.Questions},
		{quota, &in.PhotoQuota},
	} {
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return in, fmt.Errorf("inspection %s: %w", in.ID, err)
		}
	}
	if defectsJSON.Valid {
		in.Defects = &defects.Tally{}
		if err := unmarshalNullJSON(defectsJSON, in.Defects); err != nil {
			return in, err
		}
	}
	if validation.Valid {
		in.Validation = &disposition.Validation{}
		if err := unmarshalNullJSON(validation, in.Validation); err != nil {
			return in, err
		}
	}
	if stat.Valid {
		in.Statistics = &defects.Statistics{}
		if err := unmarshalNullJSON(stat, in.Statistics); err != nil {
			return in, err
		}
	}
	if err := unmarshalNullJSON(findings, &in.Findings); err != nil {
		return in, err
	}
	if err := unmarshalNullJSON(warnings, &in.Warnings); err != nil {
		return in, err
	}
	if evaluatedAt.Valid {
		in.EvaluatedAt = &evaluatedAt.String
	}
	return in, nil
}

func (r Repo) InsertInspection(ctx context.Context, tx *sql.Tx, in domain.Inspection) error {
	encoded := make([]any, 0, 4)
	for _, v := range []any{in.AQLs, in.AQLLimits, in.Questions, in.PhotoQuota} {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode inspection %s: %w", in.ID, err)
		}
		encoded = append(encoded, string(data))
	}
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO inspections(id,project_id,reference,product,kind,category,lot_size,level,sample_code,sample_size,table_version,
aqls_json,limits_json,questions_json,photo_quota_json,status,inspected_units,created_by,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		in.ID, in.ProjectID, nullable(in.Reference), nullable(in.Product), string(in.Kind), string(in.Category), in.LotSize, string(in.Level),
		in.SampleCode.String(), in.SampleSize, in.TableVersion, encoded[0], encoded[1], encoded[2], encoded[3], in.Status, in.InspectedUnits,
		in.CreatedBy, in.CreatedAt, in.UpdatedAt)
	return err
}

func (r Repo) GetInspection(ctx context.Context, tx *sql.Tx, id string) (domain.Inspection, error) {
	return scanInspection(r.q(tx).QueryRowContext(ctx, `SELECT `+inspectionColumns+` FROM inspections WHERE id=?`, id))
}

// UpdateInspectionResult stores the outcome of an evaluation.
func (r Repo) UpdateInspectionResult(ctx context.Context, tx *sql.Tx, in domain.Inspection) error {
	values := make([]any, 0, 5)
	for _, v := range []any{in.Defects, in.Findings, in.Validation, in.Statistics, in.Warnings} {
		enc, err := marshalJSON(v)
		if err != nil {
			return fmt.Errorf("encode inspection %s: %w", in.ID, err)
		}
		values = append(values, enc)
	}
	res, err := r.q(tx).ExecContext(ctx, `UPDATE inspections SET status=?, inspected_units=?, defects_json=?, findings_json=?, validation_json=?, statistics_json=?, warnings_json=?,
message=?, outcome=?, updated_at=?, evaluated_at=? WHERE id=?`,
		in.Status, in.InspectedUnits, values[0], values[1], values[2], values[3], values[4],
		nullable(in.Message), nullable(string(in.Outcome)), in.UpdatedAt, nullableStringPtr(in.EvaluatedAt), in.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateInspectionOutcome records the operative verdict after a decision.
func (r Repo) UpdateInspectionOutcome(ctx context.Context, tx *sql.Tx, id string, outcome disposition.Verdict, updatedAt string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE inspections SET outcome=?, updated_at=? WHERE id=?`, string(outcome), updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListInspections(ctx context.Context, f InspectionFilters) ([]domain.Inspection, error) {
	clauses := []string{"project_id=?"}
	args := []any{f.ProjectID}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Outcome != "" {
		clauses = append(clauses, "outcome=?")
		args = append(args, f.Outcome)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT ` + inspectionColumns + ` FROM inspections WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Inspection
	for rows.Next() {
		in, err := scanInspection(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, in)
	}
	return res, rows.Err()
}

// ReplaceAnswers swaps the recorded answers of an inspection for answers.
func (r Repo) ReplaceAnswers(ctx context.Context, tx *sql.Tx, inspectionID string, answers []defects.Answer, actorID, now string) error {
	q := r.q(tx)
	if _, err := q.ExecContext(ctx, `DELETE FROM inspection_answers WHERE inspection_id=?`, inspectionID); err != nil {
		return err
	}
	for _, a := range answers {
		value, err := marshalJSON(a.Value)
		if err != nil {
			return fmt.Errorf("encode answer %s/%d: %w", a.QuestionID, a.Unit, err)
		}
		_, err = q.ExecContext(ctx, `INSERT INTO inspection_answers(inspection_id,unit,question_id,value_json,photos,recorded_by,recorded_at) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(inspection_id,unit,question_id) DO UPDATE SET value_json=excluded.value_json, photos=excluded.photos`,
			inspectionID, a.Unit, a.QuestionID, value, a.Photos, actorID, now)
		if err != nil {
			return err
		}
	}
	return nil
}

// ListAnswers returns recorded answers ordered by unit and question.
func (r Repo) ListAnswers(ctx context.Context, tx *sql.Tx, inspectionID string) ([]defects.Answer, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT unit,question_id,value_json,photos FROM inspection_answers WHERE inspection_id=? ORDER BY unit, question_id`, inspectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []defects.Answer
	for rows.Next() {
		var a defects.Answer
		var value sql.NullString
		if err := rows.Scan(&a.Unit, &a.QuestionID, &value, &a.Photos); err != nil {
			return nil, err
		}
		if err := unmarshalNullJSON(value, &a.Value); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}
