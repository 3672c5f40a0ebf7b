package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"qualityline/internal/approval"
	"qualityline/internal/config"
	"qualityline/internal/defects"
	"qualityline/internal/disposition"
	"qualityline/internal/domain"
	"qualityline/internal/events"
	"qualityline/internal/repo"
)

// InspectionCreateOptions are parameters for opening an inspection. Exactly
// one of Checklist and Questions supplies the question set.
type InspectionCreateOptions struct {
	ID        string
	ProjectID string
	Reference string
	Product   string
	Plan      PlanOptions
	Checklist string
	Questions []defects.Question
	ActorID   string
	// Granted lists permissions the caller already holds.
	Granted []string
}

func (e Engine) CreateInspection(ctx context.Context, opts InspectionCreateOptions) (domain.Inspection, error) {
	if opts.ProjectID == "" {
		return domain.Inspection{}, InputError{Field: "project", Reason: "required"}
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.Inspection{}, err
	}
	cfg, err := e.projectConfig(ctx, opts.ProjectID)
	if err != nil {
		return domain.Inspection{}, err
	}
	questions, err := inspectionQuestions(cfg, opts)
	if err != nil {
		return domain.Inspection{}, err
	}
	res, err := e.resolvePlan(cfg, opts.Plan)
	if err != nil {
		return domain.Inspection{}, err
	}

	now := e.timestamp()
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	in := domain.Inspection{
		ID:           id,
		ProjectID:    opts.ProjectID,
		Reference:    strings.TrimSpace(opts.Reference),
		Product:      strings.TrimSpace(opts.Product),
		Kind:         res.Kind,
		Category:     res.Category,
		LotSize:      res.Plan.LotSize,
		Level:        res.Plan.Level,
		SampleCode:   res.Plan.Code,
		SampleSize:   res.Plan.SampleSize,
		TableVersion: res.Plan.TableVersion,
		AQLs:         res.AQLs,
		AQLLimits:    res.Plan.Limits,
		Questions:    questions,
		PhotoQuota:   res.Photos,
		Status:       domain.InspectionOpen,
		CreatedBy:    opts.ActorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Inspection{}, err
	}
	defer tx.Rollback()
	if err := e.Auth.Require(ctx, tx, opts.ProjectID, opts.ActorID, config.PermInspectionCreate, opts.Granted); err != nil {
		return domain.Inspection{}, err
	}
	if err := e.Repo.InsertInspection(ctx, tx, in); err != nil {
		return domain.Inspection{}, fmt.Errorf("insert inspection: %w", err)
	}
	if err := e.appendEvent(ctx, tx, events.InspectionCreated, in.ProjectID, events.EntityInspection, in.ID, opts.ActorID, events.EventPayload{
		"lot_size":    in.LotSize,
		"level":       in.Level,
		"sample_size": in.SampleSize,
		"code":        in.SampleCode.String(),
	}); err != nil {
		return domain.Inspection{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Inspection{}, err
	}
	e.log().Info("inspection created", "inspection", in.ID, "project", in.ProjectID, "lot_size", in.LotSize, "level", in.Level, "sample_size", in.SampleSize)
	return in, nil
}

func inspectionQuestions(cfg *config.Config, opts InspectionCreateOptions) ([]defects.Question, error) {
	name := strings.TrimSpace(opts.Checklist)
	switch {
	case name != "" && len(opts.Questions) > 0:
		return nil, InputError{Field: "questions", Reason: "use either a checklist or inline questions"}
	case name != "":
		qs, err := cfg.Checklist(name)
		if err != nil {
			return nil, InputError{Field: "checklist", Reason: err.Error()}
		}
		return qs, nil
	case len(opts.Questions) == 0:
		return nil, InputError{Field: "questions", Reason: "a checklist or at least one question is required"}
	}
	if _, err := defects.NewIndex(opts.Questions); err != nil {
		return nil, err
	}
	return opts.Questions, nil
}

// GetInspection returns an inspection with its latest conditional approval.
func (e Engine) GetInspection(ctx context.Context, id string) (domain.Inspection, error) {
	in, err := e.Repo.GetInspection(ctx, nil, id)
	if err != nil {
		return domain.Inspection{}, err
	}
	req, err := e.Repo.LatestApproval(ctx, nil, id)
	if err != nil {
		return domain.Inspection{}, err
	}
	in.ConditionalApproval = req
	return in, nil
}

func (e Engine) ListInspections(ctx context.Context, f repo.InspectionFilters) ([]domain.Inspection, error) {
	if f.ProjectID == "" {
		return nil, InputError{Field: "project", Reason: "required"}
	}
	return e.Repo.ListInspections(ctx, f)
}

// InspectionAnswers returns the answers recorded by the last evaluation.
func (e Engine) InspectionAnswers(ctx context.Context, id string) ([]defects.Answer, error) {
	if _, err := e.Repo.GetInspection(ctx, nil, id); err != nil {
		return nil, err
	}
	return e.Repo.ListAnswers(ctx, nil, id)
}

// EvaluateOptions carries the full answer set of an inspection run.
type EvaluateOptions struct {
	InspectionID string
	Answers      []defects.Answer
	ActorID      string
	Granted      []string
}

// EvaluateInspection classifies the answers, aggregates the defects per
// severity, decides the disposition and stores the result. An inspection can
// be re-evaluated until a conditional approval has been requested for it.
func (e Engine) EvaluateInspection(ctx context.Context, opts EvaluateOptions) (domain.Inspection, error) {
	in, err := e.Repo.GetInspection(ctx, nil, opts.InspectionID)
	if err != nil {
		return domain.Inspection{}, err
	}
	cfg, err := e.projectConfig(ctx, in.ProjectID)
	if err != nil {
		return domain.Inspection{}, err
	}
	seen := make(map[defects.AnswerKey]bool, len(opts.Answers))
	for _, a := range opts.Answers {
		if a.Unit < 1 {
			return domain.Inspection{}, InputError{Field: "unit", Reason: fmt.Sprintf("answer %s has unit %d, units start at 1", a.QuestionID, a.Unit)}
		}
		key := defects.AnswerKey{Unit: a.Unit, QuestionID: a.QuestionID}
		if seen[key] {
			return domain.Inspection{}, InputError{Field: "answers", Reason: fmt.Sprintf("question %s answered more than once for unit %d", a.QuestionID, a.Unit)}
		}
		seen[key] = true
	}

	result, err := defects.AggregateUnits(ctx, in.Questions, opts.Answers, cfg.Sampling.Workers)
	if err != nil {
		return domain.Inspection{}, err
	}
	for _, o := range result.Orphaned {
		e.log().Debug("orphaned answer dropped", "inspection", in.ID, "question", o.QuestionID, "unit", o.Unit)
	}
	idx, err := defects.NewIndex(in.Questions)
	if err != nil {
		return domain.Inspection{}, err
	}
	units := defects.InspectedUnits(opts.Answers)
	stats := idx.Statistics(opts.Answers, units, result.Tally)
	validation := disposition.Validate(result.Tally, in.AQLLimits)
	tally := result.Tally

	now := e.timestamp()
	in.Status = domain.InspectionEvaluated
	in.InspectedUnits = units
	in.Defects = &tally
	in.Findings = result.Findings
	in.Validation = &validation
	in.Statistics = &stats
	in.Message = disposition.Message(validation, tally, in.AQLLimits)
	in.Warnings = inspectionWarnings(in, result)
	in.Outcome = validation.Overall
	in.UpdatedAt = now
	in.EvaluatedAt = &now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Inspection{}, err
	}
	defer tx.Rollback()
	if err := e.Auth.Require(ctx, tx, in.ProjectID, opts.ActorID, config.PermInspectionEvaluate, opts.Granted); err != nil {
		return domain.Inspection{}, err
	}
	prev, err := e.Repo.LatestApproval(ctx, tx, in.ID)
	if err != nil {
		return domain.Inspection{}, err
	}
	if prev != nil {
		return domain.Inspection{}, approval.InvalidStateError{
			From:   prev.Status,
			Action: "re-evaluate inspection with",
			Reason: "a conditional approval was already requested",
		}
	}
	if err := e.Repo.ReplaceAnswers(ctx, tx, in.ID, opts.Answers, opts.ActorID, now); err != nil {
		return domain.Inspection{}, fmt.Errorf("store answers: %w", err)
	}
	if err := e.Repo.UpdateInspectionResult(ctx, tx, in); err != nil {
		return domain.Inspection{}, fmt.Errorf("store evaluation: %w", err)
	}
	if err := e.appendEvent(ctx, tx, events.InspectionEvaluated, in.ProjectID, events.EntityInspection, in.ID, opts.ActorID, events.EventPayload{
		"verdict":  validation.Overall,
		"critical": tally.Critical,
		"major":    tally.Major,
		"minor":    tally.Minor,
		"units":    units,
	}); err != nil {
		return domain.Inspection{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Inspection{}, err
	}
	e.Metrics.ObserveEvaluation(string(validation.Overall), tally.Critical, tally.Major, tally.Minor, len(result.Orphaned))
	e.log().Info("inspection evaluated",
		"inspection", in.ID,
		"verdict", validation.Overall,
		"critical", tally.Critical,
		"major", tally.Major,
		"minor", tally.Minor,
		"orphaned", len(result.Orphaned),
	)
	return in, nil
}

func inspectionWarnings(in domain.Inspection, result defects.Result) []string {
	var out []string
	if in.InspectedUnits < in.SampleSize {
		out = append(out, fmt.Sprintf("inspected %d of %d sampled units", in.InspectedUnits, in.SampleSize))
	}
	if n := len(result.Orphaned); n > 0 {
		out = append(out, fmt.Sprintf("%d answer(s) ignored: question not in inspection", n))
	}
	if st := in.Statistics; st != nil && st.AnsweredRequired < st.RequiredQuestions {
		out = append(out, fmt.Sprintf("%d required answer(s) missing", st.RequiredQuestions-st.AnsweredRequired))
	}
	return out
}
