package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qualityline/internal/approval"
	"qualityline/internal/config"
	"qualityline/internal/db"
	"qualityline/internal/defects"
	"qualityline/internal/disposition"
	"qualityline/internal/domain"
	"qualityline/internal/engine"
	"qualityline/internal/engine/auth"
	"qualityline/internal/events"
	"qualityline/internal/metrics"
	"qualityline/internal/migrate"
	"qualityline/internal/repo"
	"qualityline/internal/sampling"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	cfg := config.Default("proj-1")
	eng := engine.New(conn, cfg)
	eng.Metrics = metrics.New()
	eng.Now = func() time.Time { return time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	_, err = eng.InitProject(ctx, "proj-1", "test", "tester")
	require.NoError(t, err)
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) createInspection(t *testing.T, lotSize int) domain.Inspection {
	t.Helper()
	in, err := env.Engine.CreateInspection(env.Ctx, engine.InspectionCreateOptions{
		ProjectID: "proj-1",
		Reference: "LOT-42",
		Plan:      engine.PlanOptions{LotSize: lotSize, Level: "II"},
		Checklist: "packaging.standard",
		ActorID:   "tester",
	})
	require.NoError(t, err)
	return in
}

// passingAnswers answers every required question of the default checklist
// with a passing value for units 1..n.
func passingAnswers(n int) []defects.Answer {
	var out []defects.Answer
	for u := 1; u <= n; u++ {
		out = append(out,
			defects.Answer{QuestionID: "print.legible", Unit: u, Value: true},
			defects.Answer{QuestionID: "barcode.reads", Unit: u, Value: true},
			defects.Answer{QuestionID: "dimension.width", Unit: u, Value: 100.0},
		)
	}
	return out
}

func setAnswer(answers []defects.Answer, questionID string, unit int, value any) {
	for i := range answers {
		if answers[i].QuestionID == questionID && answers[i].Unit == unit {
			answers[i].Value = value
		}
	}
}

func (env testEnv) evaluate(t *testing.T, id string, answers []defects.Answer) domain.Inspection {
	t.Helper()
	in, err := env.Engine.EvaluateInspection(env.Ctx, engine.EvaluateOptions{InspectionID: id, Answers: answers, ActorID: "tester"})
	require.NoError(t, err)
	return in
}

func TestCreateInspectionResolvesPlan(t *testing.T) {
	env := newTestEnv(t)
	in := env.createInspection(t, 100)

	assert.Equal(t, sampling.Code('G'), in.SampleCode)
	assert.Equal(t, 32, in.SampleSize)
	assert.Equal(t, 0, in.AQLLimits.Critical.Ac)
	assert.Equal(t, 2, in.AQLLimits.Major.Ac)
	assert.Equal(t, 7, in.AQLLimits.Minor.Ac)
	assert.Equal(t, 10, in.PhotoQuota.GraphicSubSample)
	assert.Equal(t, 2, in.PhotoQuota.RequiredPhotos)
	assert.Equal(t, domain.InspectionOpen, in.Status)
	assert.Len(t, in.Questions, 5)

	stored, err := env.Engine.GetInspection(env.Ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, in.AQLLimits, stored.AQLLimits)
	assert.Equal(t, in.Questions, stored.Questions)
	assert.Nil(t, stored.ConditionalApproval)

	list, err := env.Engine.ListInspections(env.Ctx, repo.InspectionFilters{ProjectID: "proj-1"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, in.ID, list[0].ID)
}

func TestCreateInspectionRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	base := engine.InspectionCreateOptions{ProjectID: "proj-1", Checklist: "packaging.standard", ActorID: "tester"}

	opts := base
	opts.Plan = engine.PlanOptions{LotSize: 100, Level: "IV"}
	_, err := env.Engine.CreateInspection(env.Ctx, opts)
	require.ErrorAs(t, err, new(sampling.InvalidLevelError))

	opts = base
	opts.Plan = engine.PlanOptions{LotSize: 1}
	_, err = env.Engine.CreateInspection(env.Ctx, opts)
	require.ErrorAs(t, err, new(sampling.OutOfRangeError))

	major := 1.5
	opts = base
	opts.Plan = engine.PlanOptions{LotSize: 100, Major: &major}
	_, err = env.Engine.CreateInspection(env.Ctx, opts)
	require.ErrorAs(t, err, new(sampling.UnsupportedAQLError))

	opts = base
	opts.Plan = engine.PlanOptions{LotSize: 100}
	opts.Questions = []defects.Question{{ID: "q", Type: defects.TypeBoolean, Severity: sampling.Major}}
	_, err = env.Engine.CreateInspection(env.Ctx, opts)
	require.ErrorAs(t, err, new(engine.InputError))

	opts = base
	opts.Plan = engine.PlanOptions{LotSize: 100}
	opts.Checklist = "missing"
	_, err = env.Engine.CreateInspection(env.Ctx, opts)
	require.ErrorAs(t, err, new(engine.InputError))

	opts = base
	opts.ProjectID = "nope"
	opts.Plan = engine.PlanOptions{LotSize: 100}
	_, err = env.Engine.CreateInspection(env.Ctx, opts)
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestEvaluateApproved(t *testing.T) {
	env := newTestEnv(t)
	in := env.createInspection(t, 100)
	answers := passingAnswers(32)
	setAnswer(answers, "print.legible", 4, false)
	setAnswer(answers, "print.legible", 9, "nok")

	got := env.evaluate(t, in.ID, answers)
	require.NotNil(t, got.Validation)
	assert.Equal(t, disposition.Approved, got.Validation.Overall)
	assert.Equal(t, disposition.Approved, got.Outcome)
	assert.Equal(t, defects.Tally{Major: 2}, *got.Defects)
	assert.Equal(t, 32, got.InspectedUnits)
	assert.Empty(t, got.Warnings)
	assert.Equal(t, 100.0, got.Statistics.RequiredCompletionRate)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.Engine.Metrics.InspectionsEvaluated.WithLabelValues("APPROVED")))

	stored, err := env.Engine.GetInspection(env.Ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InspectionEvaluated, stored.Status)
	assert.Equal(t, got.Validation, stored.Validation)
	assert.Len(t, stored.Findings, 2)

	recorded, err := env.Engine.InspectionAnswers(env.Ctx, in.ID)
	require.NoError(t, err)
	assert.Len(t, recorded, len(answers))

	// Re-evaluation is allowed while no approval was requested.
	answers = passingAnswers(32)
	again := env.evaluate(t, in.ID, answers)
	assert.Equal(t, defects.Tally{}, *again.Defects)
}

func TestEvaluateRejectsOnCritical(t *testing.T) {
	env := newTestEnv(t)
	in := env.createInspection(t, 100)
	answers := passingAnswers(32)
	setAnswer(answers, "barcode.reads", 7, false)
	for u := 1; u <= 5; u++ {
		setAnswer(answers, "print.legible", u, false)
	}

	got := env.evaluate(t, in.ID, answers)
	assert.Equal(t, disposition.Rejected, got.Validation.Overall)
	assert.Equal(t, disposition.Fail, got.Validation.Critical)
	assert.Contains(t, got.Message, "critical")

	_, err := env.Engine.RequestConditionalApproval(env.Ctx, engine.ApprovalRequestOptions{InspectionID: in.ID, Reason: "please", ActorID: "tester"})
	var ise approval.InvalidStateError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, approval.StatusNone, ise.From)
}

func TestEvaluateWarnings(t *testing.T) {
	env := newTestEnv(t)
	in := env.createInspection(t, 100)
	answers := passingAnswers(10)
	answers = append(answers, defects.Answer{QuestionID: "not.in.plan", Unit: 1, Value: false})
	answers = answers[1:] // unit 1 misses print.legible

	got := env.evaluate(t, in.ID, answers)
	assert.Equal(t, 10, got.InspectedUnits)
	assert.Equal(t, defects.Tally{}, *got.Defects)
	assert.Contains(t, got.Warnings, "inspected 10 of 32 sampled units")
	assert.Contains(t, got.Warnings, "1 answer(s) ignored: question not in inspection")
	assert.Contains(t, got.Warnings, "1 required answer(s) missing")
	assert.Equal(t, 1.0, testutil.ToFloat64(env.Engine.Metrics.OrphanedAnswers))

	_, err := env.Engine.EvaluateInspection(env.Ctx, engine.EvaluateOptions{
		InspectionID: in.ID,
		Answers:      []defects.Answer{{QuestionID: "print.legible", Unit: 0, Value: true}},
		ActorID:      "tester",
	})
	require.ErrorAs(t, err, new(engine.InputError))

	_, err = env.Engine.EvaluateInspection(env.Ctx, engine.EvaluateOptions{
		InspectionID: in.ID,
		Answers:      []defects.Answer{{QuestionID: "color.match", Unit: 1, Value: "bright"}},
		ActorID:      "tester",
	})
	require.ErrorAs(t, err, new(defects.ClassificationError))
}

func TestEvaluateRejectsRepeatedAnswers(t *testing.T) {
	env := newTestEnv(t)
	in := env.createInspection(t, 100)
	answers := passingAnswers(32)
	// two extra failures on an already answered slot would turn APPROVED into
	// CONDITIONAL_APPROVAL while storage keeps a single row
	answers = append(answers,
		defects.Answer{QuestionID: "dimension.width", Unit: 5, Value: 101.5},
		defects.Answer{QuestionID: "dimension.width", Unit: 5, Value: 101.5},
	)
	_, err := env.Engine.EvaluateInspection(env.Ctx, engine.EvaluateOptions{InspectionID: in.ID, Answers: answers, ActorID: "tester"})
	var ie engine.InputError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "answers", ie.Field)

	stored, err := env.Engine.GetInspection(env.Ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InspectionOpen, stored.Status)
	recorded, err := env.Engine.InspectionAnswers(env.Ctx, in.ID)
	require.NoError(t, err)
	assert.Empty(t, recorded)
}

// conditionalInspection returns an evaluated inspection whose verdict is
// CONDITIONAL_APPROVAL (three major defects against Ac 2).
func (env testEnv) conditionalInspection(t *testing.T) domain.Inspection {
	t.Helper()
	in := env.createInspection(t, 100)
	answers := passingAnswers(32)
	for _, u := range []int{2, 11, 30} {
		setAnswer(answers, "dimension.width", u, 101.2)
	}
	got := env.evaluate(t, in.ID, answers)
	require.Equal(t, disposition.ConditionalApproval, got.Validation.Overall)
	require.Equal(t, disposition.Pass, got.Validation.Critical)
	return got
}

func TestConditionalApprovalRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	in := env.conditionalInspection(t)

	_, err := env.Engine.RequestConditionalApproval(env.Ctx, engine.ApprovalRequestOptions{InspectionID: in.ID, Reason: "  ", ActorID: "tester"})
	require.ErrorAs(t, err, new(approval.InvalidStateError))

	req, err := env.Engine.RequestConditionalApproval(env.Ctx, engine.ApprovalRequestOptions{InspectionID: in.ID, Reason: "width drift within customer tolerance", ActorID: "tester"})
	require.NoError(t, err)
	assert.Equal(t, approval.StatusPending, req.Status)
	assert.Equal(t, 1, req.Version)

	_, err = env.Engine.RequestConditionalApproval(env.Ctx, engine.ApprovalRequestOptions{InspectionID: in.ID, Reason: "again", ActorID: "tester"})
	var ise approval.InvalidStateError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, approval.StatusPending, ise.From)

	_, err = env.Engine.EvaluateInspection(env.Ctx, engine.EvaluateOptions{InspectionID: in.ID, Answers: passingAnswers(32), ActorID: "tester"})
	require.ErrorAs(t, err, new(approval.InvalidStateError))

	pending, err := env.Engine.PendingApprovals(env.Ctx, "proj-1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, req.ID, pending[0].ID)

	_, err = env.Engine.DecideConditionalApproval(env.Ctx, engine.ApprovalDecisionOptions{RequestID: req.ID, Decision: approval.Approve, ActorID: "tester"})
	require.ErrorAs(t, err, new(approval.InvalidStateError))

	decided, err := env.Engine.DecideConditionalApproval(env.Ctx, engine.ApprovalDecisionOptions{
		RequestID: req.ID, Decision: approval.Approve, Justification: "customer deviation 17 signed", ActorID: "tester",
	})
	require.NoError(t, err)
	assert.Equal(t, approval.StatusApproved, decided.Status)
	assert.Equal(t, 2, decided.Version)
	require.NotNil(t, decided.DecidedAt)

	_, err = env.Engine.DecideConditionalApproval(env.Ctx, engine.ApprovalDecisionOptions{
		RequestID: req.ID, Decision: approval.Reject, Justification: "changed my mind", ActorID: "tester",
	})
	var ade approval.AlreadyDecidedError
	require.ErrorAs(t, err, &ade)
	assert.Equal(t, approval.StatusApproved, ade.Status)

	stored, err := env.Engine.GetInspection(env.Ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, disposition.ConditionalApproval, stored.Validation.Overall)
	assert.Equal(t, disposition.Approved, stored.Outcome)
	require.NotNil(t, stored.ConditionalApproval)
	assert.Equal(t, approval.StatusApproved, stored.ConditionalApproval.Status)

	outcome, err := env.Engine.InspectionOutcome(env.Ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, disposition.Approved, outcome)

	evts, err := env.Engine.ListEvents(env.Ctx, repo.EventFilters{ProjectID: "proj-1", EntityKind: events.EntityApproval})
	require.NoError(t, err)
	require.Len(t, evts, 2)
	assert.Equal(t, events.ApprovalDecided, evts[0].Type)
	assert.Equal(t, events.ApprovalRequested, evts[1].Type)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.Engine.Metrics.ApprovalTransitions.WithLabelValues("APPROVED")))
}

func TestRejectedApprovalSetsOutcome(t *testing.T) {
	env := newTestEnv(t)
	in := env.conditionalInspection(t)
	req, err := env.Engine.RequestConditionalApproval(env.Ctx, engine.ApprovalRequestOptions{InspectionID: in.ID, Reason: "r", ActorID: "tester"})
	require.NoError(t, err)
	_, err = env.Engine.DecideConditionalApproval(env.Ctx, engine.ApprovalDecisionOptions{RequestID: req.ID, Decision: approval.Reject, Justification: "no", ActorID: "tester"})
	require.NoError(t, err)

	outcome, err := env.Engine.InspectionOutcome(env.Ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, disposition.Rejected, outcome)
}

func TestRequestBeforeEvaluation(t *testing.T) {
	env := newTestEnv(t)
	in := env.createInspection(t, 50)
	_, err := env.Engine.RequestConditionalApproval(env.Ctx, engine.ApprovalRequestOptions{InspectionID: in.ID, Reason: "r", ActorID: "tester"})
	require.ErrorAs(t, err, new(approval.InvalidStateError))

	_, err = env.Engine.DecideConditionalApproval(env.Ctx, engine.ApprovalDecisionOptions{RequestID: "missing", Decision: approval.Approve, Justification: "j", ActorID: "tester"})
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestDecisionRequiresPermission(t *testing.T) {
	env := newTestEnv(t)
	in := env.conditionalInspection(t)
	require.NoError(t, env.Engine.GrantRole(env.Ctx, "proj-1", "tester", "insp-1", "inspector", nil))
	require.NoError(t, env.Engine.GrantRole(env.Ctx, "proj-1", "tester", "eng-1", "engineering", nil))

	req, err := env.Engine.RequestConditionalApproval(env.Ctx, engine.ApprovalRequestOptions{InspectionID: in.ID, Reason: "r", ActorID: "insp-1"})
	require.NoError(t, err)

	_, err = env.Engine.DecideConditionalApproval(env.Ctx, engine.ApprovalDecisionOptions{RequestID: req.ID, Decision: approval.Approve, Justification: "j", ActorID: "insp-1"})
	var fe auth.ForbiddenError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, config.PermApprovalDecide, fe.Permission)

	_, err = env.Engine.DecideConditionalApproval(env.Ctx, engine.ApprovalDecisionOptions{
		RequestID: req.ID, Decision: approval.Approve, Justification: "j", ActorID: "jwt-user", Granted: []string{config.PermApprovalDecide},
	})
	require.NoError(t, err)

	err = env.Engine.GrantRole(env.Ctx, "proj-1", "eng-1", "eng-2", "engineering", nil)
	require.ErrorAs(t, err, new(auth.ForbiddenError))
	err = env.Engine.GrantRole(env.Ctx, "proj-1", "tester", "eng-2", "wizard", nil)
	require.ErrorIs(t, err, repo.ErrNotFound)

	who, err := env.Engine.WhoAmI(env.Ctx, "proj-1", "eng-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"engineering"}, who.Roles)
	assert.Contains(t, who.Permissions, config.PermApprovalDecide)

	require.NoError(t, env.Engine.RevokeRole(env.Ctx, "proj-1", "tester", "eng-1", "engineering", nil))
	require.ErrorIs(t, env.Engine.RevokeRole(env.Ctx, "proj-1", "tester", "eng-1", "engineering", nil), repo.ErrNotFound)
}

func TestConcurrentDecisionsExactlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	in := env.conditionalInspection(t)
	req, err := env.Engine.RequestConditionalApproval(env.Ctx, engine.ApprovalRequestOptions{InspectionID: in.ID, Reason: "r", ActorID: "tester"})
	require.NoError(t, err)

	decisions := []approval.Decision{approval.Approve, approval.Reject, approval.Approve, approval.Reject}
	errs := make([]error, len(decisions))
	var wg sync.WaitGroup
	for i, d := range decisions {
		wg.Add(1)
		go func(i int, d approval.Decision) {
			defer wg.Done()
			_, errs[i] = env.Engine.DecideConditionalApproval(env.Ctx, engine.ApprovalDecisionOptions{
				RequestID: req.ID, Decision: d, Justification: "race", ActorID: "tester",
			})
		}(i, d)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		var ade approval.AlreadyDecidedError
		assert.True(t, errors.As(err, &ade), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, wins)

	stored, err := env.Engine.GetConditionalApproval(env.Ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, stored.Status.Decided())
	assert.Equal(t, 2, stored.Version)
}

func TestAPIKeys(t *testing.T) {
	env := newTestEnv(t)
	key, secret, err := env.Engine.CreateAPIKey(env.Ctx, "proj-1", "tester", "bot-1", "ci", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, secret)
	assert.Equal(t, repo.HashAPIKey(secret), key.KeyHash)

	found, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(secret))
	require.NoError(t, err)
	assert.Equal(t, "bot-1", found.ActorID)

	_, _, err = env.Engine.CreateAPIKey(env.Ctx, "proj-1", "bot-1", "bot-2", "", nil)
	require.ErrorAs(t, err, new(auth.ForbiddenError))

	require.NoError(t, env.Engine.RevokeAPIKey(env.Ctx, "proj-1", "tester", key.ID, nil))
	_, err = env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(secret))
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestResolvePlanDefaults(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.ResolvePlan(engine.PlanOptions{LotSize: 500, Category: "functional"})
	require.NoError(t, err)
	assert.Equal(t, sampling.LevelII, res.Plan.Level)
	assert.Equal(t, sampling.DefaultAQLs, res.AQLs)
	assert.Equal(t, 0, res.Photos.RequiredPhotos)

	res, err = env.Engine.ResolvePlan(engine.PlanOptions{LotSize: 500, Kind: "bonification"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Photos.RequiredPhotos)

	_, err = env.Engine.ResolvePlan(engine.PlanOptions{LotSize: 500, Category: "metal"})
	require.ErrorAs(t, err, new(engine.InputError))
	assert.Equal(t, 2.0, testutil.ToFloat64(env.Engine.Metrics.PlansResolved.WithLabelValues("II", "ok")))
}
