package qualitylinesdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qualityline/internal/config"
	"qualityline/internal/db"
	"qualityline/internal/engine"
	"qualityline/internal/migrate"
	"qualityline/internal/server"
)

const (
	testProject = "proj-sdk"
	testSecret  = "sdk-secret"
)

func newTestAPI(t *testing.T) *httptest.Server {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	e := engine.New(conn, config.Default(testProject))
	_, err = e.InitProject(context.Background(), testProject, "", "tester")
	require.NoError(t, err)
	handler, err := server.New(server.Config{Engine: e, BasePath: "/v0", Auth: server.AuthConfig{JWTSecret: testSecret}})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func token(t *testing.T, actorID string, roles ...string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": actorID,
		"iss": "qualityline",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if len(roles) > 0 {
		claims["roles"] = roles
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func clientFor(t *testing.T, srv *httptest.Server, actorID string, roles ...string) *Client {
	c := New(srv.URL, testProject)
	c.BearerToken = token(t, actorID, roles...)
	return c
}

func widthAnswers(units int, failing map[int]bool) []Answer {
	var out []Answer
	for u := 1; u <= units; u++ {
		width := 100.0
		if failing[u] {
			width = 101.5
		}
		out = append(out,
			Answer{QuestionID: "print.legible", Unit: u, Value: true},
			Answer{QuestionID: "barcode.reads", Unit: u, Value: true},
			Answer{QuestionID: "dimension.width", Unit: u, Value: width},
		)
	}
	return out
}

func TestResolvePlan(t *testing.T) {
	srv := newTestAPI(t)
	c := clientFor(t, srv, "tester")

	plan, err := c.ResolvePlan(context.Background(), PlanQuery{LotSize: 100, Level: "II"})
	require.NoError(t, err)
	assert.Equal(t, "G", plan.Code)
	assert.Equal(t, 32, plan.SampleSize)
	assert.Equal(t, Limit{N: 32, AQL: 2.5, Ac: 2, Re: 3}, plan.Limits.Major)
	assert.Equal(t, 0, plan.Limits.Critical.Ac)
	assert.Equal(t, 1, plan.Limits.Critical.Re)

	_, err = c.ResolvePlan(context.Background(), PlanQuery{LotSize: 100, Level: "IV"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "expected APIError, got %v", err)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "invalid_level", apiErr.Code)
}

func TestConditionalApprovalLifecycle(t *testing.T) {
	srv := newTestAPI(t)
	ctx := context.Background()
	inspector := clientFor(t, srv, "tester")
	engineer := clientFor(t, srv, "eng-1", "engineering")

	in, err := inspector.CreateInspection(ctx, CreateInspection{
		Reference: "PO-42",
		Plan:      PlanQuery{LotSize: 100, Level: "II"},
		Checklist: "packaging.standard",
	})
	require.NoError(t, err)
	assert.Equal(t, "open", in.Status)
	assert.Equal(t, 32, in.SampleSize)

	in, err = inspector.Evaluate(ctx, in.ID, widthAnswers(in.SampleSize, map[int]bool{2: true, 9: true, 30: true}))
	require.NoError(t, err)
	require.NotNil(t, in.Validation)
	assert.Equal(t, "CONDITIONAL_APPROVAL", in.Validation.Overall)
	assert.Equal(t, "FAIL", in.Validation.Major)
	require.NotNil(t, in.Defects)
	assert.Equal(t, Tally{Major: 3}, *in.Defects)

	req, err := inspector.RequestConditionalApproval(ctx, in.ID, "width drift within customer tolerance")
	require.NoError(t, err)
	assert.Equal(t, "PENDING", req.Status)

	pending, err := engineer.PendingApprovals(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, req.ID, pending[0].ID)

	viewer := clientFor(t, srv, "viewer-1", "viewer")
	_, err = viewer.DecideConditionalApproval(ctx, req.ID, "approve", "looks fine")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)

	decided, err := engineer.DecideConditionalApproval(ctx, req.ID, "approve", "customer accepted deviation")
	require.NoError(t, err)
	assert.Equal(t, "APPROVED", decided.Status)
	assert.Equal(t, "eng-1", decided.DecidedBy)

	_, err = engineer.DecideConditionalApproval(ctx, req.ID, "reject", "second thoughts")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "already_decided", apiErr.Code)

	outcome, err := inspector.Outcome(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, Outcome{InspectionID: in.ID, Verdict: "CONDITIONAL_APPROVAL", Outcome: "APPROVED"}, outcome)

	events, err := inspector.Events(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, "approval.decided", events[0].Type)
}

func TestInspectionsPage(t *testing.T) {
	srv := newTestAPI(t)
	ctx := context.Background()
	c := clientFor(t, srv, "tester")
	for i := 0; i < 3; i++ {
		_, err := c.CreateInspection(ctx, CreateInspection{Plan: PlanQuery{LotSize: 50}, Checklist: "packaging.standard"})
		require.NoError(t, err)
	}
	first, err := c.InspectionsPage(ctx, 2, "")
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.NotEmpty(t, first.NextCursor)

	second, err := c.InspectionsPage(ctx, 2, first.NextCursor)
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Empty(t, second.NextCursor)
	assert.NotContains(t, []string{first.Items[0].ID, first.Items[1].ID}, second.Items[0].ID)

	perms, err := c.MyPermissions(ctx)
	require.NoError(t, err)
	assert.Contains(t, perms.Permissions, config.PermInspectionCreate)
}
