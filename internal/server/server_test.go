package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"qualityline/internal/config"
	"qualityline/internal/db"
	"qualityline/internal/engine"
	"qualityline/internal/events"
	"qualityline/internal/metrics"
	"qualityline/internal/migrate"
)

const (
	testProject = "proj-1"
	testSecret  = "test-secret"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, mutate ...func(*config.Config)) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default(testProject)
	for _, m := range mutate {
		m(cfg)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	e.Metrics = metrics.New()
	if _, err := e.InitProject(context.Background(), cfg.Project.ID, "", "tester"); err != nil {
		t.Fatalf("init project: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{
		JWTSecret:              testSecret,
		AllowLegacyActorHeader: true,
		DevLogin:               true,
	}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func as(actor string) map[string]string {
	return map[string]string{"X-Actor-Id": actor}
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal %T: %v (%s)", out, err, string(data))
	}
	return out
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env.Error.Code
}

// answers builds a full answer set for the default checklist; fail maps a
// question id to the units that should fail it.
func answers(units int, fail map[string][]int) []map[string]any {
	failing := map[string]map[int]bool{}
	for q, us := range fail {
		failing[q] = map[int]bool{}
		for _, u := range us {
			failing[q][u] = true
		}
	}
	var out []map[string]any
	for u := 1; u <= units; u++ {
		width := 100.0
		if failing["dimension.width"][u] {
			width = 98.0
		}
		out = append(out,
			map[string]any{"question_id": "print.legible", "unit": u, "value": !failing["print.legible"][u]},
			map[string]any{"question_id": "barcode.reads", "unit": u, "value": !failing["barcode.reads"][u]},
			map[string]any{"question_id": "dimension.width", "unit": u, "value": width},
		)
	}
	return out
}

func createInspection(t *testing.T, srv *testServer, lotSize int) InspectionResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/"+testProject+"/inspections", map[string]any{
		"reference": "LOT-7",
		"plan":      map[string]any{"lot_size": lotSize, "level": "II"},
		"checklist": "packaging.standard",
	}, as("tester"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create inspection status %d: %s", res.StatusCode, string(data))
	}
	return decode[InspectionResponse](t, data)
}

func TestConditionalApprovalFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v0/projects/" + testProject

	in := createInspection(t, srv, 100)
	if in.SampleSize != 32 || in.SampleCode != "G" {
		t.Fatalf("expected n=32 code G, got n=%d code %s", in.SampleSize, in.SampleCode)
	}
	if in.Limits.Major.Ac != 2 || in.Limits.Major.Re != 3 {
		t.Fatalf("unexpected major limits %+v", in.Limits.Major)
	}

	res, data := doJSON(t, client, http.MethodPost, base+"/inspections/"+in.ID+"/evaluation", map[string]any{
		"answers": answers(32, map[string][]int{"dimension.width": {3, 8, 21}}),
	}, as("tester"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("evaluate status %d: %s", res.StatusCode, string(data))
	}
	evaluated := decode[InspectionResponse](t, data)
	if evaluated.Validation == nil || evaluated.Validation.Overall != "CONDITIONAL_APPROVAL" {
		t.Fatalf("expected CONDITIONAL_APPROVAL, got %+v", evaluated.Validation)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/inspections/"+in.ID+"/conditional-approval", map[string]any{
		"reason": "width drift accepted by customer",
	}, as("tester"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("request status %d: %s", res.StatusCode, string(data))
	}
	req := decode[ApprovalResponse](t, data)
	if req.Status != "PENDING" {
		t.Fatalf("expected PENDING, got %s", req.Status)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/inspections/"+in.ID+"/conditional-approval", map[string]any{
		"reason": "again",
	}, as("tester"))
	if res.StatusCode != http.StatusConflict || errorCode(t, data) != "invalid_state" {
		t.Fatalf("expected 409 invalid_state, got %d %s", res.StatusCode, string(data))
	}

	decide := map[string]any{"decision": "approve", "justification": "deviation 17 signed"}
	res, data = doJSON(t, client, http.MethodPost, base+"/conditional-approvals/"+req.ID+"/decision", decide, as("eng-1"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 before grant, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/rbac/roles/grant", map[string]any{
		"actor_id": "eng-1",
		"role_id":  "engineering",
	}, as("tester"))
	if res.StatusCode != http.StatusNoContent && res.StatusCode != http.StatusOK {
		t.Fatalf("grant status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/conditional-approvals/"+req.ID+"/decision", decide, as("eng-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("decide status %d: %s", res.StatusCode, string(data))
	}
	decided := decode[ApprovalResponse](t, data)
	if decided.Status != "APPROVED" || decided.Version != 2 {
		t.Fatalf("unexpected decision %+v", decided)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/conditional-approvals/"+req.ID+"/decision", map[string]any{
		"decision": "reject", "justification": "late objection",
	}, as("eng-1"))
	if res.StatusCode != http.StatusConflict || errorCode(t, data) != "already_decided" {
		t.Fatalf("expected 409 already_decided, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/inspections/"+in.ID+"/outcome", nil, as("eng-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("outcome status %d: %s", res.StatusCode, string(data))
	}
	outcome := decode[OutcomeResponse](t, data)
	if outcome.Verdict != "CONDITIONAL_APPROVAL" || outcome.Outcome != "APPROVED" {
		t.Fatalf("unexpected outcome %+v", outcome)
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/events?entity_kind=conditional_approval", nil, as("tester"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, string(data))
	}
	evts := decode[paginatedEvents](t, data)
	if len(evts.Items) != 2 || evts.Items[0].Type != events.ApprovalDecided {
		t.Fatalf("unexpected approval events %+v", evts.Items)
	}
}

func TestCriticalDefectRejects(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	base := srv.URL + "/v0/projects/" + testProject
	in := createInspection(t, srv, 500)

	res, data := doJSON(t, srv.Client(), http.MethodPost, base+"/inspections/"+in.ID+"/evaluation", map[string]any{
		"answers": answers(in.SampleSize, map[string][]int{"barcode.reads": {5}}),
	}, as("tester"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("evaluate status %d: %s", res.StatusCode, string(data))
	}
	evaluated := decode[InspectionResponse](t, data)
	if evaluated.Outcome != "REJECTED" || evaluated.Defects.Critical != 1 {
		t.Fatalf("expected REJECTED with one critical, got %s %+v", evaluated.Outcome, evaluated.Defects)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, base+"/inspections/"+in.ID+"/conditional-approval", map[string]any{
		"reason": "please",
	}, as("tester"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
}

func TestEvaluateRejectsBadAnswers(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	base := srv.URL + "/v0/projects/" + testProject
	in := createInspection(t, srv, 100)

	res, data := doJSON(t, srv.Client(), http.MethodPost, base+"/inspections/"+in.ID+"/evaluation", map[string]any{
		"answers": []map[string]any{{"question_id": "color.match", "unit": 1, "value": "vivid"}},
	}, as("tester"))
	if res.StatusCode != http.StatusBadRequest || errorCode(t, data) != "classification_error" {
		t.Fatalf("expected 400 classification_error, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, base+"/inspections/missing/evaluation", map[string]any{
		"answers": []map[string]any{},
	}, as("tester"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
}

func TestSamplingEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/sampling/plan?lot_size=100&level=II", nil, as("tester"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("plan status %d: %s", res.StatusCode, string(data))
	}
	plan := decode[PlanResponse](t, data)
	if plan.SampleSize != 32 || plan.Code != "G" || plan.Limits.Minor.Ac != 7 || plan.Photos.RequiredPhotos != 2 {
		t.Fatalf("unexpected plan %+v", plan)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/sampling/plan?lot_size=100&level=II&critical_aql=0&major_aql=2.5&minor_aql=1.0", nil, as("tester"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("plan status %d: %s", res.StatusCode, string(data))
	}
	if plan := decode[PlanResponse](t, data); plan.Limits.Minor.Ac != 1 || plan.Limits.Minor.Re != 2 || plan.Limits.Major.Ac != 2 {
		t.Fatalf("unexpected plan limits %+v", plan.Limits)
	}

	for _, tc := range []struct {
		query string
		code  string
	}{
		{"lot_size=1", "out_of_range"},
		{"lot_size=100&level=IV", "invalid_level"},
		{"lot_size=100&major_aql=1.5", "unsupported_aql"},
		{"lot_size=100&category=metal", "bad_request"},
	} {
		res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/sampling/plan?"+tc.query, nil, as("tester"))
		if res.StatusCode != http.StatusBadRequest || errorCode(t, data) != tc.code {
			t.Fatalf("%s: expected 400 %s, got %d %s", tc.query, tc.code, res.StatusCode, string(data))
		}
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/sampling/limits?n=32&aql=2.5", nil, as("tester"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("limits status %d: %s", res.StatusCode, string(data))
	}
	limit := decode[LimitResponse](t, data)
	if limit.Ac != 2 || limit.Re != 3 {
		t.Fatalf("unexpected limit %+v", limit)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/sampling/photos?n=32&kind=bonification", nil, as("tester"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("photos status %d: %s", res.StatusCode, string(data))
	}
	if quota := decode[PhotoQuotaResponse](t, data); quota.RequiredPhotos != 1 || quota.GraphicSubSample != 10 {
		t.Fatalf("unexpected quota %+v", quota)
	}

	for _, n := range []string{"-1", "3151", "461168601842738790"} {
		res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/sampling/photos?n="+n, nil, as("tester"))
		if res.StatusCode != http.StatusBadRequest || errorCode(t, data) != "out_of_range" {
			t.Fatalf("n=%s: expected 400 out_of_range, got %d %s", n, res.StatusCode, string(data))
		}
	}
}

func TestAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v0/projects/" + testProject

	res, data := doJSON(t, client, http.MethodGet, base+"/inspections", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/inspections", nil, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized || errorCode(t, data) != "invalid_credentials" {
		t.Fatalf("expected 401 invalid_credentials, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{
		"actor_id": "auditor",
		"roles":    []string{"viewer"},
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	bearer := map[string]string{"Authorization": "Bearer " + decode[DevLoginResponse](t, data).Token}

	res, data = doJSON(t, client, http.MethodGet, base+"/inspections", nil, bearer)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("viewer list status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, base+"/inspections", map[string]any{
		"plan":      map[string]any{"lot_size": 100},
		"checklist": "packaging.standard",
	}, bearer)
	if res.StatusCode != http.StatusForbidden || errorCode(t, data) != "forbidden" {
		t.Fatalf("expected 403 for viewer create, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/api-keys", map[string]any{"actor_id": "line-bot", "name": "scanner"}, as("tester"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("api key status %d: %s", res.StatusCode, string(data))
	}
	key := decode[APIKeyResponse](t, data)
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": key.Key})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me via api key status %d: %s", res.StatusCode, string(data))
	}
	if me := decode[WhoAmIResponse](t, data); me.ActorID != "line-bot" {
		t.Fatalf("expected line-bot, got %s", me.ActorID)
	}

	res, data = doJSON(t, client, http.MethodDelete, base+"/api-keys/"+key.ID, nil, as("tester"))
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("revoke status %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": key.Key})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected revoked key to fail, got %d", res.StatusCode)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/metrics", nil, nil)
	if res.StatusCode != http.StatusOK || !bytes.Contains(data, []byte("qualityline_")) {
		t.Fatalf("metrics status %d: %s", res.StatusCode, string(data))
	}
}

func TestWebhookDelivery(t *testing.T) {
	var (
		mu       sync.Mutex
		received []webhookEvent
		sigs     []string
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var evt webhookEvent
		_ = json.Unmarshal(body, &evt)
		mu.Lock()
		received = append(received, evt)
		sigs = append(sigs, r.Header.Get("X-Qualityline-Signature"))
		mu.Unlock()
		if want := "sha256=" + signPayload("s3cret", body); r.Header.Get("X-Qualityline-Signature") != want {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	srv, cleanup := newTestServer(t, func(c *config.Config) {
		c.Webhooks = []config.WebhookConfig{{URL: hook.URL, Secret: "s3cret", Events: []string{events.InspectionCreated}}}
	})
	defer cleanup()

	d := NewWebhookDispatcher(srv.Engine)
	if d == nil {
		t.Fatalf("expected dispatcher")
	}
	ctx := context.Background()
	d.DispatchAll(ctx)
	createInspection(t, srv, 100)
	createInspection(t, srv, 50)
	d.DispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(received))
	}
	for i, evt := range received {
		if evt.Type != events.InspectionCreated || evt.ProjectID != testProject {
			t.Fatalf("delivery %d: unexpected event %+v", i, evt)
		}
		if sigs[i] == "" {
			t.Fatalf("delivery %d: missing signature", i)
		}
	}
	if received[0].ID >= received[1].ID {
		t.Fatalf("expected deliveries in event order")
	}
}
