package qualitylinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Qualityline HTTP API client.
type Client struct {
	BaseURL     string
	ProjectID   string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Timeout:   10 * time.Second,
	}
}

// Limit is the Ac/Re pair of one defect class.
type Limit struct {
	N   int     `json:"n"`
	AQL float64 `json:"aql"`
	Ac  int     `json:"ac"`
	Re  int     `json:"re"`
}

type Limits struct {
	Critical Limit `json:"critical"`
	Major    Limit `json:"major"`
	Minor    Limit `json:"minor"`
}

type AQLs struct {
	Critical float64 `json:"critical"`
	Major    float64 `json:"major"`
	Minor    float64 `json:"minor"`
}

type PhotoQuota struct {
	TotalSampleSize  int `json:"total_sample_size"`
	GraphicSubSample int `json:"graphic_sub_sample"`
	FunctionalSample int `json:"functional_sample"`
	RequiredPhotos   int `json:"required_photos"`
}

// Plan is a resolved sampling plan.
type Plan struct {
	LotSize      int        `json:"lot_size"`
	Level        string     `json:"level"`
	Code         string     `json:"code"`
	SampleSize   int        `json:"sample_size"`
	TableVersion string     `json:"table_version"`
	AQLs         AQLs       `json:"aqls"`
	Limits       Limits     `json:"limits"`
	Category     string     `json:"category"`
	Kind         string     `json:"kind"`
	Photos       PhotoQuota `json:"photos"`
}

// PlanQuery selects a plan. Nil AQLs use the server defaults.
type PlanQuery struct {
	LotSize  int      `json:"lot_size"`
	Level    string   `json:"level,omitempty"`
	Critical *float64 `json:"critical_aql,omitempty"`
	Major    *float64 `json:"major_aql,omitempty"`
	Minor    *float64 `json:"minor_aql,omitempty"`
	Category string   `json:"category,omitempty"`
	Kind     string   `json:"kind,omitempty"`
}

// Question is one checklist question with its pass requirement.
type Question struct {
	ID            string   `json:"id"`
	Text          string   `json:"text,omitempty"`
	Type          string   `json:"type"`
	Severity      string   `json:"severity"`
	Required      bool     `json:"required,omitempty"`
	FailingValue  string   `json:"failing_value,omitempty"`
	Min           *float64 `json:"min,omitempty"`
	Max           *float64 `json:"max,omitempty"`
	Expected      *float64 `json:"expected,omitempty"`
	Tolerance     float64  `json:"tolerance,omitempty"`
	PassThreshold *float64 `json:"pass_threshold,omitempty"`
	Options       []string `json:"options,omitempty"`
}

// Answer is the value recorded for one question on one sampled unit.
type Answer struct {
	QuestionID string `json:"question_id"`
	Unit       int    `json:"unit"`
	Value      any    `json:"value,omitempty"`
	Photos     int    `json:"photos,omitempty"`
}

// CreateInspection is the body of a new inspection. Set Checklist or Questions.
type CreateInspection struct {
	ID        string     `json:"id,omitempty"`
	Reference string     `json:"reference,omitempty"`
	Product   string     `json:"product,omitempty"`
	Plan      PlanQuery  `json:"plan"`
	Checklist string     `json:"checklist,omitempty"`
	Questions []Question `json:"questions,omitempty"`
}

type Tally struct {
	Critical int `json:"critical"`
	Major    int `json:"major"`
	Minor    int `json:"minor"`
}

type Validation struct {
	Critical string `json:"critical"`
	Major    string `json:"major"`
	Minor    string `json:"minor"`
	Overall  string `json:"overall"`
}

// ConditionalApproval is an engineering decision request.
type ConditionalApproval struct {
	ID            string `json:"id"`
	InspectionID  string `json:"inspection_id"`
	Reason        string `json:"reason"`
	RequestedBy   string `json:"requested_by"`
	Status        string `json:"status"`
	DecidedBy     string `json:"decided_by,omitempty"`
	Justification string `json:"justification,omitempty"`
	Version       int    `json:"version"`
	RequestedAt   string `json:"requested_at"`
	DecidedAt     string `json:"decided_at,omitempty"`
}

// Inspection represents the API inspection model (partial).
type Inspection struct {
	ID                  string               `json:"id"`
	ProjectID           string               `json:"project_id"`
	Reference           string               `json:"reference,omitempty"`
	LotSize             int                  `json:"lot_size"`
	Level               string               `json:"level"`
	SampleCode          string               `json:"sample_code"`
	SampleSize          int                  `json:"sample_size"`
	Limits              Limits               `json:"limits"`
	Questions           []Question           `json:"questions"`
	PhotoQuota          PhotoQuota           `json:"photo_quota"`
	Status              string               `json:"status"`
	Defects             *Tally               `json:"defects,omitempty"`
	Validation          *Validation          `json:"validation,omitempty"`
	Warnings            []string             `json:"warnings,omitempty"`
	Message             string               `json:"message,omitempty"`
	Outcome             string               `json:"outcome,omitempty"`
	ConditionalApproval *ConditionalApproval `json:"conditional_approval,omitempty"`
}

// Outcome is the operative verdict of an evaluated inspection.
type Outcome struct {
	InspectionID string `json:"inspection_id"`
	Verdict      string `json:"verdict"`
	Outcome      string `json:"outcome"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// Permissions is what the caller may do in the project.
type Permissions struct {
	ActorID     string   `json:"actor_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// PaginatedInspections wraps list responses with cursors.
type PaginatedInspections struct {
	Items      []Inspection `json:"items"`
	NextCursor string       `json:"next_cursor"`
}

// ResolvePlan looks up a sampling plan without opening an inspection.
func (c *Client) ResolvePlan(ctx context.Context, q PlanQuery) (Plan, error) {
	v := url.Values{}
	v.Set("lot_size", strconv.Itoa(q.LotSize))
	if q.Level != "" {
		v.Set("level", q.Level)
	}
	for name, aql := range map[string]*float64{"critical_aql": q.Critical, "major_aql": q.Major, "minor_aql": q.Minor} {
		if aql != nil {
			v.Set(name, strconv.FormatFloat(*aql, 'f', -1, 64))
		}
	}
	if q.Category != "" {
		v.Set("category", q.Category)
	}
	if q.Kind != "" {
		v.Set("kind", q.Kind)
	}
	var resp Plan
	err := c.do(ctx, http.MethodGet, "v0/sampling/plan?"+v.Encode(), nil, &resp)
	return resp, err
}

// CreateInspection opens an inspection.
func (c *Client) CreateInspection(ctx context.Context, in CreateInspection) (Inspection, error) {
	var resp Inspection
	err := c.do(ctx, http.MethodPost, c.projectPath("inspections"), in, &resp)
	return resp, err
}

// GetInspection fetches an inspection by id.
func (c *Client) GetInspection(ctx context.Context, id string) (Inspection, error) {
	var resp Inspection
	err := c.do(ctx, http.MethodGet, c.projectPath("inspections/"+url.PathEscape(id)), nil, &resp)
	return resp, err
}

// InspectionsPage returns a page of inspections, newest first.
func (c *Client) InspectionsPage(ctx context.Context, limit int, cursor string) (PaginatedInspections, error) {
	var resp PaginatedInspections
	err := c.do(ctx, http.MethodGet, withPage(c.projectPath("inspections"), limit, cursor), nil, &resp)
	return resp, err
}

// Evaluate submits the full answer set and returns the evaluated inspection.
func (c *Client) Evaluate(ctx context.Context, inspectionID string, answers []Answer) (Inspection, error) {
	body := map[string]any{"answers": answers}
	var resp Inspection
	endpoint := c.projectPath(fmt.Sprintf("inspections/%s/evaluation", url.PathEscape(inspectionID)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Outcome returns the operative verdict of an inspection.
func (c *Client) Outcome(ctx context.Context, inspectionID string) (Outcome, error) {
	var resp Outcome
	endpoint := c.projectPath(fmt.Sprintf("inspections/%s/outcome", url.PathEscape(inspectionID)))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// RequestConditionalApproval asks engineering to accept a CONDITIONAL_APPROVAL lot.
func (c *Client) RequestConditionalApproval(ctx context.Context, inspectionID, reason string) (ConditionalApproval, error) {
	body := map[string]any{"reason": reason}
	var resp ConditionalApproval
	endpoint := c.projectPath(fmt.Sprintf("inspections/%s/conditional-approval", url.PathEscape(inspectionID)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// DecideConditionalApproval approves or rejects a pending request.
func (c *Client) DecideConditionalApproval(ctx context.Context, requestID, decision, justification string) (ConditionalApproval, error) {
	body := map[string]any{
		"decision":      decision,
		"justification": justification,
	}
	var resp ConditionalApproval
	endpoint := c.projectPath(fmt.Sprintf("conditional-approvals/%s/decision", url.PathEscape(requestID)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// PendingApprovals lists requests waiting for a decision.
func (c *Client) PendingApprovals(ctx context.Context) ([]ConditionalApproval, error) {
	var resp []ConditionalApproval
	err := c.do(ctx, http.MethodGet, c.projectPath("conditional-approvals?status=PENDING"), nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withPage(c.projectPath("events"), limit, cursor), nil, &resp)
	return resp, err
}

// MyPermissions returns the caller's roles and permissions in the project.
func (c *Client) MyPermissions(ctx context.Context) (Permissions, error) {
	var resp Permissions
	err := c.do(ctx, http.MethodGet, c.projectPath("me/permissions"), nil, &resp)
	return resp, err
}

func withPage(endpoint string, limit int, cursor string) string {
	v := url.Values{}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		v.Set("cursor", cursor)
	}
	if len(v) == 0 {
		return endpoint
	}
	return endpoint + "?" + v.Encode()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
		reader = &buf
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(p string) string {
	project := url.PathEscape(c.ProjectID)
	return fmt.Sprintf("v0/projects/%s/%s", project, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
