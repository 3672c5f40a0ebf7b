package server

import (
	"encoding/json"

	"qualityline/internal/approval"
	"qualityline/internal/config"
	"qualityline/internal/coverage"
	"qualityline/internal/defects"
	"qualityline/internal/domain"
	"qualityline/internal/engine"
	"qualityline/internal/sampling"
)

// Request payloads

type QuestionRequest struct {
	ID            string   `json:"id"`
	Text          string   `json:"text,omitempty"`
	Type          string   `json:"type" enum:"boolean,numericRange,scale,text,photoPresence,choice"`
	Severity      string   `json:"severity" enum:"CRITICAL,MAJOR,MINOR"`
	Required      bool     `json:"required,omitempty"`
	FailingValue  string   `json:"failing_value,omitempty"`
	Min           *float64 `json:"min,omitempty"`
	Max           *float64 `json:"max,omitempty"`
	Expected      *float64 `json:"expected,omitempty"`
	Tolerance     float64  `json:"tolerance,omitempty"`
	PassThreshold *float64 `json:"pass_threshold,omitempty"`
	Options       []string `json:"options,omitempty"`
}

type PlanRequest struct {
	LotSize  int      `json:"lot_size" minimum:"0"`
	Level    string   `json:"level,omitempty" example:"II"`
	Critical *float64 `json:"critical_aql,omitempty"`
	Major    *float64 `json:"major_aql,omitempty"`
	Minor    *float64 `json:"minor_aql,omitempty"`
	Category string   `json:"category,omitempty" enum:"graphic_material,functional,packaging"`
	Kind     string   `json:"kind,omitempty" enum:"container,bonification"`
}

type CreateInspectionRequest struct {
	ID        string            `json:"id,omitempty"`
	Reference string            `json:"reference,omitempty"`
	Product   string            `json:"product,omitempty"`
	Plan      PlanRequest       `json:"plan"`
	Checklist string            `json:"checklist,omitempty"`
	Questions []QuestionRequest `json:"questions,omitempty"`
}

type AnswerRequest struct {
	QuestionID string `json:"question_id"`
	Unit       int    `json:"unit"`
	Value      any    `json:"value,omitempty"`
	Photos     int    `json:"photos,omitempty"`
}

type EvaluateInspectionRequest struct {
	Answers []AnswerRequest `json:"answers"`
}

type ConditionalApprovalRequest struct {
	Reason string `json:"reason"`
}

type ApprovalDecisionRequest struct {
	Decision      string `json:"decision" enum:"approve,reject"`
	Justification string `json:"justification"`
}

type RoleChangeRequest struct {
	ActorID string `json:"actor_id"`
	RoleID  string `json:"role_id"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	ActorID     string   `json:"actor_id"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// Response payloads

type ProjectResponse struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type LimitResponse struct {
	N   int     `json:"n"`
	AQL float64 `json:"aql"`
	Ac  int     `json:"ac"`
	Re  int     `json:"re"`
}

type LimitsResponse struct {
	Critical LimitResponse `json:"critical"`
	Major    LimitResponse `json:"major"`
	Minor    LimitResponse `json:"minor"`
}

type AQLsResponse struct {
	Critical float64 `json:"critical"`
	Major    float64 `json:"major"`
	Minor    float64 `json:"minor"`
}

type PhotoQuotaResponse struct {
	TotalSampleSize  int `json:"total_sample_size"`
	GraphicSubSample int `json:"graphic_sub_sample"`
	FunctionalSample int `json:"functional_sample"`
	RequiredPhotos   int `json:"required_photos"`
}

type PlanResponse struct {
	LotSize      int                `json:"lot_size"`
	Level        string             `json:"level"`
	Code         string             `json:"code"`
	SampleSize   int                `json:"sample_size"`
	TableVersion string             `json:"table_version"`
	AQLs         AQLsResponse       `json:"aqls"`
	Limits       LimitsResponse     `json:"limits"`
	Category     string             `json:"category"`
	Kind         string             `json:"kind"`
	Photos       PhotoQuotaResponse `json:"photos"`
}

type TallyResponse struct {
	Critical int `json:"critical"`
	Major    int `json:"major"`
	Minor    int `json:"minor"`
}

type ValidationResponse struct {
	Critical string `json:"critical" enum:"PASS,FAIL"`
	Major    string `json:"major" enum:"PASS,FAIL"`
	Minor    string `json:"minor" enum:"PASS,FAIL"`
	Overall  string `json:"overall" enum:"APPROVED,REJECTED,CONDITIONAL_APPROVAL"`
}

type FindingResponse struct {
	QuestionID string `json:"question_id"`
	Unit       int    `json:"unit"`
	Severity   string `json:"severity"`
}

type StatisticsResponse struct {
	Units                  int     `json:"units"`
	TotalQuestions         int     `json:"total_questions"`
	AnsweredQuestions      int     `json:"answered_questions"`
	RequiredQuestions      int     `json:"required_questions"`
	AnsweredRequired       int     `json:"answered_required"`
	CompletionRate         float64 `json:"completion_rate"`
	RequiredCompletionRate float64 `json:"required_completion_rate"`
	TotalDefects           int     `json:"total_defects"`
}

type ApprovalResponse struct {
	ID            string `json:"id"`
	InspectionID  string `json:"inspection_id"`
	Reason        string `json:"reason"`
	RequestedBy   string `json:"requested_by"`
	Status        string `json:"status" enum:"PENDING,APPROVED,REJECTED"`
	DecidedBy     string `json:"decided_by,omitempty"`
	Justification string `json:"justification,omitempty"`
	Version       int    `json:"version"`
	RequestedAt   string `json:"requested_at" format:"date-time"`
	DecidedAt     string `json:"decided_at,omitempty" format:"date-time"`
}

type InspectionResponse struct {
	ID                  string              `json:"id"`
	ProjectID           string              `json:"project_id"`
	Reference           string              `json:"reference,omitempty"`
	Product             string              `json:"product,omitempty"`
	Kind                string              `json:"kind"`
	Category            string              `json:"category"`
	LotSize             int                 `json:"lot_size"`
	Level               string              `json:"level"`
	SampleCode          string              `json:"sample_code"`
	SampleSize          int                 `json:"sample_size"`
	TableVersion        string              `json:"table_version"`
	AQLs                AQLsResponse        `json:"aqls"`
	Limits              LimitsResponse      `json:"limits"`
	Questions           []QuestionRequest   `json:"questions"`
	PhotoQuota          PhotoQuotaResponse  `json:"photo_quota"`
	Status              string              `json:"status" enum:"open,evaluated"`
	InspectedUnits      int                 `json:"inspected_units"`
	Defects             *TallyResponse      `json:"defects,omitempty"`
	Findings            []FindingResponse   `json:"findings,omitempty"`
	Validation          *ValidationResponse `json:"validation,omitempty"`
	Statistics          *StatisticsResponse `json:"statistics,omitempty"`
	Warnings            []string            `json:"warnings,omitempty"`
	Message             string              `json:"message,omitempty"`
	Outcome             string              `json:"outcome,omitempty"`
	ConditionalApproval *ApprovalResponse   `json:"conditional_approval,omitempty"`
	CreatedBy           string              `json:"created_by"`
	CreatedAt           string              `json:"created_at" format:"date-time"`
	UpdatedAt           string              `json:"updated_at" format:"date-time"`
	EvaluatedAt         string              `json:"evaluated_at,omitempty" format:"date-time"`
}

type OutcomeResponse struct {
	InspectionID string `json:"inspection_id"`
	Verdict      string `json:"verdict"`
	Outcome      string `json:"outcome"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type WhoAmIResponse struct {
	ActorID     string   `json:"actor_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
	Key       string `json:"key,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type ChecklistResponse struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Questions   []QuestionRequest `json:"questions"`
}

type ProjectConfigResponse struct {
	ProjectID    string              `json:"project_id"`
	DefaultLevel string              `json:"default_level"`
	AQLs         AQLsResponse        `json:"aqls"`
	Category     string              `json:"default_category"`
	Kind         string              `json:"default_kind"`
	Checklists   []ChecklistResponse `json:"checklists"`
	Roles        map[string][]string `json:"roles"`
}

type paginatedInspections struct {
	Items      []InspectionResponse `json:"items"`
	NextCursor string               `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse(p)
}

func (q QuestionRequest) question() defects.Question {
	sev, err := sampling.ParseSeverity(q.Severity)
	if err != nil {
		sev = sampling.Severity(q.Severity)
	}
	return defects.Question{
		ID:       q.ID,
		Text:     q.Text,
		Type:     defects.Type(q.Type),
		Severity: sev,
		Required: q.Required,
		Requirement: defects.Requirement{
			FailingValue:  q.FailingValue,
			Min:           q.Min,
			Max:           q.Max,
			Expected:      q.Expected,
			Tolerance:     q.Tolerance,
			PassThreshold: q.PassThreshold,
			Options:       q.Options,
		},
	}
}

func questionResponse(q defects.Question) QuestionRequest {
	return QuestionRequest{
		ID:            q.ID,
		Text:          q.Text,
		Type:          string(q.Type),
		Severity:      string(q.Severity),
		Required:      q.Required,
		FailingValue:  q.Requirement.FailingValue,
		Min:           q.Requirement.Min,
		Max:           q.Requirement.Max,
		Expected:      q.Requirement.Expected,
		Tolerance:     q.Requirement.Tolerance,
		PassThreshold: q.Requirement.PassThreshold,
		Options:       q.Requirement.Options,
	}
}

func questionsFromRequest(in []QuestionRequest) []defects.Question {
	if len(in) == 0 {
		return nil
	}
	out := make([]defects.Question, 0, len(in))
	for _, q := range in {
		out = append(out, q.question())
	}
	return out
}

func questionResponses(in []defects.Question) []QuestionRequest {
	out := make([]QuestionRequest, 0, len(in))
	for _, q := range in {
		out = append(out, questionResponse(q))
	}
	return out
}

func answersFromRequest(in []AnswerRequest) []defects.Answer {
	out := make([]defects.Answer, 0, len(in))
	for _, a := range in {
		out = append(out, defects.Answer(a))
	}
	return out
}

func (p PlanRequest) options() engine.PlanOptions {
	return engine.PlanOptions{
		LotSize:  p.LotSize,
		Level:    p.Level,
		Critical: p.Critical,
		Major:    p.Major,
		Minor:    p.Minor,
		Category: p.Category,
		Kind:     p.Kind,
	}
}

func limitResponse(l sampling.Limit) LimitResponse {
	return LimitResponse{N: l.N, AQL: l.AQL.Percent(), Ac: l.Ac, Re: l.Re}
}

func limitsResponse(l sampling.Limits) LimitsResponse {
	return LimitsResponse{
		Critical: limitResponse(l.Critical),
		Major:    limitResponse(l.Major),
		Minor:    limitResponse(l.Minor),
	}
}

func aqlsResponse(a sampling.SeverityAQLs) AQLsResponse {
	return AQLsResponse{Critical: a.Critical.Percent(), Major: a.Major.Percent(), Minor: a.Minor.Percent()}
}

func photoQuotaResponse(q coverage.Quota) PhotoQuotaResponse {
	return PhotoQuotaResponse(q)
}

func planResponse(res engine.PlanResult) PlanResponse {
	return PlanResponse{
		LotSize:      res.Plan.LotSize,
		Level:        string(res.Plan.Level),
		Code:         res.Plan.Code.String(),
		SampleSize:   res.Plan.SampleSize,
		TableVersion: res.Plan.TableVersion,
		AQLs:         aqlsResponse(res.AQLs),
		Limits:       limitsResponse(res.Plan.Limits),
		Category:     string(res.Category),
		Kind:         string(res.Kind),
		Photos:       photoQuotaResponse(res.Photos),
	}
}

func approvalResponse(r approval.Request) ApprovalResponse {
	res := ApprovalResponse{
		ID:            r.ID,
		InspectionID:  r.InspectionID,
		Reason:        r.Reason,
		RequestedBy:   r.RequestedBy,
		Status:        string(r.Status),
		DecidedBy:     r.DecidedBy,
		Justification: r.Justification,
		Version:       r.Version,
		RequestedAt:   formatTime(r.RequestedAt),
	}
	if r.DecidedAt != nil {
		res.DecidedAt = formatTime(*r.DecidedAt)
	}
	return res
}

func inspectionResponse(in domain.Inspection) InspectionResponse {
	res := InspectionResponse{
		ID:             in.ID,
		ProjectID:      in.ProjectID,
		Reference:      in.Reference,
		Product:        in.Product,
		Kind:           string(in.Kind),
		Category:       string(in.Category),
		LotSize:        in.LotSize,
		Level:          string(in.Level),
		SampleCode:     in.SampleCode.String(),
		SampleSize:     in.SampleSize,
		TableVersion:   in.TableVersion,
		AQLs:           aqlsResponse(in.AQLs),
		Limits:         limitsResponse(in.AQLLimits),
		Questions:      questionResponses(in.Questions),
		PhotoQuota:     photoQuotaResponse(in.PhotoQuota),
		Status:         in.Status,
		InspectedUnits: in.InspectedUnits,
		Warnings:       in.Warnings,
		Message:        in.Message,
		Outcome:        string(in.Outcome),
		CreatedBy:      in.CreatedBy,
		CreatedAt:      in.CreatedAt,
		UpdatedAt:      in.UpdatedAt,
		EvaluatedAt:    strPtrValue(in.EvaluatedAt),
	}
	if in.Defects != nil {
		t := TallyResponse(*in.Defects)
		res.Defects = &t
	}
	for _, f := range in.Findings {
		res.Findings = append(res.Findings, FindingResponse{QuestionID: f.QuestionID, Unit: f.Unit, Severity: string(f.Severity)})
	}
	if v := in.Validation; v != nil {
		res.Validation = &ValidationResponse{
			Critical: string(v.Critical),
			Major:    string(v.Major),
			Minor:    string(v.Minor),
			Overall:  string(v.Overall),
		}
	}
	if st := in.Statistics; st != nil {
		res.Statistics = &StatisticsResponse{
			Units:                  st.Units,
			TotalQuestions:         st.TotalQuestions,
			AnsweredQuestions:      st.AnsweredQuestions,
			RequiredQuestions:      st.RequiredQuestions,
			AnsweredRequired:       st.AnsweredRequired,
			CompletionRate:         st.CompletionRate,
			RequiredCompletionRate: st.RequiredCompletionRate,
			TotalDefects:           st.TotalDefects,
		}
	}
	if in.ConditionalApproval != nil {
		a := approvalResponse(*in.ConditionalApproval)
		res.ConditionalApproval = &a
	}
	return res
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(strPtr(e.Payload)),
	}
}

func apiKeyResponse(k domain.APIKey, plaintext string) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, ActorID: k.ActorID, Name: k.Name, CreatedAt: k.CreatedAt, Key: plaintext}
}

func configResponse(projectID string, cfg *config.Config) ProjectConfigResponse {
	res := ProjectConfigResponse{
		ProjectID:  projectID,
		Category:   string(cfg.DefaultCategory()),
		Kind:       cfg.Photos.DefaultKind,
		Checklists: []ChecklistResponse{},
		Roles:      map[string][]string{},
	}
	if level, err := cfg.DefaultLevel(); err == nil {
		res.DefaultLevel = string(level)
	}
	if aqls, err := cfg.AQLs(); err == nil {
		res.AQLs = aqlsResponse(aqls)
	}
	for _, name := range cfg.ChecklistNames() {
		cl := cfg.Checklists[name]
		res.Checklists = append(res.Checklists, ChecklistResponse{
			Name:        name,
			Description: cl.Description,
			Questions:   questionResponses(cl.Questions),
		})
	}
	for id, role := range cfg.RBAC.Roles {
		res.Roles[id] = nonNilSlice(role.Permissions)
	}
	return res
}

// JSON helpers

func decodeJSONMap(raw *string) map[string]any {
	if raw == nil || *raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(*raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func strPtr(in string) *string {
	return &in
}

func strPtrValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
