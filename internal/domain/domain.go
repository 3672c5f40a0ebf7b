package domain

import (
	"qualityline/internal/approval"
	"qualityline/internal/coverage"
	"qualityline/internal/defects"
	"qualityline/internal/disposition"
	"qualityline/internal/sampling"
)

type Project struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Status      string `json:"status"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// Inspection statuses.
const (
	InspectionOpen      = "open"
	InspectionEvaluated = "evaluated"
)

// Inspection is one lot inspection: the resolved sampling plan, the question
// set and, once evaluated, the defect tally and disposition.
type Inspection struct {
	ID             string                  `json:"id"`
	ProjectID      string                  `json:"project_id"`
	Reference      string                  `json:"reference,omitempty"`
	Product        string                  `json:"product,omitempty"`
	Kind           coverage.Kind           `json:"kind" enum:"container,bonification"`
	Category       coverage.Category       `json:"category" enum:"graphic_material,functional,packaging"`
	LotSize        int                     `json:"lot_size"`
	Level          sampling.Level          `json:"level"`
	SampleCode     sampling.Code           `json:"sample_code"`
	SampleSize     int                     `json:"sample_size"`
	TableVersion   string                  `json:"table_version"`
	AQLs           sampling.SeverityAQLs   `json:"aqls"`
	AQLLimits      sampling.Limits         `json:"aql_limits"`
	Questions      []defects.Question      `json:"questions"`
	PhotoQuota     coverage.Quota          `json:"photo_quota"`
	Status         string                  `json:"status" enum:"open,evaluated"`
	InspectedUnits int                     `json:"inspected_units"`
	Defects        *defects.Tally          `json:"defects,omitempty"`
	Findings       []defects.Finding       `json:"findings,omitempty"`
	Validation     *disposition.Validation `json:"validation,omitempty"`
	Statistics     *defects.Statistics     `json:"statistics,omitempty"`
	Warnings       []string                `json:"warnings,omitempty"`
	Message        string                  `json:"message,omitempty"`
	// Outcome is the operative verdict once a conditional approval is decided.
	Outcome             disposition.Verdict `json:"outcome,omitempty"`
	ConditionalApproval *approval.Request   `json:"conditional_approval,omitempty"`
	CreatedBy           string              `json:"created_by"`
	CreatedAt           string              `json:"created_at" format:"date-time"`
	UpdatedAt           string              `json:"updated_at" format:"date-time"`
	EvaluatedAt         *string             `json:"evaluated_at,omitempty" format:"date-time"`
}

// Evaluated reports whether a disposition has been computed.
func (i Inspection) Evaluated() bool {
	return i.Status == InspectionEvaluated && i.Validation != nil
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// ActorProfile is what an actor may do in a project.
type ActorProfile struct {
	ProjectID   string   `json:"project_id"`
	ActorID     string   `json:"actor_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}
