package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types appended by the engine.
const (
	ProjectInit         = "project.init"
	ProjectConfigured   = "project.config_updated"
	InspectionCreated   = "inspection.created"
	InspectionEvaluated = "inspection.evaluated"
	ApprovalRequested   = "approval.requested"
	ApprovalDecided     = "approval.decided"
	RoleGranted         = "rbac.role_granted"
	RoleRevoked         = "rbac.role_revoked"
	APIKeyCreated       = "apikey.created"
	APIKeyRevoked       = "apikey.revoked"
)

// Entity kinds referenced by events.
const (
	EntityProject    = "project"
	EntityInspection = "inspection"
	EntityApproval   = "conditional_approval"
	EntityActor      = "actor"
	EntityAPIKey     = "api_key"
)

// Writer appends audit events inside the caller's transaction so that an
// event exists iff the change it describes was committed.
type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, projectID, entityKind, entityID, actorID string, payload EventPayload) error {
	if tx == nil {
		return fmt.Errorf("append %s: transaction required", evtType)
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(projectID), entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return fmt.Errorf("append %s: %w", evtType, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
