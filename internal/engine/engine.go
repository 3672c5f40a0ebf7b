package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"qualityline/internal/config"
	"qualityline/internal/domain"
	"qualityline/internal/engine/auth"
	"qualityline/internal/events"
	"qualityline/internal/logging"
	"qualityline/internal/metrics"
	"qualityline/internal/repo"
)

type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Auth    auth.Service
	Events  events.Writer
	Config  *config.Config
	Metrics *metrics.Metrics
	Log     *slog.Logger
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:     db,
		Repo:   r,
		Auth:   auth.Service{Repo: r},
		Events: events.Writer{},
		Config: cfg,
		Log:    logging.New("engine"),
		Now:    time.Now,
	}
}

// InputError reports a malformed request field.
type InputError struct {
	Field  string
	Reason string
}

func (e InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) log() *slog.Logger {
	if e.Log != nil {
		return e.Log
	}
	return slog.Default()
}

func (e Engine) appendEvent(ctx context.Context, tx *sql.Tx, evtType, projectID, entityKind, entityID, actorID string, payload events.EventPayload) error {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w.Append(ctx, tx, evtType, projectID, entityKind, entityID, actorID, payload)
}

// projectConfig returns the stored config of a project, falling back to the
// engine's config and then to the defaults.
func (e Engine) projectConfig(ctx context.Context, projectID string) (*config.Config, error) {
	cfg, err := e.Repo.GetProjectConfig(ctx, projectID)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	if e.Config != nil {
		return e.Config, nil
	}
	return config.Default(projectID), nil
}

// ProjectConfig is the exported form of projectConfig.
func (e Engine) ProjectConfig(ctx context.Context, projectID string) (*config.Config, error) {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return e.projectConfig(ctx, projectID)
}

// InitProject creates a project, stores its config, seeds the roles the
// config declares and makes actorID the project owner.
func (e Engine) InitProject(ctx context.Context, projectID, description, actorID string) (domain.Project, error) {
	if strings.TrimSpace(projectID) == "" {
		return domain.Project{}, InputError{Field: "project_id", Reason: "required"}
	}
	if strings.TrimSpace(actorID) == "" {
		return domain.Project{}, InputError{Field: "actor_id", Reason: "required"}
	}
	cfg := e.Config
	if cfg == nil || cfg.Project.ID != projectID {
		cfg = config.Default(projectID)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p := domain.Project{
		ID:          projectID,
		Kind:        config.ProjectKind,
		Status:      "active",
		Description: description,
		CreatedAt:   e.timestamp(),
	}
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.Repo.UpsertProjectConfig(ctx, tx, p.ID, cfg); err != nil {
		return domain.Project{}, fmt.Errorf("insert project config: %w", err)
	}
	if err := e.Repo.SeedRBAC(ctx, tx, cfg); err != nil {
		return domain.Project{}, fmt.Errorf("seed rbac: %w", err)
	}
	if err := e.Repo.EnsureActor(ctx, tx, actorID, p.CreatedAt); err != nil {
		return domain.Project{}, err
	}
	if _, ok := cfg.RBAC.Roles["owner"]; ok {
		if err := e.Repo.AssignRole(ctx, tx, p.ID, actorID, "owner", p.CreatedAt); err != nil {
			return domain.Project{}, err
		}
	}
	if err := e.appendEvent(ctx, tx, events.ProjectInit, p.ID, events.EntityProject, p.ID, actorID, events.EventPayload{"status": p.Status}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	e.log().Info("project initialized", "project", p.ID, "actor", actorID)
	return p, nil
}

// UpdateProjectConfig replaces a project's config and re-seeds its roles.
func (e Engine) UpdateProjectConfig(ctx context.Context, projectID string, cfg *config.Config, actorID string, granted []string) error {
	if cfg == nil {
		return InputError{Field: "config", Reason: "required"}
	}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Auth.Require(ctx, tx, projectID, actorID, config.PermRBACManage, granted); err != nil {
		return err
	}
	if err := e.Repo.UpsertProjectConfig(ctx, tx, projectID, cfg); err != nil {
		return err
	}
	if err := e.Repo.SeedRBAC(ctx, tx, cfg); err != nil {
		return err
	}
	if err := e.appendEvent(ctx, tx, events.ProjectConfigured, projectID, events.EntityProject, projectID, actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// Authorize checks a read permission outside of a write transaction.
func (e Engine) Authorize(ctx context.Context, projectID, actorID, perm string, granted []string) error {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return err
	}
	return e.Auth.Require(ctx, nil, projectID, actorID, perm, granted)
}

// ListEvents lists audit events newest first.
func (e Engine) ListEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, f)
}
