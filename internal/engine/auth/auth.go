package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"qualityline/internal/repo"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// Service provides RBAC helpers backed by SQL.
type Service struct {
	Repo repo.Repo
}

func (s Service) EnsureActor(ctx context.Context, tx *sql.Tx, actorID string) error {
	if actorID == "" {
		return errors.New("actor_id required")
	}
	return s.Repo.EnsureActor(ctx, tx, actorID, time.Now().UTC().Format(time.RFC3339))
}

func (s Service) ActorHasPermission(ctx context.Context, tx *sql.Tx, projectID, actorID, perm string) (bool, error) {
	return s.Repo.HasPermission(ctx, tx, projectID, actorID, perm)
}

func (s Service) ActorRoles(ctx context.Context, tx *sql.Tx, projectID, actorID string) ([]string, error) {
	return s.Repo.ActorRoles(ctx, tx, projectID, actorID)
}

func (s Service) ActorPermissions(ctx context.Context, tx *sql.Tx, projectID, actorID string) ([]string, error) {
	return s.Repo.ActorPermissions(ctx, tx, projectID, actorID)
}

// Require returns ForbiddenError unless perm is among granted or one of the
// actor's project roles carries it. granted holds permissions already
// established by the caller, for example from token claims.
func (s Service) Require(ctx context.Context, tx *sql.Tx, projectID, actorID, perm string, granted []string) error {
	if slices.Contains(granted, perm) {
		return nil
	}
	if actorID == "" {
		return ForbiddenError{Permission: perm}
	}
	ok, err := s.ActorHasPermission(ctx, tx, projectID, actorID, perm)
	if err != nil {
		return err
	}
	if !ok {
		return ForbiddenError{Permission: perm}
	}
	return nil
}
