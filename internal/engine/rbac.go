package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"qualityline/internal/config"
	"qualityline/internal/domain"
	"qualityline/internal/events"
	"qualityline/internal/repo"
)

// GrantRole gives targetID a role in a project. byActor needs rbac.manage.
func (e Engine) GrantRole(ctx context.Context, projectID, byActor, targetID, roleID string, granted []string) error {
	if strings.TrimSpace(targetID) == "" || strings.TrimSpace(roleID) == "" {
		return InputError{Field: "role", Reason: "actor_id and role_id are required"}
	}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Auth.Require(ctx, tx, projectID, byActor, config.PermRBACManage, granted); err != nil {
		return err
	}
	exists, err := e.Repo.RoleExists(ctx, tx, roleID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("role %s: %w", roleID, repo.ErrNotFound)
	}
	now := e.timestamp()
	if err := e.Repo.EnsureActor(ctx, tx, targetID, now); err != nil {
		return err
	}
	if err := e.Repo.AssignRole(ctx, tx, projectID, targetID, roleID, now); err != nil {
		return err
	}
	if err := e.appendEvent(ctx, tx, events.RoleGranted, projectID, events.EntityActor, targetID, byActor, events.EventPayload{"role": roleID}); err != nil {
		return err
	}
	return tx.Commit()
}

// RevokeRole removes a role from targetID. byActor needs rbac.manage.
func (e Engine) RevokeRole(ctx context.Context, projectID, byActor, targetID, roleID string, granted []string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Auth.Require(ctx, tx, projectID, byActor, config.PermRBACManage, granted); err != nil {
		return err
	}
	removed, err := e.Repo.RevokeRole(ctx, tx, projectID, targetID, roleID)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("role %s for actor %s: %w", roleID, targetID, repo.ErrNotFound)
	}
	if err := e.appendEvent(ctx, tx, events.RoleRevoked, projectID, events.EntityActor, targetID, byActor, events.EventPayload{"role": roleID}); err != nil {
		return err
	}
	return tx.Commit()
}

// WhoAmI returns the roles and permissions an actor holds in a project.
func (e Engine) WhoAmI(ctx context.Context, projectID, actorID string) (domain.ActorProfile, error) {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return domain.ActorProfile{}, err
	}
	roles, err := e.Auth.ActorRoles(ctx, nil, projectID, actorID)
	if err != nil {
		return domain.ActorProfile{}, err
	}
	perms, err := e.Auth.ActorPermissions(ctx, nil, projectID, actorID)
	if err != nil {
		return domain.ActorProfile{}, err
	}
	return domain.ActorProfile{ProjectID: projectID, ActorID: actorID, Roles: roles, Permissions: perms}, nil
}

// CreateAPIKey issues a key for actorID and returns it with its plaintext,
// which is not stored.
func (e Engine) CreateAPIKey(ctx context.Context, projectID, byActor, actorID, name string, granted []string) (domain.APIKey, string, error) {
	if strings.TrimSpace(actorID) == "" {
		return domain.APIKey{}, "", InputError{Field: "actor_id", Reason: "required"}
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", err
	}
	secret := "ql_" + hex.EncodeToString(buf)
	key := domain.APIKey{
		ID:        uuid.New().String(),
		ActorID:   actorID,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(secret),
		CreatedAt: e.timestamp(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()
	if err := e.Auth.Require(ctx, tx, projectID, byActor, config.PermAPIKeyManage, granted); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := e.Repo.EnsureActor(ctx, tx, actorID, key.CreatedAt); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := e.appendEvent(ctx, tx, events.APIKeyCreated, projectID, events.EntityAPIKey, key.ID, byActor, events.EventPayload{"actor_id": actorID, "name": key.Name}); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, secret, nil
}

// RevokeAPIKey deletes a key. byActor needs apikey.manage.
func (e Engine) RevokeAPIKey(ctx context.Context, projectID, byActor, keyID string, granted []string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Auth.Require(ctx, tx, projectID, byActor, config.PermAPIKeyManage, granted); err != nil {
		return err
	}
	key, err := e.Repo.GetAPIKey(ctx, tx, keyID)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteAPIKey(ctx, tx, keyID); err != nil {
		return err
	}
	if err := e.appendEvent(ctx, tx, events.APIKeyRevoked, projectID, events.EntityAPIKey, keyID, byActor, events.EventPayload{"actor_id": key.ActorID}); err != nil {
		return err
	}
	return tx.Commit()
}
