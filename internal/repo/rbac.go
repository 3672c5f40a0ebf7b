package repo

import (
	"context"
	"database/sql"
	"sort"

	"qualityline/internal/config"
)

func (r Repo) EnsureActor(ctx context.Context, tx *sql.Tx, actorID string, now string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO actors(id, created_at) VALUES (?,?)`, actorID, now)
	return err
}

func (r Repo) InsertRole(ctx context.Context, tx *sql.Tx, id, desc string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO roles(id, description) VALUES (?,?)`, id, nullable(desc))
	return err
}

func (r Repo) InsertPermission(ctx context.Context, tx *sql.Tx, id, desc string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO permissions(id, description) VALUES (?,?)`, id, nullable(desc))
	return err
}

func (r Repo) AddRolePermission(ctx context.Context, tx *sql.Tx, roleID, permID string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO role_permissions(role_id, permission_id) VALUES (?,?)`, roleID, permID)
	return err
}

// SeedRBAC stores the roles and permissions declared in cfg.
func (r Repo) SeedRBAC(ctx context.Context, tx *sql.Tx, cfg *config.Config) error {
	for _, perm := range config.KnownPermissions {
		if err := r.InsertPermission(ctx, tx, perm, ""); err != nil {
			return err
		}
	}
	roleIDs := make([]string, 0, len(cfg.RBAC.Roles))
	for id := range cfg.RBAC.Roles {
		roleIDs = append(roleIDs, id)
	}
	sort.Strings(roleIDs)
	for _, roleID := range roleIDs {
		role := cfg.RBAC.Roles[roleID]
		if err := r.InsertRole(ctx, tx, roleID, role.Description); err != nil {
			return err
		}
		for _, perm := range role.Permissions {
			if err := r.InsertPermission(ctx, tx, perm, ""); err != nil {
				return err
			}
			if err := r.AddRolePermission(ctx, tx, roleID, perm); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r Repo) RoleExists(ctx context.Context, tx *sql.Tx, roleID string) (bool, error) {
	var n int
	if err := r.q(tx).QueryRowContext(ctx, `SELECT COUNT(1) FROM roles WHERE id=?`, roleID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r Repo) AssignRole(ctx context.Context, tx *sql.Tx, projectID, actorID, roleID, now string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO actor_roles(project_id, actor_id, role_id, created_at) VALUES (?,?,?,?)`, projectID, actorID, roleID, now)
	return err
}

func (r Repo) RevokeRole(ctx context.Context, tx *sql.Tx, projectID, actorID, roleID string) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM actor_roles WHERE project_id=? AND actor_id=? AND role_id=?`, projectID, actorID, roleID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ActorRoles returns the roles held by an actor in a project, sorted.
func (r Repo) ActorRoles(ctx context.Context, tx *sql.Tx, projectID, actorID string) ([]string, error) {
	return r.strings(ctx, tx, `SELECT role_id FROM actor_roles WHERE project_id=? AND actor_id=? ORDER BY role_id`, projectID, actorID)
}

// ActorPermissions returns the union of permissions granted through the
// actor's roles in a project.
func (r Repo) ActorPermissions(ctx context.Context, tx *sql.Tx, projectID, actorID string) ([]string, error) {
	return r.strings(ctx, tx, `SELECT DISTINCT rp.permission_id FROM actor_roles ar
JOIN role_permissions rp ON rp.role_id = ar.role_id
WHERE ar.project_id=? AND ar.actor_id=? ORDER BY rp.permission_id`, projectID, actorID)
}

// HasPermission reports whether any of the actor's roles grants perm.
func (r Repo) HasPermission(ctx context.Context, tx *sql.Tx, projectID, actorID, perm string) (bool, error) {
	var n int
	err := r.q(tx).QueryRowContext(ctx, `SELECT COUNT(1) FROM actor_roles ar
JOIN role_permissions rp ON rp.role_id = ar.role_id
WHERE ar.project_id=? AND ar.actor_id=? AND rp.permission_id=?`, projectID, actorID, perm).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r Repo) strings(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := r.q(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
