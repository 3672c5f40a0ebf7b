package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"qualityline/internal/config"
	"qualityline/internal/db"
	"qualityline/internal/engine/auth"
	"qualityline/internal/migrate"
	"qualityline/internal/repo"
)

func TestRequire(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	ctx := context.Background()
	r := repo.Repo{DB: conn}

	_, err = conn.Exec(`INSERT INTO projects(id,kind,status,created_at) VALUES ('p1','quality-line','active','2026-01-01T00:00:00Z')`)
	require.NoError(t, err)
	require.NoError(t, r.SeedRBAC(ctx, nil, config.Default("p1")))
	svc := auth.Service{Repo: r}
	require.NoError(t, svc.EnsureActor(ctx, nil, "eng-1"))
	require.NoError(t, r.AssignRole(ctx, nil, "p1", "eng-1", "engineering", "2026-01-01T00:00:00Z"))

	require.NoError(t, svc.Require(ctx, nil, "p1", "eng-1", config.PermApprovalDecide, nil))

	err = svc.Require(ctx, nil, "p1", "eng-1", config.PermInspectionCreate, nil)
	var fe auth.ForbiddenError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, config.PermInspectionCreate, fe.Permission)

	require.NoError(t, svc.Require(ctx, nil, "p1", "nobody", config.PermInspectionCreate, []string{config.PermInspectionCreate}))
	require.Error(t, svc.Require(ctx, nil, "p1", "", config.PermEventsRead, nil))

	roles, err := svc.ActorRoles(ctx, nil, "p1", "eng-1")
	require.NoError(t, err)
	require.Equal(t, []string{"engineering"}, roles)
	perms, err := svc.ActorPermissions(ctx, nil, "p1", "eng-1")
	require.NoError(t, err)
	require.Contains(t, perms, config.PermApprovalDecide)
	require.NotContains(t, perms, config.PermRBACManage)
}
