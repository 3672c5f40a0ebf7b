package app

import (
	"context"
	"errors"
	"fmt"

	"qualityline/internal/config"
	"qualityline/internal/engine"
	"qualityline/internal/repo"
)

// ResolveProjectAndConfig picks the active project and makes sure it exists,
// creating it from the engine's config (or the defaults) when missing. It
// prefers the override, then the config file's project, then the only
// project in the database.
func ResolveProjectAndConfig(ctx context.Context, e engine.Engine, projectOverride, actorID string) (string, *config.Config, error) {
	projectID := projectOverride
	if projectID == "" && e.Config != nil {
		projectID = e.Config.Project.ID
	}
	if projectID == "" {
		p, err := e.Repo.SingleProject(ctx)
		if err != nil {
			return "", nil, fmt.Errorf("project not specified; use --project")
		}
		projectID = p.ID
	}

	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if actorID == "" {
			actorID = "local-user"
		}
		seed := e
		if seed.Config == nil || seed.Config.Project.ID != projectID {
			seed.Config = config.Default(projectID)
		}
		if _, err := seed.InitProject(ctx, projectID, "", actorID); err != nil {
			return "", nil, fmt.Errorf("create project %s: %w", projectID, err)
		}
	}
	cfg, err := e.ProjectConfig(ctx, projectID)
	if err != nil {
		return "", nil, err
	}
	cfg.Project.ID = projectID
	return projectID, cfg, nil
}
