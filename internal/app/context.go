package app

import (
	"context"
	"errors"
	"fmt"

	"permitline/internal/config"
	"permitline/internal/repo"
)

// ResolveConfig returns the active tracker config, seeding the database on
// first use. The stored config wins; when the database has none, a workspace
// permitline.yml is used if present, otherwise the built-in defaults, and the
// result is persisted so later runs see the same tables.
func ResolveConfig(ctx context.Context, workspace string, r repo.Repo) (*config.Config, error) {
	cfg, err := r.GetTrackerConfig(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	seed, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if seed == nil {
		seed = config.Default()
	}
	if err := r.UpsertTrackerConfig(ctx, seed); err != nil {
		return nil, fmt.Errorf("seed tracker config: %w", err)
	}
	return seed, nil
}

// ImportConfig replaces the stored config with the contents of a YAML file.
func ImportConfig(ctx context.Context, path string, r repo.Repo) (*config.Config, error) {
	cfg, err := config.FromFile(path)
	if err != nil {
		return nil, err
	}
	if err := r.UpsertTrackerConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("store tracker config: %w", err)
	}
	return cfg, nil
}
