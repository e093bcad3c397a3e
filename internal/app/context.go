package app

import (
	"context"
	"errors"
	"fmt"

	"herdline/internal/config"
	"herdline/internal/engine/gate"
	"herdline/internal/repo"
)

// ResolveConfig loads the deployment config from the database, seeding
// the default catalog and policy on first use.
func ResolveConfig(ctx context.Context, deployment string, r repo.Repo) (*config.Config, error) {
	if deployment == "" {
		deployment = "default"
	}
	cfg, err := r.GetDeploymentConfig(ctx, deployment)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	seed := config.Default(deployment)
	if err := r.UpsertDeploymentConfig(ctx, deployment, seed); err != nil {
		return nil, fmt.Errorf("seed deployment config: %w", err)
	}
	return seed, nil
}

// EnsureAffiliation repairs the cached unit columns on the actor row
// from the membership table. It never creates units or memberships;
// provisioning is an explicit operation.
func EnsureAffiliation(ctx context.Context, actorID string, r repo.Repo, g gate.Gate) (gate.Affiliation, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return gate.Affiliation{}, err
	}
	defer tx.Rollback()
	actor, err := r.GetActorTx(ctx, tx, actorID)
	if err != nil {
		return gate.Affiliation{}, err
	}
	aff, err := g.ResolveUnit(ctx, tx, actor)
	if err != nil {
		// Commit so a cleared stale cache sticks.
		if uerr := (gate.UnaffiliatedError{}); errors.As(err, &uerr) {
			_ = tx.Commit()
		}
		return gate.Affiliation{}, err
	}
	if err := tx.Commit(); err != nil {
		return gate.Affiliation{}, err
	}
	return aff, nil
}

// ImportConfig validates a config file and stores it for the deployment.
// A workspace herdline.yml overrides the seeded default this way.
func ImportConfig(ctx context.Context, deployment, path string, r repo.Repo) (*config.Config, error) {
	cfg, err := config.FromFile(path)
	if err != nil {
		return nil, err
	}
	if err := r.UpsertDeploymentConfig(ctx, deployment, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
