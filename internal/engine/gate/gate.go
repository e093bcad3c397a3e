// Package gate decides whether an actor may perform a gated operation
// inside their unit, and resolves the actor's unit affiliation.
package gate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"herdline/internal/config"
	"herdline/internal/domain"
	"herdline/internal/repo"
	"herdline/internal/roles"
)

// ForbiddenError means the actor is affiliated but their membership role
// is not allowed to perform the operation.
type ForbiddenError struct {
	Op      string
	ActorID string
	Role    roles.MemberRole
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("actor %s (role %s) may not perform %s", e.ActorID, e.Role, e.Op)
}

// UnaffiliatedError means the actor has no active membership in any unit.
// Affiliation is never created implicitly here; provisioning is explicit.
type UnaffiliatedError struct {
	ActorID string
}

func (e UnaffiliatedError) Error() string {
	return fmt.Sprintf("actor %s has no active unit affiliation", e.ActorID)
}

type Gate struct {
	Repo   repo.Repo
	Config *config.Config
}

// Affiliation is the resolved unit context of an actor.
type Affiliation struct {
	UnitKind string
	UnitID   int64
	Role     roles.MemberRole
}

// ResolveUnit returns the actor's active unit from the membership table,
// repairing the cached columns on the actor row when they disagree. A
// stale cache is repaired, never trusted; a missing membership is
// reported, never provisioned.
func (g Gate) ResolveUnit(ctx context.Context, tx *sql.Tx, actor domain.Actor) (Affiliation, error) {
	m, err := g.Repo.ActiveMembershipTx(ctx, tx, actor.ID)
	if errors.Is(err, repo.ErrNotFound) {
		if actor.UnitKind != nil || actor.UnitID != nil {
			if err := g.Repo.ClearActorAffiliationTx(ctx, tx, actor.ID); err != nil {
				return Affiliation{}, err
			}
		}
		return Affiliation{}, UnaffiliatedError{ActorID: actor.ID}
	}
	if err != nil {
		return Affiliation{}, err
	}
	role, err := roles.ParseMember(m.Role)
	if err != nil {
		return Affiliation{}, err
	}
	stale := actor.UnitKind == nil || actor.UnitID == nil ||
		*actor.UnitKind != m.UnitKind || *actor.UnitID != m.UnitID
	if stale {
		if err := g.Repo.SetActorAffiliationTx(ctx, tx, actor.ID, m.UnitKind, m.UnitID); err != nil {
			return Affiliation{}, err
		}
	}
	return Affiliation{UnitKind: m.UnitKind, UnitID: m.UnitID, Role: role}, nil
}

// Authorize resolves the actor's unit and checks the operation policy.
func (g Gate) Authorize(ctx context.Context, tx *sql.Tx, actor domain.Actor, op string) (Affiliation, error) {
	aff, err := g.ResolveUnit(ctx, tx, actor)
	if err != nil {
		return Affiliation{}, err
	}
	if !g.Config.OperationAllowed(op, aff.Role) {
		return Affiliation{}, ForbiddenError{Op: op, ActorID: actor.ID, Role: aff.Role}
	}
	return aff, nil
}

// RequireActorRole checks the actor's top-level role after normalization.
func RequireActorRole(actor domain.Actor, want roles.Role) error {
	got, err := roles.Parse(actor.Role)
	if err != nil {
		return err
	}
	if got != want && got != roles.Admin {
		return ForbiddenError{Op: "role:" + string(want), ActorID: actor.ID}
	}
	return nil
}
