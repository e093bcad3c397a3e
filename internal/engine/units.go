package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"herdline/internal/domain"
	"herdline/internal/engine/gate"
	"herdline/internal/notify"
	"herdline/internal/repo"
	"herdline/internal/roles"
)

// CreateProcessingUnit provisions a unit with the creator as its owner.
// This is the only place affiliation is created rather than repaired.
func (e Engine) CreateProcessingUnit(ctx context.Context, actorID, name string) (domain.ProcessingUnit, error) {
	id, err := e.createUnit(ctx, actorID, name, domain.UnitKindProcessing, roles.ProcessingUnit)
	if err != nil {
		return domain.ProcessingUnit{}, err
	}
	return e.Repo.GetProcessingUnit(ctx, id)
}

// CreateShop provisions a shop with the creator as its owner.
func (e Engine) CreateShop(ctx context.Context, actorID, name string) (domain.Shop, error) {
	id, err := e.createUnit(ctx, actorID, name, domain.UnitKindShop, roles.Shop)
	if err != nil {
		return domain.Shop{}, err
	}
	return e.Repo.GetShop(ctx, id)
}

func (e Engine) createUnit(ctx context.Context, actorID, name, unitKind string, want roles.Role) (int64, error) {
	if name == "" {
		return 0, ValidationError{Field: "name", Message: "unit name is required"}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	actor, err := e.Repo.GetActorTx(ctx, tx, actorID)
	if err != nil {
		return 0, err
	}
	if err := gate.RequireActorRole(actor, want); err != nil {
		return 0, err
	}
	if _, err := e.Repo.ActiveMembershipTx(ctx, tx, actor.ID); err == nil {
		return 0, ValidationError{Message: fmt.Sprintf("actor %s already belongs to a unit", actor.ID)}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return 0, err
	}

	ts := e.ts()
	var unitID int64
	if unitKind == domain.UnitKindShop {
		unitID, err = e.Repo.InsertShopTx(ctx, tx, name, ts)
	} else {
		unitID, err = e.Repo.InsertProcessingUnitTx(ctx, tx, name, ts)
	}
	if err != nil {
		return 0, fmt.Errorf("insert unit: %w", err)
	}
	if _, err := e.Repo.InsertMembershipTx(ctx, tx, domain.Membership{
		UnitKind:  unitKind,
		UnitID:    unitID,
		ActorID:   actor.ID,
		Role:      string(roles.Owner),
		Status:    "active",
		CreatedAt: ts,
		UpdatedAt: ts,
	}); err != nil {
		return 0, fmt.Errorf("insert membership: %w", err)
	}
	if err := e.Repo.SetActorAffiliationTx(ctx, tx, actor.ID, unitKind, unitID); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	e.Audit.Record(ctx, domain.AuditRecord{
		TS: ts, Action: "unit.create", PerformedBy: actor.ID,
		UnitKind: unitKind, UnitID: &unitID,
		Description: name,
	})
	return unitID, nil
}

// InviteMember creates a pending membership for another actor.
func (e Engine) InviteMember(ctx context.Context, actorID, targetID, memberRole string) (domain.Membership, error) {
	role, err := roles.ParseMember(memberRole)
	if err != nil {
		return domain.Membership{}, ValidationError{Field: "role", Message: err.Error()}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Membership{}, err
	}
	defer tx.Rollback()

	actor, err := e.Repo.GetActorTx(ctx, tx, actorID)
	if err != nil {
		return domain.Membership{}, err
	}
	aff, err := e.requireManager(ctx, tx, actor)
	if err != nil {
		return domain.Membership{}, err
	}
	if _, err := e.Repo.GetActorTx(ctx, tx, targetID); err != nil {
		return domain.Membership{}, fmt.Errorf("actor %s: %w", targetID, err)
	}
	if _, err := e.Repo.ActiveMembershipTx(ctx, tx, targetID); err == nil {
		return domain.Membership{}, ValidationError{Message: fmt.Sprintf("actor %s already belongs to a unit", targetID)}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Membership{}, err
	}

	ts := e.ts()
	m := domain.Membership{
		UnitKind:  aff.UnitKind,
		UnitID:    aff.UnitID,
		ActorID:   targetID,
		Role:      string(role),
		Status:    "pending",
		InvitedBy: actor.ID,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	id, err := e.Repo.InsertMembershipTx(ctx, tx, m)
	if err != nil {
		return domain.Membership{}, fmt.Errorf("insert membership: %w", err)
	}
	m.ID = id
	if err := tx.Commit(); err != nil {
		return domain.Membership{}, err
	}

	e.Audit.Record(ctx, domain.AuditRecord{
		TS: ts, Action: "member.invite", PerformedBy: actor.ID, AffectedUser: targetID,
		UnitKind: aff.UnitKind, UnitID: &aff.UnitID,
	})
	e.Notify.Notify(ctx, domain.Notification{
		ActorID: targetID, Type: "member.invited",
		Title:     "Unit invitation",
		Message:   fmt.Sprintf("You were invited to join %s %d as %s", aff.UnitKind, aff.UnitID, role),
		DataJSON:  notify.MarshalData(map[string]any{"membership_id": id}),
		CreatedAt: ts,
	})
	return m, nil
}

// RespondInvitation accepts or declines a pending invitation. Declining
// deletes the row so the actor can be invited again later.
func (e Engine) RespondInvitation(ctx context.Context, actorID string, membershipID int64, accept bool) (domain.Membership, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Membership{}, err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetMembershipTx(ctx, tx, membershipID)
	if err != nil {
		return domain.Membership{}, err
	}
	if m.ActorID != actorID {
		return domain.Membership{}, ValidationError{Message: "invitation addressed to another actor"}
	}
	if m.Status != "pending" || m.InvitedBy == "" {
		return domain.Membership{}, ValidationError{Message: fmt.Sprintf("membership %d is not a pending invitation", m.ID)}
	}
	if accept {
		if _, err := e.Repo.ActiveMembershipTx(ctx, tx, actorID); err == nil {
			return domain.Membership{}, ValidationError{Message: "already an active member of a unit"}
		} else if !errors.Is(err, repo.ErrNotFound) {
			return domain.Membership{}, err
		}
	}

	ts := e.ts()
	if accept {
		if err := e.Repo.SetMembershipStatusTx(ctx, tx, m.ID, "active", ts); err != nil {
			return domain.Membership{}, err
		}
		if err := e.Repo.SetActorAffiliationTx(ctx, tx, actorID, m.UnitKind, m.UnitID); err != nil {
			return domain.Membership{}, err
		}
		m.Status = "active"
		m.UpdatedAt = ts
	} else {
		if err := e.Repo.DeleteMembershipTx(ctx, tx, m.ID); err != nil {
			return domain.Membership{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Membership{}, err
	}

	action := "member.decline"
	if accept {
		action = "member.join"
	}
	e.Audit.Record(ctx, domain.AuditRecord{
		TS: ts, Action: action, PerformedBy: actorID,
		UnitKind: m.UnitKind, UnitID: &m.UnitID,
	})
	return m, nil
}

// RequestJoin opens a join request toward a unit. The actor's role must
// match the unit kind.
func (e Engine) RequestJoin(ctx context.Context, actorID, unitKind string, unitID int64) (domain.Membership, error) {
	if unitKind != domain.UnitKindProcessing && unitKind != domain.UnitKindShop {
		return domain.Membership{}, ValidationError{Field: "unit_kind", Message: fmt.Sprintf("unknown unit kind %q", unitKind)}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Membership{}, err
	}
	defer tx.Rollback()

	actor, err := e.Repo.GetActorTx(ctx, tx, actorID)
	if err != nil {
		return domain.Membership{}, err
	}
	want := roles.ProcessingUnit
	if unitKind == domain.UnitKindShop {
		want = roles.Shop
	}
	if err := gate.RequireActorRole(actor, want); err != nil {
		return domain.Membership{}, err
	}
	if unitKind == domain.UnitKindShop {
		_, err = e.Repo.GetShopTx(ctx, tx, unitID)
	} else {
		_, err = e.Repo.GetProcessingUnitTx(ctx, tx, unitID)
	}
	if err != nil {
		return domain.Membership{}, fmt.Errorf("%s %d: %w", unitKind, unitID, err)
	}
	if _, err := e.Repo.ActiveMembershipTx(ctx, tx, actor.ID); err == nil {
		return domain.Membership{}, ValidationError{Message: "already an active member of a unit"}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Membership{}, err
	}

	ts := e.ts()
	m := domain.Membership{
		UnitKind:  unitKind,
		UnitID:    unitID,
		ActorID:   actor.ID,
		Role:      string(roles.Worker),
		Status:    "pending",
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	id, err := e.Repo.InsertMembershipTx(ctx, tx, m)
	if err != nil {
		return domain.Membership{}, fmt.Errorf("insert membership: %w", err)
	}
	m.ID = id
	if err := tx.Commit(); err != nil {
		return domain.Membership{}, err
	}

	e.Audit.Record(ctx, domain.AuditRecord{
		TS: ts, Action: "member.request_join", PerformedBy: actor.ID,
		UnitKind: unitKind, UnitID: &unitID,
	})
	return m, nil
}

// ReviewJoinRequest approves or denies a pending join request.
func (e Engine) ReviewJoinRequest(ctx context.Context, actorID string, membershipID int64, approve bool) (domain.Membership, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Membership{}, err
	}
	defer tx.Rollback()

	actor, err := e.Repo.GetActorTx(ctx, tx, actorID)
	if err != nil {
		return domain.Membership{}, err
	}
	aff, err := e.requireManager(ctx, tx, actor)
	if err != nil {
		return domain.Membership{}, err
	}
	m, err := e.Repo.GetMembershipTx(ctx, tx, membershipID)
	if err != nil {
		return domain.Membership{}, err
	}
	if m.UnitKind != aff.UnitKind || m.UnitID != aff.UnitID {
		return domain.Membership{}, ValidationError{Message: fmt.Sprintf("membership %d concerns another unit", m.ID)}
	}
	if m.Status != "pending" || m.InvitedBy != "" {
		return domain.Membership{}, ValidationError{Message: fmt.Sprintf("membership %d is not a pending join request", m.ID)}
	}

	ts := e.ts()
	if approve {
		if err := e.Repo.SetMembershipStatusTx(ctx, tx, m.ID, "active", ts); err != nil {
			return domain.Membership{}, err
		}
		if err := e.Repo.SetActorAffiliationTx(ctx, tx, m.ActorID, m.UnitKind, m.UnitID); err != nil {
			return domain.Membership{}, err
		}
		m.Status = "active"
		m.UpdatedAt = ts
	} else {
		if err := e.Repo.DeleteMembershipTx(ctx, tx, m.ID); err != nil {
			return domain.Membership{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Membership{}, err
	}

	action := "member.deny_join"
	if approve {
		action = "member.approve_join"
	}
	e.Audit.Record(ctx, domain.AuditRecord{
		TS: ts, Action: action, PerformedBy: actor.ID, AffectedUser: m.ActorID,
		UnitKind: aff.UnitKind, UnitID: &aff.UnitID,
	})
	e.Notify.Notify(ctx, domain.Notification{
		ActorID: m.ActorID, Type: "member.join_reviewed",
		Title:     "Join request reviewed",
		Message:   fmt.Sprintf("Your request to join %s %d was reviewed", m.UnitKind, m.UnitID),
		DataJSON:  notify.MarshalData(map[string]any{"approved": approve}),
		CreatedAt: ts,
	})
	return m, nil
}

// SuspendMember suspends an active member. The last active owner of a
// unit cannot be suspended.
func (e Engine) SuspendMember(ctx context.Context, actorID string, membershipID int64) (domain.Membership, error) {
	return e.deactivateMember(ctx, actorID, membershipID, "suspended", "member.suspend")
}

// RemoveMember removes a member from the unit. The last active owner
// cannot be removed.
func (e Engine) RemoveMember(ctx context.Context, actorID string, membershipID int64) (domain.Membership, error) {
	return e.deactivateMember(ctx, actorID, membershipID, "left", "member.remove")
}

func (e Engine) deactivateMember(ctx context.Context, actorID string, membershipID int64, status, action string) (domain.Membership, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Membership{}, err
	}
	defer tx.Rollback()

	actor, err := e.Repo.GetActorTx(ctx, tx, actorID)
	if err != nil {
		return domain.Membership{}, err
	}
	aff, err := e.requireManager(ctx, tx, actor)
	if err != nil {
		return domain.Membership{}, err
	}
	m, err := e.Repo.GetMembershipTx(ctx, tx, membershipID)
	if err != nil {
		return domain.Membership{}, err
	}
	if m.UnitKind != aff.UnitKind || m.UnitID != aff.UnitID {
		return domain.Membership{}, ValidationError{Message: fmt.Sprintf("membership %d concerns another unit", m.ID)}
	}
	if m.Status != "active" {
		return domain.Membership{}, ValidationError{Message: fmt.Sprintf("membership %d is not active", m.ID)}
	}
	if err := e.guardLastOwner(ctx, tx, m); err != nil {
		return domain.Membership{}, err
	}

	ts := e.ts()
	if err := e.Repo.SetMembershipStatusTx(ctx, tx, m.ID, status, ts); err != nil {
		return domain.Membership{}, err
	}
	if err := e.Repo.ClearActorAffiliationTx(ctx, tx, m.ActorID); err != nil {
		return domain.Membership{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Membership{}, err
	}

	m.Status = status
	m.UpdatedAt = ts
	e.Audit.Record(ctx, domain.AuditRecord{
		TS: ts, Action: action, PerformedBy: actor.ID, AffectedUser: m.ActorID,
		UnitKind: aff.UnitKind, UnitID: &aff.UnitID,
	})
	return m, nil
}

// LeaveUnit ends the actor's own membership. The sole active owner must
// transfer ownership before leaving.
func (e Engine) LeaveUnit(ctx context.Context, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	m, err := e.Repo.ActiveMembershipTx(ctx, tx, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		return gate.UnaffiliatedError{ActorID: actorID}
	}
	if err != nil {
		return err
	}
	if err := e.guardLastOwner(ctx, tx, m); err != nil {
		return err
	}

	ts := e.ts()
	if err := e.Repo.SetMembershipStatusTx(ctx, tx, m.ID, "left", ts); err != nil {
		return err
	}
	if err := e.Repo.ClearActorAffiliationTx(ctx, tx, actorID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	e.Audit.Record(ctx, domain.AuditRecord{
		TS: ts, Action: "member.leave", PerformedBy: actorID,
		UnitKind: m.UnitKind, UnitID: &m.UnitID,
	})
	return nil
}

func (e Engine) guardLastOwner(ctx context.Context, tx *sql.Tx, m domain.Membership) error {
	if m.Role != string(roles.Owner) {
		return nil
	}
	owners, err := e.Repo.CountActiveOwnersTx(ctx, tx, m.UnitKind, m.UnitID)
	if err != nil {
		return err
	}
	if owners <= 1 {
		return ConflictError{Code: CodeSoleOwner, Message: fmt.Sprintf("actor %s is the only owner of %s %d", m.ActorID, m.UnitKind, m.UnitID)}
	}
	return nil
}

// requireManager resolves the actor's unit and checks member-management
// rights.
func (e Engine) requireManager(ctx context.Context, tx *sql.Tx, actor domain.Actor) (gate.Affiliation, error) {
	aff, err := e.Gate.ResolveUnit(ctx, tx, actor)
	if err != nil {
		return gate.Affiliation{}, err
	}
	if !aff.Role.CanManageMembers() {
		return gate.Affiliation{}, gate.ForbiddenError{Op: "manage_members", ActorID: actor.ID, Role: aff.Role}
	}
	return aff, nil
}
