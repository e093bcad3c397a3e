package engine_test

import (
	"errors"
	"testing"

	"herdline/internal/domain"
	"herdline/internal/engine"
	"herdline/internal/engine/gate"
)

// inviteActive registers an actor, invites it into plant-1's unit and
// accepts the invitation.
func inviteActive(t *testing.T, env testEnv, actorID, role string) domain.Membership {
	t.Helper()
	if _, err := env.Engine.RegisterActor(env.Ctx, actorID, "processing_unit", ""); err != nil {
		t.Fatalf("register %s: %v", actorID, err)
	}
	m, err := env.Engine.InviteMember(env.Ctx, "plant-1", actorID, role)
	if err != nil {
		t.Fatalf("invite %s: %v", actorID, err)
	}
	m, err = env.Engine.RespondInvitation(env.Ctx, actorID, m.ID, true)
	if err != nil {
		t.Fatalf("accept %s: %v", actorID, err)
	}
	return m
}

func TestSoleOwnerCannotLeave(t *testing.T) {
	env := newTestEnv(t)
	err := env.Engine.LeaveUnit(env.Ctx, "plant-1")
	if code := conflictCode(t, err); code != engine.CodeSoleOwner {
		t.Fatalf("expected sole_owner, got %s", code)
	}

	// with a second owner the first may leave
	inviteActive(t, env, "plant-owner-2", "owner")
	if err := env.Engine.LeaveUnit(env.Ctx, "plant-1"); err != nil {
		t.Fatalf("leave with co-owner: %v", err)
	}
}

func TestWorkerCannotManageMembers(t *testing.T) {
	env := newTestEnv(t)
	inviteActive(t, env, "plant-worker", "worker")
	if _, err := env.Engine.RegisterActor(env.Ctx, "plant-other", "processing_unit", ""); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.InviteMember(env.Ctx, "plant-worker", "plant-other", "worker")
	var fe gate.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestSuspendedMemberLosesAccess(t *testing.T) {
	env := newTestEnv(t)
	m := inviteActive(t, env, "plant-worker", "worker")
	a := registerSlaughtered(t, env, "U-001")
	if _, err := env.Engine.Transfer(env.Ctx, engine.TransferOptions{
		ActorID: "farmer-1", ProcessingUnitID: env.UnitID, AnimalIDs: []int64{a.ID},
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := env.Engine.SuspendMember(env.Ctx, "plant-1", m.ID); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	_, err := env.Engine.Receive(env.Ctx, engine.ReceiveOptions{ActorID: "plant-worker", AnimalIDs: []int64{a.ID}})
	var ue gate.UnaffiliatedError
	if !errors.As(err, &ue) {
		t.Fatalf("expected unaffiliated, got %v", err)
	}
}

func TestDeclinedInvitationCanBeRepeated(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.RegisterActor(env.Ctx, "plant-hesitant", "processing_unit", ""); err != nil {
		t.Fatal(err)
	}
	m, err := env.Engine.InviteMember(env.Ctx, "plant-1", "plant-hesitant", "worker")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.RespondInvitation(env.Ctx, "plant-hesitant", m.ID, false); err != nil {
		t.Fatalf("decline: %v", err)
	}
	// the declined row is gone, a fresh invitation works
	if _, err := env.Engine.InviteMember(env.Ctx, "plant-1", "plant-hesitant", "worker"); err != nil {
		t.Fatalf("re-invite after decline: %v", err)
	}
}

func TestJoinRequestReview(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.RegisterActor(env.Ctx, "plant-applicant", "processing_unit", ""); err != nil {
		t.Fatal(err)
	}
	m, err := env.Engine.RequestJoin(env.Ctx, "plant-applicant", domain.UnitKindProcessing, env.UnitID)
	if err != nil {
		t.Fatalf("request join: %v", err)
	}
	approved, err := env.Engine.ReviewJoinRequest(env.Ctx, "plant-1", m.ID, true)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != "active" {
		t.Fatalf("expected active membership, got %s", approved.Status)
	}
	// approved applicant can act for the unit
	a := registerSlaughtered(t, env, "U-002")
	if _, err := env.Engine.Transfer(env.Ctx, engine.TransferOptions{
		ActorID: "farmer-1", ProcessingUnitID: env.UnitID, AnimalIDs: []int64{a.ID},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Receive(env.Ctx, engine.ReceiveOptions{ActorID: "plant-applicant", AnimalIDs: []int64{a.ID}}); err != nil {
		t.Fatalf("receive by approved member: %v", err)
	}
}

func TestJoinRequestRoleMustMatchUnitKind(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.RegisterActor(env.Ctx, "shop-applicant", "shop", ""); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.RequestJoin(env.Ctx, "shop-applicant", domain.UnitKindProcessing, env.UnitID)
	var fe gate.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected role gate, got %v", err)
	}
}

func TestCreateUnitOncePerActor(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateProcessingUnit(env.Ctx, "plant-1", "Plant Again")
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected one-unit check, got %v", err)
	}
}
