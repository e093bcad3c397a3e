package engine_test

import (
	"errors"
	"strings"
	"testing"

	"herdline/internal/domain"
	"herdline/internal/engine"
	"herdline/internal/repo"
)

// transferredAnimal puts a slaughtered animal in the plant's receivable
// pool without receiving it.
func transferredAnimal(t *testing.T, env testEnv, tag string) domain.Animal {
	t.Helper()
	a := registerSlaughtered(t, env, tag)
	if _, err := env.Engine.Transfer(env.Ctx, engine.TransferOptions{
		ActorID: "farmer-1", ProcessingUnitID: env.UnitID, AnimalIDs: []int64{a.ID},
	}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	return a
}

func TestRejectRequiresCatalogReason(t *testing.T) {
	env := newTestEnv(t)
	a := transferredAnimal(t, env, "R-001")
	_, err := env.Engine.Reject(env.Ctx, engine.RejectOptions{
		ActorID: "plant-1", EntityKind: domain.KindAnimal, EntityID: a.ID,
		Category: "quality", Reason: "because",
	})
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected catalog validation error, got %v", err)
	}
}

func TestRejectionExcludesFromPending(t *testing.T) {
	env := newTestEnv(t)
	a := transferredAnimal(t, env, "R-002")

	pending, err := env.Engine.Repo.ListPendingAnimals(env.Ctx, env.UnitID)
	if err != nil || len(pending) != 1 {
		t.Fatalf("expected one pending animal: %v (%d)", err, len(pending))
	}

	rr, err := env.Engine.Reject(env.Ctx, engine.RejectOptions{
		ActorID: "plant-1", EntityKind: domain.KindAnimal, EntityID: a.ID,
		Category: "quality", Reason: "bruising",
	})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rr.Category != "quality" || rr.Reason != "bruising" {
		t.Fatalf("unexpected rejection %+v", rr)
	}

	pending, err = env.Engine.Repo.ListPendingAnimals(env.Ctx, env.UnitID)
	if err != nil || len(pending) != 0 {
		t.Fatalf("rejected animal still pending: %v (%d)", err, len(pending))
	}

	// rejected entities cannot be received
	_, err = env.Engine.Receive(env.Ctx, engine.ReceiveOptions{ActorID: "plant-1", AnimalIDs: []int64{a.ID}})
	if code := conflictCode(t, err); code != engine.CodeAlreadyRejected {
		t.Fatalf("expected already_rejected, got %s", code)
	}

	// and not rejected twice
	_, err = env.Engine.Reject(env.Ctx, engine.RejectOptions{
		ActorID: "plant-1", EntityKind: domain.KindAnimal, EntityID: a.ID,
		Category: "transport", Reason: "temperature_breach",
	})
	if code := conflictCode(t, err); code != engine.CodeAlreadyRejected {
		t.Fatalf("expected already_rejected, got %s", code)
	}
}

func TestRejectAuditsOldAndNewValues(t *testing.T) {
	env := newTestEnv(t)
	a := transferredAnimal(t, env, "R-009")
	if _, err := env.Engine.Reject(env.Ctx, engine.RejectOptions{
		ActorID: "plant-1", EntityKind: domain.KindAnimal, EntityID: a.ID,
		Category: "quality", Reason: "bruising",
	}); err != nil {
		t.Fatalf("reject: %v", err)
	}
	records, err := env.Engine.Repo.ListAuditRecords(env.Ctx, repo.AuditFilters{Action: "entity.reject", Limit: 1})
	if err != nil || len(records) != 1 {
		t.Fatalf("list audit: %v (%d)", err, len(records))
	}
	rec := records[0]
	if !strings.Contains(rec.OldValues, `"rejection_status":null`) {
		t.Fatalf("old values missing prior state: %s", rec.OldValues)
	}
	if !strings.Contains(rec.NewValues, `"rejection_status":"rejected"`) {
		t.Fatalf("new values missing rejected state: %s", rec.NewValues)
	}
}

func TestRejectAfterReceiveBlocked(t *testing.T) {
	env := newTestEnv(t)
	a := transferredAnimal(t, env, "R-003")
	if _, err := env.Engine.Receive(env.Ctx, engine.ReceiveOptions{ActorID: "plant-1", AnimalIDs: []int64{a.ID}}); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.Reject(env.Ctx, engine.RejectOptions{
		ActorID: "plant-1", EntityKind: domain.KindAnimal, EntityID: a.ID,
		Category: "quality", Reason: "spoilage",
	})
	if code := conflictCode(t, err); code != engine.CodeAlreadyReceived {
		t.Fatalf("expected already_received, got %s", code)
	}
}

func rejectedAnimal(t *testing.T, env testEnv, tag string) domain.Animal {
	t.Helper()
	a := transferredAnimal(t, env, tag)
	if _, err := env.Engine.Reject(env.Ctx, engine.RejectOptions{
		ActorID: "plant-1", EntityKind: domain.KindAnimal, EntityID: a.ID,
		Category: "quality", Reason: "bruising",
	}); err != nil {
		t.Fatalf("reject: %v", err)
	}
	return a
}

func TestAppealOnlyByProducer(t *testing.T) {
	env := newTestEnv(t)
	a := rejectedAnimal(t, env, "R-004")
	_, err := env.Engine.OpenAppeal(env.Ctx, engine.AppealOptions{
		ActorID: "plant-1", EntityKind: domain.KindAnimal, EntityID: a.ID,
	})
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected producer check, got %v", err)
	}
}

func TestOnePendingAppealPerEntity(t *testing.T) {
	env := newTestEnv(t)
	a := rejectedAnimal(t, env, "R-005")
	if _, err := env.Engine.OpenAppeal(env.Ctx, engine.AppealOptions{
		ActorID: "farmer-1", EntityKind: domain.KindAnimal, EntityID: a.ID, Notes: "tag was fine",
	}); err != nil {
		t.Fatalf("open appeal: %v", err)
	}
	_, err := env.Engine.OpenAppeal(env.Ctx, engine.AppealOptions{
		ActorID: "farmer-1", EntityKind: domain.KindAnimal, EntityID: a.ID,
	})
	if code := conflictCode(t, err); code != engine.CodeAppealAlreadyOpen {
		t.Fatalf("expected appeal_already_open, got %s", code)
	}
}

func TestAppealResolvedExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	a := rejectedAnimal(t, env, "R-006")
	appeal, err := env.Engine.OpenAppeal(env.Ctx, engine.AppealOptions{
		ActorID: "farmer-1", EntityKind: domain.KindAnimal, EntityID: a.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	resolved, err := env.Engine.ResolveAppeal(env.Ctx, engine.ResolveAppealOptions{
		ActorID: "plant-1", AppealID: appeal.ID, Approve: false, Notes: "inspection stands",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != "denied" {
		t.Fatalf("expected denied, got %s", resolved.Status)
	}
	_, err = env.Engine.ResolveAppeal(env.Ctx, engine.ResolveAppealOptions{
		ActorID: "plant-1", AppealID: appeal.ID, Approve: true,
	})
	if code := conflictCode(t, err); code != engine.CodeAppealNotPending {
		t.Fatalf("expected appeal_not_pending, got %s", code)
	}
	// denial leaves the rejection standing
	got, _ := env.Engine.Repo.GetAnimal(env.Ctx, a.ID)
	if got.RejectionStatus == nil {
		t.Fatalf("denied appeal cleared the rejection")
	}
}

func TestApprovedAppealReentersPool(t *testing.T) {
	env := newTestEnv(t)
	a := rejectedAnimal(t, env, "R-007")
	appeal, err := env.Engine.OpenAppeal(env.Ctx, engine.AppealOptions{
		ActorID: "farmer-1", EntityKind: domain.KindAnimal, EntityID: a.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ResolveAppeal(env.Ctx, engine.ResolveAppealOptions{
		ActorID: "plant-1", AppealID: appeal.ID, Approve: true,
	}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	pending, err := env.Engine.Repo.ListPendingAnimals(env.Ctx, env.UnitID)
	if err != nil || len(pending) != 1 {
		t.Fatalf("approved animal not back in pool: %v (%d)", err, len(pending))
	}
	if _, err := env.Engine.Receive(env.Ctx, engine.ReceiveOptions{ActorID: "plant-1", AnimalIDs: []int64{a.ID}}); err != nil {
		t.Fatalf("receive after approval: %v", err)
	}
}

func TestResolveAppealOnlyByRejectingUnit(t *testing.T) {
	env := newTestEnv(t)
	a := rejectedAnimal(t, env, "R-008")
	appeal, err := env.Engine.OpenAppeal(env.Ctx, engine.AppealOptions{
		ActorID: "farmer-1", EntityKind: domain.KindAnimal, EntityID: a.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.RegisterActor(env.Ctx, "plant-2", "processing_unit", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreateProcessingUnit(env.Ctx, "plant-2", "Plant Two"); err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.ResolveAppeal(env.Ctx, engine.ResolveAppealOptions{
		ActorID: "plant-2", AppealID: appeal.ID, Approve: true,
	})
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected unit check, got %v", err)
	}
}
