package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"herdline/internal/config"
	"herdline/internal/db"
	"herdline/internal/domain"
	"herdline/internal/engine"
	"herdline/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	UnitID int64
	ShopID int64
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("default")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	for _, a := range []struct{ id, role string }{
		{"farmer-1", "farmer"},
		{"plant-1", "processing_unit"},
		{"shop-1", "shop"},
	} {
		if _, err := eng.RegisterActor(ctx, a.id, a.role, ""); err != nil {
			t.Fatalf("register %s: %v", a.id, err)
		}
	}
	unit, err := eng.CreateProcessingUnit(ctx, "plant-1", "Plant One")
	if err != nil {
		t.Fatalf("create unit: %v", err)
	}
	shop, err := eng.CreateShop(ctx, "shop-1", "Shop One")
	if err != nil {
		t.Fatalf("create shop: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, UnitID: unit.ID, ShopID: shop.ID}
}

// registerSlaughtered registers an animal for farmer-1 and records a
// whole-carcass slaughter.
func registerSlaughtered(t *testing.T, env testEnv, tag string) domain.Animal {
	t.Helper()
	a, err := env.Engine.RegisterAnimal(env.Ctx, "farmer-1", tag, "cattle")
	if err != nil {
		t.Fatalf("register animal: %v", err)
	}
	a, err = env.Engine.Slaughter(env.Ctx, engine.SlaughterOptions{
		ActorID: "farmer-1", AnimalID: a.ID, CarcassType: "whole",
	})
	if err != nil {
		t.Fatalf("slaughter: %v", err)
	}
	return a
}

func conflictCode(t *testing.T, err error) string {
	t.Helper()
	var ce engine.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	return ce.Code
}

func TestTransferIsExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	a := registerSlaughtered(t, env, "A-001")

	res, err := env.Engine.Transfer(env.Ctx, engine.TransferOptions{
		ActorID: "farmer-1", ProcessingUnitID: env.UnitID, AnimalIDs: []int64{a.ID},
	})
	if err != nil {
		t.Fatalf("first transfer: %v", err)
	}
	if res.AnimalsTransferred != 1 || res.PartsTransferred != 0 {
		t.Fatalf("unexpected counts: %+v", res)
	}

	// same target again
	_, err = env.Engine.Transfer(env.Ctx, engine.TransferOptions{
		ActorID: "farmer-1", ProcessingUnitID: env.UnitID, AnimalIDs: []int64{a.ID},
	})
	if code := conflictCode(t, err); code != engine.CodeAlreadyTransferredSameTarget {
		t.Fatalf("expected same-target conflict, got %s", code)
	}

	// different target
	if _, err := env.Engine.RegisterActor(env.Ctx, "plant-2", "processing_unit", ""); err != nil {
		t.Fatal(err)
	}
	unit2, err := env.Engine.CreateProcessingUnit(env.Ctx, "plant-2", "Plant Two")
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.Transfer(env.Ctx, engine.TransferOptions{
		ActorID: "farmer-1", ProcessingUnitID: unit2.ID, AnimalIDs: []int64{a.ID},
	})
	if code := conflictCode(t, err); code != engine.CodeAlreadyTransferredDifferentTarget {
		t.Fatalf("expected different-target conflict, got %s", code)
	}
}

func TestTransferRequiresSlaughter(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.Engine.RegisterAnimal(env.Ctx, "farmer-1", "A-002", "pig")
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.Transfer(env.Ctx, engine.TransferOptions{
		ActorID: "farmer-1", ProcessingUnitID: env.UnitID, AnimalIDs: []int64{a.ID},
	})
	var ie engine.InvariantError
	if !errors.As(err, &ie) || ie.Code != engine.CodeNotSlaughtered {
		t.Fatalf("expected not_slaughtered, got %v", err)
	}
}

func TestSplitCarcassTransfersByParts(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.Engine.RegisterAnimal(env.Ctx, "farmer-1", "A-003", "cattle")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Slaughter(env.Ctx, engine.SlaughterOptions{
		ActorID: "farmer-1", AnimalID: a.ID, CarcassType: "split",
		Parts: []engine.PartInput{{PartType: "forequarter", WeightKg: 80}, {PartType: "hindquarter", WeightKg: 90}},
	}); err != nil {
		t.Fatalf("slaughter split: %v", err)
	}

	// the whole animal cannot move once split
	_, err = env.Engine.Transfer(env.Ctx, engine.TransferOptions{
		ActorID: "farmer-1", ProcessingUnitID: env.UnitID, AnimalIDs: []int64{a.ID},
	})
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error for split animal, got %v", err)
	}

	parts, err := env.Engine.Repo.ListPartsByAnimal(env.Ctx, a.ID)
	if err != nil || len(parts) != 2 {
		t.Fatalf("list parts: %v (%d)", err, len(parts))
	}
	res, err := env.Engine.Transfer(env.Ctx, engine.TransferOptions{
		ActorID: "farmer-1", ProcessingUnitID: env.UnitID, PartIDs: []int64{parts[0].ID},
	})
	if err != nil {
		t.Fatalf("transfer part: %v", err)
	}
	if res.PartsTransferred != 1 || res.AnimalsTransferred != 0 {
		t.Fatalf("unexpected counts: %+v", res)
	}

	// parent stays on the farm until the last part leaves
	got, _ := env.Engine.Repo.GetAnimal(env.Ctx, a.ID)
	if got.TransferredTo != nil {
		t.Fatalf("parent promoted too early")
	}
	if _, err := env.Engine.Transfer(env.Ctx, engine.TransferOptions{
		ActorID: "farmer-1", ProcessingUnitID: env.UnitID, PartIDs: []int64{parts[1].ID},
	}); err != nil {
		t.Fatalf("transfer last part: %v", err)
	}
	got, _ = env.Engine.Repo.GetAnimal(env.Ctx, a.ID)
	if got.TransferredTo == nil || *got.TransferredTo != env.UnitID {
		t.Fatalf("parent not promoted with last part")
	}
}

func TestTransferBatchIsAtomic(t *testing.T) {
	env := newTestEnv(t)
	ok := registerSlaughtered(t, env, "A-004")
	raw, err := env.Engine.RegisterAnimal(env.Ctx, "farmer-1", "A-005", "cattle")
	if err != nil {
		t.Fatal(err)
	}

	_, err = env.Engine.Transfer(env.Ctx, engine.TransferOptions{
		ActorID: "farmer-1", ProcessingUnitID: env.UnitID, AnimalIDs: []int64{ok.ID, raw.ID},
	})
	if err == nil {
		t.Fatalf("expected batch failure")
	}
	// the valid animal must not have moved
	got, _ := env.Engine.Repo.GetAnimal(env.Ctx, ok.ID)
	if got.TransferredTo != nil {
		t.Fatalf("batch was not atomic")
	}
}

func TestReceiveRejectsForeignAndDuplicate(t *testing.T) {
	env := newTestEnv(t)
	a := registerSlaughtered(t, env, "A-006")

	// not transferred yet
	_, err := env.Engine.Receive(env.Ctx, engine.ReceiveOptions{ActorID: "plant-1", AnimalIDs: []int64{a.ID}})
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if _, err := env.Engine.Transfer(env.Ctx, engine.TransferOptions{
		ActorID: "farmer-1", ProcessingUnitID: env.UnitID, AnimalIDs: []int64{a.ID},
	}); err != nil {
		t.Fatal(err)
	}
	res, err := env.Engine.Receive(env.Ctx, engine.ReceiveOptions{ActorID: "plant-1", AnimalIDs: []int64{a.ID}})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if res.AnimalsReceived != 1 || res.PartsReceived != 0 {
		t.Fatalf("unexpected counts: %+v", res)
	}
	_, err = env.Engine.Receive(env.Ctx, engine.ReceiveOptions{ActorID: "plant-1", AnimalIDs: []int64{a.ID}})
	if code := conflictCode(t, err); code != engine.CodeAlreadyReceived {
		t.Fatalf("expected already_received, got %s", code)
	}
}

func TestReceiveNotifiesProducer(t *testing.T) {
	env := newTestEnv(t)
	a := registerSlaughtered(t, env, "A-007")
	if _, err := env.Engine.Transfer(env.Ctx, engine.TransferOptions{
		ActorID: "farmer-1", ProcessingUnitID: env.UnitID, AnimalIDs: []int64{a.ID},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Receive(env.Ctx, engine.ReceiveOptions{ActorID: "plant-1", AnimalIDs: []int64{a.ID}}); err != nil {
		t.Fatal(err)
	}
	items, err := env.Engine.Repo.ListNotifications(env.Ctx, "farmer-1", true, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) == 0 {
		t.Fatalf("expected producer notification")
	}
}

func TestSlaughterValidation(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.Engine.RegisterAnimal(env.Ctx, "farmer-1", "A-008", "sheep")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Slaughter(env.Ctx, engine.SlaughterOptions{
		ActorID: "farmer-1", AnimalID: a.ID, CarcassType: "split",
	}); err == nil {
		t.Fatalf("expected split without parts to fail")
	}
	if _, err := env.Engine.Slaughter(env.Ctx, engine.SlaughterOptions{
		ActorID: "farmer-1", AnimalID: a.ID, CarcassType: "whole",
		Parts: []engine.PartInput{{PartType: "loin"}},
	}); err == nil {
		t.Fatalf("expected whole with parts to fail")
	}
	if _, err := env.Engine.Slaughter(env.Ctx, engine.SlaughterOptions{
		ActorID: "farmer-1", AnimalID: a.ID, CarcassType: "whole",
	}); err != nil {
		t.Fatalf("slaughter: %v", err)
	}
	_, err = env.Engine.Slaughter(env.Ctx, engine.SlaughterOptions{
		ActorID: "farmer-1", AnimalID: a.ID, CarcassType: "whole",
	})
	if code := conflictCode(t, err); code != engine.CodeAlreadyProcessed {
		t.Fatalf("expected already_processed, got %s", code)
	}
}

func TestRegisterAnimalRequiresFarmer(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.RegisterAnimal(env.Ctx, "plant-1", "A-009", "cattle"); err == nil {
		t.Fatalf("expected role gate to block non-farmer")
	}
}
