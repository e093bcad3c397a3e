package engine_test

import (
	"errors"
	"testing"

	"herdline/internal/domain"
	"herdline/internal/engine"
)

// receivedAnimal walks one animal through slaughter, transfer and
// receipt so product tests start from received material.
func receivedAnimal(t *testing.T, env testEnv, tag string) domain.Animal {
	t.Helper()
	a := registerSlaughtered(t, env, tag)
	if _, err := env.Engine.Transfer(env.Ctx, engine.TransferOptions{
		ActorID: "farmer-1", ProcessingUnitID: env.UnitID, AnimalIDs: []int64{a.ID},
	}); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, err := env.Engine.Receive(env.Ctx, engine.ReceiveOptions{ActorID: "plant-1", AnimalIDs: []int64{a.ID}}); err != nil {
		t.Fatalf("receive: %v", err)
	}
	return a
}

func qty(n int64) *int64 {
	return &n
}

func TestCreateProductRequiresReceivedMaterial(t *testing.T) {
	env := newTestEnv(t)
	a := registerSlaughtered(t, env, "P-001")
	if _, err := env.Engine.Transfer(env.Ctx, engine.TransferOptions{
		ActorID: "farmer-1", ProcessingUnitID: env.UnitID, AnimalIDs: []int64{a.ID},
	}); err != nil {
		t.Fatal(err)
	}
	// transferred but not received
	_, err := env.Engine.CreateProduct(env.Ctx, engine.ProductCreateOptions{
		ActorID: "plant-1", AnimalID: a.ID, BatchNumber: "B-1", Name: "Minced beef", Quantity: 10,
	})
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if _, err := env.Engine.Receive(env.Ctx, engine.ReceiveOptions{ActorID: "plant-1", AnimalIDs: []int64{a.ID}}); err != nil {
		t.Fatal(err)
	}
	p, err := env.Engine.CreateProduct(env.Ctx, engine.ProductCreateOptions{
		ActorID: "plant-1", AnimalID: a.ID, BatchNumber: "B-1", Name: "Minced beef", Quantity: 10,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if p.Quantity != 10 || p.ProcessingUnitID != env.UnitID {
		t.Fatalf("unexpected product %+v", p)
	}
}

func TestCreateProductQuantityPositive(t *testing.T) {
	env := newTestEnv(t)
	a := receivedAnimal(t, env, "P-002")
	_, err := env.Engine.CreateProduct(env.Ctx, engine.ProductCreateOptions{
		ActorID: "plant-1", AnimalID: a.ID, BatchNumber: "B-2", Name: "Sausages", Quantity: 0,
	})
	var ie engine.InvariantError
	if !errors.As(err, &ie) || ie.Code != engine.CodeInvalidQuantity {
		t.Fatalf("expected invalid_quantity, got %v", err)
	}
}

func TestPartConsumedOnce(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.Engine.RegisterAnimal(env.Ctx, "farmer-1", "P-003", "cattle")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Slaughter(env.Ctx, engine.SlaughterOptions{
		ActorID: "farmer-1", AnimalID: a.ID, CarcassType: "split",
		Parts: []engine.PartInput{{PartType: "loin", WeightKg: 30}},
	}); err != nil {
		t.Fatal(err)
	}
	parts, _ := env.Engine.Repo.ListPartsByAnimal(env.Ctx, a.ID)
	if _, err := env.Engine.Transfer(env.Ctx, engine.TransferOptions{
		ActorID: "farmer-1", ProcessingUnitID: env.UnitID, PartIDs: []int64{parts[0].ID},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Receive(env.Ctx, engine.ReceiveOptions{ActorID: "plant-1", PartIDs: []int64{parts[0].ID}}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CreateProduct(env.Ctx, engine.ProductCreateOptions{
		ActorID: "plant-1", PartIDs: []int64{parts[0].ID}, BatchNumber: "B-3", Name: "Steak", Quantity: 5,
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	_, err = env.Engine.CreateProduct(env.Ctx, engine.ProductCreateOptions{
		ActorID: "plant-1", PartIDs: []int64{parts[0].ID}, BatchNumber: "B-4", Name: "Steak", Quantity: 5,
	})
	if code := conflictCode(t, err); code != engine.CodeAlreadyProcessed {
		t.Fatalf("expected already_processed, got %s", code)
	}
}

func TestProductTransferSplitsConserveBatch(t *testing.T) {
	env := newTestEnv(t)
	a := receivedAnimal(t, env, "P-004")
	p, err := env.Engine.CreateProduct(env.Ctx, engine.ProductCreateOptions{
		ActorID: "plant-1", AnimalID: a.ID, BatchNumber: "B-5", Name: "Minced beef", Quantity: 10,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := env.Engine.TransferProducts(env.Ctx, engine.ProductTransferOptions{
		ActorID: "plant-1", ShopID: env.ShopID,
		Items: []engine.ProductTransferItem{{ProductID: p.ID, Quantity: qty(4)}},
	}); err != nil {
		t.Fatalf("partial transfer: %v", err)
	}

	remaining, err := env.Engine.Repo.GetProduct(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if remaining.Quantity != 6 || remaining.TransferredTo != nil {
		t.Fatalf("expected 6 units left at the plant, got %+v", remaining)
	}
	total, err := env.Engine.Repo.BatchQuantity(env.Ctx, "B-5")
	if err != nil {
		t.Fatal(err)
	}
	if total != 10 {
		t.Fatalf("batch quantity changed: %d", total)
	}
	pending, err := env.Engine.Repo.ListPendingProducts(env.Ctx, env.ShopID)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].Quantity != 4 {
		t.Fatalf("expected one pending row of 4 units, got %+v", pending)
	}
}

func TestProductTransferQuantityBounds(t *testing.T) {
	env := newTestEnv(t)
	a := receivedAnimal(t, env, "P-005")
	p, err := env.Engine.CreateProduct(env.Ctx, engine.ProductCreateOptions{
		ActorID: "plant-1", AnimalID: a.ID, BatchNumber: "B-6", Name: "Sausages", Quantity: 5,
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range []int64{0, 6} {
		err := env.Engine.TransferProducts(env.Ctx, engine.ProductTransferOptions{
			ActorID: "plant-1", ShopID: env.ShopID,
			Items: []engine.ProductTransferItem{{ProductID: p.ID, Quantity: qty(n)}},
		})
		var ie engine.InvariantError
		if !errors.As(err, &ie) || ie.Code != engine.CodeInvalidQuantity {
			t.Fatalf("qty %d: expected invalid_quantity, got %v", n, err)
		}
	}
}

func TestProductTransferWholeRowByDefault(t *testing.T) {
	env := newTestEnv(t)
	a := receivedAnimal(t, env, "P-008")
	p, err := env.Engine.CreateProduct(env.Ctx, engine.ProductCreateOptions{
		ActorID: "plant-1", AnimalID: a.ID, BatchNumber: "B-9", Name: "Minced beef", Quantity: 9,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.TransferProducts(env.Ctx, engine.ProductTransferOptions{
		ActorID: "plant-1", ShopID: env.ShopID,
		Items: []engine.ProductTransferItem{{ProductID: p.ID, Quantity: qty(4)}},
	}); err != nil {
		t.Fatal(err)
	}

	// No quantity given: the row's remaining stock moves, even though it
	// shrank since the product was created.
	if err := env.Engine.TransferProducts(env.Ctx, engine.ProductTransferOptions{
		ActorID: "plant-1", ShopID: env.ShopID,
		Items: []engine.ProductTransferItem{{ProductID: p.ID}},
	}); err != nil {
		t.Fatalf("whole-row transfer: %v", err)
	}
	got, err := env.Engine.Repo.GetProduct(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.TransferredTo == nil || *got.TransferredTo != env.ShopID || got.Quantity != 5 {
		t.Fatalf("expected remaining 5 units transferred, got %+v", got)
	}
	total, err := env.Engine.Repo.BatchQuantity(env.Ctx, "B-9")
	if err != nil {
		t.Fatal(err)
	}
	if total != 9 {
		t.Fatalf("batch quantity changed: %d", total)
	}
}

func TestProductDoubleTransfer(t *testing.T) {
	env := newTestEnv(t)
	a := receivedAnimal(t, env, "P-006")
	p, err := env.Engine.CreateProduct(env.Ctx, engine.ProductCreateOptions{
		ActorID: "plant-1", AnimalID: a.ID, BatchNumber: "B-7", Name: "Ribs", Quantity: 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.TransferProducts(env.Ctx, engine.ProductTransferOptions{
		ActorID: "plant-1", ShopID: env.ShopID,
		Items: []engine.ProductTransferItem{{ProductID: p.ID, Quantity: qty(3)}},
	}); err != nil {
		t.Fatal(err)
	}
	err = env.Engine.TransferProducts(env.Ctx, engine.ProductTransferOptions{
		ActorID: "plant-1", ShopID: env.ShopID,
		Items: []engine.ProductTransferItem{{ProductID: p.ID, Quantity: qty(3)}},
	})
	if code := conflictCode(t, err); code != engine.CodeAlreadyTransferredSameTarget {
		t.Fatalf("expected same-target conflict, got %s", code)
	}
}

func TestShopReceivesProducts(t *testing.T) {
	env := newTestEnv(t)
	a := receivedAnimal(t, env, "P-007")
	p, err := env.Engine.CreateProduct(env.Ctx, engine.ProductCreateOptions{
		ActorID: "plant-1", AnimalID: a.ID, BatchNumber: "B-8", Name: "Fillet", Quantity: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.TransferProducts(env.Ctx, engine.ProductTransferOptions{
		ActorID: "plant-1", ShopID: env.ShopID,
		Items: []engine.ProductTransferItem{{ProductID: p.ID, Quantity: qty(2)}},
	}); err != nil {
		t.Fatal(err)
	}
	// a processing unit cannot receive products
	err = env.Engine.ReceiveProducts(env.Ctx, engine.ProductReceiveOptions{ActorID: "plant-1", ProductIDs: []int64{p.ID}})
	var ve engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := env.Engine.ReceiveProducts(env.Ctx, engine.ProductReceiveOptions{ActorID: "shop-1", ProductIDs: []int64{p.ID}}); err != nil {
		t.Fatalf("shop receive: %v", err)
	}
	err = env.Engine.ReceiveProducts(env.Ctx, engine.ProductReceiveOptions{ActorID: "shop-1", ProductIDs: []int64{p.ID}})
	if code := conflictCode(t, err); code != engine.CodeAlreadyReceived {
		t.Fatalf("expected already_received, got %s", code)
	}
}
