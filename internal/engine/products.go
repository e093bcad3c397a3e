package engine

import (
	"context"
	"fmt"

	"herdline/internal/audit"
	"herdline/internal/config"
	"herdline/internal/domain"
	"herdline/internal/notify"
)

// ProductCreateOptions are parameters for creating a product batch from
// received material. Either the whole animal or a set of its parts is
// consumed, not both.
type ProductCreateOptions struct {
	ActorID     string
	AnimalID    int64
	PartIDs     []int64
	BatchNumber string
	Name        string
	Quantity    int64
}

func (e Engine) CreateProduct(ctx context.Context, opts ProductCreateOptions) (domain.Product, error) {
	if opts.Name == "" {
		return domain.Product{}, ValidationError{Field: "name", Message: "product name is required"}
	}
	if opts.BatchNumber == "" {
		return domain.Product{}, ValidationError{Field: "batch_number", Message: "batch number is required"}
	}
	if opts.Quantity <= 0 {
		return domain.Product{}, InvariantError{Code: CodeInvalidQuantity, Message: "quantity must be positive"}
	}
	if opts.AnimalID > 0 && len(opts.PartIDs) > 0 {
		return domain.Product{}, ValidationError{Message: "give either an animal or parts, not both"}
	}
	if opts.AnimalID <= 0 && len(opts.PartIDs) == 0 {
		return domain.Product{}, ValidationError{Message: "an animal or at least one part is required"}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Product{}, err
	}
	defer tx.Rollback()

	actor, err := e.Repo.GetActorTx(ctx, tx, opts.ActorID)
	if err != nil {
		return domain.Product{}, err
	}
	aff, err := e.Gate.Authorize(ctx, tx, actor, config.OpCreateProduct)
	if err != nil {
		return domain.Product{}, err
	}
	if aff.UnitKind != domain.UnitKindProcessing {
		return domain.Product{}, ValidationError{Message: "only processing units create products"}
	}

	animalID := opts.AnimalID
	if animalID > 0 {
		a, err := e.Repo.GetAnimalTx(ctx, tx, animalID)
		if err != nil {
			return domain.Product{}, fmt.Errorf("animal %d: %w", animalID, err)
		}
		if a.TransferredTo == nil || *a.TransferredTo != aff.UnitID {
			return domain.Product{}, ValidationError{Message: fmt.Sprintf("animal %d was not transferred to your unit", animalID)}
		}
		if a.ReceivedBy == nil {
			return domain.Product{}, ValidationError{Message: fmt.Sprintf("animal %d was not received yet", animalID)}
		}
	}
	for _, partID := range opts.PartIDs {
		p, err := e.Repo.GetPartTx(ctx, tx, partID)
		if err != nil {
			return domain.Product{}, fmt.Errorf("part %d: %w", partID, err)
		}
		if animalID == 0 {
			animalID = p.AnimalID
		}
		if p.AnimalID != animalID {
			return domain.Product{}, ValidationError{Message: "parts of one product must come from one animal"}
		}
		if p.TransferredTo == nil || *p.TransferredTo != aff.UnitID {
			return domain.Product{}, ValidationError{Message: fmt.Sprintf("part %d was not transferred to your unit", partID)}
		}
		if p.ReceivedBy == nil {
			return domain.Product{}, ValidationError{Message: fmt.Sprintf("part %d was not received yet", partID)}
		}
		used, err := e.Repo.PartUsedInProductTx(ctx, tx, partID)
		if err != nil {
			return domain.Product{}, err
		}
		if used {
			return domain.Product{}, ConflictError{Code: CodeAlreadyProcessed, Message: fmt.Sprintf("part %d already consumed by a product", partID)}
		}
	}

	ts := e.ts()
	product := domain.Product{
		AnimalID:         animalID,
		ProcessingUnitID: aff.UnitID,
		BatchNumber:      opts.BatchNumber,
		Name:             opts.Name,
		Quantity:         opts.Quantity,
		CreatedBy:        actor.ID,
		CreatedAt:        ts,
	}
	id, err := e.Repo.InsertProductTx(ctx, tx, product)
	if err != nil {
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}
	product.ID = id
	for _, partID := range opts.PartIDs {
		if err := e.Repo.LinkProductIngredientTx(ctx, tx, id, partID); err != nil {
			return domain.Product{}, fmt.Errorf("link part %d: %w", partID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Product{}, err
	}

	e.Audit.Record(ctx, domain.AuditRecord{
		TS: ts, Action: "product.create", PerformedBy: actor.ID,
		UnitKind: aff.UnitKind, UnitID: &aff.UnitID,
		EntityKind: domain.KindProduct, EntityID: &product.ID,
		NewValues: marshalProductValues(product, opts.PartIDs),
	})
	return product, nil
}

func marshalProductValues(p domain.Product, partIDs []int64) string {
	v := map[string]any{
		"batch_number": p.BatchNumber,
		"name":         p.Name,
		"quantity":     p.Quantity,
		"animal_id":    p.AnimalID,
	}
	if len(partIDs) > 0 {
		v["part_ids"] = partIDs
	}
	return audit.MarshalValues(v)
}

// ProductTransferItem is one product line in a transfer to a shop.
// A nil quantity takes the row's full remaining stock; anything less
// than the stock splits the row.
type ProductTransferItem struct {
	ProductID int64
	Quantity  *int64
}

type ProductTransferOptions struct {
	ActorID string
	ShopID  int64
	Items   []ProductTransferItem
}

// TransferProducts moves product quantities from a processing unit to a
// shop. Partial quantities split the row; total batch quantity is
// conserved across the split.
func (e Engine) TransferProducts(ctx context.Context, opts ProductTransferOptions) error {
	if len(opts.Items) == 0 {
		return ValidationError{Message: "nothing to transfer"}
	}
	if opts.ShopID <= 0 {
		return ValidationError{Field: "shop_id", Message: "target shop is required"}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	actor, err := e.Repo.GetActorTx(ctx, tx, opts.ActorID)
	if err != nil {
		return err
	}
	aff, err := e.Gate.Authorize(ctx, tx, actor, config.OpTransfer)
	if err != nil {
		return err
	}
	if aff.UnitKind != domain.UnitKindProcessing {
		return ValidationError{Message: "only processing units transfer products"}
	}
	if _, err := e.Repo.GetShopTx(ctx, tx, opts.ShopID); err != nil {
		return fmt.Errorf("shop %d: %w", opts.ShopID, err)
	}

	ts := e.ts()
	batches := map[string]int64{}
	var transferredIDs []int64

	for _, item := range opts.Items {
		p, err := e.Repo.GetProductTx(ctx, tx, item.ProductID)
		if err != nil {
			return fmt.Errorf("product %d: %w", item.ProductID, err)
		}
		if p.ProcessingUnitID != aff.UnitID {
			return ValidationError{Message: fmt.Sprintf("product %d belongs to another unit", p.ID)}
		}
		if p.TransferredTo != nil {
			if *p.TransferredTo == opts.ShopID {
				return ConflictError{Code: CodeAlreadyTransferredSameTarget, Message: fmt.Sprintf("product %d already transferred to shop %d", p.ID, opts.ShopID)}
			}
			return ConflictError{Code: CodeAlreadyTransferredDifferentTarget, Message: fmt.Sprintf("product %d already transferred to shop %d", p.ID, *p.TransferredTo)}
		}
		if p.RejectionStatus != nil {
			return ConflictError{Code: CodeAlreadyRejected, Message: fmt.Sprintf("product %d was rejected", p.ID)}
		}
		// A nil quantity means the whole row, resolved against the
		// stock visible inside this transaction.
		qty := p.Quantity
		if item.Quantity != nil {
			qty = *item.Quantity
		}
		if qty <= 0 || qty > p.Quantity {
			return InvariantError{Code: CodeInvalidQuantity, Message: fmt.Sprintf("product %d has %d units, requested %d", p.ID, p.Quantity, qty)}
		}
		if _, seen := batches[p.BatchNumber]; !seen {
			total, err := e.Repo.BatchQuantityTx(ctx, tx, p.BatchNumber)
			if err != nil {
				return err
			}
			batches[p.BatchNumber] = total
		}

		if qty == p.Quantity {
			ok, err := e.Repo.SetProductTransferTx(ctx, tx, p.ID, opts.ShopID, ts)
			if err != nil {
				return err
			}
			if !ok {
				return ConflictError{Code: CodeAlreadyTransferredDifferentTarget, Message: fmt.Sprintf("product %d claimed by a concurrent transfer", p.ID)}
			}
			transferredIDs = append(transferredIDs, p.ID)
			continue
		}

		ok, err := e.Repo.DecrementProductQuantityTx(ctx, tx, p.ID, qty)
		if err != nil {
			return err
		}
		if !ok {
			return ConflictError{Code: CodeAlreadyTransferredDifferentTarget, Message: fmt.Sprintf("product %d claimed by a concurrent transfer", p.ID)}
		}
		splitID, err := e.Repo.InsertProductSplitTx(ctx, tx, p, qty, opts.ShopID, ts)
		if err != nil {
			return fmt.Errorf("split product %d: %w", p.ID, err)
		}
		transferredIDs = append(transferredIDs, splitID)
	}

	// Splits must never create or destroy stock.
	for batch, before := range batches {
		after, err := e.Repo.BatchQuantityTx(ctx, tx, batch)
		if err != nil {
			return err
		}
		if after != before {
			return InvariantError{Code: CodeQuantityConservation, Message: fmt.Sprintf("batch %s quantity changed from %d to %d", batch, before, after)}
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	for _, id := range transferredIDs {
		entityID := id
		e.Audit.Record(ctx, domain.AuditRecord{
			TS: ts, Action: "product.transfer", PerformedBy: actor.ID,
			UnitKind: domain.UnitKindShop, UnitID: &opts.ShopID,
			EntityKind: domain.KindProduct, EntityID: &entityID,
		})
	}
	return nil
}

type ProductReceiveOptions struct {
	ActorID    string
	ProductIDs []int64
}

// ReceiveProducts confirms arrival of products at the actor's shop.
func (e Engine) ReceiveProducts(ctx context.Context, opts ProductReceiveOptions) error {
	if len(opts.ProductIDs) == 0 {
		return ValidationError{Message: "nothing to receive"}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	actor, err := e.Repo.GetActorTx(ctx, tx, opts.ActorID)
	if err != nil {
		return err
	}
	aff, err := e.Gate.Authorize(ctx, tx, actor, config.OpReceive)
	if err != nil {
		return err
	}
	if aff.UnitKind != domain.UnitKindShop {
		return ValidationError{Message: "only shops receive products"}
	}

	ts := e.ts()
	creators := map[string]bool{}

	for _, id := range opts.ProductIDs {
		p, err := e.Repo.GetProductTx(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("product %d: %w", id, err)
		}
		if err := checkReceivable(domain.KindProduct, id, p.TransferredTo, p.ReceivedBy, p.RejectionStatus, aff.UnitID); err != nil {
			return err
		}
		if ok, err := e.Repo.SetProductReceivedTx(ctx, tx, id, actor.ID, ts); err != nil {
			return err
		} else if !ok {
			return ConflictError{Code: CodeAlreadyReceived, Message: fmt.Sprintf("product %d already received", id)}
		}
		creators[p.CreatedBy] = true
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	for _, id := range opts.ProductIDs {
		entityID := id
		e.Audit.Record(ctx, domain.AuditRecord{
			TS: ts, Action: "product.receive", PerformedBy: actor.ID,
			UnitKind: aff.UnitKind, UnitID: &aff.UnitID,
			EntityKind: domain.KindProduct, EntityID: &entityID,
		})
	}
	for creator := range creators {
		e.Notify.Notify(ctx, domain.Notification{
			ActorID: creator, Type: "delivery.received",
			Title:     "Products received",
			Message:   fmt.Sprintf("Your products were received by shop %d", aff.UnitID),
			DataJSON:  notify.MarshalData(map[string]any{"shop_id": aff.UnitID}),
			CreatedAt: ts,
		})
	}
	return nil
}
