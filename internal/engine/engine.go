// Package engine implements the traceability pipeline: registration,
// slaughter, transfer and receipt of animals, carcass parts and products.
// Every operation runs in a single transaction; audit and notification
// sinks are fed after commit.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"herdline/internal/audit"
	"herdline/internal/config"
	"herdline/internal/domain"
	"herdline/internal/engine/gate"
	"herdline/internal/notify"
	"herdline/internal/repo"
	"herdline/internal/roles"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Gate   gate.Gate
	Audit  audit.Sink
	Notify notify.Sink
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	return Engine{
		DB:     db,
		Repo:   r,
		Gate:   gate.Gate{Repo: r, Config: cfg},
		Audit:  audit.Writer{Repo: r},
		Notify: notify.Writer{Repo: r},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) ts() string {
	return e.now().UTC().Format(time.RFC3339)
}

// RegisterActor creates an actor with a normalized role.
func (e Engine) RegisterActor(ctx context.Context, id, role, displayName string) (domain.Actor, error) {
	if id == "" {
		return domain.Actor{}, ValidationError{Field: "id", Message: "actor id is required"}
	}
	parsed, err := roles.Parse(role)
	if err != nil {
		return domain.Actor{}, ValidationError{Field: "role", Message: err.Error()}
	}
	a := domain.Actor{
		ID:          id,
		Role:        string(parsed),
		DisplayName: displayName,
		CreatedAt:   e.ts(),
	}
	if err := e.Repo.InsertActor(ctx, nil, a); err != nil {
		return domain.Actor{}, fmt.Errorf("insert actor: %w", err)
	}
	return a, nil
}

// RegisterAnimal records a live animal on the producer's farm.
func (e Engine) RegisterAnimal(ctx context.Context, actorID, tag, species string) (domain.Animal, error) {
	if tag == "" {
		return domain.Animal{}, ValidationError{Field: "tag", Message: "tag is required"}
	}
	actor, err := e.Repo.GetActor(ctx, actorID)
	if err != nil {
		return domain.Animal{}, err
	}
	if err := gate.RequireActorRole(actor, roles.Farmer); err != nil {
		return domain.Animal{}, err
	}
	a := domain.Animal{
		ProducerID: actor.ID,
		Tag:        tag,
		Species:    species,
		Status:     "active",
		CreatedAt:  e.ts(),
	}
	id, err := e.Repo.InsertAnimal(ctx, a)
	if err != nil {
		return domain.Animal{}, fmt.Errorf("insert animal: %w", err)
	}
	a.ID = id
	e.Audit.Record(ctx, domain.AuditRecord{
		TS: a.CreatedAt, Action: "animal.register", PerformedBy: actor.ID,
		EntityKind: domain.KindAnimal, EntityID: &a.ID,
		NewValues: audit.MarshalValues(map[string]any{"tag": tag, "species": species}),
	})
	return a, nil
}

// PartInput describes one carcass part created at slaughter.
type PartInput struct {
	PartType string
	WeightKg float64
}

// SlaughterOptions are parameters for recording a slaughter.
type SlaughterOptions struct {
	ActorID     string
	AnimalID    int64
	CarcassType string // whole or split
	Parts       []PartInput
}

// Slaughter marks the animal slaughtered. A split carcass requires its
// parts up front so the part list is complete from the start.
func (e Engine) Slaughter(ctx context.Context, opts SlaughterOptions) (domain.Animal, error) {
	switch opts.CarcassType {
	case "whole":
		if len(opts.Parts) > 0 {
			return domain.Animal{}, ValidationError{Field: "parts", Message: "whole carcass takes no parts"}
		}
	case "split":
		if len(opts.Parts) == 0 {
			return domain.Animal{}, ValidationError{Field: "parts", Message: "split carcass requires at least one part"}
		}
		for _, p := range opts.Parts {
			if p.PartType == "" {
				return domain.Animal{}, ValidationError{Field: "parts", Message: "part type is required"}
			}
		}
	default:
		return domain.Animal{}, ValidationError{Field: "carcass_type", Message: "must be whole or split"}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Animal{}, err
	}
	defer tx.Rollback()

	actor, err := e.Repo.GetActorTx(ctx, tx, opts.ActorID)
	if err != nil {
		return domain.Animal{}, err
	}
	a, err := e.Repo.GetAnimalTx(ctx, tx, opts.AnimalID)
	if err != nil {
		return domain.Animal{}, err
	}
	if a.ProducerID != actor.ID {
		return domain.Animal{}, ValidationError{Field: "animal_id", Message: "animal belongs to another producer"}
	}
	if a.Status != "active" {
		return domain.Animal{}, ConflictError{Code: CodeAlreadyProcessed, Message: fmt.Sprintf("animal %d already slaughtered", a.ID)}
	}
	ts := e.ts()
	if err := e.Repo.MarkSlaughteredTx(ctx, tx, a.ID, opts.CarcassType, ts); err != nil {
		return domain.Animal{}, err
	}
	for _, p := range opts.Parts {
		if _, err := e.Repo.InsertPartTx(ctx, tx, domain.CarcassPart{
			AnimalID:  a.ID,
			PartType:  p.PartType,
			WeightKg:  p.WeightKg,
			CreatedAt: ts,
		}); err != nil {
			return domain.Animal{}, fmt.Errorf("insert part: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Animal{}, err
	}

	a.Status = "slaughtered"
	a.CarcassType = &opts.CarcassType
	a.SlaughteredAt = &ts
	e.Audit.Record(ctx, domain.AuditRecord{
		TS: ts, Action: "animal.slaughter", PerformedBy: actor.ID,
		EntityKind: domain.KindAnimal, EntityID: &a.ID,
		NewValues: audit.MarshalValues(map[string]any{"carcass_type": opts.CarcassType, "parts": len(opts.Parts)}),
	})
	return a, nil
}

// TransferOptions name the animals and parts moving to one processing unit.
type TransferOptions struct {
	ActorID          string
	ProcessingUnitID int64
	AnimalIDs        []int64
	PartIDs          []int64
}

// TransferResult counts the entities moved by one transfer batch.
type TransferResult struct {
	AnimalsTransferred int `json:"animals_transferred"`
	PartsTransferred   int `json:"parts_transferred"`
}

// Transfer assigns the pipeline leg for a batch of animals and parts.
// The batch is atomic: one invalid entity aborts the whole transfer.
func (e Engine) Transfer(ctx context.Context, opts TransferOptions) (TransferResult, error) {
	if len(opts.AnimalIDs) == 0 && len(opts.PartIDs) == 0 {
		return TransferResult{}, ValidationError{Message: "nothing to transfer"}
	}
	if opts.ProcessingUnitID <= 0 {
		return TransferResult{}, ValidationError{Field: "processing_unit_id", Message: "target processing unit is required"}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return TransferResult{}, err
	}
	defer tx.Rollback()

	actor, err := e.Repo.GetActorTx(ctx, tx, opts.ActorID)
	if err != nil {
		return TransferResult{}, err
	}
	if err := gate.RequireActorRole(actor, roles.Farmer); err != nil {
		return TransferResult{}, err
	}
	if _, err := e.Repo.GetProcessingUnitTx(ctx, tx, opts.ProcessingUnitID); err != nil {
		return TransferResult{}, fmt.Errorf("processing unit %d: %w", opts.ProcessingUnitID, err)
	}

	ts := e.ts()
	parents := map[int64]bool{}

	for _, id := range opts.AnimalIDs {
		a, err := e.Repo.GetAnimalTx(ctx, tx, id)
		if err != nil {
			return TransferResult{}, fmt.Errorf("animal %d: %w", id, err)
		}
		if err := e.checkAnimalTransferable(a, actor.ID, opts.ProcessingUnitID); err != nil {
			return TransferResult{}, err
		}
		ok, err := e.Repo.SetAnimalTransferTx(ctx, tx, id, opts.ProcessingUnitID, ts)
		if err != nil {
			return TransferResult{}, err
		}
		if !ok {
			return TransferResult{}, ConflictError{Code: CodeAlreadyTransferredDifferentTarget, Message: fmt.Sprintf("animal %d claimed by a concurrent transfer", id)}
		}
	}

	for _, id := range opts.PartIDs {
		p, err := e.Repo.GetPartTx(ctx, tx, id)
		if err != nil {
			return TransferResult{}, fmt.Errorf("part %d: %w", id, err)
		}
		parent, err := e.Repo.GetAnimalTx(ctx, tx, p.AnimalID)
		if err != nil {
			return TransferResult{}, fmt.Errorf("animal %d: %w", p.AnimalID, err)
		}
		if err := e.checkPartTransferable(ctx, tx, p, parent, actor.ID, opts.ProcessingUnitID); err != nil {
			return TransferResult{}, err
		}
		ok, err := e.Repo.SetPartTransferTx(ctx, tx, id, opts.ProcessingUnitID, ts)
		if err != nil {
			return TransferResult{}, err
		}
		if !ok {
			return TransferResult{}, ConflictError{Code: CodeAlreadyTransferredDifferentTarget, Message: fmt.Sprintf("part %d claimed by a concurrent transfer", id)}
		}
		parents[p.AnimalID] = true
	}

	// When the last part of a split carcass leaves the farm, the parent
	// animal follows it out of the pool.
	for animalID := range parents {
		n, err := e.Repo.CountUntransferredPartsTx(ctx, tx, animalID)
		if err != nil {
			return TransferResult{}, err
		}
		if n == 0 {
			if _, err := e.Repo.SetAnimalTransferTx(ctx, tx, animalID, opts.ProcessingUnitID, ts); err != nil {
				return TransferResult{}, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return TransferResult{}, err
	}

	for _, id := range opts.AnimalIDs {
		entityID := id
		e.Audit.Record(ctx, domain.AuditRecord{
			TS: ts, Action: "animal.transfer", PerformedBy: actor.ID,
			UnitKind: domain.UnitKindProcessing, UnitID: &opts.ProcessingUnitID,
			EntityKind: domain.KindAnimal, EntityID: &entityID,
		})
	}
	for _, id := range opts.PartIDs {
		entityID := id
		e.Audit.Record(ctx, domain.AuditRecord{
			TS: ts, Action: "part.transfer", PerformedBy: actor.ID,
			UnitKind: domain.UnitKindProcessing, UnitID: &opts.ProcessingUnitID,
			EntityKind: domain.KindPart, EntityID: &entityID,
		})
	}
	return TransferResult{AnimalsTransferred: len(opts.AnimalIDs), PartsTransferred: len(opts.PartIDs)}, nil
}

func (e Engine) checkAnimalTransferable(a domain.Animal, actorID string, target int64) error {
	if a.ProducerID != actorID {
		return ValidationError{Field: "animal_id", Message: fmt.Sprintf("animal %d belongs to another producer", a.ID)}
	}
	if a.TransferredTo != nil {
		if *a.TransferredTo == target {
			return ConflictError{Code: CodeAlreadyTransferredSameTarget, Message: fmt.Sprintf("animal %d already transferred to unit %d", a.ID, target)}
		}
		return ConflictError{Code: CodeAlreadyTransferredDifferentTarget, Message: fmt.Sprintf("animal %d already transferred to unit %d", a.ID, *a.TransferredTo)}
	}
	if a.Status != "slaughtered" {
		return InvariantError{Code: CodeNotSlaughtered, Message: fmt.Sprintf("animal %d is not slaughtered", a.ID)}
	}
	if a.CarcassType != nil && *a.CarcassType == "split" {
		return ValidationError{Field: "animal_id", Message: fmt.Sprintf("animal %d was split; transfer its parts", a.ID)}
	}
	return nil
}

func (e Engine) checkPartTransferable(ctx context.Context, tx *sql.Tx, p domain.CarcassPart, parent domain.Animal, actorID string, target int64) error {
	if parent.ProducerID != actorID {
		return ValidationError{Field: "part_id", Message: fmt.Sprintf("part %d belongs to another producer", p.ID)}
	}
	if p.TransferredTo != nil {
		if *p.TransferredTo == target {
			return ConflictError{Code: CodeAlreadyTransferredSameTarget, Message: fmt.Sprintf("part %d already transferred to unit %d", p.ID, target)}
		}
		return ConflictError{Code: CodeAlreadyTransferredDifferentTarget, Message: fmt.Sprintf("part %d already transferred to unit %d", p.ID, *p.TransferredTo)}
	}
	if parent.Status != "slaughtered" {
		return InvariantError{Code: CodeNotSlaughtered, Message: fmt.Sprintf("animal %d is not slaughtered", parent.ID)}
	}
	if parent.CarcassType == nil || *parent.CarcassType != "split" {
		return InvariantError{Code: CodeCarcassNotSplit, Message: fmt.Sprintf("animal %d carcass is not split", parent.ID)}
	}
	used, err := e.Repo.PartUsedInProductTx(ctx, tx, p.ID)
	if err != nil {
		return err
	}
	if used {
		return ConflictError{Code: CodeAlreadyProcessed, Message: fmt.Sprintf("part %d already consumed by a product", p.ID)}
	}
	return nil
}

// ReceiveOptions name the animals and parts a processing unit accepts.
type ReceiveOptions struct {
	ActorID   string
	AnimalIDs []int64
	PartIDs   []int64
}

// ReceiveResult counts the entities accepted by one receive batch.
type ReceiveResult struct {
	AnimalsReceived int `json:"animals_received"`
	PartsReceived   int `json:"parts_received"`
}

// Receive confirms arrival of transferred entities at the actor's unit.
func (e Engine) Receive(ctx context.Context, opts ReceiveOptions) (ReceiveResult, error) {
	if len(opts.AnimalIDs) == 0 && len(opts.PartIDs) == 0 {
		return ReceiveResult{}, ValidationError{Message: "nothing to receive"}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ReceiveResult{}, err
	}
	defer tx.Rollback()

	actor, err := e.Repo.GetActorTx(ctx, tx, opts.ActorID)
	if err != nil {
		return ReceiveResult{}, err
	}
	aff, err := e.Gate.Authorize(ctx, tx, actor, config.OpReceive)
	if err != nil {
		return ReceiveResult{}, err
	}
	if aff.UnitKind != domain.UnitKindProcessing {
		return ReceiveResult{}, ValidationError{Message: "only processing units receive animals and parts"}
	}

	ts := e.ts()
	producers := map[string]bool{}

	for _, id := range opts.AnimalIDs {
		a, err := e.Repo.GetAnimalTx(ctx, tx, id)
		if err != nil {
			return ReceiveResult{}, fmt.Errorf("animal %d: %w", id, err)
		}
		if err := checkReceivable(domain.KindAnimal, id, a.TransferredTo, a.ReceivedBy, a.RejectionStatus, aff.UnitID); err != nil {
			return ReceiveResult{}, err
		}
		if ok, err := e.Repo.SetAnimalReceivedTx(ctx, tx, id, actor.ID, ts); err != nil {
			return ReceiveResult{}, err
		} else if !ok {
			return ReceiveResult{}, ConflictError{Code: CodeAlreadyReceived, Message: fmt.Sprintf("animal %d already received", id)}
		}
		producers[a.ProducerID] = true
	}
	for _, id := range opts.PartIDs {
		p, err := e.Repo.GetPartTx(ctx, tx, id)
		if err != nil {
			return ReceiveResult{}, fmt.Errorf("part %d: %w", id, err)
		}
		if err := checkReceivable(domain.KindPart, id, p.TransferredTo, p.ReceivedBy, p.RejectionStatus, aff.UnitID); err != nil {
			return ReceiveResult{}, err
		}
		if ok, err := e.Repo.SetPartReceivedTx(ctx, tx, id, actor.ID, ts); err != nil {
			return ReceiveResult{}, err
		} else if !ok {
			return ReceiveResult{}, ConflictError{Code: CodeAlreadyReceived, Message: fmt.Sprintf("part %d already received", id)}
		}
		producer, err := e.Repo.EntityProducerTx(ctx, tx, domain.KindPart, id)
		if err != nil {
			return ReceiveResult{}, err
		}
		producers[producer] = true
	}

	if err := tx.Commit(); err != nil {
		return ReceiveResult{}, err
	}

	for _, id := range opts.AnimalIDs {
		entityID := id
		e.Audit.Record(ctx, domain.AuditRecord{
			TS: ts, Action: "animal.receive", PerformedBy: actor.ID,
			UnitKind: aff.UnitKind, UnitID: &aff.UnitID,
			EntityKind: domain.KindAnimal, EntityID: &entityID,
		})
	}
	for _, id := range opts.PartIDs {
		entityID := id
		e.Audit.Record(ctx, domain.AuditRecord{
			TS: ts, Action: "part.receive", PerformedBy: actor.ID,
			UnitKind: aff.UnitKind, UnitID: &aff.UnitID,
			EntityKind: domain.KindPart, EntityID: &entityID,
		})
	}
	for producer := range producers {
		e.Notify.Notify(ctx, domain.Notification{
			ActorID: producer, Type: "delivery.received",
			Title:   "Delivery received",
			Message: fmt.Sprintf("Your delivery was received by unit %d", aff.UnitID),
			DataJSON: notify.MarshalData(map[string]any{
				"unit_kind": aff.UnitKind, "unit_id": aff.UnitID,
			}),
			CreatedAt: ts,
		})
	}
	return ReceiveResult{AnimalsReceived: len(opts.AnimalIDs), PartsReceived: len(opts.PartIDs)}, nil
}

func checkReceivable(kind string, id int64, transferredTo *int64, receivedBy, rejectionStatus *string, unitID int64) error {
	if transferredTo == nil || *transferredTo != unitID {
		return ValidationError{Message: fmt.Sprintf("%s %d was not transferred to your unit", kind, id)}
	}
	if rejectionStatus != nil {
		return ConflictError{Code: CodeAlreadyRejected, Message: fmt.Sprintf("%s %d was rejected", kind, id)}
	}
	if receivedBy != nil {
		return ConflictError{Code: CodeAlreadyReceived, Message: fmt.Sprintf("%s %d already received", kind, id)}
	}
	return nil
}
