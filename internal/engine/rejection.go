package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"herdline/internal/audit"
	"herdline/internal/config"
	"herdline/internal/domain"
	"herdline/internal/notify"
	"herdline/internal/repo"
)

// transferState is the slice of an entity's row shared by rejection and
// appeal checks, regardless of kind.
type transferState struct {
	TransferredTo   *int64
	ReceivedBy      *string
	RejectionStatus *string
	AppealStatus    *string
}

func (e Engine) loadTransferState(ctx context.Context, tx *sql.Tx, kind string, id int64) (transferState, error) {
	switch kind {
	case domain.KindAnimal:
		a, err := e.Repo.GetAnimalTx(ctx, tx, id)
		if err != nil {
			return transferState{}, err
		}
		return transferState{a.TransferredTo, a.ReceivedBy, a.RejectionStatus, a.AppealStatus}, nil
	case domain.KindPart:
		p, err := e.Repo.GetPartTx(ctx, tx, id)
		if err != nil {
			return transferState{}, err
		}
		return transferState{p.TransferredTo, p.ReceivedBy, p.RejectionStatus, p.AppealStatus}, nil
	case domain.KindProduct:
		p, err := e.Repo.GetProductTx(ctx, tx, id)
		if err != nil {
			return transferState{}, err
		}
		return transferState{p.TransferredTo, p.ReceivedBy, p.RejectionStatus, p.AppealStatus}, nil
	default:
		return transferState{}, ValidationError{Field: "entity_kind", Message: fmt.Sprintf("unknown entity kind %q", kind)}
	}
}

// unitKindFor maps an entity kind to the kind of unit that receives it.
func unitKindFor(entityKind string) string {
	if entityKind == domain.KindProduct {
		return domain.UnitKindShop
	}
	return domain.UnitKindProcessing
}

// RejectOptions are parameters for rejecting a delivered entity.
type RejectOptions struct {
	ActorID    string
	EntityKind string
	EntityID   int64
	Category   string
	Reason     string
	Notes      string
}

// Reject marks an entity rejected on arrival. The category and reason
// must come from the deployment's rejection catalog, and the record they
// produce is immutable.
func (e Engine) Reject(ctx context.Context, opts RejectOptions) (domain.RejectionReason, error) {
	if !e.Config.ValidRejection(opts.Category, opts.Reason) {
		return domain.RejectionReason{}, ValidationError{Field: "reason", Message: fmt.Sprintf("%s/%s is not in the rejection catalog", opts.Category, opts.Reason)}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.RejectionReason{}, err
	}
	defer tx.Rollback()

	actor, err := e.Repo.GetActorTx(ctx, tx, opts.ActorID)
	if err != nil {
		return domain.RejectionReason{}, err
	}
	aff, err := e.Gate.Authorize(ctx, tx, actor, config.OpReject)
	if err != nil {
		return domain.RejectionReason{}, err
	}
	if aff.UnitKind != unitKindFor(opts.EntityKind) {
		return domain.RejectionReason{}, ValidationError{Message: fmt.Sprintf("a %s cannot reject a %s", aff.UnitKind, opts.EntityKind)}
	}

	st, err := e.loadTransferState(ctx, tx, opts.EntityKind, opts.EntityID)
	if err != nil {
		return domain.RejectionReason{}, err
	}
	if st.TransferredTo == nil || *st.TransferredTo != aff.UnitID {
		return domain.RejectionReason{}, ValidationError{Message: fmt.Sprintf("%s %d was not transferred to your unit", opts.EntityKind, opts.EntityID)}
	}
	if st.ReceivedBy != nil {
		return domain.RejectionReason{}, ConflictError{Code: CodeAlreadyReceived, Message: fmt.Sprintf("%s %d already received", opts.EntityKind, opts.EntityID)}
	}

	ts := e.ts()
	ok, err := e.Repo.SetRejectionTx(ctx, tx, opts.EntityKind, opts.EntityID, actor.ID, ts)
	if err != nil {
		return domain.RejectionReason{}, err
	}
	if !ok {
		return domain.RejectionReason{}, ConflictError{Code: CodeAlreadyRejected, Message: fmt.Sprintf("%s %d already rejected", opts.EntityKind, opts.EntityID)}
	}

	rr := domain.RejectionReason{
		EntityKind: opts.EntityKind,
		EntityID:   opts.EntityID,
		Category:   opts.Category,
		Reason:     opts.Reason,
		Notes:      opts.Notes,
		RejectedBy: actor.ID,
		UnitKind:   aff.UnitKind,
		UnitID:     aff.UnitID,
		CreatedAt:  ts,
	}
	rrID, err := e.Repo.InsertRejectionReasonTx(ctx, tx, rr)
	if err != nil {
		return domain.RejectionReason{}, fmt.Errorf("insert rejection reason: %w", err)
	}
	rr.ID = rrID

	producer, err := e.Repo.EntityProducerTx(ctx, tx, opts.EntityKind, opts.EntityID)
	if err != nil {
		return domain.RejectionReason{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.RejectionReason{}, err
	}

	e.Audit.Record(ctx, domain.AuditRecord{
		TS: ts, Action: "entity.reject", PerformedBy: actor.ID,
		AffectedUser: producer,
		UnitKind:     aff.UnitKind, UnitID: &aff.UnitID,
		EntityKind: opts.EntityKind, EntityID: &opts.EntityID,
		OldValues: audit.MarshalValues(map[string]any{"rejection_status": nil, "received_by": st.ReceivedBy}),
		NewValues: audit.MarshalValues(map[string]any{"rejection_status": "rejected", "category": opts.Category, "reason": opts.Reason}),
	})
	e.Notify.Notify(ctx, domain.Notification{
		ActorID: producer, Type: "delivery.rejected",
		Title:   "Delivery rejected",
		Message: fmt.Sprintf("Your %s %d was rejected: %s/%s", opts.EntityKind, opts.EntityID, opts.Category, opts.Reason),
		DataJSON: notify.MarshalData(map[string]any{
			"entity_kind": opts.EntityKind, "entity_id": opts.EntityID,
			"category": opts.Category, "reason": opts.Reason,
		}),
		CreatedAt: ts,
	})
	return rr, nil
}

// AppealOptions are parameters for opening an appeal against a rejection.
type AppealOptions struct {
	ActorID    string
	EntityKind string
	EntityID   int64
	Notes      string
}

// OpenAppeal lets the producer contest a rejection. Only one appeal may
// be pending per entity.
func (e Engine) OpenAppeal(ctx context.Context, opts AppealOptions) (domain.Appeal, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Appeal{}, err
	}
	defer tx.Rollback()

	actor, err := e.Repo.GetActorTx(ctx, tx, opts.ActorID)
	if err != nil {
		return domain.Appeal{}, err
	}
	producer, err := e.Repo.EntityProducerTx(ctx, tx, opts.EntityKind, opts.EntityID)
	if err != nil {
		return domain.Appeal{}, err
	}
	if producer != actor.ID {
		return domain.Appeal{}, ValidationError{Message: fmt.Sprintf("%s %d belongs to another producer", opts.EntityKind, opts.EntityID)}
	}
	st, err := e.loadTransferState(ctx, tx, opts.EntityKind, opts.EntityID)
	if err != nil {
		return domain.Appeal{}, err
	}
	if st.RejectionStatus == nil {
		return domain.Appeal{}, ValidationError{Message: fmt.Sprintf("%s %d is not rejected", opts.EntityKind, opts.EntityID)}
	}
	if _, err := e.Repo.PendingAppealTx(ctx, tx, opts.EntityKind, opts.EntityID); err == nil {
		return domain.Appeal{}, ConflictError{Code: CodeAppealAlreadyOpen, Message: fmt.Sprintf("%s %d already has a pending appeal", opts.EntityKind, opts.EntityID)}
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Appeal{}, err
	}

	ts := e.ts()
	appeal := domain.Appeal{
		EntityKind: opts.EntityKind,
		EntityID:   opts.EntityID,
		Status:     "pending",
		OpenedBy:   actor.ID,
		OpenedAt:   ts,
		Notes:      opts.Notes,
	}
	id, err := e.Repo.InsertAppealTx(ctx, tx, appeal)
	if err != nil {
		return domain.Appeal{}, fmt.Errorf("insert appeal: %w", err)
	}
	appeal.ID = id
	if err := e.Repo.SetEntityAppealStatusTx(ctx, tx, opts.EntityKind, opts.EntityID, "pending", nil); err != nil {
		return domain.Appeal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Appeal{}, err
	}

	e.Audit.Record(ctx, domain.AuditRecord{
		TS: ts, Action: "appeal.open", PerformedBy: actor.ID,
		EntityKind: opts.EntityKind, EntityID: &opts.EntityID,
	})
	return appeal, nil
}

// ResolveAppealOptions carry the unit's verdict on a pending appeal.
type ResolveAppealOptions struct {
	ActorID  string
	AppealID int64
	Approve  bool
	Notes    string
}

// ResolveAppeal settles a pending appeal exactly once. Approval clears
// the rejection so the entity re-enters the receivable pool; denial
// leaves the rejection standing.
func (e Engine) ResolveAppeal(ctx context.Context, opts ResolveAppealOptions) (domain.Appeal, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Appeal{}, err
	}
	defer tx.Rollback()

	actor, err := e.Repo.GetActorTx(ctx, tx, opts.ActorID)
	if err != nil {
		return domain.Appeal{}, err
	}
	aff, err := e.Gate.Authorize(ctx, tx, actor, config.OpResolveAppeal)
	if err != nil {
		return domain.Appeal{}, err
	}
	appeal, err := e.Repo.GetAppealTx(ctx, tx, opts.AppealID)
	if err != nil {
		return domain.Appeal{}, err
	}
	st, err := e.loadTransferState(ctx, tx, appeal.EntityKind, appeal.EntityID)
	if err != nil {
		return domain.Appeal{}, err
	}
	// The rejecting unit is the transfer target; only it may resolve.
	if aff.UnitKind != unitKindFor(appeal.EntityKind) || st.TransferredTo == nil || *st.TransferredTo != aff.UnitID {
		return domain.Appeal{}, ValidationError{Message: fmt.Sprintf("appeal %d concerns another unit", appeal.ID)}
	}

	status := "denied"
	if opts.Approve {
		status = "approved"
	}
	ts := e.ts()
	ok, err := e.Repo.ResolveAppealTx(ctx, tx, appeal.ID, status, actor.ID, opts.Notes, ts)
	if err != nil {
		return domain.Appeal{}, err
	}
	if !ok {
		return domain.Appeal{}, ConflictError{Code: CodeAppealNotPending, Message: fmt.Sprintf("appeal %d is not pending", appeal.ID)}
	}
	if err := e.Repo.SetEntityAppealStatusTx(ctx, tx, appeal.EntityKind, appeal.EntityID, status, &ts); err != nil {
		return domain.Appeal{}, err
	}
	if opts.Approve {
		if err := e.Repo.ClearRejectionTx(ctx, tx, appeal.EntityKind, appeal.EntityID); err != nil {
			return domain.Appeal{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Appeal{}, err
	}

	appeal.Status = status
	appeal.ResolvedBy = &actor.ID
	appeal.ResolvedAt = &ts
	if opts.Notes != "" {
		appeal.Notes = opts.Notes
	}
	e.Audit.Record(ctx, domain.AuditRecord{
		TS: ts, Action: "appeal.resolve", PerformedBy: actor.ID,
		AffectedUser: appeal.OpenedBy,
		UnitKind:     aff.UnitKind, UnitID: &aff.UnitID,
		EntityKind: appeal.EntityKind, EntityID: &appeal.EntityID,
		NewValues: audit.MarshalValues(map[string]any{"status": status}),
	})
	e.Notify.Notify(ctx, domain.Notification{
		ActorID: appeal.OpenedBy, Type: "appeal.resolved",
		Title:   "Appeal " + status,
		Message: fmt.Sprintf("Your appeal for %s %d was %s", appeal.EntityKind, appeal.EntityID, status),
		DataJSON: notify.MarshalData(map[string]any{
			"appeal_id": appeal.ID, "status": status,
		}),
		CreatedAt: ts,
	})
	return appeal, nil
}
