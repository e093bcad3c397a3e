package repo

import (
	"context"
	"database/sql"
	"fmt"

	"herdline/internal/domain"
)

func tableFor(kind string) (string, error) {
	switch kind {
	case domain.KindAnimal:
		return "animals", nil
	case domain.KindPart:
		return "carcass_parts", nil
	case domain.KindProduct:
		return "products", nil
	default:
		return "", fmt.Errorf("unknown entity kind %q", kind)
	}
}

func (r Repo) InsertRejectionReasonTx(ctx context.Context, tx *sql.Tx, rr domain.RejectionReason) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO rejection_reasons(entity_kind,entity_id,category,reason,notes,rejected_by,unit_kind,unit_id,created_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		rr.EntityKind, rr.EntityID, rr.Category, rr.Reason, nullable(rr.Notes), rr.RejectedBy, rr.UnitKind, rr.UnitID, rr.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) ListRejectionReasons(ctx context.Context, entityKind string, entityID int64) ([]domain.RejectionReason, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,entity_kind,entity_id,category,reason,COALESCE(notes,''),rejected_by,unit_kind,unit_id,created_at
FROM rejection_reasons WHERE entity_kind=? AND entity_id=? ORDER BY id`, entityKind, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.RejectionReason
	for rows.Next() {
		var rr domain.RejectionReason
		if err := rows.Scan(&rr.ID, &rr.EntityKind, &rr.EntityID, &rr.Category, &rr.Reason, &rr.Notes,
			&rr.RejectedBy, &rr.UnitKind, &rr.UnitID, &rr.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, rr)
	}
	return res, rows.Err()
}

// SetRejectionTx marks the entity rejected. The conditional update makes
// double rejection a no-op visible to the caller.
func (r Repo) SetRejectionTx(ctx context.Context, tx *sql.Tx, kind string, id int64, actorID, ts string) (bool, error) {
	table, err := tableFor(kind)
	if err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, `UPDATE `+table+` SET rejection_status='rejected', rejected_by=?, rejected_at=? WHERE id=? AND rejection_status IS NULL`,
		actorID, ts, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ClearRejectionTx removes the rejection mark, returning the entity to the
// receivable pool. Used when an appeal is approved.
func (r Repo) ClearRejectionTx(ctx context.Context, tx *sql.Tx, kind string, id int64) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE `+table+` SET rejection_status=NULL, rejected_by=NULL, rejected_at=NULL WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetEntityAppealStatusTx(ctx context.Context, tx *sql.Tx, kind string, id int64, status string, resolvedAt *string) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE `+table+` SET appeal_status=?, appeal_resolved_at=? WHERE id=?`,
		status, nullableStringPtr(resolvedAt), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// EntityProducerTx resolves the farmer responsible for an entity. Parts
// and products walk up to the source animal.
func (r Repo) EntityProducerTx(ctx context.Context, tx *sql.Tx, kind string, id int64) (string, error) {
	var query string
	switch kind {
	case domain.KindAnimal:
		query = `SELECT producer_id FROM animals WHERE id=?`
	case domain.KindPart:
		query = `SELECT a.producer_id FROM carcass_parts p JOIN animals a ON a.id=p.animal_id WHERE p.id=?`
	case domain.KindProduct:
		query = `SELECT a.producer_id FROM products p JOIN animals a ON a.id=p.animal_id WHERE p.id=?`
	default:
		return "", fmt.Errorf("unknown entity kind %q", kind)
	}
	var producerID string
	err := tx.QueryRowContext(ctx, query, id).Scan(&producerID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return producerID, err
}

// --- appeals ---

const appealColumns = `id,entity_kind,entity_id,status,opened_by,opened_at,resolved_by,COALESCE(notes,''),resolved_at`

func scanAppeal(row rowScanner) (domain.Appeal, error) {
	var a domain.Appeal
	var resolvedBy, resolvedAt sql.NullString
	err := row.Scan(&a.ID, &a.EntityKind, &a.EntityID, &a.Status, &a.OpenedBy, &a.OpenedAt, &resolvedBy, &a.Notes, &resolvedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.ResolvedBy = optString(resolvedBy)
	a.ResolvedAt = optString(resolvedAt)
	return a, nil
}

func (r Repo) InsertAppealTx(ctx context.Context, tx *sql.Tx, a domain.Appeal) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO appeals(entity_kind,entity_id,status,opened_by,opened_at,notes)
VALUES (?,?,?,?,?,?)`,
		a.EntityKind, a.EntityID, a.Status, a.OpenedBy, a.OpenedAt, nullable(a.Notes))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetAppeal(ctx context.Context, id int64) (domain.Appeal, error) {
	return scanAppeal(r.DB.QueryRowContext(ctx, `SELECT `+appealColumns+` FROM appeals WHERE id=?`, id))
}

func (r Repo) GetAppealTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Appeal, error) {
	return scanAppeal(tx.QueryRowContext(ctx, `SELECT `+appealColumns+` FROM appeals WHERE id=?`, id))
}

// PendingAppealTx returns the open appeal for an entity, if any.
func (r Repo) PendingAppealTx(ctx context.Context, tx *sql.Tx, kind string, entityID int64) (domain.Appeal, error) {
	return scanAppeal(tx.QueryRowContext(ctx, `SELECT `+appealColumns+` FROM appeals
WHERE entity_kind=? AND entity_id=? AND status='pending' LIMIT 1`, kind, entityID))
}

func (r Repo) ListAppeals(ctx context.Context, status string) ([]domain.Appeal, error) {
	query := `SELECT ` + appealColumns + ` FROM appeals`
	var args []any
	if status != "" {
		query += ` WHERE status=?`
		args = append(args, status)
	}
	query += ` ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Appeal
	for rows.Next() {
		a, err := scanAppeal(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// ResolveAppealTx flips a pending appeal to its terminal status. Matches
// zero rows when the appeal was already resolved.
func (r Repo) ResolveAppealTx(ctx context.Context, tx *sql.Tx, id int64, status, resolvedBy, notes, ts string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE appeals SET status=?, resolved_by=?, notes=COALESCE(NULLIF(?,''),notes), resolved_at=? WHERE id=? AND status='pending'`,
		status, resolvedBy, notes, ts, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
