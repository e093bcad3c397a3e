package repo

import (
	"context"
	"database/sql"

	"herdline/internal/domain"
)

func (r Repo) InsertProcessingUnitTx(ctx context.Context, tx *sql.Tx, name, ts string) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO processing_units(name,created_at) VALUES (?,?)`, name, ts)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetProcessingUnit(ctx context.Context, id int64) (domain.ProcessingUnit, error) {
	var u domain.ProcessingUnit
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,created_at FROM processing_units WHERE id=?`, id).
		Scan(&u.ID, &u.Name, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) GetProcessingUnitTx(ctx context.Context, tx *sql.Tx, id int64) (domain.ProcessingUnit, error) {
	var u domain.ProcessingUnit
	err := tx.QueryRowContext(ctx, `SELECT id,name,created_at FROM processing_units WHERE id=?`, id).
		Scan(&u.ID, &u.Name, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) ListProcessingUnits(ctx context.Context) ([]domain.ProcessingUnit, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,created_at FROM processing_units ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ProcessingUnit
	for rows.Next() {
		var u domain.ProcessingUnit
		if err := rows.Scan(&u.ID, &u.Name, &u.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) InsertShopTx(ctx context.Context, tx *sql.Tx, name, ts string) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO shops(name,created_at) VALUES (?,?)`, name, ts)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetShop(ctx context.Context, id int64) (domain.Shop, error) {
	var s domain.Shop
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,created_at FROM shops WHERE id=?`, id).
		Scan(&s.ID, &s.Name, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) GetShopTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Shop, error) {
	var s domain.Shop
	err := tx.QueryRowContext(ctx, `SELECT id,name,created_at FROM shops WHERE id=?`, id).
		Scan(&s.ID, &s.Name, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) ListShops(ctx context.Context) ([]domain.Shop, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,created_at FROM shops ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Shop
	for rows.Next() {
		var s domain.Shop
		if err := rows.Scan(&s.ID, &s.Name, &s.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// --- memberships ---

const membershipColumns = `id,unit_kind,unit_id,actor_id,role,status,COALESCE(invited_by,''),created_at,updated_at`

func scanMembership(row rowScanner) (domain.Membership, error) {
	var m domain.Membership
	err := row.Scan(&m.ID, &m.UnitKind, &m.UnitID, &m.ActorID, &m.Role, &m.Status, &m.InvitedBy, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

func (r Repo) InsertMembershipTx(ctx context.Context, tx *sql.Tx, m domain.Membership) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO memberships(unit_kind,unit_id,actor_id,role,status,invited_by,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?)`,
		m.UnitKind, m.UnitID, m.ActorID, m.Role, m.Status, nullable(m.InvitedBy), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetMembership(ctx context.Context, id int64) (domain.Membership, error) {
	return scanMembership(r.DB.QueryRowContext(ctx, `SELECT `+membershipColumns+` FROM memberships WHERE id=?`, id))
}

func (r Repo) GetMembershipTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Membership, error) {
	return scanMembership(tx.QueryRowContext(ctx, `SELECT `+membershipColumns+` FROM memberships WHERE id=?`, id))
}

func (r Repo) GetMembershipByActorTx(ctx context.Context, tx *sql.Tx, unitKind string, unitID int64, actorID string) (domain.Membership, error) {
	return scanMembership(tx.QueryRowContext(ctx, `SELECT `+membershipColumns+` FROM memberships
WHERE unit_kind=? AND unit_id=? AND actor_id=?`, unitKind, unitID, actorID))
}

// ActiveMembershipTx returns the actor's active membership in any unit.
// An actor belongs to at most one unit at a time.
func (r Repo) ActiveMembershipTx(ctx context.Context, tx *sql.Tx, actorID string) (domain.Membership, error) {
	return scanMembership(tx.QueryRowContext(ctx, `SELECT `+membershipColumns+` FROM memberships
WHERE actor_id=? AND status='active' ORDER BY updated_at DESC LIMIT 1`, actorID))
}

func (r Repo) ActiveMembership(ctx context.Context, actorID string) (domain.Membership, error) {
	return scanMembership(r.DB.QueryRowContext(ctx, `SELECT `+membershipColumns+` FROM memberships
WHERE actor_id=? AND status='active' ORDER BY updated_at DESC LIMIT 1`, actorID))
}

func (r Repo) ListMemberships(ctx context.Context, unitKind string, unitID int64) ([]domain.Membership, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+membershipColumns+` FROM memberships
WHERE unit_kind=? AND unit_id=? ORDER BY id`, unitKind, unitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) ListMembershipsByActor(ctx context.Context, actorID string) ([]domain.Membership, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+membershipColumns+` FROM memberships WHERE actor_id=? ORDER BY id`, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) SetMembershipStatusTx(ctx context.Context, tx *sql.Tx, id int64, status, ts string) error {
	res, err := tx.ExecContext(ctx, `UPDATE memberships SET status=?, updated_at=? WHERE id=?`, status, ts, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetMembershipRoleTx(ctx context.Context, tx *sql.Tx, id int64, role, ts string) error {
	res, err := tx.ExecContext(ctx, `UPDATE memberships SET role=?, updated_at=? WHERE id=?`, role, ts, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteMembershipTx removes a membership row. Declined invitations and
// denied join requests are deleted so the unique constraint does not
// block a later invite.
func (r Repo) DeleteMembershipTx(ctx context.Context, tx *sql.Tx, id int64) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM memberships WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountActiveOwnersTx counts active owners of a unit, used by the
// last-owner guard on leave and removal.
func (r Repo) CountActiveOwnersTx(ctx context.Context, tx *sql.Tx, unitKind string, unitID int64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM memberships
WHERE unit_kind=? AND unit_id=? AND role='owner' AND status='active'`, unitKind, unitID).Scan(&n)
	return n, err
}
