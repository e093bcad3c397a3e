package repo

import (
	"context"
	"database/sql"
	"strings"

	"herdline/internal/domain"
)

const animalColumns = `id,producer_id,tag,COALESCE(species,''),status,carcass_type,slaughtered_at,
transferred_to,transferred_at,received_by,received_at,
rejection_status,rejected_by,rejected_at,appeal_status,appeal_resolved_at,created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnimal(row rowScanner) (domain.Animal, error) {
	var a domain.Animal
	var carcassType, slaughteredAt, transferredAt, receivedBy, receivedAt sql.NullString
	var rejectionStatus, rejectedBy, rejectedAt, appealStatus, appealResolvedAt sql.NullString
	var transferredTo sql.NullInt64
	err := row.Scan(&a.ID, &a.ProducerID, &a.Tag, &a.Species, &a.Status, &carcassType, &slaughteredAt,
		&transferredTo, &transferredAt, &receivedBy, &receivedAt,
		&rejectionStatus, &rejectedBy, &rejectedAt, &appealStatus, &appealResolvedAt, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.CarcassType = optString(carcassType)
	a.SlaughteredAt = optString(slaughteredAt)
	a.TransferredTo = optInt64(transferredTo)
	a.TransferredAt = optString(transferredAt)
	a.ReceivedBy = optString(receivedBy)
	a.ReceivedAt = optString(receivedAt)
	a.RejectionStatus = optString(rejectionStatus)
	a.RejectedBy = optString(rejectedBy)
	a.RejectedAt = optString(rejectedAt)
	a.AppealStatus = optString(appealStatus)
	a.AppealResolvedAt = optString(appealResolvedAt)
	return a, nil
}

func optString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func optInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func (r Repo) InsertAnimal(ctx context.Context, a domain.Animal) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO animals(producer_id,tag,species,status,created_at) VALUES (?,?,?,?,?)`,
		a.ProducerID, a.Tag, nullable(a.Species), a.Status, a.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetAnimal(ctx context.Context, id int64) (domain.Animal, error) {
	return scanAnimal(r.DB.QueryRowContext(ctx, `SELECT `+animalColumns+` FROM animals WHERE id=?`, id))
}

func (r Repo) GetAnimalTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Animal, error) {
	return scanAnimal(tx.QueryRowContext(ctx, `SELECT `+animalColumns+` FROM animals WHERE id=?`, id))
}

type AnimalFilters struct {
	ProducerID    string
	Status        string
	TransferredTo int64
	Limit         int
}

func (r Repo) ListAnimals(ctx context.Context, f AnimalFilters) ([]domain.Animal, error) {
	var clauses []string
	var args []any
	if f.ProducerID != "" {
		clauses = append(clauses, "producer_id=?")
		args = append(args, f.ProducerID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.TransferredTo > 0 {
		clauses = append(clauses, "transferred_to=?")
		args = append(args, f.TransferredTo)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + animalColumns + ` FROM animals ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Animal
	for rows.Next() {
		a, err := scanAnimal(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// ListPendingAnimals returns animals transferred to the unit, not yet
// received and not rejected.
func (r Repo) ListPendingAnimals(ctx context.Context, unitID int64) ([]domain.Animal, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+animalColumns+` FROM animals
WHERE transferred_to=? AND received_by IS NULL AND rejection_status IS NULL ORDER BY transferred_at ASC, id ASC`, unitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Animal
	for rows.Next() {
		a, err := scanAnimal(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) MarkSlaughteredTx(ctx context.Context, tx *sql.Tx, id int64, carcassType, ts string) error {
	res, err := tx.ExecContext(ctx, `UPDATE animals SET status='slaughtered', carcass_type=?, slaughtered_at=? WHERE id=? AND status='active'`,
		carcassType, ts, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAnimalTransferTx assigns the pipeline leg. The conditional update is
// the concurrency control: a row already claimed by a concurrent transfer
// matches zero rows and the batch aborts.
func (r Repo) SetAnimalTransferTx(ctx context.Context, tx *sql.Tx, id, unitID int64, ts string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE animals SET transferred_to=?, transferred_at=? WHERE id=? AND transferred_to IS NULL`,
		unitID, ts, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r Repo) SetAnimalReceivedTx(ctx context.Context, tx *sql.Tx, id int64, actorID, ts string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE animals SET received_by=?, received_at=? WHERE id=? AND transferred_to IS NOT NULL AND received_by IS NULL`,
		actorID, ts, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// --- carcass parts ---

const partColumns = `id,animal_id,part_type,COALESCE(weight_kg,0),
transferred_to,transferred_at,received_by,received_at,
rejection_status,rejected_by,rejected_at,appeal_status,appeal_resolved_at,created_at`

func scanPart(row rowScanner) (domain.CarcassPart, error) {
	var p domain.CarcassPart
	var transferredAt, receivedBy, receivedAt sql.NullString
	var rejectionStatus, rejectedBy, rejectedAt, appealStatus, appealResolvedAt sql.NullString
	var transferredTo sql.NullInt64
	err := row.Scan(&p.ID, &p.AnimalID, &p.PartType, &p.WeightKg,
		&transferredTo, &transferredAt, &receivedBy, &receivedAt,
		&rejectionStatus, &rejectedBy, &rejectedAt, &appealStatus, &appealResolvedAt, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.TransferredTo = optInt64(transferredTo)
	p.TransferredAt = optString(transferredAt)
	p.ReceivedBy = optString(receivedBy)
	p.ReceivedAt = optString(receivedAt)
	p.RejectionStatus = optString(rejectionStatus)
	p.RejectedBy = optString(rejectedBy)
	p.RejectedAt = optString(rejectedAt)
	p.AppealStatus = optString(appealStatus)
	p.AppealResolvedAt = optString(appealResolvedAt)
	return p, nil
}

func (r Repo) InsertPartTx(ctx context.Context, tx *sql.Tx, p domain.CarcassPart) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO carcass_parts(animal_id,part_type,weight_kg,created_at) VALUES (?,?,?,?)`,
		p.AnimalID, p.PartType, p.WeightKg, p.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetPart(ctx context.Context, id int64) (domain.CarcassPart, error) {
	return scanPart(r.DB.QueryRowContext(ctx, `SELECT `+partColumns+` FROM carcass_parts WHERE id=?`, id))
}

func (r Repo) GetPartTx(ctx context.Context, tx *sql.Tx, id int64) (domain.CarcassPart, error) {
	return scanPart(tx.QueryRowContext(ctx, `SELECT `+partColumns+` FROM carcass_parts WHERE id=?`, id))
}

func (r Repo) ListPartsByAnimal(ctx context.Context, animalID int64) ([]domain.CarcassPart, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+partColumns+` FROM carcass_parts WHERE animal_id=? ORDER BY id ASC`, animalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CarcassPart
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) ListPendingParts(ctx context.Context, unitID int64) ([]domain.CarcassPart, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+partColumns+` FROM carcass_parts
WHERE transferred_to=? AND received_by IS NULL AND rejection_status IS NULL ORDER BY transferred_at ASC, id ASC`, unitID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CarcassPart
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) SetPartTransferTx(ctx context.Context, tx *sql.Tx, id, unitID int64, ts string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE carcass_parts SET transferred_to=?, transferred_at=? WHERE id=? AND transferred_to IS NULL`,
		unitID, ts, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r Repo) SetPartReceivedTx(ctx context.Context, tx *sql.Tx, id int64, actorID, ts string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE carcass_parts SET received_by=?, received_at=? WHERE id=? AND transferred_to IS NOT NULL AND received_by IS NULL`,
		actorID, ts, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CountUntransferredPartsTx counts parts of the animal with no transfer leg yet.
func (r Repo) CountUntransferredPartsTx(ctx context.Context, tx *sql.Tx, animalID int64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM carcass_parts WHERE animal_id=? AND transferred_to IS NULL`, animalID).Scan(&n)
	return n, err
}
