package repo

import (
	"context"
	"database/sql"
	"strings"

	"herdline/internal/domain"
)

const productColumns = `id,animal_id,processing_unit_id,batch_number,name,quantity,created_by,
transferred_to,transferred_at,received_by,received_at,
rejection_status,rejected_by,rejected_at,appeal_status,appeal_resolved_at,created_at`

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var transferredAt, receivedBy, receivedAt sql.NullString
	var rejectionStatus, rejectedBy, rejectedAt, appealStatus, appealResolvedAt sql.NullString
	var transferredTo sql.NullInt64
	err := row.Scan(&p.ID, &p.AnimalID, &p.ProcessingUnitID, &p.BatchNumber, &p.Name, &p.Quantity, &p.CreatedBy,
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

func (r Repo) InsertProductTx(ctx context.Context, tx *sql.Tx, p domain.Product) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO products(animal_id,processing_unit_id,batch_number,name,quantity,created_by,created_at)
VALUES (?,?,?,?,?,?,?)`,
		p.AnimalID, p.ProcessingUnitID, p.BatchNumber, p.Name, p.Quantity, p.CreatedBy, p.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) LinkProductIngredientTx(ctx context.Context, tx *sql.Tx, productID, partID int64) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO product_ingredients(product_id,part_id) VALUES (?,?)`, productID, partID)
	return err
}

func (r Repo) ListProductIngredients(ctx context.Context, productID int64) ([]int64, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT part_id FROM product_ingredients WHERE product_id=? ORDER BY part_id`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PartUsedInProductTx reports whether a carcass part was consumed by any
// product.
func (r Repo) PartUsedInProductTx(ctx context.Context, tx *sql.Tx, partID int64) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM product_ingredients WHERE part_id=?`, partID).Scan(&n)
	return n > 0, err
}

func (r Repo) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	return scanProduct(r.DB.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id=?`, id))
}

func (r Repo) GetProductTx(ctx context.Context, tx *sql.Tx, id int64) (domain.Product, error) {
	return scanProduct(tx.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id=?`, id))
}

type ProductFilters struct {
	ProcessingUnitID int64
	BatchNumber      string
	TransferredTo    int64
	Limit            int
}

func (r Repo) ListProducts(ctx context.Context, f ProductFilters) ([]domain.Product, error) {
	var clauses []string
	var args []any
	if f.ProcessingUnitID > 0 {
		clauses = append(clauses, "processing_unit_id=?")
		args = append(args, f.ProcessingUnitID)
	}
	if f.BatchNumber != "" {
		clauses = append(clauses, "batch_number=?")
		args = append(args, f.BatchNumber)
	}
	if f.TransferredTo > 0 {
		clauses = append(clauses, "transferred_to=?")
		args = append(args, f.TransferredTo)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + productColumns + ` FROM products ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) ListPendingProducts(ctx context.Context, shopID int64) ([]domain.Product, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+productColumns+` FROM products
WHERE transferred_to=? AND received_by IS NULL AND rejection_status IS NULL ORDER BY transferred_at ASC, id ASC`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// DecrementProductQuantityTx takes qty from the row only if enough
// untransferred quantity remains.
func (r Repo) DecrementProductQuantityTx(ctx context.Context, tx *sql.Tx, id, qty int64) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE products SET quantity=quantity-? WHERE id=? AND transferred_to IS NULL AND quantity>=?`,
		qty, id, qty)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// InsertProductSplitTx creates the transferred sibling row of a partial
// product transfer, carrying the lineage of the source row.
func (r Repo) InsertProductSplitTx(ctx context.Context, tx *sql.Tx, src domain.Product, qty, shopID int64, ts string) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO products(animal_id,processing_unit_id,batch_number,name,quantity,created_by,transferred_to,transferred_at,created_at)
VALUES (?,?,?,?,?,?,?,?,?)`,
		src.AnimalID, src.ProcessingUnitID, src.BatchNumber, src.Name, qty, src.CreatedBy, shopID, ts, src.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) SetProductTransferTx(ctx context.Context, tx *sql.Tx, id, shopID int64, ts string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE products SET transferred_to=?, transferred_at=? WHERE id=? AND transferred_to IS NULL`,
		shopID, ts, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r Repo) SetProductReceivedTx(ctx context.Context, tx *sql.Tx, id int64, actorID, ts string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE products SET received_by=?, received_at=? WHERE id=? AND transferred_to IS NOT NULL AND received_by IS NULL`,
		actorID, ts, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// BatchQuantityTx sums quantity across all rows of a batch, split rows
// included.
func (r Repo) BatchQuantityTx(ctx context.Context, tx *sql.Tx, batchNumber string) (int64, error) {
	var total int64
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(sum(quantity),0) FROM products WHERE batch_number=?`, batchNumber).Scan(&total)
	return total, err
}

func (r Repo) BatchQuantity(ctx context.Context, batchNumber string) (int64, error) {
	var total int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(sum(quantity),0) FROM products WHERE batch_number=?`, batchNumber).Scan(&total)
	return total, err
}
