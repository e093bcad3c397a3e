package repo

import (
	"context"
	"database/sql"

	"herdline/internal/domain"
)

func (r Repo) InsertAuditRecord(ctx context.Context, rec domain.AuditRecord) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO audit_records(ts,action,performed_by,affected_user,unit_kind,unit_id,entity_kind,entity_id,description,old_values_json,new_values_json,metadata_json)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.TS, rec.Action, rec.PerformedBy, nullable(rec.AffectedUser), nullable(rec.UnitKind), nullableInt64Ptr(rec.UnitID),
		nullable(rec.EntityKind), nullableInt64Ptr(rec.EntityID), nullable(rec.Description),
		nullable(rec.OldValues), nullable(rec.NewValues), nullable(rec.Metadata))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

type AuditFilters struct {
	Action     string
	EntityKind string
	EntityID   int64
	Limit      int
}

func (r Repo) ListAuditRecords(ctx context.Context, f AuditFilters) ([]domain.AuditRecord, error) {
	query := `SELECT id,ts,action,performed_by,COALESCE(affected_user,''),COALESCE(unit_kind,''),unit_id,
COALESCE(entity_kind,''),entity_id,COALESCE(description,''),COALESCE(old_values_json,''),COALESCE(new_values_json,''),COALESCE(metadata_json,'')
FROM audit_records`
	var clauses []string
	var args []any
	if f.Action != "" {
		clauses = append(clauses, "action=?")
		args = append(args, f.Action)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID > 0 {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	for i, c := range clauses {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AuditRecord
	for rows.Next() {
		var rec domain.AuditRecord
		var unitID, entityID sql.NullInt64
		if err := rows.Scan(&rec.ID, &rec.TS, &rec.Action, &rec.PerformedBy, &rec.AffectedUser, &rec.UnitKind, &unitID,
			&rec.EntityKind, &entityID, &rec.Description, &rec.OldValues, &rec.NewValues, &rec.Metadata); err != nil {
			return nil, err
		}
		rec.UnitID = optInt64(unitID)
		rec.EntityID = optInt64(entityID)
		res = append(res, rec)
	}
	return res, rows.Err()
}
