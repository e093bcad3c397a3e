package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"herdline/internal/config"
	"herdline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertActor(ctx context.Context, tx *sql.Tx, a domain.Actor) error {
	exec := execer(r.DB, tx)
	_, err := exec(ctx, `INSERT INTO actors(id,role,display_name,unit_kind,unit_id,created_at) VALUES (?,?,?,?,?,?)`,
		a.ID, a.Role, nullable(a.DisplayName), nullableStringPtr(a.UnitKind), nullableInt64Ptr(a.UnitID), a.CreatedAt)
	return err
}

func (r Repo) GetActor(ctx context.Context, id string) (domain.Actor, error) {
	return scanActor(r.DB.QueryRowContext(ctx, `SELECT id,role,COALESCE(display_name,''),unit_kind,unit_id,created_at FROM actors WHERE id=?`, id))
}

func (r Repo) GetActorTx(ctx context.Context, tx *sql.Tx, id string) (domain.Actor, error) {
	return scanActor(tx.QueryRowContext(ctx, `SELECT id,role,COALESCE(display_name,''),unit_kind,unit_id,created_at FROM actors WHERE id=?`, id))
}

func scanActor(row *sql.Row) (domain.Actor, error) {
	var a domain.Actor
	var unitKind sql.NullString
	var unitID sql.NullInt64
	err := row.Scan(&a.ID, &a.Role, &a.DisplayName, &unitKind, &unitID, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if unitKind.Valid {
		a.UnitKind = &unitKind.String
	}
	if unitID.Valid {
		a.UnitID = &unitID.Int64
	}
	return a, nil
}

// SetActorAffiliationTx updates the cached unit affiliation on the actor row.
func (r Repo) SetActorAffiliationTx(ctx context.Context, tx *sql.Tx, actorID, unitKind string, unitID int64) error {
	res, err := tx.ExecContext(ctx, `UPDATE actors SET unit_kind=?, unit_id=? WHERE id=?`, unitKind, unitID, actorID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ClearActorAffiliationTx(ctx context.Context, tx *sql.Tx, actorID string) error {
	_, err := tx.ExecContext(ctx, `UPDATE actors SET unit_kind=NULL, unit_id=NULL WHERE id=?`, actorID)
	return err
}

func (r Repo) UpsertDeploymentConfig(ctx context.Context, name string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Deployment.Name = name
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = r.DB.ExecContext(ctx, `INSERT INTO deployment_configs(name,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(name) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, name, string(payload), now, now)
	return err
}

func (r Repo) GetDeploymentConfig(ctx context.Context, name string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM deployment_configs WHERE name=?`, name).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Deployment.Name == "" {
		cfg.Deployment.Name = name
	}
	return &cfg, cfg.Validate()
}

// --- helpers shared across repo files ---

type execFunc func(ctx context.Context, query string, args ...any) (sql.Result, error)

func execer(db *sql.DB, tx *sql.Tx) execFunc {
	if tx != nil {
		return tx.ExecContext
	}
	return db.ExecContext
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func nullableInt64Ptr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
