package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"

	"herdline/internal/domain"
)

// HashAPIKey returns the hex sha256 of a raw key. Only the hash is stored.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func (r Repo) InsertAPIKey(ctx context.Context, k domain.APIKey) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO api_keys(id,actor_id,name,key_hash,created_at) VALUES (?,?,?,?,?)`,
		k.ID, k.ActorID, nullable(k.Name), k.KeyHash, k.CreatedAt)
	return err
}

func (r Repo) GetAPIKeyByHash(ctx context.Context, hash string) (domain.APIKey, error) {
	var k domain.APIKey
	err := r.DB.QueryRowContext(ctx, `SELECT id,actor_id,COALESCE(name,''),key_hash,created_at FROM api_keys WHERE key_hash=?`, hash).
		Scan(&k.ID, &k.ActorID, &k.Name, &k.KeyHash, &k.CreatedAt)
	if err == sql.ErrNoRows {
		return k, ErrNotFound
	}
	return k, err
}

func (r Repo) ListAPIKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,actor_id,COALESCE(name,''),key_hash,created_at FROM api_keys WHERE actor_id=? ORDER BY created_at`, actorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.APIKey
	for rows.Next() {
		var k domain.APIKey
		if err := rows.Scan(&k.ID, &k.ActorID, &k.Name, &k.KeyHash, &k.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, k)
	}
	return res, rows.Err()
}

func (r Repo) DeleteAPIKey(ctx context.Context, id, actorID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM api_keys WHERE id=? AND actor_id=?`, id, actorID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
