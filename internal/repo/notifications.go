package repo

import (
	"context"

	"herdline/internal/domain"
)

func (r Repo) InsertNotification(ctx context.Context, n domain.Notification) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO notifications(actor_id,type,title,message,data_json,read,created_at)
VALUES (?,?,?,?,?,?,?)`,
		n.ActorID, n.Type, n.Title, n.Message, nullable(n.DataJSON), n.Read, n.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) ListNotifications(ctx context.Context, actorID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	query := `SELECT id,actor_id,type,title,message,COALESCE(data_json,''),read,created_at FROM notifications WHERE actor_id=?`
	args := []any{actorID}
	if unreadOnly {
		query += ` AND read=0`
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.ActorID, &n.Type, &n.Title, &n.Message, &n.DataJSON, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r Repo) MarkNotificationRead(ctx context.Context, id int64, actorID string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read=1 WHERE id=? AND actor_id=?`, id, actorID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
