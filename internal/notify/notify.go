// Package notify delivers in-app notifications to actors. Like audit,
// delivery happens after commit and is best effort.
package notify

import (
	"context"
	"encoding/json"
	"log"

	"herdline/internal/domain"
	"herdline/internal/repo"
)

type Sink interface {
	Notify(ctx context.Context, n domain.Notification)
}

type Writer struct {
	Repo repo.Repo
}

func (w Writer) Notify(ctx context.Context, n domain.Notification) {
	if _, err := w.Repo.InsertNotification(ctx, n); err != nil {
		log.Printf("notify: dropping notification type=%s actor=%s: %v", n.Type, n.ActorID, err)
	}
}

type Discard struct{}

func (Discard) Notify(ctx context.Context, n domain.Notification) {}

// MarshalData encodes the structured payload of a notification.
func MarshalData(v map[string]any) string {
	if len(v) == 0 {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
