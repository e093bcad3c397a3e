// Package audit records who did what to which entity. Records are written
// after the owning transaction commits and a write failure never fails the
// operation that produced it.
package audit

import (
	"context"
	"encoding/json"
	"log"

	"herdline/internal/domain"
	"herdline/internal/repo"
)

// Sink receives audit records. Implementations must tolerate failure
// internally; callers do not check errors.
type Sink interface {
	Record(ctx context.Context, rec domain.AuditRecord)
}

// Writer persists records through the repository.
type Writer struct {
	Repo repo.Repo
}

func (w Writer) Record(ctx context.Context, rec domain.AuditRecord) {
	if _, err := w.Repo.InsertAuditRecord(ctx, rec); err != nil {
		log.Printf("audit: dropping record action=%s entity=%s: %v", rec.Action, rec.EntityKind, err)
	}
}

// Discard is a no-op sink for tests and tools that do not audit.
type Discard struct{}

func (Discard) Record(ctx context.Context, rec domain.AuditRecord) {}

// MarshalValues encodes a value map for the old/new value columns.
// Returns "" on marshal failure, never an error.
func MarshalValues(v map[string]any) string {
	if len(v) == 0 {
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
