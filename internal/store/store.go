// Package store persists alerts for deduplication. Every backend enforces
// at-most-once insertion per alert ID; that uniqueness is the only
// synchronization concurrent poll runs rely on.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/storm-alert-service/internal/domain"
)

// ErrUnknownBackend is returned by Open for an unrecognized backend name.
var ErrUnknownBackend = errors.New("unknown store backend")

// Outcome is the result of an insertion attempt.
type Outcome int

const (
	Inserted Outcome = iota
	AlreadyExists
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case AlreadyExists:
		return "already_exists"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// InsertResult reports what TryInsert did. Alert is populated for Inserted
// and AlreadyExists; Reason is set for Rejected.
type InsertResult struct {
	Outcome Outcome
	Alert   domain.Alert
	Reason  string
}

// AlertStore is the dedup and expiry contract shared by all backends.
type AlertStore interface {
	// TryInsert validates a feed record and stores it unless its ID is
	// already present. Duplicates are reported as AlreadyExists, not errors.
	TryInsert(ctx context.Context, f domain.Feature) (InsertResult, error)
	// DeleteExpired removes every record whose expiry is strictly before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	// Count returns the number of stored records.
	Count(ctx context.Context) (int64, error)
	Close(ctx context.Context) error
}

// Admit applies the admission rules common to every backend: already-expired
// records and records with unparseable required timestamps are rejected, and
// the description is normalized.
func Admit(f domain.Feature, now time.Time) (domain.Alert, *InsertResult) {
	expires, err := domain.ParseExpires(f)
	if err != nil {
		return domain.Alert{}, &InsertResult{Outcome: Rejected, Reason: err.Error()}
	}
	if expires.Before(now) {
		return domain.Alert{}, &InsertResult{Outcome: Rejected, Reason: "expired"}
	}
	alert, err := domain.ParseFeature(f)
	if err != nil {
		return domain.Alert{}, &InsertResult{Outcome: Rejected, Reason: err.Error()}
	}
	return alert, nil
}
