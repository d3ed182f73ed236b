package reqauth

import (
	"context"
	"time"
)

// DefaultNonceTTL is how long a committed nonce blocks replays.
const DefaultNonceTTL = 10 * time.Minute

// NonceRecord is a persisted, single-use nonce.
type NonceRecord struct {
	Nonce     string    `db:"nonce"`
	ExpiresAt time.Time `db:"expires_at"`
}

// IsExpiredAt returns true once the record no longer blocks a replay.
func (r NonceRecord) IsExpiredAt(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

type ReserveStatus int

const (
	Reserved ReserveStatus = iota
	AlreadyUsed
	StoreUnavailable
)

func (s ReserveStatus) String() string {
	switch s {
	case Reserved:
		return "reserved"
	case AlreadyUsed:
		return "already_used"
	default:
		return "store_unavailable"
	}
}

// NonceStore persists used nonces. Implementations must be safe for concurrent use, and Reserve
// must be atomic: of two concurrent reservations of the same unexpired nonce, at most one succeeds.
type NonceStore interface {
	// Probe checks the store is reachable and its schema exists (ErrStoreMissing otherwise).
	Probe(ctx context.Context) error
	// Seen reports whether an unexpired record exists for nonce.
	Seen(ctx context.Context, nonce string, now time.Time) (bool, error)
	// Reserve inserts rec unless an unexpired record with the same nonce exists (AlreadyUsed).
	// Expired records may be overwritten.
	Reserve(ctx context.Context, rec NonceRecord, now time.Time) (ReserveStatus, error)
}
