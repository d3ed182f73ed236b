package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/studyrelay/core/reqauth"
)

const (
	pqUndefinedTable = "42P01"

	defaultProbeTimeout = 2 * time.Second
)

// NonceRepository stores nonces in the `request_nonces` table; its primary key settles
// concurrent reservations of the same nonce.
type NonceRepository struct {
	db           *sqlx.DB
	probeTimeout time.Duration
}

var _ reqauth.NonceStore = (*NonceRepository)(nil) // interface compliance check

func NewNonceRepository(db *sqlx.DB) *NonceRepository {
	return &NonceRepository{db: db, probeTimeout: defaultProbeTimeout}
}

func (repo *NonceRepository) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, repo.probeTimeout)
	defer cancel()

	var one int
	err := repo.db.GetContext(ctx, &one, `SELECT 1 FROM request_nonces LIMIT 1`)
	switch {
	case err == nil, errors.Is(err, sql.ErrNoRows):
		return nil
	case isUndefinedTable(err):
		return errors.Wrapf(reqauth.ErrStoreMissing, "probing request_nonces: %v", err)
	default:
		return errors.Wrap(err, "probing request_nonces")
	}
}

func (repo *NonceRepository) Seen(ctx context.Context, nonce string, now time.Time) (bool, error) {
	var exists bool
	err := repo.db.GetContext(
		ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM request_nonces WHERE nonce = $1 AND expires_at > $2)`,
		nonce, now.UTC(),
	)
	if err != nil {
		return false, errors.Wrap(err, "selecting nonce")
	}
	return exists, nil
}

// Reserve inserts the nonce, or takes over an expired row with the same key.
// An unexpired row makes the upsert's WHERE clause false, so no row is affected.
func (repo *NonceRepository) Reserve(ctx context.Context, rec reqauth.NonceRecord, now time.Time) (reqauth.ReserveStatus, error) {
	res, err := repo.db.ExecContext(
		ctx,
		`INSERT INTO request_nonces (nonce, expires_at) VALUES ($1, $2)
		ON CONFLICT (nonce) DO UPDATE SET expires_at = EXCLUDED.expires_at, created_at = now()
		WHERE request_nonces.expires_at <= $3`,
		rec.Nonce, rec.ExpiresAt.UTC(), now.UTC(),
	)
	if err != nil {
		return reqauth.StoreUnavailable, errors.Wrap(err, "inserting nonce")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return reqauth.StoreUnavailable, errors.Wrap(err, "inserting nonce")
	}
	if n == 0 {
		return reqauth.AlreadyUsed, nil
	}
	return reqauth.Reserved, nil
}

func (repo *NonceRepository) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM request_nonces WHERE expires_at <= $1`, before.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "deleting expired nonces")
	}
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "deleting expired nonces")
}

func isUndefinedTable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUndefinedTable
}
