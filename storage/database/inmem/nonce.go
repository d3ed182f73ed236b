package inmemdb

import (
	"context"
	"time"

	"github.com/trezcool/studyrelay/core/reqauth"
)

type NonceRepository struct {
	db    *DB
	table *nonceTable
}

var _ reqauth.NonceStore = (*NonceRepository)(nil) // interface compliance check

func NewNonceRepository(db *DB) *NonceRepository {
	return &NonceRepository{db: db, table: db.nonce}
}

func (repo *NonceRepository) Probe(context.Context) error {
	return repo.db.checkOpen()
}

func (repo *NonceRepository) Seen(_ context.Context, nonce string, now time.Time) (bool, error) {
	if err := repo.db.checkOpen(); err != nil {
		return false, err
	}
	repo.table.RLock()
	defer repo.table.RUnlock()

	rec, ok := repo.table.table[nonce]
	return ok && !rec.IsExpiredAt(now), nil
}

func (repo *NonceRepository) Reserve(_ context.Context, rec reqauth.NonceRecord, now time.Time) (reqauth.ReserveStatus, error) {
	if err := repo.db.checkOpen(); err != nil {
		return reqauth.StoreUnavailable, err
	}
	repo.table.Lock()
	defer repo.table.Unlock()

	if curr, ok := repo.table.table[rec.Nonce]; ok && !curr.IsExpiredAt(now) {
		return reqauth.AlreadyUsed, nil
	}
	repo.table.table[rec.Nonce] = rec
	return reqauth.Reserved, nil
}

// Purge removes the records expired at `before` and returns how many were removed.
func (repo *NonceRepository) Purge(_ context.Context, before time.Time) (int64, error) {
	if err := repo.db.checkOpen(); err != nil {
		return 0, err
	}
	repo.table.Lock()
	defer repo.table.Unlock()

	var removed int64
	for nonce, rec := range repo.table.table {
		if rec.IsExpiredAt(before) {
			delete(repo.table.table, nonce)
			removed++
		}
	}
	return removed, nil
}
