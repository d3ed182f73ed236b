package inmemdb

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/trezcool/studyrelay/core"
	"github.com/trezcool/studyrelay/core/reqauth"
)

var ErrClosed = errors.New("inmemdb: database is closed")

type (
	DB struct {
		nonce  *nonceTable
		closed atomic.Bool
	}

	nonceTable struct {
		sync.RWMutex
		table map[string]reqauth.NonceRecord
	}
)

func Open() (*DB, error) {
	db := &DB{
		nonce: &nonceTable{table: make(map[string]reqauth.NonceRecord)},
	}
	return db, nil
}

// Close drops the data. Every later call fails with a shutdown error wrapping ErrClosed.
func (db *DB) Close() error {
	if db.closed.Swap(true) {
		return nil
	}
	db.nonce.Lock()
	db.nonce.table = make(map[string]reqauth.NonceRecord)
	db.nonce.Unlock()
	return nil
}

func (db *DB) checkOpen() error {
	if db.closed.Load() {
		return core.NewShutdownError(ErrClosed)
	}
	return nil
}
