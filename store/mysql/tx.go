// Copyright (c) 2021-2022 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mysql

import (
	"context"
	"database/sql"

	"github.com/decred/agora/store"
	"github.com/pkg/errors"
)

var (
	_ store.Tx = (*sqlTx)(nil)
)

// sqlTx implements the store Tx interface using a sql transaction.
type sqlTx struct {
	mysql *mysql
	ctx   context.Context
	tx    *sql.Tx
}

// Insert inserts a new entry into the key-value store for each of the
// provided key-value pairs.
//
// An ErrDuplicateKey is returned if a provided key already exists in the
// key-value store.
//
// This function satisfies the store Tx interface.
func (t *sqlTx) Insert(blobs map[string][]byte, encrypt bool) error {
	log.Tracef("Tx Insert: %v blobs", len(blobs))

	return t.mysql.insert(t.ctx, t.tx, blobs, encrypt)
}

// Update updates the provided key-value pairs in the store.
//
// An ErrNotFound is returned if the caller attempts to update an entry that
// does not exist.
//
// This function satisfies the store Tx interface.
func (t *sqlTx) Update(blobs map[string][]byte, encrypt bool) error {
	log.Tracef("Tx Update: %v blobs", len(blobs))

	return t.mysql.update(t.ctx, t.tx, blobs, encrypt)
}

// Del deletes the provided blobs from the store.
//
// Keys that do not correspond to blob entries are ignored. An error IS NOT
// returned.
//
// This function satisfies the store Tx interface.
func (t *sqlTx) Del(keys []string) error {
	log.Tracef("Tx Del: %v", keys)

	return t.mysql.del(t.ctx, t.tx, keys)
}

// Get returns the blob for the provided key.
//
// An ErrNotFound error is returned if the key does not correspond to an
// entry.
//
// This function satisfies the store Tx interface.
func (t *sqlTx) Get(key string) ([]byte, error) {
	log.Tracef("Tx Get: %v", key)

	blobs, err := t.mysql.getBatch(t.ctx, t.tx, []string{key})
	if err != nil {
		return nil, err
	}
	b, ok := blobs[key]
	if !ok {
		return nil, store.ErrNotFound
	}

	return b, nil
}

// GetBatch returns the blobs for the provided keys.
//
// An entry will not exist in the returned map if for any blobs that are not
// found. It is the responsibility of the caller to ensure a blob was
// returned for all provided keys. An error is not returned.
//
// This function satisfies the store Tx interface.
func (t *sqlTx) GetBatch(keys []string) (map[string][]byte, error) {
	log.Tracef("Tx GetBatch: %v", keys)

	return t.mysql.getBatch(t.ctx, t.tx, keys)
}

// Rollback aborts the transaction.
//
// This function satisfies the store Tx interface.
func (t *sqlTx) Rollback() error {
	err := t.tx.Rollback()
	if err != nil {
		return errors.WithStack(err)
	}

	log.Debugf("Tx rolled back")

	return nil
}

// Commit commits the transaction.
//
// This function satisfies the store Tx interface.
func (t *sqlTx) Commit() error {
	err := t.tx.Commit()
	if err != nil {
		return errors.WithStack(err)
	}

	log.Debugf("Tx committed")

	return nil
}

// Tx returns a new database transaction as well as the cancel function that
// releases all resources associated with it.
//
// Canceling the context of an in-progress transaction aborts the
// transaction, so the context cancel function doubles as the tx cancel
// function. Invoking it after the tx has been committed is a no-op.
//
// This function satisfies the store BlobKV interface.
func (s *mysql) Tx() (store.Tx, func(), error) {
	log.Tracef("Tx")

	if s.isShutdown() {
		return nil, nil, store.ErrShutdown
	}

	ctx, cancel := ctxWithTimeout()

	// Start transaction
	opts := &sql.TxOptions{
		Isolation: sql.LevelDefault,
	}
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		cancel()
		return nil, nil, errors.WithStack(err)
	}

	return &sqlTx{
		mysql: s,
		ctx:   ctx,
		tx:    tx,
	}, cancel, nil
}
