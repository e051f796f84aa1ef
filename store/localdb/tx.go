// Copyright (c) 2021-2022 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package localdb

import (
	"github.com/decred/agora/store"
	"github.com/syndtr/goleveldb/leveldb"
)

var (
	_ store.Tx = (*tx)(nil)
)

// tx implements the store Tx interface using leveldb.
//
// leveldb has no native transactions. The tx holds the localdb write lock
// for its whole lifetime and stages all writes in a leveldb batch that is
// flushed to disk atomically on commit. The lock is released when the tx is
// committed, rolled back, or canceled.
type tx struct {
	localdb *localdb
	batch   *leveldb.Batch

	// cancel releases the localdb lock. Commit and Rollback replace it
	// with a no-op so that deferred invocations do not attempt to unlock
	// an already unlocked mutex, which would panic.
	cancel func()
}

// newTx returns a new localdb tx along with a cancel function that releases
// all resources held by the tx.
func newTx(localdb *localdb) (*tx, func()) {
	// Hold the lock for the duration of the tx so that no other caller
	// can read or write the store while the tx is in flight.
	localdb.Lock()

	t := &tx{
		localdb: localdb,
		batch:   new(leveldb.Batch),
		cancel: func() {
			// The staged batch is simply discarded. Only the lock
			// needs to be released.
			localdb.Unlock()
		},
	}

	return t, func() {
		// Invoke the cancel method value rather than unlocking
		// directly so that Commit and Rollback can swap in a no-op.
		t.cancel()
	}
}

// Insert inserts a new entry into the key-value store for each of the provided
// key-value pairs.
//
// An ErrDuplicateKey is returned if a provided key already exists in the
// key-value store.
//
// This function satisfies the store Tx interface.
func (t *tx) Insert(blobs map[string][]byte, encrypt bool) error {
	log.Tracef("Tx Insert: %v blobs", len(blobs))

	return t.localdb.insert(blobs, encrypt, t.batch)
}

// Update updates the provided key-value pairs in the store.
//
// An ErrNotFound is returned if the caller attempts to update an entry that
// does not exist.
//
// This function satisfies the store Tx interface.
func (t *tx) Update(blobs map[string][]byte, encrypt bool) error {
	log.Tracef("Tx Update: %v blobs", len(blobs))

	return t.localdb.update(blobs, encrypt, t.batch)
}

// Del deletes the provided blobs from the store.
//
// Keys that do not correspond to blob entries are ignored. An error IS NOT
// returned.
//
// This function satisfies the store Tx interface.
func (t *tx) Del(keys []string) error {
	log.Tracef("Tx Del: %v", keys)

	return t.localdb.del(keys, t.batch)
}

// Get returns the blob for the provided key.
//
// An ErrNotFound error is returned if the key does not correspond to an entry.
//
// This function satisfies the store Tx interface.
func (t *tx) Get(key string) ([]byte, error) {
	log.Tracef("Tx Get: %v", key)

	blobs, err := t.localdb.getBatch([]string{key})
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
// An entry will not exist in the returned map for any blobs that are not
// found. It is the responsibility of the caller to ensure a blob was returned
// for all provided keys. An error is not returned.
//
// This function satisfies the store Tx interface.
func (t *tx) GetBatch(keys []string) (map[string][]byte, error) {
	log.Tracef("Tx GetBatch: %v", keys)

	return t.localdb.getBatch(keys)
}

// Rollback aborts the transaction. The staged batch is discarded, the lock
// is released, and the cancel function is defused.
//
// This function satisfies the store Tx interface.
func (t *tx) Rollback() error {
	t.localdb.Unlock()
	t.cancel = func() {}

	log.Debugf("Tx rolled back")

	return nil
}

// Commit commits the transaction. The staged batch is written to disk
// atomically, the lock is released, and the cancel function is defused.
//
// This function satisfies the store Tx interface.
func (t *tx) Commit() error {
	err := t.localdb.db.Write(t.batch, nil)
	if err != nil {
		return err
	}

	t.localdb.Unlock()
	t.cancel = func() {}

	log.Debugf("Tx committed")

	return nil
}
