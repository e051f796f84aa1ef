// Copyright (c) 2020-2022 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package store provides a blob key-value store with support for encryption
// at rest and atomic transactions.
package store

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/gob"
	"encoding/hex"
	"errors"

	"github.com/decred/agora/util"
)

const (
	// DataTypeStructure describes a blob entry that contains a
	// structure.
	DataTypeStructure = "struct"
)

var (
	// ErrShutdown is returned when a action is attempted against a
	// store that is shutdown.
	ErrShutdown = errors.New("store is shutdown")

	// ErrNotFound is returned when a blob is not found.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a blob is inserted using a key
	// that already exists.
	ErrDuplicateKey = errors.New("duplicate key")
)

// DataDescriptor provides hints about a data blob. In practice we JSON encode
// this struture and stuff it into BlobEntry.DataHint.
type DataDescriptor struct {
	Type       string `json:"type"`                // Type of data
	Descriptor string `json:"descriptor"`          // Description of the data
	ExtraData  string `json:"extradata,omitempty"` // Value to be freely used
}

// BlobEntry is the structure used to store data in the key-value store.
type BlobEntry struct {
	Digest   string `json:"digest"`   // SHA256 digest of data, hex encoded
	DataHint string `json:"datahint"` // Hint that describes data, base64 encoded
	Data     string `json:"data"`     // Data payload, base64 encoded
}

// NewBlobEntry returns a new BlobEntry.
func NewBlobEntry(dataHint, data []byte) BlobEntry {
	return BlobEntry{
		Digest:   hex.EncodeToString(util.Digest(data)),
		DataHint: base64.StdEncoding.EncodeToString(dataHint),
		Data:     base64.StdEncoding.EncodeToString(data),
	}
}

// Blobify encodes the provided BlobEntry into a gzipped byte slice.
func Blobify(be BlobEntry) ([]byte, error) {
	var b bytes.Buffer
	zw := gzip.NewWriter(&b)
	enc := gob.NewEncoder(zw)
	err := enc.Encode(be)
	if err != nil {
		return nil, err
	}
	err = zw.Close() // we must flush gzip buffers
	if err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Deblob decodes the provided gzipped byte slice into a BlobEntry.
func Deblob(blob []byte) (*BlobEntry, error) {
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, err
	}
	r := gob.NewDecoder(zr)
	var be BlobEntry
	err = r.Decode(&be)
	if err != nil {
		return nil, err
	}
	return &be, nil
}

// Tx represents an in-progess database transaction. All actions performed
// using a Tx are guaranteed to be atomic.
//
// A transaction must end with a call to Commit or Rollback.
type Tx interface {
	// Insert inserts a new entry into the key-value store for each of
	// the provided key-value pairs.
	//
	// An ErrDuplicateKey is returned if a provided key already exists
	// in the key-value store.
	Insert(blobs map[string][]byte, encrypt bool) error

	// Update updates the provided key-value pairs in the store.
	//
	// An ErrNotFound is returned if the caller attempts to update an
	// entry that does not exist.
	Update(blobs map[string][]byte, encrypt bool) error

	// Del deletes the provided blobs from the store.
	//
	// Keys that do not correspond to blob entries are ignored. An
	// error IS NOT returned.
	Del(keys []string) error

	// Get returns the blob for the provided key.
	//
	// An ErrNotFound error is returned if the key does not correspond
	// to an entry.
	Get(key string) ([]byte, error)

	// GetBatch returns the blobs for the provided keys.
	//
	// An entry will not exist in the returned map if for any blobs
	// that are not found. It is the responsibility of the caller to
	// ensure a blob was returned for all provided keys. An error is
	// not returned.
	GetBatch(keys []string) (map[string][]byte, error)

	// Rollback aborts the transaction.
	Rollback() error

	// Commit commits the transaction.
	Commit() error
}

// BlobKV represents a blob key-value store.
type BlobKV interface {
	// Insert inserts a new entry into the key-value store for each of
	// the provided key-value pairs. This operation is performed
	// atomically.
	//
	// An ErrDuplicateKey is returned if a provided key already exists
	// in the key-value store.
	Insert(blobs map[string][]byte, encrypt bool) error

	// Update updates the provided key-value pairs in the store. This
	// operation is performed atomically.
	//
	// An ErrNotFound is returned if the caller attempts to update an
	// entry that does not exist.
	Update(blobs map[string][]byte, encrypt bool) error

	// Del deletes the provided blobs from the store. This operation
	// is performed atomically.
	//
	// Keys that do not correspond to blob entries are ignored. An
	// error IS NOT returned.
	Del(keys []string) error

	// Get returns the blob for the provided key.
	//
	// An ErrNotFound error is returned if the key does not correspond
	// to an entry.
	Get(key string) ([]byte, error)

	// GetBatch returns the blobs for the provided keys.
	//
	// An entry will not exist in the returned map if for any blobs
	// that are not found. It is the responsibility of the caller to
	// ensure a blob was returned for all provided keys. An error is
	// not returned.
	GetBatch(keys []string) (map[string][]byte, error)

	// Tx returns a new database transaction and a cancel function
	// for the transaction.
	//
	// The cancel function is used until the tx is committed or rolled
	// backed. Invoking the cancel function rolls the tx back and
	// releases all resources associated with it. This allows the
	// caller to defer the cancel function in order to rollback the
	// tx on unexpected errors. Once the tx is successfully committed
	// the deferred invocation does nothing. This avoids having to
	// add complex logic to the caller in order to handle both the
	// unexpected error path and the clean exit path.
	Tx() (Tx, func(), error)

	// Close closes the store connection.
	Close()
}

// Getter describes the get methods that are present on both the BlobKV
// interface and the Tx interface. This allows the same code to be used for
// individual get requests and for get requests that are part of a
// transaction.
type Getter interface {
	Get(key string) ([]byte, error)
	GetBatch(keys []string) (map[string][]byte, error)
}
