// Copyright (c) 2021-2022 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package localdb

import (
	"bytes"
	"testing"

	"github.com/decred/agora/store"
)

// newTestLocalDB returns a localdb that was created using testing temp dirs.
// The temp dirs, and thus the database files, are cleaned up automatically
// when the test completes.
func newTestLocalDB(t *testing.T) *localdb {
	t.Helper()

	db, err := New(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(db.Close)

	return db
}

func TestBlobKV(t *testing.T) {
	db := newTestLocalDB(t)

	err := store.TestBlobKV(db)
	if err != nil {
		t.Error(err)
	}
}

func TestTx(t *testing.T) {
	db := newTestLocalDB(t)

	err := store.TestTx(db)
	if err != nil {
		t.Error(err)
	}
}

func TestEncryptDecrypt(t *testing.T) {
	db := newTestLocalDB(t)

	blob := []byte("encryptmeyo")

	// Encrypt and make sure the encrypted blob is recognizable as
	// such and differs from the cleartext.
	eb, err := db.encrypt(blob)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(eb, blob) {
		t.Fatal("equal")
	}
	if !isEncrypted(eb) {
		t.Fatal("expected sbox header")
	}
	if isEncrypted(blob) {
		t.Fatal("unexpected sbox header")
	}

	// Decrypt and make sure cleartext is the same as the initial blob.
	d, _, err := db.decrypt(eb)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(d, blob) {
		t.Fatal("not equal")
	}

	// Try to decrypt an invalid blob.
	_, _, err = db.decrypt(blob)
	if err == nil {
		t.Fatal("expected invalid sbox header")
	}
}
