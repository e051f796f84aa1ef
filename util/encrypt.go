// Copyright (c) 2020-2022 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package util

import (
	"fmt"
	"os"

	"github.com/decred/slog"
	"github.com/marcopeereboom/sbox"
)

// Zero zeros out a byte slice.
func Zero(in []byte) {
	if in == nil {
		return
	}
	inlen := len(in)
	for i := 0; i < inlen; i++ {
		in[i] ^= in[i]
	}
}

// LoadEncryptionKey returns the secretbox encryption key that is saved at
// the given file path, creating and saving a new key first when the file
// does not exist yet.
func LoadEncryptionKey(log slog.Logger, keyFile string) (*[32]byte, error) {
	if keyFile == "" {
		return nil, fmt.Errorf("no key file provided")
	}

	if !FileExists(keyFile) {
		log.Infof("Generating encryption key")
		key, err := sbox.NewKey()
		if err != nil {
			return nil, err
		}
		err = os.WriteFile(keyFile, key[:], 0400)
		if err != nil {
			return nil, err
		}
		Zero(key[:])
		log.Infof("Encryption key created: %v", keyFile)
	}

	b, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, err
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("invalid encryption key length")
	}

	var key [32]byte
	copy(key[:], b)
	Zero(b)

	log.Infof("Encryption key: %v", keyFile)

	return &key, nil
}
