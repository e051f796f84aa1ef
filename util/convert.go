// Copyright (c) 2017-2022 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package util

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/decred/agora/api/v1/identity"
)

var (
	// regexpSHA256 matches a hex encoded SHA256 digest.
	regexpSHA256 = regexp.MustCompile("^[A-Fa-f0-9]{64}$")
)

// ConvertSignature converts a hex encoded signature to a proper sized byte
// slice.
func ConvertSignature(s string) ([identity.SignatureSize]byte, error) {
	sb, err := hex.DecodeString(s)
	if err != nil {
		return [identity.SignatureSize]byte{}, err
	}
	if len(sb) != identity.SignatureSize {
		return [identity.SignatureSize]byte{},
			fmt.Errorf("invalid signature length")
	}
	var sig [identity.SignatureSize]byte
	copy(sig[:], sb)
	return sig, nil
}

// Digest returns the SHA256 of a byte slice.
func Digest(b []byte) []byte {
	h := sha256.New()
	h.Write(b)
	return h.Sum(nil)
}

// IsDigest determines if a string is a valid SHA256 digest.
func IsDigest(digest string) bool {
	return regexpSHA256.MatchString(digest)
}
