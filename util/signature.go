// Copyright (c) 2020-2022 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package util

import (
	"encoding/hex"
	"fmt"

	"github.com/decred/agora/api/v1/identity"
)

// ErrorStatusT identifies what went wrong during signature verification.
type ErrorStatusT int

const (
	ErrorStatusInvalid          ErrorStatusT = 0
	ErrorStatusPublicKeyInvalid ErrorStatusT = 1
	ErrorStatusSignatureInvalid ErrorStatusT = 2
)

// SignatureError describes a failed signature verification. Callers are
// expected to convert the error code into their own API error space.
type SignatureError struct {
	ErrorCode    ErrorStatusT
	ErrorContext []string
}

// Error satisfies the error interface.
func (e SignatureError) Error() string {
	return fmt.Sprintf("signature error code: %v", e.ErrorCode)
}

// VerifySignature verifies that the hex encoded Ed25519 signature was
// produced by the hex encoded public key over the message. A SignatureError
// is returned when the key or signature is malformed or when the signature
// does not verify.
func VerifySignature(signature, pubKey, msg string) error {
	sig, err := ConvertSignature(signature)
	if err != nil {
		return SignatureError{
			ErrorCode:    ErrorStatusSignatureInvalid,
			ErrorContext: []string{err.Error()},
		}
	}
	b, err := hex.DecodeString(pubKey)
	if err != nil {
		return SignatureError{
			ErrorCode:    ErrorStatusPublicKeyInvalid,
			ErrorContext: []string{"key is not hex"},
		}
	}
	pk, err := identity.PublicIdentityFromBytes(b)
	if err != nil {
		return SignatureError{
			ErrorCode:    ErrorStatusPublicKeyInvalid,
			ErrorContext: []string{err.Error()},
		}
	}
	if !pk.VerifyMessage([]byte(msg), sig) {
		return SignatureError{
			ErrorCode: ErrorStatusSignatureInvalid,
		}
	}
	return nil
}
