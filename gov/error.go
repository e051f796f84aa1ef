// Copyright (c) 2022 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package gov

import (
	"fmt"

	v1 "github.com/decred/agora/api/v1"
	"github.com/decred/agora/util"
	"github.com/pkg/errors"
)

// UserError is an error that is caused by something that the user did, such
// as providing an invalid signature or attempting to vote on a proposal that
// has already ended. The server simply propagates these errors back to the
// user; they are not treated as internal server errors.
type UserError struct {
	ErrorCode    v1.ErrorStatusT
	ErrorContext []string
}

// Error satisfies the error interface.
func (e UserError) Error() string {
	return fmt.Sprintf("%v: %v", v1.ErrorStatus[e.ErrorCode], e.ErrorContext)
}

// convertSignatureError converts a util SignatureError to a gov UserError.
func convertSignatureError(err error) UserError {
	var e util.SignatureError
	var s v1.ErrorStatusT
	if errors.As(err, &e) {
		switch e.ErrorCode {
		case util.ErrorStatusPublicKeyInvalid:
			s = v1.ErrorStatusInvalidPublicKey
		case util.ErrorStatusSignatureInvalid:
			s = v1.ErrorStatusInvalidSignature
		}
	}
	return UserError{
		ErrorCode:    s,
		ErrorContext: e.ErrorContext,
	}
}
