// Copyright (c) 2022 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package gov

import (
	"math"

	v1 "github.com/decred/agora/api/v1"
	"github.com/pkg/errors"
)

// BalanceLookup returns the token balance for the provided hex encoded
// public key. The balance is used to derive the vote weight for the
// weighted and quadratic vote mechanisms.
type BalanceLookup func(publicKey string) (uint64, error)

// DefaultBalanceLookup assigns every identity a balance of one. It exists
// so that the weighted and quadratic mechanisms remain functional when the
// registry has not been wired up to an authoritative balance source, but
// it should not be treated as authoritative.
func DefaultBalanceLookup(publicKey string) (uint64, error) {
	return 1, nil
}

// voteWeight returns the weight of a vote that is cast by the provided
// public key under the provided vote mechanism.
//
// Weights are never zero. An identity that is allowed to vote always moves
// the tallies by at least one.
func (g *Gov) voteWeight(mechanism v1.VoteMechanismT, publicKey string) (uint64, error) {
	switch mechanism {
	case v1.VoteMechanismSimple:
		return 1, nil

	case v1.VoteMechanismWeighted:
		balance, err := g.balance(publicKey)
		if err != nil {
			return 0, errors.WithStack(err)
		}
		if balance == 0 {
			balance = 1
		}
		return balance, nil

	case v1.VoteMechanismQuadratic:
		balance, err := g.balance(publicKey)
		if err != nil {
			return 0, errors.WithStack(err)
		}
		weight := uint64(math.Sqrt(float64(balance)))
		if weight == 0 {
			weight = 1
		}
		return weight, nil
	}

	return 0, errors.Errorf("invalid vote mechanism %v", mechanism)
}
