// Copyright (c) 2022 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package gov provides a governance engine that manages the full lifecycle
// of proposals and their votes. Proposals are created with a fixed set of
// options and a fixed voting period. While the voting period is in progress,
// eligible identities can cast a vote on one of the options or delegate
// their voting right to another identity. Once the voting period has run to
// completion, anyone can transition the proposal to its final ended status,
// at which point the winning option is resolved from the stored tallies.
//
// All state is persisted to a blob key-value store. Every operation that
// mutates state is executed inside a store transaction so that the proposal
// record, the individual vote records, and the running tallies never drift
// out of sync with one another.
package gov

import (
	"sync"
	"sync/atomic"

	v1 "github.com/decred/agora/api/v1"
	"github.com/decred/agora/api/v1/identity"
	"github.com/decred/agora/events"
	"github.com/decred/agora/store"
	"github.com/decred/agora/util"
	"github.com/pkg/errors"
)

// Gov is the governance engine context. It is safe for concurrent use.
type Gov struct {
	sync.Mutex
	db       store.BlobKV
	identity *identity.FullIdentity
	events   *events.Manager
	balance  BalanceLookup

	// owner is the hex encoded public key of the registry owner. The
	// owner is allowed to pause and unpause the registry and to cancel
	// any active proposal. The owner may be empty, in which case the
	// registry cannot be paused and proposals can only be cancelled by
	// their creators.
	owner string

	// paused indicates whether the registry is currently paused.
	// Creating proposals, casting votes, and delegating voting rights
	// all fail while the registry is paused. Accessed atomically.
	paused uint32

	// mutexes contains a mutex for each proposal that has had an
	// operation performed on it. The per proposal mutexes serialize
	// writes to an individual proposal and its votes without blocking
	// operations on unrelated proposals.
	mutexes map[uint64]*sync.Mutex

	// createMtx serializes proposal creation. Proposal IDs are issued
	// sequentially so creation cannot be allowed to race.
	createMtx sync.Mutex
}

// mutex returns the mutex for the provided proposal ID, lazily creating one
// if an operation has not been performed on the proposal yet.
func (g *Gov) mutex(proposalID uint64) *sync.Mutex {
	g.Lock()
	defer g.Unlock()

	m, ok := g.mutexes[proposalID]
	if !ok {
		m = &sync.Mutex{}
		g.mutexes[proposalID] = m
	}

	return m
}

// isPaused returns whether the registry is currently paused.
func (g *Gov) isPaused() bool {
	return atomic.LoadUint32(&g.paused) == 1
}

// Pause pauses the registry. While the registry is paused, creating
// proposals, casting votes, and delegating voting rights all fail with a
// VotingPaused error. Reads and the end and cancel transitions remain
// available.
//
// Only the registry owner is allowed to pause the registry.
func (g *Gov) Pause(p v1.Pause) error {
	log.Tracef("Pause: %v", p.PublicKey)

	err := util.VerifySignature(p.Signature, p.PublicKey, v1.PauseMessage)
	if err != nil {
		return convertSignatureError(err)
	}
	err = g.verifyOwner(p.PublicKey)
	if err != nil {
		return err
	}

	atomic.StoreUint32(&g.paused, 1)

	log.Infof("Registry paused by owner")

	return nil
}

// Unpause unpauses the registry.
//
// Only the registry owner is allowed to unpause the registry.
func (g *Gov) Unpause(u v1.Unpause) error {
	log.Tracef("Unpause: %v", u.PublicKey)

	err := util.VerifySignature(u.Signature, u.PublicKey, v1.UnpauseMessage)
	if err != nil {
		return convertSignatureError(err)
	}
	err = g.verifyOwner(u.PublicKey)
	if err != nil {
		return err
	}

	atomic.StoreUint32(&g.paused, 0)

	log.Infof("Registry unpaused by owner")

	return nil
}

// verifyOwner verifies that the provided public key belongs to the registry
// owner.
func (g *Gov) verifyOwner(publicKey string) error {
	if g.owner == "" || publicKey != g.owner {
		return UserError{
			ErrorCode:    v1.ErrorStatusUnauthorized,
			ErrorContext: []string{"not the registry owner"},
		}
	}
	return nil
}

// ProposalCount returns the number of proposals that have been created.
// Proposal IDs are issued sequentially starting at 0, so the count is also
// the ID that will be assigned to the next proposal.
func (g *Gov) ProposalCount() (uint64, error) {
	log.Tracef("ProposalCount")

	return g.count(g.db)
}

// Inventory contains the proposal IDs for each proposal status. The IDs
// are sorted from newest to oldest.
type Inventory struct {
	Active    []uint64
	Ended     []uint64
	Cancelled []uint64
}

// Inventory returns the IDs of all proposals, categorized by their stored
// status. A proposal whose voting period has run out but that has not been
// transitioned to ended yet is listed as active.
func (g *Gov) Inventory() (*Inventory, error) {
	log.Tracef("Inventory")

	count, err := g.count(g.db)
	if err != nil {
		return nil, err
	}

	// Proposal IDs are dense, starting at 0, so the count is all we
	// need in order to build the full list of proposal keys.
	keys := make([]string, 0, count)
	for id := uint64(0); id < count; id++ {
		keys = append(keys, keyProposal(id))
	}
	blobs, err := g.db.GetBatch(keys)
	if err != nil {
		return nil, err
	}

	inv := Inventory{
		Active:    make([]uint64, 0, count),
		Ended:     make([]uint64, 0, count),
		Cancelled: make([]uint64, 0, count),
	}
	for id := count; id > 0; id-- {
		blob, ok := blobs[keyProposal(id-1)]
		if !ok {
			return nil, errors.Errorf("proposal %v not found", id-1)
		}
		var pr v1.ProposalRecord
		err = blobDecode(blob, dataDescriptorProposal, &pr)
		if err != nil {
			return nil, err
		}
		switch pr.Status {
		case v1.PropStatusActive:
			inv.Active = append(inv.Active, pr.ID)
		case v1.PropStatusEnded:
			inv.Ended = append(inv.Ended, pr.ID)
		case v1.PropStatusCancelled:
			inv.Cancelled = append(inv.Cancelled, pr.ID)
		default:
			return nil, errors.Errorf("proposal %v has invalid status %v",
				pr.ID, pr.Status)
		}
	}

	return &inv, nil
}

// New returns a new governance engine context.
//
// The owner is the hex encoded public key of the registry owner and may be
// empty. The balance lookup is used to derive vote weights for the weighted
// and quadratic vote mechanisms and may be nil, in which case the
// DefaultBalanceLookup is used.
func New(id *identity.FullIdentity, kv store.BlobKV, e *events.Manager, owner string, balance BalanceLookup) (*Gov, error) {
	switch {
	case id == nil:
		return nil, errors.Errorf("identity not provided")
	case kv == nil:
		return nil, errors.Errorf("store not provided")
	case e == nil:
		return nil, errors.Errorf("event manager not provided")
	}

	if owner != "" {
		_, err := util.IdentityFromString(owner)
		if err != nil {
			return nil, errors.Errorf("invalid owner public key %v: %v",
				owner, err)
		}
	}
	if balance == nil {
		balance = DefaultBalanceLookup
	}

	return &Gov{
		db:       kv,
		identity: id,
		events:   e,
		balance:  balance,
		owner:    owner,
		mutexes:  make(map[uint64]*sync.Mutex),
	}, nil
}
