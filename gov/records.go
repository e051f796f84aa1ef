// Copyright (c) 2022 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package gov

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"

	v1 "github.com/decred/agora/api/v1"
	"github.com/decred/agora/store"
	"github.com/decred/agora/util"
	"github.com/pkg/errors"
)

const (
	// Data descriptors. The descriptor is saved to the store as part
	// of the blob entry and is used to verify the data on the way back
	// out.
	dataDescriptorProposal      = "proposal-v1"
	dataDescriptorCastVote      = "castvote-v1"
	dataDescriptorDelegation    = "delegation-v1"
	dataDescriptorTally         = "tally-v1"
	dataDescriptorProposalCount = "proposalcount-v1"

	// keyProposalCount is the key-value store key for the proposal
	// count record.
	keyProposalCount = "proposalcount"
)

// keyProposal returns the key-value store key for a proposal record.
func keyProposal(proposalID uint64) string {
	return fmt.Sprintf("proposal-%v", proposalID)
}

// keyVote returns the key-value store key for a cast vote record. There can
// only ever be one vote per proposal per public key.
func keyVote(proposalID uint64, publicKey string) string {
	return fmt.Sprintf("vote-%v-%v", proposalID, publicKey)
}

// keyDelegation returns the key-value store key for a delegation record.
// There can only ever be one delegation per proposal per public key.
func keyDelegation(proposalID uint64, publicKey string) string {
	return fmt.Sprintf("delegation-%v-%v", proposalID, publicKey)
}

// keyTally returns the key-value store key for an option tally record.
func keyTally(proposalID, option uint64) string {
	return fmt.Sprintf("tally-%v-%v", proposalID, option)
}

// optionTally is the running vote weight for a single proposal option. A
// zeroed tally is written for every option when the proposal is created so
// that casting a vote only ever updates an existing record.
type optionTally struct {
	ProposalID uint64 `json:"proposalid"`
	Option     uint64 `json:"option"`
	Weight     uint64 `json:"weight"`
}

// proposalCount is the number of proposals that have been created. Proposal
// IDs are issued sequentially starting at 0, so the count is also the ID
// that will be assigned to the next proposal.
type proposalCount struct {
	Count uint64 `json:"count"`
}

// blobEncode encodes the provided structure into a gzipped blob entry.
func blobEncode(descriptor string, data interface{}) ([]byte, error) {
	db, err := json.Marshal(data)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	hint, err := json.Marshal(store.DataDescriptor{
		Type:       store.DataTypeStructure,
		Descriptor: descriptor,
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}
	be := store.NewBlobEntry(hint, db)
	return store.Blobify(be)
}

// blobDecode decodes the provided gzipped blob entry into the provided
// structure, verifying the data descriptor and the data digest along the
// way.
func blobDecode(blob []byte, descriptor string, data interface{}) error {
	be, err := store.Deblob(blob)
	if err != nil {
		return err
	}

	// Decode and validate the data hint
	b, err := base64.StdEncoding.DecodeString(be.DataHint)
	if err != nil {
		return errors.Errorf("decode DataHint: %v", err)
	}
	var dd store.DataDescriptor
	err = json.Unmarshal(b, &dd)
	if err != nil {
		return errors.Errorf("unmarshal DataHint: %v", err)
	}
	if dd.Descriptor != descriptor {
		return errors.Errorf("unexpected data descriptor: got %v, want %v",
			dd.Descriptor, descriptor)
	}

	// Decode and validate the data
	b, err = base64.StdEncoding.DecodeString(be.Data)
	if err != nil {
		return errors.Errorf("decode Data: %v", err)
	}
	if !util.IsDigest(be.Digest) {
		return errors.Errorf("invalid digest %v", be.Digest)
	}
	digest, err := hex.DecodeString(be.Digest)
	if err != nil {
		return errors.Errorf("decode digest: %v", err)
	}
	if !bytes.Equal(util.Digest(b), digest) {
		return errors.Errorf("data is not coherent; got %x, want %x",
			util.Digest(b), digest)
	}
	err = json.Unmarshal(b, data)
	if err != nil {
		return errors.Errorf("unmarshal %v: %v", descriptor, err)
	}

	return nil
}

// proposal returns the proposal record for the provided proposal ID.
//
// A UserError with an error code of ProposalNotFound is returned if a
// proposal record does not exist for the provided ID.
func (g *Gov) proposal(s store.Getter, proposalID uint64) (*v1.ProposalRecord, error) {
	blob, err := s.Get(keyProposal(proposalID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, UserError{
				ErrorCode: v1.ErrorStatusProposalNotFound,
			}
		}
		return nil, err
	}
	var pr v1.ProposalRecord
	err = blobDecode(blob, dataDescriptorProposal, &pr)
	if err != nil {
		return nil, err
	}
	return &pr, nil
}

// proposalInsert inserts a new proposal record into the store.
func (g *Gov) proposalInsert(tx store.Tx, pr v1.ProposalRecord) error {
	blob, err := blobEncode(dataDescriptorProposal, pr)
	if err != nil {
		return err
	}
	return tx.Insert(map[string][]byte{
		keyProposal(pr.ID): blob,
	}, false)
}

// proposalUpdate updates an existing proposal record in the store.
func (g *Gov) proposalUpdate(tx store.Tx, pr v1.ProposalRecord) error {
	blob, err := blobEncode(dataDescriptorProposal, pr)
	if err != nil {
		return err
	}
	return tx.Update(map[string][]byte{
		keyProposal(pr.ID): blob,
	}, false)
}

// vote returns the cast vote record for the provided proposal ID and public
// key.
//
// A nil vote and a nil error are returned if the public key has not cast a
// vote on the proposal. Absence of a vote is not an error.
func (g *Gov) vote(s store.Getter, proposalID uint64, publicKey string) (*v1.CastVoteDetails, error) {
	blob, err := s.Get(keyVote(proposalID, publicKey))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var cvd v1.CastVoteDetails
	err = blobDecode(blob, dataDescriptorCastVote, &cvd)
	if err != nil {
		return nil, err
	}
	return &cvd, nil
}

// voteInsert inserts a new cast vote record into the store. Vote records
// are encrypted at rest.
func (g *Gov) voteInsert(tx store.Tx, cvd v1.CastVoteDetails) error {
	blob, err := blobEncode(dataDescriptorCastVote, cvd)
	if err != nil {
		return err
	}
	return tx.Insert(map[string][]byte{
		keyVote(cvd.ProposalID, cvd.PublicKey): blob,
	}, true)
}

// delegation returns the delegation record for the provided proposal ID and
// public key.
//
// A nil delegation and a nil error are returned if the public key has not
// delegated their voting right on the proposal. Absence of a delegation is
// not an error.
func (g *Gov) delegation(s store.Getter, proposalID uint64, publicKey string) (*v1.DelegationDetails, error) {
	blob, err := s.Get(keyDelegation(proposalID, publicKey))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var dd v1.DelegationDetails
	err = blobDecode(blob, dataDescriptorDelegation, &dd)
	if err != nil {
		return nil, err
	}
	return &dd, nil
}

// delegationInsert inserts a new delegation record into the store.
// Delegation records are encrypted at rest.
func (g *Gov) delegationInsert(tx store.Tx, dd v1.DelegationDetails) error {
	blob, err := blobEncode(dataDescriptorDelegation, dd)
	if err != nil {
		return err
	}
	return tx.Insert(map[string][]byte{
		keyDelegation(dd.ProposalID, dd.PublicKey): blob,
	}, true)
}

// tally returns the option tally record for the provided proposal ID and
// option.
//
// A nil tally and a nil error are returned if a tally record does not
// exist. This only occurs when the option is out of bounds for the
// proposal; in-bounds tallies are created alongside the proposal record.
func (g *Gov) tally(s store.Getter, proposalID, option uint64) (*optionTally, error) {
	blob, err := s.Get(keyTally(proposalID, option))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var t optionTally
	err = blobDecode(blob, dataDescriptorTally, &t)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// tallyInsert inserts a new option tally record into the store.
func (g *Gov) tallyInsert(tx store.Tx, t optionTally) error {
	blob, err := blobEncode(dataDescriptorTally, t)
	if err != nil {
		return err
	}
	return tx.Insert(map[string][]byte{
		keyTally(t.ProposalID, t.Option): blob,
	}, false)
}

// tallyUpdate updates an existing option tally record in the store.
func (g *Gov) tallyUpdate(tx store.Tx, t optionTally) error {
	blob, err := blobEncode(dataDescriptorTally, t)
	if err != nil {
		return err
	}
	return tx.Update(map[string][]byte{
		keyTally(t.ProposalID, t.Option): blob,
	}, false)
}

// count returns the number of proposals that have been created. A zero
// count is returned if no proposals have been created yet.
func (g *Gov) count(s store.Getter) (uint64, error) {
	blob, err := s.Get(keyProposalCount)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	var pc proposalCount
	err = blobDecode(blob, dataDescriptorProposalCount, &pc)
	if err != nil {
		return 0, err
	}
	return pc.Count, nil
}

// countSave saves the proposal count to the store, creating the record if
// it does not already exist.
func (g *Gov) countSave(tx store.Tx, count uint64) error {
	blob, err := blobEncode(dataDescriptorProposalCount, proposalCount{
		Count: count,
	})
	if err != nil {
		return err
	}
	blobs := map[string][]byte{
		keyProposalCount: blob,
	}
	err = tx.Update(blobs, false)
	if errors.Is(err, store.ErrNotFound) {
		// First proposal to ever be submitted. The count record
		// needs to be created.
		err = tx.Insert(blobs, false)
	}
	return err
}
