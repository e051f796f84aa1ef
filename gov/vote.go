// Copyright (c) 2022 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package gov

import (
	"encoding/hex"
	"fmt"
	"time"

	v1 "github.com/decred/agora/api/v1"
	"github.com/decred/agora/store"
	"github.com/decred/agora/util"
	"github.com/pkg/errors"
)

// proposalIsActive verifies that the provided proposal is accepting votes
// at the provided point in time. Votes and delegations share the same
// timing rules: the proposal must have the active status and its voting
// period must not have run out. The end time itself is not part of the
// voting period, so a proposal stops accepting votes the moment the end
// time is reached, even if it has not been transitioned to ended yet.
func proposalIsActive(pr v1.ProposalRecord, now int64) error {
	switch pr.Status {
	case v1.PropStatusCancelled:
		return UserError{
			ErrorCode:    v1.ErrorStatusProposalNotActive,
			ErrorContext: []string{"proposal has been cancelled"},
		}
	case v1.PropStatusEnded:
		return UserError{
			ErrorCode: v1.ErrorStatusProposalEnded,
		}
	}
	if now >= pr.EndTime {
		return UserError{
			ErrorCode: v1.ErrorStatusProposalEnded,
			ErrorContext: []string{fmt.Sprintf("voting period ended at %v",
				pr.EndTime)},
		}
	}
	return nil
}

// VoteCast casts a vote on a proposal option. A voter may only vote once
// per proposal and a cast vote is immutable. The weight of the vote is
// derived from the proposal's vote mechanism at cast time and is frozen
// thereafter.
//
// The returned receipt is the server signature of the client signature and
// proves that the vote was accepted.
func (g *Gov) VoteCast(cv v1.CastVote) (*v1.CastVoteDetails, string, error) {
	log.Tracef("VoteCast: %v %v %v", cv.ProposalID, cv.Option, cv.PublicKey)

	if g.isPaused() {
		return nil, "", UserError{
			ErrorCode: v1.ErrorStatusVotingPaused,
		}
	}

	// Verify the voter signature
	msg := v1.CastVoteMessage(cv.ProposalID, cv.Option)
	err := util.VerifySignature(cv.Signature, cv.PublicKey, msg)
	if err != nil {
		return nil, "", convertSignatureError(err)
	}

	m := g.mutex(cv.ProposalID)
	m.Lock()
	defer m.Unlock()

	now := time.Now().Unix()

	tx, cancel, err := g.db.Tx()
	if err != nil {
		return nil, "", err
	}
	defer cancel()

	// Verify that the proposal is accepting votes
	pr, err := g.proposal(tx, cv.ProposalID)
	if err != nil {
		return nil, "", err
	}
	err = proposalIsActive(*pr, now)
	if err != nil {
		return nil, "", err
	}

	// Verify that the voter has not already voted
	vd, err := g.vote(tx, cv.ProposalID, cv.PublicKey)
	if err != nil {
		return nil, "", err
	}
	if vd != nil {
		return nil, "", UserError{
			ErrorCode: v1.ErrorStatusAlreadyVoted,
		}
	}

	// Verify that the voter has not delegated their voting right away
	dd, err := g.delegation(tx, cv.ProposalID, cv.PublicKey)
	if err != nil {
		return nil, "", err
	}
	if dd != nil {
		return nil, "", UserError{
			ErrorCode: v1.ErrorStatusUnauthorized,
			ErrorContext: []string{fmt.Sprintf("voting right has been "+
				"delegated to %v", dd.Delegate)},
		}
	}

	// Verify the vote option
	if cv.Option >= uint64(len(pr.Options)) {
		return nil, "", UserError{
			ErrorCode: v1.ErrorStatusInvalidOption,
			ErrorContext: []string{fmt.Sprintf("option must be less "+
				"than %v", len(pr.Options))},
		}
	}

	weight, err := g.voteWeight(pr.Mechanism, cv.PublicKey)
	if err != nil {
		return nil, "", err
	}

	// Save the vote record and roll its weight into the option tally
	// and the proposal aggregates. All three writes commit atomically.
	vote := v1.CastVoteDetails{
		ProposalID: cv.ProposalID,
		PublicKey:  cv.PublicKey,
		Option:     cv.Option,
		Weight:     weight,
		Timestamp:  now,
	}
	err = g.voteInsert(tx, vote)
	if err != nil {
		return nil, "", err
	}

	t, err := g.tally(tx, cv.ProposalID, cv.Option)
	if err != nil {
		return nil, "", err
	}
	if t == nil {
		return nil, "", errors.Errorf("tally not found for proposal %v "+
			"option %v", cv.ProposalID, cv.Option)
	}
	t.Weight += weight
	err = g.tallyUpdate(tx, *t)
	if err != nil {
		return nil, "", err
	}

	pr.TotalVotesWeight += weight
	if pr.Quorum > 0 && pr.TotalVotesWeight >= pr.Quorum {
		// Quorum participation is monotonic. The total weight only
		// ever grows, so once the quorum has been met it stays met.
		pr.QuorumReached = true
	}
	err = g.proposalUpdate(tx, *pr)
	if err != nil {
		return nil, "", err
	}

	err = tx.Commit()
	if err != nil {
		return nil, "", err
	}

	receipt := g.identity.SignMessage([]byte(cv.Signature))

	g.events.Emit(EventTypeVoteCast, EventVoteCast{
		Vote: vote,
	})

	log.Debugf("Vote cast on proposal %v: option %v, weight %v",
		cv.ProposalID, cv.Option, weight)

	return &vote, hex.EncodeToString(receipt[:]), nil
}

// VoteDelegate delegates the caller's voting right for a proposal to
// another identity. Delegating strips the caller of their own voting right
// for the proposal; it does not cast a vote on the delegate's behalf and
// the delegate's own voting right is unaffected.
//
// Delegations follow the same timing rules as votes and are immutable once
// recorded. The returned receipt is the server signature of the client
// signature.
func (g *Gov) VoteDelegate(dv v1.DelegateVote) (*v1.DelegationDetails, string, error) {
	log.Tracef("VoteDelegate: %v %v %v", dv.ProposalID, dv.PublicKey,
		dv.Delegate)

	if g.isPaused() {
		return nil, "", UserError{
			ErrorCode: v1.ErrorStatusVotingPaused,
		}
	}

	// Verify the delegator signature
	msg := v1.DelegateVoteMessage(dv.ProposalID, dv.Delegate)
	err := util.VerifySignature(dv.Signature, dv.PublicKey, msg)
	if err != nil {
		return nil, "", convertSignatureError(err)
	}

	// Verify the delegate
	switch {
	case dv.Delegate == "":
		return nil, "", UserError{
			ErrorCode:    v1.ErrorStatusUnauthorized,
			ErrorContext: []string{"delegate not provided"},
		}
	case dv.Delegate == dv.PublicKey:
		return nil, "", UserError{
			ErrorCode:    v1.ErrorStatusUnauthorized,
			ErrorContext: []string{"cannot delegate to self"},
		}
	}
	_, err = util.IdentityFromString(dv.Delegate)
	if err != nil {
		return nil, "", UserError{
			ErrorCode:    v1.ErrorStatusInvalidPublicKey,
			ErrorContext: []string{"delegate"},
		}
	}

	m := g.mutex(dv.ProposalID)
	m.Lock()
	defer m.Unlock()

	now := time.Now().Unix()

	tx, cancel, err := g.db.Tx()
	if err != nil {
		return nil, "", err
	}
	defer cancel()

	// Verify that the proposal is accepting votes
	pr, err := g.proposal(tx, dv.ProposalID)
	if err != nil {
		return nil, "", err
	}
	err = proposalIsActive(*pr, now)
	if err != nil {
		return nil, "", err
	}

	// A delegator that has already voted no longer holds a voting
	// right that can be delegated.
	vd, err := g.vote(tx, dv.ProposalID, dv.PublicKey)
	if err != nil {
		return nil, "", err
	}
	if vd != nil {
		return nil, "", UserError{
			ErrorCode: v1.ErrorStatusAlreadyVoted,
		}
	}

	// A voting right can only be delegated once
	dd, err := g.delegation(tx, dv.ProposalID, dv.PublicKey)
	if err != nil {
		return nil, "", err
	}
	if dd != nil {
		return nil, "", UserError{
			ErrorCode: v1.ErrorStatusUnauthorized,
			ErrorContext: []string{fmt.Sprintf("voting right has been "+
				"delegated to %v", dd.Delegate)},
		}
	}

	delegation := v1.DelegationDetails{
		ProposalID: dv.ProposalID,
		PublicKey:  dv.PublicKey,
		Delegate:   dv.Delegate,
		Timestamp:  now,
	}
	err = g.delegationInsert(tx, delegation)
	if err != nil {
		return nil, "", err
	}

	err = tx.Commit()
	if err != nil {
		return nil, "", err
	}

	receipt := g.identity.SignMessage([]byte(dv.Signature))

	g.events.Emit(EventTypeVoteDelegated, EventVoteDelegated{
		Delegation: delegation,
	})

	log.Debugf("Voting right on proposal %v delegated: %v -> %v",
		dv.ProposalID, dv.PublicKey, dv.Delegate)

	return &delegation, hex.EncodeToString(receipt[:]), nil
}

// VoteOf returns the vote that was cast on a proposal by the provided
// public key. A nil vote is returned if the public key has not cast a vote
// on the proposal; absence of a vote is not an error.
func (g *Gov) VoteOf(proposalID uint64, publicKey string) (*v1.CastVoteDetails, error) {
	log.Tracef("VoteOf: %v %v", proposalID, publicKey)

	_, err := g.proposal(g.db, proposalID)
	if err != nil {
		return nil, err
	}

	return g.vote(g.db, proposalID, publicKey)
}

// TallyOf returns the accumulated vote weight for a single option of a
// proposal. A zero tally is returned for options that have received no
// votes and for option indexes that are out of bounds for the proposal;
// absence of votes is not an error.
func (g *Gov) TallyOf(proposalID, option uint64) (uint64, error) {
	log.Tracef("TallyOf: %v %v", proposalID, option)

	_, err := g.proposal(g.db, proposalID)
	if err != nil {
		return 0, err
	}

	t, err := g.tally(g.db, proposalID, option)
	if err != nil {
		return 0, err
	}
	if t == nil {
		return 0, nil
	}

	return t.Weight, nil
}

// Winner returns the winning option of a proposal. The option with the
// highest accumulated weight wins. Ties are broken deterministically in
// favor of the lowest option index, which also means that a proposal with
// no cast votes reports option 0 as the winner.
//
// The winner can be computed at any point in the proposal lifecycle; it
// reflects the tallies as they currently stand.
func (g *Gov) Winner(proposalID uint64) (uint64, error) {
	log.Tracef("Winner: %v", proposalID)

	pr, err := g.proposal(g.db, proposalID)
	if err != nil {
		return 0, err
	}

	return g.winner(g.db, pr)
}

// winner resolves the winning option for the provided proposal from the
// stored option tallies. The tallies are scanned in ascending option order
// and an option only replaces the running winner when its weight strictly
// exceeds it.
func (g *Gov) winner(s store.Getter, pr *v1.ProposalRecord) (uint64, error) {
	keys := make([]string, 0, len(pr.Options))
	for i := range pr.Options {
		keys = append(keys, keyTally(pr.ID, uint64(i)))
	}
	blobs, err := s.GetBatch(keys)
	if err != nil {
		return 0, err
	}

	var (
		winner uint64
		max    uint64
	)
	for i := range pr.Options {
		blob, ok := blobs[keyTally(pr.ID, uint64(i))]
		if !ok {
			return 0, errors.Errorf("tally not found for proposal %v "+
				"option %v", pr.ID, i)
		}
		var t optionTally
		err = blobDecode(blob, dataDescriptorTally, &t)
		if err != nil {
			return 0, err
		}
		if t.Weight > max {
			max = t.Weight
			winner = t.Option
		}
	}

	return winner, nil
}
