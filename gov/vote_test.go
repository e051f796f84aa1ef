// Copyright (c) 2022 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package gov

import (
	"testing"
	"time"

	v1 "github.com/decred/agora/api/v1"
	"github.com/decred/agora/api/v1/identity"
	"github.com/decred/agora/unittest"
	"github.com/decred/agora/util"
	"github.com/pkg/errors"
)

func TestVoteCast(t *testing.T) {
	g, _ := newTestGov(t)
	creator := newTestIdentity(t)
	voter := newTestIdentity(t)

	// An unknown proposal must fail with a not found error
	_, _, err := g.VoteCast(newCastVote(voter, 0, 0))
	verifyUserError(t, err, v1.ErrorStatusProposalNotFound)

	pr, err := g.ProposalNew(newProposal(creator))
	if err != nil {
		t.Fatalf("ProposalNew: %v", err)
	}

	// An invalid signature must be rejected
	cv := newCastVote(voter, pr.ID, 0)
	cv.Signature = signHex(voter, "wrong message")
	_, _, err = g.VoteCast(cv)
	verifyUserError(t, err, v1.ErrorStatusInvalidSignature)

	// The signature must commit to the submitted option
	cv = newCastVote(voter, pr.ID, 0)
	cv.Option = 1
	_, _, err = g.VoteCast(cv)
	verifyUserError(t, err, v1.ErrorStatusInvalidSignature)

	// An out of bounds option must be rejected
	_, _, err = g.VoteCast(newCastVote(voter, pr.ID,
		uint64(len(pr.Options))))
	verifyUserError(t, err, v1.ErrorStatusInvalidOption)

	// Cast a valid vote
	before := time.Now().Unix()
	cv = newCastVote(voter, pr.ID, 1)
	vote, receipt, err := g.VoteCast(cv)
	if err != nil {
		t.Fatalf("VoteCast: %v", err)
	}
	want := v1.CastVoteDetails{
		ProposalID: pr.ID,
		PublicKey:  voter.Public.String(),
		Option:     1,
		Weight:     1,
		Timestamp:  vote.Timestamp,
	}
	diff := unittest.DeepEqual(*vote, want)
	if diff != "" {
		t.Errorf("%v", diff)
	}
	if vote.Timestamp < before {
		t.Errorf("vote timestamp %v predates the request",
			vote.Timestamp)
	}

	// The receipt must be the server signature of the client
	// signature.
	s, err := util.ConvertSignature(receipt)
	if err != nil {
		t.Fatalf("convert receipt: %v", err)
	}
	if !g.identity.Public.VerifyMessage([]byte(cv.Signature), s) {
		t.Error("receipt does not verify")
	}

	// The vote must have moved the proposal aggregates and the option
	// tally.
	stored, err := g.ProposalGet(pr.ID)
	if err != nil {
		t.Fatalf("ProposalGet: %v", err)
	}
	if stored.TotalVotesWeight != 1 {
		t.Errorf("got total votes weight %v, want 1",
			stored.TotalVotesWeight)
	}
	tally, err := g.TallyOf(pr.ID, 1)
	if err != nil {
		t.Fatalf("TallyOf: %v", err)
	}
	if tally != 1 {
		t.Errorf("got tally %v, want 1", tally)
	}

	// Voting twice must fail, no matter the option
	_, _, err = g.VoteCast(newCastVote(voter, pr.ID, 1))
	verifyUserError(t, err, v1.ErrorStatusAlreadyVoted)
	_, _, err = g.VoteCast(newCastVote(voter, pr.ID, 2))
	verifyUserError(t, err, v1.ErrorStatusAlreadyVoted)

	// The rejected votes must not have moved the aggregates
	stored, err = g.ProposalGet(pr.ID)
	if err != nil {
		t.Fatalf("ProposalGet: %v", err)
	}
	if stored.TotalVotesWeight != 1 {
		t.Errorf("got total votes weight %v, want 1",
			stored.TotalVotesWeight)
	}

	// Voting after the end time must fail even though the proposal
	// has not been transitioned to ended yet.
	proposalSetEndTime(t, g, pr.ID, time.Now().Unix()-1)
	other := newTestIdentity(t)
	_, _, err = g.VoteCast(newCastVote(other, pr.ID, 0))
	verifyUserError(t, err, v1.ErrorStatusProposalEnded)

	// Voting on a finalized proposal must fail as well
	_, _, err = g.ProposalEnd(v1.EndProposal{ProposalID: pr.ID})
	if err != nil {
		t.Fatalf("ProposalEnd: %v", err)
	}
	_, _, err = g.VoteCast(newCastVote(other, pr.ID, 0))
	verifyUserError(t, err, v1.ErrorStatusProposalEnded)
}

func TestVoteCastQuorum(t *testing.T) {
	g, _ := newTestGov(t)
	creator := newTestIdentity(t)
	voters := []*identity.FullIdentity{
		newTestIdentity(t),
		newTestIdentity(t),
		newTestIdentity(t),
	}

	// Create a proposal that requires a quorum weight of 3
	np := newProposal(creator)
	np.Quorum = 3
	signProposal(&np, creator)
	pr, err := g.ProposalNew(np)
	if err != nil {
		t.Fatalf("ProposalNew: %v", err)
	}
	if pr.QuorumReached {
		t.Error("quorum reached on a proposal with no votes")
	}

	// The first two voters pick option 0. The quorum must not be met
	// after the second vote.
	for _, voter := range voters[:2] {
		_, _, err = g.VoteCast(newCastVote(voter, pr.ID, 0))
		if err != nil {
			t.Fatalf("VoteCast: %v", err)
		}
	}
	stored, err := g.ProposalGet(pr.ID)
	if err != nil {
		t.Fatalf("ProposalGet: %v", err)
	}
	if stored.QuorumReached {
		t.Error("quorum reached at weight 2, want 3")
	}

	// The third voter picks option 1 and pushes the total weight to
	// the quorum.
	_, _, err = g.VoteCast(newCastVote(voters[2], pr.ID, 1))
	if err != nil {
		t.Fatalf("VoteCast: %v", err)
	}
	stored, err = g.ProposalGet(pr.ID)
	if err != nil {
		t.Fatalf("ProposalGet: %v", err)
	}
	if !stored.QuorumReached {
		t.Error("quorum not reached at weight 3")
	}
	if stored.TotalVotesWeight != 3 {
		t.Errorf("got total votes weight %v, want 3",
			stored.TotalVotesWeight)
	}

	// Verify the tallies and the winner
	for option, wantTally := range map[uint64]uint64{0: 2, 1: 1, 2: 0} {
		tally, err := g.TallyOf(pr.ID, option)
		if err != nil {
			t.Fatalf("TallyOf %v: %v", option, err)
		}
		if tally != wantTally {
			t.Errorf("got tally %v for option %v, want %v", tally,
				option, wantTally)
		}
	}
	winner, err := g.Winner(pr.ID)
	if err != nil {
		t.Fatalf("Winner: %v", err)
	}
	if winner != 0 {
		t.Errorf("got winning option %v, want 0", winner)
	}

	// The tallies must always sum to the total votes weight
	var sum uint64
	for option := uint64(0); option < uint64(len(pr.Options)); option++ {
		tally, err := g.TallyOf(pr.ID, option)
		if err != nil {
			t.Fatalf("TallyOf %v: %v", option, err)
		}
		sum += tally
	}
	if sum != stored.TotalVotesWeight {
		t.Errorf("tallies sum to %v, total votes weight is %v", sum,
			stored.TotalVotesWeight)
	}

	// Additional votes must not unset the quorum flag
	late := newTestIdentity(t)
	_, _, err = g.VoteCast(newCastVote(late, pr.ID, 2))
	if err != nil {
		t.Fatalf("VoteCast: %v", err)
	}
	stored, err = g.ProposalGet(pr.ID)
	if err != nil {
		t.Fatalf("ProposalGet: %v", err)
	}
	if !stored.QuorumReached {
		t.Error("quorum flag was unset by a later vote")
	}
}

func TestWinner(t *testing.T) {
	g, _ := newTestGov(t)
	creator := newTestIdentity(t)

	// An unknown proposal must fail with a not found error
	_, err := g.Winner(0)
	verifyUserError(t, err, v1.ErrorStatusProposalNotFound)

	// A proposal with no votes reports option 0 as the winner
	pr, err := g.ProposalNew(newProposal(creator))
	if err != nil {
		t.Fatalf("ProposalNew: %v", err)
	}
	winner, err := g.Winner(pr.ID)
	if err != nil {
		t.Fatalf("Winner: %v", err)
	}
	if winner != 0 {
		t.Errorf("got winning option %v, want 0", winner)
	}

	// Ties are broken by the lowest option index. Options 0 and 1
	// receive equal weight, option 2 trails.
	for _, option := range []uint64{0, 0, 1, 1, 2} {
		voter := newTestIdentity(t)
		_, _, err = g.VoteCast(newCastVote(voter, pr.ID, option))
		if err != nil {
			t.Fatalf("VoteCast: %v", err)
		}
	}
	winner, err = g.Winner(pr.ID)
	if err != nil {
		t.Fatalf("Winner: %v", err)
	}
	if winner != 0 {
		t.Errorf("got winning option %v on a tie, want 0", winner)
	}

	// A strictly larger tally must win
	for i := 0; i < 2; i++ {
		voter := newTestIdentity(t)
		_, _, err = g.VoteCast(newCastVote(voter, pr.ID, 2))
		if err != nil {
			t.Fatalf("VoteCast: %v", err)
		}
	}
	winner, err = g.Winner(pr.ID)
	if err != nil {
		t.Fatalf("Winner: %v", err)
	}
	if winner != 2 {
		t.Errorf("got winning option %v, want 2", winner)
	}
}

func TestVoteDelegate(t *testing.T) {
	g, _ := newTestGov(t)
	creator := newTestIdentity(t)
	delegator := newTestIdentity(t)
	delegate := newTestIdentity(t)

	pr, err := g.ProposalNew(newProposal(creator))
	if err != nil {
		t.Fatalf("ProposalNew: %v", err)
	}

	// An unknown proposal must fail with a not found error
	_, _, err = g.VoteDelegate(newDelegateVote(delegator, pr.ID+1,
		delegate.Public.String()))
	verifyUserError(t, err, v1.ErrorStatusProposalNotFound)

	// A missing delegate must be rejected
	_, _, err = g.VoteDelegate(newDelegateVote(delegator, pr.ID, ""))
	verifyUserError(t, err, v1.ErrorStatusUnauthorized)

	// Delegating to yourself must be rejected
	_, _, err = g.VoteDelegate(newDelegateVote(delegator, pr.ID,
		delegator.Public.String()))
	verifyUserError(t, err, v1.ErrorStatusUnauthorized)

	// A malformed delegate key must be rejected
	_, _, err = g.VoteDelegate(newDelegateVote(delegator, pr.ID, "junk"))
	verifyUserError(t, err, v1.ErrorStatusInvalidPublicKey)

	// An invalid signature must be rejected
	dv := newDelegateVote(delegator, pr.ID, delegate.Public.String())
	dv.Signature = signHex(delegator, "wrong message")
	_, _, err = g.VoteDelegate(dv)
	verifyUserError(t, err, v1.ErrorStatusInvalidSignature)

	// Delegate the voting right
	before := time.Now().Unix()
	dv = newDelegateVote(delegator, pr.ID, delegate.Public.String())
	dd, receipt, err := g.VoteDelegate(dv)
	if err != nil {
		t.Fatalf("VoteDelegate: %v", err)
	}
	want := v1.DelegationDetails{
		ProposalID: pr.ID,
		PublicKey:  delegator.Public.String(),
		Delegate:   delegate.Public.String(),
		Timestamp:  dd.Timestamp,
	}
	diff := unittest.DeepEqual(*dd, want)
	if diff != "" {
		t.Errorf("%v", diff)
	}
	if dd.Timestamp < before {
		t.Errorf("delegation timestamp %v predates the request",
			dd.Timestamp)
	}
	s, err := util.ConvertSignature(receipt)
	if err != nil {
		t.Fatalf("convert receipt: %v", err)
	}
	if !g.identity.Public.VerifyMessage([]byte(dv.Signature), s) {
		t.Error("receipt does not verify")
	}

	// The delegator has given up their own voting right
	_, _, err = g.VoteCast(newCastVote(delegator, pr.ID, 0))
	verifyUserError(t, err, v1.ErrorStatusUnauthorized)

	// A voting right can only be delegated once
	other := newTestIdentity(t)
	_, _, err = g.VoteDelegate(newDelegateVote(delegator, pr.ID,
		other.Public.String()))
	verifyUserError(t, err, v1.ErrorStatusUnauthorized)

	// The delegate's own voting right is unaffected
	_, _, err = g.VoteCast(newCastVote(delegate, pr.ID, 0))
	if err != nil {
		t.Fatalf("VoteCast by delegate: %v", err)
	}

	// Delegation does not aggregate voting power. The delegate's
	// vote was counted with their own weight only.
	stored, err := g.ProposalGet(pr.ID)
	if err != nil {
		t.Fatalf("ProposalGet: %v", err)
	}
	if stored.TotalVotesWeight != 1 {
		t.Errorf("got total votes weight %v, want 1",
			stored.TotalVotesWeight)
	}

	// An identity that has voted can no longer delegate
	_, _, err = g.VoteDelegate(newDelegateVote(delegate, pr.ID,
		other.Public.String()))
	verifyUserError(t, err, v1.ErrorStatusAlreadyVoted)

	// Delegations follow the same timing rules as votes
	proposalSetEndTime(t, g, pr.ID, time.Now().Unix()-1)
	_, _, err = g.VoteDelegate(newDelegateVote(other, pr.ID,
		delegate.Public.String()))
	verifyUserError(t, err, v1.ErrorStatusProposalEnded)

	// Delegations on a cancelled proposal must fail
	cr, err := g.ProposalNew(newProposal(creator))
	if err != nil {
		t.Fatalf("ProposalNew: %v", err)
	}
	_, err = g.ProposalCancel(newCancelProposal(creator, cr.ID))
	if err != nil {
		t.Fatalf("ProposalCancel: %v", err)
	}
	_, _, err = g.VoteDelegate(newDelegateVote(other, cr.ID,
		delegate.Public.String()))
	verifyUserError(t, err, v1.ErrorStatusProposalNotActive)
}

func TestVoteOf(t *testing.T) {
	g, _ := newTestGov(t)
	creator := newTestIdentity(t)
	voter := newTestIdentity(t)

	// An unknown proposal must fail with a not found error
	_, err := g.VoteOf(0, voter.Public.String())
	verifyUserError(t, err, v1.ErrorStatusProposalNotFound)

	pr, err := g.ProposalNew(newProposal(creator))
	if err != nil {
		t.Fatalf("ProposalNew: %v", err)
	}

	// Absence of a vote is not an error
	vote, err := g.VoteOf(pr.ID, voter.Public.String())
	if err != nil {
		t.Fatalf("VoteOf: %v", err)
	}
	if vote != nil {
		t.Errorf("got vote %v, want nil", vote)
	}

	// The cast vote must be returned once it exists
	cast, _, err := g.VoteCast(newCastVote(voter, pr.ID, 2))
	if err != nil {
		t.Fatalf("VoteCast: %v", err)
	}
	vote, err = g.VoteOf(pr.ID, voter.Public.String())
	if err != nil {
		t.Fatalf("VoteOf: %v", err)
	}
	diff := unittest.DeepEqual(vote, cast)
	if diff != "" {
		t.Errorf("%v", diff)
	}
}

func TestTallyOf(t *testing.T) {
	g, _ := newTestGov(t)
	creator := newTestIdentity(t)

	// An unknown proposal must fail with a not found error
	_, err := g.TallyOf(0, 0)
	verifyUserError(t, err, v1.ErrorStatusProposalNotFound)

	pr, err := g.ProposalNew(newProposal(creator))
	if err != nil {
		t.Fatalf("ProposalNew: %v", err)
	}

	// Options with no votes have a zero tally
	tally, err := g.TallyOf(pr.ID, 0)
	if err != nil {
		t.Fatalf("TallyOf: %v", err)
	}
	if tally != 0 {
		t.Errorf("got tally %v, want 0", tally)
	}

	// Out of bounds options have a zero tally as well. This is a
	// read, not a vote, so it does not error.
	tally, err = g.TallyOf(pr.ID, 99)
	if err != nil {
		t.Fatalf("TallyOf: %v", err)
	}
	if tally != 0 {
		t.Errorf("got tally %v, want 0", tally)
	}
}

func TestVoteWeights(t *testing.T) {
	voterA := newTestIdentity(t)
	voterB := newTestIdentity(t)
	voterC := newTestIdentity(t)

	// Balances for the test identities. Identities that are not in
	// the map have a zero balance.
	balances := map[string]uint64{
		voterA.Public.String(): 9,
		voterB.Public.String(): 10,
	}
	g, _ := newTestGovBalance(t, func(publicKey string) (uint64, error) {
		return balances[publicKey], nil
	})
	creator := newTestIdentity(t)

	// Weighted votes count with the full balance
	np := newProposal(creator)
	np.Mechanism = v1.VoteMechanismWeighted
	signProposal(&np, creator)
	pr, err := g.ProposalNew(np)
	if err != nil {
		t.Fatalf("ProposalNew: %v", err)
	}
	vote, _, err := g.VoteCast(newCastVote(voterA, pr.ID, 0))
	if err != nil {
		t.Fatalf("VoteCast: %v", err)
	}
	if vote.Weight != 9 {
		t.Errorf("got weighted weight %v, want 9", vote.Weight)
	}

	// A zero balance still counts with a weight of one
	vote, _, err = g.VoteCast(newCastVote(voterC, pr.ID, 1))
	if err != nil {
		t.Fatalf("VoteCast: %v", err)
	}
	if vote.Weight != 1 {
		t.Errorf("got zero balance weight %v, want 1", vote.Weight)
	}

	stored, err := g.ProposalGet(pr.ID)
	if err != nil {
		t.Fatalf("ProposalGet: %v", err)
	}
	if stored.TotalVotesWeight != 10 {
		t.Errorf("got total votes weight %v, want 10",
			stored.TotalVotesWeight)
	}

	// Quadratic votes count with the square root of the balance,
	// rounded down.
	np = newProposal(creator)
	np.Mechanism = v1.VoteMechanismQuadratic
	signProposal(&np, creator)
	pr, err = g.ProposalNew(np)
	if err != nil {
		t.Fatalf("ProposalNew: %v", err)
	}
	vote, _, err = g.VoteCast(newCastVote(voterA, pr.ID, 0))
	if err != nil {
		t.Fatalf("VoteCast: %v", err)
	}
	if vote.Weight != 3 {
		t.Errorf("got quadratic weight %v, want 3", vote.Weight)
	}
	vote, _, err = g.VoteCast(newCastVote(voterB, pr.ID, 0))
	if err != nil {
		t.Fatalf("VoteCast: %v", err)
	}
	if vote.Weight != 3 {
		t.Errorf("got quadratic weight %v, want 3", vote.Weight)
	}

	// Simple votes ignore the balance entirely
	np = newProposal(creator)
	np.Mechanism = v1.VoteMechanismSimple
	signProposal(&np, creator)
	pr, err = g.ProposalNew(np)
	if err != nil {
		t.Fatalf("ProposalNew: %v", err)
	}
	vote, _, err = g.VoteCast(newCastVote(voterA, pr.ID, 0))
	if err != nil {
		t.Fatalf("VoteCast: %v", err)
	}
	if vote.Weight != 1 {
		t.Errorf("got simple weight %v, want 1", vote.Weight)
	}

	// A failing balance lookup aborts the vote with an internal
	// error, not a user error, and the vote is not recorded.
	g, _ = newTestGovBalance(t, func(publicKey string) (uint64, error) {
		return 0, errors.New("balance source offline")
	})
	np = newProposal(creator)
	np.Mechanism = v1.VoteMechanismWeighted
	signProposal(&np, creator)
	pr, err = g.ProposalNew(np)
	if err != nil {
		t.Fatalf("ProposalNew: %v", err)
	}
	_, _, err = g.VoteCast(newCastVote(voterA, pr.ID, 0))
	if err == nil {
		t.Fatal("no error from a failing balance lookup")
	}
	var ue UserError
	if errors.As(err, &ue) {
		t.Errorf("got user error %v, want internal error",
			v1.ErrorStatus[ue.ErrorCode])
	}
	vote2, err := g.VoteOf(pr.ID, voterA.Public.String())
	if err != nil {
		t.Fatalf("VoteOf: %v", err)
	}
	if vote2 != nil {
		t.Error("vote was recorded despite the failed balance lookup")
	}
}
