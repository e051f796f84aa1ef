// Copyright (c) 2022 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package gov

import (
	"fmt"
	"testing"
	"time"

	v1 "github.com/decred/agora/api/v1"
	"github.com/decred/agora/api/v1/identity"
	"github.com/decred/agora/unittest"
)

// manyOptions returns n unique vote option labels.
func manyOptions(n int) []string {
	options := make([]string, 0, n)
	for i := 0; i < n; i++ {
		options = append(options, fmt.Sprintf("option %v", i))
	}
	return options
}

func TestProposalNew(t *testing.T) {
	g, _ := newTestGov(t)
	creator := newTestIdentity(t)

	// Invalid proposals. The proposal is re-signed after each
	// mutation so that the field under test is what causes the
	// failure, not the signature.
	tests := []struct {
		name   string
		mutate func(np *v1.NewProposal)
		want   v1.ErrorStatusT
	}{
		{
			"empty title",
			func(np *v1.NewProposal) {
				np.Title = ""
			},
			v1.ErrorStatusEmptyTitle,
		},
		{
			"whitespace title",
			func(np *v1.NewProposal) {
				np.Title = "   "
			},
			v1.ErrorStatusEmptyTitle,
		},
		{
			"no options",
			func(np *v1.NewProposal) {
				np.Options = nil
			},
			v1.ErrorStatusEmptyOptions,
		},
		{
			"empty option label",
			func(np *v1.NewProposal) {
				np.Options = []string{"yes", " "}
			},
			v1.ErrorStatusEmptyOptions,
		},
		{
			"too many options",
			func(np *v1.NewProposal) {
				np.Options = manyOptions(v1.MaxOptions + 1)
			},
			v1.ErrorStatusTooManyOptions,
		},
		{
			"duration below the minimum",
			func(np *v1.NewProposal) {
				np.Duration = v1.MinDuration - 1
			},
			v1.ErrorStatusInvalidDuration,
		},
		{
			"duration above the maximum",
			func(np *v1.NewProposal) {
				np.Duration = v1.MaxDuration + 1
			},
			v1.ErrorStatusInvalidDuration,
		},
		{
			"unknown mechanism",
			func(np *v1.NewProposal) {
				np.Mechanism = v1.VoteMechanismLast
			},
			v1.ErrorStatusInvalid,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			np := newProposal(creator)
			tc.mutate(&np)
			signProposal(&np, creator)
			_, err := g.ProposalNew(np)
			verifyUserError(t, err, tc.want)
		})
	}

	// An invalid signature must be rejected
	np := newProposal(creator)
	np.Signature = signHex(creator, "wrong message")
	_, err := g.ProposalNew(np)
	verifyUserError(t, err, v1.ErrorStatusInvalidSignature)

	// Tampering with a signed field must invalidate the signature
	np = newProposal(creator)
	np.Quorum = 100
	_, err = g.ProposalNew(np)
	verifyUserError(t, err, v1.ErrorStatusInvalidSignature)

	// A malformed public key must be rejected
	np = newProposal(creator)
	np.PublicKey = "junk"
	_, err = g.ProposalNew(np)
	verifyUserError(t, err, v1.ErrorStatusInvalidPublicKey)

	// Durations on the policy boundaries must be accepted. The
	// minimum duration is the newProposal default, so it is exercised
	// throughout this file; verify the maximum here.
	np = newProposal(creator)
	np.Duration = v1.MaxDuration
	signProposal(&np, creator)
	before := time.Now().Unix()
	pr, err := g.ProposalNew(np)
	if err != nil {
		t.Fatalf("ProposalNew with max duration: %v", err)
	}
	if pr.EndTime-pr.StartTime != v1.MaxDuration {
		t.Errorf("got voting period %v, want %v",
			pr.EndTime-pr.StartTime, v1.MaxDuration)
	}
	if pr.StartTime < before {
		t.Errorf("start time %v predates the request", pr.StartTime)
	}

	// Verify the full created record
	np = newProposal(creator)
	np.Description = "Should the block size be increased?"
	np.Quorum = 2
	signProposal(&np, creator)
	pr, err = g.ProposalNew(np)
	if err != nil {
		t.Fatalf("ProposalNew: %v", err)
	}
	want := v1.ProposalRecord{
		ID:               pr.ID,
		Creator:          creator.Public.String(),
		Title:            np.Title,
		Description:      np.Description,
		Options:          np.Options,
		StartTime:        pr.StartTime,
		EndTime:          pr.StartTime + np.Duration,
		Status:           v1.PropStatusActive,
		Mechanism:        v1.VoteMechanismSimple,
		Quorum:           2,
		TotalVotesWeight: 0,
		QuorumReached:    false,
	}
	diff := unittest.DeepEqual(*pr, want)
	if diff != "" {
		t.Errorf("%v", diff)
	}

	// The record must have been persisted
	stored, err := g.ProposalGet(pr.ID)
	if err != nil {
		t.Fatalf("ProposalGet: %v", err)
	}
	diff = unittest.DeepEqual(*stored, *pr)
	if diff != "" {
		t.Errorf("%v", diff)
	}

	// An unset mechanism defaults to the simple mechanism
	np = newProposal(creator)
	np.Mechanism = 0
	signProposal(&np, creator)
	pr, err = g.ProposalNew(np)
	if err != nil {
		t.Fatalf("ProposalNew with unset mechanism: %v", err)
	}
	if pr.Mechanism != v1.VoteMechanismSimple {
		t.Errorf("got mechanism %v, want %v",
			v1.VoteMechanism[pr.Mechanism],
			v1.VoteMechanism[v1.VoteMechanismSimple])
	}
}

func TestProposalGet(t *testing.T) {
	g, _ := newTestGov(t)
	creator := newTestIdentity(t)

	// An unknown proposal must fail with a not found error
	_, err := g.ProposalGet(0)
	verifyUserError(t, err, v1.ErrorStatusProposalNotFound)

	pr, err := g.ProposalNew(newProposal(creator))
	if err != nil {
		t.Fatalf("ProposalNew: %v", err)
	}
	stored, err := g.ProposalGet(pr.ID)
	if err != nil {
		t.Fatalf("ProposalGet: %v", err)
	}
	diff := unittest.DeepEqual(*stored, *pr)
	if diff != "" {
		t.Errorf("%v", diff)
	}
}

func TestProposalEnd(t *testing.T) {
	g, _ := newTestGov(t)
	creator := newTestIdentity(t)
	voters := []*identity.FullIdentity{
		newTestIdentity(t),
		newTestIdentity(t),
		newTestIdentity(t),
	}

	// An unknown proposal must fail with a not found error
	_, _, err := g.ProposalEnd(v1.EndProposal{ProposalID: 0})
	verifyUserError(t, err, v1.ErrorStatusProposalNotFound)

	pr, err := g.ProposalNew(newProposal(creator))
	if err != nil {
		t.Fatalf("ProposalNew: %v", err)
	}

	// Ending a proposal whose voting period is still in progress
	// must fail.
	_, _, err = g.ProposalEnd(v1.EndProposal{ProposalID: pr.ID})
	verifyUserError(t, err, v1.ErrorStatusProposalNotActive)

	// Cast some votes and run out the voting period. Option 1
	// receives more weight than option 0.
	for i, option := range []uint64{1, 1, 0} {
		_, _, err = g.VoteCast(newCastVote(voters[i], pr.ID, option))
		if err != nil {
			t.Fatalf("VoteCast: %v", err)
		}
	}
	proposalSetEndTime(t, g, pr.ID, time.Now().Unix()-1)

	ended, winner, err := g.ProposalEnd(v1.EndProposal{ProposalID: pr.ID})
	if err != nil {
		t.Fatalf("ProposalEnd: %v", err)
	}
	if ended.Status != v1.PropStatusEnded {
		t.Errorf("got status %v, want %v", v1.PropStatus[ended.Status],
			v1.PropStatus[v1.PropStatusEnded])
	}
	if winner != 1 {
		t.Errorf("got winning option %v, want 1", winner)
	}

	// The status change must have been persisted
	stored, err := g.ProposalGet(pr.ID)
	if err != nil {
		t.Fatalf("ProposalGet: %v", err)
	}
	if stored.Status != v1.PropStatusEnded {
		t.Errorf("got stored status %v, want %v",
			v1.PropStatus[stored.Status],
			v1.PropStatus[v1.PropStatusEnded])
	}

	// Ending a proposal twice must fail
	_, _, err = g.ProposalEnd(v1.EndProposal{ProposalID: pr.ID})
	verifyUserError(t, err, v1.ErrorStatusProposalNotActive)

	// A cancelled proposal cannot be ended, even after its voting
	// period has run out.
	cr, err := g.ProposalNew(newProposal(creator))
	if err != nil {
		t.Fatalf("ProposalNew: %v", err)
	}
	_, err = g.ProposalCancel(newCancelProposal(creator, cr.ID))
	if err != nil {
		t.Fatalf("ProposalCancel: %v", err)
	}
	proposalSetEndTime(t, g, cr.ID, time.Now().Unix()-1)
	_, _, err = g.ProposalEnd(v1.EndProposal{ProposalID: cr.ID})
	verifyUserError(t, err, v1.ErrorStatusProposalNotActive)
}

func TestProposalCancel(t *testing.T) {
	g, owner := newTestGov(t)
	creator := newTestIdentity(t)
	voter := newTestIdentity(t)

	// An unknown proposal must fail with a not found error
	_, err := g.ProposalCancel(newCancelProposal(creator, 0))
	verifyUserError(t, err, v1.ErrorStatusProposalNotFound)

	pr, err := g.ProposalNew(newProposal(creator))
	if err != nil {
		t.Fatalf("ProposalNew: %v", err)
	}

	// A random identity must not be able to cancel the proposal
	rando := newTestIdentity(t)
	_, err = g.ProposalCancel(newCancelProposal(rando, pr.ID))
	verifyUserError(t, err, v1.ErrorStatusUnauthorized)

	// An invalid signature must be rejected
	cp := newCancelProposal(creator, pr.ID)
	cp.Signature = signHex(creator, "wrong message")
	_, err = g.ProposalCancel(cp)
	verifyUserError(t, err, v1.ErrorStatusInvalidSignature)

	// The creator is allowed to cancel
	cancelled, err := g.ProposalCancel(newCancelProposal(creator, pr.ID))
	if err != nil {
		t.Fatalf("ProposalCancel: %v", err)
	}
	if cancelled.Status != v1.PropStatusCancelled {
		t.Errorf("got status %v, want %v",
			v1.PropStatus[cancelled.Status],
			v1.PropStatus[v1.PropStatusCancelled])
	}

	// Votes on a cancelled proposal must fail even though the voting
	// period has not run out.
	_, _, err = g.VoteCast(newCastVote(voter, pr.ID, 0))
	verifyUserError(t, err, v1.ErrorStatusProposalNotActive)

	// Cancelling twice must fail
	_, err = g.ProposalCancel(newCancelProposal(creator, pr.ID))
	verifyUserError(t, err, v1.ErrorStatusProposalNotActive)

	// The registry owner is allowed to cancel any active proposal
	pr, err = g.ProposalNew(newProposal(creator))
	if err != nil {
		t.Fatalf("ProposalNew: %v", err)
	}
	cancelled, err = g.ProposalCancel(newCancelProposal(owner, pr.ID))
	if err != nil {
		t.Fatalf("ProposalCancel by owner: %v", err)
	}
	if cancelled.Status != v1.PropStatusCancelled {
		t.Errorf("got status %v, want %v",
			v1.PropStatus[cancelled.Status],
			v1.PropStatus[v1.PropStatusCancelled])
	}

	// An ended proposal cannot be cancelled
	pr, err = g.ProposalNew(newProposal(creator))
	if err != nil {
		t.Fatalf("ProposalNew: %v", err)
	}
	proposalSetEndTime(t, g, pr.ID, time.Now().Unix()-1)
	_, _, err = g.ProposalEnd(v1.EndProposal{ProposalID: pr.ID})
	if err != nil {
		t.Fatalf("ProposalEnd: %v", err)
	}
	_, err = g.ProposalCancel(newCancelProposal(creator, pr.ID))
	verifyUserError(t, err, v1.ErrorStatusProposalNotActive)
}
