// Copyright (c) 2022 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package gov

import (
	"encoding/hex"
	"testing"
	"time"

	v1 "github.com/decred/agora/api/v1"
	"github.com/decred/agora/api/v1/identity"
	"github.com/decred/agora/events"
	"github.com/decred/agora/store/localdb"
	"github.com/decred/agora/unittest"
	"github.com/decred/slog"
	"github.com/pkg/errors"
)

type testWriter struct {
	t *testing.T
}

func (w *testWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", p)
	return len(p), nil
}

// newTestGov returns a Gov context that has been setup for testing, along
// with the identity of the registry owner. The context is backed by a
// leveldb store that is cleaned up on test completion.
func newTestGov(t *testing.T) (*Gov, *identity.FullIdentity) {
	t.Helper()

	return newTestGovBalance(t, nil)
}

// newTestGovBalance returns a Gov context that uses the provided balance
// lookup for the weighted and quadratic vote mechanisms.
func newTestGovBalance(t *testing.T, balance BalanceLookup) (*Gov, *identity.FullIdentity) {
	t.Helper()

	UseLogger(slog.NewBackend(&testWriter{t}).Logger("TEST"))

	db, err := localdb.New(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("setup localdb: %v", err)
	}
	t.Cleanup(db.Close)

	serverID, err := identity.New()
	if err != nil {
		t.Fatalf("setup server identity: %v", err)
	}
	owner, err := identity.New()
	if err != nil {
		t.Fatalf("setup owner identity: %v", err)
	}

	g, err := New(serverID, db, events.NewManager(),
		owner.Public.String(), balance)
	if err != nil {
		t.Fatalf("setup gov: %v", err)
	}

	return g, owner
}

// newTestIdentity returns a new random identity.
func newTestIdentity(t *testing.T) *identity.FullIdentity {
	t.Helper()

	id, err := identity.New()
	if err != nil {
		t.Fatalf("new identity: %v", err)
	}
	return id
}

// signHex signs the provided message and returns the hex encoded
// signature.
func signHex(id *identity.FullIdentity, msg string) string {
	sig := id.SignMessage([]byte(msg))
	return hex.EncodeToString(sig[:])
}

// newProposal returns a NewProposal that has been populated with sane
// defaults and signed by the provided identity.
func newProposal(id *identity.FullIdentity) v1.NewProposal {
	np := v1.NewProposal{
		Title:     "Increase the block size",
		Options:   []string{"yes", "no", "abstain"},
		Duration:  v1.MinDuration,
		Mechanism: v1.VoteMechanismSimple,
	}
	signProposal(&np, id)
	return np
}

// signProposal signs the proposal fields and fills in the public key and
// signature.
func signProposal(np *v1.NewProposal, id *identity.FullIdentity) {
	msg := v1.NewProposalMessage(np.Title, np.Description, np.Options,
		np.Duration, np.Mechanism, np.Quorum)
	np.PublicKey = id.Public.String()
	np.Signature = signHex(id, msg)
}

// newCastVote returns a signed CastVote for the provided proposal and
// option.
func newCastVote(id *identity.FullIdentity, proposalID, option uint64) v1.CastVote {
	return v1.CastVote{
		ProposalID: proposalID,
		Option:     option,
		PublicKey:  id.Public.String(),
		Signature:  signHex(id, v1.CastVoteMessage(proposalID, option)),
	}
}

// newDelegateVote returns a signed DelegateVote for the provided proposal
// and delegate.
func newDelegateVote(id *identity.FullIdentity, proposalID uint64, delegate string) v1.DelegateVote {
	return v1.DelegateVote{
		ProposalID: proposalID,
		Delegate:   delegate,
		PublicKey:  id.Public.String(),
		Signature:  signHex(id, v1.DelegateVoteMessage(proposalID, delegate)),
	}
}

// newCancelProposal returns a signed CancelProposal for the provided
// proposal.
func newCancelProposal(id *identity.FullIdentity, proposalID uint64) v1.CancelProposal {
	return v1.CancelProposal{
		ProposalID: proposalID,
		PublicKey:  id.Public.String(),
		Signature:  signHex(id, v1.CancelProposalMessage(proposalID)),
	}
}

// proposalSetEndTime rewrites the stored end time of a proposal. This lets
// tests exercise expired voting periods without having to wait out a real
// one.
func proposalSetEndTime(t *testing.T, g *Gov, proposalID uint64, endTime int64) {
	t.Helper()

	pr, err := g.proposal(g.db, proposalID)
	if err != nil {
		t.Fatalf("get proposal %v: %v", proposalID, err)
	}
	pr.EndTime = endTime
	blob, err := blobEncode(dataDescriptorProposal, *pr)
	if err != nil {
		t.Fatalf("encode proposal %v: %v", proposalID, err)
	}
	err = g.db.Update(map[string][]byte{
		keyProposal(proposalID): blob,
	}, false)
	if err != nil {
		t.Fatalf("update proposal %v: %v", proposalID, err)
	}
}

// verifyUserError verifies that the provided error is a UserError with the
// provided error code.
func verifyUserError(t *testing.T, err error, want v1.ErrorStatusT) {
	t.Helper()

	var ue UserError
	if !errors.As(err, &ue) {
		t.Fatalf("got error '%v', want user error %v", err,
			v1.ErrorStatus[want])
	}
	if ue.ErrorCode != want {
		t.Fatalf("got user error %v, want %v",
			v1.ErrorStatus[ue.ErrorCode], v1.ErrorStatus[want])
	}
}

func TestNew(t *testing.T) {
	UseLogger(slog.NewBackend(&testWriter{t}).Logger("TEST"))

	db, err := localdb.New(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("setup localdb: %v", err)
	}
	t.Cleanup(db.Close)

	serverID := newTestIdentity(t)
	owner := newTestIdentity(t)

	// Missing arguments
	_, err = New(nil, db, events.NewManager(), "", nil)
	if err == nil {
		t.Error("no error for a missing identity")
	}
	_, err = New(serverID, nil, events.NewManager(), "", nil)
	if err == nil {
		t.Error("no error for a missing store")
	}
	_, err = New(serverID, db, nil, "", nil)
	if err == nil {
		t.Error("no error for a missing event manager")
	}

	// Malformed owner key
	_, err = New(serverID, db, events.NewManager(), "junk", nil)
	if err == nil {
		t.Error("no error for a malformed owner key")
	}

	// An owner is optional
	_, err = New(serverID, db, events.NewManager(), "", nil)
	if err != nil {
		t.Errorf("New without owner: %v", err)
	}
	_, err = New(serverID, db, events.NewManager(),
		owner.Public.String(), nil)
	if err != nil {
		t.Errorf("New with owner: %v", err)
	}
}

func TestPause(t *testing.T) {
	g, owner := newTestGov(t)
	creator := newTestIdentity(t)
	voter := newTestIdentity(t)

	pr, err := g.ProposalNew(newProposal(creator))
	if err != nil {
		t.Fatalf("ProposalNew: %v", err)
	}

	// A random identity must not be able to pause the registry
	rando := newTestIdentity(t)
	err = g.Pause(v1.Pause{
		PublicKey: rando.Public.String(),
		Signature: signHex(rando, v1.PauseMessage),
	})
	verifyUserError(t, err, v1.ErrorStatusUnauthorized)

	// An invalid signature must be rejected
	err = g.Pause(v1.Pause{
		PublicKey: owner.Public.String(),
		Signature: signHex(owner, "not the pause message"),
	})
	verifyUserError(t, err, v1.ErrorStatusInvalidSignature)

	// Pause the registry
	err = g.Pause(v1.Pause{
		PublicKey: owner.Public.String(),
		Signature: signHex(owner, v1.PauseMessage),
	})
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}

	// Proposal creation, voting, and delegation must all fail while
	// the registry is paused.
	_, err = g.ProposalNew(newProposal(creator))
	verifyUserError(t, err, v1.ErrorStatusVotingPaused)

	_, _, err = g.VoteCast(newCastVote(voter, pr.ID, 0))
	verifyUserError(t, err, v1.ErrorStatusVotingPaused)

	delegate := newTestIdentity(t)
	_, _, err = g.VoteDelegate(newDelegateVote(voter, pr.ID,
		delegate.Public.String()))
	verifyUserError(t, err, v1.ErrorStatusVotingPaused)

	// Reads and the cancel transition remain available while the
	// registry is paused.
	_, err = g.ProposalGet(pr.ID)
	if err != nil {
		t.Errorf("ProposalGet while paused: %v", err)
	}
	_, err = g.ProposalCancel(newCancelProposal(creator, pr.ID))
	if err != nil {
		t.Errorf("ProposalCancel while paused: %v", err)
	}

	// A random identity must not be able to unpause the registry
	err = g.Unpause(v1.Unpause{
		PublicKey: rando.Public.String(),
		Signature: signHex(rando, v1.UnpauseMessage),
	})
	verifyUserError(t, err, v1.ErrorStatusUnauthorized)

	// Unpause the registry and verify that activity resumes
	err = g.Unpause(v1.Unpause{
		PublicKey: owner.Public.String(),
		Signature: signHex(owner, v1.UnpauseMessage),
	})
	if err != nil {
		t.Fatalf("Unpause: %v", err)
	}
	pr, err = g.ProposalNew(newProposal(creator))
	if err != nil {
		t.Fatalf("ProposalNew after unpause: %v", err)
	}
	_, _, err = g.VoteCast(newCastVote(voter, pr.ID, 0))
	if err != nil {
		t.Fatalf("VoteCast after unpause: %v", err)
	}
}

func TestProposalCount(t *testing.T) {
	g, _ := newTestGov(t)
	creator := newTestIdentity(t)

	// The count must be zero before any proposals have been created
	count, err := g.ProposalCount()
	if err != nil {
		t.Fatalf("ProposalCount: %v", err)
	}
	if count != 0 {
		t.Errorf("got count %v, want 0", count)
	}

	// IDs are issued sequentially starting at 0
	for want := uint64(0); want < 3; want++ {
		pr, err := g.ProposalNew(newProposal(creator))
		if err != nil {
			t.Fatalf("ProposalNew: %v", err)
		}
		if pr.ID != want {
			t.Errorf("got proposal ID %v, want %v", pr.ID, want)
		}
	}

	count, err = g.ProposalCount()
	if err != nil {
		t.Fatalf("ProposalCount: %v", err)
	}
	if count != 3 {
		t.Errorf("got count %v, want 3", count)
	}
}

func TestInventory(t *testing.T) {
	g, _ := newTestGov(t)
	creator := newTestIdentity(t)

	// The inventory of an empty registry is empty
	inv, err := g.Inventory()
	if err != nil {
		t.Fatalf("Inventory: %v", err)
	}
	if len(inv.Active)+len(inv.Ended)+len(inv.Cancelled) != 0 {
		t.Errorf("got a non-empty inventory: %v", inv)
	}

	// Create four proposals, then end proposal 1 and cancel
	// proposal 2.
	for i := 0; i < 4; i++ {
		_, err := g.ProposalNew(newProposal(creator))
		if err != nil {
			t.Fatalf("ProposalNew: %v", err)
		}
	}
	proposalSetEndTime(t, g, 1, time.Now().Unix()-1)
	_, _, err = g.ProposalEnd(v1.EndProposal{ProposalID: 1})
	if err != nil {
		t.Fatalf("ProposalEnd: %v", err)
	}
	_, err = g.ProposalCancel(newCancelProposal(creator, 2))
	if err != nil {
		t.Fatalf("ProposalCancel: %v", err)
	}

	// Proposals are categorized by their stored status and sorted
	// newest first. Proposal 1 has run out its voting period but
	// proposals 0 and 3 have not.
	inv, err = g.Inventory()
	if err != nil {
		t.Fatalf("Inventory: %v", err)
	}
	want := Inventory{
		Active:    []uint64{3, 0},
		Ended:     []uint64{1},
		Cancelled: []uint64{2},
	}
	diff := unittest.DeepEqual(*inv, want)
	if diff != "" {
		t.Errorf("%v", diff)
	}
}

func TestEvents(t *testing.T) {
	g, _ := newTestGov(t)
	creator := newTestIdentity(t)
	voter := newTestIdentity(t)
	delegator := newTestIdentity(t)
	delegate := newTestIdentity(t)

	// Register a listener for every event type. The channels are
	// buffered so that the engine never blocks on emit.
	listeners := make(map[string]chan interface{}, 5)
	for _, event := range []string{
		EventTypeProposalNew,
		EventTypeProposalEnded,
		EventTypeProposalCancelled,
		EventTypeVoteCast,
		EventTypeVoteDelegated,
	} {
		ch := make(chan interface{}, 2)
		g.events.Register(event, ch)
		listeners[event] = ch
	}

	// Run a full proposal lifecycle
	pr, err := g.ProposalNew(newProposal(creator))
	if err != nil {
		t.Fatalf("ProposalNew: %v", err)
	}
	vote, _, err := g.VoteCast(newCastVote(voter, pr.ID, 0))
	if err != nil {
		t.Fatalf("VoteCast: %v", err)
	}
	_, _, err = g.VoteDelegate(newDelegateVote(delegator, pr.ID,
		delegate.Public.String()))
	if err != nil {
		t.Fatalf("VoteDelegate: %v", err)
	}
	proposalSetEndTime(t, g, pr.ID, time.Now().Unix()-1)
	_, winner, err := g.ProposalEnd(v1.EndProposal{ProposalID: pr.ID})
	if err != nil {
		t.Fatalf("ProposalEnd: %v", err)
	}
	cr, err := g.ProposalNew(newProposal(creator))
	if err != nil {
		t.Fatalf("ProposalNew: %v", err)
	}
	_, err = g.ProposalCancel(newCancelProposal(creator, cr.ID))
	if err != nil {
		t.Fatalf("ProposalCancel: %v", err)
	}

	// Verify the event payloads
	e := receiveEvent(t, listeners[EventTypeProposalNew])
	n, ok := e.(EventProposalNew)
	if !ok {
		t.Fatalf("got event %T, want EventProposalNew", e)
	}
	if n.Proposal.ID != pr.ID {
		t.Errorf("got proposal %v, want %v", n.Proposal.ID, pr.ID)
	}

	e = receiveEvent(t, listeners[EventTypeVoteCast])
	vc, ok := e.(EventVoteCast)
	if !ok {
		t.Fatalf("got event %T, want EventVoteCast", e)
	}
	diff := unittest.DeepEqual(vc.Vote, *vote)
	if diff != "" {
		t.Errorf("%v", diff)
	}

	e = receiveEvent(t, listeners[EventTypeVoteDelegated])
	vd, ok := e.(EventVoteDelegated)
	if !ok {
		t.Fatalf("got event %T, want EventVoteDelegated", e)
	}
	if vd.Delegation.PublicKey != delegator.Public.String() {
		t.Errorf("got delegator %v, want %v", vd.Delegation.PublicKey,
			delegator.Public.String())
	}

	e = receiveEvent(t, listeners[EventTypeProposalEnded])
	en, ok := e.(EventProposalEnded)
	if !ok {
		t.Fatalf("got event %T, want EventProposalEnded", e)
	}
	if en.WinningOption != winner {
		t.Errorf("got winning option %v, want %v", en.WinningOption,
			winner)
	}
	if en.Proposal.Status != v1.PropStatusEnded {
		t.Errorf("got status %v, want %v",
			v1.PropStatus[en.Proposal.Status],
			v1.PropStatus[v1.PropStatusEnded])
	}

	e = receiveEvent(t, listeners[EventTypeProposalCancelled])
	ca, ok := e.(EventProposalCancelled)
	if !ok {
		t.Fatalf("got event %T, want EventProposalCancelled", e)
	}
	if ca.Proposal.ID != cr.ID {
		t.Errorf("got proposal %v, want %v", ca.Proposal.ID, cr.ID)
	}
}

// receiveEvent returns an event from the provided channel, failing the
// test if no event arrives in a reasonable amount of time.
func receiveEvent(t *testing.T, ch chan interface{}) interface{} {
	t.Helper()

	select {
	case e := <-ch:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for an event")
	}
	return nil
}
