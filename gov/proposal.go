// Copyright (c) 2022 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package gov

import (
	"fmt"
	"strings"
	"time"

	v1 "github.com/decred/agora/api/v1"
	"github.com/decred/agora/util"
)

// ProposalNew creates a new proposal and opens its voting period. The
// voting period starts immediately; it runs from the current time until the
// current time plus the provided duration.
//
// The public key of the signing identity becomes the proposal creator.
// Proposal IDs are issued sequentially starting at 0.
func (g *Gov) ProposalNew(np v1.NewProposal) (*v1.ProposalRecord, error) {
	log.Tracef("ProposalNew: %v", np.Title)

	if g.isPaused() {
		return nil, UserError{
			ErrorCode: v1.ErrorStatusVotingPaused,
		}
	}

	// Verify the creator signature
	msg := v1.NewProposalMessage(np.Title, np.Description, np.Options,
		np.Duration, np.Mechanism, np.Quorum)
	err := util.VerifySignature(np.Signature, np.PublicKey, msg)
	if err != nil {
		return nil, convertSignatureError(err)
	}

	// An unset mechanism defaults to the simple mechanism.
	mechanism := np.Mechanism
	if mechanism == v1.VoteMechanismInvalid {
		mechanism = v1.VoteMechanismSimple
	}
	switch mechanism {
	case v1.VoteMechanismSimple, v1.VoteMechanismWeighted,
		v1.VoteMechanismQuadratic:
		// Allowed
	default:
		return nil, UserError{
			ErrorCode:    v1.ErrorStatusInvalid,
			ErrorContext: []string{"unknown vote mechanism"},
		}
	}

	// Verify the proposal fields
	if strings.TrimSpace(np.Title) == "" {
		return nil, UserError{
			ErrorCode: v1.ErrorStatusEmptyTitle,
		}
	}
	if len(np.Options) == 0 {
		return nil, UserError{
			ErrorCode: v1.ErrorStatusEmptyOptions,
		}
	}
	for i, label := range np.Options {
		if strings.TrimSpace(label) == "" {
			return nil, UserError{
				ErrorCode:    v1.ErrorStatusEmptyOptions,
				ErrorContext: []string{fmt.Sprintf("option %v is empty", i)},
			}
		}
	}
	if len(np.Options) > v1.MaxOptions {
		return nil, UserError{
			ErrorCode: v1.ErrorStatusTooManyOptions,
			ErrorContext: []string{fmt.Sprintf("max options is %v",
				v1.MaxOptions)},
		}
	}
	if np.Duration < v1.MinDuration || np.Duration > v1.MaxDuration {
		return nil, UserError{
			ErrorCode: v1.ErrorStatusInvalidDuration,
			ErrorContext: []string{fmt.Sprintf("duration must be between "+
				"%v and %v seconds", v1.MinDuration, v1.MaxDuration)},
		}
	}

	// Proposal IDs are issued sequentially so creation must be
	// serialized.
	g.createMtx.Lock()
	defer g.createMtx.Unlock()

	now := time.Now().Unix()

	tx, cancel, err := g.db.Tx()
	if err != nil {
		return nil, err
	}
	defer cancel()

	proposalID, err := g.count(tx)
	if err != nil {
		return nil, err
	}

	pr := v1.ProposalRecord{
		ID:               proposalID,
		Creator:          np.PublicKey,
		Title:            np.Title,
		Description:      np.Description,
		Options:          np.Options,
		StartTime:        now,
		EndTime:          now + np.Duration,
		Status:           v1.PropStatusActive,
		Mechanism:        mechanism,
		Quorum:           np.Quorum,
		TotalVotesWeight: 0,
		QuorumReached:    false,
	}
	err = g.proposalInsert(tx, pr)
	if err != nil {
		return nil, err
	}

	// Seed a zeroed tally for every option so that casting a vote only
	// ever updates an existing tally record.
	for i := range pr.Options {
		err = g.tallyInsert(tx, optionTally{
			ProposalID: proposalID,
			Option:     uint64(i),
			Weight:     0,
		})
		if err != nil {
			return nil, err
		}
	}

	err = g.countSave(tx, proposalID+1)
	if err != nil {
		return nil, err
	}

	err = tx.Commit()
	if err != nil {
		return nil, err
	}

	g.events.Emit(EventTypeProposalNew, EventProposalNew{
		Proposal: pr,
	})

	log.Debugf("Proposal %v created by %v; voting ends at %v",
		pr.ID, pr.Creator, pr.EndTime)

	return &pr, nil
}

// ProposalGet returns the proposal record for the provided proposal ID.
func (g *Gov) ProposalGet(proposalID uint64) (*v1.ProposalRecord, error) {
	log.Tracef("ProposalGet: %v", proposalID)

	return g.proposal(g.db, proposalID)
}

// ProposalEnd transitions an active proposal whose voting period has run to
// completion to the ended status and resolves the winning option.
//
// Finalization is gated by time, not by identity, so any caller may end a
// proposal once its end time has passed. Attempting to end a proposal
// before its end time, or a proposal that is not active, fails with a
// ProposalNotActive error.
func (g *Gov) ProposalEnd(ep v1.EndProposal) (*v1.ProposalRecord, uint64, error) {
	log.Tracef("ProposalEnd: %v", ep.ProposalID)

	m := g.mutex(ep.ProposalID)
	m.Lock()
	defer m.Unlock()

	now := time.Now().Unix()

	tx, cancel, err := g.db.Tx()
	if err != nil {
		return nil, 0, err
	}
	defer cancel()

	pr, err := g.proposal(tx, ep.ProposalID)
	if err != nil {
		return nil, 0, err
	}
	switch pr.Status {
	case v1.PropStatusCancelled:
		return nil, 0, UserError{
			ErrorCode:    v1.ErrorStatusProposalNotActive,
			ErrorContext: []string{"proposal has been cancelled"},
		}
	case v1.PropStatusEnded:
		return nil, 0, UserError{
			ErrorCode:    v1.ErrorStatusProposalNotActive,
			ErrorContext: []string{"proposal has already ended"},
		}
	}
	if now < pr.EndTime {
		return nil, 0, UserError{
			ErrorCode: v1.ErrorStatusProposalNotActive,
			ErrorContext: []string{fmt.Sprintf("voting period is in "+
				"progress until %v", pr.EndTime)},
		}
	}

	pr.Status = v1.PropStatusEnded
	err = g.proposalUpdate(tx, *pr)
	if err != nil {
		return nil, 0, err
	}

	winner, err := g.winner(tx, pr)
	if err != nil {
		return nil, 0, err
	}

	err = tx.Commit()
	if err != nil {
		return nil, 0, err
	}

	g.events.Emit(EventTypeProposalEnded, EventProposalEnded{
		Proposal:      *pr,
		WinningOption: winner,
	})

	log.Debugf("Proposal %v ended; winning option %v", pr.ID, winner)

	return pr, winner, nil
}

// ProposalCancel cancels an active proposal. Cancellation is terminal; a
// cancelled proposal accepts no further votes and cannot be ended.
//
// Only the proposal creator and the registry owner are allowed to cancel a
// proposal.
func (g *Gov) ProposalCancel(cp v1.CancelProposal) (*v1.ProposalRecord, error) {
	log.Tracef("ProposalCancel: %v", cp.ProposalID)

	// Verify the caller signature
	msg := v1.CancelProposalMessage(cp.ProposalID)
	err := util.VerifySignature(cp.Signature, cp.PublicKey, msg)
	if err != nil {
		return nil, convertSignatureError(err)
	}

	m := g.mutex(cp.ProposalID)
	m.Lock()
	defer m.Unlock()

	tx, cancel, err := g.db.Tx()
	if err != nil {
		return nil, err
	}
	defer cancel()

	pr, err := g.proposal(tx, cp.ProposalID)
	if err != nil {
		return nil, err
	}

	// Only the proposal creator and the registry owner may cancel
	isCreator := cp.PublicKey == pr.Creator
	isOwner := g.owner != "" && cp.PublicKey == g.owner
	if !isCreator && !isOwner {
		return nil, UserError{
			ErrorCode: v1.ErrorStatusUnauthorized,
			ErrorContext: []string{"caller is not the proposal creator " +
				"or the registry owner"},
		}
	}

	switch pr.Status {
	case v1.PropStatusCancelled:
		return nil, UserError{
			ErrorCode:    v1.ErrorStatusProposalNotActive,
			ErrorContext: []string{"proposal has been cancelled"},
		}
	case v1.PropStatusEnded:
		return nil, UserError{
			ErrorCode:    v1.ErrorStatusProposalNotActive,
			ErrorContext: []string{"proposal has already ended"},
		}
	}

	pr.Status = v1.PropStatusCancelled
	err = g.proposalUpdate(tx, *pr)
	if err != nil {
		return nil, err
	}

	err = tx.Commit()
	if err != nil {
		return nil, err
	}

	g.events.Emit(EventTypeProposalCancelled, EventProposalCancelled{
		Proposal: *pr,
	})

	log.Debugf("Proposal %v cancelled by %v", pr.ID, cp.PublicKey)

	return pr, nil
}
