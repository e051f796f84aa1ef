// Copyright (c) 2022 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package gov

import v1 "github.com/decred/agora/api/v1"

const (
	// EventTypeProposalNew is emitted when a new proposal is created.
	EventTypeProposalNew = "gov-proposalnew"

	// EventTypeProposalEnded is emitted when a proposal is
	// transitioned to the ended status.
	EventTypeProposalEnded = "gov-proposalended"

	// EventTypeProposalCancelled is emitted when a proposal is
	// cancelled.
	EventTypeProposalCancelled = "gov-proposalcancelled"

	// EventTypeVoteCast is emitted when a vote is cast on a proposal.
	EventTypeVoteCast = "gov-votecast"

	// EventTypeVoteDelegated is emitted when a voting right is
	// delegated.
	EventTypeVoteDelegated = "gov-votedelegated"
)

// EventProposalNew is the event data for EventTypeProposalNew.
type EventProposalNew struct {
	Proposal v1.ProposalRecord
}

// EventProposalEnded is the event data for EventTypeProposalEnded.
type EventProposalEnded struct {
	Proposal      v1.ProposalRecord
	WinningOption uint64
}

// EventProposalCancelled is the event data for EventTypeProposalCancelled.
type EventProposalCancelled struct {
	Proposal v1.ProposalRecord
}

// EventVoteCast is the event data for EventTypeVoteCast.
type EventVoteCast struct {
	Vote v1.CastVoteDetails
}

// EventVoteDelegated is the event data for EventTypeVoteDelegated.
type EventVoteDelegated struct {
	Delegation v1.DelegationDetails
}
