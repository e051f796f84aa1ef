// Copyright (c) 2017-2022 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package v1 contains the agorad API routes, request and reply structures,
// and error statuses.
package v1

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

type ErrorStatusT int
type PropStatusT int
type VoteMechanismT int

const (
	// Routes
	IdentityRoute        = "/v1/identity/"         // Retrieve server identity
	PolicyRoute          = "/v1/policy/"           // Retrieve policy
	NewProposalRoute     = "/v1/proposal/new/"     // Create new proposal
	EndProposalRoute     = "/v1/proposal/end/"     // Finalize an expired proposal
	CancelProposalRoute  = "/v1/proposal/cancel/"  // Cancel proposal
	ProposalDetailsRoute = "/v1/proposal/details/" // Retrieve proposal
	ProposalCountRoute   = "/v1/proposal/count/"   // Retrieve proposal count
	WinnerRoute          = "/v1/proposal/winner/"  // Retrieve winning option
	InventoryRoute       = "/v1/proposal/inventory/"
	CastVoteRoute        = "/v1/vote/cast/"     // Cast a vote
	DelegateVoteRoute    = "/v1/vote/delegate/" // Delegate voting right
	VoteCountRoute       = "/v1/vote/count/"    // Retrieve option tally
	UserVoteRoute        = "/v1/vote/user/"     // Retrieve a voter's vote

	// Auth required
	PauseRoute   = "/v1/pause/"   // Pause voting activity
	UnpauseRoute = "/v1/unpause/" // Resume voting activity

	// ChallengeSize is the size of the client challenge in bytes. All
	// POST commands carry a hex encoded challenge of this size that the
	// server signs in its reply.
	ChallengeSize = 32

	// Proposal policy. Created proposals must adhere to these or they
	// will be rejected.
	MaxOptions          = 10      // Maximum number of vote options
	MinDuration   int64 = 86400   // Minimum voting period in seconds (1 day)
	MaxDuration   int64 = 2592000 // Maximum voting period in seconds (30 days)

	// Error status codes
	ErrorStatusInvalid               ErrorStatusT = 0
	ErrorStatusInvalidRequestPayload ErrorStatusT = 1
	ErrorStatusInvalidChallenge      ErrorStatusT = 2
	ErrorStatusInvalidPublicKey      ErrorStatusT = 3
	ErrorStatusInvalidSignature      ErrorStatusT = 4
	ErrorStatusInvalidRPCCredentials ErrorStatusT = 5
	ErrorStatusEmptyTitle            ErrorStatusT = 6
	ErrorStatusEmptyOptions          ErrorStatusT = 7
	ErrorStatusTooManyOptions        ErrorStatusT = 8
	ErrorStatusInvalidDuration       ErrorStatusT = 9
	ErrorStatusInvalidOption         ErrorStatusT = 10
	ErrorStatusProposalNotFound      ErrorStatusT = 11
	ErrorStatusProposalNotActive     ErrorStatusT = 12
	ErrorStatusProposalEnded         ErrorStatusT = 13
	ErrorStatusAlreadyVoted          ErrorStatusT = 14
	ErrorStatusUnauthorized          ErrorStatusT = 15
	ErrorStatusVotingPaused          ErrorStatusT = 16

	ErrorStatusLast ErrorStatusT = 17

	// Proposal status codes
	PropStatusInvalid   PropStatusT = 0 // Invalid status
	PropStatusActive    PropStatusT = 1 // Proposal is accepting votes
	PropStatusEnded     PropStatusT = 2 // Voting period has been finalized
	PropStatusCancelled PropStatusT = 3 // Proposal has been cancelled

	PropStatusLast PropStatusT = 4

	// Vote mechanism codes. The mechanism determines how a caller
	// identity is converted into a vote weight.
	VoteMechanismInvalid   VoteMechanismT = 0 // Invalid mechanism
	VoteMechanismSimple    VoteMechanismT = 1 // One voter, one vote
	VoteMechanismWeighted  VoteMechanismT = 2 // Weight from balance lookup
	VoteMechanismQuadratic VoteMechanismT = 3 // Square root of balance

	VoteMechanismLast VoteMechanismT = 4

	// Default network bits
	DefaultMainnetHost = "agora.decred.org"
	DefaultMainnetPort = "49152"
	DefaultTestnetHost = "agora-testnet.decred.org"
	DefaultTestnetPort = "59152"

	Forward = "X-Forwarded-For"
)

var (
	// ErrorStatus converts error status codes to human readable text.
	ErrorStatus = map[ErrorStatusT]string{
		ErrorStatusInvalid:               "invalid status",
		ErrorStatusInvalidRequestPayload: "invalid request payload",
		ErrorStatusInvalidChallenge:      "invalid challenge",
		ErrorStatusInvalidPublicKey:      "invalid public key",
		ErrorStatusInvalidSignature:      "invalid signature",
		ErrorStatusInvalidRPCCredentials: "invalid RPC client credentials",
		ErrorStatusEmptyTitle:            "title is empty",
		ErrorStatusEmptyOptions:          "vote option is empty",
		ErrorStatusTooManyOptions:        "too many vote options",
		ErrorStatusInvalidDuration:       "invalid voting period duration",
		ErrorStatusInvalidOption:         "invalid vote option",
		ErrorStatusProposalNotFound:      "proposal not found",
		ErrorStatusProposalNotActive:     "proposal is not active",
		ErrorStatusProposalEnded:         "voting period has ended",
		ErrorStatusAlreadyVoted:          "vote already cast",
		ErrorStatusUnauthorized:          "unauthorized",
		ErrorStatusVotingPaused:          "voting activity is paused",
	}

	// PropStatus converts proposal status codes to human readable text.
	PropStatus = map[PropStatusT]string{
		PropStatusInvalid:   "invalid status",
		PropStatusActive:    "active",
		PropStatusEnded:     "ended",
		PropStatusCancelled: "cancelled",
	}

	// VoteMechanism converts vote mechanism codes to human readable text.
	VoteMechanism = map[VoteMechanismT]string{
		VoteMechanismInvalid:   "invalid mechanism",
		VoteMechanismSimple:    "simple",
		VoteMechanismWeighted:  "weighted",
		VoteMechanismQuadratic: "quadratic",
	}
)

// NewProposalMessage returns the message that is signed when submitting a new
// proposal. The message is the hex encoded SHA256 digest of the proposal
// fields.
func NewProposalMessage(title, description string, options []string, duration int64, mechanism VoteMechanismT, quorum uint64) string {
	h := sha256.New()
	h.Write([]byte(title))
	h.Write([]byte(description))
	for _, v := range options {
		h.Write([]byte(v))
	}
	h.Write([]byte(strconv.FormatInt(duration, 10)))
	h.Write([]byte(strconv.FormatInt(int64(mechanism), 10)))
	h.Write([]byte(strconv.FormatUint(quorum, 10)))
	return hex.EncodeToString(h.Sum(nil))
}

// CastVoteMessage returns the message that is signed when casting a vote.
func CastVoteMessage(proposalID, option uint64) string {
	return fmt.Sprintf("vote:%v:%v", proposalID, option)
}

// DelegateVoteMessage returns the message that is signed when delegating a
// voting right. The delegate is the hex encoded public key of the identity
// that is being delegated to.
func DelegateVoteMessage(proposalID uint64, delegate string) string {
	return fmt.Sprintf("delegate:%v:%v", proposalID, delegate)
}

// CancelProposalMessage returns the message that is signed when cancelling a
// proposal.
func CancelProposalMessage(proposalID uint64) string {
	return fmt.Sprintf("cancel:%v", proposalID)
}

// Messages that are signed by the registry owner when toggling the pause
// gate.
const (
	PauseMessage   = "pause"
	UnpauseMessage = "unpause"
)

// ProposalRecord describes a proposal and the current state of its voting
// period.
type ProposalRecord struct {
	ID               uint64         `json:"id"`                    // Proposal ID
	Creator          string         `json:"creator"`               // Creator public key
	Title            string         `json:"title"`                 // Proposal title
	Description      string         `json:"description,omitempty"` // Proposal description
	Options          []string       `json:"options"`               // Ordered vote options
	StartTime        int64          `json:"starttime"`             // Voting start, unix time
	EndTime          int64          `json:"endtime"`               // Voting end, unix time
	Status           PropStatusT    `json:"status"`                // Current status
	Mechanism        VoteMechanismT `json:"mechanism"`             // Weighting mechanism
	Quorum           uint64         `json:"quorum"`                // Quorum weight, 0 is disabled
	TotalVotesWeight uint64         `json:"totalvotesweight"`      // Cumulative cast weight
	QuorumReached    bool           `json:"quorumreached"`         // Quorum has been met
}

// CastVoteDetails describes a single cast vote. The weight is computed at
// cast time and is frozen thereafter.
type CastVoteDetails struct {
	ProposalID uint64 `json:"proposalid"` // Proposal ID
	PublicKey  string `json:"publickey"`  // Voter public key
	Option     uint64 `json:"option"`     // Chosen option index
	Weight     uint64 `json:"weight"`     // Weight of the vote
	Timestamp  int64  `json:"timestamp"`  // Cast time, unix time
}

// DelegationDetails describes a voting right delegation. A delegation strips
// the delegator of its own voting right for the proposal. It does not cast a
// vote on the delegate's behalf.
type DelegationDetails struct {
	ProposalID uint64 `json:"proposalid"` // Proposal ID
	PublicKey  string `json:"publickey"`  // Delegator public key
	Delegate   string `json:"delegate"`   // Delegate public key
	Timestamp  int64  `json:"timestamp"`  // Delegation time, unix time
}

// Identity requests the server identity.
type Identity struct {
	Challenge string `json:"challenge"` // Random challenge
}

// IdentityReply contains the server public identity.
type IdentityReply struct {
	Response  string `json:"response"`  // Signature of Challenge
	PublicKey string `json:"publickey"` // Public key
}

// Policy requests the server policy.
type Policy struct{}

// PolicyReply contains the server policy. Clients must adhere to these
// values when submitting proposals.
type PolicyReply struct {
	Version       string `json:"version"`      // Server version
	BuildVersion  string `json:"buildversion"` // Build version
	MinDuration   int64  `json:"minduration"`  // Min voting period in seconds
	MaxDuration   int64  `json:"maxduration"`  // Max voting period in seconds
	MaxOptions    uint64 `json:"maxoptions"`   // Max number of vote options
	ChallengeSize uint64 `json:"challengesize"`
}

// NewProposal creates a new proposal. The voting period starts immediately.
//
// Signature is the signature of the NewProposalMessage for the submitted
// fields. The public key of the signing identity becomes the proposal
// creator.
type NewProposal struct {
	Challenge   string         `json:"challenge"`             // Random challenge
	Title       string         `json:"title"`                 // Proposal title
	Description string         `json:"description,omitempty"` // Proposal description
	Options     []string       `json:"options"`               // Ordered vote options
	Duration    int64          `json:"duration"`              // Voting period in seconds
	Mechanism   VoteMechanismT `json:"mechanism"`             // Weighting mechanism
	Quorum      uint64         `json:"quorum"`                // Quorum weight, 0 disables
	PublicKey   string         `json:"publickey"`             // Creator public key
	Signature   string         `json:"signature"`             // Creator signature
}

// NewProposalReply returns the proposal that was created.
type NewProposalReply struct {
	Response string         `json:"response"` // Challenge response
	Proposal ProposalRecord `json:"proposal"`
}

// CastVote casts a vote for the given proposal. A voter may only vote once
// per proposal and the vote is immutable once cast.
//
// Signature is the signature of the CastVoteMessage for the submitted
// fields.
type CastVote struct {
	Challenge  string `json:"challenge"`  // Random challenge
	ProposalID uint64 `json:"proposalid"` // Proposal ID
	Option     uint64 `json:"option"`     // Chosen option index
	PublicKey  string `json:"publickey"`  // Voter public key
	Signature  string `json:"signature"`  // Voter signature
}

// CastVoteReply returns the weight that the cast vote was counted with and a
// server receipt. The receipt is the server signature of the client
// signature and proves that the server accepted the vote.
type CastVoteReply struct {
	Response string `json:"response"` // Challenge response
	Receipt  string `json:"receipt"`  // Server signature of client signature
	Weight   uint64 `json:"weight"`   // Weight the vote was counted with
}

// DelegateVote delegates the caller's voting right for the given proposal to
// the delegate. The caller may not have voted already and may no longer vote
// directly once delegated. The delegate's own voting right is unaffected.
//
// Signature is the signature of the DelegateVoteMessage for the submitted
// fields.
type DelegateVote struct {
	Challenge  string `json:"challenge"`  // Random challenge
	ProposalID uint64 `json:"proposalid"` // Proposal ID
	Delegate   string `json:"delegate"`   // Delegate public key
	PublicKey  string `json:"publickey"`  // Delegator public key
	Signature  string `json:"signature"`  // Delegator signature
}

// DelegateVoteReply returns a server receipt for the delegation.
type DelegateVoteReply struct {
	Response string `json:"response"` // Challenge response
	Receipt  string `json:"receipt"`  // Server signature of client signature
}

// EndProposal finalizes the voting period of a proposal whose end time has
// passed. The outcome of a proposal is determined by time, not by identity,
// so this command deliberately requires no credentials; any caller may
// trigger finalization once the deadline has passed.
type EndProposal struct {
	Challenge  string `json:"challenge"`  // Random challenge
	ProposalID uint64 `json:"proposalid"` // Proposal ID
}

// EndProposalReply returns the finalized proposal and the winning option.
type EndProposalReply struct {
	Response      string         `json:"response"` // Challenge response
	Proposal      ProposalRecord `json:"proposal"`
	WinningOption uint64         `json:"winningoption"`
}

// CancelProposal cancels an active proposal. Only the proposal creator or
// the registry owner may cancel.
//
// Signature is the signature of the CancelProposalMessage.
type CancelProposal struct {
	Challenge  string `json:"challenge"`  // Random challenge
	ProposalID uint64 `json:"proposalid"` // Proposal ID
	PublicKey  string `json:"publickey"`  // Caller public key
	Signature  string `json:"signature"`  // Caller signature
}

// CancelProposalReply returns the cancelled proposal.
type CancelProposalReply struct {
	Response string         `json:"response"` // Challenge response
	Proposal ProposalRecord `json:"proposal"`
}

// ProposalDetails retrieves a proposal. This is a public read; it carries no
// challenge.
type ProposalDetails struct {
	ID uint64 `schema:"id"` // Proposal ID
}

// ProposalDetailsReply returns the requested proposal.
type ProposalDetailsReply struct {
	Proposal ProposalRecord `json:"proposal"`
}

// ProposalCount retrieves the total number of proposals that have been
// created.
type ProposalCount struct{}

// ProposalCountReply returns the number of proposals that have been created.
// Proposal IDs are dense so this is also the next proposal ID.
type ProposalCountReply struct {
	Count uint64 `json:"count"`
}

// VoteCount retrieves the accumulated vote weight for a single option of a
// proposal.
type VoteCount struct {
	ID     uint64 `schema:"id"`     // Proposal ID
	Option uint64 `schema:"option"` // Option index
}

// VoteCountReply returns the accumulated weight for the option.
type VoteCountReply struct {
	Tally uint64 `json:"tally"`
}

// UserVote retrieves the vote that was cast by a voter for a proposal.
type UserVote struct {
	ID        uint64 `schema:"id"`        // Proposal ID
	PublicKey string `schema:"publickey"` // Voter public key
}

// UserVoteReply returns the voter's cast vote. Vote is nil when the voter
// has not cast a vote for the proposal.
type UserVoteReply struct {
	Vote *CastVoteDetails `json:"vote,omitempty"`
}

// Winner retrieves the winning option of a proposal. The winner is
// deterministic: the option with the highest tally wins and ties are broken
// by the lowest option index. A proposal with no cast votes reports option 0
// as the winner.
type Winner struct {
	ID uint64 `schema:"id"` // Proposal ID
}

// WinnerReply returns the winning option index.
type WinnerReply struct {
	WinningOption uint64 `json:"winningoption"`
}

// Inventory requests the proposal inventory, grouped by proposal status.
type Inventory struct {
	Challenge string `json:"challenge"` // Random challenge
}

// InventoryReply returns the proposal IDs for each status, newest first.
type InventoryReply struct {
	Response  string   `json:"response"` // Challenge response
	Active    []uint64 `json:"active"`
	Ended     []uint64 `json:"ended"`
	Cancelled []uint64 `json:"cancelled"`
}

// Pause stops all proposal creation, voting, and delegation activity until
// the registry is unpaused. Only the registry owner may pause.
//
// Signature is the owner's signature of PauseMessage.
type Pause struct {
	Challenge string `json:"challenge"` // Random challenge
	PublicKey string `json:"publickey"` // Owner public key
	Signature string `json:"signature"` // Owner signature
}

// PauseReply is the reply to the Pause command.
type PauseReply struct {
	Response string `json:"response"` // Challenge response
}

// Unpause resumes proposal creation, voting, and delegation activity. Only
// the registry owner may unpause.
//
// Signature is the owner's signature of UnpauseMessage.
type Unpause struct {
	Challenge string `json:"challenge"` // Random challenge
	PublicKey string `json:"publickey"` // Owner public key
	Signature string `json:"signature"` // Owner signature
}

// UnpauseReply is the reply to the Unpause command.
type UnpauseReply struct {
	Response string `json:"response"` // Challenge response
}

// UserErrorReply returns details about an error that occurred while trying
// to execute a command due to bad input from the client.
type UserErrorReply struct {
	ErrorCode    ErrorStatusT `json:"errorcode"`              // Numeric error code
	ErrorContext []string     `json:"errorcontext,omitempty"` // Additional error information
}

// ServerErrorReply returns an error code that can be correlated with server
// logs.
type ServerErrorReply struct {
	ErrorCode int64 `json:"code"` // Server error code
}
