// Copyright (c) 2020-2022 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	v1 "github.com/decred/agora/api/v1"
	"github.com/decred/agora/gov"
	"github.com/decred/agora/util"
	"github.com/decred/agora/version"
)

func (a *agora) getIdentity(w http.ResponseWriter, r *http.Request) {
	var t v1.Identity
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&t); err != nil {
		a.respondWithUserError(w, v1.ErrorStatusInvalidRequestPayload, nil)
		return
	}

	challenge, err := hex.DecodeString(t.Challenge)
	if err != nil || len(challenge) != v1.ChallengeSize {
		a.respondWithUserError(w, v1.ErrorStatusInvalidChallenge, nil)
		return
	}
	response := a.identity.SignMessage(challenge)

	reply := v1.IdentityReply{
		PublicKey: hex.EncodeToString(a.identity.Public.Key[:]),
		Response:  hex.EncodeToString(response[:]),
	}

	util.RespondWithJSON(w, http.StatusOK, reply)
}

func (a *agora) policy(w http.ResponseWriter, r *http.Request) {
	reply := v1.PolicyReply{
		Version:       version.String(),
		BuildVersion:  version.BuildMainVersion(),
		MinDuration:   v1.MinDuration,
		MaxDuration:   v1.MaxDuration,
		MaxOptions:    v1.MaxOptions,
		ChallengeSize: v1.ChallengeSize,
	}

	util.RespondWithJSON(w, http.StatusOK, reply)
}

func (a *agora) newProposal(w http.ResponseWriter, r *http.Request) {
	var t v1.NewProposal
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&t); err != nil {
		a.respondWithUserError(w, v1.ErrorStatusInvalidRequestPayload, nil)
		return
	}

	challenge, err := hex.DecodeString(t.Challenge)
	if err != nil || len(challenge) != v1.ChallengeSize {
		log.Errorf("%v newProposal: invalid challenge", remoteAddr(r))
		a.respondWithUserError(w, v1.ErrorStatusInvalidChallenge, nil)
		return
	}

	log.Infof("New proposal submitted %v", remoteAddr(r))

	pr, err := a.gov.ProposalNew(t)
	if err != nil {
		// Check for user error.
		var ue gov.UserError
		if errors.As(err, &ue) {
			log.Errorf("%v newProposal user error: %v",
				remoteAddr(r), ue)
			a.respondWithUserError(w, ue.ErrorCode, ue.ErrorContext)
			return
		}

		// Generic internal error.
		errorCode := time.Now().Unix()
		log.Errorf("%v newProposal error code %v: %v", remoteAddr(r),
			errorCode, err)
		a.respondWithServerError(w, errorCode)
		return
	}

	response := a.identity.SignMessage(challenge)
	reply := v1.NewProposalReply{
		Response: hex.EncodeToString(response[:]),
		Proposal: *pr,
	}

	log.Infof("New proposal accepted %v: id %v", remoteAddr(r), pr.ID)

	util.RespondWithJSON(w, http.StatusOK, reply)
}

func (a *agora) endProposal(w http.ResponseWriter, r *http.Request) {
	var t v1.EndProposal
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&t); err != nil {
		a.respondWithUserError(w, v1.ErrorStatusInvalidRequestPayload, nil)
		return
	}

	challenge, err := hex.DecodeString(t.Challenge)
	if err != nil || len(challenge) != v1.ChallengeSize {
		log.Errorf("%v endProposal: invalid challenge", remoteAddr(r))
		a.respondWithUserError(w, v1.ErrorStatusInvalidChallenge, nil)
		return
	}

	pr, winner, err := a.gov.ProposalEnd(t)
	if err != nil {
		var ue gov.UserError
		if errors.As(err, &ue) {
			log.Errorf("%v endProposal user error: %v",
				remoteAddr(r), ue)
			a.respondWithUserError(w, ue.ErrorCode, ue.ErrorContext)
			return
		}

		errorCode := time.Now().Unix()
		log.Errorf("%v endProposal error code %v: %v", remoteAddr(r),
			errorCode, err)
		a.respondWithServerError(w, errorCode)
		return
	}

	response := a.identity.SignMessage(challenge)
	reply := v1.EndProposalReply{
		Response:      hex.EncodeToString(response[:]),
		Proposal:      *pr,
		WinningOption: winner,
	}

	log.Infof("Proposal ended %v: id %v winner %v", remoteAddr(r), pr.ID,
		winner)

	util.RespondWithJSON(w, http.StatusOK, reply)
}

func (a *agora) cancelProposal(w http.ResponseWriter, r *http.Request) {
	var t v1.CancelProposal
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&t); err != nil {
		a.respondWithUserError(w, v1.ErrorStatusInvalidRequestPayload, nil)
		return
	}

	challenge, err := hex.DecodeString(t.Challenge)
	if err != nil || len(challenge) != v1.ChallengeSize {
		log.Errorf("%v cancelProposal: invalid challenge", remoteAddr(r))
		a.respondWithUserError(w, v1.ErrorStatusInvalidChallenge, nil)
		return
	}

	pr, err := a.gov.ProposalCancel(t)
	if err != nil {
		var ue gov.UserError
		if errors.As(err, &ue) {
			log.Errorf("%v cancelProposal user error: %v",
				remoteAddr(r), ue)
			a.respondWithUserError(w, ue.ErrorCode, ue.ErrorContext)
			return
		}

		errorCode := time.Now().Unix()
		log.Errorf("%v cancelProposal error code %v: %v", remoteAddr(r),
			errorCode, err)
		a.respondWithServerError(w, errorCode)
		return
	}

	response := a.identity.SignMessage(challenge)
	reply := v1.CancelProposalReply{
		Response: hex.EncodeToString(response[:]),
		Proposal: *pr,
	}

	log.Infof("Proposal cancelled %v: id %v", remoteAddr(r), pr.ID)

	util.RespondWithJSON(w, http.StatusOK, reply)
}

func (a *agora) castVote(w http.ResponseWriter, r *http.Request) {
	var t v1.CastVote
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&t); err != nil {
		a.respondWithUserError(w, v1.ErrorStatusInvalidRequestPayload, nil)
		return
	}

	challenge, err := hex.DecodeString(t.Challenge)
	if err != nil || len(challenge) != v1.ChallengeSize {
		log.Errorf("%v castVote: invalid challenge", remoteAddr(r))
		a.respondWithUserError(w, v1.ErrorStatusInvalidChallenge, nil)
		return
	}

	vote, receipt, err := a.gov.VoteCast(t)
	if err != nil {
		var ue gov.UserError
		if errors.As(err, &ue) {
			log.Errorf("%v castVote user error: %v",
				remoteAddr(r), ue)
			a.respondWithUserError(w, ue.ErrorCode, ue.ErrorContext)
			return
		}

		errorCode := time.Now().Unix()
		log.Errorf("%v castVote error code %v: %v", remoteAddr(r),
			errorCode, err)
		a.respondWithServerError(w, errorCode)
		return
	}

	response := a.identity.SignMessage(challenge)
	reply := v1.CastVoteReply{
		Response: hex.EncodeToString(response[:]),
		Receipt:  receipt,
		Weight:   vote.Weight,
	}

	log.Infof("Vote cast %v: proposal %v option %v weight %v",
		remoteAddr(r), vote.ProposalID, vote.Option, vote.Weight)

	util.RespondWithJSON(w, http.StatusOK, reply)
}

func (a *agora) delegateVote(w http.ResponseWriter, r *http.Request) {
	var t v1.DelegateVote
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&t); err != nil {
		a.respondWithUserError(w, v1.ErrorStatusInvalidRequestPayload, nil)
		return
	}

	challenge, err := hex.DecodeString(t.Challenge)
	if err != nil || len(challenge) != v1.ChallengeSize {
		log.Errorf("%v delegateVote: invalid challenge", remoteAddr(r))
		a.respondWithUserError(w, v1.ErrorStatusInvalidChallenge, nil)
		return
	}

	delegation, receipt, err := a.gov.VoteDelegate(t)
	if err != nil {
		var ue gov.UserError
		if errors.As(err, &ue) {
			log.Errorf("%v delegateVote user error: %v",
				remoteAddr(r), ue)
			a.respondWithUserError(w, ue.ErrorCode, ue.ErrorContext)
			return
		}

		errorCode := time.Now().Unix()
		log.Errorf("%v delegateVote error code %v: %v", remoteAddr(r),
			errorCode, err)
		a.respondWithServerError(w, errorCode)
		return
	}

	response := a.identity.SignMessage(challenge)
	reply := v1.DelegateVoteReply{
		Response: hex.EncodeToString(response[:]),
		Receipt:  receipt,
	}

	log.Infof("Vote delegated %v: proposal %v delegate %v",
		remoteAddr(r), delegation.ProposalID, delegation.Delegate)

	util.RespondWithJSON(w, http.StatusOK, reply)
}

func (a *agora) inventory(w http.ResponseWriter, r *http.Request) {
	var t v1.Inventory
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&t); err != nil {
		a.respondWithUserError(w, v1.ErrorStatusInvalidRequestPayload, nil)
		return
	}

	challenge, err := hex.DecodeString(t.Challenge)
	if err != nil || len(challenge) != v1.ChallengeSize {
		log.Errorf("%v inventory: invalid challenge", remoteAddr(r))
		a.respondWithUserError(w, v1.ErrorStatusInvalidChallenge, nil)
		return
	}

	inv, err := a.gov.Inventory()
	if err != nil {
		errorCode := time.Now().Unix()
		log.Errorf("%v inventory error code %v: %v", remoteAddr(r),
			errorCode, err)
		a.respondWithServerError(w, errorCode)
		return
	}

	response := a.identity.SignMessage(challenge)
	reply := v1.InventoryReply{
		Response:  hex.EncodeToString(response[:]),
		Active:    inv.Active,
		Ended:     inv.Ended,
		Cancelled: inv.Cancelled,
	}

	util.RespondWithJSON(w, http.StatusOK, reply)
}

func (a *agora) proposalDetails(w http.ResponseWriter, r *http.Request) {
	var t v1.ProposalDetails
	err := util.ParseGetParams(r, &t)
	if err != nil {
		a.respondWithUserError(w, v1.ErrorStatusInvalidRequestPayload, nil)
		return
	}

	pr, err := a.gov.ProposalGet(t.ID)
	if err != nil {
		var ue gov.UserError
		if errors.As(err, &ue) {
			a.respondWithUserError(w, ue.ErrorCode, ue.ErrorContext)
			return
		}

		errorCode := time.Now().Unix()
		log.Errorf("%v proposalDetails error code %v: %v", remoteAddr(r),
			errorCode, err)
		a.respondWithServerError(w, errorCode)
		return
	}

	reply := v1.ProposalDetailsReply{
		Proposal: *pr,
	}

	util.RespondWithJSON(w, http.StatusOK, reply)
}

func (a *agora) proposalCount(w http.ResponseWriter, r *http.Request) {
	count, err := a.gov.ProposalCount()
	if err != nil {
		errorCode := time.Now().Unix()
		log.Errorf("%v proposalCount error code %v: %v", remoteAddr(r),
			errorCode, err)
		a.respondWithServerError(w, errorCode)
		return
	}

	reply := v1.ProposalCountReply{
		Count: count,
	}

	util.RespondWithJSON(w, http.StatusOK, reply)
}

func (a *agora) voteCount(w http.ResponseWriter, r *http.Request) {
	var t v1.VoteCount
	err := util.ParseGetParams(r, &t)
	if err != nil {
		a.respondWithUserError(w, v1.ErrorStatusInvalidRequestPayload, nil)
		return
	}

	tally, err := a.gov.TallyOf(t.ID, t.Option)
	if err != nil {
		var ue gov.UserError
		if errors.As(err, &ue) {
			a.respondWithUserError(w, ue.ErrorCode, ue.ErrorContext)
			return
		}

		errorCode := time.Now().Unix()
		log.Errorf("%v voteCount error code %v: %v", remoteAddr(r),
			errorCode, err)
		a.respondWithServerError(w, errorCode)
		return
	}

	reply := v1.VoteCountReply{
		Tally: tally,
	}

	util.RespondWithJSON(w, http.StatusOK, reply)
}

func (a *agora) userVote(w http.ResponseWriter, r *http.Request) {
	var t v1.UserVote
	err := util.ParseGetParams(r, &t)
	if err != nil {
		a.respondWithUserError(w, v1.ErrorStatusInvalidRequestPayload, nil)
		return
	}

	vote, err := a.gov.VoteOf(t.ID, t.PublicKey)
	if err != nil {
		var ue gov.UserError
		if errors.As(err, &ue) {
			a.respondWithUserError(w, ue.ErrorCode, ue.ErrorContext)
			return
		}

		errorCode := time.Now().Unix()
		log.Errorf("%v userVote error code %v: %v", remoteAddr(r),
			errorCode, err)
		a.respondWithServerError(w, errorCode)
		return
	}

	// Vote is nil when the voter has not cast a vote for the proposal.
	reply := v1.UserVoteReply{
		Vote: vote,
	}

	util.RespondWithJSON(w, http.StatusOK, reply)
}

func (a *agora) winner(w http.ResponseWriter, r *http.Request) {
	var t v1.Winner
	err := util.ParseGetParams(r, &t)
	if err != nil {
		a.respondWithUserError(w, v1.ErrorStatusInvalidRequestPayload, nil)
		return
	}

	winner, err := a.gov.Winner(t.ID)
	if err != nil {
		var ue gov.UserError
		if errors.As(err, &ue) {
			a.respondWithUserError(w, ue.ErrorCode, ue.ErrorContext)
			return
		}

		errorCode := time.Now().Unix()
		log.Errorf("%v winner error code %v: %v", remoteAddr(r),
			errorCode, err)
		a.respondWithServerError(w, errorCode)
		return
	}

	reply := v1.WinnerReply{
		WinningOption: winner,
	}

	util.RespondWithJSON(w, http.StatusOK, reply)
}

func (a *agora) pause(w http.ResponseWriter, r *http.Request) {
	var t v1.Pause
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&t); err != nil {
		a.respondWithUserError(w, v1.ErrorStatusInvalidRequestPayload, nil)
		return
	}

	challenge, err := hex.DecodeString(t.Challenge)
	if err != nil || len(challenge) != v1.ChallengeSize {
		log.Errorf("%v pause: invalid challenge", remoteAddr(r))
		a.respondWithUserError(w, v1.ErrorStatusInvalidChallenge, nil)
		return
	}

	err = a.gov.Pause(t)
	if err != nil {
		var ue gov.UserError
		if errors.As(err, &ue) {
			log.Errorf("%v pause user error: %v", remoteAddr(r), ue)
			a.respondWithUserError(w, ue.ErrorCode, ue.ErrorContext)
			return
		}

		errorCode := time.Now().Unix()
		log.Errorf("%v pause error code %v: %v", remoteAddr(r),
			errorCode, err)
		a.respondWithServerError(w, errorCode)
		return
	}

	response := a.identity.SignMessage(challenge)
	reply := v1.PauseReply{
		Response: hex.EncodeToString(response[:]),
	}

	util.RespondWithJSON(w, http.StatusOK, reply)
}

func (a *agora) unpause(w http.ResponseWriter, r *http.Request) {
	var t v1.Unpause
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&t); err != nil {
		a.respondWithUserError(w, v1.ErrorStatusInvalidRequestPayload, nil)
		return
	}

	challenge, err := hex.DecodeString(t.Challenge)
	if err != nil || len(challenge) != v1.ChallengeSize {
		log.Errorf("%v unpause: invalid challenge", remoteAddr(r))
		a.respondWithUserError(w, v1.ErrorStatusInvalidChallenge, nil)
		return
	}

	err = a.gov.Unpause(t)
	if err != nil {
		var ue gov.UserError
		if errors.As(err, &ue) {
			log.Errorf("%v unpause user error: %v", remoteAddr(r), ue)
			a.respondWithUserError(w, ue.ErrorCode, ue.ErrorContext)
			return
		}

		errorCode := time.Now().Unix()
		log.Errorf("%v unpause error code %v: %v", remoteAddr(r),
			errorCode, err)
		a.respondWithServerError(w, errorCode)
		return
	}

	response := a.identity.SignMessage(challenge)
	reply := v1.UnpauseReply{
		Response: hex.EncodeToString(response[:]),
	}

	util.RespondWithJSON(w, http.StatusOK, reply)
}
