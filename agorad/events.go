// Copyright (c) 2020-2022 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"github.com/decred/agora/gov"
)

func (a *agora) setupEventListeners() {
	// Setup process for each event:
	// 1. Create a channel for the event.
	// 2. Register the channel with the event manager.
	// 3. Launch an event handler to listen for events emitted into the
	//    channel by the event manager.

	log.Debugf("Setting up event listeners")

	// Proposal created
	ch := make(chan interface{})
	a.events.Register(gov.EventTypeProposalNew, ch)
	go a.handleEventProposalNew(ch)

	// Proposal ended
	ch = make(chan interface{})
	a.events.Register(gov.EventTypeProposalEnded, ch)
	go a.handleEventProposalEnded(ch)

	// Proposal cancelled
	ch = make(chan interface{})
	a.events.Register(gov.EventTypeProposalCancelled, ch)
	go a.handleEventProposalCancelled(ch)

	// Vote cast
	ch = make(chan interface{})
	a.events.Register(gov.EventTypeVoteCast, ch)
	go a.handleEventVoteCast(ch)

	// Vote delegated
	ch = make(chan interface{})
	a.events.Register(gov.EventTypeVoteDelegated, ch)
	go a.handleEventVoteDelegated(ch)
}

func (a *agora) handleEventProposalNew(ch chan interface{}) {
	for msg := range ch {
		e, ok := msg.(gov.EventProposalNew)
		if !ok {
			log.Errorf("handleEventProposalNew invalid msg: %v", msg)
			continue
		}

		log.Infof("Proposal created: %v %v", e.Proposal.ID,
			e.Proposal.Title)
	}
}

func (a *agora) handleEventProposalEnded(ch chan interface{}) {
	for msg := range ch {
		e, ok := msg.(gov.EventProposalEnded)
		if !ok {
			log.Errorf("handleEventProposalEnded invalid msg: %v", msg)
			continue
		}

		log.Infof("Proposal ended: %v winner %v quorum reached %v",
			e.Proposal.ID, e.WinningOption, e.Proposal.QuorumReached)
	}
}

func (a *agora) handleEventProposalCancelled(ch chan interface{}) {
	for msg := range ch {
		e, ok := msg.(gov.EventProposalCancelled)
		if !ok {
			log.Errorf("handleEventProposalCancelled invalid msg: %v",
				msg)
			continue
		}

		log.Infof("Proposal cancelled: %v", e.Proposal.ID)
	}
}

func (a *agora) handleEventVoteCast(ch chan interface{}) {
	for msg := range ch {
		e, ok := msg.(gov.EventVoteCast)
		if !ok {
			log.Errorf("handleEventVoteCast invalid msg: %v", msg)
			continue
		}

		log.Debugf("Vote cast: proposal %v option %v weight %v",
			e.Vote.ProposalID, e.Vote.Option, e.Vote.Weight)
	}
}

func (a *agora) handleEventVoteDelegated(ch chan interface{}) {
	for msg := range ch {
		e, ok := msg.(gov.EventVoteDelegated)
		if !ok {
			log.Errorf("handleEventVoteDelegated invalid msg: %v", msg)
			continue
		}

		log.Debugf("Vote delegated: proposal %v delegate %v",
			e.Delegation.ProposalID, e.Delegation.Delegate)
	}
}
