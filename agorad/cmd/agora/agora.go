// Copyright (c) 2017-2022 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	v1 "github.com/decred/agora/api/v1"
	"github.com/decred/agora/api/v1/identity"
	"github.com/decred/agora/util"
	"github.com/decred/dcrd/dcrutil/v3"
)

var (
	defaultHomeDir          = dcrutil.AppDataDir("agora", false)
	defaultIdentityFilename = "identity.json"
	defaultKeyFilename      = "client.json"

	identityFilename = flag.String("-id", filepath.Join(defaultHomeDir,
		defaultIdentityFilename), "remote server identity file")
	keyFilename = flag.String("-key", filepath.Join(defaultHomeDir,
		defaultKeyFilename), "client signing key file")
	testnet     = flag.Bool("testnet", false, "Use testnet port")
	printJson   = flag.Bool("json", false, "Print JSON")
	verbose     = flag.Bool("v", false, "Print signed messages")
	description = flag.String("desc", "", "Proposal description for new")
	mechanism   = flag.String("mechanism", "simple", "Vote weighting "+
		"mechanism for new (simple, weighted or quadratic)")
	quorum  = flag.Uint64("quorum", 0, "Quorum weight for new, 0 disables")
	rpcuser = flag.String("rpcuser", "", "RPC user name for privileged calls")
	rpcpass = flag.String("rpcpass", "", "RPC password for privileged calls")
	rpchost = flag.String("rpchost", "", "RPC host")
	rpccert = flag.String("rpccert", "", "RPC certificate")

	verify = false // Validate server TLS certificate
)

// mechanisms maps the mechanism argument onto its wire value.
var mechanisms = map[string]v1.VoteMechanismT{
	"simple":    v1.VoteMechanismSimple,
	"weighted":  v1.VoteMechanismWeighted,
	"quadratic": v1.VoteMechanismQuadratic,
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: agora [flags] <action> [arguments]\n")
	fmt.Fprintf(os.Stderr, " flags:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\n actions:\n")
	fmt.Fprintf(os.Stderr, "  identity  - Retrieve server identity\n")
	fmt.Fprintf(os.Stderr, "  newkey    - Generate a client signing key\n")
	fmt.Fprintf(os.Stderr, "  policy    - Retrieve server policy\n")
	fmt.Fprintf(os.Stderr, "  new       - Create new proposal "+
		"<title> <duration> <option>...\n")
	fmt.Fprintf(os.Stderr, "  details   - Retrieve proposal <id>\n")
	fmt.Fprintf(os.Stderr, "  inventory - Retrieve proposal inventory "+
		"by status\n")
	fmt.Fprintf(os.Stderr, "  count     - Retrieve proposal count\n")
	fmt.Fprintf(os.Stderr, "  vote      - Cast vote <id> <option>\n")
	fmt.Fprintf(os.Stderr, "  delegate  - Delegate voting right "+
		"<id> <delegate>\n")
	fmt.Fprintf(os.Stderr, "  uservote  - Retrieve cast vote "+
		"<id> <publickey>\n")
	fmt.Fprintf(os.Stderr, "  tally     - Retrieve vote tally "+
		"<id> <option>\n")
	fmt.Fprintf(os.Stderr, "  winner    - Retrieve winning option <id>\n")
	fmt.Fprintf(os.Stderr, "  end       - End voting period <id>\n")
	fmt.Fprintf(os.Stderr, "  cancel    - Cancel proposal <id>\n")
	fmt.Fprintf(os.Stderr, "  pause     - Pause voting activity\n")
	fmt.Fprintf(os.Stderr, "  unpause   - Resume voting activity\n")
	fmt.Fprintf(os.Stderr, "\n")
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(defaultHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// loadSigningKey loads the client signing key. Every action that modifies
// registry state must be signed with it.
func loadSigningKey() (*identity.FullIdentity, error) {
	fid, err := identity.LoadFullIdentity(*keyFilename)
	if err != nil {
		return nil, fmt.Errorf("load signing key %v: %v (generate one "+
			"with the newkey action)", *keyFilename, err)
	}
	return fid, nil
}

// verifyReceipt verifies that the receipt is the server signature of the
// client signature.
func verifyReceipt(id *identity.PublicIdentity, clientSig, receipt string) error {
	s, err := util.ConvertSignature(receipt)
	if err != nil {
		return fmt.Errorf("invalid receipt: %v", err)
	}
	if !id.VerifyMessage([]byte(clientSig), s) {
		return fmt.Errorf("receipt does not verify")
	}
	return nil
}

func getIdentity() error {
	// Fetch remote identity
	id, err := util.RemoteIdentity(verify, *rpchost, *rpccert)
	if err != nil {
		return err
	}

	rf := filepath.Join(defaultHomeDir, defaultIdentityFilename)

	// Pretty print identity.
	fmt.Printf("Key        : %x\n", id.Key)
	fmt.Printf("Fingerprint: %v\n", id.Fingerprint())

	// Ask user if we like this identity
	fmt.Printf("\nSave to %v or ctrl-c to abort ", rf)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Scan()
	if err = scanner.Err(); err != nil {
		return err
	}
	if len(scanner.Text()) != 0 {
		rf = scanner.Text()
	}
	rf = cleanAndExpandPath(rf)

	// Save identity
	err = os.MkdirAll(filepath.Dir(rf), 0700)
	if err != nil {
		return err
	}
	err = id.SavePublicIdentity(rf)
	if err != nil {
		return err
	}
	fmt.Printf("Identity saved to: %v\n", rf)

	return nil
}

func newKey() error {
	// Refuse to clobber an existing key.
	if util.FileExists(*keyFilename) {
		return fmt.Errorf("client signing key already exists: %v",
			*keyFilename)
	}

	fid, err := identity.New()
	if err != nil {
		return err
	}
	err = os.MkdirAll(filepath.Dir(*keyFilename), 0700)
	if err != nil {
		return err
	}
	err = fid.Save(*keyFilename)
	if err != nil {
		return err
	}

	// Pretty print identity.
	fmt.Printf("Key        : %x\n", fid.Public.Key)
	fmt.Printf("Fingerprint: %v\n", fid.Public.Fingerprint())
	fmt.Printf("\nKey saved to: %v\n", *keyFilename)

	return nil
}

func printProposalRecord(header string, pr v1.ProposalRecord) {
	status, ok := v1.PropStatus[pr.Status]
	if !ok {
		status = v1.PropStatus[v1.PropStatusInvalid]
	}
	mech, ok := v1.VoteMechanism[pr.Mechanism]
	if !ok {
		mech = v1.VoteMechanism[v1.VoteMechanismInvalid]
	}

	// Pretty print proposal
	fmt.Printf("%v:\n", header)
	fmt.Printf("  ID         : %v\n", pr.ID)
	fmt.Printf("  Title      : %v\n", pr.Title)
	if pr.Description != "" {
		fmt.Printf("  Description: %v\n", pr.Description)
	}
	fmt.Printf("  Status     : %v\n", status)
	fmt.Printf("  Mechanism  : %v\n", mech)
	fmt.Printf("  Creator    : %v\n", pr.Creator)
	fmt.Printf("  Start      : %v\n", time.Unix(pr.StartTime, 0).UTC())
	fmt.Printf("  End        : %v\n", time.Unix(pr.EndTime, 0).UTC())
	fmt.Printf("  Quorum     : %v\n", pr.Quorum)
	fmt.Printf("  Cast weight: %v\n", pr.TotalVotesWeight)
	fmt.Printf("  Quorum met : %v\n", pr.QuorumReached)
	for k, v := range pr.Options {
		fmt.Printf("  Option (%02v): %v\n", k, v)
	}
}

func getPolicy() error {
	c, err := util.NewClient(verify, *rpccert)
	if err != nil {
		return err
	}
	r, err := c.Get(*rpchost + v1.PolicyRoute)
	if err != nil {
		return err
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusOK {
		e, err := util.GetErrorFromJSON(r.Body)
		if err != nil {
			return fmt.Errorf("%v", r.Status)
		}
		return fmt.Errorf("%v: %v", r.Status, e)
	}

	bodyBytes := util.ConvertBodyToByteArray(r.Body, *printJson)

	var reply v1.PolicyReply
	err = json.Unmarshal(bodyBytes, &reply)
	if err != nil {
		return fmt.Errorf("could not unmarshal PolicyReply: %v", err)
	}

	if !*printJson {
		fmt.Printf("Version      : %v\n", reply.Version)
		fmt.Printf("Build version: %v\n", reply.BuildVersion)
		fmt.Printf("Min duration : %v\n",
			time.Duration(reply.MinDuration)*time.Second)
		fmt.Printf("Max duration : %v\n",
			time.Duration(reply.MaxDuration)*time.Second)
		fmt.Printf("Max options  : %v\n", reply.MaxOptions)
		fmt.Printf("Challenge    : %v bytes\n", reply.ChallengeSize)
	}

	return nil
}

func newProposal() error {
	flags := flag.Args()[1:] // Chop off action.

	// Make sure we have title, duration and at least one option.
	if len(flags) < 3 {
		return fmt.Errorf("must provide title, duration and at least " +
			"one option")
	}
	title := flags[0]
	duration, err := strconv.ParseInt(flags[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid duration: %v", flags[1])
	}
	options := flags[2:]

	m, ok := mechanisms[*mechanism]
	if !ok {
		return fmt.Errorf("invalid mechanism: %v", *mechanism)
	}

	fid, err := loadSigningKey()
	if err != nil {
		return err
	}

	// Create and sign New command
	challenge, err := util.Random(v1.ChallengeSize)
	if err != nil {
		return err
	}
	msg := v1.NewProposalMessage(title, *description, options, duration,
		m, *quorum)
	if *verbose {
		fmt.Printf("Signing message: %v\n", msg)
	}
	sig := fid.SignMessage([]byte(msg))
	n := v1.NewProposal{
		Challenge:   hex.EncodeToString(challenge),
		Title:       title,
		Description: *description,
		Options:     options,
		Duration:    duration,
		Mechanism:   m,
		Quorum:      *quorum,
		PublicKey:   hex.EncodeToString(fid.Public.Key[:]),
		Signature:   hex.EncodeToString(sig[:]),
	}

	// Convert New to JSON
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}

	if *printJson {
		fmt.Println(string(b))
	}

	c, err := util.NewClient(verify, *rpccert)
	if err != nil {
		return err
	}
	r, err := c.Post(*rpchost+v1.NewProposalRoute, "application/json",
		bytes.NewReader(b))
	if err != nil {
		return err
	}
	defer r.Body.Close()

	if r.StatusCode != http.StatusOK {
		e, err := util.GetErrorFromJSON(r.Body)
		if err != nil {
			return fmt.Errorf("%v", r.Status)
		}
		return fmt.Errorf("%v: %v", r.Status, e)
	}

	bodyBytes := util.ConvertBodyToByteArray(r.Body, *printJson)

	var reply v1.NewProposalReply
	err = json.Unmarshal(bodyBytes, &reply)
	if err != nil {
		return fmt.Errorf("could not unmarshal NewProposalReply: %v",
			err)
	}

	// Fetch remote identity
	id, err := identity.LoadPublicIdentity(*identityFilename)
	if err != nil {
		return err
	}

	// Verify challenge.
	err = util.VerifyChallenge(id, challenge, reply.Response)
	if err != nil {
		return err
	}

	if !*printJson {
		printProposalRecord("Proposal created", reply.Proposal)
	}

	return nil
}

func getDetails() error {
	flags := flag.Args()[1:] // Chop off action.
	if len(flags) != 1 {
		return fmt.Errorf("proposal id expected")
	}
	id, err := strconv.ParseUint(flags[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid proposal id: %v", flags[0])
	}

	c, err := util.NewClient(verify, *rpccert)
	if err != nil {
		return err
	}
	r, err := c.Get(*rpchost + v1.ProposalDetailsRoute + "?id=" +
		strconv.FormatUint(id, 10))
	if err != nil {
		return err
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusOK {
		e, err := util.GetErrorFromJSON(r.Body)
		if err != nil {
			return fmt.Errorf("%v", r.Status)
		}
		return fmt.Errorf("%v: %v", r.Status, e)
	}

	bodyBytes := util.ConvertBodyToByteArray(r.Body, *printJson)

	var reply v1.ProposalDetailsReply
	err = json.Unmarshal(bodyBytes, &reply)
	if err != nil {
		return fmt.Errorf("could not unmarshal ProposalDetailsReply: %v",
			err)
	}

	if !*printJson {
		printProposalRecord("Proposal", reply.Proposal)
	}

	return nil
}

func inventory() error {
	challenge, err := util.Random(v1.ChallengeSize)
	if err != nil {
		return err
	}
	b, err := json.Marshal(v1.Inventory{
		Challenge: hex.EncodeToString(challenge),
	})
	if err != nil {
		return err
	}

	if *printJson {
		fmt.Println(string(b))
	}

	c, err := util.NewClient(verify, *rpccert)
	if err != nil {
		return err
	}
	r, err := c.Post(*rpchost+v1.InventoryRoute, "application/json",
		bytes.NewReader(b))
	if err != nil {
		return err
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusOK {
		e, err := util.GetErrorFromJSON(r.Body)
		if err != nil {
			return fmt.Errorf("%v", r.Status)
		}
		return fmt.Errorf("%v: %v", r.Status, e)
	}

	bodyBytes := util.ConvertBodyToByteArray(r.Body, *printJson)

	var reply v1.InventoryReply
	err = json.Unmarshal(bodyBytes, &reply)
	if err != nil {
		return fmt.Errorf("could not unmarshal InventoryReply: %v", err)
	}

	// Fetch remote identity
	id, err := identity.LoadPublicIdentity(*identityFilename)
	if err != nil {
		return err
	}

	// Verify challenge.
	err = util.VerifyChallenge(id, challenge, reply.Response)
	if err != nil {
		return err
	}

	if !*printJson {
		fmt.Printf("Active   : %v\n", reply.Active)
		fmt.Printf("Ended    : %v\n", reply.Ended)
		fmt.Printf("Cancelled: %v\n", reply.Cancelled)
	}

	return nil
}

func getCount() error {
	c, err := util.NewClient(verify, *rpccert)
	if err != nil {
		return err
	}
	r, err := c.Get(*rpchost + v1.ProposalCountRoute)
	if err != nil {
		return err
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusOK {
		e, err := util.GetErrorFromJSON(r.Body)
		if err != nil {
			return fmt.Errorf("%v", r.Status)
		}
		return fmt.Errorf("%v: %v", r.Status, e)
	}

	bodyBytes := util.ConvertBodyToByteArray(r.Body, *printJson)

	var reply v1.ProposalCountReply
	err = json.Unmarshal(bodyBytes, &reply)
	if err != nil {
		return fmt.Errorf("could not unmarshal ProposalCountReply: %v",
			err)
	}

	if !*printJson {
		fmt.Printf("Proposals: %v\n", reply.Count)
	}

	return nil
}

func castVote() error {
	flags := flag.Args()[1:] // Chop off action.
	if len(flags) != 2 {
		return fmt.Errorf("proposal id and option expected")
	}
	proposalID, err := strconv.ParseUint(flags[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid proposal id: %v", flags[0])
	}
	option, err := strconv.ParseUint(flags[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid option: %v", flags[1])
	}

	fid, err := loadSigningKey()
	if err != nil {
		return err
	}

	// Create and sign CastVote command
	challenge, err := util.Random(v1.ChallengeSize)
	if err != nil {
		return err
	}
	msg := v1.CastVoteMessage(proposalID, option)
	if *verbose {
		fmt.Printf("Signing message: %v\n", msg)
	}
	sig := fid.SignMessage([]byte(msg))
	cv := v1.CastVote{
		Challenge:  hex.EncodeToString(challenge),
		ProposalID: proposalID,
		Option:     option,
		PublicKey:  hex.EncodeToString(fid.Public.Key[:]),
		Signature:  hex.EncodeToString(sig[:]),
	}

	b, err := json.Marshal(cv)
	if err != nil {
		return err
	}

	if *printJson {
		fmt.Println(string(b))
	}

	c, err := util.NewClient(verify, *rpccert)
	if err != nil {
		return err
	}
	r, err := c.Post(*rpchost+v1.CastVoteRoute, "application/json",
		bytes.NewReader(b))
	if err != nil {
		return err
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusOK {
		e, err := util.GetErrorFromJSON(r.Body)
		if err != nil {
			return fmt.Errorf("%v", r.Status)
		}
		return fmt.Errorf("%v: %v", r.Status, e)
	}

	bodyBytes := util.ConvertBodyToByteArray(r.Body, *printJson)

	var reply v1.CastVoteReply
	err = json.Unmarshal(bodyBytes, &reply)
	if err != nil {
		return fmt.Errorf("could not unmarshal CastVoteReply: %v", err)
	}

	// Fetch remote identity
	id, err := identity.LoadPublicIdentity(*identityFilename)
	if err != nil {
		return err
	}

	// Verify challenge and receipt.
	err = util.VerifyChallenge(id, challenge, reply.Response)
	if err != nil {
		return err
	}
	err = verifyReceipt(id, cv.Signature, reply.Receipt)
	if err != nil {
		return err
	}

	if !*printJson {
		fmt.Printf("Vote cast:\n")
		fmt.Printf("  Proposal: %v\n", proposalID)
		fmt.Printf("  Option  : %v\n", option)
		fmt.Printf("  Weight  : %v\n", reply.Weight)
		fmt.Printf("  Receipt : %v\n", reply.Receipt)
	}

	return nil
}

func delegateVote() error {
	flags := flag.Args()[1:] // Chop off action.
	if len(flags) != 2 {
		return fmt.Errorf("proposal id and delegate public key expected")
	}
	proposalID, err := strconv.ParseUint(flags[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid proposal id: %v", flags[0])
	}
	delegate := flags[1]
	_, err = util.IdentityFromString(delegate)
	if err != nil {
		return fmt.Errorf("invalid delegate: %v", err)
	}

	fid, err := loadSigningKey()
	if err != nil {
		return err
	}

	// Create and sign DelegateVote command
	challenge, err := util.Random(v1.ChallengeSize)
	if err != nil {
		return err
	}
	msg := v1.DelegateVoteMessage(proposalID, delegate)
	if *verbose {
		fmt.Printf("Signing message: %v\n", msg)
	}
	sig := fid.SignMessage([]byte(msg))
	dv := v1.DelegateVote{
		Challenge:  hex.EncodeToString(challenge),
		ProposalID: proposalID,
		Delegate:   delegate,
		PublicKey:  hex.EncodeToString(fid.Public.Key[:]),
		Signature:  hex.EncodeToString(sig[:]),
	}

	b, err := json.Marshal(dv)
	if err != nil {
		return err
	}

	if *printJson {
		fmt.Println(string(b))
	}

	c, err := util.NewClient(verify, *rpccert)
	if err != nil {
		return err
	}
	r, err := c.Post(*rpchost+v1.DelegateVoteRoute, "application/json",
		bytes.NewReader(b))
	if err != nil {
		return err
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusOK {
		e, err := util.GetErrorFromJSON(r.Body)
		if err != nil {
			return fmt.Errorf("%v", r.Status)
		}
		return fmt.Errorf("%v: %v", r.Status, e)
	}

	bodyBytes := util.ConvertBodyToByteArray(r.Body, *printJson)

	var reply v1.DelegateVoteReply
	err = json.Unmarshal(bodyBytes, &reply)
	if err != nil {
		return fmt.Errorf("could not unmarshal DelegateVoteReply: %v",
			err)
	}

	// Fetch remote identity
	id, err := identity.LoadPublicIdentity(*identityFilename)
	if err != nil {
		return err
	}

	// Verify challenge and receipt.
	err = util.VerifyChallenge(id, challenge, reply.Response)
	if err != nil {
		return err
	}
	err = verifyReceipt(id, dv.Signature, reply.Receipt)
	if err != nil {
		return err
	}

	if !*printJson {
		fmt.Printf("Voting right delegated:\n")
		fmt.Printf("  Proposal: %v\n", proposalID)
		fmt.Printf("  Delegate: %v\n", delegate)
		fmt.Printf("  Receipt : %v\n", reply.Receipt)
	}

	return nil
}

func userVote() error {
	flags := flag.Args()[1:] // Chop off action.
	if len(flags) != 2 {
		return fmt.Errorf("proposal id and voter public key expected")
	}
	proposalID, err := strconv.ParseUint(flags[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid proposal id: %v", flags[0])
	}

	q := url.Values{}
	q.Set("id", strconv.FormatUint(proposalID, 10))
	q.Set("publickey", flags[1])

	c, err := util.NewClient(verify, *rpccert)
	if err != nil {
		return err
	}
	r, err := c.Get(*rpchost + v1.UserVoteRoute + "?" + q.Encode())
	if err != nil {
		return err
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusOK {
		e, err := util.GetErrorFromJSON(r.Body)
		if err != nil {
			return fmt.Errorf("%v", r.Status)
		}
		return fmt.Errorf("%v: %v", r.Status, e)
	}

	bodyBytes := util.ConvertBodyToByteArray(r.Body, *printJson)

	var reply v1.UserVoteReply
	err = json.Unmarshal(bodyBytes, &reply)
	if err != nil {
		return fmt.Errorf("could not unmarshal UserVoteReply: %v", err)
	}

	if !*printJson {
		if reply.Vote == nil {
			fmt.Printf("No vote cast\n")
			return nil
		}
		fmt.Printf("Vote:\n")
		fmt.Printf("  Proposal : %v\n", reply.Vote.ProposalID)
		fmt.Printf("  Voter    : %v\n", reply.Vote.PublicKey)
		fmt.Printf("  Option   : %v\n", reply.Vote.Option)
		fmt.Printf("  Weight   : %v\n", reply.Vote.Weight)
		fmt.Printf("  Timestamp: %v\n",
			time.Unix(reply.Vote.Timestamp, 0).UTC())
	}

	return nil
}

func voteTally() error {
	flags := flag.Args()[1:] // Chop off action.
	if len(flags) != 2 {
		return fmt.Errorf("proposal id and option expected")
	}
	proposalID, err := strconv.ParseUint(flags[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid proposal id: %v", flags[0])
	}
	option, err := strconv.ParseUint(flags[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid option: %v", flags[1])
	}

	q := url.Values{}
	q.Set("id", strconv.FormatUint(proposalID, 10))
	q.Set("option", strconv.FormatUint(option, 10))

	c, err := util.NewClient(verify, *rpccert)
	if err != nil {
		return err
	}
	r, err := c.Get(*rpchost + v1.VoteCountRoute + "?" + q.Encode())
	if err != nil {
		return err
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusOK {
		e, err := util.GetErrorFromJSON(r.Body)
		if err != nil {
			return fmt.Errorf("%v", r.Status)
		}
		return fmt.Errorf("%v: %v", r.Status, e)
	}

	bodyBytes := util.ConvertBodyToByteArray(r.Body, *printJson)

	var reply v1.VoteCountReply
	err = json.Unmarshal(bodyBytes, &reply)
	if err != nil {
		return fmt.Errorf("could not unmarshal VoteCountReply: %v", err)
	}

	if !*printJson {
		fmt.Printf("Tally: %v\n", reply.Tally)
	}

	return nil
}

func getWinner() error {
	flags := flag.Args()[1:] // Chop off action.
	if len(flags) != 1 {
		return fmt.Errorf("proposal id expected")
	}
	proposalID, err := strconv.ParseUint(flags[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid proposal id: %v", flags[0])
	}

	c, err := util.NewClient(verify, *rpccert)
	if err != nil {
		return err
	}
	r, err := c.Get(*rpchost + v1.WinnerRoute + "?id=" +
		strconv.FormatUint(proposalID, 10))
	if err != nil {
		return err
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusOK {
		e, err := util.GetErrorFromJSON(r.Body)
		if err != nil {
			return fmt.Errorf("%v", r.Status)
		}
		return fmt.Errorf("%v: %v", r.Status, e)
	}

	bodyBytes := util.ConvertBodyToByteArray(r.Body, *printJson)

	var reply v1.WinnerReply
	err = json.Unmarshal(bodyBytes, &reply)
	if err != nil {
		return fmt.Errorf("could not unmarshal WinnerReply: %v", err)
	}

	if !*printJson {
		fmt.Printf("Winning option: %v\n", reply.WinningOption)
	}

	return nil
}

func endProposal() error {
	flags := flag.Args()[1:] // Chop off action.
	if len(flags) != 1 {
		return fmt.Errorf("proposal id expected")
	}
	proposalID, err := strconv.ParseUint(flags[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid proposal id: %v", flags[0])
	}

	// Create EndProposal command. Ending a proposal whose voting period
	// has expired does not require a signature.
	challenge, err := util.Random(v1.ChallengeSize)
	if err != nil {
		return err
	}
	b, err := json.Marshal(v1.EndProposal{
		Challenge:  hex.EncodeToString(challenge),
		ProposalID: proposalID,
	})
	if err != nil {
		return err
	}

	if *printJson {
		fmt.Println(string(b))
	}

	c, err := util.NewClient(verify, *rpccert)
	if err != nil {
		return err
	}
	r, err := c.Post(*rpchost+v1.EndProposalRoute, "application/json",
		bytes.NewReader(b))
	if err != nil {
		return err
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusOK {
		e, err := util.GetErrorFromJSON(r.Body)
		if err != nil {
			return fmt.Errorf("%v", r.Status)
		}
		return fmt.Errorf("%v: %v", r.Status, e)
	}

	bodyBytes := util.ConvertBodyToByteArray(r.Body, *printJson)

	var reply v1.EndProposalReply
	err = json.Unmarshal(bodyBytes, &reply)
	if err != nil {
		return fmt.Errorf("could not unmarshal EndProposalReply: %v",
			err)
	}

	// Fetch remote identity
	id, err := identity.LoadPublicIdentity(*identityFilename)
	if err != nil {
		return err
	}

	// Verify challenge.
	err = util.VerifyChallenge(id, challenge, reply.Response)
	if err != nil {
		return err
	}

	if !*printJson {
		printProposalRecord("Proposal ended", reply.Proposal)
		fmt.Printf("  Winner     : option %v\n", reply.WinningOption)
	}

	return nil
}

func cancelProposal() error {
	flags := flag.Args()[1:] // Chop off action.
	if len(flags) != 1 {
		return fmt.Errorf("proposal id expected")
	}
	proposalID, err := strconv.ParseUint(flags[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid proposal id: %v", flags[0])
	}

	fid, err := loadSigningKey()
	if err != nil {
		return err
	}

	// Create and sign CancelProposal command
	challenge, err := util.Random(v1.ChallengeSize)
	if err != nil {
		return err
	}
	msg := v1.CancelProposalMessage(proposalID)
	if *verbose {
		fmt.Printf("Signing message: %v\n", msg)
	}
	sig := fid.SignMessage([]byte(msg))
	b, err := json.Marshal(v1.CancelProposal{
		Challenge:  hex.EncodeToString(challenge),
		ProposalID: proposalID,
		PublicKey:  hex.EncodeToString(fid.Public.Key[:]),
		Signature:  hex.EncodeToString(sig[:]),
	})
	if err != nil {
		return err
	}

	if *printJson {
		fmt.Println(string(b))
	}

	c, err := util.NewClient(verify, *rpccert)
	if err != nil {
		return err
	}
	r, err := c.Post(*rpchost+v1.CancelProposalRoute, "application/json",
		bytes.NewReader(b))
	if err != nil {
		return err
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusOK {
		e, err := util.GetErrorFromJSON(r.Body)
		if err != nil {
			return fmt.Errorf("%v", r.Status)
		}
		return fmt.Errorf("%v: %v", r.Status, e)
	}

	bodyBytes := util.ConvertBodyToByteArray(r.Body, *printJson)

	var reply v1.CancelProposalReply
	err = json.Unmarshal(bodyBytes, &reply)
	if err != nil {
		return fmt.Errorf("could not unmarshal CancelProposalReply: %v",
			err)
	}

	// Fetch remote identity
	id, err := identity.LoadPublicIdentity(*identityFilename)
	if err != nil {
		return err
	}

	// Verify challenge.
	err = util.VerifyChallenge(id, challenge, reply.Response)
	if err != nil {
		return err
	}

	if !*printJson {
		printProposalRecord("Proposal cancelled", reply.Proposal)
	}

	return nil
}

func pause() error {
	fid, err := loadSigningKey()
	if err != nil {
		return err
	}

	// Create and sign Pause command
	challenge, err := util.Random(v1.ChallengeSize)
	if err != nil {
		return err
	}
	if *verbose {
		fmt.Printf("Signing message: %v\n", v1.PauseMessage)
	}
	sig := fid.SignMessage([]byte(v1.PauseMessage))
	b, err := json.Marshal(v1.Pause{
		Challenge: hex.EncodeToString(challenge),
		PublicKey: hex.EncodeToString(fid.Public.Key[:]),
		Signature: hex.EncodeToString(sig[:]),
	})
	if err != nil {
		return err
	}

	if *printJson {
		fmt.Println(string(b))
	}

	c, err := util.NewClient(verify, *rpccert)
	if err != nil {
		return err
	}
	req, err := http.NewRequest("POST", *rpchost+v1.PauseRoute,
		bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.SetBasicAuth(*rpcuser, *rpcpass)
	r, err := c.Do(req)
	if err != nil {
		return err
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusOK {
		e, err := util.GetErrorFromJSON(r.Body)
		if err != nil {
			return fmt.Errorf("%v", r.Status)
		}
		return fmt.Errorf("%v: %v", r.Status, e)
	}

	bodyBytes := util.ConvertBodyToByteArray(r.Body, *printJson)

	var reply v1.PauseReply
	err = json.Unmarshal(bodyBytes, &reply)
	if err != nil {
		return fmt.Errorf("could not unmarshal PauseReply: %v", err)
	}

	// Fetch remote identity
	id, err := identity.LoadPublicIdentity(*identityFilename)
	if err != nil {
		return err
	}

	// Verify challenge.
	err = util.VerifyChallenge(id, challenge, reply.Response)
	if err != nil {
		return err
	}

	if !*printJson {
		fmt.Printf("Voting activity paused\n")
	}

	return nil
}

func unpause() error {
	fid, err := loadSigningKey()
	if err != nil {
		return err
	}

	// Create and sign Unpause command
	challenge, err := util.Random(v1.ChallengeSize)
	if err != nil {
		return err
	}
	if *verbose {
		fmt.Printf("Signing message: %v\n", v1.UnpauseMessage)
	}
	sig := fid.SignMessage([]byte(v1.UnpauseMessage))
	b, err := json.Marshal(v1.Unpause{
		Challenge: hex.EncodeToString(challenge),
		PublicKey: hex.EncodeToString(fid.Public.Key[:]),
		Signature: hex.EncodeToString(sig[:]),
	})
	if err != nil {
		return err
	}

	if *printJson {
		fmt.Println(string(b))
	}

	c, err := util.NewClient(verify, *rpccert)
	if err != nil {
		return err
	}
	req, err := http.NewRequest("POST", *rpchost+v1.UnpauseRoute,
		bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.SetBasicAuth(*rpcuser, *rpcpass)
	r, err := c.Do(req)
	if err != nil {
		return err
	}
	defer r.Body.Close()
	if r.StatusCode != http.StatusOK {
		e, err := util.GetErrorFromJSON(r.Body)
		if err != nil {
			return fmt.Errorf("%v", r.Status)
		}
		return fmt.Errorf("%v: %v", r.Status, e)
	}

	bodyBytes := util.ConvertBodyToByteArray(r.Body, *printJson)

	var reply v1.UnpauseReply
	err = json.Unmarshal(bodyBytes, &reply)
	if err != nil {
		return fmt.Errorf("could not unmarshal UnpauseReply: %v", err)
	}

	// Fetch remote identity
	id, err := identity.LoadPublicIdentity(*identityFilename)
	if err != nil {
		return err
	}

	// Verify challenge.
	err = util.VerifyChallenge(id, challenge, reply.Response)
	if err != nil {
		return err
	}

	if !*printJson {
		fmt.Printf("Voting activity resumed\n")
	}

	return nil
}

func _main() error {
	flag.Parse()
	if len(flag.Args()) == 0 {
		usage()
		return fmt.Errorf("must provide action")
	}

	if *rpchost == "" {
		if *testnet {
			*rpchost = v1.DefaultTestnetHost
		} else {
			*rpchost = v1.DefaultMainnetHost
		}
	} else {
		// For now assume we can't verify server TLS certificate
		verify = true
	}

	port := v1.DefaultMainnetPort
	if *testnet {
		port = v1.DefaultTestnetPort
	}

	*rpchost = util.NormalizeAddress(*rpchost, port)

	// Set port if not specified.
	u, err := url.Parse("https://" + *rpchost)
	if err != nil {
		return err
	}
	*rpchost = u.String()

	// Scan through command line arguments.
	for i, a := range flag.Args() {
		// Select action
		if i == 0 {
			switch a {
			case "identity":
				return getIdentity()
			case "newkey":
				return newKey()
			case "policy":
				return getPolicy()
			case "new":
				return newProposal()
			case "details":
				return getDetails()
			case "inventory":
				return inventory()
			case "count":
				return getCount()
			case "vote":
				return castVote()
			case "delegate":
				return delegateVote()
			case "uservote":
				return userVote()
			case "tally":
				return voteTally()
			case "winner":
				return getWinner()
			case "end":
				return endProposal()
			case "cancel":
				return cancelProposal()
			case "pause":
				return pause()
			case "unpause":
				return unpause()
			default:
				return fmt.Errorf("invalid action: %v", a)
			}
		}
	}

	return nil
}

func main() {
	err := _main()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
