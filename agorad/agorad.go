// Copyright (c) 2017-2022 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"crypto/elliptic"
	"fmt"
	"net/http"
	"net/http/httputil"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	v1 "github.com/decred/agora/api/v1"
	"github.com/decred/agora/api/v1/identity"
	"github.com/decred/agora/events"
	"github.com/decred/agora/gov"
	"github.com/decred/agora/store"
	"github.com/decred/agora/store/localdb"
	"github.com/decred/agora/store/mysql"
	"github.com/decred/agora/util"
	"github.com/decred/agora/version"
	"github.com/gorilla/mux"
)

type permission uint

const (
	permissionPublic permission = iota
	permissionAuth

	// mysqlDBUser is the database user that the daemon connects to a
	// MySQL instance as.
	mysqlDBUser = "agorad"
)

// agora application context.
type agora struct {
	cfg      *config
	router   *mux.Router
	identity *identity.FullIdentity
	gov      *gov.Gov
	events   *events.Manager
}

func remoteAddr(r *http.Request) string {
	via := r.RemoteAddr
	xff := r.Header.Get(v1.Forward)
	if xff != "" {
		return fmt.Sprintf("%v via %v", xff, r.RemoteAddr)
	}
	return via
}

// handleNotFound is a generic handler for an invalid route.
func (a *agora) handleNotFound(w http.ResponseWriter, r *http.Request) {
	// Log incoming connection
	log.Debugf("Invalid route: %v %v %v %v", remoteAddr(r), r.Method, r.URL,
		r.Proto)

	// Trace incoming request
	log.Tracef("%v", newLogClosure(func() string {
		trace, err := httputil.DumpRequest(r, true)
		if err != nil {
			trace = []byte(fmt.Sprintf("logging: "+
				"DumpRequest %v", err))
		}
		return string(trace)
	}))

	util.RespondWithJSON(w, http.StatusNotFound, v1.ServerErrorReply{})
}

func (a *agora) respondWithUserError(w http.ResponseWriter, errorCode v1.ErrorStatusT, errorContext []string) {
	util.RespondWithJSON(w, http.StatusBadRequest, v1.UserErrorReply{
		ErrorCode:    errorCode,
		ErrorContext: errorContext,
	})
}

func (a *agora) respondWithServerError(w http.ResponseWriter, errorCode int64) {
	log.Errorf("Stacktrace (NOT A REAL CRASH): %s", debug.Stack())
	util.RespondWithJSON(w, http.StatusInternalServerError, v1.ServerErrorReply{
		ErrorCode: errorCode,
	})
}

func (a *agora) check(user, pass string) bool {
	if user != a.cfg.RPCUser || pass != a.cfg.RPCPass {
		return false
	}
	return true
}

func (a *agora) auth(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || !a.check(user, pass) {
			log.Infof("%v Unauthorized access for: %v",
				remoteAddr(r), user)
			w.Header().Set("WWW-Authenticate",
				`Basic realm="Agorad"`)
			w.WriteHeader(401)
			a.respondWithUserError(w, v1.ErrorStatusInvalidRPCCredentials, nil)
			return
		}
		log.Infof("%v Authorized access for: %v",
			remoteAddr(r), user)
		fn(w, r)
	}
}

func logging(f http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Trace incoming request
		log.Tracef("%v", newLogClosure(func() string {
			trace, err := httputil.DumpRequest(r, true)
			if err != nil {
				trace = []byte(fmt.Sprintf("logging: "+
					"DumpRequest %v", err))
			}
			return string(trace)
		}))

		// Log incoming connection
		log.Infof("%v %v %v %v", remoteAddr(r), r.Method, r.URL, r.Proto)
		f(w, r)
	}
}

// closeBody closes the request body after the provided handler is called.
func closeBody(f http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f(w, r)
		r.Body.Close()
	}
}

func (a *agora) addRoute(method string, route string, handler http.HandlerFunc, perm permission) {
	if perm == permissionAuth {
		handler = a.auth(handler)
	}
	handler = closeBody(logging(handler))

	a.router.StrictSlash(true).HandleFunc(route, handler).Methods(method)
}

func (a *agora) setupRoutes() {
	a.router = mux.NewRouter()

	// Not found
	a.router.NotFoundHandler = closeBody(a.handleNotFound)

	// Unprivileged routes
	a.addRoute(http.MethodPost, v1.IdentityRoute, a.getIdentity,
		permissionPublic)
	a.addRoute(http.MethodGet, v1.PolicyRoute, a.policy,
		permissionPublic)
	a.addRoute(http.MethodPost, v1.NewProposalRoute, a.newProposal,
		permissionPublic)
	a.addRoute(http.MethodPost, v1.EndProposalRoute, a.endProposal,
		permissionPublic)
	a.addRoute(http.MethodPost, v1.CancelProposalRoute, a.cancelProposal,
		permissionPublic)
	a.addRoute(http.MethodPost, v1.CastVoteRoute, a.castVote,
		permissionPublic)
	a.addRoute(http.MethodPost, v1.DelegateVoteRoute, a.delegateVote,
		permissionPublic)
	a.addRoute(http.MethodPost, v1.InventoryRoute, a.inventory,
		permissionPublic)
	a.addRoute(http.MethodGet, v1.ProposalDetailsRoute, a.proposalDetails,
		permissionPublic)
	a.addRoute(http.MethodGet, v1.ProposalCountRoute, a.proposalCount,
		permissionPublic)
	a.addRoute(http.MethodGet, v1.VoteCountRoute, a.voteCount,
		permissionPublic)
	a.addRoute(http.MethodGet, v1.UserVoteRoute, a.userVote,
		permissionPublic)
	a.addRoute(http.MethodGet, v1.WinnerRoute, a.winner,
		permissionPublic)

	// Routes that require auth
	a.addRoute(http.MethodPost, v1.PauseRoute, a.pause,
		permissionAuth)
	a.addRoute(http.MethodPost, v1.UnpauseRoute, a.unpause,
		permissionAuth)
}

func _main() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	cfg, _, err := loadConfig()
	if err != nil {
		return fmt.Errorf("Could not load configuration file: %v", err)
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	log.Infof("Version : %v", version.String())
	log.Infof("Build   : %v", version.BuildMainVersion())
	log.Infof("Network : %v", activeNetName)
	log.Infof("Home dir: %v", cfg.HomeDir)

	// Create the data directory in case it does not exist.
	err = os.MkdirAll(cfg.DataDir, 0700)
	if err != nil {
		return err
	}

	// Generate the TLS cert and key file if both don't already
	// exist.
	if !util.FileExists(cfg.HTTPSKey) &&
		!util.FileExists(cfg.HTTPSCert) {
		log.Infof("Generating HTTPS keypair...")

		err := util.GenCertPair(elliptic.P521(), "agorad",
			cfg.HTTPSCert, cfg.HTTPSKey)
		if err != nil {
			return fmt.Errorf("unable to create https keypair: %v",
				err)
		}

		log.Infof("HTTPS keypair created...")
	}

	// Generate ed25519 identity to sign challenges, receipts etc.
	if !util.FileExists(cfg.Identity) {
		log.Infof("Generating signing identity...")
		id, err := identity.New()
		if err != nil {
			return err
		}
		err = id.Save(cfg.Identity)
		if err != nil {
			return err
		}
		log.Infof("Signing identity created...")
	}

	// Setup application context.
	a := &agora{
		cfg: cfg,
	}

	// Load identity.
	a.identity, err = identity.LoadFullIdentity(cfg.Identity)
	if err != nil {
		return err
	}
	log.Infof("Public key: %x", a.identity.Public.Key)

	if cfg.Owner == "" {
		log.Infof("Registry owner not set; owner commands are disabled")
	} else {
		log.Infof("Registry owner: %v", cfg.Owner)
	}

	// Setup the key-value store.
	log.Infof("Database: %v", cfg.DBType)
	var db store.BlobKV
	switch cfg.DBType {
	case dbTypeLevelDB:
		db, err = localdb.New(cfg.HomeDir, cfg.DataDir)
		if err != nil {
			return fmt.Errorf("new localdb: %v", err)
		}
	case dbTypeMySQL:
		dbname := fmt.Sprintf("agora_%v", activeNetName)
		db, err = mysql.New(cfg.DBHost, mysqlDBUser, cfg.DBPass, dbname)
		if err != nil {
			return fmt.Errorf("new mysql: %v", err)
		}
	default:
		return fmt.Errorf("invalid dbtype selected: %v", cfg.DBType)
	}

	// Setup the governance engine.
	a.events = events.NewManager()
	a.gov, err = gov.New(a.identity, db, a.events, cfg.Owner, nil)
	if err != nil {
		return fmt.Errorf("new gov: %v", err)
	}
	a.setupEventListeners()

	// Setup mux
	a.setupRoutes()

	// Bind to a port and pass our router in
	listenC := make(chan error)
	for _, listener := range cfg.Listeners {
		listen := listener
		go func() {
			log.Infof("Listen: %v", listen)
			listenC <- http.ListenAndServeTLS(listen,
				cfg.HTTPSCert, cfg.HTTPSKey, a.router)
		}()
	}

	// Tell user we are ready to go.
	log.Infof("Start of day")

	// Setup OS signals
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case sig := <-sigs:
			log.Infof("Terminating with %v", sig)
			goto done
		case err := <-listenC:
			log.Errorf("%v", err)
			goto done
		}
	}
done:
	db.Close()

	log.Infof("Exiting")

	return nil
}

func main() {
	err := _main()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
