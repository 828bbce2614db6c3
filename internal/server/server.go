/*
Copyright (c) JSC iCore.

This source code is licensed under the MIT license found in the
LICENSE file in the root directory of this source tree.
*/

// Package server is an implementation of the consent step of
// [Login and Consent Flow](https://www.ory.sh/docs/hydra/oauth2) of ORY Hydra.
package server

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/i-core/consentd/internal/claims"
	"github.com/i-core/consentd/internal/kratos"
	"github.com/i-core/consentd/internal/logger"
	"github.com/i-core/consentd/internal/oauth2"
	"github.com/i-core/consentd/internal/oauth2/hydra"
	"github.com/julienschmidt/httprouter"
	"github.com/justinas/alice"
	"github.com/justinas/nosurf"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Version will be filled at compile time.
var Version = ""

const (
	internalServerErrorMessage = "Internal Server Error"
	consentTmplName            = "consent.tmpl"

	denySubmitValue = "Deny access"

	accessDeniedError       = "access_denied"
	accessDeniedDescription = "The resource owner denied the request"
)

// Config is a server's configuration.
type Config struct {
	DevMode              bool          `envconfig:"dev_mode" default:"false" desc:"a development mode"`
	Listen               string        `default:":8080" desc:"a host and port to listen on (<host>:<port>)"`
	HydraAdminURL        string        `envconfig:"hydra_admin_url" required:"true" desc:"an admin URL of ORY Hydra"`
	FakeTLSTermination   bool          `envconfig:"fake_tls_termination" default:"false" desc:"send the header \"X-Forwarded-Proto: https\" to ORY Hydra"`
	SessionTTL           time.Duration `envconfig:"session_ttl" default:"1h" desc:"a TTL of a remembered consent decision"`
	ConformityFakeClaims bool          `envconfig:"conformity_fake_claims" default:"false" desc:"grant fake claims for the OpenID Connect conformity test suite"`
	Kratos               kratos.Config
	WebDir               string `envconfig:"web_dir" desc:"a path to an external web directory"`
	WebBasePath          string `envconfig:"web_base_path" default:"/" desc:"a base path of web pages"`
}

// Server is a HTTP server that is a consent provider.
type Server struct {
	Config
	router http.Handler
	webldr interface {
		loadTemplate(name string) (*template.Template, error)
	}
	decisions *prometheus.CounterVec
}

// New creates a new Server instance.
func New(cnf Config, log *zap.Logger) (*Server, error) {
	srv := &Server{Config: cnf}
	var err error
	if cnf.WebDir != "" {
		srv.webldr, err = newExtWebLoader(cnf.WebDir)
	} else {
		srv.webldr, err = newIntWebLoader()
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to init server")
	}

	srv.decisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "consentd",
		Name:      "consent_decisions_total",
		Help:      "Count of adjudicated consent requests by outcome.",
	}, []string{"outcome"})
	prometheus.MustRegister(srv.decisions)

	identities := kratos.New(cnf.Kratos)
	conformity := claims.NewConformity(cnf.ConformityFakeClaims)

	router := httprouter.New()
	router.Handler(http.MethodGet, "/consent",
		srv.handleConsentStart(hydra.NewConsentReqDoer(cnf.HydraAdminURL, cnf.FakeTLSTermination, 0), identities))
	router.Handler(http.MethodPost, "/consent",
		srv.handleConsentEnd(hydra.NewConsentReqDoer(cnf.HydraAdminURL, cnf.FakeTLSTermination, int(cnf.SessionTTL.Seconds())), conformity))

	router.Handler(http.MethodGet, "/health/alive", srv.handleHealthAliveAndReady())
	router.Handler(http.MethodGet, "/health/ready", srv.handleHealthAliveAndReady())
	router.Handler(http.MethodGet, "/version", srv.handleVersion())
	router.Handler(http.MethodGet, "/metrics/prometheus", promhttp.Handler())

	if cnf.WebDir != "" {
		router.ServeFiles("/static/*filepath", http.Dir(path.Join(cnf.WebDir, "static")))
	}

	srv.router = alice.New(nosurf.NewPure, logw(log.Sugar())).Then(router)

	return srv, nil
}

// ServeHTTP implements the http.Handler interface.
func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	srv.router.ServeHTTP(w, r)
}

// oa2ConsentReqAcceptor is an interface that is used for accepting an OAuth2 consent request.
type oa2ConsentReqAcceptor interface {
	AcceptConsentRequest(challenge string, remember bool, grantScope, grantAudience []string, session oauth2.Session) (string, error)
}

// oa2ConsentReqProcessor is an interface that is used for creating and accepting an OAuth2 consent request.
//
// InitiateRequest returns oauth2.ErrChallengeNotFound if the OAuth2 provider failed to find the challenge.
// InitiateRequest returns oauth2.ErrChallengeExpired if the OAuth2 provider processed the challenge previously.
type oa2ConsentReqProcessor interface {
	InitiateRequest(challenge string) (*oauth2.ReqInfo, error)
	oa2ConsentReqAcceptor
}

// oa2ConsentReqFinisher is an interface that is used for finishing an OAuth2 consent request
// with either an acceptance or a rejection.
type oa2ConsentReqFinisher interface {
	oa2ConsentReqProcessor
	RejectConsentRequest(challenge, errorCode, errorDescription string) (string, error)
}

// traitsFinder is an interface that is used for searching identity traits for the given subject.
//
// FindTraits returns kratos.ErrIdentityNotFound if the identity store has no record for the subject.
type traitsFinder interface {
	FindTraits(ctx context.Context, id string) (*kratos.Traits, error)
}

// sessionOverrider is an interface that is used for overriding a session's claims
// before a consent request is accepted.
type sessionOverrider interface {
	Apply(grantScope []string, ri *oauth2.ReqInfo, base oauth2.Session) oauth2.Session
}

// consentTmplData is a data that is needed for rendering the consent page.
type consentTmplData struct {
	CSRFToken       string
	Challenge       string
	RequestedScopes []string
	Subject         string
	Client          oauth2.Client
	ConsentURL      string
}

func (srv *Server) handleConsentStart(rproc oa2ConsentReqProcessor, tfinder traitsFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		challenge := r.URL.Query().Get("consent_challenge")
		if challenge == "" {
			log.Debug("No consent challenge that is needed by the OAuth2 provider")
			http.Error(w, "No consent challenge", http.StatusBadRequest)
			return
		}

		ri, err := rproc.InitiateRequest(challenge)
		if err != nil {
			log = log.With("challenge", challenge)
			switch errors.Cause(err) {
			case oauth2.ErrChallengeNotFound:
				log.Debugw("Unknown consent challenge in the OAuth2 provider", "error", err)
				http.Error(w, "Unknown consent challenge", http.StatusBadRequest)
				return
			case oauth2.ErrChallengeExpired:
				log.Debugw("Consent challenge has been used already in the OAuth2 provider", "error", err)
				http.Error(w, "Consent challenge has been used already", http.StatusBadRequest)
				return
			}
			log.Infow("Failed to initiate an OAuth2 consent request", "error", err)
			http.Error(w, internalServerErrorMessage, http.StatusInternalServerError)
			return
		}
		log.Infow("A consent request is initiated", "challenge", challenge, "subject", ri.Subject)

		if ri.SkipConsent() {
			traits, err := tfinder.FindTraits(r.Context(), ri.Subject)
			if err != nil {
				log.Infow("Failed to find identity traits for the subject", "error", err, "subject", ri.Subject)
				http.Error(w, internalServerErrorMessage, http.StatusInternalServerError)
				return
			}

			// The OAuth2 provider has already checked the requested scopes and audience,
			// so the full requested set is granted as-is.
			session := claims.Assemble(ri.RequestedScopes, traits)
			redirectURI, err := rproc.AcceptConsentRequest(challenge, false, ri.RequestedScopes, ri.RequestedAudience, session)
			if err != nil {
				log.Infow("Failed to accept a consent request to the OAuth2 provider", "error", err)
				http.Error(w, internalServerErrorMessage, http.StatusInternalServerError)
				return
			}
			log.Debugw("Accepted the consent request without the consent page", "scopes", ri.RequestedScopes)
			srv.countDecision("skipped")
			http.Redirect(w, r, redirectURI, http.StatusFound)
			return
		}

		data := consentTmplData{
			CSRFToken:       nosurf.Token(r),
			Challenge:       challenge,
			RequestedScopes: ri.RequestedScopes,
			Subject:         ri.Subject,
			Client:          ri.Client,
			ConsentURL:      strings.TrimPrefix(r.URL.Path, "/"),
		}
		if err := srv.renderConsentTemplate(w, r, data); err != nil {
			log.Infow("Failed to render a consent page template", "error", err)
			http.Error(w, internalServerErrorMessage, http.StatusInternalServerError)
			return
		}
	}
}

func (srv *Server) handleConsentEnd(rfin oa2ConsentReqFinisher, overrider sessionOverrider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		r.ParseForm()

		challenge := r.Form.Get("challenge")
		if challenge == "" {
			log.Debug("No consent challenge that is needed by the OAuth2 provider")
			http.Error(w, "No consent challenge", http.StatusBadRequest)
			return
		}
		log = log.With("challenge", challenge)

		if r.Form.Get("submit") == denySubmitValue {
			redirectTo, err := rfin.RejectConsentRequest(challenge, accessDeniedError, accessDeniedDescription)
			if err != nil {
				switch errors.Cause(err) {
				case oauth2.ErrChallengeNotFound:
					log.Debugw("Unknown consent challenge in the OAuth2 provider", "error", err)
					http.Error(w, "Unknown consent challenge", http.StatusBadRequest)
					return
				case oauth2.ErrChallengeExpired:
					log.Debugw("Consent challenge has been used already in the OAuth2 provider", "error", err)
					http.Error(w, "Consent challenge has been used already", http.StatusBadRequest)
					return
				}
				log.Infow("Failed to reject a consent request to the OAuth2 provider", "error", err)
				http.Error(w, internalServerErrorMessage, http.StatusInternalServerError)
				return
			}
			log.Infow("The consent request is denied by the resource owner")
			srv.countDecision("denied")
			http.Redirect(w, r, redirectTo, http.StatusFound)
			return
		}

		grantScope := r.Form["grant_scope"]
		remember := r.Form.Get("remember") != ""

		// The consent request is fetched again because the submitted form is trusted
		// for the scope selection and the remember flag only. The audience must come
		// from the OAuth2 provider.
		ri, err := rfin.InitiateRequest(challenge)
		if err != nil {
			switch errors.Cause(err) {
			case oauth2.ErrChallengeNotFound:
				log.Debugw("Unknown consent challenge in the OAuth2 provider", "error", err)
				http.Error(w, "Unknown consent challenge", http.StatusBadRequest)
				return
			case oauth2.ErrChallengeExpired:
				log.Debugw("Consent challenge has been used already in the OAuth2 provider", "error", err)
				http.Error(w, "Consent challenge has been used already", http.StatusBadRequest)
				return
			}
			log.Infow("Failed to initiate an OAuth2 consent request", "error", err)
			http.Error(w, internalServerErrorMessage, http.StatusInternalServerError)
			return
		}

		session := overrider.Apply(grantScope, ri, oauth2.NewSession())
		redirectTo, err := rfin.AcceptConsentRequest(challenge, remember, grantScope, ri.RequestedAudience, session)
		if err != nil {
			log.Infow("Failed to accept a consent request to the OAuth2 provider", "error", err, "scopes", grantScope)
			http.Error(w, internalServerErrorMessage, http.StatusInternalServerError)
			return
		}
		log.Debugw("Accepted the consent request to the OAuth2 provider", "scopes", grantScope, "remember", remember)
		srv.countDecision("accepted")
		http.Redirect(w, r, redirectTo, http.StatusFound)
	}
}

func (srv *Server) countDecision(outcome string) {
	if srv.decisions == nil {
		return
	}
	srv.decisions.WithLabelValues(outcome).Inc()
}

func (srv *Server) handleHealthAliveAndReady() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		resp := struct {
			Status string `json:"status"`
		}{
			Status: "ok",
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Infow("Failed to marshal health liveness and readiness status", "error", err)
			http.Error(w, internalServerErrorMessage, http.StatusInternalServerError)
			return
		}
	}
}

func (srv *Server) handleVersion() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		resp := struct {
			Version string `json:"version"`
		}{
			Version: Version,
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Infow("Failed to marshal version", "error", err)
			http.Error(w, internalServerErrorMessage, http.StatusInternalServerError)
			return
		}
	}
}
