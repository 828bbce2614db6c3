/*
Copyright (c) JSC iCore.

This source code is licensed under the MIT license found in the
LICENSE file in the root directory of this source tree.
*/

package hydra

import (
	"github.com/i-core/consentd/internal/oauth2"
	"github.com/pkg/errors"
)

// ConsentReqDoer fetches information on an OAuth2 consent request and then accepts or rejects it.
type ConsentReqDoer struct {
	hydraURL           string
	fakeTLSTermination bool
	rememberFor        int
}

// NewConsentReqDoer creates a ConsentReqDoer.
func NewConsentReqDoer(hydraURL string, fakeTLSTermination bool, rememberFor int) *ConsentReqDoer {
	return &ConsentReqDoer{hydraURL: hydraURL, fakeTLSTermination: fakeTLSTermination, rememberFor: rememberFor}
}

// InitiateRequest fetches information on the OAuth2 consent request.
//
// InitiateRequest returns oauth2.ErrChallengeNotFound if the OAuth2 provider failed to find the challenge.
// InitiateRequest returns oauth2.ErrChallengeExpired if the OAuth2 provider processed the challenge previously.
func (crd *ConsentReqDoer) InitiateRequest(challenge string) (*oauth2.ReqInfo, error) {
	ri, err := initiateRequest(crd.hydraURL, crd.fakeTLSTermination, challenge)
	return ri, errors.Wrap(err, "failed to initiate consent request")
}

// AcceptConsentRequest accepts the consent request, and returns a redirect URI.
//
// The granted scopes must be a subset of the requested ones, the granted audience
// must echo the requested audience as-is. The OAuth2 provider validates both.
func (crd *ConsentReqDoer) AcceptConsentRequest(challenge string, remember bool, grantScope, grantAudience []string, session oauth2.Session) (string, error) {
	data := struct {
		GrantScope    []string       `json:"grant_scope"`
		GrantAudience []string       `json:"grant_access_token_audience"`
		Remember      bool           `json:"remember"`
		RememberFor   int            `json:"remember_for"`
		Session       oauth2.Session `json:"session"`
	}{
		GrantScope:    grantScope,
		GrantAudience: grantAudience,
		Remember:      remember,
		RememberFor:   crd.rememberFor,
		Session:       session,
	}
	redirectURI, err := finishRequest(actionAccept, crd.hydraURL, crd.fakeTLSTermination, challenge, data)
	return redirectURI, errors.Wrap(err, "failed to accept consent request")
}

// RejectConsentRequest rejects the consent request, and returns a redirect URI.
func (crd *ConsentReqDoer) RejectConsentRequest(challenge, errorCode, errorDescription string) (string, error) {
	data := struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}{
		Error:            errorCode,
		ErrorDescription: errorDescription,
	}
	redirectURI, err := finishRequest(actionReject, crd.hydraURL, crd.fakeTLSTermination, challenge, data)
	return redirectURI, errors.Wrap(err, "failed to reject consent request")
}
