/*
Copyright (c) JSC iCore.

This source code is licensed under the MIT license found in the
LICENSE file in the root directory of this source tree.
*/

// Package oauth2 contains types and errors that are shared between the consent flow's components.
package oauth2

import "errors"

var (
	// ErrChallengeMissed is an error that happens when a challenge is missed.
	ErrChallengeMissed = errors.New("challenge missed")
	// ErrUnauthenticated is an error that happens when authentication is failed.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrChallengeNotFound is an error that happens when an unknown challenge is used.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrChallengeExpired is an error that happens when a challenge is already used.
	ErrChallengeExpired = errors.New("challenge expired")
)

// Client contains public information on an OAuth2 client that requests consent.
//
// The field SkipConsent duplicates the request-level skip flag on the client's level.
// It comes from unreleased OAuth2 provider's SDK changes.
// TODO: Remove when the OAuth2 provider reports the flag on the request's level only.
type Client struct {
	ID          string `json:"client_id"`
	Name        string `json:"client_name"`
	SkipConsent bool   `json:"skip_consent"`
}

// ReqInfo contains information on an ongoing consent request.
type ReqInfo struct {
	Challenge         string   `json:"challenge"`
	RequestedScopes   []string `json:"requested_scope"`
	RequestedAudience []string `json:"requested_access_token_audience"`
	Skip              bool     `json:"skip"`
	Subject           string   `json:"subject"`
	Client            Client   `json:"client"`
}

// SkipConsent reports whether the OAuth2 provider allows to accept the consent request
// without showing the consent page.
func (ri *ReqInfo) SkipConsent() bool {
	return ri.Skip || ri.Client.SkipConsent
}

// Session contains claims that are granted with an accepted consent request.
// Claims from IDToken are merged into the OIDC ID token. Claims from AccessToken
// are available when the issued access token is introspected.
type Session struct {
	AccessToken map[string]interface{} `json:"access_token"`
	IDToken     map[string]interface{} `json:"id_token"`
}

// NewSession creates a Session with empty claims.
func NewSession() Session {
	return Session{
		AccessToken: map[string]interface{}{},
		IDToken:     map[string]interface{}{},
	}
}
