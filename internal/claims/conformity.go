/*
Copyright (c) JSC iCore.

This source code is licensed under the MIT license found in the
LICENSE file in the root directory of this source tree.
*/

package claims

import "github.com/i-core/consentd/internal/oauth2"

// Conformity substitutes a session's claims with claims of a fake identity
// when the application runs against the OpenID Connect conformity test suite.
// When disabled it returns the session unchanged, so production claim logic
// is never skipped outside of the test mode.
type Conformity struct {
	enabled bool
}

// NewConformity creates a Conformity with the given mode.
func NewConformity(enabled bool) *Conformity {
	return &Conformity{enabled: enabled}
}

// Apply returns a session with fake claims for the granted scopes when
// the conformity mode is enabled; otherwise it returns the base session.
func (c *Conformity) Apply(grantScope []string, ri *oauth2.ReqInfo, base oauth2.Session) oauth2.Session {
	if !c.enabled {
		return base
	}

	session := oauth2.NewSession()
	session.IDToken["sub"] = ri.Subject
	for _, scope := range grantScope {
		switch scope {
		case "email":
			session.IDToken["email"] = "foo@bar.com"
			session.IDToken["email_verified"] = true
		case "profile":
			session.IDToken["name"] = "Foo Bar"
			session.IDToken["given_name"] = "Foo"
			session.IDToken["family_name"] = "Bar"
			session.IDToken["website"] = "https://www.ory.sh"
		case "phone":
			session.IDToken["phone_number"] = "+15551234567"
			session.IDToken["phone_number_verified"] = true
		case "address":
			session.IDToken["address"] = map[string]interface{}{
				"country":        "Localhost",
				"region":         "Intranet",
				"street_address": "Internet Lane 1234",
			}
		}
	}
	return session
}
