/*
Copyright (c) JSC iCore.

This source code is licensed under the MIT license found in the
LICENSE file in the root directory of this source tree.
*/

// Package claims assembles token claims that are granted with an accepted consent request.
package claims

import (
	"github.com/i-core/consentd/internal/kratos"
	"github.com/i-core/consentd/internal/oauth2"
)

// A rule adds a claim to the ID token when the rule's scope is granted.
// The rule is skipped when the identity has no value for the claim.
type rule struct {
	scope string
	claim string
	value func(t *kratos.Traits) (interface{}, bool)
}

// New scope-to-claim mappings are added here; callers are unaffected.
var idTokenRules = []rule{
	{
		scope: "email",
		claim: "email",
		value: func(t *kratos.Traits) (interface{}, bool) { return t.Email, t.Email != "" },
	},
}

// Assemble builds a session with claims that correspond to the granted scopes
// using the given identity traits.
func Assemble(grantedScopes []string, traits *kratos.Traits) oauth2.Session {
	session := oauth2.NewSession()
	if traits == nil {
		return session
	}
	for _, r := range idTokenRules {
		if !containsScope(grantedScopes, r.scope) {
			continue
		}
		if v, ok := r.value(traits); ok {
			session.IDToken[r.claim] = v
		}
	}
	return session
}

func containsScope(scopes []string, tgt string) bool {
	for _, s := range scopes {
		if s == tgt {
			return true
		}
	}
	return false
}
