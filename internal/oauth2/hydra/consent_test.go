/*
Copyright (c) JSC iCore.

This source code is licensed under the MIT license found in the
LICENSE file in the root directory of this source tree.
*/

package hydra_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strconv"
	"testing"

	"github.com/i-core/consentd/internal/oauth2"
	"github.com/i-core/consentd/internal/oauth2/hydra"
	"github.com/pkg/errors"
)

func TestInitiateConsentRequest(t *testing.T) {
	testCases := []struct {
		name      string
		challenge string
		reqInfo   *oauth2.ReqInfo
		status    int
		wantErr   error
	}{
		{
			name:    "challenge is missed",
			wantErr: oauth2.ErrChallengeMissed,
		},
		{
			name:      "challenge is not found",
			challenge: "foo",
			status:    404,
			wantErr:   oauth2.ErrChallengeNotFound,
		},
		{
			name:      "challenge is expired",
			challenge: "foo",
			status:    409,
			wantErr:   oauth2.ErrChallengeExpired,
		},
		{
			name:      "happy path",
			challenge: "foo",
			status:    200,
			reqInfo: &oauth2.ReqInfo{
				Challenge:         "foo",
				RequestedScopes:   []string{"profile", "email"},
				RequestedAudience: []string{"http://foo.bar"},
				Skip:              true,
				Subject:           "testSubject",
				Client:            oauth2.Client{ID: "testClient", Name: "Test Client"},
			},
		},
		{
			name:      "skip on the client's level",
			challenge: "foo",
			status:    200,
			reqInfo: &oauth2.ReqInfo{
				Challenge:       "foo",
				RequestedScopes: []string{"profile"},
				Subject:         "testSubject",
				Client:          oauth2.Client{ID: "testClient", SkipConsent: true},
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := &testInitiateConsentHandler{reqInfo: tc.reqInfo, status: tc.status}
			srv := httptest.NewServer(h)
			defer srv.Close()
			crd := hydra.NewConsentReqDoer(srv.URL, false, 0)

			reqInfo, err := crd.InitiateRequest(tc.challenge)

			if tc.wantErr != nil {
				if err == nil {
					t.Fatalf("\ngot no errors\nwant error:\n\t%s", tc.wantErr)
				}
				err = errors.Cause(err)
				if err != tc.wantErr {
					t.Fatalf("\ngot error:\n\t%s\nwant error:\n\t%s", err, tc.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("\ngot error:\n\t%s\nwant no errors", err)
			}

			if h.challenge != tc.challenge {
				t.Errorf("\ngot challenge:\n\t%#v\nwant challenge:\n\t%#v", h.challenge, tc.challenge)
			}
			if !reflect.DeepEqual(tc.reqInfo, reqInfo) {
				t.Errorf("\ngot request info:\n\t%#v\nwant request info:\n\t%#v", reqInfo, tc.reqInfo)
			}
		})
	}
}

type testInitiateConsentHandler struct {
	reqInfo   *oauth2.ReqInfo
	status    int
	challenge string
}

func (h *testInitiateConsentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet || r.URL.Path != "/oauth2/auth/requests/consent" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		if err := json.NewEncoder(w).Encode(map[string]interface{}{"error": http.StatusText(http.StatusMethodNotAllowed)}); err != nil {
			panic(fmt.Sprintf("initial request: failed to write response: %s", err))
		}
		return
	}
	h.challenge = r.URL.Query().Get("consent_challenge")
	w.WriteHeader(h.status)
	if h.status == http.StatusOK {
		if err := json.NewEncoder(w).Encode(h.reqInfo); err != nil {
			panic(fmt.Sprintf("initial request: failed to write response: %s", err))
		}
	}
}

func TestAcceptConsentRequest(t *testing.T) {
	testCases := []struct {
		name          string
		challenge     string
		rememberFor   int
		remember      bool
		grantScope    []interface{}
		grantAudience []interface{}
		session       oauth2.Session
		status        int
		redirect      string
		wantErr       error
	}{
		{
			name:    "challenge is missed",
			wantErr: oauth2.ErrChallengeMissed,
		},
		{
			name:          "challenge is not found",
			challenge:     "foo",
			rememberFor:   10,
			remember:      true,
			grantScope:    []interface{}{"scope1", "scope2"},
			grantAudience: []interface{}{},
			session:       oauth2.NewSession(),
			status:        http.StatusNotFound,
			wantErr:       oauth2.ErrChallengeNotFound,
		},
		{
			name:          "happy path",
			challenge:     "foo",
			rememberFor:   10,
			remember:      true,
			grantScope:    []interface{}{"scope1", "scope2"},
			grantAudience: []interface{}{"https://server.com"},
			session: oauth2.Session{
				AccessToken: map[string]interface{}{},
				IDToken:     map[string]interface{}{"email": "a@example.com"},
			},
			status:   http.StatusOK,
			redirect: "/test-redirect",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := &testFinishConsentHandler{path: "/oauth2/auth/requests/consent/accept", status: tc.status, redirect: tc.redirect}
			srv := httptest.NewServer(h)
			defer srv.Close()
			crd := hydra.NewConsentReqDoer(srv.URL, false, tc.rememberFor)

			var grantScope []string
			for _, v := range tc.grantScope {
				grantScope = append(grantScope, v.(string))
			}
			var grantAudience []string
			for _, v := range tc.grantAudience {
				grantAudience = append(grantAudience, v.(string))
			}
			redirect, err := crd.AcceptConsentRequest(tc.challenge, tc.remember, grantScope, grantAudience, tc.session)

			if tc.wantErr != nil {
				if err == nil {
					t.Fatalf("\ngot no errors\nwant error:\n\t%s", tc.wantErr)
				}
				err = errors.Cause(err)
				if err.Error() != tc.wantErr.Error() {
					t.Fatalf("\ngot error:\n\t%s\nwant error:\n\t%s", err, tc.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("\ngot error:\n\t%s\nwant no errors", err)
			}

			if h.challenge != tc.challenge {
				t.Errorf("\ngot challenge:\n\t%#v\nwant challenge:\n\t%#v", h.challenge, tc.challenge)
			}
			wantSession := map[string]interface{}{
				"access_token": tc.session.AccessToken,
				"id_token":     tc.session.IDToken,
			}
			wantData := map[string]interface{}{
				"grant_scope":                 tc.grantScope,
				"grant_access_token_audience": tc.grantAudience,
				"remember":                    tc.remember,
				"remember_for":                tc.rememberFor,
				"session":                     wantSession,
			}
			if !reflect.DeepEqual(h.data, wantData) {
				t.Errorf("\ngot request data:\n\t%#v\nwant request data:\n\t%#v", h.data, wantData)
			}
			if redirect != tc.redirect {
				t.Errorf("\ngot redirect URL:\n\t%#v\nwant redirect URL:\n\t%#v", redirect, tc.redirect)
			}
		})
	}
}

func TestRejectConsentRequest(t *testing.T) {
	testCases := []struct {
		name             string
		challenge        string
		errorCode        string
		errorDescription string
		status           int
		redirect         string
		wantErr          error
	}{
		{
			name:    "challenge is missed",
			wantErr: oauth2.ErrChallengeMissed,
		},
		{
			name:             "challenge is not found",
			challenge:        "foo",
			errorCode:        "access_denied",
			errorDescription: "The resource owner denied the request",
			status:           http.StatusNotFound,
			wantErr:          oauth2.ErrChallengeNotFound,
		},
		{
			name:             "happy path",
			challenge:        "foo",
			errorCode:        "access_denied",
			errorDescription: "The resource owner denied the request",
			status:           http.StatusOK,
			redirect:         "/test-redirect",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := &testFinishConsentHandler{path: "/oauth2/auth/requests/consent/reject", status: tc.status, redirect: tc.redirect}
			srv := httptest.NewServer(h)
			defer srv.Close()
			crd := hydra.NewConsentReqDoer(srv.URL, false, 0)

			redirect, err := crd.RejectConsentRequest(tc.challenge, tc.errorCode, tc.errorDescription)

			if tc.wantErr != nil {
				if err == nil {
					t.Fatalf("\ngot no errors\nwant error:\n\t%s", tc.wantErr)
				}
				err = errors.Cause(err)
				if err.Error() != tc.wantErr.Error() {
					t.Fatalf("\ngot error:\n\t%s\nwant error:\n\t%s", err, tc.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("\ngot error:\n\t%s\nwant no errors", err)
			}

			if h.challenge != tc.challenge {
				t.Errorf("\ngot challenge:\n\t%#v\nwant challenge:\n\t%#v", h.challenge, tc.challenge)
			}
			wantData := map[string]interface{}{
				"error":             tc.errorCode,
				"error_description": tc.errorDescription,
			}
			if !reflect.DeepEqual(h.data, wantData) {
				t.Errorf("\ngot request data:\n\t%#v\nwant request data:\n\t%#v", h.data, wantData)
			}
			if redirect != tc.redirect {
				t.Errorf("\ngot redirect URL:\n\t%#v\nwant redirect URL:\n\t%#v", redirect, tc.redirect)
			}
		})
	}
}

type testFinishConsentHandler struct {
	path      string
	challenge string
	data      map[string]interface{}
	status    int
	redirect  string
}

func (h *testFinishConsentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut || r.URL.Path != h.path {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	h.challenge = r.URL.Query().Get("consent_challenge")
	w.WriteHeader(h.status)
	if r.Body != http.NoBody {
		// Note: Go JSON Decoder decodes numbers as float64, but we need int.
		// So we convert numbers to int manually.
		var raw map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
			panic(fmt.Sprintf("finish request: failed to read request body: %s", err))
		}
		h.data = make(map[string]interface{}, len(raw))
		for key, val := range raw {
			s := string(val)
			if i, err := strconv.Atoi(s); err == nil {
				h.data[key] = i
				continue
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				h.data[key] = f
				continue
			}
			var v interface{}
			if err := json.Unmarshal(val, &v); err == nil {
				h.data[key] = v
				continue
			}
			h.data[key] = val
		}
	}
	if h.status == http.StatusOK {
		if err := json.NewEncoder(w).Encode(map[string]interface{}{"redirect_to": h.redirect}); err != nil {
			panic(fmt.Sprintf("finish request: failed to write response: %s", err))
		}
	}
}
