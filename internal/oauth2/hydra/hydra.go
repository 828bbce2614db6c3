/*
Copyright (c) JSC iCore.

This source code is licensed under the MIT license found in the
LICENSE file in the root directory of this source tree.
*/

// Package hydra provides a client for the consent flow of the ORY Hydra Admin API.
package hydra

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"

	"github.com/i-core/consentd/internal/oauth2"
)

type action string

const (
	actionAccept action = "accept"
	actionReject action = "reject"
)

func initiateRequest(hydraURL string, fakeTLSTermination bool, challenge string) (*oauth2.ReqInfo, error) {
	if challenge == "" {
		return nil, oauth2.ErrChallengeMissed
	}
	ref, err := url.Parse("oauth2/auth/requests/consent?consent_challenge=" + url.QueryEscape(challenge))
	if err != nil {
		return nil, err
	}
	u, err := parseURL(hydraURL)
	if err != nil {
		return nil, err
	}
	u = u.ResolveReference(ref)

	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if fakeTLSTermination {
		req.Header.Add("X-Forwarded-Proto", "https")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err = checkResponse(resp); err != nil {
		return nil, err
	}
	data, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var ri oauth2.ReqInfo
	if err := json.Unmarshal(data, &ri); err != nil {
		return nil, err
	}
	return &ri, nil
}

func finishRequest(act action, hydraURL string, fakeTLSTermination bool, challenge string, data interface{}) (string, error) {
	if challenge == "" {
		return "", oauth2.ErrChallengeMissed
	}
	ref, err := url.Parse(fmt.Sprintf("oauth2/auth/requests/consent/%s?consent_challenge=%s", string(act), url.QueryEscape(challenge)))
	if err != nil {
		return "", err
	}
	u, err := parseURL(hydraURL)
	if err != nil {
		return "", err
	}
	u = u.ResolveReference(ref)

	var body []byte
	if data != nil {
		if body, err = json.Marshal(data); err != nil {
			return "", err
		}
	}

	r, err := http.NewRequest(http.MethodPut, u.String(), bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	if fakeTLSTermination {
		r.Header.Add("X-Forwarded-Proto", "https")
	}

	r.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(r)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		return "", err
	}
	var rs struct {
		RedirectTo string `json:"redirect_to"`
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&rs); err != nil {
		return "", err
	}
	return rs.RedirectTo, nil
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 302 {
		return nil
	}

	switch resp.StatusCode {
	case 401:
		return oauth2.ErrUnauthenticated
	case 404:
		return oauth2.ErrChallengeNotFound
	case 409:
		return oauth2.ErrChallengeExpired
	default:
		var rs struct {
			Message string `json:"error"`
		}
		data, err := ioutil.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &rs); err != nil {
			return err
		}
		return fmt.Errorf("bad HTTP status code %d with message %q", resp.StatusCode, rs.Message)
	}
}

func parseURL(s string) (*url.URL, error) {
	if len(s) > 0 && s[len(s)-1] != '/' {
		s += "/"
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	return u, nil
}
