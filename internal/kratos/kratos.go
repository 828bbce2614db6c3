/*
Copyright (c) JSC iCore.

This source code is licensed under the MIT license found in the
LICENSE file in the root directory of this source tree.
*/

// Package kratos provides a client for the identity store's admin API.
package kratos

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"time"

	"github.com/coocood/freecache"
	"github.com/i-core/consentd/internal/logger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrIdentityNotFound is an error that happens when the identity store has no record for a subject.
var ErrIdentityNotFound = errors.New("identity not found")

// Config is an identity store's configuration.
type Config struct {
	AdminURL  string        `envconfig:"admin_url" required:"true" desc:"an admin URL of the identity store"`
	CacheSize int           `envconfig:"cache_size" default:"512" desc:"an identity cache's size in KiB"`
	CacheTTL  time.Duration `envconfig:"cache_ttl" default:"30m" desc:"an identity cache TTL"`
}

// Traits are profile attributes of an identity. The identity store may hold more
// traits than listed here; only the listed ones are consumed.
type Traits struct {
	Email string `json:"email"`
}

// Client is a client for the identity store's admin API.
type Client struct {
	Config
	cache *freecache.Cache
}

// New creates a new identity store's client.
func New(cnf Config) *Client {
	return &Client{
		Config: cnf,
		cache:  freecache.NewCache(cnf.CacheSize * 1024),
	}
}

// FindTraits finds traits of the identity with the given ID.
//
// FindTraits returns ErrIdentityNotFound if the identity store has no record for the ID.
func (cli *Client) FindTraits(ctx context.Context, id string) (*Traits, error) {
	log := logger.FromContext(ctx)

	// Try the cache first, a subject's traits rarely change between consent steps.
	switch cdata, err := cli.cache.Get([]byte(id)); err {
	case nil:
		var traits Traits
		if err = json.Unmarshal(cdata, &traits); err != nil {
			log.Infow("Failed to unmarshal cached identity traits", zap.Error(err))
			return nil, err
		}
		log.Debugw("Retrieved identity traits from the cache", "traits", traits)
		return &traits, nil
	case freecache.ErrNotFound:
		log.Debug("Identity traits are not found in the cache")
	default:
		log.Infow("Failed to retrieve identity traits from the cache", zap.Error(err))
	}

	u, err := parseURL(cli.AdminURL)
	if err != nil {
		return nil, err
	}
	ref, err := url.Parse("identities/" + url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	u = u.ResolveReference(ref)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch identity")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrIdentityNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch identity: bad HTTP status code %d", resp.StatusCode)
	}

	data, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var identity struct {
		ID     string `json:"id"`
		Traits Traits `json:"traits"`
	}
	if err := json.Unmarshal(data, &identity); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal identity")
	}
	log.Debugw("Retrieved the identity from the identity store", "id", identity.ID)

	cdata, err := json.Marshal(identity.Traits)
	if err != nil {
		log.Infow("Failed to marshal identity traits for caching", zap.Error(err))
		return &identity.Traits, nil
	}
	if err = cli.cache.Set([]byte(id), cdata, int(cli.CacheTTL.Seconds())); err != nil {
		log.Infow("Failed to store identity traits into the cache", zap.Error(err))
	}

	return &identity.Traits, nil
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
