// Package directory resolves actors against the external user directory.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"academy/internal/apperr"
	"academy/internal/model"
)

// User is the directory's view of a person.
type User struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// Client calls the user directory service. Lookups are cached in redis when a client is set.
type Client struct {
	BaseURL  string
	HTTP     *http.Client
	Skip     bool
	cache    *redis.Client
	cacheTTL time.Duration
	log      zerolog.Logger
}

// New creates a client with a short timeout. With skip set, Resolve trusts the token as is.
func New(baseURL string, skip bool, log zerolog.Logger) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Skip:    skip,
		HTTP:    &http.Client{Timeout: 5 * time.Second},
		log:     log.With().Str("component", "directory").Logger(),
	}
}

// WithCache enables redis caching of lookups for ttl.
func (c *Client) WithCache(rdb *redis.Client, ttl time.Duration) *Client {
	c.cache = rdb
	c.cacheTTL = ttl
	return c
}

// Resolve replaces the token's name and role with the directory's. Unknown users are unauthorized.
func (c *Client) Resolve(ctx context.Context, actor model.Actor) (model.Actor, error) {
	if c.Skip {
		return actor, nil
	}
	u, err := c.Lookup(ctx, actor.Email)
	if err != nil {
		return model.Actor{}, err
	}
	return model.Actor{Email: actor.Email, Name: u.Name, Role: u.Role}, nil
}

// Lookup fetches one user by email.
func (c *Client) Lookup(ctx context.Context, email string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return User{}, apperr.E(apperr.Unauthorized, "missing actor")
	}
	if u, ok := c.cached(ctx, email); ok {
		return u, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/users/"+url.PathEscape(email), nil)
	if err != nil {
		return User{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return User{}, fmt.Errorf("directory request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return User{}, apperr.E(apperr.Unauthorized, "unknown user %s", email)
	}
	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return User{}, fmt.Errorf("directory error %s: %s", resp.Status, string(bodyBytes))
	}

	var u User
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return User{}, fmt.Errorf("failed to decode response: %w", err)
	}
	if u.Role == "" {
		return User{}, apperr.E(apperr.Unauthorized, "user %s has no role", email)
	}
	c.store(ctx, email, u)
	return u, nil
}

// Health checks if the directory is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("directory unavailable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("directory unhealthy: %s", resp.Status)
	}
	return nil
}

func cacheKey(email string) string { return "academy:directory:" + email }

func (c *Client) cached(ctx context.Context, email string) (User, bool) {
	if c.cache == nil {
		return User{}, false
	}
	raw, err := c.cache.Get(ctx, cacheKey(email)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Debug().Err(err).Msg("directory cache read failed")
		}
		return User{}, false
	}
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return User{}, false
	}
	return u, true
}

func (c *Client) store(ctx context.Context, email string, u User) {
	if c.cache == nil || c.cacheTTL <= 0 {
		return
	}
	raw, _ := json.Marshal(u)
	if err := c.cache.Set(ctx, cacheKey(email), raw, c.cacheTTL).Err(); err != nil {
		c.log.Debug().Err(err).Msg("directory cache write failed")
	}
}
