// Package tokencache implements the token-cache-with-refresh pattern shared
// by the OAuth-based integrations: a bearer token and its expiry live in the
// instance's integration context and are reused until they expire.
package tokencache

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cast"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/siem-soar-platform/integrations/pkg/host"
)

// DefaultMargin is subtracted from the vendor-reported lifetime so a token
// is never used in its last minute.
const DefaultMargin = 60 * time.Second

// Token is an access token with its expiry.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Keys names the integration context fields used by a cache.
type Keys struct {
	Token   string
	Expires string
	Refresh string
}

// DefaultKeys are the field names used unless overridden.
var DefaultKeys = Keys{Token: "token", Expires: "expires", Refresh: "refresh_token"}

// Cache reads and writes a token in an integration context.
type Cache struct {
	store  host.ContextStore
	keys   Keys
	margin time.Duration
	now    func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithMargin overrides DefaultMargin.
func WithMargin(d time.Duration) Option {
	return func(c *Cache) { c.margin = d }
}

// WithKeys overrides DefaultKeys.
func WithKeys(k Keys) Option {
	return func(c *Cache) { c.keys = k }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache over store.
func New(store host.ContextStore, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		keys:   DefaultKeys,
		margin: DefaultMargin,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load returns whatever token is stored, expired or not. A nil token means
// nothing was cached.
func (c *Cache) Load(ctx context.Context) (*Token, error) {
	doc, err := c.store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read integration context: %w", err)
	}

	access := cast.ToString(doc[c.keys.Token])
	if access == "" {
		return nil, nil
	}

	tok := &Token{
		AccessToken:  access,
		RefreshToken: cast.ToString(doc[c.keys.Refresh]),
	}
	if exp := cast.ToInt64(doc[c.keys.Expires]); exp > 0 {
		tok.ExpiresAt = time.Unix(exp, 0)
	}
	return tok, nil
}

// Valid returns the cached access token when it has not expired.
func (c *Cache) Valid(ctx context.Context) (string, bool, error) {
	tok, err := c.Load(ctx)
	if err != nil || tok == nil {
		return "", false, err
	}
	if tok.ExpiresAt.IsZero() || !c.now().Before(tok.ExpiresAt) {
		return "", false, nil
	}
	return tok.AccessToken, true, nil
}

// Save stores tok, shortening its expiry by the safety margin. Other keys in
// the integration context are preserved.
func (c *Cache) Save(ctx context.Context, tok Token) error {
	expires := tok.ExpiresAt.Add(-c.margin)
	return host.Update(ctx, c.store, func(doc map[string]interface{}) {
		doc[c.keys.Token] = tok.AccessToken
		doc[c.keys.Expires] = expires.Unix()
		if tok.RefreshToken != "" {
			doc[c.keys.Refresh] = tok.RefreshToken
		}
	})
}

// FetchFunc obtains a new token. refresh is the stored refresh token, empty
// when none is available.
type FetchFunc func(ctx context.Context, refresh string) (Token, error)

// Get returns a valid cached token or obtains, stores and returns a new one.
func (c *Cache) Get(ctx context.Context, fetch FetchFunc) (string, error) {
	stored, err := c.Load(ctx)
	if err != nil {
		return "", err
	}
	if stored != nil && !stored.ExpiresAt.IsZero() && c.now().Before(stored.ExpiresAt) {
		return stored.AccessToken, nil
	}

	refresh := ""
	if stored != nil {
		refresh = stored.RefreshToken
	}

	tok, err := fetch(ctx, refresh)
	if err != nil {
		return "", err
	}
	if err := c.Save(ctx, tok); err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// ExpiresIn converts a vendor "expires_in" seconds value to an absolute
// expiry relative to now.
func ExpiresIn(now time.Time, seconds int64) time.Time {
	return now.Add(time.Duration(seconds) * time.Second)
}

// ExpiryFromJWT reads the exp claim of a JWT without verifying its
// signature. The token is only inspected to schedule its refresh.
func ExpiryFromJWT(raw string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to parse jwt: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read jwt expiry: %w", err)
	}
	if exp == nil {
		return time.Time{}, fmt.Errorf("jwt has no exp claim")
	}
	return exp.Time, nil
}

// ClientCredentials requests a token with the OAuth2 client-credentials
// grant. httpClient carries the instance's TLS and proxy settings.
func ClientCredentials(ctx context.Context, cfg clientcredentials.Config, httpClient *http.Client, now time.Time) (Token, error) {
	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}

	tok, err := cfg.Token(ctx)
	if err != nil {
		return Token{}, err
	}

	expires := tok.Expiry
	if expires.IsZero() {
		expires = now.Add(time.Hour)
	}
	return Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expires,
	}, nil
}
