package venafi

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cast"

	"github.com/siem-soar-platform/integrations/pkg/errors"
	"github.com/siem-soar-platform/integrations/pkg/host"
	"github.com/siem-soar-platform/integrations/pkg/httpclient"
	"github.com/siem-soar-platform/integrations/pkg/tokencache"
)

// tokenMargin is taken off the vendor-reported lifetime.
const tokenMargin = 2 * time.Minute

func badCredentials() error {
	return &errors.AppError{
		Code:       errors.CodeUpstream,
		Message:    "Failed to generate a token. Credentials are incorrect.",
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Client calls the TLS Protect (TPP) REST API.
type Client struct {
	http     *httpclient.Client
	clientID string
	username string
	password string
	tokens   *tokencache.Cache
	now      func() time.Time
}

// NewClient creates a client. Tokens are cached in store.
func NewClient(baseURL, clientID, username, password string, verify, proxy bool, limit httpclient.Limit, store host.ContextStore) *Client {
	return &Client{
		http: httpclient.New(httpclient.Config{
			BaseURL: baseURL,
			Verify:  verify,
			Proxy:   proxy,
			Limit:   limit,
		}),
		clientID: clientID,
		username: username,
		password: password,
		tokens:   tokencache.New(store, tokencache.WithMargin(tokenMargin)),
		now:      time.Now,
	}
}

type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    interface{} `json:"expires_in"`
}

func (c *Client) requestToken(ctx context.Context, path string, body map[string]string) (tokencache.Token, error) {
	var resp tokenResponse
	err := c.http.DoJSON(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   path,
		JSON:   body,
	}, &resp)
	if err != nil {
		if errors.Contains(err, "Unauthorized") {
			return tokencache.Token{}, badCredentials()
		}
		return tokencache.Token{}, err
	}

	expiresIn := cast.ToInt64(resp.ExpiresIn)
	if expiresIn <= 0 {
		expiresIn = 1
	}
	return tokencache.Token{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    tokencache.ExpiresIn(c.now(), expiresIn),
	}, nil
}

// fetchToken refreshes the stored token when possible and logs in with the
// user's credentials otherwise, or when the refresh token was rejected.
func (c *Client) fetchToken(ctx context.Context, refresh string) (tokencache.Token, error) {
	if refresh != "" {
		tok, err := c.requestToken(ctx, "/vedauth/authorize/token", map[string]string{
			"client_id":     c.clientID,
			"refresh_token": refresh,
		})
		if err == nil {
			return tok, nil
		}
		if errors.StatusCode(err) == 0 {
			return tokencache.Token{}, err
		}
	}
	return c.requestToken(ctx, "/vedauth/authorize/oauth", map[string]string{
		"username":  c.username,
		"password":  c.password,
		"client_id": c.clientID,
		"scope":     "certificate",
	})
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (map[string]interface{}, error) {
	tok, err := c.tokens.Get(ctx, c.fetchToken)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	err = c.http.DoJSON(ctx, httpclient.Request{
		Path:    path,
		Query:   query,
		Headers: map[string]string{"Authorization": "Bearer " + tok},
	}, &out)
	return out, err
}

// GetCertificates lists certificates matching the filters in query.
func (c *Client) GetCertificates(ctx context.Context, query url.Values) (map[string]interface{}, error) {
	return c.get(ctx, "/vedsdk/certificates/", query)
}

// GetCertificateDetails returns one certificate by guid.
func (c *Client) GetCertificateDetails(ctx context.Context, guid string) (map[string]interface{}, error) {
	return c.get(ctx, "/vedsdk/certificates/"+url.PathEscape(guid), nil)
}
