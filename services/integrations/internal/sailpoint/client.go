package sailpoint

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/siem-soar-platform/integrations/pkg/host"
	"github.com/siem-soar-platform/integrations/pkg/httpclient"
	"github.com/siem-soar-platform/integrations/pkg/tokencache"
)

// Client calls the IdentityNow v3 search API.
type Client struct {
	http         *httpclient.Client
	clientID     string
	clientSecret string
	tokens       *tokencache.Cache
	now          func() time.Time
}

// NewClient creates a client. Tokens are cached in store.
func NewClient(baseURL, clientID, clientSecret string, verify, proxy bool, limit httpclient.Limit, store host.ContextStore) *Client {
	return &Client{
		http: httpclient.New(httpclient.Config{
			BaseURL: baseURL,
			Verify:  verify,
			Proxy:   proxy,
			Limit:   limit,
			Headers: map[string]string{"Accept": "application/json"},
		}),
		clientID:     clientID,
		clientSecret: clientSecret,
		tokens:       tokencache.New(store),
		now:          time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (c *Client) generateToken(ctx context.Context, _ string) (tokencache.Token, error) {
	var resp tokenResponse
	err := c.http.DoJSON(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   "oauth/token",
		Form: url.Values{
			"client_id":     {c.clientID},
			"grant_type":    {"client_credentials"},
			"client_secret": {c.clientSecret},
		},
		Headers: map[string]string{"scope": "sp:scope:all"},
	}, &resp)
	if err != nil {
		return tokencache.Token{}, err
	}
	return tokencache.Token{
		AccessToken: resp.AccessToken,
		ExpiresAt:   tokencache.ExpiresIn(c.now(), resp.ExpiresIn),
	}, nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	tok, err := c.tokens.Get(ctx, c.generateToken)
	if err != nil {
		return "", fmt.Errorf("Failed to get token. Error: %w", err)
	}
	return tok, nil
}

type searchQuery struct {
	Indices      []string          `json:"indices"`
	QueryType    string            `json:"queryType"`
	QueryVersion string            `json:"queryVersion"`
	Query        map[string]string `json:"query"`
	TimeZone     string            `json:"timeZone"`
	Sort         []string          `json:"sort"`
	SearchAfter  []string          `json:"searchAfter"`
}

// SearchEvents returns up to limit events created since fromDate, sorted by
// id and starting after prevID. A zero limit leaves the page size to the
// server.
func (c *Client) SearchEvents(ctx context.Context, prevID, fromDate string, limit int) ([]map[string]interface{}, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	var query url.Values
	if limit > 0 {
		query = url.Values{"limit": {strconv.Itoa(limit)}}
	}

	var events []map[string]interface{}
	err = c.http.DoJSON(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   "/v3/search",
		Query:  query,
		JSON: searchQuery{
			Indices:      []string{"events"},
			QueryType:    "SAILPOINT",
			QueryVersion: "5.2",
			Query:        map[string]string{"query": fmt.Sprintf("type:* AND created: [%s TO now]", fromDate)},
			TimeZone:     "America/Los_Angeles",
			Sort:         []string{"+id"},
			SearchAfter:  []string{prevID},
		},
		Headers: map[string]string{"Authorization": "Bearer " + tok},
	}, &events)
	if err != nil {
		return nil, err
	}
	return events, nil
}
