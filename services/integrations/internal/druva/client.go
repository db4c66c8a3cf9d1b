package druva

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/siem-soar-platform/integrations/pkg/host"
	"github.com/siem-soar-platform/integrations/pkg/httpclient"
	"github.com/siem-soar-platform/integrations/pkg/tokencache"
)

// Client calls the Druva event management API with a client-credentials
// bearer token cached in the integration context.
type Client struct {
	http   *httpclient.Client
	oauth  clientcredentials.Config
	tokens *tokencache.Cache
	now    func() time.Time
}

// NewClient creates a client.
func NewClient(baseURL, clientID, secret string, verify, proxy bool, limit httpclient.Limit, store host.ContextStore) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		http: httpclient.New(httpclient.Config{
			BaseURL: baseURL,
			Verify:  verify,
			Proxy:   proxy,
			Limit:   limit,
		}),
		oauth: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: secret,
			TokenURL:     baseURL + "/token",
			Scopes:       []string{"read"},
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		tokens: tokencache.New(store),
		now:    time.Now,
	}
}

func (c *Client) token(ctx context.Context) (string, error) {
	return c.tokens.Get(ctx, func(ctx context.Context, _ string) (tokencache.Token, error) {
		return tokencache.ClientCredentials(ctx, c.oauth, c.http.HTTPClient(), c.now())
	})
}

// EventsPage is one batch of events, at most 500, and the tracker that
// points past it.
type EventsPage struct {
	Tracker string                   `json:"tracker"`
	Events  []map[string]interface{} `json:"events"`
}

// SearchEvents returns the events after tracker, or the oldest retained
// events when tracker is empty.
func (c *Client) SearchEvents(ctx context.Context, tracker string) (*EventsPage, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	var query url.Values
	if tracker != "" {
		query = url.Values{"tracker": {tracker}}
	}

	var page EventsPage
	err = c.http.DoJSON(ctx, httpclient.Request{
		Method: http.MethodGet,
		Path:   "/insync/eventmanagement/v2/events",
		Query:  query,
		Headers: map[string]string{
			"Authorization": "Bearer " + tok,
			"Accept":        "application/json",
		},
	}, &page)
	if err != nil {
		return nil, err
	}
	return &page, nil
}
