package akamai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/akamai/AkamaiOPEN-edgegrid-golang/v8/pkg/edgegrid"

	"github.com/siem-soar-platform/integrations/pkg/errors"
	"github.com/siem-soar-platform/integrations/pkg/httpclient"
)

// emptyMarker starts the offset context line of a response without events.
const emptyMarker = `{ "total": 0`

// Credentials are the EdgeGrid API client credentials.
type Credentials struct {
	ClientToken  string
	ClientSecret string
	AccessToken  string
}

// Client calls the SIEM API.
type Client struct {
	http *httpclient.Client
}

// NewClient creates a client for the given API host. Requests are signed
// with EdgeGrid.
func NewClient(host string, creds Credentials, verify, proxy bool, limit httpclient.Limit) *Client {
	signer := &edgegrid.Config{
		Host:         hostOnly(host),
		ClientToken:  creds.ClientToken,
		ClientSecret: creds.ClientSecret,
		AccessToken:  creds.AccessToken,
		MaxBody:      131072,
	}

	return &Client{
		http: httpclient.New(httpclient.Config{
			BaseURL: strings.TrimRight(host, "/") + "/siem/v1/configs",
			Verify:  verify,
			Proxy:   proxy,
			Limit:   limit,
			Signer:  signer,
		}),
	}
}

func hostOnly(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host
	}
	return raw
}

// EventsQuery selects events in offset mode (Offset) or time mode
// (From, optionally To). Limit applies to both.
type EventsQuery struct {
	ConfigIDs string
	Offset    string
	Limit     string
	From      string
	To        string
}

// GetEvents returns the events of the queried configurations and the
// cursor for the next time-based request: the greatest httpMessage.start
// among the events, or From when no event carries a usable start.
func (c *Client) GetEvents(ctx context.Context, q EventsQuery) ([]map[string]interface{}, string, error) {
	query := url.Values{}
	for k, v := range map[string]string{"offset": q.Offset, "limit": q.Limit, "from": q.From, "to": q.To} {
		if v != "" {
			query.Set(k, v)
		}
	}

	resp, err := c.http.Do(ctx, httpclient.Request{
		Method: http.MethodGet,
		Path:   "/" + q.ConfigIDs,
		Query:  query,
	})
	if err != nil {
		return nil, "", err
	}

	return parseEvents(resp.Text(), q.From)
}

// parseEvents splits the newline delimited response. The final line is the
// offset context and is not an event.
func parseEvents(raw, from string) ([]map[string]interface{}, string, error) {
	if strings.Contains(raw, emptyMarker) {
		return nil, from, nil
	}

	lines := strings.Split(strings.TrimRight(raw, "\n"), "\n")
	if len(lines) > 0 {
		lines = lines[:len(lines)-1]
	}

	events := make([]map[string]interface{}, 0, len(lines))
	var maxStart int64
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var event map[string]interface{}
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			return nil, "", errors.Wrap(err, errors.CodeUpstream, "failed to parse event")
		}
		events = append(events, event)

		start, err := strconv.ParseInt(startOf(event), 10, 64)
		if err == nil && start > maxStart {
			maxStart = start
		}
	}

	if len(events) == 0 || maxStart == 0 {
		return events, from, nil
	}
	return events, strconv.FormatInt(maxStart, 10), nil
}
