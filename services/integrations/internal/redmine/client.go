package redmine

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/siem-soar-platform/integrations/pkg/errors"
	"github.com/siem-soar-platform/integrations/pkg/host"
	"github.com/siem-soar-platform/integrations/pkg/httpclient"
)

var emptyOK = []int{http.StatusOK, http.StatusCreated, http.StatusNoContent}

// Client calls the Redmine REST API.
type Client struct {
	http *httpclient.Client
}

// ClientConfig holds connection settings. APIKey takes precedence over
// basic credentials.
type ClientConfig struct {
	BaseURL  string
	APIKey   string
	Username string
	Password string
	Verify   bool
	Proxy    bool
	Limit    httpclient.Limit
}

// NewClient creates a client.
func NewClient(cfg ClientConfig) *Client {
	hc := httpclient.Config{
		BaseURL: cfg.BaseURL,
		Verify:  cfg.Verify,
		Proxy:   cfg.Proxy,
		Limit:   cfg.Limit,
	}
	if cfg.APIKey != "" {
		hc.Headers = map[string]string{"X-Redmine-API-Key": cfg.APIKey}
	} else {
		hc.Username = cfg.Username
		hc.Password = cfg.Password
	}
	return &Client{http: httpclient.New(hc)}
}

// errorHandler rewrites vendor errors into the messages shown to analysts.
// The vendor status is kept on the rewritten error.
func errorHandler(err error) error {
	status := errors.StatusCode(err)
	var msg string
	switch status {
	case 0:
		return err
	case http.StatusUnauthorized:
		msg = "Redmine - Error in API call 401 - Unauthorized; make sure the API key or credentials are correct."
	case http.StatusForbidden:
		msg = "Redmine - Error in API call 403 - Forbidden; the user is not allowed to perform this action."
	case http.StatusNotFound:
		msg = "Redmine - Error in API call 404 - Not Found; ID does not exist."
	case http.StatusUnprocessableEntity:
		msg = "Redmine - Error in API call 422 - Unprocessable Entity; invalid ID for one or more fields that request IDs. Please make sure all IDs are correct."
	default:
		return err
	}
	return &errors.AppError{Code: errors.CodeUpstream, Message: msg, HTTPStatus: status}
}

func (c *Client) do(ctx context.Context, req httpclient.Request, out interface{}) error {
	if err := c.http.DoJSON(ctx, req, out); err != nil {
		return errorHandler(err)
	}
	return nil
}

// CreateIssue posts {"issue": issue}.
func (c *Client) CreateIssue(ctx context.Context, issue map[string]interface{}) (map[string]interface{}, error) {
	var resp struct {
		Issue map[string]interface{} `json:"issue"`
	}
	err := c.do(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   "/issues.json",
		JSON:   map[string]interface{}{"issue": issue},
	}, &resp)
	return resp.Issue, err
}

// UpdateIssue puts {"issue": issue}. Redmine answers with an empty body.
func (c *Client) UpdateIssue(ctx context.Context, issueID string, issue map[string]interface{}) error {
	return c.do(ctx, httpclient.Request{
		Method:  http.MethodPut,
		Path:    fmt.Sprintf("/issues/%s.json", url.PathEscape(issueID)),
		JSON:    map[string]interface{}{"issue": issue},
		OKCodes: emptyOK,
	}, nil)
}

// GetIssue returns one issue with the requested associations.
func (c *Client) GetIssue(ctx context.Context, issueID, include string) (map[string]interface{}, error) {
	var query url.Values
	if include != "" {
		query = url.Values{"include": {include}}
	}
	var resp struct {
		Issue map[string]interface{} `json:"issue"`
	}
	err := c.do(ctx, httpclient.Request{
		Path:  fmt.Sprintf("/issues/%s.json", url.PathEscape(issueID)),
		Query: query,
	}, &resp)
	return resp.Issue, err
}

// IssueList is a page of issues.
type IssueList struct {
	Issues     []map[string]interface{} `json:"issues"`
	TotalCount int                      `json:"total_count"`
	Offset     int                      `json:"offset"`
	Limit      int                      `json:"limit"`
}

// ListIssues returns a page of issues matching query.
func (c *Client) ListIssues(ctx context.Context, query url.Values) (*IssueList, error) {
	var resp IssueList
	err := c.do(ctx, httpclient.Request{Path: "/issues.json", Query: query}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteIssue deletes an issue.
func (c *Client) DeleteIssue(ctx context.Context, issueID string) error {
	return c.do(ctx, httpclient.Request{
		Method:  http.MethodDelete,
		Path:    fmt.Sprintf("/issues/%s.json", url.PathEscape(issueID)),
		OKCodes: emptyOK,
	}, nil)
}

// AddWatcher adds a user to the watchers of an issue.
func (c *Client) AddWatcher(ctx context.Context, issueID, userID string) error {
	return c.do(ctx, httpclient.Request{
		Method:  http.MethodPost,
		Path:    fmt.Sprintf("/issues/%s/watchers.json", url.PathEscape(issueID)),
		Query:   url.Values{"user_id": {userID}},
		OKCodes: emptyOK,
	}, nil)
}

// RemoveWatcher removes a user from the watchers of an issue.
func (c *Client) RemoveWatcher(ctx context.Context, issueID, userID string) error {
	return c.do(ctx, httpclient.Request{
		Method:  http.MethodDelete,
		Path:    fmt.Sprintf("/issues/%s/watchers/%s.json", url.PathEscape(issueID), url.PathEscape(userID)),
		OKCodes: emptyOK,
	}, nil)
}

// ListProjects returns all visible projects.
func (c *Client) ListProjects(ctx context.Context, include string) ([]map[string]interface{}, error) {
	var query url.Values
	if include != "" {
		query = url.Values{"include": {include}}
	}
	var resp struct {
		Projects []map[string]interface{} `json:"projects"`
	}
	err := c.do(ctx, httpclient.Request{Path: "/projects.json", Query: query}, &resp)
	return resp.Projects, err
}

// ListCustomFields returns the custom field definitions. Admin only.
func (c *Client) ListCustomFields(ctx context.Context) ([]map[string]interface{}, error) {
	var resp struct {
		CustomFields []map[string]interface{} `json:"custom_fields"`
	}
	err := c.do(ctx, httpclient.Request{Path: "/custom_fields.json"}, &resp)
	return resp.CustomFields, err
}

// ListUsers returns users matching query. Admin only.
func (c *Client) ListUsers(ctx context.Context, query url.Values) ([]map[string]interface{}, error) {
	var resp struct {
		Users []map[string]interface{} `json:"users"`
	}
	err := c.do(ctx, httpclient.Request{Path: "/users.json", Query: query}, &resp)
	return resp.Users, err
}

// UploadFile uploads the file behind a war-room entry and returns the
// upload token to attach to an issue.
func (c *Client) UploadFile(ctx context.Context, files host.FileResolver, entryID string) (string, error) {
	if files == nil {
		return "", errors.BadInput("Could not upload file with entry id %s", entryID)
	}
	fi, err := files.FilePath(entryID)
	if err != nil {
		return "", errors.BadInput("Could not upload file with entry id %s", entryID)
	}
	data, err := os.ReadFile(fi.Path)
	if err != nil {
		return "", errors.BadInput("Could not upload file with entry id %s", entryID)
	}

	var resp struct {
		Upload struct {
			Token string `json:"token"`
		} `json:"upload"`
	}
	err = c.do(ctx, httpclient.Request{
		Method:  http.MethodPost,
		Path:    "/uploads.json",
		Query:   url.Values{"filename": {fi.Name}},
		Data:    data,
		Headers: map[string]string{"Content-Type": "application/octet-stream"},
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Upload.Token == "" {
		return "", errors.BadInput("Could not upload file with entry id %s", entryID)
	}
	return resp.Upload.Token, nil
}
