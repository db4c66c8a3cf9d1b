package ciphertrust

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/siem-soar-platform/integrations/pkg/host"
	"github.com/siem-soar-platform/integrations/pkg/httpclient"
	"github.com/siem-soar-platform/integrations/pkg/tokencache"
)

const (
	authPath           = "/auth/tokens"
	changePasswordPath = "/auth/changepw"
	groupsPath         = "/usermgmt/groups/"
	usersPath          = "/usermgmt/users/"
	localCAsPath       = "/ca/local-cas/"
	externalCAsPath    = "/ca/external-cas/"

	// defaultTokenLifetime is used when the jwt carries no exp claim.
	defaultTokenLifetime = 5 * time.Minute
)

// Resource is a CipherTrust API object.
type Resource = map[string]interface{}

// Client calls the CipherTrust Manager v1 API.
type Client struct {
	http     *httpclient.Client
	username string
	password string
	tokens   *tokencache.Cache
	now      func() time.Time
}

// NewClient creates a client for serverURL. The jwt is cached in store.
func NewClient(serverURL, username, password string, verify, proxy bool, limit httpclient.Limit, store host.ContextStore) *Client {
	return &Client{
		http: httpclient.New(httpclient.Config{
			BaseURL: serverURL + "/api/v1",
			Verify:  verify,
			Proxy:   proxy,
			Limit:   limit,
			Headers: map[string]string{"Accept": "application/json"},
		}),
		username: username,
		password: password,
		tokens: tokencache.New(store,
			tokencache.WithKeys(tokencache.Keys{Token: "jwt", Expires: "jwt_expires"}),
			tokencache.WithMargin(30*time.Second)),
		now: time.Now,
	}
}

func (c *Client) login(ctx context.Context, _ string) (tokencache.Token, error) {
	var resp struct {
		JWT string `json:"jwt"`
	}
	err := c.http.DoJSON(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   authPath,
		JSON: map[string]string{
			"grant_type": "password",
			"username":   c.username,
			"password":   c.password,
		},
	}, &resp)
	if err != nil {
		return tokencache.Token{}, err
	}
	if resp.JWT == "" {
		return tokencache.Token{}, fmt.Errorf("authentication response did not contain a jwt")
	}

	expires, err := tokencache.ExpiryFromJWT(resp.JWT)
	if err != nil {
		expires = c.now().Add(defaultTokenLifetime)
	}
	return tokencache.Token{AccessToken: resp.JWT, ExpiresAt: expires}, nil
}

// do sends an authenticated request.
func (c *Client) do(ctx context.Context, req httpclient.Request, out interface{}) error {
	jwt, err := c.tokens.Get(ctx, c.login)
	if err != nil {
		return err
	}
	if req.Headers == nil {
		req.Headers = map[string]string{}
	}
	req.Headers["Authorization"] = "Bearer " + jwt
	return c.http.DoJSON(ctx, req, out)
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (Resource, error) {
	var out Resource
	err := c.do(ctx, httpclient.Request{Path: path, Query: query}, &out)
	return out, err
}

func (c *Client) send(ctx context.Context, method, path string, body interface{}) (Resource, error) {
	var out Resource
	req := httpclient.Request{Method: method, Path: path}
	if body != nil {
		req.JSON = body
	}
	err := c.do(ctx, req, &out)
	return out, err
}

// sendEmpty is used for routes that answer 204 or an empty 200.
func (c *Client) sendEmpty(ctx context.Context, method, path string, body interface{}) error {
	req := httpclient.Request{Method: method, Path: path}
	if body != nil {
		req.JSON = body
	}
	return c.do(ctx, req, nil)
}

func escaped(base, id string, suffix ...string) string {
	p := base + url.PathEscape(id)
	for _, s := range suffix {
		p += "/" + s
	}
	return p
}

// Groups.

func (c *Client) ListGroups(ctx context.Context, query url.Values) (Resource, error) {
	return c.get(ctx, groupsPath, query)
}

func (c *Client) CreateGroup(ctx context.Context, body Resource) (Resource, error) {
	return c.send(ctx, http.MethodPost, groupsPath, body)
}

func (c *Client) DeleteGroup(ctx context.Context, name string, body Resource) error {
	return c.sendEmpty(ctx, http.MethodDelete, escaped(groupsPath, name), body)
}

func (c *Client) UpdateGroup(ctx context.Context, name string, body Resource) (Resource, error) {
	return c.send(ctx, http.MethodPatch, escaped(groupsPath, name), body)
}

func (c *Client) AddUserToGroup(ctx context.Context, group, userID string) (Resource, error) {
	return c.send(ctx, http.MethodPost, escaped(groupsPath, group, "users", url.PathEscape(userID)), nil)
}

func (c *Client) RemoveUserFromGroup(ctx context.Context, group, userID string) error {
	return c.sendEmpty(ctx, http.MethodDelete, escaped(groupsPath, group, "users", url.PathEscape(userID)), nil)
}

// Users.

func (c *Client) ListUsers(ctx context.Context, query url.Values) (Resource, error) {
	return c.get(ctx, usersPath, query)
}

func (c *Client) GetUser(ctx context.Context, userID string) (Resource, error) {
	return c.get(ctx, escaped(usersPath, userID), nil)
}

func (c *Client) CreateUser(ctx context.Context, body Resource) (Resource, error) {
	return c.send(ctx, http.MethodPost, usersPath, body)
}

func (c *Client) UpdateUser(ctx context.Context, userID string, body Resource) (Resource, error) {
	return c.send(ctx, http.MethodPatch, escaped(usersPath, userID), body)
}

func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	return c.sendEmpty(ctx, http.MethodDelete, escaped(usersPath, userID), nil)
}

// ChangePassword changes the password of the authenticated user.
func (c *Client) ChangePassword(ctx context.Context, body Resource) error {
	return c.sendEmpty(ctx, http.MethodPatch, changePasswordPath, body)
}

// Local CAs.

func (c *Client) CreateLocalCA(ctx context.Context, body Resource) (Resource, error) {
	return c.send(ctx, http.MethodPost, localCAsPath, body)
}

func (c *Client) ListLocalCAs(ctx context.Context, query url.Values) (Resource, error) {
	return c.get(ctx, localCAsPath, query)
}

func (c *Client) GetLocalCA(ctx context.Context, id string, query url.Values) (Resource, error) {
	return c.get(ctx, escaped(localCAsPath, id), query)
}

func (c *Client) UpdateLocalCA(ctx context.Context, id string, body Resource) (Resource, error) {
	return c.send(ctx, http.MethodPatch, escaped(localCAsPath, id), body)
}

func (c *Client) DeleteLocalCA(ctx context.Context, id string) error {
	return c.sendEmpty(ctx, http.MethodDelete, escaped(localCAsPath, id), nil)
}

func (c *Client) SelfSignLocalCA(ctx context.Context, id string, body Resource) (Resource, error) {
	return c.send(ctx, http.MethodPost, escaped(localCAsPath, id, "self-sign"), body)
}

func (c *Client) InstallLocalCA(ctx context.Context, id string, body Resource) (Resource, error) {
	return c.send(ctx, http.MethodPost, escaped(localCAsPath, id, "install"), body)
}

// Certificates issued by a local CA.

func (c *Client) IssueCertificate(ctx context.Context, caID string, body Resource) (Resource, error) {
	return c.send(ctx, http.MethodPost, escaped(localCAsPath, caID, "certs"), body)
}

func (c *Client) ListCertificates(ctx context.Context, caID string, query url.Values) (Resource, error) {
	return c.get(ctx, escaped(localCAsPath, caID, "certs"), query)
}

func (c *Client) DeleteCertificate(ctx context.Context, caID, certID string) error {
	return c.sendEmpty(ctx, http.MethodDelete, escaped(localCAsPath, caID, "certs", url.PathEscape(certID)), nil)
}

func (c *Client) RevokeCertificate(ctx context.Context, caID, certID string, body Resource) error {
	return c.sendEmpty(ctx, http.MethodPost, escaped(localCAsPath, caID, "certs", url.PathEscape(certID), "revoke"), body)
}

func (c *Client) ResumeCertificate(ctx context.Context, caID, certID string) error {
	return c.sendEmpty(ctx, http.MethodPost, escaped(localCAsPath, caID, "certs", url.PathEscape(certID), "resume"), nil)
}

// External CAs.

func (c *Client) UploadExternalCA(ctx context.Context, body Resource) (Resource, error) {
	return c.send(ctx, http.MethodPost, externalCAsPath, body)
}

func (c *Client) DeleteExternalCA(ctx context.Context, id string) error {
	return c.sendEmpty(ctx, http.MethodDelete, escaped(externalCAsPath, id), nil)
}

func (c *Client) UpdateExternalCA(ctx context.Context, id string, body Resource) (Resource, error) {
	return c.send(ctx, http.MethodPatch, escaped(externalCAsPath, id), body)
}

func (c *Client) ListExternalCAs(ctx context.Context, query url.Values) (Resource, error) {
	return c.get(ctx, externalCAsPath, query)
}
