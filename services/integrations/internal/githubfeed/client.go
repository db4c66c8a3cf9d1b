package githubfeed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v66/github"

	"github.com/siem-soar-platform/integrations/pkg/errors"
)

// ClientConfig holds repository access settings.
type ClientConfig struct {
	// BaseURL is the REST API root, e.g. https://api.github.com or
	// https://ghe.example.com/api/v3.
	BaseURL string
	Token   string
	Owner   string
	Repo    string

	HTTPClient *http.Client
}

// CommitFile is a file touched between two commits.
type CommitFile struct {
	Filename string
	Status   string
	RawURL   string
}

// Client reads commits and file contents of one repository.
type Client struct {
	gh    *gh.Client
	owner string
	repo  string
}

// NewClient creates a repository client.
func NewClient(cfg ClientConfig) (*Client, error) {
	client := gh.NewClient(cfg.HTTPClient)
	if cfg.Token != "" {
		client = client.WithAuthToken(cfg.Token)
	}
	if cfg.BaseURL != "" {
		base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/") + "/")
		if err != nil {
			return nil, errors.Validation(fmt.Sprintf("invalid base url %q", cfg.BaseURL))
		}
		client.BaseURL = base
	}
	return &Client{gh: client, owner: cfg.Owner, repo: cfg.Repo}, nil
}

// CheckRepository fetches the repository metadata.
func (c *Client) CheckRepository(ctx context.Context) error {
	_, _, err := c.gh.Repositories.Get(ctx, c.owner, c.repo)
	return apiError(err)
}

// CommitsBetween returns the SHAs of the commits on branch in [since,
// until], newest first.
func (c *Client) CommitsBetween(ctx context.Context, branch string, since, until time.Time) ([]string, error) {
	opts := &gh.CommitsListOptions{
		SHA:         branch,
		Since:       since,
		Until:       until,
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var shas []string
	for {
		commits, resp, err := c.gh.Repositories.ListCommits(ctx, c.owner, c.repo, opts)
		if err != nil {
			return nil, apiError(err)
		}
		for _, commit := range commits {
			shas = append(shas, commit.GetSHA())
		}
		if resp == nil || resp.NextPage == 0 {
			return shas, nil
		}
		opts.Page = resp.NextPage
	}
}

// FilesBetween returns the files changed from base to head. When base and
// head are the same commit, the files of that commit are returned.
func (c *Client) FilesBetween(ctx context.Context, base, head string) ([]CommitFile, error) {
	var files []*gh.CommitFile
	if base == head {
		commit, _, err := c.gh.Repositories.GetCommit(ctx, c.owner, c.repo, head, nil)
		if err != nil {
			return nil, apiError(err)
		}
		files = commit.Files
	} else {
		cmp, _, err := c.gh.Repositories.CompareCommits(ctx, c.owner, c.repo, base, head, nil)
		if err != nil {
			return nil, apiError(err)
		}
		files = cmp.Files
	}

	out := make([]CommitFile, 0, len(files))
	for _, f := range files {
		out = append(out, CommitFile{
			Filename: f.GetFilename(),
			Status:   f.GetStatus(),
			RawURL:   f.GetRawURL(),
		})
	}
	return out, nil
}

// FileContent returns the content of path at ref.
func (c *Client) FileContent(ctx context.Context, path, ref string) (string, error) {
	file, _, _, err := c.gh.Repositories.GetContents(ctx, c.owner, c.repo, path, &gh.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return "", apiError(err)
	}
	if file == nil {
		return "", errors.BadInput("%s is a directory", path)
	}
	content, err := file.GetContent()
	if err != nil {
		return "", errors.Wrap(err, errors.CodeUpstream, fmt.Sprintf("failed to decode %s", path))
	}
	return content, nil
}

func apiError(err error) error {
	if err == nil {
		return nil
	}
	if ghErr, ok := err.(*gh.ErrorResponse); ok && ghErr.Response != nil {
		return errors.Upstream(ghErr.Response.StatusCode, http.StatusText(ghErr.Response.StatusCode), ghErr.Message)
	}
	return errors.Wrap(err, errors.CodeUpstream, "GitHub API request failed")
}
