package awsorg

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/organizations/types"

	"github.com/siem-soar-platform/integrations/pkg/errors"
)

// API is the subset of the Organizations client the integration calls.
type API interface {
	DescribeAccount(ctx context.Context, in *organizations.DescribeAccountInput, optFns ...func(*organizations.Options)) (*organizations.DescribeAccountOutput, error)
	ListAccounts(ctx context.Context, in *organizations.ListAccountsInput, optFns ...func(*organizations.Options)) (*organizations.ListAccountsOutput, error)
	ListParents(ctx context.Context, in *organizations.ListParentsInput, optFns ...func(*organizations.Options)) (*organizations.ListParentsOutput, error)
	ListRoots(ctx context.Context, in *organizations.ListRootsInput, optFns ...func(*organizations.Options)) (*organizations.ListRootsOutput, error)
	DescribeOrganizationalUnit(ctx context.Context, in *organizations.DescribeOrganizationalUnitInput, optFns ...func(*organizations.Options)) (*organizations.DescribeOrganizationalUnitOutput, error)
}

// ClientConfig holds AWS connection settings.
type ClientConfig struct {
	Region       string
	AccessKey    string
	SecretKey    string
	SessionToken string

	// Endpoint overrides the service endpoint, for VPC endpoints.
	Endpoint string
}

// Client wraps the Organizations API.
type Client struct {
	api API
}

// NewClient loads AWS configuration and creates an Organizations client.
// Static keys are used when set, otherwise the default credential chain.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var orgOpts []func(*organizations.Options)
	if cfg.Endpoint != "" {
		orgOpts = append(orgOpts, func(o *organizations.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return &Client{api: organizations.NewFromConfig(awsCfg, orgOpts...)}, nil
}

// NewClientWithAPI wraps an existing API implementation.
func NewClientWithAPI(api API) *Client {
	return &Client{api: api}
}

// DescribeAccount returns one account.
func (c *Client) DescribeAccount(ctx context.Context, accountID string) (*types.Account, error) {
	out, err := c.api.DescribeAccount(ctx, &organizations.DescribeAccountInput{AccountId: aws.String(accountID)})
	if err != nil {
		return nil, apiError("DescribeAccount", err)
	}
	return out.Account, nil
}

// ListAccounts returns up to limit accounts starting at nextToken, and the
// token of the following page.
func (c *Client) ListAccounts(ctx context.Context, limit int, nextToken string) ([]types.Account, string, error) {
	var accounts []types.Account
	token := nextToken
	for {
		in := &organizations.ListAccountsInput{MaxResults: aws.Int32(int32(min(limit-len(accounts), maxPageSize)))}
		if token != "" {
			in.NextToken = aws.String(token)
		}
		out, err := c.api.ListAccounts(ctx, in)
		if err != nil {
			return nil, "", apiError("ListAccounts", err)
		}
		accounts = append(accounts, out.Accounts...)
		token = aws.ToString(out.NextToken)
		if token == "" || len(accounts) >= limit {
			return accounts, token, nil
		}
	}
}

// ListParents returns the parents of a child account or OU.
func (c *Client) ListParents(ctx context.Context, childID string) ([]types.Parent, error) {
	var parents []types.Parent
	p := organizations.NewListParentsPaginator(c.api, &organizations.ListParentsInput{ChildId: aws.String(childID)})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, apiError("ListParents", err)
		}
		parents = append(parents, page.Parents...)
	}
	return parents, nil
}

// ListRoots returns the organization roots.
func (c *Client) ListRoots(ctx context.Context) ([]types.Root, error) {
	var roots []types.Root
	p := organizations.NewListRootsPaginator(c.api, &organizations.ListRootsInput{})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, apiError("ListRoots", err)
		}
		roots = append(roots, page.Roots...)
	}
	return roots, nil
}

// DescribeOrganizationalUnit returns one organizational unit.
func (c *Client) DescribeOrganizationalUnit(ctx context.Context, ouID string) (*types.OrganizationalUnit, error) {
	out, err := c.api.DescribeOrganizationalUnit(ctx, &organizations.DescribeOrganizationalUnitInput{
		OrganizationalUnitId: aws.String(ouID),
	})
	if err != nil {
		return nil, apiError("DescribeOrganizationalUnit", err)
	}
	return out.OrganizationalUnit, nil
}

func apiError(op string, err error) error {
	return errors.Wrap(err, errors.CodeUpstream, fmt.Sprintf("AWS Organizations %s failed", op))
}
