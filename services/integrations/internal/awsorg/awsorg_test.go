package awsorg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/organizations/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/siem-soar-platform/integrations/pkg/errors"
	"github.com/siem-soar-platform/integrations/pkg/host"
)

type fakeOrg struct {
	accounts    []types.Account
	parents     map[string][]types.Parent
	roots       []types.Root
	units       map[string]types.OrganizationalUnit
	listCalls   int
	rootsErr    error
	lastMaxResp int32
}

func (f *fakeOrg) DescribeAccount(_ context.Context, in *organizations.DescribeAccountInput, _ ...func(*organizations.Options)) (*organizations.DescribeAccountOutput, error) {
	for _, a := range f.accounts {
		if aws.ToString(a.Id) == aws.ToString(in.AccountId) {
			acc := a
			return &organizations.DescribeAccountOutput{Account: &acc}, nil
		}
	}
	return nil, errors.New("AccountNotFoundException: You specified an account that doesn't exist.")
}

func (f *fakeOrg) ListAccounts(_ context.Context, in *organizations.ListAccountsInput, _ ...func(*organizations.Options)) (*organizations.ListAccountsOutput, error) {
	f.listCalls++
	f.lastMaxResp = aws.ToInt32(in.MaxResults)
	start := 0
	if in.NextToken != nil {
		start = int(aws.ToString(in.NextToken)[0] - '0')
	}
	end := min(start+int(aws.ToInt32(in.MaxResults)), len(f.accounts))
	out := &organizations.ListAccountsOutput{Accounts: f.accounts[start:end]}
	if end < len(f.accounts) {
		out.NextToken = aws.String(string(rune('0' + end)))
	}
	return out, nil
}

func (f *fakeOrg) ListParents(_ context.Context, in *organizations.ListParentsInput, _ ...func(*organizations.Options)) (*organizations.ListParentsOutput, error) {
	return &organizations.ListParentsOutput{Parents: f.parents[aws.ToString(in.ChildId)]}, nil
}

func (f *fakeOrg) ListRoots(_ context.Context, _ *organizations.ListRootsInput, _ ...func(*organizations.Options)) (*organizations.ListRootsOutput, error) {
	if f.rootsErr != nil {
		return nil, f.rootsErr
	}
	return &organizations.ListRootsOutput{Roots: f.roots}, nil
}

func (f *fakeOrg) DescribeOrganizationalUnit(_ context.Context, in *organizations.DescribeOrganizationalUnitInput, _ ...func(*organizations.Options)) (*organizations.DescribeOrganizationalUnitOutput, error) {
	ou, ok := f.units[aws.ToString(in.OrganizationalUnitId)]
	if !ok {
		return nil, errors.New("OrganizationalUnitNotFoundException")
	}
	return &organizations.DescribeOrganizationalUnitOutput{OrganizationalUnit: &ou}, nil
}

func newFake() *fakeOrg {
	joined := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)
	return &fakeOrg{
		accounts: []types.Account{
			{Id: aws.String("111111111111"), Name: aws.String("master-account"), Arn: aws.String("arn:aws:organizations::111111111111:account/o-abc/111111111111"),
				Email: aws.String("admin@example.com"), Status: types.AccountStatusActive, JoinedMethod: types.AccountJoinedMethodInvited, JoinedTimestamp: &joined},
			{Id: aws.String("222222222222"), Name: aws.String("dev")},
			{Id: aws.String("333333333333"), Name: aws.String("prod")},
		},
		parents: map[string][]types.Parent{
			"222222222222":     {{Id: aws.String("ou-1111-22222222"), Type: types.ParentTypeOrganizationalUnit}},
			"ou-1111-22222222": {{Id: aws.String("r-3333"), Type: types.ParentTypeRoot}},
		},
		roots: []types.Root{{
			Id:          aws.String("r-3333"),
			Name:        aws.String("Root"),
			Arn:         aws.String("arn:aws:organizations::111111111111:root/o-abc/r-3333"),
			PolicyTypes: []types.PolicyTypeSummary{{Type: types.PolicyTypeServiceControlPolicy, Status: types.PolicyTypeStatusEnabled}},
		}},
		units: map[string]types.OrganizationalUnit{
			"ou-1111-22222222": {Id: aws.String("ou-1111-22222222"), Name: aws.String("Workloads"), Arn: aws.String("arn:aws:organizations::111111111111:ou/o-abc/ou-1111-22222222")},
		},
	}
}

func TestAccountListDescribe(t *testing.T) {
	i := NewWithClient(NewClientWithAPI(newFake()))

	res, err := i.Execute(context.Background(), "aws-org-account-list", host.Args{"account_id": "111111111111"})
	require.NoError(t, err)

	out := res.Outputs.(map[string]interface{})
	assert.Equal(t, "master-account", out["Name"])
	assert.Equal(t, "ACTIVE", out["Status"])
	assert.Equal(t, "2023-01-02T03:04:05Z", out["JoinedTimestamp"])
	assert.Equal(t, "AWS.Organizations.Account(val.Id && val.Id == obj.Id)", res.ContextKey())
	assert.Contains(t, res.ReadableOutput, "master-account")

	entry := res.ToEntry()
	assert.Equal(t, "111111111111", entry.Contents.(map[string]interface{})["Id"])
}

func TestAccountListPages(t *testing.T) {
	fake := newFake()
	i := NewWithClient(NewClientWithAPI(fake))

	res, err := i.Execute(context.Background(), "aws-org-account-list", host.Args{"limit": "2"})
	require.NoError(t, err)
	outputs := res.Outputs.([]map[string]interface{})
	require.Len(t, outputs, 2)
	assert.EqualValues(t, 2, fake.lastMaxResp)
	assert.Equal(t, map[string]interface{}{"AccountNextToken": "2"}, res.ExtraContext[nextTokenKey])

	res, err = i.Execute(context.Background(), "aws-org-account-list", host.Args{"next_token": "2"})
	require.NoError(t, err)
	outputs = res.Outputs.([]map[string]interface{})
	require.Len(t, outputs, 1)
	assert.Equal(t, "prod", outputs[0]["Name"])
	assert.Nil(t, res.ExtraContext)
}

func TestAccountListUnknownAccount(t *testing.T) {
	i := NewWithClient(NewClientWithAPI(newFake()))

	_, err := i.Execute(context.Background(), "aws-org-account-list", host.Args{"account_id": "999"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.CodeUpstream))
	assert.Contains(t, err.Error(), "AccountNotFoundException")
}

func TestParentList(t *testing.T) {
	i := NewWithClient(NewClientWithAPI(newFake()))

	res, err := i.Execute(context.Background(), "aws-org-parent-list", host.Args{"child_id": "222222222222"})
	require.NoError(t, err)
	assert.Equal(t, []map[string]interface{}{
		{"Id": "ou-1111-22222222", "Type": "ORGANIZATIONAL_UNIT", "ChildId": "222222222222"},
	}, res.Outputs)

	_, err = i.Execute(context.Background(), "aws-org-parent-list", host.Args{})
	assert.EqualError(t, err, "missing required arguments: child_id")
}

func TestRootList(t *testing.T) {
	i := NewWithClient(NewClientWithAPI(newFake()))

	res, err := i.Execute(context.Background(), "aws-org-root-list", host.Args{})
	require.NoError(t, err)
	entry := res.ToEntry()
	roots := entry.EntryContext["AWS.Organizations.Root(val.Id && val.Id == obj.Id)"].([]map[string]interface{})
	require.Len(t, roots, 1)
	assert.Equal(t, "Root", roots[0]["Name"])
	assert.Equal(t, []map[string]interface{}{{"Type": "SERVICE_CONTROL_POLICY", "Status": "ENABLED"}}, roots[0]["PolicyTypes"])
}

func TestOrganizationUnitGet(t *testing.T) {
	i := NewWithClient(NewClientWithAPI(newFake()))

	res, err := i.Execute(context.Background(), "aws-org-organization-unit-get", host.Args{"organization_unit_id": "ou-1111-22222222"})
	require.NoError(t, err)
	assert.Equal(t, "Workloads", res.Outputs.(map[string]interface{})["Name"])
	assert.Contains(t, res.ReadableOutput, "### AWS Organization Unit")
}

func TestTestModule(t *testing.T) {
	fake := newFake()
	i := NewWithClient(NewClientWithAPI(fake))

	got, err := i.TestModule(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", got)

	fake.rootsErr = errors.New("AccessDeniedException")
	_, err = i.TestModule(context.Background())
	assert.Error(t, err)
}
