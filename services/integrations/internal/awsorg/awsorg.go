// Package awsorg implements the AWS Organizations integration used to walk
// an account up to its organization root.
package awsorg

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/organizations/types"

	"github.com/siem-soar-platform/integrations/pkg/commandresults"
	"github.com/siem-soar-platform/integrations/pkg/connector"
	"github.com/siem-soar-platform/integrations/pkg/host"
)

const (
	// ID is the registry id of the integration.
	ID = "aws-organizations"

	// DefaultRegion is where the Organizations endpoint lives.
	DefaultRegion = "us-east-1"

	AccountPrefix          = "AWS.Organizations.Account"
	ParentPrefix           = "AWS.Organizations.Parent"
	RootPrefix             = "AWS.Organizations.Root"
	OrganizationUnitPrefix = "AWS.Organizations.OrganizationUnit"

	nextTokenKey = "AWS.Organizations(true)"
	maxPageSize  = 20
	defaultLimit = 50
)

// Integration is a configured AWS Organizations instance.
type Integration struct {
	*connector.BaseIntegration

	client *Client
}

// New creates an instance from its params.
func New(params host.Params, deps connector.Deps) (connector.Integration, error) {
	creds := params.Credentials("credentials")
	accessKey := creds.Identifier
	if accessKey == "" {
		accessKey = params.String("access_key")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := NewClient(ctx, ClientConfig{
		Region:       params.StringDefault("region", DefaultRegion),
		AccessKey:    accessKey,
		SecretKey:    params.CredentialOr("credentials", "secret_key"),
		SessionToken: params.String("session_token"),
		Endpoint:     params.URL("endpoint"),
	})
	if err != nil {
		return nil, err
	}
	return NewWithClient(client), nil
}

// NewWithClient creates an instance over an existing client.
func NewWithClient(client *Client) *Integration {
	i := &Integration{
		BaseIntegration: connector.NewBaseIntegration(ID),
		client:          client,
	}
	i.registerCommands()
	return i
}

func (i *Integration) registerCommands() {
	i.RegisterCommand(connector.CommandDefinition{Name: connector.TestModuleCommand}, i.testModule)

	i.RegisterCommand(connector.CommandDefinition{
		Name:        "aws-org-account-list",
		Description: "Lists the accounts of the organization, or describes one account",
		Arguments: []connector.ArgumentDef{
			{Name: "account_id"},
			{Name: "limit", Default: "50"},
			{Name: "next_token"},
		},
		OutputsPrefix: AccountPrefix,
	}, i.accountList)

	i.RegisterCommand(connector.CommandDefinition{
		Name:          "aws-org-parent-list",
		Description:   "Lists the parents of an account or organizational unit",
		Arguments:     []connector.ArgumentDef{{Name: "child_id", Required: true}},
		OutputsPrefix: ParentPrefix,
	}, i.parentList)

	i.RegisterCommand(connector.CommandDefinition{
		Name:          "aws-org-root-list",
		Description:   "Lists the organization roots",
		OutputsPrefix: RootPrefix,
	}, i.rootList)

	i.RegisterCommand(connector.CommandDefinition{
		Name:          "aws-org-organization-unit-get",
		Description:   "Describes an organizational unit",
		Arguments:     []connector.ArgumentDef{{Name: "organization_unit_id", Required: true}},
		OutputsPrefix: OrganizationUnitPrefix,
	}, i.organizationUnitGet)
}

func (i *Integration) testModule(ctx context.Context, _ host.Args) (*commandresults.CommandResults, error) {
	if _, err := i.client.ListRoots(ctx); err != nil {
		return nil, err
	}
	return commandresults.Text("ok"), nil
}

func (i *Integration) accountList(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	if id := args.String("account_id", ""); id != "" {
		account, err := i.client.DescribeAccount(ctx, id)
		if err != nil {
			return nil, err
		}
		out := accountOutput(account)
		return &commandresults.CommandResults{
			OutputsPrefix:   AccountPrefix,
			OutputsKeyField: "Id",
			Outputs:         out,
			RawResponse:     out,
			ReadableOutput:  accountTable("AWS Organization Accounts", []map[string]interface{}{out}),
		}, nil
	}

	limit, err := args.Int("limit", defaultLimit)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	accounts, next, err := i.client.ListAccounts(ctx, limit, args.String("next_token", ""))
	if err != nil {
		return nil, err
	}
	outputs := make([]map[string]interface{}, 0, len(accounts))
	for idx := range accounts {
		outputs = append(outputs, accountOutput(&accounts[idx]))
	}

	res := &commandresults.CommandResults{
		OutputsPrefix:   AccountPrefix,
		OutputsKeyField: "Id",
		Outputs:         outputs,
		RawResponse:     outputs,
		ReadableOutput:  accountTable("AWS Organization Accounts", outputs),
	}
	if next != "" {
		res.ExtraContext = map[string]interface{}{nextTokenKey: map[string]interface{}{"AccountNextToken": next}}
		res.ReadableOutput += "\nNext token: " + next + "\n"
	}
	return res, nil
}

func (i *Integration) parentList(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	childID := args.String("child_id", "")
	parents, err := i.client.ListParents(ctx, childID)
	if err != nil {
		return nil, err
	}

	outputs := make([]map[string]interface{}, 0, len(parents))
	for _, p := range parents {
		outputs = append(outputs, map[string]interface{}{
			"Id":      aws.ToString(p.Id),
			"Type":    string(p.Type),
			"ChildId": childID,
		})
	}

	return &commandresults.CommandResults{
		OutputsPrefix:   ParentPrefix,
		OutputsKeyField: "Id",
		Outputs:         outputs,
		RawResponse:     outputs,
		ReadableOutput: commandresults.TableToMarkdown("AWS Account Parents", outputs,
			&commandresults.TableOptions{Headers: []string{"Id", "Type"}}),
	}, nil
}

func (i *Integration) rootList(ctx context.Context, _ host.Args) (*commandresults.CommandResults, error) {
	roots, err := i.client.ListRoots(ctx)
	if err != nil {
		return nil, err
	}

	outputs := make([]map[string]interface{}, 0, len(roots))
	for _, r := range roots {
		policies := make([]map[string]interface{}, 0, len(r.PolicyTypes))
		for _, pt := range r.PolicyTypes {
			policies = append(policies, map[string]interface{}{
				"Type":   string(pt.Type),
				"Status": string(pt.Status),
			})
		}
		outputs = append(outputs, map[string]interface{}{
			"Id":          aws.ToString(r.Id),
			"Arn":         aws.ToString(r.Arn),
			"Name":        aws.ToString(r.Name),
			"PolicyTypes": policies,
		})
	}

	return &commandresults.CommandResults{
		OutputsPrefix:   RootPrefix,
		OutputsKeyField: "Id",
		Outputs:         outputs,
		RawResponse:     outputs,
		ReadableOutput: commandresults.TableToMarkdown("AWS Organization Roots", outputs,
			&commandresults.TableOptions{Headers: []string{"Id", "Arn", "Name"}}),
	}, nil
}

func (i *Integration) organizationUnitGet(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	ou, err := i.client.DescribeOrganizationalUnit(ctx, args.String("organization_unit_id", ""))
	if err != nil {
		return nil, err
	}
	out := map[string]interface{}{}
	if ou != nil {
		out = map[string]interface{}{
			"Id":   aws.ToString(ou.Id),
			"Arn":  aws.ToString(ou.Arn),
			"Name": aws.ToString(ou.Name),
		}
	}

	return &commandresults.CommandResults{
		OutputsPrefix:   OrganizationUnitPrefix,
		OutputsKeyField: "Id",
		Outputs:         out,
		RawResponse:     out,
		ReadableOutput: commandresults.TableToMarkdown("AWS Organization Unit", []map[string]interface{}{out},
			&commandresults.TableOptions{Headers: []string{"Id", "Arn", "Name"}}),
	}, nil
}

func accountOutput(a *types.Account) map[string]interface{} {
	if a == nil {
		return map[string]interface{}{}
	}
	out := map[string]interface{}{
		"Id":           aws.ToString(a.Id),
		"Arn":          aws.ToString(a.Arn),
		"Name":         aws.ToString(a.Name),
		"Email":        aws.ToString(a.Email),
		"JoinedMethod": string(a.JoinedMethod),
		"Status":       string(a.Status),
	}
	if a.JoinedTimestamp != nil {
		out["JoinedTimestamp"] = a.JoinedTimestamp.UTC().Format(time.RFC3339)
	}
	return out
}

func accountTable(title string, rows []map[string]interface{}) string {
	return commandresults.TableToMarkdown(title, rows, &commandresults.TableOptions{
		Headers: []string{"Id", "Arn", "Name", "Email", "JoinedMethod", "JoinedTimestamp", "Status"},
	})
}
