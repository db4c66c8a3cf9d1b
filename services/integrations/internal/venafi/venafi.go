// Package venafi implements the Venafi TLS Protect certificate lookup
// integration.
package venafi

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/siem-soar-platform/integrations/pkg/commandresults"
	"github.com/siem-soar-platform/integrations/pkg/connector"
	"github.com/siem-soar-platform/integrations/pkg/errors"
	"github.com/siem-soar-platform/integrations/pkg/host"
)

const (
	// ID is the registry id of the integration.
	ID = "venafi"

	// DefaultServer is used when no server param is set.
	DefaultServer = "https://ao-tlspd.dev.ven-eco.com"

	outputsPrefix = "Venafi.Certificate"

	authErrorMessage = "Authorization Error: make sure API Key is correctly set"
)

var certificateHeaders = []string{"CreatedOn", "DN", "Name", "ParentDN", "SchemaClass", "ID"}

// Integration is a configured Venafi instance.
type Integration struct {
	*connector.BaseIntegration

	client *Client
}

// New creates an instance from its params.
func New(params host.Params, deps connector.Deps) (connector.Integration, error) {
	server := params.URL("server")
	if server == "" {
		server = DefaultServer
	}
	creds := params.Credentials("credentials")
	if creds.Identifier == "" || creds.Password == "" {
		return nil, errors.Validation("credentials are required")
	}

	i := &Integration{
		BaseIntegration: connector.NewBaseIntegration(ID),
		client: NewClient(server, params.String("client_id"), creds.Identifier, creds.Password,
			!params.Bool("insecure"), params.Bool("proxy"), params.RateLimit(), deps.Context),
	}
	i.registerCommands()
	return i, nil
}

func (i *Integration) registerCommands() {
	i.RegisterCommand(connector.CommandDefinition{Name: connector.TestModuleCommand}, i.testModule)

	i.RegisterCommand(connector.CommandDefinition{
		Name:        "venafi-get-certificates",
		Description: "Gets certificates. Every argument is passed to the API as a filter",
		Arguments: []connector.ArgumentDef{
			{Name: "CreatedOn"}, {Name: "CreatedOnGreater"}, {Name: "CreatedOnLess"},
			{Name: "Disabled"}, {Name: "InError"}, {Name: "ValidationState"}, {Name: "ManagementType"},
			{Name: "Name"}, {Name: "NetworkValidationDisabled"}, {Name: "ParentDn"}, {Name: "ParentDnRecursive"},
			{Name: "PendingWorkflow"}, {Name: "Stage"}, {Name: "StageGreater"}, {Name: "StageLess"},
			{Name: "ValidationDisabled"}, {Name: "C"}, {Name: "CN"}, {Name: "Issuer"},
			{Name: "KeyAlgorithm"}, {Name: "KeySize"}, {Name: "KeySizeGreater"}, {Name: "KeySizeLess"},
			{Name: "L"}, {Name: "O"}, {Name: "OU"}, {Name: "S"}, {Name: "SANDNS"}, {Name: "SANEmail"},
			{Name: "SANIP"}, {Name: "SANUPN"}, {Name: "SANURI"}, {Name: "Serial"}, {Name: "SignatureAlgorithm"},
			{Name: "Thumbprint"}, {Name: "ValidFrom"}, {Name: "ValidTo"}, {Name: "ValidToGreater"},
			{Name: "ValidToLess"}, {Name: "Limit"}, {Name: "Offset"},
		},
		OutputsPrefix: outputsPrefix,
	}, i.getCertificates)

	i.RegisterCommand(connector.CommandDefinition{
		Name:          "venafi-get-certificate-details",
		Arguments:     []connector.ArgumentDef{{Name: "guid", Required: true}},
		OutputsPrefix: outputsPrefix,
	}, i.getCertificateDetails)
}

// Execute rewrites authorization failures into a single message.
func (i *Integration) Execute(ctx context.Context, command string, args host.Args) (*commandresults.CommandResults, error) {
	res, err := i.BaseIntegration.Execute(ctx, command, args)
	if err != nil {
		if errors.Contains(err, "Forbidden") || errors.Contains(err, "Authorization") {
			return nil, &errors.AppError{Code: errors.CodeUpstream, Message: authErrorMessage, HTTPStatus: errors.StatusCode(err)}
		}
		return nil, err
	}
	return res, nil
}

// TestModule checks connectivity through Execute.
func (i *Integration) TestModule(ctx context.Context) (string, error) {
	res, err := i.Execute(ctx, connector.TestModuleCommand, host.Args{})
	if err != nil {
		return "", err
	}
	return res.ReadableOutput, nil
}

func (i *Integration) testModule(ctx context.Context, _ host.Args) (*commandresults.CommandResults, error) {
	if _, err := i.client.GetCertificates(ctx, nil); err != nil {
		return nil, err
	}
	return commandresults.Text("ok"), nil
}

func (i *Integration) getCertificates(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	query := url.Values{}
	for k := range args {
		if v := args.String(k, ""); v != "" {
			query.Set(k, v)
		}
	}

	resp, err := i.client.GetCertificates(ctx, query)
	if err != nil {
		return nil, err
	}

	certificates := DeleteLinks(resp)
	rows := make([]map[string]interface{}, 0, len(certificates))
	for _, cert := range certificates {
		rows = append(rows, readable(cert))
	}

	return &commandresults.CommandResults{
		OutputsPrefix:  outputsPrefix,
		Outputs:        resp,
		RawResponse:    resp,
		ReadableOutput: commandresults.TableToMarkdown("Venafi certificates", rows, &commandresults.TableOptions{Headers: certificateHeaders}),
	}, nil
}

func (i *Integration) getCertificateDetails(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	resp, err := i.client.GetCertificateDetails(ctx, args.String("guid", ""))
	if err != nil {
		return nil, err
	}
	if resp == nil {
		resp = map[string]interface{}{}
	}

	return &commandresults.CommandResults{
		OutputsPrefix: outputsPrefix,
		Outputs:       resp,
		RawResponse:   resp,
		ReadableOutput: commandresults.TableToMarkdown("Venafi certificate details",
			[]map[string]interface{}{readable(resp)}, &commandresults.TableOptions{Headers: certificateHeaders}),
	}, nil
}

// readable copies a certificate and adds ID, its Guid without braces.
func readable(cert map[string]interface{}) map[string]interface{} {
	row := make(map[string]interface{}, len(cert)+1)
	for k, v := range cert {
		row[k] = v
	}
	row["ID"] = strings.Trim(fmt.Sprint(cert["Guid"]), "{}")
	if cert["Guid"] == nil {
		row["ID"] = ""
	}
	return row
}

// DeleteLinks removes the _links list from every certificate in a list
// response and returns the certificates.
func DeleteLinks(resp map[string]interface{}) []map[string]interface{} {
	items, _ := resp["Certificates"].([]interface{})
	certs := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		cert, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		delete(cert, "_links")
		certs = append(certs, cert)
	}
	return certs
}
