// Package ciphertrust implements the Thales CipherTrust Manager
// integration: user management, local and external certificate
// authorities and the certificates they issue.
package ciphertrust

import (
	"context"
	"fmt"
	"time"

	"github.com/siem-soar-platform/integrations/pkg/commandresults"
	"github.com/siem-soar-platform/integrations/pkg/connector"
	"github.com/siem-soar-platform/integrations/pkg/errors"
	"github.com/siem-soar-platform/integrations/pkg/host"
	"github.com/siem-soar-platform/integrations/pkg/logger"
)

// ID is the registry id of the integration.
const ID = "ciphertrust"

// Context output prefixes.
const (
	GroupPrefix               = "CipherTrust.Group"
	UsersPrefix               = "CipherTrust.Users"
	LocalCAPrefix             = "CipherTrust.LocalCA"
	CASelfSignPrefix          = "CipherTrust.CASelfSign"
	CAInstallPrefix           = "CipherTrust.CAInstall"
	CACertificatePrefix       = "CipherTrust.CACertificate"
	ExternalCertificatePrefix = "CipherTrust.ExternalCertificate"
)

var (
	authMethods   = []string{"password", "user_certificate", "password_with_user_certificate", "empty"}
	clientTypes   = []string{"unregistered", "public", "confidential"}
	localCAStates = []string{"pending", "active"}
	certPurposes  = []string{"server", "client", "ca"}
	revokeReasons = []string{
		"unspecified", "keyCompromise", "cACompromise", "affiliationChanged", "superseded",
		"cessationOfOperation", "certificateHold", "removeFromCRL", "privilegeWithdrawn", "aACompromise",
	}

	paginationArgs = []connector.ArgumentDef{
		{Name: "page", Description: "Page to return"},
		{Name: "page_size", Description: fmt.Sprintf("Entries per page, at most %d", MaxPageSize)},
		{Name: "limit", Description: "The max number of entries to return", Default: fmt.Sprint(DefaultLimit)},
	}
)

// Integration is a configured CipherTrust Manager instance.
type Integration struct {
	*connector.BaseIntegration

	client *Client
	files  host.FileResolver
	logger *logger.Logger
	now    func() time.Time
}

// New creates an instance from its params.
func New(params host.Params, deps connector.Deps) (connector.Integration, error) {
	serverURL := params.URL("server_url")
	if serverURL == "" {
		return nil, errors.Validation("server_url is required")
	}
	creds := params.Credentials("credentials")

	i := &Integration{
		BaseIntegration: connector.NewBaseIntegration(ID),
		client:          NewClient(serverURL, creds.Identifier, creds.Password, !params.Bool("insecure"), params.Bool("proxy"), params.RateLimit(), deps.Context),
		files:           deps.Files,
		logger:          deps.Logger.With("integration", ID),
		now:             time.Now,
	}
	i.registerCommands()
	return i, nil
}

func withPaging(args ...connector.ArgumentDef) []connector.ArgumentDef {
	return append(args, paginationArgs...)
}

func required(name string) connector.ArgumentDef {
	return connector.ArgumentDef{Name: name, Required: true}
}

func (i *Integration) registerCommands() {
	i.RegisterCommand(connector.CommandDefinition{Name: connector.TestModuleCommand}, i.testModule)

	// Groups
	i.RegisterCommand(connector.CommandDefinition{
		Name:          "ciphertrust-group-list",
		Description:   "Returns a list of group resources filtered by user or client membership",
		Arguments:     withPaging(connector.ArgumentDef{Name: "group_name"}, connector.ArgumentDef{Name: "user_id"}, connector.ArgumentDef{Name: "connection"}, connector.ArgumentDef{Name: "client_id"}),
		OutputsPrefix: GroupPrefix,
	}, i.groupList)
	i.RegisterCommand(connector.CommandDefinition{
		Name:          "ciphertrust-group-create",
		Arguments:     []connector.ArgumentDef{required("name"), {Name: "description"}},
		OutputsPrefix: GroupPrefix,
	}, i.groupCreate)
	i.RegisterCommand(connector.CommandDefinition{
		Name:      "ciphertrust-group-delete",
		Arguments: []connector.ArgumentDef{required("group_name"), {Name: "force", Options: []string{"true", "false"}}},
	}, i.groupDelete)
	i.RegisterCommand(connector.CommandDefinition{
		Name:          "ciphertrust-group-update",
		Arguments:     []connector.ArgumentDef{required("group_name"), {Name: "description"}},
		OutputsPrefix: GroupPrefix,
	}, i.groupUpdate)
	i.RegisterCommand(connector.CommandDefinition{
		Name:          "ciphertrust-user-to-group-add",
		Arguments:     []connector.ArgumentDef{required("group_name"), required("user_id")},
		OutputsPrefix: GroupPrefix,
	}, i.userToGroupAdd)
	i.RegisterCommand(connector.CommandDefinition{
		Name:      "ciphertrust-user-to-group-remove",
		Arguments: []connector.ArgumentDef{required("group_name"), required("user_id")},
	}, i.userToGroupRemove)

	// Users
	userArgs := []connector.ArgumentDef{
		{Name: "name"}, {Name: "username"}, {Name: "password"}, {Name: "email"},
		{Name: "allowed_auth_methods", IsArray: true, Options: authMethods},
		{Name: "allowed_client_types", IsArray: true, Options: clientTypes},
		{Name: "certificate_subject_dn"}, {Name: "expires_at"},
		{Name: "prevent_ui_login", Default: "false"},
		{Name: "password_change_required"}, {Name: "password_policy"},
	}
	i.RegisterCommand(connector.CommandDefinition{
		Name: "ciphertrust-users-list",
		Arguments: withPaging(
			connector.ArgumentDef{Name: "name"}, connector.ArgumentDef{Name: "user_id"},
			connector.ArgumentDef{Name: "username"}, connector.ArgumentDef{Name: "email"},
			connector.ArgumentDef{Name: "groups", IsArray: true}, connector.ArgumentDef{Name: "exclude_groups", IsArray: true},
			connector.ArgumentDef{Name: "auth_domain_name"}, connector.ArgumentDef{Name: "account_expired"},
			connector.ArgumentDef{Name: "allowed_auth_methods", IsArray: true, Options: authMethods},
			connector.ArgumentDef{Name: "allowed_client_types", IsArray: true, Options: clientTypes},
			connector.ArgumentDef{Name: "password_policy"}, connector.ArgumentDef{Name: "return_groups"},
		),
		OutputsPrefix: UsersPrefix,
	}, i.usersList)
	i.RegisterCommand(connector.CommandDefinition{
		Name: "ciphertrust-user-create",
		Arguments: append([]connector.ArgumentDef{
			{Name: "user_id"}, {Name: "connection", Default: "local_account"}, {Name: "is_domain_user"},
		}, userArgs...),
		OutputsPrefix: UsersPrefix,
	}, i.userCreate)
	i.RegisterCommand(connector.CommandDefinition{
		Name:          "ciphertrust-user-update",
		Arguments:     append([]connector.ArgumentDef{required("user_id"), {Name: "failed_logins_count"}}, userArgs...),
		OutputsPrefix: UsersPrefix,
	}, i.userUpdate)
	i.RegisterCommand(connector.CommandDefinition{
		Name:      "ciphertrust-user-delete",
		Arguments: []connector.ArgumentDef{required("user_id")},
	}, i.userDelete)
	i.RegisterCommand(connector.CommandDefinition{
		Name:        "ciphertrust-user-password-change",
		Description: "Change the current user's password",
		Arguments:   []connector.ArgumentDef{required("new_password"), required("password"), required("username"), {Name: "auth_domain"}},
	}, i.userPasswordChange)

	// Local CAs
	i.RegisterCommand(connector.CommandDefinition{
		Name:        "ciphertrust-local-ca-create",
		Description: "Creates a pending local CA",
		Arguments: []connector.ArgumentDef{
			required("cn"), {Name: "algorithm", Options: []string{"RSA", "ECDSA"}}, {Name: "copy_from_ca"},
			{Name: "dns_names", IsArray: true}, {Name: "email", IsArray: true}, {Name: "ip", IsArray: true},
			{Name: "name"}, {Name: "name_fields_raw_json"}, {Name: "name_fields_json_entry_id"}, {Name: "size"},
		},
		OutputsPrefix: LocalCAPrefix,
	}, i.localCACreate)
	i.RegisterCommand(connector.CommandDefinition{
		Name: "ciphertrust-local-ca-list",
		Arguments: withPaging(
			connector.ArgumentDef{Name: "subject"}, connector.ArgumentDef{Name: "local_ca_id"},
			connector.ArgumentDef{Name: "chained"}, connector.ArgumentDef{Name: "issuer"},
			connector.ArgumentDef{Name: "state", Options: localCAStates}, connector.ArgumentDef{Name: "cert"},
		),
		OutputsPrefix: LocalCAPrefix,
	}, i.localCAList)
	i.RegisterCommand(connector.CommandDefinition{
		Name:          "ciphertrust-local-ca-update",
		Arguments:     []connector.ArgumentDef{required("local_ca_id"), {Name: "allow_client_authentication"}, {Name: "allow_user_authentication"}},
		OutputsPrefix: LocalCAPrefix,
	}, i.localCAUpdate)
	i.RegisterCommand(connector.CommandDefinition{
		Name:      "ciphertrust-local-ca-delete",
		Arguments: []connector.ArgumentDef{required("local_ca_id")},
	}, i.localCADelete)
	i.RegisterCommand(connector.CommandDefinition{
		Name:          "ciphertrust-local-ca-self-sign",
		Description:   "Self-sign a local CA certificate to create a root CA. Either duration or not_after must be given",
		Arguments:     []connector.ArgumentDef{required("local_ca_id"), {Name: "duration"}, {Name: "not_after"}, {Name: "not_before"}},
		OutputsPrefix: CASelfSignPrefix,
	}, i.localCASelfSign)
	i.RegisterCommand(connector.CommandDefinition{
		Name:          "ciphertrust-local-ca-install",
		Description:   "Installs a certificate signed by another CA to act as a local CA",
		Arguments:     []connector.ArgumentDef{required("local_ca_id"), required("cert"), required("parent_id")},
		OutputsPrefix: CAInstallPrefix,
	}, i.localCAInstall)

	// Certificates
	i.RegisterCommand(connector.CommandDefinition{
		Name: "ciphertrust-certificate-issue",
		Arguments: []connector.ArgumentDef{
			required("ca_id"), required("csr"), {Name: "purpose", Required: true, Options: certPurposes},
			{Name: "duration"}, {Name: "name"}, {Name: "not_after"}, {Name: "not_before"},
		},
		OutputsPrefix: CACertificatePrefix,
	}, i.certificateIssue)
	i.RegisterCommand(connector.CommandDefinition{
		Name: "ciphertrust-certificate-list",
		Arguments: withPaging(required("ca_id"),
			connector.ArgumentDef{Name: "subject"}, connector.ArgumentDef{Name: "issuer"},
			connector.ArgumentDef{Name: "cert"}, connector.ArgumentDef{Name: "id"}),
		OutputsPrefix: CACertificatePrefix,
	}, i.certificateList)
	i.RegisterCommand(connector.CommandDefinition{
		Name:      "ciphertrust-local-certificate-delete",
		Arguments: []connector.ArgumentDef{required("ca_id"), required("local_ca_id")},
	}, i.localCertificateDelete)
	i.RegisterCommand(connector.CommandDefinition{
		Name:      "ciphertrust-certificate-revoke",
		Arguments: []connector.ArgumentDef{required("ca_id"), required("cert_id"), {Name: "reason", Required: true, Options: revokeReasons}},
	}, i.certificateRevoke)
	i.RegisterCommand(connector.CommandDefinition{
		Name:        "ciphertrust-certificate-resume",
		Description: "Resume a certificate revoked with reason certificateHold",
		Arguments:   []connector.ArgumentDef{required("ca_id"), required("cert_id")},
	}, i.certificateResume)

	// External CAs
	i.RegisterCommand(connector.CommandDefinition{
		Name:          "ciphertrust-external-certificate-upload",
		Arguments:     []connector.ArgumentDef{required("cert"), {Name: "name"}, {Name: "parent"}},
		OutputsPrefix: ExternalCertificatePrefix,
	}, i.externalCertificateUpload)
	i.RegisterCommand(connector.CommandDefinition{
		Name:      "ciphertrust-external-certificate-delete",
		Arguments: []connector.ArgumentDef{required("external_ca_id")},
	}, i.externalCertificateDelete)
	i.RegisterCommand(connector.CommandDefinition{
		Name:          "ciphertrust-external-certificate-update",
		Arguments:     []connector.ArgumentDef{required("external_ca_id"), {Name: "allow_client_authentication"}, {Name: "allow_user_authentication"}},
		OutputsPrefix: ExternalCertificatePrefix,
	}, i.externalCertificateUpdate)
	i.RegisterCommand(connector.CommandDefinition{
		Name: "ciphertrust-external-certificate-list",
		Arguments: withPaging(
			connector.ArgumentDef{Name: "subject"}, connector.ArgumentDef{Name: "issuer"},
			connector.ArgumentDef{Name: "serial_number"}, connector.ArgumentDef{Name: "cert"}),
		OutputsPrefix: ExternalCertificatePrefix,
	}, i.externalCertificateList)
}

func (i *Integration) testModule(ctx context.Context, _ host.Args) (*commandresults.CommandResults, error) {
	if _, err := i.client.ListGroups(ctx, nil); err != nil {
		return nil, err
	}
	return commandresults.Text("ok"), nil
}

// resourceResult wraps a single created or updated object.
func resourceResult(prefix string, raw Resource) *commandresults.CommandResults {
	return &commandresults.CommandResults{
		OutputsPrefix: prefix,
		Outputs:       raw,
		RawResponse:   raw,
	}
}

// listResult wraps a paged response, rendering its resources as a table.
func listResult(prefix, title string, raw, outputs Resource) *commandresults.CommandResults {
	rows := resources(raw)
	if len(rows) == 0 && raw["resources"] == nil {
		rows = []map[string]interface{}{raw}
	}
	return &commandresults.CommandResults{
		OutputsPrefix:  prefix,
		Outputs:        outputs,
		RawResponse:    raw,
		ReadableOutput: commandresults.TableToMarkdown(title, rows, nil),
	}
}

func pagedQuery(args host.Args) (params, error) {
	skip, limit, err := DeriveSkipAndLimit(args)
	if err != nil {
		return nil, err
	}
	return params{"skip": skip, "limit": limit}, nil
}

func (i *Integration) groupList(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	q, err := pagedQuery(args)
	if err != nil {
		return nil, err
	}
	q.str(args, "group_name", "name").
		str(args, "user_id", "users").
		str(args, "connection", "connection").
		str(args, "client_id", "clients")

	raw, err := i.client.ListGroups(ctx, q.query())
	if err != nil {
		return nil, err
	}
	return listResult(GroupPrefix, "group", raw, raw), nil
}

func (i *Integration) groupCreate(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	body := params{}.str(args, "name", "name").str(args, "description", "description")
	raw, err := i.client.CreateGroup(ctx, Resource(body))
	if err != nil {
		return nil, err
	}
	return resourceResult(GroupPrefix, raw), nil
}

func (i *Integration) groupDelete(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	body, err := params{}.boolArg(args, "force", "force")
	if err != nil {
		return nil, err
	}
	name := args.String("group_name", "")
	if err := i.client.DeleteGroup(ctx, name, Resource(body)); err != nil {
		return nil, err
	}
	return commandresults.Text(fmt.Sprintf("%s has been deleted successfully!", name)), nil
}

func (i *Integration) groupUpdate(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	body := params{}.str(args, "description", "description")
	raw, err := i.client.UpdateGroup(ctx, args.String("group_name", ""), Resource(body))
	if err != nil {
		return nil, err
	}
	return resourceResult(GroupPrefix, raw), nil
}

func (i *Integration) userToGroupAdd(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	raw, err := i.client.AddUserToGroup(ctx, args.String("group_name", ""), args.String("user_id", ""))
	if err != nil {
		return nil, err
	}
	return resourceResult(GroupPrefix, raw), nil
}

func (i *Integration) userToGroupRemove(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	group, user := args.String("group_name", ""), args.String("user_id", "")
	if err := i.client.RemoveUserFromGroup(ctx, group, user); err != nil {
		return nil, err
	}
	return commandresults.Text(fmt.Sprintf("%s has been deleted successfully from %s", user, group)), nil
}

func (i *Integration) usersList(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	if userID := args.String("user_id", ""); userID != "" {
		raw, err := i.client.GetUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		return listResult(UsersPrefix, "users list", raw, Resource{"resources": []interface{}{raw}}), nil
	}

	q, err := pagedQuery(args)
	if err != nil {
		return nil, err
	}
	q.str(args, "name", "name").
		str(args, "username", "username").
		str(args, "email", "email").
		set("groups", args.List("groups")).
		set("exclude_groups", args.List("exclude_groups")).
		str(args, "auth_domain_name", "auth_domain_name").
		set("allowed_auth_methods", args.List("allowed_auth_methods")).
		set("allowed_client_types", args.List("allowed_client_types")).
		str(args, "password_policy", "password_policy")
	if _, err := q.boolArg(args, "account_expired", "account_expired"); err != nil {
		return nil, err
	}
	if _, err := q.boolArg(args, "return_groups", "return_groups"); err != nil {
		return nil, err
	}

	raw, err := i.client.ListUsers(ctx, q.query())
	if err != nil {
		return nil, err
	}
	return listResult(UsersPrefix, "users list", raw, raw), nil
}

// userBody holds the fields shared by user create and update.
func (i *Integration) userBody(args host.Args) (params, error) {
	body := params{}.
		set("allowed_auth_methods", args.List("allowed_auth_methods")).
		set("allowed_client_types", args.List("allowed_client_types")).
		str(args, "certificate_subject_dn", "certificate_subject_dn").
		str(args, "email", "email").
		str(args, "name", "name").
		str(args, "password", "password").
		str(args, "password_policy", "password_policy").
		str(args, "username", "username")

	preventUI, err := args.OptionalBool("prevent_ui_login")
	if err != nil {
		return nil, err
	}
	if preventUI != nil {
		body["login_flags"] = map[string]interface{}{"prevent_ui_login": *preventUI}
	}
	if _, err := body.boolArg(args, "password_change_required", "password_change_required"); err != nil {
		return nil, err
	}
	if err := setExpiresAt(body, args, i.now()); err != nil {
		return nil, err
	}
	return body, nil
}

func (i *Integration) userCreate(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	body, err := i.userBody(args)
	if err != nil {
		return nil, err
	}
	body.str(args, "connection", "connection").str(args, "user_id", "user_id")
	if _, err := body.boolArg(args, "is_domain_user", "is_domain_user"); err != nil {
		return nil, err
	}

	raw, err := i.client.CreateUser(ctx, Resource(body))
	if err != nil {
		return nil, err
	}
	i.logger.Info("created user", "user_id", raw["user_id"])
	return resourceResult(UsersPrefix, raw), nil
}

func (i *Integration) userUpdate(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	body, err := i.userBody(args)
	if err != nil {
		return nil, err
	}
	if _, err := body.intArg(args, "failed_logins_count", "failed_logins_count"); err != nil {
		return nil, err
	}

	raw, err := i.client.UpdateUser(ctx, args.String("user_id", ""), Resource(body))
	if err != nil {
		return nil, err
	}
	return resourceResult(UsersPrefix, raw), nil
}

func (i *Integration) userDelete(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	userID := args.String("user_id", "")
	if err := i.client.DeleteUser(ctx, userID); err != nil {
		return nil, err
	}
	return commandresults.Text(fmt.Sprintf("%s has been deleted successfully!", userID)), nil
}

func (i *Integration) userPasswordChange(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	body := params{}.
		str(args, "new_password", "new_password").
		str(args, "password", "password").
		str(args, "username", "username").
		str(args, "auth_domain", "auth_domain")
	if err := i.client.ChangePassword(ctx, Resource(body)); err != nil {
		return nil, err
	}
	return commandresults.Text(fmt.Sprintf("Password has been changed successfully for %s!", args.String("username", ""))), nil
}

func (i *Integration) localCACreate(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	body := params{}.
		str(args, "cn", "cn").
		str(args, "algorithm", "algorithm").
		str(args, "copy_from_ca", "copy_from_ca").
		set("dnsNames", args.List("dns_names")).
		set("emailAddresses", args.List("email")).
		set("ipAddresses", args.List("ip")).
		str(args, "name", "name")
	if _, err := body.intArg(args, "size", "size"); err != nil {
		return nil, err
	}

	names, err := loadJSONArg(i.files, args.String("name_fields_raw_json", ""), args.String("name_fields_json_entry_id", ""))
	if err != nil {
		return nil, err
	}
	body.set("names", names)

	raw, err := i.client.CreateLocalCA(ctx, Resource(body))
	if err != nil {
		return nil, err
	}
	return resourceResult(LocalCAPrefix, raw), nil
}

func (i *Integration) localCAList(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	if id := args.String("local_ca_id", ""); id != "" {
		q, err := params{}.boolArg(args, "chained", "chained")
		if err != nil {
			return nil, err
		}
		raw, err := i.client.GetLocalCA(ctx, id, q.query())
		if err != nil {
			return nil, err
		}
		return listResult(LocalCAPrefix, "local CAs", raw, Resource{"resources": []interface{}{raw}}), nil
	}

	q, err := pagedQuery(args)
	if err != nil {
		return nil, err
	}
	q.str(args, "subject", "subject").
		str(args, "issuer", "issuer").
		str(args, "state", "state").
		str(args, "cert", "cert")

	raw, err := i.client.ListLocalCAs(ctx, q.query())
	if err != nil {
		return nil, err
	}
	return listResult(LocalCAPrefix, "local CAs", raw, raw), nil
}

// authenticationBody reads the flags shared by local and external CA updates.
func authenticationBody(args host.Args) (params, error) {
	body, err := params{}.boolArg(args, "allow_client_authentication", "allow_client_authentication")
	if err != nil {
		return nil, err
	}
	return body.boolArg(args, "allow_user_authentication", "allow_user_authentication")
}

func (i *Integration) localCAUpdate(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	body, err := authenticationBody(args)
	if err != nil {
		return nil, err
	}
	raw, err := i.client.UpdateLocalCA(ctx, args.String("local_ca_id", ""), Resource(body))
	if err != nil {
		return nil, err
	}
	return resourceResult(LocalCAPrefix, raw), nil
}

func (i *Integration) localCADelete(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	id := args.String("local_ca_id", "")
	if err := i.client.DeleteLocalCA(ctx, id); err != nil {
		return nil, err
	}
	return commandresults.Text(fmt.Sprintf("%s has been deleted successfully!", id)), nil
}

// validityBody reads duration, not_after and not_before.
func (i *Integration) validityBody(args host.Args) (params, error) {
	body, err := params{}.intArg(args, "duration", "duration")
	if err != nil {
		return nil, err
	}
	if body, err = body.dateArg(args, "not_after", "notAfter", i.now()); err != nil {
		return nil, err
	}
	return body.dateArg(args, "not_before", "notBefore", i.now())
}

func (i *Integration) localCASelfSign(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	body, err := i.validityBody(args)
	if err != nil {
		return nil, err
	}
	raw, err := i.client.SelfSignLocalCA(ctx, args.String("local_ca_id", ""), Resource(body))
	if err != nil {
		return nil, err
	}
	return resourceResult(CASelfSignPrefix, raw), nil
}

func (i *Integration) localCAInstall(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	body := params{}.str(args, "cert", "cert").str(args, "parent_id", "parent_id")
	raw, err := i.client.InstallLocalCA(ctx, args.String("local_ca_id", ""), Resource(body))
	if err != nil {
		return nil, err
	}
	return resourceResult(CAInstallPrefix, raw), nil
}

func (i *Integration) certificateIssue(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	body, err := i.validityBody(args)
	if err != nil {
		return nil, err
	}
	body.str(args, "csr", "csr").str(args, "purpose", "purpose").str(args, "name", "name")

	raw, err := i.client.IssueCertificate(ctx, args.String("ca_id", ""), Resource(body))
	if err != nil {
		return nil, err
	}
	return resourceResult(CACertificatePrefix, raw), nil
}

func (i *Integration) certificateList(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	q, err := pagedQuery(args)
	if err != nil {
		return nil, err
	}
	q.str(args, "subject", "subject").
		str(args, "issuer", "issuer").
		str(args, "cert", "cert").
		str(args, "id", "id")

	raw, err := i.client.ListCertificates(ctx, args.String("ca_id", ""), q.query())
	if err != nil {
		return nil, err
	}
	return listResult(CACertificatePrefix, "certificates", raw, raw), nil
}

func (i *Integration) localCertificateDelete(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	certID := args.String("local_ca_id", "")
	if err := i.client.DeleteCertificate(ctx, args.String("ca_id", ""), certID); err != nil {
		return nil, err
	}
	return commandresults.Text(fmt.Sprintf("%s has been deleted successfully!", certID)), nil
}

func (i *Integration) certificateRevoke(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	certID := args.String("cert_id", "")
	body := params{}.str(args, "reason", "reason")
	if err := i.client.RevokeCertificate(ctx, args.String("ca_id", ""), certID, Resource(body)); err != nil {
		return nil, err
	}
	return commandresults.Text(fmt.Sprintf("%s has been revoked", certID)), nil
}

func (i *Integration) certificateResume(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	certID := args.String("cert_id", "")
	if err := i.client.ResumeCertificate(ctx, args.String("ca_id", ""), certID); err != nil {
		return nil, err
	}
	return commandresults.Text(fmt.Sprintf("%s has been resumed", certID)), nil
}

func (i *Integration) externalCertificateUpload(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	body := params{}.str(args, "cert", "cert").str(args, "name", "name").str(args, "parent", "parent")
	raw, err := i.client.UploadExternalCA(ctx, Resource(body))
	if err != nil {
		return nil, err
	}
	return resourceResult(ExternalCertificatePrefix, raw), nil
}

func (i *Integration) externalCertificateDelete(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	id := args.String("external_ca_id", "")
	if err := i.client.DeleteExternalCA(ctx, id); err != nil {
		return nil, err
	}
	return commandresults.Text(fmt.Sprintf("%s has been deleted successfully!", id)), nil
}

func (i *Integration) externalCertificateUpdate(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	body, err := authenticationBody(args)
	if err != nil {
		return nil, err
	}
	raw, err := i.client.UpdateExternalCA(ctx, args.String("external_ca_id", ""), Resource(body))
	if err != nil {
		return nil, err
	}
	return resourceResult(ExternalCertificatePrefix, raw), nil
}

func (i *Integration) externalCertificateList(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	q, err := pagedQuery(args)
	if err != nil {
		return nil, err
	}
	q.str(args, "subject", "subject").
		str(args, "issuer", "issuer").
		str(args, "serial_number", "serialNumber").
		str(args, "cert", "cert")

	raw, err := i.client.ListExternalCAs(ctx, q.query())
	if err != nil {
		return nil, err
	}
	return listResult(ExternalCertificatePrefix, "external certificates", raw, raw), nil
}
