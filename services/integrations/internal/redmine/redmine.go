// Package redmine implements the Redmine issue tracker integration.
package redmine

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/siem-soar-platform/integrations/pkg/commandresults"
	"github.com/siem-soar-platform/integrations/pkg/connector"
	"github.com/siem-soar-platform/integrations/pkg/errors"
	"github.com/siem-soar-platform/integrations/pkg/host"
	"github.com/siem-soar-platform/integrations/pkg/logger"
)

// ID is the registry id of the integration.
const ID = "redmine"

var (
	issueIncludeOptions   = []string{"children", "attachments", "relations", "changesets", "journals", "watchers", "allowed_statuses"}
	projectIncludeOptions = []string{"trackers", "issue_categories", "enabled_modules", "time_entry_activities", "issue_custom_fields"}

	issueHeaders = []string{"id", "project", "tracker", "status", "priority", "author", "subject", "description",
		"start_date", "due_date", "done_ratio", "is_private", "estimated_hours", "custom_fields", "created_on", "updated_on", "closed_on"}
)

// Integration is a configured Redmine instance.
type Integration struct {
	*connector.BaseIntegration

	client    *Client
	projectID string
	files     host.FileResolver
	logger    *logger.Logger
}

// New creates an instance from its params.
func New(params host.Params, deps connector.Deps) (connector.Integration, error) {
	baseURL := params.URL("url")
	if baseURL == "" {
		return nil, errors.Validation("url is required")
	}
	creds := params.Credentials("credentials")

	i := &Integration{
		BaseIntegration: connector.NewBaseIntegration(ID),
		client: NewClient(ClientConfig{
			BaseURL:  baseURL,
			APIKey:   params.CredentialOr("api_key_creds", "api_key"),
			Username: creds.Identifier,
			Password: creds.Password,
			Verify:   !params.Bool("insecure"),
			Proxy:    params.Bool("proxy"),
			Limit:    params.RateLimit(),
		}),
		projectID: params.String("project_id"),
		files:     deps.Files,
		logger:    deps.Logger.With("integration", ID),
	}
	i.registerCommands()
	return i, nil
}

func (i *Integration) registerCommands() {
	i.RegisterCommand(connector.CommandDefinition{Name: connector.TestModuleCommand}, i.testModule)

	fileArgs := []connector.ArgumentDef{
		{Name: "file_entry_id", Description: "War-room entry id of a file to attach"},
		{Name: "file_name"},
		{Name: "file_description"},
		{Name: "file_content_type"},
	}
	issueArgs := []connector.ArgumentDef{
		{Name: "project_id"}, {Name: "tracker_id"}, {Name: "status_id"}, {Name: "priority_id"},
		{Name: "subject"}, {Name: "description"}, {Name: "category_id"}, {Name: "fixed_version_id"},
		{Name: "assigned_to_id"}, {Name: "parent_issue_id"}, {Name: "custom_fields"},
		{Name: "watcher_user_ids"}, {Name: "is_private", Options: []string{"true", "false"}},
		{Name: "estimated_hours"},
	}

	i.RegisterCommand(connector.CommandDefinition{
		Name:          "redmine-issue-create",
		Description:   "Create a new issue",
		Arguments:     append(append([]connector.ArgumentDef{}, issueArgs...), fileArgs...),
		OutputsPrefix: "Redmine.Issue",
	}, i.createIssue)

	i.RegisterCommand(connector.CommandDefinition{
		Name:        "redmine-issue-update",
		Description: "Update an existing issue",
		Arguments: append(append([]connector.ArgumentDef{{Name: "issue_id"}, {Name: "notes"}, {Name: "private_notes"},
			{Name: "done_ratio"}, {Name: "due_date"}, {Name: "start_date"}}, issueArgs...), fileArgs...),
	}, i.updateIssue)

	i.RegisterCommand(connector.CommandDefinition{
		Name:        "redmine-issue-get",
		Description: "Show an issue by id",
		Arguments: []connector.ArgumentDef{
			{Name: "issue_id"},
			{Name: "include", Description: "Comma separated associations: " + strings.Join(issueIncludeOptions, ", ")},
		},
		OutputsPrefix: "Redmine.Issue",
	}, i.getIssue)

	i.RegisterCommand(connector.CommandDefinition{
		Name:        "redmine-issue-list",
		Description: "List issues",
		Arguments: []connector.ArgumentDef{
			{Name: "page_number"}, {Name: "page_size"}, {Name: "limit", Default: "25"}, {Name: "offset"},
			{Name: "project_id"}, {Name: "subproject_id"}, {Name: "tracker_id"}, {Name: "status_id"},
			{Name: "assigned_to_id"}, {Name: "parent_id"}, {Name: "sort"},
		},
		OutputsPrefix: "Redmine.Issue",
	}, i.listIssues)

	i.RegisterCommand(connector.CommandDefinition{
		Name:      "redmine-issue-delete",
		Arguments: []connector.ArgumentDef{{Name: "issue_id"}},
	}, i.deleteIssue)

	i.RegisterCommand(connector.CommandDefinition{
		Name:      "redmine-issue-watcher-add",
		Arguments: []connector.ArgumentDef{{Name: "issue_id"}, {Name: "watcher_id"}},
	}, i.addWatcher)

	i.RegisterCommand(connector.CommandDefinition{
		Name:      "redmine-issue-watcher-remove",
		Arguments: []connector.ArgumentDef{{Name: "issue_id"}, {Name: "watcher_id"}},
	}, i.removeWatcher)

	i.RegisterCommand(connector.CommandDefinition{
		Name:          "redmine-project-list",
		Arguments:     []connector.ArgumentDef{{Name: "include"}},
		OutputsPrefix: "Redmine.Project",
	}, i.listProjects)

	i.RegisterCommand(connector.CommandDefinition{
		Name:          "redmine-custom-field-list",
		OutputsPrefix: "Redmine.CustomField",
	}, i.listCustomFields)

	i.RegisterCommand(connector.CommandDefinition{
		Name: "redmine-user-id-list",
		Arguments: []connector.ArgumentDef{
			{Name: "status", Options: []string{"Active", "Registered", "Locked"}},
			{Name: "name"}, {Name: "group_id"},
		},
		OutputsPrefix: "Redmine.Users",
	}, i.listUsers)
}

func (i *Integration) testModule(ctx context.Context, _ host.Args) (*commandresults.CommandResults, error) {
	if _, err := i.client.ListIssues(ctx, url.Values{"limit": {"1"}}); err != nil {
		if errors.StatusCode(err) == http.StatusUnauthorized {
			return commandresults.Text("Authorization Error: make sure API Key is correctly set"), nil
		}
		return nil, err
	}
	return commandresults.Text("ok"), nil
}

// uploads attaches the file referenced by args, if any. withDetails adds
// the name, description and content type next to the token.
func (i *Integration) uploads(ctx context.Context, args host.Args, withDetails bool) ([]map[string]interface{}, error) {
	entryID := args.String("file_entry_id", args.String("entry_id", ""))
	if entryID == "" {
		return nil, nil
	}
	token, err := i.client.UploadFile(ctx, i.files, entryID)
	if err != nil {
		return nil, err
	}
	upload := map[string]interface{}{"token": token}
	for arg, field := range map[string]string{
		"file_name":         "filename",
		"file_description":  "description",
		"file_content_type": "content_type",
	} {
		if v := args.String(arg, ""); v != "" || withDetails {
			upload[field] = v
		}
	}
	return []map[string]interface{}{upload}, nil
}

func (i *Integration) createIssue(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	if !args.Has("project_id") && i.projectID != "" {
		args["project_id"] = i.projectID
	}
	var missing []string
	for _, key := range []string{"status_id", "priority_id", "subject", "project_id"} {
		if args.String(key, "") == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, errors.BadInput("One or more required arguments not specified: %s", strings.Join(missing, ", "))
	}

	issue, err := convertArgsToRequestFormat(args)
	if err != nil {
		return nil, err
	}
	uploads, err := i.uploads(ctx, args, false)
	if err != nil {
		return nil, err
	}
	if uploads != nil {
		issue["uploads"] = uploads
	}

	created, err := i.client.CreateIssue(ctx, issue)
	if err != nil {
		return nil, err
	}
	i.logger.Info("created issue", "id", created["id"])

	return &commandresults.CommandResults{
		OutputsPrefix:   "Redmine.Issue",
		OutputsKeyField: "id",
		Outputs:         created,
		RawResponse:     created,
		ReadableOutput: commandresults.TableToMarkdown("The issue you created:", []map[string]interface{}{flattenNamed(created)},
			&commandresults.TableOptions{Headers: issueHeaders, HeaderTransform: mapHeader, RemoveNull: true}),
	}, nil
}

func (i *Integration) updateIssue(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	issueID := args.String("issue_id", "")
	if issueID == "" {
		return nil, errors.BadInput("Issue_id is missing in order to update this issue")
	}

	issue, err := convertArgsToRequestFormat(args)
	if err != nil {
		return nil, err
	}
	uploads, err := i.uploads(ctx, args, true)
	if err != nil {
		return nil, err
	}
	if uploads != nil {
		issue["uploads"] = uploads
	}

	if err := i.client.UpdateIssue(ctx, issueID, issue); err != nil {
		return nil, err
	}
	return commandresults.Text(fmt.Sprintf("Issue with id %s was successfully updated.", issueID)), nil
}

func (i *Integration) getIssue(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	issueID := args.String("issue_id", "")
	if issueID == "" {
		return nil, errors.BadInput("Issue_id is missing in order to get this issue")
	}
	include := args.String("include", "")
	if err := validateInclude(include, issueIncludeOptions); err != nil {
		return nil, err
	}

	issue, err := i.client.GetIssue(ctx, issueID, include)
	if err != nil {
		return nil, err
	}

	headers := issueHeaders
	if include != "" {
		headers = append(append([]string{}, issueHeaders...), strings.Split(include, ",")...)
	}
	return &commandresults.CommandResults{
		OutputsPrefix:   "Redmine.Issue",
		OutputsKeyField: "id",
		Outputs:         issue,
		RawResponse:     issue,
		ReadableOutput: commandresults.TableToMarkdown("Issues List:", []map[string]interface{}{flattenNamed(issue)},
			&commandresults.TableOptions{Headers: headers, HeaderTransform: mapHeader, RemoveNull: true}),
	}, nil
}

func (i *Integration) listIssues(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	offset, limit, header, err := adjustPagingToRequest(args)
	if err != nil {
		return nil, err
	}

	query := listQuery(args, "project_id", "subproject_id", "tracker_id", "assigned_to_id", "parent_id", "sort")
	if query.Get("project_id") == "" && i.projectID != "" {
		query.Set("project_id", i.projectID)
	}
	if status := args.String("status_id", ""); status != "" {
		if mapped, ok := issueStatus[status]; ok {
			status = mapped
		}
		query.Set("status_id", status)
	}
	query.Set("offset", fmt.Sprint(offset))
	query.Set("limit", fmt.Sprint(limit))

	page, err := i.client.ListIssues(ctx, query)
	if err != nil {
		return nil, err
	}

	return &commandresults.CommandResults{
		OutputsPrefix:   "Redmine.Issue",
		OutputsKeyField: "id",
		Outputs:         page.Issues,
		RawResponse:     page,
		ReadableOutput: header + commandresults.TableToMarkdown("Issues Results:", flattenAll(page.Issues),
			&commandresults.TableOptions{Headers: issueHeaders, HeaderTransform: mapHeader, RemoveNull: true}),
	}, nil
}

func (i *Integration) deleteIssue(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	issueID := args.String("issue_id", "")
	if issueID == "" {
		return nil, errors.BadInput("Issue_id is missing in order to delete")
	}
	if err := i.client.DeleteIssue(ctx, issueID); err != nil {
		return nil, err
	}
	return commandresults.Text(fmt.Sprintf("Issue with id %s was deleted successfully.", issueID)), nil
}

func (i *Integration) addWatcher(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	issueID := args.String("issue_id", "")
	if issueID == "" {
		return nil, errors.BadInput("Issue_id is missing in order to add a watcher to this issue")
	}
	watcherID := args.String("watcher_id", "")
	if watcherID == "" {
		return nil, errors.BadInput("watcher_id is missing in order to add this watcher to the issue")
	}
	if err := i.client.AddWatcher(ctx, issueID, watcherID); err != nil {
		return nil, err
	}
	return commandresults.Text(fmt.Sprintf("Watcher with id %s was added successfully to issue with id %s.", watcherID, issueID)), nil
}

func (i *Integration) removeWatcher(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	issueID := args.String("issue_id", "")
	if issueID == "" {
		return nil, errors.BadInput("Issue_id is missing in order to remove watcher from this issue")
	}
	watcherID := args.String("watcher_id", "")
	if watcherID == "" {
		return nil, errors.BadInput("watcher_id is missing in order to remove watcher from this issue")
	}
	if err := i.client.RemoveWatcher(ctx, issueID, watcherID); err != nil {
		return nil, err
	}
	return commandresults.Text(fmt.Sprintf("Watcher with id %s was removed successfully from issue with id %s.", watcherID, issueID)), nil
}

func (i *Integration) listProjects(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	include := args.String("include", "")
	if err := validateInclude(include, projectIncludeOptions); err != nil {
		return nil, err
	}
	projects, err := i.client.ListProjects(ctx, include)
	if err != nil {
		return nil, err
	}

	headers := []string{"id", "name", "identifier", "description", "status", "is_public", "parent", "created_on", "updated_on"}
	if include != "" {
		headers = append(headers, strings.Split(include, ",")...)
	}
	return &commandresults.CommandResults{
		OutputsPrefix:   "Redmine.Project",
		OutputsKeyField: "id",
		Outputs:         projects,
		RawResponse:     projects,
		ReadableOutput: commandresults.TableToMarkdown("Projects List:", flattenAll(projects),
			&commandresults.TableOptions{Headers: headers, HeaderTransform: mapHeader, RemoveNull: true}),
	}, nil
}

func (i *Integration) listCustomFields(ctx context.Context, _ host.Args) (*commandresults.CommandResults, error) {
	fields, err := i.client.ListCustomFields(ctx)
	if err != nil {
		return nil, err
	}
	return &commandresults.CommandResults{
		OutputsPrefix:   "Redmine.CustomField",
		OutputsKeyField: "id",
		Outputs:         fields,
		RawResponse:     fields,
		ReadableOutput: commandresults.TableToMarkdown("Custom Fields List:", fields, &commandresults.TableOptions{
			Headers:         []string{"id", "name", "customized_type", "field_format", "regexp", "is_required", "is_filter", "searchable", "visible", "default_value", "possible_values"},
			HeaderTransform: mapHeader,
			RemoveNull:      true,
		}),
	}, nil
}

func (i *Integration) listUsers(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	query := listQuery(args, "name", "group_id")
	if status := args.String("status", ""); status != "" {
		query.Set("status", userStatus[status])
	}

	users, err := i.client.ListUsers(ctx, query)
	if err != nil {
		return nil, err
	}
	return &commandresults.CommandResults{
		OutputsPrefix:   "Redmine.Users",
		OutputsKeyField: "id",
		Outputs:         users,
		RawResponse:     users,
		ReadableOutput: commandresults.TableToMarkdown("Users List:", users, &commandresults.TableOptions{
			Headers:         []string{"id", "login", "admin", "firstname", "lastname", "mail", "created_on", "last_login_on"},
			HeaderTransform: mapHeader,
			RemoveNull:      true,
		}),
	}, nil
}
