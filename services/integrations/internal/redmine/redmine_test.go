package redmine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siem-soar-platform/integrations/pkg/connector"
	"github.com/siem-soar-platform/integrations/pkg/host"
)

type recorded struct {
	method string
	path   string
	query  map[string][]string
	body   map[string]interface{}
	raw    []byte
}

type redmineAPI struct {
	server   *httptest.Server
	requests []recorded
	status   int
	respond  string
}

func newRedmineAPI(t *testing.T) *redmineAPI {
	api := &redmineAPI{status: http.StatusOK}
	api.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "api-key", r.Header.Get("X-Redmine-API-Key"))
		raw, _ := io.ReadAll(r.Body)
		rec := recorded{method: r.Method, path: r.URL.Path, query: r.URL.Query(), raw: raw}
		if r.Header.Get("Content-Type") == "application/json" {
			require.NoError(t, json.Unmarshal(raw, &rec.body))
		}
		api.requests = append(api.requests, rec)

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/uploads.json" {
			assert.Equal(t, "application/octet-stream", r.Header.Get("Content-Type"))
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"upload":{"token":"7167.ed1ccdb093229ca1bd0b043618d88743"}}`))
			return
		}
		w.WriteHeader(api.status)
		w.Write([]byte(api.respond))
	}))
	t.Cleanup(api.server.Close)
	return api
}

func (a *redmineAPI) last() recorded {
	return a.requests[len(a.requests)-1]
}

func newTestIntegration(t *testing.T, api *redmineAPI, params host.Params, deps connector.Deps) connector.Integration {
	reg := connector.NewRegistry()
	require.NoError(t, reg.RegisterFactory(ID, New))
	p := host.Params{"url": api.server.URL, "api_key": "api-key"}
	for k, v := range params {
		p[k] = v
	}
	inst, err := reg.Create(ID, p, deps)
	require.NoError(t, err)
	return inst
}

func attachment(t *testing.T) host.FileResolver {
	path := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("contents"), 0o600))
	return host.MapResolver{"1@2": {Path: path, Name: "report.txt"}}
}

func TestCreatePagingHeader(t *testing.T) {
	assert.Equal(t, "#### Showing 1 results from page 10:\n", createPagingHeader(1, 10))
}

func TestAdjustPagingToRequest(t *testing.T) {
	offset, limit, header, err := adjustPagingToRequest(host.Args{"page_number": "2", "page_size": "20"})
	require.NoError(t, err)
	assert.Equal(t, 20, offset)
	assert.Equal(t, 20, limit)
	assert.Equal(t, "#### Showing 20 results from page 2:\n", header)

	offset, limit, header, err = adjustPagingToRequest(host.Args{"limit": "1"})
	require.NoError(t, err)
	assert.Equal(t, 0, offset)
	assert.Equal(t, 1, limit)
	assert.Empty(t, header)

	_, _, _, err = adjustPagingToRequest(host.Args{"page_number": "0"})
	assert.Error(t, err)
}

func TestMapHeader(t *testing.T) {
	assert.Equal(t, "ID", mapHeader("id"))
	assert.Equal(t, "Created On", mapHeader("created_on"))
	assert.Equal(t, "Target Version", mapHeader("fixed_version"))
}

func TestConvertArgsToRequestFormat(t *testing.T) {
	issue, err := convertArgsToRequestFormat(host.Args{
		"subject":          "s",
		"watcher_user_ids": "1,2,3",
		"custom_fields":    "1:foo, 2:bar",
		"is_private":       "true",
		"issue_id":         "9",
	})
	require.NoError(t, err)
	assert.Equal(t, "s", issue["subject"])
	assert.Equal(t, []int{1, 2, 3}, issue["watcher_user_ids"])
	assert.Equal(t, true, issue["is_private"])
	assert.Equal(t, []map[string]interface{}{
		{"id": "1", "value": "foo"},
		{"id": "2", "value": "bar"},
	}, issue["custom_fields"])
	assert.NotContains(t, issue, "issue_id")

	issue, err = convertArgsToRequestFormat(host.Args{"watcher_user_ids": "[4]"})
	require.NoError(t, err)
	assert.Equal(t, []int{4}, issue["watcher_user_ids"])

	_, err = convertArgsToRequestFormat(host.Args{"custom_fields": "nocolon"})
	assert.Error(t, err)
	_, err = convertArgsToRequestFormat(host.Args{"watcher_user_ids": "a,b"})
	assert.Error(t, err)
}

func TestCreateIssue(t *testing.T) {
	api := newRedmineAPI(t)
	api.status = http.StatusCreated
	api.respond = `{"issue":{"id":789,"project":{"id":1,"name":"Demo"},"subject":"subjectChanged","status":{"id":1,"name":"New"}}}`
	inst := newTestIntegration(t, api, nil, connector.Deps{Files: attachment(t)})

	res, err := inst.Execute(context.Background(), "redmine-issue-create", host.Args{
		"status_id":     "1",
		"priority_id":   "1",
		"subject":       "changeFromCode",
		"project_id":    "1",
		"file_entry_id": "1@2",
	})
	require.NoError(t, err)

	require.Len(t, api.requests, 2)
	upload := api.requests[0]
	assert.Equal(t, "/uploads.json", upload.path)
	assert.Equal(t, []string{"report.txt"}, upload.query["filename"])
	assert.Equal(t, "contents", string(upload.raw))

	create := api.last()
	assert.Equal(t, http.MethodPost, create.method)
	assert.Equal(t, "/issues.json", create.path)
	issue := create.body["issue"].(map[string]interface{})
	assert.Equal(t, "changeFromCode", issue["subject"])
	assert.Equal(t, "1", issue["project_id"])
	assert.Equal(t, "1", issue["status_id"])
	assert.Equal(t, "1", issue["priority_id"])
	assert.Empty(t, create.query)
	assert.Equal(t, []interface{}{map[string]interface{}{"token": "7167.ed1ccdb093229ca1bd0b043618d88743"}}, issue["uploads"])

	assert.Equal(t, "Redmine.Issue", res.OutputsPrefix)
	assert.Equal(t, "id", res.OutputsKeyField)
	assert.Contains(t, res.ReadableOutput, "### The issue you created:")
	assert.Contains(t, res.ReadableOutput, "|ID|")
	assert.Contains(t, res.ReadableOutput, "Demo")
}

func TestCreateIssueMissingArguments(t *testing.T) {
	api := newRedmineAPI(t)
	inst := newTestIntegration(t, api, nil, connector.Deps{})

	_, err := inst.Execute(context.Background(), "redmine-issue-create", host.Args{})
	assert.EqualError(t, err, "One or more required arguments not specified: status_id, priority_id, subject, project_id")
	assert.Empty(t, api.requests)
}

func TestCreateIssueDefaultProject(t *testing.T) {
	api := newRedmineAPI(t)
	api.respond = `{"issue":{"id":1}}`
	inst := newTestIntegration(t, api, host.Params{"project_id": "7"}, connector.Deps{})

	_, err := inst.Execute(context.Background(), "redmine-issue-create", host.Args{
		"status_id": "1", "priority_id": "1", "subject": "s",
	})
	require.NoError(t, err)
	assert.Equal(t, "7", api.last().body["issue"].(map[string]interface{})["project_id"])
}

func TestCreateIssueUploadFailure(t *testing.T) {
	api := newRedmineAPI(t)
	inst := newTestIntegration(t, api, nil, connector.Deps{Files: host.MapResolver{}})

	_, err := inst.Execute(context.Background(), "redmine-issue-create", host.Args{
		"status_id": "1", "priority_id": "1", "subject": "s", "project_id": "1",
		"file_entry_id": "9@klmlqm",
	})
	assert.EqualError(t, err, "Could not upload file with entry id 9@klmlqm")
}

func TestUpdateIssue(t *testing.T) {
	api := newRedmineAPI(t)
	api.status = http.StatusNoContent
	inst := newTestIntegration(t, api, nil, connector.Deps{Files: attachment(t)})

	res, err := inst.Execute(context.Background(), "redmine-issue-update", host.Args{
		"issue_id":         "1",
		"subject":          "changeFromCode",
		"tracker_id":       "1",
		"watcher_user_ids": "[1]",
		"entry_id":         "1@2",
	})
	require.NoError(t, err)
	assert.Equal(t, "Issue with id 1 was successfully updated.", res.ReadableOutput)

	update := api.last()
	assert.Equal(t, http.MethodPut, update.method)
	assert.Equal(t, "/issues/1.json", update.path)
	issue := update.body["issue"].(map[string]interface{})
	assert.NotContains(t, issue, "issue_id")
	assert.Equal(t, []interface{}{float64(1)}, issue["watcher_user_ids"])
	assert.Equal(t, []interface{}{map[string]interface{}{
		"token":        "7167.ed1ccdb093229ca1bd0b043618d88743",
		"filename":     "",
		"description":  "",
		"content_type": "",
	}}, issue["uploads"])
}

func TestMissingIssueID(t *testing.T) {
	api := newRedmineAPI(t)
	inst := newTestIntegration(t, api, nil, connector.Deps{})

	tests := []struct {
		command string
		args    host.Args
		want    string
	}{
		{"redmine-issue-update", host.Args{}, "Issue_id is missing in order to update this issue"},
		{"redmine-issue-get", host.Args{}, "Issue_id is missing in order to get this issue"},
		{"redmine-issue-delete", host.Args{}, "Issue_id is missing in order to delete"},
		{"redmine-issue-watcher-add", host.Args{"watcher_id": "1"}, "Issue_id is missing in order to add a watcher to this issue"},
		{"redmine-issue-watcher-add", host.Args{"issue_id": "1"}, "watcher_id is missing in order to add this watcher to the issue"},
		{"redmine-issue-watcher-remove", host.Args{"watcher_id": "1"}, "Issue_id is missing in order to remove watcher from this issue"},
		{"redmine-issue-watcher-remove", host.Args{"issue_id": "1"}, "watcher_id is missing in order to remove watcher from this issue"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			_, err := inst.Execute(context.Background(), tt.command, tt.args)
			assert.EqualError(t, err, tt.want)
		})
	}
	assert.Empty(t, api.requests)
}

func TestGetIssue(t *testing.T) {
	api := newRedmineAPI(t)
	api.respond = `{"issue":{"id":1,"subject":"s","watchers":[{"id":5,"name":"Ann"}]}}`
	inst := newTestIntegration(t, api, nil, connector.Deps{})

	res, err := inst.Execute(context.Background(), "redmine-issue-get", host.Args{"issue_id": "1", "include": "watchers"})
	require.NoError(t, err)
	assert.Equal(t, "/issues/1.json", api.last().path)
	assert.Equal(t, []string{"watchers"}, api.last().query["include"])
	assert.Equal(t, float64(1), res.Outputs.(map[string]interface{})["id"])
	assert.Contains(t, res.ReadableOutput, "Watchers")

	_, err = inst.Execute(context.Background(), "redmine-issue-get", host.Args{"issue_id": "1", "include": "parents"})
	assert.Error(t, err)
}

func TestGetIssueNotFound(t *testing.T) {
	api := newRedmineAPI(t)
	api.status = http.StatusNotFound
	inst := newTestIntegration(t, api, nil, connector.Deps{})

	_, err := inst.Execute(context.Background(), "redmine-issue-get", host.Args{"issue_id": "404"})
	assert.EqualError(t, err, "Redmine - Error in API call 404 - Not Found; ID does not exist.")
}

func TestListIssues(t *testing.T) {
	api := newRedmineAPI(t)
	api.respond = `{"issues":[{"id":1,"subject":"a","status":{"id":1,"name":"New"}}],"total_count":1,"offset":20,"limit":20}`
	inst := newTestIntegration(t, api, nil, connector.Deps{})

	res, err := inst.Execute(context.Background(), "redmine-issue-list", host.Args{
		"page_number": "2", "page_size": "20", "status_id": "Closed",
	})
	require.NoError(t, err)

	q := api.last().query
	assert.Equal(t, []string{"20"}, q["offset"])
	assert.Equal(t, []string{"20"}, q["limit"])
	assert.Equal(t, []string{"closed"}, q["status_id"])
	assert.Contains(t, res.ReadableOutput, "#### Showing 20 results from page 2:\n### Issues Results:")
	assert.Contains(t, res.ReadableOutput, "New")

	_, err = inst.Execute(context.Background(), "redmine-issue-list", host.Args{"limit": "1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"0"}, api.last().query["offset"])
	assert.Equal(t, []string{"1"}, api.last().query["limit"])
}

func TestDeleteIssue(t *testing.T) {
	api := newRedmineAPI(t)
	api.status = http.StatusNoContent
	inst := newTestIntegration(t, api, nil, connector.Deps{})

	res, err := inst.Execute(context.Background(), "redmine-issue-delete", host.Args{"issue_id": "41"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, api.last().method)
	assert.Equal(t, "/issues/41.json", api.last().path)
	assert.Equal(t, "Issue with id 41 was deleted successfully.", res.ReadableOutput)
}

func TestWatchers(t *testing.T) {
	api := newRedmineAPI(t)
	api.status = http.StatusNoContent
	inst := newTestIntegration(t, api, nil, connector.Deps{})

	res, err := inst.Execute(context.Background(), "redmine-issue-watcher-add", host.Args{"issue_id": "1", "watcher_id": "3"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, api.last().method)
	assert.Equal(t, "/issues/1/watchers.json", api.last().path)
	assert.Equal(t, []string{"3"}, api.last().query["user_id"])
	assert.Equal(t, "Watcher with id 3 was added successfully to issue with id 1.", res.ReadableOutput)

	res, err = inst.Execute(context.Background(), "redmine-issue-watcher-remove", host.Args{"issue_id": "1", "watcher_id": "3"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, api.last().method)
	assert.Equal(t, "/issues/1/watchers/3.json", api.last().path)
	assert.Equal(t, "Watcher with id 3 was removed successfully from issue with id 1.", res.ReadableOutput)
}

func TestListProjects(t *testing.T) {
	api := newRedmineAPI(t)
	api.respond = `{"projects":[{"id":1,"name":"Demo","identifier":"demo","trackers":[{"id":1,"name":"Bug"}]}]}`
	inst := newTestIntegration(t, api, nil, connector.Deps{})

	res, err := inst.Execute(context.Background(), "redmine-project-list", host.Args{"include": "trackers"})
	require.NoError(t, err)
	assert.Equal(t, "/projects.json", api.last().path)
	assert.Equal(t, []string{"trackers"}, api.last().query["include"])
	assert.Equal(t, "Redmine.Project", res.OutputsPrefix)
	assert.Contains(t, res.ReadableOutput, "### Projects List:")
}

func TestListProjectsInvalidInclude(t *testing.T) {
	api := newRedmineAPI(t)
	inst := newTestIntegration(t, api, nil, connector.Deps{})

	_, err := inst.Execute(context.Background(), "redmine-project-list", host.Args{"include": "jissue_categories"})
	assert.EqualError(t, err, "The 'include' argument should only contain values from "+
		"trackers/issue_categories/enabled_modules/time_entry_activities/issue_custom_fields, "+
		"separated by commas. These values are not in options ['jissue_categories']")
}

func TestListCustomFields(t *testing.T) {
	api := newRedmineAPI(t)
	api.respond = `{"custom_fields":[{"id":1,"name":"Severity","customized_type":"issue","field_format":"list"}]}`
	inst := newTestIntegration(t, api, nil, connector.Deps{})

	res, err := inst.Execute(context.Background(), "redmine-custom-field-list", host.Args{})
	require.NoError(t, err)
	assert.Equal(t, "/custom_fields.json", api.last().path)
	assert.Equal(t, "Redmine.CustomField", res.OutputsPrefix)
	assert.Contains(t, res.ReadableOutput, "Customized Type")
}

func TestListUsers(t *testing.T) {
	api := newRedmineAPI(t)
	api.respond = `{"users":[{"id":1,"login":"admin","firstname":"Red","lastname":"Mine"}]}`
	inst := newTestIntegration(t, api, nil, connector.Deps{})

	res, err := inst.Execute(context.Background(), "redmine-user-id-list", host.Args{"status": "Active"})
	require.NoError(t, err)
	assert.Equal(t, "/users.json", api.last().path)
	assert.Equal(t, []string{"1"}, api.last().query["status"])
	assert.Contains(t, res.ReadableOutput, "### Users List:")

	_, err = inst.Execute(context.Background(), "redmine-user-id-list", host.Args{"status": "Gone"})
	assert.Error(t, err)
}

func TestTestModule(t *testing.T) {
	api := newRedmineAPI(t)
	api.respond = `{"issues":[]}`
	inst := newTestIntegration(t, api, nil, connector.Deps{})

	out, err := inst.TestModule(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, []string{"1"}, api.last().query["limit"])

	api.status = http.StatusUnauthorized
	out, err = inst.TestModule(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Authorization Error: make sure API Key is correctly set", out)
}
