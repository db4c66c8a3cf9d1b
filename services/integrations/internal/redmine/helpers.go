package redmine

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/siem-soar-platform/integrations/pkg/commandresults"
	"github.com/siem-soar-platform/integrations/pkg/errors"
	"github.com/siem-soar-platform/integrations/pkg/host"
)

const defaultLimit = 25

var headerNames = map[string]string{
	"id":            "ID",
	"is_private":    "Private",
	"fixed_version": "Target Version",
}

// mapHeader renders a Redmine field name as a table header.
func mapHeader(h string) string {
	if v, ok := headerNames[h]; ok {
		return v
	}
	return commandresults.UnderscoreToSpace(h)
}

// createPagingHeader is shown above paged result tables.
func createPagingHeader(pageSize, pageNumber int) string {
	return fmt.Sprintf("#### Showing %d results from page %d:\n", pageSize, pageNumber)
}

// adjustPagingToRequest returns the offset and limit for a list request.
// page_number and page_size take precedence over offset and limit, and
// only they produce a paging header.
func adjustPagingToRequest(args host.Args) (offset, limit int, header string, err error) {
	if args.Has("page_number") || args.Has("page_size") {
		pageNumber, err := args.Int("page_number", 1)
		if err != nil {
			return 0, 0, "", err
		}
		pageSize, err := args.Int("page_size", defaultLimit)
		if err != nil {
			return 0, 0, "", err
		}
		if pageNumber < 1 || pageSize < 1 {
			return 0, 0, "", errors.BadInput("page_number and page_size must be positive integers")
		}
		return (pageNumber - 1) * pageSize, pageSize, createPagingHeader(pageSize, pageNumber), nil
	}

	if offset, err = args.Int("offset", 0); err != nil {
		return 0, 0, "", err
	}
	if limit, err = args.Int("limit", defaultLimit); err != nil {
		return 0, 0, "", err
	}
	return offset, limit, "", nil
}

// validateInclude checks a comma separated include list against options.
func validateInclude(include string, options []string) error {
	if include == "" {
		return nil
	}
	var invalid []string
	for _, v := range strings.Split(include, ",") {
		v = strings.TrimSpace(v)
		if !containsString(options, v) {
			invalid = append(invalid, v)
		}
	}
	if len(invalid) == 0 {
		return nil
	}
	quoted := make([]string, len(invalid))
	for i, v := range invalid {
		quoted[i] = "'" + v + "'"
	}
	return errors.BadInput("The 'include' argument should only contain values from %s, separated by commas. These values are not in options [%s]",
		strings.Join(options, "/"), strings.Join(quoted, ", "))
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// parseCustomFields turns "1:foo,2:bar" into Redmine custom field objects.
func parseCustomFields(raw string) ([]map[string]interface{}, error) {
	var fields []map[string]interface{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, value, ok := strings.Cut(pair, ":")
		if !ok || strings.TrimSpace(id) == "" {
			return nil, errors.BadInput("Custom fields must be given as id:value pairs separated by commas, got %q", pair)
		}
		fields = append(fields, map[string]interface{}{
			"id":    strings.TrimSpace(id),
			"value": strings.TrimSpace(value),
		})
	}
	return fields, nil
}

// parseIDList accepts "1,2,3" and "[1,2,3]".
func parseIDList(raw string) ([]int, error) {
	raw = strings.Trim(strings.TrimSpace(raw), "[]")
	var ids []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, errors.BadInput("Invalid user id %q in watcher_user_ids", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// issueFieldArgs are passed to Redmine as they are.
var issueFieldArgs = []string{
	"project_id", "tracker_id", "status_id", "priority_id", "subject",
	"description", "category_id", "fixed_version_id", "assigned_to_id",
	"parent_issue_id", "start_date", "due_date", "estimated_hours",
	"done_ratio", "notes",
}

// convertArgsToRequestFormat builds the issue body from command args.
func convertArgsToRequestFormat(args host.Args) (map[string]interface{}, error) {
	issue := make(map[string]interface{})
	for _, key := range issueFieldArgs {
		if v := args.String(key, ""); v != "" {
			issue[key] = v
		}
	}

	for _, key := range []string{"is_private", "private_notes"} {
		b, err := args.OptionalBool(key)
		if err != nil {
			return nil, err
		}
		if b != nil {
			issue[key] = *b
		}
	}

	if raw := args.String("custom_fields", ""); raw != "" {
		fields, err := parseCustomFields(raw)
		if err != nil {
			return nil, err
		}
		issue["custom_fields"] = fields
	}

	if raw := args.String("watcher_user_ids", ""); raw != "" {
		ids, err := parseIDList(raw)
		if err != nil {
			return nil, err
		}
		issue["watcher_user_ids"] = ids
	}
	return issue, nil
}

// flattenNamed replaces {"id": 1, "name": "x"} references by their name
// so they read well in tables.
func flattenNamed(item map[string]interface{}) map[string]interface{} {
	row := make(map[string]interface{}, len(item))
	for k, v := range item {
		if ref, ok := v.(map[string]interface{}); ok {
			if name, ok := ref["name"]; ok {
				row[k] = name
				continue
			}
		}
		row[k] = v
	}
	return row
}

func flattenAll(items []map[string]interface{}) []map[string]interface{} {
	rows := make([]map[string]interface{}, len(items))
	for i, item := range items {
		rows[i] = flattenNamed(item)
	}
	return rows
}

// userStatus maps the status names offered to analysts to Redmine codes.
var userStatus = map[string]string{
	"Active":     "1",
	"Registered": "2",
	"Locked":     "3",
}

// issueStatus maps status names for issue lists to Redmine filters.
var issueStatus = map[string]string{
	"Open":   "open",
	"Closed": "closed",
	"All":    "*",
}

func listQuery(args host.Args, keys ...string) url.Values {
	q := url.Values{}
	for _, key := range keys {
		if v := args.String(key, ""); v != "" {
			q.Set(key, v)
		}
	}
	return q
}
