package commandresults

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/siem-soar-platform/integrations/pkg/host"
)

func TestTableToMarkdown(t *testing.T) {
	rows := []map[string]interface{}{
		{"id": float64(1), "name": "admin", "tags": []interface{}{"a", "b"}},
		{"id": float64(2), "name": "a|b", "tags": nil},
	}

	got := TableToMarkdown("Groups", rows, &TableOptions{Headers: []string{"id", "name", "tags"}})
	want := "### Groups\n" +
		"|id|name|tags|\n" +
		"|---|---|---|\n" +
		"| 1 | admin | a, b |\n" +
		"| 2 | a\\|b |  |\n"
	assert.Equal(t, want, got)
}

func TestTableToMarkdownDefaults(t *testing.T) {
	rows := []map[string]interface{}{{"b": "2", "a": "1", "empty": ""}}

	got := TableToMarkdown("", rows, &TableOptions{RemoveNull: true, HeaderTransform: UnderscoreToSpace})
	assert.Equal(t, "|A|B|\n|---|---|\n| 1 | 2 |\n", got)

	assert.Equal(t, "### Nothing\n**No entries.**\n", TableToMarkdown("Nothing", nil, nil))
}

func TestHeaderTransforms(t *testing.T) {
	assert.Equal(t, "Created On", PascalToSpace("CreatedOn"))
	assert.Equal(t, "Parent DN", PascalToSpace("ParentDN"))
	assert.Equal(t, "DN", PascalToSpace("DN"))
	assert.Equal(t, "First Name", UnderscoreToSpace("first_name"))

	m := MapHeaders(map[string]string{"id": "ID"})
	assert.Equal(t, "ID", m("id"))
	assert.Equal(t, "name", m("name"))
}

func TestToEntry(t *testing.T) {
	r := &CommandResults{
		OutputsPrefix:   "CipherTrust.Group",
		OutputsKeyField: "name",
		Outputs:         map[string]interface{}{"name": "admins"},
		ReadableOutput:  "md",
	}

	entry := r.ToEntry()
	assert.Equal(t, host.EntryNote, entry.Type)
	assert.Equal(t, "md", entry.HumanReadable)
	assert.Contains(t, entry.EntryContext, "CipherTrust.Group(val.name && val.name == obj.name)")
	assert.Equal(t, r.Outputs, entry.Contents)

	assert.Equal(t, host.EntryError, ErrorEntry("x").Type)
	assert.Nil(t, Text("hello").ToEntry().EntryContext)
}

func TestToRows(t *testing.T) {
	type item struct {
		Name string `json:"name"`
	}
	rows := ToRows([]item{{Name: "a"}, {Name: "b"}})
	assert.Len(t, rows, 2)
	assert.Equal(t, "b", rows[1]["name"])

	assert.Len(t, ToRows(map[string]interface{}{"x": 1}), 1)
	assert.Nil(t, ToRows(nil))
}
