// Package commandresults defines the normalized result a command hands back
// to the host and the markdown rendering used for its readable output.
package commandresults

import (
	"encoding/json"
	"fmt"

	"github.com/siem-soar-platform/integrations/pkg/host"
)

// CommandResults is the result of one command invocation.
type CommandResults struct {
	// OutputsPrefix is the context path outputs are stored under, for
	// example "CipherTrust.Group".
	OutputsPrefix string `json:"outputs_prefix,omitempty"`

	// OutputsKeyField names the field used to merge outputs with existing
	// context entries.
	OutputsKeyField string `json:"outputs_key_field,omitempty"`

	Outputs        interface{} `json:"outputs,omitempty"`
	ReadableOutput string      `json:"readable_output,omitempty"`

	// ExtraContext holds additional entry-context keys written alongside
	// the outputs, such as standard IP indicators.
	ExtraContext map[string]interface{} `json:"extra_context,omitempty"`

	RawResponse interface{} `json:"raw_response,omitempty"`

	// Indicators are set by feed commands.
	Indicators []Indicator `json:"indicators,omitempty"`

	// Incidents are set by fetch-incidents.
	Incidents []Incident `json:"incidents,omitempty"`

	// Events counts events pushed to the sink by collector commands.
	EventsPushed int `json:"events_pushed,omitempty"`

	IgnoreAutoExtract bool `json:"ignore_auto_extract,omitempty"`
}

// Incident is an incident created by fetch-incidents.
type Incident struct {
	Name     string `json:"name"`
	Occurred string `json:"occurred"`
	RawJSON  string `json:"rawJSON"`
}

// Indicator is a threat indicator produced by a feed.
type Indicator struct {
	Value   string                 `json:"value"`
	Type    string                 `json:"type"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
	RawJSON map[string]interface{} `json:"rawJSON,omitempty"`
}

// Text returns a result carrying only readable output.
func Text(s string) *CommandResults {
	return &CommandResults{ReadableOutput: s}
}

// ContextKey returns the entry-context key for the outputs, including the
// merge expression when a key field is set.
func (r *CommandResults) ContextKey() string {
	if r.OutputsKeyField == "" {
		return r.OutputsPrefix
	}
	return fmt.Sprintf("%s(val.%s && val.%s == obj.%s)", r.OutputsPrefix, r.OutputsKeyField, r.OutputsKeyField, r.OutputsKeyField)
}

// ToEntry converts the result into the host entry format.
func (r *CommandResults) ToEntry() host.Entry {
	entry := host.Entry{
		Type:          host.EntryNote,
		Contents:      r.RawResponse,
		HumanReadable: r.ReadableOutput,
	}
	if entry.Contents == nil {
		entry.Contents = r.Outputs
	}
	if r.OutputsPrefix != "" && r.Outputs != nil {
		entry.EntryContext = map[string]interface{}{r.ContextKey(): r.Outputs}
	}
	for k, v := range r.ExtraContext {
		if entry.EntryContext == nil {
			entry.EntryContext = make(map[string]interface{})
		}
		entry.EntryContext[k] = v
	}
	return entry
}

// ErrorEntry converts an error message into an error entry.
func ErrorEntry(msg string) host.Entry {
	return host.Entry{Type: host.EntryError, Contents: msg}
}

// ToMap converts any JSON-serializable value into a generic map.
func ToMap(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

// ToRows converts a JSON-serializable list into table rows.
func ToRows(v interface{}) []map[string]interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case []map[string]interface{}:
		return val
	case map[string]interface{}:
		return []map[string]interface{}{val}
	case []interface{}:
		rows := make([]map[string]interface{}, 0, len(val))
		for _, it := range val {
			if m := ToMap(it); m != nil {
				rows = append(rows, m)
			}
		}
		return rows
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var rows []map[string]interface{}
	if err := json.Unmarshal(data, &rows); err != nil {
		if m := ToMap(v); m != nil {
			return []map[string]interface{}{m}
		}
		return nil
	}
	return rows
}
