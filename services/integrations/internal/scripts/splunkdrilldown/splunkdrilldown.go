// Package splunkdrilldown implements the SplunkShowDrilldown script, which
// renders the drilldown search results attached to a Splunk notable.
package splunkdrilldown

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/siem-soar-platform/integrations/pkg/commandresults"
	"github.com/siem-soar-platform/integrations/pkg/host"
)

const (
	// Name is the registry name of the script.
	Name = "SplunkShowDrilldown"

	// MaxResultsToDisplay caps the rows shown per drilldown search.
	MaxResultsToDisplay = 10

	enrichmentLabel = "successful_drilldown_enrichment"
	drilldownLabel  = "Drilldown"

	enrichmentFailed = "Drilldown enrichment failed."
	notConfigured    = "Drilldown was not configured for notable."
	noResults        = "\nNo results found for drilldown search."
)

// Script is the SplunkShowDrilldown script.
type Script struct{}

// New returns the script.
func New() *Script {
	return &Script{}
}

// Name returns the script name.
func (s *Script) Name() string {
	return Name
}

// Run renders the drilldown labels of the current incident.
func (s *Script) Run(_ context.Context, session *host.Session) (*commandresults.CommandResults, error) {
	res, err := render(session)
	if err != nil {
		return nil, fmt.Errorf("Got an error while parsing Splunk events: %w", err)
	}
	return res, nil
}

func render(session *host.Session) (*commandresults.CommandResults, error) {
	incident, err := session.Incident()
	if err != nil || incident == nil {
		return nil, fmt.Errorf("Error - expected the current incident from context but got none")
	}

	var drilldown json.RawMessage
	for _, label := range incident.Labels {
		switch label.Type {
		case enrichmentLabel:
			if label.Value == "false" {
				return commandresults.Text(enrichmentFailed), nil
			}
		case drilldownLabel:
			if !json.Valid([]byte(label.Value)) {
				var v interface{}
				err := json.Unmarshal([]byte(label.Value), &v)
				return nil, fmt.Errorf("Drilldown is not in a valid JSON structure:\n%v", err)
			}
			drilldown = json.RawMessage(label.Value)
		}
	}

	trimmed := bytes.TrimSpace(drilldown)
	if len(trimmed) == 0 || isEmpty(trimmed) {
		return commandresults.Text(notConfigured), nil
	}

	var markdown string
	switch trimmed[0] {
	case '[':
		markdown, err = listMarkdown(trimmed)
	case '{':
		markdown, err = searchesMarkdown(trimmed)
	default:
		var v interface{}
		if err = json.Unmarshal(trimmed, &v); err == nil {
			markdown = commandresults.TableToMarkdown("", commandresults.ToRows(v), nil)
		}
	}
	if err != nil {
		return nil, err
	}
	return commandresults.Text(markdown), nil
}

// listMarkdown renders a single search's results, columns in the order of
// the first result's keys.
func listMarkdown(raw []byte) (string, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return "", err
	}
	return resultsTable(items, len(items))
}

// searchesMarkdown renders the results of several named drilldown searches.
func searchesMarkdown(raw []byte) (string, error) {
	searches, err := orderedObject(raw)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("#### Drilldown Searches Results\n")
	for _, search := range searches {
		var body struct {
			QuerySearch  interface{}       `json:"query_search"`
			QueryResults []json.RawMessage `json:"query_results"`
		}
		if err := json.Unmarshal(search.value, &body); err != nil {
			return "", err
		}

		fmt.Fprintf(&b, "**Query Name:** %s\n\n **Query Search:**\n %s\n\n **Results:**\n", search.key, cast.ToString(body.QuerySearch))
		if len(body.QueryResults) > 0 {
			table, err := resultsTable(body.QueryResults, MaxResultsToDisplay)
			if err != nil {
				return "", err
			}
			b.WriteString(table)
		} else {
			b.WriteString(noResults)
		}
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

func resultsTable(items []json.RawMessage, limit int) (string, error) {
	if len(items) == 0 {
		return commandresults.TableToMarkdown("", nil, nil), nil
	}

	var headers []string
	if first, err := orderedObject(items[0]); err == nil {
		for _, f := range first {
			headers = append(headers, f.key)
		}
	}

	if len(items) > limit {
		items = items[:limit]
	}
	rows := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		var row map[string]interface{}
		if err := json.Unmarshal(item, &row); err != nil {
			return "", err
		}
		rows = append(rows, row)
	}
	return commandresults.TableToMarkdown("", rows, &commandresults.TableOptions{Headers: headers}), nil
}

type field struct {
	key   string
	value json.RawMessage
}

// orderedObject decodes a JSON object keeping its key order.
func orderedObject(raw []byte) ([]field, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected a JSON object")
	}

	var fields []field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		fields = append(fields, field{key: cast.ToString(tok), value: value})
	}
	return fields, nil
}

func isEmpty(raw []byte) bool {
	switch string(raw) {
	case "[]", "{}", "null", `""`, "0", "false":
		return true
	}
	compact := new(bytes.Buffer)
	if err := json.Compact(compact, raw); err != nil {
		return false
	}
	s := compact.String()
	return s == "[]" || s == "{}"
}
