package commandresults

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/spf13/cast"
)

// TableOptions controls TableToMarkdown.
type TableOptions struct {
	// Headers fixes the column order. When empty the sorted union of row
	// keys is used.
	Headers []string

	// HeaderTransform renames headers for display.
	HeaderTransform func(string) string

	// RemoveNull drops columns that are empty in every row.
	RemoveNull bool
}

// TableToMarkdown renders rows as a markdown table titled name.
func TableToMarkdown(name string, rows []map[string]interface{}, opts *TableOptions) string {
	if opts == nil {
		opts = &TableOptions{}
	}

	var b strings.Builder
	if name != "" {
		b.WriteString("### ")
		b.WriteString(name)
		b.WriteString("\n")
	}

	headers := opts.Headers
	if len(headers) == 0 {
		headers = collectHeaders(rows)
	}
	if opts.RemoveNull {
		headers = nonEmptyHeaders(headers, rows)
	}

	if len(rows) == 0 || len(headers) == 0 {
		b.WriteString("**No entries.**\n")
		return b.String()
	}

	display := make([]string, len(headers))
	for i, h := range headers {
		if opts.HeaderTransform != nil {
			display[i] = opts.HeaderTransform(h)
		} else {
			display[i] = h
		}
	}

	b.WriteString("|")
	b.WriteString(strings.Join(display, "|"))
	b.WriteString("|\n")

	seps := make([]string, len(headers))
	for i := range seps {
		seps[i] = "---"
	}
	b.WriteString("|")
	b.WriteString(strings.Join(seps, "|"))
	b.WriteString("|\n")

	for _, row := range rows {
		vals := make([]string, len(headers))
		for i, h := range headers {
			vals[i] = escapeCell(FormatCell(row[h]))
		}
		b.WriteString("| ")
		b.WriteString(strings.Join(vals, " | "))
		b.WriteString(" |\n")
	}

	return b.String()
}

// FormatCell renders a single value for a table cell.
func FormatCell(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []string:
		return strings.Join(val, ", ")
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, it := range val {
			parts = append(parts, FormatCell(it))
		}
		return strings.Join(parts, ", ")
	case map[string]interface{}:
		data, _ := json.Marshal(val)
		return string(data)
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return cast.ToString(val)
	default:
		return cast.ToString(val)
	}
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\r\n", "<br>")
	return strings.ReplaceAll(s, "\n", "<br>")
}

func collectHeaders(rows []map[string]interface{}) []string {
	seen := map[string]bool{}
	var headers []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				headers = append(headers, k)
			}
		}
	}
	sort.Strings(headers)
	return headers
}

func nonEmptyHeaders(headers []string, rows []map[string]interface{}) []string {
	out := headers[:0:0]
	for _, h := range headers {
		for _, row := range rows {
			if FormatCell(row[h]) != "" {
				out = append(out, h)
				break
			}
		}
	}
	return out
}

// PascalToSpace turns "CreatedOn" into "Created On".
func PascalToSpace(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteRune(' ')
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

// UnderscoreToSpace turns "first_name" into "First Name".
func UnderscoreToSpace(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '-' })
	for i, p := range parts {
		r := []rune(p)
		r[0] = unicode.ToUpper(r[0])
		parts[i] = string(r)
	}
	return strings.Join(parts, " ")
}

// MapHeaders returns a transform that renames known headers and leaves
// the rest unchanged.
func MapHeaders(m map[string]string) func(string) string {
	return func(h string) string {
		if v, ok := m[h]; ok {
			return v
		}
		return h
	}
}
