package githubfeed

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// YARARule is a parsed YARA rule.
type YARARule struct {
	Name      string
	Tags      []string
	Meta      []MetaField
	Strings   []RuleString
	Condition string
	Raw       string
}

// MetaField is one key/value of a rule's meta section, in file order.
type MetaField struct {
	Key   string
	Value string
}

// RuleString is one entry of a rule's strings section.
type RuleString struct {
	Index     string
	Value     string
	Type      string
	Modifiers []string
}

// MetaValue returns the first meta value for key.
func (r *YARARule) MetaValue(key string) string {
	for _, m := range r.Meta {
		if strings.EqualFold(m.Key, key) {
			return m.Value
		}
	}
	return ""
}

var (
	ruleHeader    = regexp.MustCompile(`^\s*(?:(?:private|global)\s+)*rule\s+([A-Za-z_]\w*)\s*(?::\s*([^{]*?))?\s*\{`)
	sectionHeader = regexp.MustCompile(`(?m)^\s*(meta|strings|condition)\s*:`)
	metaLine      = regexp.MustCompile(`^\s*([A-Za-z_]\w*)\s*=\s*(.+?)\s*$`)
)

// scanner walks YARA source and skips comments and literals so braces
// inside them are not counted.
type scanner struct {
	src string
	pos int
}

// skipNonCode advances past a comment or literal starting at pos and reports
// whether it did.
func (s *scanner) skipNonCode() bool {
	rest := s.src[s.pos:]
	switch {
	case strings.HasPrefix(rest, "//"):
		if i := strings.IndexByte(rest, '\n'); i >= 0 {
			s.pos += i + 1
		} else {
			s.pos = len(s.src)
		}
		return true
	case strings.HasPrefix(rest, "/*"):
		if i := strings.Index(rest[2:], "*/"); i >= 0 {
			s.pos += i + 4
		} else {
			s.pos = len(s.src)
		}
		return true
	case rest[0] == '"':
		s.pos = closing(s.src, s.pos, '"')
		return true
	case rest[0] == '/' && s.afterAssign():
		s.pos = closing(s.src, s.pos, '/')
		return true
	}
	return false
}

// afterAssign reports whether the previous non-space character is '='.
func (s *scanner) afterAssign() bool {
	for i := s.pos - 1; i >= 0; i-- {
		c := s.src[i]
		if c == ' ' || c == '\t' {
			continue
		}
		return c == '='
	}
	return false
}

// closing returns the index after the unescaped delim closing the literal
// opened at start.
func closing(src string, start int, delim byte) int {
	for i := start + 1; i < len(src); i++ {
		switch src[i] {
		case '\\':
			i++
		case delim:
			return i + 1
		case '\n':
			if delim == '"' {
				return i
			}
		}
	}
	return len(src)
}

// SplitYARARules splits a file into the source of each rule, including any
// private/global modifiers. Imports and comments between rules are dropped.
func SplitYARARules(content string) []string {
	s := &scanner{src: content}
	var rules []string
	depth := 0
	start := -1
	sawRule := false

	for s.pos < len(s.src) {
		if s.skipNonCode() {
			continue
		}
		c := s.src[s.pos]
		switch {
		case c == '{':
			depth++
			s.pos++
		case c == '}':
			depth--
			s.pos++
			if depth == 0 && sawRule && start >= 0 {
				rules = append(rules, strings.TrimSpace(s.src[start:s.pos]))
				start, sawRule = -1, false
			}
			if depth < 0 {
				depth = 0
			}
		case depth == 0 && isIdentStart(c):
			wordStart := s.pos
			for s.pos < len(s.src) && isIdent(s.src[s.pos]) {
				s.pos++
			}
			switch s.src[wordStart:s.pos] {
			case "private", "global":
				if start < 0 {
					start = wordStart
				}
			case "rule":
				if start < 0 {
					start = wordStart
				}
				sawRule = true
			default:
				if !sawRule {
					start = -1
				}
			}
		default:
			s.pos++
		}
	}
	return rules
}

// ParseYARARule parses the source of a single rule.
func ParseYARARule(raw string) (*YARARule, error) {
	header := ruleHeader.FindStringSubmatchIndex(raw)
	if header == nil {
		return nil, fmt.Errorf("no rule header found")
	}
	rule := &YARARule{
		Name: raw[header[2]:header[3]],
		Raw:  raw,
	}
	if header[4] >= 0 {
		rule.Tags = strings.Fields(raw[header[4]:header[5]])
	}

	bodyStart := header[1]
	bodyEnd := strings.LastIndex(raw, "}")
	if bodyEnd < bodyStart {
		return nil, fmt.Errorf("rule %s is not closed", rule.Name)
	}
	body := raw[bodyStart:bodyEnd]

	sections := sectionHeader.FindAllStringSubmatchIndex(body, -1)
	if len(sections) == 0 {
		return nil, fmt.Errorf("rule %s has no condition", rule.Name)
	}
	for i, sec := range sections {
		name := body[sec[2]:sec[3]]
		end := len(body)
		if i+1 < len(sections) {
			end = sections[i+1][0]
		}
		text := body[sec[1]:end]

		switch name {
		case "meta":
			rule.Meta = parseMeta(text)
		case "strings":
			parsed, err := parseStrings(text)
			if err != nil {
				return nil, fmt.Errorf("rule %s: %w", rule.Name, err)
			}
			rule.Strings = parsed
		case "condition":
			rule.Condition = strings.Join(strings.Fields(text), " ")
		}
	}
	if rule.Condition == "" {
		return nil, fmt.Errorf("rule %s has no condition", rule.Name)
	}
	return rule, nil
}

func parseMeta(text string) []MetaField {
	var fields []MetaField
	for _, line := range strings.Split(text, "\n") {
		m := metaLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		value := m[2]
		if strings.HasPrefix(value, `"`) {
			value = strings.TrimSuffix(strings.TrimPrefix(value, `"`), `"`)
			value = strings.ReplaceAll(value, `\"`, `"`)
		}
		fields = append(fields, MetaField{Key: m[1], Value: value})
	}
	return fields
}

// parseStrings reads `$id = value modifiers` entries. Values may be text,
// hex (possibly spanning lines) or regular expressions.
func parseStrings(text string) ([]RuleString, error) {
	var out []RuleString
	i := 0
	for i < len(text) {
		if text[i] != '$' {
			if strings.HasPrefix(text[i:], "//") {
				if j := strings.IndexByte(text[i:], '\n'); j >= 0 {
					i += j
					continue
				}
				break
			}
			i++
			continue
		}

		idStart := i
		i++
		for i < len(text) && isIdent(text[i]) {
			i++
		}
		id := text[idStart:i]

		for i < len(text) && (text[i] == ' ' || text[i] == '\t') {
			i++
		}
		if i >= len(text) || text[i] != '=' {
			return nil, fmt.Errorf("string %s has no value", id)
		}
		i++
		for i < len(text) && (text[i] == ' ' || text[i] == '\t') {
			i++
		}
		if i >= len(text) {
			return nil, fmt.Errorf("string %s has no value", id)
		}

		var value, typ string
		switch text[i] {
		case '"':
			end := closing(text, i, '"')
			value, typ = text[i+1:max(end-1, i+1)], "text"
			i = end
		case '{':
			end := strings.IndexByte(text[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("hex string %s is not closed", id)
			}
			value, typ = strings.Join(strings.Fields(text[i+1:i+end]), " "), "hex"
			i += end + 1
		case '/':
			end := closing(text, i, '/')
			value, typ = text[i+1:max(end-1, i+1)], "regex"
			i = end
		default:
			return nil, fmt.Errorf("string %s has an unsupported value", id)
		}

		lineEnd := strings.IndexByte(text[i:], '\n')
		if lineEnd < 0 {
			lineEnd = len(text) - i
		}
		rest := text[i : i+lineEnd]
		if c := strings.Index(rest, "//"); c >= 0 {
			rest = rest[:c]
		}
		out = append(out, RuleString{Index: id, Value: value, Type: typ, Modifiers: strings.Fields(rest)})
		i += lineEnd
	}
	return out, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || unicode.IsLetter(rune(c))
}

func isIdent(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
