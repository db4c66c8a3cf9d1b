package githubfeed

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/spf13/cast"

	"github.com/siem-soar-platform/integrations/pkg/commandresults"
)

// STIX domain objects mapped to indicator types by their name.
var stixObjectTypes = map[string]string{
	"attack-pattern":   "Attack Pattern",
	"campaign":         "Campaign",
	"course-of-action": "Course of Action",
	"infrastructure":   "Infrastructure",
	"intrusion-set":    "Intrusion Set",
	"malware":          "Malware",
	"report":           "Report",
	"threat-actor":     "Threat Actor",
	"tool":             "Tool",
	"vulnerability":    "CVE",
}

// Observable paths inside indicator patterns.
var stixPatternTypes = map[string]string{
	"ipv4-addr:value":   TypeIP,
	"ipv6-addr:value":   TypeIPv6,
	"domain-name:value": TypeDomain,
	"url:value":         TypeURL,
	"email-addr:value":  TypeEmail,
	"file:hashes":       TypeFile,
}

var stixComparison = regexp.MustCompile(`([a-z0-9\-]+:[a-z_]+)(?:\.(?:'[^']+'|[A-Za-z0-9\-]+))?\s*=\s*'((?:[^'\\]|\\.)*)'`)

// ParseSTIX converts a STIX 2.x bundle into indicators. Indicator objects
// yield one indicator per supported comparison in their pattern; named
// domain objects yield one indicator each.
func ParseSTIX(raw []byte) ([]commandresults.Indicator, error) {
	var bundle struct {
		Objects []map[string]interface{} `json:"objects"`
	}
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return nil, err
	}

	var out []commandresults.Indicator
	seen := make(map[string]bool)
	for _, obj := range bundle.Objects {
		objType := cast.ToString(obj["type"])
		if objType == "indicator" {
			for _, ind := range patternIndicators(obj) {
				key := ind.Type + "|" + ind.Value
				if !seen[key] {
					seen[key] = true
					out = append(out, ind)
				}
			}
			continue
		}

		indType, ok := stixObjectTypes[objType]
		name := cast.ToString(obj["name"])
		if !ok || name == "" {
			continue
		}
		key := indType + "|" + name
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, commandresults.Indicator{
			Value:   name,
			Type:    indType,
			Fields:  stixFields(obj),
			RawJSON: obj,
		})
	}
	return out, nil
}

func patternIndicators(obj map[string]interface{}) []commandresults.Indicator {
	pattern := cast.ToString(obj["pattern"])
	if cast.ToString(obj["pattern_type"]) != "" && cast.ToString(obj["pattern_type"]) != "stix" {
		return nil
	}

	var out []commandresults.Indicator
	for _, m := range stixComparison.FindAllStringSubmatch(pattern, -1) {
		indType, ok := stixPatternTypes[m[1]]
		if !ok {
			continue
		}
		value := strings.ReplaceAll(m[2], `\'`, `'`)
		if indType == TypeIP && strings.Contains(value, "/") {
			indType = TypeCIDR
		}
		if indType == TypeIPv6 && strings.Contains(value, "/") {
			indType = TypeIPv6CIDR
		}
		fields := stixFields(obj)
		fields["stixpattern"] = pattern
		out = append(out, commandresults.Indicator{
			Value:   value,
			Type:    indType,
			Fields:  fields,
			RawJSON: obj,
		})
	}
	return out
}

func stixFields(obj map[string]interface{}) map[string]interface{} {
	fields := map[string]interface{}{
		"stixid":            cast.ToString(obj["id"]),
		"firstseenbysource": cast.ToString(obj["created"]),
		"modified":          cast.ToString(obj["modified"]),
		"description":       cast.ToString(obj["description"]),
	}
	if labels := cast.ToStringSlice(obj["labels"]); len(labels) > 0 {
		fields["tags"] = labels
	}
	if c, ok := obj["confidence"]; ok {
		fields["confidence"] = cast.ToInt(c)
	}
	return fields
}
