// Package host models the contract between integrations and the SOAR
// platform that invokes them: instance params, command arguments, the
// integration context and last-run stores, and the command executor used by
// scripts.
package host

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/siem-soar-platform/integrations/pkg/errors"
)

// Args is the flat argument map the host passes to a command.
type Args map[string]interface{}

// Has reports whether key is present with a non-empty value.
func (a Args) Has(key string) bool {
	v, ok := a[key]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return s != ""
	}
	return true
}

// String returns the argument as a string, or def when absent.
func (a Args) String(key, def string) string {
	if !a.Has(key) {
		return def
	}
	s, err := cast.ToStringE(a[key])
	if err != nil {
		return def
	}
	return s
}

// Bool parses a boolean argument. Absent arguments yield def.
func (a Args) Bool(key string, def bool) (bool, error) {
	if !a.Has(key) {
		return def, nil
	}
	return ArgToBool(a[key])
}

// OptionalBool parses a boolean argument, returning nil when absent.
func (a Args) OptionalBool(key string) (*bool, error) {
	if !a.Has(key) {
		return nil, nil
	}
	b, err := ArgToBool(a[key])
	if err != nil {
		return nil, errors.BadInput("invalid boolean for %s: %v", key, a[key])
	}
	return &b, nil
}

// Int parses an integer argument. Absent arguments yield def.
func (a Args) Int(key string, def int) (int, error) {
	if !a.Has(key) {
		return def, nil
	}
	n, err := ArgToInt(a[key])
	if err != nil {
		return 0, errors.BadInput("\"%v\" is not a valid number for %s", a[key], key)
	}
	return n, nil
}

// OptionalInt parses an integer argument, returning nil when absent.
func (a Args) OptionalInt(key string) (*int, error) {
	if !a.Has(key) {
		return nil, nil
	}
	n, err := a.Int(key, 0)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// List splits a comma separated argument. JSON arrays supplied by the
// host arrive as []interface{} and are converted element-wise.
func (a Args) List(key string) []string {
	if !a.Has(key) {
		return nil
	}
	return ArgToList(a[key])
}

// Required returns a bad-input error listing every missing key.
func (a Args) Required(keys ...string) error {
	var missing []string
	for _, k := range keys {
		if !a.Has(k) {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return errors.BadInput("missing required arguments: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Clone returns a shallow copy.
func (a Args) Clone() Args {
	out := make(Args, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// ArgToBool parses yes/no and anything strconv.ParseBool accepts.
func ArgToBool(v interface{}) (bool, error) {
	if s, ok := v.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "yes", "y":
			return true, nil
		case "no", "n":
			return false, nil
		}
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false, errors.BadInput("argument does not contain a valid boolean-like value: %v", v)
	}
	return b, nil
}

// ArgToInt parses integers given as numbers or numeric strings.
func ArgToInt(v interface{}) (int, error) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int(f)) {
			return int(f), nil
		}
		return 0, errors.BadInput("\"%s\" is not a valid number", s)
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, errors.BadInput("\"%v\" is not a valid number", v)
	}
	return n, nil
}

// ArgToList converts a comma separated string or a list into trimmed,
// non-empty strings.
func ArgToList(v interface{}) []string {
	var raw []string
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		raw = strings.Split(val, ",")
	case []string:
		raw = val
	default:
		items, err := cast.ToSliceE(v)
		if err != nil {
			raw = []string{cast.ToString(v)}
			break
		}
		for _, it := range items {
			raw = append(raw, cast.ToString(it))
		}
	}

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

var relativeDate = regexp.MustCompile(`^(\d+)\s*(second|minute|hour|day|week|month|year)s?(\s+ago)?$`)

// ArgToDatetime accepts RFC 3339 / ISO-8601 timestamps, epoch seconds, "now"
// or a relative expression such as "3 days" or "12 hours ago", which is
// resolved against now.
func ArgToDatetime(v interface{}, now time.Time) (time.Time, error) {
	switch val := v.(type) {
	case time.Time:
		return val, nil
	case int, int64, float64:
		return time.Unix(cast.ToInt64(val), 0).UTC(), nil
	}

	s := strings.TrimSpace(cast.ToString(v))
	if s == "" {
		return time.Time{}, errors.BadInput("empty date value")
	}

	if strings.EqualFold(s, "now") {
		return now.UTC(), nil
	}
	if m := relativeDate.FindStringSubmatch(strings.ToLower(s)); m != nil {
		n, _ := strconv.Atoi(m[1])
		return subtract(now, n, m[2]).UTC(), nil
	}

	if epoch, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(epoch, 0).UTC(), nil
	}

	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.000000Z",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, errors.BadInput("\"%s\" is not a valid date", s)
}

func subtract(now time.Time, n int, unit string) time.Time {
	switch unit {
	case "second":
		return now.Add(-time.Duration(n) * time.Second)
	case "minute":
		return now.Add(-time.Duration(n) * time.Minute)
	case "hour":
		return now.Add(-time.Duration(n) * time.Hour)
	case "day":
		return now.AddDate(0, 0, -n)
	case "week":
		return now.AddDate(0, 0, -7*n)
	case "month":
		return now.AddDate(0, -n, 0)
	default:
		return now.AddDate(-n, 0, 0)
	}
}

// ParseArgPairs builds Args from k=v strings as given on the command line.
func ParseArgPairs(pairs []string) (Args, error) {
	args := Args{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid argument %q, expected key=value", p)
		}
		args[k] = v
	}
	return args, nil
}
