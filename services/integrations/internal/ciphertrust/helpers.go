package ciphertrust

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/siem-soar-platform/integrations/pkg/errors"
	"github.com/siem-soar-platform/integrations/pkg/host"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 2000
	DefaultLimit    = 50

	dateLayout = "2006-01-02T15:04:05.000000Z"
)

// DeriveSkipAndLimit maps page, page_size and limit onto the API's skip and
// limit. page takes precedence over limit.
func DeriveSkipAndLimit(args host.Args) (skip, limit int, err error) {
	page, err := args.OptionalInt("page")
	if err != nil {
		return 0, 0, err
	}
	if page != nil {
		pageSize, err := args.Int("page_size", DefaultPageSize)
		if err != nil {
			return 0, 0, err
		}
		if pageSize == 0 {
			pageSize = DefaultPageSize
		}
		if pageSize > MaxPageSize {
			return 0, 0, errors.BadInput("Page size cannot exceed %d", MaxPageSize)
		}
		if *page < 1 {
			return 0, 0, errors.BadInput("page must be a positive integer")
		}
		return (*page - 1) * pageSize, pageSize, nil
	}

	limit, err = args.Int("limit", DefaultLimit)
	if err != nil {
		return 0, 0, err
	}
	return 0, limit, nil
}

// params builds a JSON body or query string, leaving out empty values.
type params map[string]interface{}

func (p params) set(key string, v interface{}) params {
	switch val := v.(type) {
	case nil:
		return p
	case string:
		if val == "" {
			return p
		}
	case []string:
		if len(val) == 0 {
			return p
		}
	case *bool:
		if val == nil {
			return p
		}
		v = *val
	case *int:
		if val == nil {
			return p
		}
		v = *val
	case map[string]interface{}:
		if len(val) == 0 {
			return p
		}
	}
	p[key] = v
	return p
}

// str copies a string argument.
func (p params) str(args host.Args, arg, key string) params {
	return p.set(key, args.String(arg, ""))
}

func (p params) boolArg(args host.Args, arg, key string) (params, error) {
	b, err := args.OptionalBool(arg)
	if err != nil {
		return p, err
	}
	return p.set(key, b), nil
}

func (p params) intArg(args host.Args, arg, key string) (params, error) {
	n, err := args.OptionalInt(arg)
	if err != nil {
		return p, err
	}
	return p.set(key, n), nil
}

func (p params) dateArg(args host.Args, arg, key string, now time.Time) (params, error) {
	s, err := optionalDatetime(args, arg, now)
	if err != nil {
		return p, err
	}
	return p.set(key, s), nil
}

// query renders p as a query string. Lists repeat the key.
func (p params) query() url.Values {
	q := url.Values{}
	for k, v := range p {
		switch val := v.(type) {
		case []string:
			for _, s := range val {
				q.Add(k, s)
			}
		case bool:
			q.Set(k, strconv.FormatBool(val))
		default:
			q.Set(k, fmt.Sprint(val))
		}
	}
	return q
}

// optionalDatetime formats a date argument in the API's layout. An absent
// argument yields "".
func optionalDatetime(args host.Args, arg string, now time.Time) (string, error) {
	if !args.Has(arg) || args.String(arg, "") == "" {
		return "", nil
	}
	t, err := host.ArgToDatetime(args[arg], now)
	if err != nil {
		return "", errors.BadInput("Invalid date for %s: %q", arg, args.String(arg, ""))
	}
	return t.UTC().Format(dateLayout), nil
}

// setExpiresAt sets expires_at on a user body. An explicit empty value
// clears the expiration, so it is kept.
func setExpiresAt(body params, args host.Args, now time.Time) error {
	v, ok := args["expires_at"]
	if !ok || v == nil {
		return nil
	}
	if args.String("expires_at", "") == "" {
		body["expires_at"] = ""
		return nil
	}
	s, err := optionalDatetime(args, "expires_at", now)
	if err != nil {
		return err
	}
	body["expires_at"] = s
	return nil
}

// loadJSONArg reads a JSON value from a war-room file or from a raw
// argument. The file wins when both are given.
func loadJSONArg(files host.FileResolver, raw, entryID string) (interface{}, error) {
	data := []byte(raw)
	if entryID != "" {
		if files == nil {
			return nil, errors.BadInput("Could not find file with entry id %s", entryID)
		}
		fi, err := files.FilePath(entryID)
		if err != nil {
			return nil, errors.BadInput("Could not find file with entry id %s", entryID)
		}
		if data, err = os.ReadFile(fi.Path); err != nil {
			return nil, errors.BadInput("Could not read file with entry id %s", entryID)
		}
	}
	if len(data) == 0 {
		return nil, nil
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, errors.BadInput("Unable to parse JSON: %v", err)
	}
	return v, nil
}

// resources returns the list part of a paged response.
func resources(raw Resource) []map[string]interface{} {
	items, _ := raw["resources"].([]interface{})
	rows := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]interface{}); ok {
			rows = append(rows, m)
		}
	}
	return rows
}
