package akamai

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
)

const readableLayout = "2006-01-02T15:04:05Z"

// DecodeMessage decodes an attackData member: the value is URL-decoded,
// split at semicolons, and every chunk is base64-decoded. Empty chunks are
// dropped.
func DecodeMessage(msg string) ([]string, error) {
	unquoted, err := url.PathUnescape(msg)
	if err != nil {
		unquoted = msg
	}

	decoded := []string{}
	for _, chunk := range strings.Split(unquoted, ";") {
		word, err := base64.StdEncoding.DecodeString(chunk)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 chunk %q: %w", chunk, err)
		}
		if len(word) > 0 {
			decoded = append(decoded, string(word))
		}
	}
	return decoded, nil
}

// DateFormatConverter converts between epoch seconds ("epoch") and
// 2006-01-02T15:04:05Z ("readable") in UTC.
func DateFormatConverter(fromFormat, date string) (string, error) {
	switch fromFormat {
	case "epoch":
		epoch, err := strconv.ParseInt(date, 10, 64)
		if err != nil {
			return "", fmt.Errorf("invalid epoch %q: %w", date, err)
		}
		return time.Unix(epoch, 0).UTC().Format(readableLayout), nil
	case "readable":
		t, err := time.ParseInLocation(readableLayout, date, time.UTC)
		if err != nil {
			return "", fmt.Errorf("invalid date %q: %w", date, err)
		}
		return strconv.FormatInt(t.Unix(), 10), nil
	}
	return "", nil
}

// DecodeURLHeaders turns a URL-encoded CRLF header block into a map with
// dashes in names replaced by underscores and quotes stripped from values.
func DecodeURLHeaders(headers string) map[string]interface{} {
	unquoted, err := url.PathUnescape(headers)
	if err != nil {
		unquoted = headers
	}

	decoded := make(map[string]interface{})
	for _, line := range strings.Split(unquoted, "\r\n") {
		parts := strings.SplitN(line, ": ", 2)
		if len(parts) != 2 {
			continue
		}
		decoded[strings.ReplaceAll(parts[0], "-", "_")] = strings.ReplaceAll(parts[1], `"`, "")
	}
	return decoded
}

// RemoveDuplicatedEvents drops events whose key was pushed by the previous
// fetch. It returns the kept events, the keys to remember for the next
// fetch, and the keys that were removed. Events without a key are always
// kept and never remembered.
func RemoveDuplicatedEvents(events []map[string]interface{}, cached []string) ([]map[string]interface{}, []string, []string) {
	seen := make(map[string]bool, len(cached))
	for _, id := range cached {
		if id != "" {
			seen[id] = true
		}
	}

	kept := []map[string]interface{}{}
	updated := []string{}
	var removed []string
	for _, event := range events {
		id := eventKey(event)
		if id == "" {
			kept = append(kept, event)
			continue
		}
		if seen[id] {
			removed = append(removed, id)
			continue
		}
		kept = append(kept, event)
		updated = append(updated, id)
	}
	return kept, updated, removed
}

// eventKey identifies an event across fetches: the top-level policyId when
// present, else the request id. attackData.policyId names the security
// policy and is shared by unrelated events.
func eventKey(event map[string]interface{}) string {
	if id := cast.ToString(event["policyId"]); id != "" {
		return id
	}
	return cast.ToString(section(event, "httpMessage")["requestId"])
}

func section(event map[string]interface{}, name string) map[string]interface{} {
	m, _ := event[name].(map[string]interface{})
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

func startOf(event map[string]interface{}) string {
	return cast.ToString(section(event, "httpMessage")["start"])
}

// decodeField decodes an attackData member, yielding an empty list for
// missing or malformed values.
func decodeField(attack map[string]interface{}, key string) []string {
	v := cast.ToString(attack[key])
	if v == "" {
		return []string{}
	}
	decoded, err := DecodeMessage(v)
	if err != nil {
		return []string{}
	}
	return decoded
}

// assign copies the non-empty values of kv into a new map.
func assign(kv map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(kv))
	for k, v := range kv {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			if val == "" {
				continue
			}
		case []string:
			if len(val) == 0 {
				continue
			}
		case map[string]interface{}:
			if len(val) == 0 {
				continue
			}
		}
		out[k] = v
	}
	return out
}
