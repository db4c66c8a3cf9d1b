package host

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// EntryType is the kind of a war-room entry returned by executeCommand.
type EntryType int

// Entry types used by the platform.
const (
	EntryNote  EntryType = 1
	EntryError EntryType = 4
)

// Entry is one result returned from executing a command through the host.
type Entry struct {
	Type          EntryType              `json:"Type"`
	Contents      interface{}            `json:"Contents"`
	HumanReadable string                 `json:"HumanReadable,omitempty"`
	EntryContext  map[string]interface{} `json:"EntryContext,omitempty"`

	// Metadata carries the instance that produced the entry.
	Metadata EntryMetadata `json:"Metadata,omitempty"`
}

// EntryMetadata describes where an entry came from.
type EntryMetadata struct {
	Instance string `json:"instance,omitempty"`
}

// Executor runs another integration's command on behalf of a script.
type Executor interface {
	ExecuteCommand(ctx context.Context, command string, args Args) ([]Entry, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, command string, args Args) ([]Entry, error)

// ExecuteCommand calls f.
func (f ExecutorFunc) ExecuteCommand(ctx context.Context, command string, args Args) ([]Entry, error) {
	return f(ctx, command, args)
}

// IsError reports whether any entry is an error entry.
func IsError(entries []Entry) bool {
	for _, e := range entries {
		if e.Type == EntryError {
			return true
		}
	}
	return false
}

// GetError joins the contents of all error entries.
func GetError(entries []Entry) string {
	var msgs []string
	for _, e := range entries {
		if e.Type == EntryError {
			msgs = append(msgs, cast.ToString(e.Contents))
		}
	}
	return strings.Join(msgs, "\n")
}

// ContextValue returns the first EntryContext value whose key starts with
// prefix. Context keys carry a dedup suffix such as
// "AWS.Organizations.Account(val.Id && val.Id == obj.Id)".
func ContextValue(entries []Entry, prefix string) (interface{}, bool) {
	for _, e := range entries {
		for k, v := range e.EntryContext {
			if k == prefix || strings.HasPrefix(k, prefix+"(") {
				return v, true
			}
		}
	}
	return nil, false
}

// ErrCommandFailed wraps error entries returned by a command.
type ErrCommandFailed struct {
	Command string
	Message string
}

func (e *ErrCommandFailed) Error() string {
	return fmt.Sprintf("command %s failed: %s", e.Command, e.Message)
}

// Execute runs command and converts error entries into an error.
func Execute(ctx context.Context, ex Executor, command string, args Args) ([]Entry, error) {
	entries, err := ex.ExecuteCommand(ctx, command, args)
	if err != nil {
		return nil, err
	}
	if IsError(entries) {
		return entries, &ErrCommandFailed{Command: command, Message: GetError(entries)}
	}
	return entries, nil
}
