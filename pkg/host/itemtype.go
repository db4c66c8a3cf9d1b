package host

import (
	"context"
	"fmt"

	"github.com/siem-soar-platform/integrations/pkg/errors"
)

// ItemType is the kind of content item the host is running.
type ItemType string

const (
	ItemIntegration ItemType = "integration"
	ItemScript      ItemType = "script"
)

// Session exposes the host API surface to a running item, restricting
// each call to the item types allowed to make it: params and command are
// integration-only, executeCommand is script-only.
type Session struct {
	itemType ItemType
	command  string
	params   Params
	args     Args
	executor Executor
	incident IncidentSource
	files    FileResolver
}

// SessionOptions configures a Session.
type SessionOptions struct {
	ItemType ItemType
	Command  string
	Params   Params
	Args     Args
	Executor Executor
	Incident IncidentSource
	Files    FileResolver
}

// NewSession creates a Session.
func NewSession(opts SessionOptions) *Session {
	if opts.Args == nil {
		opts.Args = Args{}
	}
	return &Session{
		itemType: opts.ItemType,
		command:  opts.Command,
		params:   opts.Params,
		args:     opts.Args,
		executor: opts.Executor,
		incident: opts.Incident,
		files:    opts.Files,
	}
}

func (s *Session) restrict(api string, allowed ItemType) error {
	if s.itemType != allowed {
		return errors.Forbidden(fmt.Sprintf("%s is forbidden for item type %s", api, s.itemType))
	}
	return nil
}

// ItemType returns the item type of the session.
func (s *Session) ItemType() ItemType {
	return s.itemType
}

// Params returns the instance params. Integrations only.
func (s *Session) Params() (Params, error) {
	if err := s.restrict("params", ItemIntegration); err != nil {
		return nil, err
	}
	return s.params, nil
}

// Command returns the command being run. Integrations only.
func (s *Session) Command() (string, error) {
	if err := s.restrict("command", ItemIntegration); err != nil {
		return "", err
	}
	return s.command, nil
}

// Args returns the command arguments.
func (s *Session) Args() Args {
	return s.args
}

// ExecuteCommand runs a command through the host. Scripts only.
func (s *Session) ExecuteCommand(ctx context.Context, command string, args Args) ([]Entry, error) {
	if err := s.restrict("executeCommand", ItemScript); err != nil {
		return nil, err
	}
	if s.executor == nil {
		return nil, errors.Internal("no executor configured")
	}
	return s.executor.ExecuteCommand(ctx, command, args)
}

// Incident returns the current incident.
func (s *Session) Incident() (*Incident, error) {
	if s.incident == nil {
		return nil, errors.NotFound("incident")
	}
	return s.incident.Incident()
}

// Files returns the entry-id to file resolver.
func (s *Session) Files() FileResolver {
	return s.files
}
