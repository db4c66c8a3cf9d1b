// Package connector provides the command framework vendor integrations are
// built on: command declarations, argument validation and dispatch.
package connector

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/siem-soar-platform/integrations/pkg/commandresults"
	"github.com/siem-soar-platform/integrations/pkg/errors"
	"github.com/siem-soar-platform/integrations/pkg/host"
)

// TestModuleCommand is the connectivity check every integration exposes.
const TestModuleCommand = "test-module"

// Integration is a configured vendor integration instance.
type Integration interface {
	// Name returns the integration id, e.g. "redmine".
	Name() string

	// Commands returns the declared commands.
	Commands() []CommandDefinition

	// Execute runs a command with raw arguments.
	Execute(ctx context.Context, command string, args host.Args) (*commandresults.CommandResults, error)

	// TestModule checks connectivity and returns "ok" on success.
	TestModule(ctx context.Context) (string, error)

	// Close releases clients held by the instance.
	Close() error
}

// CommandDefinition describes an available command.
type CommandDefinition struct {
	Name          string        `json:"name"`
	Description   string        `json:"description,omitempty"`
	Arguments     []ArgumentDef `json:"arguments,omitempty"`
	OutputsPrefix string        `json:"outputs_prefix,omitempty"`
}

// ArgumentDef describes a command argument.
type ArgumentDef struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Required    bool        `json:"required,omitempty"`
	Default     interface{} `json:"default,omitempty"`
	Options     []string    `json:"options,omitempty"`
	IsArray     bool        `json:"is_array,omitempty"`
}

// Handler executes one command.
type Handler func(ctx context.Context, args host.Args) (*commandresults.CommandResults, error)

// BaseIntegration provides command registration and dispatch. Vendor
// integrations embed it and register their handlers at construction.
type BaseIntegration struct {
	name     string
	handlers map[string]Handler
	defs     []CommandDefinition
}

// NewBaseIntegration creates a base integration named name.
func NewBaseIntegration(name string) *BaseIntegration {
	return &BaseIntegration{
		name:     name,
		handlers: make(map[string]Handler),
	}
}

// Name returns the integration id.
func (b *BaseIntegration) Name() string {
	return b.name
}

// RegisterCommand registers a command handler.
func (b *BaseIntegration) RegisterCommand(def CommandDefinition, handler Handler) {
	if _, exists := b.handlers[def.Name]; !exists {
		b.defs = append(b.defs, def)
	}
	b.handlers[def.Name] = handler
}

// Commands returns the registered command definitions sorted by name.
func (b *BaseIntegration) Commands() []CommandDefinition {
	defs := make([]CommandDefinition, len(b.defs))
	copy(defs, b.defs)
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// HasCommand reports whether command is registered.
func (b *BaseIntegration) HasCommand(command string) bool {
	_, ok := b.handlers[command]
	return ok
}

// Execute validates args against the command definition and dispatches.
func (b *BaseIntegration) Execute(ctx context.Context, command string, args host.Args) (*commandresults.CommandResults, error) {
	handler, exists := b.handlers[command]
	if !exists {
		return nil, errors.NotSupported(fmt.Sprintf("command not implemented: %s", command))
	}

	prepared, err := b.prepareArgs(command, args)
	if err != nil {
		return nil, err
	}

	return handler(ctx, prepared)
}

// TestModule runs the registered test-module handler.
func (b *BaseIntegration) TestModule(ctx context.Context) (string, error) {
	res, err := b.Execute(ctx, TestModuleCommand, host.Args{})
	if err != nil {
		return "", err
	}
	if res == nil {
		return "ok", nil
	}
	return res.ReadableOutput, nil
}

// Close is a no-op for integrations without long-lived clients.
func (b *BaseIntegration) Close() error {
	return nil
}

func (b *BaseIntegration) definition(command string) *CommandDefinition {
	for i := range b.defs {
		if b.defs[i].Name == command {
			return &b.defs[i]
		}
	}
	return nil
}

// prepareArgs applies defaults, then checks required arguments and
// predefined options. It never mutates the caller's map.
func (b *BaseIntegration) prepareArgs(command string, args host.Args) (host.Args, error) {
	prepared := args.Clone()
	def := b.definition(command)
	if def == nil {
		return prepared, nil
	}

	var required []string
	for _, arg := range def.Arguments {
		if !prepared.Has(arg.Name) && arg.Default != nil {
			prepared[arg.Name] = arg.Default
		}
		if arg.Required {
			required = append(required, arg.Name)
		}
	}
	if err := prepared.Required(required...); err != nil {
		return nil, err
	}

	for _, arg := range def.Arguments {
		if len(arg.Options) == 0 || !prepared.Has(arg.Name) {
			continue
		}
		values := []string{prepared.String(arg.Name, "")}
		if arg.IsArray {
			values = prepared.List(arg.Name)
		}
		for _, v := range values {
			if !contains(arg.Options, v) {
				return nil, errors.BadInput("Invalid value %q for argument %s. Possible values: %s",
					v, arg.Name, strings.Join(arg.Options, ", "))
			}
		}
	}

	return prepared, nil
}

func contains(options []string, v string) bool {
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}
