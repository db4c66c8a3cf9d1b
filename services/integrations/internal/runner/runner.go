// Package runner executes integration commands and scripts against the
// configured instances. It plays the host's part: it builds instances with
// their context stores and sink, runs commands for the CLI and the HTTP
// API, and serves executeCommand for scripts.
package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/siem-soar-platform/integrations/pkg/commandresults"
	"github.com/siem-soar-platform/integrations/pkg/config"
	"github.com/siem-soar-platform/integrations/pkg/connector"
	"github.com/siem-soar-platform/integrations/pkg/errors"
	"github.com/siem-soar-platform/integrations/pkg/geoip"
	"github.com/siem-soar-platform/integrations/pkg/host"
	"github.com/siem-soar-platform/integrations/pkg/logger"
	"github.com/siem-soar-platform/integrations/pkg/repository"
	"github.com/siem-soar-platform/integrations/pkg/sink"
)

// UsingArg pins executeCommand to one instance.
const UsingArg = "using"

// scriptLabel is the integration label recorded for script runs.
const scriptLabel = "script"

// Options configures a Runner.
type Options struct {
	Registry  *connector.Registry
	Instances []config.Instance
	Store     repository.Store
	Sink      sink.EventSink
	GeoIP     geoip.Lookuper
	Files     host.FileResolver
	Logger    *logger.Logger
	Metrics   *Metrics
}

// InstanceInfo describes a configured instance and its commands.
type InstanceInfo struct {
	Name        string                        `json:"name"`
	Integration string                        `json:"integration"`
	Commands    []connector.CommandDefinition `json:"commands,omitempty"`
	Error       string                        `json:"error,omitempty"`
}

// Runner owns the live integration instances.
type Runner struct {
	registry  *connector.Registry
	instances []config.Instance
	store     repository.Store
	sink      sink.EventSink
	geo       geoip.Lookuper
	files     host.FileResolver
	logger    *logger.Logger
	metrics   *Metrics

	mu    sync.Mutex
	live  map[string]connector.Integration
	locks map[string]*sync.Mutex
}

// New creates a Runner.
func New(opts Options) *Runner {
	if opts.Store == nil {
		opts.Store = repository.NewMemoryStore()
	}
	if opts.Sink == nil {
		opts.Sink = sink.NewNopSink()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Runner{
		registry:  opts.Registry,
		instances: opts.Instances,
		store:     opts.Store,
		sink:      opts.Sink,
		geo:       opts.GeoIP,
		files:     opts.Files,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		live:      make(map[string]connector.Integration),
		locks:     make(map[string]*sync.Mutex),
	}
}

// Instance returns the live instance with the given name, creating it on
// first use.
func (r *Runner) Instance(name string) (connector.Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if inst, ok := r.live[name]; ok {
		return inst, nil
	}

	cfg, err := config.FindInstance(r.instances, name)
	if err != nil {
		return nil, errors.NotFound("instance " + name)
	}

	inst, err := r.registry.Create(cfg.Integration, host.Params(cfg.Params), connector.Deps{
		Logger:  r.logger.With("instance", name),
		Context: host.NewIntegrationContext(r.store, name),
		LastRun: host.NewLastRun(r.store, name),
		Sink:    r.sink,
		Files:   r.files,
		GeoIP:   r.geo,
	})
	if err != nil {
		return nil, err
	}
	r.live[name] = inst
	return inst, nil
}

// lock returns the mutex serializing invocations of one instance.
func (r *Runner) lock(name string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.locks[name]
	if !ok {
		l = &sync.Mutex{}
		r.locks[name] = l
	}
	return l
}

// Run executes command on the named instance. Invocations of the same
// instance run one at a time, so cursors and cached tokens are never read
// and written by two commands at once.
func (r *Runner) Run(ctx context.Context, instance, command string, args host.Args) (*commandresults.CommandResults, error) {
	inst, err := r.Instance(instance)
	if err != nil {
		return nil, err
	}
	l := r.lock(instance)
	l.Lock()
	defer l.Unlock()
	if args == nil {
		args = host.Args{}
	}

	ctx = logger.NewInvocation(ctx, inst.Name(), command)
	log := r.logger.WithContext(ctx).With("instance", instance)
	log.Debug("executing command", "args", logger.Redact(args))

	start := time.Now()
	res, err := inst.Execute(ctx, command, args)
	elapsed := time.Since(start)

	pushed := 0
	if res != nil {
		pushed = res.EventsPushed
	}
	r.metrics.Observe(inst.Name(), command, elapsed, pushed, err)

	if err != nil {
		log.Error("command failed", "error", err, "duration_ms", elapsed.Milliseconds())
		return nil, err
	}
	log.Info("command finished", "duration_ms", elapsed.Milliseconds(), "events_pushed", pushed)
	return res, nil
}

// RunScript runs a registered script against incident. The script reaches
// integrations through the runner's ExecuteCommand.
func (r *Runner) RunScript(ctx context.Context, name string, args host.Args, incident *host.Incident) (*commandresults.CommandResults, error) {
	script, ok := r.registry.Script(name)
	if !ok {
		return nil, errors.NotFound("script " + name)
	}

	ctx = logger.NewInvocation(ctx, scriptLabel, name)
	log := r.logger.WithContext(ctx)

	session := host.NewSession(host.SessionOptions{
		ItemType: host.ItemScript,
		Command:  name,
		Args:     args,
		Executor: r,
		Incident: host.StaticIncident{Current: incident},
		Files:    r.files,
	})

	start := time.Now()
	res, err := script.Run(ctx, session)
	elapsed := time.Since(start)
	r.metrics.Observe(scriptLabel, name, elapsed, 0, err)

	if err != nil {
		log.Error("script failed", "error", err, "duration_ms", elapsed.Milliseconds())
		return nil, err
	}
	log.Info("script finished", "duration_ms", elapsed.Milliseconds())
	return res, nil
}

// ExecuteCommand runs command for a script. With a "using" argument it
// runs on that instance only; otherwise on every instance declaring the
// command. Each instance yields one entry tagged with its name. Command
// failures become error entries rather than errors.
func (r *Runner) ExecuteCommand(ctx context.Context, command string, args host.Args) ([]host.Entry, error) {
	args = args.Clone()

	var targets []string
	if using := args.String(UsingArg, ""); using != "" {
		delete(args, UsingArg)
		targets = []string{using}
	} else {
		targets = r.instancesWith(command)
	}

	if len(targets) == 0 {
		return []host.Entry{commandresults.ErrorEntry(fmt.Sprintf("Unsupported Command : %s", command))}, nil
	}

	entries := make([]host.Entry, 0, len(targets))
	for _, name := range targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var entry host.Entry
		res, err := r.Run(ctx, name, command, args)
		switch {
		case err != nil:
			entry = commandresults.ErrorEntry(errors.CommandFailure(command, err))
		case res == nil:
			entry = host.Entry{Type: host.EntryNote}
		default:
			entry = res.ToEntry()
		}
		entry.Metadata.Instance = name
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r *Runner) instancesWith(command string) []string {
	var names []string
	for _, cfg := range r.instances {
		inst, err := r.Instance(cfg.Name)
		if err != nil {
			r.logger.Warn("skipping instance", "instance", cfg.Name, "error", err)
			continue
		}
		if declares(inst, command) {
			names = append(names, cfg.Name)
		}
	}
	return names
}

func declares(inst connector.Integration, command string) bool {
	for _, def := range inst.Commands() {
		if def.Name == command {
			return true
		}
	}
	return false
}

// Describe lists the configured instances with their commands. Instances
// that fail to build carry the error instead.
func (r *Runner) Describe() []InstanceInfo {
	out := make([]InstanceInfo, 0, len(r.instances))
	for _, cfg := range r.instances {
		info := InstanceInfo{Name: cfg.Name, Integration: cfg.Integration}
		inst, err := r.Instance(cfg.Name)
		if err != nil {
			info.Error = err.Error()
		} else {
			info.Commands = inst.Commands()
		}
		out = append(out, info)
	}
	return out
}

// Registry returns the integration registry.
func (r *Runner) Registry() *connector.Registry {
	return r.registry
}

// Close closes all live instances.
func (r *Runner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, inst := range r.live {
		if err := inst.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close instance %s: %w", name, err)
		}
	}
	r.live = make(map[string]connector.Integration)
	return firstErr
}
