package main

import (
	"context"
	"fmt"

	"github.com/siem-soar-platform/integrations/pkg/config"
	"github.com/siem-soar-platform/integrations/pkg/geoip"
	"github.com/siem-soar-platform/integrations/pkg/host"
	"github.com/siem-soar-platform/integrations/pkg/logger"
	"github.com/siem-soar-platform/integrations/pkg/repository"
	"github.com/siem-soar-platform/integrations/pkg/sink"
	"github.com/siem-soar-platform/integrations/services/integrations/internal/catalog"
	"github.com/siem-soar-platform/integrations/services/integrations/internal/runner"
)

// app holds the process-wide dependencies shared by all subcommands.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	store   repository.Store
	sink    sink.EventSink
	geo     *geoip.Reader
	metrics *runner.Metrics
	runner  *runner.Runner
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if instancesFile != "" {
		cfg.InstancesFile = instancesFile
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	log := logger.New(&logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	log.SetDefault()

	instances, err := config.LoadInstances(cfg.InstancesFile)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, metrics: runner.NewMetrics()}

	a.store, err = openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	a.sink, err = sink.FromConfig(ctx, cfg.Sink, log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create sink: %w", err)
	}

	var geo geoip.Lookuper
	if cfg.GeoIPCityDB != "" {
		a.geo, err = geoip.Open(cfg.GeoIPCityDB)
		if err != nil {
			a.Close()
			return nil, err
		}
		geo = a.geo
	}

	reg, err := catalog.Registry()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.runner = runner.New(runner.Options{
		Registry:  reg,
		Instances: instances,
		Store:     a.store,
		Sink:      a.sink,
		GeoIP:     geo,
		Files:     host.DirResolver{Dir: cfg.FilesDir},
		Logger:    log,
		Metrics:   a.metrics,
	})

	log.Debug("runner initialized",
		"instances", len(instances),
		"store", cfg.Store.Backend,
		"sink", a.sink.Name(),
	)
	return a, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (repository.Store, error) {
	switch cfg.Backend {
	case "memory":
		return repository.NewMemoryStore(), nil
	case "file":
		store, err := repository.NewFileStore(cfg.FileDir)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "redis":
		rc := repository.DefaultRedisConfig()
		rc.Addresses = []string{cfg.RedisAddr}
		rc.Password = cfg.RedisPass
		rc.DB = cfg.RedisDB
		store, err := repository.NewRedisStore(rc)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "postgres":
		pc := repository.DefaultPostgresConfig()
		pc.DSN = cfg.PostgresDSN
		store, err := repository.NewPostgresStore(ctx, pc)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
}

// ready probes the context store.
func (a *app) ready(ctx context.Context) error {
	_, err := a.store.Load(ctx, repository.ContextNamespace("_ready"))
	return err
}

// Close releases everything newApp opened.
func (a *app) Close() {
	if a.runner != nil {
		if err := a.runner.Close(); err != nil {
			a.log.Warn("failed to close instances", "error", err)
		}
	}
	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			a.log.Warn("failed to close sink", "error", err)
		}
	}
	if a.geo != nil {
		a.geo.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("failed to close store", "error", err)
		}
	}
}
