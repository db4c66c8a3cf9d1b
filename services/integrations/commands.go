package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/siem-soar-platform/integrations/pkg/commandresults"
	"github.com/siem-soar-platform/integrations/pkg/errors"
	"github.com/siem-soar-platform/integrations/pkg/host"
	"github.com/siem-soar-platform/integrations/services/integrations/internal/server"
)

var (
	runInstance string
	runCommand  string
	runScript   string
	runIncident string
	runArgs     []string

	servePort int
)

// runCmd executes one command or script and prints the result entry.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one integration command or script",
	Long: `Run a command on a configured instance, or a script, and print the
resulting entry as JSON on stdout.

Examples:
  integrations run --instance redmine-prod --command redmine-issue-get --arg issue_id=12
  integrations run --script SplunkShowDrilldown --incident incident.json
  integrations run --script AWSAccountHierarchy --arg account_id=111222333444`,
	RunE: runRun,
}

// commandsCmd lists instances, their commands and the scripts.
var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "List configured instances and their commands",
	RunE:  runCommands,
}

// serveCmd serves the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve commands over HTTP",
	RunE:  runServe,
}

func init() {
	runCmd.Flags().StringVar(&runInstance, "instance", "", "instance name")
	runCmd.Flags().StringVar(&runCommand, "command", "", "command name")
	runCmd.Flags().StringVar(&runScript, "script", "", "script name")
	runCmd.Flags().StringVar(&runIncident, "incident", "", "JSON file holding the current incident (scripts)")
	runCmd.Flags().StringArrayVar(&runArgs, "arg", nil, "command argument as key=value (repeatable)")

	serveCmd.Flags().IntVar(&servePort, "port", 0, "HTTP port (overrides HTTP_PORT)")
}

func runRun(cmd *cobra.Command, _ []string) error {
	if runScript == "" && (runInstance == "" || runCommand == "") {
		return fmt.Errorf("either --script or both --instance and --command are required")
	}

	args, err := host.ParseArgPairs(runArgs)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var (
		res  *commandresults.CommandResults
		name string
	)
	if runScript != "" {
		name = runScript
		var incident *host.Incident
		if incident, err = loadIncident(runIncident); err != nil {
			return err
		}
		res, err = a.runner.RunScript(ctx, runScript, args, incident)
	} else {
		name = runCommand
		res, err = a.runner.Run(ctx, runInstance, runCommand, args)
	}
	if err != nil {
		return fmt.Errorf("%s", errors.CommandFailure(name, err))
	}

	return printJSON(server.ToResponse(res))
}

func loadIncident(path string) (*host.Incident, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read incident: %w", err)
	}
	var incident host.Incident
	if err := json.Unmarshal(data, &incident); err != nil {
		return nil, fmt.Errorf("parse incident: %w", err)
	}
	return &incident, nil
}

func runCommands(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	return printJSON(map[string]interface{}{
		"integrations": a.runner.Registry().List(),
		"scripts":      a.runner.Registry().ListScripts(),
		"instances":    a.runner.Describe(),
	})
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg
	if servePort != 0 {
		cfg.HTTPPort = servePort
	}

	a.log.Info("starting service",
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
		"version", cfg.Version,
		"port", cfg.HTTPPort,
	)

	router := server.NewRouter(server.RouterOptions{
		Service: cfg.ServiceName,
		Runner:  a.runner,
		Metrics: a.metrics,
		Logger:  a.log,
		Ready: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return a.ready(ctx)
		},
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case <-quit:
	}

	a.log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		a.log.Error("HTTP server forced to shutdown", "error", err)
	}

	a.log.Info("server exited gracefully")
	return nil
}
