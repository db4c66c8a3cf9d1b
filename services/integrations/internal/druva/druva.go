// Package druva implements the Druva inSync event collector.
package druva

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cast"

	"github.com/siem-soar-platform/integrations/pkg/commandresults"
	"github.com/siem-soar-platform/integrations/pkg/connector"
	"github.com/siem-soar-platform/integrations/pkg/errors"
	"github.com/siem-soar-platform/integrations/pkg/host"
	"github.com/siem-soar-platform/integrations/pkg/logger"
	"github.com/siem-soar-platform/integrations/pkg/sink"
)

const (
	// ID is the registry id of the integration.
	ID = "druva"

	vendor  = "Druva"
	product = "Druva"

	timeLayout = "2006-01-02T15:04:05Z"

	authErrorMessage = "Authorization Error: make sure Server URL, Client ID and Secret Key are correctly entered."
)

// Integration is a configured Druva instance.
type Integration struct {
	*connector.BaseIntegration

	client  *Client
	lastRun host.ContextStore
	sink    sink.EventSink
	logger  *logger.Logger
}

// New creates an instance from its params.
func New(params host.Params, deps connector.Deps) (connector.Integration, error) {
	baseURL := params.URL("url")
	if baseURL == "" {
		return nil, errors.Validation("url is required")
	}
	creds := params.Credentials("credentials")

	i := &Integration{
		BaseIntegration: connector.NewBaseIntegration(ID),
		client:          NewClient(baseURL, creds.Identifier, creds.Password, !params.Bool("insecure"), params.Bool("proxy"), params.RateLimit(), deps.Context),
		lastRun:         deps.LastRun,
		sink:            deps.Sink,
		logger:          deps.Logger.With("integration", ID),
	}
	i.registerCommands()
	return i, nil
}

func (i *Integration) registerCommands() {
	i.RegisterCommand(connector.CommandDefinition{
		Name: connector.TestModuleCommand,
	}, i.testModule)

	i.RegisterCommand(connector.CommandDefinition{
		Name:        "druva-get-events",
		Description: "Get one batch of events, optionally pushing them to the SIEM",
		Arguments: []connector.ArgumentDef{
			{Name: "tracker", Description: "Position after the last event received"},
			{Name: "should_push_events", Required: true, Default: "false"},
		},
		OutputsPrefix: "Druva.tracker",
	}, i.getEventsCommand)

	i.RegisterCommand(connector.CommandDefinition{
		Name: "fetch-events",
	}, i.fetchEvents)
}

func (i *Integration) testModule(ctx context.Context, _ host.Args) (*commandresults.CommandResults, error) {
	if _, err := i.client.SearchEvents(ctx, ""); err != nil {
		if errors.Contains(err, "Forbidden") {
			return commandresults.Text(authErrorMessage), nil
		}
		return nil, err
	}
	return commandresults.Text("ok"), nil
}

func (i *Integration) getEventsCommand(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	push, err := args.Bool("should_push_events", false)
	if err != nil {
		return nil, err
	}

	page, err := i.client.SearchEvents(ctx, args.String("tracker", ""))
	if err != nil {
		return nil, err
	}

	res := &commandresults.CommandResults{
		ReadableOutput:  commandresults.TableToMarkdown(vendor+" Events:", page.Events, nil),
		Outputs:         page.Tracker,
		OutputsPrefix:   "Druva.tracker",
		OutputsKeyField: "tracker",
	}

	if push {
		AddTimeToEvents(page.Events, time.Now())
		if err := i.sink.Send(ctx, vendor, product, page.Events); err != nil {
			return nil, fmt.Errorf("failed to push events: %w", err)
		}
		res.EventsPushed = len(page.Events)
	}
	return res, nil
}

func (i *Integration) fetchEvents(ctx context.Context, _ host.Args) (*commandresults.CommandResults, error) {
	last, err := i.lastRun.Get(ctx)
	if err != nil {
		return nil, err
	}

	tracker := cast.ToString(last["tracker"])
	i.logger.Debug("fetching events", "tracker", tracker)

	page, err := i.client.SearchEvents(ctx, tracker)
	if err != nil {
		return nil, err
	}

	AddTimeToEvents(page.Events, time.Now())
	if err := i.sink.Send(ctx, vendor, product, page.Events); err != nil {
		return nil, fmt.Errorf("failed to push events: %w", err)
	}

	next := map[string]interface{}{"tracker": page.Tracker}
	if err := i.lastRun.Set(ctx, next); err != nil {
		return nil, err
	}

	i.logger.Info("pushed events", "count", len(page.Events), "tracker", page.Tracker)
	return &commandresults.CommandResults{EventsPushed: len(page.Events)}, nil
}

// AddTimeToEvents sets _time from each event's timestamp. Events without a
// parsable timestamp get a nil _time.
func AddTimeToEvents(events []map[string]interface{}, now time.Time) {
	for _, event := range events {
		event["_time"] = nil
		ts, ok := event["timestamp"]
		if !ok || ts == nil {
			continue
		}
		if t, err := host.ArgToDatetime(ts, now); err == nil {
			event["_time"] = t.UTC().Format(timeLayout)
		}
	}
}
