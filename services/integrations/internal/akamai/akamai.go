// Package akamai implements the Akamai WAF SIEM integration: security event
// retrieval, incident fetching and event collection.
package akamai

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/siem-soar-platform/integrations/pkg/commandresults"
	"github.com/siem-soar-platform/integrations/pkg/connector"
	"github.com/siem-soar-platform/integrations/pkg/errors"
	"github.com/siem-soar-platform/integrations/pkg/geoip"
	"github.com/siem-soar-platform/integrations/pkg/host"
	"github.com/siem-soar-platform/integrations/pkg/logger"
	"github.com/siem-soar-platform/integrations/pkg/sink"
)

const (
	// ID is the registry id of the integration.
	ID = "akamai-siem"

	integrationName = "Akamai SIEM"
	contextName     = "Akamai.SIEM"

	vendor  = "akamai"
	product = "waf"

	// testFromEpoch is Monday, 6 March 2017 16:07:22 UTC.
	testFromEpoch = "1488816442"
)

// Integration is a configured Akamai SIEM instance.
type Integration struct {
	*connector.BaseIntegration

	client  *Client
	params  host.Params
	lastRun host.ContextStore
	sink    sink.EventSink
	geo     geoip.Lookuper
	logger  *logger.Logger
	now     func() time.Time
}

// New creates an instance from its params.
func New(params host.Params, deps connector.Deps) (connector.Integration, error) {
	return newIntegration(params, deps)
}

func newIntegration(params host.Params, deps connector.Deps) (*Integration, error) {
	apiHost := params.URL("host")
	if apiHost == "" {
		return nil, errors.Validation("host is required")
	}

	client := NewClient(apiHost, Credentials{
		ClientToken:  params.CredentialOr("clienttoken_creds", "clientToken"),
		AccessToken:  params.CredentialOr("accesstoken_creds", "accessToken"),
		ClientSecret: params.CredentialOr("clientsecret_creds", "clientSecret"),
	}, !params.Bool("insecure"), params.Bool("proxy"), params.RateLimit())

	i := &Integration{
		BaseIntegration: connector.NewBaseIntegration(ID),
		client:          client,
		params:          params,
		lastRun:         deps.LastRun,
		sink:            deps.Sink,
		geo:             deps.GeoIP,
		logger:          deps.Logger.With("integration", ID),
		now:             time.Now,
	}
	i.registerCommands()
	return i, nil
}

func (i *Integration) registerCommands() {
	i.RegisterCommand(connector.CommandDefinition{
		Name:        connector.TestModuleCommand,
		Description: "Test connectivity and credentials",
	}, i.testModule)

	i.RegisterCommand(connector.CommandDefinition{
		Name:        "akamai-siem-get-events",
		Description: "Get security events from Akamai WAF",
		Arguments: []connector.ArgumentDef{
			{Name: "config_ids", Required: true, Description: "Semicolon separated security configuration ids"},
			{Name: "offset"},
			{Name: "limit"},
			{Name: "from_epoch"},
			{Name: "to_epoch"},
			{Name: "time_stamp", Description: "Relative range, e.g. 12 hours"},
		},
		OutputsPrefix: contextName,
	}, i.getEvents)

	i.RegisterCommand(connector.CommandDefinition{
		Name:        "fetch-incidents",
		Description: "Fetch new attack events as incidents",
	}, i.fetchIncidents)

	i.RegisterCommand(connector.CommandDefinition{
		Name:        "fetch-events",
		Description: "Collect new attack events and push them to the SIEM",
	}, i.fetchEvents)
}

// Execute wraps command failures with the integration name.
func (i *Integration) Execute(ctx context.Context, command string, args host.Args) (*commandresults.CommandResults, error) {
	res, err := i.BaseIntegration.Execute(ctx, command, args)
	if err != nil {
		return nil, fmt.Errorf("Error in %s Integration [%w]", integrationName, err)
	}
	return res, nil
}

// TestModule checks connectivity through Execute.
func (i *Integration) TestModule(ctx context.Context) (string, error) {
	res, err := i.Execute(ctx, connector.TestModuleCommand, host.Args{})
	if err != nil {
		return "", err
	}
	return res.ReadableOutput, nil
}

func (i *Integration) testModule(ctx context.Context, _ host.Args) (*commandresults.CommandResults, error) {
	configIDs := i.params.String("configIds")
	if configIDs == "" {
		configIDs = i.params.String("event_configIds")
	}
	if _, _, err := i.client.GetEvents(ctx, EventsQuery{ConfigIDs: configIDs, From: testFromEpoch, Limit: "1"}); err != nil {
		return nil, fmt.Errorf("Test module failed, %w", err)
	}
	return commandresults.Text("ok"), nil
}

func (i *Integration) getEvents(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	q := EventsQuery{
		ConfigIDs: args.String("config_ids", ""),
		Offset:    args.String("offset", ""),
		Limit:     args.String("limit", ""),
		From:      args.String("from_epoch", ""),
		To:        args.String("to_epoch", ""),
	}
	if ts := args.String("time_stamp", ""); ts != "" {
		now := i.now()
		from, err := host.ArgToDatetime(ts, now)
		if err != nil {
			return nil, err
		}
		q.From = strconv.FormatInt(from.Unix(), 10)
		q.To = strconv.FormatInt(now.Unix(), 10)
	}

	events, _, err := i.client.GetEvents(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return commandresults.Text(integrationName + " - Could not find any results for given query"), nil
	}

	eventsEC, ipEC, readable := EventsToEC(events, i.geo)
	return &commandresults.CommandResults{
		OutputsPrefix:   contextName,
		OutputsKeyField: "HttpMessage.RequestId",
		Outputs:         eventsEC,
		ExtraContext: map[string]interface{}{
			"IP(val.Address && val.Address == obj.Address)": ipEC,
		},
		ReadableOutput: commandresults.TableToMarkdown(integrationName+" - Attacks data", readable, &commandresults.TableOptions{
			RemoveNull: true,
		}),
		RawResponse: events,
	}, nil
}

func (i *Integration) fetchIncidents(ctx context.Context, _ host.Args) (*commandresults.CommandResults, error) {
	last, err := i.lastRun.Get(ctx)
	if err != nil {
		return nil, err
	}

	from := cast.ToString(last["lastRun"])
	if from == "" {
		start, err := host.ArgToDatetime(i.params.StringDefault("fetchTime", "12 hours"), i.now())
		if err != nil {
			return nil, err
		}
		from = strconv.FormatInt(start.Unix(), 10)
	}

	events, offset, err := i.client.GetEvents(ctx, EventsQuery{
		ConfigIDs: i.params.String("configIds"),
		From:      from,
		Limit:     i.params.StringDefault("fetchLimit", "50"),
	})
	if err != nil {
		return nil, err
	}

	incidents := make([]commandresults.Incident, 0, len(events))
	for _, event := range events {
		raw, err := json.Marshal(event)
		if err != nil {
			return nil, err
		}
		occurred, _ := DateFormatConverter("epoch", startOf(event))
		incidents = append(incidents, commandresults.Incident{
			Name:     fmt.Sprintf("%s: %v", integrationName, section(event, "attackData")["configId"]),
			Occurred: occurred,
			RawJSON:  string(raw),
		})
	}

	if err := i.lastRun.Set(ctx, map[string]interface{}{"lastRun": offset}); err != nil {
		return nil, err
	}

	i.logger.Info("fetched incidents", "count", len(incidents), "last_run", offset)
	return &commandresults.CommandResults{Incidents: incidents}, nil
}

func (i *Integration) fetchEvents(ctx context.Context, _ host.Args) (*commandresults.CommandResults, error) {
	last, err := i.lastRun.Get(ctx)
	if err != nil {
		return nil, err
	}
	i.logger.Debug("starting a new fetch interval", "last_run", last)

	from := cast.ToString(last["events_last_run"])
	if from == "" {
		from = strconv.FormatInt(i.now().Add(-time.Minute).Unix(), 10)
	}

	configIDs := i.params.String("event_configIds")
	if configIDs == "" {
		configIDs = i.params.String("configIds")
	}

	events, offset, err := i.client.GetEvents(ctx, EventsQuery{
		ConfigIDs: configIDs,
		From:      from,
		Limit:     i.params.StringDefault("max_fetch", "400000"),
	})
	if err != nil {
		return nil, err
	}

	events, cached, removed := RemoveDuplicatedEvents(events, cast.ToStringSlice(last["cached_policy_ids"]))
	if len(removed) > 0 {
		i.logger.Info(fmt.Sprintf("The following events were deduplicated: %s.", strings.Join(removed, ", ")))
	}

	for _, event := range events {
		prepareForPush(event)
	}

	if err := i.sink.Send(ctx, vendor, product, events); err != nil {
		return nil, fmt.Errorf("failed to push events: %w", err)
	}

	next := map[string]interface{}{
		"events_last_run":   offset,
		"cached_policy_ids": cached,
	}
	if err := i.lastRun.Set(ctx, next); err != nil {
		return nil, err
	}

	i.logger.Info("pushed events", "count", len(events), "removed", len(removed), "events_last_run", offset)
	return &commandresults.CommandResults{EventsPushed: len(events)}, nil
}
