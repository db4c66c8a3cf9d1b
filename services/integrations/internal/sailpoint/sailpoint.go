// Package sailpoint implements the SailPoint IdentityNow audit event
// collector.
package sailpoint

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
	ID = "sailpoint-identitynow"

	vendor  = "sailpoint"
	product = "identitynow"

	dateLayout = "2006-01-02T15:04:05Z"

	// maxPageSize is the largest page the search API returns.
	maxPageSize = 10000

	defaultMaxEventsPerFetch = 50000

	authErrorMessage = "Authorization Error: make sure API Key is correctly set"
)

// Integration is a configured IdentityNow instance.
type Integration struct {
	*connector.BaseIntegration

	client      *Client
	maxPerFetch int
	lastRun     host.ContextStore
	sink        sink.EventSink
	logger      *logger.Logger
	now         func() time.Time
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
		maxPerFetch:     params.Int("max_events_per_fetch", defaultMaxEventsPerFetch),
		lastRun:         deps.LastRun,
		sink:            deps.Sink,
		logger:          deps.Logger.With("integration", ID),
		now:             time.Now,
	}
	if i.maxPerFetch <= 0 {
		i.maxPerFetch = defaultMaxEventsPerFetch
	}
	i.registerCommands()
	return i, nil
}

func (i *Integration) registerCommands() {
	i.RegisterCommand(connector.CommandDefinition{
		Name: connector.TestModuleCommand,
	}, i.testModule)

	i.RegisterCommand(connector.CommandDefinition{
		Name:        "identitynow-get-events",
		Description: "Get audit events, optionally pushing them to the SIEM",
		Arguments: []connector.ArgumentDef{
			{Name: "limit", Default: "50"},
			{Name: "from_date", Description: "Defaults to one hour ago"},
			{Name: "should_push_events", Default: "false"},
		},
	}, i.getEvents)

	i.RegisterCommand(connector.CommandDefinition{
		Name: "fetch-events",
	}, i.fetchEventsCommand)
}

func (i *Integration) defaultLookback() string {
	return i.now().Add(-time.Hour).UTC().Format(dateLayout)
}

func (i *Integration) testModule(ctx context.Context, _ host.Args) (*commandresults.CommandResults, error) {
	if _, _, err := i.FetchEvents(ctx, map[string]interface{}{}, 1); err != nil {
		if errors.Contains(err, "Forbidden") {
			return commandresults.Text(authErrorMessage), nil
		}
		return nil, err
	}
	return commandresults.Text("ok"), nil
}

func (i *Integration) getEvents(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	limit, err := args.Int("limit", 50)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	push, err := args.Bool("should_push_events", false)
	if err != nil {
		return nil, err
	}

	from := i.defaultLookback()
	if args.Has("from_date") {
		t, err := host.ArgToDatetime(args["from_date"], i.now())
		if err != nil {
			return nil, err
		}
		from = t.UTC().Format(dateLayout)
	}

	events, err := i.client.SearchEvents(ctx, "0", from, limit)
	if err != nil {
		return nil, err
	}

	res := commandresults.Text(commandresults.TableToMarkdown("Test Event", events, nil))
	if push {
		AddTimeAndStatus(events)
		if err := i.sink.Send(ctx, vendor, product, events); err != nil {
			return nil, fmt.Errorf("failed to push events: %w", err)
		}
		res.EventsPushed = len(events)
	}
	return res, nil
}

// FetchEvents pages through events after the last run cursor until max
// events were read or a short page is returned. The returned cursor is the
// id and creation date of the last event; it is unchanged when nothing new
// was found.
func (i *Integration) FetchEvents(ctx context.Context, last map[string]interface{}, max int) (map[string]interface{}, []map[string]interface{}, error) {
	prevID := cast.ToString(last["prev_id"])
	if prevID == "" {
		prevID = "0"
	}
	prevDate := cast.ToString(last["prev_date"])
	if prevDate == "" {
		prevDate = i.defaultLookback()
	}

	var all []map[string]interface{}
	cursorID, cursorDate := prevID, prevDate
	for len(all) < max {
		size := max - len(all)
		if size > maxPageSize {
			size = maxPageSize
		}

		page, err := i.client.SearchEvents(ctx, cursorID, prevDate, size)
		if err != nil {
			return nil, nil, err
		}
		if len(page) == 0 {
			break
		}

		all = append(all, page...)
		lastEvent := page[len(page)-1]
		cursorID = cast.ToString(lastEvent["id"])
		cursorDate = cast.ToString(lastEvent["created"])
		i.logger.Debug("fetched page", "count", len(page), "last_id", cursorID, "last_created", cursorDate)

		if len(page) < size {
			break
		}
	}

	next := map[string]interface{}{"prev_id": cursorID, "prev_date": cursorDate}
	return next, all, nil
}

func (i *Integration) fetchEventsCommand(ctx context.Context, _ host.Args) (*commandresults.CommandResults, error) {
	last, err := i.lastRun.Get(ctx)
	if err != nil {
		return nil, err
	}

	next, events, err := i.FetchEvents(ctx, last, i.maxPerFetch)
	if err != nil {
		return nil, err
	}

	AddTimeAndStatus(events)
	if err := i.sink.Send(ctx, vendor, product, events); err != nil {
		return nil, fmt.Errorf("failed to push events: %w", err)
	}
	if err := i.lastRun.Set(ctx, next); err != nil {
		return nil, err
	}

	i.logger.Info("pushed events", "count", len(events), "next_run", next)
	return &commandresults.CommandResults{EventsPushed: len(events)}, nil
}

// AddTimeAndStatus sets _ENTRY_STATUS and _time on each event. An event is
// "modified" when its modified date precedes its creation date, otherwise
// "new". _time is the later of the two dates when modified is later, else
// the creation date.
func AddTimeAndStatus(events []map[string]interface{}) {
	for _, event := range events {
		created, hasCreated := parseISO(event["created"])
		modified, hasModified := parseISO(event["modified"])

		status := "new"
		if hasCreated && hasModified && modified.Before(created) {
			status = "modified"
		}
		event["_ENTRY_STATUS"] = status

		switch {
		case hasCreated && hasModified && modified.After(created):
			event["_time"] = modified.UTC().Format(dateLayout)
		case hasCreated:
			event["_time"] = created.UTC().Format(dateLayout)
		default:
			event["_time"] = nil
		}
	}
}

func parseISO(v interface{}) (time.Time, bool) {
	s := cast.ToString(v)
	if s == "" {
		return time.Time{}, false
	}
	t, err := host.ArgToDatetime(s, time.Now())
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
