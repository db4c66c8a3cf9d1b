// Package githubfeed implements a threat-intel feed that reads indicators
// committed to a GitHub repository: plain-text IOC lists, YARA rules or
// STIX bundles.
package githubfeed

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/siem-soar-platform/integrations/pkg/commandresults"
	"github.com/siem-soar-platform/integrations/pkg/connector"
	"github.com/siem-soar-platform/integrations/pkg/errors"
	"github.com/siem-soar-platform/integrations/pkg/host"
	"github.com/siem-soar-platform/integrations/pkg/httpclient"
	"github.com/siem-soar-platform/integrations/pkg/logger"
)

const (
	// ID is the registry id of the integration.
	ID = "github-feed"

	DefaultBaseURL   = "https://api.github.com"
	DefaultBranch    = "main"
	DefaultFetchFrom = "90 days ago"

	// Feed types.
	FeedIOCs = "IOCs"
	FeedYARA = "YARA"
	FeedSTIX = "STIX"

	lastCommitKey = "last_commit_fetch"
	readableTitle = "Indicators from GitHubFeed:"
	negativeLimit = "get_indicators_command return with error. \n\nError massage: Limit must be a positive number."
)

var defaultExtensions = map[string][]string{
	FeedIOCs: {"txt"},
	FeedYARA: {"yar", "yara"},
	FeedSTIX: {"json"},
}

// Integration is a configured GitHub feed instance.
type Integration struct {
	*connector.BaseIntegration

	client     *Client
	lastRun    host.ContextStore
	logger     *logger.Logger
	now        func() time.Time
	owner      string
	repo       string
	branch     string
	feedType   string
	extensions []string
	fetchSince string
	tags       []string
	tlp        string
}

// New creates an instance from its params.
func New(params host.Params, deps connector.Deps) (connector.Integration, error) {
	owner, repo := params.String("owner"), params.String("repo")
	if owner == "" || repo == "" {
		return nil, errors.Validation("owner and repo are required")
	}

	feedType := params.StringDefault("feedType", FeedIOCs)
	if _, ok := defaultExtensions[feedType]; !ok {
		return nil, errors.Validation(fmt.Sprintf("unknown feed type %q", feedType))
	}
	extensions := host.ArgToList(params["extensions_to_fetch"])
	if len(extensions) == 0 {
		extensions = defaultExtensions[feedType]
	}

	transport := httpclient.New(httpclient.Config{
		Verify: !params.Bool("insecure"),
		Proxy:  params.Bool("proxy"),
		Limit:  params.RateLimit(),
	})
	client, err := NewClient(ClientConfig{
		BaseURL:    params.StringDefault("url", DefaultBaseURL),
		Token:      params.CredentialOr("api_token_creds", "api_token"),
		Owner:      owner,
		Repo:       repo,
		HTTPClient: transport.HTTPClient(),
	})
	if err != nil {
		return nil, err
	}

	i := &Integration{
		BaseIntegration: connector.NewBaseIntegration(ID),
		client:          client,
		lastRun:         deps.LastRun,
		logger:          deps.Logger.With("integration", ID, "repo", owner+"/"+repo),
		now:             time.Now,
		owner:           owner,
		repo:            repo,
		branch:          params.StringDefault("branch_head", DefaultBranch),
		feedType:        feedType,
		extensions:      extensions,
		fetchSince:      params.StringDefault("fetch_since", DefaultFetchFrom),
		tags:            host.ArgToList(params["feedTags"]),
		tlp:             params.String("tlp_color"),
	}
	i.registerCommands()
	return i, nil
}

func (i *Integration) registerCommands() {
	i.RegisterCommand(connector.CommandDefinition{Name: connector.TestModuleCommand}, i.testModule)

	i.RegisterCommand(connector.CommandDefinition{
		Name:        "github-get-indicators",
		Description: "Gets indicators from files committed to the repository in a time window",
		Arguments: []connector.ArgumentDef{
			{Name: "limit", Default: "50"},
			{Name: "since", Default: "7 days ago"},
			{Name: "until", Default: "now"},
		},
	}, i.getIndicators)

	i.RegisterCommand(connector.CommandDefinition{
		Name:        "fetch-indicators",
		Description: "Fetches indicators from files committed since the last fetched commit",
	}, i.fetchIndicators)
}

func (i *Integration) testModule(ctx context.Context, _ host.Args) (*commandresults.CommandResults, error) {
	if err := i.client.CheckRepository(ctx); err != nil {
		return nil, err
	}
	return commandresults.Text("ok"), nil
}

func (i *Integration) getIndicators(ctx context.Context, args host.Args) (*commandresults.CommandResults, error) {
	limit, err := args.Int("limit", 50)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, errors.BadInput(negativeLimit)
	}

	now := i.now()
	since, err := host.ArgToDatetime(args.String("since", "7 days ago"), now)
	if err != nil {
		return nil, err
	}
	until, err := host.ArgToDatetime(args.String("until", "now"), now)
	if err != nil {
		return nil, err
	}

	indicators, _, err := i.Indicators(ctx, since, until, "")
	if err != nil {
		return nil, err
	}
	if len(indicators) > limit {
		indicators = indicators[:limit]
	}

	rows := make([]map[string]interface{}, 0, len(indicators))
	for _, ind := range indicators {
		rows = append(rows, map[string]interface{}{"Type": ind.Type, "Value": ind.Value})
	}

	return &commandresults.CommandResults{
		ReadableOutput: commandresults.TableToMarkdown(readableTitle, rows,
			&commandresults.TableOptions{Headers: []string{"Type", "Value"}, RemoveNull: true}),
		RawResponse: indicators,
	}, nil
}

func (i *Integration) fetchIndicators(ctx context.Context, _ host.Args) (*commandresults.CommandResults, error) {
	last, err := i.lastRun.Get(ctx)
	if err != nil {
		return nil, err
	}

	now := i.now()
	since, err := host.ArgToDatetime(i.fetchSince, now)
	if err != nil {
		return nil, err
	}

	lastCommit := cast.ToString(last[lastCommitKey])
	indicators, head, err := i.Indicators(ctx, since, now, lastCommit)
	if err != nil {
		return nil, err
	}

	if head != "" && head != lastCommit {
		if err := host.Update(ctx, i.lastRun, func(doc map[string]interface{}) {
			doc[lastCommitKey] = head
		}); err != nil {
			return nil, err
		}
	}

	i.logger.Info("fetched indicators", "count", len(indicators), "head", head)
	return &commandresults.CommandResults{Indicators: indicators}, nil
}

// Indicators collects indicators from the files added or modified between
// the oldest commit in [since, until] (or lastCommit when set) and the
// newest. It returns the indicators and the newest commit SHA.
func (i *Integration) Indicators(ctx context.Context, since, until time.Time, lastCommit string) ([]commandresults.Indicator, string, error) {
	commits, err := i.client.CommitsBetween(ctx, i.branch, since, until)
	if err != nil {
		return nil, "", err
	}
	if len(commits) == 0 {
		return nil, lastCommit, nil
	}

	head := commits[0]
	base := commits[len(commits)-1]
	firstFetch := lastCommit == ""
	if !firstFetch {
		if lastCommit == head {
			return nil, head, nil
		}
		base = lastCommit
	}

	files, err := i.client.FilesBetween(ctx, base, head)
	if err != nil {
		return nil, "", err
	}
	if firstFetch && base != head {
		// compare excludes the base commit's own changes
		baseFiles, err := i.client.FilesBetween(ctx, base, base)
		if err != nil {
			return nil, "", err
		}
		files = append(baseFiles, files...)
	}

	contents := make(map[string]string)
	var order []string
	for _, name := range FilterFiles(files, i.extensions) {
		content, err := i.client.FileContent(ctx, name, head)
		if err != nil {
			i.logger.Warn("skipping file", "file", name, "error", err)
			continue
		}
		contents[name] = content
		order = append(order, name)
	}

	var out []commandresults.Indicator
	for _, name := range order {
		out = append(out, i.parse(name, contents[name])...)
	}
	return out, head, nil
}

func (i *Integration) parse(name, content string) []commandresults.Indicator {
	reference := fmt.Sprintf("https://github.com/%s/%s/blob/%s/%s", i.owner, i.repo, i.branch, name)

	switch i.feedType {
	case FeedYARA:
		var out []commandresults.Indicator
		for _, raw := range SplitYARARules(content) {
			rule, err := ParseYARARule(raw)
			if err != nil {
				i.logger.Warn("skipping yara rule", "file", name, "error", err)
				continue
			}
			out = append(out, i.yaraIndicator(rule, reference))
		}
		return out

	case FeedSTIX:
		indicators, err := ParseSTIX([]byte(content))
		if err != nil {
			i.logger.Warn("skipping stix file", "file", name, "error", err)
			return nil
		}
		for idx := range indicators {
			i.enrich(indicators[idx].Fields, reference)
		}
		return indicators

	default:
		var out []commandresults.Indicator
		for _, ioc := range ExtractIOCs(content) {
			fields := map[string]interface{}{"firstseenbysource": i.now().UTC().Format(time.RFC3339)}
			i.enrich(fields, reference)
			out = append(out, commandresults.Indicator{
				Value:   ioc.Value,
				Type:    ioc.Type,
				Fields:  fields,
				RawJSON: map[string]interface{}{"value": ioc.Value, "type": ioc.Type},
			})
		}
		return out
	}
}

func (i *Integration) yaraIndicator(rule *YARARule, reference string) commandresults.Indicator {
	ruleStrings := make([]map[string]interface{}, 0, len(rule.Strings))
	for _, s := range rule.Strings {
		ruleStrings = append(ruleStrings, map[string]interface{}{
			"index":     s.Index,
			"string":    s.Value,
			"type":      s.Type,
			"modifiers": s.Modifiers,
		})
	}

	fields := map[string]interface{}{
		"value":           rule.Name,
		"description":     rule.MetaValue("description"),
		"author":          rule.MetaValue("author"),
		"rulereference":   rule.MetaValue("reference"),
		"sourcetimestamp": rule.MetaValue("date"),
		"ruleid":          rule.MetaValue("id"),
		"rulestrings":     ruleStrings,
		"condition":       rule.Condition,
		"rawrule":         fmt.Sprintf("```\n %s \n```", rule.Raw),
	}
	i.enrich(fields, reference)

	meta := make(map[string]interface{}, len(rule.Meta))
	for _, m := range rule.Meta {
		meta[m.Key] = m.Value
	}
	return commandresults.Indicator{
		Value:   rule.Name,
		Type:    TypeYARA,
		Fields:  fields,
		RawJSON: map[string]interface{}{"value": rule.Name, "type": TypeYARA, "meta": meta, "tags": rule.Tags},
	}
}

func (i *Integration) enrich(fields map[string]interface{}, reference string) {
	fields["references"] = reference
	if len(i.tags) > 0 {
		fields["tags"] = i.tags
	}
	if i.tlp != "" {
		fields["trafficlightprotocol"] = i.tlp
	}
}

// FilterFiles returns the names of added or modified files whose extension
// is in extensions, each once.
func FilterFiles(files []CommitFile, extensions []string) []string {
	allowed := make(map[string]bool, len(extensions))
	for _, e := range extensions {
		allowed[strings.ToLower(strings.TrimPrefix(e, "."))] = true
	}

	seen := make(map[string]bool)
	var out []string
	for _, f := range files {
		if f.Status != "added" && f.Status != "modified" {
			continue
		}
		ext := strings.ToLower(strings.TrimPrefix(path.Ext(f.Filename), "."))
		if !allowed[ext] || seen[f.Filename] {
			continue
		}
		seen[f.Filename] = true
		out = append(out, f.Filename)
	}
	return out
}
