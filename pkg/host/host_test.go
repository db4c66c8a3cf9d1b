package host

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siem-soar-platform/integrations/pkg/errors"
	"github.com/siem-soar-platform/integrations/pkg/httpclient"
	"github.com/siem-soar-platform/integrations/pkg/repository"
)

func TestArgToBool(t *testing.T) {
	tests := []struct {
		in      interface{}
		want    bool
		wantErr bool
	}{
		{"true", true, false},
		{"True", true, false},
		{"yes", true, false},
		{"no", false, false},
		{"false", false, false},
		{true, true, false},
		{"maybe", false, true},
	}

	for _, tt := range tests {
		got, err := ArgToBool(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "%v", tt.in)
			assert.True(t, errors.Is(err, errors.CodeBadInput))
			continue
		}
		require.NoError(t, err, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
}

func TestArgToInt(t *testing.T) {
	n, err := ArgToInt("50")
	require.NoError(t, err)
	assert.Equal(t, 50, n)

	n, err = ArgToInt(float64(20))
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	_, err = ArgToInt("ten")
	assert.True(t, errors.Is(err, errors.CodeBadInput))

	_, err = ArgToInt("1.5")
	assert.Error(t, err)
}

func TestArgToList(t *testing.T) {
	assert.Equal(t, []string{"1", "2", "3"}, ArgToList("1, 2,3,"))
	assert.Equal(t, []string{"a", "b"}, ArgToList([]interface{}{"a", " b "}))
	assert.Equal(t, []string{"x"}, ArgToList([]string{"x", ""}))
	assert.Nil(t, ArgToList(nil))
}

func TestArgToDatetime(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		in   interface{}
		want time.Time
	}{
		{"now", now},
		{"3 days", now.AddDate(0, 0, -3)},
		{"12 hours ago", now.Add(-12 * time.Hour)},
		{"1 week", now.AddDate(0, 0, -7)},
		{"1576570098", time.Unix(1576570098, 0).UTC()},
		{1576570098, time.Unix(1576570098, 0).UTC()},
		{"2019-12-17T08:08:18Z", time.Date(2019, 12, 17, 8, 8, 18, 0, time.UTC)},
		{"2024-01-02", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		got, err := ArgToDatetime(tt.in, now)
		require.NoError(t, err, "%v", tt.in)
		assert.True(t, tt.want.Equal(got), "%v: got %s want %s", tt.in, got, tt.want)
	}

	_, err := ArgToDatetime("yesterday-ish", now)
	assert.True(t, errors.Is(err, errors.CodeBadInput))
}

func TestArgsAccessors(t *testing.T) {
	args := Args{
		"limit":   "10",
		"empty":   "",
		"flag":    "false",
		"ids":     "a,b",
		"numeric": float64(7),
	}

	assert.True(t, args.Has("limit"))
	assert.False(t, args.Has("empty"))
	assert.False(t, args.Has("missing"))
	assert.Equal(t, "def", args.String("empty", "def"))
	assert.Equal(t, "7", args.String("numeric", ""))

	n, err := args.Int("limit", 50)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	n, err = args.Int("missing", 50)
	require.NoError(t, err)
	assert.Equal(t, 50, n)

	b, err := args.OptionalBool("flag")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.False(t, *b)

	b, err = args.OptionalBool("missing")
	require.NoError(t, err)
	assert.Nil(t, b)

	assert.Equal(t, []string{"a", "b"}, args.List("ids"))

	err = args.Required("limit", "empty", "missing")
	require.Error(t, err)
	assert.Equal(t, "missing required arguments: empty, missing", err.Error())
}

func TestParseArgPairs(t *testing.T) {
	args, err := ParseArgPairs([]string{"issue_id=1", "subject=a=b"})
	require.NoError(t, err)
	assert.Equal(t, "1", args["issue_id"])
	assert.Equal(t, "a=b", args["subject"])

	_, err = ParseArgPairs([]string{"novalue"})
	assert.Error(t, err)
}

func TestParams(t *testing.T) {
	p := Params{
		"url":      "https://example.com/ ",
		"insecure": true,
		"limit":    "25",
		"credentials": map[string]interface{}{
			"identifier": "user",
			"password":   "pass",
		},
	}

	assert.Equal(t, "https://example.com", p.URL("url"))
	assert.True(t, p.Bool("insecure"))
	assert.False(t, p.Bool("proxy"))
	assert.Equal(t, 25, p.Int("limit", 50))
	assert.Equal(t, 50, p.Int("missing", 50))
	assert.Equal(t, Credentials{Identifier: "user", Password: "pass"}, p.Credentials("credentials"))
	assert.Equal(t, "pass", p.CredentialOr("credentials", "api_key"))
	assert.Equal(t, "fallback", p.StringDefault("missing", "fallback"))

	assert.Equal(t, httpclient.Limit{}, p.RateLimit())
	assert.Equal(t, httpclient.Limit{RequestsPerSecond: 2.5, BurstSize: 1}, Params{ParamMaxRequestsPerSecond: "2.5"}.RateLimit())
	assert.Equal(t, httpclient.Limit{RequestsPerSecond: 10, BurstSize: 4}, Params{ParamMaxRequestsPerSecond: 10, ParamMaxBurst: "4"}.RateLimit())
}

func TestContextStores(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()

	ic := NewIntegrationContext(store, "inst")
	lr := NewLastRun(store, "inst")

	require.NoError(t, ic.Set(ctx, map[string]interface{}{"token": "t"}))
	require.NoError(t, Update(ctx, lr, func(doc map[string]interface{}) {
		doc["offset"] = "abc"
	}))

	got, err := ic.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t", got["token"])
	assert.NotContains(t, got, "offset")

	got, err = lr.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", got["offset"])
}

func TestExecutorHelpers(t *testing.T) {
	ex := ExecutorFunc(func(ctx context.Context, command string, args Args) ([]Entry, error) {
		if command == "bad" {
			return []Entry{{Type: EntryError, Contents: "boom"}}, nil
		}
		return []Entry{{
			Type:         EntryNote,
			EntryContext: map[string]interface{}{"AWS.Organizations.Account(val.Id && val.Id == obj.Id)": map[string]interface{}{"Id": "1"}},
		}}, nil
	})

	entries, err := Execute(context.Background(), ex, "good", nil)
	require.NoError(t, err)
	v, ok := ContextValue(entries, "AWS.Organizations.Account")
	require.True(t, ok)
	assert.Equal(t, "1", v.(map[string]interface{})["Id"])

	_, ok = ContextValue(entries, "AWS.Organizations")
	assert.False(t, ok)

	_, err = Execute(context.Background(), ex, "bad", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestSessionRestrictions(t *testing.T) {
	ctx := context.Background()
	ex := ExecutorFunc(func(ctx context.Context, command string, args Args) ([]Entry, error) {
		return []Entry{{Type: EntryNote, Contents: command}}, nil
	})

	integration := NewSession(SessionOptions{ItemType: ItemIntegration, Command: "test-module", Params: Params{"url": "x"}, Executor: ex})
	p, err := integration.Params()
	require.NoError(t, err)
	assert.Equal(t, "x", p["url"])
	cmd, err := integration.Command()
	require.NoError(t, err)
	assert.Equal(t, "test-module", cmd)
	_, err = integration.ExecuteCommand(ctx, "x", nil)
	assert.True(t, errors.Is(err, errors.CodeForbidden))

	script := NewSession(SessionOptions{ItemType: ItemScript, Executor: ex})
	_, err = script.Params()
	assert.True(t, errors.Is(err, errors.CodeForbidden))
	_, err = script.Command()
	assert.True(t, errors.Is(err, errors.CodeForbidden))
	entries, err := script.ExecuteCommand(ctx, "aws-org-root-list", nil)
	require.NoError(t, err)
	assert.Equal(t, "aws-org-root-list", entries[0].Contents)
	assert.NotNil(t, script.Args())
}

func TestIncidentLabel(t *testing.T) {
	inc := &Incident{Labels: []Label{{Type: "Drilldown", Value: "{}"}}}
	v, ok := inc.Label("Drilldown")
	assert.True(t, ok)
	assert.Equal(t, "{}", v)

	_, ok = inc.Label("missing")
	assert.False(t, ok)

	var none *Incident
	_, ok = none.Label("Drilldown")
	assert.False(t, ok)
}
