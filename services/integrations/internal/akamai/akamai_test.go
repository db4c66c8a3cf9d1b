package akamai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siem-soar-platform/integrations/pkg/connector"
	"github.com/siem-soar-platform/integrations/pkg/errors"
	"github.com/siem-soar-platform/integrations/pkg/geoip"
	"github.com/siem-soar-platform/integrations/pkg/host"
	"github.com/siem-soar-platform/integrations/pkg/sink"
)

const eventA = `{"attackData":{"configId":"50170","policyId":"1234","clientIP":"8.8.8.8","rules":"ZGVueQ%3d%3d","ruleMessages":"Q3VzdG9tX1JlZ0VYX1J1bGU%3d%3bTm8gQWNjZXB0IEhlYWRlciBBTkQgTm8gVXNlciBBZ2VudCBIZWFkZXI%3d","ruleActions":"ZGVueQ%3d%3d"},"httpMessage":{"requestId":"1158db1758e37bfe67b7c09","start":"1576570098","protocol":"HTTP/1.1","method":"GET","host":"example.com","requestHeaders":"User-Agent%3a%20curl%2f7.64%0d%0aAccept%3a%20%22*%2f*%22%0d%0a"},"geo":{"continent":"NA","country":"US","city":"Mountain View","asn":"15169"}}`
const eventB = `{"attackData":{"configId":"50170","policyId":"5678","clientIP":"1.2.3.4","rules":"ZGVueQ%3d%3d"},"httpMessage":{"requestId":"2258db1758e37bfe67b7c10","start":"1576570200"},"geo":{}}`
const eventC = `{"attackData":{"configId":"50170","policyId":"5678","clientIP":"1.2.3.5"},"httpMessage":{"requestId":"3358db1758e37bfe67b7c11","start":"1576570300"},"geo":{}}`
const offsetLine = `{"total":2,"offset":"faf4a8d3e5c1a3ad","limit":2}`

func TestDecodeMessage(t *testing.T) {
	got, err := DecodeMessage("ZGVueQ%3d%3d")
	require.NoError(t, err)
	assert.Equal(t, []string{"deny"}, got)

	got, err = DecodeMessage("Q3VzdG9tX1JlZ0VYX1J1bGU%3d%3bTm8gQWNjZXB0IEhlYWRlciBBTkQgTm8gVXNlciBBZ2VudCBIZWFkZXI%3d")
	require.NoError(t, err)
	assert.Equal(t, []string{"Custom_RegEX_Rule", "No Accept Header AND No User Agent Header"}, got)

	_, err = DecodeMessage("%%%")
	assert.Error(t, err)
}

func TestDateFormatConverter(t *testing.T) {
	readable, err := DateFormatConverter("epoch", "1576570098")
	require.NoError(t, err)
	assert.Equal(t, "2019-12-17T08:08:18Z", readable)

	epoch, err := DateFormatConverter("readable", readable)
	require.NoError(t, err)
	assert.Equal(t, "1576570098", epoch)

	_, err = DateFormatConverter("epoch", "yesterday")
	assert.Error(t, err)
}

func TestRemoveDuplicatedEvents(t *testing.T) {
	events := []map[string]interface{}{{"policyId": "a"}, {"policyId": "b"}}

	kept, cached, removed := RemoveDuplicatedEvents(events, []string{"a"})
	assert.Equal(t, []map[string]interface{}{{"policyId": "b"}}, kept)
	assert.Equal(t, []string{"b"}, cached)
	assert.Equal(t, []string{"a"}, removed)

	again, cachedAgain, _ := RemoveDuplicatedEvents(events, []string{"a"})
	assert.Equal(t, kept, again)
	assert.Equal(t, cached, cachedAgain)

	keyless := []map[string]interface{}{{"attackData": map[string]interface{}{"policyId": "p1"}}}
	kept, cached, removed = RemoveDuplicatedEvents(keyless, []string{""})
	assert.Len(t, kept, 1)
	assert.Empty(t, cached)
	assert.Empty(t, removed)

	byRequest := []map[string]interface{}{
		{"httpMessage": map[string]interface{}{"requestId": "r1"}},
		{"httpMessage": map[string]interface{}{"requestId": "r2"}},
	}
	kept, cached, removed = RemoveDuplicatedEvents(byRequest, []string{"r1"})
	assert.Len(t, kept, 1)
	assert.Equal(t, []string{"r2"}, cached)
	assert.Equal(t, []string{"r1"}, removed)
}

func TestDecodeURLHeaders(t *testing.T) {
	got := DecodeURLHeaders("User-Agent%3a%20curl%2f7.64%0d%0aAccept%3a%20%22*%2f*%22%0d%0a")
	assert.Equal(t, map[string]interface{}{"User_Agent": "curl/7.64", "Accept": "*/*"}, got)
}

func TestParseEvents(t *testing.T) {
	events, offset, err := parseEvents(eventA+"\n"+eventB+"\n"+offsetLine+"\n", "100")
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, "1576570200", offset)

	events, offset, err = parseEvents(`{ "total": 0, "offset": "abc", "limit": 10}`+"\n", "100")
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, "100", offset)

	events, offset, err = parseEvents(`{"httpMessage":{"requestId":"x"}}`+"\n"+offsetLine+"\n", "100")
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, "100", offset)
}

type fixture struct {
	server   *httptest.Server
	queries  []string
	response string
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{response: eventA + "\n" + eventB + "\n" + offsetLine + "\n"}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/siem/v1/configs/"), r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "EG1-HMAC-SHA256"))
		f.queries = append(f.queries, r.URL.RawQuery)
		w.Write([]byte(f.response))
	}))
	t.Cleanup(f.server.Close)
	return f
}

func newTestIntegration(t *testing.T, f *fixture, deps connector.Deps) *Integration {
	if deps.LastRun == nil {
		deps.LastRun = host.NewMemoryContext()
	}
	if deps.Sink == nil {
		deps.Sink = sink.NewMemorySink()
	}
	reg := connector.NewRegistry()
	require.NoError(t, reg.RegisterFactory(ID, New))
	created, err := reg.Create(ID, host.Params{
		"host":         f.server.URL,
		"clientToken":  "akab-client",
		"accessToken":  "akab-access",
		"clientSecret": "c2VjcmV0",
		"configIds":    "50170",
		"fetchTime":    "12 hours",
		"fetchLimit":   "20",
	}, deps)
	require.NoError(t, err)
	i := created.(*Integration)
	i.now = func() time.Time { return time.Unix(1576600000, 0) }
	return i
}

func TestGetEventsCommand(t *testing.T) {
	f := newFixture(t)
	i := newTestIntegration(t, f, connector.Deps{GeoIP: geoip.Static{"1.2.3.4": {CountryCode: "AU", City: "Sydney"}}})

	res, err := i.Execute(context.Background(), "akamai-siem-get-events", host.Args{"config_ids": "50170", "limit": "2"})
	require.NoError(t, err)

	entry := res.ToEntry()
	ec, ok := entry.EntryContext["Akamai.SIEM(val.HttpMessage.RequestId && val.HttpMessage.RequestId == obj.HttpMessage.RequestId)"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, ec, 2)
	assert.Equal(t, []string{"deny"}, ec[0]["AttackData"].(map[string]interface{})["Rules"])
	assert.Equal(t, "AU", ec[1]["Geo"].(map[string]interface{})["Country"])
	assert.Contains(t, entry.EntryContext, "IP(val.Address && val.Address == obj.Address)")
	assert.Contains(t, res.ReadableOutput, "### Akamai SIEM - Attacks data")
	assert.Contains(t, res.ReadableOutput, "2019-12-17T08:08:18Z")
	assert.Equal(t, []string{"limit=2"}, f.queries)
}

func TestGetEventsNoResults(t *testing.T) {
	f := newFixture(t)
	f.response = `{ "total": 0, "offset": "abc", "limit": 10}` + "\n"
	i := newTestIntegration(t, f, connector.Deps{})

	res, err := i.Execute(context.Background(), "akamai-siem-get-events", host.Args{"config_ids": "50170", "time_stamp": "1 hour"})
	require.NoError(t, err)
	assert.Equal(t, "Akamai SIEM - Could not find any results for given query", res.ReadableOutput)
	assert.Contains(t, f.queries[0], "from=1576596400")
	assert.Contains(t, f.queries[0], "to=1576600000")
}

func TestGetEventsRequiresConfigIDs(t *testing.T) {
	f := newFixture(t)
	i := newTestIntegration(t, f, connector.Deps{})

	_, err := i.Execute(context.Background(), "akamai-siem-get-events", host.Args{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeBadInput))
	assert.Contains(t, err.Error(), "Error in Akamai SIEM Integration [missing required arguments: config_ids]")
	assert.Empty(t, f.queries)
}

func TestFetchIncidents(t *testing.T) {
	f := newFixture(t)
	lastRun := host.NewMemoryContext()
	i := newTestIntegration(t, f, connector.Deps{LastRun: lastRun})

	res, err := i.Execute(context.Background(), "fetch-incidents", host.Args{})
	require.NoError(t, err)
	require.Len(t, res.Incidents, 2)
	assert.Equal(t, "Akamai SIEM: 50170", res.Incidents[0].Name)
	assert.Equal(t, "2019-12-17T08:08:18Z", res.Incidents[0].Occurred)
	assert.Contains(t, f.queries[0], "from=1576556800")
	assert.Contains(t, f.queries[0], "limit=20")

	doc, err := lastRun.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1576570200", doc["lastRun"])

	_, err = i.Execute(context.Background(), "fetch-incidents", host.Args{})
	require.NoError(t, err)
	assert.Contains(t, f.queries[1], "from=1576570200")
}

func TestFetchEventsDeduplicatesAndPushes(t *testing.T) {
	f := newFixture(t)
	lastRun := host.NewMemoryContext()
	require.NoError(t, lastRun.Set(context.Background(), map[string]interface{}{
		"events_last_run":   "1576570000",
		"cached_policy_ids": []interface{}{"1158db1758e37bfe67b7c09"},
	}))
	mem := sink.NewMemorySink()
	i := newTestIntegration(t, f, connector.Deps{LastRun: lastRun, Sink: mem})

	res, err := i.Execute(context.Background(), "fetch-events", host.Args{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.EventsPushed)
	assert.Contains(t, f.queries[0], "from=1576570000")
	assert.Contains(t, f.queries[0], "limit=400000")

	pushed := mem.Events()
	require.Len(t, pushed, 1)
	assert.Equal(t, "2019-12-17T08:10:00Z", pushed[0]["_time"])
	assert.Equal(t, "waf", pushed[0][sink.FieldProduct])
	assert.Equal(t, []string{"deny"}, pushed[0]["attackData"].(map[string]interface{})["rules"])

	doc, err := lastRun.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1576570200", doc["events_last_run"])
	assert.EqualValues(t, []interface{}{"2258db1758e37bfe67b7c10"}, doc["cached_policy_ids"])
}

func TestFetchEventsAcrossRuns(t *testing.T) {
	f := newFixture(t)
	lastRun := host.NewMemoryContext()
	mem := sink.NewMemorySink()
	i := newTestIntegration(t, f, connector.Deps{LastRun: lastRun, Sink: mem})
	ctx := context.Background()

	res, err := i.Execute(ctx, "fetch-events", host.Args{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.EventsPushed)

	f.response = eventB + "\n" + eventC + "\n" + offsetLine + "\n"
	res, err = i.Execute(ctx, "fetch-events", host.Args{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.EventsPushed)
	assert.Contains(t, f.queries[1], "from=1576570200")

	pushed := mem.Events()
	require.Len(t, pushed, 3)
	assert.Equal(t, "3358db1758e37bfe67b7c11", pushed[2]["httpMessage"].(map[string]interface{})["requestId"])
	assert.Equal(t, "2019-12-17T08:11:40Z", pushed[2]["_time"])

	doc, err := lastRun.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1576570300", doc["events_last_run"])
	assert.EqualValues(t, []interface{}{"3358db1758e37bfe67b7c11"}, doc["cached_policy_ids"])
}

func TestTestModule(t *testing.T) {
	f := newFixture(t)
	i := newTestIntegration(t, f, connector.Deps{})

	out, err := i.TestModule(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Contains(t, f.queries[0], "from=1488816442")
	assert.Contains(t, f.queries[0], "limit=1")
}
