package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siem-soar-platform/integrations/pkg/config"
	"github.com/siem-soar-platform/integrations/pkg/logger"
)

func TestDecorate(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	in := []Event{
		{"id": "1"},
		{"id": "2", "_time": "2024-01-01T00:00:00Z"},
	}

	out := Decorate("Druva", "Druva", in, now)
	require.Len(t, out, 2)
	assert.Equal(t, "Druva", out[0][FieldVendor])
	assert.Equal(t, "Druva", out[0][FieldProduct])
	assert.Equal(t, "2024-03-01T10:00:00Z", out[0][FieldTime])
	assert.Equal(t, "2024-01-01T00:00:00Z", out[1][FieldTime])
	assert.NotContains(t, in[0], FieldVendor)
}

func TestMemorySink(t *testing.T) {
	m := NewMemorySink()
	require.NoError(t, m.Send(context.Background(), "sailpoint", "identitynow", []Event{{"id": "a"}}))
	require.NoError(t, m.Send(context.Background(), "sailpoint", "identitynow", nil))

	assert.Equal(t, 2, m.Calls())
	events := m.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "identitynow", events[0][FieldProduct])
}

func TestS3SinkPutsNDJSON(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
		lines []map[string]interface{}
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, http.MethodPut, r.Method)
		paths = append(paths, r.URL.Path)
		sc := bufio.NewScanner(r.Body)
		for sc.Scan() {
			var m map[string]interface{}
			if json.Unmarshal(sc.Bytes(), &m) == nil {
				lines = append(lines, m)
			}
		}
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s, err := NewS3Sink(context.Background(), S3Config{
		Region:    "us-east-1",
		Bucket:    "events",
		Prefix:    "raw",
		Endpoint:  server.URL,
		AccessKey: "AKID",
		SecretKey: "SECRET",
	}, logger.Nop())
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC) }

	require.NoError(t, s.Send(context.Background(), "Akamai", "WAF", []Event{{"id": 1}, {"id": 2}}))
	require.NoError(t, s.Send(context.Background(), "Akamai", "WAF", nil))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, paths, 1)
	assert.True(t, strings.HasPrefix(paths[0], "/events/raw/Akamai_WAF/2024/03/01/10/20240301T103000-"), paths[0])
	require.Len(t, lines, 2)
	assert.Equal(t, "WAF", lines[1][FieldProduct])
}

func TestFromConfig(t *testing.T) {
	s, err := FromConfig(context.Background(), config.SinkConfig{Type: "none"}, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, "none", s.Name())

	_, err = FromConfig(context.Background(), config.SinkConfig{Type: "kafka"}, logger.Nop())
	assert.Error(t, err)

	_, err = FromConfig(context.Background(), config.SinkConfig{Type: "pigeon"}, logger.Nop())
	assert.EqualError(t, err, "unknown sink type: pigeon")
}

func TestHECSink(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies [][]map[string]interface{}
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "/services/collector/event", r.URL.Path)
		assert.Equal(t, "Splunk hec-token", r.Header.Get("Authorization"))

		var batch []map[string]interface{}
		dec := json.NewDecoder(r.Body)
		for dec.More() {
			var m map[string]interface{}
			require.NoError(t, dec.Decode(&m))
			batch = append(batch, m)
		}
		bodies = append(bodies, batch)
		w.Write([]byte(`{"text":"Success","code":0}`))
	}))
	defer server.Close()

	s, err := NewHECSink(HECConfig{URL: server.URL, Token: "hec-token", Index: "soar", SourceType: "_json", BatchSize: 2}, logger.Nop())
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC) }

	events := []Event{{"id": 1}, {"id": 2}, {"id": 3, "_time": "2024-01-01T00:00:00Z"}}
	require.NoError(t, s.Send(context.Background(), "Druva", "Druva", events))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, bodies, 2)
	assert.Len(t, bodies[0], 2)
	first := bodies[0][0]
	assert.Equal(t, "Druva_Druva", first["source"])
	assert.Equal(t, "soar", first["index"])
	assert.Equal(t, float64(1709289000), first["time"])
	assert.Equal(t, "Druva", first["event"].(map[string]interface{})[FieldVendor])
	assert.Equal(t, float64(1704067200), bodies[1][0]["time"])
}

func TestHECSinkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text":"Incorrect index","code":7}`))
	}))
	defer server.Close()

	s, err := NewHECSink(HECConfig{URL: server.URL, Token: "t"}, logger.Nop())
	require.NoError(t, err)
	err = s.Send(context.Background(), "a", "b", []Event{{"id": 1}})
	assert.EqualError(t, err, "HEC error: Incorrect index (code: 7)")

	_, err = NewHECSink(HECConfig{URL: server.URL}, logger.Nop())
	assert.Error(t, err)
}
