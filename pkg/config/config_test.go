package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInstances(t *testing.T) {
	t.Setenv("REDMINE_KEY", "abc123")

	doc := []byte(`
instances:
  - name: redmine-prod
    integration: redmine
    params:
      url: https://redmine.example.com
      api_key: ${REDMINE_KEY}
      insecure: true
  - name: druva
    integration: druva
    params:
      credentials:
        identifier: id
        password: ${MISSING_VAR}
`)

	instances, err := ParseInstances(doc)
	require.NoError(t, err)
	require.Len(t, instances, 2)

	assert.Equal(t, "redmine", instances[0].Integration)
	assert.Equal(t, "abc123", instances[0].Params["api_key"])
	assert.Equal(t, true, instances[0].Params["insecure"])

	creds, ok := instances[1].Params["credentials"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "", creds["password"])

	inst, err := FindInstance(instances, "druva")
	require.NoError(t, err)
	assert.Equal(t, "druva", inst.Name)

	_, err = FindInstance(instances, "nope")
	assert.Error(t, err)
}

func TestParseInstancesErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing name", "instances:\n  - integration: redmine\n"},
		{"missing integration", "instances:\n  - name: a\n"},
		{"duplicate", "instances:\n  - {name: a, integration: x}\n  - {name: a, integration: y}\n"},
		{"bad yaml", "instances: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseInstances([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{Store: StoreConfig{Backend: "memory"}, Sink: SinkConfig{Type: "none"}}
	assert.NoError(t, cfg.Validate())

	cfg.Store.Backend = "etcd"
	assert.Error(t, cfg.Validate())

	cfg.Store.Backend = "postgres"
	assert.Error(t, cfg.Validate())
	cfg.Store.PostgresDSN = "postgres://localhost/soar"
	assert.NoError(t, cfg.Validate())

	cfg.Sink.Type = "s3"
	assert.Error(t, cfg.Validate())
	cfg.Sink.S3Bucket = "events"
	assert.NoError(t, cfg.Validate())

	cfg.Sink.Type = "splunk-hec"
	cfg.Sink.HECURL = "https://splunk.example.com:8088"
	assert.Error(t, cfg.Validate())
	cfg.Sink.HECToken = "token"
	assert.NoError(t, cfg.Validate())
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("HEC_INSECURE", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "none", cfg.Sink.Type)
	assert.Equal(t, "files", cfg.FilesDir)
	assert.Equal(t, "_json", cfg.Sink.HECSourceType)
	assert.True(t, cfg.Sink.HECInsecure)
}

func TestGetEnvAsSlice(t *testing.T) {
	t.Setenv("TEST_BROKERS", "a:9092, b:9092,,")
	assert.Equal(t, []string{"a:9092", "b:9092"}, getEnvAsSlice("TEST_BROKERS", nil))
	assert.Equal(t, []string{"x"}, getEnvAsSlice("TEST_UNSET_BROKERS", []string{"x"}))
}
