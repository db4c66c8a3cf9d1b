package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siem-soar-platform/integrations/pkg/config"
	"github.com/siem-soar-platform/integrations/pkg/repository"
)

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	store, err := openStore(ctx, config.StoreConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &repository.MemoryStore{}, store)

	dir := filepath.Join(t.TempDir(), "ctx")
	store, err = openStore(ctx, config.StoreConfig{Backend: "file", FileDir: dir})
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, repository.LastRunNamespace("druva"), map[string]interface{}{"tracker": "t1"}))
	doc, err := store.Load(ctx, repository.LastRunNamespace("druva"))
	require.NoError(t, err)
	assert.Equal(t, "t1", doc["tracker"])

	_, err = openStore(ctx, config.StoreConfig{Backend: "etcd"})
	assert.EqualError(t, err, "unknown store backend: etcd")
}

func TestLoadIncident(t *testing.T) {
	incident, err := loadIncident("")
	require.NoError(t, err)
	assert.Nil(t, incident)

	path := filepath.Join(t.TempDir(), "incident.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":"7","name":"Notable","labels":[{"type":"Drilldown","value":"[]"}]}`), 0o600))

	incident, err = loadIncident(path)
	require.NoError(t, err)
	assert.Equal(t, "Notable", incident.Name)
	value, ok := incident.Label("Drilldown")
	assert.True(t, ok)
	assert.Equal(t, "[]", value)

	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	_, err = loadIncident(path)
	assert.ErrorContains(t, err, "parse incident")
}

func TestNewAppFromEnvironment(t *testing.T) {
	dir := t.TempDir()
	instances := filepath.Join(dir, "instances.yaml")
	require.NoError(t, os.WriteFile(instances, []byte(`
instances:
  - name: hierarchy
    integration: aws-organizations
    params:
      region: us-east-1
      access_key: AKIAEXAMPLE
      secret_key: secret
`), 0o600))

	t.Setenv("INSTANCES_FILE", instances)
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("SINK_TYPE", "none")
	t.Setenv("LOG_LEVEL", "error")

	a, err := newApp(context.Background())
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "none", a.sink.Name())
	assert.NoError(t, a.ready(context.Background()))

	infos := a.runner.Describe()
	require.Len(t, infos, 1)
	assert.Empty(t, infos[0].Error)
	assert.NotEmpty(t, infos[0].Commands)
}
