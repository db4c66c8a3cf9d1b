package venafi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siem-soar-platform/integrations/pkg/connector"
	"github.com/siem-soar-platform/integrations/pkg/host"
)

const certificatesResponse = `{
  "Certificates": [
    {
      "CreatedOn": "2024-06-04T10:07:18.1634580Z",
      "DN": "\\VED\\Policy\\Certificates\\test.example.com",
      "Guid": "{c6fd2de4-4ed0-41c8-a7fb-0d0a0f9b3c4f}",
      "Name": "test.example.com",
      "ParentDn": "\\VED\\Policy\\Certificates",
      "SchemaClass": "X509 Server Certificate",
      "_links": [{"Details": "/vedsdk/certificates/{c6fd2de4-4ed0-41c8-a7fb-0d0a0f9b3c4f}"}]
    }
  ],
  "TotalCount": 1
}`

type venafiAPI struct {
	server       *httptest.Server
	logins       int
	refreshes    int
	loginStatus  int
	refreshValid bool
	lastQuery    map[string][]string
}

func newVenafiAPI(t *testing.T) *venafiAPI {
	api := &venafiAPI{loginStatus: http.StatusOK, refreshValid: true}
	mux := http.NewServeMux()
	mux.HandleFunc("/vedauth/authorize/oauth", func(w http.ResponseWriter, r *http.Request) {
		api.logins++
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user", body["username"])
		assert.Equal(t, "pass", body["password"])
		assert.Equal(t, "cid", body["client_id"])
		assert.Equal(t, "certificate", body["scope"])
		if api.loginStatus != http.StatusOK {
			w.WriteHeader(api.loginStatus)
			return
		}
		w.Write([]byte(`{"access_token":"tok-1","refresh_token":"ref-1","expires_in":3600}`))
	})
	mux.HandleFunc("/vedauth/authorize/token", func(w http.ResponseWriter, r *http.Request) {
		api.refreshes++
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "cid", body["client_id"])
		if !api.refreshValid || body["refresh_token"] != "ref-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"access_token":"tok-2","refresh_token":"ref-2","expires_in":"3600"}`))
	})
	mux.HandleFunc("/vedsdk/certificates/", func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth != "Bearer tok-1" && auth != "Bearer tok-2" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		api.lastQuery = r.URL.Query()
		if r.URL.Path == "/vedsdk/certificates/" {
			w.Write([]byte(certificatesResponse))
			return
		}
		assert.Equal(t, "/vedsdk/certificates/{c6fd2de4}", r.URL.Path)
		w.Write([]byte(`{"CreatedOn":"2024-06-04T10:07:18Z","DN":"\\VED\\Policy\\x","Guid":"{c6fd2de4}","Name":"x","SchemaClass":"X509 Certificate"}`))
	})
	api.server = httptest.NewServer(mux)
	t.Cleanup(api.server.Close)
	return api
}

func newTestIntegration(t *testing.T, api *venafiAPI, store host.ContextStore) connector.Integration {
	reg := connector.NewRegistry()
	require.NoError(t, reg.RegisterFactory(ID, New))
	inst, err := reg.Create(ID, host.Params{
		"server":      api.server.URL,
		"client_id":   "cid",
		"credentials": map[string]interface{}{"identifier": "user", "password": "pass"},
	}, connector.Deps{Context: store})
	require.NoError(t, err)
	return inst
}

func TestGetCertificates(t *testing.T) {
	api := newVenafiAPI(t)
	inst := newTestIntegration(t, api, host.NewMemoryContext())

	res, err := inst.Execute(context.Background(), "venafi-get-certificates", host.Args{"CN": "test.example.com", "Limit": "5"})
	require.NoError(t, err)

	assert.Equal(t, []string{"test.example.com"}, api.lastQuery["CN"])
	assert.Equal(t, []string{"5"}, api.lastQuery["Limit"])
	assert.Equal(t, "Venafi.Certificate", res.OutputsPrefix)

	certs := res.Outputs.(map[string]interface{})["Certificates"].([]interface{})
	assert.NotContains(t, certs[0], "_links")
	assert.Contains(t, res.ReadableOutput, "### Venafi certificates")
	assert.Contains(t, res.ReadableOutput, "| c6fd2de4-4ed0-41c8-a7fb-0d0a0f9b3c4f |")
}

func TestGetCertificateDetails(t *testing.T) {
	api := newVenafiAPI(t)
	inst := newTestIntegration(t, api, host.NewMemoryContext())

	res, err := inst.Execute(context.Background(), "venafi-get-certificate-details", host.Args{"guid": "{c6fd2de4}"})
	require.NoError(t, err)
	assert.Contains(t, res.ReadableOutput, "### Venafi certificate details")
	assert.Contains(t, res.ReadableOutput, "c6fd2de4")
	assert.Equal(t, "x", res.Outputs.(map[string]interface{})["Name"])

	_, err = inst.Execute(context.Background(), "venafi-get-certificate-details", host.Args{})
	assert.EqualError(t, err, "missing required arguments: guid")
}

func TestTokenCachedAndRefreshed(t *testing.T) {
	ctx := context.Background()
	api := newVenafiAPI(t)
	store := host.NewMemoryContext()
	inst := newTestIntegration(t, api, store)

	_, err := inst.TestModule(ctx)
	require.NoError(t, err)
	_, err = inst.TestModule(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, api.logins)
	assert.Equal(t, 0, api.refreshes)

	doc, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", doc["token"])
	assert.Equal(t, "ref-1", doc["refresh_token"])
	assert.InDelta(t, time.Now().Add(58*time.Minute).Unix(), doc["expires"], 5)

	doc["expires"] = time.Now().Add(-time.Minute).Unix()
	require.NoError(t, store.Set(ctx, doc))

	out, err := inst.TestModule(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 1, api.refreshes)
	assert.Equal(t, 1, api.logins)

	doc, err = store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", doc["token"])
}

func TestRejectedRefreshFallsBackToLogin(t *testing.T) {
	ctx := context.Background()
	api := newVenafiAPI(t)
	api.refreshValid = false
	store := host.NewMemoryContext()
	require.NoError(t, store.Set(ctx, map[string]interface{}{
		"token":         "stale",
		"refresh_token": "ref-1",
		"expires":       time.Now().Add(-time.Minute).Unix(),
	}))
	inst := newTestIntegration(t, api, store)

	_, err := inst.TestModule(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, api.refreshes)
	assert.Equal(t, 1, api.logins)
}

func TestBadCredentials(t *testing.T) {
	api := newVenafiAPI(t)
	api.loginStatus = http.StatusUnauthorized
	inst := newTestIntegration(t, api, host.NewMemoryContext())

	_, err := inst.TestModule(context.Background())
	assert.EqualError(t, err, "Failed to generate a token. Credentials are incorrect.")
}

func TestForbidden(t *testing.T) {
	ctx := context.Background()
	api := newVenafiAPI(t)
	store := host.NewMemoryContext()
	require.NoError(t, store.Set(ctx, map[string]interface{}{
		"token":   "revoked",
		"expires": time.Now().Add(time.Hour).Unix(),
	}))
	inst := newTestIntegration(t, api, store)

	_, err := inst.Execute(ctx, "venafi-get-certificates", host.Args{})
	assert.EqualError(t, err, authErrorMessage)
}

func TestDeleteLinks(t *testing.T) {
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(certificatesResponse), &resp))

	certs := DeleteLinks(resp)
	require.Len(t, certs, 1)
	assert.NotContains(t, certs[0], "_links")
	assert.Empty(t, DeleteLinks(map[string]interface{}{}))
}
