package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"streamwire/internal/actions"
	"streamwire/internal/providers"
	"streamwire/internal/storage"
	"streamwire/internal/testutil"
)

func newTestServer(t *testing.T) (*Server, *testutil.MockStorage) {
	t.Helper()

	store := testutil.NewMockStorage()

	providerRegistry := providers.NewRegistry()
	providerRegistry.Register(testutil.NewMockProvider("twitch"))

	executorRegistry := actions.NewRegistry()
	executorRegistry.Register(testutil.NewRecordingExecutor("send_discord_message"))

	return New(store, providerRegistry, executorRegistry), store
}

func linkProviders(t *testing.T, store *testutil.MockStorage, userID string) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.CreateCredential(ctx, testutil.Credential("cred-t", userID, "twitch")))
	require.NoError(t, store.CreateCredential(ctx, testutil.Credential("cred-d", userID, "discord")))
}

func createRequest(t *testing.T, userID string, body interface{}) *http.Request {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/automations", bytes.NewReader(payload))
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	return req
}

func validBody() map[string]string {
	return map[string]string{
		"trigger_provider":     "twitch",
		"trigger_interaction":  "in_live",
		"response_provider":    "discord",
		"response_interaction": "send_discord_message",
	}
}

func TestCreateAutomation(t *testing.T) {
	srv, store := newTestServer(t)
	linkProviders(t, store, "user-1")

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, createRequest(t, "user-1", validBody()))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp automationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Automation)
	assert.Equal(t, "user-1", resp.Automation.UserID)
	assert.Equal(t, "cred-t", resp.Automation.TriggerCredentialID)
	assert.Equal(t, "cred-d", resp.Automation.ResponseCredentialID)
	assert.True(t, resp.Automation.Active)
}

func TestCreateAutomation_Idempotent(t *testing.T) {
	srv, store := newTestServer(t)
	linkProviders(t, store, "user-1")

	first := httptest.NewRecorder()
	srv.Router().ServeHTTP(first, createRequest(t, "user-1", validBody()))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	srv.Router().ServeHTTP(second, createRequest(t, "user-1", validBody()))
	require.Equal(t, http.StatusOK, second.Code)

	var respA, respB automationResponse
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &respA))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &respB))
	assert.Equal(t, respA.Automation.ID, respB.Automation.ID)
}

func TestCreateAutomation_MissingUser(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, createRequest(t, "", validBody()))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateAutomation_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]string)
	}{
		{
			name:   "missing field",
			mutate: func(b map[string]string) { delete(b, "trigger_interaction") },
		},
		{
			name:   "unregistered trigger provider",
			mutate: func(b map[string]string) { b["trigger_provider"] = "youtube" },
		},
		{
			name:   "unknown trigger interaction",
			mutate: func(b map[string]string) { b["trigger_interaction"] = "on_follow" },
		},
		{
			name:   "unregistered response interaction",
			mutate: func(b map[string]string) { b["response_interaction"] = "send_sms" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, store := newTestServer(t)
			linkProviders(t, store, "user-1")

			body := validBody()
			tt.mutate(body)

			rec := httptest.NewRecorder()
			srv.Router().ServeHTTP(rec, createRequest(t, "user-1", body))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCreateAutomation_InvalidJSON(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/automations", bytes.NewReader([]byte(`{broken`)))
	req.Header.Set("X-User-ID", "user-1")

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateAutomation_UnlinkedProvider(t *testing.T) {
	srv, store := newTestServer(t)

	// Only twitch is linked; discord credential is missing.
	require.NoError(t, store.CreateCredential(context.Background(),
		testutil.Credential("cred-t", "user-1", "twitch")))

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, createRequest(t, "user-1", validBody()))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGetAutomation(t *testing.T) {
	srv, store := newTestServer(t)
	linkProviders(t, store, "user-1")

	created, err := store.CreateAutomation(context.Background(),
		testutil.Automation("auto-1", "user-1", "cred-t", "cred-d"))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/automations/"+created.ID, nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp automationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, created.ID, resp.Automation.ID)
}

func TestGetAutomation_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/automations/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListMyAutomations(t *testing.T) {
	srv, store := newTestServer(t)
	linkProviders(t, store, "user-1")
	linkProviders(t, store, "user-2")

	_, err := store.CreateAutomation(context.Background(),
		testutil.Automation("auto-1", "user-1", "cred-t", "cred-d"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/automations", nil)
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var automations []*storage.Automation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &automations))
	assert.Len(t, automations, 1)
}

func TestListMyAutomations_EmptyIsArray(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/automations", nil)
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestGetTriggerCatalog(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/catalog/triggers", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var catalog map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &catalog))
	assert.ElementsMatch(t, []string{"in_live", "out_live"}, catalog["twitch"])
}

func TestGetResponseCatalog(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/catalog/responses", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var kinds []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &kinds))
	assert.Contains(t, kinds, "send_discord_message")
}

func TestHealthCheck(t *testing.T) {
	srv, store := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	store.ErrorOnMethod["Health"] = errors.New("db gone")
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
