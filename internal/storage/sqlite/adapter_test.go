package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "streamwire/internal/common/errors"
	"streamwire/internal/storage"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()

	adapter, err := NewAdapter(&Config{
		DatabasePath: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { adapter.Close() })

	return adapter
}

func testCredential(id, userID, provider string) *storage.Credential {
	return &storage.Credential{
		ID:             id,
		UserID:         userID,
		Provider:       provider,
		ProviderUserID: "provider-user-" + id,
		Token:          "token-" + id,
	}
}

func testAutomation(userID, triggerCredID, responseCredID string) *storage.Automation {
	return &storage.Automation{
		UserID:               userID,
		TriggerProvider:      "twitch",
		TriggerInteraction:   "in_live",
		ResponseProvider:     "discord",
		ResponseInteraction:  "send_discord_message",
		TriggerCredentialID:  triggerCredID,
		ResponseCredentialID: responseCredID,
	}
}

func TestCredentialLifecycle(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	cred := testCredential("", "user-1", "twitch")
	require.NoError(t, adapter.CreateCredential(ctx, cred))
	require.NotEmpty(t, cred.ID, "id is generated when absent")

	loaded, err := adapter.GetCredential(ctx, cred.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", loaded.UserID)
	assert.Equal(t, "twitch", loaded.Provider)
	assert.False(t, loaded.AuthExpired)
	assert.Nil(t, loaded.LastSnapshot, "new credential has never been polled")

	byUser, err := adapter.GetCredentialByUserProvider(ctx, "user-1", "twitch")
	require.NoError(t, err)
	assert.Equal(t, cred.ID, byUser.ID)
}

func TestGetCredential_NotFound(t *testing.T) {
	adapter := newTestAdapter(t)

	_, err := adapter.GetCredential(context.Background(), "missing")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
}

func TestListCredentialsByProvider(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.CreateCredential(ctx, testCredential("c1", "user-1", "twitch")))
	require.NoError(t, adapter.CreateCredential(ctx, testCredential("c2", "user-2", "twitch")))
	require.NoError(t, adapter.CreateCredential(ctx, testCredential("c3", "user-1", "discord")))

	creds, err := adapter.ListCredentialsByProvider(ctx, "twitch")
	require.NoError(t, err)
	assert.Len(t, creds, 2)
}

func TestUpdateSnapshot_CAS(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	cred := testCredential("c1", "user-1", "twitch")
	require.NoError(t, adapter.CreateCredential(ctx, cred))

	// First write swaps against the absent snapshot.
	first := []byte(`{"version":1,"keys":["a"]}`)
	require.NoError(t, adapter.UpdateSnapshot(ctx, "c1", first, nil))

	loaded, err := adapter.GetCredential(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, first, loaded.LastSnapshot)

	// Second write must present the current blob.
	second := []byte(`{"version":1,"keys":["a","b"]}`)
	require.NoError(t, adapter.UpdateSnapshot(ctx, "c1", second, first))

	// A write against a stale expectation is a conflict, not an overwrite.
	err = adapter.UpdateSnapshot(ctx, "c1", []byte(`{}`), first)
	assert.True(t, apperrors.IsConflict(err))

	loaded, err = adapter.GetCredential(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, second, loaded.LastSnapshot)
}

func TestUpdateSnapshot_MissingCredential(t *testing.T) {
	adapter := newTestAdapter(t)

	err := adapter.UpdateSnapshot(context.Background(), "missing", []byte(`{}`), nil)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
}

func TestFlagCredentialAuthExpired(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.CreateCredential(ctx, testCredential("c1", "user-1", "twitch")))
	require.NoError(t, adapter.FlagCredentialAuthExpired(ctx, "c1", true))

	loaded, err := adapter.GetCredential(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, loaded.AuthExpired)

	require.NoError(t, adapter.FlagCredentialAuthExpired(ctx, "c1", false))
	loaded, err = adapter.GetCredential(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, loaded.AuthExpired)

	err = adapter.FlagCredentialAuthExpired(ctx, "missing", true)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
}

func TestCreateAutomation_FirstOrCreate(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.CreateCredential(ctx, testCredential("c1", "user-1", "twitch")))
	require.NoError(t, adapter.CreateCredential(ctx, testCredential("c2", "user-1", "discord")))

	created, err := adapter.CreateAutomation(ctx, testAutomation("user-1", "c1", "c2"))
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.True(t, created.Active)

	// Identical wiring returns the existing row instead of inserting a twin.
	again, err := adapter.CreateAutomation(ctx, testAutomation("user-1", "c1", "c2"))
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)

	automations, err := adapter.ListAutomationsByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, automations, 1)
}

func TestFindAutomations(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.CreateCredential(ctx, testCredential("c1", "user-1", "twitch")))
	require.NoError(t, adapter.CreateCredential(ctx, testCredential("c2", "user-1", "discord")))
	require.NoError(t, adapter.CreateCredential(ctx, testCredential("c3", "user-2", "twitch")))

	created, err := adapter.CreateAutomation(ctx, testAutomation("user-1", "c1", "c2"))
	require.NoError(t, err)

	found, err := adapter.FindAutomations(ctx, "twitch", "in_live", "c1")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, created.ID, found[0].ID)

	// Wrong interaction, wrong provider, wrong credential: no matches.
	for _, query := range [][3]string{
		{"twitch", "out_live", "c1"},
		{"youtube", "in_live", "c1"},
		{"twitch", "in_live", "c3"},
	} {
		found, err = adapter.FindAutomations(ctx, query[0], query[1], query[2])
		require.NoError(t, err)
		assert.Empty(t, found)
	}
}

func TestFindAutomations_SkipsInactive(t *testing.T) {
	adapter := newTestAdapter(t)
	ctx := context.Background()

	require.NoError(t, adapter.CreateCredential(ctx, testCredential("c1", "user-1", "twitch")))
	require.NoError(t, adapter.CreateCredential(ctx, testCredential("c2", "user-1", "discord")))

	created, err := adapter.CreateAutomation(ctx, testAutomation("user-1", "c1", "c2"))
	require.NoError(t, err)

	require.NoError(t, adapter.SetAutomationActive(ctx, created.ID, false))

	found, err := adapter.FindAutomations(ctx, "twitch", "in_live", "c1")
	require.NoError(t, err)
	assert.Empty(t, found)

	require.NoError(t, adapter.SetAutomationActive(ctx, created.ID, true))
	found, err = adapter.FindAutomations(ctx, "twitch", "in_live", "c1")
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestGetAutomation_NotFound(t *testing.T) {
	adapter := newTestAdapter(t)

	_, err := adapter.GetAutomation(context.Background(), "missing")
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
}

func TestSetAutomationActive_NotFound(t *testing.T) {
	adapter := newTestAdapter(t)

	err := adapter.SetAutomationActive(context.Background(), "missing", false)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeNotFound))
}

func TestHealth(t *testing.T) {
	adapter := newTestAdapter(t)
	assert.NoError(t, adapter.Health())
}

func TestFactoryRegistration(t *testing.T) {
	assert.Contains(t, storage.GetAvailableTypes(), "sqlite")
}
