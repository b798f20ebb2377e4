package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"streamwire/internal/actions"
	"streamwire/internal/providers"
	"streamwire/internal/testutil"
)

func seedWiring(t *testing.T, store *testutil.MockStorage) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.CreateCredential(ctx, testutil.Credential("cred-1", "user-1", "twitch")))
	require.NoError(t, store.CreateCredential(ctx, testutil.Credential("cred-2", "user-1", "discord")))
	_, err := store.CreateAutomation(ctx, testutil.Automation("auto-1", "user-1", "cred-1", "cred-2"))
	require.NoError(t, err)
}

func startedEvent(key, title string) Event {
	return Event{
		CredentialID: "cred-1",
		Provider:     "twitch",
		Kind:         KindStarted,
		Entity:       testutil.Entity(key, title),
	}
}

func TestDispatch_InvokesMatchingExecutor(t *testing.T) {
	store := testutil.NewMockStorage()
	seedWiring(t, store)

	executor := testutil.NewRecordingExecutor("record")
	registry := actions.NewRegistry()
	registry.Register(executor)

	d := NewDispatcher(store, registry)
	invoked, err := d.Dispatch(context.Background(), startedEvent("streamer_x", "chess"))

	require.NoError(t, err)
	assert.Equal(t, 1, invoked)
	require.Equal(t, 1, executor.Calls())
	assert.Equal(t, "chess", executor.Contents[0].Title)
	assert.Contains(t, executor.Contents[0].Message, "streamer_x is live on Twitch!")
}

func TestDispatch_NoMatchingAutomation(t *testing.T) {
	store := testutil.NewMockStorage()
	seedWiring(t, store)

	registry := actions.NewRegistry()
	d := NewDispatcher(store, registry)

	// An ended event has no out_live automation registered.
	invoked, err := d.Dispatch(context.Background(), Event{
		CredentialID: "cred-1",
		Provider:     "twitch",
		Kind:         KindEnded,
		Entity:       providers.Entity{Key: "streamer_x"},
	})

	require.NoError(t, err)
	assert.Equal(t, 0, invoked)
}

func TestDispatch_FailingExecutorDoesNotBlockOthers(t *testing.T) {
	store := testutil.NewMockStorage()
	seedWiring(t, store)
	ctx := context.Background()

	// Second automation for the same trigger, different response kind.
	second := testutil.Automation("auto-2", "user-1", "cred-1", "cred-2")
	second.ResponseInteraction = "broken"
	_, err := store.CreateAutomation(ctx, second)
	require.NoError(t, err)

	good := testutil.NewRecordingExecutor("record")
	broken := testutil.NewRecordingExecutor("broken")
	broken.Err = errors.New("webhook gone")

	registry := actions.NewRegistry()
	registry.Register(good)
	registry.Register(broken)

	d := NewDispatcher(store, registry)
	invoked, err := d.Dispatch(ctx, startedEvent("streamer_x", "chess"))

	require.NoError(t, err)
	assert.Equal(t, 1, invoked)
	assert.Equal(t, 1, good.Calls())

	assert.Equal(t, int64(1), d.StatsFor("auto-1").Dispatched)
	assert.Equal(t, int64(1), d.StatsFor("auto-2").Failed)
}

func TestDispatch_MissingExecutorIsPerAutomationFailure(t *testing.T) {
	store := testutil.NewMockStorage()
	seedWiring(t, store)

	d := NewDispatcher(store, actions.NewRegistry())
	invoked, err := d.Dispatch(context.Background(), startedEvent("streamer_x", "chess"))

	require.NoError(t, err)
	assert.Equal(t, 0, invoked)
	assert.Equal(t, int64(1), d.StatsFor("auto-1").Failed)
}

func TestDispatch_IndexFailurePropagates(t *testing.T) {
	store := testutil.NewMockStorage()
	seedWiring(t, store)
	store.ErrorOnMethod["FindAutomations"] = errors.New("index down")

	d := NewDispatcher(store, actions.NewRegistry())
	_, err := d.Dispatch(context.Background(), startedEvent("streamer_x", "chess"))

	assert.Error(t, err)
}

func TestTriggerInteractionMapping(t *testing.T) {
	assert.Equal(t, TriggerInLive, KindStarted.TriggerInteraction())
	assert.Equal(t, TriggerOutLive, KindEnded.TriggerInteraction())
}

func TestRenderContent_EndedEvent(t *testing.T) {
	content := renderContent(Event{
		Provider: "twitch",
		Kind:     KindEnded,
		Entity:   providers.Entity{Key: "streamer_x"},
	})

	assert.Empty(t, content.Title)
	assert.Contains(t, content.Message, "streamer_x finished streaming on Twitch.")
}
