package testutil

import (
	"context"
	"sync"

	"streamwire/internal/actions"
	"streamwire/internal/providers"
	"streamwire/internal/storage"
)

// Entity builds a test entity with the attributes notifications render from.
func Entity(key, title string) providers.Entity {
	return providers.Entity{
		Key: key,
		Attributes: map[string]string{
			"title":     title,
			"user_name": key,
			"url":       "https://www.twitch.tv/" + key,
		},
	}
}

// Credential builds a test credential for the given provider.
func Credential(id, userID, provider string) *storage.Credential {
	return &storage.Credential{
		ID:             id,
		UserID:         userID,
		Provider:       provider,
		ProviderUserID: "provider-user-" + id,
		Token:          "token-" + id,
	}
}

// Automation builds an active test automation wiring an in_live trigger to a
// log_message response.
func Automation(id, userID, triggerCredID, responseCredID string) *storage.Automation {
	return &storage.Automation{
		ID:                   id,
		UserID:               userID,
		TriggerProvider:      "twitch",
		TriggerInteraction:   "in_live",
		ResponseProvider:     "discord",
		ResponseInteraction:  "record",
		TriggerCredentialID:  triggerCredID,
		ResponseCredentialID: responseCredID,
		Active:               true,
	}
}

// RecordingExecutor captures every execution for assertions.
type RecordingExecutor struct {
	mu       sync.Mutex
	kind     string
	Err      error
	Contents []actions.Content
}

func NewRecordingExecutor(kind string) *RecordingExecutor {
	return &RecordingExecutor{kind: kind}
}

func (e *RecordingExecutor) Kind() string {
	return e.kind
}

func (e *RecordingExecutor) Execute(ctx context.Context, content actions.Content, cred *storage.Credential) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.Err != nil {
		return e.Err
	}
	e.Contents = append(e.Contents, content)
	return nil
}

// Calls returns how many executions succeeded.
func (e *RecordingExecutor) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Contents)
}
