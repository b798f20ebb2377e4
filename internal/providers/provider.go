// Package providers defines the capability contract for external state
// providers. A provider answers one question: which entities are currently
// active for a given credential. Fetches must be idempotent and free of side
// effects on the provider; everything stateful (snapshots, diffing,
// dispatching) lives elsewhere.
package providers

import (
	"context"

	"streamwire/internal/storage"
)

// Entity is a named external object observed as active, e.g. a live stream.
// Attributes carry display fields used transiently for notification content
// and are never persisted beyond the snapshot's key set.
type Entity struct {
	Key        string
	Attributes map[string]string
}

// Attr returns an attribute value or "" when missing.
func (e Entity) Attr(key string) string {
	if e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}

// Provider fetches the current set of active entities for a credential.
//
// Implementations classify failures through the errors package: a rejected
// token is an auth-expired error, throttling is a rate-limited error, and
// network or 5xx failures are transient errors the detector may retry
// within the same tick.
type Provider interface {
	Name() string
	FetchCurrentState(ctx context.Context, cred *storage.Credential) ([]Entity, error)
}
