package storage

import (
	"context"
	"time"
)

// Credential is a stored access token for one user/provider pair. Credentials
// are created at OAuth linking time by the upstream API and destroyed when
// the user unlinks the provider; the detector only ever replaces
// LastSnapshot and flags AuthExpired.
type Credential struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Provider       string    `json:"provider"`
	ProviderUserID string    `json:"provider_user_id"`
	Token          string    `json:"-"`
	AuthExpired    bool      `json:"auth_expired"`
	LastSnapshot   []byte    `json:"-"` // nil means never polled, distinct from an empty snapshot
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Automation is a user-defined trigger→response wiring. Created and deleted
// through the HTTP API, read-only to the detector and dispatcher.
type Automation struct {
	ID                   string    `json:"id"`
	UserID               string    `json:"user_id"`
	TriggerProvider      string    `json:"trigger_provider"`
	TriggerInteraction   string    `json:"trigger_interaction"`
	ResponseProvider     string    `json:"response_provider"`
	ResponseInteraction  string    `json:"response_interaction"`
	TriggerCredentialID  string    `json:"trigger_credential_id"`
	ResponseCredentialID string    `json:"response_credential_id"`
	Active               bool      `json:"active"`
	CreatedAt            time.Time `json:"created_at"`
}

// Storage is the persistence contract consumed by the detector, dispatcher
// and HTTP API. Implementations must be safe for concurrent use.
type Storage interface {
	// Connection management
	Close() error
	Health() error

	// Credentials
	CreateCredential(ctx context.Context, cred *Credential) error
	GetCredential(ctx context.Context, id string) (*Credential, error)
	GetCredentialByUserProvider(ctx context.Context, userID, provider string) (*Credential, error)
	ListCredentialsByProvider(ctx context.Context, provider string) ([]*Credential, error)

	// UpdateSnapshot replaces a credential's snapshot blob as a full
	// overwrite, compare-and-swapped against the blob the caller read at
	// the start of the pass. A mismatch means a concurrent pass committed
	// first and yields a conflict error.
	UpdateSnapshot(ctx context.Context, credentialID string, snapshot, expectedPrev []byte) error

	// FlagCredentialAuthExpired marks a credential whose token was
	// rejected so upstream remediation (token refresh) can pick it up.
	FlagCredentialAuthExpired(ctx context.Context, credentialID string, expired bool) error

	// Automations
	// CreateAutomation has first-or-create semantics: an identical wiring
	// for the same user returns the existing row.
	CreateAutomation(ctx context.Context, automation *Automation) (*Automation, error)
	GetAutomation(ctx context.Context, id string) (*Automation, error)
	ListAutomationsByUser(ctx context.Context, userID string) ([]*Automation, error)

	// FindAutomations returns active automations registered for the given
	// trigger provider, interaction kind and trigger credential, filtered
	// to rows whose response credential still resolves.
	FindAutomations(ctx context.Context, provider, interaction, triggerCredentialID string) ([]*Automation, error)
	SetAutomationActive(ctx context.Context, id string, active bool) error
}

// StorageConfig is the configuration contract for storage adapters.
type StorageConfig interface {
	Validate() error
	GetType() string
	GetConnectionString() string
}

// StorageFactory creates storage adapters from configuration.
type StorageFactory interface {
	Create(config StorageConfig) (Storage, error)
	GetType() string
}

// GenericConfig is a simple map-based implementation of StorageConfig
type GenericConfig map[string]interface{}

func (gc GenericConfig) Validate() error {
	return nil // Basic configs don't need validation
}

func (gc GenericConfig) GetType() string {
	if t, ok := gc["type"].(string); ok {
		return t
	}
	return "unknown"
}

func (gc GenericConfig) GetConnectionString() string {
	if cs, ok := gc["connection_string"].(string); ok {
		return cs
	}
	return ""
}

// GetString reads a string key from a GenericConfig.
func (gc GenericConfig) GetString(key string) string {
	if v, ok := gc[key].(string); ok {
		return v
	}
	return ""
}
