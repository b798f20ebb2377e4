package testutil

import (
	"bytes"
	"context"
	"sync"
	"time"

	apperrors "streamwire/internal/common/errors"
	"streamwire/internal/providers"
	"streamwire/internal/storage"
)

// MockStorage implements storage.Storage for testing
type MockStorage struct {
	mu          sync.RWMutex
	credentials map[string]*storage.Credential
	automations map[string]*storage.Automation

	// SnapshotWrites counts UpdateSnapshot calls, including conflicts.
	SnapshotWrites int

	// Control error injection
	ErrorOnMethod map[string]error
}

// NewMockStorage creates a new mock storage instance
func NewMockStorage() *MockStorage {
	return &MockStorage{
		credentials:   make(map[string]*storage.Credential),
		automations:   make(map[string]*storage.Automation),
		ErrorOnMethod: make(map[string]error),
	}
}

func (m *MockStorage) Close() error {
	return m.ErrorOnMethod["Close"]
}

func (m *MockStorage) Health() error {
	return m.ErrorOnMethod["Health"]
}

// Credentials

func (m *MockStorage) CreateCredential(ctx context.Context, cred *storage.Credential) error {
	if err := m.ErrorOnMethod["CreateCredential"]; err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	cred.CreatedAt = now
	cred.UpdatedAt = now
	copied := *cred
	m.credentials[cred.ID] = &copied
	return nil
}

func (m *MockStorage) GetCredential(ctx context.Context, id string) (*storage.Credential, error) {
	if err := m.ErrorOnMethod["GetCredential"]; err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	cred, exists := m.credentials[id]
	if !exists {
		return nil, apperrors.NotFoundError("credential")
	}
	copied := *cred
	return &copied, nil
}

func (m *MockStorage) GetCredentialByUserProvider(ctx context.Context, userID, provider string) (*storage.Credential, error) {
	if err := m.ErrorOnMethod["GetCredentialByUserProvider"]; err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, cred := range m.credentials {
		if cred.UserID == userID && cred.Provider == provider {
			copied := *cred
			return &copied, nil
		}
	}
	return nil, apperrors.NotFoundError("credential")
}

func (m *MockStorage) ListCredentialsByProvider(ctx context.Context, provider string) ([]*storage.Credential, error) {
	if err := m.ErrorOnMethod["ListCredentialsByProvider"]; err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var creds []*storage.Credential
	for _, cred := range m.credentials {
		if cred.Provider == provider {
			copied := *cred
			creds = append(creds, &copied)
		}
	}
	return creds, nil
}

func (m *MockStorage) UpdateSnapshot(ctx context.Context, credentialID string, snapshot, expectedPrev []byte) error {
	if err := m.ErrorOnMethod["UpdateSnapshot"]; err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.SnapshotWrites++

	cred, exists := m.credentials[credentialID]
	if !exists {
		return apperrors.NotFoundError("credential")
	}
	if !bytes.Equal(cred.LastSnapshot, expectedPrev) {
		return apperrors.SnapshotConflictError(credentialID)
	}
	cred.LastSnapshot = snapshot
	cred.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MockStorage) FlagCredentialAuthExpired(ctx context.Context, credentialID string, expired bool) error {
	if err := m.ErrorOnMethod["FlagCredentialAuthExpired"]; err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cred, exists := m.credentials[credentialID]
	if !exists {
		return apperrors.NotFoundError("credential")
	}
	cred.AuthExpired = expired
	return nil
}

// StoredSnapshot returns the current snapshot blob of a credential.
func (m *MockStorage) StoredSnapshot(credentialID string) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if cred, exists := m.credentials[credentialID]; exists {
		return cred.LastSnapshot
	}
	return nil
}

// Automations

func (m *MockStorage) CreateAutomation(ctx context.Context, automation *storage.Automation) (*storage.Automation, error) {
	if err := m.ErrorOnMethod["CreateAutomation"]; err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.automations {
		if existing.UserID == automation.UserID &&
			existing.TriggerProvider == automation.TriggerProvider &&
			existing.TriggerInteraction == automation.TriggerInteraction &&
			existing.ResponseProvider == automation.ResponseProvider &&
			existing.ResponseInteraction == automation.ResponseInteraction &&
			existing.TriggerCredentialID == automation.TriggerCredentialID &&
			existing.ResponseCredentialID == automation.ResponseCredentialID {
			copied := *existing
			return &copied, nil
		}
	}

	if automation.ID == "" {
		automation.ID = "automation-" + time.Now().Format("150405.000000000")
	}
	automation.Active = true
	automation.CreatedAt = time.Now().UTC()
	copied := *automation
	m.automations[automation.ID] = &copied
	return automation, nil
}

func (m *MockStorage) GetAutomation(ctx context.Context, id string) (*storage.Automation, error) {
	if err := m.ErrorOnMethod["GetAutomation"]; err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	automation, exists := m.automations[id]
	if !exists {
		return nil, apperrors.NotFoundError("automation")
	}
	copied := *automation
	return &copied, nil
}

func (m *MockStorage) ListAutomationsByUser(ctx context.Context, userID string) ([]*storage.Automation, error) {
	if err := m.ErrorOnMethod["ListAutomationsByUser"]; err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var automations []*storage.Automation
	for _, automation := range m.automations {
		if automation.UserID == userID {
			copied := *automation
			automations = append(automations, &copied)
		}
	}
	return automations, nil
}

func (m *MockStorage) FindAutomations(ctx context.Context, provider, interaction, triggerCredentialID string) ([]*storage.Automation, error) {
	if err := m.ErrorOnMethod["FindAutomations"]; err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var automations []*storage.Automation
	for _, automation := range m.automations {
		if !automation.Active {
			continue
		}
		if automation.TriggerProvider != provider ||
			automation.TriggerInteraction != interaction ||
			automation.TriggerCredentialID != triggerCredentialID {
			continue
		}
		if _, exists := m.credentials[automation.ResponseCredentialID]; !exists {
			continue
		}
		copied := *automation
		automations = append(automations, &copied)
	}
	return automations, nil
}

func (m *MockStorage) SetAutomationActive(ctx context.Context, id string, active bool) error {
	if err := m.ErrorOnMethod["SetAutomationActive"]; err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	automation, exists := m.automations[id]
	if !exists {
		return apperrors.NotFoundError("automation")
	}
	automation.Active = active
	return nil
}

// MockProvider implements providers.Provider with scripted state.
type MockProvider struct {
	mu         sync.Mutex
	name       string
	entities   []providers.Entity
	err        error
	credErrs   map[string]error
	FetchCount int
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

func (p *MockProvider) Name() string {
	return p.name
}

// SetState scripts the next fetch results.
func (p *MockProvider) SetState(entities []providers.Entity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entities = entities
	p.err = nil
}

// SetError makes every fetch fail with err until the state changes.
func (p *MockProvider) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// SetErrorForCredential makes fetches for one credential fail while others
// succeed.
func (p *MockProvider) SetErrorForCredential(credentialID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.credErrs == nil {
		p.credErrs = make(map[string]error)
	}
	p.credErrs[credentialID] = err
}

func (p *MockProvider) FetchCurrentState(ctx context.Context, cred *storage.Credential) ([]providers.Entity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.FetchCount++
	if err := p.credErrs[cred.ID]; err != nil {
		return nil, err
	}
	if p.err != nil {
		return nil, p.err
	}
	out := make([]providers.Entity, len(p.entities))
	copy(out, p.entities)
	return out, nil
}
