package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	apperrors "streamwire/internal/common/errors"
	"streamwire/internal/storage"
)

type Adapter struct {
	db     *sql.DB
	config *Config
}

func NewAdapter(config *Config) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid SQLite config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	adapter := &Adapter{
		db:     db,
		config: config,
	}

	if err := adapter.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return adapter, nil
}

func (a *Adapter) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS credentials (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		provider_user_id TEXT NOT NULL DEFAULT '',
		token TEXT NOT NULL,
		auth_expired INTEGER NOT NULL DEFAULT 0,
		last_snapshot BLOB,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_credentials_provider ON credentials(provider);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_credentials_user_provider ON credentials(user_id, provider);

	CREATE TABLE IF NOT EXISTS automations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		trigger_provider TEXT NOT NULL,
		trigger_interaction TEXT NOT NULL,
		response_provider TEXT NOT NULL,
		response_interaction TEXT NOT NULL,
		trigger_credential_id TEXT NOT NULL REFERENCES credentials(id),
		response_credential_id TEXT NOT NULL REFERENCES credentials(id),
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_automations_trigger
		ON automations(trigger_provider, trigger_interaction, trigger_credential_id);
	CREATE INDEX IF NOT EXISTS idx_automations_user ON automations(user_id);
	`

	_, err := a.db.Exec(schema)
	return err
}

func (a *Adapter) Close() error {
	return a.db.Close()
}

func (a *Adapter) Health() error {
	return a.db.Ping()
}

// Credentials

func (a *Adapter) CreateCredential(ctx context.Context, cred *storage.Credential) error {
	if cred.ID == "" {
		cred.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	cred.CreatedAt = now
	cred.UpdatedAt = now

	_, err := a.db.ExecContext(ctx, `
		INSERT INTO credentials (id, user_id, provider, provider_user_id, token, auth_expired, last_snapshot, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cred.ID, cred.UserID, cred.Provider, cred.ProviderUserID, cred.Token,
		boolToInt(cred.AuthExpired), cred.LastSnapshot, cred.CreatedAt, cred.UpdatedAt)
	if err != nil {
		return apperrors.StoreUnavailableError("failed to create credential", err)
	}
	return nil
}

func (a *Adapter) GetCredential(ctx context.Context, id string) (*storage.Credential, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT id, user_id, provider, provider_user_id, token, auth_expired, last_snapshot, created_at, updated_at
		FROM credentials WHERE id = ?`, id)
	return scanCredential(row)
}

func (a *Adapter) GetCredentialByUserProvider(ctx context.Context, userID, provider string) (*storage.Credential, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT id, user_id, provider, provider_user_id, token, auth_expired, last_snapshot, created_at, updated_at
		FROM credentials WHERE user_id = ? AND provider = ?`, userID, provider)
	return scanCredential(row)
}

func (a *Adapter) ListCredentialsByProvider(ctx context.Context, provider string) ([]*storage.Credential, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, user_id, provider, provider_user_id, token, auth_expired, last_snapshot, created_at, updated_at
		FROM credentials WHERE provider = ? ORDER BY created_at`, provider)
	if err != nil {
		return nil, apperrors.StoreUnavailableError("failed to list credentials", err)
	}
	defer rows.Close()

	var creds []*storage.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}

func (a *Adapter) UpdateSnapshot(ctx context.Context, credentialID string, snapshot, expectedPrev []byte) error {
	// IS compares NULLs as equal, so an absent snapshot CAS works the same
	// way as a populated one.
	res, err := a.db.ExecContext(ctx, `
		UPDATE credentials SET last_snapshot = ?, updated_at = ?
		WHERE id = ? AND last_snapshot IS ?`,
		snapshot, time.Now().UTC(), credentialID, expectedPrev)
	if err != nil {
		return apperrors.StoreUnavailableError("failed to update snapshot", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return apperrors.StoreUnavailableError("failed to update snapshot", err)
	}
	if affected == 0 {
		var exists int
		if err := a.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM credentials WHERE id = ?`, credentialID).Scan(&exists); err == nil && exists == 0 {
			return apperrors.NotFoundError("credential")
		}
		return apperrors.SnapshotConflictError(credentialID)
	}
	return nil
}

func (a *Adapter) FlagCredentialAuthExpired(ctx context.Context, credentialID string, expired bool) error {
	res, err := a.db.ExecContext(ctx, `
		UPDATE credentials SET auth_expired = ?, updated_at = ? WHERE id = ?`,
		boolToInt(expired), time.Now().UTC(), credentialID)
	if err != nil {
		return apperrors.StoreUnavailableError("failed to flag credential", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return apperrors.NotFoundError("credential")
	}
	return nil
}

// Automations

func (a *Adapter) CreateAutomation(ctx context.Context, automation *storage.Automation) (*storage.Automation, error) {
	existing := a.db.QueryRowContext(ctx, `
		SELECT id, user_id, trigger_provider, trigger_interaction, response_provider, response_interaction,
		       trigger_credential_id, response_credential_id, active, created_at
		FROM automations
		WHERE user_id = ? AND trigger_provider = ? AND trigger_interaction = ?
		  AND response_provider = ? AND response_interaction = ?
		  AND trigger_credential_id = ? AND response_credential_id = ?`,
		automation.UserID, automation.TriggerProvider, automation.TriggerInteraction,
		automation.ResponseProvider, automation.ResponseInteraction,
		automation.TriggerCredentialID, automation.ResponseCredentialID)
	if found, err := scanAutomation(existing); err == nil {
		return found, nil
	} else if !apperrors.IsType(err, apperrors.ErrTypeNotFound) {
		return nil, err
	}

	if automation.ID == "" {
		automation.ID = uuid.NewString()
	}
	automation.Active = true
	automation.CreatedAt = time.Now().UTC()

	_, err := a.db.ExecContext(ctx, `
		INSERT INTO automations (id, user_id, trigger_provider, trigger_interaction, response_provider,
		                         response_interaction, trigger_credential_id, response_credential_id, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		automation.ID, automation.UserID, automation.TriggerProvider, automation.TriggerInteraction,
		automation.ResponseProvider, automation.ResponseInteraction,
		automation.TriggerCredentialID, automation.ResponseCredentialID,
		boolToInt(automation.Active), automation.CreatedAt)
	if err != nil {
		return nil, apperrors.StoreUnavailableError("failed to create automation", err)
	}
	return automation, nil
}

func (a *Adapter) GetAutomation(ctx context.Context, id string) (*storage.Automation, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT id, user_id, trigger_provider, trigger_interaction, response_provider, response_interaction,
		       trigger_credential_id, response_credential_id, active, created_at
		FROM automations WHERE id = ?`, id)
	return scanAutomation(row)
}

func (a *Adapter) ListAutomationsByUser(ctx context.Context, userID string) ([]*storage.Automation, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, user_id, trigger_provider, trigger_interaction, response_provider, response_interaction,
		       trigger_credential_id, response_credential_id, active, created_at
		FROM automations WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, apperrors.StoreUnavailableError("failed to list automations", err)
	}
	defer rows.Close()
	return collectAutomations(rows)
}

func (a *Adapter) FindAutomations(ctx context.Context, provider, interaction, triggerCredentialID string) ([]*storage.Automation, error) {
	// Both linked credentials must still resolve for the automation to be
	// eligible for dispatch.
	rows, err := a.db.QueryContext(ctx, `
		SELECT a.id, a.user_id, a.trigger_provider, a.trigger_interaction, a.response_provider,
		       a.response_interaction, a.trigger_credential_id, a.response_credential_id, a.active, a.created_at
		FROM automations a
		JOIN credentials tc ON tc.id = a.trigger_credential_id
		JOIN credentials rc ON rc.id = a.response_credential_id
		WHERE a.trigger_provider = ? AND a.trigger_interaction = ?
		  AND a.trigger_credential_id = ? AND a.active = 1`,
		provider, interaction, triggerCredentialID)
	if err != nil {
		return nil, apperrors.StoreUnavailableError("failed to find automations", err)
	}
	defer rows.Close()
	return collectAutomations(rows)
}

func (a *Adapter) SetAutomationActive(ctx context.Context, id string, active bool) error {
	res, err := a.db.ExecContext(ctx, `UPDATE automations SET active = ? WHERE id = ?`, boolToInt(active), id)
	if err != nil {
		return apperrors.StoreUnavailableError("failed to update automation", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return apperrors.NotFoundError("automation")
	}
	return nil
}

// scanning helpers

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCredential(row rowScanner) (*storage.Credential, error) {
	var cred storage.Credential
	var authExpired int
	err := row.Scan(&cred.ID, &cred.UserID, &cred.Provider, &cred.ProviderUserID, &cred.Token,
		&authExpired, &cred.LastSnapshot, &cred.CreatedAt, &cred.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFoundError("credential")
	}
	if err != nil {
		return nil, apperrors.StoreUnavailableError("failed to scan credential", err)
	}
	cred.AuthExpired = authExpired != 0
	return &cred, nil
}

func scanAutomation(row rowScanner) (*storage.Automation, error) {
	var automation storage.Automation
	var active int
	err := row.Scan(&automation.ID, &automation.UserID, &automation.TriggerProvider, &automation.TriggerInteraction,
		&automation.ResponseProvider, &automation.ResponseInteraction,
		&automation.TriggerCredentialID, &automation.ResponseCredentialID, &active, &automation.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFoundError("automation")
	}
	if err != nil {
		return nil, apperrors.StoreUnavailableError("failed to scan automation", err)
	}
	automation.Active = active != 0
	return &automation, nil
}

func collectAutomations(rows *sql.Rows) ([]*storage.Automation, error) {
	var automations []*storage.Automation
	for rows.Next() {
		automation, err := scanAutomation(rows)
		if err != nil {
			return nil, err
		}
		automations = append(automations, automation)
	}
	return automations, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
