package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	apperrors "streamwire/internal/common/errors"
	"streamwire/internal/storage"
)

type Adapter struct {
	db     *sql.DB
	config *Config
}

func NewAdapter(config *Config) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL config: %w", err)
	}

	db, err := sql.Open("pgx", config.GetConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

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
		auth_expired BOOLEAN NOT NULL DEFAULT FALSE,
		last_snapshot BYTEA,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
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
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		cred.ID, cred.UserID, cred.Provider, cred.ProviderUserID, cred.Token,
		cred.AuthExpired, cred.LastSnapshot, cred.CreatedAt, cred.UpdatedAt)
	if err != nil {
		return apperrors.StoreUnavailableError("failed to create credential", err)
	}
	return nil
}

func (a *Adapter) GetCredential(ctx context.Context, id string) (*storage.Credential, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT id, user_id, provider, provider_user_id, token, auth_expired, last_snapshot, created_at, updated_at
		FROM credentials WHERE id = $1`, id)
	return scanCredential(row)
}

func (a *Adapter) GetCredentialByUserProvider(ctx context.Context, userID, provider string) (*storage.Credential, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT id, user_id, provider, provider_user_id, token, auth_expired, last_snapshot, created_at, updated_at
		FROM credentials WHERE user_id = $1 AND provider = $2`, userID, provider)
	return scanCredential(row)
}

func (a *Adapter) ListCredentialsByProvider(ctx context.Context, provider string) ([]*storage.Credential, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, user_id, provider, provider_user_id, token, auth_expired, last_snapshot, created_at, updated_at
		FROM credentials WHERE provider = $1 ORDER BY created_at`, provider)
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
	res, err := a.db.ExecContext(ctx, `
		UPDATE credentials SET last_snapshot = $1, updated_at = $2
		WHERE id = $3 AND last_snapshot IS NOT DISTINCT FROM $4`,
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
			`SELECT COUNT(1) FROM credentials WHERE id = $1`, credentialID).Scan(&exists); err == nil && exists == 0 {
			return apperrors.NotFoundError("credential")
		}
		return apperrors.SnapshotConflictError(credentialID)
	}
	return nil
}

func (a *Adapter) FlagCredentialAuthExpired(ctx context.Context, credentialID string, expired bool) error {
	res, err := a.db.ExecContext(ctx, `
		UPDATE credentials SET auth_expired = $1, updated_at = $2 WHERE id = $3`,
		expired, time.Now().UTC(), credentialID)
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
		WHERE user_id = $1 AND trigger_provider = $2 AND trigger_interaction = $3
		  AND response_provider = $4 AND response_interaction = $5
		  AND trigger_credential_id = $6 AND response_credential_id = $7`,
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		automation.ID, automation.UserID, automation.TriggerProvider, automation.TriggerInteraction,
		automation.ResponseProvider, automation.ResponseInteraction,
		automation.TriggerCredentialID, automation.ResponseCredentialID,
		automation.Active, automation.CreatedAt)
	if err != nil {
		return nil, apperrors.StoreUnavailableError("failed to create automation", err)
	}
	return automation, nil
}

func (a *Adapter) GetAutomation(ctx context.Context, id string) (*storage.Automation, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT id, user_id, trigger_provider, trigger_interaction, response_provider, response_interaction,
		       trigger_credential_id, response_credential_id, active, created_at
		FROM automations WHERE id = $1`, id)
	return scanAutomation(row)
}

func (a *Adapter) ListAutomationsByUser(ctx context.Context, userID string) ([]*storage.Automation, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, user_id, trigger_provider, trigger_interaction, response_provider, response_interaction,
		       trigger_credential_id, response_credential_id, active, created_at
		FROM automations WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, apperrors.StoreUnavailableError("failed to list automations", err)
	}
	defer rows.Close()
	return collectAutomations(rows)
}

func (a *Adapter) FindAutomations(ctx context.Context, provider, interaction, triggerCredentialID string) ([]*storage.Automation, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT a.id, a.user_id, a.trigger_provider, a.trigger_interaction, a.response_provider,
		       a.response_interaction, a.trigger_credential_id, a.response_credential_id, a.active, a.created_at
		FROM automations a
		JOIN credentials tc ON tc.id = a.trigger_credential_id
		JOIN credentials rc ON rc.id = a.response_credential_id
		WHERE a.trigger_provider = $1 AND a.trigger_interaction = $2
		  AND a.trigger_credential_id = $3 AND a.active = TRUE`,
		provider, interaction, triggerCredentialID)
	if err != nil {
		return nil, apperrors.StoreUnavailableError("failed to find automations", err)
	}
	defer rows.Close()
	return collectAutomations(rows)
}

func (a *Adapter) SetAutomationActive(ctx context.Context, id string, active bool) error {
	res, err := a.db.ExecContext(ctx, `UPDATE automations SET active = $1 WHERE id = $2`, active, id)
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
	err := row.Scan(&cred.ID, &cred.UserID, &cred.Provider, &cred.ProviderUserID, &cred.Token,
		&cred.AuthExpired, &cred.LastSnapshot, &cred.CreatedAt, &cred.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFoundError("credential")
	}
	if err != nil {
		return nil, apperrors.StoreUnavailableError("failed to scan credential", err)
	}
	return &cred, nil
}

func scanAutomation(row rowScanner) (*storage.Automation, error) {
	var automation storage.Automation
	err := row.Scan(&automation.ID, &automation.UserID, &automation.TriggerProvider, &automation.TriggerInteraction,
		&automation.ResponseProvider, &automation.ResponseInteraction,
		&automation.TriggerCredentialID, &automation.ResponseCredentialID, &automation.Active, &automation.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFoundError("automation")
	}
	if err != nil {
		return nil, apperrors.StoreUnavailableError("failed to scan automation", err)
	}
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
