package detector

import (
	"context"
	"time"

	apperrors "streamwire/internal/common/errors"
	"streamwire/internal/common/logging"
	"streamwire/internal/dispatch"
	"streamwire/internal/providers"
	"streamwire/internal/snapshot"
	"streamwire/internal/storage"
)

// retryDelay is the pause between in-tick retries of a transient fetch
// failure.
var retryDelay = time.Second

// runPass executes one detection pass for a single credential: fetch, diff,
// dispatch, persist, strictly in that order. A failure here never affects the
// other credentials of the tick.
func (r *Runner) runPass(ctx context.Context, provider providers.Provider, cred *storage.Credential) {
	logger := r.logger.WithFields(
		logging.String("provider", provider.Name()),
		logging.String("credential_id", cred.ID),
	)

	if cred.AuthExpired {
		logger.Debug("Skipping credential flagged auth-expired")
		return
	}

	// Single-flight per credential: two concurrent passes diffing against
	// the same stale snapshot would double-emit transitions.
	if !r.guard.TryAcquire(cred.ID) {
		logger.Debug("Skipping credential, pass already in flight")
		return
	}
	defer r.guard.Release(cred.ID)

	entities, err := r.fetchWithRetry(ctx, provider, cred)
	if err != nil {
		switch {
		case apperrors.IsAuthExpired(err):
			logger.Warn("Access token rejected, flagging credential for remediation")
			if flagErr := r.store.FlagCredentialAuthExpired(ctx, cred.ID, true); flagErr != nil {
				logger.Error("Failed to flag credential", flagErr)
			}
		case apperrors.IsRateLimited(err):
			logger.Warn("Provider rate limit hit, skipping credential this tick")
		default:
			logger.Error("Fetch failed, skipping credential this tick", err)
		}
		return
	}

	prev, err := snapshot.Decode(cred.LastSnapshot)
	if err != nil {
		// A snapshot we can no longer read is re-baselined rather than
		// guessed at; the alternative is an event storm from an empty diff.
		logger.Error("Stored snapshot unreadable, re-baselining", err)
		prev = nil
	}

	// First observation is a baseline, not a state change: persist and
	// emit nothing.
	if prev == nil {
		if err := r.persist(ctx, provider.Name(), cred, entities); err != nil {
			logger.Error("Failed to persist baseline snapshot", err)
		} else {
			logger.Info("Baseline snapshot captured", logging.Int("active", len(entities)))
		}
		return
	}

	started, ended := snapshot.Diff(prev, entities)

	// Dispatch before persisting. If we crash after dispatch but before the
	// snapshot commit, the next tick re-derives and re-sends the same
	// transitions; duplicates are tolerated, losses are not.
	for _, entity := range started {
		if !r.dispatchEvent(ctx, logger, cred, provider.Name(), dispatch.KindStarted, entity) {
			return
		}
	}
	for _, entity := range ended {
		if !r.dispatchEvent(ctx, logger, cred, provider.Name(), dispatch.KindEnded, entity) {
			return
		}
	}

	// Full overwrite even when nothing changed, so snapshot staleness stays
	// bounded by the tick interval.
	if err := r.persist(ctx, provider.Name(), cred, entities); err != nil {
		if apperrors.IsConflict(err) {
			logger.Warn("Snapshot conflict, a concurrent pass committed first")
		} else {
			logger.Error("Failed to persist snapshot", err)
		}
		return
	}

	if len(started) > 0 || len(ended) > 0 {
		logger.Info("Transitions detected",
			logging.Int("started", len(started)),
			logging.Int("ended", len(ended)),
		)
	}
}

// dispatchEvent hands one transition to the dispatcher. Returns false when
// the automation index itself was unreachable; the pass then aborts without
// committing so the next tick re-derives the same transitions.
func (r *Runner) dispatchEvent(ctx context.Context, logger logging.Logger,
	cred *storage.Credential, providerName string, kind dispatch.EventKind, entity providers.Entity) bool {

	_, err := r.dispatcher.Dispatch(ctx, dispatch.Event{
		CredentialID: cred.ID,
		Provider:     providerName,
		Kind:         kind,
		Entity:       entity,
	})
	if err != nil {
		logger.Error("Dispatch failed, snapshot left untouched for retry", err,
			logging.String("entity", entity.Key),
			logging.String("kind", string(kind)),
		)
		return false
	}
	return true
}

// fetchWithRetry calls the provider, retrying only transient failures up to
// the configured budget. Auth and rate-limit failures surface immediately.
func (r *Runner) fetchWithRetry(ctx context.Context, provider providers.Provider,
	cred *storage.Credential) ([]providers.Entity, error) {

	var lastErr error
	for attempt := 0; attempt <= r.opts.FetchRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
		}

		entities, err := provider.FetchCurrentState(ctx, cred)
		if err == nil {
			return entities, nil
		}
		if !apperrors.IsTransient(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// persist replaces the credential's snapshot with a fresh capture of the
// current entity set, compare-and-swapped against the blob read at the start
// of the pass.
func (r *Runner) persist(ctx context.Context, providerName string,
	cred *storage.Credential, entities []providers.Entity) error {

	blob, err := snapshot.New(providerName, entities).Encode()
	if err != nil {
		return err
	}
	return r.store.UpdateSnapshot(ctx, cred.ID, blob, cred.LastSnapshot)
}
