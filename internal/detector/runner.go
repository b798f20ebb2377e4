// Package detector implements the polling state-change detector. A recurring
// tick enumerates every credential of every registered provider, fetches the
// provider's current set of active entities, diffs it against the last stored
// snapshot, hands the resulting transition events to the dispatcher, and only
// then persists the new snapshot.
//
// Persisting after dispatch is deliberate: if the process dies between fetch
// and dispatch, the next tick re-derives the same transitions from the old
// snapshot. A duplicate notification is acceptable, a silently lost one is
// not.
package detector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"streamwire/internal/common/logging"
	"streamwire/internal/dispatch"
	"streamwire/internal/locks"
	"streamwire/internal/providers"
	"streamwire/internal/storage"
)

// tickLockKey is the distributed lock key guarding whole ticks when the
// use-lock mode is enabled.
const tickLockKey = "detector-tick"

// TickLocker is the slice of the lock manager the runner needs. Nil disables
// distributed coordination entirely.
type TickLocker interface {
	AcquireLock(ctx context.Context, key string, expiration time.Duration) (locks.Lock, error)
}

// Options configures the runner.
type Options struct {
	// Interval is the time between ticks.
	Interval time.Duration
	// Workers bounds how many per-credential passes run concurrently
	// within one tick, to respect provider rate limits.
	Workers int
	// UseLock makes a tick that is still running when the next is due be
	// skipped (via the distributed tick lock) instead of running
	// concurrently.
	UseLock bool
	// FetchRetries is the in-tick retry budget for transient provider
	// failures. Auth and rate-limit failures are never retried in-tick.
	FetchRetries int
	// TickTimeout is the deadline for one full tick. In-flight provider
	// calls are cancelled when it expires; snapshots stay untouched so the
	// next tick retries from the last good state.
	TickTimeout time.Duration
}

// Runner drives the detection loop.
type Runner struct {
	store      storage.Storage
	registry   *providers.Registry
	dispatcher *dispatch.Dispatcher
	tickLock   TickLocker
	guard      *locks.Guard
	opts       Options
	logger     logging.Logger

	cron    *cron.Cron
	entryID cron.EntryID

	mu        sync.Mutex
	isRunning bool
	tickCount int64
}

// NewRunner wires a detection runner. tickLock may be nil when no Redis is
// configured; per-credential single-flight is enforced in-process either way.
func NewRunner(store storage.Storage, registry *providers.Registry,
	dispatcher *dispatch.Dispatcher, tickLock TickLocker, opts Options) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.TickTimeout == 0 {
		opts.TickTimeout = time.Minute
	}

	return &Runner{
		store:      store,
		registry:   registry,
		dispatcher: dispatcher,
		tickLock:   tickLock,
		guard:      locks.NewGuard(),
		opts:       opts,
		logger:     logging.GetGlobalLogger().WithFields(logging.String("component", "detector")),
	}
}

// Start schedules the recurring tick. Returns an error if already running.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isRunning {
		return fmt.Errorf("detector already running")
	}

	r.cron = cron.New()
	entryID, err := r.cron.AddFunc(fmt.Sprintf("@every %s", r.opts.Interval), func() {
		r.tick(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to schedule detector: %w", err)
	}
	r.entryID = entryID
	r.cron.Start()
	r.isRunning = true

	r.logger.Info("Detector started",
		logging.Field{Key: "interval", Value: r.opts.Interval.String()},
		logging.Int("workers", r.opts.Workers),
		logging.Field{Key: "use_lock", Value: r.opts.UseLock},
	)
	return nil
}

// Stop halts the schedule and waits for a running tick to finish. The wait
// happens outside the mutex: a running tick takes r.mu to bump the tick
// counter, so waiting while holding it would deadlock against that tick.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return
	}
	r.isRunning = false
	c := r.cron
	r.mu.Unlock()

	<-c.Stop().Done()
	r.logger.Info("Detector stopped")
}

// TickCount returns how many ticks have executed (not skipped).
func (r *Runner) TickCount() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tickCount
}

// tick runs one full detection pass across all providers and credentials.
func (r *Runner) tick(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.TickTimeout)
	defer cancel()

	if r.opts.UseLock && r.tickLock != nil {
		lock, err := r.tickLock.AcquireLock(ctx, tickLockKey, r.opts.TickTimeout)
		if err != nil {
			r.logger.Debug("Tick skipped, lock held elsewhere", logging.Err(err))
			return
		}
		defer lock.Release(ctx)
	}

	r.mu.Lock()
	r.tickCount++
	r.mu.Unlock()

	var wg sync.WaitGroup
	slots := make(chan struct{}, r.opts.Workers)

	for _, providerName := range r.registry.Names() {
		provider, err := r.registry.Get(providerName)
		if err != nil {
			continue
		}

		creds, err := r.store.ListCredentialsByProvider(ctx, providerName)
		if err != nil {
			r.logger.Error("Failed to list credentials", err,
				logging.String("provider", providerName))
			continue
		}

		for _, cred := range creds {
			wg.Add(1)
			slots <- struct{}{}
			go func(provider providers.Provider, cred *storage.Credential) {
				defer wg.Done()
				defer func() { <-slots }()
				r.runPass(ctx, provider, cred)
			}(provider, cred)
		}
	}

	wg.Wait()
}

// RunTick executes a single tick synchronously. Used by tests and by the
// scheduler callback indirectly via tick.
func (r *Runner) RunTick(ctx context.Context) {
	r.tick(ctx)
}
