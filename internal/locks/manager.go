// Package locks provides the locking used by the detector: a distributed
// tick lock backed by Redis so overlapping scheduler runs across instances
// can be skipped, and an in-process single-flight guard that ensures at most
// one pass is ever in flight per credential.
//
// Distributed locks automatically renew themselves to prevent expiration
// during long operations and clean up gracefully when released.
//
// Example usage:
//
//	manager := locks.NewManager(redisClient)
//	defer manager.Close()
//
//	lock, err := manager.AcquireLock(ctx, "detector-tick", 30*time.Second)
//	if err != nil {
//		// another instance holds the tick, skip this run
//		return
//	}
//	defer lock.Release(ctx)
package locks

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RedisLockClient defines the interface that Manager needs from Redis for lock operations
type RedisLockClient interface {
	AcquireLock(ctx context.Context, key string, expiration time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
	ExtendLock(ctx context.Context, key string, expiration time.Duration) error
}

// Manager manages distributed locks using Redis as the coordination backend.
// It handles lock acquisition, automatic renewal, and cleanup for multiple locks.
//
// Manager is safe for concurrent use by multiple goroutines.
type Manager struct {
	redis      RedisLockClient       // Redis client for distributed coordination
	localLocks map[string]*LocalLock // Local tracking of acquired locks
	mutex      sync.RWMutex          // Protects localLocks map
}

// LocalLock represents a distributed lock that has been acquired by this
// instance. It maintains local state and context for automatic renewal and
// cleanup. Use Manager.AcquireLock to obtain lock instances.
type LocalLock struct {
	manager    *Manager
	key        string             // The lock key in Redis
	expiration time.Duration      // Lock expiration duration
	acquired   time.Time          // When the lock was acquired
	ctx        context.Context    // Context for canceling renewal
	cancel     context.CancelFunc // Function to cancel renewal goroutine
	released   sync.Once
}

// Lock defines the interface for distributed locks.
type Lock interface {
	// Key returns the unique identifier for this lock.
	Key() string

	// Release explicitly releases the lock, stopping automatic renewal
	// and removing it from Redis. The lock should not be used after
	// calling Release.
	Release(ctx context.Context) error
}

// NewManager creates a new distributed lock manager using the provided Redis
// client. The Redis client should be connected before passing it in.
func NewManager(redisClient RedisLockClient) *Manager {
	return &Manager{
		redis:      redisClient,
		localLocks: make(map[string]*LocalLock),
	}
}

// AcquireLock attempts to acquire a distributed lock with the specified key
// and expiration.
//
// If successful, a background goroutine renews the lock at 1/3 of the
// expiration interval (minimum 1 second) to prevent accidental expiration
// while the holder is still working. If the lock is already held by another
// process, an error is returned.
//
// The acquired lock should be released using Lock.Release() when no longer
// needed.
func (m *Manager) AcquireLock(ctx context.Context, key string, expiration time.Duration) (Lock, error) {
	acquired, err := m.redis.AcquireLock(ctx, key, expiration)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire distributed lock: %w", err)
	}

	if !acquired {
		return nil, fmt.Errorf("lock already held by another process")
	}

	lockCtx, cancel := context.WithCancel(context.Background())
	lock := &LocalLock{
		manager:    m,
		key:        key,
		expiration: expiration,
		acquired:   time.Now(),
		ctx:        lockCtx,
		cancel:     cancel,
	}

	m.mutex.Lock()
	m.localLocks[key] = lock
	m.mutex.Unlock()

	go m.renewLock(lock)

	return lock, nil
}

// renewLock runs in a background goroutine to automatically renew a lock
// before it expires. If renewal fails (e.g. Redis connectivity loss) the lock
// is released locally so a stale lock is never assumed held.
func (m *Manager) renewLock(lock *LocalLock) {
	renewInterval := lock.expiration / 3
	if renewInterval < time.Second {
		renewInterval = time.Second
	}

	ticker := time.NewTicker(renewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-lock.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := m.redis.ExtendLock(ctx, lock.key, lock.expiration)
			cancel()

			if err != nil {
				// Lock lost, clean up
				m.releaseLock(lock)
				return
			}
		}
	}
}

// releaseLock performs the actual cleanup of a lock both locally and in Redis.
// Safe to call multiple times on the same lock.
func (m *Manager) releaseLock(lock *LocalLock) {
	lock.released.Do(func() {
		m.mutex.Lock()
		delete(m.localLocks, lock.key)
		m.mutex.Unlock()

		lock.cancel()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.redis.ReleaseLock(ctx, lock.key)
	})
}

// Close releases all locks held by this manager. Call before shutdown.
func (m *Manager) Close() {
	m.mutex.RLock()
	held := make([]*LocalLock, 0, len(m.localLocks))
	for _, lock := range m.localLocks {
		held = append(held, lock)
	}
	m.mutex.RUnlock()

	for _, lock := range held {
		m.releaseLock(lock)
	}
}

// HeldCount returns the number of locks currently held by this instance.
func (m *Manager) HeldCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.localLocks)
}

// Key returns the unique identifier for this lock.
func (l *LocalLock) Key() string {
	return l.key
}

// Release explicitly releases the lock.
func (l *LocalLock) Release(ctx context.Context) error {
	l.manager.releaseLock(l)
	return nil
}
