package locks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRedisLockClient scripts lock outcomes per key.
type mockRedisLockClient struct {
	mu        sync.Mutex
	held      map[string]bool
	acquireErr error
	extendErr  error
	extends    int
	releases   int
}

func newMockRedisLockClient() *mockRedisLockClient {
	return &mockRedisLockClient{held: make(map[string]bool)}
}

func (m *mockRedisLockClient) AcquireLock(ctx context.Context, key string, expiration time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.acquireErr != nil {
		return false, m.acquireErr
	}
	if m.held[key] {
		return false, nil
	}
	m.held[key] = true
	return true, nil
}

func (m *mockRedisLockClient) ReleaseLock(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.releases++
	delete(m.held, key)
	return nil
}

func (m *mockRedisLockClient) ExtendLock(ctx context.Context, key string, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.extends++
	return m.extendErr
}

func (m *mockRedisLockClient) extendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.extends
}

func (m *mockRedisLockClient) releaseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releases
}

func TestManager_AcquireAndRelease(t *testing.T) {
	client := newMockRedisLockClient()
	manager := NewManager(client)
	defer manager.Close()

	lock, err := manager.AcquireLock(context.Background(), "detector-tick", 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "detector-tick", lock.Key())
	assert.Equal(t, 1, manager.HeldCount())

	require.NoError(t, lock.Release(context.Background()))
	assert.Equal(t, 0, manager.HeldCount())
	assert.Equal(t, 1, client.releaseCount())
}

func TestManager_AcquireHeldLockFails(t *testing.T) {
	client := newMockRedisLockClient()
	client.held["detector-tick"] = true

	manager := NewManager(client)
	defer manager.Close()

	_, err := manager.AcquireLock(context.Background(), "detector-tick", 30*time.Second)
	assert.Error(t, err)
	assert.Equal(t, 0, manager.HeldCount())
}

func TestManager_AcquireRedisError(t *testing.T) {
	client := newMockRedisLockClient()
	client.acquireErr = errors.New("connection refused")

	manager := NewManager(client)
	defer manager.Close()

	_, err := manager.AcquireLock(context.Background(), "detector-tick", 30*time.Second)
	assert.Error(t, err)
}

func TestManager_RenewalExtendsLock(t *testing.T) {
	client := newMockRedisLockClient()
	manager := NewManager(client)
	defer manager.Close()

	// 3s expiration renews at the 1 second floor.
	lock, err := manager.AcquireLock(context.Background(), "detector-tick", 3*time.Second)
	require.NoError(t, err)
	defer lock.Release(context.Background())

	assert.Eventually(t, func() bool {
		return client.extendCount() >= 1
	}, 3*time.Second, 50*time.Millisecond)
}

func TestManager_FailedRenewalReleasesLock(t *testing.T) {
	client := newMockRedisLockClient()
	client.extendErr = errors.New("lock lost")

	manager := NewManager(client)
	defer manager.Close()

	_, err := manager.AcquireLock(context.Background(), "detector-tick", 3*time.Second)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return manager.HeldCount() == 0
	}, 3*time.Second, 50*time.Millisecond)
}

func TestManager_DoubleReleaseIsSafe(t *testing.T) {
	client := newMockRedisLockClient()
	manager := NewManager(client)
	defer manager.Close()

	lock, err := manager.AcquireLock(context.Background(), "detector-tick", 30*time.Second)
	require.NoError(t, err)

	require.NoError(t, lock.Release(context.Background()))
	require.NoError(t, lock.Release(context.Background()))
	assert.Equal(t, 1, client.releaseCount())
}

func TestManager_CloseReleasesAllLocks(t *testing.T) {
	client := newMockRedisLockClient()
	manager := NewManager(client)

	for _, key := range []string{"a", "b", "c"} {
		_, err := manager.AcquireLock(context.Background(), key, 30*time.Second)
		require.NoError(t, err)
	}
	require.Equal(t, 3, manager.HeldCount())

	manager.Close()
	assert.Equal(t, 0, manager.HeldCount())
	assert.Equal(t, 3, client.releaseCount())
}
