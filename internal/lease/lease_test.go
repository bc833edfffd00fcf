package lease

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	tbl := New(0)
	defer tbl.Stop()

	token, ok := tbl.Acquire(1, time.Minute)
	require.True(t, ok)
	assert.NotEmpty(t, token)
	assert.True(t, tbl.Held(1))

	_, ok = tbl.Acquire(1, time.Minute)
	assert.False(t, ok)

	_, ok = tbl.Acquire(2, time.Minute)
	assert.True(t, ok, "other keys are independent")

	assert.False(t, tbl.Release(1, "not-the-token"))
	assert.True(t, tbl.Release(1, token))
	assert.False(t, tbl.Held(1))

	_, ok = tbl.Acquire(1, time.Minute)
	assert.True(t, ok)
}

func TestExpiredLeaseCanBeTaken(t *testing.T) {
	tbl := New(0)
	defer tbl.Stop()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tbl.now = func() time.Time { return now }

	stale, ok := tbl.Acquire(7, time.Minute)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	fresh, ok := tbl.Acquire(7, time.Minute)
	require.True(t, ok)

	assert.False(t, tbl.Release(7, stale), "stale owner must not release the new lease")
	assert.True(t, tbl.Held(7))
	assert.True(t, tbl.Release(7, fresh))
}

func TestRenewKeepsLeaseAlive(t *testing.T) {
	tbl := New(0)
	defer tbl.Stop()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tbl.now = func() time.Time { return now }

	token, ok := tbl.Acquire(3, time.Minute)
	require.True(t, ok)

	now = now.Add(50 * time.Second)
	assert.True(t, tbl.Renew(3, token, time.Minute))
	assert.False(t, tbl.Renew(3, "someone-else", time.Minute))

	now = now.Add(50 * time.Second)
	_, ok = tbl.Acquire(3, time.Minute)
	assert.False(t, ok, "renewed lease is still live")

	now = now.Add(time.Minute)
	assert.False(t, tbl.Renew(3, "missing", time.Minute))
	_, ok = tbl.Acquire(3, time.Minute)
	assert.True(t, ok)
	assert.False(t, tbl.Renew(3, token, time.Minute), "expired owner lost the lease")
}

func TestCleanupDropsExpired(t *testing.T) {
	tbl := New(0)
	defer tbl.Stop()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tbl.now = func() time.Time { return now }

	tbl.Acquire(1, time.Second)
	tbl.Acquire(2, time.Hour)
	now = now.Add(time.Minute)
	tbl.cleanup()

	assert.Equal(t, 1, tbl.Len())
	assert.True(t, tbl.Held(2))
}

func TestConcurrentAcquireAdmitsOne(t *testing.T) {
	tbl := New(time.Millisecond)
	defer tbl.Stop()

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := tbl.Acquire(42, time.Minute); ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}
