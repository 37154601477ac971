// ABOUTME: Tests for the forwarded-code cache.
// ABOUTME: Validates window boundaries, fixed-window semantics, sweeps, eviction and concurrency.

package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func at(seconds int) time.Time {
	return t0.Add(time.Duration(seconds) * time.Second)
}

func TestCache_ShouldForward_Unknown(t *testing.T) {
	cache := New(5*time.Minute, 100)
	defer cache.Close()

	assert.True(t, cache.ShouldForward("never-seen", at(0)))
}

func TestCache_ShouldForward_WithinWindow(t *testing.T) {
	cache := New(300*time.Second, 100)
	defer cache.Close()

	cache.MarkForwarded("abc-123", at(0))

	assert.False(t, cache.ShouldForward("abc-123", at(1)))
	assert.False(t, cache.ShouldForward("abc-123", at(300)), "boundary is still inside the window")
	assert.True(t, cache.ShouldForward("abc-123", at(301)))
}

func TestCache_ShouldForward_IsPure(t *testing.T) {
	cache := New(300*time.Second, 100)
	defer cache.Close()

	cache.MarkForwarded("abc", at(0))
	for i := 0; i < 5; i++ {
		cache.ShouldForward("abc", at(400))
		cache.ShouldForward("other", at(400))
	}

	assert.Equal(t, 1, cache.Len())
	ts, ok := cache.LastForwarded("abc")
	require.True(t, ok)
	assert.Equal(t, at(0), ts)
}

func TestCache_CaseSensitive(t *testing.T) {
	cache := New(300*time.Second, 100)
	defer cache.Close()

	cache.MarkForwarded("ABC", at(0))

	assert.False(t, cache.ShouldForward("ABC", at(1)))
	assert.True(t, cache.ShouldForward("abc", at(1)))
}

func TestCache_FixedWindow(t *testing.T) {
	// Suppressed lookups never extend the deadline.
	cache := New(300*time.Second, 100)
	defer cache.Close()

	cache.MarkForwarded("code", at(0))
	assert.False(t, cache.ShouldForward("code", at(100)))
	assert.False(t, cache.ShouldForward("code", at(250)))
	assert.False(t, cache.ShouldForward("code", at(299)))

	assert.True(t, cache.ShouldForward("code", at(301)))
}

func TestCache_Scenario_ReforwardResetsTimestamp(t *testing.T) {
	cache := New(300*time.Second, 100)
	defer cache.Close()

	require.True(t, cache.ShouldForward("abc-123", at(0)))
	cache.MarkForwarded("abc-123", at(0))

	assert.False(t, cache.ShouldForward("abc-123", at(100)))

	require.True(t, cache.ShouldForward("abc-123", at(400)))
	cache.MarkForwarded("abc-123", at(400))

	ts, ok := cache.LastForwarded("abc-123")
	require.True(t, ok)
	assert.Equal(t, at(400), ts)
	assert.Equal(t, 1, cache.Len(), "at most one entry per code")
	assert.False(t, cache.ShouldForward("abc-123", at(650)))
}

func TestCache_ZeroWindowNeverExpires(t *testing.T) {
	cache := New(0, 100)
	defer cache.Close()

	cache.MarkForwarded("forever", at(0))

	assert.False(t, cache.ShouldForward("forever", at(1_000_000)))
	assert.Equal(t, 0, cache.Sweep(at(1_000_000)))
	assert.Equal(t, 1, cache.Len())
}

func TestCache_Sweep_RemovesOnlyExpired(t *testing.T) {
	cache := New(100*time.Second, 100)
	defer cache.Close()

	cache.MarkForwarded("a", at(0))
	cache.MarkForwarded("b", at(10))
	cache.MarkForwarded("c", at(50))
	cache.MarkForwarded("d", at(90))

	removed := cache.Sweep(at(120))

	assert.Equal(t, 2, removed)
	assert.Equal(t, 2, cache.Len())
	_, ok := cache.LastForwarded("a")
	assert.False(t, ok)
	_, ok = cache.LastForwarded("c")
	assert.True(t, ok)
}

func TestCache_Sweep_AfterRemark(t *testing.T) {
	// Re-forwarding moves the entry to the young end of the list.
	cache := New(100*time.Second, 100)
	defer cache.Close()

	cache.MarkForwarded("a", at(0))
	cache.MarkForwarded("b", at(10))
	cache.MarkForwarded("a", at(105))

	assert.Equal(t, 1, cache.Sweep(at(150)))
	_, ok := cache.LastForwarded("a")
	assert.True(t, ok)
	_, ok = cache.LastForwarded("b")
	assert.False(t, ok)
}

func TestCache_Sweep_OutOfOrderMarks(t *testing.T) {
	cache := New(100*time.Second, 100)
	defer cache.Close()

	cache.MarkForwarded("late", at(50))
	cache.MarkForwarded("early", at(0))
	cache.MarkForwarded("middle", at(20))

	assert.Equal(t, 2, cache.Sweep(at(125)))
	_, ok := cache.LastForwarded("late")
	assert.True(t, ok)
}

func TestCache_Eviction_ReclaimsExpired(t *testing.T) {
	cache := New(10*time.Second, 3)
	defer cache.Close()

	cache.MarkForwarded("first", at(0))
	cache.MarkForwarded("second", at(1))
	cache.MarkForwarded("third", at(12))
	cache.MarkForwarded("fourth", at(13))

	assert.Equal(t, 2, cache.Len(), "expired entries reclaimed when full")
	_, ok := cache.LastForwarded("first")
	assert.False(t, ok)
	assert.False(t, cache.ShouldForward("third", at(14)))
	assert.False(t, cache.ShouldForward("fourth", at(14)))
}

func TestCache_Eviction_NeverDropsLiveEntries(t *testing.T) {
	cache := New(300*time.Second, 2)
	defer cache.Close()

	cache.MarkForwarded("a", at(0))
	cache.MarkForwarded("b", at(1))
	cache.MarkForwarded("c", at(2))

	assert.Equal(t, 3, cache.Len(), "bound is exceeded rather than dropping a live code")
	for _, code := range []string{"a", "b", "c"} {
		assert.False(t, cache.ShouldForward(code, at(3)), code)
	}
}

func TestCache_Eviction_ZeroWindowNeverDrops(t *testing.T) {
	cache := New(0, 1)
	defer cache.Close()

	cache.MarkForwarded("a", at(0))
	cache.MarkForwarded("b", at(100000))

	assert.False(t, cache.ShouldForward("a", at(200000)))
	assert.False(t, cache.ShouldForward("b", at(200000)))
}

func TestCache_Eviction_RemarkDoesNotEvict(t *testing.T) {
	cache := New(5*time.Minute, 2)
	defer cache.Close()

	cache.MarkForwarded("a", at(0))
	cache.MarkForwarded("b", at(1))
	cache.MarkForwarded("a", at(2))

	assert.Equal(t, 2, cache.Len())
	assert.False(t, cache.ShouldForward("b", at(3)))
}

func TestCache_Sweeper(t *testing.T) {
	cache := New(10*time.Millisecond, 100)
	defer cache.Close()

	cache.MarkForwarded("key", time.Now())
	cache.StartSweeper(5*time.Millisecond, time.Now)

	assert.Eventually(t, func() bool {
		return cache.Len() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestCache_Concurrent(t *testing.T) {
	cache := New(5*time.Minute, 1000)
	defer cache.Close()

	const numGoroutines = 50
	const opsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < opsPerGoroutine; j++ {
				code := fmt.Sprintf("code-%d-%d", id%10, j%10)
				now := at(j)
				if cache.ShouldForward(code, now) {
					cache.MarkForwarded(code, now)
				}
				cache.Sweep(now)
			}
		}(i)
	}

	wg.Wait()

	cache.MarkForwarded("final", at(1000))
	assert.False(t, cache.ShouldForward("final", at(1001)))
}

func TestCache_Close(t *testing.T) {
	cache := New(5*time.Minute, 100)
	cache.StartSweeper(time.Millisecond, time.Now)

	cache.Close()
	cache.Close()
}
