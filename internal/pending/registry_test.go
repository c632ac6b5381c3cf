package pending

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shinyyama/paychat-backend/internal/metrics"
	"github.com/shinyyama/paychat-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestRegistry(ttl time.Duration) (*Registry, *fakeClock, *metrics.Metrics) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := metrics.New(prometheus.NewRegistry())
	r := NewRegistry(ttl, m, WithClock(clock.Now))
	return r, clock, m
}

func TestPutTakeIsSingleUse(t *testing.T) {
	r, _, m := newTestRegistry(time.Minute)

	require.NoError(t, r.Put("n1", Purchase{Mode: Interval{Duration: "PT1M"}, BuyerUID: "alice"}))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PendingPurchases))

	p, ok := r.Take("n1")
	require.True(t, ok)
	assert.Equal(t, "alice", p.BuyerUID)
	assert.Equal(t, model.PurchaseModeInterval, p.Mode.Kind())
	assert.Equal(t, "PT1M", DurationOf(p.Mode))
	assert.False(t, p.CreatedAt.IsZero())

	_, ok = r.Take("n1")
	assert.False(t, ok)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.PendingPurchases))
}

func TestPutRejectsLiveDuplicate(t *testing.T) {
	r, clock, _ := newTestRegistry(time.Minute)

	require.NoError(t, r.Put("n1", Purchase{Mode: OneShot{}, BuyerUID: "alice"}))
	assert.ErrorIs(t, r.Put("n1", Purchase{Mode: OneShot{}, BuyerUID: "mallory"}), ErrNonceReused)

	clock.Advance(time.Minute)
	require.NoError(t, r.Put("n1", Purchase{Mode: OneShot{}, BuyerUID: "bob"}))
	p, ok := r.Take("n1")
	require.True(t, ok)
	assert.Equal(t, "bob", p.BuyerUID)
}

func TestTakeDropsExpired(t *testing.T) {
	r, clock, m := newTestRegistry(15 * time.Minute)

	require.NoError(t, r.Put("n1", Purchase{Mode: OneShot{}}))
	clock.Advance(15 * time.Minute)

	_, ok := r.Take("n1")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PendingEvicted))
}

func TestTakeIfKeepsOnMismatch(t *testing.T) {
	r, _, _ := newTestRegistry(time.Minute)
	require.NoError(t, r.Put("n1", Purchase{Mode: OneShot{}, BuyerUID: "alice"}))

	_, ok := r.TakeIf("n1", func(p Purchase) bool { return p.BuyerUID == "bob" })
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())

	_, ok = r.TakeIf("n1", func(p Purchase) bool { return p.BuyerUID == "alice" })
	assert.True(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestSweep(t *testing.T) {
	r, clock, _ := newTestRegistry(10 * time.Minute)

	require.NoError(t, r.Put("old", Purchase{Mode: OneShot{}}))
	clock.Advance(6 * time.Minute)
	require.NoError(t, r.Put("new", Purchase{Mode: Renewal{ChatID: 7, Duration: "PT1H"}}))
	clock.Advance(5 * time.Minute)

	assert.Equal(t, 1, r.Sweep())
	assert.Equal(t, 1, r.Len())
	p, ok := r.Take("new")
	require.True(t, ok)
	assert.Equal(t, Renewal{ChatID: 7, Duration: "PT1H"}, p.Mode)
}

func TestConcurrentNoncesAreIsolated(t *testing.T) {
	r, _, _ := newTestRegistry(time.Minute)

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			nonce := fmt.Sprintf("n%d", i)
			require.NoError(t, r.Put(nonce, Purchase{Mode: OneShot{}, BuyerUID: nonce}))
		}(i)
	}
	wg.Wait()
	require.Equal(t, n, r.Len())

	var taken sync.Map
	for i := 0; i < n; i++ {
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				nonce := fmt.Sprintf("n%d", i)
				if p, ok := r.Take(nonce); ok {
					_, dup := taken.LoadOrStore(nonce, p.BuyerUID)
					assert.False(t, dup, "nonce %s taken twice", nonce)
					assert.Equal(t, nonce, p.BuyerUID)
				}
			}(i)
		}
	}
	wg.Wait()

	count := 0
	taken.Range(func(_, _ any) bool { count++; return true })
	assert.Equal(t, n, count)
	assert.Equal(t, 0, r.Len())
}

func TestJanitorLifecycle(t *testing.T) {
	r := NewRegistry(time.Millisecond, nil)
	require.NoError(t, r.Put("n1", Purchase{Mode: OneShot{}}))

	r.Start(5 * time.Millisecond)
	assert.Eventually(t, func() bool { return r.Len() == 0 }, time.Second, 5*time.Millisecond)

	r.Close()
	r.Close()
}

func TestCloseWithoutStart(t *testing.T) {
	r := NewRegistry(0, nil)
	r.Close()
	assert.Equal(t, DefaultTTL, r.ttl)
}

func TestPutStampsCreatedAtFromRegistryClock(t *testing.T) {
	r, clock, _ := newTestRegistry(time.Minute)

	stale := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, r.Put("n1", Purchase{Mode: OneShot{}, BuyerUID: "alice", CreatedAt: stale}))

	p, ok := r.Take("n1")
	require.True(t, ok, "a caller-supplied timestamp must not age the entry")
	assert.Equal(t, clock.Now(), p.CreatedAt)
}
