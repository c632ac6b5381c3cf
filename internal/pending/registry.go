// Package pending holds purchases that wait for the buyer to approve the
// outgoing-payment grant. Entries live in memory only; they carry continue
// tokens that must not be written anywhere.
package pending

import (
	"errors"
	"sync"
	"time"

	"github.com/shinyyama/paychat-backend/internal/metrics"
	"github.com/shinyyama/paychat-backend/internal/model"
	"github.com/shinyyama/paychat-backend/internal/openpayments"
)

// DefaultTTL bounds how long a buyer has to approve a grant.
const DefaultTTL = 15 * time.Minute

var ErrNonceReused = errors.New("pending: nonce already registered")

// Purchase is everything the callback needs to finish a payment.
type Purchase struct {
	Mode           Mode
	BuyerUID       string
	VendorUID      string
	Service        model.Service
	SenderWallet   openpayments.WalletAddress
	ReceiverWallet openpayments.WalletAddress
	Quote          openpayments.Quote
	ContinueToken  string
	ContinueURI    string
	CreatedAt      time.Time
}

// Registry maps nonces to pending purchases. Safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	items   map[string]Purchase
	ttl     time.Duration
	now     func() time.Time
	metrics *metrics.Metrics

	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces the wall clock used for stamping and expiry.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRegistry(ttl time.Duration, m *metrics.Metrics, opts ...Option) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	r := &Registry{
		items:   make(map[string]Purchase),
		ttl:     ttl,
		now:     time.Now,
		metrics: m,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Put registers p under nonce. A live entry under the same nonce is never
// replaced.
func (r *Registry) Put(nonce string, p Purchase) error {
	if nonce == "" {
		return errors.New("pending: empty nonce")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if old, ok := r.items[nonce]; ok && !r.expired(old, now) {
		return ErrNonceReused
	}
	p.CreatedAt = now
	r.items[nonce] = p
	r.metrics.SetPending(len(r.items))
	return nil
}

// Take removes and returns the purchase for nonce. Each nonce can be taken
// at most once; expired entries are dropped and reported as missing.
func (r *Registry) Take(nonce string) (Purchase, bool) {
	return r.TakeIf(nonce, nil)
}

// TakeIf is Take guarded by keep: when keep returns false the entry stays.
func (r *Registry) TakeIf(nonce string, keep func(Purchase) bool) (Purchase, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.items[nonce]
	if !ok {
		return Purchase{}, false
	}
	if r.expired(p, r.now()) {
		delete(r.items, nonce)
		r.metrics.Evicted(1)
		r.metrics.SetPending(len(r.items))
		return Purchase{}, false
	}
	if keep != nil && !keep(p) {
		return Purchase{}, false
	}
	delete(r.items, nonce)
	r.metrics.SetPending(len(r.items))
	return p, true
}

// Len counts entries, expired ones included until the next sweep.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Sweep drops expired entries and returns how many were removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	n := 0
	for nonce, p := range r.items {
		if r.expired(p, now) {
			delete(r.items, nonce)
			n++
		}
	}
	r.metrics.Evicted(n)
	r.metrics.SetPending(len(r.items))
	return n
}

// Start runs Sweep every interval until Close.
func (r *Registry) Start(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	r.startOnce.Do(func() {
		go func() {
			defer close(r.done)
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					r.Sweep()
				case <-r.stop:
					return
				}
			}
		}()
	})
}

// Close stops the janitor and waits for it. Safe to call more than once.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		close(r.stop)
		started := true
		r.startOnce.Do(func() { started = false })
		if started {
			<-r.done
		}
	})
}

func (r *Registry) expired(p Purchase, now time.Time) bool {
	return now.Sub(p.CreatedAt) >= r.ttl
}
