// Package store provides the payment request store. All mutation after
// creation goes through a compare-and-swap primitive so that concurrent
// verification attempts observe a linearizable status transition:
// exactly one caller wins a transition out of pending.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/nacorid/payfac"
)

// Store is the durable-enough key/value store of payment requests,
// keyed by payment id, with expiry.
type Store interface {
	// Put inserts a new request. The id must not already exist.
	Put(ctx context.Context, req *payfac.PaymentRequest) error

	// Get returns a copy of the request, applying lazy expiry: a
	// pending request read past its deadline reports StatusExpired
	// even if no writer has committed that transition yet.
	Get(ctx context.Context, id string) (*payfac.PaymentRequest, error)

	// CompareAndSwapStatus atomically transitions the request from the
	// expected status to the next one, applying mutate to the record
	// while holding the transition. It returns false without applying
	// anything when the current status differs from expected. A CAS
	// out of pending on a request past its deadline commits the
	// expired transition instead and returns false.
	CompareAndSwapStatus(ctx context.Context, id string, expected, next payfac.Status, mutate func(*payfac.PaymentRequest)) (bool, error)
}

// MemoryStore is an in-process Store. It is constructed at service start
// and passed by reference; there is no ambient global registry.
type MemoryStore struct {
	mu       sync.Mutex
	requests map[string]*payfac.PaymentRequest
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithClock overrides the store's time source. Used by tests to move
// requests past their deadline deterministically.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{
		requests: make(map[string]*payfac.PaymentRequest),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put inserts a new request, rejecting duplicate ids.
func (s *MemoryStore) Put(ctx context.Context, req *payfac.PaymentRequest) error {
	if req == nil || req.ID == "" {
		return payfac.NewError(payfac.CodeValidation, "request id is required", payfac.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[req.ID]; exists {
		return payfac.NewError(payfac.CodeConflict, "payment request id already exists", payfac.ErrConflict)
	}
	s.requests[req.ID] = req.Clone()
	return nil
}

// Get returns a copy of the stored request with lazy expiry applied.
func (s *MemoryStore) Get(ctx context.Context, id string) (*payfac.PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, payfac.NewError(payfac.CodeNotFound, "unknown payment request "+id, payfac.ErrNotFound)
	}

	s.expireLocked(req)
	return req.Clone(), nil
}

// CompareAndSwapStatus implements the sole mutation path.
func (s *MemoryStore) CompareAndSwapStatus(ctx context.Context, id string, expected, next payfac.Status, mutate func(*payfac.PaymentRequest)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[id]
	if !ok {
		return false, payfac.NewError(payfac.CodeNotFound, "unknown payment request "+id, payfac.ErrNotFound)
	}

	// Freshness beats the caller's expectation: nobody wins a
	// transition out of pending after the deadline.
	s.expireLocked(req)

	if req.Status != expected {
		return false, nil
	}
	req.Status = next
	if mutate != nil {
		mutate(req)
	}
	return true, nil
}

// Sweep transitions every pending request past its deadline to expired
// and returns how many it transitioned. Verified and failed requests are
// left untouched.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	swept := 0
	for _, req := range s.requests {
		if req.Status == payfac.StatusPending && req.ExpiredBy(now) {
			req.Status = payfac.StatusExpired
			swept++
		}
	}
	return swept
}

// Len returns the number of stored requests.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// expireLocked applies the lazy expired transition. Callers hold s.mu.
func (s *MemoryStore) expireLocked(req *payfac.PaymentRequest) {
	if req.Status == payfac.StatusPending && req.ExpiredBy(s.now()) {
		req.Status = payfac.StatusExpired
	}
}
