package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nacorid/payfac"
)

func newRequest(t *testing.T, now time.Time) *payfac.PaymentRequest {
	t.Helper()
	req, err := payfac.NewPaymentRequest(payfac.CreateParams{
		Seller: "9vUy7pkedFgAnjfRxNWkCYmj9PayC2HUSWLM18zCBspn",
		Amount: decimal.RequireFromString("1.5"),
		Token:  "SOL",
	}, now)
	require.NoError(t, err)
	return req
}

func TestPutAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	req := newRequest(t, time.Now())

	require.NoError(t, s.Put(ctx, req))

	got, err := s.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)
	assert.Equal(t, payfac.StatusPending, got.Status)

	// Returned copies must not alias store state.
	got.Status = payfac.StatusFailed
	again, err := s.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, payfac.StatusPending, again.Status)
}

func TestPutDuplicateID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	req := newRequest(t, time.Now())

	require.NoError(t, s.Put(ctx, req))
	err := s.Put(ctx, req)
	require.Error(t, err)
	assert.ErrorIs(t, err, payfac.ErrConflict)
}

func TestGetUnknownID(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, payfac.ErrNotFound)
}

func TestLazyExpiryOnGet(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := now
	s := NewMemoryStore(WithClock(func() time.Time { return clock }))

	req := newRequest(t, now)
	require.NoError(t, s.Put(ctx, req))

	clock = now.Add(payfac.DefaultRequestTimeout + time.Second)

	got, err := s.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, payfac.StatusExpired, got.Status,
		"a read past the deadline must report expired even without a writer")
}

func TestCASOutOfPendingFailsAfterDeadline(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := now
	s := NewMemoryStore(WithClock(func() time.Time { return clock }))

	req := newRequest(t, now)
	require.NoError(t, s.Put(ctx, req))

	clock = now.Add(payfac.DefaultRequestTimeout + time.Second)

	won, err := s.CompareAndSwapStatus(ctx, req.ID, payfac.StatusPending, payfac.StatusVerified, nil)
	require.NoError(t, err)
	assert.False(t, won, "no verifier may win a transition out of pending after expiry")

	got, err := s.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, payfac.StatusExpired, got.Status)
}

func TestCASSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	req := newRequest(t, time.Now())
	require.NoError(t, s.Put(ctx, req))

	const workers = 32
	var wins int64
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			won, err := s.CompareAndSwapStatus(ctx, req.ID, payfac.StatusPending, payfac.StatusVerified,
				func(r *payfac.PaymentRequest) {
					r.SettlementRef = "sig"
				})
			if err != nil {
				t.Errorf("CAS error: %v", err)
				return
			}
			if won {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins, "exactly one caller must win the transition out of pending")

	got, err := s.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, payfac.StatusVerified, got.Status)
	assert.Equal(t, "sig", got.SettlementRef)
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewMemoryStore(WithClock(func() time.Time { return now }))

	stale := newRequest(t, now.Add(-2*payfac.DefaultRequestTimeout))
	fresh := newRequest(t, now)
	verified := newRequest(t, now.Add(-2*payfac.DefaultRequestTimeout))
	verified.Status = payfac.StatusVerified

	require.NoError(t, s.Put(ctx, stale))
	require.NoError(t, s.Put(ctx, fresh))
	require.NoError(t, s.Put(ctx, verified))

	assert.Equal(t, 1, s.Sweep(now))

	got, err := s.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, payfac.StatusExpired, got.Status)

	got, err = s.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, payfac.StatusPending, got.Status)

	got, err = s.Get(ctx, verified.ID)
	require.NoError(t, err)
	assert.Equal(t, payfac.StatusVerified, got.Status, "sweep must not touch verified requests")
}
