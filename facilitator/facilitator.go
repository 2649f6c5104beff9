// Package facilitator exposes the externally callable payment API:
// create a payment request, verify a claimed settlement against it, and
// read its current state.
package facilitator

import (
	"context"
	"log/slog"
	"time"

	"github.com/nacorid/payfac"
	"github.com/nacorid/payfac/store"
	"github.com/nacorid/payfac/verify"
)

// Interface is the facilitator contract. It is implemented in-process
// by Service and remotely by the HTTP client, so the challenge
// middleware can run against either.
type Interface interface {
	// CreateRequest mints a new pending payment request.
	CreateRequest(ctx context.Context, params payfac.CreateParams) (*payfac.PaymentRequest, error)

	// Verify checks a claimed settlement reference against the request
	// and commits the resulting transition.
	Verify(ctx context.Context, id, settlementRef string) (*payfac.PaymentRequest, error)

	// Get returns the current request record.
	Get(ctx context.Context, id string) (*payfac.PaymentRequest, error)
}

// Service is the in-process facilitator over a store and a
// verification engine.
type Service struct {
	store  store.Store
	engine *verify.Engine
	logger *slog.Logger
	now    func() time.Time
}

var _ Interface = (*Service)(nil)

// Option configures a Service.
type Option func(*Service)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the service's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a facilitator service. The store and engine are
// owned by the caller and torn down with it; the service holds no
// global state.
func NewService(st store.Store, engine *verify.Engine, opts ...Option) *Service {
	s := &Service{
		store:  st,
		engine: engine,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequest validates the parameters, mints a request with a fresh
// id and derived memo, and stores it pending.
func (s *Service) CreateRequest(ctx context.Context, params payfac.CreateParams) (*payfac.PaymentRequest, error) {
	req, err := payfac.NewPaymentRequest(params, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, req); err != nil {
		return nil, err
	}
	s.logger.Info("payment request created",
		"id", req.ID, "seller", req.Seller, "amount", req.Amount.String(), "token", req.Token)
	return req, nil
}

// Verify delegates to the verification engine.
func (s *Service) Verify(ctx context.Context, id, settlementRef string) (*payfac.PaymentRequest, error) {
	return s.engine.Verify(ctx, id, settlementRef)
}

// Get returns the current record, with lazy expiry applied by the store.
func (s *Service) Get(ctx context.Context, id string) (*payfac.PaymentRequest, error) {
	return s.store.Get(ctx, id)
}
