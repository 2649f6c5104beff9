// Package verify implements the verification engine: it drives the
// settlement checks against the chain adapter and owns every status
// transition of a payment request. The compare-and-swap on the store is
// the only serialization point, which guarantees at most one accepted
// settlement per request even under concurrent retries, and no
// resurrection of a failed or expired request.
package verify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nacorid/payfac"
	"github.com/nacorid/payfac/chain"
	"github.com/nacorid/payfac/internal/retry"
	"github.com/nacorid/payfac/store"
)

// DefaultVerifyTimeout bounds a whole verification attempt, including
// ledger query retries.
const DefaultVerifyTimeout = 30 * time.Second

// Reason codes attached to verification failures. Deliberately generic;
// clients never see raw ledger detail.
const (
	ReasonNotFound          = "settlement_not_found"
	ReasonInvalidReference  = "invalid_reference"
	ReasonUnconfirmed       = "unconfirmed"
	ReasonRecipientMismatch = "recipient_mismatch"
	ReasonAmountMismatch    = "amount_mismatch"
	ReasonMintMismatch      = "mint_mismatch"
	ReasonAssetNotNative    = "asset_not_native"
	ReasonMemoMismatch      = "memo_mismatch"
)

// Engine verifies claimed settlements against stored payment requests.
type Engine struct {
	store   store.Store
	adapter chain.Adapter
	logger  *slog.Logger
	retry   retry.Config
	timeout time.Duration
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithRetryConfig overrides the ledger query retry policy.
func WithRetryConfig(cfg retry.Config) Option {
	return func(e *Engine) { e.retry = cfg }
}

// WithTimeout overrides the overall verification timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a verification engine over the given store and
// chain adapter.
func NewEngine(s store.Store, adapter chain.Adapter, opts ...Option) *Engine {
	e := &Engine{
		store:   s,
		adapter: adapter,
		logger:  slog.Default(),
		retry:   retry.DefaultConfig,
		timeout: DefaultVerifyTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Verify checks whether the claimed settlement reference satisfies the
// payment request and commits the resulting status transition. It is
// idempotent for a reference that already verified, and detaches from
// the inbound context so an aborted HTTP call cannot abandon an
// in-flight verification between the ledger query and the commit.
func (e *Engine) Verify(ctx context.Context, id, ref string) (*payfac.PaymentRequest, error) {
	if id == "" {
		return nil, payfac.NewError(payfac.CodeValidation, "payment id is required", payfac.ErrValidation)
	}
	if ref == "" {
		return nil, payfac.NewError(payfac.CodeValidation, "settlement reference is required", payfac.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	req, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch req.Status {
	case payfac.StatusVerified:
		if req.SettlementRef == ref {
			// Idempotent short-circuit: no repeat ledger query.
			return req, nil
		}
		return nil, payfac.NewError(payfac.CodeConflict,
			"payment already verified with a different settlement reference", payfac.ErrConflict)
	case payfac.StatusFailed:
		return nil, payfac.NewError(payfac.CodeVerificationFailed,
			"payment verification already failed for this request", payfac.ErrVerificationFailed)
	case payfac.StatusExpired:
		return nil, payfac.NewError(payfac.CodeExpired,
			"payment request expired", payfac.ErrExpired)
	}

	details, err := retry.WithRetry(ctx, e.retry, isTransient, func() (*chain.SettlementDetails, error) {
		return e.adapter.ResolveSettlement(ctx, ref)
	})
	if err != nil {
		switch {
		case errors.Is(err, chain.ErrSettlementNotFound):
			return e.failPending(ctx, req, ref, ReasonNotFound)
		case errors.Is(err, chain.ErrInvalidReference):
			return e.failPending(ctx, req, ref, ReasonInvalidReference)
		default:
			// Transient fault after bounded retries. The request stays
			// pending; the caller may retry.
			e.logger.Warn("ledger query failed", "id", id, "error", err)
			return nil, payfac.NewError(payfac.CodeChainUnavailable,
				"ledger adapter unreachable", payfac.ErrChainUnavailable)
		}
	}

	if reason := e.checkSettlement(req, details); reason != "" {
		return e.failPending(ctx, req, ref, reason)
	}

	verifiedAt := e.now()
	won, err := e.store.CompareAndSwapStatus(ctx, id, payfac.StatusPending, payfac.StatusVerified,
		func(r *payfac.PaymentRequest) {
			r.SettlementRef = ref
			r.VerifiedAt = verifiedAt
		})
	if err != nil {
		return nil, err
	}
	if won {
		e.logger.Info("payment verified", "id", id, "ref", ref)
		return e.store.Get(ctx, id)
	}

	// Lost the race: another verifier already transitioned this id.
	return e.resolveRaceLoss(ctx, id, ref)
}

// checkSettlement applies the verification checks in order, returning
// the first failing reason or empty on success.
func (e *Engine) checkSettlement(req *payfac.PaymentRequest, details *chain.SettlementDetails) string {
	switch {
	case !details.Confirmed:
		return ReasonUnconfirmed
	case details.Recipient != req.Seller:
		return ReasonRecipientMismatch
	case !payfac.AmountSatisfies(details.Amount, req.Amount, details.Decimals):
		return ReasonAmountMismatch
	case req.TokenMint != "" && details.Mint != req.TokenMint:
		return ReasonMintMismatch
	case req.TokenMint == "" && details.Mint != "":
		return ReasonAssetNotNative
	case details.Memo != req.Memo:
		// Exact equality: substring containment would let one
		// settlement replay against multiple requests.
		return ReasonMemoMismatch
	}
	return ""
}

// failPending commits the pending→failed transition and returns the
// verification failure. Losing this CAS to a concurrent verifier that
// accepted the same reference returns the winner's success instead.
func (e *Engine) failPending(ctx context.Context, req *payfac.PaymentRequest, ref, reason string) (*payfac.PaymentRequest, error) {
	won, err := e.store.CompareAndSwapStatus(ctx, req.ID, payfac.StatusPending, payfac.StatusFailed,
		func(r *payfac.PaymentRequest) {
			r.SettlementRef = ref
		})
	if err != nil {
		return nil, err
	}
	if !won {
		cur, err := e.store.Get(ctx, req.ID)
		if err == nil {
			if cur.Status == payfac.StatusVerified && cur.SettlementRef == ref {
				return cur, nil
			}
			if cur.Status == payfac.StatusExpired {
				return nil, payfac.NewError(payfac.CodeExpired, "payment request expired", payfac.ErrExpired)
			}
		}
	}
	e.logger.Warn("payment verification failed", "id", req.ID, "reason", reason)
	return nil, payfac.NewError(payfac.CodeVerificationFailed,
		"settlement does not satisfy payment request", payfac.ErrVerificationFailed).WithReason(reason)
}

// resolveRaceLoss re-reads the request after a lost verified CAS. A
// winner that accepted the same reference yields this caller the same
// result; anything else is a conflict or terminal state.
func (e *Engine) resolveRaceLoss(ctx context.Context, id, ref string) (*payfac.PaymentRequest, error) {
	cur, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch cur.Status {
	case payfac.StatusVerified:
		if cur.SettlementRef == ref {
			return cur, nil
		}
		return nil, payfac.NewError(payfac.CodeConflict,
			"payment already verified with a different settlement reference", payfac.ErrConflict)
	case payfac.StatusExpired:
		return nil, payfac.NewError(payfac.CodeExpired, "payment request expired", payfac.ErrExpired)
	default:
		return nil, payfac.NewError(payfac.CodeVerificationFailed,
			"payment verification already failed for this request", payfac.ErrVerificationFailed)
	}
}

// isTransient reports whether a ledger query error is retryable.
func isTransient(err error) bool {
	return errors.Is(err, chain.ErrChainUnavailable)
}
