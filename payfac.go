// Package payfac implements the core data model for a machine-payable
// HTTP access-control protocol: a server challenges unpaid clients with
// a 402 response, the client settles on an external ledger, and a
// facilitator verifies the settlement before the resource is released.
package payfac

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoPrefix is the protocol prefix used when deriving a settlement memo
// from a payment request id.
const MemoPrefix = "payfac"

// DefaultRequestTimeout is how long a payment request stays payable
// before it expires.
const DefaultRequestTimeout = 300 * time.Second

// Status is the lifecycle state of a payment request.
type Status string

const (
	// StatusPending means the request is awaiting settlement.
	StatusPending Status = "pending"

	// StatusVerified means a settlement was accepted. Terminal.
	StatusVerified Status = "verified"

	// StatusFailed means a verification attempt was rejected. Terminal.
	StatusFailed Status = "failed"

	// StatusExpired means the deadline passed without a verified
	// settlement. Terminal.
	StatusExpired Status = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusVerified || s == StatusFailed || s == StatusExpired
}

// PaymentRequest is the unit of settlement tracking. It is created when a
// client is challenged, mutated only through the store's compare-and-swap
// primitive, and becomes terminal exactly once.
type PaymentRequest struct {
	// ID is an opaque unique identifier, immutable after creation.
	ID string `json:"id"`

	// Seller is the destination address for funds.
	Seller string `json:"seller"`

	// Amount is the requested quantity in semantic currency units
	// (not base units).
	Amount decimal.Decimal `json:"amount"`

	// Token is the symbolic currency identifier (e.g., "USDC", "SOL").
	Token string `json:"token"`

	// TokenMint is the on-chain identifier of the token contract.
	// Empty for the ledger's native asset.
	TokenMint string `json:"tokenMint,omitempty"`

	// Memo binds a settlement transaction to this request. It is
	// derived deterministically from ID and must appear verbatim in
	// the settlement.
	Memo string `json:"memo"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// CreatedAt is when the request was created.
	CreatedAt time.Time `json:"createdAt"`

	// ExpiresAt is CreatedAt plus the request timeout.
	ExpiresAt time.Time `json:"expiresAt"`

	// SettlementRef is the external transaction reference recorded by
	// a verification attempt, empty until one is recorded.
	SettlementRef string `json:"settlementRef,omitempty"`

	// VerifiedAt is the time of successful verification, zero until then.
	VerifiedAt time.Time `json:"verifiedAt,omitempty"`

	// Metadata carries optional caller-supplied context. Opaque to the
	// verification algorithm.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep copy so callers can hand out records without
// exposing store-owned state.
func (r *PaymentRequest) Clone() *PaymentRequest {
	cp := *r
	if r.Metadata != nil {
		cp.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// ExpiredBy reports whether the request deadline has passed at the given
// instant. Verified requests never expire retroactively.
func (r *PaymentRequest) ExpiredBy(now time.Time) bool {
	if r.Status == StatusVerified {
		return false
	}
	return !now.Before(r.ExpiresAt)
}

// MemoForID derives the settlement memo for a payment request id.
func MemoForID(id string) string {
	return MemoPrefix + ":" + id
}

// CreateParams is the typed input for creating a payment request.
type CreateParams struct {
	// Seller is the destination address for funds. Required.
	Seller string `json:"seller"`

	// Amount is the requested quantity in semantic currency units.
	// Must be strictly positive.
	Amount decimal.Decimal `json:"amount"`

	// Token is the symbolic currency identifier. Required.
	Token string `json:"token"`

	// TokenMint is the on-chain token identifier. Required when Token
	// denotes a non-native asset, empty otherwise.
	TokenMint string `json:"tokenMint,omitempty"`

	// Timeout overrides DefaultRequestTimeout when positive.
	Timeout time.Duration `json:"-"`

	// Metadata carries optional caller-supplied context.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NativeTokens lists token symbols treated as a ledger's native asset,
// which need no mint identifier.
var NativeTokens = map[string]bool{
	"SOL": true,
	"ETH": true,
}

// Validate checks the creation input against the data-model invariants.
func (p CreateParams) Validate() error {
	if p.Seller == "" {
		return NewError(CodeValidation, "seller is required", ErrValidation)
	}
	if !p.Amount.IsPositive() {
		return NewError(CodeValidation, "amount must be positive", ErrValidation)
	}
	if p.Token == "" {
		return NewError(CodeValidation, "token is required", ErrValidation)
	}
	if p.TokenMint == "" && !NativeTokens[p.Token] {
		return NewError(CodeValidation, "tokenMint is required for non-native token "+p.Token, ErrValidation)
	}
	if p.Timeout < 0 {
		return NewError(CodeValidation, "timeout cannot be negative", ErrValidation)
	}
	return nil
}

// NewPaymentRequest mints a pending request from validated parameters.
// The id is globally unique and the memo is derived from it.
func NewPaymentRequest(params CreateParams, now time.Time) (*PaymentRequest, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	timeout := params.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	id := uuid.NewString()
	return &PaymentRequest{
		ID:        id,
		Seller:    params.Seller,
		Amount:    params.Amount,
		Token:     params.Token,
		TokenMint: params.TokenMint,
		Memo:      MemoForID(id),
		Status:    StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(timeout),
		Metadata:  params.Metadata,
	}, nil
}
