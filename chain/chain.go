// Package chain defines the ledger query boundary. The verification
// engine treats implementations as an I/O boundary with their own
// latency and failure modes; exactly one adapter is selected by
// configuration at service start.
package chain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Adapter resolves a claimed settlement reference to its on-chain
// details. Implementations must distinguish a definitively absent
// transaction (ErrSettlementNotFound) from a transient inability to
// answer (ErrChainUnavailable); the engine retries only the latter.
type Adapter interface {
	ResolveSettlement(ctx context.Context, ref string) (*SettlementDetails, error)
}

// SettlementDetails describes a resolved on-chain settlement.
type SettlementDetails struct {
	// Reference is the ledger's transaction reference.
	Reference string

	// Sender is the address funds moved from.
	Sender string

	// Recipient is the address funds moved to.
	Recipient string

	// Amount is the transferred quantity in semantic currency units.
	Amount decimal.Decimal

	// Decimals is the asset's base-unit precision, used for the
	// amount tolerance.
	Decimals int32

	// Mint is the on-chain identifier of the transferred asset.
	// Empty for the ledger's native asset.
	Mint string

	// Memo is the annotation attached to the transaction, empty when
	// none is present.
	Memo string

	// Confirmed is true only once the ledger considers the
	// transaction final, not merely submitted.
	Confirmed bool
}

// Adapter error contract.
var (
	// ErrSettlementNotFound means the reference does not resolve to a
	// transaction. Definitive; not retryable.
	ErrSettlementNotFound = errors.New("chain: settlement reference not found")

	// ErrChainUnavailable means the ledger could not be queried
	// (network fault, timeout, rate limiting). Transient; retryable.
	ErrChainUnavailable = errors.New("chain: ledger unavailable")

	// ErrInvalidReference means the reference is not even parseable
	// for this ledger. Definitive; not retryable.
	ErrInvalidReference = errors.New("chain: invalid settlement reference")
)
