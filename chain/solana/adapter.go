// Package solana implements the chain adapter for the Solana ledger
// using JSON-RPC transaction lookups at finalized commitment.
package solana

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"

	"github.com/nacorid/payfac/chain"
)

// NativeDecimals is the lamport precision of SOL.
const NativeDecimals = 9

// RPCClient is the subset of Solana RPC operations the adapter needs.
// Injectable for testing.
type RPCClient interface {
	GetTransaction(ctx context.Context, signature solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
}

// Adapter resolves settlement references (transaction signatures)
// against a Solana RPC node.
type Adapter struct {
	client RPCClient
}

var _ chain.Adapter = (*Adapter)(nil)

// NewAdapter creates an adapter talking to the given RPC endpoint.
func NewAdapter(rpcURL string) *Adapter {
	return &Adapter{client: rpc.New(rpcURL)}
}

// NewAdapterWithClient creates an adapter over an injected RPC client.
func NewAdapterWithClient(client RPCClient) *Adapter {
	return &Adapter{client: client}
}

// ResolveSettlement looks up the transaction at finalized commitment and
// extracts the recipient-side transfer and memo.
func (a *Adapter) ResolveSettlement(ctx context.Context, ref string) (*chain.SettlementDetails, error) {
	sig, err := solana.SignatureFromBase58(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", chain.ErrInvalidReference, ref)
	}

	maxVersion := uint64(0)
	out, err := a.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentFinalized,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", chain.ErrSettlementNotFound, ref)
		}
		return nil, fmt.Errorf("%w: %v", chain.ErrChainUnavailable, err)
	}
	if out == nil || out.Meta == nil || out.Transaction == nil {
		return nil, fmt.Errorf("%w: %s", chain.ErrSettlementNotFound, ref)
	}

	tx, err := out.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable transaction: %v", chain.ErrChainUnavailable, err)
	}

	details := &chain.SettlementDetails{
		Reference: ref,
		Memo:      extractMemo(tx),
		// A transaction returned at finalized commitment is final;
		// an on-chain error still means no value moved.
		Confirmed: out.Meta.Err == nil,
	}
	if len(tx.Message.AccountKeys) > 0 {
		details.Sender = tx.Message.AccountKeys[0].String()
	}

	if !fillTokenTransfer(details, out.Meta) {
		fillNativeTransfer(details, tx, out.Meta)
	}

	return details, nil
}

// fillTokenTransfer extracts the receiving side of an SPL token transfer
// from pre/post token balances. Returns false when no token balance
// increased, meaning the transaction was not an SPL transfer.
func fillTokenTransfer(details *chain.SettlementDetails, meta *rpc.TransactionMeta) bool {
	pre := make(map[uint16]decimal.Decimal, len(meta.PreTokenBalances))
	for _, bal := range meta.PreTokenBalances {
		pre[bal.AccountIndex] = tokenAmount(bal)
	}

	for _, bal := range meta.PostTokenBalances {
		delta := tokenAmount(bal).Sub(pre[bal.AccountIndex])
		if !delta.IsPositive() {
			continue
		}
		details.Amount = delta
		details.Mint = bal.Mint.String()
		if bal.UiTokenAmount != nil {
			details.Decimals = int32(bal.UiTokenAmount.Decimals)
		}
		if bal.Owner != nil {
			details.Recipient = bal.Owner.String()
		}
		return true
	}
	return false
}

// fillNativeTransfer extracts the receiving side of a native SOL
// transfer from pre/post lamport balances. The fee payer (index 0) is
// skipped so that fee refunds are never mistaken for the transfer.
func fillNativeTransfer(details *chain.SettlementDetails, tx *solana.Transaction, meta *rpc.TransactionMeta) {
	details.Decimals = NativeDecimals

	best := decimal.Zero
	for i := 1; i < len(meta.PostBalances) && i < len(meta.PreBalances); i++ {
		if i >= len(tx.Message.AccountKeys) {
			break
		}
		post := decimal.NewFromUint64(meta.PostBalances[i])
		preBal := decimal.NewFromUint64(meta.PreBalances[i])
		delta := post.Sub(preBal)
		if delta.GreaterThan(best) {
			best = delta
			details.Recipient = tx.Message.AccountKeys[i].String()
		}
	}
	details.Amount = best.Shift(-NativeDecimals)
}

// tokenAmount converts a token balance to decimal semantic units.
func tokenAmount(bal rpc.TokenBalance) decimal.Decimal {
	if bal.UiTokenAmount == nil {
		return decimal.Zero
	}
	raw, err := decimal.NewFromString(bal.UiTokenAmount.Amount)
	if err != nil {
		return decimal.Zero
	}
	return raw.Shift(-int32(bal.UiTokenAmount.Decimals))
}

// extractMemo returns the content of the first Memo program instruction,
// or empty when the transaction carries none.
func extractMemo(tx *solana.Transaction) string {
	for _, inst := range tx.Message.Instructions {
		program, err := tx.Message.ResolveProgramIDIndex(inst.ProgramIDIndex)
		if err != nil {
			continue
		}
		if program.Equals(solana.MemoProgramID) {
			return string(inst.Data)
		}
	}
	return ""
}
