// Package evm implements the chain adapter for EVM ledgers. It resolves
// native-asset transfers only; the memo rides in the transaction
// calldata as UTF-8.
package evm

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/nacorid/payfac/chain"
)

// NativeDecimals is the wei precision of ETH.
const NativeDecimals = 18

// Client is the subset of ethclient operations the adapter needs.
// Injectable for testing.
type Client interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Adapter resolves settlement references (transaction hashes) against
// an EVM JSON-RPC node.
type Adapter struct {
	client Client
}

var _ chain.Adapter = (*Adapter)(nil)

// NewAdapter dials the given RPC endpoint.
func NewAdapter(rpcURL string) (*Adapter, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chain.ErrChainUnavailable, err)
	}
	return &Adapter{client: client}, nil
}

// NewAdapterWithClient creates an adapter over an injected client.
func NewAdapterWithClient(client Client) *Adapter {
	return &Adapter{client: client}
}

// ResolveSettlement looks up the transaction and its receipt and
// extracts the native transfer details.
func (a *Adapter) ResolveSettlement(ctx context.Context, ref string) (*chain.SettlementDetails, error) {
	if len(ref) != 66 || ref[:2] != "0x" {
		return nil, fmt.Errorf("%w: %s", chain.ErrInvalidReference, ref)
	}
	hash := common.HexToHash(ref)

	tx, pending, err := a.client.TransactionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("%w: %s", chain.ErrSettlementNotFound, ref)
		}
		return nil, fmt.Errorf("%w: %v", chain.ErrChainUnavailable, err)
	}

	details := &chain.SettlementDetails{
		Reference: ref,
		Decimals:  NativeDecimals,
		Amount:    decimal.NewFromBigInt(tx.Value(), -NativeDecimals),
		Memo:      memoFromCalldata(tx.Data()),
	}
	if to := tx.To(); to != nil {
		details.Recipient = to.Hex()
	}
	if from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx); err == nil {
		details.Sender = from.Hex()
	}

	if pending {
		return details, nil
	}

	receipt, err := a.client.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			// Mined out of our node's view, treat as not yet confirmed.
			return details, nil
		}
		return nil, fmt.Errorf("%w: %v", chain.ErrChainUnavailable, err)
	}
	details.Confirmed = receipt.Status == types.ReceiptStatusSuccessful

	return details, nil
}

// memoFromCalldata interprets calldata as a UTF-8 memo. Non-text
// calldata yields no memo rather than garbage.
func memoFromCalldata(data []byte) string {
	if len(data) == 0 || !utf8.Valid(data) {
		return ""
	}
	return string(data)
}
