package facilitator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nacorid/payfac"
	"github.com/nacorid/payfac/chain"
	chainmock "github.com/nacorid/payfac/chain/mock"
	"github.com/nacorid/payfac/store"
	"github.com/nacorid/payfac/verify"
)

const (
	seller   = "9vUy7pkedFgAnjfRxNWkCYmj9PayC2HUSWLM18zCBspn"
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	sig      = "5VfydnLu4XwV2H2dLHPv22JYdq5PbRBZ4wCUdTw9HBFh"
)

func newService(t *testing.T) (*Service, *chainmock.Adapter) {
	t.Helper()
	st := store.NewMemoryStore()
	adapter := chainmock.NewAdapter()
	engine := verify.NewEngine(st, adapter)
	return NewService(st, engine), adapter
}

func TestCreateVerifyGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, adapter := newService(t)

	req, err := svc.CreateRequest(ctx, payfac.CreateParams{
		Seller:    seller,
		Amount:    decimal.RequireFromString("0.0004"),
		Token:     "USDC",
		TokenMint: usdcMint,
	})
	require.NoError(t, err)
	assert.Equal(t, payfac.StatusPending, req.Status)
	assert.True(t, strings.HasPrefix(req.Memo, payfac.MemoPrefix+":"),
		"memo must carry the protocol prefix")
	assert.Equal(t, payfac.MemoForID(req.ID), req.Memo)

	adapter.SimulateSettlement(chain.SettlementDetails{
		Reference: sig,
		Recipient: seller,
		Amount:    req.Amount,
		Decimals:  6,
		Mint:      usdcMint,
		Memo:      req.Memo,
		Confirmed: true,
	})

	verified, err := svc.Verify(ctx, req.ID, sig)
	require.NoError(t, err)
	assert.Equal(t, payfac.StatusVerified, verified.Status)
	assert.Equal(t, sig, verified.SettlementRef)

	got, err := svc.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, payfac.StatusVerified, got.Status)
	assert.Equal(t, sig, got.SettlementRef)
	assert.WithinDuration(t, time.Now(), got.VerifiedAt, 5*time.Second)
}

func TestCreateRequestRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.CreateRequest(ctx, payfac.CreateParams{
		Seller: seller,
		Amount: decimal.Zero,
		Token:  "SOL",
	})
	assert.ErrorIs(t, err, payfac.ErrValidation)

	_, err = svc.CreateRequest(ctx, payfac.CreateParams{
		Seller: seller,
		Amount: decimal.RequireFromString("1"),
		Token:  "USDC", // non-native without a mint
	})
	assert.ErrorIs(t, err, payfac.ErrValidation)
}

func TestGetUnknownID(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, payfac.ErrNotFound)
}
