// Package http provides the facilitator HTTP API server, a facilitator
// client, and the challenge middleware for protected resources.
package http

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/nacorid/payfac"
)

// Protocol headers for the 402 challenge and the client's retry.
const (
	// HeaderPaymentRequired marks a 402 challenge response.
	HeaderPaymentRequired = "X-Payment-Required"

	// HeaderPaymentID carries the payment request id, in both the
	// challenge and the client's retry.
	HeaderPaymentID = "X-Payment-Id"

	// HeaderPaymentAmount is the requested amount as a decimal string.
	HeaderPaymentAmount = "X-Payment-Amount"

	// HeaderPaymentToken is the symbolic currency identifier.
	HeaderPaymentToken = "X-Payment-Token"

	// HeaderPaymentTokenMint is the on-chain token identifier, present
	// iff the token is a non-native asset.
	HeaderPaymentTokenMint = "X-Payment-Token-Mint"

	// HeaderPaymentTo is the destination address for funds.
	HeaderPaymentTo = "X-Payment-To"

	// HeaderPaymentMemo is the memo that must appear verbatim in the
	// settlement transaction.
	HeaderPaymentMemo = "X-Payment-Memo"

	// HeaderPaymentFacilitator is the facilitator base URL.
	HeaderPaymentFacilitator = "X-Payment-Facilitator"

	// HeaderPaymentSignature carries the settlement reference on the
	// client's retry.
	HeaderPaymentSignature = "X-Payment-Signature"
)

// CreateRequestBody is the POST /payment/request input.
type CreateRequestBody struct {
	Seller    string            `json:"seller"`
	Amount    decimal.Decimal   `json:"amount"`
	Token     string            `json:"token"`
	TokenMint string            `json:"tokenMint,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// PaymentInstructions tells the client how to settle.
type PaymentInstructions struct {
	To        string          `json:"to"`
	Amount    decimal.Decimal `json:"amount"`
	Token     string          `json:"token"`
	TokenMint string          `json:"tokenMint,omitempty"`
	Memo      string          `json:"memo"`
}

// CreateResponse is the POST /payment/request output.
type CreateResponse struct {
	ID                  string              `json:"id"`
	Status              payfac.Status       `json:"status"`
	CreatedAt           time.Time           `json:"createdAt"`
	ExpiresAt           time.Time           `json:"expiresAt"`
	PaymentInstructions PaymentInstructions `json:"paymentInstructions"`
}

// VerifyRequestBody is the POST /payment/verify input.
type VerifyRequestBody struct {
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
}

// VerifyResponse is the POST /payment/verify output.
type VerifyResponse struct {
	ID         string        `json:"id"`
	Status     payfac.Status `json:"status"`
	Signature  string        `json:"signature"`
	VerifiedAt *time.Time    `json:"verifiedAt,omitempty"`
}

// RecordResponse is the GET /payment/{id} projection.
type RecordResponse struct {
	ID            string          `json:"id"`
	Status        payfac.Status   `json:"status"`
	Seller        string          `json:"seller"`
	Amount        decimal.Decimal `json:"amount"`
	Token         string          `json:"token"`
	TokenMint     string          `json:"tokenMint,omitempty"`
	Memo          string          `json:"memo"`
	CreatedAt     time.Time       `json:"createdAt"`
	ExpiresAt     time.Time       `json:"expiresAt"`
	SettlementRef string          `json:"settlementRef,omitempty"`
	VerifiedAt    *time.Time      `json:"verifiedAt,omitempty"`
}

// ErrorResponse is the body of every non-2xx facilitator response.
type ErrorResponse struct {
	Error  string           `json:"error"`
	Code   payfac.ErrorCode `json:"code"`
	Reason string           `json:"reason,omitempty"`
}

// ChallengeBody is the JSON body of a 402 challenge response.
type ChallengeBody struct {
	Error   string           `json:"error"`
	Code    int              `json:"code"`
	Reason  string           `json:"reason,omitempty"`
	Payment ChallengePayment `json:"payment"`
}

// ChallengePayment is the payment summary inside a challenge body.
type ChallengePayment struct {
	ID     string          `json:"id"`
	Amount decimal.Decimal `json:"amount"`
	Token  string          `json:"token"`
}

// recordResponse projects a payment request for clients.
func recordResponse(req *payfac.PaymentRequest) RecordResponse {
	out := RecordResponse{
		ID:            req.ID,
		Status:        req.Status,
		Seller:        req.Seller,
		Amount:        req.Amount,
		Token:         req.Token,
		TokenMint:     req.TokenMint,
		Memo:          req.Memo,
		CreatedAt:     req.CreatedAt,
		ExpiresAt:     req.ExpiresAt,
		SettlementRef: req.SettlementRef,
	}
	if !req.VerifiedAt.IsZero() {
		t := req.VerifiedAt
		out.VerifiedAt = &t
	}
	return out
}

// StatusForCode maps error codes to the stable HTTP statuses of the
// facilitator API.
func StatusForCode(code payfac.ErrorCode) int {
	switch code {
	case payfac.CodeValidation:
		return 400
	case payfac.CodeNotFound:
		return 404
	case payfac.CodeExpired, payfac.CodeVerificationFailed:
		return 402
	case payfac.CodeConflict:
		return 409
	case payfac.CodeRateLimited:
		return 429
	case payfac.CodeChainUnavailable:
		return 503
	}
	return 500
}
