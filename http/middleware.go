package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nacorid/payfac"
	"github.com/nacorid/payfac/facilitator"
)

// MiddlewareConfig holds the configuration for the challenge
// middleware. Price and asset are route configuration, never
// client-supplied.
type MiddlewareConfig struct {
	// Facilitator accepts or rejects payment proofs. Either the
	// in-process service or a FacilitatorClient.
	Facilitator facilitator.Interface

	// FacilitatorURL is the base URL advertised to clients in the
	// challenge headers.
	FacilitatorURL string

	// Seller is the destination address for funds.
	Seller string

	// Amount is the price of the protected route in semantic units.
	Amount decimal.Decimal

	// Token is the symbolic currency identifier.
	Token string

	// TokenMint is the on-chain token identifier for non-native
	// assets, empty otherwise.
	TokenMint string

	// Timeout overrides the default request timeout when positive.
	Timeout time.Duration

	// Logger overrides the default logger.
	Logger *slog.Logger
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

// PaymentContextKey is the context key under which the verified payment
// request is passed to the protected handler.
const PaymentContextKey = contextKey("payfac_payment")

// NewChallengeMiddleware wraps protected handlers with the 402
// challenge/retry protocol: no proof headers issue a fresh challenge,
// complete proof headers are verified with the facilitator, and partial
// or unverifiable proofs never reach the handler.
func NewChallengeMiddleware(config MiddlewareConfig) func(http.Handler) http.Handler {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			paymentID := r.Header.Get(HeaderPaymentID)
			signature := r.Header.Get(HeaderPaymentSignature)

			switch {
			case paymentID == "" && signature == "":
				logger.Info("no payment proof provided", "path", r.URL.Path)
				issueChallenge(w, r, config, logger)

			case paymentID == "" || signature == "":
				// Partial proof is a malformed request, distinct from
				// "payment required".
				logger.Warn("partial payment proof headers", "path", r.URL.Path)
				writeJSON(w, http.StatusBadRequest, ErrorResponse{
					Error: "both payment id and signature headers are required",
					Code:  payfac.CodeValidation,
				})

			default:
				verified, err := config.Facilitator.Verify(r.Context(), paymentID, signature)
				if err != nil {
					denyRequest(w, r, config, logger, err)
					return
				}

				logger.Info("payment verified", "id", verified.ID, "path", r.URL.Path)
				ctx := context.WithValue(r.Context(), PaymentContextKey, verified)
				next.ServeHTTP(w, r.WithContext(ctx))
			}
		})
	}
}

// GetPaymentFromContext extracts the verified payment request passed to
// a protected handler. Returns nil when the request was not payment
// gated.
func GetPaymentFromContext(ctx context.Context) *payfac.PaymentRequest {
	value := ctx.Value(PaymentContextKey)
	if value == nil {
		return nil
	}
	req, ok := value.(*payfac.PaymentRequest)
	if !ok {
		return nil
	}
	return req
}

// issueChallenge creates a fresh payment request and writes the 402
// challenge with the full protocol header set.
func issueChallenge(w http.ResponseWriter, r *http.Request, config MiddlewareConfig, logger *slog.Logger) {
	req, err := config.Facilitator.CreateRequest(r.Context(), payfac.CreateParams{
		Seller:    config.Seller,
		Amount:    config.Amount,
		Token:     config.Token,
		TokenMint: config.TokenMint,
		Timeout:   config.Timeout,
	})
	if err != nil {
		logger.Error("failed to create payment request", "error", err)
		writeJSON(w, StatusForCode(payfac.CodeOf(err)), ErrorResponse{
			Error: "failed to create payment request",
			Code:  payfac.CodeOf(err),
		})
		return
	}

	writeChallenge(w, req, config, "")
}

// denyRequest maps a verification failure to the protocol response: a
// transient ledger fault asks the client to retry the same proof, while
// a definitive rejection issues a fresh challenge under a new id.
func denyRequest(w http.ResponseWriter, r *http.Request, config MiddlewareConfig, logger *slog.Logger, err error) {
	code := payfac.CodeOf(err)
	logger.Warn("payment proof rejected", "path", r.URL.Path, "code", code)

	switch code {
	case payfac.CodeChainUnavailable:
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error: "ledger temporarily unavailable, retry with the same proof",
			Code:  code,
		})
	case payfac.CodeValidation:
		var pe *payfac.Error
		resp := ErrorResponse{Error: "invalid payment proof", Code: code}
		if errors.As(err, &pe) {
			resp.Reason = pe.Reason
		}
		writeJSON(w, http.StatusBadRequest, resp)
	default:
		// Terminal for the presented id: challenge again under a new
		// id so the client can settle afresh.
		req, createErr := config.Facilitator.CreateRequest(r.Context(), payfac.CreateParams{
			Seller:    config.Seller,
			Amount:    config.Amount,
			Token:     config.Token,
			TokenMint: config.TokenMint,
			Timeout:   config.Timeout,
		})
		if createErr != nil {
			logger.Error("failed to create replacement payment request", "error", createErr)
			writeJSON(w, http.StatusPaymentRequired, ErrorResponse{
				Error: "Payment Required",
				Code:  code,
			})
			return
		}
		writeChallenge(w, req, config, string(code))
	}
}

// writeChallenge emits the 402 response with the full header set. The
// reason carries the rejection code when the challenge replaces a
// denied proof.
func writeChallenge(w http.ResponseWriter, req *payfac.PaymentRequest, config MiddlewareConfig, reason string) {
	h := w.Header()
	h.Set(HeaderPaymentRequired, "true")
	h.Set(HeaderPaymentID, req.ID)
	h.Set(HeaderPaymentAmount, req.Amount.String())
	h.Set(HeaderPaymentToken, req.Token)
	if req.TokenMint != "" {
		h.Set(HeaderPaymentTokenMint, req.TokenMint)
	}
	h.Set(HeaderPaymentTo, req.Seller)
	h.Set(HeaderPaymentMemo, req.Memo)
	if config.FacilitatorURL != "" {
		h.Set(HeaderPaymentFacilitator, config.FacilitatorURL)
	}

	writeJSON(w, http.StatusPaymentRequired, ChallengeBody{
		Error:  "Payment Required",
		Code:   http.StatusPaymentRequired,
		Reason: reason,
		Payment: ChallengePayment{
			ID:     req.ID,
			Amount: req.Amount,
			Token:  req.Token,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
