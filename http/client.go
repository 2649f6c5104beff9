package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nacorid/payfac"
	"github.com/nacorid/payfac/facilitator"
	"github.com/nacorid/payfac/internal/retry"
)

// DefaultRequestTimeout bounds a single facilitator API call.
const DefaultRequestTimeout = 10 * time.Second

// FacilitatorClient talks to a remote facilitator over its REST API.
// It implements facilitator.Interface, so the challenge middleware can
// run against a remote facilitator exactly as it does in-process.
type FacilitatorClient struct {
	// BaseURL is the facilitator service URL.
	BaseURL string

	// Client is the HTTP client to use. If nil, a client with
	// DefaultRequestTimeout is used.
	Client *http.Client

	// MaxRetries is the number of retry attempts on transport faults
	// (default 0, disabled). Definitive API errors are never retried.
	MaxRetries int

	// RetryDelay is the initial delay between retries (default 100ms,
	// exponential backoff with multiplier 2).
	RetryDelay time.Duration

	// Authorization is an optional static Authorization header value.
	Authorization string
}

var _ facilitator.Interface = (*FacilitatorClient)(nil)

func (c *FacilitatorClient) httpClient() *http.Client {
	if c.Client != nil {
		return c.Client
	}
	return &http.Client{Timeout: DefaultRequestTimeout}
}

func (c *FacilitatorClient) retryConfig() retry.Config {
	delay := c.RetryDelay
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}
	maxRetries := c.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return retry.Config{
		MaxAttempts:  maxRetries + 1,
		InitialDelay: delay,
		MaxDelay:     delay * 4,
		Multiplier:   2.0,
	}
}

// CreateRequest calls POST /payment/request.
func (c *FacilitatorClient) CreateRequest(ctx context.Context, params payfac.CreateParams) (*payfac.PaymentRequest, error) {
	body := CreateRequestBody{
		Seller:    params.Seller,
		Amount:    params.Amount,
		Token:     params.Token,
		TokenMint: params.TokenMint,
		Metadata:  params.Metadata,
	}

	var out CreateResponse
	if err := c.post(ctx, "/payment/request", body, http.StatusCreated, &out); err != nil {
		return nil, err
	}

	return &payfac.PaymentRequest{
		ID:        out.ID,
		Seller:    out.PaymentInstructions.To,
		Amount:    out.PaymentInstructions.Amount,
		Token:     out.PaymentInstructions.Token,
		TokenMint: out.PaymentInstructions.TokenMint,
		Memo:      out.PaymentInstructions.Memo,
		Status:    out.Status,
		CreatedAt: out.CreatedAt,
		ExpiresAt: out.ExpiresAt,
		Metadata:  params.Metadata,
	}, nil
}

// Verify calls POST /payment/verify.
func (c *FacilitatorClient) Verify(ctx context.Context, id, settlementRef string) (*payfac.PaymentRequest, error) {
	body := VerifyRequestBody{PaymentID: id, Signature: settlementRef}

	var out VerifyResponse
	if err := c.post(ctx, "/payment/verify", body, http.StatusOK, &out); err != nil {
		return nil, err
	}

	req := &payfac.PaymentRequest{
		ID:            out.ID,
		Status:        out.Status,
		SettlementRef: out.Signature,
	}
	if out.VerifiedAt != nil {
		req.VerifiedAt = *out.VerifiedAt
	}
	return req, nil
}

// Get calls GET /payment/{id}.
func (c *FacilitatorClient) Get(ctx context.Context, id string) (*payfac.PaymentRequest, error) {
	result, err := retry.WithRetry(ctx, c.retryConfig(), isTransportError, func() (*payfac.PaymentRequest, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/payment/"+id, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		c.setHeaders(httpReq)

		httpResp, err := c.httpClient().Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", payfac.ErrChainUnavailable, err)
		}
		defer httpResp.Body.Close()

		if httpResp.StatusCode != http.StatusOK {
			return nil, parseErrorResponse(httpResp.StatusCode, httpResp)
		}

		var out RecordResponse
		if err := json.NewDecoder(httpResp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("failed to decode record response: %w", err)
		}

		req := &payfac.PaymentRequest{
			ID:            out.ID,
			Seller:        out.Seller,
			Amount:        out.Amount,
			Token:         out.Token,
			TokenMint:     out.TokenMint,
			Memo:          out.Memo,
			Status:        out.Status,
			CreatedAt:     out.CreatedAt,
			ExpiresAt:     out.ExpiresAt,
			SettlementRef: out.SettlementRef,
		}
		if out.VerifiedAt != nil {
			req.VerifiedAt = *out.VerifiedAt
		}
		return req, nil
	})
	return result, err
}

// post sends a JSON body and decodes the expected success response.
func (c *FacilitatorClient) post(ctx context.Context, path string, body any, wantStatus int, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	_, err = retry.WithRetry(ctx, c.retryConfig(), isTransportError, func() (struct{}, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(data))
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		c.setHeaders(httpReq)

		httpResp, err := c.httpClient().Do(httpReq)
		if err != nil {
			return struct{}{}, fmt.Errorf("%w: %v", payfac.ErrChainUnavailable, err)
		}
		defer httpResp.Body.Close()

		if httpResp.StatusCode != wantStatus {
			return struct{}{}, parseErrorResponse(httpResp.StatusCode, httpResp)
		}
		if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
			return struct{}{}, fmt.Errorf("failed to decode response: %w", err)
		}
		return struct{}{}, nil
	})
	return err
}

func (c *FacilitatorClient) setHeaders(req *http.Request) {
	if c.Authorization != "" {
		req.Header.Set("Authorization", c.Authorization)
	}
}

// parseErrorResponse reconstructs a structured error from a non-success
// facilitator response so callers can dispatch on the same codes as the
// in-process service.
func parseErrorResponse(status int, resp *http.Response) error {
	var body ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Code == "" {
		if status == http.StatusServiceUnavailable || status >= 500 {
			return payfac.NewError(payfac.CodeChainUnavailable,
				fmt.Sprintf("facilitator returned status %d", status), payfac.ErrChainUnavailable)
		}
		return payfac.NewError(payfac.CodeInternal,
			fmt.Sprintf("facilitator returned status %d", status), nil)
	}

	pe := payfac.NewError(body.Code, body.Error, sentinelForCode(body.Code))
	if body.Reason != "" {
		pe = pe.WithReason(body.Reason)
	}
	return pe
}

func sentinelForCode(code payfac.ErrorCode) error {
	switch code {
	case payfac.CodeValidation:
		return payfac.ErrValidation
	case payfac.CodeNotFound:
		return payfac.ErrNotFound
	case payfac.CodeExpired:
		return payfac.ErrExpired
	case payfac.CodeVerificationFailed:
		return payfac.ErrVerificationFailed
	case payfac.CodeConflict:
		return payfac.ErrConflict
	case payfac.CodeChainUnavailable:
		return payfac.ErrChainUnavailable
	case payfac.CodeRateLimited:
		return payfac.ErrRateLimited
	}
	return nil
}

// isTransportError reports whether a client call failed at the
// transport layer, which is the only thing worth retrying.
func isTransportError(err error) bool {
	return errors.Is(err, payfac.ErrChainUnavailable)
}
