package payfac

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validParams() CreateParams {
	return CreateParams{
		Seller:    "9vUy7pkedFgAnjfRxNWkCYmj9PayC2HUSWLM18zCBspn",
		Amount:    decimal.RequireFromString("0.0004"),
		Token:     "USDC",
		TokenMint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
	}
}

func TestCreateParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CreateParams)
		wantErr bool
	}{
		{"valid", func(p *CreateParams) {}, false},
		{"missing seller", func(p *CreateParams) { p.Seller = "" }, true},
		{"zero amount", func(p *CreateParams) { p.Amount = decimal.Zero }, true},
		{"negative amount", func(p *CreateParams) { p.Amount = decimal.RequireFromString("-1") }, true},
		{"missing token", func(p *CreateParams) { p.Token = "" }, true},
		{"non-native token without mint", func(p *CreateParams) { p.TokenMint = "" }, true},
		{"native token without mint", func(p *CreateParams) { p.Token = "SOL"; p.TokenMint = "" }, false},
		{"negative timeout", func(p *CreateParams) { p.Timeout = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := validParams()
			tt.mutate(&params)
			err := params.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewPaymentRequest(t *testing.T) {
	now := time.Now()
	req, err := NewPaymentRequest(validParams(), now)
	if err != nil {
		t.Fatalf("NewPaymentRequest() error = %v", err)
	}

	if req.ID == "" {
		t.Error("expected a generated id")
	}
	if req.Status != StatusPending {
		t.Errorf("expected pending status, got %s", req.Status)
	}
	if req.Memo != MemoPrefix+":"+req.ID {
		t.Errorf("memo %q not derived from id", req.Memo)
	}
	if !strings.HasPrefix(req.Memo, MemoPrefix+":") {
		t.Errorf("memo %q missing protocol prefix", req.Memo)
	}
	if got := req.ExpiresAt.Sub(req.CreatedAt); got != DefaultRequestTimeout {
		t.Errorf("expected default timeout %v, got %v", DefaultRequestTimeout, got)
	}
}

func TestNewPaymentRequestUniqueIDsConcurrent(t *testing.T) {
	const n = 200

	var mu sync.Mutex
	seen := make(map[string]bool, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := NewPaymentRequest(validParams(), time.Now())
			if err != nil {
				t.Errorf("NewPaymentRequest() error = %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if seen[req.ID] {
				t.Errorf("duplicate id %s", req.ID)
			}
			seen[req.ID] = true
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != n {
		t.Errorf("expected %d unique ids, got %d", n, len(seen))
	}
}

func TestExpiredBy(t *testing.T) {
	now := time.Now()
	req, err := NewPaymentRequest(validParams(), now)
	if err != nil {
		t.Fatalf("NewPaymentRequest() error = %v", err)
	}

	if req.ExpiredBy(now) {
		t.Error("fresh request should not be expired")
	}
	if !req.ExpiredBy(now.Add(DefaultRequestTimeout)) {
		t.Error("request at its deadline should be expired")
	}

	req.Status = StatusVerified
	if req.ExpiredBy(now.Add(time.Hour)) {
		t.Error("verified request must never expire retroactively")
	}
}
