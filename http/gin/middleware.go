// Package gin provides Gin-compatible challenge middleware. It is a
// thin adapter that translates gin.Context to stdlib http patterns and
// delegates the challenge/retry protocol to the http package.
package gin

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nacorid/payfac"
	payfachttp "github.com/nacorid/payfac/http"
)

// MiddlewareConfig is an alias for the http package config.
type MiddlewareConfig = payfachttp.MiddlewareConfig

// PaymentContextKey is the gin context key under which the verified
// payment request is stored.
const PaymentContextKey = "payfac_payment"

// NewChallengeMiddleware creates a Gin middleware that gates handlers
// behind the 402 challenge/retry protocol.
//
// The middleware:
//   - Issues a 402 challenge with the protocol headers when no proof
//     headers are present
//   - Rejects partial proof headers with 400
//   - Verifies complete proofs with the facilitator and aborts the
//     chain on any failure
//   - Stores the verified request via c.Set("payfac_payment", req) and
//     in the stdlib request context on success
func NewChallengeMiddleware(config MiddlewareConfig) gin.HandlerFunc {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	inner := payfachttp.NewChallengeMiddleware(config)

	return func(c *gin.Context) {
		allowed := false

		handler := inner(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed = true

			verified := payfachttp.GetPaymentFromContext(r.Context())
			if verified != nil {
				c.Set(PaymentContextKey, verified)
			}
			ctx := context.WithValue(c.Request.Context(), payfachttp.PaymentContextKey, verified)
			c.Request = c.Request.WithContext(ctx)
		}))

		handler.ServeHTTP(c.Writer, c.Request)

		if !allowed {
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetPaymentFromContext extracts the verified payment request from the
// Gin context. Returns nil when the request was not payment gated.
func GetPaymentFromContext(c *gin.Context) *payfac.PaymentRequest {
	value, exists := c.Get(PaymentContextKey)
	if !exists {
		return nil
	}
	req, ok := value.(*payfac.PaymentRequest)
	if !ok {
		return nil
	}
	return req
}
