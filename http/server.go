package http

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/nacorid/payfac"
	"github.com/nacorid/payfac/facilitator"
)

// ServerConfig holds the facilitator API server configuration.
type ServerConfig struct {
	// RateLimit is the per-client request rate on the create and
	// verify routes, in requests per second. Zero disables limiting.
	RateLimit rate.Limit

	// RateBurst is the per-client burst size. Defaults to 5 when
	// limiting is enabled.
	RateBurst int

	// Logger overrides the default logger.
	Logger *slog.Logger
}

// NewRouter builds the facilitator API router:
//
//	POST /payment/request  create a payment request
//	POST /payment/verify   verify a claimed settlement
//	GET  /payment/:id      current record projection
//	GET  /health           liveness only, never touches the ledger
func NewRouter(svc facilitator.Interface, cfg ServerConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())

	limited := router.Group("/", rateLimitMiddleware(cfg))
	limited.POST("/payment/request", handleCreate(svc, logger))
	limited.POST("/payment/verify", handleVerify(svc, logger))

	router.GET("/payment/:id", handleGet(svc))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}

func handleCreate(svc facilitator.Interface, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body CreateRequestBody
		if err := c.ShouldBindJSON(&body); err != nil {
			writeError(c, logger, payfac.NewError(payfac.CodeValidation, "malformed request body", payfac.ErrValidation))
			return
		}

		req, err := svc.CreateRequest(c.Request.Context(), payfac.CreateParams{
			Seller:    body.Seller,
			Amount:    body.Amount,
			Token:     body.Token,
			TokenMint: body.TokenMint,
			Metadata:  body.Metadata,
		})
		if err != nil {
			writeError(c, logger, err)
			return
		}

		c.JSON(http.StatusCreated, CreateResponse{
			ID:        req.ID,
			Status:    req.Status,
			CreatedAt: req.CreatedAt,
			ExpiresAt: req.ExpiresAt,
			PaymentInstructions: PaymentInstructions{
				To:        req.Seller,
				Amount:    req.Amount,
				Token:     req.Token,
				TokenMint: req.TokenMint,
				Memo:      req.Memo,
			},
		})
	}
}

func handleVerify(svc facilitator.Interface, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body VerifyRequestBody
		if err := c.ShouldBindJSON(&body); err != nil {
			writeError(c, logger, payfac.NewError(payfac.CodeValidation, "malformed request body", payfac.ErrValidation))
			return
		}

		req, err := svc.Verify(c.Request.Context(), body.PaymentID, body.Signature)
		if err != nil {
			writeError(c, logger, err)
			return
		}

		resp := VerifyResponse{
			ID:        req.ID,
			Status:    req.Status,
			Signature: req.SettlementRef,
		}
		if !req.VerifiedAt.IsZero() {
			t := req.VerifiedAt
			resp.VerifiedAt = &t
		}
		c.JSON(http.StatusOK, resp)
	}
}

func handleGet(svc facilitator.Interface) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, err := svc.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, slog.Default(), err)
			return
		}
		c.JSON(http.StatusOK, recordResponse(req))
	}
}

// writeError maps an error to its stable HTTP status and a
// machine-readable body. Raw ledger detail never reaches the client:
// only the structured code, message, and reason are emitted.
func writeError(c *gin.Context, logger *slog.Logger, err error) {
	code := payfac.CodeOf(err)
	resp := ErrorResponse{Code: code}

	var pe *payfac.Error
	if errors.As(err, &pe) {
		resp.Error = pe.Message
		resp.Reason = pe.Reason
	} else {
		resp.Error = "internal error"
	}
	if code == payfac.CodeInternal {
		logger.Error("unexpected internal fault", "error", err)
		resp.Error = "internal error"
	}

	c.AbortWithStatusJSON(StatusForCode(code), resp)
}

// rateLimitMiddleware enforces a per-client token bucket keyed by
// client IP. Quota exhaustion surfaces as 429 with the rate-limit code.
func rateLimitMiddleware(cfg ServerConfig) gin.HandlerFunc {
	if cfg.RateLimit <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 5
	}

	var mu sync.Mutex
	limiters := make(map[string]*rate.Limiter)

	return func(c *gin.Context) {
		key := c.ClientIP()

		mu.Lock()
		limiter, ok := limiters[key]
		if !ok {
			limiter = rate.NewLimiter(cfg.RateLimit, burst)
			limiters[key] = limiter
		}
		mu.Unlock()

		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error: "rate limit exceeded",
				Code:  payfac.CodeRateLimited,
			})
			return
		}
		c.Next()
	}
}
