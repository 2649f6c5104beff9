// Command facilitator runs the payment facilitator service: it issues
// payment requests, verifies claimed settlements against the configured
// ledger, and serves the facilitator REST API.
package main

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"github.com/nacorid/payfac/chain"
	chainevm "github.com/nacorid/payfac/chain/evm"
	chainmock "github.com/nacorid/payfac/chain/mock"
	chainsolana "github.com/nacorid/payfac/chain/solana"
	"github.com/nacorid/payfac/facilitator"
	payfachttp "github.com/nacorid/payfac/http"
	"github.com/nacorid/payfac/store"
	"github.com/nacorid/payfac/verify"
)

type config struct {
	listenAddr    string
	chainBackend  string
	rpcURL        string
	verifyTimeout time.Duration
	rateLimit     float64
	rateBurst     int
	sweepSchedule string
}

func loadConfig() config {
	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg := config{
		listenAddr:    envOr("PAYFAC_LISTEN_ADDR", ":8402"),
		chainBackend:  envOr("PAYFAC_CHAIN", "solana"),
		rpcURL:        os.Getenv("PAYFAC_RPC_URL"),
		verifyTimeout: verify.DefaultVerifyTimeout,
		rateLimit:     10,
		rateBurst:     20,
		sweepSchedule: envOr("PAYFAC_SWEEP_SCHEDULE", "@every 1m"),
	}
	if v := os.Getenv("PAYFAC_VERIFY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.verifyTimeout = d
		}
	}
	if v := os.Getenv("PAYFAC_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.rateLimit = f
		}
	}
	if v := os.Getenv("PAYFAC_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.rateBurst = n
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newAdapter(cfg config, logger *slog.Logger) (chain.Adapter, error) {
	switch cfg.chainBackend {
	case "solana":
		return chainsolana.NewAdapter(cfg.rpcURL), nil
	case "evm":
		return chainevm.NewAdapter(cfg.rpcURL)
	case "mock":
		logger.Warn("using mock chain adapter, settlements are simulated")
		return chainmock.NewAdapter(), nil
	default:
		logger.Error("unknown chain backend", "backend", cfg.chainBackend)
		os.Exit(1)
		return nil, nil
	}
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := loadConfig()

	adapter, err := newAdapter(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize chain adapter", "error", err)
		os.Exit(1)
	}

	requestStore := store.NewMemoryStore()
	engine := verify.NewEngine(requestStore, adapter,
		verify.WithLogger(logger),
		verify.WithTimeout(cfg.verifyTimeout),
	)
	service := facilitator.NewService(requestStore, engine,
		facilitator.WithLogger(logger),
	)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.sweepSchedule, func() {
		if swept := requestStore.Sweep(time.Now()); swept > 0 {
			logger.Info("expired payment requests swept", "count", swept)
		}
	}); err != nil {
		logger.Error("invalid sweep schedule", "schedule", cfg.sweepSchedule, "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	defer scheduler.Stop()

	router := payfachttp.NewRouter(service, payfachttp.ServerConfig{
		RateLimit: rate.Limit(cfg.rateLimit),
		RateBurst: cfg.rateBurst,
		Logger:    logger,
	})

	logger.Info("facilitator listening",
		"addr", cfg.listenAddr, "chain", cfg.chainBackend, "sweep", cfg.sweepSchedule)
	if err := router.Run(cfg.listenAddr); err != nil {
		logger.Error("server terminated", "error", err)
		os.Exit(1)
	}
}
