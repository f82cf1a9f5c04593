// Command commerced runs the DecorLuxe checkout and payment-verification
// service.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	"github.com/decorluxe-labs/commerce/core/pkg/api"
	"github.com/decorluxe-labs/commerce/core/pkg/artifacts"
	"github.com/decorluxe-labs/commerce/core/pkg/auth"
	"github.com/decorluxe-labs/commerce/core/pkg/catalog"
	"github.com/decorluxe-labs/commerce/core/pkg/checkout"
	"github.com/decorluxe-labs/commerce/core/pkg/config"
	"github.com/decorluxe-labs/commerce/core/pkg/gateway"
	"github.com/decorluxe-labs/commerce/core/pkg/observability"
	"github.com/decorluxe-labs/commerce/core/pkg/order"
	"github.com/decorluxe-labs/commerce/core/pkg/receipts"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run dispatches subcommands. Exposed for tests.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runServer(stderr)
	}

	switch args[1] {
	case "server", "serve":
		return runServer(stderr)
	case "seed":
		return runSeed(args[2:], stdout, stderr)
	case "health":
		return runHealth(stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Usage: commerced [command]

Commands:
  server   Run the checkout API server (default)
  seed     Load catalog products from a JSON file: commerced seed products.json
  health   Probe a running server's /health endpoint
  help     Show this help`)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func buildGateway(cfg *config.Config) (gateway.Gateway, error) {
	switch cfg.GatewayKind {
	case "hosted":
		return gateway.NewHosted(gateway.HostedConfig{
			BaseURL:   cfg.GatewayBaseURL,
			KeyID:     cfg.GatewayKeyID,
			KeySecret: cfg.GatewayKeySecret,
		})
	case "onchain":
		weiPerMinor, ok := new(big.Int).SetString(cfg.WeiPerMinor, 10)
		if !ok {
			return nil, fmt.Errorf("invalid CHAIN_WEI_PER_MINOR %q", cfg.WeiPerMinor)
		}
		return gateway.NewOnChain(gateway.OnChainConfig{
			RPCURL:           cfg.ChainRPCURL,
			MerchantAddress:  cfg.MerchantAddress,
			Network:          cfg.ChainNetwork,
			MinConfirmations: cfg.MinConfirmations,
			WeiPerMinor:      weiPerMinor,
		})
	default:
		return nil, fmt.Errorf("unknown GATEWAY_KIND %q (want hosted or onchain)", cfg.GatewayKind)
	}
}

func runServer(stderr io.Writer) int {
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if code := os.Getenv("MARKET_PROFILE"); code != "" {
		profile, err := config.LoadProfile(getenvDefault("PROFILES_DIR", "./profiles"), code)
		if err != nil {
			fmt.Fprintf(stderr, "failed to load market profile: %v\n", err)
			return 1
		}
		profile.Apply(cfg)
		logger.Info("market profile applied", "market", profile.Name, "code", profile.Code)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    "decorluxe-commerce",
		ServiceVersion: "1.0.0",
		Environment:    getenvDefault("ENVIRONMENT", "development"),
		OTLPEndpoint:   getenvDefault("OTLP_ENDPOINT", "localhost:4317"),
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        os.Getenv("OTEL_ENABLED") == "true",
		Insecure:       os.Getenv("OTLP_INSECURE") == "true",
	})
	if err != nil {
		fmt.Fprintf(stderr, "failed to init observability: %v\n", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	db, err := openDatabase(cfg.DatabasePath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to open database: %v\n", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	orders, err := order.NewStore(db)
	if err != nil {
		fmt.Fprintf(stderr, "failed to init order store: %v\n", err)
		return 1
	}
	cat, err := catalog.NewStore(db)
	if err != nil {
		fmt.Fprintf(stderr, "failed to init catalog store: %v\n", err)
		return 1
	}

	gw, err := buildGateway(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "failed to init payment gateway: %v\n", err)
		return 1
	}

	artifactStore, err := artifacts.NewStoreFromEnv(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "failed to init receipt store: %v\n", err)
		return 1
	}

	svc := checkout.NewService(orders, cat, gw,
		receipts.NewArchiver(artifactStore, logger.With("component", "receipts")),
		logger.With("component", "checkout"))
	svc.SetMaxCartLines(cfg.MaxCartLines)
	svc.SetRecorder(obs)

	var validator *auth.JWTValidator
	if cfg.JWTSecret != "" {
		validator, err = auth.NewJWTValidator(cfg.JWTSecret)
		if err != nil {
			fmt.Fprintf(stderr, "failed to init auth: %v\n", err)
			return 1
		}
	} else {
		logger.Warn("JWT_SECRET not set; all authenticated endpoints will reject requests")
	}

	var idempotencyStore api.IdempotencyStorer
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		idempotencyStore = api.NewRedisIdempotencyStore(client, cfg.IdempotencyTTL,
			logger.With("component", "idempotency"))
		logger.Info("using redis idempotency store", "addr", cfg.RedisAddr)
	} else {
		idempotencyStore = api.NewMemoryIdempotencyStore(cfg.IdempotencyTTL)
	}

	server := api.NewServer(svc, db.PingContext, logger.With("component", "api"))
	handler := api.Chain(server.Routes(),
		auth.RequestIDMiddleware,
		auth.CORSMiddleware(cfg.CORSOrigins),
		api.LoggingMiddleware(logger.With("component", "http")),
		auth.NewMiddleware(validator),
		auth.RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst),
		api.IdempotencyMiddleware(idempotencyStore),
	)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Stale Pending orders are swept on a fixed cadence so an abandoned
	// checkout cannot hold its payment window open forever.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := svc.CancelStale(ctx, cfg.PendingOrderTTL); err != nil {
					logger.Error("stale order sweep failed", "error", err)
				}
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", cfg.Port, "gateway", cfg.GatewayKind)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
			return 1
		}
		return 0
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(stderr, "server error: %v\n", err)
			return 1
		}
		return 0
	}
}

// runSeed loads catalog products from a JSON file into the database.
func runSeed(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "Usage: commerced seed <products.json>")
		return 2
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "failed to read %s: %v\n", args[0], err)
		return 1
	}

	var products []catalog.Product
	if err := json.Unmarshal(data, &products); err != nil {
		fmt.Fprintf(stderr, "failed to parse products: %v\n", err)
		return 1
	}

	cfg := config.Load()
	db, err := openDatabase(cfg.DatabasePath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to open database: %v\n", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	cat, err := catalog.NewStore(db)
	if err != nil {
		fmt.Fprintf(stderr, "failed to init catalog store: %v\n", err)
		return 1
	}

	ctx := context.Background()
	for i := range products {
		if products[i].Currency == "" {
			products[i].Currency = cfg.Currency
		}
		if err := cat.Put(ctx, &products[i]); err != nil {
			fmt.Fprintf(stderr, "failed to seed product %s: %v\n", products[i].ID, err)
			return 1
		}
	}
	fmt.Fprintf(stdout, "seeded %d products\n", len(products))
	return 0
}

func runHealth(stdout, stderr io.Writer) int {
	cfg := config.Load()
	resp, err := http.Get("http://localhost:" + cfg.Port + "/health")
	if err != nil {
		fmt.Fprintf(stderr, "health check failed: %v\n", err)
		return 1
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(stderr, "unhealthy: status %d\n", resp.StatusCode)
		return 1
	}
	fmt.Fprintln(stdout, "ok")
	return 0
}

func openDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; serialize access through a single
	// connection instead of racing on SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
