package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tinikov/stockapi/internal/digest"
	"github.com/tinikov/stockapi/internal/handler"
	"github.com/tinikov/stockapi/internal/health"
	"github.com/tinikov/stockapi/internal/inventory"
)

func main() {
	if err := loadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "stockd: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(viper.GetBool("log.development"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "stockd: build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("stockd exited with error", zap.Error(err))
	}
}

func loadConfig() error {
	viper.SetConfigName("stockd")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("configs")
	viper.AddConfigPath(".")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.port", 8000)
	viper.SetDefault("server.cors_origins", []string{})
	viper.SetDefault("server.rate_limit_rps", 20)
	viper.SetDefault("database.url", "")
	viper.SetDefault("auth.realm", "tinikov-webserver")
	viper.SetDefault("auth.users", map[string]string{"tinikov": "SU(3)group"})
	viper.SetDefault("auth.protect_api", false)
	viper.SetDefault("auth.nonce_tracking", "none")
	viper.SetDefault("auth.nonce_ttl", "5m")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("log.development", false)

	if err := viper.ReadInConfig(); err != nil {
		var cfgNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgNotFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(logger *zap.Logger) error {
	if viper.ConfigFileUsed() == "" {
		logger.Warn("no config file found, using defaults and env vars")
	}
	ctx := context.Background()

	checker := health.New(health.Config{}, logger)
	checker.SetMetricsRecord(handler.RecordDependencyCheck)

	// ── Store ─────────────────────────────────────────────────────────────────
	var store inventory.Store
	if dsn := viper.GetString("database.url"); dsn != "" {
		db, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer db.Close()

		if err := db.Ping(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres")
		checker.Register("postgres", db.Ping)
		store = inventory.NewPostgresStore(db, logger)
	} else {
		logger.Warn("database.url not set, using in-memory store; data is lost on restart")
		store = inventory.NewMemoryStore()
	}
	ledger := inventory.NewLedger(store, logger)

	// ── Digest authentication ────────────────────────────────────────────────
	creds := digest.NewCredentialStore(viper.GetStringMapString("auth.users"))
	if creds.Len() == 0 {
		return errors.New("auth.users is empty; /secret would be unreachable")
	}
	auth := digest.NewAuthenticator(viper.GetString("auth.realm"), creds, logger)

	nonceTTL := viper.GetDuration("auth.nonce_ttl")
	if nonceTTL <= 0 {
		nonceTTL = 5 * time.Minute
	}
	var memTracker *digest.MemoryNonceTracker
	switch mode := viper.GetString("auth.nonce_tracking"); mode {
	case "", "none":
		logger.Info("nonce tracking disabled; digest replies can be replayed")
	case "memory":
		memTracker = digest.NewMemoryNonceTracker(nonceTTL, 0)
		auth.SetNonceTracker(memTracker)
		logger.Info("nonce tracking: memory", zap.Duration("ttl", nonceTTL))
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: viper.GetString("redis.addr")})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		checker.Register("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		auth.SetNonceTracker(digest.NewRedisNonceTracker(rdb, nonceTTL))
		logger.Info("nonce tracking: redis",
			zap.String("addr", viper.GetString("redis.addr")),
			zap.Duration("ttl", nonceTTL),
		)
	default:
		return fmt.Errorf("unknown auth.nonce_tracking %q (want none, memory or redis)", mode)
	}

	// ── HTTP Router ───────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	var limiter *handler.IPRateLimiter
	if rps := viper.GetInt("server.rate_limit_rps"); rps > 0 {
		limiter = handler.NewIPRateLimiter(rps, rps*2)
	}

	router := handler.NewRouter(ledger, auth, handler.RouterConfig{
		CORSOrigins: viper.GetStringSlice("server.cors_origins"),
		RateLimiter: limiter,
		ProtectAPI:  viper.GetBool("auth.protect_api"),
		Health:      checker,
	}, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	checkCtx, stopChecks := context.WithCancel(context.Background())
	defer stopChecks()
	go checker.Start(checkCtx)

	// ── Background: evict expired nonces and idle rate limiters ──────────────
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if memTracker != nil {
					if n := memTracker.Evict(); n > 0 {
						logger.Debug("evicted expired nonces", zap.Int("count", n))
					}
				}
				if limiter != nil {
					limiter.Cleanup(10 * time.Minute)
				}
			case <-done:
				return
			}
		}
	}()

	port := viper.GetInt("server.port")
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("stockd HTTP listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ──────────────────────────────────────────────────────
	<-quit
	close(done)
	stopChecks()
	logger.Info("shutting down stockd...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("stockd stopped")
	return nil
}
