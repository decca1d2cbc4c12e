// MultiChat API server: multi-provider chat with metered billing.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"multichat/internal/ai"
	"multichat/internal/arbiter"
	"multichat/internal/arena"
	"multichat/internal/auth"
	"multichat/internal/catalog"
	"multichat/internal/chat"
	"multichat/internal/config"
	"multichat/internal/db"
	"multichat/internal/files"
	"multichat/internal/handlers"
	"multichat/internal/ledger"
	"multichat/internal/logging"
	"multichat/internal/metrics"
	"multichat/internal/middleware"
	"multichat/internal/payments"
	"multichat/internal/pricing"
	"multichat/internal/stats"
)

func main() {
	// No .env in production; the environment is already set there.
	_ = godotenv.Load()

	cfg := config.Load()

	logging.Init()
	defer logging.Sync()

	database, err := db.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		logging.L().Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	var redisClient *db.RedisClient
	if cfg.RedisURL != "" {
		redisClient, err = db.NewRedisClient(cfg.RedisURL)
		if err != nil {
			logging.L().Warn("redis unavailable, admin overview cache disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	cat := catalog.New(catalog.Credentials{
		OpenAI:    cfg.OpenAIKey != "",
		Anthropic: cfg.AnthropicKey != "",
		Google:    cfg.GoogleKey != "",
		Together:  cfg.TogetherKey != "",
	})
	logging.L().Info("model catalog ready", zap.Int("available_models", len(cat.ListAvailable())))

	adapters := map[catalog.Provider]ai.Adapter{}
	if cfg.OpenAIKey != "" {
		adapters[catalog.ProviderOpenAI] = ai.NewOpenAIClient(cfg.OpenAIKey)
	}
	if cfg.AnthropicKey != "" {
		adapters[catalog.ProviderAnthropic] = ai.NewAnthropicClient(cfg.AnthropicKey)
	}
	if cfg.GoogleKey != "" {
		adapters[catalog.ProviderGoogle] = ai.NewGoogleClient(cfg.GoogleKey)
	}
	if cfg.TogetherKey != "" {
		adapters[catalog.ProviderTogether] = ai.NewTogetherClient(cfg.TogetherKey)
	}
	dispatcher := ai.NewDispatcher(cat, adapters, cfg.RequestTimeout)

	pricingEngine := pricing.NewEngine(cat)
	ledgerSvc := ledger.NewService(database.DB, pricingEngine)

	store, err := buildBlobStore(cfg)
	if err != nil {
		logging.L().Fatal("failed to initialize file storage", zap.Error(err))
	}
	fileSvc := files.NewService(database.DB, store, cfg.MaxUploadMB<<20)

	authSvc := auth.NewService(database.DB, cfg.JWTSecret, cfg.JWTExpiry, cfg.BCryptCost)

	handler := &handlers.Handler{
		DB:            database.DB,
		Auth:          authSvc,
		Catalog:       cat,
		Chat:          chat.NewService(database.DB, cat, dispatcher, ledgerSvc, fileSvc),
		Arena:         arena.NewService(dispatcher, ledgerSvc, fileSvc),
		Arbiter:       arbiter.NewService(dispatcher, ledgerSvc, cfg.ArbiterModel),
		Files:         fileSvc,
		Ledger:        ledgerSvc,
		Stats:         stats.NewService(database.DB, redisClient),
		Payments:      payments.NewService(database.DB, ledgerSvc, cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.StripeSuccessURL, cfg.StripeCancelURL),
		SignupBalance: cfg.SignupBalance,
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.CORS(cfg.AllowedOrigins),
		metrics.PrometheusMiddleware(),
	)

	limiter := middleware.NewClientRateLimiter(cfg.RateLimitRPS, cfg.RateBurst)
	handler.RegisterRoutes(router, limiter)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logging.L().Info("server starting", zap.String("port", cfg.Port), zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.L().Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.L().Error("forced shutdown", zap.Error(err))
	}
	logging.L().Info("server stopped")
}

// buildBlobStore picks S3 when a bucket is configured, local disk
// otherwise.
func buildBlobStore(cfg *config.Config) (files.BlobStore, error) {
	if cfg.S3Bucket != "" {
		return files.NewS3Store(context.Background(), cfg.S3Bucket, cfg.S3Region)
	}
	return files.NewDiskStore(cfg.StorageDir)
}
