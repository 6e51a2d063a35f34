package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/lumivoice/frontdesk-ai/cmd/mainconfig"
	"github.com/lumivoice/frontdesk-ai/internal/api/router"
	appconfig "github.com/lumivoice/frontdesk-ai/internal/config"
	"github.com/lumivoice/frontdesk-ai/internal/conversation"
	"github.com/lumivoice/frontdesk-ai/internal/http/handlers"
	"github.com/lumivoice/frontdesk-ai/internal/observability/metrics"
	"github.com/lumivoice/frontdesk-ai/internal/persona"
	"github.com/lumivoice/frontdesk-ai/internal/session"
	"github.com/lumivoice/frontdesk-ai/internal/stream"
	"github.com/lumivoice/frontdesk-ai/internal/trial"
	"github.com/lumivoice/frontdesk-ai/pkg/logging"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting frontdesk-ai API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Stores: Redis when configured, in-memory otherwise. A single-process
	// demo works with no infrastructure at all.
	var (
		ledger  trial.Ledger
		handles persona.HandleStore
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(redisOptions(cfg))
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("redis unreachable", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		ledger = trial.NewRedisLedger(rdb)
		handles = persona.NewRedisHandleStore(rdb, cfg.HandleTTL, nil)
		logger.Info("using redis stores", "addr", cfg.RedisAddr)
	} else {
		ledger = trial.NewMemoryLedger()
		handles = persona.NewMemoryHandleStore(cfg.HandleTTL, nil)
		logger.Warn("no REDIS_ADDR configured, using in-memory stores")
	}

	guard := trial.NewGuard(ledger, cfg.TrialEnforcement, cfg.TrialCallBudget, nil)
	registry := session.NewMemoryRegistry(nil)
	tokens := persona.NewTokenIssuer(cfg.SetupTokenSecret, cfg.SetupTokenTTL, nil)
	if cfg.SetupTokenSecret == "" {
		logger.Warn("SETUP_TOKEN_SECRET is empty, setup tokens are unsigned")
	}

	client := buildCompletionClient(ctx, cfg, logger)
	processor := conversation.NewProcessor(conversation.ProcessorConfig{
		Client:             client,
		Guard:              guard,
		Logger:             logger,
		Model:              cfg.BedrockModelID,
		CompletionDeadline: cfg.CompletionDeadline,
		MaxHistoryTurns:    cfg.MaxHistoryTurns,
		DefaultLanguage:    cfg.DefaultLanguage,
		SwitchConfirmTurns: cfg.SwitchConfirmTurns,
	})

	callMetrics := metrics.NewCallMetrics(nil)

	reaper := session.NewReaper(session.ReaperConfig{
		Registry:  registry,
		Handles:   handles,
		Logger:    logger,
		Interval:  cfg.ReaperInterval,
		IdleTTL:   cfg.SessionIdleTTL,
		HandleTTL: cfg.HandleTTL,
		OnEvict: func(callID string) {
			callMetrics.SessionEnded("evicted")
		},
	})
	go reaper.Run(ctx)

	voiceWebhook := handlers.NewVoiceWebhookHandler(handlers.VoiceWebhookConfig{
		Registry:        registry,
		Guard:           guard,
		Processor:       processor,
		Handles:         handles,
		Tokens:          tokens,
		Metrics:         callMetrics,
		Logger:          logger,
		DefaultLanguage: cfg.DefaultLanguage,
	})
	streamHandler := stream.NewHandler(stream.HandlerConfig{
		Registry:        registry,
		Guard:           guard,
		Processor:       processor,
		Handles:         handles,
		Tokens:          tokens,
		Metrics:         callMetrics,
		Logger:          logger,
		DefaultLanguage: cfg.DefaultLanguage,
	})

	r := router.New(&router.Config{
		Logger:              logger,
		VoiceWebhook:        voiceWebhook,
		Setup:               handlers.NewSetupHandler(handles, tokens, logger),
		Health:              handlers.NewHealthHandler(registry),
		Stream:              streamHandler,
		MetricsHandler:      promhttp.Handler(),
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		SetupRateLimit:      cfg.SetupRateLimit,
		SetupRateBurst:      cfg.SetupRateBurst,
		VoiceStartRateLimit: cfg.VoiceStartRateLimit,
		VoiceStartRateBurst: cfg.VoiceStartRateBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// buildCompletionClient wires Bedrock as the primary model with an optional
// Gemini fallback. Without a Bedrock model ID the fallback becomes primary.
func buildCompletionClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) conversation.CompletionClient {
	var primary conversation.CompletionClient
	if cfg.BedrockModelID != "" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		primary = conversation.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg))
	}

	var fallback conversation.CompletionClient
	if cfg.GeminiAPIKey != "" {
		gemini, err := conversation.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Error("failed to initialize gemini client", "error", err)
			os.Exit(1)
		}
		fallback = gemini
	}

	switch {
	case primary != nil && fallback != nil:
		logger.Info("completion stack: bedrock primary, gemini fallback",
			"bedrock_model", cfg.BedrockModelID, "gemini_model", cfg.GeminiModelID)
		return conversation.NewFallbackClient(primary, fallback, logger)
	case primary != nil:
		logger.Info("completion stack: bedrock only", "bedrock_model", cfg.BedrockModelID)
		return primary
	case fallback != nil:
		logger.Warn("no BEDROCK_MODEL_ID configured, using gemini as primary",
			"gemini_model", cfg.GeminiModelID)
		return fallback
	default:
		logger.Error("no completion provider configured, set BEDROCK_MODEL_ID or GEMINI_API_KEY")
		os.Exit(1)
		return nil
	}
}

func redisOptions(cfg *appconfig.Config) *redis.Options {
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}
