package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bizassist/internal/metrics"
	"bizassist/internal/ratelimit"
	"bizassist/internal/sealer"
	"bizassist/internal/security"
	"bizassist/internal/tenantauth"
	"bizassist/internal/util"
	"bizassist/pkg/ai"
	"bizassist/pkg/cache"
	"bizassist/pkg/queue"
	"bizassist/pkg/storage"
	"bizassist/pkg/store"
	"bizassist/services/api/internal/app"
	"bizassist/services/api/internal/config"
	"bizassist/services/api/internal/server"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const googleAIScope = "https://www.googleapis.com/auth/generative-language"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "WARN: failed to load .env: %v\n", err)
	}
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := util.InitLogger(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providerTimeout := mustDuration("providerTimeout", cfg.ProviderTimeout)
	gatewayTimeout := mustDuration("gatewayTimeout", cfg.GatewayTimeout)
	jwtLeeway := mustDuration("jwtLeeway", cfg.JWTLeeway)

	db, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		util.Fatal("failed to init store", "err", err)
	}
	defer db.Close()

	appCfg := app.Config{
		Store:         db,
		ChatProviders: chatProviders(ctx, cfg, providerTimeout),
		Sufficiency:   app.SufficiencyPolicy{High: cfg.Sufficiency.High, Medium: cfg.Sufficiency.Medium},
		PresignExpiry: mustDuration("presignExpiry", cfg.PresignExpiry),
		Telephony: app.TelephonyConfig{
			GatherActionURL: cfg.GatherActionURL,
			Voice:           cfg.TelephonyVoice,
			Language:        cfg.TelephonyLanguage,
		},
		GoogleImageModel: cfg.GoogleImageModel,
		GoogleBaseURL:    cfg.GoogleAPIBaseURL,
	}

	if cfg.RedisAddr != "" {
		responses, err := cache.NewResponseCache(cache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			TTL:      mustDuration("cacheTTL", cfg.CacheTTL),
		})
		if err != nil {
			util.Fatal("failed to init response cache", "err", err)
		}
		appCfg.Cache = responses
	}

	dispatcher, closeQueue := logDispatcher(cfg)
	if dispatcher != nil {
		appCfg.Logs = dispatcher
	}

	if cfg.HuggingFaceToken != "" {
		appCfg.HuggingFaceImages = ai.NewHuggingFaceImages("", cfg.HuggingFaceToken, cfg.HuggingFaceModel, providerTimeout)
	}
	if cfg.OpenAIAPIKey != "" {
		appCfg.OpenAIImages = ai.NewOpenAIImages(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIImageModel, providerTimeout)
	}
	if cfg.GatewayURL != "" {
		appCfg.Gateway = ai.NewGatewayClient(cfg.GatewayURL, cfg.GatewayAPIKey, gatewayTimeout)
	}
	if cfg.MinioEndpoint != "" {
		objects, err := storage.NewMinioStore(storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			util.Fatal("failed to init object storage", "err", err)
		}
		appCfg.Objects = objects
	}

	if cfg.SealingKey != "" {
		seal, err := sealer.New(cfg.SealingKey)
		if err != nil {
			util.Fatal("failed to init sealer", "err", err)
		}
		appCfg.Sealer = seal
	}
	if cfg.OAuthClientID != "" {
		appCfg.OAuth = &oauth2.Config{
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			RedirectURL:  cfg.OAuthRedirectURL,
			Endpoint:     endpoints.Google,
			Scopes:       []string{googleAIScope},
		}
		state, err := tenantauth.NewStateSigner(cfg.StateSecret, 10*time.Minute)
		if err != nil {
			util.Fatal("failed to init oauth state signer", "err", err)
		}
		appCfg.State = state
	}

	appCore, err := app.New(appCfg)
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}
	logger.Info("chat providers configured", "order", appCore.ChatServices())

	verifier, err := tenantauth.NewVerifier(ctx, tenantauth.Config{
		JWKSURL:    cfg.AuthJWKSURL,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		Leeway:     jwtLeeway,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	})
	if err != nil {
		util.Fatal("failed to init jwks verifier", "err", err)
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		util.Fatal("failed to parse trusted proxies", "err", err)
	}

	srvCfg := server.Config{
		App:                appCore,
		Verifier:           verifier,
		TrustedProxies:     trusted,
		AllowedOrigins:     cfg.CORSOrigins,
		TelephonyAuthToken: cfg.TelephonyAuthToken,
		PublicBaseURL:      strings.TrimRight(cfg.PublicBaseURL, "/"),
		OAuthReturnURL:     cfg.OAuthReturnURL,
		Alerter:            security.NewAuditAlerter(cfg.RedisAddr, cfg.RedisPassword, "bizassist:api:alerts"),
	}
	if limit := cfg.AIRateLimitPerMin; limit > 0 {
		if cfg.RedisAddr != "" {
			limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "bizassist:ratelimit", limit, time.Minute)
			if err != nil {
				util.Fatal("failed to init rate limiter", "err", err)
			}
			srvCfg.AILimiter = limiter
		} else {
			srvCfg.AILimiter = ratelimit.NewMemoryLimiter(limit, time.Minute)
		}
	}
	httpServer := server.New(srvCfg)

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "err", err)
		}
	}()

	slog.Info("api server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}

	if dispatcher != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := dispatcher.Close(drainCtx); err != nil {
			logger.Warn("log dispatcher drain incomplete", "err", err)
		}
		cancel()
	}
	if closeQueue != nil {
		if err := closeQueue(); err != nil {
			logger.Warn("log queue close failed", "err", err)
		}
	}
}

// chatProviders builds the fallback chain in the configured order, skipping
// providers that have no credentials.
func chatProviders(ctx context.Context, cfg config.FileConfig, timeout time.Duration) []ai.ChatProvider {
	order := cfg.ProviderOrder
	if len(order) == 0 {
		order = []string{"groq", "ollama", "gemini", "openai"}
	}
	var out []ai.ChatProvider
	for _, name := range order {
		switch name {
		case "groq":
			if cfg.GroqAPIKey != "" {
				out = append(out, ai.NewGroqChat(cfg.GroqAPIKey, cfg.GroqModel, timeout))
			}
		case "ollama":
			if cfg.OllamaBaseURL != "" {
				out = append(out, ai.NewOllamaChat(cfg.OllamaBaseURL, cfg.OllamaModel, timeout))
			}
		case "gemini":
			if cfg.GeminiAPIKey != "" {
				gemini, err := ai.NewGeminiChat(ctx, cfg.GeminiBaseURL, cfg.GeminiAPIKey, cfg.GeminiModel, timeout)
				if err != nil {
					slog.Warn("gemini provider disabled", "err", err)
					continue
				}
				out = append(out, gemini)
			}
		case "openai":
			if cfg.OpenAIAPIKey != "" {
				out = append(out, ai.NewOpenAIChat(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel, timeout))
			}
		}
	}
	return out
}

// logDispatcher connects the configured log queue. Both results are nil when
// the queue is disabled.
func logDispatcher(cfg config.FileConfig) (*queue.Dispatcher, func() error) {
	var (
		publisher queue.Publisher
		closer    func() error
	)
	switch cfg.EffectiveQueueDriver() {
	case "redis":
		q, err := queue.NewRedisLogQueue(queue.RedisQueueConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Stream:   orDefault(cfg.QueueStream, "bizassist:logs"),
		})
		if err != nil {
			util.Fatal("failed to init redis log queue", "err", err)
		}
		publisher, closer = q, q.Close
	case "rabbitmq":
		q, err := queue.NewAMQPLogQueue(queue.AMQPQueueConfig{
			URL:   cfg.AMQPURL,
			Queue: orDefault(cfg.AMQPQueue, "bizassist.logs"),
		})
		if err != nil {
			util.Fatal("failed to init amqp log queue", "err", err)
		}
		publisher, closer = q, q.Close
	default:
		slog.Warn("log queue disabled; interaction and usage logs are not recorded")
		return nil, nil
	}
	dispatcher := queue.NewDispatcher(publisher, queue.DispatcherConfig{
		Buffer:  cfg.LogBuffer,
		Workers: cfg.LogWorkers,
		OnDrop: func(job queue.LogJob) {
			metrics.SideEffectsDropped.Inc()
		},
		OnFailure: func(job queue.LogJob, err error) {
			metrics.SideEffectsFailed.Inc()
		},
	})
	return dispatcher, closer
}

func mustDuration(name, raw string) time.Duration {
	d, err := config.ParseDuration(raw)
	if err != nil {
		util.Fatal("invalid duration", "field", name, "err", err)
	}
	return d
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
