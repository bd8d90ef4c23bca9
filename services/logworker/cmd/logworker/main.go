package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bizassist/internal/metrics"
	"bizassist/internal/util"
	"bizassist/pkg/queue"
	"bizassist/pkg/store"
	"bizassist/services/logworker/internal/app"
	"bizassist/services/logworker/internal/config"

	"github.com/joho/godotenv"
)

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

	db, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		util.Fatal("failed to init store", "err", err)
	}
	defer db.Close()

	retryDelay, _ := config.ParseRetryDelay(cfg.RetryDelay)
	var (
		consumer queue.Consumer
		closer   func() error
	)
	switch cfg.QueueDriver {
	case "rabbitmq":
		q, err := queue.NewAMQPLogQueue(queue.AMQPQueueConfig{
			URL:        cfg.AMQPURL,
			Queue:      orDefault(cfg.AMQPQueue, "bizassist.logs"),
			MaxRetries: cfg.MaxRetries,
			Prefetch:   cfg.Concurrency,
		})
		if err != nil {
			util.Fatal("failed to init amqp log queue", "err", err)
		}
		consumer, closer = q, q.Close
	default:
		q, err := queue.NewRedisLogQueue(queue.RedisQueueConfig{
			Addr:       cfg.RedisAddr,
			Password:   cfg.RedisPassword,
			Stream:     orDefault(cfg.QueueStream, "bizassist:logs"),
			Group:      orDefault(cfg.QueueGroup, "logworker"),
			Consumer:   util.NewID(),
			MaxRetries: cfg.MaxRetries,
			RetryDelay: retryDelay,
		})
		if err != nil {
			util.Fatal("failed to init redis log queue", "err", err)
		}
		consumer, closer = q, q.Close
	}

	worker, err := app.New(app.Config{Writer: db, Consumer: consumer, Concurrency: cfg.Concurrency})
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}
	worker.Start(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/metrics", metrics.Handler())

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      util.WithRequestID(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "err", err)
		}
	}()

	slog.Info("logworker listening", "addr", addr, "queue", cfg.QueueDriver)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
	if err := closer(); err != nil {
		logger.Warn("log queue close failed", "err", err)
	}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
