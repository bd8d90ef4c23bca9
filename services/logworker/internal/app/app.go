package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"bizassist/internal/metrics"
	"bizassist/pkg/domain"
	"bizassist/pkg/queue"
	"bizassist/pkg/store"
)

// Config holds runtime collaborators of the log worker.
type Config struct {
	Writer      store.LogWriter
	Consumer    queue.Consumer
	Concurrency int
}

// App drains interaction and usage log jobs into the database.
type App struct {
	writer      store.LogWriter
	consumer    queue.Consumer
	concurrency int
}

// New constructs the worker.
func New(cfg Config) (*App, error) {
	if cfg.Writer == nil {
		return nil, errors.New("log writer required")
	}
	if cfg.Consumer == nil {
		return nil, errors.New("queue consumer required")
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &App{writer: cfg.Writer, consumer: cfg.Consumer, concurrency: concurrency}, nil
}

// Start launches the consumer loops. They stop when ctx is cancelled.
func (a *App) Start(ctx context.Context) {
	slog.Info("log worker consuming", "concurrency", a.concurrency)
	a.consumer.Start(ctx, a.concurrency, a.HandleJob)
}

// HandleJob writes one job. Malformed jobs are acknowledged and skipped
// since a retry cannot fix them.
func (a *App) HandleJob(ctx context.Context, job queue.LogJob) error {
	if strings.TrimSpace(job.TenantID) == "" {
		slog.Warn("log job skipped", "job_id", job.ID, "kind", job.Kind, "reason", "missing tenant")
		metrics.LogJobsHandled.WithLabelValues(string(job.Kind), "skipped").Inc()
		return nil
	}
	var err error
	switch job.Kind {
	case queue.KindInteraction:
		err = a.writer.AppendInteractionLog(ctx, domain.InteractionLog{
			ID:         job.ID,
			TenantID:   job.TenantID,
			UserID:     job.UserID,
			Message:    job.Message,
			Response:   job.Response,
			ModuleHint: job.ModuleHint,
			Service:    job.Service,
			CreatedAt:  job.CreatedAt,
		})
	case queue.KindUsage:
		err = a.writer.AppendUsageLog(ctx, domain.UsageLog{
			ID:               job.ID,
			TenantID:         job.TenantID,
			UserID:           job.UserID,
			Service:          job.Service,
			Operation:        job.Operation,
			PromptTokens:     job.PromptTokens,
			CompletionTokens: job.CompletionTokens,
			Cached:           job.Cached,
			CreatedAt:        job.CreatedAt,
		})
	default:
		slog.Warn("log job skipped", "job_id", job.ID, "kind", job.Kind, "reason", "unknown kind")
		metrics.LogJobsHandled.WithLabelValues(string(job.Kind), "skipped").Inc()
		return nil
	}
	if err != nil {
		metrics.LogJobsHandled.WithLabelValues(string(job.Kind), "error").Inc()
		return fmt.Errorf("write %s log: %w", job.Kind, err)
	}
	metrics.LogJobsHandled.WithLabelValues(string(job.Kind), "ok").Inc()
	return nil
}
