package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"bizassist/pkg/domain"
	"bizassist/pkg/queue"
	"bizassist/pkg/store"

	"github.com/alicebob/miniredis/v2"
)

type failingWriter struct{}

func (failingWriter) AppendInteractionLog(context.Context, domain.InteractionLog) error {
	return errors.New("db down")
}

func (failingWriter) AppendUsageLog(context.Context, domain.UsageLog) error {
	return errors.New("db down")
}

type nopConsumer struct{}

func (nopConsumer) Start(context.Context, int, queue.Handler) {}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Config{Consumer: nopConsumer{}}); err == nil {
		t.Fatalf("New() expected error without writer")
	}
	if _, err := New(Config{Writer: store.NewMemoryStore()}); err == nil {
		t.Fatalf("New() expected error without consumer")
	}
}

func TestHandleJobWritesByKind(t *testing.T) {
	mem := store.NewMemoryStore()
	worker, err := New(Config{Writer: mem, Consumer: nopConsumer{}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	created := time.Date(2026, 10, 3, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()

	if err := worker.HandleJob(ctx, queue.LogJob{
		ID:         "job-1",
		Kind:       queue.KindInteraction,
		TenantID:   "t1",
		UserID:     "u1",
		Message:    "show overdue invoices",
		Response:   "INV-7 is overdue",
		ModuleHint: "invoicing",
		Service:    "groq",
		CreatedAt:  created,
	}); err != nil {
		t.Fatalf("interaction job: %v", err)
	}
	if err := worker.HandleJob(ctx, queue.LogJob{
		ID:           "job-2",
		Kind:         queue.KindUsage,
		TenantID:     "t1",
		Service:      "groq",
		Operation:    "chat",
		PromptTokens: 12,
		Cached:       true,
		CreatedAt:    created,
	}); err != nil {
		t.Fatalf("usage job: %v", err)
	}
	// Redelivery of the same job is idempotent.
	if err := worker.HandleJob(ctx, queue.LogJob{ID: "job-2", Kind: queue.KindUsage, TenantID: "t1", Service: "groq"}); err != nil {
		t.Fatalf("duplicate usage job: %v", err)
	}

	chats := mem.InteractionLogs("t1")
	if len(chats) != 1 || chats[0].ModuleHint != "invoicing" || !chats[0].CreatedAt.Equal(created) {
		t.Fatalf("unexpected interaction logs: %+v", chats)
	}
	usage := mem.UsageLogs("t1")
	if len(usage) != 1 || usage[0].PromptTokens != 12 || !usage[0].Cached {
		t.Fatalf("unexpected usage logs: %+v", usage)
	}
}

func TestHandleJobSkipsMalformed(t *testing.T) {
	mem := store.NewMemoryStore()
	worker, _ := New(Config{Writer: mem, Consumer: nopConsumer{}})
	ctx := context.Background()

	if err := worker.HandleJob(ctx, queue.LogJob{Kind: queue.KindUsage, Service: "groq"}); err != nil {
		t.Fatalf("missing tenant should be skipped, got %v", err)
	}
	if err := worker.HandleJob(ctx, queue.LogJob{Kind: "audit", TenantID: "t1"}); err != nil {
		t.Fatalf("unknown kind should be skipped, got %v", err)
	}
	if got := len(mem.UsageLogs("t1")) + len(mem.InteractionLogs("t1")); got != 0 {
		t.Fatalf("expected nothing written, got %d rows", got)
	}
}

func TestHandleJobReturnsWriteErrorForRetry(t *testing.T) {
	worker, _ := New(Config{Writer: failingWriter{}, Consumer: nopConsumer{}})
	err := worker.HandleJob(context.Background(), queue.LogJob{Kind: queue.KindInteraction, TenantID: "t1"})
	if err == nil {
		t.Fatalf("expected write error")
	}
}

func TestStartDrainsRedisStream(t *testing.T) {
	mr := miniredis.RunT(t)
	q, err := queue.NewRedisLogQueue(queue.RedisQueueConfig{
		Addr:       mr.Addr(),
		Stream:     "bizassist:logs:test",
		Group:      "logworker",
		Block:      50 * time.Millisecond,
		RetryDelay: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("redis queue: %v", err)
	}
	defer q.Close()

	mem := store.NewMemoryStore()
	worker, err := New(Config{Writer: mem, Consumer: q, Concurrency: 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	if err := q.Publish(ctx, queue.LogJob{Kind: queue.KindUsage, TenantID: "t1", Service: "openai", Operation: "generate-image"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if logs := mem.UsageLogs("t1"); len(logs) == 1 {
			if logs[0].Operation != "generate-image" {
				t.Fatalf("unexpected usage log: %+v", logs[0])
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("usage log was not written before deadline")
}
