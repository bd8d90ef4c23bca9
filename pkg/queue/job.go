package queue

import (
	"context"
	"time"
)

// JobKind distinguishes log records carried by the queue.
type JobKind string

const (
	KindInteraction JobKind = "interaction"
	KindUsage       JobKind = "usage"
)

// LogJob is an append-only log write produced after a response is served.
type LogJob struct {
	ID               string    `json:"id"`
	Kind             JobKind   `json:"kind"`
	TenantID         string    `json:"tenantId"`
	UserID           string    `json:"userId"`
	Message          string    `json:"message,omitempty"`
	Response         string    `json:"response,omitempty"`
	ModuleHint       string    `json:"moduleHint,omitempty"`
	Service          string    `json:"service"`
	Operation        string    `json:"operation,omitempty"`
	PromptTokens     int       `json:"promptTokens,omitempty"`
	CompletionTokens int       `json:"completionTokens,omitempty"`
	Cached           bool      `json:"cached,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Handler processes one job. A non-nil error schedules a retry.
type Handler func(context.Context, LogJob) error

// Publisher hands jobs to the external queue.
type Publisher interface {
	Publish(ctx context.Context, job LogJob) error
}

// Consumer runs handler for jobs as they arrive until ctx is done.
type Consumer interface {
	Start(ctx context.Context, concurrency int, handler Handler)
}
