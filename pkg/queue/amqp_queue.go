package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"bizassist/internal/util"

	amqp "github.com/rabbitmq/amqp091-go"
)

const attemptsHeader = "x-attempts"

// AMQPLogQueue publishes and consumes log jobs on a durable RabbitMQ queue.
type AMQPLogQueue struct {
	conn       *amqp.Connection
	queue      string
	maxRetries int
	prefetch   int

	mu      sync.Mutex
	pubChan amqpPublisher
}

// amqpPublisher is the part of *amqp.Channel used for publishing.
type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type AMQPQueueConfig struct {
	URL        string
	Queue      string
	MaxRetries int
	Prefetch   int
}

func NewAMQPLogQueue(cfg AMQPQueueConfig) (*AMQPLogQueue, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, errors.New("amqp url required")
	}
	name := strings.TrimSpace(cfg.Queue)
	if name == "" {
		return nil, errors.New("amqp queue name required")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp declare %s: %w", name, err)
	}
	q := &AMQPLogQueue{
		conn:       conn,
		queue:      name,
		maxRetries: cfg.MaxRetries,
		prefetch:   cfg.Prefetch,
		pubChan:    ch,
	}
	if q.maxRetries <= 0 {
		q.maxRetries = 5
	}
	if q.prefetch <= 0 {
		q.prefetch = 10
	}
	return q, nil
}

// Publish sends job as a persistent message.
func (q *AMQPLogQueue) Publish(ctx context.Context, job LogJob) error {
	if job.ID == "" {
		job.ID = util.NewID()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	return q.publishBody(ctx, job.ID, body, 0)
}

func (q *AMQPLogQueue) publishBody(ctx context.Context, id string, body []byte, attempts int32) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pubChan.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    id,
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table{attemptsHeader: attempts},
		Body:         body,
	})
}

// Start opens one channel per consumer. Failed jobs are republished with an
// incremented attempt counter until MaxRetries, then rejected.
func (q *AMQPLogQueue) Start(ctx context.Context, concurrency int, handler Handler) {
	if concurrency <= 0 {
		concurrency = 1
	}
	for i := 0; i < concurrency; i++ {
		go q.consumeLoop(ctx, fmt.Sprintf("logworker-%s-%d", util.NewID()[:8], i), handler)
	}
}

func (q *AMQPLogQueue) consumeLoop(ctx context.Context, tag string, handler Handler) {
	ch, err := q.conn.Channel()
	if err != nil {
		slog.Error("amqp consumer channel failed", "queue", q.queue, "err", err)
		return
	}
	defer ch.Close()
	if err := ch.Qos(q.prefetch, 0, false); err != nil {
		slog.Error("amqp qos failed", "queue", q.queue, "err", err)
		return
	}
	deliveries, err := ch.Consume(q.queue, tag, false, false, false, false, nil)
	if err != nil {
		slog.Error("amqp consume failed", "queue", q.queue, "err", err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			_ = ch.Cancel(tag, false)
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			q.handleDelivery(ctx, d, handler)
		}
	}
}

func (q *AMQPLogQueue) handleDelivery(ctx context.Context, d amqp.Delivery, handler Handler) {
	var job LogJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		slog.Warn("amqp dropped malformed message", "queue", q.queue, "message_id", d.MessageId)
		_ = d.Reject(false)
		return
	}
	herr := handler(ctx, job)
	if herr == nil {
		_ = d.Ack(false)
		return
	}
	attempts := headerAttempts(d.Headers) + 1
	if int(attempts) >= q.maxRetries {
		slog.Error("log job failed permanently", "job_id", job.ID, "kind", job.Kind, "attempts", attempts, "err", herr)
		_ = d.Reject(false)
		return
	}
	if err := q.publishBody(ctx, job.ID, d.Body, attempts); err != nil {
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

func headerAttempts(h amqp.Table) int32 {
	switch v := h[attemptsHeader].(type) {
	case int32:
		return v
	case int64:
		return int32(v)
	case int:
		return int32(v)
	case int16:
		return int32(v)
	case int8:
		return int32(v)
	default:
		return 0
	}
}

// Close shuts down channels and the connection.
func (q *AMQPLogQueue) Close() error {
	q.mu.Lock()
	if q.pubChan != nil {
		_ = q.pubChan.Close()
	}
	q.mu.Unlock()
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}
