package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

var (
	_ core.AuditPublisher = (*RabbitPublisher)(nil)
	_ core.AuditPublisher = (*LogPublisher)(nil)
)

// RabbitPublisher sends job events to a durable topic exchange, routed by
// job type and action.
type RabbitPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func NewRabbitPublisher(url, exchange string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &RabbitPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, event models.AuditEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel.PublishWithContext(ctx,
		p.exchange,
		event.RoutingKey(),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.JobID,
			Timestamp:    event.OccurredAt,
			Body:         body,
		},
	)
}

func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.channel.Close()
	return p.conn.Close()
}

// LogPublisher writes events to the structured log. Used when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, event models.AuditEvent) error {
	p.logger.InfoContext(ctx, "audit event",
		"action", event.Action,
		"job_id", event.JobID,
		"tenant_id", event.OrganizationID,
		"job_type", event.JobType,
		"routing_key", event.RoutingKey(),
	)
	return nil
}

// Record publishes a job event. Publish failures are logged and never
// surface to the caller.
func Record(ctx context.Context, p core.AuditPublisher, logger *slog.Logger, action models.AuditAction, job *models.IngestionJob, detail map[string]any) {
	if p == nil || job == nil {
		return
	}
	event := models.AuditEvent{
		Action:         action,
		JobID:          job.ID,
		OrganizationID: job.OrganizationID,
		JobType:        job.JobType,
		Detail:         detail,
		OccurredAt:     time.Now().UTC(),
	}
	if err := p.Publish(ctx, event); err != nil && logger != nil {
		logger.Warn("audit publish failed", "job_id", job.ID, "action", action, "error", err)
	}
}
