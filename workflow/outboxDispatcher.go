package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/mmdatafocus/rentals_backend/repository"
	"github.com/sirupsen/logrus"
)

//go:generate mockgen -source=outboxDispatcher.go -destination=mock_publisher_test.go -package=workflow

// Publisher sends one message and returns the broker-assigned id.
type Publisher interface {
	Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error)
}

type OutboxDispatcher struct {
	Outbox       repository.OutboxRepository
	Publisher    Publisher
	Topic        string
	Logger       *logrus.Logger
	DispatcherID string

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration

	now func() time.Time
}

func NewOutboxDispatcher(outbox repository.OutboxRepository, publisher Publisher, topic string, logger *logrus.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{
		Outbox:         outbox,
		Publisher:      publisher,
		Topic:          topic,
		Logger:         logger,
		DispatcherID:   uuid.NewString(),
		BatchSize:      50,
		PollInterval:   500 * time.Millisecond,
		LockTimeout:    30 * time.Second,
		MaxAttempts:    20,
		InitialBackoff: 5 * time.Second,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, err := d.DispatchOnce(ctx); err != nil && ctx.Err() == nil && d.Logger != nil {
			d.Logger.WithFields(logrus.Fields{"field": "OutboxDispatcher"}).Error("outbox claim failed: " + err.Error())
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.PollInterval):
		}
	}
}

// DispatchOnce claims one batch and publishes it. It returns how many rows were sent.
func (d *OutboxDispatcher) DispatchOnce(ctx context.Context) (int, error) {
	now := d.now()
	claimed, err := d.Outbox.ClaimDue(ctx, repository.ClaimParams{
		Now:          now,
		StaleBefore:  now.Add(-d.LockTimeout),
		Limit:        d.BatchSize,
		DispatcherID: d.DispatcherID,
		MaxAttempts:  d.MaxAttempts,
	})
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, rec := range claimed {
		attrs := map[string]string{
			"event_type":     rec.EventType,
			"aggregate_id":   rec.AggregateId,
			"correlation_id": rec.CorrelationId,
		}
		msgID, pubErr := d.Publisher.Publish(ctx, d.Topic, rec.Payload, attrs)
		if pubErr != nil {
			d.markPublishFailed(ctx, rec, pubErr)
			continue
		}
		if err := d.Outbox.MarkSent(ctx, rec.ID, msgID, d.now()); err != nil && d.Logger != nil {
			d.Logger.WithFields(logrus.Fields{
				"field":     "OutboxDispatcher",
				"record_id": rec.ID,
			}).Error("failed to mark outbox row sent: " + err.Error())
			continue
		}
		sent++
	}
	return sent, nil
}

func (d *OutboxDispatcher) markPublishFailed(ctx context.Context, rec models.OutboxRecord, err error) {
	attempt := rec.PublishAttempts
	msg := err.Error()

	// Terminal after MaxAttempts (DLQ equivalent).
	if d.MaxAttempts > 0 && attempt >= d.MaxAttempts {
		_ = d.Outbox.MarkFailed(ctx, rec.ID, msg, nil, true)
		if d.Logger != nil {
			d.Logger.WithFields(logrus.Fields{
				"field":        "OutboxDispatcher",
				"record_id":    rec.ID,
				"aggregate_id": rec.AggregateId,
				"attempt":      attempt,
			}).Error("outbox publish moved to DEAD after max attempts: " + fmt.Sprintf("%v", err))
		}
		return
	}

	next := d.now().Add(d.backoff(attempt))
	_ = d.Outbox.MarkFailed(ctx, rec.ID, msg, &next, false)
	if d.Logger != nil {
		d.Logger.WithFields(logrus.Fields{
			"field":        "OutboxDispatcher",
			"record_id":    rec.ID,
			"aggregate_id": rec.AggregateId,
			"attempt":      attempt,
			"next_attempt": next,
		}).Warn("outbox publish failed: " + msg)
	}
}

func (d *OutboxDispatcher) backoff(attempt int) time.Duration {
	backoff := d.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff > 10*time.Minute {
			return 10 * time.Minute
		}
	}
	return backoff
}
