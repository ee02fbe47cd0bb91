package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/terangashop/server/internal/shared/events"
	"github.com/terangashop/server/internal/shared/metrics"
)

// QueueKey is the Redis list the delivery worker consumes.
const QueueKey = "notifications:dispatch"

// Dispatcher turns payment events into queued customer notifications. It is
// registered on the event bus; the bus only ever publishes one
// PaymentSucceeded per order, so dispatch is exactly-once by construction.
type Dispatcher struct {
	repo    Repository
	redis   goredis.UniversalClient
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewDispatcher creates a new notification dispatcher. redis may be nil, in
// which case notifications are persisted but not queued.
func NewDispatcher(repo Repository, redis goredis.UniversalClient, m *metrics.Metrics, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		repo:    repo,
		redis:   redis,
		metrics: m,
		logger:  logger,
	}
}

// Handles returns the event types this dispatcher consumes.
func (d *Dispatcher) Handles() []string {
	return []string{
		events.PaymentSucceededType,
		events.PaymentFailedType,
		events.PaymentRefundedType,
	}
}

// Handle processes a payment event.
func (d *Dispatcher) Handle(event events.Event) error {
	switch e := event.(type) {
	case *events.PaymentSucceededEvent:
		return d.enqueue(&Notification{
			OrderID:   e.OrderID,
			OrderNo:   e.OrderNo,
			Kind:      KindPaymentConfirmation,
			Recipient: e.CustomerEmail,
			Phone:     e.CustomerPhone,
			Channels:  channelsFor(e.CustomerEmail, e.CustomerPhone),
			Subject:   fmt.Sprintf("Payment received for order %s", e.OrderNo),
			Body:      fmt.Sprintf("We received your payment of %d %s for order %s. Thank you!", e.Amount, e.Currency, e.OrderNo),
			Status:    StatusQueued,
		})
	case *events.PaymentFailedEvent:
		return d.enqueue(&Notification{
			OrderID:  e.OrderID,
			OrderNo:  e.OrderNo,
			Kind:     KindPaymentFailed,
			Channels: pq.StringArray{"email"},
			Subject:  fmt.Sprintf("Payment failed for order %s", e.OrderNo),
			Body:     fmt.Sprintf("Your payment for order %s did not go through. Please try again.", e.OrderNo),
			Status:   StatusQueued,
		})
	case *events.PaymentRefundedEvent:
		return d.enqueue(&Notification{
			OrderID:  e.OrderID,
			OrderNo:  e.OrderNo,
			Kind:     KindRefundConfirmation,
			Channels: pq.StringArray{"email"},
			Subject:  fmt.Sprintf("Refund issued for order %s", e.OrderNo),
			Body:     fmt.Sprintf("A refund of %d %s for order %s has been issued.", e.Amount, e.Currency, e.OrderNo),
			Status:   StatusQueued,
		})
	default:
		return nil
	}
}

type queueMessage struct {
	NotificationID string   `json:"notification_id"`
	Kind           Kind     `json:"kind"`
	Channels       []string `json:"channels"`
}

func (d *Dispatcher) enqueue(n *Notification) error {
	ctx := context.Background()

	n.ID = uuid.New()
	if err := d.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}

	if d.redis != nil {
		msg, err := json.Marshal(queueMessage{
			NotificationID: n.ID.String(),
			Kind:           n.Kind,
			Channels:       n.Channels,
		})
		if err != nil {
			return fmt.Errorf("marshal queue message: %w", err)
		}
		if err := d.redis.LPush(ctx, QueueKey, msg).Err(); err != nil {
			// The row exists; the worker can recover queued rows on restart
			d.logger.Error("failed to enqueue notification",
				zap.String("notification_id", n.ID.String()),
				zap.Error(err),
			)
			return nil
		}
	}

	d.metrics.NotificationsEnqueued.Inc()
	d.logger.Info("notification enqueued",
		zap.String("order_no", n.OrderNo),
		zap.String("kind", string(n.Kind)),
	)
	return nil
}

func channelsFor(email, phone string) pq.StringArray {
	var channels pq.StringArray
	if email != "" {
		channels = append(channels, "email")
	}
	if phone != "" {
		channels = append(channels, "sms")
	}
	return channels
}
