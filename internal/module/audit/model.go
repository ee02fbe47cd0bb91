package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies audit log entries.
type EventType string

const (
	EventCheckoutInitiated EventType = "checkout.initiated"
	EventCheckoutFailed    EventType = "checkout.failed"
	EventWebhookReceived   EventType = "webhook.received"
	// EventWebhookRejected records a webhook that failed signature
	// verification. Security event; the payload is still preserved.
	EventWebhookRejected EventType = "webhook.rejected"
	// EventWebhookUnmatched records a verified webhook referencing an order
	// we don't know. Flagged for manual review.
	EventWebhookUnmatched EventType = "webhook.unmatched"
	EventRefundInitiated  EventType = "refund.initiated"
	EventRefundFailed     EventType = "refund.failed"
)

// LogEntry is an immutable audit record. Rows are only ever inserted; there
// is no update or delete path and no UpdatedAt column.
type LogEntry struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	EventType     EventType `json:"event_type" gorm:"not null;index"`
	Provider      string    `json:"provider" gorm:"index"`
	OrderNo       string    `json:"order_no" gorm:"index"`
	PaymentID     string    `json:"payment_id,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Payload       string    `json:"payload,omitempty" gorm:"type:text"`
	CreatedAt     time.Time `json:"created_at" gorm:"index"`
}

// TableName returns the database table name.
func (LogEntry) TableName() string {
	return "payment_audit_logs"
}
