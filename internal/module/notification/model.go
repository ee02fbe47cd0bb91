package notification

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Kind classifies notifications.
type Kind string

const (
	KindPaymentConfirmation Kind = "payment_confirmation"
	KindPaymentFailed       Kind = "payment_failed"
	KindRefundConfirmation  Kind = "refund_confirmation"
)

// NotificationStatus tracks delivery progress.
type NotificationStatus string

const (
	StatusQueued NotificationStatus = "queued"
	StatusSent   NotificationStatus = "sent"
	StatusFailed NotificationStatus = "failed"
)

// Notification is a pending or delivered customer notification. The delivery
// worker consumes the Redis queue and updates Status.
type Notification struct {
	ID        uuid.UUID          `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrderID   uuid.UUID          `json:"order_id" gorm:"type:uuid;index"`
	OrderNo   string             `json:"order_no" gorm:"index"`
	Kind      Kind               `json:"kind" gorm:"not null"`
	Recipient string             `json:"recipient"`
	Phone     string             `json:"phone,omitempty"`
	Channels  pq.StringArray     `json:"channels" gorm:"type:text[]"`
	Subject   string             `json:"subject"`
	Body      string             `json:"body"`
	Status    NotificationStatus `json:"status" gorm:"not null;default:queued"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// TableName returns the database table name.
func (Notification) TableName() string {
	return "notifications"
}
