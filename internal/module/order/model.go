package order

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the status of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusPaid       Status = "paid"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// Order represents a purchase order. Orders are never deleted; they only
// move through the status transition table.
type Order struct {
	ID                uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrderNo           string     `json:"order_no" gorm:"uniqueIndex;not null"`
	Status            Status     `json:"status" gorm:"not null;default:pending;index"`
	Total             int64      `json:"total"` // XOF has no minor unit; stored as whole francs
	Currency          string     `json:"currency" gorm:"default:XOF"`
	PaymentMethod     string     `json:"payment_method,omitempty"`
	ProviderPaymentID string     `json:"provider_payment_id,omitempty" gorm:"index"`
	CustomerName      string     `json:"customer_name"`
	CustomerEmail     string     `json:"customer_email"`
	CustomerPhone     string     `json:"customer_phone"`
	ShippingAddress   string     `json:"shipping_address,omitempty"`
	ShippingCity      string     `json:"shipping_city,omitempty"`
	ShippingCountry   string     `json:"shipping_country,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`
	CancelledAt       *time.Time `json:"cancelled_at,omitempty"`
	RefundedAt        *time.Time `json:"refunded_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	// Relations
	Items []OrderItem `json:"items,omitempty" gorm:"foreignKey:OrderID"`
}

// TableName returns the database table name.
func (Order) TableName() string {
	return "orders"
}

// IsPending returns true if the order is awaiting checkout initiation.
func (o *Order) IsPending() bool {
	return o.Status == StatusPending
}

// IsPaid returns true if the order has been paid.
func (o *Order) IsPaid() bool {
	return o.Status == StatusPaid
}

// IsExpired returns true if the order's checkout window has elapsed.
func (o *Order) IsExpired() bool {
	return o.ExpiresAt != nil && time.Now().After(*o.ExpiresAt)
}

// OrderItem represents a line item in an order.
type OrderItem struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrderID     uuid.UUID `json:"order_id" gorm:"type:uuid;not null;index"`
	ProductName string    `json:"product_name" gorm:"not null"`
	Quantity    int       `json:"quantity" gorm:"default:1"`
	UnitPrice   int64     `json:"unit_price"`
	Amount      int64     `json:"amount"` // quantity * unit_price
}

// TableName returns the database table name.
func (OrderItem) TableName() string {
	return "order_items"
}
