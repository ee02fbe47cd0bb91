package events

import "github.com/google/uuid"

// Payment event type constants.
const (
	PaymentSucceededType = "PaymentSucceeded"
	PaymentFailedType    = "PaymentFailed"
	PaymentRefundedType  = "PaymentRefunded"
)

// PaymentSucceededEvent is emitted exactly once per order, on the first
// transition to paid. Duplicate webhooks never reach the bus.
type PaymentSucceededEvent struct {
	BaseEvent

	// PaymentID is the unique identifier of the payment record.
	PaymentID uuid.UUID `json:"payment_id"`

	// OrderID is the ID of the order this payment is for.
	OrderID uuid.UUID `json:"order_id"`

	// OrderNo is the human-facing order reference.
	OrderNo string `json:"order_no"`

	// Amount is the payment amount in minor currency units.
	Amount int64 `json:"amount"`

	// Currency is the ISO currency code (e.g., "XOF").
	Currency string `json:"currency"`

	// Provider is the payment provider name (e.g., "wave", "orange_money", "stripe").
	Provider string `json:"provider"`

	// CustomerEmail is the address confirmation notifications go to.
	CustomerEmail string `json:"customer_email,omitempty"`

	// CustomerPhone is the number SMS confirmations go to.
	CustomerPhone string `json:"customer_phone,omitempty"`
}

// NewPaymentSucceededEvent creates a new PaymentSucceededEvent.
func NewPaymentSucceededEvent(
	paymentID, orderID uuid.UUID,
	orderNo string,
	amount int64,
	currency, provider, customerEmail, customerPhone string,
) *PaymentSucceededEvent {
	return &PaymentSucceededEvent{
		BaseEvent:     NewBaseEvent(PaymentSucceededType, "Payment"),
		PaymentID:     paymentID,
		OrderID:       orderID,
		OrderNo:       orderNo,
		Amount:        amount,
		Currency:      currency,
		Provider:      provider,
		CustomerEmail: customerEmail,
		CustomerPhone: customerPhone,
	}
}

// PaymentFailedEvent is emitted when a payment definitively fails.
type PaymentFailedEvent struct {
	BaseEvent

	PaymentID uuid.UUID `json:"payment_id"`
	OrderID   uuid.UUID `json:"order_id"`
	OrderNo   string    `json:"order_no"`

	// FailureCode is the error code from the payment provider.
	FailureCode string `json:"failure_code,omitempty"`

	// FailureMessage is a human-readable error message.
	FailureMessage string `json:"failure_message,omitempty"`

	Provider string `json:"provider"`
}

// NewPaymentFailedEvent creates a new PaymentFailedEvent.
func NewPaymentFailedEvent(
	paymentID, orderID uuid.UUID,
	orderNo, failureCode, failureMessage, provider string,
) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent:      NewBaseEvent(PaymentFailedType, "Payment"),
		PaymentID:      paymentID,
		OrderID:        orderID,
		OrderNo:        orderNo,
		FailureCode:    failureCode,
		FailureMessage: failureMessage,
		Provider:       provider,
	}
}

// PaymentRefundedEvent is emitted when a refund completes.
type PaymentRefundedEvent struct {
	BaseEvent

	PaymentID uuid.UUID `json:"payment_id"`
	OrderID   uuid.UUID `json:"order_id"`
	OrderNo   string    `json:"order_no"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Provider  string    `json:"provider"`
}

// NewPaymentRefundedEvent creates a new PaymentRefundedEvent.
func NewPaymentRefundedEvent(
	paymentID, orderID uuid.UUID,
	orderNo string,
	amount int64,
	currency, provider string,
) *PaymentRefundedEvent {
	return &PaymentRefundedEvent{
		BaseEvent: NewBaseEvent(PaymentRefundedType, "Payment"),
		PaymentID: paymentID,
		OrderID:   orderID,
		OrderNo:   orderNo,
		Amount:    amount,
		Currency:  currency,
		Provider:  provider,
	}
}
