package order

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository defines the interface for order data access.
type Repository interface {
	CreateOrder(ctx context.Context, order *Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	GetOrderWithItems(ctx context.Context, id uuid.UUID) (*Order, error)
	GetOrderByNo(ctx context.Context, orderNo string) (*Order, error)
	GetOrderByProviderPaymentID(ctx context.Context, providerPaymentID string) (*Order, error)
	UpdateOrder(ctx context.Context, order *Order) error
	SetPaymentInfo(ctx context.Context, id uuid.UUID, method, providerPaymentID string, expiresAt *time.Time) error
	ListPendingExpiredOrders(ctx context.Context) ([]*Order, error)

	// TransitionStatus applies a status transition atomically and returns the
	// status the order held before the update. When the order already holds
	// the target status the call is a no-op and applied is false, so callers
	// can tell a first-time transition from a duplicate webhook.
	TransitionStatus(ctx context.Context, id uuid.UUID, to Status) (previous Status, applied bool, err error)

	CreateOrderItems(ctx context.Context, items []OrderItem) error
}

type repository struct {
	db *gorm.DB
	sm *StateMachine
}

// NewRepository creates a new order repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db, sm: NewStateMachine()}
}

func (r *repository) CreateOrder(ctx context.Context, order *Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	var order Order
	err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) GetOrderWithItems(ctx context.Context, id uuid.UUID) (*Order, error) {
	var order Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) GetOrderByNo(ctx context.Context, orderNo string) (*Order, error) {
	var order Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		First(&order, "order_no = ?", orderNo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) GetOrderByProviderPaymentID(ctx context.Context, providerPaymentID string) (*Order, error) {
	var order Order
	err := r.db.WithContext(ctx).
		First(&order, "provider_payment_id = ?", providerPaymentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) UpdateOrder(ctx context.Context, order *Order) error {
	return r.db.WithContext(ctx).Save(order).Error
}

func (r *repository) SetPaymentInfo(ctx context.Context, id uuid.UUID, method, providerPaymentID string, expiresAt *time.Time) error {
	updates := map[string]interface{}{
		"payment_method":      method,
		"provider_payment_id": providerPaymentID,
	}
	if expiresAt != nil {
		updates["expires_at"] = expiresAt
	}
	result := r.db.WithContext(ctx).Model(&Order{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *repository) ListPendingExpiredOrders(ctx context.Context) ([]*Order, error) {
	var orders []*Order
	err := r.db.WithContext(ctx).
		Where("status IN ? AND expires_at IS NOT NULL AND expires_at < NOW()",
			[]Status{StatusPending, StatusProcessing}).
		Find(&orders).Error
	return orders, err
}

// TransitionStatus reads the order under a row lock, validates the transition
// against the state machine and writes the new status in the same
// transaction. Two concurrent webhooks for the same order serialize on the
// lock, so only one of them observes the pre-paid status.
func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, to Status) (Status, bool, error) {
	var previous Status
	applied := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order Order
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&order, "id = ?", id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}

		previous = order.Status
		if previous == to {
			// Duplicate delivery: nothing to do, not an error
			return nil
		}

		if err := r.sm.Validate(previous, to); err != nil {
			return err
		}

		now := time.Now()
		updates := map[string]interface{}{"status": to}
		switch to {
		case StatusPaid:
			updates["paid_at"] = now
		case StatusCancelled:
			updates["cancelled_at"] = now
		case StatusRefunded:
			updates["refunded_at"] = now
		}

		if err := tx.Model(&order).Updates(updates).Error; err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return previous, false, err
	}
	return previous, applied, nil
}

func (r *repository) CreateOrderItems(ctx context.Context, items []OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}
