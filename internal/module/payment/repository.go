package payment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/terangashop/server/internal/module/payment/provider"
)

// Repository defines the interface for payment data access.
type Repository interface {
	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error)
	GetPaymentByOrderID(ctx context.Context, orderID uuid.UUID) (*Payment, error)
	GetPaymentByProviderPaymentID(ctx context.Context, providerPaymentID string) (*Payment, error)
	UpdatePayment(ctx context.Context, p *Payment) error

	// CreateWebhookEvent inserts an event row; ErrDuplicateEvent is returned
	// when (provider, event_id) was already recorded.
	CreateWebhookEvent(ctx context.Context, e *WebhookEvent) error
	GetWebhookEvent(ctx context.Context, provider provider.Method, eventID string) (*WebhookEvent, error)
	MarkWebhookEventProcessed(ctx context.Context, provider provider.Method, eventID string, processErr error) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new payment repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreatePayment(ctx context.Context, p *Payment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *repository) GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	var p Payment
	err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *repository) GetPaymentByOrderID(ctx context.Context, orderID uuid.UUID) (*Payment, error) {
	var p Payment
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		First(&p, "order_id = ?", orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *repository) GetPaymentByProviderPaymentID(ctx context.Context, providerPaymentID string) (*Payment, error) {
	var p Payment
	err := r.db.WithContext(ctx).First(&p, "provider_payment_id = ?", providerPaymentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *repository) UpdatePayment(ctx context.Context, p *Payment) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *repository) CreateWebhookEvent(ctx context.Context, e *WebhookEvent) error {
	err := r.db.WithContext(ctx).Create(e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEvent
		}
		return err
	}
	return nil
}

func (r *repository) GetWebhookEvent(ctx context.Context, method provider.Method, eventID string) (*WebhookEvent, error) {
	var e WebhookEvent
	err := r.db.WithContext(ctx).
		First(&e, "provider = ? AND event_id = ?", method, eventID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *repository) MarkWebhookEventProcessed(ctx context.Context, method provider.Method, eventID string, processErr error) error {
	updates := map[string]interface{}{"processed": true}
	if processErr != nil {
		updates["processed"] = false
		updates["process_error"] = processErr.Error()
	}
	return r.db.WithContext(ctx).
		Model(&WebhookEvent{}).
		Where("provider = ? AND event_id = ?", method, eventID).
		Updates(updates).Error
}
