package notification

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines the interface for notification data access.
type Repository interface {
	Create(ctx context.Context, n *Notification) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*Notification, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status NotificationStatus) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new notification repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, n *Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*Notification, error) {
	var notifications []*Notification
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&notifications).Error
	return notifications, err
}

func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, status NotificationStatus) error {
	return r.db.WithContext(ctx).
		Model(&Notification{}).
		Where("id = ?", id).
		Update("status", status).Error
}
