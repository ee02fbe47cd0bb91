package audit

import (
	"context"

	"gorm.io/gorm"
)

// Filter narrows audit log queries.
type Filter struct {
	Provider  string
	OrderNo   string
	EventType EventType
}

// Repository defines the interface for audit log data access. The table is
// append-only: there are no update or delete operations.
type Repository interface {
	Append(ctx context.Context, entry *LogEntry) error
	List(ctx context.Context, filter *Filter, limit, offset int) ([]*LogEntry, int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new audit repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Append(ctx context.Context, entry *LogEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) List(ctx context.Context, filter *Filter, limit, offset int) ([]*LogEntry, int64, error) {
	var entries []*LogEntry
	var total int64

	query := r.db.WithContext(ctx).Model(&LogEntry{})
	if filter != nil {
		if filter.Provider != "" {
			query = query.Where("provider = ?", filter.Provider)
		}
		if filter.OrderNo != "" {
			query = query.Where("order_no = ?", filter.OrderNo)
		}
		if filter.EventType != "" {
			query = query.Where("event_type = ?", filter.EventType)
		}
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}
