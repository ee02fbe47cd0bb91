package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/terangashop/server/internal/shared/metrics"
)

// Recorder appends audit entries without ever failing the caller. A write
// failure is logged at error level and counted, so the gap is observable,
// but the payment flow continues.
type Recorder struct {
	repo     Repository
	archiver *Archiver
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewRecorder creates a new audit recorder. archiver may be nil when payload
// archival is disabled.
func NewRecorder(repo Repository, archiver *Archiver, m *metrics.Metrics, logger *zap.Logger) *Recorder {
	return &Recorder{
		repo:     repo,
		archiver: archiver,
		metrics:  m,
		logger:   logger,
	}
}

// Record appends an audit entry, best effort.
func (r *Recorder) Record(ctx context.Context, entry *LogEntry) {
	if err := r.repo.Append(ctx, entry); err != nil {
		r.metrics.AuditWriteFailures.Inc()
		r.logger.Error("audit log write failed",
			zap.String("event_type", string(entry.EventType)),
			zap.String("provider", entry.Provider),
			zap.String("order_no", entry.OrderNo),
			zap.Error(err),
		)
	}

	if r.archiver != nil && entry.Payload != "" {
		if _, err := r.archiver.Archive(ctx, entry); err != nil {
			r.logger.Error("audit payload archival failed",
				zap.String("event_type", string(entry.EventType)),
				zap.String("order_no", entry.OrderNo),
				zap.Error(err),
			)
		}
	}
}
