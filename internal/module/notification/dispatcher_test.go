package notification

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/terangashop/server/internal/shared/events"
	"github.com/terangashop/server/internal/shared/metrics"
)

type stubRepo struct {
	created []*Notification
}

func (s *stubRepo) Create(_ context.Context, n *Notification) error {
	cp := *n
	s.created = append(s.created, &cp)
	return nil
}

func (s *stubRepo) ListByOrder(_ context.Context, _ uuid.UUID) ([]*Notification, error) {
	return s.created, nil
}

func (s *stubRepo) UpdateStatus(_ context.Context, _ uuid.UUID, _ NotificationStatus) error {
	return nil
}

func newTestDispatcher(repo Repository) *Dispatcher {
	return NewDispatcher(repo, nil, metrics.New(prometheus.NewRegistry()), zap.NewNop())
}

func TestDispatcher_PaymentSucceeded(t *testing.T) {
	repo := &stubRepo{}
	d := newTestDispatcher(repo)

	ev := events.NewPaymentSucceededEvent(
		uuid.New(), uuid.New(), "TS-20260829-abcd1234",
		50000, "XOF", "wave",
		"awa@example.sn", "+221771234567",
	)
	require.NoError(t, d.Handle(ev))

	require.Len(t, repo.created, 1)
	n := repo.created[0]
	assert.Equal(t, KindPaymentConfirmation, n.Kind)
	assert.Equal(t, "awa@example.sn", n.Recipient)
	assert.ElementsMatch(t, []string{"email", "sms"}, []string(n.Channels))
	assert.Equal(t, StatusQueued, n.Status)
	assert.Contains(t, n.Body, "50000 XOF")
	assert.Contains(t, n.Body, "TS-20260829-abcd1234")
}

func TestDispatcher_EmailOnlyWhenNoPhone(t *testing.T) {
	repo := &stubRepo{}
	d := newTestDispatcher(repo)

	ev := events.NewPaymentSucceededEvent(
		uuid.New(), uuid.New(), "TS-1",
		1000, "XOF", "stripe",
		"awa@example.sn", "",
	)
	require.NoError(t, d.Handle(ev))

	require.Len(t, repo.created, 1)
	assert.Equal(t, []string{"email"}, []string(repo.created[0].Channels))
}

func TestDispatcher_PaymentFailed(t *testing.T) {
	repo := &stubRepo{}
	d := newTestDispatcher(repo)

	ev := events.NewPaymentFailedEvent(
		uuid.New(), uuid.New(), "TS-2",
		"payment_failed", "declined", "orange_money",
	)
	require.NoError(t, d.Handle(ev))

	require.Len(t, repo.created, 1)
	assert.Equal(t, KindPaymentFailed, repo.created[0].Kind)
}

func TestDispatcher_PaymentRefunded(t *testing.T) {
	repo := &stubRepo{}
	d := newTestDispatcher(repo)

	ev := events.NewPaymentRefundedEvent(
		uuid.New(), uuid.New(), "TS-3",
		50000, "XOF", "wave",
	)
	require.NoError(t, d.Handle(ev))

	require.Len(t, repo.created, 1)
	assert.Equal(t, KindRefundConfirmation, repo.created[0].Kind)
}
