package order

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/terangashop/server/internal/shared/metrics"
)

// memRepository is an in-memory Repository for testing. TransitionStatus
// mirrors the production semantics: serialized, validated against the state
// machine, returns the previous status.
type memRepository struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*Order
	items  map[uuid.UUID][]OrderItem
	sm     *StateMachine
}

func newMemRepository() *memRepository {
	return &memRepository{
		orders: make(map[uuid.UUID]*Order),
		items:  make(map[uuid.UUID][]OrderItem),
		sm:     NewStateMachine(),
	}
}

func (m *memRepository) CreateOrder(_ context.Context, order *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *order
	m.orders[order.ID] = &cp
	return nil
}

func (m *memRepository) GetOrder(_ context.Context, id uuid.UUID) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memRepository) GetOrderWithItems(ctx context.Context, id uuid.UUID) (*Order, error) {
	o, err := m.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	o.Items = m.items[id]
	m.mu.Unlock()
	return o, nil
}

func (m *memRepository) GetOrderByNo(_ context.Context, orderNo string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.OrderNo == orderNo {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrOrderNotFound
}

func (m *memRepository) GetOrderByProviderPaymentID(_ context.Context, providerPaymentID string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ProviderPaymentID == providerPaymentID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrOrderNotFound
}

func (m *memRepository) UpdateOrder(_ context.Context, order *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *order
	m.orders[order.ID] = &cp
	return nil
}

func (m *memRepository) SetPaymentInfo(_ context.Context, id uuid.UUID, method, providerPaymentID string, expiresAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.PaymentMethod = method
	o.ProviderPaymentID = providerPaymentID
	if expiresAt != nil {
		o.ExpiresAt = expiresAt
	}
	return nil
}

func (m *memRepository) ListPendingExpiredOrders(_ context.Context) ([]*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Order
	now := time.Now()
	for _, o := range m.orders {
		if (o.Status == StatusPending || o.Status == StatusProcessing) && o.ExpiresAt != nil && o.ExpiresAt.Before(now) {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRepository) TransitionStatus(_ context.Context, id uuid.UUID, to Status) (Status, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return "", false, ErrOrderNotFound
	}
	previous := o.Status
	if previous == to {
		return previous, false, nil
	}
	if err := m.sm.Validate(previous, to); err != nil {
		return previous, false, err
	}
	o.Status = to
	return previous, true, nil
}

func (m *memRepository) CreateOrderItems(_ context.Context, items []OrderItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range items {
		m.items[item.OrderID] = append(m.items[item.OrderID], item)
	}
	return nil
}

func newTestService(repo Repository) *Service {
	return NewService(repo, metrics.New(prometheus.NewRegistry()), zap.NewNop())
}

func TestService_CreateOrder(t *testing.T) {
	repo := newMemRepository()
	svc := newTestService(repo)

	order, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		CustomerName:  "Awa Diop",
		CustomerEmail: "awa@example.sn",
		CustomerPhone: "+221771234567",
		ShippingCity:  "Dakar",
		Items: []CreateOrderItemRequest{
			{ProductName: "Boubou", Quantity: 2, UnitPrice: 15000},
			{ProductName: "Sandals", Quantity: 1, UnitPrice: 20000},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, order.Status)
	assert.Equal(t, int64(50000), order.Total)
	assert.Equal(t, "XOF", order.Currency)
	assert.NotEmpty(t, order.OrderNo)
	assert.Len(t, order.Items, 2)

	stored, err := svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNo, stored.OrderNo)
	assert.Len(t, stored.Items, 2)
}

func TestService_CreateOrder_Empty(t *testing.T) {
	svc := newTestService(newMemRepository())

	_, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		CustomerName:  "Awa Diop",
		CustomerEmail: "awa@example.sn",
	})
	assert.ErrorIs(t, err, ErrEmptyOrder)
}

func TestService_Transition_ReturnsPrevious(t *testing.T) {
	repo := newMemRepository()
	svc := newTestService(repo)

	order, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		CustomerName:  "Awa Diop",
		CustomerEmail: "awa@example.sn",
		Items:         []CreateOrderItemRequest{{ProductName: "Boubou", Quantity: 1, UnitPrice: 50000}},
	})
	require.NoError(t, err)

	previous, applied, err := svc.Transition(context.Background(), order.ID, StatusProcessing)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, StatusPending, previous)

	previous, applied, err = svc.Transition(context.Background(), order.ID, StatusPaid)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, StatusProcessing, previous)
}

func TestService_Transition_DuplicateIsNoop(t *testing.T) {
	repo := newMemRepository()
	svc := newTestService(repo)

	order, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		CustomerName:  "Awa Diop",
		CustomerEmail: "awa@example.sn",
		Items:         []CreateOrderItemRequest{{ProductName: "Boubou", Quantity: 1, UnitPrice: 50000}},
	})
	require.NoError(t, err)

	_, _, err = svc.Transition(context.Background(), order.ID, StatusProcessing)
	require.NoError(t, err)
	_, _, err = svc.Transition(context.Background(), order.ID, StatusPaid)
	require.NoError(t, err)

	// Same paid webhook delivered again
	previous, applied, err := svc.Transition(context.Background(), order.ID, StatusPaid)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, StatusPaid, previous)
}

func TestService_Transition_RefundedIsTerminal(t *testing.T) {
	repo := newMemRepository()
	svc := newTestService(repo)

	order, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		CustomerName:  "Awa Diop",
		CustomerEmail: "awa@example.sn",
		Items:         []CreateOrderItemRequest{{ProductName: "Boubou", Quantity: 1, UnitPrice: 50000}},
	})
	require.NoError(t, err)

	for _, to := range []Status{StatusProcessing, StatusPaid, StatusRefunded} {
		_, _, err = svc.Transition(context.Background(), order.ID, to)
		require.NoError(t, err)
	}

	for _, to := range []Status{StatusPending, StatusProcessing, StatusPaid} {
		_, applied, err := svc.Transition(context.Background(), order.ID, to)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.False(t, applied)
	}
}

func TestService_ExpirePendingOrders(t *testing.T) {
	repo := newMemRepository()
	svc := newTestService(repo)

	order, err := svc.CreateOrder(context.Background(), &CreateOrderRequest{
		CustomerName:  "Awa Diop",
		CustomerEmail: "awa@example.sn",
		Items:         []CreateOrderItemRequest{{ProductName: "Boubou", Quantity: 1, UnitPrice: 50000}},
	})
	require.NoError(t, err)

	past := time.Now().Add(-time.Minute)
	require.NoError(t, repo.SetPaymentInfo(context.Background(), order.ID, "", "", &past))

	expired, err := svc.ExpirePendingOrders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	got, err := svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
}
