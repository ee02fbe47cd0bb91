package payment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/terangashop/server/internal/module/audit"
	"github.com/terangashop/server/internal/module/order"
	"github.com/terangashop/server/internal/module/payment/provider"
	apperrors "github.com/terangashop/server/internal/shared/errors"
	"github.com/terangashop/server/internal/shared/events"
	"github.com/terangashop/server/internal/shared/metrics"
)

// --- Fakes ---

type memOrderRepo struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*order.Order
	sm     *order.StateMachine

	// failTransitions makes the next N TransitionStatus calls fail, to
	// simulate the database dropping out mid-reconciliation.
	failTransitions int
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{
		orders: make(map[uuid.UUID]*order.Order),
		sm:     order.NewStateMachine(),
	}
}

func (m *memOrderRepo) CreateOrder(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *memOrderRepo) GetOrder(_ context.Context, id uuid.UUID) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrderRepo) GetOrderWithItems(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return m.GetOrder(ctx, id)
}

func (m *memOrderRepo) GetOrderByNo(_ context.Context, orderNo string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.OrderNo == orderNo {
			cp := *o
			return &cp, nil
		}
	}
	return nil, order.ErrOrderNotFound
}

func (m *memOrderRepo) GetOrderByProviderPaymentID(_ context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ProviderPaymentID == id {
			cp := *o
			return &cp, nil
		}
	}
	return nil, order.ErrOrderNotFound
}

func (m *memOrderRepo) UpdateOrder(_ context.Context, o *order.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *memOrderRepo) SetPaymentInfo(_ context.Context, id uuid.UUID, method, providerPaymentID string, expiresAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return order.ErrOrderNotFound
	}
	o.PaymentMethod = method
	o.ProviderPaymentID = providerPaymentID
	if expiresAt != nil {
		o.ExpiresAt = expiresAt
	}
	return nil
}

func (m *memOrderRepo) ListPendingExpiredOrders(_ context.Context) ([]*order.Order, error) {
	return nil, nil
}

func (m *memOrderRepo) TransitionStatus(_ context.Context, id uuid.UUID, to order.Status) (order.Status, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTransitions > 0 {
		m.failTransitions--
		return "", false, errors.New("connection reset by peer")
	}
	o, ok := m.orders[id]
	if !ok {
		return "", false, order.ErrOrderNotFound
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

func (m *memOrderRepo) CreateOrderItems(_ context.Context, _ []order.OrderItem) error {
	return nil
}

type memPaymentRepo struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*Payment
	events   map[string]*WebhookEvent
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{
		payments: make(map[uuid.UUID]*Payment),
		events:   make(map[string]*WebhookEvent),
	}
}

func (m *memPaymentRepo) CreatePayment(_ context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *memPaymentRepo) GetPayment(_ context.Context, id uuid.UUID) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPaymentRepo) GetPaymentByOrderID(_ context.Context, orderID uuid.UUID) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.OrderID == orderID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPaymentNotFound
}

func (m *memPaymentRepo) GetPaymentByProviderPaymentID(_ context.Context, id string) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.payments {
		if p.ProviderPaymentID == id {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPaymentNotFound
}

func (m *memPaymentRepo) UpdatePayment(_ context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *memPaymentRepo) CreateWebhookEvent(_ context.Context, e *WebhookEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := string(e.Provider) + ":" + e.EventID
	if _, exists := m.events[key]; exists {
		return ErrDuplicateEvent
	}
	cp := *e
	m.events[key] = &cp
	return nil
}

func (m *memPaymentRepo) GetWebhookEvent(_ context.Context, method provider.Method, eventID string) (*WebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[string(method)+":"+eventID]
	if !ok {
		return nil, ErrEventNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memPaymentRepo) MarkWebhookEventProcessed(_ context.Context, method provider.Method, eventID string, processErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.events[string(method)+":"+eventID]; ok {
		e.Processed = processErr == nil
		if processErr != nil {
			e.ProcessError = processErr.Error()
		}
	}
	return nil
}

type memAuditRepo struct {
	mu      sync.Mutex
	entries []*audit.LogEntry
}

func (m *memAuditRepo) Append(_ context.Context, e *audit.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *memAuditRepo) List(_ context.Context, _ *audit.Filter, _, _ int) ([]*audit.LogEntry, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries, int64(len(m.entries)), nil
}

func (m *memAuditRepo) count(t audit.EventType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.EventType == t {
			n++
		}
	}
	return n
}

// fakeProvider is a scriptable Provider. ParseWebhook expects the payload to
// be a JSON-encoded provider.WebhookPayload with ProviderStatus set.
type fakeProvider struct {
	method        provider.Method
	initiateResp  *provider.InitiateResponse
	initiateErr   error
	validSig      string
	parsedPayload *provider.WebhookPayload
	refundErr     error
	refundCalls   int
}

func (f *fakeProvider) Name() provider.Method { return f.method }

func (f *fakeProvider) InitiatePayment(_ context.Context, _ *provider.InitiateRequest) (*provider.InitiateResponse, error) {
	if f.initiateErr != nil {
		return nil, f.initiateErr
	}
	return f.initiateResp, nil
}

func (f *fakeProvider) VerifyWebhook(_ []byte, signature string) error {
	if signature != f.validSig {
		return provider.ErrInvalidSignature
	}
	return nil
}

func (f *fakeProvider) ParseWebhook(_ []byte, _ map[string]string) (*provider.WebhookPayload, error) {
	if f.parsedPayload == nil {
		return nil, provider.ErrMalformedWebhook
	}
	cp := *f.parsedPayload
	return &cp, nil
}

func (f *fakeProvider) MapStatus(s string) provider.Status {
	if s == "SUCCESS" {
		return provider.StatusPaid
	}
	return provider.StatusFailed
}

func (f *fakeProvider) Refund(_ context.Context, _ string, _ int64) error {
	f.refundCalls++
	return f.refundErr
}

type captureHandler struct {
	mu     sync.Mutex
	events []events.Event
}

func (h *captureHandler) Handles() []string {
	return []string{events.PaymentSucceededType, events.PaymentFailedType, events.PaymentRefundedType}
}

func (h *captureHandler) Handle(e events.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
	return nil
}

func (h *captureHandler) byType(t string) []events.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []events.Event
	for _, e := range h.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

// --- Fixture ---

type fixture struct {
	svc       *Service
	orders    *order.Service
	orderRepo *memOrderRepo
	payments  *memPaymentRepo
	auditDB   *memAuditRepo
	captured  *captureHandler
	wave      *fakeProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	m := metrics.New(prometheus.NewRegistry())

	orderRepo := newMemOrderRepo()
	orderSvc := order.NewService(orderRepo, m, logger)

	auditDB := &memAuditRepo{}
	recorder := audit.NewRecorder(auditDB, nil, m, logger)

	bus := events.NewBus(logger)
	captured := &captureHandler{}
	bus.Register(captured)

	wave := &fakeProvider{
		method: provider.MethodWave,
		initiateResp: &provider.InitiateResponse{
			ProviderPaymentID: "cos-test-1",
			CheckoutURL:       "https://pay.wave.com/c/cos-test-1",
		},
		validSig: "good-signature",
	}

	paymentRepo := newMemPaymentRepo()
	svc := NewService(
		paymentRepo, orderSvc,
		&Registry{providers: map[provider.Method]provider.Provider{provider.MethodWave: wave}},
		recorder, bus, m, logger,
		"https://shop.example.sn", 30*time.Minute,
	)

	return &fixture{
		svc:       svc,
		orders:    orderSvc,
		orderRepo: orderRepo,
		payments:  paymentRepo,
		auditDB:   auditDB,
		captured:  captured,
		wave:      wave,
	}
}

func (f *fixture) createOrder(t *testing.T, total int64) *order.Order {
	t.Helper()
	o, err := f.orders.CreateOrder(context.Background(), &order.CreateOrderRequest{
		CustomerName:  "Awa Diop",
		CustomerEmail: "awa@example.sn",
		CustomerPhone: "+221771234567",
		Items:         []order.CreateOrderItemRequest{{ProductName: "Boubou", Quantity: 1, UnitPrice: total}},
	})
	require.NoError(t, err)
	return o
}

func paidWebhook(orderNo, eventID string) *provider.WebhookPayload {
	return &provider.WebhookPayload{
		Provider:       provider.MethodWave,
		EventID:        eventID,
		EventName:      "checkout.session.completed",
		OrderNo:        orderNo,
		PaymentID:      "cos-test-1",
		TransactionID:  "T_1",
		Status:         provider.StatusPaid,
		ProviderStatus: "succeeded",
		Amount:         50000,
		Currency:       "XOF",
	}
}

// --- Tests ---

func TestService_InitiateCheckout(t *testing.T) {
	f := newFixture(t)
	ord := f.createOrder(t, 50000)

	payment, err := f.svc.InitiateCheckout(context.Background(), ord.OrderNo, provider.MethodWave)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.wave.com/c/cos-test-1", payment.CheckoutURL)
	assert.Equal(t, "cos-test-1", payment.ProviderPaymentID)
	assert.Equal(t, int64(50000), payment.Amount)
	assert.Equal(t, "XOF", payment.Currency)

	got, err := f.orders.GetOrder(context.Background(), ord.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, got.Status)
	assert.Equal(t, "wave", got.PaymentMethod)

	assert.Equal(t, 1, f.auditDB.count(audit.EventCheckoutInitiated))
}

func TestService_InitiateCheckout_ProviderFailure(t *testing.T) {
	f := newFixture(t)
	ord := f.createOrder(t, 50000)
	f.wave.initiateErr = errors.New("connection refused")

	_, err := f.svc.InitiateCheckout(context.Background(), ord.OrderNo, provider.MethodWave)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "PROVIDER_API_ERROR", appErr.Code)
	assert.Equal(t, "payment unavailable", appErr.Message)

	// Order stays pending and the failure is audit-logged
	got, err := f.orders.GetOrder(context.Background(), ord.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, got.Status)
	assert.Equal(t, 1, f.auditDB.count(audit.EventCheckoutFailed))
}

func TestService_InitiateCheckout_OrderNotPending(t *testing.T) {
	f := newFixture(t)
	ord := f.createOrder(t, 50000)

	_, err := f.svc.InitiateCheckout(context.Background(), ord.OrderNo, provider.MethodWave)
	require.NoError(t, err)

	// Second initiation on a processing order is rejected
	_, err = f.svc.InitiateCheckout(context.Background(), ord.OrderNo, provider.MethodWave)
	assert.ErrorIs(t, err, ErrOrderNotPayable)
}

func TestService_InitiateCheckout_UnknownMethod(t *testing.T) {
	f := newFixture(t)
	ord := f.createOrder(t, 50000)

	_, err := f.svc.InitiateCheckout(context.Background(), ord.OrderNo, provider.MethodStripe)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestService_HandleWebhook_EndToEnd(t *testing.T) {
	f := newFixture(t)
	ord := f.createOrder(t, 50000)

	_, err := f.svc.InitiateCheckout(context.Background(), ord.OrderNo, provider.MethodWave)
	require.NoError(t, err)

	f.wave.parsedPayload = paidWebhook(ord.OrderNo, "EV_1")
	err = f.svc.HandleWebhook(context.Background(), provider.MethodWave, []byte(`{}`), "good-signature")
	require.NoError(t, err)

	got, err := f.orders.GetOrder(context.Background(), ord.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, got.Status)

	succeeded := f.captured.byType(events.PaymentSucceededType)
	require.Len(t, succeeded, 1)
	ev := succeeded[0].(*events.PaymentSucceededEvent)
	assert.Equal(t, ord.OrderNo, ev.OrderNo)
	assert.Equal(t, int64(50000), ev.Amount)
	assert.Equal(t, "XOF", ev.Currency)
	assert.Equal(t, "wave", ev.Provider)
}

func TestService_HandleWebhook_DuplicatePaidIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ord := f.createOrder(t, 50000)

	_, err := f.svc.InitiateCheckout(context.Background(), ord.OrderNo, provider.MethodWave)
	require.NoError(t, err)

	// Same paid event delivered twice
	f.wave.parsedPayload = paidWebhook(ord.OrderNo, "EV_1")
	require.NoError(t, f.svc.HandleWebhook(context.Background(), provider.MethodWave, []byte(`{}`), "good-signature"))
	require.NoError(t, f.svc.HandleWebhook(context.Background(), provider.MethodWave, []byte(`{}`), "good-signature"))

	// Exactly one downstream event, two audit entries
	assert.Len(t, f.captured.byType(events.PaymentSucceededType), 1)
	assert.Equal(t, 2, f.auditDB.count(audit.EventWebhookReceived))

	// A redelivery with a fresh event id is caught by the transition no-op
	f.wave.parsedPayload = paidWebhook(ord.OrderNo, "EV_2")
	require.NoError(t, f.svc.HandleWebhook(context.Background(), provider.MethodWave, []byte(`{}`), "good-signature"))
	assert.Len(t, f.captured.byType(events.PaymentSucceededType), 1)
	assert.Equal(t, 3, f.auditDB.count(audit.EventWebhookReceived))
}

func TestService_HandleWebhook_RedeliveryFinishesFailedAttempt(t *testing.T) {
	f := newFixture(t)
	ord := f.createOrder(t, 50000)

	_, err := f.svc.InitiateCheckout(context.Background(), ord.OrderNo, provider.MethodWave)
	require.NoError(t, err)

	// The database drops out while the first delivery reconciles
	f.wave.parsedPayload = paidWebhook(ord.OrderNo, "EV_1")
	f.orderRepo.failTransitions = 1
	err = f.svc.HandleWebhook(context.Background(), provider.MethodWave, []byte(`{}`), "good-signature")
	require.Error(t, err)

	got, err := f.orders.GetOrder(context.Background(), ord.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, got.Status)

	// The provider redelivers the same event id; the stored row is
	// unprocessed, so reconciliation runs again and completes
	require.NoError(t, f.svc.HandleWebhook(context.Background(), provider.MethodWave, []byte(`{}`), "good-signature"))

	got, err = f.orders.GetOrder(context.Background(), ord.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, got.Status)
	assert.Len(t, f.captured.byType(events.PaymentSucceededType), 1)

	stored, err := f.payments.GetWebhookEvent(context.Background(), provider.MethodWave, "EV_1")
	require.NoError(t, err)
	assert.True(t, stored.Processed)

	// A third delivery is now a plain duplicate
	require.NoError(t, f.svc.HandleWebhook(context.Background(), provider.MethodWave, []byte(`{}`), "good-signature"))
	assert.Len(t, f.captured.byType(events.PaymentSucceededType), 1)
}

func TestService_HandleWebhook_BadSignature(t *testing.T) {
	f := newFixture(t)
	ord := f.createOrder(t, 50000)

	_, err := f.svc.InitiateCheckout(context.Background(), ord.OrderNo, provider.MethodWave)
	require.NoError(t, err)

	f.wave.parsedPayload = paidWebhook(ord.OrderNo, "EV_1")
	err = f.svc.HandleWebhook(context.Background(), provider.MethodWave, []byte(`{}`), "tampered")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrVerification)

	// No state mutated, but the attempt is audit-logged as a security event
	got, err := f.orders.GetOrder(context.Background(), ord.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, got.Status)
	assert.Empty(t, f.captured.byType(events.PaymentSucceededType))
	assert.Equal(t, 1, f.auditDB.count(audit.EventWebhookRejected))
}

func TestService_HandleWebhook_UnknownOrder(t *testing.T) {
	f := newFixture(t)

	f.wave.parsedPayload = paidWebhook("TS-does-not-exist", "EV_1")
	err := f.svc.HandleWebhook(context.Background(), provider.MethodWave, []byte(`{}`), "good-signature")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrReconciliation)
	assert.Equal(t, 1, f.auditDB.count(audit.EventWebhookUnmatched))
}

func TestService_Refund(t *testing.T) {
	f := newFixture(t)
	ord := f.createOrder(t, 50000)

	payment, err := f.svc.InitiateCheckout(context.Background(), ord.OrderNo, provider.MethodWave)
	require.NoError(t, err)

	f.wave.parsedPayload = paidWebhook(ord.OrderNo, "EV_1")
	require.NoError(t, f.svc.HandleWebhook(context.Background(), provider.MethodWave, []byte(`{}`), "good-signature"))

	require.NoError(t, f.svc.Refund(context.Background(), payment.ID))
	assert.Equal(t, 1, f.wave.refundCalls)

	got, err := f.orders.GetOrder(context.Background(), ord.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusRefunded, got.Status)
	assert.Len(t, f.captured.byType(events.PaymentRefundedType), 1)
	assert.Equal(t, 1, f.auditDB.count(audit.EventRefundInitiated))
}

func TestService_Refund_NotPaid(t *testing.T) {
	f := newFixture(t)
	ord := f.createOrder(t, 50000)

	payment, err := f.svc.InitiateCheckout(context.Background(), ord.OrderNo, provider.MethodWave)
	require.NoError(t, err)

	err = f.svc.Refund(context.Background(), payment.ID)
	assert.ErrorIs(t, err, ErrNotRefundable)
	assert.Equal(t, 0, f.wave.refundCalls)

	got, err := f.orders.GetOrder(context.Background(), ord.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, got.Status)
}
