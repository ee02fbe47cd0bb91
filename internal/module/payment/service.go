package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/terangashop/server/internal/module/audit"
	"github.com/terangashop/server/internal/module/order"
	"github.com/terangashop/server/internal/module/payment/provider"
	apperrors "github.com/terangashop/server/internal/shared/errors"
	"github.com/terangashop/server/internal/shared/events"
	"github.com/terangashop/server/internal/shared/metrics"
)

// Service owns checkout initiation, webhook reconciliation and refunds.
type Service struct {
	repo          Repository
	orders        *order.Service
	registry      *Registry
	recorder      *audit.Recorder
	bus           *events.Bus
	metrics       *metrics.Metrics
	logger        *zap.Logger
	publicBaseURL string
	orderExpiry   time.Duration
}

// NewService creates a new payment service.
func NewService(
	repo Repository,
	orders *order.Service,
	registry *Registry,
	recorder *audit.Recorder,
	bus *events.Bus,
	m *metrics.Metrics,
	logger *zap.Logger,
	publicBaseURL string,
	orderExpiry time.Duration,
) *Service {
	return &Service{
		repo:          repo,
		orders:        orders,
		registry:      registry,
		recorder:      recorder,
		bus:           bus,
		metrics:       m,
		logger:        logger,
		publicBaseURL: publicBaseURL,
		orderExpiry:   orderExpiry,
	}
}

// InitiateCheckout creates a hosted checkout session for a pending order and
// moves the order to processing.
func (s *Service) InitiateCheckout(ctx context.Context, orderNo string, method provider.Method) (*Payment, error) {
	p, err := s.registry.Get(method)
	if err != nil {
		return nil, err
	}

	ord, err := s.orders.GetOrderByNo(ctx, orderNo)
	if err != nil {
		return nil, err
	}
	if !ord.IsPending() {
		return nil, ErrOrderNotPayable
	}
	if ord.IsExpired() {
		return nil, ErrOrderExpired
	}

	req := &provider.InitiateRequest{
		OrderID:       ord.ID.String(),
		OrderNo:       ord.OrderNo,
		Amount:        ord.Total,
		Currency:      ord.Currency,
		Description:   fmt.Sprintf("Teranga Shop order %s", ord.OrderNo),
		CustomerEmail: ord.CustomerEmail,
		CustomerPhone: ord.CustomerPhone,
		SuccessURL:    s.publicBaseURL + "/checkout/success?order_no=" + ord.OrderNo,
		CancelURL:     s.publicBaseURL + "/checkout/cancel?order_no=" + ord.OrderNo,
		NotifyURL:     s.publicBaseURL + "/webhooks/" + webhookPath(method),
		Metadata:      map[string]string{"order_no": ord.OrderNo},
	}

	resp, err := p.InitiatePayment(ctx, req)
	if err != nil {
		s.metrics.CheckoutsTotal.WithLabelValues(string(method), "error").Inc()
		s.recorder.Record(ctx, &audit.LogEntry{
			EventType: audit.EventCheckoutFailed,
			Provider:  string(method),
			OrderNo:   ord.OrderNo,
			Payload:   err.Error(),
		})
		return nil, apperrors.ProviderAPI(string(method), err)
	}

	expiresAt := resp.ExpiresAt
	if expiresAt == nil && s.orderExpiry > 0 {
		t := time.Now().Add(s.orderExpiry)
		expiresAt = &t
	}

	payment := &Payment{
		ID:                uuid.New(),
		OrderID:           ord.ID,
		OrderNo:           ord.OrderNo,
		Provider:          method,
		ProviderPaymentID: resp.ProviderPaymentID,
		Amount:            ord.Total,
		Currency:          ord.Currency,
		Status:            provider.StatusProcessing,
		CheckoutURL:       resp.CheckoutURL,
		ExpiresAt:         expiresAt,
	}
	if err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	if err := s.orders.SetPaymentInfo(ctx, ord.ID, string(method), resp.ProviderPaymentID, expiresAt); err != nil {
		return nil, fmt.Errorf("set payment info: %w", err)
	}
	if _, _, err := s.orders.Transition(ctx, ord.ID, order.StatusProcessing); err != nil {
		return nil, fmt.Errorf("transition order: %w", err)
	}

	initiatedPayload, _ := json.Marshal(map[string]string{
		"provider_payment_id": resp.ProviderPaymentID,
		"checkout_url":        resp.CheckoutURL,
	})
	s.recorder.Record(ctx, &audit.LogEntry{
		EventType: audit.EventCheckoutInitiated,
		Provider:  string(method),
		OrderNo:   ord.OrderNo,
		PaymentID: resp.ProviderPaymentID,
		Payload:   string(initiatedPayload),
	})
	s.metrics.CheckoutsTotal.WithLabelValues(string(method), "success").Inc()

	s.logger.Info("checkout initiated",
		zap.String("order_no", ord.OrderNo),
		zap.String("provider", string(method)),
		zap.Int64("amount", ord.Total),
		zap.String("provider_payment_id", resp.ProviderPaymentID),
	)

	return payment, nil
}

// HandleWebhook verifies, parses and reconciles an inbound provider webhook.
// Every delivery is audit-logged, including rejected and duplicate ones.
// Side effects (events, notifications) fire only when the order transition
// actually applies, so duplicate deliveries are no-ops beyond the audit log.
func (s *Service) HandleWebhook(ctx context.Context, method provider.Method, payload []byte, signature string) error {
	p, err := s.registry.Get(method)
	if err != nil {
		return err
	}

	if err := p.VerifyWebhook(payload, signature); err != nil {
		s.metrics.WebhookEventsTotal.WithLabelValues(string(method), "rejected").Inc()
		s.recorder.Record(ctx, &audit.LogEntry{
			EventType: audit.EventWebhookRejected,
			Provider:  string(method),
			Payload:   string(payload),
		})
		s.logger.Warn("webhook signature verification failed",
			zap.String("provider", string(method)),
			zap.Error(err),
		)
		return apperrors.Verification("")
	}

	wp, err := p.ParseWebhook(payload, nil)
	if err != nil {
		s.metrics.WebhookEventsTotal.WithLabelValues(string(method), "malformed").Inc()
		s.recorder.Record(ctx, &audit.LogEntry{
			EventType: audit.EventWebhookRejected,
			Provider:  string(method),
			Payload:   string(payload),
		})
		return apperrors.BadRequest("malformed webhook payload")
	}

	// Every verified delivery lands in the audit log, duplicates included
	s.recorder.Record(ctx, &audit.LogEntry{
		EventType:     audit.EventWebhookReceived,
		Provider:      string(method),
		OrderNo:       wp.OrderNo,
		PaymentID:     wp.PaymentID,
		TransactionID: wp.TransactionID,
		Payload:       string(payload),
	})

	err = s.repo.CreateWebhookEvent(ctx, &WebhookEvent{
		Provider:  method,
		EventID:   wp.EventID,
		EventName: wp.EventName,
		OrderNo:   wp.OrderNo,
		Payload:   string(payload),
	})
	switch {
	case errors.Is(err, ErrDuplicateEvent):
		stored, getErr := s.repo.GetWebhookEvent(ctx, method, wp.EventID)
		if getErr != nil {
			return fmt.Errorf("load webhook event: %w", getErr)
		}
		if stored.Processed {
			s.metrics.WebhookEventsTotal.WithLabelValues(string(method), "duplicate").Inc()
			s.logger.Info("duplicate webhook event",
				zap.String("provider", string(method)),
				zap.String("event_id", wp.EventID),
			)
			return nil
		}
		// The first delivery failed mid-flight; the conditional transition
		// makes a second reconciliation run safe, so the provider's
		// redelivery gets to finish the work.
		s.logger.Info("reprocessing webhook event after failed attempt",
			zap.String("provider", string(method)),
			zap.String("event_id", wp.EventID),
		)
	case err != nil:
		return fmt.Errorf("store webhook event: %w", err)
	}

	processErr := s.reconcile(ctx, wp)
	if err := s.repo.MarkWebhookEventProcessed(ctx, method, wp.EventID, processErr); err != nil {
		s.logger.Error("failed to mark webhook event processed",
			zap.String("event_id", wp.EventID),
			zap.Error(err),
		)
	}

	result := "processed"
	if processErr != nil {
		result = "conflict"
	}
	s.metrics.WebhookEventsTotal.WithLabelValues(string(method), result).Inc()
	return processErr
}

// reconcile applies a normalized webhook to the order it references.
func (s *Service) reconcile(ctx context.Context, wp *provider.WebhookPayload) error {
	if wp.OrderNo == "" {
		s.flagUnmatched(ctx, wp)
		return apperrors.Reconciliation("webhook carries no order reference")
	}

	ord, err := s.orders.GetOrderByNo(ctx, wp.OrderNo)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			s.flagUnmatched(ctx, wp)
			return apperrors.Reconciliation("webhook references unknown order " + wp.OrderNo)
		}
		return err
	}

	target, actionable := targetStatus(wp.Status)
	if !actionable {
		// Intermediate provider states carry no transition for us
		return nil
	}

	previous, applied, err := s.orders.Transition(ctx, ord.ID, target)
	if err != nil {
		if errors.Is(err, order.ErrInvalidTransition) {
			s.logger.Warn("webhook status conflicts with order state",
				zap.String("order_no", ord.OrderNo),
				zap.String("order_status", string(ord.Status)),
				zap.String("webhook_status", string(wp.Status)),
			)
			return apperrors.Reconciliation("webhook status conflicts with order state")
		}
		return err
	}
	if !applied {
		// Duplicate report of a state we already hold; audit-only
		return nil
	}

	payment, err := s.repo.GetPaymentByOrderID(ctx, ord.ID)
	if err != nil && !errors.Is(err, ErrPaymentNotFound) {
		return err
	}
	if payment != nil {
		payment.Status = wp.Status
		if wp.TransactionID != "" {
			payment.TransactionID = wp.TransactionID
		}
		if err := s.repo.UpdatePayment(ctx, payment); err != nil {
			s.logger.Error("failed to update payment record",
				zap.String("order_no", ord.OrderNo),
				zap.Error(err),
			)
		}
	}

	s.publishTransition(ord, payment, wp, previous, target)
	return nil
}

// publishTransition emits the domain event for a first-time transition.
func (s *Service) publishTransition(ord *order.Order, payment *Payment, wp *provider.WebhookPayload, previous, target order.Status) {
	paymentID := uuid.Nil
	if payment != nil {
		paymentID = payment.ID
	}

	switch target {
	case order.StatusPaid:
		s.logger.Info("order paid",
			zap.String("order_no", ord.OrderNo),
			zap.String("previous_status", string(previous)),
			zap.Int64("amount", ord.Total),
		)
		s.bus.Publish(events.NewPaymentSucceededEvent(
			paymentID, ord.ID, ord.OrderNo,
			ord.Total, ord.Currency, string(wp.Provider),
			ord.CustomerEmail, ord.CustomerPhone,
		))
	case order.StatusFailed:
		s.bus.Publish(events.NewPaymentFailedEvent(
			paymentID, ord.ID, ord.OrderNo,
			wp.ProviderStatus, "payment reported failed by provider", string(wp.Provider),
		))
	case order.StatusRefunded:
		s.bus.Publish(events.NewPaymentRefundedEvent(
			paymentID, ord.ID, ord.OrderNo,
			ord.Total, ord.Currency, string(wp.Provider),
		))
	}
}

func (s *Service) flagUnmatched(ctx context.Context, wp *provider.WebhookPayload) {
	s.recorder.Record(ctx, &audit.LogEntry{
		EventType:     audit.EventWebhookUnmatched,
		Provider:      string(wp.Provider),
		OrderNo:       wp.OrderNo,
		PaymentID:     wp.PaymentID,
		TransactionID: wp.TransactionID,
	})
	s.logger.Warn("webhook did not match any order",
		zap.String("provider", string(wp.Provider)),
		zap.String("order_no", wp.OrderNo),
		zap.String("event_id", wp.EventID),
	)
}

// Refund refunds a paid payment through its provider and moves the order to
// refunded.
func (s *Service) Refund(ctx context.Context, paymentID uuid.UUID) error {
	payment, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return err
	}

	ord, err := s.orders.GetOrder(ctx, payment.OrderID)
	if err != nil {
		return err
	}
	if !ord.IsPaid() {
		return ErrNotRefundable
	}

	p, err := s.registry.Get(payment.Provider)
	if err != nil {
		return err
	}

	if err := p.Refund(ctx, payment.ProviderPaymentID, payment.Amount); err != nil {
		s.recorder.Record(ctx, &audit.LogEntry{
			EventType: audit.EventRefundFailed,
			Provider:  string(payment.Provider),
			OrderNo:   payment.OrderNo,
			PaymentID: payment.ProviderPaymentID,
			Payload:   err.Error(),
		})
		if errors.Is(err, provider.ErrRefundNotSupported) {
			return err
		}
		return apperrors.ProviderAPI(string(payment.Provider), err)
	}

	_, applied, err := s.orders.Transition(ctx, ord.ID, order.StatusRefunded)
	if err != nil {
		return err
	}

	payment.Status = provider.StatusRefunded
	if err := s.repo.UpdatePayment(ctx, payment); err != nil {
		s.logger.Error("failed to update refunded payment",
			zap.String("payment_id", payment.ID.String()),
			zap.Error(err),
		)
	}

	s.recorder.Record(ctx, &audit.LogEntry{
		EventType: audit.EventRefundInitiated,
		Provider:  string(payment.Provider),
		OrderNo:   payment.OrderNo,
		PaymentID: payment.ProviderPaymentID,
	})

	if applied {
		s.bus.Publish(events.NewPaymentRefundedEvent(
			payment.ID, ord.ID, ord.OrderNo,
			payment.Amount, payment.Currency, string(payment.Provider),
		))
	}
	return nil
}

// targetStatus maps a normalized webhook status to the order transition it
// drives. Intermediate states (pending, processing) drive no transition.
func targetStatus(s provider.Status) (order.Status, bool) {
	switch s {
	case provider.StatusPaid:
		return order.StatusPaid, true
	case provider.StatusFailed:
		return order.StatusFailed, true
	case provider.StatusCancelled:
		return order.StatusCancelled, true
	case provider.StatusRefunded:
		return order.StatusRefunded, true
	default:
		return "", false
	}
}

// webhookPath returns the URL path segment for a provider's webhook route.
func webhookPath(method provider.Method) string {
	switch method {
	case provider.MethodOrangeMoney:
		return "orangemoney"
	default:
		return string(method)
	}
}
