package order

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/terangashop/server/internal/shared/metrics"
)

// Service implements order operations.
type Service struct {
	repo    Repository
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewService creates a new order service.
func NewService(repo Repository, m *metrics.Metrics, logger *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		metrics: m,
		logger:  logger,
	}
}

// CreateOrder creates a pending order with its line items.
func (s *Service) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyOrder
	}

	order := &Order{
		ID:              uuid.New(),
		OrderNo:         generateOrderNo(),
		Status:          StatusPending,
		Currency:        "XOF",
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		ShippingAddress: req.ShippingAddress,
		ShippingCity:    req.ShippingCity,
		ShippingCountry: req.ShippingCountry,
	}

	var total int64
	items := make([]OrderItem, 0, len(req.Items))
	for _, item := range req.Items {
		amount := int64(item.Quantity) * item.UnitPrice
		total += amount
		items = append(items, OrderItem{
			ID:          uuid.New(),
			OrderID:     order.ID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Amount:      amount,
		})
	}
	order.Total = total

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	if err := s.repo.CreateOrderItems(ctx, items); err != nil {
		return nil, fmt.Errorf("create order items: %w", err)
	}
	order.Items = items

	s.logger.Info("order created",
		zap.String("order_no", order.OrderNo),
		zap.Int64("total", order.Total),
		zap.String("currency", order.Currency),
	)

	return order, nil
}

// GetOrder returns an order with its items.
func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.repo.GetOrderWithItems(ctx, id)
}

// GetOrderByNo returns an order by its order number.
func (s *Service) GetOrderByNo(ctx context.Context, orderNo string) (*Order, error) {
	return s.repo.GetOrderByNo(ctx, orderNo)
}

// SetPaymentInfo records the chosen payment method, the provider's payment
// reference and the checkout expiry on the order.
func (s *Service) SetPaymentInfo(ctx context.Context, id uuid.UUID, method, providerPaymentID string, expiresAt *time.Time) error {
	return s.repo.SetPaymentInfo(ctx, id, method, providerPaymentID, expiresAt)
}

// Transition moves an order to a new status and returns the status it held
// before the call. applied is false when the order already held the target
// status (duplicate webhook delivery).
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to Status) (Status, bool, error) {
	previous, applied, err := s.repo.TransitionStatus(ctx, id, to)
	if err != nil {
		return previous, false, err
	}

	if applied {
		s.metrics.OrderTransitionsTotal.WithLabelValues(string(previous), string(to)).Inc()
		s.logger.Info("order status transition",
			zap.String("order_id", id.String()),
			zap.String("from", string(previous)),
			zap.String("to", string(to)),
		)
	} else {
		s.logger.Info("order status transition skipped, already in target status",
			zap.String("order_id", id.String()),
			zap.String("status", string(to)),
		)
	}

	return previous, applied, nil
}

// ExpirePendingOrders cancels unpaid orders whose checkout window elapsed.
// Called periodically by the expiry worker.
func (s *Service) ExpirePendingOrders(ctx context.Context) (int, error) {
	orders, err := s.repo.ListPendingExpiredOrders(ctx)
	if err != nil {
		return 0, fmt.Errorf("list expired orders: %w", err)
	}

	expired := 0
	for _, o := range orders {
		if _, applied, err := s.Transition(ctx, o.ID, StatusCancelled); err != nil {
			s.logger.Error("failed to cancel expired order",
				zap.String("order_no", o.OrderNo),
				zap.Error(err),
			)
			continue
		} else if applied {
			expired++
		}
	}

	return expired, nil
}

// generateOrderNo generates a unique, human-readable order number.
func generateOrderNo() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return fmt.Sprintf("TS-%s-%s", time.Now().UTC().Format("20060102"), hex.EncodeToString(b))
}
