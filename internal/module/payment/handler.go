package payment

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/terangashop/server/internal/module/order"
	"github.com/terangashop/server/internal/module/payment/provider"
	apperrors "github.com/terangashop/server/internal/shared/errors"
)

// Handler handles HTTP requests for payments.
type Handler struct {
	service *Service
}

// NewHandler creates a new payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers public payment routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/checkout", h.InitiateCheckout)
}

// RegisterAdminRoutes registers payment routes behind admin auth.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/payments/:id/refund", h.Refund)
}

// InitiateCheckout starts a hosted checkout for a pending order.
//
//	@Summary		Initiate checkout
//	@Description	Create a hosted checkout session with the chosen payment provider
//	@Tags			Payment
//	@Accept			json
//	@Produce		json
//	@Param			request	body		CheckoutRequest	true	"Checkout request"
//	@Success		200		{object}	CheckoutResponse
//	@Failure		400		{object}	map[string]string
//	@Failure		409		{object}	map[string]string
//	@Failure		502		{object}	map[string]string
//	@Router			/checkout [post]
func (h *Handler) InitiateCheckout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	method, err := provider.ParseMethod(req.Method)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown payment method"})
		return
	}

	payment, err := h.service.InitiateCheckout(c.Request.Context(), req.OrderNo, method)
	if err != nil {
		handlePaymentError(c, err)
		return
	}

	c.JSON(http.StatusOK, CheckoutResponse{
		PaymentID:         payment.ID.String(),
		ProviderPaymentID: payment.ProviderPaymentID,
		CheckoutURL:       payment.CheckoutURL,
		ExpiresAt:         payment.ExpiresAt,
	})
}

// Refund refunds a paid payment.
//
//	@Summary		Refund payment
//	@Description	Refund a paid payment through its provider
//	@Tags			Admin
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Payment ID"
//	@Success		200	{object}	map[string]string
//	@Failure		404	{object}	map[string]string
//	@Failure		409	{object}	map[string]string
//	@Router			/admin/payments/{id}/refund [post]
func (h *Handler) Refund(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}

	if err := h.service.Refund(c.Request.Context(), id); err != nil {
		handlePaymentError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "refunded"})
}

func handlePaymentError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		c.JSON(appErr.StatusCode, appErr.ToResponse())
	case errors.Is(err, ErrUnknownProvider):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown payment provider"})
	case errors.Is(err, ErrPaymentNotFound), errors.Is(err, order.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, ErrOrderNotPayable), errors.Is(err, ErrNotRefundable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrOrderExpired):
		c.JSON(http.StatusGone, gin.H{"error": "order checkout window has expired"})
	case errors.Is(err, provider.ErrRefundNotSupported):
		c.JSON(http.StatusConflict, gin.H{"error": "provider does not support API refunds"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
