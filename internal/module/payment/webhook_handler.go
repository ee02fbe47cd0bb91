package payment

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/terangashop/server/internal/module/payment/provider"
	apperrors "github.com/terangashop/server/internal/shared/errors"
)

// WebhookHandler receives signed provider callbacks. Each provider has its
// own route and signature header; everything after signature extraction goes
// through the same service path.
type WebhookHandler struct {
	service *Service
	logger  *zap.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(service *Service, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the webhook routes.
func (h *WebhookHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/wave", h.handle(provider.MethodWave, "Wave-Signature"))
	r.POST("/orangemoney", h.handle(provider.MethodOrangeMoney, "X-Signature"))
	r.POST("/stripe", h.handle(provider.MethodStripe, "Stripe-Signature"))
}

func (h *WebhookHandler) handle(method provider.Method, signatureHeader string) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
		if err != nil {
			h.logger.Error("failed to read webhook body",
				zap.String("provider", string(method)),
				zap.Error(err),
			)
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
			return
		}

		err = h.service.HandleWebhook(c.Request.Context(), method, payload, c.GetHeader(signatureHeader))
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"status": "processed"})
			return
		}

		// Reconciliation conflicts answer 200 so the provider stops
		// redelivering; the event is already flagged for manual review
		if errors.Is(err, apperrors.ErrReconciliation) {
			c.JSON(http.StatusOK, gin.H{"status": "flagged_for_review"})
			return
		}

		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			c.JSON(appErr.StatusCode, appErr.ToResponse())
			return
		}

		h.logger.Error("webhook processing failed",
			zap.String("provider", string(method)),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
	}
}
