package audit

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handler exposes the admin audit log query API.
type Handler struct {
	repo Repository
}

// NewHandler creates a new audit handler.
func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// RegisterRoutes registers audit routes on an admin group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/audit-logs", h.ListAuditLogs)
}

// ListAuditLogs returns audit log entries, newest first.
//
//	@Summary		List audit logs
//	@Description	Query the append-only payment audit log
//	@Tags			Admin
//	@Produce		json
//	@Security		BearerAuth
//	@Param			provider	query		string	false	"Filter by provider"
//	@Param			order_no	query		string	false	"Filter by order number"
//	@Param			event_type	query		string	false	"Filter by event type"
//	@Param			limit		query		int		false	"Page size"	default(50)
//	@Param			offset		query		int		false	"Offset"	default(0)
//	@Success		200			{object}	map[string]interface{}
//	@Failure		401			{object}	map[string]string
//	@Router			/admin/audit-logs [get]
func (h *Handler) ListAuditLogs(c *gin.Context) {
	filter := &Filter{
		Provider:  c.Query("provider"),
		OrderNo:   c.Query("order_no"),
		EventType: EventType(c.Query("event_type")),
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, total, err := h.repo.List(c.Request.Context(), filter, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"total":   total,
	})
}
