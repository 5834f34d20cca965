package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"peerdesk/internal/repository"
	"peerdesk/internal/service"
)

type EscalationHandler struct {
	Service *service.EscalationService
	Store   repository.Repository
	Logger  *zap.Logger
}

func (h *EscalationHandler) Register(r *gin.Engine) {
	group := r.Group("/api/escalations")
	group.POST("", h.create)
	group.GET("", h.list)
}

type escalateRequest struct {
	TradeHash   string `json:"trade_hash" binding:"required"`
	Complaint   string `json:"complaint"`
	EscalatedBy string `json:"escalated_by"`
}

func (h *EscalationHandler) create(c *gin.Context) {
	if h.Service == nil || h.Store == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	var req escalateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	trade, err := h.Store.GetTradeByHash(c.Request.Context(), strings.TrimSpace(req.TradeHash))
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if trade == nil {
		Error(c, http.StatusNotFound, "trade not found", nil)
		return
	}

	escalatedBy := strings.TrimSpace(req.EscalatedBy)
	if escalatedBy == "" {
		escalatedBy = "operator"
	}
	esc, created, err := h.Service.EnsureEscalated(c.Request.Context(), trade, service.EscalationInput{
		Complaint:   req.Complaint,
		EscalatedBy: escalatedBy,
	})
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("escalation failed",
				zap.String("trade_hash", trade.TradeHash),
				zap.Error(err))
		}
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if !created {
		Error(c, http.StatusConflict, "trade already escalated", map[string]any{
			"escalation_id": esc.ID,
		})
		return
	}
	Created(c, esc)
}

func (h *EscalationHandler) list(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	params := repository.ListEscalationsParams{
		Limit:    intQuery(c, "limit", 50),
		Offset:   intQuery(c, "offset", 0),
		Platform: stringQueryPtr(c, "platform"),
		Status:   stringQueryPtr(c, "status"),
	}
	items, err := h.Store.ListEscalations(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	total, err := h.Store.CountEscalations(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{
		"total":  total,
		"limit":  params.Limit,
		"offset": params.Offset,
	})
}
