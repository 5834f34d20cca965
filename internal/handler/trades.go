package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"peerdesk/internal/repository"
	"peerdesk/internal/service"
)

type TradeHandler struct {
	Ingest *service.IngestService
	Assign *service.AssignService
	Ops    *service.TradeOpsService
	Store  repository.Repository
	Logger *zap.Logger
}

func (h *TradeHandler) Register(r *gin.Engine) {
	group := r.Group("/api/trades")
	group.POST("/sync", h.sync)
	group.POST("/assign", h.assign)
	group.GET("", h.list)
	group.GET("/:hash", h.get)
	group.POST("/:hash/paid", h.markPaid)
	group.GET("/:hash/chat", h.chat)
	group.POST("/:hash/message", h.message)
}

func (h *TradeHandler) sync(c *gin.Context) {
	if h.Ingest == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	stats := h.Ingest.RunCycle(c.Request.Context())
	Ok(c, stats, nil)
}

func (h *TradeHandler) assign(c *gin.Context) {
	if h.Assign == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	result, err := h.Assign.RunCycle(c.Request.Context())
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("manual assignment run failed", zap.Error(err))
		}
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, result, nil)
}

func (h *TradeHandler) list(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	params := repository.ListTradesParams{
		Limit:     intQuery(c, "limit", 50),
		Offset:    intQuery(c, "offset", 0),
		Platform:  stringQueryPtr(c, "platform"),
		Status:    stringQueryPtr(c, "status"),
		AccountID: uint64QueryPtr(c, "account_id"),
		PayerID:   uint64QueryPtr(c, "payer_id"),
		Flagged:   boolQueryPtr(c, "flagged"),
		OrderBy:   strings.TrimSpace(c.Query("order_by")),
		Asc:       boolQueryPtr(c, "asc"),
	}
	items, err := h.Store.ListTrades(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	total, err := h.Store.CountTrades(c.Request.Context(), params)
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

func (h *TradeHandler) get(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	hash := strings.TrimSpace(c.Param("hash"))
	trade, err := h.Store.GetTradeByHash(c.Request.Context(), hash)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if trade == nil {
		Error(c, http.StatusNotFound, "trade not found", nil)
		return
	}
	Ok(c, trade, nil)
}

func (h *TradeHandler) markPaid(c *gin.Context) {
	if h.Ops == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	hash := strings.TrimSpace(c.Param("hash"))
	ok, err := h.Ops.MarkPaid(c.Request.Context(), hash, "operator")
	if err != nil {
		h.opsError(c, hash, "mark paid", err)
		return
	}
	Ok(c, gin.H{"success": ok}, nil)
}

func (h *TradeHandler) chat(c *gin.Context) {
	if h.Ops == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	hash := strings.TrimSpace(c.Param("hash"))
	chat, err := h.Ops.GetChat(c.Request.Context(), hash)
	if err != nil {
		h.opsError(c, hash, "get chat", err)
		return
	}
	Ok(c, chat, nil)
}

type sendMessageRequest struct {
	Message string `json:"message" binding:"required"`
}

func (h *TradeHandler) message(c *gin.Context) {
	if h.Ops == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	hash := strings.TrimSpace(c.Param("hash"))
	result, err := h.Ops.SendMessage(c.Request.Context(), hash, req.Message)
	if err != nil {
		h.opsError(c, hash, "send message", err)
		return
	}
	Ok(c, result, nil)
}

func (h *TradeHandler) opsError(c *gin.Context, hash, op string, err error) {
	if errors.Is(err, service.ErrTradeNotFound) || errors.Is(err, service.ErrAccountNotFound) {
		Error(c, http.StatusNotFound, err.Error(), nil)
		return
	}
	if h.Logger != nil {
		h.Logger.Warn("trade operation failed",
			zap.String("op", op),
			zap.String("trade_hash", hash),
			zap.Error(err))
	}
	Error(c, http.StatusBadGateway, err.Error(), nil)
}
