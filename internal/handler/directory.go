package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"peerdesk/internal/models"
	"peerdesk/internal/repository"
)

// DirectoryHandler serves the read-mostly operator surface: accounts, payer
// load and the reference rates snapshot.
type DirectoryHandler struct {
	Store repository.Repository
}

func (h *DirectoryHandler) Register(r *gin.Engine) {
	r.GET("/api/accounts", h.listAccounts)
	r.GET("/api/payers", h.listPayers)
	r.GET("/api/rates/latest", h.latestRates)
	r.POST("/api/rates", h.createRates)
}

func (h *DirectoryHandler) listAccounts(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	params := repository.ListAccountsParams{
		Limit:    intQuery(c, "limit", 100),
		Offset:   intQuery(c, "offset", 0),
		Platform: stringQueryPtr(c, "platform"),
		Status:   stringQueryPtr(c, "status"),
	}
	items, err := h.Store.ListAccounts(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

func (h *DirectoryHandler) listPayers(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	items, err := h.Store.ListPayersWithLoad(c.Request.Context())
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

func (h *DirectoryHandler) latestRates(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	rates, err := h.Store.LatestRates(c.Request.Context())
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if rates == nil {
		Error(c, http.StatusNotFound, "no rates recorded", nil)
		return
	}
	Ok(c, rates, nil)
}

type createRatesRequest struct {
	SellingPrice string `json:"selling_price" binding:"required"`
	BuyingPrice  string `json:"buying_price"`
	Source       string `json:"source"`
}

func (h *DirectoryHandler) createRates(c *gin.Context) {
	if h.Store == nil {
		Error(c, http.StatusInternalServerError, "store unavailable", nil)
		return
	}
	var req createRatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	selling, err := decimal.NewFromString(strings.TrimSpace(req.SellingPrice))
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid selling_price", nil)
		return
	}
	buying := decimal.Zero
	if strings.TrimSpace(req.BuyingPrice) != "" {
		buying, err = decimal.NewFromString(strings.TrimSpace(req.BuyingPrice))
		if err != nil {
			Error(c, http.StatusBadRequest, "invalid buying_price", nil)
			return
		}
	}
	item := &models.Rates{
		SellingPrice: selling,
		BuyingPrice:  buying,
		Source:       strings.TrimSpace(req.Source),
	}
	if err := h.Store.InsertRates(c.Request.Context(), item); err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Created(c, item)
}
