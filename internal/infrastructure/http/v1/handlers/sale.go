package handlers

import (
	"github.com/gin-gonic/gin"

	"lotkeeper/internal/domain/inventory/sale"
)

// SaleHandler handles HTTP requests for POS checkout.
type SaleHandler struct {
	*BaseHandler
	seller *sale.Seller
}

// NewSaleHandler creates a new sale handler.
func NewSaleHandler(base *BaseHandler, seller *sale.Seller) *SaleHandler {
	return &SaleHandler{BaseHandler: base, seller: seller}
}

// Sell consumes stock for a checkout and returns per-line allocations
// with exact COGS.
// POST /sales
func (h *SaleHandler) Sell(c *gin.Context) {
	var req sale.Request
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.seller.Sell(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.CreatedJSON(c, result)
}
