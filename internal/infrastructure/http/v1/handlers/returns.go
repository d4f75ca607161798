package handlers

import (
	"github.com/gin-gonic/gin"

	"lotkeeper/internal/domain/inventory/returns"
)

// ReturnHandler handles HTTP requests for customer returns.
type ReturnHandler struct {
	*BaseHandler
	processor *returns.Processor
}

// NewReturnHandler creates a new return handler.
func NewReturnHandler(base *BaseHandler, processor *returns.Processor) *ReturnHandler {
	return &ReturnHandler{BaseHandler: base, processor: processor}
}

// Process restores returned quantity against its original consumption.
// POST /returns
func (h *ReturnHandler) Process(c *gin.Context) {
	var req returns.Request
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.processor.Process(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.CreatedJSON(c, result)
}
