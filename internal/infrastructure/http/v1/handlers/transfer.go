package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"lotkeeper/internal/core/apperror"
	"lotkeeper/internal/domain/inventory/batch"
	"lotkeeper/internal/domain/inventory/transfer"
	"lotkeeper/internal/infrastructure/http/v1/dto"
	"lotkeeper/internal/infrastructure/storage/postgres"
)

// TransferHandler handles HTTP requests for multi-location stock transfers.
type TransferHandler struct {
	*BaseHandler
	coordinator *transfer.Coordinator
	audit       *postgres.AuditService
}

// NewTransferHandler creates a new transfer handler. audit may be nil, in
// which case the history endpoint reports not found.
func NewTransferHandler(base *BaseHandler, coordinator *transfer.Coordinator, audit *postgres.AuditService) *TransferHandler {
	return &TransferHandler{BaseHandler: base, coordinator: coordinator, audit: audit}
}

// Create persists a pending transfer. No stock moves until execution.
// POST /transfers
func (h *TransferHandler) Create(c *gin.Context) {
	var req transfer.CreateRequest
	if !h.BindJSON(c, &req) {
		return
	}

	header, err := h.coordinator.Create(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.CreatedJSON(c, header)
}

// Approve validates availability for every line and moves the header
// to approved.
// POST /transfers/:id/approve
func (h *TransferHandler) Approve(c *gin.Context) {
	transferID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	header, err := h.coordinator.Approve(c.Request.Context(), transferID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, header)
}

// Execute moves the stock for every line of the transfer.
// POST /transfers/:id/execute
func (h *TransferHandler) Execute(c *gin.Context) {
	transferID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	// Body is optional; defaults are atomic execution in FIFO order.
	var req dto.ExecuteTransferRequest
	if c.Request.ContentLength > 0 {
		if !h.BindJSON(c, &req) {
			return
		}
	}

	order := batch.OrderFIFO
	if req.Ordering != "" {
		var err error
		order, err = batch.ParseOrdering(req.Ordering)
		if err != nil {
			h.Error(c, err)
			return
		}
	}

	result, err := h.coordinator.Execute(c.Request.Context(), transferID, transfer.ExecuteOptions{
		Partial:  req.Partial,
		Ordering: order,
	})
	if err != nil {
		// Partial mode names the failed lines in the error details;
		// committed lines stand and show up in the ledger.
		h.Error(c, err)
		return
	}
	h.OK(c, result)
}

// Get returns a transfer with its lines.
// GET /transfers/:id
func (h *TransferHandler) Get(c *gin.Context) {
	transferID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	header, err := h.coordinator.Get(c.Request.Context(), transferID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, header)
}

// History returns the audit trail for a transfer, newest first.
// GET /transfers/:id/audit?limit=
func (h *TransferHandler) History(c *gin.Context) {
	transferID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}
	if h.audit == nil {
		h.Error(c, apperror.NewNotFound("audit trail", transferID))
		return
	}

	limit := h.ParseIntQuery(c, "limit", 50)
	entries, err := h.audit.GetEntityHistory(c.Request.Context(), "Transfer", transferID, limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(entries))
}

// List returns transfers matching the filter, newest first.
// GET /transfers?source_location_id=&destination_location_id=&status=&from=&to=&limit=&offset=
func (h *TransferHandler) List(c *gin.Context) {
	filter, ok := h.parseListFilter(c)
	if !ok {
		return
	}

	headers, err := h.coordinator.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(headers))
}

func (h *TransferHandler) parseListFilter(c *gin.Context) (transfer.ListFilter, bool) {
	filter := transfer.ListFilter{
		Limit:  h.ParseIntQuery(c, "limit", 50),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}

	var ok bool
	if filter.SourceLocationID, ok = h.ParseIDQuery(c, "source_location_id"); !ok {
		return filter, false
	}
	if filter.DestinationLocationID, ok = h.ParseIDQuery(c, "destination_location_id"); !ok {
		return filter, false
	}

	if s := c.Query("status"); s != "" {
		status := transfer.Status(s)
		switch status {
		case transfer.StatusPending, transfer.StatusApproved, transfer.StatusCompleted:
			filter.Status = &status
		default:
			h.Error(c, apperror.NewValidation("unknown transfer status").WithDetail("status", s))
			return filter, false
		}
	}
	if s := c.Query("from"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid from date, expected RFC3339"))
			return filter, false
		}
		filter.FromDate = &t
	}
	if s := c.Query("to"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid to date, expected RFC3339"))
			return filter, false
		}
		filter.ToDate = &t
	}
	return filter, true
}
