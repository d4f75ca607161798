package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"lotkeeper/internal/core/apperror"
	"lotkeeper/internal/domain/inventory/batch"
	"lotkeeper/internal/domain/inventory/ledger"
	"lotkeeper/internal/domain/inventory/sale"
	"lotkeeper/internal/infrastructure/http/v1/dto"
)

// InventoryHandler handles HTTP requests for batch-level stock operations:
// receiving, adjustments, availability and the movement ledger.
type InventoryHandler struct {
	*BaseHandler
	batches *batch.Service
	ledger  *ledger.Service
	seller  *sale.Seller
}

// NewInventoryHandler creates a new inventory handler.
func NewInventoryHandler(base *BaseHandler, batches *batch.Service, ledgerSvc *ledger.Service, seller *sale.Seller) *InventoryHandler {
	return &InventoryHandler{
		BaseHandler: base,
		batches:     batches,
		ledger:      ledgerSvc,
		seller:      seller,
	}
}

// Receive records arriving stock.
// POST /inventory/receive
func (h *InventoryHandler) Receive(c *gin.Context) {
	var req batch.ReceiveRequest
	if !h.BindJSON(c, &req) {
		return
	}

	received, err := h.batches.Receive(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.CreatedJSON(c, received)
}

// Adjust applies a signed stock-take correction to one batch.
// POST /inventory/adjust
func (h *InventoryHandler) Adjust(c *gin.Context) {
	var req batch.AdjustRequest
	if !h.BindJSON(c, &req) {
		return
	}

	entry, err := h.batches.Adjust(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, entry)
}

// Availability returns the derived total quantity for a product.
// GET /inventory/availability/:productId?location_id=...
func (h *InventoryHandler) Availability(c *gin.Context) {
	productID, ok := h.ParseIDParam(c, "productId")
	if !ok {
		return
	}
	locationID, ok := h.ParseIDQuery(c, "location_id")
	if !ok {
		return
	}

	qty, err := h.batches.Availability(c.Request.Context(), productID, locationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.AvailabilityResponse{
		ProductID:  productID,
		LocationID: locationID,
		Quantity:   qty,
	})
}

// ListBatches returns live batches for a product at a location in the
// requested consumption order.
// GET /inventory/batches?product_id=...&location_id=...&ordering=fifo
func (h *InventoryHandler) ListBatches(c *gin.Context) {
	productID, ok := h.ParseIDQuery(c, "product_id")
	if !ok {
		return
	}
	locationID, ok := h.ParseIDQuery(c, "location_id")
	if !ok {
		return
	}
	if productID == nil || locationID == nil {
		h.Error(c, apperror.NewValidation("product_id and location_id are required"))
		return
	}

	order, err := batch.ParseOrdering(c.DefaultQuery("ordering", "fifo"))
	if err != nil {
		h.Error(c, err)
		return
	}

	batches, err := h.batches.ListAvailable(c.Request.Context(), *productID, *locationID, order)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(batches))
}

// ListExpiring returns batches at a location expiring within the window.
// GET /inventory/expiring?location_id=...&days=30
func (h *InventoryHandler) ListExpiring(c *gin.Context) {
	locationID, ok := h.ParseIDQuery(c, "location_id")
	if !ok {
		return
	}
	if locationID == nil {
		h.Error(c, apperror.NewValidation("location_id is required"))
		return
	}
	days := h.ParseIntQuery(c, "days", 30)

	batches, err := h.batches.ListExpiring(c.Request.Context(), *locationID, time.Duration(days)*24*time.Hour)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(batches))
}

// PreviewAllocation builds the allocation plan a consumption would take,
// without locking or moving anything.
// POST /inventory/allocation-preview
func (h *InventoryHandler) PreviewAllocation(c *gin.Context) {
	var req dto.AllocationPreviewRequest
	if !h.BindJSON(c, &req) {
		return
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

	plan, err := h.seller.Preview(c.Request.Context(), req.ProductID, req.LocationID, req.Quantity, order)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, plan)
}

// Movements returns ledger history for a product, newest first.
// GET /inventory/movements/product/:productId?location_id=&batch_id=&type=&from=&to=&limit=&offset=
func (h *InventoryHandler) Movements(c *gin.Context) {
	productID, ok := h.ParseIDParam(c, "productId")
	if !ok {
		return
	}

	filter, ok := h.parseHistoryFilter(c)
	if !ok {
		return
	}

	entries, err := h.ledger.History(c.Request.Context(), productID, filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(entries))
}

// MovementsByReference returns the full ledger trail of one document.
// GET /inventory/movements/reference/:reference
func (h *InventoryHandler) MovementsByReference(c *gin.Context) {
	reference := c.Param("reference")
	if reference == "" {
		h.Error(c, apperror.NewValidation("reference is required"))
		return
	}

	entries, err := h.ledger.ByReference(c.Request.Context(), reference)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(entries))
}

// Reconcile replays a batch's ledger against its stored quantity.
// GET /inventory/reconcile/:batchId
func (h *InventoryHandler) Reconcile(c *gin.Context) {
	batchID, ok := h.ParseIDParam(c, "batchId")
	if !ok {
		return
	}

	reconciliation, err := h.batches.Reconcile(c.Request.Context(), batchID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, reconciliation)
}

func (h *InventoryHandler) parseHistoryFilter(c *gin.Context) (ledger.HistoryFilter, bool) {
	filter := ledger.HistoryFilter{
		Limit:  h.ParseIntQuery(c, "limit", 100),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}

	var ok bool
	if filter.LocationID, ok = h.ParseIDQuery(c, "location_id"); !ok {
		return filter, false
	}
	if filter.BatchID, ok = h.ParseIDQuery(c, "batch_id"); !ok {
		return filter, false
	}

	if s := c.Query("type"); s != "" {
		mt := ledger.MovementType(s)
		if !mt.Valid() {
			h.Error(c, apperror.NewValidation("unknown movement type").WithDetail("type", s))
			return filter, false
		}
		filter.Type = &mt
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
