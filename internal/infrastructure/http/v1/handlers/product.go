package handlers

import (
	"github.com/gin-gonic/gin"

	"lotkeeper/internal/core/apperror"
	"lotkeeper/internal/domain/catalog/product"
	"lotkeeper/internal/infrastructure/http/v1/dto"
)

// ProductHandler handles HTTP requests for the product catalog.
type ProductHandler struct {
	*BaseHandler
	service *product.Service
}

// NewProductHandler creates a new product handler.
func NewProductHandler(base *BaseHandler, service *product.Service) *ProductHandler {
	return &ProductHandler{BaseHandler: base, service: service}
}

// Create creates a new product.
// POST /products
func (h *ProductHandler) Create(c *gin.Context) {
	var req dto.CreateProductRequest
	if !h.BindJSON(c, &req) {
		return
	}

	p := req.ToEntity()
	if err := h.service.Create(c.Request.Context(), p); err != nil {
		h.Error(c, err)
		return
	}
	h.CreatedJSON(c, p)
}

// Update updates an existing product.
// PUT /products/:id
func (h *ProductHandler) Update(c *gin.Context) {
	productID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateProductRequest
	if !h.BindJSON(c, &req) {
		return
	}

	p, err := h.service.Get(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	req.ApplyTo(p)
	if err := h.service.Update(c.Request.Context(), p); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, p)
}

// Get returns a product by ID.
// GET /products/:id
func (h *ProductHandler) Get(c *gin.Context) {
	productID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	p, err := h.service.Get(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, p)
}

// GetByBarcode returns a product by its scan code (POS lookup path).
// GET /products/by-barcode/:barcode
func (h *ProductHandler) GetByBarcode(c *gin.Context) {
	barcode := c.Param("barcode")
	if barcode == "" {
		h.Error(c, apperror.NewValidation("barcode is required"))
		return
	}

	p, err := h.service.FindByBarcode(c.Request.Context(), barcode)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, p)
}

// List returns products matching the filter.
// GET /products?category=&brand=&search=&active=&limit=&offset=
func (h *ProductHandler) List(c *gin.Context) {
	filter := product.ListFilter{
		Search: c.Query("search"),
		Limit:  h.ParseIntQuery(c, "limit", 50),
		Offset: h.ParseIntQuery(c, "offset", 0),
	}
	if s := c.Query("category"); s != "" {
		filter.Category = &s
	}
	if s := c.Query("brand"); s != "" {
		filter.Brand = &s
	}
	if s := c.Query("active"); s != "" {
		active := s == "true"
		filter.Active = &active
	}

	products, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(products))
}
