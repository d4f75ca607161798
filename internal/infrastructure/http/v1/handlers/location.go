package handlers

import (
	"github.com/gin-gonic/gin"

	"lotkeeper/internal/domain/catalog/location"
	"lotkeeper/internal/infrastructure/http/v1/dto"
)

// LocationHandler handles HTTP requests for the location catalog.
type LocationHandler struct {
	*BaseHandler
	service *location.Service
}

// NewLocationHandler creates a new location handler.
func NewLocationHandler(base *BaseHandler, service *location.Service) *LocationHandler {
	return &LocationHandler{BaseHandler: base, service: service}
}

// Create creates a new location.
// POST /locations
func (h *LocationHandler) Create(c *gin.Context) {
	var req dto.CreateLocationRequest
	if !h.BindJSON(c, &req) {
		return
	}

	l := req.ToEntity()
	if err := h.service.Create(c.Request.Context(), l); err != nil {
		h.Error(c, err)
		return
	}
	h.CreatedJSON(c, l)
}

// Update updates an existing location.
// PUT /locations/:id
func (h *LocationHandler) Update(c *gin.Context) {
	locationID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateLocationRequest
	if !h.BindJSON(c, &req) {
		return
	}

	l, err := h.service.Get(c.Request.Context(), locationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	req.ApplyTo(l)
	if err := h.service.Update(c.Request.Context(), l); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, l)
}

// Get returns a location by ID.
// GET /locations/:id
func (h *LocationHandler) Get(c *gin.Context) {
	locationID, ok := h.ParseIDParam(c, "id")
	if !ok {
		return
	}

	l, err := h.service.Get(c.Request.Context(), locationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, l)
}

// List returns locations, optionally active only.
// GET /locations?active=true
func (h *LocationHandler) List(c *gin.Context) {
	activeOnly := c.Query("active") == "true"

	locations, err := h.service.List(c.Request.Context(), activeOnly)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(locations))
}
