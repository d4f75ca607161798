package dto

import (
	"lotkeeper/internal/core/types"
	"lotkeeper/internal/domain/catalog/location"
	"lotkeeper/internal/domain/catalog/product"
)

// --- Product ---

// CreateProductRequest is the request body for creating a product.
// Code is optional; when empty a PRD number is minted.
type CreateProductRequest struct {
	Code                string      `json:"code"`
	Name                string      `json:"name" binding:"required"`
	Barcode             *string     `json:"barcode"`
	Category            *string     `json:"category"`
	Brand               *string     `json:"brand"`
	Supplier            *string     `json:"supplier"`
	DefaultUnitCost     types.Money `json:"defaultUnitCost"`
	DefaultSellingPrice types.Money `json:"defaultSellingPrice"`
}

// ToEntity converts DTO to domain entity.
func (r *CreateProductRequest) ToEntity() *product.Product {
	p := product.New(r.Code, r.Name)
	p.Barcode = r.Barcode
	p.Category = r.Category
	p.Brand = r.Brand
	p.Supplier = r.Supplier
	p.DefaultUnitCost = r.DefaultUnitCost
	p.DefaultSellingPrice = r.DefaultSellingPrice
	return p
}

// UpdateProductRequest is the request body for updating a product.
type UpdateProductRequest struct {
	Name                string      `json:"name" binding:"required"`
	Barcode             *string     `json:"barcode"`
	Category            *string     `json:"category"`
	Brand               *string     `json:"brand"`
	Supplier            *string     `json:"supplier"`
	DefaultUnitCost     types.Money `json:"defaultUnitCost"`
	DefaultSellingPrice types.Money `json:"defaultSellingPrice"`
	IsActive            bool        `json:"isActive"`
}

// ApplyTo applies DTO fields to an existing entity.
func (r *UpdateProductRequest) ApplyTo(p *product.Product) {
	p.Name = r.Name
	p.Barcode = r.Barcode
	p.Category = r.Category
	p.Brand = r.Brand
	p.Supplier = r.Supplier
	p.DefaultUnitCost = r.DefaultUnitCost
	p.DefaultSellingPrice = r.DefaultSellingPrice
	p.IsActive = r.IsActive
}

// --- Location ---

// CreateLocationRequest is the request body for creating a location.
// Code is optional; when empty a LOC number is minted.
type CreateLocationRequest struct {
	Code    string        `json:"code"`
	Name    string        `json:"name" binding:"required"`
	Kind    location.Kind `json:"kind" binding:"required"`
	Address *string       `json:"address"`
}

// ToEntity converts DTO to domain entity.
func (r *CreateLocationRequest) ToEntity() *location.Location {
	l := location.New(r.Code, r.Name, r.Kind)
	l.Address = r.Address
	return l
}

// UpdateLocationRequest is the request body for updating a location.
type UpdateLocationRequest struct {
	Name     string  `json:"name" binding:"required"`
	Address  *string `json:"address"`
	IsActive bool    `json:"isActive"`
}

// ApplyTo applies DTO fields to an existing entity.
func (r *UpdateLocationRequest) ApplyTo(l *location.Location) {
	l.Name = r.Name
	l.Address = r.Address
	l.IsActive = r.IsActive
}
