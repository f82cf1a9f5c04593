// Package catalog provides product price/stock snapshots and the
// inventory ledger. The checkout pipeline only ever decrements stock;
// product lifecycle is owned elsewhere.
package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrProductNotFound indicates an unknown or inactive product id.
	ErrProductNotFound = errors.New("product not found")
	// ErrInsufficientStock indicates a reservation or commit would drive
	// stock negative. Matched with errors.Is; the concrete error names
	// the offending product.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// StockError reports which product could not cover a requested quantity.
type StockError struct {
	ProductID string
	Requested int64
	Available int64
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// Product is a catalog entry as seen by checkout: a priceable, stockable
// item. Price is in integer minor currency units.
type Product struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceMinor int64  `json:"price_minor"`
	Currency   string `json:"currency"`
	Stock      int64  `json:"stock"`
	Active     bool   `json:"active"`
}

// Decrement is one inventory commit line.
type Decrement struct {
	ProductID string
	Quantity  int64
}
