package receipts

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/decorluxe-labs/commerce/core/pkg/artifacts"
	"github.com/decorluxe-labs/commerce/core/pkg/order"
)

// metadata is the durable receipt document. It is serialized with
// RFC 8785 canonicalization so the content hash is stable regardless of
// map ordering or encoder quirks.
type metadata struct {
	SchemaVersion int            `json:"schema_version"`
	OrderID       string         `json:"order_id"`
	BuyerID       string         `json:"buyer_id"`
	Lines         []metadataLine `json:"lines"`
	TotalMinor    int64          `json:"total_minor"`
	Currency      string         `json:"currency"`
	PaymentRef    string         `json:"payment_ref,omitempty"`
	Image         string         `json:"image"`     // content hash of the SVG
	ImageLocator  string         `json:"image_url"` // backend locator of the SVG
	PaidAt        string         `json:"paid_at"`
}

type metadataLine struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Quantity       int64  `json:"quantity"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
}

// Archiver writes receipt artifacts for paid orders.
type Archiver struct {
	store  artifacts.Store
	logger *slog.Logger
}

// NewArchiver creates a receipt archiver backed by the given store.
func NewArchiver(store artifacts.Store, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{store: store, logger: logger}
}

// Archive renders and stores the receipt for a paid order, returning the
// receipt record to attach. Archival never fails the caller: on error the
// returned receipt carries the error string instead of locators, and the
// order stays Paid.
func (a *Archiver) Archive(ctx context.Context, o *order.Order) order.Receipt {
	rec, err := a.archive(ctx, o)
	if err != nil {
		a.logger.Warn("receipt archival failed",
			"order_id", o.ID,
			"error", err)
		return order.Receipt{Error: err.Error(), CreatedAt: time.Now().UTC()}
	}
	return rec
}

func (a *Archiver) archive(ctx context.Context, o *order.Order) (order.Receipt, error) {
	imageRef, err := a.store.Put(ctx, RenderSVG(o), "image/svg+xml")
	if err != nil {
		return order.Receipt{}, fmt.Errorf("store receipt image: %w", err)
	}

	meta := metadata{
		SchemaVersion: 1,
		OrderID:       o.ID,
		BuyerID:       o.BuyerID,
		TotalMinor:    o.TotalAmountMinor,
		Currency:      o.Currency,
		PaymentRef:    o.PaymentIntentRef,
		Image:         imageRef.Hash,
		ImageLocator:  imageRef.Locator,
		PaidAt:        o.UpdatedAt.UTC().Format(time.RFC3339),
	}
	for _, l := range o.Lines {
		meta.Lines = append(meta.Lines, metadataLine{
			ProductID:      l.ProductID,
			ProductName:    l.ProductName,
			Quantity:       l.Quantity,
			UnitPriceMinor: l.UnitPriceMinor,
		})
	}

	raw, err := json.Marshal(meta)
	if err != nil {
		return order.Receipt{}, fmt.Errorf("marshal receipt metadata: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return order.Receipt{}, fmt.Errorf("canonicalize receipt metadata: %w", err)
	}

	metaRef, err := a.store.Put(ctx, canonical, "application/json")
	if err != nil {
		return order.Receipt{}, fmt.Errorf("store receipt metadata: %w", err)
	}

	return order.Receipt{
		Locator:      metaRef.Locator,
		ImageLocator: imageRef.Locator,
		ContentHash:  metaRef.Hash,
		CreatedAt:    time.Now().UTC(),
	}, nil
}
