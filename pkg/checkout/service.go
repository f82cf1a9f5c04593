// Package checkout orchestrates the order pipeline: cart pricing, durable
// order creation, payment-proof verification, inventory commit, and
// receipt archival. All state transitions funnel through here.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/decorluxe-labs/commerce/core/pkg/catalog"
	"github.com/decorluxe-labs/commerce/core/pkg/finance"
	"github.com/decorluxe-labs/commerce/core/pkg/gateway"
	"github.com/decorluxe-labs/commerce/core/pkg/invoice"
	"github.com/decorluxe-labs/commerce/core/pkg/order"
	"github.com/decorluxe-labs/commerce/core/pkg/receipts"
)

// ErrValidation indicates a malformed checkout request: empty cart,
// too many lines, non-positive quantity, or incomplete shipping details.
var ErrValidation = errors.New("invalid checkout request")

const defaultMaxCartLines = 100

// Recorder counts order-lifecycle outcomes. The observability provider
// satisfies it; a nil recorder disables recording.
type Recorder interface {
	RecordOrderCreated(ctx context.Context, currency string)
	RecordOrderPaid(ctx context.Context, currency string, totalMinor int64)
	RecordOrderFailed(ctx context.Context, reason string)
}

// Service is the checkout orchestrator.
type Service struct {
	orders       *order.Store
	catalog      *catalog.Store
	gateway      gateway.Gateway
	archiver     *receipts.Archiver
	logger       *slog.Logger
	metrics      Recorder
	maxCartLines int
}

// NewService wires the orchestrator.
func NewService(orders *order.Store, cat *catalog.Store, gw gateway.Gateway, archiver *receipts.Archiver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		orders:       orders,
		catalog:      cat,
		gateway:      gw,
		archiver:     archiver,
		logger:       logger,
		maxCartLines: defaultMaxCartLines,
	}
}

// SetRecorder installs an order-lifecycle metrics recorder.
func (s *Service) SetRecorder(r Recorder) {
	s.metrics = r
}

// SetMaxCartLines overrides the per-market cart line cap. Non-positive
// values are ignored.
func (s *Service) SetMaxCartLines(n int) {
	if n > 0 {
		s.maxCartLines = n
	}
}

func (s *Service) recordCreated(ctx context.Context, currency string) {
	if s.metrics != nil {
		s.metrics.RecordOrderCreated(ctx, currency)
	}
}

func (s *Service) recordPaid(ctx context.Context, currency string, totalMinor int64) {
	if s.metrics != nil {
		s.metrics.RecordOrderPaid(ctx, currency, totalMinor)
	}
}

func (s *Service) recordFailed(ctx context.Context, reason string) {
	if s.metrics != nil {
		s.metrics.RecordOrderFailed(ctx, reason)
	}
}

// InitiateCheckout prices the cart against the live catalog, durably
// creates a Pending order with the price snapshot, and opens a payment
// intent with the gateway.
//
// The stock check here is best-effort only: nothing is reserved during
// the payment window, and the binding decrement happens at confirmation.
func (s *Service) InitiateCheckout(ctx context.Context, buyerID string, shipping order.Shipping, cart []order.CartLine) (*order.Order, error) {
	if buyerID == "" {
		return nil, fmt.Errorf("%w: missing buyer", ErrValidation)
	}
	if err := shipping.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	lines, err := mergeCart(cart, s.maxCartLines)
	if err != nil {
		return nil, err
	}

	priced := make([]order.PricedLine, 0, len(lines))
	subtotals := make([]finance.Money, 0, len(lines))
	for _, l := range lines {
		p, err := s.catalog.Product(ctx, l.ProductID)
		if err != nil {
			return nil, err
		}
		if err := s.catalog.CheckStock(ctx, l.ProductID, l.Quantity); err != nil {
			return nil, err
		}
		unit, err := finance.New(p.PriceMinor, p.Currency)
		if err != nil {
			return nil, fmt.Errorf("product %s: %w", p.ID, err)
		}
		sub, err := unit.MulQty(l.Quantity)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		subtotals = append(subtotals, sub)
		priced = append(priced, order.PricedLine{
			ProductID:      p.ID,
			ProductName:    p.Name,
			Quantity:       l.Quantity,
			UnitPriceMinor: p.PriceMinor,
		})
	}

	total, err := finance.Sum(subtotals)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	o := &order.Order{
		ID:               uuid.NewString(),
		BuyerID:          buyerID,
		Shipping:         shipping,
		Lines:            priced,
		TotalAmountMinor: total.AmountMinor,
		Currency:         total.Currency,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	intentRef, err := s.gateway.OpenIntent(ctx, total, o.ID)
	if err != nil {
		// Without a payment intent the order can never be confirmed, so
		// fail it immediately rather than leaving it to the stale sweep.
		if failErr := s.orders.MarkFailed(ctx, o.ID); failErr != nil {
			s.logger.Error("failed to void order after intent failure",
				"order_id", o.ID, "error", failErr)
		}
		s.recordFailed(ctx, "gateway_intent_failed")
		return nil, fmt.Errorf("open payment intent for order %s: %w", o.ID, err)
	}
	if intentRef != "" {
		if err := s.orders.SetIntentRef(ctx, o.ID, intentRef); err != nil {
			return nil, fmt.Errorf("record payment intent for order %s: %w", o.ID, err)
		}
		o.PaymentIntentRef = intentRef
	}

	s.recordCreated(ctx, total.Currency)
	s.logger.Info("checkout initiated",
		"order_id", o.ID,
		"buyer_id", buyerID,
		"lines", len(priced),
		"total_minor", total.AmountMinor,
		"currency", total.Currency)
	return o, nil
}

// ConfirmPayment verifies the submitted proof and, on success, commits
// inventory and marks the order Paid. Fail-closed: an order becomes Paid
// only after the gateway positively verified the proof AND every line's
// stock was decremented.
func (s *Service) ConfirmPayment(ctx context.Context, orderID string, proof order.PaymentProof) (*order.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Finalized() {
		return o, fmt.Errorf("order %s is %s: %w", o.ID, o.PaymentState, order.ErrAlreadyFinalized)
	}

	if err := s.gateway.Verify(ctx, o, proof); err != nil {
		var verr *gateway.VerificationError
		if errors.As(err, &verr) && verr.Conclusive {
			// The proof can never become valid; release the order.
			if failErr := s.orders.MarkFailed(ctx, o.ID); failErr != nil {
				s.logger.Error("failed to mark order failed after rejected proof",
					"order_id", o.ID, "error", failErr)
			}
			s.recordFailed(ctx, "proof_rejected")
			s.logger.Warn("payment proof rejected",
				"order_id", o.ID, "reason", verr.Reason)
			return nil, fmt.Errorf("order %s: %w", o.ID, err)
		}
		// Retriable: transport failure or a proof that may still settle.
		// The order stays Pending and the client may try again.
		return nil, fmt.Errorf("order %s: %w", o.ID, err)
	}

	decrements := make([]catalog.Decrement, 0, len(o.Lines))
	for _, l := range o.Lines {
		decrements = append(decrements, catalog.Decrement{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	if err := s.catalog.CommitDecrements(ctx, o.ID, decrements); err != nil {
		if errors.Is(err, catalog.ErrInsufficientStock) {
			// Verified payment but no stock left. Fail the order; the
			// refund is a manual follow-up outside this pipeline.
			if failErr := s.orders.MarkFailed(ctx, o.ID); failErr != nil {
				s.logger.Error("failed to mark order failed after stock shortfall",
					"order_id", o.ID, "error", failErr)
			}
			s.recordFailed(ctx, "insufficient_stock")
			s.logger.Warn("verified payment lost the stock race",
				"order_id", o.ID, "error", err)
			return nil, fmt.Errorf("order %s: %w", o.ID, err)
		}
		return nil, fmt.Errorf("commit inventory for order %s: %w", o.ID, err)
	}

	if err := s.orders.MarkPaid(ctx, o.ID, &proof); err != nil {
		if errors.Is(err, order.ErrAlreadyFinalized) {
			// Lost a race with a concurrent confirmation of the same
			// order. The inventory ledger already guarded the decrement.
			return s.orders.Get(ctx, o.ID)
		}
		return nil, err
	}

	paid, err := s.orders.Get(ctx, o.ID)
	if err != nil {
		return nil, err
	}

	rec := s.archiver.Archive(ctx, paid)
	if err := s.orders.AttachReceipt(ctx, paid.ID, &rec); err != nil {
		// Paid already stands; a lost receipt attachment is log-only.
		s.logger.Warn("failed to attach receipt", "order_id", paid.ID, "error", err)
	} else {
		paid.Receipt = &rec
	}

	s.recordPaid(ctx, paid.Currency, paid.TotalAmountMinor)
	s.logger.Info("payment confirmed",
		"order_id", paid.ID,
		"buyer_id", paid.BuyerID,
		"total_minor", paid.TotalAmountMinor,
		"proof_kind", string(proof.Kind))
	return paid, nil
}

// CancelStale fails Pending orders older than the given window. Run
// periodically; bounds how long unreserved stock can be implicitly
// claimed by an unpaid order.
func (s *Service) CancelStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := s.orders.FailStalePending(ctx, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("cancel stale orders: %w", err)
	}
	for i := int64(0); i < n; i++ {
		s.recordFailed(ctx, "stale_pending")
	}
	if n > 0 {
		s.logger.Info("cancelled stale pending orders", "count", n, "older_than", olderThan.String())
	}
	return n, nil
}

// Order loads one of the buyer's orders. Foreign order ids surface as
// not-found.
func (s *Service) Order(ctx context.Context, orderID, buyerID string) (*order.Order, error) {
	return s.orders.GetForBuyer(ctx, orderID, buyerID)
}

// Orders lists the buyer's orders, newest first.
func (s *Service) Orders(ctx context.Context, buyerID string, limit int) ([]*order.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return s.orders.ListForBuyer(ctx, buyerID, limit)
}

// Invoice renders the PDF invoice for one of the buyer's paid orders.
func (s *Service) Invoice(ctx context.Context, orderID, buyerID string) ([]byte, error) {
	o, err := s.orders.GetForBuyer(ctx, orderID, buyerID)
	if err != nil {
		return nil, err
	}
	return invoice.Render(o)
}

// mergeCart validates quantities, folds duplicate product lines, and
// enforces the per-market cap on distinct lines.
func mergeCart(cart []order.CartLine, maxLines int) ([]order.CartLine, error) {
	if len(cart) == 0 {
		return nil, fmt.Errorf("%w: empty cart", ErrValidation)
	}
	index := make(map[string]int, len(cart))
	merged := make([]order.CartLine, 0, len(cart))
	for _, l := range cart {
		if l.ProductID == "" {
			return nil, fmt.Errorf("%w: cart line missing product id", ErrValidation)
		}
		if l.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for product %s must be positive", ErrValidation, l.ProductID)
		}
		if i, ok := index[l.ProductID]; ok {
			merged[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(merged)
		merged = append(merged, l)
	}
	if maxLines > 0 && len(merged) > maxLines {
		return nil, fmt.Errorf("%w: cart has %d distinct lines, limit is %d", ErrValidation, len(merged), maxLines)
	}
	return merged, nil
}
