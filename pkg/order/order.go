// Package order defines the durable order record: the priced, immutable
// snapshot of a buyer's cart together with its payment lifecycle.
package order

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// PaymentState is the payment lifecycle of an order.
// Transitions are Pending -> Paid or Pending -> Failed only; Paid and
// Failed are terminal. The store enforces this with conditional updates.
type PaymentState string

const (
	StatePending PaymentState = "Pending"
	StatePaid    PaymentState = "Paid"
	StateFailed  PaymentState = "Failed"
)

var (
	// ErrNotFound indicates the requested order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrAlreadyFinalized indicates a state transition was attempted on a
	// non-Pending order. Replayed confirmations hit this guard.
	ErrAlreadyFinalized = errors.New("order already finalized")
)

// Shipping holds the delivery details captured at checkout.
type Shipping struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	City     string `json:"city"`
	State    string `json:"state"`
	ZipCode  string `json:"zip_code"`
	Country  string `json:"country"`
}

// Validate rejects shipping info with missing fields.
func (s Shipping) Validate() error {
	var missing []string
	for field, v := range map[string]string{
		"full_name": s.FullName,
		"email":     s.Email,
		"phone":     s.Phone,
		"address":   s.Address,
		"city":      s.City,
		"state":     s.State,
		"zip_code":  s.ZipCode,
		"country":   s.Country,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing shipping fields: %s", strings.Join(missing, ", "))
	}
	return nil
}

// CartLine is a buyer-session cart entry before pricing. Ephemeral; it is
// not durable once converted into a PricedLine.
type CartLine struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
}

// PricedLine is a cart line with the unit price snapshotted from the
// catalog at order creation. The snapshot is never re-read, so later
// catalog price changes cannot alter a placed order.
type PricedLine struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Quantity       int64  `json:"quantity"`
	UnitPriceMinor int64  `json:"unit_price_minor"`
}

// SubtotalMinor returns quantity * snapshotted unit price.
func (l PricedLine) SubtotalMinor() int64 {
	return l.Quantity * l.UnitPriceMinor
}

// ProofKind discriminates the two payment proof shapes.
type ProofKind string

const (
	ProofHostedSignature ProofKind = "hosted_signature"
	ProofOnChainTransfer ProofKind = "onchain_transfer"
)

// PaymentProof is the data a client submits after completing payment
// out-of-band. Exactly one variant's fields are populated, per the
// gateway the deployment is configured with.
type PaymentProof struct {
	Kind ProofKind `json:"kind"`

	// Hosted gateway variant.
	GatewayOrderID   string `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string `json:"gateway_payment_id,omitempty"`
	Signature        string `json:"signature,omitempty"`

	// On-chain transfer variant.
	TxHash        string `json:"tx_hash,omitempty"`
	WalletAddress string `json:"wallet_address,omitempty"`
	Network       string `json:"network,omitempty"`
}

// Receipt references the archived receipt artifact for a paid order.
// Created at most once; Error is set instead of the locators when
// archival failed (archival failure never blocks payment).
type Receipt struct {
	Locator      string    `json:"locator,omitempty"`
	ImageLocator string    `json:"image_locator,omitempty"`
	ContentHash  string    `json:"content_hash,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Order is the central durable entity of the checkout pipeline.
type Order struct {
	ID               string        `json:"id"`
	BuyerID          string        `json:"buyer_id"`
	Shipping         Shipping      `json:"shipping"`
	Lines            []PricedLine  `json:"lines"`
	TotalAmountMinor int64         `json:"total_amount_minor"`
	Currency         string        `json:"currency"`
	PaymentState     PaymentState  `json:"payment_state"`
	PaymentIntentRef string        `json:"payment_intent_ref,omitempty"`
	Proof            *PaymentProof `json:"payment_proof,omitempty"`
	Receipt          *Receipt      `json:"receipt,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Finalized reports whether the order reached a terminal payment state.
func (o *Order) Finalized() bool {
	return o.PaymentState == StatePaid || o.PaymentState == StateFailed
}
