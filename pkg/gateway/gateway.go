// Package gateway abstracts the external payment provider. Two variants
// exist, selected by deployment configuration: a hosted checkout gateway
// verified by HMAC signature, and an on-chain transfer verified against
// a blockchain node. Both fail closed: an ambiguous or unreachable
// verification is "not yet verified", never "verified".
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/decorluxe-labs/commerce/core/pkg/finance"
	"github.com/decorluxe-labs/commerce/core/pkg/order"
)

var (
	// ErrGatewayUnavailable indicates a transport-level failure talking to
	// the provider. Always retriable; never interpreted as a verdict on
	// the proof.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrVerificationFailed is the base of all proof rejections. Use
	// errors.As with *VerificationError to read the reason.
	ErrVerificationFailed = errors.New("payment verification failed")
)

// VerificationError rejects a payment proof. Conclusive rejections
// (forged signature, wrong recipient, wrong amount, reverted
// transaction) mean the proof can never become valid; non-conclusive
// ones (not yet mined, insufficient confirmations) mean "try again".
type VerificationError struct {
	Reason     string
	Conclusive bool
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("payment verification failed: %s", e.Reason)
}

func (e *VerificationError) Unwrap() error { return ErrVerificationFailed }

// Gateway is the payment provider capability the checkout orchestrator
// depends on.
type Gateway interface {
	// OpenIntent registers an expected incoming payment for an order and
	// returns the provider-side handle. Variants without a provider-side
	// order object return an empty handle.
	OpenIntent(ctx context.Context, total finance.Money, orderRef string) (string, error)

	// Verify checks a submitted proof against the order. A nil return
	// means the payment is authentic. Rejections are *VerificationError;
	// transport problems wrap ErrGatewayUnavailable.
	Verify(ctx context.Context, o *order.Order, proof order.PaymentProof) error
}
