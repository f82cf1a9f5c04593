package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/decorluxe-labs/commerce/core/pkg/finance"
	"github.com/decorluxe-labs/commerce/core/pkg/order"
)

// HostedConfig configures the hosted-checkout gateway variant.
type HostedConfig struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Timeout   time.Duration
}

// Hosted implements Gateway against a hosted-checkout provider. The
// provider creates an order-scoped payment intent; after the buyer pays
// on the provider's page, the client returns a signature the provider
// computed as HMAC-SHA256(secret, intentID|paymentID).
type Hosted struct {
	cfg    HostedConfig
	client *retryingClient
}

// NewHosted creates the hosted gateway.
func NewHosted(cfg HostedConfig) (*Hosted, error) {
	if cfg.KeySecret == "" {
		return nil, fmt.Errorf("hosted gateway requires a key secret")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Hosted{cfg: cfg, client: newRetryingClient(cfg.Timeout)}, nil
}

type hostedIntentRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type hostedIntentResponse struct {
	ID string `json:"id"`
}

// OpenIntent creates a provider-side order for the expected amount,
// keyed by our order id, and returns the provider's intent id.
func (g *Hosted) OpenIntent(ctx context.Context, total finance.Money, orderRef string) (string, error) {
	payload, err := json.Marshal(hostedIntentRequest{
		Amount:   total.AmountMinor,
		Currency: total.Currency,
		Receipt:  orderRef,
	})
	if err != nil {
		return "", fmt.Errorf("marshal intent request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/v1/orders", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build intent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.cfg.KeyID, g.cfg.KeySecret)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("%w: provider returned %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var out hostedIntentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode intent response: %v", ErrGatewayUnavailable, err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: provider returned empty intent id", ErrGatewayUnavailable)
	}
	return out.ID, nil
}

// Verify recomputes the provider signature over intentID|paymentID and
// compares it in constant time. Verification is pure local computation;
// a mismatch is always conclusive.
func (g *Hosted) Verify(_ context.Context, o *order.Order, proof order.PaymentProof) error {
	if proof.Kind != order.ProofHostedSignature {
		return &VerificationError{Reason: fmt.Sprintf("unexpected proof kind %q", proof.Kind), Conclusive: true}
	}
	if o.PaymentIntentRef == "" {
		return &VerificationError{Reason: "order has no payment intent", Conclusive: true}
	}
	if proof.GatewayOrderID != o.PaymentIntentRef {
		return &VerificationError{Reason: "proof references a different payment intent", Conclusive: true}
	}
	if proof.GatewayPaymentID == "" || proof.Signature == "" {
		return &VerificationError{Reason: "incomplete proof", Conclusive: true}
	}

	mac := hmac.New(sha256.New, []byte(g.cfg.KeySecret))
	mac.Write([]byte(proof.GatewayOrderID + "|" + proof.GatewayPaymentID))
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(proof.Signature)
	if err != nil {
		return &VerificationError{Reason: "signature is not valid hex", Conclusive: true}
	}
	if !hmac.Equal(expected, got) {
		return &VerificationError{Reason: "signature mismatch", Conclusive: true}
	}
	return nil
}

// SignProof computes the provider-side signature. Exposed for tests and
// local sandboxes that must forge valid proofs.
func SignProof(secret, gatewayOrderID, gatewayPaymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}
