package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decorluxe-labs/commerce/core/pkg/finance"
	"github.com/decorluxe-labs/commerce/core/pkg/order"
)

const testSecret = "test-key-secret"

func hostedOrder(intentRef string) *order.Order {
	return &order.Order{
		ID:               "ord-1",
		PaymentIntentRef: intentRef,
		TotalAmountMinor: 30000,
		Currency:         "INR",
		PaymentState:     order.StatePending,
	}
}

func TestHosted_Verify_ValidSignature(t *testing.T) {
	g, err := NewHosted(HostedConfig{KeyID: "key", KeySecret: testSecret})
	require.NoError(t, err)

	proof := order.PaymentProof{
		Kind:             order.ProofHostedSignature,
		GatewayOrderID:   "gw_1",
		GatewayPaymentID: "pay_1",
		Signature:        SignProof(testSecret, "gw_1", "pay_1"),
	}
	assert.NoError(t, g.Verify(context.Background(), hostedOrder("gw_1"), proof))
}

// Any single-character mutation of the signature must fail verification.
func TestHosted_Verify_MutatedSignature(t *testing.T) {
	g, err := NewHosted(HostedConfig{KeyID: "key", KeySecret: testSecret})
	require.NoError(t, err)

	sig := SignProof(testSecret, "gw_1", "pay_1")
	for i := 0; i < len(sig); i++ {
		mutated := []byte(sig)
		if mutated[i] == 'a' {
			mutated[i] = 'b'
		} else {
			mutated[i] = 'a'
		}
		proof := order.PaymentProof{
			Kind:             order.ProofHostedSignature,
			GatewayOrderID:   "gw_1",
			GatewayPaymentID: "pay_1",
			Signature:        string(mutated),
		}
		err := g.Verify(context.Background(), hostedOrder("gw_1"), proof)
		require.Error(t, err, "mutation at index %d must fail", i)
		assert.ErrorIs(t, err, ErrVerificationFailed)
	}
}

func TestHosted_Verify_ConclusiveRejections(t *testing.T) {
	g, err := NewHosted(HostedConfig{KeyID: "key", KeySecret: testSecret})
	require.NoError(t, err)
	ctx := context.Background()

	cases := []struct {
		name  string
		o     *order.Order
		proof order.PaymentProof
	}{
		{
			name: "wrong proof kind",
			o:    hostedOrder("gw_1"),
			proof: order.PaymentProof{
				Kind: order.ProofOnChainTransfer, TxHash: "0xabc",
			},
		},
		{
			name: "foreign intent id",
			o:    hostedOrder("gw_1"),
			proof: order.PaymentProof{
				Kind: order.ProofHostedSignature, GatewayOrderID: "gw_other",
				GatewayPaymentID: "pay_1", Signature: SignProof(testSecret, "gw_other", "pay_1"),
			},
		},
		{
			name: "no intent on order",
			o:    hostedOrder(""),
			proof: order.PaymentProof{
				Kind: order.ProofHostedSignature, GatewayOrderID: "gw_1",
				GatewayPaymentID: "pay_1", Signature: SignProof(testSecret, "gw_1", "pay_1"),
			},
		},
		{
			name: "non-hex signature",
			o:    hostedOrder("gw_1"),
			proof: order.PaymentProof{
				Kind: order.ProofHostedSignature, GatewayOrderID: "gw_1",
				GatewayPaymentID: "pay_1", Signature: "not-hex!",
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := g.Verify(ctx, tc.o, tc.proof)
			require.Error(t, err)
			var verr *VerificationError
			require.True(t, errors.As(err, &verr))
			assert.True(t, verr.Conclusive)
		})
	}
}

func TestHosted_OpenIntent(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/v1/orders", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"gw_123"}`))
	}))
	defer srv.Close()

	g, err := NewHosted(HostedConfig{BaseURL: srv.URL, KeyID: "key", KeySecret: testSecret})
	require.NoError(t, err)

	ref, err := g.OpenIntent(context.Background(), finance.MustNew(30000, "INR"), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, "gw_123", ref)
	assert.NotEmpty(t, gotAuth)
}

func TestHosted_OpenIntent_ProviderDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g, err := NewHosted(HostedConfig{BaseURL: srv.URL, KeyID: "key", KeySecret: testSecret})
	require.NoError(t, err)

	_, err = g.OpenIntent(context.Background(), finance.MustNew(30000, "INR"), "ord-1")
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}
