package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/decorluxe-labs/commerce/core/pkg/order"
)

const merchantAddr = "0x52908400098527886e0f7030069857d2e4169ee7" // all-lowercase, checksum not enforced

// fakeNode serves canned JSON-RPC responses keyed by method.
type fakeNode struct {
	tx      map[string]any
	receipt map[string]any
	head    string
}

func (n *fakeNode) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		var result any
		switch req.Method {
		case "eth_getTransactionByHash":
			result = n.tx
		case "eth_getTransactionReceipt":
			result = n.receipt
		case "eth_blockNumber":
			result = n.head
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}
}

func minedNode(value string) *fakeNode {
	return &fakeNode{
		tx: map[string]any{
			"blockNumber": "0x64", // block 100
			"to":          merchantAddr,
			"value":       value,
		},
		receipt: map[string]any{"status": "0x1"},
		head:    "0x66", // block 102 -> 3 confirmations
	}
}

func newOnChainAgainst(t *testing.T, node *fakeNode) (*OnChain, func()) {
	t.Helper()
	srv := httptest.NewServer(node.handler())
	g, err := NewOnChain(OnChainConfig{
		RPCURL:           srv.URL,
		MerchantAddress:  merchantAddr,
		Network:          "polygon-amoy",
		MinConfirmations: 2,
		WeiPerMinor:      big.NewInt(1_000_000_000), // 1 gwei per paisa keeps numbers readable
	})
	require.NoError(t, err)
	return g, srv.Close
}

func chainOrder() *order.Order {
	return &order.Order{
		ID:               "ord-1",
		TotalAmountMinor: 30000,
		Currency:         "INR",
		PaymentState:     order.StatePending,
	}
}

func chainProof() order.PaymentProof {
	return order.PaymentProof{
		Kind:          order.ProofOnChainTransfer,
		TxHash:        "0xdeadbeef",
		WalletAddress: "0x1111111111111111111111111111111111111111",
		Network:       "polygon-amoy",
	}
}

// 30000 paise * 1 gwei = 0x1b48eb57e000 wei
const exactValue = "0x1b48eb57e000"

func TestOnChain_Verify_Success(t *testing.T) {
	g, done := newOnChainAgainst(t, minedNode(exactValue))
	defer done()

	assert.NoError(t, g.Verify(context.Background(), chainOrder(), chainProof()))
}

func TestOnChain_Verify_WrongRecipient(t *testing.T) {
	node := minedNode(exactValue)
	node.tx["to"] = "0x2222222222222222222222222222222222222222"
	g, done := newOnChainAgainst(t, node)
	defer done()

	err := g.Verify(context.Background(), chainOrder(), chainProof())
	var verr *VerificationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Conclusive)
	assert.Contains(t, verr.Reason, "recipient")
}

func TestOnChain_Verify_WrongAmount(t *testing.T) {
	node := minedNode("0x1") // 1 wei
	g, done := newOnChainAgainst(t, node)
	defer done()

	err := g.Verify(context.Background(), chainOrder(), chainProof())
	var verr *VerificationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Conclusive)
	assert.Contains(t, verr.Reason, "does not match order total")
}

func TestOnChain_Verify_Reverted(t *testing.T) {
	node := minedNode(exactValue)
	node.receipt = map[string]any{"status": "0x0"}
	g, done := newOnChainAgainst(t, node)
	defer done()

	err := g.Verify(context.Background(), chainOrder(), chainProof())
	var verr *VerificationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Conclusive)
	assert.Contains(t, verr.Reason, "reverted")
}

func TestOnChain_Verify_InsufficientConfirmations(t *testing.T) {
	node := minedNode(exactValue)
	node.head = "0x64" // same block as the tx -> 1 confirmation, need 2
	g, done := newOnChainAgainst(t, node)
	defer done()

	err := g.Verify(context.Background(), chainOrder(), chainProof())
	var verr *VerificationError
	require.True(t, errors.As(err, &verr))
	assert.False(t, verr.Conclusive, "insufficient confirmations is retriable")
}

func TestOnChain_Verify_TxNotFound(t *testing.T) {
	g, done := newOnChainAgainst(t, &fakeNode{head: "0x64"})
	defer done()

	err := g.Verify(context.Background(), chainOrder(), chainProof())
	var verr *VerificationError
	require.True(t, errors.As(err, &verr))
	assert.False(t, verr.Conclusive, "an unseen tx may still propagate")
}

func TestOnChain_Verify_NodeUnreachable(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close()

	g, err := NewOnChain(OnChainConfig{
		RPCURL:          url,
		MerchantAddress: merchantAddr,
		WeiPerMinor:     big.NewInt(1),
	})
	require.NoError(t, err)

	err = g.Verify(context.Background(), chainOrder(), chainProof())
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
	assert.NotErrorIs(t, err, ErrVerificationFailed, "unreachable node is never a proof verdict")
}

func TestValidateAddress(t *testing.T) {
	cases := []struct {
		addr string
		ok   bool
	}{
		{"0x52908400098527886e0f7030069857d2e4169ee7", true},  // lowercase
		{"0x52908400098527886E0F7030069857D2E4169EE7", true},  // checksummed (EIP-55 test vector)
		{"0x52908400098527886E0f7030069857D2E4169ee7", false}, // broken checksum
		{"0x123", false},
		{"52908400098527886e0f7030069857d2e4169ee7", false}, // missing prefix
		{fmt.Sprintf("0x%040s", "zz"), false},               // not hex
	}
	for _, c := range cases {
		err := validateAddress(c.addr)
		if c.ok {
			assert.NoError(t, err, c.addr)
		} else {
			assert.Error(t, err, c.addr)
		}
	}
}
