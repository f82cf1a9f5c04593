package gateway

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/decorluxe-labs/commerce/core/pkg/finance"
	"github.com/decorluxe-labs/commerce/core/pkg/order"
)

// OnChainConfig configures the on-chain transfer gateway variant.
type OnChainConfig struct {
	RPCURL           string
	MerchantAddress  string   // 0x-prefixed; EIP-55 checksum enforced when mixed-case
	Network          string   // informational, e.g. "polygon-amoy"
	MinConfirmations uint64   // blocks mined atop the tx block, inclusive
	WeiPerMinor      *big.Int // chain smallest units per minor currency unit
	Timeout          time.Duration
}

// OnChain implements Gateway for direct wallet-to-merchant transfers.
// There is no provider-side intent: the buyer pays the configured
// merchant address and submits the transaction hash as proof. Verify
// asks a blockchain node whether that transaction is mined, successful,
// addressed to the merchant, and worth exactly the order total.
type OnChain struct {
	cfg    OnChainConfig
	client *retryingClient
}

// NewOnChain creates the on-chain gateway. The merchant address is
// validated up front; a typo here would send every verification against
// the wrong recipient.
func NewOnChain(cfg OnChainConfig) (*OnChain, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("on-chain gateway requires an RPC URL")
	}
	if err := validateAddress(cfg.MerchantAddress); err != nil {
		return nil, fmt.Errorf("merchant address: %w", err)
	}
	if cfg.WeiPerMinor == nil || cfg.WeiPerMinor.Sign() <= 0 {
		return nil, fmt.Errorf("on-chain gateway requires a positive wei-per-minor-unit rate")
	}
	if cfg.MinConfirmations == 0 {
		cfg.MinConfirmations = 2
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &OnChain{cfg: cfg, client: newRetryingClient(cfg.Timeout)}, nil
}

// OpenIntent is a no-op for on-chain payments; the buyer pays the
// merchant address directly.
func (g *OnChain) OpenIntent(_ context.Context, _ finance.Money, _ string) (string, error) {
	return "", nil
}

// Verify checks the claimed transaction against the node.
func (g *OnChain) Verify(ctx context.Context, o *order.Order, proof order.PaymentProof) error {
	if proof.Kind != order.ProofOnChainTransfer {
		return &VerificationError{Reason: fmt.Sprintf("unexpected proof kind %q", proof.Kind), Conclusive: true}
	}
	if proof.TxHash == "" {
		return &VerificationError{Reason: "missing transaction hash", Conclusive: true}
	}

	tx, err := g.transactionByHash(ctx, proof.TxHash)
	if err != nil {
		return err
	}
	if tx == nil {
		// Not in the mempool or any block yet; may still propagate.
		return &VerificationError{Reason: "transaction not found"}
	}
	if tx.BlockNumber == "" {
		return &VerificationError{Reason: "transaction not yet mined"}
	}
	if !strings.EqualFold(tx.To, g.cfg.MerchantAddress) {
		return &VerificationError{Reason: "transaction recipient is not the merchant", Conclusive: true}
	}

	value, ok := parseHexBig(tx.Value)
	if !ok {
		return &VerificationError{Reason: "malformed transaction value", Conclusive: true}
	}
	total := finance.Of(o.TotalAmountMinor, o.Currency)
	expected := total.ToChainUnits(g.cfg.WeiPerMinor)
	if value.Cmp(expected) != 0 {
		return &VerificationError{
			Reason:     fmt.Sprintf("transaction value %s does not match order total %s", value, expected),
			Conclusive: true,
		}
	}

	status, found, err := g.receiptStatus(ctx, proof.TxHash)
	if err != nil {
		return err
	}
	if !found {
		return &VerificationError{Reason: "transaction receipt not yet available"}
	}
	if status != 1 {
		return &VerificationError{Reason: "transaction reverted", Conclusive: true}
	}

	txBlock, ok := parseHexBig(tx.BlockNumber)
	if !ok {
		return &VerificationError{Reason: "malformed transaction block number", Conclusive: true}
	}
	head, err := g.blockNumber(ctx)
	if err != nil {
		return err
	}
	confirmations := new(big.Int).Sub(head, txBlock)
	confirmations.Add(confirmations, big.NewInt(1))
	if confirmations.Cmp(new(big.Int).SetUint64(g.cfg.MinConfirmations)) < 0 {
		return &VerificationError{
			Reason: fmt.Sprintf("insufficient confirmations: %s of %d", confirmations, g.cfg.MinConfirmations),
		}
	}
	return nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcTransaction struct {
	BlockNumber string `json:"blockNumber"`
	To          string `json:"to"`
	Value       string `json:"value"`
}

type rpcReceipt struct {
	Status string `json:"status"`
}

func (g *OnChain) call(ctx context.Context, method string, params []any, out any) error {
	payload, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return fmt.Errorf("marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.RPCURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrGatewayUnavailable, method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %d", ErrGatewayUnavailable, method, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", ErrGatewayUnavailable, method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%w: %s: rpc error %d: %s", ErrGatewayUnavailable, method, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if string(rpcResp.Result) == "null" {
		return nil // caller treats nil result as absence
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("%w: unmarshal %s result: %v", ErrGatewayUnavailable, method, err)
	}
	return nil
}

func (g *OnChain) transactionByHash(ctx context.Context, hash string) (*rpcTransaction, error) {
	var tx rpcTransaction
	if err := g.call(ctx, "eth_getTransactionByHash", []any{hash}, &tx); err != nil {
		return nil, err
	}
	if tx.To == "" && tx.Value == "" {
		return nil, nil
	}
	return &tx, nil
}

func (g *OnChain) receiptStatus(ctx context.Context, hash string) (status int, found bool, err error) {
	var rcpt rpcReceipt
	if err := g.call(ctx, "eth_getTransactionReceipt", []any{hash}, &rcpt); err != nil {
		return 0, false, err
	}
	if rcpt.Status == "" {
		return 0, false, nil
	}
	if rcpt.Status == "0x1" {
		return 1, true, nil
	}
	return 0, true, nil
}

func (g *OnChain) blockNumber(ctx context.Context) (*big.Int, error) {
	var headHex string
	if err := g.call(ctx, "eth_blockNumber", []any{}, &headHex); err != nil {
		return nil, err
	}
	head, ok := parseHexBig(headHex)
	if !ok {
		return nil, fmt.Errorf("%w: malformed block number %q", ErrGatewayUnavailable, headHex)
	}
	return head, nil
}

func parseHexBig(s string) (*big.Int, bool) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return nil, false
	}
	return new(big.Int).SetString(s, 16)
}

// validateAddress checks 0x-prefixed length and hex content, and when the
// address is mixed-case, its EIP-55 checksum.
func validateAddress(addr string) error {
	if !strings.HasPrefix(addr, "0x") || len(addr) != 42 {
		return fmt.Errorf("expected 0x-prefixed 20-byte hex address, got %q", addr)
	}
	body := addr[2:]
	if _, err := hex.DecodeString(body); err != nil {
		return fmt.Errorf("address is not valid hex: %w", err)
	}

	lower := strings.ToLower(body)
	if body == lower || body == strings.ToUpper(body) {
		return nil // no checksum encoded
	}

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	digest := hex.EncodeToString(h.Sum(nil))
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c >= '0' && c <= '9' {
			continue
		}
		upper := digest[i] >= '8'
		if upper != (c >= 'A' && c <= 'F') {
			return fmt.Errorf("address fails EIP-55 checksum")
		}
	}
	return nil
}
