package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/decorluxe-labs/commerce/core/pkg/catalog"
	"github.com/decorluxe-labs/commerce/core/pkg/checkout"
	"github.com/decorluxe-labs/commerce/core/pkg/gateway"
	"github.com/decorluxe-labs/commerce/core/pkg/identity"
	"github.com/decorluxe-labs/commerce/core/pkg/invoice"
	"github.com/decorluxe-labs/commerce/core/pkg/order"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// Server exposes the checkout pipeline over HTTP.
type Server struct {
	svc    *checkout.Service
	ready  func(context.Context) error
	logger *slog.Logger
}

// NewServer creates the API server. ready is the readiness probe
// (typically a DB ping); nil means always ready.
func NewServer(svc *checkout.Service, ready func(context.Context) error, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, ready: ready, logger: logger}
}

// Routes registers all endpoints on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /checkout/create", s.handleCreateCheckout)
	mux.HandleFunc("POST /checkout/verify-payment", s.handleVerifyPayment)
	mux.HandleFunc("GET /orders", s.handleListOrders)
	mux.HandleFunc("GET /orders/{id}", s.handleGetOrder)
	mux.HandleFunc("GET /orders/{id}/invoice", s.handleInvoice)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /readiness", s.handleReadiness)
	return mux
}

type createCheckoutRequest struct {
	Shipping order.Shipping   `json:"shipping"`
	Lines    []order.CartLine `json:"lines"`
}

type createCheckoutResponse struct {
	Order           *order.Order `json:"order"`
	GatewayIntentID string       `json:"gateway_intent_id,omitempty"`
}

func (s *Server) handleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	buyerID, err := identity.BuyerID(r.Context())
	if err != nil {
		WriteUnauthorized(w, r, "")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		WriteBadRequest(w, r, "failed to read request body")
		return
	}

	var req createCheckoutRequest
	if err := decodeValid(body, createCheckoutValidator, &req); err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}

	o, err := s.svc.InitiateCheckout(r.Context(), buyerID, req.Shipping, req.Lines)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, createCheckoutResponse{
		Order:           o,
		GatewayIntentID: o.PaymentIntentRef,
	})
}

type verifyPaymentRequest struct {
	OrderID string             `json:"order_id"`
	Proof   order.PaymentProof `json:"proof"`
}

func (s *Server) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	buyerID, err := identity.BuyerID(r.Context())
	if err != nil {
		WriteUnauthorized(w, r, "")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		WriteBadRequest(w, r, "failed to read request body")
		return
	}

	var req verifyPaymentRequest
	if err := decodeValid(body, verifyPaymentValidator, &req); err != nil {
		WriteBadRequest(w, r, err.Error())
		return
	}

	// Ownership check before touching payment state: confirming a
	// foreign order must look identical to a missing one.
	if _, err := s.svc.Order(r.Context(), req.OrderID, buyerID); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	o, err := s.svc.ConfirmPayment(r.Context(), req.OrderID, req.Proof)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	buyerID, err := identity.BuyerID(r.Context())
	if err != nil {
		WriteUnauthorized(w, r, "")
		return
	}

	o, err := s.svc.Order(r.Context(), r.PathValue("id"), buyerID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	buyerID, err := identity.BuyerID(r.Context())
	if err != nil {
		WriteUnauthorized(w, r, "")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	orders, err := s.svc.Orders(r.Context(), buyerID, limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if orders == nil {
		orders = []*order.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (s *Server) handleInvoice(w http.ResponseWriter, r *http.Request) {
	buyerID, err := identity.BuyerID(r.Context())
	if err != nil {
		WriteUnauthorized(w, r, "")
		return
	}

	id := r.PathValue("id")
	pdf, err := s.svc.Invoice(r.Context(), id, buyerID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "invoice-"+id+".pdf"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("readiness probe failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// writeDomainError maps pipeline errors onto the HTTP error taxonomy.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *gateway.VerificationError
	switch {
	case errors.Is(err, checkout.ErrValidation):
		WriteBadRequest(w, r, err.Error())
	case errors.Is(err, order.ErrNotFound), errors.Is(err, catalog.ErrProductNotFound):
		WriteNotFound(w, r, err.Error())
	case errors.Is(err, order.ErrAlreadyFinalized):
		WriteConflict(w, r, err.Error())
	case errors.Is(err, catalog.ErrInsufficientStock):
		WriteConflict(w, r, err.Error())
	case errors.Is(err, invoice.ErrNotAvailable):
		WriteConflict(w, r, err.Error())
	case errors.As(err, &verr) && verr.Conclusive:
		WriteUnprocessable(w, r, err.Error())
	case errors.As(err, &verr):
		// Proof may still settle (e.g. confirmations pending).
		WriteUpstreamUnavailable(w, r, err.Error())
	case errors.Is(err, gateway.ErrGatewayUnavailable):
		WriteUpstreamUnavailable(w, r, "payment gateway temporarily unreachable")
	default:
		WriteInternal(w, r, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
