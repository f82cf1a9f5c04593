package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists order records in SQLite. State transitions are enforced
// with conditional updates so a replayed confirmation can never move an
// order out of a terminal state.
type Store struct {
	db *sql.DB
}

// NewStore creates the store and runs its migration.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS orders (
		order_id TEXT PRIMARY KEY,
		buyer_id TEXT NOT NULL,
		full_name TEXT NOT NULL,
		email TEXT NOT NULL,
		phone TEXT NOT NULL,
		address TEXT NOT NULL,
		city TEXT NOT NULL,
		state TEXT NOT NULL,
		zip_code TEXT NOT NULL,
		country TEXT NOT NULL,
		lines JSON NOT NULL,
		total_amount_minor INTEGER NOT NULL,
		currency TEXT NOT NULL,
		payment_state TEXT NOT NULL DEFAULT 'Pending',
		payment_intent_ref TEXT,
		payment_proof JSON,
		receipt JSON,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_orders_buyer ON orders(buyer_id);
	CREATE INDEX IF NOT EXISTS idx_orders_state ON orders(payment_state);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Create durably inserts a new Pending order. This is the first durable
// side effect of a checkout.
func (s *Store) Create(ctx context.Context, o *Order) error {
	linesJSON, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("marshal order lines: %w", err)
	}

	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	o.PaymentState = StatePending

	query := `INSERT INTO orders (
		order_id, buyer_id, full_name, email, phone, address, city, state, zip_code, country,
		lines, total_amount_minor, currency, payment_state, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		o.ID, o.BuyerID,
		o.Shipping.FullName, o.Shipping.Email, o.Shipping.Phone, o.Shipping.Address,
		o.Shipping.City, o.Shipping.State, o.Shipping.ZipCode, o.Shipping.Country,
		string(linesJSON), o.TotalAmountMinor, o.Currency, string(o.PaymentState),
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

// Get loads an order by id.
func (s *Store) Get(ctx context.Context, id string) (*Order, error) {
	return s.queryOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id = ?`, id)
}

// GetForBuyer loads an order by id scoped to the owning buyer. A foreign
// buyer sees ErrNotFound, not a permission error, to avoid leaking ids.
func (s *Store) GetForBuyer(ctx context.Context, id, buyerID string) (*Order, error) {
	return s.queryOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id = ? AND buyer_id = ?`, id, buyerID)
}

// ListForBuyer returns a buyer's orders, newest first.
func (s *Store) ListForBuyer(ctx context.Context, buyerID string, limit int) ([]*Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE buyer_id = ? ORDER BY created_at DESC LIMIT ?`,
		buyerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var orders []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

// SetIntentRef records the gateway's payment intent handle on a Pending order.
func (s *Store) SetIntentRef(ctx context.Context, id, ref string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET payment_intent_ref = ?, updated_at = ? WHERE order_id = ? AND payment_state = 'Pending'`,
		ref, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("set intent ref: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

// MarkPaid transitions Pending -> Paid and attaches the verified proof.
// Returns ErrAlreadyFinalized if the order is no longer Pending.
func (s *Store) MarkPaid(ctx context.Context, id string, proof *PaymentProof) error {
	proofJSON, err := json.Marshal(proof)
	if err != nil {
		return fmt.Errorf("marshal payment proof: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET payment_state = 'Paid', payment_proof = ?, updated_at = ? WHERE order_id = ? AND payment_state = 'Pending'`,
		string(proofJSON), time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("mark paid: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

// MarkFailed transitions Pending -> Failed.
func (s *Store) MarkFailed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET payment_state = 'Failed', updated_at = ? WHERE order_id = ? AND payment_state = 'Pending'`,
		time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return s.checkTransition(ctx, res, id)
}

// AttachReceipt records the archival result on a Paid order. Receipt data
// (or its error) is attached exactly once.
func (s *Store) AttachReceipt(ctx context.Context, id string, r *Receipt) error {
	receiptJSON, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal receipt: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET receipt = ?, updated_at = ? WHERE order_id = ? AND payment_state = 'Paid' AND receipt IS NULL`,
		string(receiptJSON), time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("attach receipt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("receipt not attachable for order %s: %w", id, ErrAlreadyFinalized)
	}
	return nil
}

// FailStalePending marks Pending orders created before the cutoff as
// Failed and returns how many were affected. Bounds the payment window.
func (s *Store) FailStalePending(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET payment_state = 'Failed', updated_at = ? WHERE payment_state = 'Pending' AND created_at < ?`,
		time.Now().UTC().Format(time.RFC3339Nano), cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("fail stale pending: %w", err)
	}
	return res.RowsAffected()
}

// checkTransition distinguishes "order missing" from "order no longer
// Pending" when a guarded update matched zero rows.
func (s *Store) checkTransition(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var state string
	err = s.db.QueryRowContext(ctx, `SELECT payment_state FROM orders WHERE order_id = ?`, id).Scan(&state)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("order %s is %s: %w", id, state, ErrAlreadyFinalized)
}

const orderColumns = `order_id, buyer_id, full_name, email, phone, address, city, state, zip_code, country,
	lines, total_amount_minor, currency, payment_state, payment_intent_ref, payment_proof, receipt, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) queryOne(ctx context.Context, query string, args ...any) (*Order, error) {
	o, err := scanOrder(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return o, err
}

func scanOrder(row rowScanner) (*Order, error) {
	var (
		o         Order
		linesJSON string
		state     string
		intentRef sql.NullString
		proofJSON sql.NullString
		rcptJSON  sql.NullString
		createdAt string
		updatedAt string
	)
	err := row.Scan(
		&o.ID, &o.BuyerID,
		&o.Shipping.FullName, &o.Shipping.Email, &o.Shipping.Phone, &o.Shipping.Address,
		&o.Shipping.City, &o.Shipping.State, &o.Shipping.ZipCode, &o.Shipping.Country,
		&linesJSON, &o.TotalAmountMinor, &o.Currency, &state, &intentRef, &proofJSON, &rcptJSON,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(linesJSON), &o.Lines); err != nil {
		return nil, fmt.Errorf("unmarshal order lines: %w", err)
	}
	o.PaymentState = PaymentState(state)
	o.PaymentIntentRef = intentRef.String
	if proofJSON.Valid && proofJSON.String != "" {
		o.Proof = &PaymentProof{}
		if err := json.Unmarshal([]byte(proofJSON.String), o.Proof); err != nil {
			return nil, fmt.Errorf("unmarshal payment proof: %w", err)
		}
	}
	if rcptJSON.Valid && rcptJSON.String != "" {
		o.Receipt = &Receipt{}
		if err := json.Unmarshal([]byte(rcptJSON.String), o.Receipt); err != nil {
			return nil, fmt.Errorf("unmarshal receipt: %w", err)
		}
	}
	o.CreatedAt = parseTime(createdAt)
	o.UpdatedAt = parseTime(updatedAt)
	return &o, nil
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
