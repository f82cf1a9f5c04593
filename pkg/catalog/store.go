package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store backs the catalog and inventory ledger with SQLite.
//
// Stock mutation goes through exactly one statement: a conditional
// decrement that refuses to drive stock negative. There is no
// application-level read-modify-write anywhere in this package.
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
	CREATE TABLE IF NOT EXISTS products (
		product_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		price_minor INTEGER NOT NULL,
		currency TEXT NOT NULL,
		stock INTEGER NOT NULL CHECK (stock >= 0),
		active INTEGER NOT NULL DEFAULT 1
	);
	CREATE TABLE IF NOT EXISTS inventory_commits (
		order_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		committed_at DATETIME NOT NULL,
		PRIMARY KEY (order_id, product_id)
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Put inserts or replaces a product. Used by catalog ownership code and
// test fixtures; checkout itself never creates products.
func (s *Store) Put(ctx context.Context, p *Product) error {
	active := 0
	if p.Active {
		active = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO products (product_id, name, price_minor, currency, stock, active)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(product_id) DO UPDATE SET
		   name = excluded.name, price_minor = excluded.price_minor,
		   currency = excluded.currency, stock = excluded.stock, active = excluded.active`,
		p.ID, p.Name, p.PriceMinor, p.Currency, p.Stock, active)
	if err != nil {
		return fmt.Errorf("put product: %w", err)
	}
	return nil
}

// Product loads an active product by id.
func (s *Store) Product(ctx context.Context, id string) (*Product, error) {
	var (
		p      Product
		active int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT product_id, name, price_minor, currency, stock, active FROM products WHERE product_id = ?`,
		id).Scan(&p.ID, &p.Name, &p.PriceMinor, &p.Currency, &p.Stock, &active)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product %s: %w", id, ErrProductNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load product %s: %w", id, err)
	}
	p.Active = active == 1
	if !p.Active {
		return nil, fmt.Errorf("product %s inactive: %w", id, ErrProductNotFound)
	}
	return &p, nil
}

// CheckStock is the best-effort pre-check used at checkout initiation.
// Non-binding: nothing is reserved, and stock can still be taken by a
// competing order before confirmation.
func (s *Store) CheckStock(ctx context.Context, productID string, quantity int64) error {
	p, err := s.Product(ctx, productID)
	if err != nil {
		return err
	}
	if p.Stock < quantity {
		return &StockError{ProductID: productID, Requested: quantity, Available: p.Stock}
	}
	return nil
}

// CommitDecrements atomically decrements stock for every line of an
// order, inside a single transaction. If any line cannot be covered the
// whole commit rolls back and a StockError for that line is returned.
//
// The commit is idempotent per order id: a ledger row in
// inventory_commits guards re-execution, so a crash between decrement
// and mark-Paid followed by a retried confirmation decrements only once.
func (s *Store) CommitDecrements(ctx context.Context, orderID string, lines []Decrement) error {
	if len(lines) == 0 {
		return fmt.Errorf("commit for order %s has no lines", orderID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin inventory commit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var already int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM inventory_commits WHERE order_id = ?`, orderID).Scan(&already)
	if err != nil {
		return fmt.Errorf("check inventory commit for order %s: %w", orderID, err)
	}
	if already > 0 {
		// This order already decremented; nothing more to do.
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, line := range lines {
		res, err := tx.ExecContext(ctx,
			`UPDATE products SET stock = stock - ? WHERE product_id = ? AND stock >= ?`,
			line.Quantity, line.ProductID, line.Quantity)
		if err != nil {
			return fmt.Errorf("decrement stock for %s: %w", line.ProductID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			available, lookupErr := s.stockInTx(ctx, tx, line.ProductID)
			if lookupErr != nil {
				return lookupErr
			}
			return &StockError{ProductID: line.ProductID, Requested: line.Quantity, Available: available}
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO inventory_commits (order_id, product_id, quantity, committed_at) VALUES (?, ?, ?, ?)`,
			orderID, line.ProductID, line.Quantity, now)
		if err != nil {
			return fmt.Errorf("record inventory commit for %s: %w", line.ProductID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit inventory transaction: %w", err)
	}
	return nil
}

func (s *Store) stockInTx(ctx context.Context, tx *sql.Tx, productID string) (int64, error) {
	var stock int64
	err := tx.QueryRowContext(ctx,
		`SELECT stock FROM products WHERE product_id = ?`, productID).Scan(&stock)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("product %s: %w", productID, ErrProductNotFound)
	}
	if err != nil {
		return 0, err
	}
	return stock, nil
}
