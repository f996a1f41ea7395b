package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"
)

const customerColumns = `customer_id, name, address, email, phone, credit, active_status`

// SqliteCustomers implements CustomerRepository using SQLite.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type SqliteCustomers struct {
	db   *sql.DB
	path string
}

// OpenSqliteCustomers opens or creates the CRM database at path.
// Creates parent directories if they don't exist.
func OpenSqliteCustomers(path string) (*SqliteCustomers, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	return newSqliteCustomers(db, path)
}

// NewSqliteCustomersInMemory creates an in-memory database (useful for testing).
func NewSqliteCustomersInMemory() (*SqliteCustomers, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}
	// Every pooled connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return newSqliteCustomers(db, ":memory:")
}

func newSqliteCustomers(db *sql.DB, path string) (*SqliteCustomers, error) {
	s := &SqliteCustomers{db: db, path: path}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SqliteCustomers) Close() error {
	return s.db.Close()
}

// Location returns the database path.
func (s *SqliteCustomers) Location() string {
	return s.path
}

// Ping verifies the database is reachable.
func (s *SqliteCustomers) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to reach database: %w", err)
	}
	return nil
}

func (s *SqliteCustomers) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS customers (
			customer_id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			address TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL UNIQUE,
			phone TEXT NOT NULL DEFAULT '',
			credit REAL NOT NULL DEFAULT 0,
			active_status TEXT NOT NULL DEFAULT 'active'
				CHECK (active_status IN ('active', 'inactive'))
		);

		CREATE INDEX IF NOT EXISTS idx_customers_name ON customers(name);
		CREATE INDEX IF NOT EXISTS idx_customers_status ON customers(active_status);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Create inserts c and returns it with its assigned ID.
func (s *SqliteCustomers) Create(ctx context.Context, c Customer) (Customer, error) {
	if err := c.Validate(); err != nil {
		return Customer{}, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO customers (name, address, email, phone, credit, active_status) VALUES (?, ?, ?, ?, ?, ?)`,
		c.Name, c.Address, c.Email, c.Phone, c.Credit, string(c.Status),
	)
	if err != nil {
		return Customer{}, translateError("failed to create customer", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Customer{}, fmt.Errorf("failed to read customer id: %w", err)
	}
	c.ID = id
	return c, nil
}

// Get returns the customer with the given ID.
func (s *SqliteCustomers) Get(ctx context.Context, id int64) (Customer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE customer_id = ?`, id)
	c, err := scanCustomer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Customer{}, fmt.Errorf("%w: id %d", ErrCustomerNotFound, id)
	}
	if err != nil {
		return Customer{}, fmt.Errorf("failed to get customer: %w", err)
	}
	return c, nil
}

// GetByEmail returns the customer with the given email (case-insensitive).
func (s *SqliteCustomers) GetByEmail(ctx context.Context, email string) (Customer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE email = ? COLLATE NOCASE`, email)
	c, err := scanCustomer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Customer{}, fmt.Errorf("%w: email %s", ErrCustomerNotFound, email)
	}
	if err != nil {
		return Customer{}, fmt.Errorf("failed to get customer by email: %w", err)
	}
	return c, nil
}

// List returns a page of customers ordered by ID.
func (s *SqliteCustomers) List(ctx context.Context, offset, limit int) ([]Customer, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.query(ctx, "failed to list customers",
		`SELECT `+customerColumns+` FROM customers ORDER BY customer_id LIMIT ? OFFSET ?`, limit, offset)
}

// ListActive returns all active customers.
func (s *SqliteCustomers) ListActive(ctx context.Context) ([]Customer, error) {
	return s.query(ctx, "failed to list active customers",
		`SELECT `+customerColumns+` FROM customers WHERE active_status = ? ORDER BY customer_id`, string(StatusActive))
}

// Search matches term case-insensitively against name and email.
func (s *SqliteCustomers) Search(ctx context.Context, term string) ([]Customer, error) {
	return s.query(ctx, "failed to search customers",
		`SELECT `+customerColumns+` FROM customers
		 WHERE name LIKE '%' || ?1 || '%' OR email LIKE '%' || ?1 || '%'
		 ORDER BY customer_id`, term)
}

// Update replaces every field of the customer identified by c.ID.
func (s *SqliteCustomers) Update(ctx context.Context, c Customer) (Customer, error) {
	if err := c.Validate(); err != nil {
		return Customer{}, err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE customers SET name = ?, address = ?, email = ?, phone = ?, credit = ?, active_status = ? WHERE customer_id = ?`,
		c.Name, c.Address, c.Email, c.Phone, c.Credit, string(c.Status), c.ID,
	)
	if err != nil {
		return Customer{}, translateError("failed to update customer", err)
	}
	if err := requireAffected(res, c.ID); err != nil {
		return Customer{}, err
	}
	return c, nil
}

// UpdateCredit sets a customer's credit and returns the updated record.
func (s *SqliteCustomers) UpdateCredit(ctx context.Context, id int64, credit float64) (Customer, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Customer{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `UPDATE customers SET credit = ? WHERE customer_id = ?`, credit, id)
	if err != nil {
		return Customer{}, fmt.Errorf("failed to update credit: %w", err)
	}
	if err := requireAffected(res, id); err != nil {
		return Customer{}, err
	}

	c, err := scanCustomer(tx.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE customer_id = ?`, id))
	if err != nil {
		return Customer{}, fmt.Errorf("failed to reload customer: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Customer{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return c, nil
}

// Delete removes the customer with the given ID.
func (s *SqliteCustomers) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE customer_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete customer: %w", err)
	}
	return requireAffected(res, id)
}

// Count returns total, active and inactive counts in one query.
func (s *SqliteCustomers) Count(ctx context.Context) (CustomerCount, error) {
	var n CustomerCount
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN active_status = 'active' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN active_status = 'inactive' THEN 1 ELSE 0 END), 0)
		FROM customers`).Scan(&n.Total, &n.Active, &n.Inactive)
	if err != nil {
		return CustomerCount{}, fmt.Errorf("failed to count customers: %w", err)
	}
	return n, nil
}

func (s *SqliteCustomers) query(ctx context.Context, op, query string, args ...any) ([]Customer, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCustomer(row scanner) (Customer, error) {
	var c Customer
	var status string
	if err := row.Scan(&c.ID, &c.Name, &c.Address, &c.Email, &c.Phone, &c.Credit, &status); err != nil {
		return Customer{}, err
	}
	c.Status = Status(status)
	return c, nil
}

func requireAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", ErrCustomerNotFound, id)
	}
	return nil
}

// translateError maps SQLite constraint violations to repository errors.
func translateError(op string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("%s: %w", op, ErrDuplicateEmail)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Verify SqliteCustomers implements CustomerRepository
var _ CustomerRepository = (*SqliteCustomers)(nil)
