package decoupled

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the embedded schema migrations
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// PostgresStore implements the identity stores on Postgres
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens and pings the database
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an open database
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// DB returns the underlying database
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Close closes the database
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) UserIDByEmail(ctx context.Context, email string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM users WHERE email = $1`, email).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up user: %w", err)
	}
	return id, true, nil
}

func (s *PostgresStore) Customer(ctx context.Context, cartKey string) (SessionCustomer, bool, error) {
	var c SessionCustomer
	err := s.db.QueryRowContext(ctx,
		`SELECT customer_id, customer_email FROM sessions WHERE cart_key = $1`, cartKey,
	).Scan(&c.ID, &c.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionCustomer{}, false, nil
	}
	if err != nil {
		return SessionCustomer{}, false, fmt.Errorf("failed to read session: %w", err)
	}
	return c, true, nil
}

// PutSession upserts the session customer for a cart key
func (s *PostgresStore) PutSession(ctx context.Context, cartKey string, customer SessionCustomer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (cart_key, customer_id, customer_email, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (cart_key) DO UPDATE
		SET customer_id = EXCLUDED.customer_id, customer_email = EXCLUDED.customer_email, updated_at = now()`,
		cartKey, customer.ID, customer.Email)
	if err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Order(ctx context.Context, id int64) (*Order, error) {
	order := &Order{ID: id, Meta: make(map[string]string)}
	err := s.db.QueryRowContext(ctx,
		`SELECT customer_id, billing_email FROM orders WHERE id = $1`, id,
	).Scan(&order.CustomerID, &order.BillingEmail)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT meta_key, meta_value FROM order_meta WHERE order_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query order meta: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan order meta: %w", err)
		}
		order.Meta[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read order meta: %w", err)
	}
	return order, nil
}

// SaveOrder writes the owner and replaces the order meta in one transaction
func (s *PostgresStore) SaveOrder(ctx context.Context, order *Order) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET customer_id = $2, billing_email = $3 WHERE id = $1`,
		order.ID, order.CustomerID, order.BillingEmail)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrOrderNotFound
	}

	keys := make([]string, 0, len(order.Meta))
	for k := range order.Meta {
		keys = append(keys, k)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM order_meta WHERE order_id = $1 AND NOT (meta_key = ANY($2))`,
		order.ID, pq.Array(keys)); err != nil {
		return fmt.Errorf("failed to prune order meta: %w", err)
	}
	for k, v := range order.Meta {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_meta (order_id, meta_key, meta_value) VALUES ($1, $2, $3)
			ON CONFLICT (order_id, meta_key) DO UPDATE SET meta_value = EXCLUDED.meta_value`,
			order.ID, k, v); err != nil {
			return fmt.Errorf("failed to write order meta: %w", err)
		}
	}
	return tx.Commit()
}

// CreateOrder inserts an order and returns its id
func (s *PostgresStore) CreateOrder(ctx context.Context, order *Order) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx,
		`INSERT INTO orders (customer_id, billing_email) VALUES ($1, $2) RETURNING id`,
		order.CustomerID, order.BillingEmail).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to create order: %w", err)
	}
	order.ID = id
	if len(order.Meta) > 0 {
		if err := s.SaveOrder(ctx, order); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// CreateUser inserts a user and returns its id
func (s *PostgresStore) CreateUser(ctx context.Context, email string) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, `INSERT INTO users (email) VALUES ($1) RETURNING id`, email).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to create user: %w", err)
	}
	return id, nil
}

var (
	_ UserDirectory = (*PostgresStore)(nil)
	_ SessionReader = (*PostgresStore)(nil)
	_ OrderStore    = (*PostgresStore)(nil)
)
