package postgres

import "context"

// migrations run once at startup and are idempotent. Ordering matters:
// sessions and the ledger tables reference users and products.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(64) PRIMARY KEY,
		username VARCHAR(64) UNIQUE NOT NULL,
		password_hash VARCHAR(256) NOT NULL,
		role VARCHAR(16) NOT NULL CHECK (role IN ('admin', 'seller')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		token VARCHAR(128) PRIMARY KEY,
		user_id VARCHAR(64) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		expires_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS sessions_expires_idx ON sessions (expires_at)`,
	`CREATE TABLE IF NOT EXISTS products (
		id VARCHAR(64) PRIMARY KEY,
		code VARCHAR(128) UNIQUE NOT NULL,
		name VARCHAR(256) NOT NULL,
		unit_cost DOUBLE PRECISION NOT NULL,
		sale_price DOUBLE PRECISION NOT NULL,
		current_stock DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (current_stock >= 0),
		total_invested DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS entries (
		id VARCHAR(64) PRIMARY KEY,
		product_id VARCHAR(64) NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		quantity DOUBLE PRECISION NOT NULL,
		unit_cost DOUBLE PRECISION NOT NULL,
		total_cost DOUBLE PRECISION NOT NULL,
		date TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sales (
		id VARCHAR(64) PRIMARY KEY,
		product_id VARCHAR(64) NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		quantity DOUBLE PRECISION NOT NULL,
		unit_price DOUBLE PRECISION NOT NULL,
		total_revenue DOUBLE PRECISION NOT NULL,
		date TIMESTAMPTZ NOT NULL,
		transaction_id VARCHAR(64) NOT NULL,
		seller_id VARCHAR(64) REFERENCES users(id),
		seller_name VARCHAR(64)
	)`,
	`CREATE INDEX IF NOT EXISTS sales_transaction_idx ON sales (transaction_id)`,
	`CREATE INDEX IF NOT EXISTS sales_date_idx ON sales (date DESC)`,
	`CREATE INDEX IF NOT EXISTS entries_date_idx ON entries (date DESC)`,
}

func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
