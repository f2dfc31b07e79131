package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_access TIMESTAMPTZ
	);`,
	`CREATE TABLE IF NOT EXISTS categories (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		barcode TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		sale_price_cents BIGINT NOT NULL CHECK (sale_price_cents >= 0),
		cost_price_cents BIGINT NOT NULL CHECK (cost_price_cents >= 0),
		stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
		stock_min INTEGER NOT NULL DEFAULT 0,
		category_id TEXT REFERENCES categories(id),
		active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE TABLE IF NOT EXISTS suppliers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS suppliers_active_name_key ON suppliers (lower(name)) WHERE active;`,
	`CREATE TABLE IF NOT EXISTS sales (
		id TEXT PRIMARY KEY,
		number TEXT NOT NULL UNIQUE,
		total_cents BIGINT NOT NULL,
		payment_method TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		user_id TEXT REFERENCES users(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS sales_created_at_idx ON sales (created_at);`,
	`CREATE TABLE IF NOT EXISTS sale_items (
		id TEXT PRIMARY KEY,
		sale_id TEXT NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
		line_no INTEGER NOT NULL,
		product_id TEXT NOT NULL REFERENCES products(id),
		product_name TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price_cents BIGINT NOT NULL,
		unit_cost_cents BIGINT NOT NULL DEFAULT 0,
		subtotal_cents BIGINT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS sale_items_sale_id_idx ON sale_items (sale_id);`,
	`CREATE TABLE IF NOT EXISTS returns (
		id TEXT PRIMARY KEY,
		number TEXT NOT NULL UNIQUE,
		sale_id TEXT NOT NULL REFERENCES sales(id),
		total_cents BIGINT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		user_id TEXT REFERENCES users(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS returns_sale_id_idx ON returns (sale_id);`,
	`CREATE INDEX IF NOT EXISTS returns_created_at_idx ON returns (created_at);`,
	`CREATE TABLE IF NOT EXISTS return_items (
		id TEXT PRIMARY KEY,
		return_id TEXT NOT NULL REFERENCES returns(id) ON DELETE CASCADE,
		line_no INTEGER NOT NULL,
		sale_item_id TEXT NOT NULL REFERENCES sale_items(id),
		product_id TEXT NOT NULL REFERENCES products(id),
		product_name TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price_cents BIGINT NOT NULL,
		unit_cost_cents BIGINT NOT NULL DEFAULT 0,
		subtotal_cents BIGINT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS purchases (
		id TEXT PRIMARY KEY,
		number TEXT NOT NULL UNIQUE,
		supplier_id TEXT REFERENCES suppliers(id),
		total_cents BIGINT NOT NULL CHECK (total_cents > 0),
		notes TEXT NOT NULL DEFAULT '',
		user_id TEXT REFERENCES users(id),
		received_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE TABLE IF NOT EXISTS purchase_items (
		id TEXT PRIMARY KEY,
		purchase_id TEXT NOT NULL REFERENCES purchases(id) ON DELETE CASCADE,
		line_no INTEGER NOT NULL,
		product_id TEXT NOT NULL REFERENCES products(id),
		product_name TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_cost_cents BIGINT NOT NULL CHECK (unit_cost_cents >= 0),
		subtotal_cents BIGINT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS animals (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		species TEXT NOT NULL,
		breed TEXT NOT NULL DEFAULT '',
		age_years INTEGER NOT NULL DEFAULT 0,
		age_months INTEGER NOT NULL DEFAULT 0,
		owner_name TEXT NOT NULL,
		owner_phone TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE TABLE IF NOT EXISTS consultations (
		id TEXT PRIMARY KEY,
		animal_id TEXT NOT NULL REFERENCES animals(id),
		consulted_at TIMESTAMPTZ NOT NULL,
		reason TEXT NOT NULL,
		diagnosis TEXT NOT NULL DEFAULT '',
		treatment TEXT NOT NULL DEFAULT '',
		observations TEXT NOT NULL DEFAULT '',
		sale_id TEXT UNIQUE REFERENCES sales(id),
		user_id TEXT REFERENCES users(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS consultations_animal_id_idx ON consultations (animal_id);`,
	`CREATE TABLE IF NOT EXISTS consultation_items (
		id TEXT PRIMARY KEY,
		consultation_id TEXT NOT NULL REFERENCES consultations(id) ON DELETE CASCADE,
		line_no INTEGER NOT NULL,
		product_id TEXT NOT NULL REFERENCES products(id),
		product_name TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		notes TEXT NOT NULL DEFAULT ''
	);`,
	`CREATE TABLE IF NOT EXISTS business_settings (
		id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
		name TEXT NOT NULL,
		tax_id TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		logo_path TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		actor_username TEXT NOT NULL DEFAULT '',
		actor_role TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL DEFAULT '',
		detail TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS audit_logs_created_at_idx ON audit_logs (created_at);`,
}

func migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
