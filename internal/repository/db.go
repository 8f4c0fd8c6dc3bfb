package repository

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS commission_rates (
			id TEXT PRIMARY KEY,
			vendor_id TEXT,
			percentage TEXT NOT NULL,
			fixed_fee TEXT NOT NULL,
			currency TEXT NOT NULL,
			promo_percentage TEXT,
			promo_fixed_fee TEXT,
			promo_end_date DATETIME,
			min_order_amount TEXT,
			max_order_amount TEXT,
			effective_from DATETIME NOT NULL,
			effective_until DATETIME,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rates_vendor ON commission_rates(vendor_id)`,
		`CREATE INDEX IF NOT EXISTS idx_rates_active ON commission_rates(is_active)`,

		`CREATE TABLE IF NOT EXISTS rate_imports (
			id TEXT PRIMARY KEY,
			file_hash TEXT UNIQUE NOT NULL,
			format TEXT NOT NULL,
			record_count INTEGER NOT NULL,
			imported_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS orders (
			id TEXT PRIMARY KEY,
			vendor_id TEXT NOT NULL,
			total_amount TEXT NOT NULL,
			currency TEXT NOT NULL,
			payment_status TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_vendor ON orders(vendor_id)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(payment_status)`,

		`CREATE TABLE IF NOT EXISTS financial_transactions (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			vendor_id TEXT NOT NULL,
			order_id TEXT,
			subscription_id TEXT,
			gross_amount_cents INTEGER NOT NULL CHECK (gross_amount_cents >= 0),
			commission_percentage TEXT NOT NULL,
			commission_cents INTEGER NOT NULL CHECK (commission_cents >= 0),
			fixed_fee_cents INTEGER NOT NULL CHECK (fixed_fee_cents >= 0),
			processor_fee_cents INTEGER NOT NULL CHECK (processor_fee_cents >= 0),
			net_amount_cents INTEGER NOT NULL CHECK (net_amount_cents >= 0),
			currency TEXT NOT NULL,
			idempotency_key TEXT UNIQUE NOT NULL,
			is_settled INTEGER NOT NULL DEFAULT 0,
			settled_at DATETIME,
			settlement_batch_id TEXT,
			is_paid_to_vendor INTEGER NOT NULL DEFAULT 0,
			paid_at DATETIME,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_txns_vendor ON financial_transactions(vendor_id)`,
		`CREATE INDEX IF NOT EXISTS idx_txns_settled ON financial_transactions(is_settled)`,
		`CREATE INDEX IF NOT EXISTS idx_txns_batch ON financial_transactions(settlement_batch_id)`,
		`CREATE INDEX IF NOT EXISTS idx_txns_created_at ON financial_transactions(created_at)`,

		`CREATE TABLE IF NOT EXISTS payout_batches (
			id TEXT PRIMARY KEY,
			payout_date DATETIME NOT NULL,
			status TEXT NOT NULL,
			total_vendors INTEGER NOT NULL DEFAULT 0,
			total_amount_cents INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			completed_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_batches_status ON payout_batches(status)`,

		`CREATE TABLE IF NOT EXISTS vendor_payouts (
			id TEXT PRIMARY KEY,
			batch_id TEXT NOT NULL,
			vendor_id TEXT NOT NULL,
			amount_cents INTEGER NOT NULL,
			transaction_count INTEGER NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (batch_id) REFERENCES payout_batches(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payouts_batch ON vendor_payouts(batch_id)`,
		`CREATE INDEX IF NOT EXISTS idx_payouts_vendor ON vendor_payouts(vendor_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:60], err)
		}
	}

	return nil
}
