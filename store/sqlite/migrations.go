package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Invoicing store.
var Migrations = migrate.NewGroup("invoicing")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_invoicing_accounts",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS invoicing_accounts (
    id            TEXT PRIMARY KEY,
    external_key  TEXT NOT NULL DEFAULT '',
    name          TEXT NOT NULL DEFAULT '',
    currency      TEXT NOT NULL DEFAULT '',
    billing_day   INTEGER NOT NULL DEFAULT 1,
    parked        INTEGER NOT NULL DEFAULT 0,
    parked_reason TEXT NOT NULL DEFAULT '',
    parked_at     TIMESTAMP,
    metadata      TEXT NOT NULL DEFAULT '{}',
    created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_invoicing_accounts_key ON invoicing_accounts (external_key) WHERE external_key != '';
CREATE INDEX IF NOT EXISTS idx_invoicing_accounts_parked ON invoicing_accounts (parked);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS invoicing_accounts`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_invoicing_invoices",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS invoicing_invoices (
    id           TEXT PRIMARY KEY,
    account_id   TEXT NOT NULL DEFAULT '',
    invoice_date TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    target_date  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    status       TEXT NOT NULL DEFAULT 'draft',
    currency     TEXT NOT NULL DEFAULT '',
    items        TEXT NOT NULL DEFAULT '[]',
    paid_at      TIMESTAMP,
    payment_ref  TEXT NOT NULL DEFAULT '',
    voided_at    TIMESTAMP,
    void_reason  TEXT NOT NULL DEFAULT '',
    metadata     TEXT NOT NULL DEFAULT '{}',
    created_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_invoicing_invoices_account ON invoicing_invoices (account_id, invoice_date);
CREATE INDEX IF NOT EXISTS idx_invoicing_invoices_status ON invoicing_invoices (account_id, status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS invoicing_invoices`)
				return err
			},
		},
	)
}
