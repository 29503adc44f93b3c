package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the revenue store (Postgres).
var Migrations = migrate.NewGroup("revenue")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_rev_sequences",
			Version: "20250601000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS rev_sequences (
    doc_type   TEXT NOT NULL,
    day        TEXT NOT NULL,
    value      BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (doc_type, day)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS rev_sequences`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_rev_bills",
			Version: "20250601000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS rev_bills (
    id                  TEXT PRIMARY KEY,
    number              TEXT NOT NULL,
    kind                TEXT NOT NULL,
    department          TEXT NOT NULL DEFAULT '',
    patient_id          TEXT NOT NULL,
    encounter_id        TEXT NOT NULL,
    currency            TEXT NOT NULL,
    subtotal            BIGINT NOT NULL DEFAULT 0,
    total_discount      BIGINT NOT NULL DEFAULT 0,
    total_tax           BIGINT NOT NULL DEFAULT 0,
    grand_total         BIGINT NOT NULL DEFAULT 0,
    paid_amount         BIGINT NOT NULL DEFAULT 0,
    balance_amount      BIGINT NOT NULL DEFAULT 0,
    payment_status      TEXT NOT NULL DEFAULT 'pending',
    status              TEXT NOT NULL DEFAULT 'draft',
    is_locked           BOOLEAN NOT NULL DEFAULT FALSE,
    locked_at           TIMESTAMPTZ,
    finalized_at        TIMESTAMPTZ,
    cancelled_at        TIMESTAMPTZ,
    cancel_reason       TEXT NOT NULL DEFAULT '',
    master_id           TEXT NOT NULL DEFAULT '',
    items               JSONB NOT NULL DEFAULT '[]',
    payments            JSONB NOT NULL DEFAULT '[]',
    linked_bills        JSONB NOT NULL DEFAULT '[]',
    department_payments JSONB NOT NULL DEFAULT '{}',
    rollup              JSONB NOT NULL DEFAULT '{}',
    audit               JSONB NOT NULL DEFAULT '[]',
    version             BIGINT NOT NULL DEFAULT 1,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_rev_bills_number ON rev_bills (number);
CREATE UNIQUE INDEX IF NOT EXISTS idx_rev_bills_master ON rev_bills (encounter_id)
    WHERE kind = 'master';
CREATE UNIQUE INDEX IF NOT EXISTS idx_rev_bills_open_department ON rev_bills (encounter_id, department)
    WHERE kind = 'department' AND status = 'draft' AND NOT is_locked;
CREATE INDEX IF NOT EXISTS idx_rev_bills_patient ON rev_bills (patient_id, created_at);
CREATE INDEX IF NOT EXISTS idx_rev_bills_encounter ON rev_bills (encounter_id, created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS rev_bills`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_rev_anomalies",
			Version: "20250601000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS rev_anomalies (
    id                TEXT PRIMARY KEY,
    number            TEXT NOT NULL,
    status            TEXT NOT NULL DEFAULT 'new',
    category          TEXT NOT NULL,
    severity          TEXT NOT NULL,
    priority          INTEGER NOT NULL DEFAULT 1,
    source            TEXT NOT NULL DEFAULT '',
    patient_id        TEXT NOT NULL,
    encounter_id      TEXT NOT NULL,
    affected_ref      TEXT NOT NULL DEFAULT '',
    impact_amount     BIGINT NOT NULL DEFAULT 0,
    impact_currency   TEXT NOT NULL DEFAULT '',
    score             DOUBLE PRECISION NOT NULL DEFAULT 0,
    description       TEXT NOT NULL DEFAULT '',
    evidence          JSONB NOT NULL DEFAULT '{}',
    assigned_to       TEXT NOT NULL DEFAULT '',
    resolution        JSONB NOT NULL DEFAULT '{}',
    dismissal         JSONB NOT NULL DEFAULT '{}',
    escalation_reason TEXT NOT NULL DEFAULT '',
    closed_at         TIMESTAMPTZ,
    open_key          TEXT NOT NULL DEFAULT '',
    due_by            TIMESTAMPTZ NOT NULL,
    is_overdue        BOOLEAN NOT NULL DEFAULT FALSE,
    history           JSONB NOT NULL DEFAULT '[]',
    audit             JSONB NOT NULL DEFAULT '[]',
    version           BIGINT NOT NULL DEFAULT 1,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_rev_anomalies_number ON rev_anomalies (number);
CREATE UNIQUE INDEX IF NOT EXISTS idx_rev_anomalies_open_key ON rev_anomalies (open_key)
    WHERE open_key <> '';
CREATE INDEX IF NOT EXISTS idx_rev_anomalies_status ON rev_anomalies (status, priority DESC);
CREATE INDEX IF NOT EXISTS idx_rev_anomalies_due ON rev_anomalies (due_by)
    WHERE NOT is_overdue;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS rev_anomalies`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_rev_codings",
			Version: "20250601000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS rev_codings (
    id              TEXT PRIMARY KEY,
    number          TEXT NOT NULL,
    status          TEXT NOT NULL DEFAULT 'pending',
    patient_id      TEXT NOT NULL,
    encounter_id    TEXT NOT NULL,
    master_bill_id  TEXT NOT NULL DEFAULT '',
    procedure_codes JSONB NOT NULL DEFAULT '[]',
    diagnosis_codes JSONB NOT NULL DEFAULT '[]',
    coder           TEXT NOT NULL DEFAULT '',
    reviewer        TEXT NOT NULL DEFAULT '',
    return_reason   TEXT NOT NULL DEFAULT '',
    submitted_at    TIMESTAMPTZ,
    approved_at     TIMESTAMPTZ,
    sync_status     TEXT NOT NULL DEFAULT 'pending',
    billing_sync    JSONB NOT NULL DEFAULT '{}',
    due_by          TIMESTAMPTZ NOT NULL,
    is_overdue      BOOLEAN NOT NULL DEFAULT FALSE,
    history         JSONB NOT NULL DEFAULT '[]',
    audit           JSONB NOT NULL DEFAULT '[]',
    version         BIGINT NOT NULL DEFAULT 1,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_rev_codings_number ON rev_codings (number);
CREATE INDEX IF NOT EXISTS idx_rev_codings_encounter ON rev_codings (encounter_id);
CREATE INDEX IF NOT EXISTS idx_rev_codings_status ON rev_codings (status, sync_status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS rev_codings`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_rev_tariffs",
			Version: "20250601000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS rev_tariffs (
    id          TEXT PRIMARY KEY,
    code        TEXT NOT NULL,
    name        TEXT NOT NULL DEFAULT '',
    item_type   TEXT NOT NULL DEFAULT '',
    department  TEXT NOT NULL DEFAULT '',
    rate_amount BIGINT NOT NULL DEFAULT 0,
    currency    TEXT NOT NULL DEFAULT '',
    tax_percent TEXT NOT NULL DEFAULT '',
    status      TEXT NOT NULL DEFAULT 'active',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_rev_tariffs_code ON rev_tariffs (code);
CREATE INDEX IF NOT EXISTS idx_rev_tariffs_department ON rev_tariffs (department, status);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS rev_tariffs`)
				return err
			},
		},
	)
}
