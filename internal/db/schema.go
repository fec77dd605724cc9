package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema. Money columns hold decimal strings.
const schema = `
CREATE TABLE IF NOT EXISTS portfolios (
    id         INTEGER PRIMARY KEY,
    name       TEXT NOT NULL,
    logo       BLOB,
    logo_mime  TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME
);

CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    username      TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'standard_user'
                  CHECK (role IN ('administrator', 'standard_admin', 'standard_user')),
    portfolio_id  INTEGER REFERENCES portfolios(id),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at    DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username_active
    ON users(username) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS owners (
    id           INTEGER PRIMARY KEY,
    portfolio_id INTEGER NOT NULL REFERENCES portfolios(id),
    name         TEXT NOT NULL,
    email        TEXT,
    phone        TEXT,
    created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at   DATETIME
);

CREATE TABLE IF NOT EXISTS listings (
    id           INTEGER PRIMARY KEY,
    portfolio_id INTEGER NOT NULL REFERENCES portfolios(id),
    owner_id     INTEGER NOT NULL REFERENCES owners(id),
    name         TEXT NOT NULL,
    address      TEXT,
    created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at   DATETIME
);

CREATE TABLE IF NOT EXISTS inventory_items (
    id             INTEGER PRIMARY KEY,
    portfolio_id   INTEGER NOT NULL REFERENCES portfolios(id),
    name           TEXT NOT NULL,
    category       TEXT,
    cost_price     TEXT NOT NULL DEFAULT '0',
    default_markup TEXT NOT NULL DEFAULT '0',
    quantity       INTEGER NOT NULL DEFAULT 0,
    min_quantity   INTEGER,
    created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at     DATETIME
);

CREATE TABLE IF NOT EXISTS inventory_refills (
    id           INTEGER PRIMARY KEY,
    inventory_id INTEGER NOT NULL REFERENCES inventory_items(id),
    quantity     INTEGER NOT NULL CHECK (quantity > 0),
    cost         TEXT,
    notes        TEXT,
    refilled_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    refilled_by  INTEGER REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS expenses (
    id             INTEGER PRIMARY KEY,
    portfolio_id   INTEGER NOT NULL REFERENCES portfolios(id),
    listing_id     INTEGER NOT NULL REFERENCES listings(id),
    owner_id       INTEGER NOT NULL REFERENCES owners(id),
    inventory_id   INTEGER REFERENCES inventory_items(id),
    quantity_used  INTEGER,
    total_cost     TEXT NOT NULL DEFAULT '0',
    markup_percent TEXT NOT NULL DEFAULT '0',
    billed_amount  TEXT NOT NULL DEFAULT '0',
    notes          TEXT,
    date           DATETIME NOT NULL,
    created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_expenses_owner_date ON expenses(owner_id, date);

CREATE TABLE IF NOT EXISTS report_batches (
    id           TEXT PRIMARY KEY,
    portfolio_id INTEGER NOT NULL REFERENCES portfolios(id),
    name         TEXT NOT NULL,
    month        INTEGER NOT NULL CHECK (month BETWEEN 1 AND 12),
    year         INTEGER NOT NULL,
    notes        TEXT NOT NULL DEFAULT '',
    created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS reports (
    id           INTEGER PRIMARY KEY,
    batch_id     TEXT NOT NULL REFERENCES report_batches(id) ON DELETE CASCADE,
    portfolio_id INTEGER NOT NULL REFERENCES portfolios(id),
    owner_id     INTEGER NOT NULL REFERENCES owners(id),
    month        INTEGER NOT NULL CHECK (month BETWEEN 1 AND 12),
    year         INTEGER NOT NULL,
    name         TEXT NOT NULL,
    file_path    TEXT,
    sent         INTEGER NOT NULL DEFAULT 0,
    sent_at      DATETIME,
    notes        TEXT NOT NULL DEFAULT '',
    generated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_reports_owner_period
    ON reports(portfolio_id, owner_id, month, year);

CREATE TABLE IF NOT EXISTS activity_log (
    id           INTEGER PRIMARY KEY,
    user_id      INTEGER REFERENCES users(id),
    portfolio_id INTEGER REFERENCES portfolios(id),
    action       TEXT NOT NULL,
    details      TEXT NOT NULL DEFAULT '',
    created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_activity_log_created ON activity_log(created_at);
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
