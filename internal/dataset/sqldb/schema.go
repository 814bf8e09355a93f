package sqldb

// schema is shared by SQLite and PostgreSQL. Timestamps are RFC 3339 text
// in UTC with nanoseconds, NULL for an unset time; amounts are decimal
// strings. There are no foreign keys: merges
// keep references intact by running entity types in dependency order, and a
// staging database must accept rows in that order without extra checks.
const schema = `
CREATE TABLE IF NOT EXISTS account_types (
    id TEXT PRIMARY KEY,
    description TEXT NOT NULL,
    created_date_time TEXT,
    modified_date_time TEXT,
    deleted_date_time TEXT,
    hidden_date_time TEXT
);

CREATE TABLE IF NOT EXISTS accounts (
    id TEXT PRIMARY KEY,
    description TEXT NOT NULL,
    notes TEXT NOT NULL,
    type_id TEXT NOT NULL,
    on_budget BOOLEAN NOT NULL,
    created_date_time TEXT,
    modified_date_time TEXT,
    deleted_date_time TEXT,
    hidden_date_time TEXT
);

CREATE TABLE IF NOT EXISTS payees (
    id TEXT PRIMARY KEY,
    description TEXT NOT NULL,
    notes TEXT NOT NULL,
    created_date_time TEXT,
    modified_date_time TEXT,
    deleted_date_time TEXT,
    hidden_date_time TEXT
);

CREATE TABLE IF NOT EXISTS envelope_groups (
    id TEXT PRIMARY KEY,
    description TEXT NOT NULL,
    notes TEXT NOT NULL,
    created_date_time TEXT,
    modified_date_time TEXT,
    deleted_date_time TEXT,
    hidden_date_time TEXT
);

CREATE TABLE IF NOT EXISTS envelopes (
    id TEXT PRIMARY KEY,
    description TEXT NOT NULL,
    notes TEXT NOT NULL,
    group_id TEXT NOT NULL,
    ignore_overspend BOOLEAN NOT NULL,
    created_date_time TEXT,
    modified_date_time TEXT,
    deleted_date_time TEXT,
    hidden_date_time TEXT
);

CREATE TABLE IF NOT EXISTS budget_periods (
    id TEXT PRIMARY KEY,
    start_date TEXT,
    end_date TEXT,
    created_date_time TEXT,
    modified_date_time TEXT,
    deleted_date_time TEXT,
    hidden_date_time TEXT
);

CREATE TABLE IF NOT EXISTS budgets (
    id TEXT PRIMARY KEY,
    envelope_id TEXT NOT NULL,
    budget_period_id TEXT NOT NULL,
    amount TEXT NOT NULL,
    ignore_overspend BOOLEAN NOT NULL,
    created_date_time TEXT,
    modified_date_time TEXT,
    deleted_date_time TEXT,
    hidden_date_time TEXT,
    UNIQUE (envelope_id, budget_period_id)
);

CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    amount TEXT NOT NULL,
    posted BOOLEAN NOT NULL,
    reconciled BOOLEAN NOT NULL,
    service_date TEXT,
    account_id TEXT NOT NULL,
    payee_id TEXT NOT NULL,
    envelope_id TEXT NOT NULL,
    split_id TEXT,
    notes TEXT NOT NULL,
    created_date_time TEXT,
    modified_date_time TEXT,
    deleted_date_time TEXT,
    hidden_date_time TEXT
);

CREATE INDEX IF NOT EXISTS idx_accounts_type_id ON accounts(type_id);
CREATE INDEX IF NOT EXISTS idx_envelopes_group_id ON envelopes(group_id);
CREATE INDEX IF NOT EXISTS idx_transactions_account_id ON transactions(account_id);
CREATE INDEX IF NOT EXISTS idx_transactions_envelope_id ON transactions(envelope_id);
CREATE INDEX IF NOT EXISTS idx_transactions_split_id ON transactions(split_id);
`
