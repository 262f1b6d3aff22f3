package testutil

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite" // Test Package
)

// SetupTestDB creates an in-memory SQLite database for testing.
// The database is automatically cleaned up when the test completes.
//
// Example usage:
//
//	func TestSomething(t *testing.T) {
//	    db := testutil.SetupTestDB(t)
//	    // db is ready to use with schema created
//	}
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// In-memory database (destroyed when connection closes)
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		t.Fatalf("Failed to ping test database: %v", err)
	}

	// Configure SQLite for testing
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA timezone = 'UTC'",
		"PRAGMA journal_mode = MEMORY", // Faster for tests
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			t.Fatalf("Failed to set pragma: %v", err)
		}
	}

	// Create schema
	if err := createTestSchema(db); err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	// Cleanup when test ends
	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// createTestSchema creates all database tables for testing.
// Schema is synchronized with the goose migrations.
func createTestSchema(db *sql.DB) error {
	schema := `
		-- Account table
		CREATE TABLE accounts (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			currency VARCHAR(3),
			offbudget BOOLEAN DEFAULT FALSE NOT NULL,
			closed BOOLEAN DEFAULT FALSE NOT NULL,
			tombstone BOOLEAN DEFAULT FALSE NOT NULL
		);

		-- Payee table
		CREATE TABLE payees (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			tombstone BOOLEAN DEFAULT FALSE NOT NULL
		);

		-- Category group table
		CREATE TABLE category_groups (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			tombstone BOOLEAN DEFAULT FALSE NOT NULL
		);

		-- Category table
		CREATE TABLE categories (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			group_id VARCHAR(36) NOT NULL,
			tombstone BOOLEAN DEFAULT FALSE NOT NULL,
			FOREIGN KEY(group_id) REFERENCES category_groups(id)
		);

		-- Rule table; conditions and actions are JSON documents
		CREATE TABLE rules (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			stage VARCHAR(10),
			conditions_op VARCHAR(3) DEFAULT 'and' NOT NULL,
			conditions TEXT NOT NULL,
			actions TEXT NOT NULL,
			tombstone BOOLEAN DEFAULT FALSE NOT NULL
		);

		-- Schedule table
		CREATE TABLE schedules (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			rule_id VARCHAR(36) NOT NULL,
			name VARCHAR(100),
			posts_transaction BOOLEAN DEFAULT FALSE NOT NULL,
			completed BOOLEAN DEFAULT FALSE NOT NULL,
			tombstone BOOLEAN DEFAULT FALSE NOT NULL
		);

		-- Materialized next occurrence per schedule
		CREATE TABLE schedules_next_date (
			schedule_id VARCHAR(36) NOT NULL PRIMARY KEY,
			local_next_date VARCHAR(10) NOT NULL,
			local_next_date_ts DATETIME NOT NULL,
			base_next_date VARCHAR(10) NOT NULL,
			base_next_date_ts DATETIME NOT NULL,
			FOREIGN KEY(schedule_id) REFERENCES schedules(id) ON DELETE CASCADE
		);

		-- Transaction table
		CREATE TABLE transactions (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			account_id VARCHAR(36) NOT NULL,
			payee_id VARCHAR(36),
			amount FLOAT NOT NULL,
			date DATE NOT NULL,
			schedule_id VARCHAR(36),
			tombstone BOOLEAN DEFAULT FALSE NOT NULL,
			FOREIGN KEY(account_id) REFERENCES accounts(id)
		);

		-- Exchange rate cache table
		CREATE TABLE exchange_rates (
			id TEXT NOT NULL PRIMARY KEY,
			from_currency TEXT NOT NULL,
			to_currency TEXT NOT NULL,
			rate REAL NOT NULL,
			date TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			source TEXT NOT NULL,
			CONSTRAINT unique_exchange_rate UNIQUE (from_currency, to_currency, date)
		);

		-- Preference table (key/value)
		CREATE TABLE preferences (
			key VARCHAR(64) NOT NULL PRIMARY KEY,
			value TEXT NOT NULL
		);

		CREATE INDEX ix_exchange_rates_pair_date ON exchange_rates(from_currency, to_currency, date);
		CREATE INDEX ix_exchange_rates_timestamp ON exchange_rates(timestamp);
		CREATE INDEX ix_transactions_schedule_id ON transactions(schedule_id);
		CREATE INDEX ix_transactions_account_date ON transactions(account_id, date);
		CREATE INDEX ix_schedules_rule_id ON schedules(rule_id);
		CREATE INDEX ix_categories_group_id ON categories(group_id);
	`

	_, err := db.Exec(schema)
	return err
}

// CountRows returns the number of rows in a table.
// Useful for assertions in tests.
//
// Example usage:
//
//	count := testutil.CountRows(t, db, "schedules")
func CountRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()

	var count int
	query := "SELECT COUNT(*) FROM " + table
	err := db.QueryRow(query).Scan(&count)
	if err != nil {
		t.Fatalf("Failed to count rows in %s: %v", table, err)
	}

	return count
}

// AssertRowCount asserts that a table has the expected number of rows.
//
// Example usage:
//
//	testutil.AssertRowCount(t, db, "schedules", 2)
func AssertRowCount(t *testing.T, db *sql.DB, table string, expected int) {
	t.Helper()

	actual := CountRows(t, db, table)
	if actual != expected {
		t.Errorf("Expected %d rows in %s, got %d", expected, table, actual)
	}
}
