package testutil

import (
	"database/sql"
	"testing"

	"github.com/avisser/budget-engine/internal/model"
)

// AccountBuilder provides a fluent interface for creating test accounts.
//
// Example usage:
//
//	// Simple creation with defaults
//	account := testutil.NewAccount().Build(t, db)
//
//	// Customized account
//	account := testutil.NewAccount().
//	    WithName("Savings").
//	    WithCurrency("EUR").
//	    Closed().
//	    Build(t, db)
type AccountBuilder struct {
	ID        string
	Name      string
	Currency  string
	OffBudget bool
	IsClosed  bool
}

// NewAccount creates an AccountBuilder with sensible defaults.
func NewAccount() *AccountBuilder {
	return &AccountBuilder{
		ID:   MakeID(),
		Name: MakeName("Test Account"),
	}
}

// WithID sets a custom ID.
func (b *AccountBuilder) WithID(id string) *AccountBuilder {
	b.ID = id
	return b
}

// WithName sets a custom name.
func (b *AccountBuilder) WithName(name string) *AccountBuilder {
	b.Name = name
	return b
}

// WithCurrency sets the account currency.
func (b *AccountBuilder) WithCurrency(currency string) *AccountBuilder {
	b.Currency = currency
	return b
}

// OffBudgetAccount marks the account as off-budget.
func (b *AccountBuilder) OffBudgetAccount() *AccountBuilder {
	b.OffBudget = true
	return b
}

// Closed marks the account as closed.
func (b *AccountBuilder) Closed() *AccountBuilder {
	b.IsClosed = true
	return b
}

// Build creates the account in the database and returns it.
func (b *AccountBuilder) Build(t *testing.T, db *sql.DB) model.Account {
	t.Helper()

	query := `
		INSERT INTO accounts (id, name, currency, offbudget, closed, tombstone)
		VALUES (?, ?, ?, ?, ?, 0)
	`

	_, err := db.Exec(query, b.ID, b.Name, b.Currency, b.OffBudget, b.IsClosed)
	if err != nil {
		t.Fatalf("Failed to create test account: %v", err)
	}

	return model.Account{
		ID:        b.ID,
		Name:      b.Name,
		Currency:  b.Currency,
		OffBudget: b.OffBudget,
		Closed:    b.IsClosed,
	}
}

// PayeeBuilder provides a fluent interface for creating test payees.
type PayeeBuilder struct {
	ID   string
	Name string
}

// NewPayee creates a PayeeBuilder with sensible defaults.
func NewPayee() *PayeeBuilder {
	return &PayeeBuilder{
		ID:   MakeID(),
		Name: MakeName("Test Payee"),
	}
}

// WithID sets a custom ID.
func (b *PayeeBuilder) WithID(id string) *PayeeBuilder {
	b.ID = id
	return b
}

// WithName sets a custom name.
func (b *PayeeBuilder) WithName(name string) *PayeeBuilder {
	b.Name = name
	return b
}

// Build creates the payee in the database and returns it.
func (b *PayeeBuilder) Build(t *testing.T, db *sql.DB) model.Payee {
	t.Helper()

	query := `INSERT INTO payees (id, name, tombstone) VALUES (?, ?, 0)`

	_, err := db.Exec(query, b.ID, b.Name)
	if err != nil {
		t.Fatalf("Failed to create test payee: %v", err)
	}

	return model.Payee{ID: b.ID, Name: b.Name}
}

// CategoryGroupBuilder provides a fluent interface for creating test
// category groups.
type CategoryGroupBuilder struct {
	ID   string
	Name string
}

// NewCategoryGroup creates a CategoryGroupBuilder with sensible defaults.
func NewCategoryGroup() *CategoryGroupBuilder {
	return &CategoryGroupBuilder{
		ID:   MakeID(),
		Name: MakeName("Test Group"),
	}
}

// WithName sets a custom name.
func (b *CategoryGroupBuilder) WithName(name string) *CategoryGroupBuilder {
	b.Name = name
	return b
}

// Build creates the category group in the database and returns it.
func (b *CategoryGroupBuilder) Build(t *testing.T, db *sql.DB) model.CategoryGroup {
	t.Helper()

	query := `INSERT INTO category_groups (id, name, tombstone) VALUES (?, ?, 0)`

	_, err := db.Exec(query, b.ID, b.Name)
	if err != nil {
		t.Fatalf("Failed to create test category group: %v", err)
	}

	return model.CategoryGroup{ID: b.ID, Name: b.Name}
}

// CategoryBuilder provides a fluent interface for creating test categories.
type CategoryBuilder struct {
	ID      string
	Name    string
	GroupID string
}

// NewCategory creates a CategoryBuilder inside the given group.
func NewCategory(group model.CategoryGroup) *CategoryBuilder {
	return &CategoryBuilder{
		ID:      MakeID(),
		Name:    MakeName("Test Category"),
		GroupID: group.ID,
	}
}

// WithName sets a custom name.
func (b *CategoryBuilder) WithName(name string) *CategoryBuilder {
	b.Name = name
	return b
}

// Build creates the category in the database and returns it.
func (b *CategoryBuilder) Build(t *testing.T, db *sql.DB) model.Category {
	t.Helper()

	query := `INSERT INTO categories (id, name, group_id, tombstone) VALUES (?, ?, ?, 0)`

	_, err := db.Exec(query, b.ID, b.Name, b.GroupID)
	if err != nil {
		t.Fatalf("Failed to create test category: %v", err)
	}

	return model.Category{ID: b.ID, Name: b.Name, GroupID: b.GroupID}
}

// TransactionBuilder provides a fluent interface for creating test
// transactions.
type TransactionBuilder struct {
	ID         string
	AccountID  string
	PayeeID    string
	Amount     float64
	Date       string
	ScheduleID string
}

// NewTransaction creates a TransactionBuilder for the given account.
func NewTransaction(accountID string) *TransactionBuilder {
	return &TransactionBuilder{
		ID:        MakeID(),
		AccountID: accountID,
		Amount:    -50,
		Date:      "2024-01-15",
	}
}

// WithPayee sets the payee.
func (b *TransactionBuilder) WithPayee(payeeID string) *TransactionBuilder {
	b.PayeeID = payeeID
	return b
}

// WithAmount sets the amount.
func (b *TransactionBuilder) WithAmount(amount float64) *TransactionBuilder {
	b.Amount = amount
	return b
}

// WithDate sets the transaction date (YYYY-MM-DD).
func (b *TransactionBuilder) WithDate(date string) *TransactionBuilder {
	b.Date = date
	return b
}

// WithSchedule links the transaction to a schedule.
func (b *TransactionBuilder) WithSchedule(scheduleID string) *TransactionBuilder {
	b.ScheduleID = scheduleID
	return b
}

// Build creates the transaction in the database and returns it.
func (b *TransactionBuilder) Build(t *testing.T, db *sql.DB) model.Transaction {
	t.Helper()

	query := `
		INSERT INTO transactions (id, account_id, payee_id, amount, date, schedule_id, tombstone)
		VALUES (?, ?, NULLIF(?, ''), ?, ?, NULLIF(?, ''), 0)
	`

	_, err := db.Exec(query, b.ID, b.AccountID, b.PayeeID, b.Amount, b.Date, b.ScheduleID)
	if err != nil {
		t.Fatalf("Failed to create test transaction: %v", err)
	}

	return model.Transaction{
		ID:         b.ID,
		AccountID:  b.AccountID,
		PayeeID:    b.PayeeID,
		Amount:     b.Amount,
		Date:       b.Date,
		ScheduleID: b.ScheduleID,
	}
}
