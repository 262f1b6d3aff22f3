package model

// Account is a budget account. Closed accounts are excluded from schedule
// advancement; tombstoned rows are soft-deleted and excluded everywhere.
type Account struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Currency  string `json:"currency"`
	OffBudget bool   `json:"offbudget"`
	Closed    bool   `json:"closed"`
	Tombstone bool   `json:"tombstone"`
}

// Payee is a transaction counterparty. Payees are cheap entities and are
// auto-created during import when a referenced name does not exist.
type Payee struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Tombstone bool   `json:"tombstone"`
}

// CategoryGroup groups categories; the group name disambiguates identically
// named categories during export/import.
type CategoryGroup struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Tombstone bool   `json:"tombstone"`
}

// Category is a budget category inside a group.
type Category struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	GroupID   string `json:"group"`
	GroupName string `json:"groupName,omitempty"`
	Tombstone bool   `json:"tombstone"`
}

// Transaction is a posted ledger row. ScheduleID links transactions
// materialized from a schedule back to it.
type Transaction struct {
	ID         string  `json:"id"`
	AccountID  string  `json:"account"`
	PayeeID    string  `json:"payee,omitempty"`
	Amount     float64 `json:"amount"`
	Date       string  `json:"date"`
	ScheduleID string  `json:"schedule,omitempty"`
	Tombstone  bool    `json:"tombstone"`
}
