package model

import "time"

// ScheduleStatus is the derived state of a schedule. It is computed from
// next_date, completion and transaction existence, never stored.
type ScheduleStatus string

const (
	StatusDue       ScheduleStatus = "due"
	StatusUpcoming  ScheduleStatus = "upcoming"
	StatusMissed    ScheduleStatus = "missed"
	StatusPaid      ScheduleStatus = "paid"
	StatusCompleted ScheduleStatus = "completed"
)

// Schedule is a rule-backed expected transaction. The Payee, Account, Amount
// and NextDate fields are projections derived from the linked rule's
// conditions and the next-date tracking row, populated on read.
type Schedule struct {
	ID               string `json:"id"`
	RuleID           string `json:"rule"`
	Name             string `json:"name,omitempty"`
	PostsTransaction bool   `json:"posts_transaction"`
	Completed        bool   `json:"completed"`
	Tombstone        bool   `json:"tombstone"`

	// Derived projections, not columns of the schedules table.
	NextDate string         `json:"next_date,omitempty"`
	Payee    string         `json:"_payee,omitempty"`
	Account  string         `json:"_account,omitempty"`
	Amount   float64        `json:"_amount,omitempty"`
	Date     any            `json:"_date,omitempty"`
	Status   ScheduleStatus `json:"status,omitempty"`
}

// NextDateRecord tracks a schedule's materialized next occurrence. Base and
// local variants carry their own timestamps so merge/undo layers can pick the
// newer value.
type NextDateRecord struct {
	ScheduleID      string
	LocalNextDate   string
	LocalNextDateTS time.Time
	BaseNextDate    string
	BaseNextDateTS  time.Time
}

// DiscoveredSchedule is a candidate produced by schedule discovery. It is
// never persisted; callers create a real schedule from it explicitly.
type DiscoveredSchedule struct {
	PayeeID    string      `json:"payee"`
	AccountID  string      `json:"account"`
	Amount     float64     `json:"amount"`
	Date       any         `json:"date"`
	Conditions []Condition `json:"_conditions"`
}
