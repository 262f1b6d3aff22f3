// Package request defines the input payloads of the RPC boundary.
package request

import (
	"github.com/avisser/budget-engine/internal/model"
	"github.com/avisser/budget-engine/internal/recurrence"
)

// ScheduleFields are the caller-settable fields of a schedule.
type ScheduleFields struct {
	ID               string `json:"id,omitempty"`
	Name             string `json:"name,omitempty"`
	PostsTransaction bool   `json:"posts_transaction"`
}

// CreateScheduleRequest creates a schedule and its backing rule. Conditions
// must include exactly one date condition.
type CreateScheduleRequest struct {
	Schedule   ScheduleFields    `json:"schedule"`
	Conditions []model.Condition `json:"conditions"`
}

// UpdateScheduleRequest updates a schedule. Conditions, when non-nil, are
// merged into the linked rule's existing conditions. Rule must be empty or
// match the current linkage; changing it is rejected.
type UpdateScheduleRequest struct {
	ID               string            `json:"id"`
	Name             *string           `json:"name,omitempty"`
	PostsTransaction *bool             `json:"posts_transaction,omitempty"`
	Rule             string            `json:"rule,omitempty"`
	Conditions       []model.Condition `json:"conditions,omitempty"`
	ResetNextDate    bool              `json:"resetNextDate,omitempty"`
}

// PostTransactionRequest materializes one transaction from a schedule.
// Today selects today's date instead of the schedule's next occurrence.
type PostTransactionRequest struct {
	ID    string `json:"id"`
	Today bool   `json:"today,omitempty"`
}

// UpcomingDatesRequest previews the next occurrences of a recurrence config.
type UpcomingDatesRequest struct {
	Config recurrence.Config `json:"config"`
	Count  int               `json:"count"`
}
