package apperrors

import "errors"

// Domain entity errors represent missing or invalid entities in the system.
// These errors indicate that a requested resource does not exist.
var (
	// ErrScheduleNotFound indicates that a schedule with the given ID does not exist.
	ErrScheduleNotFound = errors.New("schedule not found")

	// ErrRuleNotFound indicates that a rule with the given ID does not exist.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrAccountNotFound indicates that an account with the given ID does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrCategoryNotFound indicates that a category with the given ID does not exist.
	ErrCategoryNotFound = errors.New("category not found")

	// ErrPreferenceNotFound indicates that a preference key has never been set.
	ErrPreferenceNotFound = errors.New("preference not found")
)

// Business logic errors represent validation failures or constraint violations.
// These errors indicate that an operation cannot be completed due to business rules.
var (
	// ErrDateConditionRequired indicates a schedule was created or updated
	// without exactly one date condition.
	ErrDateConditionRequired = errors.New("date condition is required")

	// ErrDuplicateScheduleName indicates another active schedule already has the name.
	ErrDuplicateScheduleName = errors.New("there is already a schedule with this name")

	// ErrRuleLinkImmutable indicates an attempt to change a schedule's rule linkage.
	ErrRuleLinkImmutable = errors.New("schedule rule linkage cannot be changed")

	// ErrAmbiguousName indicates a name reference matches more than one entity
	// after normalization, so resolution would have to guess.
	ErrAmbiguousName = errors.New("name is ambiguous")

	// ErrInvalidRate indicates a manual or provider rate that is not positive.
	ErrInvalidRate = errors.New("rate must be positive")

	// ErrInvalidDate indicates a date string that is not a valid YYYY-MM-DD value.
	ErrInvalidDate = errors.New("invalid date")

	// ErrInvalidCurrency indicates a missing or malformed currency code.
	ErrInvalidCurrency = errors.New("currency code is required")
)

// Payload errors represent malformed export/import documents. Only these fail
// a whole import; per-entry failures are collected into the import result.
var (
	// ErrUnknownExportVersion indicates an export payload with a missing or
	// unsupported version number.
	ErrUnknownExportVersion = errors.New("unknown export file version")

	// ErrMalformedExport indicates an export payload that is not an object or
	// has no schedules array.
	ErrMalformedExport = errors.New("malformed export file")
)
