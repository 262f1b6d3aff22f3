package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/avisser/budget-engine/internal/api/request"
	"github.com/avisser/budget-engine/internal/apperrors"
	"github.com/avisser/budget-engine/internal/model"
	"github.com/avisser/budget-engine/internal/testutil"
)

// TestScheduleService_ExportImportRoundTrip tests name-based portability.
//
// WHY: Export files move schedules between budgets whose entity ids differ.
// The round trip must resolve names back to the right ids and recreate
// missing payees rather than failing.
func TestScheduleService_ExportImportRoundTrip(t *testing.T) {
	t.Run("reimports a schedule by names after deletion", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestScheduleService(t, db)
		ctx := context.Background()

		account := testutil.NewAccount().WithName("Checking").Build(t, db)
		payee := testutil.NewPayee().WithName("Landlord").Build(t, db)
		group := testutil.NewCategoryGroup().WithName("Housing").Build(t, db)
		category := testutil.NewCategory(group).WithName("Rent").Build(t, db)

		created, err := svc.CreateSchedule(ctx, request.CreateScheduleRequest{
			Schedule: request.ScheduleFields{Name: "Rent", PostsTransaction: true},
			Conditions: []model.Condition{
				{Op: "is", Field: "account", Value: account.ID},
				{Op: "is", Field: "payee", Value: payee.ID},
				{Op: "is", Field: "category", Value: category.ID},
				{Op: "isapprox", Field: "amount", Value: float64(-1200)},
				{Op: "isapprox", Field: "date", Value: dateOffsetUTC(3)},
			},
		})
		if err != nil {
			t.Fatalf("CreateSchedule() failed: %v", err)
		}

		payload, err := svc.ExportSchedules(ctx)
		if err != nil {
			t.Fatalf("ExportSchedules() failed: %v", err)
		}

		// Empty the schedule set and remove the payee entirely
		if err := svc.DeleteSchedule(ctx, created.ID); err != nil {
			t.Fatalf("DeleteSchedule() failed: %v", err)
		}
		if _, err := db.Exec(`DELETE FROM payees WHERE id = ?`, payee.ID); err != nil {
			t.Fatalf("Failed to delete payee: %v", err)
		}

		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("Failed to marshal payload: %v", err)
		}

		// Execute
		result, err := svc.ImportSchedules(ctx, data)

		// Assert
		if err != nil {
			t.Fatalf("ImportSchedules() returned unexpected error: %v", err)
		}
		if result.Imported != 1 || result.Skipped != 0 {
			t.Fatalf("Expected 1 imported, got %+v", result)
		}

		schedules, err := svc.ListSchedules(ctx)
		if err != nil {
			t.Fatalf("ListSchedules() failed: %v", err)
		}
		if len(schedules) != 1 {
			t.Fatalf("Expected 1 schedule after import, got %d", len(schedules))
		}
		imported := schedules[0]
		if imported.Account != account.ID {
			t.Errorf("Expected account resolved to %s, got %s", account.ID, imported.Account)
		}
		if imported.Payee == "" || imported.Payee == payee.ID {
			t.Errorf("Expected payee recreated under a new id, got %q", imported.Payee)
		}
		var payeeName string
		if err := db.QueryRow(`SELECT name FROM payees WHERE id = ?`, imported.Payee).Scan(&payeeName); err != nil {
			t.Fatalf("Failed to read recreated payee: %v", err)
		}
		if payeeName != "Landlord" {
			t.Errorf("Expected recreated payee 'Landlord', got %q", payeeName)
		}
	})

	t.Run("export strips the link-schedule action", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestScheduleService(t, db)
		ctx := context.Background()

		_, err := svc.CreateSchedule(ctx, request.CreateScheduleRequest{
			Schedule:   request.ScheduleFields{Name: "Internet"},
			Conditions: []model.Condition{{Op: "isapprox", Field: "date", Value: dateOffsetUTC(1)}},
		})
		if err != nil {
			t.Fatalf("CreateSchedule() failed: %v", err)
		}

		// Execute
		payload, err := svc.ExportSchedules(ctx)

		// Assert
		if err != nil {
			t.Fatalf("ExportSchedules() returned unexpected error: %v", err)
		}
		if len(payload.Schedules) != 1 {
			t.Fatalf("Expected 1 exported schedule, got %d", len(payload.Schedules))
		}
		for _, a := range payload.Schedules[0].Rule.Actions {
			if a.Op == model.OpLinkSchedule {
				t.Error("Expected link-schedule action to be stripped from export")
			}
		}
	})
}

// TestScheduleService_ImportCategoryResolution tests group-scoped category
// name resolution.
//
// WHY: Categories are only unique per group; an import reference tagged with
// a group must pick that group's category, and a bare ambiguous name must
// fail rather than guess.
func TestScheduleService_ImportCategoryResolution(t *testing.T) {
	t.Run("group tag disambiguates identically named categories", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestScheduleService(t, db)
		ctx := context.Background()

		housing := testutil.NewCategoryGroup().WithName("Housing").Build(t, db)
		bills := testutil.NewCategoryGroup().WithName("Bills").Build(t, db)
		testutil.NewCategory(housing).WithName("Rent").Build(t, db)
		billsRent := testutil.NewCategory(bills).WithName("Rent").Build(t, db)

		payload := `{
			"version": 1,
			"schedules": [{
				"name": "Rent",
				"rule": {
					"conditionsOp": "and",
					"conditions": [
						{"op": "is", "field": "category", "value": {"name": "Rent", "group": "Bills"}},
						{"op": "isapprox", "field": "date", "value": "2030-01-15"}
					],
					"actions": []
				}
			}]
		}`

		// Execute
		result, err := svc.ImportSchedules(ctx, []byte(payload))

		// Assert
		if err != nil {
			t.Fatalf("ImportSchedules() returned unexpected error: %v", err)
		}
		if result.Imported != 1 {
			t.Fatalf("Expected 1 imported, got %+v", result)
		}
		var conditions string
		if err := db.QueryRow(`SELECT conditions FROM rules WHERE tombstone = 0`).Scan(&conditions); err != nil {
			t.Fatalf("Failed to read imported rule: %v", err)
		}
		var decoded []model.Condition
		if err := json.Unmarshal([]byte(conditions), &decoded); err != nil {
			t.Fatalf("Failed to decode conditions: %v", err)
		}
		var categoryID string
		for _, c := range decoded {
			if c.Field == "category" {
				categoryID, _ = c.Value.(string)
			}
		}
		if categoryID != billsRent.ID {
			t.Errorf("Expected Bills group category %s, got %s", billsRent.ID, categoryID)
		}
	})

	t.Run("bare ambiguous name fails the entry", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestScheduleService(t, db)
		ctx := context.Background()

		housing := testutil.NewCategoryGroup().WithName("Housing").Build(t, db)
		bills := testutil.NewCategoryGroup().WithName("Bills").Build(t, db)
		testutil.NewCategory(housing).WithName("Rent").Build(t, db)
		testutil.NewCategory(bills).WithName("Rent").Build(t, db)

		payload := `{
			"version": 1,
			"schedules": [{
				"name": "Rent",
				"rule": {
					"conditions": [
						{"op": "is", "field": "category", "value": "Rent"},
						{"op": "isapprox", "field": "date", "value": "2030-01-15"}
					],
					"actions": []
				}
			}]
		}`

		// Execute
		result, err := svc.ImportSchedules(ctx, []byte(payload))

		// Assert
		if err != nil {
			t.Fatalf("ImportSchedules() returned unexpected error: %v", err)
		}
		if result.Skipped != 1 || len(result.Errors) != 1 {
			t.Fatalf("Expected the entry to be skipped, got %+v", result)
		}
		if result.Errors[0].ScheduleName != "Rent" {
			t.Errorf("Expected error tagged with schedule name, got %+v", result.Errors[0])
		}
	})
}

// TestScheduleService_ImportFailureCleanup tests per-entry atomicity.
//
// WHY: A failing entry must vanish completely while the rest of the batch
// proceeds; a half-created schedule would match transactions with a rule
// that never got written.
func TestScheduleService_ImportFailureCleanup(t *testing.T) {
	t.Run("failed entry leaves no rows, later entries still import", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestScheduleService(t, db)
		ctx := context.Background()
		testutil.NewAccount().WithName("Checking").Build(t, db)

		payload := `{
			"version": 1,
			"schedules": [
				{
					"name": "Broken",
					"rule": {
						"conditions": [
							{"op": "is", "field": "account", "value": "No Such Account"},
							{"op": "isapprox", "field": "date", "value": "2030-01-15"}
						],
						"actions": []
					}
				},
				{
					"name": "Fine",
					"rule": {
						"conditions": [
							{"op": "is", "field": "account", "value": "Checking"},
							{"op": "isapprox", "field": "date", "value": "2030-02-15"}
						],
						"actions": []
					}
				}
			]
		}`

		// Execute
		result, err := svc.ImportSchedules(ctx, []byte(payload))

		// Assert
		if err != nil {
			t.Fatalf("ImportSchedules() returned unexpected error: %v", err)
		}
		if result.Imported != 1 || result.Skipped != 1 {
			t.Fatalf("Expected 1 imported / 1 skipped, got %+v", result)
		}
		testutil.AssertRowCount(t, db, "schedules", 1)
		testutil.AssertRowCount(t, db, "rules", 1)
		var name string
		if err := db.QueryRow(`SELECT name FROM schedules`).Scan(&name); err != nil {
			t.Fatalf("Failed to read schedule: %v", err)
		}
		if name != "Fine" {
			t.Errorf("Expected surviving schedule 'Fine', got %q", name)
		}
	})

	t.Run("cleans up the rule when next-date storage fails", func(t *testing.T) {
		// Setup: the rule is inserted before the next-date row, so a storage
		// failure there must unwind the rule too.
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestScheduleService(t, db)
		ctx := context.Background()
		if _, err := db.Exec(`DROP TABLE schedules_next_date`); err != nil {
			t.Fatalf("Failed to drop next-date table: %v", err)
		}

		payload := `{
			"version": 1,
			"schedules": [{
				"name": "Internet",
				"rule": {
					"conditions": [
						{"op": "isapprox", "field": "date", "value": "2030-03-01"}
					],
					"actions": []
				}
			}]
		}`

		// Execute
		result, err := svc.ImportSchedules(ctx, []byte(payload))

		// Assert
		if err != nil {
			t.Fatalf("ImportSchedules() returned unexpected error: %v", err)
		}
		if result.Skipped != 1 {
			t.Fatalf("Expected the entry to be skipped, got %+v", result)
		}
		testutil.AssertRowCount(t, db, "schedules", 0)
		testutil.AssertRowCount(t, db, "rules", 0)
	})
}

// TestScheduleService_ImportPayeeResolution tests payee name resolution.
//
// WHY: Payee matching is case-insensitive, so two payees that differ only in
// casing or whitespace are indistinguishable by name; guessing one would
// silently rewire the imported schedule.
func TestScheduleService_ImportPayeeResolution(t *testing.T) {
	t.Run("colliding payee names fail the entry instead of guessing", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestScheduleService(t, db)
		ctx := context.Background()
		testutil.NewPayee().WithName("Netflix").Build(t, db)
		testutil.NewPayee().WithName("NETFLIX").Build(t, db)

		payload := `{
			"version": 1,
			"schedules": [{
				"name": "Streaming",
				"rule": {
					"conditions": [
						{"op": "is", "field": "payee", "value": "Netflix"},
						{"op": "isapprox", "field": "date", "value": "2030-01-15"}
					],
					"actions": []
				}
			}]
		}`

		// Execute
		result, err := svc.ImportSchedules(ctx, []byte(payload))

		// Assert
		if err != nil {
			t.Fatalf("ImportSchedules() returned unexpected error: %v", err)
		}
		if result.Skipped != 1 || len(result.Errors) != 1 {
			t.Fatalf("Expected the entry to be skipped, got %+v", result)
		}
		if result.Errors[0].ScheduleName != "Streaming" {
			t.Errorf("Expected error tagged with schedule name, got %+v", result.Errors[0])
		}
		testutil.AssertRowCount(t, db, "schedules", 0)
		testutil.AssertRowCount(t, db, "payees", 2)
	})
}

// TestScheduleService_ImportPayloadValidation tests payload-level failures.
//
// WHY: Unlike per-entry failures, a wrong version or a structurally broken
// document must fail the whole call.
func TestScheduleService_ImportPayloadValidation(t *testing.T) {
	t.Run("rejects an unknown version", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestScheduleService(t, db)

		// Execute
		_, err := svc.ImportSchedules(context.Background(), []byte(`{"version": 7, "schedules": []}`))

		// Assert
		if !errors.Is(err, apperrors.ErrUnknownExportVersion) {
			t.Errorf("Expected ErrUnknownExportVersion, got %v", err)
		}
	})

	t.Run("rejects a missing schedules array", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestScheduleService(t, db)

		// Execute
		_, err := svc.ImportSchedules(context.Background(), []byte(`{"version": 1}`))

		// Assert
		if !errors.Is(err, apperrors.ErrMalformedExport) {
			t.Errorf("Expected ErrMalformedExport, got %v", err)
		}
	})

	t.Run("rejects a document that is not an object", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestScheduleService(t, db)

		// Execute
		_, err := svc.ImportSchedules(context.Background(), []byte(`[1, 2, 3]`))

		// Assert
		if !errors.Is(err, apperrors.ErrMalformedExport) {
			t.Errorf("Expected ErrMalformedExport, got %v", err)
		}
	})

	t.Run("accepts JSON5 comments and trailing commas", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestScheduleService(t, db)

		payload := `{
			// exported from another budget
			version: 1,
			schedules: [
				{
					name: "Internet",
					rule: {
						conditions: [
							{op: "isapprox", field: "date", value: "2030-03-01"},
						],
						actions: [],
					},
				},
			],
		}`

		// Execute
		result, err := svc.ImportSchedules(context.Background(), []byte(payload))

		// Assert
		if err != nil {
			t.Fatalf("ImportSchedules() returned unexpected error: %v", err)
		}
		if result.Imported != 1 {
			t.Errorf("Expected 1 imported, got %+v", result)
		}
	})
}
