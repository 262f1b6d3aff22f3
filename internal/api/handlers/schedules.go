package handlers

import (
	"io"
	"net/http"

	"github.com/avisser/budget-engine/internal/api/request"
	"github.com/avisser/budget-engine/internal/service"
)

// ScheduleHandler handles HTTP requests for schedule endpoints.
// It serves as the HTTP layer adapter, parsing requests and delegating
// business logic to the scheduleService.
type ScheduleHandler struct {
	scheduleService *service.ScheduleService
}

// NewScheduleHandler creates a new ScheduleHandler with the provided service dependency.
func NewScheduleHandler(scheduleService *service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{
		scheduleService: scheduleService,
	}
}

// List handles GET requests to retrieve all schedules with derived status.
//
// Endpoint: GET /api/schedule
// Response: 200 OK with array of schedules
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.scheduleService.ListSchedules(r.Context())
	if err != nil {
		respondServiceError(w, err, "Failed to retrieve schedules")
		return
	}
	respondJSON(w, http.StatusOK, schedules)
}

// Create handles POST requests to create a schedule and its backing rule.
//
// Endpoint: POST /api/schedule/create
// Response: 200 OK with the created schedule
// Error: 400 Bad Request when the date condition is missing or the name is taken
func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateScheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	schedule, err := h.scheduleService.CreateSchedule(r.Context(), req)
	if err != nil {
		respondServiceError(w, err, "Failed to create schedule")
		return
	}
	respondJSON(w, http.StatusOK, schedule)
}

// Update handles POST requests to update a schedule and merge rule conditions.
//
// Endpoint: POST /api/schedule/update
// Response: 200 OK with the updated schedule
// Error: 400 Bad Request when the rule linkage is being changed
func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req request.UpdateScheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	schedule, err := h.scheduleService.UpdateSchedule(r.Context(), req)
	if err != nil {
		respondServiceError(w, err, "Failed to update schedule")
		return
	}
	respondJSON(w, http.StatusOK, schedule)
}

// Delete handles POST requests to delete a schedule and its rule.
//
// Endpoint: POST /api/schedule/delete
// Response: 200 OK
func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.scheduleService.DeleteSchedule(r.Context(), req.ID); err != nil {
		respondServiceError(w, err, "Failed to delete schedule")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SkipNextDate handles POST requests to roll a schedule past its next occurrence.
//
// Endpoint: POST /api/schedule/skip-next-date
// Response: 200 OK with the updated schedule
func (h *ScheduleHandler) SkipNextDate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	schedule, err := h.scheduleService.SkipNextDate(r.Context(), req.ID)
	if err != nil {
		respondServiceError(w, err, "Failed to skip next date")
		return
	}
	respondJSON(w, http.StatusOK, schedule)
}

// PostTransaction handles POST requests to materialize a transaction from a schedule.
//
// Endpoint: POST /api/schedule/post-transaction
// Response: 200 OK
func (h *ScheduleHandler) PostTransaction(w http.ResponseWriter, r *http.Request) {
	var req request.PostTransactionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.scheduleService.PostTransactionForSchedule(r.Context(), req); err != nil {
		respondServiceError(w, err, "Failed to post transaction")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ForceRunService handles POST requests to run schedule advancement outside
// the daily gate.
//
// Endpoint: POST /api/schedule/force-run-service
// Response: 200 OK
func (h *ScheduleHandler) ForceRunService(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduleService.AdvanceSchedules(r.Context(), true, true); err != nil {
		respondServiceError(w, err, "Failed to run schedule advancement")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Discover handles POST requests to propose schedules from unscheduled
// transaction history.
//
// Endpoint: POST /api/schedule/discover
// Response: 200 OK with array of discovered schedule candidates
func (h *ScheduleHandler) Discover(w http.ResponseWriter, r *http.Request) {
	discovered, err := h.scheduleService.DiscoverSchedules(r.Context())
	if err != nil {
		respondServiceError(w, err, "Failed to discover schedules")
		return
	}
	respondJSON(w, http.StatusOK, discovered)
}

// UpcomingDates handles POST requests to preview occurrences of a recurrence
// config.
//
// Endpoint: POST /api/schedule/get-upcoming-dates
// Response: 200 OK with array of dates
func (h *ScheduleHandler) UpcomingDates(w http.ResponseWriter, r *http.Request) {
	var req request.UpcomingDatesRequest
	if !decodeBody(w, r, &req) {
		return
	}

	dates, err := h.scheduleService.UpcomingDates(r.Context(), req)
	if err != nil {
		respondServiceError(w, err, "Failed to compute upcoming dates")
		return
	}
	respondJSON(w, http.StatusOK, dates)
}

// Export handles POST requests to export all schedules as a portable payload.
//
// Endpoint: POST /api/schedule/export
// Response: 200 OK with the export payload
func (h *ScheduleHandler) Export(w http.ResponseWriter, r *http.Request) {
	payload, err := h.scheduleService.ExportSchedules(r.Context())
	if err != nil {
		respondServiceError(w, err, "Failed to export schedules")
		return
	}
	respondJSON(w, http.StatusOK, payload)
}

// Import handles POST requests to import a schedule export payload. The body
// is the raw JSON5 document.
//
// Endpoint: POST /api/schedule/import
// Response: 200 OK with the import result
// Error: 400 Bad Request on a malformed or unknown-version payload
func (h *ScheduleHandler) Import(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{
			"error":  "Invalid request body",
			"detail": err.Error(),
		})
		return
	}

	result, err := h.scheduleService.ImportSchedules(r.Context(), body)
	if err != nil {
		respondServiceError(w, err, "Failed to import schedules")
		return
	}
	respondJSON(w, http.StatusOK, result)
}
