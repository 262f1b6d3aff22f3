package handlers

import (
	"net/http"

	"github.com/avisser/budget-engine/internal/service"
)

// RateHandler handles HTTP requests for exchange rate endpoints.
type RateHandler struct {
	rateService *service.RateService
}

// NewRateHandler creates a new RateHandler with the provided service dependency.
func NewRateHandler(rateService *service.RateService) *RateHandler {
	return &RateHandler{
		rateService: rateService,
	}
}

// RateResponse represents a rate lookup result. Rate is null when no rate
// could be resolved; callers decide how to display that.
type RateResponse struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Date string   `json:"date,omitempty"`
	Rate *float64 `json:"rate"`
}

// Rate handles GET requests to look up an exchange rate.
//
// Endpoint: GET /api/rates/rate?from=EUR&to=USD&date=2024-01-15
// Response: 200 OK with RateResponse (rate null when unavailable)
// Error: 500 Internal Server Error on storage failure
func (h *RateHandler) Rate(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	date := r.URL.Query().Get("date")

	rate, ok, err := h.rateService.GetRate(r.Context(), from, to, date)
	if err != nil {
		respondServiceError(w, err, "Failed to look up rate")
		return
	}

	response := RateResponse{From: from, To: to, Date: date}
	if ok {
		response.Rate = &rate
	}
	respondJSON(w, http.StatusOK, response)
}

// ManualRateRequest represents a user-entered exchange rate.
type ManualRateRequest struct {
	From string  `json:"from"`
	To   string  `json:"to"`
	Rate float64 `json:"rate"`
	Date string  `json:"date"`
}

// ManualRate handles POST requests to store a user-entered rate.
//
// Endpoint: POST /api/rates/manual
// Response: 200 OK
// Error: 400 Bad Request on validation failure
func (h *RateHandler) ManualRate(w http.ResponseWriter, r *http.Request) {
	var req ManualRateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.rateService.AddManualRate(r.Context(), req.From, req.To, req.Rate, req.Date); err != nil {
		respondServiceError(w, err, "Failed to store manual rate")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Refresh handles POST requests to run a rate refresh pass immediately.
//
// Endpoint: POST /api/rates/refresh
// Response: 200 OK with the number of rates cached
// Error: 404 Not Found when no base currency is configured
func (h *RateHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	cached, err := h.rateService.RefreshNow(r.Context())
	if err != nil {
		respondServiceError(w, err, "Failed to refresh rates")
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"cached": cached})
}
