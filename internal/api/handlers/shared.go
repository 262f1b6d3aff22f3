package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/avisser/budget-engine/internal/apperrors"
)

// respondJSON sends a JSON response with the given status code
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("Failed to encode JSON: %v", err)
		}
	}
}

// respondServiceError maps service errors onto HTTP statuses. Validation
// failures are client errors with the sentinel's message; everything else is
// a 500 with the error wrapped in a generic envelope.
func respondServiceError(w http.ResponseWriter, err error, fallback string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperrors.ErrScheduleNotFound),
		errors.Is(err, apperrors.ErrRuleNotFound),
		errors.Is(err, apperrors.ErrAccountNotFound),
		errors.Is(err, apperrors.ErrCategoryNotFound),
		errors.Is(err, apperrors.ErrPreferenceNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperrors.ErrDateConditionRequired),
		errors.Is(err, apperrors.ErrDuplicateScheduleName),
		errors.Is(err, apperrors.ErrRuleLinkImmutable),
		errors.Is(err, apperrors.ErrAmbiguousName),
		errors.Is(err, apperrors.ErrInvalidRate),
		errors.Is(err, apperrors.ErrInvalidDate),
		errors.Is(err, apperrors.ErrInvalidCurrency),
		errors.Is(err, apperrors.ErrUnknownExportVersion),
		errors.Is(err, apperrors.ErrMalformedExport):
		status = http.StatusBadRequest
	}

	errorResponse := map[string]string{
		"error":  fallback,
		"detail": err.Error(),
	}
	respondJSON(w, status, errorResponse)
}

// decodeBody decodes a JSON request body into dst, responding with a 400 on
// failure. It reports whether decoding succeeded.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{
			"error":  "Invalid request body",
			"detail": err.Error(),
		})
		return false
	}
	return true
}
