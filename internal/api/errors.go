package api

import (
	"encoding/json"
	"net/http"

	"github.com/trading-dashboard/internal/errors"
	"github.com/trading-dashboard/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends the error body and status for err.
func respondError(w http.ResponseWriter, err error) {
	catErr := errors.Categorize(err)
	if catErr == nil {
		catErr = errors.NewInternalError("unknown error", nil)
	}

	status := errors.GetHTTPStatusCode(catErr)

	// Internal error details stay in the logs
	svcErr := catErr.ToServiceError()
	if status >= http.StatusInternalServerError && catErr.Category == errors.CategorySystem {
		svcErr = &types.ServiceError{Code: catErr.Code, Message: "An internal server error occurred"}
	}

	respondJSON(w, status, ErrorResponse{Error: *svcErr})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}
