package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"gemini-chat/internal/middleware"
	"gemini-chat/internal/models"
	"gemini-chat/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get(middleware.RequestIDHeader),
		},
	}
}

// handleServiceError maps chat service errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var genErr *services.GenerationError
	switch {
	case errors.Is(err, services.ErrEmptyMessage):
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Message is required", r))
	case errors.As(err, &genErr):
		writeJSON(w, http.StatusBadGateway, errorResp("AI_ERROR", services.FailureMessage(genErr.Err), r))
	default:
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Internal server error", r))
	}
}
