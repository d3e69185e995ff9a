package models

import "github.com/google/uuid"

// WebSocket message types
const (
	WSTypeTranscript   = "transcript"
	WSTypeStatusUpdate = "status_update"
	WSTypeError        = "error"
)

type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type TranscriptEvent struct {
	SessionID uuid.UUID `json:"session_id"`
	Turns     []Turn    `json:"turns"`
}

type StatusUpdate struct {
	SessionID uuid.UUID `json:"session_id"`
	Status    string    `json:"status"` // "typing" or "idle"
}

type ErrorEvent struct {
	SessionID    uuid.UUID `json:"session_id"`
	ErrorCode    string    `json:"error_code"`
	ErrorMessage string    `json:"error_message"`
}

// API Error response
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
