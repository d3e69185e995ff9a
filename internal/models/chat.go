package models

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the speaker of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn represents a single message in a conversation. Turns are never
// modified after they are appended to a transcript.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func NewTurn(role Role, content string) Turn {
	return Turn{Role: role, Content: content, CreatedAt: time.Now().UTC()}
}

// ChatRequest is the payload sent to the chat endpoint.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the reply from the AI chat.
type ChatResponse struct {
	Reply      string `json:"reply"`
	Transcript []Turn `json:"transcript"`
}

type TranscriptResponse struct {
	SessionID uuid.UUID `json:"session_id"`
	Turns     []Turn    `json:"turns"`
}
