package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"gemini-chat/internal/models"
	"gemini-chat/internal/session"
)

// Notifier pushes UI updates to every view of a session.
type Notifier interface {
	Publish(ctx context.Context, sessionID uuid.UUID, msg models.WSMessage)
}

type ChatService struct {
	generator Generator
	notifier  Notifier
}

func NewChatService(generator Generator, notifier Notifier) *ChatService {
	return &ChatService{generator: generator, notifier: notifier}
}

// Handle runs one chat turn: the user turn is recorded before the
// generation call and the assistant turn only after it succeeds. The full
// transcript is re-published after every append.
func (s *ChatService) Handle(ctx context.Context, sess *session.Session, text string) (models.Turn, error) {
	if text == "" {
		return models.Turn{}, ErrEmptyMessage
	}

	unlock := sess.LockTurn()
	defer unlock()

	sess.Transcript.Append(models.NewTurn(models.RoleUser, text))
	s.publishTranscript(ctx, sess)
	s.publishStatus(ctx, sess, "typing")
	defer s.publishStatus(ctx, sess, "idle")

	reply, err := s.generator.Generate(ctx, text)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = ErrEmptyResponse
	}
	if err != nil {
		log.Error().Err(err).Str("session_id", sess.ID.String()).Msg("generation failed")
		s.publish(ctx, sess, models.WSMessage{
			Type: models.WSTypeError,
			Payload: models.ErrorEvent{
				SessionID:    sess.ID,
				ErrorCode:    "AI_ERROR",
				ErrorMessage: FailureMessage(err),
			},
		})
		return models.Turn{}, &GenerationError{Err: err}
	}

	turn := models.NewTurn(models.RoleAssistant, reply)
	sess.Transcript.Append(turn)
	s.publishTranscript(ctx, sess)

	return turn, nil
}

// FailureMessage is the text shown to the user for a failed turn.
func FailureMessage(err error) string {
	switch {
	case errors.Is(err, ErrEmptyResponse):
		return "The model returned no answer. It may have been blocked by safety filters. Please try again."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "The request was cancelled before the model answered. Please try again."
	default:
		return "Failed to get AI response. Please try again."
	}
}

func (s *ChatService) publishTranscript(ctx context.Context, sess *session.Session) {
	s.publish(ctx, sess, models.WSMessage{
		Type:    models.WSTypeTranscript,
		Payload: models.TranscriptEvent{SessionID: sess.ID, Turns: sess.Transcript.All()},
	})
}

func (s *ChatService) publishStatus(ctx context.Context, sess *session.Session, status string) {
	s.publish(ctx, sess, models.WSMessage{
		Type:    models.WSTypeStatusUpdate,
		Payload: models.StatusUpdate{SessionID: sess.ID, Status: status},
	})
}

func (s *ChatService) publish(ctx context.Context, sess *session.Session, msg models.WSMessage) {
	if s.notifier == nil {
		return
	}
	s.notifier.Publish(ctx, sess.ID, msg)
}
