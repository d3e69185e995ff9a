package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"gemini-chat/internal/session"
)

type contextKey string

const (
	SessionKey      contextKey = "session"
	SessionTokenKey contextKey = "session_token"

	SessionCookieName = "chat_session"
	tokenTTL          = 24 * time.Hour
)

var ErrInvalidToken = errors.New("invalid session token")

// Sessions binds every request to an in-memory chat session through a
// signed cookie. The cookie has no Max-Age, so it ends with the browser.
type Sessions struct {
	Secret []byte
	store  *session.Store
	secure bool
}

func NewSessions(secret string, store *session.Store, secureCookies bool) *Sessions {
	return &Sessions{Secret: []byte(secret), store: store, secure: secureCookies}
}

// IssueToken creates a signed token naming the session.
func (s *Sessions) IssueToken(sessionID uuid.UUID) (string, error) {
	claims := jwt.MapClaims{
		"session_id": sessionID.String(),
		"exp":        time.Now().Add(tokenTTL).Unix(),
		"iat":        time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.Secret)
}

// ParseToken verifies a token and returns the session ID it names.
func (s *Sessions) ParseToken(tokenStr string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.Secret, nil
	})
	if err != nil {
		return uuid.Nil, errors.Join(ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return uuid.Nil, ErrInvalidToken
	}

	idStr, ok := claims["session_id"].(string)
	if !ok {
		return uuid.Nil, ErrInvalidToken
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, errors.Join(ErrInvalidToken, err)
	}
	return id, nil
}

// Middleware attaches the caller's session to the context, starting a new
// empty one when the cookie is missing, invalid or points at an expired
// session.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(SessionCookieName); err == nil {
			if id, err := s.ParseToken(cookie.Value); err == nil {
				if sess, ok := s.store.Get(id); ok {
					next.ServeHTTP(w, r.WithContext(withSession(r.Context(), sess, cookie.Value)))
					return
				}
			}
		}

		sess, token, err := s.start(w)
		if err != nil {
			log.Error().Err(err).Msg("failed to start session")
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to start session", r)
			return
		}
		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), sess, token)))
	})
}

// Renew ends the current session and starts an empty one. The returned
// context carries the new session.
func (s *Sessions) Renew(w http.ResponseWriter, r *http.Request) (*session.Session, context.Context, error) {
	if current := GetSession(r.Context()); current != nil {
		s.store.Delete(current.ID)
	}

	sess, token, err := s.start(w)
	if err != nil {
		return nil, nil, err
	}
	return sess, withSession(r.Context(), sess, token), nil
}

func (s *Sessions) start(w http.ResponseWriter) (*session.Session, string, error) {
	sess := s.store.Create()
	token, err := s.IssueToken(sess.ID)
	if err != nil {
		s.store.Delete(sess.ID)
		return nil, "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return sess, token, nil
}

func withSession(ctx context.Context, sess *session.Session, token string) context.Context {
	ctx = context.WithValue(ctx, SessionKey, sess)
	return context.WithValue(ctx, SessionTokenKey, token)
}

// GetSession extracts the session from request context
func GetSession(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(SessionKey).(*session.Session)
	return sess
}

// GetSessionToken extracts the signed session token from request context
func GetSessionToken(ctx context.Context) string {
	token, _ := ctx.Value(SessionTokenKey).(string)
	return token
}

func writeError(w http.ResponseWriter, status int, code, message string, r *http.Request) {
	requestID := r.Header.Get(RequestIDHeader)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":       code,
			"message":    message,
			"request_id": requestID,
		},
	})
}
