package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gemini-chat/internal/middleware"
	"gemini-chat/internal/models"
	"gemini-chat/internal/services"
	"gemini-chat/internal/session"
	"gemini-chat/internal/web"
)

// ─── Test doubles ───

type fakeGenerator struct {
	replies map[string]string
	errs    map[string]error
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err, ok := g.errs[prompt]; ok {
		return "", err
	}
	return g.replies[prompt], nil
}

type closeRecorder struct {
	closed []uuid.UUID
}

func (c *closeRecorder) CloseSession(id uuid.UUID) {
	c.closed = append(c.closed, id)
}

type testEnv struct {
	store    *session.Store
	sessions *middleware.Sessions
	hub      *closeRecorder
	chat     *ChatHandler
	page     *PageHandler
}

func newTestEnv(t *testing.T, gen services.Generator) *testEnv {
	t.Helper()
	store := session.NewStore(time.Minute, 0)
	sessions := middleware.NewSessions("secret", store, false)
	hub := &closeRecorder{}
	chatService := services.NewChatService(gen, nil)

	renderer, err := web.NewRenderer()
	require.NoError(t, err)

	return &testEnv{
		store:    store,
		sessions: sessions,
		hub:      hub,
		chat:     NewChatHandler(chatService, sessions, hub),
		page:     NewPageHandler(chatService, sessions, hub, renderer, "Gemini AI Chatbot", "Arqam AI Chatbot", "gemini-1.5-pro"),
	}
}

// do runs h behind the session middleware, carrying the given cookie.
func (e *testEnv) do(h http.HandlerFunc, req *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	e.sessions.Middleware(h).ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) newSessionCookie(t *testing.T) (*session.Session, *http.Cookie) {
	t.Helper()
	sess := e.store.Create()
	token, err := e.sessions.IssueToken(sess.ID)
	require.NoError(t, err)
	return sess, &http.Cookie{Name: middleware.SessionCookieName, Value: token}
}

func chatRequest(message string) *http.Request {
	body, _ := json.Marshal(models.ChatRequest{Message: message})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// ─── API Tests ───

func TestSendMessage_Success(t *testing.T) {
	env := newTestEnv(t, &fakeGenerator{replies: map[string]string{"Hello": "Hi there!"}})
	sess, cookie := env.newSessionCookie(t)

	rr := env.do(env.chat.SendMessage, chatRequest("Hello"), cookie)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp models.ChatResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "Hi there!", resp.Reply)
	require.Len(t, resp.Transcript, 2)
	assert.Equal(t, models.RoleUser, resp.Transcript[0].Role)
	assert.Equal(t, "Hello", resp.Transcript[0].Content)
	assert.Equal(t, models.RoleAssistant, resp.Transcript[1].Role)
	assert.Equal(t, "Hi there!", resp.Transcript[1].Content)

	assert.Equal(t, 2, sess.Transcript.Len())
}

func TestSendMessage_GenerationFailureThenRetry(t *testing.T) {
	gen := &fakeGenerator{
		replies: map[string]string{"Ping again": "Pong"},
		errs:    map[string]error{"Ping": errors.New("dial tcp: i/o timeout")},
	}
	env := newTestEnv(t, gen)
	sess, cookie := env.newSessionCookie(t)

	rr := env.do(env.chat.SendMessage, chatRequest("Ping"), cookie)
	require.Equal(t, http.StatusBadGateway, rr.Code)

	var errBody models.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&errBody))
	assert.Equal(t, "AI_ERROR", errBody.Error.Code)
	assert.NotEmpty(t, errBody.Error.Message)

	turns := sess.Transcript.All()
	require.Len(t, turns, 1)
	assert.Equal(t, "Ping", turns[0].Content)

	rr = env.do(env.chat.SendMessage, chatRequest("Ping again"), cookie)
	require.Equal(t, http.StatusOK, rr.Code)

	turns = sess.Transcript.All()
	require.Len(t, turns, 3)
	assert.Equal(t, []string{"Ping", "Ping again", "Pong"}, []string{turns[0].Content, turns[1].Content, turns[2].Content})
	assert.Equal(t, models.RoleUser, turns[1].Role)
	assert.Equal(t, models.RoleAssistant, turns[2].Role)
}

func TestSendMessage_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty message", `{"message":""}`},
		{"missing message", `{}`},
		{"malformed json", `{"message":`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, &fakeGenerator{})
			sess, cookie := env.newSessionCookie(t)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(tc.body))
			rr := env.do(env.chat.SendMessage, req, cookie)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, 0, sess.Transcript.Len())

			var errBody models.ErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&errBody))
			assert.Equal(t, "VALIDATION_ERROR", errBody.Error.Code)
		})
	}
}

func TestSendMessage_WhitespaceIsForwarded(t *testing.T) {
	gen := &fakeGenerator{replies: map[string]string{"   ": "Did you mean to say something?"}}
	env := newTestEnv(t, gen)
	sess, cookie := env.newSessionCookie(t)

	rr := env.do(env.chat.SendMessage, chatRequest("   "), cookie)
	require.Equal(t, http.StatusOK, rr.Code)

	turns := sess.Transcript.All()
	require.Len(t, turns, 2)
	assert.Equal(t, "   ", turns[0].Content)
	assert.Equal(t, "Did you mean to say something?", turns[1].Content)
}

func TestGetTranscript(t *testing.T) {
	env := newTestEnv(t, &fakeGenerator{})
	sess, cookie := env.newSessionCookie(t)
	sess.Transcript.Append(models.NewTurn(models.RoleUser, "Hello"))

	rr := env.do(env.chat.GetTranscript, httptest.NewRequest(http.MethodGet, "/api/v1/transcript", nil), cookie)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp models.TranscriptResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, sess.ID, resp.SessionID)
	require.Len(t, resp.Turns, 1)
	assert.Equal(t, "Hello", resp.Turns[0].Content)
}

func TestGetTranscript_NewVisitorStartsEmpty(t *testing.T) {
	env := newTestEnv(t, &fakeGenerator{})

	rr := env.do(env.chat.GetTranscript, httptest.NewRequest(http.MethodGet, "/api/v1/transcript", nil), nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp models.TranscriptResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Empty(t, resp.Turns)
	assert.NotEmpty(t, rr.Result().Cookies())
}

func TestResetSession(t *testing.T) {
	env := newTestEnv(t, &fakeGenerator{})
	sess, cookie := env.newSessionCookie(t)
	sess.Transcript.Append(models.NewTurn(models.RoleUser, "Hello"))

	rr := env.do(env.chat.ResetSession, httptest.NewRequest(http.MethodDelete, "/api/v1/session", nil), cookie)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp models.TranscriptResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.NotEqual(t, sess.ID, resp.SessionID)
	assert.Empty(t, resp.Turns)

	_, ok := env.store.Get(sess.ID)
	assert.False(t, ok, "old transcript must be destroyed")
	assert.Equal(t, []uuid.UUID{sess.ID}, env.hub.closed)
}

// ─── Page Tests ───

func TestIndex_RendersTranscript(t *testing.T) {
	env := newTestEnv(t, &fakeGenerator{})
	sess, cookie := env.newSessionCookie(t)
	sess.Transcript.Append(models.NewTurn(models.RoleUser, "Hello"))
	sess.Transcript.Append(models.NewTurn(models.RoleAssistant, "Hi **there**!"))

	rr := env.do(env.page.Index, httptest.NewRequest(http.MethodGet, "/", nil), cookie)
	require.Equal(t, http.StatusOK, rr.Code)

	body := rr.Body.String()
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, body, "<title>Gemini AI Chatbot</title>")
	assert.Contains(t, body, "<h1>Arqam AI Chatbot</h1>")
	assert.Contains(t, body, "Hello")
	assert.Contains(t, body, "<strong>there</strong>")
	assert.Less(t, strings.Index(body, "Hello"), strings.Index(body, "<strong>there</strong>"))
}

func TestIndex_ShowsFlashError(t *testing.T) {
	env := newTestEnv(t, &fakeGenerator{})
	_, cookie := env.newSessionCookie(t)

	rr := env.do(env.page.Index, httptest.NewRequest(http.MethodGet, "/?error=ai", nil), cookie)
	assert.Contains(t, rr.Body.String(), "Failed to get AI response")
}

func formRequest(message string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("message="+message))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestSubmit_Success(t *testing.T) {
	env := newTestEnv(t, &fakeGenerator{replies: map[string]string{"Hello": "Hi there!"}})
	sess, cookie := env.newSessionCookie(t)

	rr := env.do(env.page.Submit, formRequest("Hello"), cookie)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))
	assert.Equal(t, 2, sess.Transcript.Len())
}

func TestSubmit_FailureRedirectsWithError(t *testing.T) {
	env := newTestEnv(t, &fakeGenerator{errs: map[string]error{"Ping": errors.New("boom")}})
	sess, cookie := env.newSessionCookie(t)

	rr := env.do(env.page.Submit, formRequest("Ping"), cookie)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/?error=ai", rr.Header().Get("Location"))
	assert.Equal(t, 1, sess.Transcript.Len())
}

func TestSubmit_EmptyMessage(t *testing.T) {
	env := newTestEnv(t, &fakeGenerator{})
	sess, cookie := env.newSessionCookie(t)

	rr := env.do(env.page.Submit, formRequest(""), cookie)
	assert.Equal(t, "/?error=empty", rr.Header().Get("Location"))
	assert.Equal(t, 0, sess.Transcript.Len())
}

func TestPageReset(t *testing.T) {
	env := newTestEnv(t, &fakeGenerator{})
	sess, cookie := env.newSessionCookie(t)

	rr := env.do(env.page.Reset, httptest.NewRequest(http.MethodPost, "/chat/reset", nil), cookie)
	assert.Equal(t, http.StatusSeeOther, rr.Code)

	_, ok := env.store.Get(sess.ID)
	assert.False(t, ok)
	assert.Len(t, rr.Result().Cookies(), 1)
}
