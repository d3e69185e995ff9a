package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"gemini-chat/internal/models"
	"gemini-chat/internal/session"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// TokenParser resolves a session token to a session ID.
type TokenParser interface {
	ParseToken(token string) (uuid.UUID, error)
}

// client serialises writes; gorilla connections allow one writer at a time.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub fans transcript updates out to every open view of a session. With a
// Redis client it relays through pub/sub so any replica can publish.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID][]*client
	redisClient *redis.Client
	tokens      TokenParser
	store       *session.Store
	subs        map[uuid.UUID]*subscription
}

// subscription is the Redis relay for one session, shared by all of its
// local connections.
type subscription struct {
	ctx    context.Context
	cancel context.CancelFunc
	refs   int
	ready  chan struct{}
}

func NewHub(redisClient *redis.Client, tokens TokenParser, store *session.Store) *Hub {
	return &Hub{
		connections: make(map[uuid.UUID][]*client),
		redisClient: redisClient,
		tokens:      tokens,
		store:       store,
		subs:        make(map[uuid.UUID]*subscription),
	}
}

func channelName(sessionID uuid.UUID) string {
	return "session_updates:" + sessionID.String()
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Authenticate via token query param
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sessionID, err := h.tokens.ParseToken(tokenStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	// With Redis the transcript may live on another replica; the view still
	// attaches and gets updates through pub/sub.
	sess, local := h.store.Get(sessionID)
	if !local && h.redisClient == nil {
		http.Error(w, "Session expired", http.StatusGone)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn}
	h.registerConnection(r.Context(), sessionID, c)

	// Render what is already there
	if local {
		if data, err := json.Marshal(models.WSMessage{
			Type:    models.WSTypeTranscript,
			Payload: models.TranscriptEvent{SessionID: sessionID, Turns: sess.Transcript.All()},
		}); err == nil {
			c.write(data)
		}
	}

	// Keep connection alive and handle disconnect
	go func() {
		defer h.unregisterConnection(sessionID, c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// registerConnection returns once the connection can receive updates. With
// Redis that means the session channel subscription has been confirmed.
func (h *Hub) registerConnection(ctx context.Context, sessionID uuid.UUID, c *client) {
	if h.redisClient != nil {
		h.mu.Lock()
		sub, ok := h.subs[sessionID]
		if !ok {
			subCtx, cancel := context.WithCancel(context.Background())
			sub = &subscription{ctx: subCtx, cancel: cancel, ready: make(chan struct{})}
			h.subs[sessionID] = sub
		}
		sub.refs++
		h.mu.Unlock()

		if !ok {
			h.subscribe(sessionID, sub)
		} else {
			select {
			case <-sub.ready:
			case <-ctx.Done():
			}
		}
	}

	h.mu.Lock()
	h.connections[sessionID] = append(h.connections[sessionID], c)
	total := len(h.connections[sessionID])
	h.mu.Unlock()

	log.Debug().Str("session_id", sessionID.String()).Int("total", total).Msg("websocket connected")
}

func (h *Hub) unregisterConnection(sessionID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.conn.Close()

	conns := h.connections[sessionID]
	for i, existing := range conns {
		if existing == c {
			h.connections[sessionID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(h.connections[sessionID]) == 0 {
		delete(h.connections, sessionID)
	}

	// Last local view gone, drop the relay
	if sub, ok := h.subs[sessionID]; ok {
		sub.refs--
		if sub.refs == 0 {
			sub.cancel()
			delete(h.subs, sessionID)
		}
	}

	log.Debug().Str("session_id", sessionID.String()).Msg("websocket disconnected")
}

// subscribe blocks until Redis confirms the subscription, then relays in
// the background until the subscription context is cancelled.
func (h *Hub) subscribe(sessionID uuid.UUID, sub *subscription) {
	defer close(sub.ready)

	pubsub := h.redisClient.Subscribe(sub.ctx, channelName(sessionID))
	if _, err := pubsub.Receive(sub.ctx); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("redis subscribe failed")
		pubsub.Close()
		return
	}

	go h.relay(sub.ctx, sessionID, pubsub)
}

func (h *Hub) relay(ctx context.Context, sessionID uuid.UUID, pubsub *redis.PubSub) {
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(sessionID, []byte(msg.Payload))
		}
	}
}

// Publish sends msg to every connection of the session.
func (h *Hub) Publish(ctx context.Context, sessionID uuid.UUID, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("type", msg.Type).Msg("failed to encode websocket message")
		return
	}

	if h.redisClient != nil {
		// Detached from the request so a client hang-up does not drop the update.
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		receivers, err := h.redisClient.Publish(pubCtx, channelName(sessionID), string(data)).Result()
		if err == nil && receivers > 0 {
			return
		}
		if err != nil {
			log.Warn().Err(err).Msg("redis publish failed, broadcasting locally")
		}
	}

	h.broadcast(sessionID, data)
}

func (h *Hub) broadcast(sessionID uuid.UUID, data []byte) {
	h.mu.RLock()
	conns := append([]*client(nil), h.connections[sessionID]...)
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.write(data); err != nil {
			log.Debug().Err(err).Str("session_id", sessionID.String()).Msg("websocket write failed")
		}
	}
}

// ConnectionCount reports open connections for a session.
func (h *Hub) ConnectionCount(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[sessionID])
}

// CloseSession disconnects every view of a session, e.g. after a reset.
func (h *Hub) CloseSession(sessionID uuid.UUID) {
	h.mu.RLock()
	conns := append([]*client(nil), h.connections[sessionID]...)
	h.mu.RUnlock()

	for _, c := range conns {
		c.mu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
			time.Now().Add(writeWait))
		c.mu.Unlock()
		c.conn.Close()
	}
}
