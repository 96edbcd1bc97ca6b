package handlers

import (
	"context"
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/authsock/authsock/internal/authstore"
	"github.com/authsock/authsock/internal/relay"
	"github.com/authsock/authsock/pkg/sock"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// authPayload is the credential shape clients submit in the $auth envelope.
type authPayload struct {
	Token string `json:"token"`
}

// WebSocketHandler upgrades relay connections, gating them behind the token store.
type WebSocketHandler struct {
	upgrader *sock.Upgrader
}

// NewWebSocketHandler creates a WebSocketHandler whose authorizer resolves
// tokens against the store and whose sessions attach to the hub before their
// read loop starts.
func NewWebSocketHandler(store *authstore.Store, hub *relay.Hub, upgrader sock.Upgrader) *WebSocketHandler {
	if upgrader.Upgrader == nil {
		upgrader.Upgrader = &websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}
	}
	upgrader.Authorizer = tokenAuthorizer(store)
	upgrader.OnSession = hub.Attach
	return &WebSocketHandler{upgrader: &upgrader}
}

// tokenAuthorizer validates the $auth payload against the token store and
// returns the token subject as the session's auth context. Safe for
// concurrent invocation; the store serializes access through database/sql.
func tokenAuthorizer(store *authstore.Store) sock.Authorizer {
	return func(payload json.RawMessage) (any, error) {
		var p authPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, errors.Wrap(err, "parse auth payload failed")
		}
		if p.Token == "" {
			return nil, errors.New("token is required")
		}
		tok, err := store.Lookup(context.Background(), p.Token)
		if err != nil {
			return nil, errors.Wrap(err, "lookup token failed")
		}
		return tok.Subject, nil
	}
}

// Connect handles GET /ws - upgrades to an authenticated relay session and
// blocks until the session ends, keeping the request context (and with it
// the session lifetime) alive.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	sess, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error or closed the socket.
		logger.WithError(err).Warn("upgrade rejected")
		return
	}
	<-sess.Done()
}

// RegisterRoutes registers the WebSocket route on a Gin router group.
func (h *WebSocketHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ws", h.Connect)
}
