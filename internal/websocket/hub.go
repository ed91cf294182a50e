package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Message represents a WebSocket message
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Client represents a WebSocket client
type Client struct {
	ID   string
	Conn *websocket.Conn
	Hub  *Hub
	Send chan []byte

	mu     sync.Mutex
	topics map[string]bool // empty = receive everything
}

// wants reports whether the client subscribed to the event type.
func (c *Client) wants(event string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.topics) == 0 {
		return true
	}
	return c.topics[event]
}

func (c *Client) setTopics(events []string, subscribed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range events {
		if subscribed {
			c.topics[e] = true
		} else {
			delete(c.topics, e)
		}
	}
}

type outbound struct {
	event string
	data  []byte
}

// Hub maintains active clients and broadcasts check and alert events
type Hub struct {
	clients        map[*Client]bool
	broadcast      chan outbound
	register       chan *Client
	unregister     chan *Client
	mu             sync.RWMutex
	jwtSecret      string
	allowedOrigins []string
	logger         *zap.Logger
}

// NewHub creates a new Hub
func NewHub(jwtSecret string, allowedOrigins []string, logger *zap.Logger) *Hub {
	return &Hub{
		clients:        make(map[*Client]bool),
		broadcast:      make(chan outbound, 256),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		jwtSecret:      jwtSecret,
		allowedOrigins: allowedOrigins,
		logger:         logger,
	}
}

// Run starts the hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("websocket client connected", zap.String("client_id", client.ID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				h.logger.Debug("websocket client disconnected", zap.String("client_id", client.ID))
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if !client.wants(msg.event) {
					continue
				}
				select {
				case client.Send <- msg.data:
				default:
					close(client.Send)
					delete(h.clients, client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast sends an event to all subscribed clients. Delivery is
// best-effort; slow clients are dropped rather than blocking the pipeline.
func (h *Hub) Broadcast(event string, payload interface{}) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("marshalling broadcast payload failed", zap.String("event", event), zap.Error(err))
		return
	}
	msgJSON, err := json.Marshal(Message{Type: event, Payload: payloadJSON})
	if err != nil {
		h.logger.Error("marshalling broadcast envelope failed", zap.String("event", event), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- outbound{event: event, data: msgJSON}:
	default:
		h.logger.Warn("broadcast queue full, event dropped", zap.String("event", event))
	}
}

// HandleWebSocket handles WebSocket connections
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			token = strings.TrimPrefix(authHeader, "Bearer ")
		}
	}

	// Validate JWT token with algorithm check
	userID := 0
	if token != "" {
		parsedToken, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			if token.Method.Alg() != "HS256" {
				return nil, fmt.Errorf("unexpected signing algorithm: %v", token.Method.Alg())
			}
			return []byte(h.jwtSecret), nil
		})

		if err == nil && parsedToken.Valid {
			claims := parsedToken.Claims.(jwt.MapClaims)

			if exp, ok := claims["exp"].(float64); ok {
				if time.Now().Unix() > int64(exp) {
					h.logger.Warn("websocket token expired", zap.String("remote", r.RemoteAddr))
					http.Error(w, "Token expired", http.StatusUnauthorized)
					return
				}
			}

			if uid, ok := claims["user_id"].(float64); ok {
				userID = int(uid)
			}
		}
	}

	if userID == 0 {
		h.logger.Warn("websocket connection rejected, no valid authentication", zap.String("remote", r.RemoteAddr))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	allowedOrigins := h.allowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000"}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: allowedOrigins,
	})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		ID:     "user:" + strconv.Itoa(userID),
		Conn:   conn,
		Hub:    h,
		Send:   make(chan []byte, 256),
		topics: make(map[string]bool),
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump reads messages from the WebSocket connection
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := context.Background()
	for {
		_, message, err := c.Conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure ||
				status == websocket.StatusGoingAway ||
				status == websocket.StatusNoStatusRcvd {
				break
			}
			c.Hub.logger.Warn("websocket read error", zap.String("client_id", c.ID), zap.Error(err))
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			c.Hub.logger.Debug("unparseable websocket message", zap.String("client_id", c.ID), zap.Error(err))
			continue
		}
		c.handleMessage(msg)
	}
}

// writePump writes messages to the WebSocket connection
func (c *Client) writePump() {
	ctx := context.Background()
	for message := range c.Send {
		err := c.Conn.Write(ctx, websocket.MessageText, message)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure &&
				status != websocket.StatusGoingAway &&
				status != websocket.StatusNoStatusRcvd {
				c.Hub.logger.Warn("websocket write error", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
	}
}

type subscription struct {
	Events []string `json:"events"`
}

// handleMessage handles incoming WebSocket messages
func (c *Client) handleMessage(msg Message) {
	switch msg.Type {
	case "subscribe", "unsubscribe":
		var sub subscription
		if err := json.Unmarshal(msg.Payload, &sub); err != nil || len(sub.Events) == 0 {
			return
		}
		c.setTopics(sub.Events, msg.Type == "subscribe")
	case "ping":
		response, _ := json.Marshal(Message{
			Type:    "pong",
			Payload: json.RawMessage(`{}`),
		})
		c.Send <- response
	default:
		c.Hub.logger.Debug("unknown websocket message type", zap.String("type", msg.Type))
	}
}
