package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ledgerline/banking-support/internal/auth"
	apperrors "github.com/ledgerline/banking-support/pkg/util/errorutil"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize = 4096

	sendBuffer = 256
)

// PrincipalResolver turns a session token into a caller.
type PrincipalResolver interface {
	Resolve(ctx context.Context, token string) (*auth.Principal, error)
}

// Gateway serves the change feed over websockets.
type Gateway struct {
	hub      *Hub
	resolver PrincipalResolver
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewGateway builds a websocket gateway over hub.
func NewGateway(hub *Hub, resolver PrincipalResolver, logger *zap.Logger) *Gateway {
	return &Gateway{
		hub:      hub,
		resolver: resolver,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP authenticates with ?token= (or a bearer header) and upgrades.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = auth.BearerToken(r.Header.Get("Authorization"))
	}
	if token == "" {
		writeHTTPError(w, apperrors.NewAuthRequired("token required"))
		return
	}
	principal, err := g.resolver.Resolve(r.Context(), token)
	if err != nil {
		writeHTTPError(w, err)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &conn{
		id:        uuid.NewString(),
		gw:        g,
		ws:        ws,
		principal: principal,
		send:      make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
		topics:    make(map[string]*Subscription),
	}
	g.logger.Debug("realtime connection opened",
		zap.String("conn_id", c.id),
		zap.String("subject_id", principal.SubjectID()),
	)

	go c.writePump()
	c.readPump()
}

func writeHTTPError(w http.ResponseWriter, err error) {
	domainErr := apperrors.ToDomainError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(domainErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{
		"code":    domainErr.Code,
		"message": domainErr.Message,
	}})
}

type conn struct {
	id        string
	gw        *Gateway
	ws        *websocket.Conn
	principal *auth.Principal
	send      chan []byte
	done      chan struct{}

	mu     sync.Mutex
	topics map[string]*Subscription
}

func (c *conn) readPump() {
	defer c.shutdown()

	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.gw.logger.Debug("realtime read failed", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.reply(Frame{}, "error", "malformed frame")
			continue
		}
		c.handle(frame)
	}
}

func (c *conn) handle(frame Frame) {
	switch frame.Event {
	case FrameJoin:
		filter, ok := ParseTopic(frame.Topic)
		if !ok {
			c.reply(frame, "error", "unknown topic")
			return
		}
		if !c.allowed(filter) {
			c.reply(frame, "error", "forbidden")
			return
		}
		c.join(frame.Topic, filter)
		c.reply(frame, "ok", "")
	case FrameLeave:
		c.leave(frame.Topic)
		c.reply(frame, "ok", "")
	case FrameHeartbeat:
		c.reply(frame, "ok", "")
	default:
		c.reply(frame, "error", "unknown event")
	}
}

// Staff may watch any thread; customers only their own.
func (c *conn) allowed(filter Filter) bool {
	return c.principal.CanWatch(TopicFor(filter))
}

func (c *conn) join(topic string, filter Filter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.topics[topic]; ok {
		return
	}
	sub := c.gw.hub.Subscribe(filter)
	c.topics[topic] = sub
	go c.forward(topic, sub)
}

func (c *conn) leave(topic string) {
	c.mu.Lock()
	sub, ok := c.topics[topic]
	delete(c.topics, topic)
	c.mu.Unlock()
	if ok {
		sub.Close()
	}
}

// forward copies hub events onto the socket until the subscription closes.
func (c *conn) forward(topic string, sub *Subscription) {
	for ev := range sub.Events() {
		var payload any
		if ev.Type == EventInsert {
			payload = ev.Message
		}
		data, err := newFrame(topic, string(ev.Type), "", payload)
		if err != nil {
			c.gw.logger.Warn("encode realtime frame", zap.Error(err))
			continue
		}
		select {
		case c.send <- data:
		case <-c.done:
			return
		}
	}
}

func (c *conn) reply(frame Frame, status, reason string) {
	data, err := newFrame(frame.Topic, FrameReply, frame.Ref, ReplyPayload{Status: status, Reason: reason})
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
	}
}

func (c *conn) shutdown() {
	c.mu.Lock()
	subs := c.topics
	c.topics = make(map[string]*Subscription)
	c.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
	close(c.done)
	_ = c.ws.Close()
	c.gw.logger.Debug("realtime connection closed", zap.String("conn_id", c.id))
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
