package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ledgerline/banking-support/internal/chat"
	"github.com/ledgerline/banking-support/internal/domain"
	"github.com/ledgerline/banking-support/internal/realtime"
	apperrors "github.com/ledgerline/banking-support/pkg/util/errorutil"
)

const (
	joinTimeout    = 10 * time.Second
	closeWait      = time.Second
	minBackoff     = 500 * time.Millisecond
	maxBackoff     = 30 * time.Second
	eventBuffer    = 64
	maxServerFrame = 1 << 20
)

// Subscribe joins the gateway topic for filter. When the connection drops the
// subscription reconnects on its own and delivers an EventResync once it is
// back, since inserts may have been missed in between.
func (c *Client) Subscribe(ctx context.Context, filter realtime.Filter) (chat.Subscription, error) {
	if c.realtimeURL == "" {
		return nil, errors.New("realtime url not configured")
	}
	topic := realtime.TopicFor(filter)
	sub := &wsSubscription{
		client: c,
		topic:  topic,
		events: make(chan realtime.Event, eventBuffer),
		done:   make(chan struct{}),
	}
	ws, pending, err := sub.connect(ctx)
	if err != nil {
		return nil, err
	}
	sub.ws = ws
	go sub.run(ws, pending)
	return sub, nil
}

type wsSubscription struct {
	client *Client
	topic  string
	events chan realtime.Event
	done   chan struct{}
	refs   atomic.Uint64

	mu     sync.Mutex
	ws     *websocket.Conn
	closed bool
	once   sync.Once
}

func (s *wsSubscription) Events() <-chan realtime.Event {
	return s.events
}

// Close leaves the topic and releases the connection. Safe to call more than once.
func (s *wsSubscription) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		ws := s.ws
		s.mu.Unlock()
		close(s.done)
		if ws != nil {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait))
			_ = ws.Close()
		}
	})
}

func (s *wsSubscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// connect dials, joins the topic and waits for the acknowledgement. Events
// that arrive before the acknowledgement are returned for delivery.
func (s *wsSubscription) connect(ctx context.Context) (*websocket.Conn, []realtime.Event, error) {
	endpoint, err := url.Parse(s.client.realtimeURL)
	if err != nil {
		return nil, nil, err
	}
	q := endpoint.Query()
	q.Set("token", s.client.Token())
	endpoint.RawQuery = q.Encode()

	dialCtx, cancel := context.WithTimeout(ctx, joinTimeout)
	defer cancel()

	ws, resp, err := s.client.dialer.DialContext(dialCtx, endpoint.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode >= http.StatusBadRequest {
			defer resp.Body.Close()
			return nil, nil, decodeError(resp)
		}
		return nil, nil, err
	}
	ws.SetReadLimit(maxServerFrame)

	ref := strconv.FormatUint(s.refs.Add(1), 10)
	join, _ := json.Marshal(realtime.Frame{Topic: s.topic, Event: realtime.FrameJoin, Ref: ref})
	_ = ws.SetWriteDeadline(time.Now().Add(joinTimeout))
	if err := ws.WriteMessage(websocket.TextMessage, join); err != nil {
		_ = ws.Close()
		return nil, nil, err
	}

	_ = ws.SetReadDeadline(time.Now().Add(joinTimeout))
	var pending []realtime.Event
	for {
		frame, err := readFrame(ws)
		if err != nil {
			_ = ws.Close()
			return nil, nil, err
		}
		if frame.Event != realtime.FrameReply {
			if ev, ok := toEvent(frame); ok {
				pending = append(pending, ev)
			}
			continue
		}
		if frame.Ref != ref {
			continue
		}
		var reply realtime.ReplyPayload
		_ = json.Unmarshal(frame.Payload, &reply)
		if reply.Status != "ok" {
			_ = ws.Close()
			if reply.Reason == "forbidden" {
				return nil, nil, apperrors.NewForbidden("not allowed to watch " + s.topic)
			}
			return nil, nil, apperrors.NewValidationError("join rejected", map[string]any{"topic": s.topic, "reason": reply.Reason})
		}
		break
	}
	_ = ws.SetReadDeadline(time.Time{})
	_ = ws.SetWriteDeadline(time.Time{})
	return ws, pending, nil
}

func (s *wsSubscription) run(ws *websocket.Conn, pending []realtime.Event) {
	defer close(s.events)
	for _, ev := range pending {
		if !s.emit(ev) {
			return
		}
	}

	for {
		err := s.pump(ws)
		if s.isClosed() {
			return
		}
		s.client.logger.Warn("realtime connection lost; reconnecting", zap.String("topic", s.topic), zap.Error(err))

		ws = s.reconnect()
		if ws == nil {
			return
		}
		if !s.emit(realtime.Event{Type: realtime.EventResync}) {
			return
		}
	}
}

// pump delivers frames until the connection fails.
func (s *wsSubscription) pump(ws *websocket.Conn) error {
	for {
		frame, err := readFrame(ws)
		if err != nil {
			return err
		}
		if ev, ok := toEvent(frame); ok && frame.Topic == s.topic {
			if !s.emit(ev) {
				return nil
			}
		}
	}
}

func (s *wsSubscription) reconnect() *websocket.Conn {
	backoff := minBackoff
	for {
		select {
		case <-s.done:
			return nil
		case <-time.After(backoff):
		}

		// inserts seen while rejoining are covered by the resync that follows
		ws, _, err := s.connect(context.Background())
		if err == nil {
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				_ = ws.Close()
				return nil
			}
			s.ws = ws
			s.mu.Unlock()
			return ws
		}
		s.client.logger.Debug("realtime reconnect failed", zap.String("topic", s.topic), zap.Error(err))
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (s *wsSubscription) emit(ev realtime.Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// readFrame fails only on transport errors. A malformed frame comes back
// empty and is ignored by callers.
func readFrame(ws *websocket.Conn) (realtime.Frame, error) {
	var frame realtime.Frame
	_, raw, err := ws.ReadMessage()
	if err != nil {
		return frame, err
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		return realtime.Frame{}, nil
	}
	return frame, nil
}

func toEvent(frame realtime.Frame) (realtime.Event, bool) {
	switch realtime.EventType(frame.Event) {
	case realtime.EventInsert:
		var msg domain.Message
		if err := json.Unmarshal(frame.Payload, &msg); err != nil {
			return realtime.Event{}, false
		}
		return realtime.Event{Type: realtime.EventInsert, Message: msg}, true
	case realtime.EventResync:
		return realtime.Event{Type: realtime.EventResync}, true
	}
	return realtime.Event{}, false
}
