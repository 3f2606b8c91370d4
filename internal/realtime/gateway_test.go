package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ledgerline/banking-support/internal/auth"
	"github.com/ledgerline/banking-support/internal/domain"
	apperrors "github.com/ledgerline/banking-support/pkg/util/errorutil"
)

type tokenTable map[string]*auth.Principal

func (t tokenTable) Resolve(_ context.Context, token string) (*auth.Principal, error) {
	if p, ok := t[token]; ok {
		return p, nil
	}
	return nil, apperrors.NewAuthRequired("invalid token")
}

func newGatewayServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(16, nil)
	resolver := tokenTable{
		"customer": {SubjectType: domain.SubjectTypeUser, User: &domain.User{ID: "u1"}, Feed: domain.ThreadFeed("u1")},
		"agent":    {SubjectType: domain.SubjectTypeStaff, Staff: &domain.StaffMember{ID: "s1", Role: domain.StaffRoleAgent}, Feed: domain.AllThreadsFeed},
		"unscoped": {SubjectType: domain.SubjectTypeUser, User: &domain.User{ID: "u1"}},
	}
	srv := httptest.NewServer(NewGateway(hub, resolver, zap.NewNop()))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) Frame {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f Frame
	if err := ws.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func joinTopic(t *testing.T, ws *websocket.Conn, topic string) ReplyPayload {
	t.Helper()
	if err := ws.WriteJSON(Frame{Topic: topic, Event: FrameJoin, Ref: "1"}); err != nil {
		t.Fatalf("write join: %v", err)
	}
	f := readFrame(t, ws)
	if f.Event != FrameReply || f.Ref != "1" {
		t.Fatalf("expected reply, got %+v", f)
	}
	var reply ReplyPayload
	_ = json.Unmarshal(f.Payload, &reply)
	return reply
}

func waitForSubscribers(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for hub.Len() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d subscribers, have %d", n, hub.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGatewayRejectsMissingToken(t *testing.T) {
	_, srv := newGatewayServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?token=nope"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestGatewayCustomerReceivesOwnThread(t *testing.T) {
	hub, srv := newGatewayServer(t)
	ws := dial(t, srv, "customer")

	if reply := joinTopic(t, ws, UserTopic("u2")); reply.Status != "error" {
		t.Fatalf("joining another customer's thread should fail: %+v", reply)
	}
	if reply := joinTopic(t, ws, TopicAll); reply.Status != "error" {
		t.Fatalf("customer must not join the staff feed: %+v", reply)
	}
	if reply := joinTopic(t, ws, UserTopic("u1")); reply.Status != "ok" {
		t.Fatalf("join own thread: %+v", reply)
	}
	waitForSubscribers(t, hub, 1)

	hub.Publish(domain.Message{ID: "m1", UserID: "u1", Content: "Hello", Kind: domain.MessageKindText})
	f := readFrame(t, ws)
	if f.Event != string(EventInsert) || f.Topic != UserTopic("u1") {
		t.Fatalf("unexpected frame %+v", f)
	}
	var got domain.Message
	if err := json.Unmarshal(f.Payload, &got); err != nil || got.ID != "m1" {
		t.Fatalf("payload: %s, %v", f.Payload, err)
	}
}

func TestGatewayRejectsSessionWithoutFeed(t *testing.T) {
	_, srv := newGatewayServer(t)
	ws := dial(t, srv, "unscoped")
	if reply := joinTopic(t, ws, UserTopic("u1")); reply.Status != "error" {
		t.Fatalf("session without a feed joined a thread: %+v", reply)
	}
}

func TestGatewayClosesSubscriptionsOnDisconnect(t *testing.T) {
	hub, srv := newGatewayServer(t)
	ws := dial(t, srv, "agent")
	if reply := joinTopic(t, ws, TopicAll); reply.Status != "ok" {
		t.Fatalf("staff join: %+v", reply)
	}
	waitForSubscribers(t, hub, 1)

	ws.Close()
	waitForSubscribers(t, hub, 0)
}

func TestGatewayHeartbeatAndLeave(t *testing.T) {
	hub, srv := newGatewayServer(t)
	ws := dial(t, srv, "agent")
	joinTopic(t, ws, UserTopic("u7"))
	waitForSubscribers(t, hub, 1)

	_ = ws.WriteJSON(Frame{Topic: UserTopic("u7"), Event: FrameLeave, Ref: "2"})
	if f := readFrame(t, ws); f.Event != FrameReply || f.Ref != "2" {
		t.Fatalf("leave reply: %+v", f)
	}
	waitForSubscribers(t, hub, 0)

	_ = ws.WriteJSON(Frame{Topic: "phoenix", Event: FrameHeartbeat, Ref: "3"})
	if f := readFrame(t, ws); f.Event != FrameReply || f.Ref != "3" {
		t.Fatalf("heartbeat reply: %+v", f)
	}
}
