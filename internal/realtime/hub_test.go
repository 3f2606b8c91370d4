package realtime

import (
	"fmt"
	"testing"
	"time"

	"github.com/ledgerline/banking-support/internal/domain"
)

func msg(id, userID string) domain.Message {
	return domain.Message{ID: id, UserID: userID, Content: "hi " + id, Kind: domain.MessageKindText, CreatedAt: time.Now()}
}

func recv(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("subscription closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestHubFiltersByUser(t *testing.T) {
	hub := NewHub(8, nil)
	mine := hub.Subscribe(Filter{UserID: "u1"})
	all := hub.Subscribe(Filter{})
	defer mine.Close()
	defer all.Close()

	hub.Publish(msg("1", "u2"))
	hub.Publish(msg("2", "u1"))

	if ev := recv(t, mine); ev.Type != EventInsert || ev.Message.ID != "2" {
		t.Fatalf("u1 subscriber got %+v", ev)
	}
	if ev := recv(t, all); ev.Message.ID != "1" {
		t.Fatalf("staff subscriber first event: %+v", ev)
	}
	if ev := recv(t, all); ev.Message.ID != "2" {
		t.Fatalf("staff subscriber second event: %+v", ev)
	}
	select {
	case ev := <-mine.Events():
		t.Fatalf("unexpected extra event %+v", ev)
	default:
	}
}

func TestHubPreservesPublishOrder(t *testing.T) {
	hub := NewHub(16, nil)
	sub := hub.Subscribe(Filter{UserID: "u1"})
	defer sub.Close()

	for i := 0; i < 10; i++ {
		hub.Publish(msg(fmt.Sprint(i), "u1"))
	}
	for i := 0; i < 10; i++ {
		if ev := recv(t, sub); ev.Message.ID != fmt.Sprint(i) {
			t.Fatalf("position %d: got %s", i, ev.Message.ID)
		}
	}
}

func TestHubOverflowBecomesResync(t *testing.T) {
	hub := NewHub(2, nil)
	sub := hub.Subscribe(Filter{})
	defer sub.Close()

	for i := 0; i < 5; i++ {
		hub.Publish(msg(fmt.Sprint(i), "u1"))
	}

	if ev := recv(t, sub); ev.Type != EventResync {
		t.Fatalf("expected resync after overflow, got %+v", ev)
	}
	// delivery continues normally afterwards
	hub.Publish(msg("after", "u1"))
	for {
		ev := recv(t, sub)
		if ev.Type == EventInsert && ev.Message.ID == "after" {
			break
		}
	}
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	hub := NewHub(4, nil)
	sub := hub.Subscribe(Filter{UserID: "u1"})
	if hub.Len() != 1 {
		t.Fatalf("len: got %d", hub.Len())
	}

	sub.Close()
	sub.Close()

	if hub.Len() != 0 {
		t.Fatalf("len after close: got %d", hub.Len())
	}
	if _, ok := <-sub.Events(); ok {
		t.Fatal("events channel should be closed")
	}
	// publishing after close must not panic
	hub.Publish(msg("x", "u1"))
}

func TestHubCloseClosesSubscriptions(t *testing.T) {
	hub := NewHub(4, nil)
	a := hub.Subscribe(Filter{})
	b := hub.Subscribe(Filter{UserID: "u1"})
	hub.Close()
	for _, sub := range []*Subscription{a, b} {
		if _, ok := <-sub.Events(); ok {
			t.Fatal("subscription still open after hub close")
		}
	}
}

func TestParseTopic(t *testing.T) {
	cases := []struct {
		topic string
		want  Filter
		ok    bool
	}{
		{"messages", Filter{}, true},
		{"messages:u1", Filter{UserID: "u1"}, true},
		{"messages:", Filter{}, false},
		{"tickets", Filter{}, false},
	}
	for _, tc := range cases {
		got, ok := ParseTopic(tc.topic)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseTopic(%q) = %+v, %v", tc.topic, got, ok)
		}
		if ok && TopicFor(got) != tc.topic {
			t.Errorf("TopicFor(%+v) = %q", got, TopicFor(got))
		}
	}
}
