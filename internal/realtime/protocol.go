package realtime

import (
	"encoding/json"
	"strings"

	"github.com/ledgerline/banking-support/internal/domain"
)

// Frame is the websocket envelope in both directions.
type Frame struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Ref     string          `json:"ref,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client frame events.
const (
	FrameJoin      = "join"
	FrameLeave     = "leave"
	FrameHeartbeat = "heartbeat"
)

// Server frame events. Inserts and resyncs use the EventType values.
const (
	FrameReply = "reply"
)

// TopicAll is the staff-only feed of every thread.
const TopicAll = domain.AllThreadsFeed

// UserTopic names the feed of a single customer thread.
func UserTopic(userID string) string {
	return domain.ThreadFeed(userID)
}

// ParseTopic turns a topic into a Filter.
func ParseTopic(topic string) (Filter, bool) {
	if topic == TopicAll {
		return Filter{}, true
	}
	userID, ok := strings.CutPrefix(topic, TopicAll+":")
	if !ok || userID == "" {
		return Filter{}, false
	}
	return Filter{UserID: userID}, true
}

// TopicFor is the inverse of ParseTopic.
func TopicFor(filter Filter) string {
	if filter.UserID == "" {
		return TopicAll
	}
	return UserTopic(filter.UserID)
}

// ReplyPayload acknowledges a client frame.
type ReplyPayload struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func newFrame(topic, event, ref string, payload any) ([]byte, error) {
	frame := Frame{Topic: topic, Event: event, Ref: ref}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		frame.Payload = raw
	}
	return json.Marshal(frame)
}
