package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()
	m.MessageAppended("text", false)
	m.MessageAppended("text", false)
	m.MessageAppended("image", true)
	m.UploadFinished("chat-uploads", nil)
	m.UploadFinished("chat-uploads", errors.New("disk full"))
	m.RecordRequest("/chat/messages", "POST", 201, 20*time.Millisecond)

	if got := testutil.ToFloat64(m.messages.WithLabelValues("text", "customer")); got != 2 {
		t.Fatalf("customer text messages: got %v", got)
	}
	if got := testutil.ToFloat64(m.messages.WithLabelValues("image", "staff")); got != 1 {
		t.Fatalf("staff image messages: got %v", got)
	}
	if got := testutil.ToFloat64(m.uploads.WithLabelValues("chat-uploads", "failed")); got != 1 {
		t.Fatalf("failed uploads: got %v", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "/chat/messages", "201")); got != 1 {
		t.Fatalf("http requests: got %v", got)
	}
}

func TestMetricsSubscriptionGauge(t *testing.T) {
	m := NewMetrics()
	m.SubscriptionOpened()
	m.SubscriptionOpened()
	m.SubscriptionClosed()
	if got := testutil.ToFloat64(m.subscriptions); got != 1 {
		t.Fatalf("open subscriptions: got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.MessageAppended("text", true)
	m.RecordError("/x", "GET", "NOT_FOUND")
	m.SubscriptionOpened()
}
