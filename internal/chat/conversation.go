package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/ledgerline/banking-support/internal/domain"
	"github.com/ledgerline/banking-support/internal/realtime"
	"github.com/ledgerline/banking-support/internal/storage"
	apperrors "github.com/ledgerline/banking-support/pkg/util/errorutil"
)

// State is the lifecycle of a conversation view.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// CustomerConversation is a customer's view of their own support thread.
type CustomerConversation struct {
	backend Backend
	userID  string

	mu       sync.Mutex
	state    State
	messages []domain.Message
	seen     map[string]struct{}
	input    string
	lastErr  error
	sub      Subscription
}

// NewCustomerConversation builds an idle view for userID.
func NewCustomerConversation(backend Backend, userID string) *CustomerConversation {
	return &CustomerConversation{backend: backend, userID: userID, seen: make(map[string]struct{})}
}

// Open subscribes to the customer's thread and loads it. The subscription is
// opened first so nothing inserted during the fetch is missed; duplicates are
// dropped by id. A failed fetch leaves the view in StateFailed and Open may be
// called again.
func (c *CustomerConversation) Open(ctx context.Context) error {
	c.mu.Lock()
	c.state = StateLoading
	needSub := c.sub == nil
	c.mu.Unlock()

	if needSub {
		sub, err := c.backend.Subscribe(ctx, realtime.Filter{UserID: c.userID})
		if err != nil {
			c.fail(err)
			return err
		}
		c.mu.Lock()
		c.sub = sub
		c.mu.Unlock()
	}
	return c.reload(ctx)
}

func (c *CustomerConversation) reload(ctx context.Context) error {
	thread, err := c.backend.FetchThread(ctx, c.userID)
	if err != nil {
		c.fail(err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.mergeLocked(thread)
	c.state = StateReady
	c.lastErr = nil
	return nil
}

// mergeLocked replaces the thread with snapshot, then re-appends in arrival
// order every local message the snapshot does not hold yet. Inserts and
// sends applied while the fetch was in flight survive a stale snapshot.
func (c *CustomerConversation) mergeLocked(snapshot []domain.Message) {
	merged := make([]domain.Message, 0, len(snapshot)+len(c.messages))
	seen := make(map[string]struct{}, len(snapshot)+len(c.messages))
	for _, m := range snapshot {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		merged = append(merged, m)
	}
	for _, m := range c.messages {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		merged = append(merged, m)
	}
	c.messages = merged
	c.seen = seen
}

func (c *CustomerConversation) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateFailed
	c.lastErr = err
}

// Events exposes the change feed so an event loop can pass each event to
// HandleEvent. It is nil before Open.
func (c *CustomerConversation) Events() <-chan realtime.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub == nil {
		return nil
	}
	return c.sub.Events()
}

// HandleEvent applies one change-feed event. Inserts for this customer are
// appended in arrival order; a resync reloads the thread.
func (c *CustomerConversation) HandleEvent(ctx context.Context, ev realtime.Event) error {
	if ev.Type == realtime.EventResync {
		return c.reload(ctx)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appendLocked(ev.Message)
	return nil
}

// Listen applies events until the subscription closes or ctx ends.
// onChange, when set, runs after every applied event.
func (c *CustomerConversation) Listen(ctx context.Context, onChange func()) {
	events := c.Events()
	if events == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = c.HandleEvent(ctx, ev)
			if onChange != nil {
				onChange()
			}
		}
	}
}

func (c *CustomerConversation) appendLocked(msg domain.Message) {
	if msg.UserID != c.userID || msg.ID == "" {
		return
	}
	if _, dup := c.seen[msg.ID]; dup {
		return
	}
	c.seen[msg.ID] = struct{}{}
	c.messages = append(c.messages, msg)
}

// SetInput replaces the pending text.
func (c *CustomerConversation) SetInput(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input = text
}

// Input returns the pending text.
func (c *CustomerConversation) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// Send clears the input straight away and appends it as a text message. If
// the write fails the text is put back so the customer can retry.
func (c *CustomerConversation) Send(ctx context.Context) error {
	c.mu.Lock()
	text := c.input
	if strings.TrimSpace(text) == "" {
		c.mu.Unlock()
		return apperrors.NewValidationError("message content required", map[string]any{"field": "content"})
	}
	c.input = ""
	c.mu.Unlock()

	msg, err := c.backend.AppendMessage(ctx, domain.MessageDraft{
		UserID:  c.userID,
		Content: text,
		Kind:    domain.MessageKindText,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if c.input == "" {
			c.input = text
		}
		c.lastErr = err
		return err
	}
	c.appendLocked(*msg)
	return nil
}

// SendImage uploads file and appends an image message only after the upload succeeded.
func (c *CustomerConversation) SendImage(ctx context.Context, file storage.File) error {
	url, err := c.backend.UploadAttachment(ctx, c.userID, file)
	if err != nil {
		c.setErr(err)
		return err
	}
	msg, err := c.backend.AppendMessage(ctx, domain.MessageDraft{
		UserID:  c.userID,
		Content: url,
		Kind:    domain.MessageKindImage,
	})
	if err != nil {
		c.setErr(err)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.appendLocked(*msg)
	return nil
}

func (c *CustomerConversation) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err
}

// Messages returns a copy of the thread as displayed.
func (c *CustomerConversation) Messages() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Message(nil), c.messages...)
}

// State reports the view state.
func (c *CustomerConversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the last failure, if any.
func (c *CustomerConversation) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Close releases the subscription. Safe to call more than once.
func (c *CustomerConversation) Close() {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	c.state = StateIdle
	c.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
}
