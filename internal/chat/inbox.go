package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/ledgerline/banking-support/internal/domain"
	"github.com/ledgerline/banking-support/internal/realtime"
	apperrors "github.com/ledgerline/banking-support/pkg/util/errorutil"
)

// Inbox is the staff two-pane view: every customer's latest message on the
// left and the selected customer's thread on the right. Any change-feed
// event triggers a full re-fetch of both panes.
type Inbox struct {
	backend Backend

	mu        sync.Mutex
	state     State
	summaries []domain.ConversationSummary
	selected  string
	thread    []domain.Message
	reply     string
	lastErr   error
	sub       Subscription

	// fetch generations; only the latest started fetch may apply its result
	summaryGen uint64
	threadGen  uint64
}

// NewInbox builds an idle inbox.
func NewInbox(backend Backend) *Inbox {
	return &Inbox{backend: backend}
}

// Open subscribes to all threads and loads the summary list.
func (i *Inbox) Open(ctx context.Context) error {
	i.mu.Lock()
	i.state = StateLoading
	needSub := i.sub == nil
	i.mu.Unlock()

	if needSub {
		sub, err := i.backend.Subscribe(ctx, realtime.Filter{})
		if err != nil {
			i.fail(err)
			return err
		}
		i.mu.Lock()
		i.sub = sub
		i.mu.Unlock()
	}
	return i.Refresh(ctx)
}

// Refresh re-fetches the summaries and, when a customer is selected, their thread.
// A fetch superseded by a later Refresh is discarded when it returns.
func (i *Inbox) Refresh(ctx context.Context) error {
	i.mu.Lock()
	i.summaryGen++
	gen := i.summaryGen
	i.mu.Unlock()

	summaries, err := i.backend.FetchAllLatestPerUser(ctx)
	if err != nil {
		i.fail(err)
		return err
	}

	i.mu.Lock()
	if gen != i.summaryGen {
		i.mu.Unlock()
		return nil
	}
	i.summaries = summaries
	selected := i.selected
	i.mu.Unlock()

	if selected != "" {
		if err := i.loadThread(ctx, selected); err != nil {
			return err
		}
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.state = StateReady
	i.lastErr = nil
	return nil
}

// Select switches the right pane to userID and loads that thread.
func (i *Inbox) Select(ctx context.Context, userID string) error {
	i.mu.Lock()
	if i.selected != userID {
		i.thread = nil
	}
	i.selected = userID
	i.mu.Unlock()
	return i.loadThread(ctx, userID)
}

func (i *Inbox) loadThread(ctx context.Context, userID string) error {
	i.mu.Lock()
	i.threadGen++
	gen := i.threadGen
	i.mu.Unlock()

	thread, err := i.backend.FetchThread(ctx, userID)
	if err != nil {
		i.fail(err)
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	// selection may have moved on, or a newer fetch superseded this one
	if i.selected == userID && gen == i.threadGen {
		i.thread = thread
	}
	return nil
}

func (i *Inbox) fail(err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.state = StateFailed
	i.lastErr = err
}

// Events exposes the change feed. It is nil before Open.
func (i *Inbox) Events() <-chan realtime.Event {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.sub == nil {
		return nil
	}
	return i.sub.Events()
}

// HandleEvent re-fetches regardless of the event's content.
func (i *Inbox) HandleEvent(ctx context.Context, _ realtime.Event) error {
	return i.Refresh(ctx)
}

// Listen applies events until the subscription closes or ctx ends.
func (i *Inbox) Listen(ctx context.Context, onChange func()) {
	events := i.Events()
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
			_ = i.HandleEvent(ctx, ev)
			if onChange != nil {
				onChange()
			}
		}
	}
}

// SetReply replaces the pending reply.
func (i *Inbox) SetReply(text string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.reply = text
}

// Reply returns the pending reply.
func (i *Inbox) Reply() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.reply
}

// SendReply posts the pending reply as staff into the selected thread. Both a
// selection and non-blank text are required. The reply is cleared only once
// the write succeeds.
func (i *Inbox) SendReply(ctx context.Context) error {
	i.mu.Lock()
	text, userID := i.reply, i.selected
	i.mu.Unlock()

	if userID == "" {
		return apperrors.NewValidationError("select a conversation first", map[string]any{"field": "user_id"})
	}
	if strings.TrimSpace(text) == "" {
		return apperrors.NewValidationError("reply text required", map[string]any{"field": "content"})
	}

	if _, err := i.backend.AppendMessage(ctx, domain.MessageDraft{
		UserID:      userID,
		Content:     text,
		Kind:        domain.MessageKindText,
		IsFromStaff: true,
	}); err != nil {
		i.mu.Lock()
		i.lastErr = err
		i.mu.Unlock()
		return err
	}

	i.mu.Lock()
	if i.reply == text {
		i.reply = ""
	}
	i.mu.Unlock()
	return i.loadThread(ctx, userID)
}

// Summaries returns the left pane.
func (i *Inbox) Summaries() []domain.ConversationSummary {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]domain.ConversationSummary(nil), i.summaries...)
}

// Selected returns the customer shown in the right pane.
func (i *Inbox) Selected() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.selected
}

// Thread returns the right pane.
func (i *Inbox) Thread() []domain.Message {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]domain.Message(nil), i.thread...)
}

// State reports the view state.
func (i *Inbox) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Err returns the last failure, if any.
func (i *Inbox) Err() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastErr
}

// Close releases the subscription. Safe to call more than once.
func (i *Inbox) Close() {
	i.mu.Lock()
	sub := i.sub
	i.sub = nil
	i.state = StateIdle
	i.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
}
