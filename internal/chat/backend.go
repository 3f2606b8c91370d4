package chat

import (
	"context"

	"github.com/ledgerline/banking-support/internal/domain"
	"github.com/ledgerline/banking-support/internal/realtime"
	"github.com/ledgerline/banking-support/internal/service"
	"github.com/ledgerline/banking-support/internal/storage"
)

// Subscription is a change-feed handle owned by the view that opened it.
type Subscription interface {
	Events() <-chan realtime.Event
	Close()
}

// Backend is everything a conversation view needs from the message store.
type Backend interface {
	AppendMessage(ctx context.Context, draft domain.MessageDraft) (*domain.Message, error)
	FetchThread(ctx context.Context, userID string) ([]domain.Message, error)
	FetchAllLatestPerUser(ctx context.Context) ([]domain.ConversationSummary, error)
	Subscribe(ctx context.Context, filter realtime.Filter) (Subscription, error)
	UploadAttachment(ctx context.Context, ownerID string, file storage.File) (string, error)
}

// LocalBackend serves views running in the same process as the message service.
type LocalBackend struct {
	messages *service.MessageService
}

// NewLocalBackend wraps a MessageService.
func NewLocalBackend(messages *service.MessageService) *LocalBackend {
	return &LocalBackend{messages: messages}
}

func (b *LocalBackend) AppendMessage(ctx context.Context, draft domain.MessageDraft) (*domain.Message, error) {
	return b.messages.AppendMessage(ctx, draft)
}

func (b *LocalBackend) FetchThread(ctx context.Context, userID string) ([]domain.Message, error) {
	return b.messages.FetchThread(ctx, userID)
}

func (b *LocalBackend) FetchAllLatestPerUser(ctx context.Context) ([]domain.ConversationSummary, error) {
	return b.messages.FetchAllLatestPerUser(ctx)
}

func (b *LocalBackend) Subscribe(ctx context.Context, filter realtime.Filter) (Subscription, error) {
	sub, err := b.messages.Subscribe(ctx, filter)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (b *LocalBackend) UploadAttachment(ctx context.Context, ownerID string, file storage.File) (string, error) {
	return b.messages.UploadAttachment(ctx, ownerID, file)
}
