package service

import (
	"context"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ledgerline/banking-support/internal/domain"
	"github.com/ledgerline/banking-support/internal/events"
	"github.com/ledgerline/banking-support/internal/observability"
	"github.com/ledgerline/banking-support/internal/realtime"
	"github.com/ledgerline/banking-support/internal/repository"
	"github.com/ledgerline/banking-support/internal/storage"
	apperrors "github.com/ledgerline/banking-support/pkg/util/errorutil"
)

const previewRunes = 80

// MessageService is the append-only message log plus its change feed.
type MessageService struct {
	repo       repository.MessageRepository
	broker     *realtime.Broker
	uploader   *storage.Uploader
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// MessageDependencies groups the collaborators of MessageService.
type MessageDependencies struct {
	Repo       repository.MessageRepository
	Broker     *realtime.Broker
	Uploader   *storage.Uploader
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// NewMessageService builds the service.
func NewMessageService(deps MessageDependencies) *MessageService {
	return &MessageService{
		repo:       deps.Repo,
		broker:     deps.Broker,
		uploader:   deps.Uploader,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
	}
}

// AppendMessage validates and stores one message, then announces it to
// subscribers of the owning thread and of the staff feed.
func (s *MessageService) AppendMessage(ctx context.Context, draft domain.MessageDraft) (*domain.Message, error) {
	if field, reason, ok := draft.Validate(); !ok {
		return nil, apperrors.NewValidationError(reason, map[string]any{"field": field})
	}

	msg := &domain.Message{
		UserID:      draft.UserID,
		Content:     draft.Content,
		Kind:        draft.Kind,
		IsFromStaff: draft.IsFromStaff,
	}
	if err := s.repo.Append(ctx, msg); err != nil {
		s.logger.Error("append message failed", zap.String("user_id", draft.UserID), zap.Error(err))
		return nil, apperrors.NewWriteFailed("message could not be sent", err)
	}

	s.metrics.MessageAppended(string(msg.Kind), msg.IsFromStaff)
	if s.broker != nil {
		s.broker.Publish(ctx, *msg)
	}
	s.emit(ctx, msg)
	return msg, nil
}

func (s *MessageService) emit(ctx context.Context, msg *domain.Message) {
	if s.dispatcher == nil {
		return
	}
	actor := events.CustomerActor(msg.UserID)
	if msg.IsFromStaff {
		actor = events.Actor{Type: domain.SubjectTypeStaff}
	}
	event := events.New(events.EventMessageAppended, msg.UserID, msg.ID, actor, events.MessageAppendedPayload{
		Kind:        msg.Kind,
		IsFromStaff: msg.IsFromStaff,
		Preview:     preview(msg.Content),
	})
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("message event handlers failed", zap.String("message_id", msg.ID), zap.Error(err))
	}
}

// SendImage uploads file into the chat bucket and, only once the upload has
// succeeded, appends an image message pointing at it.
func (s *MessageService) SendImage(ctx context.Context, userID string, fromStaff bool, file storage.File) (*domain.Message, error) {
	url, err := s.UploadAttachment(ctx, userID, file)
	if err != nil {
		return nil, err
	}
	return s.AppendMessage(ctx, domain.MessageDraft{
		UserID:      userID,
		Content:     url,
		Kind:        domain.MessageKindImage,
		IsFromStaff: fromStaff,
	})
}

// UploadAttachment stores file under ownerID and returns its public URL.
func (s *MessageService) UploadAttachment(ctx context.Context, ownerID string, file storage.File) (string, error) {
	if s.uploader == nil {
		return "", apperrors.NewUploadFailed(fmt.Errorf("no object store configured"))
	}
	att, err := s.uploader.Upload(ctx, storage.ChatBucket, ownerID, "", file)
	if err != nil {
		return "", err
	}
	return att.URL, nil
}

// FetchThread returns one customer's messages, oldest first. A store failure
// is returned rather than reported as an empty thread.
func (s *MessageService) FetchThread(ctx context.Context, userID string) ([]domain.Message, error) {
	thread, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch thread %s: %w", userID, err)
	}
	return thread, nil
}

// FetchAllLatestPerUser returns one summary per customer, most recent thread first.
func (s *MessageService) FetchAllLatestPerUser(ctx context.Context) ([]domain.ConversationSummary, error) {
	all, err := s.repo.ListNewestFirst(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch conversations: %w", err)
	}
	return SummarizeLatest(all), nil
}

// Subscribe opens a change-feed subscription. The caller must Close it.
func (s *MessageService) Subscribe(_ context.Context, filter realtime.Filter) (*realtime.Subscription, error) {
	if s.broker == nil {
		return nil, fmt.Errorf("realtime feed not configured")
	}
	return s.broker.Hub().Subscribe(filter), nil
}

// SummarizeLatest keeps the first message seen per user from a newest-first
// scan, which is that user's latest message. Output order follows the input.
func SummarizeLatest(newestFirst []domain.Message) []domain.ConversationSummary {
	seen := make(map[string]struct{})
	summaries := []domain.ConversationSummary{}
	for _, msg := range newestFirst {
		if _, ok := seen[msg.UserID]; ok {
			continue
		}
		seen[msg.UserID] = struct{}{}
		summaries = append(summaries, domain.ConversationSummary{
			UserID:    msg.UserID,
			Content:   msg.Content,
			Kind:      msg.Kind,
			CreatedAt: msg.CreatedAt,
		})
	}
	return summaries
}

func preview(content string) string {
	if utf8.RuneCountInString(content) <= previewRunes {
		return content
	}
	runes := []rune(content)
	return string(runes[:previewRunes]) + "…"
}
