package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ledgerline/banking-support/internal/domain"
)

func TestMemoryMessageRepositoryOrdering(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ticks := []time.Time{base, base, base.Add(-time.Second), base.Add(time.Second)}
	i := 0
	repo := NewMemoryMessageRepository().WithClock(func() time.Time {
		now := ticks[i]
		i++
		return now
	})

	contents := []string{"a", "b", "c", "d"}
	for _, c := range contents {
		msg := &domain.Message{UserID: "u1", Content: c, Kind: domain.MessageKindText}
		if err := repo.Append(ctx, msg); err != nil {
			t.Fatalf("append %s: %v", c, err)
		}
		if msg.ID == "" || msg.CreatedAt.IsZero() {
			t.Fatalf("append %s did not stamp id/created_at", c)
		}
	}

	thread, err := repo.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(thread) != len(contents) {
		t.Fatalf("thread length: got %d", len(thread))
	}
	for idx, msg := range thread {
		if msg.Content != contents[idx] {
			t.Fatalf("position %d: got %q, want %q", idx, msg.Content, contents[idx])
		}
	}
	if thread[2].CreatedAt.Before(thread[1].CreatedAt) {
		t.Fatal("clock regression leaked into created_at")
	}

	newest, _ := repo.ListNewestFirst(ctx)
	if newest[0].Content != "d" || newest[len(newest)-1].Content != "a" {
		t.Fatalf("newest first: got %q..%q", newest[0].Content, newest[len(newest)-1].Content)
	}
}

func TestMemoryMessageRepositoryUnknownUser(t *testing.T) {
	thread, err := NewMemoryMessageRepository().ListByUser(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if thread == nil || len(thread) != 0 {
		t.Fatalf("expected empty non-nil thread, got %#v", thread)
	}
}

func TestMemoryRequestRepositoryReviewOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRequestRepository()
	req := &domain.ServiceRequest{
		Kind:      domain.RequestKindLoan,
		UserID:    "u1",
		Amount:    2500,
		Documents: []string{"http://files/loan.pdf"},
		Status:    domain.RequestStatusUnderReview,
	}
	if err := repo.Create(ctx, req); err != nil {
		t.Fatalf("Create: %v", err)
	}

	at := time.Now().UTC()
	if err := repo.MarkReviewed(ctx, domain.RequestKindLoan, req.ID, "s1", at); err != nil {
		t.Fatalf("MarkReviewed: %v", err)
	}
	if err := repo.MarkReviewed(ctx, domain.RequestKindLoan, req.ID, "s1", at); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("second review: got %v, want ErrNoRows", err)
	}

	got, err := repo.GetByID(ctx, domain.RequestKindLoan, req.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.RequestStatusReviewed || got.ReviewedBy == nil || *got.ReviewedBy != "s1" {
		t.Fatalf("review not recorded: %+v", got)
	}

	if _, err := repo.GetByID(ctx, domain.RequestKindGrant, req.ID); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("lookup under wrong kind: got %v", err)
	}
	if err := repo.Create(ctx, &domain.ServiceRequest{Kind: "mortgage"}); err == nil {
		t.Fatal("unknown kind should be rejected")
	}
}

func TestMemorySupportTicketRepositoryPaging(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySupportTicketRepository()
	for _, subject := range []string{"one", "two", "three"} {
		if err := repo.Create(ctx, &domain.SupportTicket{UserID: "u1", Subject: subject}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	_ = repo.Create(ctx, &domain.SupportTicket{UserID: "u2", Subject: "other"})

	page, _ := repo.ListByUser(ctx, "u1", 2, 0)
	if len(page) != 2 || page[0].Subject != "three" {
		t.Fatalf("first page: %+v", page)
	}
	page, _ = repo.ListByUser(ctx, "u1", 2, 2)
	if len(page) != 1 || page[0].Subject != "one" {
		t.Fatalf("second page: %+v", page)
	}
	page, _ = repo.ListByUser(ctx, "u1", 2, 10)
	if len(page) != 0 {
		t.Fatalf("past the end: %+v", page)
	}
}

func TestMemoryUserRepositoryEmailLookup(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	user := &domain.User{Name: "Ada", Email: "Ada@Example.com", Status: domain.UserStatusActive}
	if err := repo.Create(ctx, user); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := repo.GetByEmail(ctx, "ada@example.com")
	if err != nil || got.ID != user.ID {
		t.Fatalf("GetByEmail: %v %+v", err, got)
	}
	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("GetByID missing: %v", err)
	}
	byID, _ := repo.ListByIDs(ctx, []string{user.ID, "missing"})
	if len(byID) != 1 || byID[user.ID].Name != "Ada" {
		t.Fatalf("ListByIDs: %+v", byID)
	}
}
