package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"

	"github.com/ledgerline/banking-support/internal/api/dto"
	httptransport "github.com/ledgerline/banking-support/internal/api/http"
	"github.com/ledgerline/banking-support/internal/api/http/handlers"
	"github.com/ledgerline/banking-support/internal/auth"
	"github.com/ledgerline/banking-support/internal/chat"
	"github.com/ledgerline/banking-support/internal/config"
	"github.com/ledgerline/banking-support/internal/domain"
	"github.com/ledgerline/banking-support/internal/persistence"
	"github.com/ledgerline/banking-support/internal/realtime"
	"github.com/ledgerline/banking-support/internal/repository"
	"github.com/ledgerline/banking-support/internal/service"
	"github.com/ledgerline/banking-support/internal/storage"
	apperrors "github.com/ledgerline/banking-support/pkg/util/errorutil"
)

type stack struct {
	apiURL string
	wsURL  string
	auth   *service.AuthService
}

func newStack(t *testing.T) *stack {
	t.Helper()
	logger := zap.NewNop()

	users := repository.NewMemoryUserRepository()
	staff := repository.NewMemoryStaffRepository()
	authService := service.NewAuthService(
		config.AuthConfig{JWTSecret: "client-test", AccessTokenTTLMinutes: 5, BcryptCost: 4},
		service.AuthDependencies{UserRepo: users, StaffRepo: staff, Logger: logger},
	)
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), users, staff)

	hub := realtime.NewHub(16, nil)
	store := storage.NewDiskStore(t.TempDir(), "http://files.test/storage/v1/object/public")
	uploader := storage.NewUploader(store, 1<<20, logger, nil)
	messages := service.NewMessageService(service.MessageDependencies{
		Repo:     repository.NewMemoryMessageRepository(),
		Broker:   realtime.NewBroker(hub, nil, "", logger),
		Uploader: uploader,
		Logger:   logger,
	})

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, nil, 0)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler("banking-support", "test", &persistence.Postgres{}, nil),
		Users:          handlers.NewUsersHandler(authService),
		Staff:          handlers.NewStaffHandler(authService),
		Chat:           handlers.NewChatHandler(messages),
		Inbox:          handlers.NewInboxHandler(messages),
		Tickets:        handlers.NewTicketsHandler(service.NewSupportService(repository.NewMemorySupportTicketRepository(), nil, logger, nil)),
		Requests:       handlers.NewRequestsHandler(service.NewRequestService(repository.NewMemoryRequestRepository(), uploader, nil, logger, nil)),
		Storage:        handlers.NewStorageHandler(store),
		AuthMiddleware: authMiddleware,
	})

	api := httptest.NewServer(adaptor.FiberApp(app))
	t.Cleanup(api.Close)
	gw := httptest.NewServer(realtime.NewGateway(hub, authMiddleware, logger))
	t.Cleanup(gw.Close)

	return &stack{
		apiURL: api.URL,
		wsURL:  "ws" + strings.TrimPrefix(gw.URL, "http"),
		auth:   authService,
	}
}

func (s *stack) client() *Client {
	return New(Config{BaseURL: s.apiURL, RealtimeURL: s.wsURL, Timeout: 5 * time.Second})
}

func (s *stack) staffClient(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()
	if _, err := s.auth.EnsureStaff(ctx, "Agent", "agent@bank.test", "agent-password", domain.StaffRoleAgent); err != nil {
		t.Fatalf("EnsureStaff: %v", err)
	}
	cli := s.client()
	if _, err := cli.LoginStaff(ctx, "agent@bank.test", "agent-password"); err != nil {
		t.Fatalf("LoginStaff: %v", err)
	}
	return cli
}

// waitFor applies events from view until cond holds.
func waitFor(t *testing.T, events <-chan realtime.Event, apply func(context.Context, realtime.Event) error, cond func() bool) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for !cond() {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("subscription closed")
			}
			if err := apply(context.Background(), ev); err != nil {
				t.Fatalf("apply: %v", err)
			}
		case <-deadline:
			t.Fatal("condition not met before deadline")
		}
	}
}

func TestConversationOverTheWire(t *testing.T) {
	ctx := context.Background()
	st := newStack(t)

	customer := st.client()
	reg, err := customer.Register(ctx, "Dana", "dana@bank.test", "correct-horse")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	userID := reg.User.ID

	conv := chat.NewCustomerConversation(customer, userID)
	if err := conv.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conv.Close()

	conv.SetInput("Hello")
	if err := conv.Send(ctx); err != nil {
		t.Fatalf("Send: %v", err)
	}

	staffCli := st.staffClient(t)
	inbox := chat.NewInbox(staffCli)
	if err := inbox.Open(ctx); err != nil {
		t.Fatalf("inbox Open: %v", err)
	}
	defer inbox.Close()

	sums := inbox.Summaries()
	if len(sums) != 1 || sums[0].UserID != userID || sums[0].Content != "Hello" {
		t.Fatalf("summaries: %+v", sums)
	}
	if err := inbox.Select(ctx, userID); err != nil {
		t.Fatalf("Select: %v", err)
	}
	inbox.SetReply("How can we help?")
	if err := inbox.SendReply(ctx); err != nil {
		t.Fatalf("SendReply: %v", err)
	}

	waitFor(t, conv.Events(), conv.HandleEvent, func() bool { return len(conv.Messages()) == 2 })
	msgs := conv.Messages()
	if msgs[0].Content != "Hello" || !msgs[1].IsFromStaff || msgs[1].Content != "How can we help?" {
		t.Fatalf("customer thread: %+v", msgs)
	}
}

func TestImageOverTheWire(t *testing.T) {
	ctx := context.Background()
	st := newStack(t)
	customer := st.client()
	reg, err := customer.Register(ctx, "Dana", "dana@bank.test", "correct-horse")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	conv := chat.NewCustomerConversation(customer, reg.User.ID)
	if err := conv.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conv.Close()

	if err := conv.SendImage(ctx, storage.File{Name: "receipt.png", Body: strings.NewReader("png")}); err != nil {
		t.Fatalf("SendImage: %v", err)
	}
	msgs := conv.Messages()
	if len(msgs) != 1 || msgs[0].Kind != domain.MessageKindImage || !strings.Contains(msgs[0].Content, "/chat-uploads/"+reg.User.ID+"/") {
		t.Fatalf("image message: %+v", msgs)
	}
}

func TestErrorsCarryDomainCodes(t *testing.T) {
	ctx := context.Background()
	st := newStack(t)
	cli := st.client()

	if _, err := cli.Login(ctx, "nobody@bank.test", "whatever-pass"); !apperrors.HasCode(err, apperrors.CodeAuthRequired) {
		t.Fatalf("bad login: %v", err)
	}
	if _, err := cli.Register(ctx, "Dana", "dana@bank.test", "correct-horse"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, err := cli.SubmitTicket(ctx, dto.CreateSupportTicketRequest{Subject: "", Message: "help"})
	if !apperrors.HasCode(err, apperrors.CodeValidationFailed) {
		t.Fatalf("blank subject: %v", err)
	}
	ticket, err := cli.SubmitTicket(ctx, dto.CreateSupportTicketRequest{Subject: "Card", Message: "blocked"})
	if err != nil || ticket.Status != domain.TicketStatusOpen || ticket.Priority != domain.TicketPriorityNormal {
		t.Fatalf("ticket: %+v %v", ticket, err)
	}

	if _, err := cli.Subscribe(ctx, realtime.Filter{}); !apperrors.HasCode(err, apperrors.CodeForbidden) {
		t.Fatalf("customer on staff feed: %v", err)
	}
}

func TestTransportFailuresMapToTaxonomy(t *testing.T) {
	ctx := context.Background()
	dead := httptest.NewServer(nil)
	deadURL := dead.URL
	dead.Close()

	cli := New(Config{BaseURL: deadURL, Timeout: time.Second})
	cli.SetSession("token", false)

	_, err := cli.AppendMessage(ctx, domain.MessageDraft{UserID: "u1", Content: "hi", Kind: domain.MessageKindText})
	if !apperrors.HasCode(err, apperrors.CodeWriteFailed) {
		t.Fatalf("append: %v", err)
	}
	_, err = cli.UploadAttachment(ctx, "u1", storage.File{Name: "a.png", Body: strings.NewReader("x")})
	if !apperrors.HasCode(err, apperrors.CodeUploadFailed) {
		t.Fatalf("upload: %v", err)
	}
	if _, err := cli.FetchThread(ctx, "u1"); err == nil {
		t.Fatal("fetch against a dead server should fail")
	}
}

func TestSubscriptionCloseEndsEvents(t *testing.T) {
	ctx := context.Background()
	st := newStack(t)
	cli := st.staffClient(t)

	sub, err := cli.Subscribe(ctx, realtime.Filter{})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	sub.Close()
	sub.Close()

	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed")
	}
}

