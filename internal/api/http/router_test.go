package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ledgerline/banking-support/internal/api/dto"
	"github.com/ledgerline/banking-support/internal/api/http/handlers"
	"github.com/ledgerline/banking-support/internal/auth"
	"github.com/ledgerline/banking-support/internal/config"
	"github.com/ledgerline/banking-support/internal/domain"
	"github.com/ledgerline/banking-support/internal/events"
	"github.com/ledgerline/banking-support/internal/observability"
	"github.com/ledgerline/banking-support/internal/persistence"
	"github.com/ledgerline/banking-support/internal/realtime"
	"github.com/ledgerline/banking-support/internal/repository"
	"github.com/ledgerline/banking-support/internal/service"
	"github.com/ledgerline/banking-support/internal/storage"
)

const publicBase = "http://files.test/storage/v1/object/public"

type testServer struct {
	app   *fiber.App
	authS *service.AuthService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	users := repository.NewMemoryUserRepository()
	staff := repository.NewMemoryStaffRepository()
	authService := service.NewAuthService(
		config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTLMinutes: 5, BcryptCost: 4},
		service.AuthDependencies{UserRepo: users, StaffRepo: staff, Logger: logger},
	)

	store := storage.NewDiskStore(t.TempDir(), publicBase)
	uploader := storage.NewUploader(store, 1<<20, logger, metrics)
	hub := realtime.NewHub(16, metrics)
	messages := service.NewMessageService(service.MessageDependencies{
		Repo:       repository.NewMemoryMessageRepository(),
		Broker:     realtime.NewBroker(hub, nil, "", logger),
		Uploader:   uploader,
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    metrics,
	})
	support := service.NewSupportService(repository.NewMemorySupportTicketRepository(), dispatcher, logger, metrics)
	requests := service.NewRequestService(repository.NewMemoryRequestRepository(), uploader, dispatcher, logger, metrics)

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 0)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("banking-support", "test", &persistence.Postgres{}, nil),
		Users:          handlers.NewUsersHandler(authService),
		Staff:          handlers.NewStaffHandler(authService),
		Chat:           handlers.NewChatHandler(messages),
		Inbox:          handlers.NewInboxHandler(messages),
		Tickets:        handlers.NewTicketsHandler(support),
		Requests:       handlers.NewRequestsHandler(requests),
		Storage:        handlers.NewStorageHandler(store),
		Metrics:        metrics,
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), users, staff),
	})
	return &testServer{app: app, authS: authService}
}

func (s *testServer) do(t *testing.T, method, path, token string, body io.Reader, contentType string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set(fiber.HeaderContentType, contentType)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, raw
}

func (s *testServer) doJSON(t *testing.T, method, path, token string, payload any) (int, []byte) {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	return s.do(t, method, path, token, body, fiber.MIMEApplicationJSON)
}

func (s *testServer) registerCustomer(t *testing.T, email string) (string, string) {
	t.Helper()
	status, raw := s.doJSON(t, fiber.MethodPost, "/auth/users/register", "", dto.UserRegisterRequest{
		Name: "Dana", Email: email, Password: "correct-horse",
	})
	if status != fiber.StatusCreated {
		t.Fatalf("register: %d %s", status, raw)
	}
	var resp dto.Envelope[dto.UserAuthResponse]
	decode(t, raw, &resp)
	return resp.Data.User.ID, resp.Data.Auth.Token
}

func (s *testServer) staffToken(t *testing.T) string {
	t.Helper()
	if _, err := s.authS.EnsureStaff(context.Background(), "Agent", "agent@bank.test", "agent-password", domain.StaffRoleAgent); err != nil {
		t.Fatalf("EnsureStaff: %v", err)
	}
	status, raw := s.doJSON(t, fiber.MethodPost, "/auth/staff/login", "", dto.StaffLoginRequest{
		Email: "agent@bank.test", Password: "agent-password",
	})
	if status != fiber.StatusOK {
		t.Fatalf("staff login: %d %s", status, raw)
	}
	var resp dto.Envelope[dto.StaffAuthResponse]
	decode(t, raw, &resp)
	return resp.Data.Auth.Token
}

func decode(t *testing.T, raw []byte, out any) {
	t.Helper()
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
}

func errorCode(t *testing.T, raw []byte) string {
	t.Helper()
	var body dto.ErrorBody
	decode(t, raw, &body)
	return body.Error.Code
}

func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("field: %v", err)
		}
	}
	for field, name := range files {
		part, err := w.CreateFormFile(field, name)
		if err != nil {
			t.Fatalf("file: %v", err)
		}
		_, _ = part.Write([]byte("contents of " + name))
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return buf, w.FormDataContentType()
}

func TestCustomerChatRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	userID, token := srv.registerCustomer(t, "dana@bank.test")

	status, raw := srv.doJSON(t, fiber.MethodGet, "/chat/messages", token, nil)
	if status != fiber.StatusOK {
		t.Fatalf("list: %d %s", status, raw)
	}
	var empty dto.Envelope[dto.MessageListResponse]
	decode(t, raw, &empty)
	if empty.Data.Messages == nil || len(empty.Data.Messages) != 0 {
		t.Fatalf("expected empty, non-null thread: %s", raw)
	}

	status, raw = srv.doJSON(t, fiber.MethodPost, "/chat/messages", token, dto.SendMessageRequest{Content: "Hello"})
	if status != fiber.StatusCreated {
		t.Fatalf("send: %d %s", status, raw)
	}
	var sent dto.Envelope[domain.Message]
	decode(t, raw, &sent)
	if sent.Data.UserID != userID || sent.Data.Kind != domain.MessageKindText || sent.Data.IsFromStaff {
		t.Fatalf("sent: %+v", sent.Data)
	}

	_, raw = srv.doJSON(t, fiber.MethodGet, "/chat/messages", token, nil)
	var thread dto.Envelope[dto.MessageListResponse]
	decode(t, raw, &thread)
	if len(thread.Data.Messages) != 1 || thread.Data.Messages[0].Content != "Hello" {
		t.Fatalf("thread: %s", raw)
	}
}

func TestRejectsBlankMessage(t *testing.T) {
	srv := newTestServer(t)
	_, token := srv.registerCustomer(t, "dana@bank.test")

	status, raw := srv.doJSON(t, fiber.MethodPost, "/chat/messages", token, dto.SendMessageRequest{Content: "  "})
	if status != fiber.StatusBadRequest || errorCode(t, raw) != "VALIDATION_FAILED" {
		t.Fatalf("got %d %s", status, raw)
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/chat/messages", "/support/tickets", "/admin/conversations", "/auth/session"} {
		status, raw := srv.doJSON(t, fiber.MethodGet, path, "", nil)
		if status != fiber.StatusUnauthorized || errorCode(t, raw) != "AUTH_REQUIRED" {
			t.Errorf("%s: got %d %s", path, status, raw)
		}
	}
	status, raw := srv.doJSON(t, fiber.MethodGet, "/chat/messages", "not-a-jwt", nil)
	if status != fiber.StatusUnauthorized || errorCode(t, raw) != "AUTH_REQUIRED" {
		t.Fatalf("bad token: %d %s", status, raw)
	}
}

func TestSessionAccessor(t *testing.T) {
	srv := newTestServer(t)
	userID, token := srv.registerCustomer(t, "dana@bank.test")

	status, raw := srv.doJSON(t, fiber.MethodGet, "/auth/session", token, nil)
	if status != fiber.StatusOK {
		t.Fatalf("session: %d %s", status, raw)
	}
	var sess dto.Envelope[dto.SessionResponse]
	decode(t, raw, &sess)
	if sess.Data.ID != userID || sess.Data.SubjectType != domain.SubjectTypeUser || sess.Data.Role != nil {
		t.Fatalf("session: %+v", sess.Data)
	}

	_, raw = srv.doJSON(t, fiber.MethodGet, "/auth/session", srv.staffToken(t), nil)
	decode(t, raw, &sess)
	if sess.Data.SubjectType != domain.SubjectTypeStaff || sess.Data.Role == nil || *sess.Data.Role != domain.StaffRoleAgent {
		t.Fatalf("staff session: %+v", sess.Data)
	}
}

func TestStaffInboxAndReply(t *testing.T) {
	srv := newTestServer(t)
	aliceID, aliceToken := srv.registerCustomer(t, "alice@bank.test")
	bobID, bobToken := srv.registerCustomer(t, "bob@bank.test")
	staff := srv.staffToken(t)

	srv.doJSON(t, fiber.MethodPost, "/chat/messages", aliceToken, dto.SendMessageRequest{Content: "card lost"})
	srv.doJSON(t, fiber.MethodPost, "/chat/messages", bobToken, dto.SendMessageRequest{Content: "loan status?"})

	status, raw := srv.doJSON(t, fiber.MethodGet, "/admin/conversations", staff, nil)
	if status != fiber.StatusOK {
		t.Fatalf("conversations: %d %s", status, raw)
	}
	var inbox dto.Envelope[dto.ConversationListResponse]
	decode(t, raw, &inbox)
	convs := inbox.Data.Conversations
	if len(convs) != 2 || convs[0].UserID != bobID || convs[1].UserID != aliceID {
		t.Fatalf("conversations: %+v", convs)
	}

	status, raw = srv.doJSON(t, fiber.MethodPost, "/admin/conversations/"+aliceID+"/messages", staff, dto.SendMessageRequest{Content: "Card blocked."})
	if status != fiber.StatusCreated {
		t.Fatalf("reply: %d %s", status, raw)
	}

	_, raw = srv.doJSON(t, fiber.MethodGet, "/chat/messages", aliceToken, nil)
	var thread dto.Envelope[dto.MessageListResponse]
	decode(t, raw, &thread)
	if len(thread.Data.Messages) != 2 || !thread.Data.Messages[1].IsFromStaff {
		t.Fatalf("alice thread: %s", raw)
	}

	_, raw = srv.doJSON(t, fiber.MethodGet, "/chat/messages", bobToken, nil)
	decode(t, raw, &thread)
	if len(thread.Data.Messages) != 1 {
		t.Fatalf("bob sees other threads: %s", raw)
	}
}

func TestRoleSeparation(t *testing.T) {
	srv := newTestServer(t)
	_, customer := srv.registerCustomer(t, "dana@bank.test")
	staff := srv.staffToken(t)

	status, raw := srv.doJSON(t, fiber.MethodGet, "/admin/conversations", customer, nil)
	if status != fiber.StatusForbidden || errorCode(t, raw) != "FORBIDDEN" {
		t.Fatalf("customer on admin: %d %s", status, raw)
	}
	status, raw = srv.doJSON(t, fiber.MethodGet, "/chat/messages", staff, nil)
	if status != fiber.StatusForbidden {
		t.Fatalf("staff on customer chat: %d %s", status, raw)
	}
}

func TestSupportTickets(t *testing.T) {
	srv := newTestServer(t)
	userID, token := srv.registerCustomer(t, "dana@bank.test")

	status, raw := srv.doJSON(t, fiber.MethodPost, "/support/tickets", token, dto.CreateSupportTicketRequest{Subject: "", Message: "help"})
	if status != fiber.StatusBadRequest || errorCode(t, raw) != "VALIDATION_FAILED" {
		t.Fatalf("blank subject: %d %s", status, raw)
	}

	status, raw = srv.doJSON(t, fiber.MethodPost, "/support/tickets", token, dto.CreateSupportTicketRequest{
		Subject: "Card blocked", Message: "Please help", Priority: "high",
	})
	if status != fiber.StatusCreated {
		t.Fatalf("create: %d %s", status, raw)
	}
	var ticket dto.Envelope[dto.SupportTicketResponse]
	decode(t, raw, &ticket)
	if ticket.Data.UserID != userID || ticket.Data.Status != domain.TicketStatusOpen || ticket.Data.Priority != domain.TicketPriorityHigh {
		t.Fatalf("ticket: %+v", ticket.Data)
	}

	_, raw = srv.doJSON(t, fiber.MethodGet, "/support/tickets", token, nil)
	var list dto.Envelope[[]dto.SupportTicketResponse]
	decode(t, raw, &list)
	if len(list.Data) != 1 {
		t.Fatalf("list: %s", raw)
	}
}

func TestImageMessageIsServedPublicly(t *testing.T) {
	srv := newTestServer(t)
	userID, token := srv.registerCustomer(t, "dana@bank.test")

	body, ct := multipartBody(t, nil, map[string]string{"file": "cheque photo.jpg"})
	status, raw := srv.do(t, fiber.MethodPost, "/chat/images", token, body, ct)
	if status != fiber.StatusCreated {
		t.Fatalf("image: %d %s", status, raw)
	}
	var msg dto.Envelope[domain.Message]
	decode(t, raw, &msg)
	if msg.Data.Kind != domain.MessageKindImage || !strings.HasPrefix(msg.Data.Content, publicBase+"/chat-uploads/"+userID+"/") {
		t.Fatalf("image message: %+v", msg.Data)
	}

	u, err := url.Parse(msg.Data.Content)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	status, raw = srv.do(t, fiber.MethodGet, u.EscapedPath(), "", nil, "")
	if status != fiber.StatusOK || string(raw) != "contents of cheque photo.jpg" {
		t.Fatalf("public object: %d %q", status, raw)
	}

	status, _ = srv.do(t, fiber.MethodGet, "/storage/v1/object/public/chat-uploads/"+userID+"/missing.jpg", "", nil, "")
	if status != fiber.StatusNotFound {
		t.Fatalf("missing object: %d", status)
	}
}

func TestImageWithoutFileIsRejected(t *testing.T) {
	srv := newTestServer(t)
	_, token := srv.registerCustomer(t, "dana@bank.test")

	body, ct := multipartBody(t, map[string]string{"note": "x"}, nil)
	status, raw := srv.do(t, fiber.MethodPost, "/chat/images", token, body, ct)
	if status != fiber.StatusBadRequest || errorCode(t, raw) != "VALIDATION_FAILED" {
		t.Fatalf("got %d %s", status, raw)
	}
}

func TestLoanRequestAndReview(t *testing.T) {
	srv := newTestServer(t)
	_, token := srv.registerCustomer(t, "dana@bank.test")
	staff := srv.staffToken(t)

	body, ct := multipartBody(t, map[string]string{"amount": "2500", "details[purpose]": "car"}, nil)
	status, raw := srv.do(t, fiber.MethodPost, "/requests/loan", token, body, ct)
	if status != fiber.StatusBadRequest {
		t.Fatalf("loan without documents: %d %s", status, raw)
	}

	body, ct = multipartBody(t, map[string]string{"amount": "2500", "details[purpose]": "car"}, map[string]string{"documents": "payslip.pdf"})
	status, raw = srv.do(t, fiber.MethodPost, "/requests/loan", token, body, ct)
	if status != fiber.StatusCreated {
		t.Fatalf("loan: %d %s", status, raw)
	}
	var loan dto.Envelope[dto.ServiceRequestResponse]
	decode(t, raw, &loan)
	if loan.Data.Status != domain.RequestStatusUnderReview || loan.Data.Details["purpose"] != "car" || len(loan.Data.Documents) != 1 {
		t.Fatalf("loan: %+v", loan.Data)
	}
	if !strings.Contains(loan.Data.Documents[0], "/loan-documents/") || !strings.Contains(loan.Data.Documents[0], "/loan_") {
		t.Fatalf("document url: %s", loan.Data.Documents[0])
	}

	reviewPath := "/admin/requests/loan/" + loan.Data.ID + "/review"
	status, raw = srv.doJSON(t, fiber.MethodPost, reviewPath, staff, nil)
	if status != fiber.StatusOK {
		t.Fatalf("review: %d %s", status, raw)
	}
	decode(t, raw, &loan)
	if loan.Data.Status != domain.RequestStatusReviewed || loan.Data.ReviewedBy == nil {
		t.Fatalf("reviewed: %+v", loan.Data)
	}

	status, _ = srv.doJSON(t, fiber.MethodPost, reviewPath, staff, nil)
	if status != fiber.StatusBadRequest {
		t.Fatalf("second review: %d", status)
	}
	status, _ = srv.doJSON(t, fiber.MethodPost, "/admin/requests/loan/does-not-exist/review", staff, nil)
	if status != fiber.StatusNotFound {
		t.Fatalf("unknown request: %d", status)
	}

	_, raw = srv.doJSON(t, fiber.MethodGet, "/requests/loan", token, nil)
	var list dto.Envelope[[]dto.ServiceRequestResponse]
	decode(t, raw, &list)
	if len(list.Data) != 1 {
		t.Fatalf("list: %s", raw)
	}
}

func TestInvestmentMinimumAndBadAmount(t *testing.T) {
	srv := newTestServer(t)
	_, token := srv.registerCustomer(t, "dana@bank.test")

	body, ct := multipartBody(t, map[string]string{"amount": "100"}, nil)
	if status, _ := srv.do(t, fiber.MethodPost, "/requests/investment", token, body, ct); status != fiber.StatusBadRequest {
		t.Fatalf("below minimum: %d", status)
	}
	body, ct = multipartBody(t, map[string]string{"amount": "lots"}, nil)
	if status, _ := srv.do(t, fiber.MethodPost, "/requests/investment", token, body, ct); status != fiber.StatusBadRequest {
		t.Fatalf("non-numeric amount: %d", status)
	}
	body, ct = multipartBody(t, map[string]string{"amount": "750"}, nil)
	if status, raw := srv.do(t, fiber.MethodPost, "/requests/investment", token, body, ct); status != fiber.StatusCreated {
		t.Fatalf("investment: %d %s", status, raw)
	}
}

func TestHealthMetricsAndUnknownRoute(t *testing.T) {
	srv := newTestServer(t)

	status, raw := srv.doJSON(t, fiber.MethodGet, "/health/ready", "", nil)
	if status != fiber.StatusOK || !strings.Contains(string(raw), `"redis":"disabled"`) {
		t.Fatalf("ready: %d %s", status, raw)
	}

	status, raw = srv.doJSON(t, fiber.MethodGet, "/nowhere", "", nil)
	if status != fiber.StatusNotFound || errorCode(t, raw) != "NOT_FOUND" {
		t.Fatalf("unknown route: %d %s", status, raw)
	}

	status, raw = srv.do(t, fiber.MethodGet, "/metrics", "", nil, "")
	if status != fiber.StatusOK || !strings.Contains(string(raw), "banking_support_http_requests_total") {
		t.Fatalf("metrics: %d", status)
	}
}
