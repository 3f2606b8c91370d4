package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ledgerline/banking-support/internal/api/dto"
	"github.com/ledgerline/banking-support/internal/chat"
	"github.com/ledgerline/banking-support/internal/domain"
	"github.com/ledgerline/banking-support/internal/storage"
	apperrors "github.com/ledgerline/banking-support/pkg/util/errorutil"
)

var _ chat.Backend = (*Client)(nil)

// Config points the client at a running service.
type Config struct {
	BaseURL     string // HTTP API, e.g. http://localhost:8080
	RealtimeURL string // websocket gateway, e.g. ws://localhost:8081/ws
	Timeout     time.Duration
	Logger      *zap.Logger
}

// Client talks to the HTTP API and the realtime gateway on behalf of one
// signed-in customer or staff member.
type Client struct {
	baseURL     string
	realtimeURL string
	http        *http.Client
	dialer      *websocket.Dialer
	logger      *zap.Logger

	mu    sync.RWMutex
	token string
	staff bool
}

// New builds a client with no session.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		realtimeURL: cfg.RealtimeURL,
		http:        &http.Client{Timeout: timeout},
		dialer:      &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:      logger,
	}
}

// SetSession installs a bearer token. staff selects the staff endpoints.
func (c *Client) SetSession(token string, staff bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	c.staff = staff
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) isStaff() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.staff
}

// Register creates a customer account and keeps its session.
func (c *Client) Register(ctx context.Context, name, email, password string) (*dto.UserAuthResponse, error) {
	var resp dto.Envelope[dto.UserAuthResponse]
	err := c.doJSON(ctx, http.MethodPost, "/auth/users/register", dto.UserRegisterRequest{
		Name: name, Email: email, Password: password,
	}, &resp)
	if err != nil {
		return nil, err
	}
	c.SetSession(resp.Data.Auth.Token, false)
	return &resp.Data, nil
}

// Login signs a customer in and keeps the session.
func (c *Client) Login(ctx context.Context, email, password string) (*dto.UserAuthResponse, error) {
	var resp dto.Envelope[dto.UserAuthResponse]
	err := c.doJSON(ctx, http.MethodPost, "/auth/users/login", dto.UserLoginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	c.SetSession(resp.Data.Auth.Token, false)
	return &resp.Data, nil
}

// LoginStaff signs a staff member in and keeps the session.
func (c *Client) LoginStaff(ctx context.Context, email, password string) (*dto.StaffAuthResponse, error) {
	var resp dto.Envelope[dto.StaffAuthResponse]
	err := c.doJSON(ctx, http.MethodPost, "/auth/staff/login", dto.StaffLoginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	c.SetSession(resp.Data.Auth.Token, true)
	return &resp.Data, nil
}

// Session returns whoever the current token belongs to.
func (c *Client) Session(ctx context.Context) (*dto.SessionResponse, error) {
	var resp dto.Envelope[dto.SessionResponse]
	if err := c.doJSON(ctx, http.MethodGet, "/auth/session", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// SubmitTicket files a support ticket for the signed-in customer.
func (c *Client) SubmitTicket(ctx context.Context, req dto.CreateSupportTicketRequest) (*dto.SupportTicketResponse, error) {
	var resp dto.Envelope[dto.SupportTicketResponse]
	if err := c.doJSON(ctx, http.MethodPost, "/support/tickets", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// AppendMessage posts a customer message, or a staff reply when draft.IsFromStaff.
// Image drafts carry a URL returned by UploadAttachment.
func (c *Client) AppendMessage(ctx context.Context, draft domain.MessageDraft) (*domain.Message, error) {
	if field, reason, ok := draft.Validate(); !ok {
		return nil, apperrors.NewValidationError(reason, map[string]any{"field": field})
	}

	path := "/chat/messages"
	if draft.IsFromStaff {
		path = "/admin/conversations/" + url.PathEscape(draft.UserID) + "/messages"
	}

	var resp dto.Envelope[domain.Message]
	err := c.doJSON(ctx, http.MethodPost, path, dto.SendMessageRequest{Content: draft.Content, Type: draft.Kind}, &resp)
	if err != nil {
		return nil, asWriteFailed(err)
	}
	return &resp.Data, nil
}

// SendImage uploads file and posts it as an image message in one call.
func (c *Client) SendImage(ctx context.Context, file storage.File) (*domain.Message, error) {
	var resp dto.Envelope[domain.Message]
	if err := c.doUpload(ctx, "/chat/images", file, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// FetchThread returns one thread, oldest first. Customers always get their
// own thread; userID selects the thread for staff.
func (c *Client) FetchThread(ctx context.Context, userID string) ([]domain.Message, error) {
	path := "/chat/messages"
	if c.isStaff() {
		path = "/admin/conversations/" + url.PathEscape(userID) + "/messages"
	}
	var resp dto.Envelope[dto.MessageListResponse]
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data.Messages, nil
}

// FetchAllLatestPerUser returns the staff inbox summaries.
func (c *Client) FetchAllLatestPerUser(ctx context.Context) ([]domain.ConversationSummary, error) {
	var resp dto.Envelope[dto.ConversationListResponse]
	if err := c.doJSON(ctx, http.MethodGet, "/admin/conversations", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data.Conversations, nil
}

// UploadAttachment stores file in the caller's chat folder and returns its
// public URL. The server derives the owner from the session, so ownerID is
// only checked for presence.
func (c *Client) UploadAttachment(ctx context.Context, ownerID string, file storage.File) (string, error) {
	if strings.TrimSpace(ownerID) == "" {
		return "", apperrors.NewValidationError("owner required", map[string]any{"field": "owner_id"})
	}
	var resp dto.Envelope[struct {
		URL string `json:"url"`
	}]
	if err := c.doUpload(ctx, "/chat/attachments", file, &resp); err != nil {
		return "", err
	}
	return resp.Data.URL, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	return c.do(ctx, method, path, body, "application/json", out)
}

func (c *Client) doUpload(ctx context.Context, path string, file storage.File, out any) error {
	if file.Body == nil || strings.TrimSpace(file.Name) == "" {
		return apperrors.NewValidationError("file required", map[string]any{"field": "file"})
	}
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	part, err := w.CreateFormFile("file", file.Name)
	if err != nil {
		return apperrors.NewUploadFailed(err)
	}
	if _, err := io.Copy(part, file.Body); err != nil {
		return apperrors.NewUploadFailed(err)
	}
	if err := w.Close(); err != nil {
		return apperrors.NewUploadFailed(err)
	}

	err = c.do(ctx, http.MethodPost, path, buf, w.FormDataContentType(), out)
	var domainErr *apperrors.DomainError
	if err != nil && !errors.As(err, &domainErr) {
		return apperrors.NewUploadFailed(err)
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// decodeError rebuilds the server's DomainError from the error envelope.
func decodeError(resp *http.Response) error {
	var body dto.ErrorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error.Code == "" {
		code := apperrors.CodeInternal
		if resp.StatusCode == http.StatusUnauthorized {
			code = apperrors.CodeAuthRequired
		}
		return apperrors.NewDomainError(code, resp.Status, resp.StatusCode, nil)
	}
	return apperrors.NewDomainError(body.Error.Code, body.Error.Message, resp.StatusCode, body.Error.Details)
}

// asWriteFailed keeps server-side domain errors and reports transport
// failures as WRITE_FAILED.
func asWriteFailed(err error) error {
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	return apperrors.NewWriteFailed("message could not be sent", err)
}
