package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailsync/api/handlers"
	"github.com/customeros/mailsync/dto"
	mailsync_errors "github.com/customeros/mailsync/errors"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/utils"
)

const testAPIKey = "secret"

type mockAccountService struct{ mock.Mock }

func (m *mockAccountService) Register(ctx context.Context, req dto.RegisterAccountRequest) (*models.Account, error) {
	args := m.Called(ctx, req)
	account, _ := args.Get(0).(*models.Account)
	return account, args.Error(1)
}

func (m *mockAccountService) GetByID(ctx context.Context, id string) (*models.Account, error) {
	args := m.Called(ctx, id)
	account, _ := args.Get(0).(*models.Account)
	return account, args.Error(1)
}

type mockSyncService struct{ mock.Mock }

func (m *mockSyncService) SyncAccount(ctx context.Context, accountID string, opts dto.SyncOptions) (*dto.SyncResult, error) {
	args := m.Called(ctx, accountID, opts)
	result, _ := args.Get(0).(*dto.SyncResult)
	return result, args.Error(1)
}

func (m *mockSyncService) GetSyncProgress(ctx context.Context, accountID string) (*dto.SyncProgress, error) {
	args := m.Called(ctx, accountID)
	progress, _ := args.Get(0).(*dto.SyncProgress)
	return progress, args.Error(1)
}

type mockAttachmentService struct{ mock.Mock }

func (m *mockAttachmentService) ProcessMessageAttachments(ctx context.Context, account *models.Account, email *models.Email, raw *dto.RawMessage, mode enum.AttachmentMode) (int, error) {
	args := m.Called(ctx, account, email, raw, mode)
	return args.Int(0), args.Error(1)
}

func (m *mockAttachmentService) DownloadAttachment(ctx context.Context, req dto.DownloadAttachmentRequest) (*dto.DownloadAttachmentResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*dto.DownloadAttachmentResult)
	return result, args.Error(1)
}

func (m *mockAttachmentService) ListByEmail(ctx context.Context, emailID string) ([]*models.EmailAttachment, error) {
	args := m.Called(ctx, emailID)
	rows, _ := args.Get(0).([]*models.EmailAttachment)
	return rows, args.Error(1)
}

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) PublishEvent(ctx context.Context, eventType, entityId string, entityType enum.EntityType, data interface{}) error {
	return m.Called(ctx, eventType, entityId, entityType, data).Error(0)
}

func (m *mockPublisher) Close() error { return nil }

type mockEmailService struct{ mock.Mock }

func (m *mockEmailService) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*models.Email, int64, error) {
	args := m.Called(ctx, accountID, limit, offset)
	emails, _ := args.Get(0).([]*models.Email)
	return emails, args.Get(1).(int64), args.Error(2)
}

func (m *mockEmailService) GetByID(ctx context.Context, id string) (*models.Email, error) {
	args := m.Called(ctx, id)
	email, _ := args.Get(0).(*models.Email)
	return email, args.Error(1)
}

type fixture struct {
	router      *gin.Engine
	accounts    *mockAccountService
	emails      *mockEmailService
	sync        *mockSyncService
	attachments *mockAttachmentService
	publisher   *mockPublisher
}

func newFixture(t *testing.T, withPublisher bool) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{
		router:      gin.New(),
		accounts:    &mockAccountService{},
		emails:      &mockEmailService{},
		sync:        &mockSyncService{},
		attachments: &mockAttachmentService{},
		publisher:   &mockPublisher{},
	}
	var h *handlers.APIHandlers
	if withPublisher {
		h = handlers.InitHandlers(f.accounts, f.emails, f.sync, f.attachments, f.publisher)
	} else {
		h = handlers.InitHandlers(f.accounts, f.emails, f.sync, f.attachments, nil)
	}
	RegisterRoutes(f.router, h, testAPIKey)
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-MAILSYNC-API-KEY", testAPIKey)
	req.Header.Set("X-USER-ID", "user_1")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthNeedsNoKey(t *testing.T) {
	f := newFixture(t, false)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIKeyRequired(t *testing.T) {
	f := newFixture(t, false)

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/accounts/acct_1", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/accounts/acct_1", nil)
	req.Header.Set("X-MAILSYNC-API-KEY", "wrong")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegisterAccount(t *testing.T) {
	f := newFixture(t, false)
	f.accounts.On("Register", mock.Anything, mock.MatchedBy(func(req dto.RegisterAccountRequest) bool {
		return req.Provider == enum.EmailGoogleWorkspace && req.EmailAddress == "a@example.com"
	})).Return(&models.Account{ID: "acct_1", Provider: enum.EmailGoogleWorkspace}, nil)

	w := f.do(http.MethodPost, "/v1/accounts", `{"provider":"google_workspace","emailAddress":"a@example.com","grantRef":"g"}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "acct_1", decode(t, w)["id"])
	ctx := f.accounts.Calls[0].Arguments.Get(0).(context.Context)
	assert.Equal(t, "user_1", utils.GetUserIdFromContext(ctx))
	assert.Equal(t, appSourceAPI, utils.GetAppSourceFromContext(ctx))
}

func TestRegisterAccount_Invalid(t *testing.T) {
	f := newFixture(t, false)
	f.accounts.On("Register", mock.Anything, mock.Anything).
		Return(nil, errors.Wrap(mailsync_errors.ErrInvalidAccount, "grantRef is required"))

	w := f.do(http.MethodPost, "/v1/accounts", `{"provider":"gmail"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/v1/accounts", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetAccount_NotFound(t *testing.T) {
	f := newFixture(t, false)
	f.accounts.On("GetByID", mock.Anything, "missing").Return(nil, errors.Wrap(mailsync_errors.ErrAccountNotFound, "missing"))

	w := f.do(http.MethodGet, "/v1/accounts/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSync_RunsInline(t *testing.T) {
	f := newFixture(t, false)
	f.sync.On("SyncAccount", mock.Anything, "acct_1", dto.SyncOptions{Mode: enum.SyncModeFull, Limit: 20}).
		Return(&dto.SyncResult{AccountID: "acct_1", Success: true, EmailsSynced: 20}, nil)

	w := f.do(http.MethodPost, "/v1/accounts/acct_1/sync?mode=full&limit=20", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 20, decode(t, w)["emailsSynced"])
	ctx := f.sync.Calls[0].Arguments.Get(0).(context.Context)
	assert.Equal(t, "acct_1", utils.GetAccountIdFromContext(ctx))
}

func TestSync_BodyOptions(t *testing.T) {
	f := newFixture(t, false)
	f.sync.On("SyncAccount", mock.Anything, "acct_1", dto.SyncOptions{Mode: enum.SyncModeIncremental, BatchSize: 25, Folders: []string{"INBOX"}}).
		Return(&dto.SyncResult{AccountID: "acct_1", Success: true}, nil)

	w := f.do(http.MethodPost, "/v1/accounts/acct_1/sync", `{"mode":"incremental","batchSize":25,"folders":["INBOX"]}`)

	assert.Equal(t, http.StatusOK, w.Code)
	f.sync.AssertExpectations(t)
}

func TestSync_ValidationAndConflicts(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(http.MethodPost, "/v1/accounts/acct_1/sync?mode=partial&limit=-1", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "mode")

	f.sync.On("SyncAccount", mock.Anything, "acct_busy", mock.Anything).
		Return(nil, errors.Wrap(mailsync_errors.ErrSyncInProgress, "acct_busy"))
	w = f.do(http.MethodPost, "/v1/accounts/acct_busy/sync", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	f.sync.On("SyncAccount", mock.Anything, "acct_down", mock.Anything).
		Return(&dto.SyncResult{AccountID: "acct_down", EmailsSynced: 50},
			mailsync_errors.NewProviderError("imap", mailsync_errors.KindTransport, errors.New("eof")))
	w = f.do(http.MethodPost, "/v1/accounts/acct_down/sync", "")
	require.Equal(t, http.StatusBadGateway, w.Code)
	result := decode(t, w)["result"].(map[string]any)
	assert.EqualValues(t, 50, result["emailsSynced"])
}

func TestSync_AsyncPublishesRequest(t *testing.T) {
	f := newFixture(t, true)
	f.accounts.On("GetByID", mock.Anything, "acct_1").Return(&models.Account{ID: "acct_1"}, nil)
	f.publisher.On("PublishEvent", mock.Anything, dto.EventSyncRequested, "acct_1", enum.ACCOUNT,
		dto.SyncRequestedEvent{AccountID: "acct_1", Options: dto.SyncOptions{Mode: enum.SyncModeFull}}).Return(nil)

	w := f.do(http.MethodPost, "/v1/accounts/acct_1/sync?async=true&mode=full", "")

	assert.Equal(t, http.StatusAccepted, w.Code)
	f.publisher.AssertExpectations(t)
	f.sync.AssertNotCalled(t, "SyncAccount", mock.Anything, mock.Anything, mock.Anything)
}

func TestSync_AsyncWithoutTransport(t *testing.T) {
	f := newFixture(t, false)

	w := f.do(http.MethodPost, "/v1/accounts/acct_1/sync?async=true", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSync_AsyncUnknownAccount(t *testing.T) {
	f := newFixture(t, true)
	f.accounts.On("GetByID", mock.Anything, "missing").Return(nil, mailsync_errors.ErrAccountNotFound)

	w := f.do(http.MethodPost, "/v1/accounts/missing/sync?async=true", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	f.publisher.AssertNotCalled(t, "PublishEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSyncProgress(t *testing.T) {
	f := newFixture(t, false)
	f.sync.On("GetSyncProgress", mock.Anything, "acct_1").Return(&dto.SyncProgress{
		AccountID: "acct_1", Status: enum.SyncStatusSyncing, Phase: enum.SyncPhaseFetching, Progress: 50, Total: 110, Percentage: 45,
	}, nil)

	w := f.do(http.MethodGet, "/v1/accounts/acct_1/sync/progress", "")

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "fetching", body["phase"])
	assert.EqualValues(t, 45, body["percentage"])
}

func TestListAttachments(t *testing.T) {
	f := newFixture(t, false)
	f.attachments.On("ListByEmail", mock.Anything, "email_1").Return([]*models.EmailAttachment{
		{ID: "file_1", Filename: "a.pdf"},
	}, nil)

	w := f.do(http.MethodGet, "/v1/emails/email_1/attachments", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["attachments"], 1)
}

func TestDownloadAttachment(t *testing.T) {
	f := newFixture(t, false)
	f.attachments.On("DownloadAttachment", mock.Anything, dto.DownloadAttachmentRequest{AttachmentID: "file_1", AttachmentRef: "ref"}).
		Return(&dto.DownloadAttachmentResult{AttachmentID: "file_1", Success: true, URL: "https://cdn.test/k", Status: enum.DownloadStatusCompleted}, nil)
	f.attachments.On("DownloadAttachment", mock.Anything, dto.DownloadAttachmentRequest{AttachmentID: "file_gone"}).
		Return(nil, errors.Wrap(mailsync_errors.ErrAttachmentUnavailable, "empty body"))
	f.attachments.On("DownloadAttachment", mock.Anything, dto.DownloadAttachmentRequest{AttachmentID: "missing"}).
		Return(nil, mailsync_errors.ErrAttachmentNotFound)

	w := f.do(http.MethodPost, "/v1/attachments/file_1/download", `{"attachmentRef":"ref"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://cdn.test/k", decode(t, w)["url"])

	w = f.do(http.MethodPost, "/v1/attachments/file_gone/download", "")
	assert.Equal(t, http.StatusGone, w.Code)

	w = f.do(http.MethodPost, "/v1/attachments/missing/download", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListEmails(t *testing.T) {
	f := newFixture(t, false)
	f.emails.On("ListByAccount", mock.Anything, "acct_1", 10, 20).Return([]*models.Email{
		{ID: "email_1", Subject: "Hello", Classification: enum.EmailOK},
	}, int64(21), nil)
	f.emails.On("ListByAccount", mock.Anything, "missing", 0, 0).
		Return(nil, int64(0), errors.Wrap(mailsync_errors.ErrAccountNotFound, "missing"))

	w := f.do(http.MethodGet, "/v1/accounts/acct_1/emails?limit=10&offset=20", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 21, body["total"])
	assert.Len(t, body["emails"], 1)
	ctx := f.emails.Calls[0].Arguments.Get(0).(context.Context)
	assert.Equal(t, "acct_1", utils.GetAccountIdFromContext(ctx))

	w = f.do(http.MethodGet, "/v1/accounts/acct_1/emails?limit=ten", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "limit")

	w = f.do(http.MethodGet, "/v1/accounts/missing/emails", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetEmail(t *testing.T) {
	f := newFixture(t, false)
	f.emails.On("GetByID", mock.Anything, "email_1").Return(&models.Email{ID: "email_1", Subject: "Hello"}, nil)
	f.emails.On("GetByID", mock.Anything, "email_missing").Return(nil, errors.Wrap(mailsync_errors.ErrEmailNotFound, "email_missing"))

	w := f.do(http.MethodGet, "/v1/emails/email_1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Hello", decode(t, w)["subject"])

	w = f.do(http.MethodGet, "/v1/emails/email_missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
