package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/dto"
	mailsync_errors "github.com/customeros/mailsync/errors"
	"github.com/customeros/mailsync/internal/testutil"
)

const messagesPath = "/gmail/v1/users/me/messages"

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func fullMessage(id string) *gmail.Message {
	return &gmail.Message{
		Id:           id,
		ThreadId:     "thread-" + id,
		Snippet:      "Hi Bob, see the &quot;report&quot;",
		InternalDate: 1700000000123,
		LabelIds:     []string{"INBOX", "UNREAD", "IMPORTANT"},
		Payload: &gmail.MessagePart{
			MimeType: "multipart/mixed",
			Headers: []*gmail.MessagePartHeader{
				{Name: "Subject", Value: "Quarterly report"},
				{Name: "From", Value: "Jane Doe <jane@example.com>"},
				{Name: "To", Value: "bob@example.com, \"Carol\" <carol@example.com>"},
				{Name: "Message-ID", Value: "<abc@mail.example.com>"},
				{Name: "Date", Value: "Tue, 14 Nov 2023 22:13:20 +0000"},
			},
			Parts: []*gmail.MessagePart{
				{
					MimeType: "multipart/alternative",
					Parts: []*gmail.MessagePart{
						{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("Hi Bob")}},
						{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: b64("<p>Hi Bob</p>")}},
					},
				},
				{
					MimeType: "application/pdf",
					Filename: "report.pdf",
					Headers:  []*gmail.MessagePartHeader{{Name: "Content-Disposition", Value: "attachment; filename=\"report.pdf\""}},
					Body:     &gmail.MessagePartBody{AttachmentId: "att-1", Size: 42},
				},
				{
					MimeType: "image/png",
					Filename: "logo.png",
					Headers: []*gmail.MessagePartHeader{
						{Name: "Content-ID", Value: "<logo@cid>"},
						{Name: "Content-Disposition", Value: "inline"},
					},
					Body: &gmail.MessagePartBody{AttachmentId: "att-2", Size: 7},
				},
			},
		},
	}
}

type fakeGmail struct {
	t         *testing.T
	lastQuery atomic.Value
	listHits  atomic.Int32
	handler   http.HandlerFunc
}

func newFakeGmail(t *testing.T) (*fakeGmail, *Adapter) {
	f := &fakeGmail{t: t}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		f.handler(w, r)
	}))
	t.Cleanup(server.Close)

	adapter := NewAdapter(
		&config.GmailConfig{Endpoint: server.URL + "/"},
		&config.BreakerConfig{MaxRequests: 1, Interval: time.Minute, Timeout: time.Minute, ConsecutiveFailures: 3},
		testutil.NewTestLogger(),
	)
	return f, adapter
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func writeAPIError(t *testing.T, w http.ResponseWriter, status int, reason string) {
	writeJSON(t, w, status, map[string]any{
		"error": map[string]any{
			"code":    status,
			"message": reason,
			"errors":  []map[string]any{{"reason": reason, "message": reason}},
		},
	})
}

func creds() *dto.Credentials {
	return &dto.Credentials{AccessToken: "token-1"}
}

func TestListMessages_ConvertsFullMessages(t *testing.T) {
	f, adapter := newFakeGmail(t)
	f.handler = func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == messagesPath:
			f.listHits.Add(1)
			f.lastQuery.Store(r.URL.Query())
			writeJSON(t, w, http.StatusOK, &gmail.ListMessagesResponse{
				Messages:           []*gmail.Message{{Id: "m1"}},
				NextPageToken:      "page-2",
				ResultSizeEstimate: 120,
			})
		case r.URL.Path == messagesPath+"/m1":
			assert.Equal(t, "full", r.URL.Query().Get("format"))
			writeJSON(t, w, http.StatusOK, fullMessage("m1"))
		default:
			http.NotFound(w, r)
		}
	}

	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	page, err := adapter.ListMessages(context.Background(), creds(), dto.ListMessagesRequest{
		PageSize: 10,
		Since:    &since,
		Folders:  []string{"INBOX", "Sent"},
	})
	require.NoError(t, err)

	q := f.lastQuery.Load().(url.Values)
	assert.Equal(t, []string{"10"}, q["maxResults"])
	assert.Equal(t, []string{"after:1704067200 {in:inbox in:sent}"}, q["q"])
	assert.Empty(t, q["pageToken"])

	assert.Equal(t, "page-2", page.NextCursor)
	assert.Equal(t, 120, page.TotalEstimate)
	require.Len(t, page.Messages, 1)

	msg := page.Messages[0]
	assert.Equal(t, "google_workspace", msg.Provider)
	assert.Equal(t, "m1", msg.ProviderMessageID)
	assert.Equal(t, "thread-m1", msg.ThreadID)
	assert.Equal(t, "<abc@mail.example.com>", msg.MessageID)
	require.NotNil(t, msg.Subject)
	assert.Equal(t, "Quarterly report", *msg.Subject)
	assert.Equal(t, `Hi Bob, see the "report"`, msg.Snippet)
	assert.Equal(t, "Hi Bob", msg.BodyText)
	assert.Equal(t, "<p>Hi Bob</p>", msg.BodyHTML)

	require.Len(t, msg.From, 1)
	assert.Equal(t, "jane@example.com", msg.From[0].Email)
	require.NotNil(t, msg.From[0].Name)
	assert.Equal(t, "Jane Doe", *msg.From[0].Name)
	require.Len(t, msg.To, 2)
	assert.Nil(t, msg.To[0].Name)
	assert.Nil(t, msg.Cc, "absent header stays nil")

	require.NotNil(t, msg.ReceivedAt.UnixMilli)
	assert.Equal(t, int64(1700000000123), *msg.ReceivedAt.UnixMilli)
	require.NotNil(t, msg.SentAt.Time)
	assert.Equal(t, time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC), *msg.SentAt.Time)

	assert.False(t, msg.IsRead)
	assert.True(t, msg.IsImportant)
	assert.Equal(t, []string{"inbox"}, msg.Folders)

	require.Len(t, msg.Attachments, 2)
	assert.Equal(t, "report.pdf", msg.Attachments[0].Filename)
	assert.Equal(t, "att-1", msg.Attachments[0].AttachmentRef)
	assert.Equal(t, int64(42), msg.Attachments[0].Size)
	assert.Equal(t, "attachment", msg.Attachments[0].Disposition)
	assert.Equal(t, "logo@cid", msg.Attachments[1].ContentID)
	assert.Equal(t, "inline", msg.Attachments[1].Disposition)
}

func TestListMessages_PassesCursorAndSkipsVanishedMessages(t *testing.T) {
	f, adapter := newFakeGmail(t)
	f.handler = func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case messagesPath:
			f.lastQuery.Store(r.URL.Query())
			writeJSON(t, w, http.StatusOK, &gmail.ListMessagesResponse{
				Messages: []*gmail.Message{{Id: "gone"}, {Id: "m2"}},
			})
		case messagesPath + "/m2":
			writeJSON(t, w, http.StatusOK, fullMessage("m2"))
		default:
			writeAPIError(t, w, http.StatusNotFound, "notFound")
		}
	}

	page, err := adapter.ListMessages(context.Background(), creds(), dto.ListMessagesRequest{Cursor: "page-2"})
	require.NoError(t, err)

	q := f.lastQuery.Load().(url.Values)
	assert.Equal(t, []string{"page-2"}, q["pageToken"])
	assert.Empty(t, page.NextCursor)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "m2", page.Messages[0].ProviderMessageID)
	assert.Equal(t, 2, page.Listed)
}

func TestListMessages_ErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		reason string
		cursor string
		check  func(error) bool
	}{
		{"unauthorized", http.StatusUnauthorized, "authError", "", mailsync_errors.IsAuth},
		{"forbidden", http.StatusForbidden, "insufficientPermissions", "", mailsync_errors.IsAuth},
		{"bad page token", http.StatusBadRequest, "invalidArgument", "stale-token", mailsync_errors.IsInvalidCursor},
		{"rate limited", http.StatusForbidden, "userRateLimitExceeded", "", func(err error) bool {
			kind, ok := mailsync_errors.ProviderErrorKindOf(err)
			return ok && kind == mailsync_errors.KindTransport
		}},
		{"server error", http.StatusServiceUnavailable, "backendError", "", func(err error) bool {
			kind, ok := mailsync_errors.ProviderErrorKindOf(err)
			return ok && kind == mailsync_errors.KindTransport
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f, adapter := newFakeGmail(t)
			f.handler = func(w http.ResponseWriter, r *http.Request) {
				writeAPIError(t, w, tc.status, tc.reason)
			}

			_, err := adapter.ListMessages(context.Background(), creds(), dto.ListMessagesRequest{Cursor: tc.cursor})
			require.Error(t, err)
			assert.True(t, tc.check(err), "unexpected classification: %v", err)
		})
	}
}

func TestListMessages_MissingTokenIsAuthError(t *testing.T) {
	_, adapter := newFakeGmail(t)

	_, err := adapter.ListMessages(context.Background(), &dto.Credentials{}, dto.ListMessagesRequest{})
	assert.True(t, mailsync_errors.IsAuth(err))
	assert.ErrorIs(t, err, mailsync_errors.ErrMissingGrant)
}

func TestListMessages_ServerErrorsOpenBreaker(t *testing.T) {
	f, adapter := newFakeGmail(t)
	f.handler = func(w http.ResponseWriter, r *http.Request) {
		f.listHits.Add(1)
		writeAPIError(t, w, http.StatusInternalServerError, "backendError")
	}

	for i := 0; i < 3; i++ {
		_, err := adapter.ListMessages(context.Background(), creds(), dto.ListMessagesRequest{})
		require.Error(t, err)
	}
	hits := f.listHits.Load()

	_, err := adapter.ListMessages(context.Background(), creds(), dto.ListMessagesRequest{})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "circuit breaker is open"))
	assert.Equal(t, hits, f.listHits.Load(), "open breaker must not reach the API")
}

func TestFetchAttachmentBytes(t *testing.T) {
	f, adapter := newFakeGmail(t)
	f.handler = func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == messagesPath+"/m1/attachments/att-1" {
			writeJSON(t, w, http.StatusOK, &gmail.MessagePartBody{Data: b64("%PDF-1.7 body"), Size: 13})
			return
		}
		writeAPIError(t, w, http.StatusNotFound, "notFound")
	}

	data, err := adapter.FetchAttachmentBytes(context.Background(), creds(), "m1", "att-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.7 body"), data)

	_, err = adapter.FetchAttachmentBytes(context.Background(), creds(), "m1", "missing")
	assert.True(t, mailsync_errors.IsNotFound(err))

	_, err = adapter.FetchAttachmentBytes(context.Background(), creds(), "m1", "")
	assert.ErrorIs(t, err, mailsync_errors.ErrMissingAttachmentRef)
}

func TestConvertMessage_SmallAttachmentCarriesContent(t *testing.T) {
	msg := &gmail.Message{
		Id: "m9",
		Payload: &gmail.MessagePart{
			MimeType: "multipart/mixed",
			Parts: []*gmail.MessagePart{
				{MimeType: "text/csv", Filename: "rows.csv", Body: &gmail.MessagePartBody{Data: b64("a,b\n1,2\n"), Size: 8}},
			},
		},
	}

	raw := convertMessage(msg)
	require.Len(t, raw.Attachments, 1)
	assert.Empty(t, raw.Attachments[0].AttachmentRef)
	assert.Equal(t, []byte("a,b\n1,2\n"), raw.Attachments[0].Content)
	assert.Nil(t, raw.Subject)
	assert.Nil(t, raw.From)
	assert.True(t, raw.IsRead)
}

func TestBuildQuery(t *testing.T) {
	assert.Equal(t, "", buildQuery(dto.ListMessagesRequest{}))
	assert.Equal(t, "in:drafts", buildQuery(dto.ListMessagesRequest{Folders: []string{"Drafts"}}))
	assert.Equal(t, "label:client-work", buildQuery(dto.ListMessagesRequest{Folders: []string{"Client Work"}}))
}
