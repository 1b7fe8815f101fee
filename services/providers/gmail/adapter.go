package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/dto"
	mailsync_errors "github.com/customeros/mailsync/errors"
	"github.com/customeros/mailsync/internal/breaker"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/tracing"
)

const (
	providerName    = "gmail"
	userID          = "me"
	defaultPageSize = 50
	maxPageSize     = 500
)

// Adapter reads a Gmail mailbox page by page using list page tokens as the
// cursor. Attachment bytes are fetched on demand.
type Adapter struct {
	cfg     *config.GmailConfig
	breaker *breaker.Breaker
	logger  logger.Logger
}

func NewAdapter(cfg *config.GmailConfig, breakerCfg *config.BreakerConfig, log logger.Logger) *Adapter {
	if cfg == nil {
		cfg = &config.GmailConfig{}
	}
	return &Adapter{
		cfg:     cfg,
		breaker: breaker.New("gmail-api", breakerCfg, log, tripsBreaker),
		logger:  log,
	}
}

func (a *Adapter) Provider() enum.EmailProvider {
	return enum.EmailGoogleWorkspace
}

func (a *Adapter) AttachmentMode() enum.AttachmentMode {
	return enum.AttachmentModeLazy
}

func (a *Adapter) ListMessages(ctx context.Context, creds *dto.Credentials, req dto.ListMessagesRequest) (*dto.MessagePage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "GmailAdapter.ListMessages")
	defer span.Finish()
	tracing.SetDefaultProviderSpanTags(ctx, span, providerName)
	span.LogKV("cursor", req.Cursor, "pageSize", req.PageSize)

	svc, err := a.service(ctx, creds)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	call := svc.Users.Messages.List(userID).MaxResults(int64(pageSize)).Context(ctx)
	if req.Cursor != "" {
		call = call.PageToken(req.Cursor)
	}
	if q := buildQuery(req); q != "" {
		call = call.Q(q)
	}
	if includesSpamOrTrash(req.Folders) {
		call = call.IncludeSpamTrash(true)
	}

	var resp *gmail.ListMessagesResponse
	err = a.breaker.Execute(ctx, "ListMessages", func() error {
		var apiErr error
		resp, apiErr = call.Do()
		return apiErr
	})
	if err != nil {
		err = wrapError(err, req.Cursor != "", "failed to list messages")
		tracing.TraceErr(span, err)
		return nil, err
	}

	page := &dto.MessagePage{
		NextCursor:    resp.NextPageToken,
		Listed:        len(resp.Messages),
		TotalEstimate: int(resp.ResultSizeEstimate),
		Messages:      make([]*dto.RawMessage, 0, len(resp.Messages)),
	}

	for _, ref := range resp.Messages {
		if ref == nil || ref.Id == "" {
			continue
		}
		msg, err := a.getMessage(ctx, svc, ref.Id)
		if err != nil {
			if mailsync_errors.IsNotFound(err) {
				// deleted between list and get
				a.logger.Warnf("gmail message %s disappeared before fetch, skipping", ref.Id)
				continue
			}
			tracing.TraceErr(span, err)
			return nil, err
		}
		page.Messages = append(page.Messages, convertMessage(msg))
	}

	span.LogKV("messages", len(page.Messages), "nextCursor", page.NextCursor)
	return page, nil
}

func (a *Adapter) FetchAttachmentBytes(ctx context.Context, creds *dto.Credentials, messageRef, attachmentRef string) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "GmailAdapter.FetchAttachmentBytes")
	defer span.Finish()
	tracing.SetDefaultProviderSpanTags(ctx, span, providerName)
	span.LogKV("messageRef", messageRef, "attachmentRef", attachmentRef)

	if messageRef == "" || attachmentRef == "" {
		return nil, mailsync_errors.ErrMissingAttachmentRef
	}

	svc, err := a.service(ctx, creds)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	var body *gmail.MessagePartBody
	err = a.breaker.Execute(ctx, "GetAttachment", func() error {
		var apiErr error
		body, apiErr = svc.Users.Messages.Attachments.Get(userID, messageRef, attachmentRef).Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		err = wrapError(err, false, "failed to get attachment")
		tracing.TraceErr(span, err)
		return nil, err
	}
	if body == nil || body.Data == "" {
		return nil, nil
	}

	data, err := decodeBase64URL(body.Data)
	if err != nil {
		err = errors.Wrap(err, "failed to decode attachment")
		tracing.TraceErr(span, err)
		return nil, err
	}
	return data, nil
}

func (a *Adapter) getMessage(ctx context.Context, svc *gmail.Service, id string) (*gmail.Message, error) {
	var msg *gmail.Message
	err := a.breaker.Execute(ctx, "GetMessage", func() error {
		var apiErr error
		msg, apiErr = svc.Users.Messages.Get(userID, id).Format("full").Context(ctx).Do()
		return apiErr
	})
	if err != nil {
		return nil, wrapError(err, false, fmt.Sprintf("failed to get message %s", id))
	}
	return msg, nil
}

func (a *Adapter) service(ctx context.Context, creds *dto.Credentials) (*gmail.Service, error) {
	if creds == nil || creds.AccessToken == "" {
		return nil, mailsync_errors.NewProviderError(providerName, mailsync_errors.KindAuth, mailsync_errors.ErrMissingGrant)
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.AccessToken, TokenType: "Bearer"})
	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}
	if a.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(a.cfg.Endpoint))
	}

	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, mailsync_errors.NewProviderError(providerName, mailsync_errors.KindTransport, errors.Wrap(err, "failed to create gmail service"))
	}
	return svc, nil
}

// buildQuery turns the since filter and folder allow-list into Gmail
// search syntax.
func buildQuery(req dto.ListMessagesRequest) string {
	var parts []string
	if req.Since != nil && !req.Since.IsZero() {
		parts = append(parts, fmt.Sprintf("after:%d", req.Since.UTC().Unix()))
	}

	var folders []string
	for _, f := range req.Folders {
		if term := folderTerm(f); term != "" {
			folders = append(folders, term)
		}
	}
	switch len(folders) {
	case 0:
	case 1:
		parts = append(parts, folders[0])
	default:
		parts = append(parts, "{"+strings.Join(folders, " ")+"}")
	}

	return strings.Join(parts, " ")
}

func folderTerm(folder string) string {
	f := strings.ToLower(strings.TrimSpace(folder))
	switch f {
	case "":
		return ""
	case "inbox", "sent", "spam", "trash", "starred", "important":
		return "in:" + f
	case "draft", "drafts":
		return "in:drafts"
	}
	return "label:" + strings.ReplaceAll(f, " ", "-")
}

func includesSpamOrTrash(folders []string) bool {
	for _, f := range folders {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "spam", "trash":
			return true
		}
	}
	return false
}

func decodeBase64URL(data string) ([]byte, error) {
	decoded, err := base64.URLEncoding.DecodeString(data)
	if err == nil {
		return decoded, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
}

func internalDate(ms int64) dto.RawTimestamp {
	if ms <= 0 {
		return dto.RawTimestamp{}
	}
	return dto.RawTimestamp{UnixMilli: &ms}
}

func headerDate(value string) dto.RawTimestamp {
	if value == "" {
		return dto.RawTimestamp{}
	}
	t, err := parseDate(value)
	if err != nil {
		return dto.RawTimestamp{}
	}
	return dto.RawTimestamp{Time: &t}
}
