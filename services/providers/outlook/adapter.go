package outlook

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/users"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/dto"
	mailsync_errors "github.com/customeros/mailsync/errors"
	"github.com/customeros/mailsync/internal/breaker"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/tracing"
)

const (
	providerName    = "outlook"
	defaultPageSize = 50
	maxPageSize     = 1000
	graphScope      = "https://graph.microsoft.com/.default"
)

// Graph rejects a $filter that does not start with the $orderby property,
// so folder-only filters open with this lower bound.
var receivedFloor = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

var messageSelect = []string{
	"id", "conversationId", "internetMessageId", "subject", "from", "toRecipients",
	"ccRecipients", "bccRecipients", "replyTo", "body", "bodyPreview", "receivedDateTime",
	"sentDateTime", "isRead", "isDraft", "importance", "flag", "categories",
	"parentFolderId", "hasAttachments", "internetMessageHeaders",
}

// attachment bytes are left out of the listing and fetched on demand
var attachmentExpand = []string{"attachments($select=id,name,contentType,size,isInline)"}

// nextLinks must point back at a Graph cloud
var graphHosts = map[string]bool{
	"graph.microsoft.com":             true,
	"graph.microsoft.us":              true,
	"dod-graph.microsoft.us":          true,
	"microsoftgraph.chinacloudapi.cn": true,
}

// wellKnownFolders maps common folder names onto Graph well-known names.
var wellKnownFolders = map[string]string{
	"inbox":         "inbox",
	"sent":          "sentitems",
	"sent items":    "sentitems",
	"sentitems":     "sentitems",
	"drafts":        "drafts",
	"draft":         "drafts",
	"trash":         "deleteditems",
	"deleted items": "deleteditems",
	"deleteditems":  "deleteditems",
	"spam":          "junkemail",
	"junk":          "junkemail",
	"junkemail":     "junkemail",
	"archive":       "archive",
}

// Adapter reads an Outlook mailbox through Microsoft Graph. The first page is
// a filtered query; later pages follow @odata.nextLink, which is the cursor.
type Adapter struct {
	cfg     *config.OutlookConfig
	breaker *breaker.Breaker
	logger  logger.Logger
}

func NewAdapter(cfg *config.OutlookConfig, breakerCfg *config.BreakerConfig, log logger.Logger) *Adapter {
	if cfg == nil {
		cfg = &config.OutlookConfig{}
	}
	return &Adapter{
		cfg:     cfg,
		breaker: breaker.New("graph-api", breakerCfg, log, tripsBreaker),
		logger:  log,
	}
}

func (a *Adapter) Provider() enum.EmailProvider {
	return enum.EmailOutlook
}

func (a *Adapter) AttachmentMode() enum.AttachmentMode {
	return enum.AttachmentModeLazy
}

func (a *Adapter) ListMessages(ctx context.Context, creds *dto.Credentials, req dto.ListMessagesRequest) (*dto.MessagePage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "OutlookAdapter.ListMessages")
	defer span.Finish()
	tracing.SetDefaultProviderSpanTags(ctx, span, providerName)
	span.LogKV("cursor", req.Cursor != "", "pageSize", req.PageSize)

	if req.Cursor != "" {
		if err := validateNextLink(req.Cursor); err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
	}

	client, err := a.client(creds)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	user := a.userBuilder(client, creds)

	folderNames := map[string]string{}
	var resp models.MessageCollectionResponseable
	if req.Cursor != "" {
		err = a.breaker.Execute(ctx, "ListMessagesNext", func() error {
			var apiErr error
			resp, apiErr = user.Messages().WithUrl(withPageSize(req.Cursor, req.PageSize)).Get(ctx, nil)
			return apiErr
		})
	} else {
		var folderIDs []string
		folderIDs, folderNames, err = a.resolveFolders(ctx, user, req.Folders)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}

		params := &users.ItemMessagesRequestBuilderGetQueryParameters{
			Top:     int32Ptr(pageSize(req.PageSize)),
			Select:  messageSelect,
			Expand:  attachmentExpand,
			Orderby: []string{"receivedDateTime asc"},
			Count:   boolPtr(true),
		}
		if filter := buildFilter(req.Since, folderIDs); filter != "" {
			params.Filter = &filter
		}
		err = a.breaker.Execute(ctx, "ListMessages", func() error {
			var apiErr error
			resp, apiErr = user.Messages().Get(ctx, &users.ItemMessagesRequestBuilderGetRequestConfiguration{
				QueryParameters: params,
			})
			return apiErr
		})
	}
	if err != nil {
		err = wrapError(err, req.Cursor != "", "failed to list messages")
		tracing.TraceErr(span, err)
		return nil, err
	}

	page := &dto.MessagePage{}
	if resp == nil {
		return page, nil
	}
	if next := resp.GetOdataNextLink(); next != nil {
		page.NextCursor = *next
	}
	if count := resp.GetOdataCount(); count != nil {
		page.TotalEstimate = int(*count)
	}
	page.Listed = len(resp.GetValue())
	for _, msg := range resp.GetValue() {
		if msg == nil {
			continue
		}
		page.Messages = append(page.Messages, convertMessage(msg, folderNames))
	}

	span.LogKV("messages", len(page.Messages), "hasNext", page.NextCursor != "")
	return page, nil
}

func (a *Adapter) FetchAttachmentBytes(ctx context.Context, creds *dto.Credentials, messageRef, attachmentRef string) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "OutlookAdapter.FetchAttachmentBytes")
	defer span.Finish()
	tracing.SetDefaultProviderSpanTags(ctx, span, providerName)
	span.LogKV("messageRef", messageRef, "attachmentRef", attachmentRef)

	if messageRef == "" || attachmentRef == "" {
		return nil, mailsync_errors.ErrMissingAttachmentRef
	}

	client, err := a.client(creds)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	var attachment models.Attachmentable
	err = a.breaker.Execute(ctx, "GetAttachment", func() error {
		var apiErr error
		attachment, apiErr = a.userBuilder(client, creds).
			Messages().ByMessageId(messageRef).
			Attachments().ByAttachmentId(attachmentRef).
			Get(ctx, nil)
		return apiErr
	})
	if err != nil {
		err = wrapError(err, false, "failed to get attachment")
		tracing.TraceErr(span, err)
		return nil, err
	}

	// item and reference attachments carry no bytes
	file, ok := attachment.(models.FileAttachmentable)
	if !ok {
		a.logger.Warnf("outlook attachment %s on message %s is not a file attachment", attachmentRef, messageRef)
		return nil, nil
	}
	return file.GetContentBytes(), nil
}

func (a *Adapter) resolveFolders(ctx context.Context, user *users.UserItemRequestBuilder, folders []string) ([]string, map[string]string, error) {
	names := make(map[string]string, len(folders))
	var ids []string
	for _, folder := range folders {
		key := strings.ToLower(strings.TrimSpace(folder))
		if key == "" {
			continue
		}
		ref := folder
		if wk, ok := wellKnownFolders[key]; ok {
			ref = wk
		}

		var mailFolder models.MailFolderable
		err := a.breaker.Execute(ctx, "GetMailFolder", func() error {
			var apiErr error
			mailFolder, apiErr = user.MailFolders().ByMailFolderId(ref).Get(ctx, nil)
			return apiErr
		})
		if err != nil {
			return nil, nil, wrapError(err, false, fmt.Sprintf("failed to resolve folder %s", folder))
		}
		if mailFolder == nil || mailFolder.GetId() == nil {
			continue
		}
		ids = append(ids, *mailFolder.GetId())
		names[*mailFolder.GetId()] = key
	}
	return ids, names, nil
}

func (a *Adapter) userBuilder(client *msgraphsdk.GraphServiceClient, creds *dto.Credentials) *users.UserItemRequestBuilder {
	id := creds.UserEmail
	if id == "" {
		id = a.cfg.DefaultUserID
	}
	if id == "" || id == "me" {
		return client.Me()
	}
	return client.Users().ByUserId(id)
}

func (a *Adapter) client(creds *dto.Credentials) (*msgraphsdk.GraphServiceClient, error) {
	if creds == nil || creds.AccessToken == "" {
		return nil, mailsync_errors.NewProviderError(providerName, mailsync_errors.KindAuth, mailsync_errors.ErrMissingGrant)
	}
	client, err := msgraphsdk.NewGraphServiceClientWithCredentials(&staticTokenCredential{token: creds.AccessToken}, []string{graphScope})
	if err != nil {
		return nil, mailsync_errors.NewProviderError(providerName, mailsync_errors.KindTransport, errors.Wrap(err, "failed to create graph client"))
	}
	return client, nil
}

func buildFilter(since *time.Time, folderIDs []string) string {
	var clauses []string
	if since != nil && !since.IsZero() {
		clauses = append(clauses, "receivedDateTime ge "+since.UTC().Format(time.RFC3339))
	} else if len(folderIDs) > 0 {
		clauses = append(clauses, "receivedDateTime ge "+receivedFloor.Format(time.RFC3339))
	}
	if len(folderIDs) > 0 {
		parts := make([]string, 0, len(folderIDs))
		for _, id := range folderIDs {
			parts = append(parts, fmt.Sprintf("parentFolderId eq '%s'", strings.ReplaceAll(id, "'", "''")))
		}
		folderClause := strings.Join(parts, " or ")
		if len(parts) > 1 {
			folderClause = "(" + folderClause + ")"
		}
		clauses = append(clauses, folderClause)
	}
	return strings.Join(clauses, " and ")
}

func validateNextLink(cursor string) error {
	u, err := url.Parse(cursor)
	if err != nil || u.Scheme != "https" || !graphHosts[strings.ToLower(u.Hostname())] {
		return mailsync_errors.NewProviderError(providerName, mailsync_errors.KindInvalidCursor,
			errors.Errorf("cursor is not a graph nextLink"))
	}
	return nil
}

// withPageSize lowers the $top a nextLink carries when the caller asks for a
// smaller page. Graph keeps paging by $skip, so the offset stays valid.
func withPageSize(link string, requested int) string {
	if requested <= 0 {
		return link
	}
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	query := u.Query()
	top := query.Get("$top")
	if top == "" {
		return link
	}
	if current, err := strconv.Atoi(top); err != nil || current <= int(pageSize(requested)) {
		return link
	}
	query.Set("$top", strconv.Itoa(int(pageSize(requested))))
	u.RawQuery = query.Encode()
	return u.String()
}

func pageSize(requested int) int32 {
	if requested <= 0 {
		return defaultPageSize
	}
	if requested > maxPageSize {
		return maxPageSize
	}
	return int32(requested)
}

// staticTokenCredential hands the stored bearer token to the Graph client.
// Refreshing it is the grant owner's job.
type staticTokenCredential struct {
	token string
}

func (c *staticTokenCredential) GetToken(ctx context.Context, options policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{
		Token:     c.token,
		ExpiresOn: time.Now().Add(1 * time.Hour),
	}, nil
}

func int32Ptr(i int32) *int32 {
	return &i
}

func boolPtr(b bool) *bool {
	return &b
}
