package attachments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/dto"
	mailsync_errors "github.com/customeros/mailsync/errors"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

const defaultContentType = "application/octet-stream"

// Pipeline persists attachment metadata for synced emails and moves payloads
// into object storage, either during sync (eager) or on request (lazy).
type Pipeline struct {
	repositories *repository.Repositories
	storage      interfaces.StorageService
	providers    interfaces.ProviderRegistry
	credentials  interfaces.CredentialStore
	events       interfaces.EventNotifier
	cfg          *config.SyncConfig
	logger       logger.Logger
}

func NewPipeline(
	repos *repository.Repositories,
	storage interfaces.StorageService,
	providers interfaces.ProviderRegistry,
	credentials interfaces.CredentialStore,
	events interfaces.EventNotifier,
	cfg *config.SyncConfig,
	log logger.Logger,
) *Pipeline {
	if cfg == nil {
		cfg = &config.SyncConfig{}
	}
	return &Pipeline{
		repositories: repos,
		storage:      storage,
		providers:    providers,
		credentials:  credentials,
		events:       events,
		cfg:          cfg,
		logger:       log,
	}
}

// ProcessMessageAttachments writes one row per non-inline attachment of raw
// and returns how many rows were written. Upload failures leave a failed,
// retryable row; only repository errors are returned.
func (p *Pipeline) ProcessMessageAttachments(ctx context.Context, account *models.Account, email *models.Email, raw *dto.RawMessage, mode enum.AttachmentMode) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AttachmentPipeline.ProcessMessageAttachments")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, account.ID)
	span.LogFields(log.String("emailId", email.ID), log.String("mode", mode.String()))

	processed := 0
	for i, part := range raw.Attachments {
		if isInline(part) {
			continue
		}

		originalName := strings.TrimSpace(part.Filename)
		if originalName == "" {
			originalName = fmt.Sprintf("attachment-%d.%s", i+1, utils.GetFileExtensionFromContentType(part.ContentType))
		}
		contentType := part.ContentType
		if contentType == "" {
			contentType = defaultContentType
		}
		messageRef := part.MessageRef
		if messageRef == "" {
			messageRef = raw.ProviderMessageID
		}

		row := &models.EmailAttachment{
			EmailID:               email.ID,
			AccountID:             account.ID,
			UserID:                account.UserID,
			Provider:              account.Provider,
			Filename:              SanitizeFilename(originalName),
			OriginalFilename:      originalName,
			ContentType:           contentType,
			Size:                  part.Size,
			ProviderMessageRef:    messageRef,
			ProviderAttachmentRef: part.AttachmentRef,
			DownloadStatus:        enum.DownloadStatusPending,
			SafetyFlags:           SafetyFlags(originalName, contentType),
			EmailSubject:          email.Subject,
			EmailFrom:             email.FromAddress,
			EmailReceivedAt:       email.ReceivedAt,
		}
		if row.Size == 0 && len(part.Content) > 0 {
			row.Size = int64(len(part.Content))
		}

		// Providers that inline small payloads leave no ref to fetch them
		// by later, so those bytes are stored now even in lazy mode.
		storeNow := len(part.Content) > 0 && (mode == enum.AttachmentModeEager || part.AttachmentRef == "")
		if storeNow {
			existing, err := p.repositories.EmailAttachmentRepository.GetByEmailAndFilename(ctx, email.ID, originalName)
			if err != nil {
				tracing.TraceErr(span, err)
				return processed, err
			}
			if existing == nil || existing.DownloadStatus != enum.DownloadStatusCompleted {
				p.storeInline(ctx, account, row, part.Content)
			}
		}

		if _, err := p.repositories.EmailAttachmentRepository.Upsert(ctx, row); err != nil {
			tracing.TraceErr(span, err)
			return processed, errors.Wrapf(err, "failed to save attachment %q of email %s", originalName, email.ID)
		}
		processed++
	}

	span.LogFields(log.Int("attachments", processed))
	return processed, nil
}

// storeInline uploads bytes delivered with the message and records the
// outcome on row.
func (p *Pipeline) storeInline(ctx context.Context, account *models.Account, row *models.EmailAttachment, content []byte) {
	result, err := p.upload(ctx, ownerOf(account.UserID, account.ID), row.Filename, row.ContentType, content)
	if err != nil {
		p.logger.Warnf("account %s: upload of attachment %q failed: %v", account.ID, row.OriginalFilename, err)
		reason := err.Error()
		row.DownloadStatus = enum.DownloadStatusFailed
		row.DownloadError = &reason
		return
	}
	row.DownloadStatus = enum.DownloadStatusCompleted
	row.StorageURL = utils.StringPtr(result.URL)
	row.StorageKey = utils.StringPtr(result.Key)
	row.Size = int64(len(content))
	row.ContentHash = contentHash(content)
}

// DownloadAttachment materializes one attachment into storage. A completed
// attachment is returned as is without contacting the provider.
func (p *Pipeline) DownloadAttachment(ctx context.Context, req dto.DownloadAttachmentRequest) (*dto.DownloadAttachmentResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AttachmentPipeline.DownloadAttachment")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, req.AttachmentID)

	if req.AttachmentID == "" {
		return nil, errors.Wrap(mailsync_errors.ErrAttachmentNotFound, "attachment id is required")
	}

	attachment, err := p.repositories.EmailAttachmentRepository.GetByID(ctx, req.AttachmentID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if attachment == nil {
		return nil, errors.Wrap(mailsync_errors.ErrAttachmentNotFound, req.AttachmentID)
	}
	if cached := completedResult(attachment); cached != nil {
		span.LogFields(log.Bool("cached", true))
		return cached, nil
	}

	started, err := p.repositories.EmailAttachmentRepository.MarkDownloading(ctx, attachment.ID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if !started {
		// a concurrent download finished first
		attachment, err = p.repositories.EmailAttachmentRepository.GetByID(ctx, req.AttachmentID)
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		if attachment != nil {
			if cached := completedResult(attachment); cached != nil {
				return cached, nil
			}
		}
		return nil, errors.Wrap(mailsync_errors.ErrAttachmentNotFound, req.AttachmentID)
	}

	result, err := p.download(ctx, attachment, req)
	if err != nil {
		tracing.TraceErr(span, err)
		if markErr := p.repositories.EmailAttachmentRepository.MarkFailed(ctx, attachment.ID, err.Error()); markErr != nil {
			p.logger.Errorf("attachment %s: failed to record download failure: %v", attachment.ID, markErr)
		}
		return nil, err
	}

	if p.events != nil {
		p.events.Notify(ctx, dto.EventAttachmentDownloaded, attachment.ID, enum.EMAIL_ATTACHMENT, dto.AttachmentDownloadedEvent{
			AttachmentID: attachment.ID,
			EmailID:      attachment.EmailID,
			AccountID:    attachment.AccountID,
			URL:          result.URL,
			StorageKey:   result.StorageKey,
			Size:         result.Size,
			SHA256:       result.contentHash,
		})
	}
	return &result.DownloadAttachmentResult, nil
}

type downloadOutcome struct {
	dto.DownloadAttachmentResult
	contentHash string
}

// download fetches and uploads the payload. Every error it returns wraps one
// of the attachment sentinels.
func (p *Pipeline) download(ctx context.Context, attachment *models.EmailAttachment, req dto.DownloadAttachmentRequest) (*downloadOutcome, error) {
	messageRef := firstNonEmpty(req.MessageRef, attachment.ProviderMessageRef)
	attachmentRef := firstNonEmpty(req.AttachmentRef, attachment.ProviderAttachmentRef)
	if messageRef == "" || attachmentRef == "" {
		return nil, errors.Wrap(mailsync_errors.ErrAttachmentUnavailable, mailsync_errors.ErrMissingAttachmentRef.Error())
	}

	provider := req.Provider
	if provider == "" {
		provider = attachment.Provider
	}
	creds := req.Credentials
	if creds == nil || provider == "" {
		account, err := p.repositories.AccountRepository.GetByID(ctx, attachment.AccountID)
		if err != nil {
			return nil, errors.Wrap(mailsync_errors.ErrAttachmentFetch, err.Error())
		}
		if account == nil {
			return nil, errors.Wrap(mailsync_errors.ErrAttachmentFetch, mailsync_errors.ErrAccountNotFound.Error())
		}
		if provider == "" {
			provider = account.Provider
		}
		if creds == nil {
			creds, err = p.credentials.GetCredentials(ctx, account)
			if err != nil {
				return nil, errors.Wrap(mailsync_errors.ErrAttachmentFetch, err.Error())
			}
		}
	}

	adapter, err := p.providers.Adapter(provider)
	if err != nil {
		return nil, errors.Wrap(mailsync_errors.ErrAttachmentFetch, err.Error())
	}

	fetchCtx, cancel := withTimeout(ctx, p.cfg.ProviderRequestTimeout)
	content, err := adapter.FetchAttachmentBytes(fetchCtx, creds, messageRef, attachmentRef)
	cancel()
	if err != nil {
		if mailsync_errors.IsNotFound(err) {
			return nil, errors.Wrap(mailsync_errors.ErrAttachmentUnavailable, err.Error())
		}
		return nil, errors.Wrap(mailsync_errors.ErrAttachmentFetch, err.Error())
	}
	if len(content) == 0 {
		return nil, errors.Wrap(mailsync_errors.ErrAttachmentUnavailable, "provider returned no content")
	}

	uploaded, err := p.upload(ctx, ownerOf(attachment.UserID, attachment.AccountID), attachment.Filename, attachment.ContentType, content)
	if err != nil {
		return nil, err
	}

	hash := contentHash(content)
	size := int64(len(content))
	if err := p.repositories.EmailAttachmentRepository.MarkCompleted(ctx, attachment.ID, uploaded.URL, uploaded.Key, size, hash); err != nil {
		return nil, errors.Wrap(mailsync_errors.ErrStorageUpload, err.Error())
	}

	return &downloadOutcome{
		DownloadAttachmentResult: dto.DownloadAttachmentResult{
			AttachmentID: attachment.ID,
			Success:      true,
			URL:          uploaded.URL,
			StorageKey:   uploaded.Key,
			Status:       enum.DownloadStatusCompleted,
			Size:         size,
		},
		contentHash: hash,
	}, nil
}

func (p *Pipeline) upload(ctx context.Context, owner, filename, contentType string, content []byte) (*dto.UploadResult, error) {
	uploadCtx, cancel := withTimeout(ctx, p.cfg.StorageUploadTimeout)
	defer cancel()

	key := StorageKey(owner, filename, utils.Now())
	result, err := p.storage.Upload(uploadCtx, key, content, contentType)
	if err != nil {
		return nil, errors.Wrap(mailsync_errors.ErrStorageUpload, err.Error())
	}
	if result == nil || result.URL == "" {
		return nil, errors.Wrap(mailsync_errors.ErrStorageUpload, "storage returned no url")
	}
	return result, nil
}

func (p *Pipeline) ListByEmail(ctx context.Context, emailID string) ([]*models.EmailAttachment, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "AttachmentPipeline.ListByEmail")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	attachments, err := p.repositories.EmailAttachmentRepository.ListByEmail(ctx, emailID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return attachments, nil
}

// StorageKey is attachments/{owner}/{yyyy}/{mm}/{unixNano}-{uuid8}-{filename}.
// The timestamp and random segment keep concurrent uploads apart.
func StorageKey(owner, filename string, now time.Time) string {
	return fmt.Sprintf("attachments/%s/%04d/%02d/%d-%s-%s",
		owner, now.Year(), int(now.Month()), now.UnixNano(), uuid.NewString()[:8], filename)
}

func isInline(part dto.RawAttachment) bool {
	return strings.EqualFold(strings.TrimSpace(part.Disposition), "inline") || strings.TrimSpace(part.ContentID) != ""
}

func completedResult(attachment *models.EmailAttachment) *dto.DownloadAttachmentResult {
	if attachment.DownloadStatus != enum.DownloadStatusCompleted || attachment.StorageURL == nil {
		return nil
	}
	return &dto.DownloadAttachmentResult{
		AttachmentID: attachment.ID,
		Success:      true,
		URL:          *attachment.StorageURL,
		StorageKey:   utils.GetOrDefault(attachment.StorageKey, ""),
		Status:       enum.DownloadStatusCompleted,
		Size:         attachment.Size,
		Cached:       true,
	}
}

func contentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func ownerOf(userID, accountID string) string {
	if userID != "" {
		return SanitizeFilename(userID)
	}
	return accountID
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
