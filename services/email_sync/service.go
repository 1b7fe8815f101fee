package email_sync

import (
	"context"
	"time"

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
	"github.com/customeros/mailsync/services/email_mapper"
)

const (
	defaultBatchSize  = 50
	defaultStaleAfter = 30 * time.Minute
	authErrorPrefix   = "authentication failed: "
)

type syncService struct {
	repositories *repository.Repositories
	providers    interfaces.ProviderRegistry
	credentials  interfaces.CredentialStore
	attachments  interfaces.AttachmentService
	filter       interfaces.EmailFilterService
	events       interfaces.EventNotifier
	cfg          *config.SyncConfig
	logger       logger.Logger
}

func NewSyncService(
	repos *repository.Repositories,
	providers interfaces.ProviderRegistry,
	credentials interfaces.CredentialStore,
	attachments interfaces.AttachmentService,
	filter interfaces.EmailFilterService,
	events interfaces.EventNotifier,
	cfg *config.SyncConfig,
	log logger.Logger,
) interfaces.SyncService {
	if cfg == nil {
		cfg = &config.SyncConfig{}
	}
	return &syncService{
		repositories: repos,
		providers:    providers,
		credentials:  credentials,
		attachments:  attachments,
		filter:       filter,
		events:       events,
		cfg:          cfg,
		logger:       log,
	}
}

// SyncAccount pulls one account's mailbox into the store. Every page is
// committed, together with the cursor that follows it, before the next page
// is requested. The returned result is populated on failure as well.
func (s *syncService) SyncAccount(ctx context.Context, accountID string, opts dto.SyncOptions) (*dto.SyncResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SyncService.SyncAccount")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, accountID)
	tracing.LogObjectAsJson(span, "options", opts)

	if opts.Mode == "" {
		opts.Mode = enum.SyncModeIncremental
	}
	if !opts.Mode.IsValid() {
		return nil, errors.Wrapf(mailsync_errors.ErrInvalidSyncMode, "%q", opts.Mode)
	}

	account, err := s.repositories.AccountRepository.GetByID(ctx, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if account == nil {
		return nil, errors.Wrap(mailsync_errors.ErrAccountNotFound, accountID)
	}

	adapter, err := s.providers.Adapter(account.Provider)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	// credential problems surface before the account row is touched
	creds, err := s.credentials.GetCredentials(ctx, account)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	acquired, err := s.repositories.AccountRepository.TryStartSync(ctx, account.ID, s.staleAfter())
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if !acquired {
		return nil, errors.Wrap(mailsync_errors.ErrSyncInProgress, account.ID)
	}

	result := &dto.SyncResult{
		AccountID: account.ID,
		Mode:      opts.Mode,
		StartedAt: utils.Now(),
	}
	s.logger.Infof("account %s: %s sync started (provider %s)", account.ID, opts.Mode, account.Provider)

	// exit writes must land even when the caller's context is done
	exitCtx := context.WithoutCancel(ctx)

	if err := s.run(ctx, account, adapter, creds, opts, result); err != nil {
		tracing.TraceErr(span, err)
		s.fail(exitCtx, account, result, err)
		return result, err
	}

	if err := s.repositories.AccountRepository.MarkSyncSucceeded(exitCtx, account.ID, result.NextCursor); err != nil {
		tracing.TraceErr(span, err)
		s.fail(exitCtx, account, result, err)
		return result, err
	}
	result.Success = true
	result.CompletedAt = utils.Now()
	span.LogFields(log.Int("emailsSynced", result.EmailsSynced), log.Int("pages", result.PagesFetched))
	s.logger.Infof("account %s: sync finished, %d emails in %d pages", account.ID, result.EmailsSynced, result.PagesFetched)

	s.notify(exitCtx, dto.EventSyncCompleted, account.ID, dto.SyncCompletedEvent{
		AccountID:     account.ID,
		Provider:      account.Provider.String(),
		Mode:          opts.Mode.String(),
		EmailsSynced:  result.EmailsSynced,
		PagesFetched:  result.PagesFetched,
		Cursor:        utils.GetOrDefault(result.NextCursor, ""),
		CompletedAt:   result.CompletedAt,
		DurationMilli: result.CompletedAt.Sub(result.StartedAt).Milliseconds(),
	})
	return result, nil
}

// run is the batch loop. Any error it returns takes the failure exit; the
// cursor persisted by the last committed page stays in place.
func (s *syncService) run(ctx context.Context, account *models.Account, adapter interfaces.ProviderAdapter, creds *dto.Credentials, opts dto.SyncOptions, result *dto.SyncResult) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SyncService.run")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = s.cfg.BatchSize
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	folders := opts.Folders
	if len(folders) == 0 {
		folders = account.Folders
	}

	cursor := ""
	since := opts.Since
	resumed := false
	if opts.Mode == enum.SyncModeIncremental {
		if account.SyncCursor != nil && *account.SyncCursor != "" {
			cursor = *account.SyncCursor
			resumed = true
		} else if since == nil {
			since = account.LastSuccessfulSyncAt
		}
	}
	result.NextCursor = account.SyncCursor
	span.LogFields(log.Bool("resumed", resumed), log.Int("batchSize", batchSize))

	for {
		pageSize := batchSize
		if opts.Limit > 0 {
			remaining := opts.Limit - result.EmailsSynced
			if remaining <= 0 {
				return nil
			}
			if remaining < pageSize {
				pageSize = remaining
			}
		}

		page, err := s.listPage(ctx, adapter, creds, dto.ListMessagesRequest{
			Cursor:   cursor,
			Since:    since,
			PageSize: pageSize,
			Folders:  folders,
		})
		if err != nil {
			if resumed && result.PagesFetched == 0 && !result.FullResync && mailsync_errors.IsInvalidCursor(err) {
				s.logger.Warnf("account %s: stored cursor rejected, restarting with a full resync: %v", account.ID, err)
				if err := s.repositories.AccountRepository.ClearCursor(ctx, account.ID); err != nil {
					return err
				}
				cursor, since, resumed = "", nil, false
				result.NextCursor = nil
				result.FullResync = true
				continue
			}
			return err
		}
		result.PagesFetched++

		listed := max(page.Listed, len(page.Messages))
		messages := page.Messages
		nextCursor := page.NextCursor
		trimmed := opts.Limit > 0 && len(messages) > pageSize
		if trimmed {
			// the provider ignored the page size; the rest of this page is
			// fetched again from the same cursor on the next run
			s.logger.Warnf("account %s: provider returned %d messages for a page of %d, keeping the current cursor", account.ID, len(messages), pageSize)
			messages = messages[:pageSize]
			nextCursor = cursor
		}

		committed, err := s.commitPage(ctx, account, adapter.AttachmentMode(), messages, result)
		if err != nil {
			return err
		}

		var next *string
		if nextCursor != "" {
			next = utils.StringPtr(nextCursor)
		}
		if err := s.repositories.AccountRepository.SaveProgress(ctx, account.ID, committed, next, page.TotalEstimate); err != nil {
			return err
		}
		result.EmailsSynced += committed
		result.NextCursor = next
		cursor = nextCursor

		if trimmed || cursor == "" || listed < pageSize {
			return nil
		}
	}
}

func (s *syncService) listPage(ctx context.Context, adapter interfaces.ProviderAdapter, creds *dto.Credentials, req dto.ListMessagesRequest) (*dto.MessagePage, error) {
	if s.cfg.ProviderRequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ProviderRequestTimeout)
		defer cancel()
	}
	page, err := adapter.ListMessages(ctx, creds, req)
	if err != nil {
		return nil, err
	}
	if page == nil {
		page = &dto.MessagePage{}
	}
	return page, nil
}

// commitPage stores one page and reports how many emails were written.
// Unmappable messages are skipped; a store error aborts the page.
func (s *syncService) commitPage(ctx context.Context, account *models.Account, mode enum.AttachmentMode, messages []*dto.RawMessage, result *dto.SyncResult) (int, error) {
	committed := 0
	for _, raw := range messages {
		email, err := email_mapper.MapEmail(raw, account.ID)
		if err != nil {
			s.logger.Warnf("account %s: skipping message: %v", account.ID, err)
			result.Skipped++
			continue
		}
		email.Provider = account.Provider

		if s.filter != nil {
			if err := s.filter.ScanEmail(ctx, email); err != nil {
				s.logger.Warnf("account %s: classifying %s: %v", account.ID, raw.ProviderMessageID, err)
			}
		}

		stored, created, err := s.repositories.EmailRepository.Upsert(ctx, email)
		if err != nil {
			return committed, errors.Wrapf(err, "failed to store message %s", raw.ProviderMessageID)
		}
		if created {
			result.EmailsCreated++
		} else {
			result.EmailsUpdated++
		}
		committed++

		if len(raw.Attachments) > 0 && s.attachments != nil {
			n, err := s.attachments.ProcessMessageAttachments(ctx, account, stored, raw, mode)
			if err != nil {
				s.logger.Warnf("account %s: attachments of %s: %v", account.ID, raw.ProviderMessageID, err)
			}
			result.Attachments += n
		}
	}
	return committed, nil
}

func (s *syncService) fail(ctx context.Context, account *models.Account, result *dto.SyncResult, cause error) {
	message := cause.Error()
	if mailsync_errors.IsAuth(cause) {
		message = authErrorPrefix + message
	}
	result.Success = false
	result.Error = message
	result.CompletedAt = utils.Now()
	s.logger.Errorf("account %s: sync failed after %d emails: %s", account.ID, result.EmailsSynced, message)

	if err := s.repositories.AccountRepository.MarkSyncFailed(ctx, account.ID, message); err != nil {
		s.logger.Errorf("account %s: failed to record sync failure: %v", account.ID, err)
	}
	s.notify(ctx, dto.EventSyncFailed, account.ID, dto.SyncFailedEvent{
		AccountID:    account.ID,
		Provider:     account.Provider.String(),
		Mode:         result.Mode.String(),
		EmailsSynced: result.EmailsSynced,
		Error:        message,
		FailedAt:     result.CompletedAt,
	})
}

func (s *syncService) notify(ctx context.Context, eventType, accountID string, data interface{}) {
	if s.events == nil {
		return
	}
	s.events.Notify(ctx, eventType, accountID, enum.ACCOUNT, data)
}

func (s *syncService) staleAfter() time.Duration {
	if s.cfg.StaleAfter > 0 {
		return s.cfg.StaleAfter
	}
	return defaultStaleAfter
}

// GetSyncProgress projects the account's sync status for progress polling.
func (s *syncService) GetSyncProgress(ctx context.Context, accountID string) (*dto.SyncProgress, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SyncService.GetSyncProgress")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, accountID)

	account, err := s.repositories.AccountRepository.GetByID(ctx, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if account == nil {
		return nil, errors.Wrap(mailsync_errors.ErrAccountNotFound, accountID)
	}

	progress := &dto.SyncProgress{
		AccountID:            account.ID,
		Status:               account.SyncStatus,
		Phase:                account.SyncStatus.Phase(),
		Progress:             account.SyncProgress,
		Total:                account.SyncTotal,
		Cursor:               account.SyncCursor,
		StartedAt:            account.SyncStartedAt,
		LastSyncAt:           account.LastSyncAt,
		LastSuccessfulSyncAt: account.LastSuccessfulSyncAt,
		LastSyncError:        account.LastSyncError,
		ErrorCount:           account.ErrorCount,
		ConsecutiveErrors:    account.ConsecutiveErrors,
	}
	switch {
	case account.SyncStatus == enum.SyncStatusSuccess:
		progress.Percentage = 100
	case account.SyncTotal > 0:
		progress.Percentage = min(100, account.SyncProgress*100/account.SyncTotal)
	}
	return progress, nil
}
