package events

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailsync/dto"
	mailsync_errors "github.com/customeros/mailsync/errors"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

// SyncRequestedListener runs a sync for every SyncRequested command on the
// sync-requests queue.
type SyncRequestedListener struct {
	BaseEventListener
	syncService interfaces.SyncService
}

func NewSyncRequestedListener(log logger.Logger, syncService interfaces.SyncService) *SyncRequestedListener {
	return &SyncRequestedListener{
		BaseEventListener: NewBaseEventListener(log, dto.EventSyncRequested, QueueSyncRequests),
		syncService:       syncService,
	}
}

// Handle acks requests for accounts that are already syncing or no longer
// exist. Every other failure is returned so the delivery is dead-lettered.
func (l *SyncRequestedListener) Handle(ctx context.Context, input any) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SyncRequestedListener.Handle")
	defer span.Finish()
	tracing.SetDefaultListenerSpanTags(ctx, span)

	event, err := l.ValidateBaseEvent(ctx, input)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	request, err := DecodeEventData[dto.SyncRequestedEvent](ctx, event)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if request.AccountID == "" {
		request.AccountID = event.Event.EntityId
	}
	tracing.TagAccount(span, request.AccountID)
	ctx = utils.SetAccountIdInContext(ctx, request.AccountID)

	result, err := l.syncService.SyncAccount(ctx, request.AccountID, request.Options)
	switch {
	case errors.Is(err, mailsync_errors.ErrSyncInProgress):
		l.logger.Infof("Sync already running for account %s, dropping request", request.AccountID)
		return nil
	case errors.Is(err, mailsync_errors.ErrAccountNotFound):
		l.logger.Warnf("Sync requested for unknown account %s", request.AccountID)
		return nil
	case err != nil:
		tracing.TraceErr(span, err)
		return err
	}

	l.logger.Infof("Sync for account %s finished: %d emails, %d pages", request.AccountID, result.EmailsSynced, result.PagesFetched)
	return nil
}
