package events

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailsync/dto"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/internal/utils"
)

// NewEvent builds the envelope shared by every transport. The account id
// falls back to the entity id for account events.
func NewEvent(ctx context.Context, span opentracing.Span, eventType, entityId string, entityType enum.EntityType, data interface{}) dto.Event {
	accountId := utils.GetAccountIdFromContext(ctx)
	if accountId == "" && entityType == enum.ACCOUNT {
		accountId = entityId
	}

	var traceId string
	if span != nil {
		if carrier, err := tracing.InjectTextMapCarrier(span.Context()); err == nil {
			traceId = carrier["uber-trace-id"]
		}
	}

	return dto.Event{
		Event: dto.EventDetails{
			Id:         utils.GenerateNanoIDWithPrefix("evt", 16),
			AccountId:  accountId,
			EntityId:   entityId,
			EntityType: entityType,
			EventType:  eventType,
			Data:       data,
		},
		Metadata: dto.EventMetadata{
			UberTraceId: traceId,
			AppSource:   utils.GetAppSourceFromContext(ctx),
			UserId:      utils.GetUserIdFromContext(ctx),
			Timestamp:   utils.Now().Format(time.RFC3339),
		},
	}
}
