package interfaces

import (
	"context"

	"github.com/customeros/mailsync/internal/enum"
)

type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType, entityId string, entityType enum.EntityType, data interface{}) error
	Close() error
}

// EventNotifier publishes domain events without failing the caller.
type EventNotifier interface {
	Notify(ctx context.Context, eventType, entityId string, entityType enum.EntityType, data interface{})
}

type EventListener interface {
	Handle(ctx context.Context, event any) error
	GetEventType() string
	GetQueueName() string
}

type EventSubscriber interface {
	RegisterListener(listener EventListener)
	ListenQueue(queueName string) error
	ListenQueueExclusive(queueName string) error
	Close() error
}
