package events

import (
	"context"
	"fmt"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/tracing"
)

// EventsService fans events out to every configured publisher. With none
// configured it only logs.
type EventsService struct {
	Publishers []interfaces.EventPublisher
	log        logger.Logger
}

func NewEventsService(log logger.Logger, publishers ...interfaces.EventPublisher) *EventsService {
	return &EventsService{
		Publishers: publishers,
		log:        log,
	}
}

// NewEventsServiceFromConfig connects the transports named in cfg. A
// transport that fails to connect is an error, an unset one is skipped.
func NewEventsServiceFromConfig(cfg *config.Config, log logger.Logger, publisherConfig *PublisherConfig) (*EventsService, error) {
	service := NewEventsService(log)

	if cfg.AppConfig.RabbitMQURL != "" {
		publisher, err := NewRabbitMQPublisher(cfg.AppConfig.RabbitMQURL, log, publisherConfig)
		if err != nil {
			return nil, err
		}
		service.Publishers = append(service.Publishers, publisher)
	}

	if cfg.AppConfig.NatsURL != "" {
		publisher, err := NewNatsPublisher(cfg.AppConfig.NatsURL, log)
		if err != nil {
			_ = service.Close()
			return nil, err
		}
		service.Publishers = append(service.Publishers, publisher)
	}

	if len(service.Publishers) == 0 {
		log.Warn("No event transport configured, events will only be logged")
	}

	return service, nil
}

// PublishEvent publishes to every transport and returns the first error.
func (s *EventsService) PublishEvent(ctx context.Context, eventType, entityId string, entityType enum.EntityType, data interface{}) error {
	var firstErr error
	for _, publisher := range s.Publishers {
		if err := publisher.PublishEvent(ctx, eventType, entityId, entityType, data); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Notify is the fire-and-forget variant used by the sync and download
// flows. Publish failures are logged and never reach the caller.
func (s *EventsService) Notify(ctx context.Context, eventType, entityId string, entityType enum.EntityType, data interface{}) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "EventsService.Notify")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.LogKV("eventType", eventType, "entityId", entityId)

	if len(s.Publishers) == 0 {
		s.log.Infof("event %s for %s %s", eventType, entityType, entityId)
		return
	}

	if err := s.PublishEvent(ctx, eventType, entityId, entityType, data); err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("Failed to publish %s for %s: %v", eventType, entityId, err)
	}
}

func (s *EventsService) Close() error {
	var errs []error

	for _, publisher := range s.Publishers {
		if err := publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing events service: %v", errs)
	}

	return nil
}
