package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/tracing"
)

const (
	NatsStreamName    = "MAILSYNC_EVENTS"
	NatsSubjectPrefix = "mailsync."
)

type jetStreamPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// NatsPublisher mirrors domain events onto a JetStream stream. The event id
// is the message id so redeliveries inside the duplicate window are dropped.
type NatsPublisher struct {
	nc     *nats.Conn
	js     jetStreamPublisher
	logger logger.Logger
}

func NewNatsPublisher(url string, log logger.Logger) (*NatsPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("mailsync"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to NATS")
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, errors.Wrap(err, "failed to get JetStream context")
	}

	if err := ensureStream(js); err != nil {
		nc.Close()
		return nil, err
	}

	return &NatsPublisher{nc: nc, js: js, logger: log}, nil
}

func ensureStream(js nats.JetStreamContext) error {
	info, err := js.StreamInfo(NatsStreamName)
	if err == nil && info != nil {
		return nil
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:       NatsStreamName,
		Subjects:   []string{NatsSubjectPrefix + ">"},
		Storage:    nats.FileStorage,
		Retention:  nats.LimitsPolicy,
		Duplicates: 10 * time.Minute,
		MaxAge:     7 * 24 * time.Hour,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return errors.Wrap(err, "failed to create stream")
	}
	return nil
}

func NatsSubject(eventType string) string {
	return NatsSubjectPrefix + eventType
}

func (p *NatsPublisher) PublishEvent(ctx context.Context, eventType, entityId string, entityType enum.EntityType, data interface{}) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "NatsPublisher.PublishEvent")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, entityId)
	span.LogKV("eventType", eventType)

	event := NewEvent(ctx, span, eventType, entityId, entityType, data)
	payload, err := json.Marshal(event)
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to marshal event")
	}

	_, err = p.js.Publish(NatsSubject(eventType), payload, nats.MsgId(event.Event.Id), nats.Context(ctx))
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to publish event")
	}
	return nil
}

func (p *NatsPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return err
	}
	return nil
}
