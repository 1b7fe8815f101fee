package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailsync/dto"
	mailsync_errors "github.com/customeros/mailsync/errors"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/testutil"
	"github.com/customeros/mailsync/internal/utils"
)

type fakePublisher struct {
	err    error
	events []string
	closed bool
}

func (f *fakePublisher) PublishEvent(_ context.Context, eventType, _ string, _ enum.EntityType, _ interface{}) error {
	f.events = append(f.events, eventType)
	return f.err
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

type fakeJetStream struct {
	subject string
	payload []byte
	opts    int
	err     error
}

func (f *fakeJetStream) Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error) {
	f.subject = subj
	f.payload = data
	f.opts = len(opts)
	if f.err != nil {
		return nil, f.err
	}
	return &nats.PubAck{Stream: NatsStreamName, Sequence: 1}, nil
}

type mockSyncService struct {
	mock.Mock
}

func (m *mockSyncService) SyncAccount(ctx context.Context, accountID string, opts dto.SyncOptions) (*dto.SyncResult, error) {
	args := m.Called(ctx, accountID, opts)
	result, _ := args.Get(0).(*dto.SyncResult)
	return result, args.Error(1)
}

func (m *mockSyncService) GetSyncProgress(ctx context.Context, accountID string) (*dto.SyncProgress, error) {
	args := m.Called(ctx, accountID)
	progress, _ := args.Get(0).(*dto.SyncProgress)
	return progress, args.Error(1)
}

func TestNewEvent_FillsEnvelopeFromContext(t *testing.T) {
	ctx := utils.WithCustomContext(context.Background(), &utils.CustomContext{
		AppSource: "api",
		UserId:    "user_1",
		AccountId: "acct_1",
	})

	event := NewEvent(ctx, nil, dto.EventSyncCompleted, "acct_1", enum.ACCOUNT, dto.SyncCompletedEvent{AccountID: "acct_1"})

	assert.NotEmpty(t, event.Event.Id)
	assert.Equal(t, "acct_1", event.Event.AccountId)
	assert.Equal(t, dto.EventSyncCompleted, event.Event.EventType)
	assert.Equal(t, enum.ACCOUNT, event.Event.EntityType)
	assert.Equal(t, "api", event.Metadata.AppSource)
	assert.Equal(t, "user_1", event.Metadata.UserId)
	_, err := time.Parse(time.RFC3339, event.Metadata.Timestamp)
	assert.NoError(t, err)
}

func TestNewEvent_AccountIdFallsBackToEntity(t *testing.T) {
	event := NewEvent(context.Background(), nil, dto.EventSyncFailed, "acct_9", enum.ACCOUNT, map[string]any{})
	assert.Equal(t, "acct_9", event.Event.AccountId)

	event = NewEvent(context.Background(), nil, dto.EventAttachmentDownloaded, "att_1", enum.EMAIL_ATTACHMENT, map[string]any{})
	assert.Empty(t, event.Event.AccountId)
}

func TestRoutingKeyFor(t *testing.T) {
	assert.Equal(t, RoutingKeySyncRequested, routingKeyFor(dto.EventSyncRequested))
	assert.Equal(t, RoutingKeyEvents, routingKeyFor(dto.EventSyncCompleted))
	assert.Equal(t, RoutingKeyEvents, routingKeyFor(dto.EventAttachmentDownloaded))
}

func TestEventsService_FansOutAndSwallowsErrors(t *testing.T) {
	ok := &fakePublisher{}
	failing := &fakePublisher{err: errors.New("broker down")}
	service := NewEventsService(testutil.NewTestLogger(), failing, ok)

	service.Notify(context.Background(), dto.EventSyncCompleted, "acct_1", enum.ACCOUNT, dto.SyncCompletedEvent{})

	assert.Equal(t, []string{dto.EventSyncCompleted}, ok.events)
	assert.Equal(t, []string{dto.EventSyncCompleted}, failing.events)

	err := service.PublishEvent(context.Background(), dto.EventSyncFailed, "acct_1", enum.ACCOUNT, dto.SyncFailedEvent{})
	assert.EqualError(t, err, "broker down")

	require.NoError(t, service.Close())
	assert.True(t, ok.closed)
	assert.True(t, failing.closed)
}

func TestEventsService_NoPublishers(t *testing.T) {
	service := NewEventsService(testutil.NewTestLogger())

	assert.NotPanics(t, func() {
		service.Notify(context.Background(), dto.EventSyncCompleted, "acct_1", enum.ACCOUNT, nil)
	})
	assert.NoError(t, service.PublishEvent(context.Background(), dto.EventSyncCompleted, "acct_1", enum.ACCOUNT, nil))
	assert.NoError(t, service.Close())
}

func TestNatsPublisher_PublishesEnvelopeOnSubject(t *testing.T) {
	js := &fakeJetStream{}
	publisher := &NatsPublisher{js: js, logger: testutil.NewTestLogger()}

	err := publisher.PublishEvent(context.Background(), dto.EventAttachmentDownloaded, "att_1", enum.EMAIL_ATTACHMENT,
		dto.AttachmentDownloadedEvent{AttachmentID: "att_1", Size: 42})
	require.NoError(t, err)

	assert.Equal(t, "mailsync.AttachmentDownloaded", js.subject)
	assert.Equal(t, 2, js.opts)

	var event dto.Event
	require.NoError(t, json.Unmarshal(js.payload, &event))
	assert.Equal(t, "att_1", event.Event.EntityId)
	assert.Equal(t, enum.EMAIL_ATTACHMENT, event.Event.EntityType)
	data, ok := event.Event.Data.(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 42, data["size"])
}

func TestNatsPublisher_PublishError(t *testing.T) {
	publisher := &NatsPublisher{js: &fakeJetStream{err: nats.ErrNoResponders}, logger: testutil.NewTestLogger()}

	err := publisher.PublishEvent(context.Background(), dto.EventSyncCompleted, "acct_1", enum.ACCOUNT, nil)
	assert.ErrorIs(t, err, nats.ErrNoResponders)
	assert.NoError(t, publisher.Close())
}

func TestValidateBaseEvent(t *testing.T) {
	base := NewBaseEventListener(testutil.NewTestLogger(), dto.EventSyncRequested, QueueSyncRequests)
	valid := dto.Event{Event: dto.EventDetails{EntityId: "acct_1", EventType: dto.EventSyncRequested, Data: map[string]interface{}{}}}

	event, err := base.ValidateBaseEvent(context.Background(), valid)
	require.NoError(t, err)
	assert.Equal(t, "acct_1", event.Event.EntityId)

	_, err = base.ValidateBaseEvent(context.Background(), &valid)
	assert.NoError(t, err)

	noData := valid
	noData.Event.Data = nil
	_, err = base.ValidateBaseEvent(context.Background(), noData)
	assert.Error(t, err)

	noEntity := valid
	noEntity.Event.EntityId = ""
	_, err = base.ValidateBaseEvent(context.Background(), noEntity)
	assert.Error(t, err)

	wrongType := valid
	wrongType.Event.EventType = dto.EventSyncCompleted
	_, err = base.ValidateBaseEvent(context.Background(), wrongType)
	assert.Error(t, err)

	_, err = base.ValidateBaseEvent(context.Background(), "not an event")
	assert.Error(t, err)
}

func TestDecodeEventData(t *testing.T) {
	event := &dto.Event{Event: dto.EventDetails{Data: map[string]interface{}{
		"accountId": "acct_1",
		"options":   map[string]interface{}{"mode": "full", "limit": 10},
	}}}

	decoded, err := DecodeEventData[dto.SyncRequestedEvent](context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, "acct_1", decoded.AccountID)
	assert.Equal(t, enum.SyncModeFull, decoded.Options.Mode)
	assert.Equal(t, 10, decoded.Options.Limit)

	typed := &dto.Event{Event: dto.EventDetails{Data: dto.SyncRequestedEvent{AccountID: "acct_2"}}}
	decoded, err = DecodeEventData[dto.SyncRequestedEvent](context.Background(), typed)
	require.NoError(t, err)
	assert.Equal(t, "acct_2", decoded.AccountID)

	bad := &dto.Event{Event: dto.EventDetails{Data: map[string]interface{}{"accountId": 12}}}
	_, err = DecodeEventData[dto.SyncRequestedEvent](context.Background(), bad)
	assert.Error(t, err)
}

func syncRequest(accountID string, mode enum.SyncMode) dto.Event {
	return dto.Event{Event: dto.EventDetails{
		Id:         "evt_1",
		EntityId:   accountID,
		EntityType: enum.ACCOUNT,
		EventType:  dto.EventSyncRequested,
		Data: map[string]interface{}{
			"accountId": accountID,
			"options":   map[string]interface{}{"mode": string(mode)},
		},
	}}
}

func TestSyncRequestedListener_RunsSync(t *testing.T) {
	syncService := &mockSyncService{}
	syncService.On("SyncAccount", mock.Anything, "acct_1", dto.SyncOptions{Mode: enum.SyncModeFull}).
		Return(&dto.SyncResult{AccountID: "acct_1", Success: true, EmailsSynced: 3, PagesFetched: 1}, nil).Once()
	listener := NewSyncRequestedListener(testutil.NewTestLogger(), syncService)

	assert.Equal(t, dto.EventSyncRequested, listener.GetEventType())
	assert.Equal(t, QueueSyncRequests, listener.GetQueueName())
	require.NoError(t, listener.Handle(context.Background(), syncRequest("acct_1", enum.SyncModeFull)))
	syncService.AssertExpectations(t)
}

func TestSyncRequestedListener_AcksBenignFailures(t *testing.T) {
	syncService := &mockSyncService{}
	syncService.On("SyncAccount", mock.Anything, "acct_busy", mock.Anything).
		Return(nil, errors.Wrap(mailsync_errors.ErrSyncInProgress, "acct_busy"))
	syncService.On("SyncAccount", mock.Anything, "acct_gone", mock.Anything).
		Return(nil, mailsync_errors.ErrAccountNotFound)
	syncService.On("SyncAccount", mock.Anything, "acct_broken", mock.Anything).
		Return(nil, errors.New("provider exploded"))
	listener := NewSyncRequestedListener(testutil.NewTestLogger(), syncService)

	assert.NoError(t, listener.Handle(context.Background(), syncRequest("acct_busy", enum.SyncModeIncremental)))
	assert.NoError(t, listener.Handle(context.Background(), syncRequest("acct_gone", enum.SyncModeIncremental)))
	assert.EqualError(t, listener.Handle(context.Background(), syncRequest("acct_broken", enum.SyncModeIncremental)), "provider exploded")
}

func TestSubscriberDispatch(t *testing.T) {
	syncService := &mockSyncService{}
	syncService.On("SyncAccount", mock.Anything, "acct_1", mock.Anything).
		Return(&dto.SyncResult{AccountID: "acct_1", Success: true}, nil)

	subscriber := newSubscriber("amqp://unused", testutil.NewTestLogger(), &SubscriberConfig{})
	subscriber.RegisterListener(NewSyncRequestedListener(testutil.NewTestLogger(), syncService))

	event := syncRequest("acct_1", enum.SyncModeIncremental)
	event.Metadata.UserId = "user_7"

	require.NoError(t, subscriber.dispatch(context.Background(), event, QueueSyncRequests))
	syncService.AssertNumberOfCalls(t, "SyncAccount", 1)
	ctx := syncService.Calls[0].Arguments.Get(0).(context.Context)
	assert.Equal(t, "user_7", utils.GetUserIdFromContext(ctx))
	assert.Equal(t, defaultAppSource, utils.GetAppSourceFromContext(ctx))
	assert.Equal(t, "acct_1", utils.GetAccountIdFromContext(ctx))

	// wrong queue and unknown event types are dropped
	require.NoError(t, subscriber.dispatch(context.Background(), event, QueueMailsyncEvents))
	unknown := event
	unknown.Event.EventType = "Unknown"
	require.NoError(t, subscriber.dispatch(context.Background(), unknown, QueueSyncRequests))
	syncService.AssertNumberOfCalls(t, "SyncAccount", 1)
}
