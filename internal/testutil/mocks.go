package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"

	"github.com/customeros/mailsync/dto"
	mailsync_errors "github.com/customeros/mailsync/errors"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/models"
)

type MockProviderAdapter struct {
	mock.Mock
	ProviderKind enum.EmailProvider
	Mode         enum.AttachmentMode
}

func (m *MockProviderAdapter) Provider() enum.EmailProvider {
	return m.ProviderKind
}

func (m *MockProviderAdapter) AttachmentMode() enum.AttachmentMode {
	if m.Mode == "" {
		return enum.AttachmentModeLazy
	}
	return m.Mode
}

func (m *MockProviderAdapter) ListMessages(ctx context.Context, creds *dto.Credentials, req dto.ListMessagesRequest) (*dto.MessagePage, error) {
	args := m.Called(ctx, creds, req)
	page, _ := args.Get(0).(*dto.MessagePage)
	return page, args.Error(1)
}

func (m *MockProviderAdapter) FetchAttachmentBytes(ctx context.Context, creds *dto.Credentials, messageRef, attachmentRef string) ([]byte, error) {
	args := m.Called(ctx, creds, messageRef, attachmentRef)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

// StaticRegistry serves a fixed set of adapters.
type StaticRegistry map[enum.EmailProvider]interfaces.ProviderAdapter

func (r StaticRegistry) Adapter(provider enum.EmailProvider) (interfaces.ProviderAdapter, error) {
	if a, ok := r[provider]; ok {
		return a, nil
	}
	return nil, errors.Wrapf(mailsync_errors.ErrUnsupportedProvider, "provider %q", provider)
}

// StaticCredentialStore hands out a bearer token, or Err when set.
type StaticCredentialStore struct {
	Err   error
	Calls int
}

func (s *StaticCredentialStore) GetCredentials(_ context.Context, account *models.Account) (*dto.Credentials, error) {
	s.Calls++
	if s.Err != nil {
		return nil, s.Err
	}
	return &dto.Credentials{Provider: account.Provider, AccessToken: "token-" + account.ID}, nil
}

// MemoryStorage keeps uploads in memory. FailUploads makes every upload fail.
type MemoryStorage struct {
	mu          sync.Mutex
	Objects     map[string][]byte
	Uploads     int
	FailUploads bool
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{Objects: map[string][]byte{}}
}

func (s *MemoryStorage) Upload(_ context.Context, key string, data []byte, _ string) (*dto.UploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Uploads++
	if s.FailUploads {
		return nil, errors.New("bucket unavailable")
	}
	s.Objects[key] = append([]byte(nil), data...)
	return &dto.UploadResult{URL: s.GetPublicURL(key), Key: key}, nil
}

func (s *MemoryStorage) Download(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.Objects[key]
	if !ok {
		return nil, fmt.Errorf("no object %s", key)
	}
	return data, nil
}

func (s *MemoryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.Objects, key)
	return nil
}

func (s *MemoryStorage) GetPublicURL(key string) string {
	return "https://cdn.test/" + key
}

type NotifiedEvent struct {
	EventType string
	EntityID  string
	Data      interface{}
}

// RecordingNotifier collects events instead of publishing them.
type RecordingNotifier struct {
	mu     sync.Mutex
	Events []NotifiedEvent
}

func (n *RecordingNotifier) Notify(_ context.Context, eventType, entityId string, _ enum.EntityType, data interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Events = append(n.Events, NotifiedEvent{EventType: eventType, EntityID: entityId, Data: data})
}

func (n *RecordingNotifier) Types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.Events))
	for _, e := range n.Events {
		out = append(out, e.EventType)
	}
	return out
}
