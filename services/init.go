package services

import (
	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/services/accounts"
	"github.com/customeros/mailsync/services/attachments"
	"github.com/customeros/mailsync/services/credentials"
	"github.com/customeros/mailsync/services/email_filter"
	"github.com/customeros/mailsync/services/email_sync"
	"github.com/customeros/mailsync/services/emails"
	"github.com/customeros/mailsync/services/events"
	"github.com/customeros/mailsync/services/providers"
	"github.com/customeros/mailsync/services/providers/gmail"
	"github.com/customeros/mailsync/services/providers/imap"
	"github.com/customeros/mailsync/services/providers/outlook"
	"github.com/customeros/mailsync/services/storage"
)

type Services struct {
	EventsService     *events.EventsService
	StorageService    interfaces.StorageService
	Providers         *providers.Registry
	CredentialStore   interfaces.CredentialStore
	AccountService    interfaces.AccountService
	EmailService      interfaces.EmailService
	AttachmentService interfaces.AttachmentService
	SyncService       interfaces.SyncService
}

func InitServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories) (*Services, error) {
	// events
	publisherConfig := &events.PublisherConfig{
		MessageTTL:          events.DefaultMessageTTL,
		MaxRetries:          events.DefaultMaxRetries,
		PublishTimeout:      events.DefaultPublishTimeout,
		ReconnectBackoff:    events.DefaultReconnectBackoff,
		MaxReconnectBackoff: events.DefaultMaxReconnectBackoff,
	}

	eventsService, err := events.NewEventsServiceFromConfig(cfg, log, publisherConfig)
	if err != nil {
		return nil, err
	}

	storageService, err := storage.NewStorageServiceFromConfig(cfg)
	if err != nil {
		_ = eventsService.Close()
		return nil, err
	}

	return NewServices(cfg, log, repos, storageService, eventsService), nil
}

// NewServices wires the services around already built storage and event
// backends.
func NewServices(cfg *config.Config, log logger.Logger, repos *repository.Repositories, storageService interfaces.StorageService, eventsService *events.EventsService) *Services {
	registry := providers.NewRegistry(
		gmail.NewAdapter(cfg.GmailConfig, cfg.BreakerConfig, log.WithName("gmail")),
		outlook.NewAdapter(cfg.OutlookConfig, cfg.BreakerConfig, log.WithName("outlook")),
		imap.NewAdapter(cfg.ImapConfig, log.WithName("imap")),
	)
	credentialStore := credentials.NewCredentialStore()

	pipeline := attachments.NewPipeline(repos, storageService, registry, credentialStore, eventsService, cfg.SyncConfig, log.WithName("attachments"))
	syncService := email_sync.NewSyncService(repos, registry, credentialStore, pipeline, email_filter.NewEmailFilterService(), eventsService, cfg.SyncConfig, log.WithName("sync"))

	return &Services{
		EventsService:     eventsService,
		StorageService:    storageService,
		Providers:         registry,
		CredentialStore:   credentialStore,
		AccountService:    accounts.NewAccountService(repos),
		EmailService:      emails.NewEmailService(repos),
		AttachmentService: pipeline,
		SyncService:       syncService,
	}
}

func (s *Services) Close() error {
	if s.EventsService == nil {
		return nil
	}
	return s.EventsService.Close()
}
