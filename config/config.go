package config

import "time"

type AppConfig struct {
	APIPort     string `env:"PORT,required" envDefault:"12222"`
	APIKey      string `env:"API_KEY"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
	NatsURL     string `env:"NATS_URL"`
}

type MailsyncDatabaseConfig struct {
	Host            string `env:"MAILSYNC_POSTGRES_HOST,required"`
	Port            string `env:"MAILSYNC_POSTGRES_PORT,required"`
	User            string `env:"MAILSYNC_POSTGRES_USER,required"`
	DBName          string `env:"MAILSYNC_POSTGRES_DB_NAME,required"`
	Password        string `env:"MAILSYNC_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"MAILSYNC_POSTGRES_DB_MAX_CONN" envDefault:"50"`
	MaxIdleConn     int    `env:"MAILSYNC_POSTGRES_DB_MAX_IDLE_CONN" envDefault:"10"`
	ConnMaxLifetime int    `env:"MAILSYNC_POSTGRES_DB_CONN_MAX_LIFETIME" envDefault:"60"`
	LogLevel        string `env:"MAILSYNC_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"MAILSYNC_POSTGRES_SSL_MODE" envDefault:"require"`
}

type R2StorageConfig struct {
	AccountID             string `env:"CLOUDFLARE_R2_ACCOUNT_ID"`
	AccessKeyID           string `env:"CLOUDFLARE_R2_ACCESS_KEY_ID"`
	AccessKeySecret       string `env:"CLOUDFLARE_R2_ACCESS_KEY_SECRET"`
	EmailAttachmentBucket string `env:"BUCKET_NAME_EMAIL_ATTACHMENT" envDefault:"attachments"`
	CDNDomain             string `env:"CLOUDFLARE_R2_CDN_DOMAIN"`
	PublicAccess          bool   `env:"CLOUDFLARE_R2_PUBLIC_ACCESS" envDefault:"false"`
}

// S3StorageConfig is used instead of R2 when a region is set.
type S3StorageConfig struct {
	Region          string `env:"AWS_S3_REGION"`
	AccessKeyID     string `env:"AWS_S3_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"AWS_S3_ACCESS_KEY_SECRET"`
	Bucket          string `env:"AWS_S3_BUCKET"`
	CDNDomain       string `env:"AWS_S3_CDN_DOMAIN"`
}

type SyncConfig struct {
	BatchSize              int           `env:"SYNC_BATCH_SIZE" envDefault:"50"`
	ProviderRequestTimeout time.Duration `env:"PROVIDER_REQUEST_TIMEOUT" envDefault:"45s"`
	StaleAfter             time.Duration `env:"SYNC_STALE_AFTER" envDefault:"30m"`
	StorageUploadTimeout   time.Duration `env:"STORAGE_UPLOAD_TIMEOUT" envDefault:"60s"`
}

type GmailConfig struct {
	// Overrides the Gmail API base URL, used against local fakes
	Endpoint string `env:"GMAIL_API_ENDPOINT"`
}

type OutlookConfig struct {
	// Graph user id used when an account has no email address
	DefaultUserID string `env:"OUTLOOK_DEFAULT_USER_ID" envDefault:"me"`
}

type ImapConfig struct {
	DialTimeout    time.Duration `env:"IMAP_DIAL_TIMEOUT" envDefault:"30s"`
	CommandTimeout time.Duration `env:"IMAP_COMMAND_TIMEOUT" envDefault:"60s"`
}

type BreakerConfig struct {
	MaxRequests         uint32        `env:"PROVIDER_BREAKER_MAX_REQUESTS" envDefault:"3"`
	Interval            time.Duration `env:"PROVIDER_BREAKER_INTERVAL" envDefault:"60s"`
	Timeout             time.Duration `env:"PROVIDER_BREAKER_TIMEOUT" envDefault:"30s"`
	ConsecutiveFailures uint32        `env:"PROVIDER_BREAKER_CONSECUTIVE_FAILURES" envDefault:"5"`
}
