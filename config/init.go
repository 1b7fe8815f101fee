package config

import (
	"log"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	cron_config "github.com/customeros/mailsync/internal/cron/config"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/tracing"
)

type Config struct {
	AppConfig              *AppConfig
	Logger                 *logger.Config
	Tracing                *tracing.JaegerConfig
	MailsyncDatabaseConfig *MailsyncDatabaseConfig
	R2StorageConfig        *R2StorageConfig
	S3StorageConfig        *S3StorageConfig
	SyncConfig             *SyncConfig
	GmailConfig            *GmailConfig
	OutlookConfig          *OutlookConfig
	ImapConfig             *ImapConfig
	BreakerConfig          *BreakerConfig
	CronConfig             *cron_config.Config
}

func InitConfig() (*Config, error) {
	config := &Config{
		AppConfig:              &AppConfig{},
		Logger:                 &logger.Config{},
		Tracing:                &tracing.JaegerConfig{},
		MailsyncDatabaseConfig: &MailsyncDatabaseConfig{},
		R2StorageConfig:        &R2StorageConfig{},
		S3StorageConfig:        &S3StorageConfig{},
		SyncConfig:             &SyncConfig{},
		GmailConfig:            &GmailConfig{},
		OutlookConfig:          &OutlookConfig{},
		ImapConfig:             &ImapConfig{},
		BreakerConfig:          &BreakerConfig{},
		CronConfig:             &cron_config.Config{},
	}

	err := godotenv.Load()
	if err != nil {
		log.Print("Unable to load .env file")
	}

	err = env.Parse(config)
	if err != nil {
		log.Fatalf("Error loading mailsync config: %v", err)
	}

	return config, nil
}
