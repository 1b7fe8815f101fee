package storage

import (
	"github.com/pkg/errors"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/interfaces"
	"github.com/customeros/mailsync/services/storage/aws_client"
)

// NewS3StorageService creates a StorageService configured for AWS S3
func NewS3StorageService(cfg *config.S3StorageConfig) interfaces.StorageService {
	return NewStorageService(aws_client.NewAWSClient(aws_client.S3Config{
		Region:          cfg.Region,
		AccessKeyID:     cfg.AccessKeyID,
		AccessKeySecret: cfg.AccessKeySecret,
	}), StorageConfig{
		BucketName: cfg.Bucket,
		CDNDomain:  cfg.CDNDomain,
	})
}

// NewR2StorageService creates a StorageService configured for Cloudflare R2
func NewR2StorageService(cfg *config.R2StorageConfig) interfaces.StorageService {
	return NewStorageService(aws_client.NewR2Client(aws_client.R2Config{
		AccountID:       cfg.AccountID,
		AccessKeyID:     cfg.AccessKeyID,
		AccessKeySecret: cfg.AccessKeySecret,
	}), StorageConfig{
		BucketName: cfg.EmailAttachmentBucket,
		IsPublic:   cfg.PublicAccess,
		CDNDomain:  cfg.CDNDomain,
	})
}

// NewStorageServiceFromConfig picks S3 when a region is configured and R2
// otherwise.
func NewStorageServiceFromConfig(cfg *config.Config) (interfaces.StorageService, error) {
	if cfg.S3StorageConfig != nil && cfg.S3StorageConfig.Region != "" {
		if cfg.S3StorageConfig.Bucket == "" {
			return nil, errors.New("AWS_S3_BUCKET is required when AWS_S3_REGION is set")
		}
		return NewS3StorageService(cfg.S3StorageConfig), nil
	}
	if cfg.R2StorageConfig == nil || cfg.R2StorageConfig.AccountID == "" {
		return nil, errors.New("no object storage configured: set CLOUDFLARE_R2_ACCOUNT_ID or AWS_S3_REGION")
	}
	return NewR2StorageService(cfg.R2StorageConfig), nil
}
