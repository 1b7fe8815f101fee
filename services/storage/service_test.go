package storage

import (
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailsync/config"
)

type mockS3Client struct {
	mock.Mock
}

func (m *mockS3Client) Upload(ctx context.Context, input s3manager.UploadInput) (string, error) {
	args := m.Called(ctx, input)
	return args.String(0), args.Error(1)
}

func (m *mockS3Client) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	args := m.Called(ctx, bucket, key)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func (m *mockS3Client) Delete(ctx context.Context, bucket, key string) error {
	return m.Called(ctx, bucket, key).Error(0)
}

func TestUpload_UsesCDNURL(t *testing.T) {
	client := new(mockS3Client)
	client.On("Upload", mock.Anything, mock.MatchedBy(func(in s3manager.UploadInput) bool {
		body, _ := io.ReadAll(in.Body)
		return aws.StringValue(in.Bucket) == "attachments" &&
			aws.StringValue(in.Key) == "attachments/u1/a.pdf" &&
			aws.StringValue(in.ContentType) == "application/pdf" &&
			aws.StringValue(in.ACL) == "public-read" &&
			string(body) == "data"
	})).Return("https://bucket.example/attachments/u1/a.pdf", nil)

	svc := NewStorageService(client, StorageConfig{BucketName: "attachments", IsPublic: true, CDNDomain: "cdn.example.com/"})
	res, err := svc.Upload(context.Background(), "attachments/u1/a.pdf", []byte("data"), "application/pdf")

	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/attachments/u1/a.pdf", res.URL)
	assert.Equal(t, "attachments/u1/a.pdf", res.Key)
	client.AssertExpectations(t)
}

func TestUpload_FallsBackToLocation(t *testing.T) {
	client := new(mockS3Client)
	client.On("Upload", mock.Anything, mock.MatchedBy(func(in s3manager.UploadInput) bool {
		return in.ACL == nil
	})).Return("https://acct.r2.cloudflarestorage.com/attachments/k", nil)

	svc := NewStorageService(client, StorageConfig{BucketName: "attachments"})
	res, err := svc.Upload(context.Background(), "k", []byte("x"), "text/plain")

	require.NoError(t, err)
	assert.Equal(t, "https://acct.r2.cloudflarestorage.com/attachments/k", res.URL)
}

func TestUpload_Errors(t *testing.T) {
	client := new(mockS3Client)
	client.On("Upload", mock.Anything, mock.Anything).Return("", errors.New("boom"))
	svc := NewStorageService(client, StorageConfig{BucketName: "b"})

	_, err := svc.Upload(context.Background(), "k", nil, "text/plain")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	_, err = svc.Upload(context.Background(), "", nil, "text/plain")
	require.Error(t, err)
	client.AssertNumberOfCalls(t, "Upload", 1)
}

func TestDownloadAndDelete(t *testing.T) {
	client := new(mockS3Client)
	client.On("Download", mock.Anything, "b", "k").Return([]byte("payload"), nil)
	client.On("Delete", mock.Anything, "b", "k").Return(nil)
	svc := NewStorageService(client, StorageConfig{BucketName: "b"})

	data, err := svc.Download(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
	require.NoError(t, svc.Delete(context.Background(), "k"))
	assert.Empty(t, svc.GetPublicURL("k"))
}

func TestNewStorageServiceFromConfig(t *testing.T) {
	_, err := NewStorageServiceFromConfig(&config.Config{
		R2StorageConfig: &config.R2StorageConfig{},
		S3StorageConfig: &config.S3StorageConfig{},
	})
	require.Error(t, err)

	_, err = NewStorageServiceFromConfig(&config.Config{
		S3StorageConfig: &config.S3StorageConfig{Region: "eu-west-1"},
	})
	require.Error(t, err)

	svc, err := NewStorageServiceFromConfig(&config.Config{
		R2StorageConfig: &config.R2StorageConfig{AccountID: "acct", EmailAttachmentBucket: "attachments", CDNDomain: "files.example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/x", svc.GetPublicURL("x"))
}
