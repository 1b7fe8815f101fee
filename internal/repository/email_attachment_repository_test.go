package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/testutil"
	"github.com/customeros/mailsync/internal/utils"
)

func newAttachment(emailID, name string) *models.EmailAttachment {
	return &models.EmailAttachment{
		EmailID:               emailID,
		AccountID:             "acct_1",
		UserID:                "user_1",
		Provider:              enum.EmailGoogleWorkspace,
		Filename:              name,
		OriginalFilename:      name,
		ContentType:           "application/pdf",
		Size:                  10,
		ProviderMessageRef:    "m1",
		ProviderAttachmentRef: "ref-1",
		DownloadStatus:        enum.DownloadStatusPending,
	}
}

func TestEmailAttachmentRepository_UpsertDeduplicates(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := &emailAttachmentRepository{db: db}
	ctx := context.Background()

	first, err := repo.Upsert(ctx, newAttachment("email_1", "report.pdf"))
	require.NoError(t, err)
	assert.Equal(t, enum.DownloadStatusPending, first.DownloadStatus)

	again := newAttachment("email_1", "report.pdf")
	again.ProviderAttachmentRef = "ref-2"
	second, err := repo.Upsert(ctx, again)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "ref-2", second.ProviderAttachmentRef)

	var count int64
	require.NoError(t, db.Model(&models.EmailAttachment{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestEmailAttachmentRepository_UpsertKeepsCompleted(t *testing.T) {
	repo := &emailAttachmentRepository{db: testutil.NewTestDB(t)}
	ctx := context.Background()

	row, err := repo.Upsert(ctx, newAttachment("email_1", "report.pdf"))
	require.NoError(t, err)
	require.NoError(t, repo.MarkCompleted(ctx, row.ID, "https://cdn/x", "attachments/x", 10, "abc"))

	failed := newAttachment("email_1", "report.pdf")
	failed.DownloadStatus = enum.DownloadStatusFailed
	failed.DownloadError = utils.StringPtr("boom")
	stored, err := repo.Upsert(ctx, failed)
	require.NoError(t, err)

	assert.Equal(t, enum.DownloadStatusCompleted, stored.DownloadStatus)
	require.NotNil(t, stored.StorageURL)
	assert.Equal(t, "https://cdn/x", *stored.StorageURL)
}

func TestEmailAttachmentRepository_Transitions(t *testing.T) {
	repo := &emailAttachmentRepository{db: testutil.NewTestDB(t)}
	ctx := context.Background()

	row, err := repo.Upsert(ctx, newAttachment("email_1", "report.pdf"))
	require.NoError(t, err)

	ok, err := repo.MarkDownloading(ctx, row.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.MarkFailed(ctx, row.ID, "fetch failed"))
	loaded, err := repo.GetByID(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.DownloadStatusFailed, loaded.DownloadStatus)
	assert.Nil(t, loaded.StorageURL)
	require.NotNil(t, loaded.DownloadError)

	ok, err = repo.MarkDownloading(ctx, row.ID)
	require.NoError(t, err)
	assert.True(t, ok, "failed rows are retryable")

	require.NoError(t, repo.MarkCompleted(ctx, row.ID, "https://cdn/x", "attachments/x", 42, "hash"))
	loaded, err = repo.GetByID(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.DownloadStatusCompleted, loaded.DownloadStatus)
	assert.Equal(t, int64(42), loaded.Size)
	assert.Nil(t, loaded.DownloadError)

	ok, err = repo.MarkDownloading(ctx, row.ID)
	require.NoError(t, err)
	assert.False(t, ok, "completed rows never go back to downloading")

	require.NoError(t, repo.MarkFailed(ctx, row.ID, "late failure"))
	loaded, err = repo.GetByID(ctx, row.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.DownloadStatusCompleted, loaded.DownloadStatus)
	assert.NotNil(t, loaded.StorageURL)
}

func TestEmailAttachmentRepository_MarkCompletedRequiresURL(t *testing.T) {
	repo := &emailAttachmentRepository{db: testutil.NewTestDB(t)}
	err := repo.MarkCompleted(context.Background(), "file_1", "", "key", 1, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
