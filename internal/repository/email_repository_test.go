package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/testutil"
)

func newEmail(accountID, providerMessageID, subject string) *models.Email {
	return &models.Email{
		AccountID:         accountID,
		Provider:          enum.EmailGoogleWorkspace,
		ProviderMessageID: providerMessageID,
		Subject:           subject,
		From:              models.EmailAddresses{{Email: "a@example.com"}},
		FromAddress:       "a@example.com",
		To:                models.EmailAddresses{},
		FolderName:        "inbox",
		LabelIDs:          models.StringArray{"INBOX", "UNREAD"},
	}
}

func TestEmailRepository_UpsertDeduplicates(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := &emailRepository{db: db}
	ctx := context.Background()

	first, created, err := repo.Upsert(ctx, newEmail("acct_1", "m1", "hello"))
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := repo.Upsert(ctx, newEmail("acct_1", "m1", "hello again"))
	require.NoError(t, err)
	assert.False(t, created)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "hello again", second.Subject)

	var count int64
	require.NoError(t, db.Model(&models.Email{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// same provider id under another account is a different row
	_, _, err = repo.Upsert(ctx, newEmail("acct_2", "m1", "other account"))
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Email{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestEmailRepository_AddressListsRoundTrip(t *testing.T) {
	repo := &emailRepository{db: testutil.NewTestDB(t)}
	ctx := context.Background()

	email := newEmail("acct_1", "m1", "lists")
	email.Cc = models.EmailAddresses{{Email: "cc@example.com", Name: "Cc"}}

	stored, _, err := repo.Upsert(ctx, email)
	require.NoError(t, err)

	assert.NotNil(t, stored.To)
	assert.Empty(t, stored.To)
	assert.Nil(t, stored.Bcc)
	assert.Nil(t, stored.ReplyTo)
	require.Len(t, stored.Cc, 1)
	assert.Equal(t, "Cc", stored.Cc[0].Name)
	assert.Equal(t, []string{"INBOX", "UNREAD"}, []string(stored.LabelIDs))
}

func TestEmailRepository_RejectsMissingKey(t *testing.T) {
	repo := &emailRepository{db: testutil.NewTestDB(t)}

	_, _, err := repo.Upsert(context.Background(), newEmail("acct_1", "", "no id"))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEmailRepository_ListByAccount(t *testing.T) {
	repo := &emailRepository{db: testutil.NewTestDB(t)}
	ctx := context.Background()

	for _, id := range []string{"m1", "m2", "m3"} {
		_, _, err := repo.Upsert(ctx, newEmail("acct_1", id, id))
		require.NoError(t, err)
	}

	emails, total, err := repo.ListByAccount(ctx, "acct_1", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, emails, 2)
}
