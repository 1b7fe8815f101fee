package emails

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mailsync_errors "github.com/customeros/mailsync/errors"
	"github.com/customeros/mailsync/internal/enum"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/internal/testutil"
)

func seed(t *testing.T, n int) (*repository.Repositories, *models.Account) {
	t.Helper()
	ctx := context.Background()
	repos := repository.InitRepositories(testutil.NewTestDB(t))

	account := &models.Account{UserID: "user_1", Provider: enum.EmailOutlook, EmailAddress: "me@example.com", GrantRef: "tok"}
	require.NoError(t, repos.AccountRepository.Create(ctx, account))

	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		received := base.Add(time.Duration(i) * time.Hour)
		_, _, err := repos.EmailRepository.Upsert(ctx, &models.Email{
			AccountID:         account.ID,
			Provider:          account.Provider,
			ProviderMessageID: fmt.Sprintf("msg-%d", i),
			Subject:           fmt.Sprintf("Update %d", i),
			From:              models.EmailAddresses{{Email: "pm@example.com"}},
			FromAddress:       "pm@example.com",
			To:                models.EmailAddresses{},
			ReceivedAt:        &received,
		})
		require.NoError(t, err)
	}
	return repos, account
}

func TestListByAccount_NewestFirstWithTotal(t *testing.T) {
	repos, account := seed(t, 5)
	svc := NewEmailService(repos)

	emails, total, err := svc.ListByAccount(context.Background(), account.ID, 2, 1)
	require.NoError(t, err)

	assert.Equal(t, int64(5), total)
	require.Len(t, emails, 2)
	assert.Equal(t, "msg-3", emails[0].ProviderMessageID)
	assert.Equal(t, "msg-2", emails[1].ProviderMessageID)
}

func TestListByAccount_DefaultsLimitAndOffset(t *testing.T) {
	repos, account := seed(t, 3)
	svc := NewEmailService(repos)

	emails, total, err := svc.ListByAccount(context.Background(), account.ID, 0, -4)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, emails, 3)
}

func TestListByAccount_UnknownAccount(t *testing.T) {
	repos, _ := seed(t, 0)
	svc := NewEmailService(repos)

	_, _, err := svc.ListByAccount(context.Background(), "acct_missing", 10, 0)
	assert.True(t, errors.Is(err, mailsync_errors.ErrAccountNotFound))
}

func TestGetByID(t *testing.T) {
	repos, account := seed(t, 1)
	svc := NewEmailService(repos)

	stored, err := repos.EmailRepository.GetByProviderMessageID(context.Background(), account.ID, "msg-0")
	require.NoError(t, err)

	email, err := svc.GetByID(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.Equal(t, "Update 0", email.Subject)

	_, err = svc.GetByID(context.Background(), "email_missing")
	assert.True(t, errors.Is(err, mailsync_errors.ErrEmailNotFound))
}
