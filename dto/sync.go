package dto

import (
	"time"

	"github.com/customeros/mailsync/internal/enum"
)

type SyncOptions struct {
	Mode      enum.SyncMode `json:"mode"`
	Since     *time.Time    `json:"since,omitempty"`
	Limit     int           `json:"limit,omitempty"`
	BatchSize int           `json:"batchSize,omitempty"`
	Folders   []string      `json:"folders,omitempty"`
}

type SyncResult struct {
	AccountID     string        `json:"accountId"`
	Mode          enum.SyncMode `json:"mode"`
	Success       bool          `json:"success"`
	EmailsSynced  int           `json:"emailsSynced"`
	EmailsCreated int           `json:"emailsCreated"`
	EmailsUpdated int           `json:"emailsUpdated"`
	Skipped       int           `json:"skipped"`
	Attachments   int           `json:"attachments"`
	PagesFetched  int           `json:"pagesFetched"`
	NextCursor    *string       `json:"nextCursor,omitempty"`
	FullResync    bool          `json:"fullResync"`
	Error         string        `json:"error,omitempty"`
	StartedAt     time.Time     `json:"startedAt"`
	CompletedAt   time.Time     `json:"completedAt"`
}

type SyncProgress struct {
	AccountID            string          `json:"accountId"`
	Status               enum.SyncStatus `json:"status"`
	Phase                enum.SyncPhase  `json:"phase"`
	Progress             int             `json:"progress"`
	Total                int             `json:"total"`
	Percentage           int             `json:"percentage"`
	Cursor               *string         `json:"cursor,omitempty"`
	StartedAt            *time.Time      `json:"startedAt,omitempty"`
	LastSyncAt           *time.Time      `json:"lastSyncAt,omitempty"`
	LastSuccessfulSyncAt *time.Time      `json:"lastSuccessfulSyncAt,omitempty"`
	LastSyncError        *string         `json:"lastSyncError,omitempty"`
	ErrorCount           int             `json:"errorCount"`
	ConsecutiveErrors    int             `json:"consecutiveErrors"`
}
