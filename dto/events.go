package dto

import "time"

// Event types emitted by the sync and download flows.
const (
	EventSyncCompleted        = "SyncCompleted"
	EventSyncFailed           = "SyncFailed"
	EventAttachmentDownloaded = "AttachmentDownloaded"

	// EventSyncRequested is a command consumed by the sync-requests queue.
	EventSyncRequested = "SyncRequested"
)

type SyncCompletedEvent struct {
	AccountID     string    `json:"accountId"`
	Provider      string    `json:"provider"`
	Mode          string    `json:"mode"`
	EmailsSynced  int       `json:"emailsSynced"`
	PagesFetched  int       `json:"pagesFetched"`
	Cursor        string    `json:"cursor,omitempty"`
	CompletedAt   time.Time `json:"completedAt"`
	DurationMilli int64     `json:"durationMs"`
}

type SyncFailedEvent struct {
	AccountID    string    `json:"accountId"`
	Provider     string    `json:"provider"`
	Mode         string    `json:"mode"`
	EmailsSynced int       `json:"emailsSynced"`
	Error        string    `json:"error"`
	FailedAt     time.Time `json:"failedAt"`
}

type AttachmentDownloadedEvent struct {
	AttachmentID string `json:"attachmentId"`
	EmailID      string `json:"emailId"`
	AccountID    string `json:"accountId"`
	URL          string `json:"url"`
	StorageKey   string `json:"storageKey"`
	Size         int64  `json:"size"`
	SHA256       string `json:"sha256"`
}
