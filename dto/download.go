package dto

import "github.com/customeros/mailsync/internal/enum"

type DownloadAttachmentRequest struct {
	AttachmentID  string             `json:"attachmentId"`
	MessageRef    string             `json:"messageRef,omitempty"`
	AttachmentRef string             `json:"attachmentRef,omitempty"`
	Provider      enum.EmailProvider `json:"provider,omitempty"`
	// Credentials are optional; resolved from the owning account when nil.
	Credentials *Credentials `json:"-"`
}

type DownloadAttachmentResult struct {
	AttachmentID string              `json:"attachmentId"`
	Success      bool                `json:"success"`
	URL          string              `json:"url,omitempty"`
	StorageKey   string              `json:"storageKey"`
	Status       enum.DownloadStatus `json:"status"`
	Size         int64               `json:"size"`
	Cached       bool                `json:"cached"`
	Error        string              `json:"error,omitempty"`
}

type UploadResult struct {
	URL string
	Key string
}
