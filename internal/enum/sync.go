package enum

type SyncStatus string

const (
	SyncStatusIdle    SyncStatus = "idle"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusError   SyncStatus = "error"
)

func (s SyncStatus) String() string {
	return string(s)
}

func (s SyncStatus) IsValid() bool {
	switch s {
	case SyncStatusIdle, SyncStatusSyncing, SyncStatusSuccess, SyncStatusError:
		return true
	}
	return false
}

// Phase is the progress phase shown to callers polling a sync.
func (s SyncStatus) Phase() SyncPhase {
	switch s {
	case SyncStatusSyncing:
		return SyncPhaseFetching
	case SyncStatusError:
		return SyncPhaseError
	default:
		return SyncPhaseComplete
	}
}

type SyncPhase string

const (
	SyncPhaseFetching SyncPhase = "fetching"
	SyncPhaseError    SyncPhase = "error"
	SyncPhaseComplete SyncPhase = "complete"
)

func (p SyncPhase) String() string {
	return string(p)
}

type SyncMode string

const (
	SyncModeFull        SyncMode = "full"
	SyncModeIncremental SyncMode = "incremental"
)

func (m SyncMode) String() string {
	return string(m)
}

func (m SyncMode) IsValid() bool {
	return m == SyncModeFull || m == SyncModeIncremental
}

type DownloadStatus string

const (
	DownloadStatusPending     DownloadStatus = "pending"
	DownloadStatusDownloading DownloadStatus = "downloading"
	DownloadStatusCompleted   DownloadStatus = "completed"
	DownloadStatusFailed      DownloadStatus = "failed"
)

func (s DownloadStatus) String() string {
	return string(s)
}

func (s DownloadStatus) IsValid() bool {
	switch s {
	case DownloadStatusPending, DownloadStatusDownloading, DownloadStatusCompleted, DownloadStatusFailed:
		return true
	}
	return false
}
