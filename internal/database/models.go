package database

import (
	"time"

	"media-optimizer/internal/mediatypes"
)

// ConversionRecord is the bookkeeping row for one converted artifact.
// Unique key: (asset_id, format, rendition_size).
type ConversionRecord struct {
	AssetID        int64             `json:"assetId"`
	Format         mediatypes.Format `json:"format"`
	RenditionSize  string            `json:"renditionSize"`
	OriginalBytes  int64             `json:"originalBytes"`
	ConvertedBytes int64             `json:"convertedBytes"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// FormatStats aggregates conversion records for one format.
type FormatStats struct {
	Conversions    int64 `json:"conversions"`
	OriginalBytes  int64 `json:"originalBytes"`
	ConvertedBytes int64 `json:"convertedBytes"`
}

// ConversionStats aggregates all current conversion records.
type ConversionStats struct {
	TotalConversions    int64                  `json:"totalConversions"`
	TotalOriginalBytes  int64                  `json:"totalOriginalBytes"`
	TotalConvertedBytes int64                  `json:"totalConvertedBytes"`
	// SavingsPercentage is on the 0-100 scale: 100 * (1 - converted/original).
	SavingsPercentage float64                `json:"savingsPercentage"`
	ByFormat          map[string]FormatStats `json:"byFormat"`
}

// JobState is the lifecycle state of an external processing job.
type JobState string

const (
	// JobSubmitted means the remote service accepted the job and a
	// completion webhook is pending.
	JobSubmitted JobState = "submitted"
	// JobCompleted means the completion webhook delivered results.
	JobCompleted JobState = "completed"
	// JobFailed means the completion webhook carried no results.
	JobFailed JobState = "failed"
)

// CDNResult is one converted artifact hosted by the remote service.
type CDNResult struct {
	URL   string `json:"url"`
	Bytes int64  `json:"filesize"`
}

// CDNResults maps rendition size -> format -> hosted artifact.
type CDNResults map[string]map[string]CDNResult

// ExternalJob is the persisted state of an asset's external processing
// job. At most one row exists per asset; a newer submission supersedes
// the prior row wholesale.
type ExternalJob struct {
	AssetID     int64      `json:"assetId"`
	AccountID   string     `json:"accountId"`
	State       JobState   `json:"state"`
	SubmittedAt time.Time  `json:"submittedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CDNResults  CDNResults `json:"cdnResults,omitempty"`
}

// QuotaPeriod is a snapshot of the current metered usage window.
type QuotaPeriod struct {
	WindowStart time.Time `json:"windowStart"`
	WindowEnd   time.Time `json:"windowEnd"`
	ImagesUsed  int64     `json:"imagesUsed"`
	VideosUsed  int64     `json:"videosUsed"`
	ImagesLimit int64     `json:"imagesLimit"`
	VideosLimit int64     `json:"videosLimit"`
}
