package types

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusPaused      Status = "paused"
)

// EpisodeRef identifies one episode on one server variant. It is the unit
// the catalog API resolves and the identity of a download record.
type EpisodeRef struct {
	AnimeSlug     string
	EpisodeNumber int
	Server        string
}

// Key returns the deterministic lookup key for this episode/server pair.
func (r EpisodeRef) Key() string {
	return fmt.Sprintf("%s-ep%d-%s", r.AnimeSlug, r.EpisodeNumber, r.Server)
}

type SubtitleRecord struct {
	Label    string
	Language string
	FilePath string
}

// DownloadRecord is the persisted unit of work tracked by the scheduler.
type DownloadRecord struct {
	Ref EpisodeRef

	AnimeTitle   string
	EpisodeTitle string
	Thumbnail    string

	Status        Status
	Progress      float64
	FileSizeBytes int64
	FilePath      string
	ErrorMessage  string
	Subtitles     []SubtitleRecord

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r *DownloadRecord) Key() string {
	return r.Ref.Key()
}

func (r *DownloadRecord) touch() {
	r.UpdatedAt = time.Now()
}

// MarkDownloading moves the record into the only state where cancellation
// flags are consulted.
func (r *DownloadRecord) MarkDownloading() {
	r.Status = StatusDownloading
	r.ErrorMessage = ""
	r.touch()
}

func (r *DownloadRecord) MarkCompleted(filePath string, sizeBytes int64) {
	r.Status = StatusCompleted
	r.Progress = 1.0
	r.FilePath = filePath
	r.FileSizeBytes = sizeBytes
	r.ErrorMessage = ""
	r.touch()
}

func (r *DownloadRecord) MarkFailed(message string) {
	r.Status = StatusFailed
	r.ErrorMessage = message
	r.touch()
}

func (r *DownloadRecord) MarkPaused(message string) {
	r.Status = StatusPaused
	r.ErrorMessage = message
	r.touch()
}

// ResetForRetry prepares a failed or paused record for re-enqueueing.
func (r *DownloadRecord) ResetForRetry() {
	r.Status = StatusPending
	r.Progress = 0
	r.ErrorMessage = ""
	r.touch()
}

// StreamSource is what the catalog API resolves an episode to: either a
// direct media file URL or an HLS playlist URL, plus any headers the host
// requires.
type StreamSource struct {
	URL        string
	IsPlaylist bool
	Headers    map[string]string
}

type SubtitleTrack struct {
	URL   string
	Label string
}
