package scheduler

import (
	"github.com/rs/zerolog/log"

	"github.com/anivault/anivault/internal/types"
	"github.com/anivault/anivault/internal/utils"
)

// Notifier observes download progress and terminal events. It is purely
// observational; no scheduler logic depends on what it does.
type Notifier interface {
	Progress(rec types.DownloadRecord, downloadedBytes int64)
	StatusChanged(rec types.DownloadRecord)
	Notice(message string)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) Progress(types.DownloadRecord, int64) {}
func (NopNotifier) StatusChanged(types.DownloadRecord)   {}
func (NopNotifier) Notice(string)                        {}

// LogNotifier reports events through the global logger.
type LogNotifier struct{}

func (LogNotifier) Progress(rec types.DownloadRecord, downloadedBytes int64) {
	log.Debug().Str("op", "scheduler/notify").Str("key", rec.Key()).
		Msgf("Progress %.0f%% (%s)", rec.Progress*100, utils.FormatBytes(uint64(downloadedBytes)))
}

func (LogNotifier) StatusChanged(rec types.DownloadRecord) {
	log.Info().Str("op", "scheduler/notify").Str("key", rec.Key()).
		Str("status", string(rec.Status)).Msg("Status changed")
}

func (LogNotifier) Notice(message string) {
	log.Info().Str("op", "scheduler/notify").Msg(message)
}
