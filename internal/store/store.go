package store

import (
	"github.com/anivault/anivault/internal/types"
)

// Store durably persists the download record set. It is read once at
// startup and written after every state transition; the writer is single
// (the scheduler), so last-writer-wins is acceptable.
type Store interface {
	LoadRecords() ([]*types.DownloadRecord, error)
	SaveRecords(records []*types.DownloadRecord) error
	Close() error
}
