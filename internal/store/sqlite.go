package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/anivault/anivault/internal/types"
)

// SQLiteStore implements Store over a single-file SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// Open opens (and migrates) the database at dbPath, creating parent
// directories as needed.
func Open(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS downloads (
			key TEXT PRIMARY KEY,
			anime_slug TEXT NOT NULL,
			episode_number INTEGER NOT NULL,
			server TEXT NOT NULL,
			anime_title TEXT NOT NULL DEFAULT '',
			episode_title TEXT NOT NULL DEFAULT '',
			thumbnail TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			progress REAL NOT NULL DEFAULT 0,
			file_size_bytes INTEGER NOT NULL DEFAULT 0,
			file_path TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS subtitles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			download_key TEXT NOT NULL,
			position INTEGER NOT NULL,
			label TEXT NOT NULL,
			language TEXT NOT NULL,
			file_path TEXT NOT NULL,
			FOREIGN KEY (download_key) REFERENCES downloads(key) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_downloads_status ON downloads(status)`,
		`CREATE INDEX IF NOT EXISTS idx_subtitles_download_key ON subtitles(download_key)`,
	}
	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, migration)
		}
	}
	return nil
}

// LoadRecords returns every persisted download record, subtitles included.
func (s *SQLiteStore) LoadRecords() ([]*types.DownloadRecord, error) {
	rows, err := s.db.Query(`SELECT key, anime_slug, episode_number, server,
		anime_title, episode_title, thumbnail, status, progress,
		file_size_bytes, file_path, error_message, created_at, updated_at
		FROM downloads ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query downloads: %w", err)
	}
	defer rows.Close()

	var records []*types.DownloadRecord
	byKey := make(map[string]*types.DownloadRecord)
	for rows.Next() {
		var rec types.DownloadRecord
		var key, status string
		if err := rows.Scan(&key, &rec.Ref.AnimeSlug, &rec.Ref.EpisodeNumber,
			&rec.Ref.Server, &rec.AnimeTitle, &rec.EpisodeTitle, &rec.Thumbnail,
			&status, &rec.Progress, &rec.FileSizeBytes, &rec.FilePath,
			&rec.ErrorMessage, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan download row: %w", err)
		}
		rec.Status = types.Status(status)
		records = append(records, &rec)
		byKey[key] = &rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read download rows: %w", err)
	}

	subRows, err := s.db.Query(`SELECT download_key, label, language, file_path
		FROM subtitles ORDER BY download_key, position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query subtitles: %w", err)
	}
	defer subRows.Close()
	for subRows.Next() {
		var key string
		var sub types.SubtitleRecord
		if err := subRows.Scan(&key, &sub.Label, &sub.Language, &sub.FilePath); err != nil {
			return nil, fmt.Errorf("failed to scan subtitle row: %w", err)
		}
		if rec, ok := byKey[key]; ok {
			rec.Subtitles = append(rec.Subtitles, sub)
		}
	}
	if err := subRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subtitle rows: %w", err)
	}
	return records, nil
}

// SaveRecords replaces the persisted record set with the given one in a
// single transaction. Record counts stay small, so a full rewrite is cheaper
// than diffing and keeps the store an exact snapshot of the in-memory set.
func (s *SQLiteStore) SaveRecords(records []*types.DownloadRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM subtitles`); err != nil {
		return fmt.Errorf("failed to clear subtitles: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM downloads`); err != nil {
		return fmt.Errorf("failed to clear downloads: %w", err)
	}

	insertDownload, err := tx.Prepare(`INSERT INTO downloads (key, anime_slug,
		episode_number, server, anime_title, episode_title, thumbnail, status,
		progress, file_size_bytes, file_path, error_message, created_at,
		updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare download insert: %w", err)
	}
	defer insertDownload.Close()
	insertSubtitle, err := tx.Prepare(`INSERT INTO subtitles (download_key,
		position, label, language, file_path) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare subtitle insert: %w", err)
	}
	defer insertSubtitle.Close()

	for _, rec := range records {
		if _, err := insertDownload.Exec(rec.Key(), rec.Ref.AnimeSlug,
			rec.Ref.EpisodeNumber, rec.Ref.Server, rec.AnimeTitle,
			rec.EpisodeTitle, rec.Thumbnail, string(rec.Status), rec.Progress,
			rec.FileSizeBytes, rec.FilePath, rec.ErrorMessage, rec.CreatedAt,
			rec.UpdatedAt); err != nil {
			return fmt.Errorf("failed to insert download %s: %w", rec.Key(), err)
		}
		for i, sub := range rec.Subtitles {
			if _, err := insertSubtitle.Exec(rec.Key(), i, sub.Label,
				sub.Language, sub.FilePath); err != nil {
				return fmt.Errorf("failed to insert subtitle for %s: %w", rec.Key(), err)
			}
		}
	}
	return tx.Commit()
}
