package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/anivault/anivault/internal/catalog"
	"github.com/anivault/anivault/internal/fetch"
	"github.com/anivault/anivault/internal/hls"
	"github.com/anivault/anivault/internal/store"
	"github.com/anivault/anivault/internal/subtitles"
	"github.com/anivault/anivault/internal/types"
	"github.com/anivault/anivault/internal/utils"
)

// Request describes a download to enqueue.
type Request struct {
	Ref          types.EpisodeRef
	AnimeTitle   string
	EpisodeTitle string
	Thumbnail    string
}

type Config struct {
	Store         store.Store
	Source        catalog.Source
	Client        utils.HTTPDoer
	Notifier      Notifier
	DownloadsRoot string
}

// Scheduler serializes transfers: one key is downloading at any instant, the
// rest wait in a FIFO queue. All record mutations happen here, so the
// persisted store has a single writer.
type Scheduler struct {
	store    store.Store
	source   catalog.Source
	client   utils.HTTPDoer
	engine   *fetch.Engine
	subs     *subtitles.Fetcher
	notifier Notifier
	root     string
	workerID string
	logger   zerolog.Logger

	mu      sync.Mutex
	idle    *sync.Cond
	records map[string]*types.DownloadRecord
	queue   []string
	active  string
	cancels map[string]context.CancelFunc
	stopped bool
	wake    chan struct{}
}

// New builds a scheduler and restores persisted state: records left
// downloading by a crash become paused, pending records are re-enqueued.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Notifier == nil {
		cfg.Notifier = NopNotifier{}
	}
	s := &Scheduler{
		store:    cfg.Store,
		source:   cfg.Source,
		client:   cfg.Client,
		engine:   fetch.NewEngine(cfg.Client),
		subs:     subtitles.NewFetcher(cfg.Client),
		notifier: cfg.Notifier,
		root:     cfg.DownloadsRoot,
		workerID: uuid.NewString(),
		logger:   utils.GetLogger("scheduler"),
		records:  make(map[string]*types.DownloadRecord),
		cancels:  make(map[string]context.CancelFunc),
		wake:     make(chan struct{}, 1),
	}
	s.idle = sync.NewCond(&s.mu)

	loaded, err := s.store.LoadRecords()
	if err != nil {
		return nil, fmt.Errorf("error loading download records: %v", err)
	}
	sort.Slice(loaded, func(i, j int) bool { return loaded[i].CreatedAt.Before(loaded[j].CreatedAt) })
	dirty := false
	for _, rec := range loaded {
		switch rec.Status {
		case types.StatusDownloading:
			rec.MarkPaused("interrupted by shutdown")
			dirty = true
		case types.StatusPending:
			s.queue = append(s.queue, rec.Key())
		}
		s.records[rec.Key()] = rec
	}
	if dirty {
		if err := s.store.SaveRecords(loaded); err != nil {
			return nil, fmt.Errorf("error persisting recovered records: %v", err)
		}
	}
	if len(s.queue) > 0 {
		s.signalWake()
	}
	s.logger.Debug().Str("worker", s.workerID).Int("records", len(loaded)).Int("queued", len(s.queue)).Msg("Scheduler ready")
	return s, nil
}

// Run processes the queue until ctx is cancelled. Only one transfer is ever
// in flight; when it finishes, the next queued key starts without external
// action.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.stopped = false
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.stopped = true
		s.idle.Broadcast()
		s.mu.Unlock()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}
		for {
			key, ok := s.dequeue()
			if !ok {
				break
			}
			s.runTransfer(ctx, key)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

// WaitIdle blocks until the queue is drained and no transfer is active, or
// the scheduler stops.
func (s *Scheduler) WaitIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.stopped && (len(s.queue) > 0 || s.active != "") {
		s.idle.Wait()
	}
}

// Enqueue registers a new download. A key that is already completed,
// downloading, or pending is rejected and left untouched.
func (s *Scheduler) Enqueue(req Request) error {
	key := req.Ref.Key()
	s.mu.Lock()
	if rec, ok := s.records[key]; ok {
		switch rec.Status {
		case types.StatusCompleted, types.StatusDownloading, types.StatusPending:
			status := rec.Status
			s.mu.Unlock()
			s.notifier.Notice(fmt.Sprintf("%s is already %s", key, status))
			return fmt.Errorf("%w: %s is %s", types.ErrAlreadyTracked, key, status)
		}
	}
	now := time.Now()
	rec := &types.DownloadRecord{
		Ref:          req.Ref,
		AnimeTitle:   req.AnimeTitle,
		EpisodeTitle: req.EpisodeTitle,
		Thumbnail:    req.Thumbnail,
		Status:       types.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.records[key] = rec
	s.queue = append(s.queue, key)
	s.persistLocked()
	cp := *rec
	s.mu.Unlock()
	s.notifier.StatusChanged(cp)
	s.signalWake()
	return nil
}

// Cancel requests cooperative cancellation for key. A queued key pauses
// immediately; an in-flight one pauses at its next checkpoint.
func (s *Scheduler) Cancel(key string) error {
	s.mu.Lock()
	rec, ok := s.records[key]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", types.ErrRecordNotFound, key)
	}
	if cancel, inFlight := s.cancels[key]; inFlight {
		cancel()
		s.mu.Unlock()
		return nil
	}
	if rec.Status == types.StatusPending {
		s.removeFromQueueLocked(key)
		rec.MarkPaused("cancelled before start")
		s.persistLocked()
		cp := *rec
		s.idle.Broadcast()
		s.mu.Unlock()
		s.notifier.StatusChanged(cp)
		return nil
	}
	s.mu.Unlock()
	return nil
}

// Retry re-enqueues a failed or paused download from scratch.
func (s *Scheduler) Retry(key string) error {
	s.mu.Lock()
	rec, ok := s.records[key]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", types.ErrRecordNotFound, key)
	}
	if rec.Status != types.StatusFailed && rec.Status != types.StatusPaused {
		status := rec.Status
		s.mu.Unlock()
		return fmt.Errorf("%w: %s is %s", types.ErrAlreadyTracked, key, status)
	}
	rec.ResetForRetry()
	if !s.inQueueLocked(key) {
		s.queue = append(s.queue, key)
	}
	s.persistLocked()
	cp := *rec
	s.mu.Unlock()
	s.notifier.StatusChanged(cp)
	s.signalWake()
	return nil
}

// Delete cancels any transfer for key, removes its video and subtitle files,
// and drops the record. Deleting an unknown key is a no-op.
func (s *Scheduler) Delete(key string) error {
	s.mu.Lock()
	rec, ok := s.records[key]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	if cancel, inFlight := s.cancels[key]; inFlight {
		cancel()
	}
	s.removeFromQueueLocked(key)
	s.deleteFilesLocked(rec)
	delete(s.records, key)
	s.persistLocked()
	s.idle.Broadcast()
	s.mu.Unlock()
	s.notifier.Notice(fmt.Sprintf("Deleted %s", key))
	return nil
}

// DeleteCompleted deletes every completed record and sweeps orphaned
// scratch directories.
func (s *Scheduler) DeleteCompleted() error {
	for _, key := range s.keysWithStatus(types.StatusCompleted) {
		if err := s.Delete(key); err != nil {
			return err
		}
	}
	return s.CleanScratch()
}

// DeleteAll deletes every record and all local artifacts.
func (s *Scheduler) DeleteAll() error {
	s.mu.Lock()
	keys := make([]string, 0, len(s.records))
	for key := range s.records {
		keys = append(keys, key)
	}
	s.mu.Unlock()
	for _, key := range keys {
		if err := s.Delete(key); err != nil {
			return err
		}
	}
	return s.CleanScratch()
}

// CleanScratch removes scratch directories that no longer belong to a
// tracked record — leftovers of deleted or crashed downloads.
func (s *Scheduler) CleanScratch() error {
	scratchRoot := s.scratchRoot()
	entries, err := os.ReadDir(scratchRoot)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return &types.StorageError{Op: "list scratch root", Path: scratchRoot, Err: err}
	}
	s.mu.Lock()
	tracked := make(map[string]bool, len(s.records))
	for key := range s.records {
		tracked[key] = true
	}
	s.mu.Unlock()
	for _, entry := range entries {
		if tracked[entry.Name()] {
			continue
		}
		orphan := filepath.Join(scratchRoot, entry.Name())
		if err := os.RemoveAll(orphan); err != nil {
			return &types.StorageError{Op: "remove orphan scratch", Path: orphan, Err: err}
		}
		s.logger.Debug().Msgf("Removed orphaned scratch directory %s", orphan)
	}
	return nil
}

// Records returns a snapshot of all records in creation order.
func (s *Scheduler) Records() []types.DownloadRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.DownloadRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Record returns a snapshot of one record.
func (s *Scheduler) Record(key string) (types.DownloadRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return types.DownloadRecord{}, false
	}
	return *rec, true
}

func (s *Scheduler) dequeue() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 || s.active != "" {
		return "", false
	}
	key := s.queue[0]
	s.queue = s.queue[1:]
	s.active = key
	return key, true
}

func (s *Scheduler) runTransfer(ctx context.Context, key string) {
	s.mu.Lock()
	rec, ok := s.records[key]
	if !ok {
		// Deleted while queued.
		s.active = ""
		s.idle.Broadcast()
		s.mu.Unlock()
		return
	}
	tctx, cancel := context.WithCancel(ctx)
	s.cancels[key] = cancel
	rec.MarkDownloading()
	s.persistLocked()
	cp := *rec
	s.mu.Unlock()
	s.notifier.StatusChanged(cp)
	s.logger.Info().Str("key", key).Str("worker", s.workerID).Msg("Starting transfer")

	err := s.execute(tctx, key)

	s.mu.Lock()
	cancel()
	delete(s.cancels, key)
	rec, ok = s.records[key]
	var notice string
	if ok {
		switch {
		case err == nil:
			// execute marked the record completed already.
		case types.IsCancelled(err):
			rec.MarkPaused("cancelled by user")
		default:
			rec.MarkFailed(err.Error())
			notice = fmt.Sprintf("Download failed for %s: %v", key, err)
		}
		s.persistLocked()
		cp = *rec
	}
	s.active = ""
	s.idle.Broadcast()
	s.mu.Unlock()
	if ok && err != nil {
		s.notifier.StatusChanged(cp)
	}
	if notice != "" {
		s.notifier.Notice(notice)
	}
}

// execute performs one full transfer: resolve the stream source, download
// (segmented or direct), mark completed, then run the best-effort subtitle
// pass.
func (s *Scheduler) execute(ctx context.Context, key string) error {
	s.mu.Lock()
	rec, ok := s.records[key]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	ref := rec.Ref
	s.mu.Unlock()

	src, err := s.source.ResolveStreamSource(ctx, ref)
	if err != nil {
		return err
	}
	// Cooperative-cancel checkpoint: right after the resolve response.
	if ctx.Err() != nil {
		return types.ErrCancelled
	}

	headers := utils.StreamHeaders(src.URL)
	if headers == nil {
		headers = make(map[string]string)
	}
	for k, v := range src.Headers {
		headers[k] = v
	}

	dest := s.videoPath(ref)
	progress := s.progressFunc(key)
	var size int64
	if src.IsPlaylist {
		resolver := hls.NewResolver(s.client, headers)
		segments, err := resolver.Resolve(ctx, src.URL)
		if err != nil {
			return err
		}
		s.logger.Info().Str("key", key).Msgf("Found %d segments to download", len(segments))
		size, err = s.engine.DownloadSegments(ctx, s.scratchDir(key), segments, dest, headers, progress)
		if err != nil {
			return err
		}
	} else {
		size, err = s.engine.DownloadDirect(ctx, src.URL, dest, headers, progress)
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	rec, ok = s.records[key]
	if !ok {
		s.mu.Unlock()
		os.Remove(dest)
		return nil
	}
	rec.MarkCompleted(dest, size)
	s.persistLocked()
	cp := *rec
	s.mu.Unlock()
	s.notifier.StatusChanged(cp)
	s.notifier.Notice(fmt.Sprintf("Completed %s (%s)", key, utils.FormatBytes(uint64(size))))

	s.fetchSubtitles(ctx, key, ref, headers)
	return nil
}

// fetchSubtitles runs the enrichment pass. Nothing here can revert the
// video's completed status; failures end at a log line.
func (s *Scheduler) fetchSubtitles(ctx context.Context, key string, ref types.EpisodeRef, headers map[string]string) {
	tracks, err := s.source.GetSubtitleTracks(ctx, ref)
	if err != nil {
		s.logger.Warn().Str("key", key).Msgf("Could not list subtitle tracks: %v", err)
		return
	}
	fetched := s.subs.FetchAll(ctx, tracks, s.subtitleDir(ref), headers)
	if len(fetched) == 0 {
		return
	}
	s.mu.Lock()
	rec, ok := s.records[key]
	if ok {
		rec.Subtitles = append(rec.Subtitles, fetched...)
		s.persistLocked()
	}
	s.mu.Unlock()
	s.logger.Info().Str("key", key).Msgf("Fetched %d subtitle tracks", len(fetched))
}

// progressFunc clamps progress to be monotonically non-decreasing while the
// record stays in downloading.
func (s *Scheduler) progressFunc(key string) fetch.Progress {
	return func(fraction float64, downloadedBytes int64) {
		s.mu.Lock()
		rec, ok := s.records[key]
		if !ok || rec.Status != types.StatusDownloading {
			s.mu.Unlock()
			return
		}
		if fraction > rec.Progress {
			rec.Progress = fraction
		}
		if downloadedBytes > 0 {
			rec.FileSizeBytes = downloadedBytes
		}
		cp := *rec
		s.mu.Unlock()
		s.notifier.Progress(cp, downloadedBytes)
	}
}

func (s *Scheduler) persistLocked() {
	records := make([]*types.DownloadRecord, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec)
	}
	if err := s.store.SaveRecords(records); err != nil {
		s.logger.Error().Msgf("Could not persist download records: %v", err)
	}
}

func (s *Scheduler) deleteFilesLocked(rec *types.DownloadRecord) {
	if rec.FilePath != "" {
		if err := os.Remove(rec.FilePath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn().Msgf("Could not remove video file %s: %v", rec.FilePath, err)
		}
	}
	for _, sub := range rec.Subtitles {
		if err := os.Remove(sub.FilePath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn().Msgf("Could not remove subtitle file %s: %v", sub.FilePath, err)
		}
	}
	if err := os.RemoveAll(s.subtitleDir(rec.Ref)); err != nil {
		s.logger.Warn().Msgf("Could not remove subtitle directory: %v", err)
	}
	if err := os.RemoveAll(s.scratchDir(rec.Key())); err != nil {
		s.logger.Warn().Msgf("Could not remove scratch directory: %v", err)
	}
}

func (s *Scheduler) keysWithStatus(status types.Status) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for key, rec := range s.records {
		if rec.Status == status {
			keys = append(keys, key)
		}
	}
	return keys
}

func (s *Scheduler) inQueueLocked(key string) bool {
	for _, queued := range s.queue {
		if queued == key {
			return true
		}
	}
	return false
}

func (s *Scheduler) removeFromQueueLocked(key string) {
	for i, queued := range s.queue {
		if queued == key {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

func (s *Scheduler) signalWake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) scratchRoot() string {
	return filepath.Join(s.root, ".anivault-temp")
}

func (s *Scheduler) scratchDir(key string) string {
	return filepath.Join(s.scratchRoot(), key)
}

func (s *Scheduler) animeDir(ref types.EpisodeRef) string {
	return filepath.Join(s.root, utils.SanitizeFilename(ref.AnimeSlug))
}

func (s *Scheduler) videoPath(ref types.EpisodeRef) string {
	name := fmt.Sprintf("episode_%03d_%s.mp4", ref.EpisodeNumber, utils.SanitizeFilename(ref.Server))
	return filepath.Join(s.animeDir(ref), name)
}

func (s *Scheduler) subtitleDir(ref types.EpisodeRef) string {
	return filepath.Join(s.animeDir(ref), "subs", ref.Key())
}
