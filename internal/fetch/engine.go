package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/anivault/anivault/internal/types"
	"github.com/anivault/anivault/internal/utils"
)

// minMediaBytes is the heuristic below which a direct download is treated as
// an error payload rather than real media.
const minMediaBytes = 1000

// mergeProgressShare reserves the final fraction of reported progress for
// the merge step; segment fetches fill the rest.
const mergeProgressShare = 0.1

// Progress reports fractional progress (0..1) and bytes written so far.
type Progress func(fraction float64, downloadedBytes int64)

// Engine downloads segment lists or direct files into a destination path,
// using a per-key scratch directory under scratchRoot.
type Engine struct {
	client  utils.HTTPDoer
	limiter *rate.Limiter
}

func NewEngine(client utils.HTTPDoer) *Engine {
	// Default pacing bounds load on the remote host: bursts of a few
	// segments, sustained 10 requests per second.
	return &Engine{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(10), 4),
	}
}

// DownloadSegments fetches the segments strictly in order and concatenates
// the successful ones, in original playlist order, into destPath. A segment
// that fails to download is logged and omitted; only zero successes fails
// the transfer. Returns the byte size of the merged file.
func (e *Engine) DownloadSegments(ctx context.Context, scratchDir string, segmentURLs []string, destPath string, headers map[string]string, progress Progress) (int64, error) {
	logger := log.With().Str("op", "fetch/segments").Logger()

	// Delete-then-recreate discards stale data from a previous failed attempt.
	if err := os.RemoveAll(scratchDir); err != nil {
		return 0, &types.StorageError{Op: "clear scratch", Path: scratchDir, Err: err}
	}
	if err := os.MkdirAll(scratchDir, 0755); err != nil {
		return 0, &types.StorageError{Op: "create scratch", Path: scratchDir, Err: err}
	}

	total := len(segmentURLs)
	var segmentFiles []string
	var downloadedBytes int64
	for i, segmentURL := range segmentURLs {
		// Cooperative-cancel checkpoint: before each segment fetch.
		select {
		case <-ctx.Done():
			e.cleanup(scratchDir, destPath)
			return 0, types.ErrCancelled
		default:
		}
		if err := e.limiter.Wait(ctx); err != nil {
			e.cleanup(scratchDir, destPath)
			return 0, types.ErrCancelled
		}
		outputPath := filepath.Join(scratchDir, fmt.Sprintf("segment_%04d.ts", i))
		n, err := e.fetchSegment(ctx, segmentURL, outputPath, headers)
		if err != nil {
			if types.IsCancelled(err) {
				e.cleanup(scratchDir, destPath)
				return 0, types.ErrCancelled
			}
			logger.Warn().Int("segment", i).Msgf("Skipping failed segment: %v", err)
		} else {
			downloadedBytes += n
			segmentFiles = append(segmentFiles, outputPath)
		}
		if progress != nil {
			progress(float64(i+1) / float64(total) * (1 - mergeProgressShare), downloadedBytes)
		}
	}

	if len(segmentFiles) == 0 {
		e.cleanup(scratchDir, destPath)
		return 0, types.ErrEmptyResult
	}
	if skipped := total - len(segmentFiles); skipped > 0 {
		logger.Warn().Msgf("Merged %d of %d segments; %d failed and were omitted", len(segmentFiles), total, skipped)
	}

	size, err := mergeSegments(segmentFiles, destPath)
	if err != nil {
		e.cleanup(scratchDir, destPath)
		return 0, err
	}
	if progress != nil {
		progress(1.0, size)
	}
	if err := os.RemoveAll(scratchDir); err != nil {
		logger.Warn().Msgf("Could not remove scratch directory %s: %v", scratchDir, err)
	}
	return size, nil
}

func (e *Engine) fetchSegment(ctx context.Context, segmentURL, outputPath string, headers map[string]string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", segmentURL, nil)
	if err != nil {
		return 0, fmt.Errorf("error creating request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return 0, &types.NetworkError{URL: segmentURL, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, &types.NetworkError{URL: segmentURL, Err: fmt.Errorf("server returned status code %d", resp.StatusCode)}
	}
	outFile, err := os.Create(outputPath)
	if err != nil {
		return 0, &types.StorageError{Op: "create segment file", Path: outputPath, Err: err}
	}
	n, err := io.Copy(outFile, resp.Body)
	closeErr := outFile.Close()
	if err != nil {
		os.Remove(outputPath)
		return 0, &types.NetworkError{URL: segmentURL, Err: err}
	}
	if closeErr != nil {
		os.Remove(outputPath)
		return 0, &types.StorageError{Op: "close segment file", Path: outputPath, Err: closeErr}
	}
	return n, nil
}

// mergeSegments appends the bytes of every segment file, in order, to
// destPath. No re-encoding is done; HLS transport-stream segments are
// playable as a plain concatenation.
func mergeSegments(segmentFiles []string, destPath string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return 0, &types.StorageError{Op: "create output directory", Path: filepath.Dir(destPath), Err: err}
	}
	outFile, err := os.Create(destPath)
	if err != nil {
		return 0, &types.StorageError{Op: "create output file", Path: destPath, Err: err}
	}
	var total int64
	for _, segmentFile := range segmentFiles {
		in, err := os.Open(segmentFile)
		if err != nil {
			outFile.Close()
			return 0, &types.StorageError{Op: "open segment", Path: segmentFile, Err: err}
		}
		n, err := io.Copy(outFile, in)
		in.Close()
		if err != nil {
			outFile.Close()
			return 0, &types.StorageError{Op: "append segment", Path: destPath, Err: err}
		}
		total += n
	}
	if err := outFile.Close(); err != nil {
		return 0, &types.StorageError{Op: "close output file", Path: destPath, Err: err}
	}
	return total, nil
}

// DownloadDirect performs a single streamed download for a non-HLS media
// URL, bypassing segment logic.
func (e *Engine) DownloadDirect(ctx context.Context, directURL, destPath string, headers map[string]string, progress Progress) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return 0, &types.StorageError{Op: "create output directory", Path: filepath.Dir(destPath), Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, "GET", directURL, nil)
	if err != nil {
		return 0, fmt.Errorf("error creating request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		if types.IsCancelled(err) {
			return 0, types.ErrCancelled
		}
		return 0, &types.NetworkError{URL: directURL, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, &types.NetworkError{URL: directURL, Err: fmt.Errorf("server returned status code %d", resp.StatusCode)}
	}
	// Cooperative-cancel checkpoint: right after the response arrives.
	select {
	case <-ctx.Done():
		return 0, types.ErrCancelled
	default:
	}
	totalSize := resp.ContentLength

	outFile, err := os.Create(destPath)
	if err != nil {
		return 0, &types.StorageError{Op: "create output file", Path: destPath, Err: err}
	}
	buffer := make([]byte, utils.DefaultBufferSize)
	var downloaded int64
	var copyErr error
	for {
		bytesRead, err := resp.Body.Read(buffer)
		if bytesRead > 0 {
			if _, writeErr := outFile.Write(buffer[:bytesRead]); writeErr != nil {
				copyErr = &types.StorageError{Op: "write output file", Path: destPath, Err: writeErr}
				break
			}
			downloaded += int64(bytesRead)
			if progress != nil && totalSize > 0 {
				progress(float64(downloaded)/float64(totalSize), downloaded)
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			if types.IsCancelled(err) || ctx.Err() != nil {
				copyErr = types.ErrCancelled
			} else {
				copyErr = &types.NetworkError{URL: directURL, Err: err}
			}
			break
		}
	}
	closeErr := outFile.Close()
	if copyErr == nil && closeErr != nil {
		copyErr = &types.StorageError{Op: "close output file", Path: destPath, Err: closeErr}
	}
	if copyErr != nil {
		os.Remove(destPath)
		return 0, copyErr
	}
	if downloaded < minMediaBytes {
		os.Remove(destPath)
		return 0, fmt.Errorf("%w: got %d bytes", types.ErrErrorPayload, downloaded)
	}
	if progress != nil {
		progress(1.0, downloaded)
	}
	return downloaded, nil
}

// cleanup removes all pending local artifacts for a failed or cancelled
// transfer before the error propagates.
func (e *Engine) cleanup(scratchDir, destPath string) {
	if err := os.RemoveAll(scratchDir); err != nil {
		log.Warn().Str("op", "fetch/cleanup").Msgf("Could not remove scratch directory %s: %v", scratchDir, err)
	}
	if destPath != "" {
		if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
			log.Warn().Str("op", "fetch/cleanup").Msgf("Could not remove partial file %s: %v", destPath, err)
		}
	}
}
