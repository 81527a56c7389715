package subtitles

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/anivault/anivault/internal/types"
	"github.com/anivault/anivault/internal/utils"
)

// languageNames maps language-name substrings found in track labels to
// codes. Checked in order; first match wins.
var languageNames = []struct {
	name string
	code string
}{
	{"english", "en"},
	{"japanese", "ja"},
	{"portuguese", "pt"},
	{"spanish", "es"},
	{"french", "fr"},
	{"german", "de"},
	{"italian", "it"},
	{"russian", "ru"},
	{"arabic", "ar"},
	{"indonesian", "id"},
	{"thai", "th"},
	{"korean", "ko"},
	{"chinese", "zh"},
	{"vietnamese", "vi"},
	{"malay", "ms"},
	{"hindi", "hi"},
	{"turkish", "tr"},
	{"polish", "pl"},
}

// LanguageCode infers a language code from a caption track label via
// substring match; unmatched labels get "unknown".
func LanguageCode(label string) string {
	lowered := strings.ToLower(label)
	for _, lang := range languageNames {
		if strings.Contains(lowered, lang.name) {
			return lang.code
		}
	}
	return "unknown"
}

// Fetcher downloads caption tracks after a video completes. Everything it
// does is best-effort: individual failures are logged and skipped.
type Fetcher struct {
	client utils.HTTPDoer
}

func NewFetcher(client utils.HTTPDoer) *Fetcher {
	return &Fetcher{client: client}
}

// FetchAll writes each track verbatim into dir and returns the records for
// the tracks that succeeded.
func (f *Fetcher) FetchAll(ctx context.Context, tracks []types.SubtitleTrack, dir string, headers map[string]string) []types.SubtitleRecord {
	logger := log.With().Str("op", "subtitles/fetch").Logger()
	if len(tracks) == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Warn().Msgf("Could not create subtitles directory %s: %v", dir, err)
		return nil
	}
	var records []types.SubtitleRecord
	for _, track := range tracks {
		filePath := filepath.Join(dir, trackFilename(track))
		if err := f.fetchTrack(ctx, track.URL, filePath, headers); err != nil {
			logger.Warn().Str("label", track.Label).Msgf("Skipping subtitle track: %v", err)
			continue
		}
		records = append(records, types.SubtitleRecord{
			Label:    track.Label,
			Language: LanguageCode(track.Label),
			FilePath: filePath,
		})
	}
	return records
}

func (f *Fetcher) fetchTrack(ctx context.Context, trackURL, filePath string, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", trackURL, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("error fetching subtitle: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status code %d", resp.StatusCode)
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading subtitle content: %v", err)
	}
	if err := os.WriteFile(filePath, content, 0644); err != nil {
		return fmt.Errorf("error writing subtitle file: %v", err)
	}
	return nil
}

// trackFilename derives a filesystem-safe filename from a track label,
// keeping the extension of the track URL when it has one.
func trackFilename(track types.SubtitleTrack) string {
	ext := ".vtt"
	if parsed, err := url.Parse(track.URL); err == nil {
		if e := path.Ext(parsed.Path); e != "" {
			ext = e
		}
	}
	return utils.SanitizeFilename(track.Label) + ext
}
