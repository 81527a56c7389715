package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/anivault/anivault/internal/types"
	"github.com/anivault/anivault/internal/utils"
)

// Source is the catalog/streaming API collaborator. Given an episode and a
// server variant it yields either a direct media URL or an HLS playlist URL,
// plus the caption tracks for the same episode.
type Source interface {
	ResolveStreamSource(ctx context.Context, ref types.EpisodeRef) (*types.StreamSource, error)
	GetSubtitleTracks(ctx context.Context, ref types.EpisodeRef) ([]types.SubtitleTrack, error)
}

// JSON shapes returned by the streaming-link endpoint.
type streamResponse struct {
	URL        string            `json:"url"`
	IsPlaylist bool              `json:"is_playlist"`
	Headers    map[string]string `json:"headers"`
}

type subtitleResponse struct {
	Tracks []struct {
		URL   string `json:"url"`
		Label string `json:"label"`
	} `json:"tracks"`
}

// HTTPSource resolves episodes against a remote catalog API, treated as an
// opaque HTTP JSON endpoint.
type HTTPSource struct {
	baseURL string
	client  utils.HTTPDoer
}

var _ Source = (*HTTPSource)(nil)

func NewHTTPSource(baseURL string, client utils.HTTPDoer) *HTTPSource {
	return &HTTPSource{baseURL: baseURL, client: client}
}

func (s *HTTPSource) ResolveStreamSource(ctx context.Context, ref types.EpisodeRef) (*types.StreamSource, error) {
	endpoint := fmt.Sprintf("%s/anime/%s/episodes/%d/servers/%s/stream",
		s.baseURL, url.PathEscape(ref.AnimeSlug), ref.EpisodeNumber, url.PathEscape(ref.Server))
	var parsed streamResponse
	if err := s.getJSON(ctx, endpoint, &parsed); err != nil {
		return nil, err
	}
	if parsed.URL == "" {
		return nil, &types.NetworkError{URL: endpoint, Err: fmt.Errorf("no stream URL for %s", ref.Key())}
	}
	log.Debug().Str("op", "catalog/source").Bool("playlist", parsed.IsPlaylist).Msgf("Resolved stream source for %s", ref.Key())
	return &types.StreamSource{
		URL:        parsed.URL,
		IsPlaylist: parsed.IsPlaylist,
		Headers:    parsed.Headers,
	}, nil
}

func (s *HTTPSource) GetSubtitleTracks(ctx context.Context, ref types.EpisodeRef) ([]types.SubtitleTrack, error) {
	endpoint := fmt.Sprintf("%s/anime/%s/episodes/%d/servers/%s/subtitles",
		s.baseURL, url.PathEscape(ref.AnimeSlug), ref.EpisodeNumber, url.PathEscape(ref.Server))
	var parsed subtitleResponse
	if err := s.getJSON(ctx, endpoint, &parsed); err != nil {
		return nil, err
	}
	tracks := make([]types.SubtitleTrack, 0, len(parsed.Tracks))
	for _, t := range parsed.Tracks {
		if t.URL == "" {
			continue
		}
		tracks = append(tracks, types.SubtitleTrack{URL: t.URL, Label: t.Label})
	}
	return tracks, nil
}

func (s *HTTPSource) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return &types.NetworkError{URL: endpoint, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &types.NetworkError{URL: endpoint, Err: fmt.Errorf("server returned status code %d", resp.StatusCode)}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &types.NetworkError{URL: endpoint, Err: err}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("error parsing API response: %v", err)
	}
	return nil
}
