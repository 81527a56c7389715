package hls

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/anivault/anivault/internal/types"
	"github.com/anivault/anivault/internal/utils"
)

// maxPlaylistHops caps master-playlist recursion. A server returning a
// self-referential or cyclic master playlist would otherwise loop forever.
const maxPlaylistHops = 5

type variant struct {
	bandwidth int64
	url       string
}

// Resolver turns an HLS playlist URL into the ordered list of media segment
// URLs of its highest-bandwidth variant.
type Resolver struct {
	client  utils.HTTPDoer
	headers map[string]string
}

func NewResolver(client utils.HTTPDoer, headers map[string]string) *Resolver {
	return &Resolver{client: client, headers: headers}
}

// Resolve fetches and interprets playlistURL, following master playlists to
// the best media playlist. The returned URLs are absolute and in file order.
func (r *Resolver) Resolve(ctx context.Context, playlistURL string) ([]string, error) {
	return r.resolve(ctx, playlistURL, 0)
}

func (r *Resolver) resolve(ctx context.Context, playlistURL string, hop int) ([]string, error) {
	if hop >= maxPlaylistHops {
		return nil, fmt.Errorf("%w after %d hops at %s", types.ErrRecursionLimit, hop, playlistURL)
	}
	content, err := r.fetchPlaylist(ctx, playlistURL)
	if err != nil {
		return nil, err
	}
	// Cooperative-cancel checkpoint: right after the response arrives.
	select {
	case <-ctx.Done():
		return nil, types.ErrCancelled
	default:
	}
	segments, variants, err := parsePlaylist(content, playlistURL)
	if err != nil {
		return nil, err
	}
	if len(variants) > 0 {
		best := selectVariant(variants)
		log.Debug().Str("op", "hls/resolver").Int64("bandwidth", best.bandwidth).Msgf("Master playlist: following variant %s", best.url)
		return r.resolve(ctx, best.url, hop+1)
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w at %s", types.ErrNoSegments, playlistURL)
	}
	return segments, nil
}

func (r *Resolver) fetchPlaylist(ctx context.Context, playlistURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", playlistURL, nil)
	if err != nil {
		return "", fmt.Errorf("error creating request: %v", err)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", &types.NetworkError{URL: playlistURL, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", &types.NetworkError{URL: playlistURL, Err: fmt.Errorf("server returned status code %d", resp.StatusCode)}
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &types.NetworkError{URL: playlistURL, Err: fmt.Errorf("error reading playlist content: %v", err)}
	}
	return string(content), nil
}

// parsePlaylist classifies playlist text. A line tagged #EXT-X-STREAM-INF
// marks the following URI line as a stream variant; any presence of variants
// makes this a master playlist. Otherwise every non-comment, non-empty line
// is a segment URI.
func parsePlaylist(content, playlistURL string) (segments []string, variants []variant, err error) {
	baseURL, err := url.Parse(playlistURL)
	if err != nil {
		return nil, nil, fmt.Errorf("error parsing playlist URL: %v", err)
	}
	scanner := bufio.NewScanner(strings.NewReader(content))
	var pendingBandwidth int64 = -1
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if strings.Contains(line, "#EXT-X-STREAM-INF") {
				pendingBandwidth = parseBandwidth(line)
			}
			continue
		}
		resolved, err := resolveURL(baseURL, line)
		if err != nil {
			return nil, nil, fmt.Errorf("error resolving URL: %v", err)
		}
		if pendingBandwidth >= 0 {
			variants = append(variants, variant{bandwidth: pendingBandwidth, url: resolved})
			pendingBandwidth = -1
		} else {
			segments = append(segments, resolved)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("error scanning playlist content: %v", err)
	}
	return segments, variants, nil
}

func parseBandwidth(line string) int64 {
	const attr = "BANDWIDTH="
	idx := strings.Index(line, attr)
	if idx == -1 {
		return 0
	}
	rest := line[idx+len(attr):]
	end := strings.IndexAny(rest, ",\"")
	if end != -1 {
		rest = rest[:end]
	}
	bw, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64)
	if err != nil {
		return 0
	}
	return bw
}

// selectVariant picks the highest declared bandwidth; ties go to the first
// occurrence.
func selectVariant(variants []variant) variant {
	best := variants[0]
	for _, v := range variants[1:] {
		if v.bandwidth > best.bandwidth {
			best = v
		}
	}
	return best
}

// resolveURL attaches relative URIs to the playlist's own URL: absolute-path
// URIs to the scheme+host, everything else to the URL directory.
func resolveURL(baseURL *url.URL, urlStr string) (string, error) {
	if strings.HasPrefix(urlStr, "http://") || strings.HasPrefix(urlStr, "https://") {
		return urlStr, nil // Already an absolute URL
	}
	relURL, err := url.Parse(urlStr)
	if err != nil {
		return "", err
	}
	absURL := baseURL.ResolveReference(relURL)
	return absURL.String(), nil
}
