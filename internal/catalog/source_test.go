package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anivault/anivault/internal/types"
)

type plainDoer struct {
	client *http.Client
}

func (d *plainDoer) Do(req *http.Request) (*http.Response, error) { return d.client.Do(req) }
func (d *plainDoer) SetHeader(key, value string)                  {}

func TestResolveStreamSource(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `{"url":"https://cdn.example.com/hls/index.m3u8","is_playlist":true,"headers":{"X-Token":"abc"}}`)
	}))
	defer server.Close()

	src := NewHTTPSource(server.URL, &plainDoer{client: http.DefaultClient})
	ref := types.EpisodeRef{AnimeSlug: "one-piece", EpisodeNumber: 12, Server: "hd-1"}
	got, err := src.ResolveStreamSource(context.Background(), ref)
	if err != nil {
		t.Fatalf("ResolveStreamSource returned error: %v", err)
	}
	if wantPath := "/anime/one-piece/episodes/12/servers/hd-1/stream"; gotPath != wantPath {
		t.Errorf("requested path = %q, want %q", gotPath, wantPath)
	}
	if got.URL != "https://cdn.example.com/hls/index.m3u8" || !got.IsPlaylist {
		t.Errorf("stream source = %+v", got)
	}
	if got.Headers["X-Token"] != "abc" {
		t.Errorf("headers = %v", got.Headers)
	}
}

func TestResolveStreamSourceEmptyURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"url":"","is_playlist":false}`)
	}))
	defer server.Close()

	src := NewHTTPSource(server.URL, &plainDoer{client: http.DefaultClient})
	_, err := src.ResolveStreamSource(context.Background(), types.EpisodeRef{AnimeSlug: "a", EpisodeNumber: 1, Server: "hd-1"})
	var netErr *types.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("got error %T (%v), want *types.NetworkError", err, err)
	}
}

func TestResolveStreamSourceServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	src := NewHTTPSource(server.URL, &plainDoer{client: http.DefaultClient})
	_, err := src.ResolveStreamSource(context.Background(), types.EpisodeRef{AnimeSlug: "a", EpisodeNumber: 1, Server: "hd-1"})
	var netErr *types.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("got error %T (%v), want *types.NetworkError", err, err)
	}
}

func TestGetSubtitleTracks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"tracks":[{"url":"https://cdn.example.com/en.vtt","label":"English"},{"url":"","label":"broken"},{"url":"https://cdn.example.com/pt.vtt","label":"Portuguese"}]}`)
	}))
	defer server.Close()

	src := NewHTTPSource(server.URL, &plainDoer{client: http.DefaultClient})
	tracks, err := src.GetSubtitleTracks(context.Background(), types.EpisodeRef{AnimeSlug: "a", EpisodeNumber: 1, Server: "hd-1"})
	if err != nil {
		t.Fatalf("GetSubtitleTracks returned error: %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("got %d tracks, want 2 (URL-less track dropped)", len(tracks))
	}
	if tracks[0].Label != "English" || tracks[1].Label != "Portuguese" {
		t.Errorf("tracks = %+v", tracks)
	}
}

func TestGetSubtitleTracksBadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>definitely not json</html>`)
	}))
	defer server.Close()

	src := NewHTTPSource(server.URL, &plainDoer{client: http.DefaultClient})
	if _, err := src.GetSubtitleTracks(context.Background(), types.EpisodeRef{AnimeSlug: "a", EpisodeNumber: 1, Server: "hd-1"}); err == nil {
		t.Fatal("expected an error for a non-JSON response")
	}
}
