package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/anivault/anivault/internal/types"
)

type plainDoer struct {
	client *http.Client
}

func (d *plainDoer) Do(req *http.Request) (*http.Response, error) { return d.client.Do(req) }
func (d *plainDoer) SetHeader(key, value string)                  {}

func newTestEngine() *Engine {
	return NewEngine(&plainDoer{client: http.DefaultClient})
}

func TestDownloadSegmentsMergesInOrder(t *testing.T) {
	payloads := map[string][]byte{
		"/seg0.ts": bytes.Repeat([]byte{0x47, 0x00}, 100),
		"/seg1.ts": bytes.Repeat([]byte{0x47, 0x01}, 100),
		"/seg2.ts": bytes.Repeat([]byte{0x47, 0x02}, 100),
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := payloads[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(body)
	}))
	defer server.Close()

	root := t.TempDir()
	scratch := filepath.Join(root, "scratch")
	dest := filepath.Join(root, "out", "episode.mp4")
	urls := []string{server.URL + "/seg0.ts", server.URL + "/seg1.ts", server.URL + "/seg2.ts"}

	size, err := newTestEngine().DownloadSegments(context.Background(), scratch, urls, dest, nil, nil)
	if err != nil {
		t.Fatalf("DownloadSegments returned error: %v", err)
	}
	want := append(append(append([]byte{}, payloads["/seg0.ts"]...), payloads["/seg1.ts"]...), payloads["/seg2.ts"]...)
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("could not read merged file: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("merged file is %d bytes, want %d bytes in playlist order", len(got), len(want))
	}
	if size != int64(len(want)) {
		t.Errorf("reported size = %d, want %d", size, len(want))
	}
	if _, err := os.Stat(scratch); !os.IsNotExist(err) {
		t.Errorf("scratch directory was not removed after merge")
	}
}

func TestDownloadSegmentsSkipsFailedSegments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/seg1.ts" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, "data:"+r.URL.Path+";")
	}))
	defer server.Close()

	root := t.TempDir()
	dest := filepath.Join(root, "episode.mp4")
	urls := []string{server.URL + "/seg0.ts", server.URL + "/seg1.ts", server.URL + "/seg2.ts"}

	if _, err := newTestEngine().DownloadSegments(context.Background(), filepath.Join(root, "scratch"), urls, dest, nil, nil); err != nil {
		t.Fatalf("DownloadSegments returned error: %v", err)
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("could not read merged file: %v", err)
	}
	want := "data:/seg0.ts;data:/seg2.ts;"
	if string(got) != want {
		t.Fatalf("merged file = %q, want successes concatenated in order %q", got, want)
	}
}

func TestDownloadSegmentsAllFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	root := t.TempDir()
	scratch := filepath.Join(root, "scratch")
	dest := filepath.Join(root, "episode.mp4")
	urls := []string{server.URL + "/seg0.ts", server.URL + "/seg1.ts"}

	_, err := newTestEngine().DownloadSegments(context.Background(), scratch, urls, dest, nil, nil)
	if !errors.Is(err, types.ErrEmptyResult) {
		t.Fatalf("got error %v, want ErrEmptyResult", err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Errorf("destination file exists after total failure")
	}
	if _, err := os.Stat(scratch); !os.IsNotExist(err) {
		t.Errorf("scratch directory exists after total failure")
	}
}

func TestDownloadSegmentsCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data")
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	root := t.TempDir()
	scratch := filepath.Join(root, "scratch")
	dest := filepath.Join(root, "episode.mp4")

	_, err := newTestEngine().DownloadSegments(ctx, scratch, []string{server.URL + "/seg0.ts"}, dest, nil, nil)
	if !errors.Is(err, types.ErrCancelled) {
		t.Fatalf("got error %v, want ErrCancelled", err)
	}
	if _, err := os.Stat(scratch); !os.IsNotExist(err) {
		t.Errorf("scratch directory exists after cancellation")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Errorf("destination file exists after cancellation")
	}
}

func TestDownloadSegmentsProgress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "0123456789")
	}))
	defer server.Close()

	root := t.TempDir()
	urls := []string{server.URL + "/a.ts", server.URL + "/b.ts"}
	var fractions []float64
	progress := func(fraction float64, downloadedBytes int64) {
		fractions = append(fractions, fraction)
	}
	if _, err := newTestEngine().DownloadSegments(context.Background(), filepath.Join(root, "scratch"), urls, filepath.Join(root, "out.mp4"), nil, progress); err != nil {
		t.Fatalf("DownloadSegments returned error: %v", err)
	}
	if len(fractions) == 0 {
		t.Fatal("no progress reported")
	}
	for i := 1; i < len(fractions); i++ {
		if fractions[i] < fractions[i-1] {
			t.Fatalf("progress went backwards: %v", fractions)
		}
	}
	if last := fractions[len(fractions)-1]; last != 1.0 {
		t.Errorf("final progress = %v, want 1.0", last)
	}
}

func TestDownloadDirect(t *testing.T) {
	body := bytes.Repeat([]byte{0xab}, 4096)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "video", "episode.mp4")
	size, err := newTestEngine().DownloadDirect(context.Background(), server.URL+"/episode.mp4", dest, nil, nil)
	if err != nil {
		t.Fatalf("DownloadDirect returned error: %v", err)
	}
	if size != int64(len(body)) {
		t.Errorf("size = %d, want %d", size, len(body))
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("could not read destination: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Error("downloaded content differs from served content")
	}
}

func TestDownloadDirectRejectsTinyPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>not found</html>")
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "episode.mp4")
	_, err := newTestEngine().DownloadDirect(context.Background(), server.URL+"/episode.mp4", dest, nil, nil)
	if !errors.Is(err, types.ErrErrorPayload) {
		t.Fatalf("got error %v, want ErrErrorPayload", err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Errorf("destination file exists after error-payload rejection")
	}
}

func TestDownloadDirectServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	dest := filepath.Join(t.TempDir(), "episode.mp4")
	_, err := newTestEngine().DownloadDirect(context.Background(), server.URL+"/episode.mp4", dest, nil, nil)
	var netErr *types.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("got error %T (%v), want *types.NetworkError", err, err)
	}
}
