package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/suPer8Hu/cesar/internal/pipeline"
)

func newTestDownloader(t *testing.T) *Downloader {
	t.Helper()
	d, err := NewDownloader(Config{Dir: filepath.Join(t.TempDir(), "dl")})
	if err != nil {
		t.Fatalf("new downloader: %v", err)
	}
	return d
}

func TestIsYouTubeURL(t *testing.T) {
	cases := map[string]bool{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ": true,
		"https://youtube.com/shorts/abc_123":          true,
		"http://youtu.be/dQw4w9WgXcQ":                 true,
		"https://www.youtube.com/embed/xyz":           true,
		"https://www.youtube.com/v/xyz":               true,
		"https://www.youtube.com/channel/UC123":       false,
		"https://vimeo.com/12345":                     false,
		"/tmp/youtube.com/watch?v=abc":                false,
	}
	for in, want := range cases {
		if got := IsYouTubeURL(in); got != want {
			t.Fatalf("IsYouTubeURL(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFetchHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/media/talk.mp3" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("ID3 fake audio"))
	}))
	defer srv.Close()

	d := newTestDownloader(t)
	p, err := d.Fetch(context.Background(), srv.URL+"/media/talk.mp3")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if filepath.Ext(p) != ".mp3" || filepath.Dir(p) != d.dir {
		t.Fatalf("unexpected path %q", p)
	}
	b, err := os.ReadFile(p)
	if err != nil || string(b) != "ID3 fake audio" {
		t.Fatalf("content = %q, %v", b, err)
	}

	_, err = d.Fetch(context.Background(), srv.URL+"/missing.mp3")
	var fe *pipeline.FetchError
	if !errors.As(err, &fe) || !strings.Contains(fe.Message, "404") {
		t.Fatalf("expected 404 FetchError, got %v", err)
	}
}

func TestFetchYouTube(t *testing.T) {
	d := newTestDownloader(t)
	var gotArgs []string
	d.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = args
		tmpl := args[len(args)-2]
		return nil, os.WriteFile(strings.Replace(tmpl, "%(ext)s", "m4a", 1), []byte("audio"), 0o644)
	}

	p, err := d.Fetch(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if filepath.Ext(p) != ".m4a" {
		t.Fatalf("path = %q", p)
	}
	if !strings.Contains(strings.Join(gotArgs, " "), "-x --audio-format m4a") {
		t.Fatalf("args = %v", gotArgs)
	}
}

func TestFetchYouTubeFailure(t *testing.T) {
	d := newTestDownloader(t)
	d.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("[youtube] x\nERROR: Video unavailable"), errors.New("exit status 1")
	}
	_, err := d.Fetch(context.Background(), "https://www.youtube.com/watch?v=gone")
	var fe *pipeline.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if !strings.Contains(fe.Error(), "Video unavailable") {
		t.Fatalf("cause should be kept for logs: %v", fe)
	}
}

func TestFetchS3(t *testing.T) {
	if _, _, ok := parseS3("s3://bucket"); ok {
		t.Fatalf("bucket without key must not parse")
	}
	b, k, ok := parseS3("s3://media/2026/talk.wav")
	if !ok || b != "media" || k != "2026/talk.wav" {
		t.Fatalf("parse = %q %q %v", b, k, ok)
	}

	d := newTestDownloader(t)
	_, err := d.Fetch(context.Background(), "s3://media/talk.wav")
	var fe *pipeline.FetchError
	if !errors.As(err, &fe) || !strings.Contains(fe.Message, "not configured") {
		t.Fatalf("expected not configured error, got %v", err)
	}
}

func TestFetchUnsupported(t *testing.T) {
	d := newTestDownloader(t)
	_, err := d.Fetch(context.Background(), "ftp://example.com/a.mp3")
	var fe *pipeline.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
}
