package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/suPer8Hu/cesar/internal/pipeline"
)

var youtubeURL = regexp.MustCompile(`^https?://(?:` +
	`(?:www\.)?youtube\.com/watch\?v=[\w-]+|` +
	`(?:www\.)?youtube\.com/shorts/[\w-]+|` +
	`youtu\.be/[\w-]+|` +
	`(?:www\.)?youtube\.com/embed/[\w-]+|` +
	`(?:www\.)?youtube\.com/v/[\w-]+)`)

func IsYouTubeURL(s string) bool {
	return youtubeURL.MatchString(strings.TrimSpace(s))
}

type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

type Config struct {
	Dir      string // where fetched files are written
	YTDLPBin string
	S3       S3Config
}

// runFunc runs an external command and returns its combined output.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Downloader fetches remote sources into local files. It implements
// pipeline.Downloader.
type Downloader struct {
	dir    string
	ytdlp  string
	client *http.Client
	s3     *minio.Client
	run    runFunc
}

func NewDownloader(cfg Config) (*Downloader, error) {
	if cfg.Dir == "" {
		cfg.Dir = filepath.Join(os.TempDir(), "cesar-downloads")
	}
	if cfg.YTDLPBin == "" {
		cfg.YTDLPBin = "yt-dlp"
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	d := &Downloader{
		dir:    cfg.Dir,
		ytdlp:  cfg.YTDLPBin,
		client: &http.Client{Timeout: 30 * time.Minute},
		run:    execRun,
	}
	if cfg.S3.Endpoint != "" {
		client, err := minio.New(cfg.S3.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.S3.AccessKey, cfg.S3.SecretKey, ""),
			Secure: cfg.S3.UseSSL,
			Region: cfg.S3.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("init minio: %w", err)
		}
		d.s3 = client
	}
	return d, nil
}

func (d *Downloader) Fetch(ctx context.Context, source string) (string, error) {
	source = strings.TrimSpace(source)
	switch {
	case IsYouTubeURL(source):
		return d.fetchYouTube(ctx, source)
	case strings.HasPrefix(strings.ToLower(source), "s3://"):
		return d.fetchS3(ctx, source)
	case strings.HasPrefix(strings.ToLower(source), "http://"), strings.HasPrefix(strings.ToLower(source), "https://"):
		return d.fetchHTTP(ctx, source)
	default:
		return "", &pipeline.FetchError{Message: "unsupported source"}
	}
}

func (d *Downloader) newPath(ext string) string {
	return filepath.Join(d.dir, uuid.NewString()+ext)
}

func (d *Downloader) fetchYouTube(ctx context.Context, source string) (string, error) {
	base := d.newPath("")
	args := []string{
		"--no-playlist",
		"-x", "--audio-format", "m4a",
		"-o", base + ".%(ext)s",
		source,
	}
	if out, err := d.run(ctx, d.ytdlp, args...); err != nil {
		return "", &pipeline.FetchError{
			Message: "could not download video audio",
			Err:     fmt.Errorf("%w: %s", err, lastLine(string(out))),
		}
	}

	dest := base + ".m4a"
	if _, err := os.Stat(dest); err != nil {
		return "", &pipeline.FetchError{Message: "video download produced no audio", Err: err}
	}
	return dest, nil
}

// parseS3 splits s3://bucket/key.
func parseS3(source string) (bucket, key string, ok bool) {
	rest := source[len("s3://"):]
	bucket, key, found := strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

func (d *Downloader) fetchS3(ctx context.Context, source string) (string, error) {
	if d.s3 == nil {
		return "", &pipeline.FetchError{Message: "object storage sources are not configured"}
	}
	bucket, key, ok := parseS3(source)
	if !ok {
		return "", &pipeline.FetchError{Message: "invalid object storage location"}
	}

	dest := d.newPath(path.Ext(key))
	if err := d.s3.FGetObject(ctx, bucket, key, dest, minio.GetObjectOptions{}); err != nil {
		_ = os.Remove(dest)
		return "", &pipeline.FetchError{Message: "could not download object", Err: err}
	}
	return dest, nil
}

func (d *Downloader) fetchHTTP(ctx context.Context, source string) (string, error) {
	u, err := url.Parse(source)
	if err != nil {
		return "", &pipeline.FetchError{Message: "invalid source url", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", &pipeline.FetchError{Message: "invalid source url", Err: err}
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", &pipeline.FetchError{Message: "could not download source", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &pipeline.FetchError{
			Message: fmt.Sprintf("source returned HTTP %d", resp.StatusCode),
			Err:     fmt.Errorf("GET %s: status %d", u.Redacted(), resp.StatusCode),
		}
	}

	dest := d.newPath(path.Ext(u.Path))
	f, err := os.Create(dest)
	if err != nil {
		return "", &pipeline.FetchError{Message: "could not store download", Err: err}
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(dest)
		return "", &pipeline.FetchError{Message: "download interrupted", Err: err}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(dest)
		return "", &pipeline.FetchError{Message: "could not store download", Err: err}
	}
	return dest, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
