package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv   string
	DBPath   string
	HTTPAddr string

	// worker
	PollInterval  time.Duration
	ShutdownGrace time.Duration

	UploadDir   string
	DownloadDir string

	// engines
	FFmpegBin  string
	WhisperBin string
	YTDLPBin   string
	ModelDir   string
	Threads    int
	DiarizeURL string
	HFToken    string

	// optional HS256 bearer auth on the HTTP API
	APISecret string

	// job events; empty address/url disables the publisher
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RabbitURL     string
	RabbitQueue   string

	// s3:// sources
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool
	S3Region    string
}

// Load reads the environment, after an optional .env in the working
// directory. Variables already set win over the file.
func Load() Config {
	_ = godotenv.Load()

	dataDir := defaultDataDir()
	tmp := os.TempDir()

	return Config{
		AppEnv:   getEnv("APP_ENV", "production"),
		DBPath:   getEnv("CESAR_DB_PATH", filepath.Join(dataDir, "jobs.db")),
		HTTPAddr: getEnv("CESAR_HTTP_ADDR", ":8000"),

		PollInterval:  getEnvDuration("CESAR_POLL_INTERVAL", time.Second),
		ShutdownGrace: getEnvDuration("CESAR_SHUTDOWN_GRACE", 30*time.Second),

		UploadDir:   getEnv("CESAR_UPLOAD_DIR", filepath.Join(tmp, "cesar-uploads")),
		DownloadDir: getEnv("CESAR_DOWNLOAD_DIR", filepath.Join(tmp, "cesar-downloads")),

		FFmpegBin:  getEnv("CESAR_FFMPEG_BIN", "ffmpeg"),
		WhisperBin: getEnv("CESAR_WHISPER_BIN", "whisper-cli"),
		YTDLPBin:   getEnv("CESAR_YTDLP_BIN", "yt-dlp"),
		ModelDir:   getEnv("CESAR_MODEL_DIR", filepath.Join(dataDir, "models")),
		Threads:    getEnvInt("CESAR_THREADS", 4),
		DiarizeURL: getEnv("CESAR_DIARIZE_URL", "http://localhost:8765"),
		HFToken:    os.Getenv("HF_TOKEN"),

		APISecret: os.Getenv("CESAR_API_SECRET"),

		RedisAddr:     os.Getenv("CESAR_REDIS_ADDR"),
		RedisPassword: os.Getenv("CESAR_REDIS_PASSWORD"),
		RedisDB:       getEnvInt("CESAR_REDIS_DB", 0),
		RabbitURL:     os.Getenv("CESAR_RABBIT_URL"),
		RabbitQueue:   getEnv("CESAR_RABBIT_QUEUE", "cesar.job_events"),

		S3Endpoint:  os.Getenv("CESAR_S3_ENDPOINT"),
		S3AccessKey: os.Getenv("CESAR_S3_ACCESS_KEY"),
		S3SecretKey: os.Getenv("CESAR_S3_SECRET_KEY"),
		S3UseSSL:    getEnvBool("CESAR_S3_USE_SSL", true),
		S3Region:    os.Getenv("CESAR_S3_REGION"),
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), "cesar")
	}
	return filepath.Join(home, ".local", "share", "cesar")
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("500ms", "2m") or plain seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil && n > 0 {
		return time.Duration(n * float64(time.Second))
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
