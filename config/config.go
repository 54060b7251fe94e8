package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config carries every tunable the service reads from the environment.
// It is loaded once in main and threaded into constructors so nothing deeper
// in the call stack touches os.Getenv.
type Config struct {
	Port     string
	LogLevel string

	SupabaseURL        string
	SupabaseServiceKey string
	VideoBucket        string
	ThumbnailBucket    string

	OpenAIKey           string
	AIRequestsPerSecond int
	ThumbnailServiceURL string

	FFmpegPath  string
	FFprobePath string
	YtDlpPath   string
	ScratchDir  string

	ScrapeWorkers int
	JobWorkers    int
	JobQueueSize  int

	StageTimeout   time.Duration
	StorageTimeout time.Duration
}

// Load reads the configuration from the environment and applies defaults for
// everything that is safe to default. Credentials are required.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		SupabaseURL:         os.Getenv("SUPABASE_URL"),
		SupabaseServiceKey:  os.Getenv("SUPABASE_SERVICE_KEY"),
		VideoBucket:         getEnv("VIDEO_BUCKET", "unprocessed-videos"),
		ThumbnailBucket:     getEnv("THUMBNAIL_BUCKET", "unprocessed-thumbnails"),
		OpenAIKey:           os.Getenv("OPENAI_API_KEY"),
		AIRequestsPerSecond: getEnvInt("AI_REQUESTS_PER_SECOND", 2),
		ThumbnailServiceURL: os.Getenv("THUMBNAIL_SERVICE_URL"),
		FFmpegPath:          getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:         getEnv("FFPROBE_PATH", "ffprobe"),
		YtDlpPath:           getEnv("YTDLP_PATH", "yt-dlp"),
		ScratchDir:          getEnv("SCRATCH_DIR", os.TempDir()),
		ScrapeWorkers:       getEnvInt("SCRAPE_WORKERS", 3),
		JobWorkers:          getEnvInt("JOB_WORKERS", 2),
		JobQueueSize:        getEnvInt("JOB_QUEUE_SIZE", 100),
		StageTimeout:        getEnvDuration("STAGE_TIMEOUT", 120*time.Second),
		StorageTimeout:      getEnvDuration("STORAGE_TIMEOUT", 120*time.Second),
	}

	if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY must be set in environment variables")
	}
	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY must be set in environment variables")
	}
	if cfg.ScrapeWorkers < 1 {
		cfg.ScrapeWorkers = 1
	}
	if cfg.JobWorkers < 1 {
		cfg.JobWorkers = 1
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
