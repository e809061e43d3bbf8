package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the revid server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Pipeline PipelineConfig
	Analyzer AnalyzerConfig
	Live     LiveConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// StorageConfig locates the per-job on-disk layout: one video dir, one
// artifact dir and one log stream per job id.
type StorageConfig struct {
	VideoDir    string
	ArtifactDir string
	LogDir      string
}

// PipelineConfig bounds the batch processing pipeline.
type PipelineConfig struct {
	MaxWorkers       int           // concurrent job executions
	QueueSize        int           // submissions waiting beyond the workers
	FrameStride      int           // analyze every Nth frame
	MaxFrames        int           // hard cap on sampled frames per job
	MaxArtifacts     int           // annotated frames persisted per job
	LogEveryNFrames  int           // frame_processed log throttle
	ProgressInterval time.Duration // minimum time between progress writes
	JobTimeout       time.Duration // wall-clock limit for one job run
}

type AnalyzerConfig struct {
	Provider         string
	InferenceTimeout time.Duration
	HTTPAPI          HTTPAPIConfig
}

type HTTPAPIConfig struct {
	BaseURL string
}

// LiveConfig bounds live analysis sessions.
type LiveConfig struct {
	MinFrameInterval time.Duration // rate limit between analyzed frames
	MaxFrameBytes    int64         // reject frames larger than this
}

var validProviders = map[string]bool{
	"httpapi": true,
	"mock":    true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("REVID_PORT", 8080),
			Env:  envString("REVID_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Storage: StorageConfig{
			VideoDir:    envString("REVID_VIDEO_DIR", "storage/videos"),
			ArtifactDir: envString("REVID_ARTIFACT_DIR", "storage/artifacts"),
			LogDir:      envString("REVID_LOG_DIR", "storage/logs"),
		},
		Pipeline: PipelineConfig{
			MaxWorkers:       envInt("REVID_MAX_WORKERS", 2),
			QueueSize:        envInt("REVID_QUEUE_SIZE", 64),
			FrameStride:      envInt("REVID_FRAME_STRIDE", 5),
			MaxFrames:        envInt("REVID_MAX_FRAMES", 200),
			MaxArtifacts:     envInt("REVID_MAX_ARTIFACTS", 20),
			LogEveryNFrames:  envInt("REVID_LOG_EVERY_N_FRAMES", 10),
			ProgressInterval: envDuration("REVID_PROGRESS_INTERVAL", 2*time.Second),
			JobTimeout:       envDuration("REVID_JOB_TIMEOUT", 10*time.Minute),
		},
		Analyzer: AnalyzerConfig{
			Provider:         envString("ANALYZER_PROVIDER", "httpapi"),
			InferenceTimeout: envDurationSecs("ANALYZER_INFERENCE_TIMEOUT_SECS", 30*time.Second),
			HTTPAPI: HTTPAPIConfig{
				BaseURL: envString("ANALYZER_BASE_URL", "http://localhost:9000"),
			},
		},
		Live: LiveConfig{
			MinFrameInterval: envDuration("REVID_LIVE_MIN_FRAME_INTERVAL", 500*time.Millisecond),
			MaxFrameBytes:    int64(envInt("REVID_LIVE_MAX_FRAME_BYTES", 4<<20)),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !validProviders[c.Analyzer.Provider] {
		return fmt.Errorf("ANALYZER_PROVIDER must be one of httpapi, mock; got %q", c.Analyzer.Provider)
	}
	if c.Analyzer.Provider == "httpapi" {
		if c.Analyzer.HTTPAPI.BaseURL == "" {
			return fmt.Errorf("ANALYZER_BASE_URL is required when ANALYZER_PROVIDER is httpapi")
		}
		if !strings.HasPrefix(c.Analyzer.HTTPAPI.BaseURL, "http://") && !strings.HasPrefix(c.Analyzer.HTTPAPI.BaseURL, "https://") {
			return fmt.Errorf("ANALYZER_BASE_URL must start with http:// or https://, got %q", c.Analyzer.HTTPAPI.BaseURL)
		}
	}

	if c.Pipeline.MaxWorkers < 1 {
		return fmt.Errorf("REVID_MAX_WORKERS must be at least 1, got %d", c.Pipeline.MaxWorkers)
	}
	if c.Pipeline.FrameStride < 1 {
		return fmt.Errorf("REVID_FRAME_STRIDE must be at least 1, got %d", c.Pipeline.FrameStride)
	}
	if c.Pipeline.MaxFrames < 1 {
		return fmt.Errorf("REVID_MAX_FRAMES must be at least 1, got %d", c.Pipeline.MaxFrames)
	}
	if c.Live.MinFrameInterval <= 0 {
		return fmt.Errorf("REVID_LIVE_MIN_FRAME_INTERVAL must be positive, got %s", c.Live.MinFrameInterval)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
