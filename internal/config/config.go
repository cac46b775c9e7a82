package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Serializer flags
	ScrubWikitext  bool
	RTTestMode     bool
	ScrubBidiChars bool

	// Parsoid connection, used to parse original wikitext when the
	// caller sends no original HTML.
	ParsoidURL    string
	ParsoidAPIKey string

	// TemplateData: a static YAML file, a MediaWiki API endpoint, or both
	// (the file wins for the templates it lists).
	TemplateDataAPIURL  string
	TemplateDataFile    string
	TemplateDataRPS     float64
	TemplateDataTimeout time.Duration

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Upload limits
	MaxUploadBytes int64

	// Job state
	JobTTL time.Duration

	// PDF
	PDFFallbackPdftotext bool

	// Rolling latency window for /api/stats
	StatsWindow time.Duration
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		APIKey: os.Getenv("WTSELSER_API_KEY"),

		ScrubWikitext:  envBool("SCRUB_WIKITEXT", false),
		RTTestMode:     envBool("RT_TEST_MODE", false),
		ScrubBidiChars: envBool("SCRUB_BIDI_CHARS", false),

		ParsoidURL:    os.Getenv("PARSOID_URL"),
		ParsoidAPIKey: os.Getenv("PARSOID_API_KEY"),

		TemplateDataAPIURL:  os.Getenv("TEMPLATEDATA_API_URL"),
		TemplateDataFile:    os.Getenv("TEMPLATEDATA_FILE"),
		TemplateDataRPS:     envFloat("TEMPLATEDATA_RPS", 5),
		TemplateDataTimeout: envDuration("TEMPLATEDATA_TIMEOUT", 10*time.Second),

		WorkerCount:  envInt("WORKER_COUNT", 4),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 100),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),

		StatsWindow: envDuration("STATS_WINDOW", 1*time.Hour),
	}

	if cfg.TemplateDataRPS <= 0 {
		cfg.TemplateDataRPS = 5
	}
	if cfg.TemplateDataTimeout <= 0 {
		cfg.TemplateDataTimeout = 10 * time.Second
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if cfg.StatsWindow <= 0 {
		cfg.StatsWindow = 1 * time.Hour
	}

	return cfg
}

// Validate reports settings the server cannot run with.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return errors.New("WTSELSER_API_KEY is required")
	}
	if c.RTTestMode && c.ScrubWikitext {
		return errors.New("SCRUB_WIKITEXT cannot be combined with RT_TEST_MODE")
	}
	if c.TemplateDataFile != "" {
		if _, err := os.Stat(c.TemplateDataFile); err != nil {
			return fmt.Errorf("TEMPLATEDATA_FILE: %w", err)
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
