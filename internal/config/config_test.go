package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "WORKER_COUNT", "JOB_TTL", "TEMPLATEDATA_RPS", "STATS_WINDOW", "SCRUB_WIKITEXT"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	if cfg.Port != "8090" {
		t.Errorf("expected port %q, got %q", "8090", cfg.Port)
	}
	if cfg.WorkerCount != 4 || cfg.MaxQueueSize != 100 {
		t.Errorf("unexpected pool defaults: %d workers, queue %d", cfg.WorkerCount, cfg.MaxQueueSize)
	}
	if cfg.JobTTL != time.Hour || cfg.StatsWindow != time.Hour {
		t.Errorf("unexpected durations: ttl %v, window %v", cfg.JobTTL, cfg.StatsWindow)
	}
	if cfg.ScrubWikitext {
		t.Error("expected scrubbing off by default")
	}
	if !cfg.PDFFallbackPdftotext {
		t.Error("expected pdftotext fallback on by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("SCRUB_WIKITEXT", "true")
	t.Setenv("TEMPLATEDATA_RPS", "2.5")
	t.Setenv("JOB_TTL", "5m")
	t.Setenv("WORKER_COUNT", "-3")
	t.Setenv("MAX_UPLOAD_BYTES", "not-a-number")

	cfg := Load()
	if cfg.Port != "9000" {
		t.Errorf("expected port %q, got %q", "9000", cfg.Port)
	}
	if !cfg.ScrubWikitext {
		t.Error("expected scrubbing on")
	}
	if cfg.TemplateDataRPS != 2.5 {
		t.Errorf("expected rps 2.5, got %v", cfg.TemplateDataRPS)
	}
	if cfg.JobTTL != 5*time.Minute {
		t.Errorf("expected ttl 5m, got %v", cfg.JobTTL)
	}
	if cfg.WorkerCount != 4 {
		t.Errorf("expected non-positive worker count to reset to 4, got %d", cfg.WorkerCount)
	}
	if cfg.MaxUploadBytes != 52428800 {
		t.Errorf("expected unparsable upload limit to fall back, got %d", cfg.MaxUploadBytes)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"ok", Config{APIKey: "k"}, false},
		{"missing key", Config{}, true},
		{"scrub in rt test mode", Config{APIKey: "k", ScrubWikitext: true, RTTestMode: true}, true},
		{"missing templatedata file", Config{APIKey: "k", TemplateDataFile: filepath.Join(t.TempDir(), "nope.yaml")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error=%v, got %v", tt.wantErr, err)
			}
		})
	}
}
