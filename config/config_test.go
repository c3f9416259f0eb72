package config

import (
	"testing"
	"time"

	"github.com/serisow/craftvid/script_type"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.DefaultSceneDuration != 5 {
		t.Errorf("DefaultSceneDuration = %v, want 5", cfg.DefaultSceneDuration)
	}
	if cfg.DefaultVoice.ID != "nPczCjzI2devNBz1zQrb" {
		t.Errorf("DefaultVoice.ID = %q", cfg.DefaultVoice.ID)
	}
	if cfg.DefaultModel.ID != "eleven_multilingual_v2" {
		t.Errorf("DefaultModel.ID = %q", cfg.DefaultModel.ID)
	}
	if cfg.CompileSettle != 10*time.Second {
		t.Errorf("CompileSettle = %v, want 10s", cfg.CompileSettle)
	}
	if cfg.BackgroundVolume != 0.1 {
		t.Errorf("BackgroundVolume = %v, want 0.1", cfg.BackgroundVolume)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DEFAULT_FORMAT", "shorts")
	t.Setenv("WORKER_CONCURRENCY", "8")
	t.Setenv("WATERMARK_OPACITY", "0.5")
	t.Setenv("DOMAIN", "craftvid.io,www.craftvid.io")
	t.Setenv("RETRY_ATTEMPTS", "not-a-number")

	cfg := Load()

	if cfg.DefaultFormat != script_type.FormatShorts {
		t.Errorf("DefaultFormat = %q", cfg.DefaultFormat)
	}
	if cfg.WorkerConcurrency != 8 {
		t.Errorf("WorkerConcurrency = %d", cfg.WorkerConcurrency)
	}
	if cfg.WatermarkOpacity != 0.5 {
		t.Errorf("WatermarkOpacity = %v", cfg.WatermarkOpacity)
	}
	if len(cfg.Domains) != 2 || cfg.Domains[1] != "www.craftvid.io" {
		t.Errorf("Domains = %v", cfg.Domains)
	}
	if cfg.RetryAttempts != 3 {
		t.Errorf("RetryAttempts should fall back to 3, got %d", cfg.RetryAttempts)
	}
}
