package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Expected default port 8080, got %s", cfg.Port)
	}
	if cfg.MemoryCeilingBytes != 512*1024*1024 {
		t.Errorf("Expected 512MiB ceiling, got %d", cfg.MemoryCeilingBytes)
	}
	if cfg.StallTimeout != 30*time.Minute {
		t.Errorf("Expected 30m stall timeout, got %s", cfg.StallTimeout)
	}
	if cfg.LongTTL != 4*time.Hour || cfg.ShortTTL != time.Hour {
		t.Errorf("Expected 4h/1h TTLs, got %s/%s", cfg.LongTTL, cfg.ShortTTL)
	}
	if cfg.RedisAddr != "" || cfg.DatabaseURL != "" || cfg.KafkaBrokers != "" || cfg.ObjectStoreBucket != "" {
		t.Error("Expected sidecars disabled by default")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVICE_PORT", "9000")
	t.Setenv("MEMORY_CEILING_BYTES", "1024")
	t.Setenv("OPERATION_STALL_TIMEOUT", "5m")
	t.Setenv("MEMORY_WARNING_FRACTION", "0.5")

	cfg := Load()

	if cfg.Port != "9000" {
		t.Errorf("Expected port 9000, got %s", cfg.Port)
	}
	if cfg.MemoryCeilingBytes != 1024 {
		t.Errorf("Expected ceiling 1024, got %d", cfg.MemoryCeilingBytes)
	}
	if cfg.StallTimeout != 5*time.Minute {
		t.Errorf("Expected 5m stall timeout, got %s", cfg.StallTimeout)
	}
	if cfg.WarningFraction != 0.5 {
		t.Errorf("Expected warning fraction 0.5, got %f", cfg.WarningFraction)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("MEMORY_CEILING_BYTES", "not-a-number")
	t.Setenv("EVICTION_SWEEP_INTERVAL", "soon")

	cfg := Load()

	if cfg.MemoryCeilingBytes != 512*1024*1024 {
		t.Errorf("Expected default ceiling on parse failure, got %d", cfg.MemoryCeilingBytes)
	}
	if cfg.SweepInterval != 5*time.Minute {
		t.Errorf("Expected default sweep interval on parse failure, got %s", cfg.SweepInterval)
	}
}
