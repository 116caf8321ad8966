package memory

import (
	"testing"
	"time"
)

func newTestMonitor(usage int64, ceiling int64) *Monitor {
	m := NewMonitor(ceiling, DefaultThresholds, 0)
	m.sample = func() int64 { return usage }
	return m
}

func TestMonitor_Classification(t *testing.T) {
	tests := []struct {
		name  string
		usage int64
		want  Level
	}{
		{"well below warning", 100, LevelNormal},
		{"just below warning", 599, LevelNormal},
		{"at warning", 600, LevelWarning},
		{"between warning and critical", 700, LevelWarning},
		{"at critical", 750, LevelCritical},
		{"at emergency", 850, LevelEmergency},
		{"above ceiling", 2000, LevelEmergency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMonitor(tt.usage, 1000)
			if got := m.Level(); got != tt.want {
				t.Errorf("Level() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestMonitor_ZeroCeilingAlwaysNormal(t *testing.T) {
	m := newTestMonitor(1<<40, 0)
	if got := m.Level(); got != LevelNormal {
		t.Errorf("Level() = %s, want normal with ceiling disabled", got)
	}
}

func TestMonitor_CachedSample(t *testing.T) {
	calls := 0
	m := NewMonitor(1000, DefaultThresholds, 15*time.Second)
	m.sample = func() int64 {
		calls++
		return 100
	}
	current := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return current }

	m.Level()
	m.Level()
	m.Usage()
	if calls != 1 {
		t.Fatalf("Expected 1 sample within the refresh interval, got %d", calls)
	}

	current = current.Add(16 * time.Second)
	m.Level()
	if calls != 2 {
		t.Errorf("Expected a fresh sample after the interval, got %d calls", calls)
	}
}

func TestMonitor_DefaultSamplerReturnsUsage(t *testing.T) {
	m := NewMonitor(1<<30, DefaultThresholds, 0)
	if m.Usage() <= 0 {
		t.Error("Expected a positive heap usage sample")
	}
}
