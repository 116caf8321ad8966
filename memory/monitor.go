package memory

import (
	"runtime"
	"sync"
	"time"
)

// Level classifies process memory headroom against the configured
// ceiling.
type Level int

const (
	LevelNormal Level = iota
	LevelWarning
	LevelCritical
	LevelEmergency
)

func (l Level) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	case LevelEmergency:
		return "emergency"
	default:
		return "unknown"
	}
}

// Thresholds are fractions of the ceiling that separate the levels.
type Thresholds struct {
	Warning   float64
	Critical  float64
	Emergency float64
}

// DefaultThresholds mirrors the documented 60/75/85 split.
var DefaultThresholds = Thresholds{Warning: 0.60, Critical: 0.75, Emergency: 0.85}

// Monitor samples process heap usage and classifies it into a pressure
// level. Samples are cached for at most the refresh interval so hot
// polling paths never pay for ReadMemStats on every call.
type Monitor struct {
	mu         sync.Mutex
	ceiling    int64
	thresholds Thresholds
	interval   time.Duration

	sample func() int64 // injectable for deterministic tests
	now    func() time.Time

	lastUsage int64
	lastAt    time.Time
}

// NewMonitor creates a Monitor for the given ceiling in bytes. A zero
// interval disables caching and samples on every call.
func NewMonitor(ceilingBytes int64, thresholds Thresholds, refreshInterval time.Duration) *Monitor {
	return &Monitor{
		ceiling:    ceilingBytes,
		thresholds: thresholds,
		interval:   refreshInterval,
		sample:     heapAlloc,
		now:        time.Now,
	}
}

func heapAlloc() int64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return int64(ms.HeapAlloc)
}

// Usage returns the sampled process usage in bytes.
func (m *Monitor) Usage() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh()
	return m.lastUsage
}

// Level returns the current pressure level.
func (m *Monitor) Level() Level {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refresh()
	return m.classify(m.lastUsage)
}

func (m *Monitor) refresh() {
	if !m.lastAt.IsZero() && m.interval > 0 && m.now().Sub(m.lastAt) < m.interval {
		return
	}
	m.lastUsage = m.sample()
	m.lastAt = m.now()
}

func (m *Monitor) classify(usage int64) Level {
	if m.ceiling <= 0 {
		return LevelNormal
	}
	frac := float64(usage) / float64(m.ceiling)
	switch {
	case frac >= m.thresholds.Emergency:
		return LevelEmergency
	case frac >= m.thresholds.Critical:
		return LevelCritical
	case frac >= m.thresholds.Warning:
		return LevelWarning
	default:
		return LevelNormal
	}
}
