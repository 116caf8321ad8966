package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries every environment-tunable knob with its documented
// default. Empty RedisAddr/DatabaseURL/KafkaBrokers disable the
// corresponding sidecar; the service then runs memory-only.
type Config struct {
	Port string
	Env  string

	// Memory pressure
	MemoryCeilingBytes int64
	WarningFraction    float64
	CriticalFraction   float64
	EmergencyFraction  float64
	SampleInterval     time.Duration

	// Eviction
	SweepInterval time.Duration
	LongTTL       time.Duration
	ShortTTL      time.Duration
	StallTimeout  time.Duration
	RetainedBytes int64

	// Conversion
	WorkerCount  int
	MaxFileSize  int64
	FastPathWait time.Duration

	// Rate limiting
	RequestsPerSecond float64
	BurstSize         int

	// Sidecars
	RedisAddr         string
	DatabaseURL       string
	KafkaBrokers      string
	KafkaTopic        string
	ObjectStoreBucket string
}

func Load() *Config {
	return &Config{
		Port: getEnv("SERVICE_PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		MemoryCeilingBytes: getEnvAsInt64("MEMORY_CEILING_BYTES", 512*1024*1024),
		WarningFraction:    getEnvAsFloat("MEMORY_WARNING_FRACTION", 0.60),
		CriticalFraction:   getEnvAsFloat("MEMORY_CRITICAL_FRACTION", 0.75),
		EmergencyFraction:  getEnvAsFloat("MEMORY_EMERGENCY_FRACTION", 0.85),
		SampleInterval:     getEnvAsDuration("MEMORY_SAMPLE_INTERVAL", 15*time.Second),

		SweepInterval: getEnvAsDuration("EVICTION_SWEEP_INTERVAL", 5*time.Minute),
		LongTTL:       getEnvAsDuration("EVICTION_LONG_TTL", 4*time.Hour),
		ShortTTL:      getEnvAsDuration("EVICTION_SHORT_TTL", time.Hour),
		StallTimeout:  getEnvAsDuration("OPERATION_STALL_TIMEOUT", 30*time.Minute),
		RetainedBytes: getEnvAsInt64("EVICTION_RETAINED_BYTES", 128*1024*1024),

		WorkerCount:  getEnvAsInt("WORKER_COUNT", 5),
		MaxFileSize:  getEnvAsInt64("MAX_FILE_SIZE", 100*1024*1024),
		FastPathWait: getEnvAsDuration("FAST_PATH_WAIT", 8*time.Second),

		RequestsPerSecond: getEnvAsFloat("REQUESTS_PER_SECOND", 100),
		BurstSize:         getEnvAsInt("BURST_SIZE", 200),

		RedisAddr:         getEnv("REDIS_ADDR", ""),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		KafkaBrokers:      getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:        getEnv("KAFKA_TOPIC", "operation_events"),
		ObjectStoreBucket: getEnv("OBJECT_STORE_BUCKET", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
