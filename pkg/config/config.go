package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Application settings
type Config struct {
	Server    ServerConfig
	Logging   LoggingConfig
	Rotation  RotationConfig
	Inventory InventoryConfig
}

// Server settings
type ServerConfig struct {
	Port string
}

// RotationConfig is read once at engine construction
type RotationConfig struct {
	MinInterval   time.Duration
	PeakJitter    time.Duration
	OffPeakJitter time.Duration
	// Peak window is [PeakStartHour, PeakEndHour) in local time and may wrap midnight
	PeakStartHour int
	PeakEndHour   int

	ReloadPeriod time.Duration
	RetryDelay   time.Duration
	FetchTimeout time.Duration

	// 0 disables the per-session impression ceiling
	ImpressionCeiling     int
	ImpressionResetPeriod time.Duration
}

type InventoryConfig struct {
	BaseURL            string
	APIKey             string
	AdType             string
	RequestTimeout     time.Duration
	RateLimitPerSecond int
	ReportRetries      int
}

// Logging settings
type LoggingConfig struct {
	Level string
}

// DefaultRotation returns the rotation settings used when no env overrides are present
func DefaultRotation() RotationConfig {
	return RotationConfig{
		MinInterval:   5 * time.Second,
		PeakJitter:    5 * time.Second,
		OffPeakJitter: 10 * time.Second,
		PeakStartHour: 18,
		PeakEndHour:   22,
		ReloadPeriod:  30 * time.Second,
		RetryDelay:    5 * time.Second,
		FetchTimeout:  10 * time.Second,
	}
}

func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	def := DefaultRotation()

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Rotation: RotationConfig{
			MinInterval:           getDurationEnv("ROTATION_MIN_INTERVAL", def.MinInterval),
			PeakJitter:            getDurationEnv("ROTATION_PEAK_JITTER", def.PeakJitter),
			OffPeakJitter:         getDurationEnv("ROTATION_OFFPEAK_JITTER", def.OffPeakJitter),
			PeakStartHour:         getIntEnv("PEAK_START_HOUR", def.PeakStartHour),
			PeakEndHour:           getIntEnv("PEAK_END_HOUR", def.PeakEndHour),
			ReloadPeriod:          getDurationEnv("RELOAD_PERIOD", def.ReloadPeriod),
			RetryDelay:            getDurationEnv("RETRY_DELAY", def.RetryDelay),
			FetchTimeout:          getDurationEnv("FETCH_TIMEOUT", def.FetchTimeout),
			ImpressionCeiling:     getIntEnv("IMPRESSION_CEILING", 0),
			ImpressionResetPeriod: getDurationEnv("IMPRESSION_RESET_PERIOD", 0),
		},
		Inventory: InventoryConfig{
			BaseURL:            getEnv("INVENTORY_BASE_URL", ""),
			APIKey:             getEnv("INVENTORY_API_KEY", ""),
			AdType:             getEnv("AD_TYPE", "banner"),
			RequestTimeout:     getDurationEnv("INVENTORY_REQUEST_TIMEOUT", 10*time.Second),
			RateLimitPerSecond: getIntEnv("INVENTORY_RATE_LIMIT_PER_SECOND", 10),
			ReportRetries:      getIntEnv("INVENTORY_REPORT_RETRIES", 3),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func (c *Config) Validate() error {
	if err := c.Rotation.Validate(); err != nil {
		return err
	}
	if c.Inventory.BaseURL == "" {
		return errors.New("INVENTORY_BASE_URL is required")
	}
	if c.Inventory.RateLimitPerSecond <= 0 {
		return errors.New("INVENTORY_RATE_LIMIT_PER_SECOND must be positive")
	}
	if c.Inventory.ReportRetries < 1 {
		return errors.New("INVENTORY_REPORT_RETRIES must be at least 1")
	}
	return nil
}

func (r RotationConfig) Validate() error {
	if r.MinInterval <= 0 {
		return errors.New("rotation min interval must be positive")
	}
	if r.PeakJitter < 0 || r.OffPeakJitter < 0 {
		return errors.New("rotation jitter must not be negative")
	}
	if r.PeakStartHour < 0 || r.PeakStartHour > 23 || r.PeakEndHour < 0 || r.PeakEndHour > 23 {
		return fmt.Errorf("peak hours must be within 0-23, got %d-%d", r.PeakStartHour, r.PeakEndHour)
	}
	if r.ReloadPeriod <= 0 {
		return errors.New("reload period must be positive")
	}
	if r.RetryDelay <= 0 {
		return errors.New("retry delay must be positive")
	}
	if r.FetchTimeout <= 0 {
		return errors.New("fetch timeout must be positive")
	}
	if r.ImpressionCeiling < 0 {
		return errors.New("impression ceiling must not be negative")
	}
	if r.ImpressionResetPeriod < 0 {
		return errors.New("impression reset period must not be negative")
	}
	return nil
}

// IsPeak reports whether t falls inside the peak window
func (r RotationConfig) IsPeak(t time.Time) bool {
	start, end, h := r.PeakStartHour, r.PeakEndHour, t.Hour()
	switch {
	case start == end:
		return false
	case start < end:
		return h >= start && h < end
	default:
		return h >= start || h < end
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
