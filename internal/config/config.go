package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for botgraph.
// Values are loaded from environment variables; see printUsage() for the full list.
type Config struct {
	StatsURL   string `json:"stats_url"`
	RegionsURL string `json:"regions_url,omitempty"`
	HTTPAddr   string `json:"http_addr"`

	FetchTimeout    time.Duration `json:"-"`
	FetchTimeoutStr string        `json:"fetch_timeout"`

	// WindowHours is the initial chart window; reconfigurable at runtime.
	WindowHours    float64 `json:"-"`
	WindowHoursStr string  `json:"window_hours"`

	MaxRenderablePoints int           `json:"max_renderable_points"`
	MinInterval         time.Duration `json:"-"`
	MinIntervalStr      string        `json:"min_interval"`

	ContextAllPlayers       float64 `json:"-"`
	ContextAllPlayersStr    string  `json:"context_all_players"`
	ContextMaliciousBots    float64 `json:"-"`
	ContextMaliciousBotsStr string  `json:"context_malicious_bots"`
	ContextImpact           float64 `json:"-"`
	ContextImpactStr        string  `json:"context_impact"`

	// ClearSchedule is a cron expression or descriptor; empty disables scheduled clears.
	ClearSchedule string `json:"clear_schedule,omitempty"`
	ClearTimezone string `json:"clear_timezone"`

	FrameBufferSize int `json:"frame_buffer_size"`

	// CircuitBreakerThreshold: 0 disables the circuit breaker.
	CircuitBreakerThreshold   int           `json:"circuit_breaker_threshold"`
	CircuitBreakerCooldown    time.Duration `json:"-"`
	CircuitBreakerCooldownStr string        `json:"circuit_breaker_cooldown"`

	HTTPShutdownTimeout    time.Duration `json:"-"`
	HTTPShutdownTimeoutStr string        `json:"http_shutdown_timeout"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`
	MetricsPort    string `json:"metrics_port"`

	RedisAddr             string        `json:"redis_addr,omitempty"`
	AnalyticsWindow       time.Duration `json:"-"`
	AnalyticsWindowStr    string        `json:"analytics_window"`
	AnalyticsRetention    time.Duration `json:"-"`
	AnalyticsRetentionStr string        `json:"analytics_retention"`

	// JournalDriver: "" disables the tick journal, otherwise "sqlite" or "postgres".
	JournalDriver       string        `json:"journal_driver,omitempty"`
	JournalDSN          string        `json:"journal_dsn,omitempty"`
	JournalRetention    time.Duration `json:"-"`
	JournalRetentionStr string        `json:"journal_retention"`
	JanitorInterval     time.Duration `json:"-"`
	JanitorIntervalStr  string        `json:"janitor_interval"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		StatsURL:                  os.Getenv("STATS_URL"),
		RegionsURL:                os.Getenv("REGIONS_URL"),
		HTTPAddr:                  os.Getenv("HTTP_ADDR"),
		FetchTimeoutStr:           os.Getenv("FETCH_TIMEOUT"),
		WindowHoursStr:            os.Getenv("WINDOW_HOURS"),
		MinIntervalStr:            os.Getenv("MIN_INTERVAL"),
		ContextAllPlayersStr:      os.Getenv("CONTEXT_ALL_PLAYERS"),
		ContextMaliciousBotsStr:   os.Getenv("CONTEXT_MALICIOUS_BOTS"),
		ContextImpactStr:          os.Getenv("CONTEXT_IMPACT"),
		ClearSchedule:             os.Getenv("CLEAR_SCHEDULE"),
		ClearTimezone:             os.Getenv("CLEAR_TIMEZONE"),
		CircuitBreakerCooldownStr: os.Getenv("CIRCUIT_BREAKER_COOLDOWN"),
		HTTPShutdownTimeoutStr:    os.Getenv("HTTP_SHUTDOWN_TIMEOUT"),
		MetricsEnabled:            os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:               os.Getenv("METRICS_PATH"),
		MetricsPort:               os.Getenv("METRICS_PORT"),
		RedisAddr:                 os.Getenv("REDIS_ADDR"),
		AnalyticsWindowStr:        os.Getenv("ANALYTICS_WINDOW"),
		AnalyticsRetentionStr:     os.Getenv("ANALYTICS_RETENTION"),
		JournalDriver:             os.Getenv("JOURNAL_DRIVER"),
		JournalDSN:                os.Getenv("JOURNAL_DSN"),
		JournalRetentionStr:       os.Getenv("JOURNAL_RETENTION"),
		JanitorIntervalStr:        os.Getenv("JANITOR_INTERVAL"),
	}

	if pointsStr := os.Getenv("MAX_RENDERABLE_POINTS"); pointsStr != "" {
		if n, err := parseInt(pointsStr); err == nil && n > 0 {
			cfg.MaxRenderablePoints = n
		} else {
			log.Printf("config: invalid MAX_RENDERABLE_POINTS %q (must be a positive integer), using default 1440", pointsStr)
		}
	}
	if cfg.MaxRenderablePoints == 0 {
		cfg.MaxRenderablePoints = 1440
	}

	if bufStr := os.Getenv("FRAME_BUFFER_SIZE"); bufStr != "" {
		if n, err := parseInt(bufStr); err == nil && n > 0 {
			cfg.FrameBufferSize = n
		} else {
			log.Printf("config: invalid FRAME_BUFFER_SIZE %q (must be a positive integer), using default 16", bufStr)
		}
	}
	if cfg.FrameBufferSize == 0 {
		cfg.FrameBufferSize = 16
	}

	if cbThreshStr := os.Getenv("CIRCUIT_BREAKER_THRESHOLD"); cbThreshStr != "" {
		if n, err := parseInt(cbThreshStr); err == nil {
			cfg.CircuitBreakerThreshold = n
		} else {
			log.Printf("config: invalid CIRCUIT_BREAKER_THRESHOLD %q, using default 5", cbThreshStr)
		}
	}
	if cfg.CircuitBreakerThreshold == 0 && os.Getenv("CIRCUIT_BREAKER_THRESHOLD") == "" {
		cfg.CircuitBreakerThreshold = 5
	}

	// Support the PORT variable as fallback for HTTP_ADDR.
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}
	if cfg.FetchTimeoutStr == "" {
		cfg.FetchTimeoutStr = "10s"
	}
	if cfg.WindowHoursStr == "" {
		cfg.WindowHoursStr = "1"
	}
	if cfg.MinIntervalStr == "" {
		cfg.MinIntervalStr = "5s"
	}
	if cfg.ContextAllPlayersStr == "" {
		cfg.ContextAllPlayersStr = "500"
	}
	if cfg.ContextMaliciousBotsStr == "" {
		cfg.ContextMaliciousBotsStr = "50"
	}
	if cfg.ContextImpactStr == "" {
		cfg.ContextImpactStr = "5"
	}
	if cfg.ClearTimezone == "" {
		cfg.ClearTimezone = "UTC"
	}
	if cfg.CircuitBreakerCooldownStr == "" {
		cfg.CircuitBreakerCooldownStr = "30s"
	}
	if cfg.HTTPShutdownTimeoutStr == "" {
		cfg.HTTPShutdownTimeoutStr = "10s"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.MetricsPort == "" {
		cfg.MetricsPort = "9090"
	}
	if cfg.AnalyticsWindowStr == "" {
		cfg.AnalyticsWindowStr = "5m"
	}
	if cfg.AnalyticsRetentionStr == "" {
		cfg.AnalyticsRetentionStr = "24h"
	}
	if cfg.JournalRetentionStr == "" {
		cfg.JournalRetentionStr = "168h"
	}
	if cfg.JanitorIntervalStr == "" {
		cfg.JanitorIntervalStr = "1h"
	}

	// Parse values; validation is handled separately by Validate().
	if d, err := time.ParseDuration(cfg.FetchTimeoutStr); err == nil {
		cfg.FetchTimeout = d
	}
	if f, err := strconv.ParseFloat(cfg.WindowHoursStr, 64); err == nil {
		cfg.WindowHours = f
	}
	if d, err := time.ParseDuration(cfg.MinIntervalStr); err == nil {
		cfg.MinInterval = d
	}
	if f, err := strconv.ParseFloat(cfg.ContextAllPlayersStr, 64); err == nil {
		cfg.ContextAllPlayers = f
	}
	if f, err := strconv.ParseFloat(cfg.ContextMaliciousBotsStr, 64); err == nil {
		cfg.ContextMaliciousBots = f
	}
	if f, err := strconv.ParseFloat(cfg.ContextImpactStr, 64); err == nil {
		cfg.ContextImpact = f
	}
	if d, err := time.ParseDuration(cfg.CircuitBreakerCooldownStr); err == nil {
		cfg.CircuitBreakerCooldown = d
	}
	if d, err := time.ParseDuration(cfg.HTTPShutdownTimeoutStr); err == nil {
		cfg.HTTPShutdownTimeout = d
	}
	if d, err := time.ParseDuration(cfg.AnalyticsWindowStr); err == nil {
		cfg.AnalyticsWindow = d
	}
	if d, err := time.ParseDuration(cfg.AnalyticsRetentionStr); err == nil {
		cfg.AnalyticsRetention = d
	}
	if d, err := time.ParseDuration(cfg.JournalRetentionStr); err == nil {
		cfg.JournalRetention = d
	}
	if d, err := time.ParseDuration(cfg.JanitorIntervalStr); err == nil {
		cfg.JanitorInterval = d
	}

	return cfg
}

// parseInt parses a string as a non-negative integer.
func parseInt(s string) (int, error) {
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := struct {
		StatsURL                string `json:"stats_url"`
		RegionsURL              string `json:"regions_url,omitempty"`
		HTTPAddr                string `json:"http_addr"`
		FetchTimeout            string `json:"fetch_timeout"`
		WindowHours             string `json:"window_hours"`
		MaxRenderablePoints     int    `json:"max_renderable_points"`
		MinInterval             string `json:"min_interval"`
		ContextAllPlayers       string `json:"context_all_players"`
		ContextMaliciousBots    string `json:"context_malicious_bots"`
		ContextImpact           string `json:"context_impact"`
		ClearSchedule           string `json:"clear_schedule,omitempty"`
		ClearTimezone           string `json:"clear_timezone"`
		FrameBufferSize         int    `json:"frame_buffer_size"`
		CircuitBreakerThreshold int    `json:"circuit_breaker_threshold"`
		CircuitBreakerCooldown  string `json:"circuit_breaker_cooldown"`
		HTTPShutdownTimeout     string `json:"http_shutdown_timeout"`
		MetricsEnabled          bool   `json:"metrics_enabled"`
		MetricsPath             string `json:"metrics_path"`
		MetricsPort             string `json:"metrics_port"`
		RedisAddr               string `json:"redis_addr,omitempty"`
		AnalyticsWindow         string `json:"analytics_window"`
		AnalyticsRetention      string `json:"analytics_retention"`
		JournalDriver           string `json:"journal_driver,omitempty"`
		JournalDSN              string `json:"journal_dsn,omitempty"`
		JournalRetention        string `json:"journal_retention"`
		JanitorInterval         string `json:"janitor_interval"`
	}{
		StatsURL:                c.StatsURL,
		RegionsURL:              c.RegionsURL,
		HTTPAddr:                c.HTTPAddr,
		FetchTimeout:            c.FetchTimeoutStr,
		WindowHours:             c.WindowHoursStr,
		MaxRenderablePoints:     c.MaxRenderablePoints,
		MinInterval:             c.MinIntervalStr,
		ContextAllPlayers:       c.ContextAllPlayersStr,
		ContextMaliciousBots:    c.ContextMaliciousBotsStr,
		ContextImpact:           c.ContextImpactStr,
		ClearSchedule:           c.ClearSchedule,
		ClearTimezone:           c.ClearTimezone,
		FrameBufferSize:         c.FrameBufferSize,
		CircuitBreakerThreshold: c.CircuitBreakerThreshold,
		CircuitBreakerCooldown:  c.CircuitBreakerCooldownStr,
		HTTPShutdownTimeout:     c.HTTPShutdownTimeoutStr,
		MetricsEnabled:          c.MetricsEnabled,
		MetricsPath:             c.MetricsPath,
		MetricsPort:             c.MetricsPort,
		RedisAddr:               c.RedisAddr,
		AnalyticsWindow:         c.AnalyticsWindowStr,
		AnalyticsRetention:      c.AnalyticsRetentionStr,
		JournalDriver:           c.JournalDriver,
		JournalDSN:              maskSecret(c.JournalDSN),
		JournalRetention:        c.JournalRetentionStr,
		JanitorInterval:         c.JanitorIntervalStr,
	}
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks connection strings, preserving only the URI scheme.
// Plain file paths (SQLite) are shown as-is.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if len(s) >= len(scheme) && s[:len(scheme)] == scheme {
			return scheme + "***"
		}
	}
	for i := 0; i < len(s); i++ {
		if s[i] == '=' || s[i] == '@' {
			return "***"
		}
	}
	return s
}
