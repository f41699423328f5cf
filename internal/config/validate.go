package config

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"github.com/djlord-it/botgraph/internal/cron"
	"github.com/djlord-it/botgraph/internal/domain"
	"github.com/djlord-it/botgraph/internal/store/journal"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// STATS_URL is required
	if cfg.StatsURL == "" {
		add("STATS_URL", "required")
	} else if msg := checkHTTPURL(cfg.StatsURL); msg != "" {
		add("STATS_URL", "%s", msg)
	}
	if cfg.RegionsURL != "" {
		if msg := checkHTTPURL(cfg.RegionsURL); msg != "" {
			add("REGIONS_URL", "%s", msg)
		}
	}

	if cfg.WindowHoursStr != "" {
		h, err := strconv.ParseFloat(cfg.WindowHoursStr, 64)
		if err != nil {
			add("WINDOW_HOURS", "invalid number: %v", err)
		} else if h <= 0 || math.IsNaN(h) || math.IsInf(h, 0) {
			add("WINDOW_HOURS", "must be a positive finite number")
		} else if _, ok := domain.WindowDuration(h); !ok {
			add("WINDOW_HOURS", "too large, got %v", h)
		}
	}

	if cfg.MaxRenderablePoints < 0 {
		add("MAX_RENDERABLE_POINTS", "must be positive")
	}

	for _, f := range []struct {
		field string
		value string
		min   time.Duration
	}{
		{"FETCH_TIMEOUT", cfg.FetchTimeoutStr, 0},
		{"MIN_INTERVAL", cfg.MinIntervalStr, time.Second},
		{"CIRCUIT_BREAKER_COOLDOWN", cfg.CircuitBreakerCooldownStr, 0},
		{"HTTP_SHUTDOWN_TIMEOUT", cfg.HTTPShutdownTimeoutStr, 0},
		{"ANALYTICS_RETENTION", cfg.AnalyticsRetentionStr, 0},
		{"JOURNAL_RETENTION", cfg.JournalRetentionStr, 0},
		{"JANITOR_INTERVAL", cfg.JanitorIntervalStr, 0},
	} {
		if f.value == "" {
			continue
		}
		d, err := time.ParseDuration(f.value)
		switch {
		case err != nil:
			add(f.field, "invalid duration: %v", err)
		case d <= 0:
			add(f.field, "must be positive")
		case d < f.min:
			add(f.field, "must be at least %s", f.min)
		}
	}

	for _, f := range []struct {
		field string
		value string
	}{
		{"CONTEXT_ALL_PLAYERS", cfg.ContextAllPlayersStr},
		{"CONTEXT_MALICIOUS_BOTS", cfg.ContextMaliciousBotsStr},
		{"CONTEXT_IMPACT", cfg.ContextImpactStr},
	} {
		if f.value == "" {
			continue
		}
		v, err := strconv.ParseFloat(f.value, 64)
		if err != nil {
			add(f.field, "invalid number: %v", err)
		} else if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			add(f.field, "must be a positive finite number")
		}
	}

	if cfg.ClearSchedule != "" {
		if _, err := cron.NewParser().Parse(cfg.ClearSchedule, cfg.ClearTimezone); err != nil {
			add("CLEAR_SCHEDULE", "%v", err)
		}
	}

	if cfg.CircuitBreakerThreshold < 0 {
		add("CIRCUIT_BREAKER_THRESHOLD", "must not be negative")
	}

	if cfg.MetricsEnabled {
		if port, err := strconv.Atoi(cfg.MetricsPort); err != nil || port <= 0 || port > 65535 {
			add("METRICS_PORT", "must be a port number, got %q", cfg.MetricsPort)
		}
	}

	if cfg.RedisAddr != "" && cfg.AnalyticsWindowStr != "" {
		switch d, err := time.ParseDuration(cfg.AnalyticsWindowStr); {
		case err != nil:
			add("ANALYTICS_WINDOW", "invalid duration: %v", err)
		case d != time.Minute && d != 5*time.Minute && d != time.Hour && d != 24*time.Hour:
			add("ANALYTICS_WINDOW", "must be one of 1m, 5m, 1h, 24h, got %q", cfg.AnalyticsWindowStr)
		}
	}

	if cfg.JournalDriver != "" {
		if _, err := journal.ParseDialect(cfg.JournalDriver); err != nil {
			add("JOURNAL_DRIVER", "must be 'sqlite' or 'postgres', got %q", cfg.JournalDriver)
		}
		if cfg.JournalDSN == "" {
			add("JOURNAL_DSN", "required when JOURNAL_DRIVER is set")
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func checkHTTPURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Sprintf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Sprintf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return "missing host"
	}
	return ""
}
