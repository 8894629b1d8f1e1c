package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/gyaneshwarpardhi/docflow/internal/approval"
	"github.com/gyaneshwarpardhi/docflow/internal/transition"
)

// Validate checks the config and reports every problem at once.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("database.driver: unsupported driver %q", cfg.Database.Driver))
	}
	if cfg.Database.DSN == "" {
		errs = append(errs, "database.dsn is required")
	}
	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, err.Error())
	}
	if cfg.Engine.EventWorkers < 0 {
		errs = append(errs, "engine.event_workers must not be negative")
	}
	if cfg.Engine.EventWorkers > 0 && cfg.Engine.QueueDepth <= 0 {
		errs = append(errs, "engine.queue_depth must be positive when event_workers > 0")
	}
	if cfg.Engine.EventTimeoutMs < 0 {
		errs = append(errs, "engine.event_timeout_ms must not be negative")
	}
	if cfg.RuleCache.TTL <= 0 {
		errs = append(errs, "rule_cache.ttl must be positive")
	}
	if cfg.Webhook.Timeout <= 0 {
		errs = append(errs, "webhook.timeout must be positive")
	}
	if _, err := thresholds(cfg.Approval, &errs); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Thresholds converts the approval section into the table the approval
// engine consumes.
func Thresholds(cfg *Config) (approval.Thresholds, error) {
	var errs []string
	t, err := thresholds(cfg.Approval, &errs)
	if err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("approval thresholds:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return t, nil
}

func thresholds(ac ApprovalConf, errs *[]string) (approval.Thresholds, error) {
	out := make(approval.Thresholds, len(ac.Thresholds))
	for raw, rows := range ac.Thresholds {
		dt, err := transition.Parse(raw)
		if err != nil {
			*errs = append(*errs, fmt.Sprintf("approval.thresholds: unknown document type %q", raw))
			continue
		}
		levels := make([]approval.Level, 0, len(rows))
		for i, row := range rows {
			loc := fmt.Sprintf("approval.thresholds.%s[%d]", raw, i)
			lo, err := decimal.NewFromString(defaultString(row.Min, "0"))
			if err != nil {
				*errs = append(*errs, fmt.Sprintf("%s.min: %v", loc, err))
				continue
			}
			lvl := approval.Level{MinAmount: lo, ApproverRole: row.Role, SLAHours: row.SLAHours}
			if row.Max != "" {
				hi, err := decimal.NewFromString(row.Max)
				if err != nil {
					*errs = append(*errs, fmt.Sprintf("%s.max: %v", loc, err))
					continue
				}
				lvl.MaxAmount = &hi
			}
			levels = append(levels, lvl)
		}
		out[dt] = levels
	}
	if len(*errs) > 0 {
		return out, nil
	}
	return out, out.Validate()
}

// ParseLevel maps a configured level name onto slog.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log.level: unknown level %q", s)
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
