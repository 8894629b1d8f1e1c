package config

import "time"

// Config is the top-level YAML structure. Fields tagged env can be
// overridden from DOCFLOW_-prefixed environment variables.
type Config struct {
	Log       LogConf       `yaml:"log"`
	Database  DatabaseConf  `yaml:"database"`
	HTTP      HTTPConf      `yaml:"http"`
	Engine    EngineConf    `yaml:"engine"`
	RuleCache RuleCacheConf `yaml:"rule_cache"`
	Bus       BusConf       `yaml:"bus"`
	Webhook   WebhookConf   `yaml:"webhook"`
	Approval  ApprovalConf  `yaml:"approval"`
}

// LogConf selects the slog level: debug, info, warn or error.
type LogConf struct {
	Level string `yaml:"level" env:"LOG_LEVEL"`
}

// DatabaseConf selects the store driver ("sqlite" or "postgres").
type DatabaseConf struct {
	Driver string `yaml:"driver" env:"DATABASE_DRIVER"`
	DSN    string `yaml:"dsn" env:"DATABASE_DSN"`
}

type HTTPConf struct {
	Addr string `yaml:"addr" env:"HTTP_ADDR"`
	// RuleTestDelay is how long POST /v1/rules/test waits before reading
	// the execution log.
	RuleTestDelay time.Duration `yaml:"rule_test_delay"`
}

// EngineConf holds tunable concurrency settings. EventWorkers 0 processes
// events inline on the publisher's goroutine.
type EngineConf struct {
	EventWorkers   int `yaml:"event_workers" env:"ENGINE_EVENT_WORKERS"`
	QueueDepth     int `yaml:"queue_depth"`
	EventTimeoutMs int `yaml:"event_timeout_ms"`
	// FailOpen processes an event inline when the queue is full instead of
	// dropping it.
	FailOpen bool `yaml:"fail_open"`
}

type RuleCacheConf struct {
	TTL time.Duration `yaml:"ttl"`
}

type BusConf struct {
	MaxSubscribers int `yaml:"max_subscribers"`
}

type WebhookConf struct {
	Timeout time.Duration `yaml:"timeout"`
}

// ApprovalConf holds the threshold table per document type, e.g.
//
//	approval:
//	  thresholds:
//	    mirv:
//	      - {min: "0", max: "10000", role: warehouse_supervisor, sla_hours: 24}
//	      - {min: "10000", role: warehouse_manager, sla_hours: 48}
type ApprovalConf struct {
	Thresholds map[string][]LevelConf `yaml:"thresholds"`
}

// LevelConf is one threshold row. Amounts are decimal strings; an empty Max
// is unbounded.
type LevelConf struct {
	Min      string `yaml:"min"`
	Max      string `yaml:"max"`
	Role     string `yaml:"role"`
	SLAHours int    `yaml:"sla_hours"`
}

// Default returns the configuration used for keys the file leaves out.
func Default() *Config {
	return &Config{
		Log:      LogConf{Level: "info"},
		Database: DatabaseConf{Driver: "sqlite", DSN: "file:docflow.db"},
		HTTP:     HTTPConf{Addr: ":8080", RuleTestDelay: 500 * time.Millisecond},
		Engine: EngineConf{
			EventWorkers:   8,
			QueueDepth:     10000,
			EventTimeoutMs: 5000,
		},
		RuleCache: RuleCacheConf{TTL: 60 * time.Second},
		Bus:       BusConf{MaxSubscribers: 100},
		Webhook:   WebhookConf{Timeout: 10 * time.Second},
	}
}
