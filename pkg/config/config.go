// Package config loads server configuration: environment variables first,
// optionally overlaid by a YAML file named in DRIFTGATE_CONFIG. Every
// tunable has a shipped default so a bare environment still boots.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vertaai/driftgate/pkg/fault"
)

// Config holds all server tunables.
type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	DatabaseURL string `yaml:"database_url"`
	EvidenceDB  string `yaml:"evidence_db"`
	RedisAddr   string `yaml:"redis_addr"`

	SlackToken    string `yaml:"slack_token"`
	CallbackKey   string `yaml:"callback_key"` // HMAC key for signed human callbacks
	LLMServiceURL string `yaml:"llm_service_url"`

	// Evaluation budgets.
	MaxTotalMs             int `yaml:"max_total_ms"`
	PerComparatorTimeoutMs int `yaml:"per_comparator_timeout_ms"`
	MaxAPICalls            int `yaml:"max_api_calls"`
	MaxFileBytes           int `yaml:"max_file_bytes"`

	// Drift pipeline.
	QueueHighWater   int           `yaml:"queue_high_water"`
	LockTTL          time.Duration `yaml:"lock_ttl"`
	MaxTransitions   int           `yaml:"max_transitions_per_invocation"`
	MaxRetryAttempts int           `yaml:"max_retry_attempts"`

	// Validator thresholds.
	MaxChangedLines      int     `yaml:"max_changed_lines"`
	MinConfidence        float64 `yaml:"min_confidence"`
	AutoApproveThreshold float64 `yaml:"auto_approve_threshold"`
	MaxDocAgeDays        int     `yaml:"max_doc_age_days"`

	ObserveOnly bool `yaml:"observe_only"`
}

// Default returns the shipped defaults.
func Default() *Config {
	return &Config{
		Port:                   "8080",
		LogLevel:               "INFO",
		DatabaseURL:            "postgres://driftgate@localhost:5432/driftgate?sslmode=disable",
		EvidenceDB:             "driftgate-evidence.db",
		MaxTotalMs:             30000,
		PerComparatorTimeoutMs: 5000,
		MaxAPICalls:            50,
		MaxFileBytes:           10 * 1024,
		QueueHighWater:         1000,
		LockTTL:                30 * time.Second,
		MaxTransitions:         5,
		MaxRetryAttempts:       3,
		MaxChangedLines:        50,
		MinConfidence:          0.40,
		AutoApproveThreshold:   0.85,
		MaxDocAgeDays:          365,
	}
}

// Load builds the config from defaults, the optional YAML file, then the
// environment, in increasing precedence.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("DRIFTGATE_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fault.Wrap(fault.KindValidation, err, "read config file %s", path)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fault.Wrap(fault.KindValidation, err, "parse config file %s", path)
		}
	}

	overlayEnv(cfg)
	return cfg, nil
}

func overlayEnv(cfg *Config) {
	setStr := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setFloat := func(dst *float64, key string) {
		if v := os.Getenv(key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}

	setStr(&cfg.Port, "PORT")
	setStr(&cfg.LogLevel, "LOG_LEVEL")
	setStr(&cfg.DatabaseURL, "DATABASE_URL")
	setStr(&cfg.EvidenceDB, "EVIDENCE_DB")
	setStr(&cfg.RedisAddr, "REDIS_ADDR")
	setStr(&cfg.SlackToken, "SLACK_TOKEN")
	setStr(&cfg.CallbackKey, "CALLBACK_KEY")
	setStr(&cfg.LLMServiceURL, "LLM_SERVICE_URL")

	setInt(&cfg.MaxTotalMs, "MAX_TOTAL_MS")
	setInt(&cfg.PerComparatorTimeoutMs, "PER_COMPARATOR_TIMEOUT_MS")
	setInt(&cfg.MaxAPICalls, "MAX_API_CALLS")
	setInt(&cfg.MaxFileBytes, "MAX_FILE_BYTES")
	setInt(&cfg.QueueHighWater, "QUEUE_HIGH_WATER")
	setInt(&cfg.MaxTransitions, "MAX_TRANSITIONS_PER_INVOCATION")
	setInt(&cfg.MaxRetryAttempts, "MAX_RETRY_ATTEMPTS")
	setInt(&cfg.MaxChangedLines, "MAX_CHANGED_LINES")
	setInt(&cfg.MaxDocAgeDays, "MAX_DOC_AGE_DAYS")

	setFloat(&cfg.MinConfidence, "MIN_CONFIDENCE")
	setFloat(&cfg.AutoApproveThreshold, "AUTO_APPROVE_THRESHOLD")

	if v := os.Getenv("LOCK_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LockTTL = d
		}
	}
	if v := os.Getenv("OBSERVE_ONLY"); v != "" {
		cfg.ObserveOnly = v == "true"
	}
}
