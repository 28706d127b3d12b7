// Package config implements tracecap's LoadConfig chain: defaults,
// then an optional YAML file overlay, then environment overrides,
// then a validation pass — the same chain shape the ambient stack
// uses throughout, restyled for tracecap's configuration shape.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	tcerrors "tracecap/pkg/errors"
	"tracecap/pkg/types"
)

// LoadConfig builds a types.Config by applying defaults, then
// overlaying configFile's YAML (if non-empty), then environment
// overrides, then validating the result.
func LoadConfig(configFile string) (*types.Config, error) {
	cfg := &types.Config{}
	applyDefaults(cfg)

	if configFile != "" {
		if err := loadConfigFile(configFile, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvironmentOverrides(cfg)

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *types.Config) {
	cfg.App.LogLevel = "info"
	cfg.App.LogFormat = "text"

	cfg.Store.Path = "tracecap.db"
	cfg.Store.ForceNew = false
	cfg.Store.BusyRetryInterval = 25 * time.Millisecond

	cfg.Pipeline.StageAQueueSize = 256
	cfg.Pipeline.StageBQueueSize = 256
	cfg.Pipeline.CommitInterval = time.Second
	cfg.Pipeline.TaskQueueInterval = 100 * time.Millisecond
	cfg.Pipeline.BackpressureStreak = 3
	cfg.Pipeline.QueueHighWaterMark = 128
	cfg.Pipeline.Heartbeat = 5

	cfg.Metrics.Enabled = true
	cfg.Metrics.Addr = ":9090"
}

func loadConfigFile(filename string, cfg *types.Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return tcerrors.NewConfigurationError("LoadConfig", fmt.Sprintf("failed to read config file: %v", err))
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return tcerrors.NewConfigurationError("LoadConfig", fmt.Sprintf("failed to parse config file: %v", err))
	}
	return nil
}

func applyEnvironmentOverrides(cfg *types.Config) {
	if v := getEnvString("TRACECAP_LOG_LEVEL", ""); v != "" {
		cfg.App.LogLevel = v
	}
	if v := getEnvString("TRACECAP_LOG_FORMAT", ""); v != "" {
		cfg.App.LogFormat = v
	}
	if v := getEnvString("TRACECAP_STORE_PATH", ""); v != "" {
		cfg.Store.Path = v
	}
	if v := getEnvBool("TRACECAP_STORE_FORCE_NEW", cfg.Store.ForceNew); v != cfg.Store.ForceNew {
		cfg.Store.ForceNew = v
	}
	if v := getEnvInt("TRACECAP_PIPELINE_STAGE_A_QUEUE_SIZE", 0); v != 0 {
		cfg.Pipeline.StageAQueueSize = v
	}
	if v := getEnvInt("TRACECAP_PIPELINE_STAGE_B_QUEUE_SIZE", 0); v != 0 {
		cfg.Pipeline.StageBQueueSize = v
	}
	if v := getEnvInt("TRACECAP_PIPELINE_HEARTBEAT", 0); v != 0 {
		cfg.Pipeline.Heartbeat = v
	}
	if v := getEnvDuration("TRACECAP_PIPELINE_COMMIT_INTERVAL", 0); v != 0 {
		cfg.Pipeline.CommitInterval = v
	}
	if v := getEnvBool("TRACECAP_METRICS_ENABLED", cfg.Metrics.Enabled); v != cfg.Metrics.Enabled {
		cfg.Metrics.Enabled = v
	}
	if v := getEnvString("TRACECAP_METRICS_ADDR", ""); v != "" {
		cfg.Metrics.Addr = v
	}
}

func getEnvString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
