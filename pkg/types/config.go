// Package types holds the configuration structures shared by tracecap's
// config loader, manager, pipeline, and store packages.
package types

import "time"

// Config is the root configuration for a tracecap-backed application.
// It is loaded by internal/config from YAML plus environment overrides,
// then validated once before any component starts.
type Config struct {
	App      AppConfig      `yaml:"app"`
	Store    StoreConfig    `yaml:"store"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// AppConfig controls logging.
type AppConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// StoreConfig controls the SQLite-backed StoreFacade.
type StoreConfig struct {
	// Path to the SQLite file. Required.
	Path string `yaml:"path"`

	// ForceNew truncates an existing file at Path instead of opening it.
	ForceNew bool `yaml:"force_new"`

	// BusyRetryInterval is validated and defaulted by internal/config but
	// not passed to the store: SafeTransaction always sleeps the store's
	// fixed 25ms before retrying a busy/locked engine response.
	BusyRetryInterval time.Duration `yaml:"busy_retry_interval"`
}

// PipelineConfig controls the async compression+write pipeline and its
// AsyncTaskQueue.
type PipelineConfig struct {
	// StageAQueueSize / StageBQueueSize bound each stage's input queue.
	StageAQueueSize int `yaml:"stage_a_queue_size"`
	StageBQueueSize int `yaml:"stage_b_queue_size"`

	// CommitInterval is how often Stage-B's commit timer wakes to flush
	// ready payloads into one safe_transaction. ~1Hz per spec.
	CommitInterval time.Duration `yaml:"commit_interval"`

	// TaskQueueInterval is the AsyncTaskQueue consumer's drain cadence.
	// ~0.1s per spec.
	TaskQueueInterval time.Duration `yaml:"task_queue_interval"`

	// BackpressureStreak is how many consecutive high-water-mark
	// breaches trigger a one-level compression decrement.
	BackpressureStreak int `yaml:"backpressure_streak"`

	// QueueHighWaterMark is the queued-task count considered "under
	// pressure" for the manager-side adaptive back-pressure policy.
	QueueHighWaterMark int `yaml:"queue_high_water_mark"`

	// Heartbeat is the default max number of consecutive unchanged
	// ticks a container/struct Collectable may emit as "unchanged"
	// before a full frame is forced. Recorded in CollectionGlobals.
	Heartbeat int `yaml:"heartbeat"`
}

// MetricsConfig controls the Prometheus metrics/health HTTP server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}
