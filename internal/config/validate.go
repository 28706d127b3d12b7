package config

import (
	"fmt"
	"strings"

	tcerrors "tracecap/pkg/errors"
	"tracecap/pkg/types"
)

// ConfigValidator accumulates every validation failure found across a
// types.Config so callers see the full set of problems in one error
// rather than stopping at the first.
type ConfigValidator struct {
	cfg    *types.Config
	errors []string
}

// ValidateConfig runs every validation rule against cfg.
func ValidateConfig(cfg *types.Config) error {
	v := &ConfigValidator{cfg: cfg}
	v.validateApp()
	v.validateStore()
	v.validatePipeline()
	v.validateMetrics()
	if len(v.errors) > 0 {
		return tcerrors.NewConfigurationError("ValidateConfig", strings.Join(v.errors, "; "))
	}
	return nil
}

func (v *ConfigValidator) addError(format string, args ...interface{}) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *ConfigValidator) validateApp() {
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true}
	if !validLevels[v.cfg.App.LogLevel] {
		v.addError("invalid log level: %s", v.cfg.App.LogLevel)
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[v.cfg.App.LogFormat] {
		v.addError("invalid log format: %s", v.cfg.App.LogFormat)
	}
}

func (v *ConfigValidator) validateStore() {
	if v.cfg.Store.Path == "" {
		v.addError("store path cannot be empty")
	}
	if v.cfg.Store.BusyRetryInterval <= 0 {
		v.addError("store busy retry interval must be positive")
	}
}

func (v *ConfigValidator) validatePipeline() {
	p := v.cfg.Pipeline
	if p.StageAQueueSize <= 0 {
		v.addError("pipeline stage-A queue size must be positive")
	}
	if p.StageBQueueSize <= 0 {
		v.addError("pipeline stage-B queue size must be positive")
	}
	if p.CommitInterval <= 0 {
		v.addError("pipeline commit interval must be positive")
	}
	if p.Heartbeat < 0 {
		v.addError("pipeline heartbeat cannot be negative")
	}
	if p.BackpressureStreak <= 0 {
		v.addError("pipeline backpressure streak must be positive")
	}
}

func (v *ConfigValidator) validateMetrics() {
	if v.cfg.Metrics.Enabled && v.cfg.Metrics.Addr == "" {
		v.addError("metrics address cannot be empty when enabled")
	}
}
