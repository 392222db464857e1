// Package config holds runtime configuration for the weavegraph executor:
// the RuntimeConfig knobs, file loading (YAML/JSON), and environment-based
// selection of the persistence backend.
package config

import (
	"time"
)

// FailMode controls what a fatal node error does to the session.
type FailMode string

// Fail modes.
const (
	// FailModeContinue converts fatal node errors into recoverable error
	// events and keeps the session running. This is the default.
	FailModeContinue FailMode = "continue"
	// FailModeAbort terminates the session on the first fatal node error.
	FailModeAbort FailMode = "abort"
)

// RuntimeConfig configures a runner. Zero values are replaced by defaults
// via Normalized; Default() returns a fully-populated config.
type RuntimeConfig struct {
	// ConcurrencyLimit bounds how many frontier nodes execute at once
	// within a superstep. Default: 4.
	ConcurrencyLimit int `json:"concurrency_limit" yaml:"concurrency_limit"`

	// AutosaveEveryStep checkpoints after every barrier when a store is
	// configured. When false, checkpoints happen only on the terminal
	// step or explicit flush. Default: true.
	AutosaveEveryStep bool `json:"autosave_every_step" yaml:"autosave_every_step"`

	// FailMode decides the fate of a session when a node returns a fatal
	// error. Default: FailModeContinue.
	FailMode FailMode `json:"fail_mode" yaml:"fail_mode"`

	// EventBusCapacity is the per-subscriber event buffer. Default: 1024.
	EventBusCapacity int `json:"event_bus_capacity" yaml:"event_bus_capacity"`

	// GracePeriod bounds how long Abort waits for in-flight node tasks to
	// drain before orphaning them. Default: 5s.
	GracePeriod time.Duration `json:"grace_period" yaml:"grace_period"`

	// StepTimeout, when positive, is a wall-clock bound per superstep;
	// exceeding it aborts the session. Default: 0 (disabled).
	StepTimeout time.Duration `json:"step_timeout" yaml:"step_timeout"`

	// MaxSteps guards against runaway loops. Default: 1000.
	MaxSteps int `json:"max_steps" yaml:"max_steps"`

	// FailOnCheckpointError makes a checkpoint write failure fatal.
	// When false (default) the session continues in-memory, marked
	// degraded.
	FailOnCheckpointError bool `json:"fail_on_checkpoint_error" yaml:"fail_on_checkpoint_error"`
}

// Defaults.
const (
	DefaultConcurrencyLimit = 4
	DefaultBusCapacity      = 1024
	DefaultGracePeriod      = 5 * time.Second
	DefaultMaxSteps         = 1000
)

// Default returns the fully-populated default configuration.
func Default() RuntimeConfig {
	return RuntimeConfig{
		ConcurrencyLimit:  DefaultConcurrencyLimit,
		AutosaveEveryStep: true,
		FailMode:          FailModeContinue,
		EventBusCapacity:  DefaultBusCapacity,
		GracePeriod:       DefaultGracePeriod,
		MaxSteps:          DefaultMaxSteps,
	}
}

// Normalized fills unset fields with defaults and returns the result.
// AutosaveEveryStep and FailOnCheckpointError keep whatever they hold; the
// other zero values are treated as "unset".
func (c RuntimeConfig) Normalized() RuntimeConfig {
	if c.ConcurrencyLimit <= 0 {
		c.ConcurrencyLimit = DefaultConcurrencyLimit
	}
	if c.FailMode != FailModeAbort {
		c.FailMode = FailModeContinue
	}
	if c.EventBusCapacity <= 0 {
		c.EventBusCapacity = DefaultBusCapacity
	}
	if c.GracePeriod <= 0 {
		c.GracePeriod = DefaultGracePeriod
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = DefaultMaxSteps
	}
	return c
}
