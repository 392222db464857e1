package config

import (
	"time"
)

// Values wraps a map[string]any for type-safe extraction of loaded
// configuration. All accessors return the supplied default when the key is
// missing or the value cannot be converted.
type Values struct {
	data map[string]any
}

// NewValues creates a Values from the given map. A nil map yields an empty
// Values.
func NewValues(data map[string]any) Values {
	if data == nil {
		data = make(map[string]any)
	}
	return Values{data: data}
}

// String returns the string value for key, or defaultVal.
func (v Values) String(key, defaultVal string) string {
	raw, ok := v.data[key]
	if !ok {
		return defaultVal
	}
	if s, ok := raw.(string); ok {
		return s
	}
	return defaultVal
}

// Bool returns the boolean value for key, or defaultVal.
func (v Values) Bool(key string, defaultVal bool) bool {
	raw, ok := v.data[key]
	if !ok {
		return defaultVal
	}
	if b, ok := raw.(bool); ok {
		return b
	}
	return defaultVal
}

// Int returns the integer value for key, or defaultVal.
//
// Accepts int, int64, and float64 without a fractional part.
func (v Values) Int(key string, defaultVal int) int {
	raw, ok := v.data[key]
	if !ok {
		return defaultVal
	}
	switch val := raw.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		if val == float64(int(val)) {
			return int(val)
		}
	}
	return defaultVal
}

// Duration returns the duration value for key, or defaultVal.
//
// Accepts:
//   - string: parsed with time.ParseDuration
//   - int / int64 / float64: interpreted as seconds
//   - time.Duration: used directly
func (v Values) Duration(key string, defaultVal time.Duration) time.Duration {
	raw, ok := v.data[key]
	if !ok {
		return defaultVal
	}
	switch val := raw.(type) {
	case string:
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	case float64:
		return time.Duration(val * float64(time.Second))
	case int:
		return time.Duration(val) * time.Second
	case int64:
		return time.Duration(val) * time.Second
	case time.Duration:
		return val
	}
	return defaultVal
}

// Runtime builds a RuntimeConfig from the loaded values, starting from
// Default() so absent keys keep their defaults.
func (v Values) Runtime() RuntimeConfig {
	def := Default()
	cfg := RuntimeConfig{
		ConcurrencyLimit:      v.Int("concurrency_limit", def.ConcurrencyLimit),
		AutosaveEveryStep:     v.Bool("autosave_every_step", def.AutosaveEveryStep),
		FailMode:              FailMode(v.String("fail_mode", string(def.FailMode))),
		EventBusCapacity:      v.Int("event_bus_capacity", def.EventBusCapacity),
		GracePeriod:           v.Duration("grace_period", def.GracePeriod),
		StepTimeout:           v.Duration("step_timeout", def.StepTimeout),
		MaxSteps:              v.Int("max_steps", def.MaxSteps),
		FailOnCheckpointError: v.Bool("fail_on_checkpoint_error", def.FailOnCheckpointError),
	}
	return cfg.Normalized()
}
