package config

import (
	"errors"
	"fmt"
)

// Disabled-behavior names accepted in settings files. These mirror the
// engine's disabled-output policies.
const (
	BehaviorUseLastValid = "use_last_valid"
	BehaviorUseNone      = "use_none"
	BehaviorUseDefault   = "use_default"
	BehaviorPropagate    = "propagate"
)

// Settings holds engine tuning values. Zero values are not usable
// directly; start from DefaultSettings and override.
type Settings struct {
	// Workers bounds the number of concurrently running background
	// computes in the async engine.
	Workers int

	// QueueSize is the buffer of the async engine's internal apply
	// queue. Requests beyond the buffer block the caller.
	QueueSize int

	// EventBufferSize is the per-subscription channel buffer on the
	// event bus.
	EventBufferSize int

	// NonBlockingEvents drops events to slow subscribers instead of
	// blocking publishers.
	NonBlockingEvents bool

	// DisabledBehavior is the default disabled-output policy applied to
	// nodes that do not choose one explicitly.
	DisabledBehavior string

	// EagerEvaluation evaluates node outputs when a graph is activated
	// instead of waiting for the first pull.
	EagerEvaluation bool
}

// DefaultSettings returns the settings used when no file is provided.
func DefaultSettings() Settings {
	return Settings{
		Workers:          4,
		QueueSize:        64,
		EventBufferSize:  256,
		DisabledBehavior: BehaviorUseLastValid,
	}
}

// Validate reports every invalid field.
func (s Settings) Validate() error {
	var errs []error

	if s.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", s.Workers))
	}
	if s.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("queue_size must be at least 1, got %d", s.QueueSize))
	}
	if s.EventBufferSize < 1 {
		errs = append(errs, fmt.Errorf("event_buffer_size must be at least 1, got %d", s.EventBufferSize))
	}

	switch s.DisabledBehavior {
	case BehaviorUseLastValid, BehaviorUseNone, BehaviorUseDefault, BehaviorPropagate:
	default:
		errs = append(errs, fmt.Errorf("unknown disabled_behavior %q", s.DisabledBehavior))
	}

	return errors.Join(errs...)
}

// SettingsFromConfig extracts Settings from a Config, falling back to
// defaults for missing keys. If the config has an "engine" section, the
// settings are read from it; otherwise from the top level.
func SettingsFromConfig(cfg Config) Settings {
	if cfg.Has("engine") {
		cfg = cfg.Sub("engine")
	}

	def := DefaultSettings()
	return Settings{
		Workers:           cfg.Int("workers", def.Workers),
		QueueSize:         cfg.Int("queue_size", def.QueueSize),
		EventBufferSize:   cfg.Int("event_buffer_size", def.EventBufferSize),
		NonBlockingEvents: cfg.Bool("non_blocking_events", def.NonBlockingEvents),
		DisabledBehavior:  cfg.String("disabled_behavior", def.DisabledBehavior),
		EagerEvaluation:   cfg.Bool("eager_evaluation", def.EagerEvaluation),
	}
}

// LoadSettings reads and validates engine settings from a YAML or JSON
// file.
func LoadSettings(path string) (Settings, error) {
	cfg, err := FromFile(path)
	if err != nil {
		return Settings{}, err
	}

	s := SettingsFromConfig(cfg)
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid settings in %s: %w", path, err)
	}
	return s, nil
}
