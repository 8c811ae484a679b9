/*
Package config provides type-safe configuration extraction from map[string]any
and engine tuning settings.

# Overview

Config wraps a map[string]any and provides typed accessor methods that handle
missing keys and type mismatches gracefully by returning default values.
Node definitions use it to read widget and parameter values from saved graph
documents; the engine reads its tuning knobs through Settings.

# Basic Usage

Create a Config from any map and extract values with defaults:

	cfg := config.New(map[string]any{
	    "radius":  2.5,
	    "samples": 16,
	    "enabled": true,
	})

	radius := cfg.Float("radius", 1.0)    // 2.5
	samples := cfg.Int("samples", 8)      // 16
	enabled := cfg.Bool("enabled", false) // true
	missing := cfg.String("mode", "box")  // "box"

# Type Coercion

Duration handles multiple input types:
  - string: parsed with time.ParseDuration ("30s", "1h30m")
  - int/float64: interpreted as seconds
  - time.Duration: used directly

Numeric types handle reasonable conversions:
  - int from float64 (only without a fractional part)
  - float64 from int

All methods return the default value if:
  - The key is missing
  - The value cannot be converted to the requested type
  - The conversion would lose precision (e.g., float to int with fraction)

Nested sections are reached with Sub, which never returns an unusable
value:

	workers := cfg.Sub("engine").Int("workers", 4)

# Engine Settings

Settings collects the engine's tuning values (worker count, queue sizes,
event bus behavior, default disabled policy). Load them from a file:

	settings, err := config.LoadSettings("engine.yaml")
	if err != nil {
	    log.Fatal(err)
	}

# File Loading

Load raw configuration from YAML or JSON files:

	cfg, err := config.FromFile("config.yaml")
	if err != nil {
	    log.Fatal(err)
	}

	// Or load from bytes
	cfg, err = config.FromYAML(yamlBytes)
	cfg, err = config.FromJSON(jsonBytes)

# Thread Safety

Config is safe for concurrent read access. The underlying map is not
modified after creation. However, if the original map is modified
externally, behavior is undefined.
*/
package config
