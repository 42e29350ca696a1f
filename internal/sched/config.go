package sched

import (
	"os"
	"time"

	yaml "github.com/goccy/go-yaml"
)

// Config mirrors config.yml.
type Config struct {
	CPUs                 int           `yaml:"cpus"`                  // 4 (by default)
	TargetLatency        time.Duration `yaml:"target_latency"`        // 16ms (by default)
	MinimumGranularity   time.Duration `yaml:"minimum_granularity"`   // 750us (by default)
	TickInterval         time.Duration `yaml:"tick_interval"`         // 250us simulated (by default)
	EventBuffer          int           `yaml:"event_buffer"`          // 1024 (by default)
	TraceDB              string        `yaml:"trace_db"`              // empty = tracing off
	MetricsListenAddress string        `yaml:"metrics_listen_address"` // ":9530" (by default)
}

// If the config file is not found, we use default values.
func defaultConfig() Config {
	return Config{
		CPUs:                 4,
		TargetLatency:        16 * time.Millisecond,
		MinimumGranularity:   750 * time.Microsecond,
		TickInterval:         250 * time.Microsecond,
		EventBuffer:          1024,
		MetricsListenAddress: ":9530",
	}
}

// Load reads YAML and overrides defaults; empty path = defaults only.
func Load(path string) Config {
	cfg := defaultConfig()

	if path == "" {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}

	_ = yaml.Unmarshal(data, &cfg)

	// sanity clamps
	if cfg.CPUs <= 0 {
		cfg.CPUs = 1
	} else if cfg.CPUs > 64 {
		cfg.CPUs = 64 // CPUSet is one word
	}
	if cfg.MinimumGranularity <= 0 {
		cfg.MinimumGranularity = 750 * time.Microsecond
	}
	if cfg.TargetLatency < cfg.MinimumGranularity {
		cfg.TargetLatency = cfg.MinimumGranularity
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 250 * time.Microsecond
	}
	if cfg.EventBuffer < 0 {
		cfg.EventBuffer = 0
	}

	return cfg
}
