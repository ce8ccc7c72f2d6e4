// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults; Load() layers file and env.
// - External errors must be wrapped via this package's error helpers.
package config

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8090".
	Addr string `koanf:"addr"`

	// DataDir holds one JSON file per event with best-lap records.
	DataDir string `koanf:"data_dir"`

	// DebounceMS is the quiet period before a dirty event table is written.
	DebounceMS int `koanf:"debounce_ms"`

	// ThrottleMS is the per-pilot window suppressing re-evaluation of an
	// unchanged best-lap candidate.
	ThrottleMS int `koanf:"throttle_ms"`

	// MaxSimID bounds the simulator identifier accepted from producers (1..N).
	MaxSimID int `koanf:"max_sim_id"`

	// DefaultEvent names the event used for samples that carry none.
	DefaultEvent string `koanf:"default_event"`

	// WriteRetryMax and WriteRetryDelayMS bound disk write retries.
	WriteRetryMax     int `koanf:"write_retry_max"`
	WriteRetryDelayMS int `koanf:"write_retry_delay_ms"`

	// ReadLimitBytes caps the size of a single inbound websocket message.
	ReadLimitBytes int64 `koanf:"read_limit_bytes"`

	// PingIntervalS and WriteTimeoutS tune websocket keepalive.
	PingIntervalS int `koanf:"ping_interval_s"`
	WriteTimeoutS int `koanf:"write_timeout_s"`

	// WatchEnabled toggles the external file-change watcher on DataDir.
	WatchEnabled bool `koanf:"watch_enabled"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		Addr:              ":8090",
		DataDir:           "./data",
		DebounceMS:        5000,
		ThrottleMS:        5000,
		MaxSimID:          16,
		DefaultEvent:      "default",
		WriteRetryMax:     3,
		WriteRetryDelayMS: 200,
		ReadLimitBytes:    1 << 20,
		PingIntervalS:     30,
		WriteTimeoutS:     10,
		WatchEnabled:      true,
	}
}
