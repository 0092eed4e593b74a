package config

import (
	"runtime"
	"time"

	coretypes "github.com/projecteru2/core/types"
)

// Config holds global virtmon configuration.
//
// The sampling fields (PollIntervalSeconds, HistoryLength, EnableNetPoll,
// EnableDiskPoll) are dynamic: the watcher may replace the whole snapshot at
// any time and guests pick the new values up at the start of their next tick.
type Config struct {
	// RunDir is the base directory for runtime state (audit logs, lock files).
	// Env: VIRTMON_RUN_DIR. Default: /var/run/virtmon.
	RunDir string `json:"run_dir" mapstructure:"run_dir"`
	// PollIntervalSeconds is the tick cadence for every driven machine.
	// Default: 1.
	PollIntervalSeconds int `json:"poll_interval_seconds" mapstructure:"poll_interval_seconds"`
	// HistoryLength is how many samples are retained per machine, and the
	// length chart vectors are padded to. Default: 120.
	HistoryLength int `json:"history_length" mapstructure:"history_length"`
	// EnableNetPoll toggles network interface counter polling.
	// Default: true.
	EnableNetPoll bool `json:"enable_net_poll" mapstructure:"enable_net_poll"`
	// EnableDiskPoll toggles block device counter polling.
	// Default: true.
	EnableDiskPoll bool `json:"enable_disk_poll" mapstructure:"enable_disk_poll"`
	// EventQueueSize bounds the asynchronous notification dispatch queue.
	// Events beyond the bound are dropped, never blocked on. Default: 256.
	EventQueueSize int `json:"event_queue_size" mapstructure:"event_queue_size"`
	// PoolSize is the goroutine pool size for notification dispatch.
	// Defaults to runtime.NumCPU() if zero.
	PoolSize int `json:"pool_size" mapstructure:"pool_size"`
	// Log configuration, uses eru core's ServerLogConfig.
	Log coretypes.ServerLogConfig `json:"log" mapstructure:"log"`
}

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() *Config {
	return &Config{
		RunDir:              "/var/run/virtmon",
		PollIntervalSeconds: 1,
		HistoryLength:       120,
		EnableNetPoll:       true,
		EnableDiskPoll:      true,
		EventQueueSize:      256,
		PoolSize:            runtime.NumCPU(),
	}
}

// Sanitize clamps out-of-range fields back to usable values.
func (c *Config) Sanitize() {
	if c.PollIntervalSeconds <= 0 {
		c.PollIntervalSeconds = 1
	}
	if c.HistoryLength <= 0 {
		c.HistoryLength = 120
	}
	if c.EventQueueSize <= 0 {
		c.EventQueueSize = 256
	}
	if c.PoolSize <= 0 {
		c.PoolSize = runtime.NumCPU()
	}
}

// PollInterval returns the tick cadence as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}
