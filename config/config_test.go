package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsSane(t *testing.T) {
	conf := DefaultConfig()
	if conf.PollIntervalSeconds != 1 || conf.HistoryLength != 120 {
		t.Errorf("unexpected defaults: %+v", conf)
	}
	if !conf.EnableNetPoll || !conf.EnableDiskPoll {
		t.Error("polling should default to enabled")
	}
	if conf.PollInterval() != time.Second {
		t.Errorf("PollInterval = %s, want 1s", conf.PollInterval())
	}
}

func TestSanitizeClampsGarbage(t *testing.T) {
	conf := &Config{
		PollIntervalSeconds: -5,
		HistoryLength:       0,
		EventQueueSize:      -1,
		PoolSize:            0,
	}
	conf.Sanitize()
	if conf.PollIntervalSeconds != 1 || conf.HistoryLength != 120 || conf.EventQueueSize != 256 {
		t.Errorf("sanitize left garbage: %+v", conf)
	}
	if conf.PoolSize <= 0 {
		t.Error("pool size not clamped")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "virtmon.yaml")
	data := []byte("run_dir: /tmp/vmtest\npoll_interval_seconds: 5\nhistory_length: 0\nenable_net_poll: false\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	conf, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if conf.RunDir != "/tmp/vmtest" {
		t.Errorf("RunDir = %q", conf.RunDir)
	}
	if conf.PollInterval() != 5*time.Second {
		t.Errorf("PollInterval = %s, want 5s", conf.PollInterval())
	}
	if conf.EnableNetPoll {
		t.Error("enable_net_poll: false not honored")
	}
	// Invalid values fall back to defaults via Sanitize.
	if conf.HistoryLength != 120 {
		t.Errorf("HistoryLength = %d, want sanitized 120", conf.HistoryLength)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
