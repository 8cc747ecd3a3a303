package app

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"btd/internal/domain"
)

func TestLoadEngineConfigMissingFileUsesDefaults(t *testing.T) {
	for _, path := range []string{"", "   ", filepath.Join(t.TempDir(), "does-not-exist.conf")} {
		cfg, err := LoadEngineConfig(path)
		if err != nil {
			t.Fatalf("LoadEngineConfig(%q): %v", path, err)
		}
		if !reflect.DeepEqual(cfg, domain.DefaultEngineConfig()) {
			t.Fatalf("LoadEngineConfig(%q) = %+v, want defaults", path, cfg)
		}
		if cfg.ListenPortStart != 6881 || cfg.ListenPortEnd != 6891 {
			t.Fatalf("listen range = %d-%d", cfg.ListenPortStart, cfg.ListenPortEnd)
		}
		if len(cfg.DHTBootstrapNodes) != 3 {
			t.Fatalf("nodes = %v", cfg.DHTBootstrapNodes)
		}
	}
}

func TestLoadEngineConfigUnreadable(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadEngineConfig(dir)
	if !errors.Is(err, domain.ErrConfigLoad) {
		t.Fatalf("err = %v, want ErrConfigLoad", err)
	}
	if !reflect.DeepEqual(cfg, domain.DefaultEngineConfig()) {
		t.Fatalf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoadEngineConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "btd.conf")
	content := strings.Join([]string{
		"# btd engine settings",
		"enable_bt = true",
		"enable_dht = off   # no DHT",
		"listen_start = 7000",
		"listen_end=7005",
		"upload_limit_kb = 100",
		"download_limit_kb = 2048",
		"dht_router = node1.example:6881",
		"dht_router = node2.example:6881",
		"",
		"unknown_key = whatever",
		"not a setting",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadEngineConfig(path)
	if err != nil {
		t.Fatalf("LoadEngineConfig: %v", err)
	}
	want := domain.EngineConfig{
		Enabled:                  true,
		DHTEnabled:               false,
		ListenPortStart:          7000,
		ListenPortEnd:            7005,
		UploadLimitBytesPerSec:   100 * 1024,
		DownloadLimitBytesPerSec: 2048 * 1024,
		DHTBootstrapNodes:        []string{"node1.example:6881", "node2.example:6881"},
	}
	if !reflect.DeepEqual(cfg, want) {
		t.Fatalf("cfg = %+v\nwant %+v", cfg, want)
	}
}

func TestParseEngineConfigValues(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, cfg domain.EngineConfig)
	}{
		{"DisabledByZero", "enable_bt = 0", func(t *testing.T, cfg domain.EngineConfig) {
			if cfg.Enabled {
				t.Fatalf("Enabled = true")
			}
		}},
		{"TruthyOn", "enable_bt = on\nenable_dht = 1", func(t *testing.T, cfg domain.EngineConfig) {
			if !cfg.Enabled || !cfg.DHTEnabled {
				t.Fatalf("cfg = %+v", cfg)
			}
		}},
		{"AnythingElseIsFalse", "enable_dht = yes", func(t *testing.T, cfg domain.EngineConfig) {
			if cfg.DHTEnabled {
				t.Fatalf("DHTEnabled = true for yes")
			}
		}},
		{"MalformedPortKeepsDefault", "listen_start = abc\nlisten_end = 70000", func(t *testing.T, cfg domain.EngineConfig) {
			if cfg.ListenPortStart != 6881 || cfg.ListenPortEnd != 6891 {
				t.Fatalf("range = %d-%d", cfg.ListenPortStart, cfg.ListenPortEnd)
			}
		}},
		{"InvertedRangeClamped", "listen_start = 9000\nlisten_end = 8000", func(t *testing.T, cfg domain.EngineConfig) {
			if cfg.ListenPortStart != 9000 || cfg.ListenPortEnd != 9000 {
				t.Fatalf("range = %d-%d", cfg.ListenPortStart, cfg.ListenPortEnd)
			}
		}},
		{"NegativeLimitKeepsDefault", "upload_limit_kb = -5", func(t *testing.T, cfg domain.EngineConfig) {
			if cfg.UploadLimitBytesPerSec != 0 {
				t.Fatalf("UploadLimitBytesPerSec = %d", cfg.UploadLimitBytesPerSec)
			}
		}},
		{"CommentOnlyRouterIgnored", "dht_router = # none", func(t *testing.T, cfg domain.EngineConfig) {
			if !reflect.DeepEqual(cfg.DHTBootstrapNodes, domain.DefaultDHTBootstrapNodes) {
				t.Fatalf("nodes = %v", cfg.DHTBootstrapNodes)
			}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := ParseEngineConfig(strings.NewReader(tc.input))
			if err != nil {
				t.Fatalf("ParseEngineConfig: %v", err)
			}
			tc.check(t, cfg)
		})
	}
}
