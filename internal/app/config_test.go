package app

import (
	"os"
	"testing"
)

func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	envVars := []string{
		"BTD_LOG_LEVEL", "BTD_LOG_FORMAT", "BTD_LOG_FILE",
		"BTD_ADMIN_ADDR", "BTD_DATA_DIR", "BTD_MAX_FRAME_BYTES",
		"BTD_MIN_FREE_BYTES", "BTD_RESUME_FREE_BYTES",
	}
	for _, k := range envVars {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg := LoadConfig()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"LogLevel", cfg.LogLevel, "info"},
		{"LogFormat", cfg.LogFormat, "text"},
		{"LogFile", cfg.LogFile, ""},
		{"AdminAddr", cfg.AdminAddr, ""},
		{"DataDir", cfg.DataDir, "data"},
		{"MaxFrameBytes", cfg.MaxFrameBytes, int64(DefaultMaxFrameBytes)},
		{"MinFreeBytes", cfg.MinFreeBytes, int64(0)},
		{"ResumeFreeBytes", cfg.ResumeFreeBytes, int64(0)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Fatalf("%s = %v, want %v", tc.name, tc.got, tc.want)
			}
		})
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	setEnvs(t, map[string]string{
		"BTD_LOG_LEVEL":       "DEBUG",
		"BTD_LOG_FORMAT":      "JSON",
		"BTD_LOG_FILE":        " /var/log/btd.log ",
		"BTD_ADMIN_ADDR":      "127.0.0.1:9090",
		"BTD_DATA_DIR":        "/srv/torrents",
		"BTD_MAX_FRAME_BYTES": "1024",
		"BTD_MIN_FREE_BYTES":  "1073741824",
	})

	cfg := LoadConfig()
	if cfg.LogLevel != "debug" || cfg.LogFormat != "json" {
		t.Fatalf("log = %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.LogFile != "/var/log/btd.log" {
		t.Fatalf("LogFile = %q", cfg.LogFile)
	}
	if cfg.AdminAddr != "127.0.0.1:9090" {
		t.Fatalf("AdminAddr = %q", cfg.AdminAddr)
	}
	if cfg.DataDir != "/srv/torrents" {
		t.Fatalf("DataDir = %q", cfg.DataDir)
	}
	if cfg.MaxFrameBytes != 1024 {
		t.Fatalf("MaxFrameBytes = %d", cfg.MaxFrameBytes)
	}
	if cfg.MinFreeBytes != 1<<30 {
		t.Fatalf("MinFreeBytes = %d", cfg.MinFreeBytes)
	}
}

func TestGetEnvInt64(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  int64
	}{
		{"Valid", "42", 42},
		{"Spaces", "  7 ", 7},
		{"Negative", "-1", 99},
		{"Garbage", "abc", 99},
		{"Empty", "", 99},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("BTD_TEST_INT", tc.value)
			if got := getEnvInt64("BTD_TEST_INT", 99); got != tc.want {
				t.Fatalf("getEnvInt64(%q) = %d, want %d", tc.value, got, tc.want)
			}
		})
	}
}
