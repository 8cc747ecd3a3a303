package app

import (
	"os"
	"strconv"
	"strings"
)

// DefaultMaxFrameBytes caps a single RPC frame payload.
const DefaultMaxFrameBytes = 16 << 20

type Config struct {
	LogLevel      string
	LogFormat     string
	LogFile       string // empty = stderr
	AdminAddr     string // empty = admin HTTP server disabled
	DataDir       string
	MaxFrameBytes int64

	// Disk pressure guard; MinFreeBytes == 0 disables it.
	MinFreeBytes    int64
	ResumeFreeBytes int64
}

func LoadConfig() Config {
	return Config{
		LogLevel:      strings.ToLower(getEnv("BTD_LOG_LEVEL", "info")),
		LogFormat:     strings.ToLower(getEnv("BTD_LOG_FORMAT", "text")),
		LogFile:       strings.TrimSpace(getEnv("BTD_LOG_FILE", "")),
		AdminAddr:     strings.TrimSpace(getEnv("BTD_ADMIN_ADDR", "")),
		DataDir:       getEnv("BTD_DATA_DIR", "data"),
		MaxFrameBytes: getEnvInt64("BTD_MAX_FRAME_BYTES", DefaultMaxFrameBytes),

		MinFreeBytes:    getEnvInt64("BTD_MIN_FREE_BYTES", 0),
		ResumeFreeBytes: getEnvInt64("BTD_RESUME_FREE_BYTES", 0),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}
