package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"btd/internal/domain"
)

// LoadEngineConfig reads the engine config file at path. An empty path or a
// missing file yields the defaults. Any other read error yields the
// defaults together with an error wrapping domain.ErrConfigLoad.
func LoadEngineConfig(path string) (domain.EngineConfig, error) {
	cfg := domain.DefaultEngineConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("%w: %v", domain.ErrConfigLoad, err)
	}
	defer f.Close()

	parsed, err := ParseEngineConfig(f)
	if err != nil {
		return domain.DefaultEngineConfig(), fmt.Errorf("%w: %s: %v", domain.ErrConfigLoad, path, err)
	}
	return parsed, nil
}

// ParseEngineConfig parses "key = value" lines. Text after '#' is ignored.
// Unknown keys and malformed numbers leave the default in place. The first
// dht_router line replaces the built-in routers; later ones append.
func ParseEngineConfig(r io.Reader) (domain.EngineConfig, error) {
	cfg := domain.DefaultEngineConfig()
	routersSet := false

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "enable_bt":
			cfg.Enabled = parseBool(value)
		case "enable_dht":
			cfg.DHTEnabled = parseBool(value)
		case "listen_start":
			cfg.ListenPortStart = parsePort(value, cfg.ListenPortStart)
		case "listen_end":
			cfg.ListenPortEnd = parsePort(value, cfg.ListenPortEnd)
		case "upload_limit_kb":
			cfg.UploadLimitBytesPerSec = parseKB(value, cfg.UploadLimitBytesPerSec)
		case "download_limit_kb":
			cfg.DownloadLimitBytesPerSec = parseKB(value, cfg.DownloadLimitBytesPerSec)
		case "dht_router":
			if value == "" {
				continue
			}
			if !routersSet {
				cfg.DHTBootstrapNodes = nil
				routersSet = true
			}
			cfg.DHTBootstrapNodes = append(cfg.DHTBootstrapNodes, value)
		}
	}
	if err := scanner.Err(); err != nil {
		return cfg, err
	}

	if cfg.ListenPortEnd < cfg.ListenPortStart {
		cfg.ListenPortEnd = cfg.ListenPortStart
	}
	return cfg, nil
}

func parseBool(value string) bool {
	switch strings.ToLower(value) {
	case "1", "true", "on":
		return true
	default:
		return false
	}
}

func parsePort(value string, fallback int) int {
	port, err := strconv.Atoi(value)
	if err != nil || port <= 0 || port > 65535 {
		return fallback
	}
	return port
}

func parseKB(value string, fallback int64) int64 {
	kb, err := strconv.ParseInt(value, 10, 64)
	if err != nil || kb < 0 {
		return fallback
	}
	return kb * 1024
}
