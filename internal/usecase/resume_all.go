package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"btd/internal/domain"
)

const (
	torrentSuffix = ".torrent"
	// MaxPathLen is the longest joined path the scan will hand to the adder.
	MaxPathLen = 4096
)

// TorrentAdder is the slice of the session actor ResumeAll needs.
type TorrentAdder interface {
	AddTorrentFile(ctx context.Context, path, saveDir string) (domain.TorrentID, error)
}

// ResumeAll re-adds every .torrent file found directly under a directory.
type ResumeAll struct {
	Adder  TorrentAdder
	Logger *slog.Logger
}

// Execute adds each regular "*.torrent" file in torrentsDir one at a time,
// saving data to dataDir. Files that fail are logged and skipped. It returns
// the number of successful adds, or an error only when torrentsDir itself
// cannot be read.
func (uc ResumeAll) Execute(ctx context.Context, torrentsDir, dataDir string) (int, error) {
	logger := uc.Logger
	if logger == nil {
		logger = slog.Default()
	}

	entries, err := os.ReadDir(torrentsDir)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrScanDir, err)
	}

	count := 0
	for _, entry := range entries {
		name := entry.Name()
		if len(name) <= len(torrentSuffix) || !strings.HasSuffix(name, torrentSuffix) {
			continue
		}
		path := filepath.Join(torrentsDir, name)
		if len(path) >= MaxPathLen {
			logger.Warn("resume skipped torrent",
				slog.String("path", path[:64]+"..."),
				slog.String("error", ErrPathTooLong.Error()),
			)
			continue
		}

		info, err := os.Stat(path)
		if err != nil {
			logger.Warn("resume stat failed",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}

		id, err := uc.Adder.AddTorrentFile(ctx, path, dataDir)
		if err != nil {
			logger.Warn("resume add failed",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		logger.Info("torrent resumed",
			slog.String("path", path),
			slog.String("torrentId", string(id)),
		)
		count++
	}

	logger.Info("resume scan complete",
		slog.String("dir", torrentsDir),
		slog.Int("resumed", count),
	)
	return count, nil
}
