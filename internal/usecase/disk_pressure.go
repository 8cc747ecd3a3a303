package usecase

import (
	"context"
	"log/slog"
	"time"

	"btd/internal/domain"
)

// TorrentController is the part of the session actor DiskPressure drives.
type TorrentController interface {
	List(ctx context.Context) ([]domain.TorrentID, error)
	Status(ctx context.Context, id domain.TorrentID) (domain.TorrentStatus, error)
	Pause(ctx context.Context, id domain.TorrentID) error
	Resume(ctx context.Context, id domain.TorrentID) error
}

// DiskPressure periodically checks free space under DataDir and pauses every
// downloading torrent when it drops below MinFreeBytes. The torrents it
// paused are resumed once free space reaches ResumeBytes.
type DiskPressure struct {
	Torrents     TorrentController
	Logger       *slog.Logger
	DataDir      string
	MinFreeBytes int64
	ResumeBytes  int64
	Interval     time.Duration
	FreeBytes    func(path string) (int64, error) // nil = statfs
}

// pressureState is carried between checks.
type pressureState struct {
	paused  bool
	stopped map[domain.TorrentID]struct{}
}

// Run blocks until ctx is cancelled.
func (dp DiskPressure) Run(ctx context.Context) {
	dp = dp.withDefaults()
	state := &pressureState{stopped: make(map[domain.TorrentID]struct{})}

	ticker := time.NewTicker(dp.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dp.check(ctx, state)
		}
	}
}

func (dp DiskPressure) withDefaults() DiskPressure {
	if dp.Interval <= 0 {
		dp.Interval = 30 * time.Second
	}
	if dp.ResumeBytes <= dp.MinFreeBytes {
		dp.ResumeBytes = dp.MinFreeBytes * 2
	}
	if dp.FreeBytes == nil {
		dp.FreeBytes = diskFreeBytes
	}
	if dp.Logger == nil {
		dp.Logger = slog.Default()
	}
	return dp
}

func (dp DiskPressure) check(ctx context.Context, state *pressureState) {
	free, err := dp.FreeBytes(dp.DataDir)
	if err != nil {
		dp.Logger.Warn("disk_pressure: failed to check disk space",
			slog.String("path", dp.DataDir),
			slog.String("error", err.Error()),
		)
		return
	}

	switch {
	case !state.paused && free < dp.MinFreeBytes:
		dp.Logger.Warn("disk_pressure: low disk space, pausing downloads",
			slog.Int64("freeBytes", free),
			slog.Int64("thresholdBytes", dp.MinFreeBytes),
		)
		dp.pauseDownloads(ctx, state.stopped)
		state.paused = true
	case state.paused && free >= dp.ResumeBytes:
		dp.Logger.Info("disk_pressure: disk space recovered, resuming downloads",
			slog.Int64("freeBytes", free),
			slog.Int64("resumeBytes", dp.ResumeBytes),
		)
		dp.resumeDownloads(ctx, state.stopped)
		state.paused = false
	}
}

// pauseDownloads pauses torrents that are still fetching data. Seeding,
// finished and already paused torrents are left alone.
func (dp DiskPressure) pauseDownloads(ctx context.Context, stopped map[domain.TorrentID]struct{}) {
	ids, err := dp.Torrents.List(ctx)
	if err != nil {
		dp.Logger.Warn("disk_pressure: list torrents failed", slog.String("error", err.Error()))
		return
	}

	for _, id := range ids {
		st, err := dp.Torrents.Status(ctx, id)
		if err != nil || st.State != domain.StateDownloading {
			continue
		}
		if err := dp.Torrents.Pause(ctx, id); err != nil {
			dp.Logger.Warn("disk_pressure: pause failed",
				slog.String("torrentId", string(id)),
				slog.String("error", err.Error()),
			)
			continue
		}
		stopped[id] = struct{}{}
		dp.Logger.Info("disk_pressure: paused torrent", slog.String("torrentId", string(id)))
	}
}

func (dp DiskPressure) resumeDownloads(ctx context.Context, stopped map[domain.TorrentID]struct{}) {
	for id := range stopped {
		if err := dp.Torrents.Resume(ctx, id); err != nil {
			dp.Logger.Warn("disk_pressure: resume failed",
				slog.String("torrentId", string(id)),
				slog.String("error", err.Error()),
			)
		} else {
			dp.Logger.Info("disk_pressure: resumed torrent", slog.String("torrentId", string(id)))
		}
		delete(stopped, id)
	}
}
