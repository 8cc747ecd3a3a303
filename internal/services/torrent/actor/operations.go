package actor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"btd/internal/domain"
	"btd/internal/domain/ports"
)

// AddMagnet adds the torrent named by a magnet URI, saving data to saveDir.
func (a *Actor) AddMagnet(ctx context.Context, uri, saveDir string) (domain.TorrentID, error) {
	res := a.submit(ctx, Command{Kind: KindAddMagnet, URI: uri, SaveDir: saveDir})
	return res.ID, res.Err
}

// AddTorrentFile adds the torrent described by the .torrent file at path.
func (a *Actor) AddTorrentFile(ctx context.Context, path, saveDir string) (domain.TorrentID, error) {
	res := a.submit(ctx, Command{Kind: KindAddTorrentFile, Path: path, SaveDir: saveDir})
	return res.ID, res.Err
}

// SeedFolder builds a torrent from folder, writes it to torrentOutPath and
// seeds the folder's contents without verifying them.
func (a *Actor) SeedFolder(ctx context.Context, folder, torrentOutPath string) (domain.TorrentID, error) {
	res := a.submit(ctx, Command{Kind: KindSeedFolder, Folder: folder, OutPath: torrentOutPath})
	return res.ID, res.Err
}

func (a *Actor) Pause(ctx context.Context, id domain.TorrentID) error {
	return a.submit(ctx, Command{Kind: KindPause, ID: id}).Err
}

func (a *Actor) Resume(ctx context.Context, id domain.TorrentID) error {
	return a.submit(ctx, Command{Kind: KindResume, ID: id}).Err
}

// Remove drops the torrent from the engine, deleting its data files when
// deleteFiles is set.
func (a *Actor) Remove(ctx context.Context, id domain.TorrentID, deleteFiles bool) error {
	return a.submit(ctx, Command{Kind: KindRemove, ID: id, DeleteFiles: deleteFiles}).Err
}

func (a *Actor) Status(ctx context.Context, id domain.TorrentID) (domain.TorrentStatus, error) {
	res := a.submit(ctx, Command{Kind: KindStatus, ID: id})
	return res.Status, res.Err
}

// List returns the ids of all registered torrents in ascending order.
func (a *Actor) List(ctx context.Context) ([]domain.TorrentID, error) {
	res := a.submit(ctx, Command{Kind: KindList})
	return res.IDs, res.Err
}

// ---------------------------------------------------------------------------
// Command bodies, run on the actor goroutine
// ---------------------------------------------------------------------------

func (a *Actor) addMagnet(cmd *Command) Result {
	md, err := a.engine.ParseMagnet(cmd.URI)
	if err != nil {
		return Result{Err: fmt.Errorf("%w: %v", domain.ErrInvalidMagnet, err)}
	}
	// Added paused so no peer traffic starts before the registry knows it.
	h, err := a.engine.AddTorrent(ports.AddParams{
		Metadata: md,
		SavePath: cmd.SaveDir,
		Flags:    ports.FlagAutoManaged | ports.FlagPaused,
	})
	if err != nil {
		return Result{Err: wrapEngine(err)}
	}
	id := h.InfoHash()
	_, known := a.registry.Get(id)
	a.registry.Put(id, h)
	if !known {
		h.Resume()
	}
	return Result{ID: id}
}

func (a *Actor) addTorrentFile(cmd *Command) Result {
	md, err := a.engine.LoadTorrentFile(cmd.Path)
	if err != nil {
		return Result{Err: fmt.Errorf("%w: %v", domain.ErrInvalidTorrentFile, err)}
	}
	h, err := a.engine.AddTorrent(ports.AddParams{
		Metadata: md,
		SavePath: cmd.SaveDir,
		Flags:    ports.FlagAutoManaged,
	})
	if err != nil {
		return Result{Err: wrapEngine(err)}
	}
	id := h.InfoHash()
	a.registry.Put(id, h)
	return Result{ID: id}
}

func (a *Actor) seedFolder(cmd *Command) Result {
	if err := a.engine.CreateTorrent(cmd.Folder, cmd.OutPath); err != nil {
		if errors.Is(err, domain.ErrEmptyFolder) {
			return Result{Err: err}
		}
		return Result{Err: fmt.Errorf("%w: %v", domain.ErrSeedFailed, err)}
	}
	md, err := a.engine.LoadTorrentFile(cmd.OutPath)
	if err != nil {
		return Result{Err: fmt.Errorf("%w: reload %s: %v", domain.ErrSeedFailed, cmd.OutPath, err)}
	}
	// Piece paths are relative to the folder's parent.
	h, err := a.engine.AddTorrent(ports.AddParams{
		Metadata: md,
		SavePath: filepath.Dir(filepath.Clean(cmd.Folder)),
		Flags:    ports.FlagAutoManaged | ports.FlagSeedMode,
	})
	if err != nil {
		return Result{Err: fmt.Errorf("%w: %v", domain.ErrSeedFailed, err)}
	}
	id := h.InfoHash()
	a.registry.Put(id, h)
	return Result{ID: id}
}

func (a *Actor) lookup(id domain.TorrentID) (ports.Handle, error) {
	h, ok := a.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return h, nil
}

func (a *Actor) pause(cmd *Command) Result {
	h, err := a.lookup(cmd.ID)
	if err != nil {
		return Result{Err: err}
	}
	h.Pause()
	return Result{ID: cmd.ID}
}

func (a *Actor) resume(cmd *Command) Result {
	h, err := a.lookup(cmd.ID)
	if err != nil {
		return Result{Err: err}
	}
	h.Resume()
	return Result{ID: cmd.ID}
}

// remove erases the registry entry even when the engine reports an error,
// since the engine has already let go of the torrent by then.
func (a *Actor) remove(cmd *Command) Result {
	h, err := a.lookup(cmd.ID)
	if err != nil {
		return Result{Err: err}
	}
	err = a.engine.RemoveTorrent(h, cmd.DeleteFiles)
	a.registry.Delete(cmd.ID)
	if err != nil {
		return Result{ID: cmd.ID, Err: wrapEngine(err)}
	}
	return Result{ID: cmd.ID}
}

func (a *Actor) status(cmd *Command) Result {
	h, err := a.lookup(cmd.ID)
	if err != nil {
		return Result{Err: err}
	}
	return Result{ID: cmd.ID, Status: domain.NewTorrentStatus(h.Status())}
}
