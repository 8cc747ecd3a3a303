package rpc

import (
	"context"
	"crypto/sha1"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"btd/internal/domain"
)

type fakeCore struct {
	mu          sync.Mutex
	running     bool
	startErr    error
	startPaths  []string
	shutdowns   int
	torrents    map[domain.TorrentID]domain.TorrentStatus
	removeFiles map[domain.TorrentID]bool
	panicOn     string
}

func newFakeCore() *fakeCore {
	return &fakeCore{
		torrents:    make(map[domain.TorrentID]domain.TorrentStatus),
		removeFiles: make(map[domain.TorrentID]bool),
	}
}

func fakeID(seed string) domain.TorrentID {
	return domain.TorrentID(fmt.Sprintf("%x", sha1.Sum([]byte(seed))))
}

func (f *fakeCore) Start(_ context.Context, configPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startPaths = append(f.startPaths, configPath)
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeCore) Shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdowns++
	f.running = false
}

func (f *fakeCore) add(seed string) (domain.TorrentID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn == seed {
		panic("boom")
	}
	if !f.running {
		return "", domain.ErrQueueClosed
	}
	id := fakeID(seed)
	f.torrents[id] = domain.TorrentStatus{State: domain.StateDownloading, HasMetadata: true, Progress: 0.25}
	return id, nil
}

func (f *fakeCore) AddMagnet(_ context.Context, uri, _ string) (domain.TorrentID, error) {
	if !strings.HasPrefix(uri, "magnet:?") {
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidMagnet, uri)
	}
	return f.add(uri)
}

func (f *fakeCore) AddTorrentFile(_ context.Context, path, _ string) (domain.TorrentID, error) {
	return f.add(path)
}

func (f *fakeCore) SeedFolder(_ context.Context, folder, _ string) (domain.TorrentID, error) {
	return f.add(folder)
}

func (f *fakeCore) lookup(id domain.TorrentID) error {
	if !f.running {
		return domain.ErrQueueClosed
	}
	if _, ok := f.torrents[id]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return nil
}

func (f *fakeCore) Pause(_ context.Context, id domain.TorrentID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.lookup(id); err != nil {
		return err
	}
	st := f.torrents[id]
	st.State = domain.StatePaused
	f.torrents[id] = st
	return nil
}

func (f *fakeCore) Resume(_ context.Context, id domain.TorrentID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.lookup(id); err != nil {
		return err
	}
	st := f.torrents[id]
	st.State = domain.StateDownloading
	f.torrents[id] = st
	return nil
}

func (f *fakeCore) Remove(_ context.Context, id domain.TorrentID, deleteFiles bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.lookup(id); err != nil {
		return err
	}
	delete(f.torrents, id)
	f.removeFiles[id] = deleteFiles
	return nil
}

func (f *fakeCore) Status(_ context.Context, id domain.TorrentID) (domain.TorrentStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.lookup(id); err != nil {
		return domain.TorrentStatus{}, err
	}
	return f.torrents[id], nil
}

func (f *fakeCore) List(context.Context) ([]domain.TorrentID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return nil, domain.ErrQueueClosed
	}
	ids := make([]domain.TorrentID, 0, len(f.torrents))
	for id := range f.torrents {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
