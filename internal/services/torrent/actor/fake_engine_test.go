package actor

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"btd/internal/domain"
	"btd/internal/domain/ports"
)

type fakeMeta struct{ id domain.TorrentID }

func (m fakeMeta) InfoHash() domain.TorrentID { return m.id }

type fakeHandle struct {
	id     domain.TorrentID
	params ports.AddParams

	mu      sync.Mutex
	paused  bool
	resumes int
	ops     []string
	status  domain.EngineStatus
	panics  bool
}

func (h *fakeHandle) InfoHash() domain.TorrentID { return h.id }

func (h *fakeHandle) Pause() {
	h.mu.Lock()
	h.paused = true
	h.ops = append(h.ops, "pause")
	h.mu.Unlock()
}

func (h *fakeHandle) Resume() {
	h.mu.Lock()
	h.paused = false
	h.resumes++
	h.ops = append(h.ops, "resume")
	h.mu.Unlock()
}

func (h *fakeHandle) Status() domain.EngineStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.panics {
		panic("status exploded")
	}
	h.ops = append(h.ops, "status")
	st := h.status
	st.Paused = h.paused
	return st
}

func (h *fakeHandle) set(fn func(st *domain.EngineStatus)) {
	h.mu.Lock()
	fn(&h.status)
	h.mu.Unlock()
}

// fakeEngine records calls and flags any two calls that overlap in time.
type fakeEngine struct {
	inFlight atomic.Int32
	overlap  atomic.Bool
	delay    time.Duration

	mu        sync.Mutex
	cfg       domain.EngineConfig
	handles   map[domain.TorrentID]*fakeHandle
	removed   map[domain.TorrentID]bool
	alerts    []domain.Alert
	closed    bool
	addErr    error
	createErr error
	removeErr error
	block     chan struct{} // when set, AddTorrent waits on it
	entered   chan struct{} // signalled when AddTorrent starts
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		handles: make(map[domain.TorrentID]*fakeHandle),
		removed: make(map[domain.TorrentID]bool),
	}
}

func (f *fakeEngine) factory() ports.EngineFactory {
	return func(cfg domain.EngineConfig) (ports.Engine, error) {
		f.mu.Lock()
		f.cfg = cfg
		f.mu.Unlock()
		return f, nil
	}
}

func (f *fakeEngine) enter() {
	if f.inFlight.Add(1) > 1 {
		f.overlap.Store(true)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
}

func (f *fakeEngine) leave() {
	f.inFlight.Add(-1)
}

func (f *fakeEngine) ParseMagnet(uri string) (ports.Metadata, error) {
	f.enter()
	defer f.leave()
	const prefix = "magnet:?xt=urn:btih:"
	if !strings.HasPrefix(uri, prefix) {
		return nil, errors.New("not a magnet uri")
	}
	id, err := domain.ParseTorrentID(strings.SplitN(strings.TrimPrefix(uri, prefix), "&", 2)[0])
	if err != nil {
		return nil, err
	}
	return fakeMeta{id: id}, nil
}

// LoadTorrentFile treats the file's contents as the info hash.
func (f *fakeEngine) LoadTorrentFile(path string) (ports.Metadata, error) {
	f.enter()
	defer f.leave()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	id, err := domain.ParseTorrentID(string(data))
	if err != nil {
		return nil, err
	}
	return fakeMeta{id: id}, nil
}

func (f *fakeEngine) CreateTorrent(folder, outPath string) error {
	f.enter()
	defer f.leave()
	f.mu.Lock()
	createErr := f.createErr
	f.mu.Unlock()
	if createErr != nil {
		return createErr
	}
	entries, err := os.ReadDir(folder)
	if err != nil || len(entries) == 0 {
		return fmt.Errorf("%w: %s", domain.ErrEmptyFolder, folder)
	}
	sum := sha1.Sum([]byte(folder))
	return os.WriteFile(outPath, []byte(hex.EncodeToString(sum[:])), 0o644)
}

func (f *fakeEngine) AddTorrent(params ports.AddParams) (ports.Handle, error) {
	f.enter()
	defer f.leave()

	f.mu.Lock()
	block, entered, addErr := f.block, f.entered, f.addErr
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if addErr != nil {
		return nil, addErr
	}

	id := params.Metadata.InfoHash()
	f.mu.Lock()
	if h, ok := f.handles[id]; ok {
		f.mu.Unlock()
		return h, nil
	}
	h := &fakeHandle{id: id, params: params, paused: params.Flags.Has(ports.FlagPaused)}
	f.handles[id] = h
	f.alerts = append(f.alerts, domain.Alert{Kind: domain.AlertAdded, TorrentID: id, At: time.Now()})
	f.mu.Unlock()
	return h, nil
}

func (f *fakeEngine) RemoveTorrent(h ports.Handle, deleteFiles bool) error {
	f.enter()
	defer f.leave()
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handles, h.InfoHash())
	f.removed[h.InfoHash()] = deleteFiles
	return f.removeErr
}

func (f *fakeEngine) PopAlerts() []domain.Alert {
	f.enter()
	defer f.leave()
	f.mu.Lock()
	defer f.mu.Unlock()
	alerts := f.alerts
	f.alerts = nil
	return alerts
}

func (f *fakeEngine) Close() error {
	f.enter()
	defer f.leave()
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) pushAlert(a domain.Alert) {
	f.mu.Lock()
	f.alerts = append(f.alerts, a)
	f.mu.Unlock()
}

func (f *fakeEngine) handle(id domain.TorrentID) *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handles[id]
}

func (f *fakeEngine) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func magnetFor(n int) string {
	return fmt.Sprintf("magnet:?xt=urn:btih:%040x&dn=item%d", n, n)
}

func idFor(n int) domain.TorrentID {
	return domain.TorrentID(fmt.Sprintf("%040x", n))
}
