package anacrolix

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/anacrolix/dht/v2"
	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/metainfo"
	"github.com/anacrolix/torrent/storage"
	"golang.org/x/time/rate"

	"btd/internal/domain"
	"btd/internal/domain/ports"
)

// defaultMaxConns is the value restored when resuming a hard-paused torrent.
const defaultMaxConns = 35

// minRateBurst keeps the limiter burst above the largest chunk the client
// reads or writes in one call.
const minRateBurst = 256 << 10

// errCodeClosed is reported in EngineStatus when the client closed a torrent
// on its own.
const errCodeClosed = 1

var errNoClient = errors.New("torrent client not configured")

type Config struct {
	DataDir  string
	Settings domain.EngineConfig
	Logger   *slog.Logger
}

// Engine adapts a *torrent.Client to ports.Engine. It keeps no locks: the
// session actor is its only caller.
type Engine struct {
	client   *torrent.Client
	logger   *slog.Logger
	dataDir  string
	torrents map[domain.TorrentID]*Handle
	speeds   map[domain.TorrentID]speedSample
	alerts   []domain.Alert
	now      func() time.Time
}

// New starts a client on the first free port of the configured listen range.
func New(cfg Config) (*Engine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	start, end := listenRange(cfg.Settings)
	var lastErr error
	for port := start; port <= end; port++ {
		client, err := torrent.NewClient(newClientConfig(cfg, port))
		if err != nil {
			lastErr = err
			logger.Debug("listen port unavailable",
				slog.Int("port", port),
				slog.String("error", err.Error()),
			)
			continue
		}
		logger.Info("torrent client started",
			slog.Int("listenPort", port),
			slog.Bool("dht", cfg.Settings.DHTEnabled),
			slog.Int64("uploadLimit", cfg.Settings.UploadLimitBytesPerSec),
			slog.Int64("downloadLimit", cfg.Settings.DownloadLimitBytesPerSec),
		)
		e := NewWithClient(client)
		e.logger = logger
		e.dataDir = cfg.DataDir
		return e, nil
	}
	return nil, fmt.Errorf("%w: no usable listen port in %d-%d: %v", domain.ErrEngine, start, end, lastErr)
}

func NewWithClient(client *torrent.Client) *Engine {
	return &Engine{
		client:   client,
		logger:   slog.Default(),
		torrents: make(map[domain.TorrentID]*Handle),
		speeds:   make(map[domain.TorrentID]speedSample),
		now:      time.Now,
	}
}

// Factory returns a ports.EngineFactory building anacrolix engines that
// store data under dataDir unless a torrent names its own save path.
func Factory(dataDir string, logger *slog.Logger) ports.EngineFactory {
	return func(settings domain.EngineConfig) (ports.Engine, error) {
		e, err := New(Config{DataDir: dataDir, Settings: settings, Logger: logger})
		if err != nil {
			return nil, err
		}
		return e, nil
	}
}

func listenRange(settings domain.EngineConfig) (int, int) {
	start, end := settings.ListenPortStart, settings.ListenPortEnd
	if start <= 0 {
		start, end = domain.DefaultListenPortStart, domain.DefaultListenPortEnd
	}
	if end < start {
		end = start
	}
	return start, end
}

func newClientConfig(cfg Config, port int) *torrent.ClientConfig {
	clientConfig := torrent.NewDefaultClientConfig()
	if cfg.DataDir != "" {
		clientConfig.DataDir = cfg.DataDir
	}
	clientConfig.ListenPort = port
	clientConfig.Seed = true
	clientConfig.NoDHT = !cfg.Settings.DHTEnabled
	if limit := cfg.Settings.UploadLimitBytesPerSec; limit > 0 {
		clientConfig.UploadRateLimiter = newRateLimiter(limit)
	}
	if limit := cfg.Settings.DownloadLimitBytesPerSec; limit > 0 {
		clientConfig.DownloadRateLimiter = newRateLimiter(limit)
	}
	if cfg.Settings.DHTEnabled && len(cfg.Settings.DHTBootstrapNodes) > 0 {
		nodes := append([]string(nil), cfg.Settings.DHTBootstrapNodes...)
		clientConfig.DhtStartingNodes = func(network string) dht.StartingNodesGetter {
			return func() ([]dht.Addr, error) {
				return resolveBootstrapNodes(network, nodes)
			}
		}
	}
	return clientConfig
}

func newRateLimiter(bytesPerSec int64) *rate.Limiter {
	burst := int(bytesPerSec)
	if burst < minRateBurst {
		burst = minRateBurst
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

// resolveBootstrapNodes turns "host:port" entries into DHT addresses,
// skipping entries that do not resolve for network.
func resolveBootstrapNodes(network string, nodes []string) ([]dht.Addr, error) {
	addrs := make([]dht.Addr, 0, len(nodes))
	var lastErr error
	for _, node := range nodes {
		udpAddr, err := net.ResolveUDPAddr(network, strings.TrimSpace(node))
		if err != nil {
			lastErr = err
			continue
		}
		addrs = append(addrs, dht.NewAddr(udpAddr))
	}
	if len(addrs) == 0 && lastErr != nil {
		return nil, fmt.Errorf("resolve dht bootstrap nodes: %w", lastErr)
	}
	return addrs, nil
}

// ---------------------------------------------------------------------------
// Metadata
// ---------------------------------------------------------------------------

type metadata struct {
	spec      *torrent.TorrentSpec
	numPieces int // 0 until the info dictionary is known
}

func (m *metadata) InfoHash() domain.TorrentID {
	return domain.TorrentID(m.spec.InfoHash.HexString())
}

func (e *Engine) ParseMagnet(uri string) (ports.Metadata, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, errors.New("empty magnet uri")
	}
	spec, err := torrent.TorrentSpecFromMagnetUri(uri)
	if err != nil {
		return nil, err
	}
	return &metadata{spec: spec}, nil
}

func (e *Engine) LoadTorrentFile(path string) (ports.Metadata, error) {
	mi, err := metainfo.LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	info, err := mi.UnmarshalInfo()
	if err != nil {
		return nil, fmt.Errorf("decode info: %w", err)
	}
	spec, err := torrent.TorrentSpecFromMetaInfoErr(mi)
	if err != nil {
		return nil, err
	}
	return &metadata{spec: spec, numPieces: info.NumPieces()}, nil
}

// ---------------------------------------------------------------------------
// Torrent lifecycle
// ---------------------------------------------------------------------------

func (e *Engine) AddTorrent(params ports.AddParams) (ports.Handle, error) {
	if e.client == nil {
		return nil, errNoClient
	}
	md, ok := params.Metadata.(*metadata)
	if !ok || md == nil || md.spec == nil {
		return nil, fmt.Errorf("unsupported metadata %T", params.Metadata)
	}

	spec := *md.spec
	seedMode := params.Flags.Has(ports.FlagSeedMode)
	var store storage.ClientImplCloser
	if params.SavePath != "" {
		opts := storage.NewFileClientOpts{ClientBaseDir: params.SavePath}
		if seedMode && md.numPieces > 0 {
			opts.PieceCompletion = completedPieces(spec.InfoHash, md.numPieces)
		}
		store = storage.NewFileOpts(opts)
		spec.Storage = store
	}
	spec.DisableInitialPieceCheck = seedMode

	t, isNew, err := e.client.AddTorrentSpec(&spec)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}
	if !isNew && store != nil {
		// The client kept the storage of the torrent it already had.
		_ = store.Close()
		store = nil
	}

	id := domain.TorrentID(t.InfoHash().HexString())
	if h, exists := e.torrents[id]; exists {
		// A repeated add leaves the torrent's pause state alone.
		e.logger.Debug("torrent already added",
			slog.String("torrentId", string(id)),
			slog.Bool("paused", h.paused),
		)
		return h, nil
	}
	h := &Handle{engine: e, torrent: t, id: id, savePath: params.SavePath, storage: store}
	e.torrents[id] = h
	if params.Flags.Has(ports.FlagPaused) {
		h.Pause()
	} else {
		h.Resume()
	}

	e.pushAlert(domain.AlertAdded, id, "")
	e.logger.Debug("torrent added",
		slog.String("torrentId", string(id)),
		slog.String("savePath", params.SavePath),
		slog.Bool("seedMode", seedMode),
		slog.Bool("new", isNew),
	)
	return h, nil
}

// completedPieces returns a piece completion store that reports every piece
// of the torrent as already verified.
func completedPieces(ih metainfo.Hash, numPieces int) storage.PieceCompletion {
	pc := storage.NewMapPieceCompletion()
	for i := 0; i < numPieces; i++ {
		_ = pc.Set(metainfo.PieceKey{InfoHash: ih, Index: i}, true)
	}
	return pc
}

func (e *Engine) RemoveTorrent(handle ports.Handle, deleteFiles bool) error {
	h, ok := handle.(*Handle)
	if !ok || h == nil {
		return fmt.Errorf("unsupported handle %T", handle)
	}

	var files []string
	if deleteFiles {
		files = torrentFiles(h.torrent)
	}
	e.dropTorrent(h)
	e.pushAlert(domain.AlertRemoved, h.id, "")

	if len(files) == 0 {
		return nil
	}
	baseDir := h.savePath
	if baseDir == "" {
		baseDir = e.dataDir
	}
	if err := removeTorrentFiles(baseDir, files); err != nil {
		return fmt.Errorf("delete files: %w", err)
	}
	return nil
}

func (e *Engine) dropTorrent(h *Handle) {
	delete(e.torrents, h.id)
	e.forgetSpeed(h.id)
	if h.torrent != nil {
		h.torrent.Drop()
	}
	if h.storage != nil {
		if err := h.storage.Close(); err != nil {
			e.logger.Warn("torrent storage close failed",
				slog.String("torrentId", string(h.id)),
				slog.String("error", err.Error()),
			)
		}
	}
	// Return memory to the OS promptly after dropping a torrent.
	freeOSMemory()
}

func (e *Engine) Close() error {
	if e.client == nil {
		return nil
	}
	errList := e.client.Close()
	for _, h := range e.torrents {
		if h.storage != nil {
			_ = h.storage.Close()
		}
	}
	e.torrents = make(map[domain.TorrentID]*Handle)
	if len(errList) > 0 {
		return errList[0]
	}
	return nil
}

// ---------------------------------------------------------------------------
// Hard pause / resume
// ---------------------------------------------------------------------------

// hardPauseTorrent prevents all network activity for a torrent by disallowing
// data transfer and setting max connections to 0, which disconnects all peers.
func hardPauseTorrent(t *torrent.Torrent) {
	if t == nil {
		return
	}
	t.DisallowDataDownload()
	t.DisallowDataUpload()
	t.SetMaxEstablishedConns(0)
}

// resumeTorrent re-enables data transfer and peer connections, and starts
// downloading all pieces once the info dictionary is known.
func resumeTorrent(t *torrent.Torrent) {
	if t == nil {
		return
	}
	t.SetMaxEstablishedConns(defaultMaxConns)
	t.AllowDataUpload()
	t.AllowDataDownload()
	if torrentInfoReady(t) {
		t.DownloadAll()
	}
}

// ---------------------------------------------------------------------------
// Status and alerts
// ---------------------------------------------------------------------------

func (e *Engine) status(h *Handle) domain.EngineStatus {
	st := domain.EngineStatus{Paused: h.paused}
	t := h.torrent
	if t == nil {
		return st
	}
	if torrentClosed(t) {
		st.ErrorCode = errCodeClosed
		st.ErrorMessage = "torrent closed by engine"
		return st
	}

	st.HasMetadata = torrentInfoReady(t)
	if st.HasMetadata {
		length := t.Length()
		completed := t.BytesCompleted()
		if length > 0 {
			st.Progress = float64(completed) / float64(length)
		}
		st.IsSeeding = !h.paused && length > 0 && completed >= length
	}

	stats := t.Stats()
	st.DownloadRate, st.UploadRate = e.sampleSpeed(h.id, stats, e.now())
	st.TotalDownloaded = stats.BytesReadUsefulData.Int64()
	st.TotalUploaded = stats.BytesWrittenData.Int64()
	st.NumPeers = stats.ActivePeers
	st.NumSeeds = stats.ConnectedSeeders
	st.NumLeechers = leechers(stats.ActivePeers, stats.ConnectedSeeders)
	return st
}

func leechers(peers, seeds int) int {
	if n := peers - seeds; n > 0 {
		return n
	}
	return 0
}

// PopAlerts synthesizes lifecycle alerts from torrent state changes seen
// since the last call. anacrolix has no alert queue of its own.
func (e *Engine) PopAlerts() []domain.Alert {
	ids := make([]domain.TorrentID, 0, len(e.torrents))
	for id := range e.torrents {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		e.observe(e.torrents[id])
	}

	alerts := e.alerts
	e.alerts = nil
	return alerts
}

func (e *Engine) observe(h *Handle) {
	t := h.torrent
	if t == nil || h.closed {
		return
	}
	if torrentClosed(t) {
		h.closed = true
		e.pushAlert(domain.AlertError, h.id, "torrent closed by engine")
		return
	}
	if !h.gotInfo && torrentInfoReady(t) {
		h.gotInfo = true
		e.pushAlert(domain.AlertMetadataReceived, h.id, t.Name())
		if !h.paused {
			t.DownloadAll()
		}
	}
	if h.gotInfo && !h.finished && t.BytesMissing() == 0 {
		h.finished = true
		e.pushAlert(domain.AlertFinished, h.id, "")
	}
}

func (e *Engine) pushAlert(kind domain.AlertKind, id domain.TorrentID, msg string) {
	e.alerts = append(e.alerts, domain.Alert{Kind: kind, TorrentID: id, Message: msg, At: e.now().UTC()})
}

// freeOSMemory triggers garbage collection and returns freed memory to the OS.
func freeOSMemory() {
	runtime.GC()
	debug.FreeOSMemory()
}

func torrentInfoReady(t *torrent.Torrent) bool {
	if t == nil {
		return false
	}
	select {
	case <-t.GotInfo():
		return true
	default:
		return false
	}
}

func torrentClosed(t *torrent.Torrent) bool {
	if t == nil {
		return false
	}
	select {
	case <-t.Closed():
		return true
	default:
		return false
	}
}

type speedSample struct {
	at           time.Time
	bytesRead    int64
	bytesWritten int64
}

func (e *Engine) sampleSpeed(id domain.TorrentID, stats torrent.TorrentStats, now time.Time) (int64, int64) {
	currentRead := stats.BytesReadUsefulData.Int64()
	currentWritten := stats.BytesWrittenData.Int64()

	prev, ok := e.speeds[id]
	e.speeds[id] = speedSample{
		at:           now,
		bytesRead:    currentRead,
		bytesWritten: currentWritten,
	}

	if !ok || prev.at.IsZero() {
		return 0, 0
	}

	dt := now.Sub(prev.at).Seconds()
	if dt <= 0 {
		return 0, 0
	}

	deltaRead := currentRead - prev.bytesRead
	deltaWritten := currentWritten - prev.bytesWritten
	if deltaRead < 0 {
		deltaRead = 0
	}
	if deltaWritten < 0 {
		deltaWritten = 0
	}

	download := int64(float64(deltaRead) / dt)
	upload := int64(float64(deltaWritten) / dt)
	return download, upload
}

func (e *Engine) forgetSpeed(id domain.TorrentID) {
	delete(e.speeds, id)
}
