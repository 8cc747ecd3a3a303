package anacrolix

import (
	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/storage"

	"btd/internal/domain"
)

// Handle is one torrent inside an Engine.
type Handle struct {
	engine   *Engine
	torrent  *torrent.Torrent
	id       domain.TorrentID
	savePath string
	storage  storage.ClientImplCloser // nil when the client default storage is used

	paused   bool
	gotInfo  bool
	finished bool
	closed   bool
}

func (h *Handle) InfoHash() domain.TorrentID {
	return h.id
}

// Pause is idempotent.
func (h *Handle) Pause() {
	hardPauseTorrent(h.torrent)
	h.paused = true
}

// Resume is idempotent.
func (h *Handle) Resume() {
	resumeTorrent(h.torrent)
	h.paused = false
}

func (h *Handle) Status() domain.EngineStatus {
	return h.engine.status(h)
}
