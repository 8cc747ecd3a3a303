package ports

import "btd/internal/domain"

// Engine is a torrent engine. Implementations are not safe for concurrent
// use; the session actor is the only caller.
type Engine interface {
	ParseMagnet(uri string) (Metadata, error)
	LoadTorrentFile(path string) (Metadata, error)
	// CreateTorrent hashes every file under folder and writes a .torrent to
	// outPath. It returns domain.ErrEmptyFolder when folder holds no files.
	CreateTorrent(folder, outPath string) error
	AddTorrent(params AddParams) (Handle, error)
	RemoveTorrent(h Handle, deleteFiles bool) error
	// PopAlerts returns and clears the alerts raised since the last call.
	// It never blocks.
	PopAlerts() []domain.Alert
	Close() error
}

// EngineFactory builds an engine from config. The actor calls it from its
// own goroutine.
type EngineFactory func(cfg domain.EngineConfig) (Engine, error)

// Metadata is a parsed magnet link or torrent file, ready to be added.
type Metadata interface {
	InfoHash() domain.TorrentID
}

type AddFlags uint8

const (
	FlagAutoManaged AddFlags = 1 << iota
	FlagPaused
	// FlagSeedMode marks the data as already complete so no verification
	// pass runs.
	FlagSeedMode
)

func (f AddFlags) Has(flag AddFlags) bool { return f&flag != 0 }

type AddParams struct {
	Metadata Metadata
	SavePath string
	Flags    AddFlags
}
