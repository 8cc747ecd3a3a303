package ports

import "btd/internal/domain"

// Handle is a live torrent inside an engine. Like Engine, it must only be
// used from the session actor.
type Handle interface {
	InfoHash() domain.TorrentID
	Pause()
	Resume()
	Status() domain.EngineStatus
}
