package actor

import (
	"sort"

	"btd/internal/domain"
	"btd/internal/domain/ports"
)

// Registry maps torrent ids to engine handles. It belongs to the actor
// goroutine and is only touched while a command runs.
type Registry struct {
	handles map[domain.TorrentID]ports.Handle
}

func newRegistry() *Registry {
	return &Registry{handles: make(map[domain.TorrentID]ports.Handle)}
}

// Put stores h under id, replacing any earlier handle.
func (r *Registry) Put(id domain.TorrentID, h ports.Handle) {
	r.handles[id] = h
}

func (r *Registry) Get(id domain.TorrentID) (ports.Handle, bool) {
	h, ok := r.handles[id]
	return h, ok
}

func (r *Registry) Delete(id domain.TorrentID) {
	delete(r.handles, id)
}

func (r *Registry) Len() int {
	return len(r.handles)
}

// IDs returns the registered ids in ascending order.
func (r *Registry) IDs() []domain.TorrentID {
	ids := make([]domain.TorrentID, 0, len(r.handles))
	for id := range r.handles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
