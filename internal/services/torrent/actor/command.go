package actor

import (
	"context"

	"btd/internal/domain"
)

// CommandKind tags the engine operation a Command carries.
type CommandKind int

const (
	KindAddMagnet CommandKind = iota + 1
	KindAddTorrentFile
	KindSeedFolder
	KindPause
	KindResume
	KindRemove
	KindStatus
	KindList
)

func (k CommandKind) String() string {
	switch k {
	case KindAddMagnet:
		return "add_magnet"
	case KindAddTorrentFile:
		return "add_torrent_file"
	case KindSeedFolder:
		return "seed_folder"
	case KindPause:
		return "pause"
	case KindResume:
		return "resume"
	case KindRemove:
		return "remove"
	case KindStatus:
		return "status"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// Result is written by the actor exactly once, before the command's done
// channel is closed.
type Result struct {
	ID     domain.TorrentID
	IDs    []domain.TorrentID
	Status domain.TorrentStatus
	Err    error
}

// Command is one unit of engine work. Only the fields its Kind needs are
// set.
type Command struct {
	Kind CommandKind

	URI         string // add_magnet
	Path        string // add_torrent_file
	SaveDir     string // add_magnet, add_torrent_file
	Folder      string // seed_folder
	OutPath     string // seed_folder
	ID          domain.TorrentID
	DeleteFiles bool

	ctx    context.Context
	result Result
	done   chan struct{}
}

func newCommand(ctx context.Context, cmd Command) *Command {
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.ctx = ctx
	cmd.done = make(chan struct{})
	return &cmd
}

func (c *Command) complete(res Result) {
	c.result = res
	close(c.done)
}
