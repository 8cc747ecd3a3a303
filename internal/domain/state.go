package domain

// TorrentState is the coarse lifecycle state reported for a torrent.
type TorrentState int

const (
	StateUnknown TorrentState = iota
	StateDownloading
	StateSeeding
	StatePaused
	StateFinished
	StateError
)

// finishedThreshold absorbs float rounding in engine progress values.
const finishedThreshold = 0.9999

func (s TorrentState) String() string {
	switch s {
	case StateDownloading:
		return "downloading"
	case StateSeeding:
		return "seeding"
	case StatePaused:
		return "paused"
	case StateFinished:
		return "finished"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// DeriveState maps raw engine status to a TorrentState. Seeding and paused
// win over error and progress, so a paused torrent with an error reports
// StatePaused.
func DeriveState(st EngineStatus) TorrentState {
	switch {
	case st.IsSeeding:
		return StateSeeding
	case st.Paused:
		return StatePaused
	case st.HasError():
		return StateError
	case st.Progress >= finishedThreshold:
		return StateFinished
	default:
		return StateDownloading
	}
}
