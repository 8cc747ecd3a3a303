package domain

import "unicode/utf8"

// MaxErrorMessageLen bounds TorrentStatus.ErrorMessage in bytes.
const MaxErrorMessageLen = 127

// EngineStatus is the raw status an engine reports for one torrent.
type EngineStatus struct {
	Paused          bool
	IsSeeding       bool
	HasMetadata     bool
	Progress        float64
	DownloadRate    int64
	UploadRate      int64
	TotalDownloaded int64
	TotalUploaded   int64
	NumPeers        int
	NumSeeds        int
	NumLeechers     int
	ErrorCode       int
	ErrorMessage    string
}

func (st EngineStatus) HasError() bool {
	return st.ErrorCode != 0
}

// TorrentStatus is a point-in-time snapshot of a torrent. It holds no
// reference back into the engine.
type TorrentStatus struct {
	State           TorrentState
	Progress        float64
	DownloadRate    int64
	UploadRate      int64
	TotalDownloaded int64
	TotalUploaded   int64
	NumPeers        int
	NumSeeds        int
	NumLeechers     int
	IsSeeding       bool
	HasMetadata     bool
	ErrorCode       int
	ErrorMessage    string
}

func NewTorrentStatus(st EngineStatus) TorrentStatus {
	progress := st.Progress
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	return TorrentStatus{
		State:           DeriveState(st),
		Progress:        progress,
		DownloadRate:    st.DownloadRate,
		UploadRate:      st.UploadRate,
		TotalDownloaded: st.TotalDownloaded,
		TotalUploaded:   st.TotalUploaded,
		NumPeers:        st.NumPeers,
		NumSeeds:        st.NumSeeds,
		NumLeechers:     st.NumLeechers,
		IsSeeding:       st.IsSeeding,
		HasMetadata:     st.HasMetadata,
		ErrorCode:       st.ErrorCode,
		ErrorMessage:    truncateMessage(st.ErrorMessage, MaxErrorMessageLen),
	}
}

// truncateMessage cuts s to at most limit bytes without splitting a rune.
func truncateMessage(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
