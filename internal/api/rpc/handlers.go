package rpc

import (
	"context"

	"btd/internal/domain"
)

const (
	MethodInit           = "init"
	MethodAddMagnet      = "add_magnet"
	MethodAddTorrentFile = "add_torrent_file"
	MethodSeedFolder     = "seed_folder"
	MethodPause          = "pause_torrent"
	MethodResume         = "resume_torrent"
	MethodRemove         = "remove_torrent"
	MethodStatus         = "get_torrent_status"
	MethodResumeAll      = "resume_all_torrents"
	MethodList           = "list_torrents"
	MethodShutdown       = "shutdown"
)

var knownMethods = map[string]struct{}{
	MethodInit: {}, MethodAddMagnet: {}, MethodAddTorrentFile: {}, MethodSeedFolder: {},
	MethodPause: {}, MethodResume: {}, MethodRemove: {}, MethodStatus: {},
	MethodResumeAll: {}, MethodList: {}, MethodShutdown: {},
}

// methodLabel keeps metric and span names bounded.
func methodLabel(method string) string {
	if _, ok := knownMethods[method]; ok {
		return method
	}
	return "unknown"
}

type versionResult struct {
	Version string `json:"version"`
}

type idResult struct {
	InfohashHex domain.TorrentID `json:"infohash_hex"`
}

type resumeAllResult struct {
	ResumedCount int `json:"resumed_count"`
}

type listResult struct {
	Torrents []domain.TorrentID `json:"torrents"`
}

type statusResult struct {
	State           string  `json:"state"`
	Progress        float64 `json:"progress"`
	DownloadRate    int64   `json:"download_rate"`
	UploadRate      int64   `json:"upload_rate"`
	TotalDownloaded int64   `json:"total_downloaded"`
	TotalUploaded   int64   `json:"total_uploaded"`
	NumPeers        int     `json:"num_peers"`
	NumSeeds        int     `json:"num_seeds"`
	NumLeechers     int     `json:"num_leechers"`
	IsSeeding       int     `json:"is_seeding"`
	HasMetadata     int     `json:"has_metadata"`
	ErrorCode       int     `json:"error_code"`
	ErrorMsg        string  `json:"error_msg"`
}

func newStatusResult(st domain.TorrentStatus) statusResult {
	return statusResult{
		State:           st.State.String(),
		Progress:        st.Progress,
		DownloadRate:    st.DownloadRate,
		UploadRate:      st.UploadRate,
		TotalDownloaded: st.TotalDownloaded,
		TotalUploaded:   st.TotalUploaded,
		NumPeers:        st.NumPeers,
		NumSeeds:        st.NumSeeds,
		NumLeechers:     st.NumLeechers,
		IsSeeding:       boolInt(st.IsSeeding),
		HasMetadata:     boolInt(st.HasMetadata),
		ErrorCode:       st.ErrorCode,
		ErrorMsg:        st.ErrorMessage,
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *Server) handleInit(ctx context.Context, p Params) (any, error) {
	path, err := p.OptionalString("config_path")
	if err != nil {
		return nil, err
	}
	if err := s.core.Start(ctx, path); err != nil {
		return nil, opFailed("init", err)
	}
	return versionResult{Version: s.version}, nil
}

func (s *Server) handleAddMagnet(ctx context.Context, p Params) (any, error) {
	uri, err := p.RequiredString("magnet_uri")
	if err != nil {
		return nil, err
	}
	saveDir, err := p.RequiredString("save_dir")
	if err != nil {
		return nil, err
	}
	id, err := s.core.AddMagnet(ctx, uri, saveDir)
	if err != nil {
		return nil, opFailed("add_magnet", err)
	}
	return idResult{InfohashHex: id}, nil
}

func (s *Server) handleAddTorrentFile(ctx context.Context, p Params) (any, error) {
	path, err := p.RequiredString("torrent_path")
	if err != nil {
		return nil, err
	}
	saveDir, err := p.RequiredString("save_dir")
	if err != nil {
		return nil, err
	}
	id, err := s.core.AddTorrentFile(ctx, path, saveDir)
	if err != nil {
		return nil, opFailed("add_torrent_file", err)
	}
	return idResult{InfohashHex: id}, nil
}

func (s *Server) handleSeedFolder(ctx context.Context, p Params) (any, error) {
	folder, err := p.RequiredString("folder")
	if err != nil {
		return nil, err
	}
	out, err := p.RequiredString("torrent_out_path")
	if err != nil {
		return nil, err
	}
	id, err := s.core.SeedFolder(ctx, folder, out)
	if err != nil {
		return nil, opFailed("seed_folder", err)
	}
	return idResult{InfohashHex: id}, nil
}

func (s *Server) handlePause(ctx context.Context, p Params) (any, error) {
	id, err := p.TorrentID("infohash_hex")
	if err != nil {
		return nil, err
	}
	if err := s.core.Pause(ctx, id); err != nil {
		return nil, opFailed("pause", err)
	}
	return nil, nil
}

func (s *Server) handleResume(ctx context.Context, p Params) (any, error) {
	id, err := p.TorrentID("infohash_hex")
	if err != nil {
		return nil, err
	}
	if err := s.core.Resume(ctx, id); err != nil {
		return nil, opFailed("resume", err)
	}
	return nil, nil
}

func (s *Server) handleRemove(ctx context.Context, p Params) (any, error) {
	id, err := p.TorrentID("infohash_hex")
	if err != nil {
		return nil, err
	}
	removeFiles, err := p.Bool("remove_files")
	if err != nil {
		return nil, err
	}
	if err := s.core.Remove(ctx, id, removeFiles); err != nil {
		return nil, opFailed("remove", err)
	}
	return nil, nil
}

func (s *Server) handleStatus(ctx context.Context, p Params) (any, error) {
	id, err := p.TorrentID("infohash_hex")
	if err != nil {
		return nil, err
	}
	st, err := s.core.Status(ctx, id)
	if err != nil {
		return nil, opFailed("status", err)
	}
	return newStatusResult(st), nil
}

func (s *Server) handleResumeAll(ctx context.Context, p Params) (any, error) {
	dir, err := p.RequiredString("torrents_dir")
	if err != nil {
		return nil, err
	}
	dataDir, err := p.RequiredString("data_dir")
	if err != nil {
		return nil, err
	}
	// A stopped actor is an error, not zero adds.
	if _, err := s.core.List(ctx); err != nil {
		return nil, opFailed("resume_all", err)
	}
	n, err := s.resumeAll.Execute(ctx, dir, dataDir)
	if err != nil {
		return nil, opFailed("resume_all", err)
	}
	return resumeAllResult{ResumedCount: n}, nil
}

func (s *Server) handleList(ctx context.Context, _ Params) (any, error) {
	ids, err := s.core.List(ctx)
	if err != nil {
		return nil, opFailed("list", err)
	}
	if ids == nil {
		ids = []domain.TorrentID{}
	}
	return listResult{Torrents: ids}, nil
}

func (s *Server) handleShutdown(context.Context, Params) (any, error) {
	return nil, nil
}
