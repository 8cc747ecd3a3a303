package anacrolix

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"

	"btd/internal/domain"
)

const createdBy = "btd"

// CreateTorrent builds a .torrent for folder. The info name is the folder's
// base name, so the data is found again when the torrent is added with the
// folder's parent as save path.
func (e *Engine) CreateTorrent(folder, outPath string) error {
	root := filepath.Clean(folder)
	count, total, err := scanFolder(root)
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", domain.ErrEmptyFolder, root)
	}

	info := metainfo.Info{PieceLength: metainfo.ChoosePieceLength(total)}
	if err := info.BuildFromFilePath(root); err != nil {
		return fmt.Errorf("hash pieces: %w", err)
	}

	mi := metainfo.MetaInfo{
		CreatedBy:    createdBy,
		CreationDate: e.now().Unix(),
	}
	mi.InfoBytes, err = bencode.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode info: %w", err)
	}
	return writeMetaInfo(&mi, outPath)
}

// scanFolder counts regular files under root and sums their sizes.
func scanFolder(root string) (count int, total int64, err error) {
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		count++
		total += fi.Size()
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, 0, nil
	}
	return count, total, err
}

func writeMetaInfo(mi *metainfo.MetaInfo, outPath string) (err error) {
	if dir := filepath.Dir(outPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(outPath)
		}
	}()
	return mi.Write(f)
}

// torrentFiles lists the torrent's data files relative to its save path,
// slash separated. It returns nil until the info dictionary is known.
func torrentFiles(t *torrent.Torrent) []string {
	if !torrentInfoReady(t) {
		return nil
	}
	info := t.Info()
	if info == nil {
		return nil
	}
	if len(info.Files) == 0 {
		return []string{info.Name}
	}
	files := make([]string, 0, len(info.Files))
	for _, f := range info.Files {
		files = append(files, path.Join(append([]string{info.Name}, f.Path...)...))
	}
	return files
}
