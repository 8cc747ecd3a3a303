package domain

import (
	"fmt"
	"strings"
)

// TorrentIDLength is the length of a hex-encoded SHA-1 info hash.
const TorrentIDLength = 40

// TorrentID is the lowercase hex info hash of a torrent. It is the only
// external key the daemon accepts.
type TorrentID string

// ParseTorrentID trims and lowercases raw and checks that it is a 40 digit
// hex string.
func ParseTorrentID(raw string) (TorrentID, error) {
	id := strings.ToLower(strings.TrimSpace(raw))
	if len(id) != TorrentIDLength {
		return "", fmt.Errorf("%w: length %d", ErrInvalidTorrentID, len(id))
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("%w: unexpected character %q", ErrInvalidTorrentID, c)
		}
	}
	return TorrentID(id), nil
}

func (id TorrentID) String() string { return string(id) }
