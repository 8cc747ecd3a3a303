package domain

// EngineConfig holds the settings an engine is built with. It is read once
// when the session actor starts.
type EngineConfig struct {
	Enabled                  bool
	DHTEnabled               bool
	ListenPortStart          int
	ListenPortEnd            int
	UploadLimitBytesPerSec   int64 // 0 = unlimited
	DownloadLimitBytesPerSec int64 // 0 = unlimited
	DHTBootstrapNodes        []string
}

// DefaultDHTBootstrapNodes are used when the config file names no router.
var DefaultDHTBootstrapNodes = []string{
	"router.bittorrent.com:6881",
	"router.utorrent.com:6881",
	"dht.transmissionbt.com:6881",
}

const (
	DefaultListenPortStart = 6881
	DefaultListenPortEnd   = 6891
)

func DefaultEngineConfig() EngineConfig {
	nodes := make([]string, len(DefaultDHTBootstrapNodes))
	copy(nodes, DefaultDHTBootstrapNodes)
	return EngineConfig{
		Enabled:           true,
		DHTEnabled:        true,
		ListenPortStart:   DefaultListenPortStart,
		ListenPortEnd:     DefaultListenPortEnd,
		DHTBootstrapNodes: nodes,
	}
}
