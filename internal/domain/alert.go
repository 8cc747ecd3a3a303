package domain

import "time"

type AlertKind string

const (
	AlertAdded            AlertKind = "added"
	AlertMetadataReceived AlertKind = "metadata_received"
	AlertFinished         AlertKind = "finished"
	AlertRemoved          AlertKind = "removed"
	AlertError            AlertKind = "error"
)

// Alert is an engine event drained by the session actor.
type Alert struct {
	Kind      AlertKind `json:"kind"`
	TorrentID TorrentID `json:"torrentId,omitempty"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}
