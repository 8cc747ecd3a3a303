package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrConfigLoad         = errors.New("config load failed")
	ErrEngineDisabled     = errors.New("engine disabled by config")
	ErrInvalidMagnet      = errors.New("invalid magnet uri")
	ErrInvalidTorrentFile = errors.New("invalid torrent file")
	ErrEmptyFolder        = errors.New("folder contains no files")
	ErrSeedFailed         = errors.New("seed failed")
	ErrQueueClosed        = errors.New("queue closed")
	ErrInvalidTorrentID   = errors.New("invalid torrent id")
	ErrEngine             = errors.New("engine error")
)
