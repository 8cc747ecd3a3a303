package usecase

import "errors"

var (
	ErrScanDir     = errors.New("scan directory failed")
	ErrPathTooLong = errors.New("path too long")
)
