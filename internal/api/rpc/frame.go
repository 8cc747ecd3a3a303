package rpc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// MaxFrameSize is the default cap on a single frame payload.
const MaxFrameSize = 16 << 20

const prefixLen = 4

var (
	ErrFrameIO       = errors.New("frame io error")
	ErrFrameTooLarge = errors.New("frame too large")
)

// ReadFrame reads one length-prefixed frame from r. It returns io.EOF when
// the stream ends cleanly before a new frame starts. A frame longer than
// maxSize is read and discarded so the stream stays aligned, and
// ErrFrameTooLarge is returned. maxSize <= 0 disables the cap.
func ReadFrame(r io.Reader, maxSize int64) ([]byte, error) {
	var prefix [prefixLen]byte
	n, err := io.ReadFull(r, prefix[:])
	if err != nil {
		if errors.Is(err, io.EOF) && n == 0 {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: read length prefix: %v", ErrFrameIO, err)
	}

	size := int64(binary.BigEndian.Uint32(prefix[:]))
	if maxSize > 0 && size > maxSize {
		if _, err := io.CopyN(io.Discard, r, size); err != nil {
			return nil, fmt.Errorf("%w: discard oversized payload: %v", ErrFrameIO, err)
		}
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: read payload: %v", ErrFrameIO, err)
	}
	return payload, nil
}

// WriteFrame writes payload to w as a single length-prefixed frame.
func WriteFrame(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > math.MaxUint32 {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	buf := make([]byte, prefixLen+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[prefixLen:], payload)

	n, err := w.Write(buf)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFrameIO, err)
	}
	if n != len(buf) {
		return fmt.Errorf("%w: %v", ErrFrameIO, io.ErrShortWrite)
	}
	return nil
}
