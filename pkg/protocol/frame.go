package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxFrameBytes caps a single payload. A hostile or corrupt peer can
// declare any length in the prefix; the reader must reject it before
// allocating.
const DefaultMaxFrameBytes = 4 * 1024 * 1024

// FrameErrorKind classifies codec failures.
type FrameErrorKind int

const (
	// Truncated means the stream ended inside a prefix or payload.
	Truncated FrameErrorKind = iota
	// LengthOutOfBounds means the declared length exceeds the limit.
	LengthOutOfBounds
)

// FrameError is a transport-level codec failure. Any FrameError terminates
// the connection it occurred on.
type FrameError struct {
	Kind FrameErrorKind
	err  error
}

func (e *FrameError) Error() string {
	switch e.Kind {
	case LengthOutOfBounds:
		return fmt.Sprintf("frame length out of bounds: %v", e.err)
	default:
		return fmt.Sprintf("frame truncated: %v", e.err)
	}
}

func (e *FrameError) Unwrap() error { return e.err }

// ReadFrame reads one length-prefixed payload from r, rejecting payloads
// larger than limit (DefaultMaxFrameBytes when limit <= 0). A clean EOF on
// the prefix boundary is returned as io.EOF so callers can tell an orderly
// close from a mid-frame one.
func ReadFrame(r io.Reader, limit int) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxFrameBytes
	}
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, &FrameError{Kind: Truncated, err: err}
	}
	length := binary.LittleEndian.Uint32(prefix[:])
	// Compare in uint64 so a limit above MaxUint32 cannot wrap.
	if uint64(length) > uint64(limit) {
		return nil, &FrameError{Kind: LengthOutOfBounds, err: fmt.Errorf("declared %d bytes, limit %d", length, limit)}
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, &FrameError{Kind: Truncated, err: err}
	}
	return payload, nil
}

// WriteFrame writes payload to w with a 4-byte little-endian length prefix.
func WriteFrame(w io.Writer, payload []byte, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxFrameBytes
	}
	if len(payload) > limit {
		return &FrameError{Kind: LengthOutOfBounds, err: fmt.Errorf("payload %d bytes, limit %d", len(payload), limit)}
	}
	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
