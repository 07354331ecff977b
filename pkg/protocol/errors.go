package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownHeader is returned for a header with neither the latch nor the
	// switch flag set. Bytes after it cannot be framed.
	ErrUnknownHeader = errors.New("unknown header")
	// ErrTruncated is returned when fewer bytes remain than the header declares.
	ErrTruncated = errors.New("truncated frame")
	// ErrUnitByteCountUnset is returned when encoding for a unit without a
	// configured byte width.
	ErrUnitByteCountUnset = errors.New("unit byte count is not set")
	// ErrByteCountRange is returned for a byte width that does not fit the
	// header's low nibble.
	ErrByteCountRange = errors.New("byte count out of range")
	// ErrRequestLength is returned for a change request whose length does not
	// match its header.
	ErrRequestLength = errors.New("request length does not match header")
)

// DecodeError locates a decode failure within a buffer.
type DecodeError struct {
	Offset int
	Header Header
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v at offset %d (header %s)", e.Err, e.Offset, e.Header)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
