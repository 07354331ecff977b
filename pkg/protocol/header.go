// Package protocol implements the MCU serial frame format: a header byte
// followed by latch bytes, or by a mask half and a data half for switch
// frames and change requests.
package protocol

import "fmt"

// Header bits.
const (
	FlagLatch       byte = 0x80 // frame carries a full latch snapshot
	FlagSwitch      byte = 0x40 // frame carries a switch mask/data pair
	FlagStateChange byte = 0x20 // change request: apply the overrides
	FlagStateSync   byte = 0x80 // change request: report latch state afterwards

	ByteCountMask byte = 0x0F
	MaxByteCount       = 15
)

// Kind identifies what a decoded frame describes.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindLatch
	KindSwitch
)

func (k Kind) String() string {
	switch k {
	case KindLatch:
		return "latch"
	case KindSwitch:
		return "switch"
	default:
		return "unknown"
	}
}

// Header is the first byte of every frame.
type Header byte

// IsLatch reports whether bit 7 is set.
func (h Header) IsLatch() bool {
	return byte(h)&FlagLatch != 0
}

// IsSwitch reports whether bit 6 is set.
func (h Header) IsSwitch() bool {
	return byte(h)&FlagSwitch != 0
}

// ByteCount returns the payload bytes per half.
func (h Header) ByteCount() int {
	return int(byte(h) & ByteCountMask)
}

// Kind returns the frame kind. The latch flag wins when both flags are set.
func (h Header) Kind() Kind {
	switch {
	case h.IsLatch():
		return KindLatch
	case h.IsSwitch():
		return KindSwitch
	default:
		return KindUnknown
	}
}

func (h Header) String() string {
	return fmt.Sprintf("0x%02X", byte(h))
}

// FrameLength returns the number of bytes a frame starting with header
// occupies, header included.
func FrameLength(header byte) (int, error) {
	h := Header(header)
	switch h.Kind() {
	case KindLatch:
		return 1 + h.ByteCount(), nil
	case KindSwitch:
		return 1 + 2*h.ByteCount(), nil
	default:
		return 0, &DecodeError{Header: h, Err: ErrUnknownHeader}
	}
}

// SyncRequest returns the frame asking a unit to report its latch state.
func SyncRequest() []byte {
	return []byte{FlagStateSync}
}
