package protocol

import "fmt"

// ChangeRequest asks a unit to set selected bits. Indices missing from
// Overrides are masked out and left untouched by the unit.
type ChangeRequest struct {
	StateChange bool
	StateSync   bool
	Overrides   map[int]bool
}

// EncodeChangeRequest builds a 1+2*byteCount frame: header, mask half, data
// half. Bits are laid out LSB to MSB, index i*8+j on bit j of byte i.
func EncodeChangeRequest(byteCount int, req ChangeRequest) ([]byte, error) {
	if byteCount == 0 {
		return nil, ErrUnitByteCountUnset
	}
	if byteCount < 0 || byteCount > MaxByteCount {
		return nil, fmt.Errorf("%w: %d", ErrByteCountRange, byteCount)
	}

	out := make([]byte, 1+2*byteCount)
	out[0] = byte(byteCount)
	if req.StateChange {
		out[0] |= FlagStateChange
	}
	if req.StateSync {
		out[0] |= FlagStateSync
	}

	mask := out[1 : 1+byteCount]
	data := out[1+byteCount:]
	for i := 0; i < byteCount; i++ {
		for j := 0; j < 8; j++ {
			v, ok := req.Overrides[i*8+j]
			switch {
			case !ok:
				mask[i] |= 0x01 << j
			case v:
				data[i] |= 0x01 << j
			}
		}
	}
	return out, nil
}

// DecodeChangeRequest reverses EncodeChangeRequest: every bit with a clear
// mask bit is an override carrying its data bit.
func DecodeChangeRequest(frame []byte) (ChangeRequest, error) {
	if len(frame) == 0 {
		return ChangeRequest{}, &DecodeError{Err: ErrTruncated}
	}

	h := frame[0]
	n := int(h & ByteCountMask)
	if len(frame) < 1+2*n {
		return ChangeRequest{}, &DecodeError{Header: Header(h), Err: ErrTruncated}
	}

	req := ChangeRequest{
		StateChange: h&FlagStateChange != 0,
		StateSync:   h&FlagStateSync != 0,
		Overrides:   make(map[int]bool),
	}
	mask := frame[1 : 1+n]
	data := frame[1+n : 1+2*n]
	for i := 0; i < n; i++ {
		for j := 0; j < 8; j++ {
			if (mask[i]>>j)&0x01 == 0x01 {
				continue
			}
			req.Overrides[i*8+j] = (data[i]>>j)&0x01 == 0x01
		}
	}
	return req, nil
}

// ValidateRequest checks that frame is a whole change request: one header
// followed by a mask half and a data half of the declared width. A lone sync
// header is a valid request of width zero.
func ValidateRequest(frame []byte) error {
	if len(frame) == 0 {
		return &DecodeError{Err: ErrTruncated}
	}
	h := Header(frame[0])
	if want := 1 + 2*h.ByteCount(); len(frame) != want {
		return &DecodeError{Header: h, Err: fmt.Errorf("%w: got %d bytes, want %d", ErrRequestLength, len(frame), want)}
	}
	return nil
}
