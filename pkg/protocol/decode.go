package protocol

// Frame is one decoded frame. Bits is keyed by flat bit index.
// Latch frames carry every index of the unit; switch frames only the
// indices whose mask and data bits differ.
type Frame struct {
	Kind      Kind
	ByteCount int
	Bits      map[int]bool
	Raw       []byte
}

// DecodeFrame decodes the frame starting at cursor and returns it together
// with the number of bytes consumed.
func DecodeFrame(data []byte, cursor int) (Frame, int, error) {
	if cursor < 0 || cursor >= len(data) {
		return Frame{}, 0, &DecodeError{Offset: cursor, Err: ErrTruncated}
	}

	h := Header(data[cursor])
	size, err := FrameLength(byte(h))
	if err != nil {
		return Frame{}, 0, &DecodeError{Offset: cursor, Header: h, Err: ErrUnknownHeader}
	}
	if len(data)-cursor < size {
		return Frame{}, 0, &DecodeError{Offset: cursor, Header: h, Err: ErrTruncated}
	}

	n := h.ByteCount()
	payload := data[cursor+1 : cursor+size]

	frame := Frame{
		Kind:      h.Kind(),
		ByteCount: n,
		Raw:       append([]byte(nil), data[cursor:cursor+size]...),
	}
	if frame.Kind == KindLatch {
		frame.Bits = decodeLatch(payload)
	} else {
		frame.Bits = decodeSwitch(payload[:n], payload[n:])
	}
	return frame, size, nil
}

// DecodeAll decodes consecutive frames until data is exhausted or a frame
// fails. Frames decoded before the failure are returned with the error.
func DecodeAll(data []byte) ([]Frame, error) {
	var frames []Frame
	for cursor := 0; cursor < len(data); {
		frame, n, err := DecodeFrame(data, cursor)
		if err != nil {
			return frames, err
		}
		frames = append(frames, frame)
		cursor += n
	}
	return frames, nil
}

// decodeLatch walks each byte LSB to MSB.
func decodeLatch(payload []byte) map[int]bool {
	bits := make(map[int]bool, len(payload)*8)
	for i, b := range payload {
		for j := 0; j < 8; j++ {
			bits[i*8+j] = (b>>j)&0x01 == 0x01
		}
	}
	return bits
}

// decodeSwitch walks each byte MSB to LSB and emits only the positions where
// mask and data differ.
func decodeSwitch(mask, data []byte) map[int]bool {
	bits := make(map[int]bool)
	for i := range mask {
		diff := mask[i] ^ data[i]
		for j := 7; j >= 0; j-- {
			if (diff>>j)&0x01 == 0 {
				continue
			}
			bits[i*8+(7-j)] = (data[i]>>j)&0x01 == 0x01
		}
	}
	return bits
}
