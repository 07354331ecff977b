package unit

import (
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"

	"github.com/yuhuachang/mt7688-control-unit/pkg/protocol"
)

var (
	ErrUnknownKey = errors.New("unknown state key")
	// ErrWidthMismatch is returned for a frame whose byte count differs from
	// the unit's registered width.
	ErrWidthMismatch = errors.New("frame width does not match unit")
)

// Event is one decoded frame with its bits keyed by unit id + index ("C7").
type Event struct {
	Unit  string
	Kind  protocol.Kind
	State map[string]bool
	Raw   []byte
}

// ChangeRequest is a keyed request to override selected switch bits of a unit.
type ChangeRequest struct {
	Unit        string
	StateChange bool
	StateSync   bool
	Switch      map[string]bool
}

// Adapter binds the codec to one unit's id and byte width.
type Adapter struct {
	id        string
	byteCount int
}

// NewAdapter returns an adapter for unit id. A zero byteCount is accepted so
// that a registered unit can be looked up, but it cannot encode.
func NewAdapter(id string, byteCount int) *Adapter {
	return &Adapter{id: id, byteCount: byteCount}
}

func (a *Adapter) ID() string {
	return a.id
}

func (a *Adapter) ByteCount() int {
	return a.byteCount
}

// Key returns the state key for a bit index.
func (a *Adapter) Key(index int) string {
	return a.id + strconv.Itoa(index)
}

// Index parses a state key of this unit back into its bit index.
func (a *Adapter) Index(key string) (int, error) {
	suffix, ok := strings.CutPrefix(key, a.id)
	if !ok || suffix == "" {
		return 0, fmt.Errorf("%w: %q is not a key of unit %s", ErrUnknownKey, key, a.id)
	}
	idx, err := strconv.Atoi(suffix)
	if err != nil || idx < 0 || strconv.Itoa(idx) != suffix {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}
	if a.byteCount > 0 && idx >= a.byteCount*8 {
		return 0, fmt.Errorf("%w: %q beyond %d bits of unit %s", ErrUnknownKey, key, a.byteCount*8, a.id)
	}
	return idx, nil
}

// DecodeIncoming lazily decodes consecutive frames. Iteration stops after the
// first error, which is yielded once; events yielded before it stay valid.
func (a *Adapter) DecodeIncoming(data []byte) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for cursor := 0; cursor < len(data); {
			frame, n, err := a.decodeAt(data, cursor)
			if err != nil {
				yield(Event{Unit: a.id}, err)
				return
			}
			if !yield(a.event(frame), nil) {
				return
			}
			cursor += n
		}
	}
}

// Decode collects DecodeIncoming into a slice. Events decoded before a
// failure are returned alongside the error.
func (a *Adapter) Decode(data []byte) ([]Event, error) {
	var events []Event
	for ev, err := range a.DecodeIncoming(data) {
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// DecodeFrame decodes exactly one complete frame.
func (a *Adapter) DecodeFrame(frame []byte) (Event, error) {
	f, _, err := a.decodeAt(frame, 0)
	if err != nil {
		return Event{Unit: a.id}, err
	}
	return a.event(f), nil
}

// decodeAt decodes the frame at cursor, rejecting a width other than the
// unit's. A unit without a width accepts any.
func (a *Adapter) decodeAt(data []byte, cursor int) (protocol.Frame, int, error) {
	if a.byteCount > 0 && cursor >= 0 && cursor < len(data) {
		h := protocol.Header(data[cursor])
		if h.Kind() != protocol.KindUnknown && h.ByteCount() != a.byteCount {
			return protocol.Frame{}, 0, &protocol.DecodeError{Offset: cursor, Header: h, Err: ErrWidthMismatch}
		}
	}
	return protocol.DecodeFrame(data, cursor)
}

// EncodeOutgoing encodes req with the unit's byte width.
func (a *Adapter) EncodeOutgoing(req ChangeRequest) ([]byte, error) {
	if a.byteCount == 0 {
		return nil, fmt.Errorf("unit %s: %w", a.id, protocol.ErrUnitByteCountUnset)
	}

	overrides := make(map[int]bool, len(req.Switch))
	for key, v := range req.Switch {
		idx, err := a.Index(key)
		if err != nil {
			return nil, err
		}
		overrides[idx] = v
	}
	return protocol.EncodeChangeRequest(a.byteCount, protocol.ChangeRequest{
		StateChange: req.StateChange,
		StateSync:   req.StateSync,
		Overrides:   overrides,
	})
}

func (a *Adapter) event(f protocol.Frame) Event {
	state := make(map[string]bool, len(f.Bits))
	for idx, v := range f.Bits {
		state[a.Key(idx)] = v
	}
	return Event{Unit: a.id, Kind: f.Kind, State: state, Raw: f.Raw}
}
