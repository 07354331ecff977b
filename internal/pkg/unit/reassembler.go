package unit

import (
	"context"

	"github.com/yuhuachang/mt7688-control-unit/pkg/protocol"
)

// Result is one decoded event or the error that ended a buffer.
type Result struct {
	Event Event
	Err   error
}

// Reassembler turns arbitrarily chunked serial input into whole frames.
// It owns the partial-frame buffer; use one per serial line.
type Reassembler struct {
	adapter *Adapter
	buf     []byte
}

func NewReassembler(adapter *Adapter) *Reassembler {
	return &Reassembler{adapter: adapter, buf: make([]byte, 0, 64)}
}

// Feed appends a chunk and returns the results for every frame it completes.
// An unknown header drops everything buffered: the stream has no delimiter
// to resynchronise on.
func (r *Reassembler) Feed(chunk []byte) []Result {
	r.buf = append(r.buf, chunk...)

	var results []Result
	rest := r.buf
	for len(rest) > 0 {
		size, err := protocol.FrameLength(rest[0])
		if err != nil {
			results = append(results, Result{
				Event: Event{Unit: r.adapter.ID()},
				Err:   &protocol.DecodeError{Offset: len(r.buf) - len(rest), Header: protocol.Header(rest[0]), Err: protocol.ErrUnknownHeader},
			})
			rest = rest[:0]
			break
		}
		if len(rest) < size {
			break
		}
		ev, err := r.adapter.DecodeFrame(rest[:size])
		results = append(results, Result{Event: ev, Err: err})
		rest = rest[size:]
	}

	n := copy(r.buf, rest)
	r.buf = r.buf[:n]
	return results
}

// Pending returns the number of buffered bytes of an incomplete frame.
func (r *Reassembler) Pending() int {
	return len(r.buf)
}

// Run feeds chunks until the channel closes or ctx is done, sending results
// on out. out is closed on return.
func (r *Reassembler) Run(ctx context.Context, chunks <-chan []byte, out chan<- Result) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-chunks:
			if !ok {
				return
			}
			for _, res := range r.Feed(chunk) {
				select {
				case out <- res:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}
