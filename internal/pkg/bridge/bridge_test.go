package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/unit"
	"github.com/yuhuachang/mt7688-control-unit/pkg/protocol"
)

type fakeSerial struct {
	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (f *fakeSerial) Write(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.frames = append(f.frames, append([]byte(nil), p...))
	return nil
}

type fakeHub struct {
	mu       sync.Mutex
	notified [][]byte
	err      error
}

func (f *fakeHub) Notify(_ context.Context, unitID string, frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, frame)
	return f.err
}

// Fire runs synchronously so tests observe the call.
func (f *fakeHub) Fire(_ string, fn func(ctx context.Context) error) {
	_ = fn(context.Background())
}

func (f *fakeHub) got() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.notified
}

func TestBridge_RunForwardsFrames(t *testing.T) {
	hub := &fakeHub{}
	b := New(unit.NewAdapter("C", 3), &fakeSerial{}, hub)

	chunks := make(chan []byte, 4)
	chunks <- []byte{0x83, 0x01}
	chunks <- []byte{0x00, 0x80, 0x63, 0x00, 0x00, 0x00}
	chunks <- []byte{0x80, 0x00, 0x00}
	close(chunks)

	err := b.Run(context.Background(), chunks)
	assert.ErrorIs(t, err, ErrSerialClosed)

	assert.Equal(t, [][]byte{
		{0x83, 0x01, 0x00, 0x80},
		{0x63, 0x00, 0x00, 0x00, 0x80, 0x00, 0x00},
	}, hub.got())
	assert.Equal(t, uint64(2), b.Stats().FramesDecoded)
}

func TestBridge_RunCountsErrors(t *testing.T) {
	hub := &fakeHub{err: errors.New("hub down")}
	b := New(unit.NewAdapter("B", 1), &fakeSerial{}, hub)

	chunks := make(chan []byte, 2)
	chunks <- []byte{0x81, 0xFF, 0x00, 0x12}
	chunks <- []byte{0x81, 0x01}
	close(chunks)

	require.ErrorIs(t, b.Run(context.Background(), chunks), ErrSerialClosed)

	stats := b.Stats()
	assert.Equal(t, uint64(2), stats.FramesDecoded)
	assert.Equal(t, uint64(1), stats.DecodeErrors)
	assert.Equal(t, uint64(2), stats.WebhookFailures)
}

func TestBridge_RunStopsOnCancel(t *testing.T) {
	b := New(unit.NewAdapter("C", 3), &fakeSerial{}, &fakeHub{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- b.Run(ctx, make(chan []byte)) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestBridge_Apply(t *testing.T) {
	serial := &fakeSerial{}
	b := New(unit.NewAdapter("C", 3), serial, &fakeHub{})

	frame, err := b.Apply(unit.ChangeRequest{
		StateChange: true,
		StateSync:   true,
		Switch:      map[string]bool{"C7": true},
	})
	require.NoError(t, err)
	want := []byte{0xA3, 0x7F, 0xFF, 0xFF, 0x80, 0x00, 0x00}
	assert.Equal(t, want, frame)
	assert.Equal(t, [][]byte{want}, serial.frames)
	assert.Equal(t, uint64(1), b.Stats().FramesWritten)
}

func TestBridge_ApplyErrors(t *testing.T) {
	serial := &fakeSerial{}
	b := New(unit.NewAdapter("C", 3), serial, &fakeHub{})

	_, err := b.Apply(unit.ChangeRequest{Switch: map[string]bool{"A1": true}})
	assert.ErrorIs(t, err, unit.ErrUnknownKey)
	assert.Empty(t, serial.frames)

	_, err = New(unit.NewAdapter("C", 0), serial, &fakeHub{}).Apply(unit.ChangeRequest{})
	assert.ErrorIs(t, err, protocol.ErrUnitByteCountUnset)
	assert.Empty(t, serial.frames)

	serial.err = errors.New("EIO")
	_, err = b.Apply(unit.ChangeRequest{})
	assert.Error(t, err)
	assert.Equal(t, uint64(1), b.Stats().WriteErrors)
}

func TestBridge_WriteFrame(t *testing.T) {
	serial := &fakeSerial{}
	b := New(unit.NewAdapter("C", 3), serial, &fakeHub{})

	require.NoError(t, b.WriteFrame(protocol.SyncRequest()))
	require.NoError(t, b.WriteFrame([]byte{0xA3, 0x7F, 0xFF, 0xFF, 0x80, 0x00, 0x00}))

	assert.ErrorIs(t, b.WriteFrame([]byte{0xA1, 0xFF, 0x00}), ErrWidthMismatch)
	assert.ErrorIs(t, b.WriteFrame([]byte{0xA3, 0x7F}), protocol.ErrRequestLength)
	assert.Len(t, serial.frames, 2)
}
