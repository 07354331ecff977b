// Package bridge couples one unit's serial line to the hub: frames read from
// the MCU are forwarded as webhooks, and change requests received over HTTP
// are encoded and written to the MCU.
package bridge

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/unit"
	"github.com/yuhuachang/mt7688-control-unit/pkg/protocol"
)

var (
	ErrSerialClosed  = errors.New("serial line closed")
	ErrWidthMismatch = errors.New("request width does not match unit")
)

// Writer is the serial side of the bridge.
type Writer interface {
	Write(p []byte) error
}

// Hub receives frames read from the serial line.
type Hub interface {
	Notify(ctx context.Context, unit string, frame []byte) error
	Fire(name string, fn func(ctx context.Context) error)
}

// Stats counts bridge activity since start.
type Stats struct {
	FramesDecoded   uint64 `json:"frames_decoded"`
	DecodeErrors    uint64 `json:"decode_errors"`
	FramesWritten   uint64 `json:"frames_written"`
	WriteErrors     uint64 `json:"write_errors"`
	WebhookFailures uint64 `json:"webhook_failures"`
}

type Bridge struct {
	adapter *unit.Adapter
	serial  Writer
	hub     Hub

	decoded   atomic.Uint64
	decodeErr atomic.Uint64
	written   atomic.Uint64
	writeErr  atomic.Uint64
	hookErr   atomic.Uint64

	logger *zap.Logger
}

func New(adapter *unit.Adapter, serial Writer, hub Hub) *Bridge {
	return &Bridge{
		adapter: adapter,
		serial:  serial,
		hub:     hub,
		logger:  zap.L().With(zap.String("unit", adapter.ID())),
	}
}

func (b *Bridge) Adapter() *unit.Adapter {
	return b.adapter
}

// Run reassembles chunks into frames and forwards each one to the hub. It
// returns ErrSerialClosed when chunks closes and ctx.Err() on cancellation.
func (b *Bridge) Run(ctx context.Context, chunks <-chan []byte) error {
	results := make(chan unit.Result)
	go unit.NewReassembler(b.adapter).Run(ctx, chunks, results)

	for res := range results {
		if res.Err != nil {
			b.decodeErr.Add(1)
			b.logger.Warn("dropping undecodable serial input", zap.Error(res.Err))
			continue
		}
		b.decoded.Add(1)
		b.forward(res.Event)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrSerialClosed
}

func (b *Bridge) forward(ev unit.Event) {
	if ce := b.logger.Check(zapcore.DebugLevel, "serial frame"); ce != nil {
		f, _, _ := protocol.DecodeFrame(ev.Raw, 0)
		ce.Write(zap.String("frame", protocol.FormatFrame(f)))
	}

	raw := ev.Raw
	b.hub.Fire("notify "+b.adapter.ID(), func(ctx context.Context) error {
		if err := b.hub.Notify(ctx, b.adapter.ID(), raw); err != nil {
			b.hookErr.Add(1)
			return err
		}
		return nil
	})
}

// Apply encodes req with the unit's width and writes it to the serial line.
// A failed write loses the request.
func (b *Bridge) Apply(req unit.ChangeRequest) ([]byte, error) {
	frame, err := b.adapter.EncodeOutgoing(req)
	if err != nil {
		return nil, err
	}
	if err := b.write(frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// WriteFrame passes an already encoded request through to the serial line.
func (b *Bridge) WriteFrame(frame []byte) error {
	if err := protocol.ValidateRequest(frame); err != nil {
		return err
	}
	if n := protocol.Header(frame[0]).ByteCount(); n != 0 && n != b.adapter.ByteCount() {
		return fmt.Errorf("%w: %d bytes, unit %s has %d", ErrWidthMismatch, n, b.adapter.ID(), b.adapter.ByteCount())
	}
	return b.write(frame)
}

func (b *Bridge) write(frame []byte) error {
	if err := b.serial.Write(frame); err != nil {
		b.writeErr.Add(1)
		b.logger.Error("serial write failed", zap.String("frame", hex.EncodeToString(frame)), zap.Error(err))
		return err
	}
	b.written.Add(1)
	b.logger.Info("wrote frame", zap.String("frame", hex.EncodeToString(frame)))
	return nil
}

func (b *Bridge) Stats() Stats {
	return Stats{
		FramesDecoded:   b.decoded.Load(),
		DecodeErrors:    b.decodeErr.Load(),
		FramesWritten:   b.written.Load(),
		WriteErrors:     b.writeErr.Load(),
		WebhookFailures: b.hookErr.Load(),
	}
}
