package cmd

import (
	"context"

	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/state"
)

// SerialPort is the serial line a bridge drives.
type SerialPort interface {
	Write(p []byte) error
	Chunks(ctx context.Context) <-chan []byte
	Close() error
}

// SnapshotSink is an optional external snapshot publisher, the MQTT broker in production.
type SnapshotSink interface {
	Connect() error
	Publish(ctx context.Context, snap state.Snapshot) error
}
