package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.bug.st/serial"
	"go.uber.org/zap"

	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/config"
)

var ErrClosed = errors.New("serial transport closed")

const readBufferSize = 256

// Transport is the line to the unit's MCU. Reads are delivered as raw
// chunks; frame boundaries are the reader's concern.
type Transport struct {
	port   io.ReadWriteCloser
	name   string
	mu     sync.Mutex
	closed bool
	logger *zap.Logger
}

// Open opens the configured port at 8N1.
func Open(cfg config.SerialConfig) (*Transport, error) {
	mode := &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
	}
	t := New(port)
	t.name = cfg.Port
	return t, nil
}

// New wraps an already open port.
func New(port io.ReadWriteCloser) *Transport {
	return &Transport{port: port, logger: zap.L()}
}

// Write sends p as one frame. Concurrent writes do not interleave.
func (t *Transport) Write(p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	for len(p) > 0 {
		n, err := t.port.Write(p)
		if err != nil {
			return fmt.Errorf("serial write: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("serial write: %w", io.ErrShortWrite)
		}
		p = p[n:]
	}
	return nil
}

// Chunks starts the read loop. Every chunk is a fresh slice. The channel is
// closed when the port fails, reaches EOF, or ctx is done.
func (t *Transport) Chunks(ctx context.Context) <-chan []byte {
	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		buf := make([]byte, readBufferSize)
		for {
			n, err := t.port.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case out <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil {
					t.logger.Error("serial read failed", zap.String("port", t.name), zap.Error(err))
				}
				return
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
	return out
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.port.Close()
}
