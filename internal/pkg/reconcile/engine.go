package reconcile

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/state"
	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/unit"
)

// DefaultTimeout bounds a single outbound dispatch.
const DefaultTimeout = time.Second

// Outbound delivers an encoded frame to a unit.
type Outbound interface {
	Send(ctx context.Context, unit string, frame []byte) error
}

// LatchReader reads the last reported latch value of a key.
type LatchReader interface {
	Latch(unit, key string) (value, known bool)
}

// Engine turns switch presses into latch toggles.
type Engine struct {
	units    *unit.Registry
	latches  LatchReader
	outbound Outbound
	timeout  time.Duration
	wg       sync.WaitGroup
	logger   *zap.Logger
}

func New(units *unit.Registry, latches LatchReader, outbound Outbound, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{
		units:    units,
		latches:  latches,
		outbound: outbound,
		timeout:  timeout,
		logger:   zap.L(),
	}
}

// OnSwitchDelta toggles the latch of every key reported as pressed. Released
// keys (false) are ignored. Each toggle is its own request. The first error
// is returned after all keys were tried.
func (e *Engine) OnSwitchDelta(unitID string, delta map[string]bool) error {
	var first error
	for _, key := range state.On(delta) {
		if err := e.Toggle(unitID, key); err != nil {
			e.logger.Error("toggle failed", zap.String("unit", unitID), zap.String("key", key), zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Toggle requests the inverse of the current latch value of key. A key with
// no reported latch is treated as off. Encoding happens before Toggle
// returns; delivery happens in the background.
func (e *Engine) Toggle(unitID, key string) error {
	adapter, err := e.units.Lookup(unitID)
	if err != nil {
		return err
	}
	current, _ := e.latches.Latch(unitID, key)

	frame, err := adapter.EncodeOutgoing(unit.ChangeRequest{
		Unit:        unitID,
		StateChange: true,
		StateSync:   true,
		Switch:      map[string]bool{key: !current},
	})
	if err != nil {
		return err
	}

	e.logger.Info("toggle latch", zap.String("unit", unitID), zap.String("key", key), zap.Bool("to", !current), zap.String("frame", hex.EncodeToString(frame)))
	e.dispatch(unitID, frame)
	return nil
}

// ToggleIndex toggles the latch at a bit index of unitID.
func (e *Engine) ToggleIndex(unitID string, index int) (string, error) {
	adapter, err := e.units.Lookup(unitID)
	if err != nil {
		return "", err
	}
	key := adapter.Key(index)
	if _, err := adapter.Index(key); err != nil {
		return "", err
	}
	return key, e.Toggle(unitID, key)
}

func (e *Engine) dispatch(unitID string, frame []byte) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		if err := e.outbound.Send(ctx, unitID, frame); err != nil {
			e.logger.Error("failed to send toggle", zap.String("unit", unitID), zap.Error(err))
			return
		}
		e.logger.Debug("toggle delivered", zap.String("unit", unitID))
	}()
}

// Wait blocks until every dispatched frame has been delivered or abandoned.
func (e *Engine) Wait() {
	e.wg.Wait()
}
