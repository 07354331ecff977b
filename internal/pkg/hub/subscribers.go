package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/state"
)

const (
	sendQueueSize = 16
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = 50 * time.Second
	maxInbound    = 512
)

type subscriber struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
}

// Subscribers is the set of connected WebSocket clients. Every client gets
// the full snapshot on connect and on every change.
type Subscribers struct {
	mu       sync.Mutex
	subs     map[uuid.UUID]*subscriber
	snapshot func() state.Snapshot
	resync   func()
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewSubscribers returns an empty set. snapshot is read for new clients and
// resync requests.
func NewSubscribers(snapshot func() state.Snapshot) *Subscribers {
	return &Subscribers{
		subs:     make(map[uuid.UUID]*subscriber),
		snapshot: snapshot,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: zap.L(),
	}
}

// IsUpgrade reports whether r asks for a WebSocket.
func IsUpgrade(r *http.Request) bool {
	return websocket.IsWebSocketUpgrade(r)
}

// Serve upgrades the request and registers the client.
func (s *Subscribers) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade to websocket", zap.Error(err))
		return
	}

	sub := &subscriber{id: uuid.New(), conn: conn, send: make(chan []byte, sendQueueSize)}

	// Joining and reading the first snapshot under one lock orders it
	// against concurrent publishes.
	s.mu.Lock()
	payload, err := json.Marshal(s.snapshot())
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("failed to marshal snapshot", zap.Error(err))
		conn.Close()
		return
	}
	sub.send <- payload
	s.subs[sub.id] = sub
	n := len(s.subs)
	s.mu.Unlock()
	s.logger.Info("subscriber connected", zap.Stringer("id", sub.id), zap.String("remote", r.RemoteAddr), zap.Int("subscribers", n))

	go s.writePump(sub)
	go s.readPump(sub)
}

// Publish marshals snap once and queues it for every client. A client whose
// queue is full is dropped.
func (s *Subscribers) Publish(_ context.Context, snap state.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sub := range s.subs {
		select {
		case sub.send <- payload:
		default:
			s.logger.Warn("subscriber too slow, dropping", zap.Stringer("id", id))
			s.removeLocked(sub)
		}
	}
	return nil
}

// OnResync replaces the action taken when a client asks for a resync. It
// must be set before the first client connects.
func (s *Subscribers) OnResync(f func()) {
	s.resync = f
}

// Resync sends the current snapshot to every client.
func (s *Subscribers) Resync(ctx context.Context) {
	if err := s.Publish(ctx, s.snapshot()); err != nil {
		s.logger.Error("resync failed", zap.Error(err))
	}
}

func (s *Subscribers) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Close disconnects every client.
func (s *Subscribers) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		s.removeLocked(sub)
	}
}

func (s *Subscribers) remove(sub *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(sub)
}

// removeLocked closes the send queue once; writePump then closes the conn.
func (s *Subscribers) removeLocked(sub *subscriber) {
	if _, ok := s.subs[sub.id]; !ok {
		return
	}
	delete(s.subs, sub.id)
	close(sub.send)
	s.logger.Info("subscriber removed", zap.Stringer("id", sub.id), zap.Int("subscribers", len(s.subs)))
}

// readPump treats every inbound message as a resync request.
func (s *Subscribers) readPump(sub *subscriber) {
	defer func() {
		s.remove(sub)
		sub.conn.Close()
	}()
	sub.conn.SetReadLimit(maxInbound)
	_ = sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, msg, err := sub.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", zap.Stringer("id", sub.id), zap.Error(err))
			}
			return
		}
		s.logger.Debug("resync requested", zap.Stringer("id", sub.id), zap.ByteString("message", msg))
		if s.resync != nil {
			s.resync()
		} else {
			s.Resync(context.Background())
		}
	}
}

func (s *Subscribers) writePump(sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.remove(sub)
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.remove(sub)
				return
			}
		}
	}
}
