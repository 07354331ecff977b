package webhook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/config"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		r.paths = append(r.paths, req.Method+" "+req.URL.Path)
		r.mu.Unlock()
		w.WriteHeader(status)
	}
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func endpoint(t *testing.T, srv *httptest.Server) (string, int) {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)
	return u.Hostname(), port
}

func TestClient_Notify(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler(http.StatusOK))
	defer srv.Close()
	host, port := endpoint(t, srv)

	c := New(&config.Registration{
		Hub: config.EndpointConfig{Host: host, Port: port},
		Units: map[string]config.UnitConfig{
			"A": {ByteCount: 4, WebhookPath: "/switch"},
			"C": {ByteCount: 3},
		},
	}, time.Second)

	require.NoError(t, c.Notify(context.Background(), "C", []byte{0x81, 0x0F}))
	require.NoError(t, c.Notify(context.Background(), "A", []byte{0x41, 0x00, 0x01}))
	assert.Equal(t, []string{"GET /state/C/810f", "GET /switch/A/410001"}, rec.got())
}

func TestClient_NotifyNoHub(t *testing.T) {
	c := New(&config.Registration{}, time.Second)
	assert.ErrorIs(t, c.Notify(context.Background(), "C", []byte{0x80}), ErrNoHost)
}

func TestClient_SendAndSync(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler(http.StatusOK))
	defer srv.Close()
	host, port := endpoint(t, srv)

	c := New(&config.Registration{Units: map[string]config.UnitConfig{
		"C": {ByteCount: 3, Host: host, Port: port},
		"B": {ByteCount: 1},
	}}, time.Second)

	require.NoError(t, c.Send(context.Background(), "C", []byte{0xA3, 0x7F, 0xFF, 0xFF, 0x80, 0x00, 0x00}))
	require.NoError(t, c.RequestSync(context.Background(), "C"))
	assert.Equal(t, []string{"GET /a37fffff800000", "GET /80"}, rec.got())

	assert.ErrorIs(t, c.Send(context.Background(), "B", []byte{0x80}), ErrNoHost)
	assert.ErrorIs(t, c.Send(context.Background(), "Z", []byte{0x80}), ErrNoHost)
}

func TestClient_ErrorStatus(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler(http.StatusInternalServerError))
	defer srv.Close()
	host, port := endpoint(t, srv)

	c := New(&config.Registration{Units: map[string]config.UnitConfig{"C": {Host: host, Port: port}}}, time.Second)
	assert.ErrorIs(t, c.Send(context.Background(), "C", []byte{0x80}), ErrUnexpectedStatus)
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)
	host, port := endpoint(t, srv)

	c := New(&config.Registration{Units: map[string]config.UnitConfig{"C": {Host: host, Port: port}}}, 50*time.Millisecond)

	start := time.Now()
	err := c.Send(context.Background(), "C", []byte{0x80})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClient_Fire(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	undo := zap.ReplaceGlobals(zap.New(core))
	defer undo()

	c := New(&config.Registration{}, 100*time.Millisecond)

	var calls atomic.Int32
	c.Fire("ok", func(ctx context.Context) error {
		calls.Add(1)
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return nil
	})
	c.Fire("broken", func(context.Context) error {
		calls.Add(1)
		return errors.New("boom")
	})
	c.Wait()

	assert.Equal(t, int32(2), calls.Load())
	failed := logs.FilterMessage("webhook failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "broken", failed[0].ContextMap()["call"])
}
