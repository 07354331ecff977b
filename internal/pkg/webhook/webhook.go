package webhook

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/config"
	"github.com/yuhuachang/mt7688-control-unit/pkg/protocol"
)

// DefaultTimeout is applied to every outbound call.
const DefaultTimeout = time.Second

var (
	ErrNoHost           = errors.New("no host configured")
	ErrUnexpectedStatus = errors.New("unexpected status")
)

// Client makes the short HTTP calls between bridges and the hub.
type Client struct {
	reg     *config.Registration
	http    *http.Client
	timeout time.Duration
	wg      sync.WaitGroup
	logger  *zap.Logger
}

func New(reg *config.Registration, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		reg:     reg,
		http:    &http.Client{Timeout: timeout},
		timeout: timeout,
		logger:  zap.L(),
	}
}

// Notify forwards a frame received from unitID's serial line to the hub.
func (c *Client) Notify(ctx context.Context, unitID string, frame []byte) error {
	if c.reg.Hub.Host == "" {
		return fmt.Errorf("hub: %w", ErrNoHost)
	}
	path := config.DefaultWebhookPath
	if u, ok := c.reg.Units[unitID]; ok && u.WebhookPath != "" {
		path = u.WebhookPath
	}
	url := fmt.Sprintf("http://%s%s/%s/%s", hostPort(c.reg.Hub.Host, c.reg.Hub.Port), path, unitID, hex.EncodeToString(frame))
	return c.get(ctx, url)
}

// Send delivers a raw frame to the bridge serving unitID.
func (c *Client) Send(ctx context.Context, unitID string, frame []byte) error {
	u, ok := c.reg.Units[unitID]
	if !ok || u.Host == "" {
		return fmt.Errorf("unit %s: %w", unitID, ErrNoHost)
	}
	url := fmt.Sprintf("http://%s/%s", hostPort(u.Host, u.Port), hex.EncodeToString(frame))
	return c.get(ctx, url)
}

// RequestSync asks unitID to report its latch state.
func (c *Client) RequestSync(ctx context.Context, unitID string) error {
	return c.Send(ctx, unitID, protocol.SyncRequest())
}

// Fire runs fn in the background with the client timeout. The result is
// logged and never retried.
func (c *Client) Fire(name string, fn func(ctx context.Context) error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			c.logger.Error("webhook failed", zap.String("call", name), zap.Error(err))
			return
		}
		c.logger.Debug("webhook delivered", zap.String("call", name))
	}()
}

// Wait blocks until every fired call has returned.
func (c *Client) Wait() {
	c.wg.Wait()
}

func (c *Client) get(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: GET %s: %s", ErrUnexpectedStatus, url, resp.Status)
	}
	return nil
}

func hostPort(host string, port int) string {
	if port == 0 {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
