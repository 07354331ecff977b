package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/state"
)

type mockToken struct {
	err     error
	timeout bool
}

func (t *mockToken) Wait() bool                     { return !t.timeout }
func (t *mockToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *mockToken) Error() error                   { return t.err }
func (t *mockToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type message struct {
	topic    string
	retained bool
	payload  []byte
}

type mockClient struct {
	mu       sync.Mutex
	messages []message
	token    *mockToken
}

func (c *mockClient) Connect() paho_mqtt.Token {
	return c.tok()
}

func (c *mockClient) Publish(topic string, _ byte, retained bool, payload interface{}) paho_mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message{topic: topic, retained: retained, payload: payload.([]byte)})
	return c.tok()
}

func (c *mockClient) tok() paho_mqtt.Token {
	if c.token != nil {
		return c.token
	}
	return &mockToken{}
}

func (c *mockClient) topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.messages))
	for _, m := range c.messages {
		out = append(out, m.topic)
	}
	return out
}

func TestNew_SlugPrefix(t *testing.T) {
	assert.Equal(t, "home-lights", New(&mockClient{}, "Home Lights").prefix)
	assert.Equal(t, "mt7688", New(&mockClient{}, "").prefix)
}

func TestConnect(t *testing.T) {
	assert.NoError(t, New(&mockClient{}, "mt7688").Connect())

	err := New(&mockClient{token: &mockToken{timeout: true}}, "mt7688").Connect()
	assert.EqualError(t, err, "unable to connect in time")

	refused := errors.New("not authorised")
	assert.ErrorIs(t, New(&mockClient{token: &mockToken{err: refused}}, "mt7688").Connect(), refused)
}

func TestPublish_RetainedPerUnit(t *testing.T) {
	client := &mockClient{}
	s := New(client, "mt7688")

	snap := state.Snapshot{
		"C": {Latch: map[string]bool{"C0": true}},
		"A": {Switch: map[string]bool{"A3": false}},
	}
	require.NoError(t, s.Publish(context.Background(), snap))

	assert.Equal(t, []string{
		"homeassistant/sensor/mt7688_A/config",
		"mt7688/A/state",
		"homeassistant/sensor/mt7688_C/config",
		"mt7688/C/state",
	}, client.topics())

	last := client.messages[3]
	assert.True(t, last.retained)
	var got state.UnitState
	require.NoError(t, json.Unmarshal(last.payload, &got))
	assert.Equal(t, snap["C"], got)
}

func TestPublish_SkipsUnchanged(t *testing.T) {
	client := &mockClient{}
	s := New(client, "mt7688")

	snap := state.Snapshot{"C": {Latch: map[string]bool{"C0": true}}}
	require.NoError(t, s.Publish(context.Background(), snap))
	require.NoError(t, s.Publish(context.Background(), snap))
	assert.Len(t, client.topics(), 2)

	snap["C"] = state.UnitState{Latch: map[string]bool{"C0": false}}
	require.NoError(t, s.Publish(context.Background(), snap))
	assert.Equal(t, "mt7688/C/state", client.topics()[2])
	assert.Len(t, client.topics(), 3)
}

func TestPublish_FailureIsRetriedNextTime(t *testing.T) {
	client := &mockClient{token: &mockToken{err: errors.New("broker gone")}}
	s := New(client, "mt7688")

	snap := state.Snapshot{"C": {Latch: map[string]bool{"C0": true}}}
	assert.Error(t, s.Publish(context.Background(), snap))

	client.token = nil
	require.NoError(t, s.Publish(context.Background(), snap))
	assert.Contains(t, client.topics(), "homeassistant/sensor/mt7688_C/config")
}
