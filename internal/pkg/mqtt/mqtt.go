package mqtt

import (
	"errors"
	"sync"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gosimple/slug"
	"go.uber.org/zap"

	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/config"
)

const clientID = "mt7688-hub"

// Client is the part of the paho client the service uses.
type Client interface {
	Connect() paho_mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho_mqtt.Token
}

type service struct {
	client Client
	prefix string

	mu         sync.Mutex
	last       map[string]string
	registered map[string]struct{}

	logger *zap.Logger
}

// NewClient builds a paho client for the configured broker.
func NewClient(cfg config.MQTTConfig) paho_mqtt.Client {
	opts := paho_mqtt.NewClientOptions()
	opts.AddBroker(cfg.Host)
	opts.SetClientID(clientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnectionLost = func(_ paho_mqtt.Client, err error) {
		zap.L().Warn("mqtt connection lost", zap.Error(err))
	}
	return paho_mqtt.NewClient(opts)
}

// New returns a snapshot publisher writing under the slug of topic.
func New(client Client, topic string) *service {
	prefix := slug.Make(topic)
	if prefix == "" {
		prefix = "mt7688"
	}
	return &service{
		client:     client,
		prefix:     prefix,
		last:       make(map[string]string),
		registered: make(map[string]struct{}),
		logger:     zap.L(),
	}
}

func (s *service) Connect() error {
	token := s.client.Connect()
	res := token.WaitTimeout(time.Second * 5)
	if res {
		return token.Error()
	}
	if err := token.Error(); err != nil {
		return err
	}
	return errors.New("unable to connect in time")
}
