package config

import (
	"time"
)

type Config struct {
	Registration *Registration
	Settings     *Settings
	LogLevel     string
	ListenAddr   string
}

// Registration is the static unit table loaded from the config file. It is
// immutable for the lifetime of the process.
type Registration struct {
	ID     string                `yaml:"id" json:"id,omitempty"` // bridge only: the unit served on this serial line.
	Serial SerialConfig          `yaml:"serial" json:"serial"`
	Hub    EndpointConfig        `yaml:"hub" json:"hub"`
	Units  map[string]UnitConfig `yaml:"units" json:"units"`
}

type UnitConfig struct {
	ByteCount   int    `yaml:"byte_count" json:"byte_count"`
	Host        string `yaml:"host" json:"host"`
	Port        int    `yaml:"port" json:"port"`
	WebhookPath string `yaml:"webhook_path" json:"webhook_path"`
}

type SerialConfig struct {
	Port string `yaml:"port" json:"port"`
	Baud int    `yaml:"baud" json:"baud"`
}

type EndpointConfig struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

// Settings holds the runtime tunables read from the environment.
type Settings struct {
	WebhookTimeout time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"1s"`
	SyncSchedule   string        `env:"SYNC_SCHEDULE" envDefault:"@every 5m"` // "off" disables periodic sync.
	StaticDir      string        `env:"STATIC_DIR"`
	MQTT           MQTTConfig    `envPrefix:"MQTT_"`
}

type MQTTConfig struct {
	Host     string `env:"HOST"`
	Username string `env:"USER"`
	Password string `env:"PASS"`
	Topic    string `env:"TOPIC" envDefault:"mt7688"`
}

// SyncDisabled reports whether periodic latch sync is switched off.
func (s *Settings) SyncDisabled() bool {
	return s.SyncSchedule == "" || s.SyncSchedule == "off"
}
