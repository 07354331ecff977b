package config

import (
	"errors"
	"fmt"
	"regexp"
)

const (
	DefaultPort        = 8080
	DefaultBaud        = 57600
	DefaultWebhookPath = "/state"
	maxByteCount       = 15
)

var (
	ErrNoUnits       = errors.New("no units registered")
	ErrInvalidUnitID = errors.New("invalid unit id")
	ErrBridgeUnit    = errors.New("bridge unit is not registered")
	ErrSerialPort    = errors.New("serial port is not set")

	// Unit ids prefix bit indices in state keys ("A13"), so they cannot end
	// in a digit.
	unitIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z_-]*$`)
)

// Validate checks the registration table.
// It performs declarative validation only and does not mutate reg.
func Validate(reg *Registration) error {
	if reg == nil || len(reg.Units) == 0 {
		return ErrNoUnits
	}

	for id, u := range reg.Units {
		if !unitIDPattern.MatchString(id) {
			return fmt.Errorf("%w: %q", ErrInvalidUnitID, id)
		}
		if u.ByteCount < 0 || u.ByteCount > maxByteCount {
			return fmt.Errorf("unit %s: byte_count %d out of range 0..%d", id, u.ByteCount, maxByteCount)
		}
		if u.Port < 0 || u.Port > 65535 {
			return fmt.Errorf("unit %s: port %d out of range", id, u.Port)
		}
		if u.WebhookPath != "" && u.WebhookPath[0] != '/' {
			return fmt.Errorf("unit %s: webhook_path %q must start with /", id, u.WebhookPath)
		}
	}

	if reg.Hub.Port < 0 || reg.Hub.Port > 65535 {
		return fmt.Errorf("hub: port %d out of range", reg.Hub.Port)
	}
	if reg.Serial.Baud < 0 {
		return fmt.Errorf("serial: baud %d out of range", reg.Serial.Baud)
	}

	if reg.ID != "" {
		if _, ok := reg.Units[reg.ID]; !ok {
			return fmt.Errorf("%w: %s", ErrBridgeUnit, reg.ID)
		}
	}
	return nil
}

// ValidateBridge adds the checks only the bridge needs.
func ValidateBridge(reg *Registration) error {
	if err := Validate(reg); err != nil {
		return err
	}
	if reg.ID == "" {
		return fmt.Errorf("%w: id is empty", ErrBridgeUnit)
	}
	if reg.Serial.Port == "" {
		return ErrSerialPort
	}
	return nil
}

// Normalize fills defaults. It must be called only after Validate.
func Normalize(reg *Registration) {
	if reg == nil {
		return
	}

	for id, u := range reg.Units {
		if u.WebhookPath == "" {
			u.WebhookPath = DefaultWebhookPath
		}
		if u.Host != "" && u.Port == 0 {
			u.Port = DefaultPort
		}
		reg.Units[id] = u
	}

	if reg.Hub.Host != "" && reg.Hub.Port == 0 {
		reg.Hub.Port = DefaultPort
	}
	if reg.Serial.Baud == 0 {
		reg.Serial.Baud = DefaultBaud
	}
}
