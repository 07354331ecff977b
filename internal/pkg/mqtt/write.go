package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/yuhuachang/mt7688-control-unit/internal/pkg/state"
)

var errPublishTimeout = errors.New("publish timed out")

type registerDevice struct {
	Name         string   `json:"name"`
	Identifiers  []string `json:"identifiers"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
}

type registerMessage struct {
	Tilda               string         `json:"~"`
	Name                string         `json:"name"`
	ID                  string         `json:"unique_id"`
	StateTopic          string         `json:"state_topic"`
	ValueTemplate       string         `json:"value_template"`
	JSONAttributesTopic string         `json:"json_attributes_topic"`
	Device              registerDevice `json:"device"`
}

// Publish writes each unit's state as a retained message on
// <prefix>/<unit>/state. Units whose state is unchanged are skipped.
func (s *service) Publish(ctx context.Context, snap state.Snapshot) error {
	ids := lo.Keys(snap)
	slices.Sort(ids)

	count := 0
	for _, id := range ids {
		payload, err := json.Marshal(snap[id])
		if err != nil {
			return err
		}
		if !s.shouldUpdate(id, string(payload)) {
			continue
		}
		if err := s.registerUnit(id); err != nil {
			s.logger.Warn("failed to register unit", zap.String("unit", id), zap.Error(err))
		}
		if err := s.publish(s.stateTopic(id), 1, true, payload); err != nil {
			s.forget(id)
			return fmt.Errorf("unit %s: %w", id, err)
		}
		count++
	}
	s.logger.Debug("updated units", zap.Int("count", count))
	return nil
}

func (s *service) stateTopic(unit string) string {
	return fmt.Sprintf("%s/%s/state", s.prefix, unit)
}

// registerUnit publishes the home assistant discovery config once per unit.
func (s *service) registerUnit(unit string) error {
	s.mu.Lock()
	_, done := s.registered[unit]
	s.mu.Unlock()
	if done {
		return nil
	}

	id := fmt.Sprintf("%s_%s", s.prefix, unit)
	msg := registerMessage{
		Tilda:               fmt.Sprintf("%s/%s", s.prefix, unit),
		Name:                fmt.Sprintf("Control unit %s", unit),
		ID:                  id,
		StateTopic:          "~/state",
		ValueTemplate:       "{{ value_json.latch | dict2items | selectattr('value') | list | length }}",
		JSONAttributesTopic: "~/state",
		Device: registerDevice{
			Name:         fmt.Sprintf("Control unit %s", unit),
			Identifiers:  []string{id},
			Model:        "MT7688",
			Manufacturer: "mt7688-control-unit",
		},
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := s.publish(fmt.Sprintf("homeassistant/sensor/%s/config", id), 1, true, payload); err != nil {
		return err
	}

	s.mu.Lock()
	s.registered[unit] = struct{}{}
	s.mu.Unlock()
	s.logger.Info("registered unit", zap.String("unit", unit))
	return nil
}

func (s *service) publish(topic string, qos byte, retained bool, payload []byte) error {
	token := s.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(time.Second * 5) {
		return errPublishTimeout
	}
	return token.Error()
}

func (s *service) shouldUpdate(unit, payload string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.last[unit]; ok && old == payload {
		return false
	}
	s.last[unit] = payload
	return true
}

func (s *service) forget(unit string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.last, unit)
}
