package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads the unit registration file and the environment settings, then
// validates and normalizes the registration.
func Load(path string) (*Config, error) {
	reg, err := LoadRegistration(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(reg); err != nil {
		return nil, err
	}
	Normalize(reg)

	settings, err := LoadSettings()
	if err != nil {
		return nil, err
	}
	return &Config{Registration: reg, Settings: settings}, nil
}

// LoadRegistration parses a YAML (or JSON) unit registration file.
func LoadRegistration(path string) (*Registration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	reg := &Registration{}
	if err := yaml.Unmarshal(data, reg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return reg, nil
}

// LoadSettings loads an optional .env file and parses the environment.
func LoadSettings() (*Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	settings := &Settings{}
	if err := env.Parse(settings); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return settings, nil
}
