package config

import (
	"fmt"
	"strings"
	"time"

	libconfig "biotune/backend/libs/config"
	"biotune/backend/services/bridge-service/internal/device"
	"biotune/backend/services/bridge-service/internal/ingest"
	"biotune/backend/services/bridge-service/internal/session"
	"biotune/backend/services/bridge-service/internal/sink"
)

const defaultPort = "5000"

// Config defines bridge service configuration.
type Config struct {
	HTTP struct {
		Port          string `yaml:"port" env:"BRIDGE_HTTP_PORT"`
		AllowedOrigin string `yaml:"allowedOrigin" env:"BRIDGE_HTTP_ALLOWED_ORIGIN"`
	} `yaml:"http"`
	Serial  device.Config   `yaml:"serial"`
	Session session.Options `yaml:"session"`
	Ingest  ingest.Options  `yaml:"ingest"`
	Sink    sink.Config     `yaml:"sink"`
	Metrics struct {
		Namespace string `yaml:"namespace" env:"BRIDGE_METRICS_NAMESPACE"`
	} `yaml:"metrics"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	cfg := &Config{}
	cfg.HTTP.Port = defaultPort
	cfg.HTTP.AllowedOrigin = "*"
	cfg.Serial.OpenSettle = 2 * time.Second
	cfg.Session.StartSettle = 4 * time.Second
	cfg.Metrics.Namespace = "biotune"
	cfg.Serial.ApplyDefaults()
	cfg.Ingest.ApplyDefaults()
	cfg.Sink.ApplyDefaults()
	return cfg
}

// Load reads configuration via shared helper.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom is Load with an explicit YAML path; empty falls back to CONFIG_FILE.
// overrides run after the file and environment, before validation.
func LoadFrom(path string, overrides ...func(*Config)) (*Config, error) {
	cfg := Default()

	var err error
	if path != "" {
		err = libconfig.LoadConfigFrom(path, cfg)
	} else {
		err = libconfig.LoadConfig(cfg)
	}
	if err != nil {
		return nil, err
	}
	for _, override := range overrides {
		override(cfg)
	}

	cfg.Serial.ApplyDefaults()
	cfg.Ingest.ApplyDefaults()
	cfg.Sink.ApplyDefaults()
	if cfg.Session.StartSettle < 0 {
		cfg.Session.StartSettle = 0
	}
	if strings.TrimSpace(cfg.Metrics.Namespace) == "" {
		cfg.Metrics.Namespace = "biotune"
	}

	if err := cfg.Serial.Validate(); err != nil {
		return nil, fmt.Errorf("config: serial: %w", err)
	}
	if err := cfg.Sink.Validate(); err != nil {
		return nil, fmt.Errorf("config: sink: %w", err)
	}
	return cfg, nil
}

// HTTPAddress returns :port style; a value that already has a host part is
// used as is.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = defaultPort
	}
	if strings.Contains(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}
