package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"biotune/backend/services/bridge-service/internal/sink"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeYAML(t, `
serial:
  port: /dev/ttyACM0
sink:
  firestore:
    projectID: biotune-dev
`)
	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.HTTPAddress() != ":5000" {
		t.Fatalf("address = %s", cfg.HTTPAddress())
	}
	if cfg.HTTP.AllowedOrigin != "*" {
		t.Fatalf("allowed origin = %q", cfg.HTTP.AllowedOrigin)
	}
	if cfg.Serial.Baud != 115200 || cfg.Serial.OpenSettle != 2*time.Second {
		t.Fatalf("serial = %+v", cfg.Serial)
	}
	if cfg.Session.StartSettle != 4*time.Second {
		t.Fatalf("start settle = %s", cfg.Session.StartSettle)
	}
	if cfg.Ingest.PollInterval != 10*time.Millisecond || cfg.Ingest.ErrorBackoff != 500*time.Millisecond {
		t.Fatalf("ingest = %+v", cfg.Ingest)
	}
	if cfg.Sink.Driver != sink.DriverFirestore || cfg.Sink.Firestore.Collection != "BPMReadings" || cfg.Sink.Firestore.Field != "BPM" {
		t.Fatalf("sink = %+v", cfg.Sink)
	}
	if cfg.Metrics.Namespace != "biotune" {
		t.Fatalf("namespace = %q", cfg.Metrics.Namespace)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeYAML(t, `
http:
  port: "6000"
serial:
  port: /dev/ttyUSB0
  baud: 9600
session:
  startSettle: 1s
sink:
  driver: redis
  redis:
    addr: redis:6379
`)
	t.Setenv("BRIDGE_HTTP_PORT", ":7000")
	t.Setenv("BRIDGE_SERIAL_BAUD", "57600")
	t.Setenv("BRIDGE_INGEST_POLL_INTERVAL", "25ms")
	t.Setenv("BRIDGE_REDIS_TTL", "1m")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddress() != ":7000" {
		t.Fatalf("address = %s", cfg.HTTPAddress())
	}
	if cfg.Serial.Port != "/dev/ttyUSB0" || cfg.Serial.Baud != 57600 {
		t.Fatalf("serial = %+v", cfg.Serial)
	}
	if cfg.Session.StartSettle != time.Second {
		t.Fatalf("start settle = %s", cfg.Session.StartSettle)
	}
	if cfg.Ingest.PollInterval != 25*time.Millisecond {
		t.Fatalf("poll interval = %s", cfg.Ingest.PollInterval)
	}
	if cfg.Sink.Driver != sink.DriverRedis || cfg.Sink.Redis.TTL != time.Minute {
		t.Fatalf("sink = %+v", cfg.Sink)
	}
}

func TestLoadValidates(t *testing.T) {
	cases := map[string]string{
		"missing serial port": `
sink:
  firestore:
    projectID: p
`,
		"missing firestore project": `
serial:
  disabled: true
`,
		"postgres without dsn": `
serial:
  disabled: true
sink:
  driver: postgres
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadFrom(writeYAML(t, body)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadOverridesRunBeforeValidation(t *testing.T) {
	path := writeYAML(t, `
sink:
  firestore:
    projectID: p
`)
	cfg, err := LoadFrom(path, func(c *Config) { c.Serial.Port = "/dev/ttyACM1" })
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Serial.Port != "/dev/ttyACM1" {
		t.Fatalf("port = %q", cfg.Serial.Port)
	}
}
