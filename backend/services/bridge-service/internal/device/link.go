package device

import (
	"context"
	"errors"
	"time"
)

// Command is a fixed instruction written verbatim to the sensor.
type Command string

const (
	CommandStart Command = "START"
	CommandStop  Command = "STOP"
)

// Bytes returns the wire form of the command: START is newline terminated,
// STOP goes out as the bare word. Both match what the sensor firmware has
// always been sent.
func (c Command) Bytes() []byte {
	if c == CommandStop {
		return []byte(c)
	}
	return []byte(string(c) + "\n")
}

var (
	// ErrLinkUnavailable is returned by Open when the port never came up.
	ErrLinkUnavailable = errors.New("device: link unavailable")
	// ErrDeviceAbsent is returned by every operation of the degraded link.
	ErrDeviceAbsent = errors.New("device: absent")
	// ErrWriteFailed wraps command write failures.
	ErrWriteFailed = errors.New("device: write failed")
	// ErrLinkClosed means the port is gone for good; reads will not recover.
	ErrLinkClosed = errors.New("device: link closed")
	// ErrEmpty means no complete line is buffered right now.
	ErrEmpty = errors.New("device: no line buffered")
)

// Link is the serial channel to the sensor.
type Link interface {
	// ReadLine returns one complete line without its delimiter. It never
	// blocks: ErrEmpty is returned when nothing is buffered.
	ReadLine() ([]byte, error)
	// WriteCommand transmits cmd without waiting for an acknowledgement.
	WriteCommand(cmd Command) error
	// ResetInput discards buffered input so a new session starts clean.
	ResetInput() error
	// Present reports whether a physical device is attached.
	Present() bool
	Close() error
}

// Config describes how to reach the serial device.
type Config struct {
	Disabled     bool          `yaml:"disabled" env:"BRIDGE_SERIAL_DISABLED"`
	Port         string        `yaml:"port" env:"BRIDGE_SERIAL_PORT"`
	Baud         int           `yaml:"baud" env:"BRIDGE_SERIAL_BAUD"`
	OpenAttempts int           `yaml:"openAttempts" env:"BRIDGE_SERIAL_OPEN_ATTEMPTS"`
	OpenBackoff  time.Duration `yaml:"openBackoff" env:"BRIDGE_SERIAL_OPEN_BACKOFF"`
	OpenSettle   time.Duration `yaml:"openSettle" env:"BRIDGE_SERIAL_OPEN_SETTLE"`
	ReadTimeout  time.Duration `yaml:"readTimeout" env:"BRIDGE_SERIAL_READ_TIMEOUT"`
	ReadBackoff  time.Duration `yaml:"readBackoff" env:"BRIDGE_SERIAL_READ_BACKOFF"`
	LineBuffer   int           `yaml:"lineBuffer" env:"BRIDGE_SERIAL_LINE_BUFFER"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Baud <= 0 {
		c.Baud = 115200
	}
	if c.OpenAttempts <= 0 {
		c.OpenAttempts = 3
	}
	if c.OpenBackoff <= 0 {
		c.OpenBackoff = time.Second
	}
	if c.OpenSettle < 0 {
		c.OpenSettle = 0
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 100 * time.Millisecond
	}
	if c.ReadBackoff <= 0 {
		c.ReadBackoff = 500 * time.Millisecond
	}
	if c.LineBuffer <= 0 {
		c.LineBuffer = 256
	}
}

// Validate checks the fields Open depends on.
func (c *Config) Validate() error {
	if c.Disabled {
		return nil
	}
	if c.Port == "" {
		return errors.New("port is required unless serial is disabled")
	}
	return nil
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
