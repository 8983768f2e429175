package sink

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"biotune/backend/services/bridge-service/internal/models"
)

// ErrUploadFailed is matched by every error a Sink returns.
var ErrUploadFailed = errors.New("sink: upload failed")

// Sink persists the latest reading of each kind to a remote store.
// Writes overwrite; no history is kept.
type Sink interface {
	Upload(ctx context.Context, r models.Reading) error
	Name() string
}

// UploadError records which sink failed and why.
type UploadError struct {
	Sink string
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("sink %s: upload failed: %v", e.Sink, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrUploadFailed) match.
func (e *UploadError) Is(target error) bool { return target == ErrUploadFailed }

func uploadFailed(sink string, err error) error {
	return &UploadError{Sink: sink, Err: err}
}

// Driver names accepted in Config.Driver.
const (
	DriverFirestore = "firestore"
	DriverRedis     = "redis"
	DriverPostgres  = "postgres"
)

// Config selects and configures the remote store.
type Config struct {
	Driver        string          `yaml:"driver" env:"BRIDGE_SINK_DRIVER"`
	QueueSize     int             `yaml:"queueSize" env:"BRIDGE_SINK_QUEUE_SIZE"`
	UploadTimeout time.Duration   `yaml:"uploadTimeout" env:"BRIDGE_SINK_UPLOAD_TIMEOUT"`
	Firestore     FirestoreConfig `yaml:"firestore"`
	Redis         RedisConfig     `yaml:"redis"`
	Postgres      PostgresConfig  `yaml:"postgres"`
}

// FirestoreConfig addresses the document overwritten with each reading.
type FirestoreConfig struct {
	ProjectID       string `yaml:"projectID" env:"BRIDGE_FIRESTORE_PROJECT_ID"`
	CredentialsFile string `yaml:"credentialsFile" env:"BRIDGE_FIRESTORE_CREDENTIALS_FILE"`
	Collection      string `yaml:"collection" env:"BRIDGE_FIRESTORE_COLLECTION"`
	Document        string `yaml:"document" env:"BRIDGE_FIRESTORE_DOCUMENT"`
	Field           string `yaml:"field" env:"BRIDGE_FIRESTORE_FIELD"`
}

// RedisConfig addresses the key overwritten with each reading.
type RedisConfig struct {
	Addr      string        `yaml:"addr" env:"BRIDGE_REDIS_ADDR"`
	Password  string        `yaml:"password" env:"BRIDGE_REDIS_PASSWORD"`
	DB        int           `yaml:"db" env:"BRIDGE_REDIS_DB"`
	KeyPrefix string        `yaml:"keyPrefix" env:"BRIDGE_REDIS_KEY_PREFIX"`
	TTL       time.Duration `yaml:"ttl" env:"BRIDGE_REDIS_TTL"`
}

// PostgresConfig addresses the table holding one row per reading kind.
type PostgresConfig struct {
	DSN   string `yaml:"dsn" env:"BRIDGE_POSTGRES_DSN"`
	Table string `yaml:"table" env:"BRIDGE_POSTGRES_TABLE"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Driver == "" {
		c.Driver = DriverFirestore
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.UploadTimeout <= 0 {
		c.UploadTimeout = 5 * time.Second
	}
	if c.Firestore.Collection == "" {
		c.Firestore.Collection = "BPMReadings"
	}
	if c.Firestore.Document == "" {
		c.Firestore.Document = "readings"
	}
	if c.Firestore.Field == "" {
		c.Firestore.Field = "BPM"
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "readings:latest"
	}
	if c.Postgres.Table == "" {
		c.Postgres.Table = "latest_readings"
	}
}

// Validate checks the fields the selected driver needs.
func (c *Config) Validate() error {
	switch c.Driver {
	case DriverFirestore:
		if c.Firestore.ProjectID == "" {
			return errors.New("firestore.projectID is required")
		}
		if strings.Contains(c.Firestore.Collection, "/") || strings.Contains(c.Firestore.Document, "/") {
			return errors.New("firestore.collection and firestore.document must be single path segments")
		}
	case DriverRedis:
		if c.Redis.Addr == "" {
			return errors.New("redis.addr is required")
		}
	case DriverPostgres:
		if c.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required")
		}
		if !validIdentifier(c.Postgres.Table) {
			return fmt.Errorf("postgres.table %q is not a plain identifier", c.Postgres.Table)
		}
	default:
		return fmt.Errorf("unknown driver %q", c.Driver)
	}
	return nil
}

func validIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
