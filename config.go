package walkmate

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values applied by ApplyDefaults.
const (
	DefaultCheckInterval    = 5 * time.Minute
	DefaultWalkTimeout      = 30 * time.Second
	DefaultOperationTimeout = 10 * time.Second
	DefaultShutdownTimeout  = 10 * time.Second

	DefaultWalkBucket = "walkmate-walks"
	DefaultUserBucket = "walkmate-users"

	DefaultNotifySubject = "walkmate.push"
)

// KVBucketConfig names the JetStream KV buckets the engine reads and writes.
type KVBucketConfig struct {
	// WalkBucket holds walk documents keyed by walk ID.
	WalkBucket string `yaml:"walk_bucket"`

	// UserBucket holds user profiles keyed by user ID.
	UserBucket string `yaml:"user_bucket"`
}

// NotifyConfig configures outbound pairing notifications.
type NotifyConfig struct {
	// Subject is the NATS subject notification payloads are published to.
	Subject string `yaml:"subject"`
}

// Config holds the orchestrator settings.
//
// The zero value is not usable directly; call ApplyDefaults or start from
// DefaultConfig.
type Config struct {
	// CheckInterval is how often the orchestrator scans active walks for due
	// rotations.
	CheckInterval time.Duration `yaml:"check_interval"`

	// WalkTimeout bounds the rotation attempt for a single walk, including
	// the commit and notification fan-out.
	WalkTimeout time.Duration `yaml:"walk_timeout"`

	// OperationTimeout bounds individual store operations such as the active
	// walk listing.
	OperationTimeout time.Duration `yaml:"operation_timeout"`

	// ShutdownTimeout bounds how long Stop waits for an in-flight scan to
	// finish.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// KVBuckets names the storage buckets.
	KVBuckets KVBucketConfig `yaml:"kv_buckets"`

	// Notify configures the notification publisher.
	Notify NotifyConfig `yaml:"notify"`
}

// DefaultConfig returns a Config populated with default values.
func DefaultConfig() Config {
	cfg := Config{}
	cfg.ApplyDefaults()

	return cfg
}

// ApplyDefaults fills zero-valued fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.CheckInterval <= 0 {
		c.CheckInterval = DefaultCheckInterval
	}

	if c.WalkTimeout <= 0 {
		c.WalkTimeout = DefaultWalkTimeout
	}

	if c.OperationTimeout <= 0 {
		c.OperationTimeout = DefaultOperationTimeout
	}

	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}

	if c.KVBuckets.WalkBucket == "" {
		c.KVBuckets.WalkBucket = DefaultWalkBucket
	}

	if c.KVBuckets.UserBucket == "" {
		c.KVBuckets.UserBucket = DefaultUserBucket
	}

	if c.Notify.Subject == "" {
		c.Notify.Subject = DefaultNotifySubject
	}
}

// Validate reports whether the configuration is usable.
func (c *Config) Validate() error {
	if c.CheckInterval <= 0 {
		return fmt.Errorf("%w: check_interval must be positive", ErrInvalidConfig)
	}

	if c.WalkTimeout <= 0 {
		return fmt.Errorf("%w: walk_timeout must be positive", ErrInvalidConfig)
	}

	if c.WalkTimeout > c.CheckInterval {
		return fmt.Errorf("%w: walk_timeout must not exceed check_interval", ErrInvalidConfig)
	}

	if c.OperationTimeout <= 0 {
		return fmt.Errorf("%w: operation_timeout must be positive", ErrInvalidConfig)
	}

	if c.KVBuckets.WalkBucket == "" {
		return fmt.Errorf("%w: walk_bucket must not be empty", ErrInvalidConfig)
	}

	if c.KVBuckets.UserBucket == "" {
		return fmt.Errorf("%w: user_bucket must not be empty", ErrInvalidConfig)
	}

	if c.Notify.Subject == "" {
		return fmt.Errorf("%w: notify subject must not be empty", ErrInvalidConfig)
	}

	return nil
}

// LoadConfig reads a YAML configuration file, applies defaults to unset
// fields, and validates the result.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
