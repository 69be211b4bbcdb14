package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/searchktools/http1-server/core/cors"
	"github.com/searchktools/http1-server/core/middleware"
	"github.com/searchktools/http1-server/core/pools"
	"github.com/searchktools/http1-server/logging"
)

// EnvPrefix prefixes every environment variable, e.g. HTTP1_PORT.
const EnvPrefix = "HTTP1"

// Config holds all application configuration.
type Config struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Workers   int    `yaml:"workers"`
	QueueSize int    `yaml:"queue_size" split_words:"true"`

	DocumentRoot string `yaml:"document_root" split_words:"true"`
	// UploadDir is relative to DocumentRoot.
	UploadDir  string `yaml:"upload_dir" split_words:"true"`
	ServerName string `yaml:"server_name" split_words:"true"`

	SubmitTimeout      time.Duration `yaml:"submit_timeout" split_words:"true"`
	AcceptPoll         time.Duration `yaml:"accept_poll" split_words:"true"`
	IdleTimeout        time.Duration `yaml:"idle_timeout" split_words:"true"`
	MaxRequestsPerConn int           `yaml:"max_requests_per_conn" envconfig:"MAX_REQUESTS_PER_CONN"`
	ShutdownGrace      time.Duration `yaml:"shutdown_grace" split_words:"true"`
	RetryAfter         time.Duration `yaml:"retry_after" split_words:"true"`

	WriteChunkThreshold int `yaml:"write_chunk_threshold" split_words:"true"`
	WriteChunkSize      int `yaml:"write_chunk_size" split_words:"true"`

	StatusInterval time.Duration `yaml:"status_interval" split_words:"true"`
	PruneInterval  time.Duration `yaml:"prune_interval" split_words:"true"`
	PruneAfter     time.Duration `yaml:"prune_after" split_words:"true"`

	RateLimit middleware.RateLimitConfig `yaml:"rate_limit" split_words:"true"`
	Limits    middleware.SizeLimitConfig `yaml:"limits"`
	CORS      cors.Policy                `yaml:"cors"`
	Log       logging.Options            `yaml:"log"`
	GC        pools.GCConfig             `yaml:"gc"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Host:                "127.0.0.1",
		Port:                8080,
		Workers:             10,
		QueueSize:           32,
		DocumentRoot:        "resources",
		UploadDir:           "uploads",
		ServerName:          "Multi-threaded HTTP Server",
		SubmitTimeout:       100 * time.Millisecond,
		AcceptPoll:          time.Second,
		IdleTimeout:         30 * time.Second,
		MaxRequestsPerConn:  100,
		ShutdownGrace:       5 * time.Second,
		RetryAfter:          5 * time.Second,
		WriteChunkThreshold: 1 << 20,
		WriteChunkSize:      8 << 10,
		StatusInterval:      30 * time.Second,
		PruneInterval:       10 * time.Minute,
		PruneAfter:          24 * time.Hour,
		RateLimit:           middleware.DefaultRateLimitConfig(),
		Limits:              middleware.DefaultSizeLimitConfig(),
		CORS:                cors.DefaultPolicy(),
		Log:                 logging.DefaultOptions(),
		GC:                  pools.DefaultGCConfig(),
	}
}

// Load returns the defaults overlaid with the YAML file at path (if
// path is not empty) and then with the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decodeYAML(data); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decodeYAML(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides fields from HTTP1_* environment variables. Unset
// variables leave fields untouched.
func (c *Config) ApplyEnv() error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	return nil
}

// Addr returns host:port.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Host == "":
		return errors.New("host must not be empty")
	case c.Port < 0 || c.Port > 65535:
		return fmt.Errorf("port %d out of range", c.Port)
	case c.Workers <= 0:
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	case c.QueueSize <= 0:
		return fmt.Errorf("queue size must be positive, got %d", c.QueueSize)
	case c.DocumentRoot == "":
		return errors.New("document root must not be empty")
	case c.IdleTimeout <= 0:
		return errors.New("idle timeout must be positive")
	case c.AcceptPoll <= 0:
		return errors.New("accept poll interval must be positive")
	case c.MaxRequestsPerConn <= 0:
		return errors.New("max requests per connection must be positive")
	case c.WriteChunkSize <= 0 || c.WriteChunkThreshold <= 0:
		return errors.New("write chunk sizes must be positive")
	}

	rl := c.RateLimit
	if rl.BurstLimit <= 0 || rl.BurstWindow <= 0 || rl.RequestsPerMinute <= 0 ||
		rl.RequestsPerHour <= 0 || rl.BlockDuration <= 0 {
		return errors.New("rate limits must be positive")
	}
	l := c.Limits
	if l.MaxHeaderSize <= 0 || l.MaxBodySize <= 0 || l.MaxURLLength <= 0 ||
		l.MaxHeaderCount <= 0 || l.MaxHeaderNameLength <= 0 || l.MaxHeaderValueLength <= 0 {
		return errors.New("size limits must be positive")
	}
	if err := c.GC.Validate(); err != nil {
		return err
	}
	return c.Log.Validate()
}
