package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SerializationType defines the stored-record serialization format
type SerializationType string

const (
	SerializationCBOR    SerializationType = "cbor"
	SerializationJSON    SerializationType = "json"
	SerializationMsgPack SerializationType = "msgpack"
)

// CompressionType defines the compression algorithm for stored payloads
type CompressionType string

const (
	CompressionNone   CompressionType = "none"
	CompressionZstd   CompressionType = "zstd"
	CompressionLZ4    CompressionType = "lz4"
	CompressionSnappy CompressionType = "snappy"
	CompressionGzip   CompressionType = "gzip"
	CompressionBrotli CompressionType = "brotli"
)

// ServerConfig holds HTTP/WebSocket server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host" json:"host"`
	Port            int           `mapstructure:"port" yaml:"port" json:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" json:"idle_timeout"`
	EnableCORS      bool          `mapstructure:"enable_cors" yaml:"enable_cors" json:"enable_cors"`
	EnableLogger    bool          `mapstructure:"enable_logger" yaml:"enable_logger" json:"enable_logger"`
	EnableRecover   bool          `mapstructure:"enable_recover" yaml:"enable_recover" json:"enable_recover"`
	EnableRequestID bool          `mapstructure:"enable_request_id" yaml:"enable_request_id" json:"enable_request_id"`
	JSONLibrary     string        `mapstructure:"json_library" yaml:"json_library" json:"json_library"` // "standard" or "sonic"
}

// HeartbeatConfig holds heartbeat monitoring settings. Both the tick interval
// and the timeout multiplier are configurable; the defaults (30s tick, 3x
// timeout) tolerate jitter without flapping.
type HeartbeatConfig struct {
	Interval          time.Duration `mapstructure:"interval" yaml:"interval" json:"interval"`
	TimeoutMultiplier int           `mapstructure:"timeout_multiplier" yaml:"timeout_multiplier" json:"timeout_multiplier"`
}

// Timeout returns the staleness threshold after which a node is demoted
func (h HeartbeatConfig) Timeout() time.Duration {
	return h.Interval * time.Duration(h.TimeoutMultiplier)
}

// HubConfig holds broadcast hub settings
type HubConfig struct {
	QueueSize      int `mapstructure:"queue_size" yaml:"queue_size" json:"queue_size"`
	LagStrikeLimit int `mapstructure:"lag_strike_limit" yaml:"lag_strike_limit" json:"lag_strike_limit"`
}

// RedisConfig holds Redis-specific settings for the persistence mirror
type RedisConfig struct {
	Addresses []string `mapstructure:"addresses" yaml:"addresses" json:"addresses"`
	Username  string   `mapstructure:"username" yaml:"username" json:"username"`
	Password  string   `mapstructure:"password" yaml:"password" json:"password"`
	DB        int      `mapstructure:"db" yaml:"db" json:"db"`
	KeyPrefix string   `mapstructure:"key_prefix" yaml:"key_prefix" json:"key_prefix"`
}

// StorageConfig holds persistence settings
type StorageConfig struct {
	Type              string            `mapstructure:"type" yaml:"type" json:"type"` // "memory" or "redis"
	Redis             RedisConfig       `mapstructure:"redis" yaml:"redis" json:"redis"`
	Serialization     SerializationType `mapstructure:"serialization" yaml:"serialization" json:"serialization"`
	Compression       CompressionType   `mapstructure:"compression" yaml:"compression" json:"compression"`
	CompressionLevel  int               `mapstructure:"compression_level" yaml:"compression_level" json:"compression_level"`
	ThresholdBytes    int               `mapstructure:"threshold_bytes" yaml:"threshold_bytes" json:"threshold_bytes"`
	EventLogSize      int               `mapstructure:"event_log_size" yaml:"event_log_size" json:"event_log_size"`
	ConnectionTimeout time.Duration     `mapstructure:"connection_timeout" yaml:"connection_timeout" json:"connection_timeout"`
	WriteTimeout      time.Duration     `mapstructure:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
}

// PipelineStage names one advisory validation collaborator
type PipelineStage struct {
	Name    string        `mapstructure:"name" yaml:"name" json:"name"`
	URL     string        `mapstructure:"url" yaml:"url" json:"url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// PipelineConfig holds the advisory validation chain settings
type PipelineConfig struct {
	Enabled bool            `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Stages  []PipelineStage `mapstructure:"stages" yaml:"stages" json:"stages"`
}

// MonitoringConfig holds metrics settings
type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	MetricsPath string `mapstructure:"metrics_path" yaml:"metrics_path" json:"metrics_path"`
	Namespace   string `mapstructure:"namespace" yaml:"namespace" json:"namespace"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
	Output string `mapstructure:"output" yaml:"output" json:"output"`
}

// Config represents the main configuration structure
type Config struct {
	Server     ServerConfig     `mapstructure:"server" yaml:"server" json:"server"`
	Heartbeat  HeartbeatConfig  `mapstructure:"heartbeat" yaml:"heartbeat" json:"heartbeat"`
	Hub        HubConfig        `mapstructure:"hub" yaml:"hub" json:"hub"`
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage" json:"storage"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline" yaml:"pipeline" json:"pipeline"`
	Monitoring MonitoringConfig `mapstructure:"monitoring" yaml:"monitoring" json:"monitoring"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging" json:"logging"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8002,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			EnableCORS:      true,
			EnableLogger:    true,
			EnableRecover:   true,
			EnableRequestID: true,
			JSONLibrary:     "standard",
		},
		Heartbeat: HeartbeatConfig{
			Interval:          30 * time.Second,
			TimeoutMultiplier: 3,
		},
		Hub: HubConfig{
			QueueSize:      256,
			LagStrikeLimit: 3,
		},
		Storage: StorageConfig{
			Type: "memory",
			Redis: RedisConfig{
				Addresses: []string{"localhost:6379"},
				DB:        0,
				KeyPrefix: "nishub:",
			},
			Serialization:     SerializationCBOR,
			Compression:       CompressionZstd,
			CompressionLevel:  3,
			ThresholdBytes:    256,
			EventLogSize:      1024,
			ConnectionTimeout: 5 * time.Second,
			WriteTimeout:      3 * time.Second,
		},
		Pipeline: PipelineConfig{
			Enabled: false,
			Stages: []PipelineStage{
				{Name: "laplace", URL: "http://localhost:8101/validate", Timeout: 2 * time.Second},
				{Name: "consciousness", URL: "http://localhost:8102/validate", Timeout: 2 * time.Second},
				{Name: "kan", URL: "http://localhost:8103/validate", Timeout: 2 * time.Second},
				{Name: "pinn", URL: "http://localhost:8104/validate", Timeout: 2 * time.Second},
				{Name: "safety", URL: "http://localhost:8105/validate", Timeout: 2 * time.Second},
			},
		},
		Monitoring: MonitoringConfig{
			Enabled:     true,
			MetricsPath: "/metrics",
			Namespace:   "nishub",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// LoadConfig loads configuration from file with environment overrides
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	config := DefaultConfig()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/nishub")
	}

	v.SetEnvPrefix("NISHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Heartbeat.Interval <= 0 {
		return fmt.Errorf("heartbeat interval must be greater than 0")
	}

	if c.Heartbeat.TimeoutMultiplier < 1 {
		return fmt.Errorf("heartbeat timeout multiplier must be at least 1")
	}

	if c.Hub.QueueSize <= 0 {
		return fmt.Errorf("hub queue size must be greater than 0")
	}

	if c.Hub.LagStrikeLimit <= 0 {
		return fmt.Errorf("hub lag strike limit must be greater than 0")
	}

	switch c.Storage.Type {
	case "memory", "redis":
		// Valid
	default:
		return fmt.Errorf("invalid storage type: %s", c.Storage.Type)
	}

	switch c.Storage.Serialization {
	case SerializationCBOR, SerializationJSON, SerializationMsgPack:
		// Valid
	default:
		return fmt.Errorf("invalid serialization type: %s", c.Storage.Serialization)
	}

	switch c.Storage.Compression {
	case CompressionNone, CompressionZstd, CompressionLZ4, CompressionSnappy, CompressionGzip, CompressionBrotli:
		// Valid
	default:
		return fmt.Errorf("invalid compression type: %s", c.Storage.Compression)
	}

	if c.Pipeline.Enabled {
		for i, stage := range c.Pipeline.Stages {
			if stage.Name == "" {
				return fmt.Errorf("pipeline stage %d has no name", i)
			}
			if stage.URL == "" {
				return fmt.Errorf("pipeline stage %q has no url", stage.Name)
			}
		}
	}

	switch c.Server.JSONLibrary {
	case "standard", "sonic":
		// Valid
	default:
		return fmt.Errorf("invalid json library: %s", c.Server.JSONLibrary)
	}

	return nil
}
