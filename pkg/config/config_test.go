package config

import (
	"os"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg == nil {
		t.Fatal("Expected default config to be created")
	}

	if cfg.Heartbeat.Interval != 30*time.Second {
		t.Errorf("Expected default heartbeat interval 30s, got %v", cfg.Heartbeat.Interval)
	}

	if cfg.Heartbeat.Timeout() != 90*time.Second {
		t.Errorf("Expected default heartbeat timeout 90s, got %v", cfg.Heartbeat.Timeout())
	}

	if cfg.Hub.QueueSize != 256 {
		t.Errorf("Expected default hub queue size 256, got %d", cfg.Hub.QueueSize)
	}

	if cfg.Storage.Type != "memory" {
		t.Errorf("Expected default storage type memory, got %s", cfg.Storage.Type)
	}

	if len(cfg.Pipeline.Stages) != 5 {
		t.Errorf("Expected 5 default pipeline stages, got %d", len(cfg.Pipeline.Stages))
	}
}

func TestLoadConfig(t *testing.T) {
	configContent := `
server:
  host: "127.0.0.1"
  port: 9002
  json_library: "sonic"

heartbeat:
  interval: "10s"
  timeout_multiplier: 4

hub:
  queue_size: 64
  lag_strike_limit: 2

storage:
  type: "redis"
  serialization: "msgpack"
  compression: "lz4"
  redis:
    addresses: ["localhost:6380"]
    key_prefix: "test:"

logging:
  level: "debug"
`

	tmpfile, err := os.CreateTemp("", "nishub_test_config_*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpfile.Name())

	if _, err := tmpfile.Write([]byte(configContent)); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	tmpfile.Close()

	cfg, err := LoadConfig(tmpfile.Name())
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 9002 {
		t.Errorf("Expected server port 9002, got %d", cfg.Server.Port)
	}

	if cfg.Heartbeat.Interval != 10*time.Second {
		t.Errorf("Expected heartbeat interval 10s, got %v", cfg.Heartbeat.Interval)
	}

	if cfg.Heartbeat.Timeout() != 40*time.Second {
		t.Errorf("Expected heartbeat timeout 40s, got %v", cfg.Heartbeat.Timeout())
	}

	if cfg.Hub.QueueSize != 64 {
		t.Errorf("Expected hub queue size 64, got %d", cfg.Hub.QueueSize)
	}

	if cfg.Storage.Serialization != SerializationMsgPack {
		t.Errorf("Expected serialization msgpack, got %s", cfg.Storage.Serialization)
	}

	if cfg.Storage.Redis.KeyPrefix != "test:" {
		t.Errorf("Expected key prefix 'test:', got %s", cfg.Storage.Redis.KeyPrefix)
	}
}

func TestLoadConfigWithEnvVars(t *testing.T) {
	os.Setenv("NISHUB_STORAGE_TYPE", "redis")
	os.Setenv("NISHUB_HUB_QUEUE_SIZE", "32")
	defer func() {
		os.Unsetenv("NISHUB_STORAGE_TYPE")
		os.Unsetenv("NISHUB_HUB_QUEUE_SIZE")
	}()

	configContent := `
storage:
  type: "memory"
hub:
  queue_size: 256
`

	tmpfile, err := os.CreateTemp("", "nishub_env_test_*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpfile.Name())

	if _, err := tmpfile.Write([]byte(configContent)); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	tmpfile.Close()

	cfg, err := LoadConfig(tmpfile.Name())
	if err != nil {
		t.Fatalf("Failed to load config with env vars: %v", err)
	}

	if cfg.Storage.Type != "redis" {
		t.Errorf("Expected storage type redis (from env), got %s", cfg.Storage.Type)
	}

	if cfg.Hub.QueueSize != 32 {
		t.Errorf("Expected hub queue size 32 (from env), got %d", cfg.Hub.QueueSize)
	}
}

func TestConfigValidation(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		cfg := DefaultConfig()
		if err := cfg.Validate(); err != nil {
			t.Errorf("Default config should be valid: %v", err)
		}
	})

	t.Run("InvalidPort", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Server.Port = -1
		if err := cfg.Validate(); err == nil {
			t.Error("Expected validation error for negative port")
		}

		cfg.Server.Port = 70000
		if err := cfg.Validate(); err == nil {
			t.Error("Expected validation error for port > 65535")
		}
	})

	t.Run("InvalidHeartbeatInterval", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Heartbeat.Interval = 0
		if err := cfg.Validate(); err == nil {
			t.Error("Expected validation error for zero heartbeat interval")
		}
	})

	t.Run("InvalidTimeoutMultiplier", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Heartbeat.TimeoutMultiplier = 0
		if err := cfg.Validate(); err == nil {
			t.Error("Expected validation error for zero timeout multiplier")
		}
	})

	t.Run("InvalidQueueSize", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Hub.QueueSize = 0
		if err := cfg.Validate(); err == nil {
			t.Error("Expected validation error for zero queue size")
		}
	})

	t.Run("InvalidStorageType", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Storage.Type = "cassandra"
		if err := cfg.Validate(); err == nil {
			t.Error("Expected validation error for unknown storage type")
		}
	})

	t.Run("InvalidSerializationType", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Storage.Serialization = "xml"
		if err := cfg.Validate(); err == nil {
			t.Error("Expected validation error for unknown serialization type")
		}
	})

	t.Run("InvalidCompressionType", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Storage.Compression = "deflate9"
		if err := cfg.Validate(); err == nil {
			t.Error("Expected validation error for unknown compression type")
		}
	})

	t.Run("PipelineStageWithoutURL", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Pipeline.Enabled = true
		cfg.Pipeline.Stages = []PipelineStage{{Name: "kan"}}
		if err := cfg.Validate(); err == nil {
			t.Error("Expected validation error for stage without url")
		}
	})

	t.Run("InvalidJSONLibrary", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Server.JSONLibrary = "jsoniter"
		if err := cfg.Validate(); err == nil {
			t.Error("Expected validation error for unknown json library")
		}
	})
}
