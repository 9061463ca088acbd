package storage

import (
	"fmt"

	"github.com/organica-ai/nishub/pkg/compression"
	"github.com/organica-ai/nishub/pkg/config"
	"github.com/organica-ai/nishub/pkg/serialization"
)

// NewStore builds the configured NodeStore backend.
func NewStore(cfg config.StorageConfig) (NodeStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(cfg.EventLogSize), nil

	case "redis":
		codecFactory, err := serialization.NewCodecFactory()
		if err != nil {
			return nil, err
		}
		codec, err := codecFactory.Get(cfg.Serialization)
		if err != nil {
			return nil, err
		}

		compressorFactory, err := compression.NewCompressorFactory(cfg.CompressionLevel)
		if err != nil {
			return nil, err
		}
		compressor, err := compressorFactory.Get(cfg.Compression)
		if err != nil {
			return nil, err
		}

		return NewRedisStore(cfg, codec, compressor)

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
