package storage

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/organica-ai/nishub/pkg/compression"
	"github.com/organica-ai/nishub/pkg/config"
	"github.com/organica-ai/nishub/pkg/serialization"
	"github.com/organica-ai/nishub/pkg/types"
)

// Payload framing: the first byte records whether the codec output was
// compressed, so readers survive a threshold change between restarts.
const (
	frameRaw        = 0x00
	frameCompressed = 0x01
)

// RedisStore implements NodeStore on Redis (or any Redis-compatible
// server such as Dragonfly). Records live under one key per node plus a
// list that preserves registration order; membership events go to a
// capped audit list.
type RedisStore struct {
	client     redis.UniversalClient
	codec      serialization.Codec
	compressor compression.Compressor

	keyPrefix    string
	threshold    int
	eventLogSize int
	writeTimeout time.Duration

	saveCount   atomic.Int64
	deleteCount atomic.Int64
	failedOps   atomic.Int64
}

// NewRedisStore connects to Redis and verifies the connection before
// returning. Encoding and compression follow the storage config.
func NewRedisStore(cfg config.StorageConfig, codec serialization.Codec, compressor compression.Compressor) (*RedisStore, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Redis.Addresses,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectionTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, types.ErrStorage("connect", err)
	}

	return &RedisStore{
		client:       client,
		codec:        codec,
		compressor:   compressor,
		keyPrefix:    cfg.Redis.KeyPrefix,
		threshold:    cfg.ThresholdBytes,
		eventLogSize: cfg.EventLogSize,
		writeTimeout: cfg.WriteTimeout,
	}, nil
}

func (s *RedisStore) nodeKey(nodeID types.NodeID) string {
	return s.keyPrefix + "node:" + string(nodeID)
}

func (s *RedisStore) orderKey() string {
	return s.keyPrefix + "node_order"
}

func (s *RedisStore) eventKey() string {
	return s.keyPrefix + "events"
}

func (s *RedisStore) frame(data []byte) ([]byte, error) {
	if s.threshold > 0 && len(data) >= s.threshold && len(data) >= s.compressor.MinSize() {
		compressed, err := s.compressor.Compress(data)
		if err != nil {
			return nil, err
		}
		if len(compressed) < len(data) {
			return append([]byte{frameCompressed}, compressed...), nil
		}
	}
	return append([]byte{frameRaw}, data...), nil
}

func (s *RedisStore) unframe(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, types.ErrStorage("decode", types.NewHubError(types.ErrCodeStorageError, "empty payload"))
	}
	if data[0] == frameCompressed {
		return s.compressor.Decompress(data[1:])
	}
	return data[1:], nil
}

func (s *RedisStore) SaveNode(ctx context.Context, record *types.NodeRecord) error {
	encoded, err := s.codec.EncodeNode(record)
	if err != nil {
		s.failedOps.Add(1)
		return err
	}

	payload, err := s.frame(encoded)
	if err != nil {
		s.failedOps.Add(1)
		return err
	}

	if s.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.writeTimeout)
		defer cancel()
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.nodeKey(record.ID), payload, 0)
	// LREM before RPUSH keeps the order list duplicate-free on re-save
	pipe.LRem(ctx, s.orderKey(), 0, string(record.ID))
	pipe.RPush(ctx, s.orderKey(), string(record.ID))
	if _, err := pipe.Exec(ctx); err != nil {
		s.failedOps.Add(1)
		return types.ErrStorage("save_node", err)
	}

	s.saveCount.Add(1)
	return nil
}

func (s *RedisStore) DeleteNode(ctx context.Context, nodeID types.NodeID) error {
	if s.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.writeTimeout)
		defer cancel()
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.nodeKey(nodeID))
	pipe.LRem(ctx, s.orderKey(), 0, string(nodeID))
	if _, err := pipe.Exec(ctx); err != nil {
		s.failedOps.Add(1)
		return types.ErrStorage("delete_node", err)
	}

	s.deleteCount.Add(1)
	return nil
}

func (s *RedisStore) LoadNodes(ctx context.Context) ([]*types.NodeRecord, error) {
	ids, err := s.client.LRange(ctx, s.orderKey(), 0, -1).Result()
	if err != nil {
		s.failedOps.Add(1)
		return nil, types.ErrStorage("load_nodes", err)
	}

	records := make([]*types.NodeRecord, 0, len(ids))
	for _, id := range ids {
		payload, err := s.client.Get(ctx, s.nodeKey(types.NodeID(id))).Bytes()
		if err == redis.Nil {
			// Order entry without a record: a delete raced a crash
			continue
		}
		if err != nil {
			s.failedOps.Add(1)
			return nil, types.ErrStorage("load_nodes", err)
		}

		encoded, err := s.unframe(payload)
		if err != nil {
			return nil, err
		}
		record, err := s.codec.DecodeNode(encoded)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, nil
}

func (s *RedisStore) AppendEvent(ctx context.Context, event *types.Event) error {
	encoded, err := s.codec.EncodeEvent(event)
	if err != nil {
		s.failedOps.Add(1)
		return err
	}

	payload, err := s.frame(encoded)
	if err != nil {
		s.failedOps.Add(1)
		return err
	}

	if s.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.writeTimeout)
		defer cancel()
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.eventKey(), payload)
	if s.eventLogSize > 0 {
		pipe.LTrim(ctx, s.eventKey(), int64(-s.eventLogSize), -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.failedOps.Add(1)
		return types.ErrStorage("append_event", err)
	}

	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return types.ErrStorage("ping", err)
	}
	return nil
}

func (s *RedisStore) Stats(ctx context.Context) (*StorageStats, error) {
	stats := &StorageStats{
		SaveCount:   s.saveCount.Load(),
		DeleteCount: s.deleteCount.Load(),
		FailedOps:   s.failedOps.Load(),
		Status:      "healthy",
	}

	nodeCount, err := s.client.LLen(ctx, s.orderKey()).Result()
	if err != nil {
		stats.Status = "degraded"
		return stats, nil
	}
	stats.NodeCount = nodeCount

	eventCount, err := s.client.LLen(ctx, s.eventKey()).Result()
	if err == nil {
		stats.EventCount = eventCount
	}

	return stats, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
