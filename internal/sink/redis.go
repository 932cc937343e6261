package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/duke-git/lancet/v2/slice"
	"github.com/redis/go-redis/v9"

	"yqhp/mpi-simulator/pkg/types"
)

// RedisConfig Redis 输出配置
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	BatchSize int           `yaml:"batch_size"`
	TTL       time.Duration `yaml:"ttl"`
}

// DefaultRedisConfig 返回默认 Redis 输出配置
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:      "127.0.0.1:6379",
		KeyPrefix: "mpisim:results",
		BatchSize: 500,
	}
}

// RedisSink 将结果以 "number,length" 追加到每次运行独立的列表
type RedisSink struct {
	config *RedisConfig
	client redis.UniversalClient
	owned  bool
	key    string
	mu     sync.Mutex
}

// NewRedisSink 创建 Redis 输出器，连接在 Init 时建立
func NewRedisSink(config *RedisConfig) *RedisSink {
	if config == nil {
		config = DefaultRedisConfig()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 500
	}
	return &RedisSink{config: config}
}

// NewRedisSinkWithClient 使用已有客户端创建输出器，Close 不会关闭该客户端
func NewRedisSinkWithClient(client redis.UniversalClient, config *RedisConfig) *RedisSink {
	s := NewRedisSink(config)
	s.client = client
	return s
}

// NewRedisFactory returns a factory function for creating redis sinks.
func NewRedisFactory() Factory {
	return func(config map[string]any) (Sink, error) {
		cfg := DefaultRedisConfig()
		cfg.Addr = stringOption(config, "addr", cfg.Addr)
		cfg.Password = stringOption(config, "password", cfg.Password)
		cfg.DB = intOption(config, "db", cfg.DB)
		cfg.KeyPrefix = stringOption(config, "key_prefix", cfg.KeyPrefix)
		cfg.BatchSize = intOption(config, "batch_size", cfg.BatchSize)
		cfg.TTL = durationOption(config, "ttl", cfg.TTL)
		return NewRedisSink(cfg), nil
	}
}

// Name returns the sink name.
func (s *RedisSink) Name() string {
	return string(TypeRedis)
}

// Key returns the list key of a run.
func (s *RedisSink) Key(runID string) string {
	return fmt.Sprintf("%s:%s", s.config.KeyPrefix, runID)
}

// Init 连接 Redis 并测试连接
func (s *RedisSink) Init(ctx context.Context, run RunInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		s.client = redis.NewClient(&redis.Options{
			Addr:     s.config.Addr,
			Password: s.config.Password,
			DB:       s.config.DB,
		})
		s.owned = true
	}

	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("连接 Redis 失败: %w", err)
	}

	s.key = s.Key(run.RunID)
	return nil
}

// Write 分批通过 pipeline 追加结果
func (s *RedisSink) Write(ctx context.Context, rows []types.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil {
		return fmt.Errorf("输出器未初始化")
	}

	for _, batch := range slice.Chunk(rows, s.config.BatchSize) {
		values := slice.Map(batch, func(_ int, row types.Row) any {
			return fmt.Sprintf("%d,%d", row.Number, row.Length)
		})

		pipe := s.client.Pipeline()
		pipe.RPush(ctx, s.key, values...)
		if s.config.TTL > 0 {
			pipe.Expire(ctx, s.key, s.config.TTL)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("写入 Redis 失败: %w", err)
		}
	}
	return nil
}

// Close 关闭自行建立的客户端
func (s *RedisSink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client == nil || !s.owned {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}
