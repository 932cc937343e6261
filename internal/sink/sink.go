// Package sink 提供结果输出框架。
//
// 协调者收集完所有结果后，由 Manager 依次交给已启用的 Sink：
// CSV、JSON、控制台、数据库和 Redis。
package sink

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/duke-git/lancet/v2/maputil"

	"yqhp/mpi-simulator/pkg/types"
)

// Sink 定义了结果输出的接口。
type Sink interface {
	// Name 返回输出器名称。
	Name() string

	// Init 为一次运行初始化输出器。
	Init(ctx context.Context, run RunInfo) error

	// Write 写入按到达顺序排列的结果行。
	Write(ctx context.Context, rows []types.Row) error

	// Close 刷新缓冲数据并释放资源。
	Close(ctx context.Context) error
}

// RunInfo 描述一次运行。
type RunInfo struct {
	RunID     string
	Processes int
}

// Type 定义输出器类型。
type Type string

const (
	// TypeCSV 输出到 CSV 文件。
	TypeCSV Type = "csv"
	// TypeJSON 输出到 JSON 文件。
	TypeJSON Type = "json"
	// TypeConsole 输出到控制台。
	TypeConsole Type = "console"
	// TypeDatabase 写入 MySQL 或 PostgreSQL。
	TypeDatabase Type = "database"
	// TypeRedis 写入 Redis 列表。
	TypeRedis Type = "redis"
)

// Config 保存输出器的配置。
type Config struct {
	Type    Type           `yaml:"type"`
	Enabled bool           `yaml:"enabled"`
	Config  map[string]any `yaml:"config,omitempty"`
}

// Factory 创建特定类型的输出器。
type Factory func(config map[string]any) (Sink, error)

// Registry 管理输出器的注册和创建。
type Registry struct {
	factories map[Type]Factory
	mu        sync.RWMutex
}

// NewRegistry 创建一个新的输出器注册表。
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[Type]Factory),
	}
}

// Register 为指定类型注册输出器工厂。
func (r *Registry) Register(sinkType Type, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[sinkType]; exists {
		return fmt.Errorf("输出器类型已注册: %s", sinkType)
	}

	r.factories[sinkType] = factory
	return nil
}

// Create 创建指定类型的输出器。
func (r *Registry) Create(sinkType Type, config map[string]any) (Sink, error) {
	r.mu.RLock()
	factory, exists := r.factories[sinkType]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("未知的输出器类型: %s", sinkType)
	}

	return factory(config)
}

// ListTypes 返回所有已注册的输出器类型，按名称排序。
func (r *Registry) ListTypes() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := maputil.Keys(r.factories)
	slices.Sort(list)
	return list
}

// HasType 检查输出器类型是否已注册。
func (r *Registry) HasType(sinkType Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.factories[sinkType]
	return exists
}
