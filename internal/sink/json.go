package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"yqhp/mpi-simulator/pkg/types"
)

// JSONDocument is the document written by the JSON sink.
type JSONDocument struct {
	RunID       string      `json:"run_id"`
	Processes   int         `json:"processes"`
	GeneratedAt time.Time   `json:"generated_at"`
	Count       int         `json:"count"`
	Results     []types.Row `json:"results"`
}

// JSONConfig holds configuration for the JSON sink.
type JSONConfig struct {
	FilePath string `yaml:"file_path"`
	Pretty   bool   `yaml:"pretty"`
}

// DefaultJSONConfig returns the default JSON sink configuration.
func DefaultJSONConfig() *JSONConfig {
	return &JSONConfig{
		FilePath: "output.json",
		Pretty:   true,
	}
}

// JSONSink writes one JSON document per run. Rows are buffered until Close.
type JSONSink struct {
	config *JSONConfig
	doc    *JSONDocument
	mu     sync.Mutex
}

// NewJSONSink creates a new JSON sink.
func NewJSONSink(config *JSONConfig) *JSONSink {
	if config == nil {
		config = DefaultJSONConfig()
	}
	return &JSONSink{config: config}
}

// NewJSONFactory returns a factory function for creating JSON sinks.
func NewJSONFactory() Factory {
	return func(config map[string]any) (Sink, error) {
		cfg := DefaultJSONConfig()
		cfg.FilePath = stringOption(config, "file_path", cfg.FilePath)
		cfg.Pretty = boolOption(config, "pretty", cfg.Pretty)
		return NewJSONSink(cfg), nil
	}
}

// Name returns the sink name.
func (s *JSONSink) Name() string {
	return string(TypeJSON)
}

// Init starts a new document for run.
func (s *JSONSink) Init(ctx context.Context, run RunInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc != nil {
		return fmt.Errorf("输出器已初始化")
	}
	s.doc = &JSONDocument{
		RunID:       run.RunID,
		Processes:   run.Processes,
		GeneratedAt: time.Now().UTC(),
		Results:     make([]types.Row, 0),
	}
	return nil
}

// Write buffers rows.
func (s *JSONSink) Write(ctx context.Context, rows []types.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil {
		return fmt.Errorf("输出器未初始化")
	}
	s.doc.Results = append(s.doc.Results, rows...)
	return nil
}

// Close encodes the document and writes the file.
func (s *JSONSink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc == nil {
		return nil
	}
	doc := s.doc
	s.doc = nil
	doc.Count = len(doc.Results)

	var (
		data []byte
		err  error
	)
	if s.config.Pretty {
		data, err = sonic.MarshalIndent(doc, "", "  ")
	} else {
		data, err = sonic.Marshal(doc)
	}
	if err != nil {
		return fmt.Errorf("序列化结果失败: %w", err)
	}

	dir := filepath.Dir(s.config.FilePath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建目录失败: %w", err)
		}
	}
	if err := os.WriteFile(s.config.FilePath, data, 0644); err != nil {
		return fmt.Errorf("写入文件失败: %w", err)
	}
	return nil
}
