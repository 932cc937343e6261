package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"yqhp/mpi-simulator/pkg/types"
)

// CSVHeader is the header row of the CSV output.
var CSVHeader = []string{"Number", "Length of Collatz Sequence"}

// CSVConfig holds configuration for the CSV sink.
type CSVConfig struct {
	// FilePath is the output file path.
	FilePath string `yaml:"file_path"`
	// Delimiter is the field delimiter (default: comma).
	Delimiter rune `yaml:"delimiter"`
	// IncludeHeader writes the header row.
	IncludeHeader bool `yaml:"include_header"`
	// IncludeRank appends the producing worker rank to every row.
	IncludeRank bool `yaml:"include_rank"`
}

// DefaultCSVConfig returns the default CSV sink configuration.
func DefaultCSVConfig() *CSVConfig {
	return &CSVConfig{
		FilePath:      "output.csv",
		Delimiter:     ',',
		IncludeHeader: true,
	}
}

// CSVSink writes results to a CSV file.
type CSVSink struct {
	config *CSVConfig
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVSink creates a new CSV sink.
func NewCSVSink(config *CSVConfig) *CSVSink {
	if config == nil {
		config = DefaultCSVConfig()
	}
	if config.Delimiter == 0 {
		config.Delimiter = ','
	}
	return &CSVSink{config: config}
}

// NewCSVFactory returns a factory function for creating CSV sinks.
func NewCSVFactory() Factory {
	return func(config map[string]any) (Sink, error) {
		cfg := DefaultCSVConfig()
		cfg.FilePath = stringOption(config, "file_path", cfg.FilePath)
		if v := stringOption(config, "delimiter", ""); v != "" {
			cfg.Delimiter = rune(v[0])
		}
		cfg.IncludeHeader = boolOption(config, "include_header", cfg.IncludeHeader)
		cfg.IncludeRank = boolOption(config, "include_rank", cfg.IncludeRank)
		return NewCSVSink(cfg), nil
	}
}

// Name returns the sink name.
func (s *CSVSink) Name() string {
	return string(TypeCSV)
}

// Path returns the output file path.
func (s *CSVSink) Path() string {
	return s.config.FilePath
}

// Init creates the output file and writes the header.
func (s *CSVSink) Init(ctx context.Context, run RunInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		return fmt.Errorf("输出器已初始化")
	}

	dir := filepath.Dir(s.config.FilePath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建目录失败: %w", err)
		}
	}

	file, err := os.Create(s.config.FilePath)
	if err != nil {
		return fmt.Errorf("创建文件失败: %w", err)
	}

	s.file = file
	s.writer = csv.NewWriter(file)
	s.writer.Comma = s.config.Delimiter

	if s.config.IncludeHeader {
		header := CSVHeader
		if s.config.IncludeRank {
			header = append(append([]string{}, CSVHeader...), "Rank")
		}
		if err := s.writer.Write(header); err != nil {
			s.file.Close()
			s.file = nil
			return fmt.Errorf("写入头部失败: %w", err)
		}
	}
	return nil
}

// Write appends rows in the given order.
func (s *CSVSink) Write(ctx context.Context, rows []types.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writer == nil {
		return fmt.Errorf("输出器未初始化")
	}

	for _, row := range rows {
		record := []string{
			strconv.FormatUint(row.Number, 10),
			strconv.Itoa(row.Length),
		}
		if s.config.IncludeRank {
			record = append(record, row.Rank.String())
		}
		if err := s.writer.Write(record); err != nil {
			return fmt.Errorf("写入记录失败: %w", err)
		}
	}
	return nil
}

// Close flushes and closes the file.
func (s *CSVSink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}

	s.writer.Flush()
	flushErr := s.writer.Error()
	closeErr := s.file.Close()
	s.file = nil
	s.writer = nil

	if flushErr != nil {
		return fmt.Errorf("刷新失败: %w", flushErr)
	}
	return closeErr
}
