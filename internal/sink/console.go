package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"yqhp/mpi-simulator/pkg/types"
)

// ConsoleSink prints the collected results as an aligned table.
type ConsoleSink struct {
	out io.Writer
	tw  *tabwriter.Writer
	run RunInfo
}

// NewConsoleSink creates a console sink writing to out, or stdout when nil.
func NewConsoleSink(out io.Writer) *ConsoleSink {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleSink{out: out}
}

// NewConsoleFactory returns a factory function for creating console sinks.
// The optional "writer" entry must hold an io.Writer.
func NewConsoleFactory() Factory {
	return func(config map[string]any) (Sink, error) {
		w, _ := config["writer"].(io.Writer)
		return NewConsoleSink(w), nil
	}
}

// Name returns the sink name.
func (s *ConsoleSink) Name() string {
	return string(TypeConsole)
}

func (s *ConsoleSink) Init(ctx context.Context, run RunInfo) error {
	s.run = run
	s.tw = tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(s.tw, "Collected outputs (run %s)\n", run.RunID)
	fmt.Fprintln(s.tw, "#\tNumber\tLength\tRank")
	return nil
}

func (s *ConsoleSink) Write(ctx context.Context, rows []types.Row) error {
	if s.tw == nil {
		return fmt.Errorf("输出器未初始化")
	}
	for _, row := range rows {
		fmt.Fprintf(s.tw, "%d\t%d\t%d\t%d\n", row.Seq, row.Number, row.Length, row.Rank)
	}
	return nil
}

func (s *ConsoleSink) Close(ctx context.Context) error {
	if s.tw == nil {
		return nil
	}
	err := s.tw.Flush()
	s.tw = nil
	return err
}
