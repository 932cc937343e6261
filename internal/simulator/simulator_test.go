package simulator

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"yqhp/mpi-simulator/internal/config"
	"yqhp/mpi-simulator/internal/workload"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Output.File = filepath.Join(t.TempDir(), "output.csv")
	cfg.Output.Console = false
	return cfg
}

func readCSV(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestNew_RejectsTooFewProcesses(t *testing.T) {
	cfg := testConfig(t)
	cfg.Simulation.Processes = 1

	_, err := New(cfg)
	assert.ErrorIs(t, err, config.ErrTooFewProcesses)
}

func TestRun_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	cfg.Simulation.Seed = 2024
	cfg.Simulation.MaxDelay = 2 * time.Millisecond

	sim, err := New(cfg)
	require.NoError(t, err)

	report, err := sim.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, report.Inputs, 20)
	assert.Len(t, report.Results, 20)
	assert.Equal(t, uint64(2024), report.Seed)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 20, report.Metrics.Results)
	assert.Len(t, report.Metrics.Workers, 3)
	assert.Equal(t, report.Fabric.Sent, report.Fabric.Delivered)

	lines := readCSV(t, cfg.Output.File)
	require.Len(t, lines, 21)
	assert.Equal(t, "Number,Length of Collatz Sequence", lines[0])

	want := make([]string, 0, 20)
	for _, x := range report.Inputs {
		want = append(want, rowOf(x))
	}
	got := append([]string(nil), lines[1:]...)
	sort.Strings(want)
	sort.Strings(got)
	assert.Equal(t, want, got)

	for i, r := range report.Results {
		assert.Equal(t, rowOf(r.Item), lines[i+1], "csv keeps arrival order")
	}
}

func rowOf(x uint64) string {
	return fmt.Sprintf("%d,%d", x, workload.CollatzLength(x))
}

func TestRun_SeedIsReproducible(t *testing.T) {
	cfg := testConfig(t)
	cfg.Simulation.Seed = 99
	cfg.Output.File = ""

	a, err := New(cfg)
	require.NoError(t, err)
	b, err := New(cfg)
	require.NoError(t, err)

	ia, _, err := a.Inputs()
	require.NoError(t, err)
	ib, _, err := b.Inputs()
	require.NoError(t, err)
	assert.Equal(t, ia, ib)
}

func TestRun_ExplicitInputsTwoProcesses(t *testing.T) {
	cfg := testConfig(t)
	cfg.Simulation.Processes = 2
	cfg.Simulation.Inputs = []uint64{27, 1, 7, 2, 19, 14}

	sim, err := New(cfg)
	require.NoError(t, err)
	report, err := sim.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Number,Length of Collatz Sequence",
		"27,111", "1,0", "7,16", "2,1", "19,20", "14,17",
	}, readCSV(t, cfg.Output.File))
	assert.Equal(t, uint64(0), report.Seed)
}

func TestRun_ZeroInputs(t *testing.T) {
	cfg := testConfig(t)
	cfg.Simulation.InputCount = 0

	sim, err := New(cfg)
	require.NoError(t, err)
	report, err := sim.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, report.Results)
	assert.Equal(t, []string{"Number,Length of Collatz Sequence"}, readCSV(t, cfg.Output.File))
	for _, w := range report.Metrics.Workers {
		assert.True(t, w.Terminated)
		assert.Zero(t, w.Dispatched)
	}
}

func TestRun_ConsoleAndJSON(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.Console = true
	jsonPath := filepath.Join(t.TempDir(), "out.json")
	cfg.Output.Sinks = []config.SinkConfig{
		{Type: "json", Enabled: true, Config: map[string]any{"file_path": jsonPath}},
		{Type: "redis", Enabled: false},
	}
	cfg.Simulation.Inputs = []uint64{27}

	var console bytes.Buffer
	core, logs := observer.New(zap.InfoLevel)
	sim, err := New(cfg, WithConsoleWriter(&console), WithLogger(zap.New(core)))
	require.NoError(t, err)

	report, err := sim.Run(context.Background())
	require.NoError(t, err)

	assert.Contains(t, console.String(), report.RunID)
	assert.Contains(t, console.String(), "111")

	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), report.RunID)

	assert.Equal(t, 1, logs.FilterMessage("run finished").Len())
}

func TestRun_CustomWorkload(t *testing.T) {
	cfg := testConfig(t)
	cfg.Simulation.Inputs = []uint64{3, 4}

	sim, err := New(cfg, WithWorkload(func(n uint64) int { return int(n * 10) }))
	require.NoError(t, err)
	report, err := sim.Run(context.Background())
	require.NoError(t, err)

	for _, r := range report.Results {
		assert.Equal(t, int(r.Item*10), r.Metric)
	}
}

func TestRun_CancelledWritesNothing(t *testing.T) {
	cfg := testConfig(t)
	cfg.Simulation.MaxDelay = time.Hour

	sim, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = sim.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, statErr := os.Stat(cfg.Output.File)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_UnknownSinkType(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.Sinks = []config.SinkConfig{{Type: "kafka", Enabled: true}}

	sim, err := New(cfg)
	require.NoError(t, err)
	_, err = sim.Run(context.Background())
	assert.Error(t, err)
}
