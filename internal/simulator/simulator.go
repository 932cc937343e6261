// Package simulator wires one run together: it builds the input batch and
// the channel fabric, starts the coordinator on rank 0 and a worker on every
// other rank, waits for all of them and delivers the results to the sinks.
package simulator

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/duke-git/lancet/v2/slice"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"yqhp/mpi-simulator/internal/config"
	"yqhp/mpi-simulator/internal/coordinator"
	"yqhp/mpi-simulator/internal/fabric"
	"yqhp/mpi-simulator/internal/inputs"
	"yqhp/mpi-simulator/internal/metrics"
	"yqhp/mpi-simulator/internal/sink"
	"yqhp/mpi-simulator/internal/worker"
	"yqhp/mpi-simulator/internal/workload"
	"yqhp/mpi-simulator/pkg/types"
)

// Message is the message type exchanged in a Collatz run.
type Message = types.Message[uint64, int]

// Report describes a finished run.
type Report struct {
	RunID     string
	Processes int
	Seed      uint64
	Inputs    []uint64
	Results   []types.CollatzResult
	Metrics   metrics.Summary
	Fabric    fabric.Stats
	Elapsed   time.Duration
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithLogger sets the logger. Defaults to zap.NewNop.
func WithLogger(l *zap.Logger) Option {
	return func(s *Simulator) { s.logger = l }
}

// WithConsoleWriter redirects the console sink.
func WithConsoleWriter(w io.Writer) Option {
	return func(s *Simulator) { s.console = w }
}

// WithSinks appends sinks after the configured ones.
func WithSinks(sinks ...sink.Sink) Option {
	return func(s *Simulator) { s.extra = append(s.extra, sinks...) }
}

// WithRegistry replaces the sink registry.
func WithRegistry(r *sink.Registry) Option {
	return func(s *Simulator) { s.registry = r }
}

// WithWorkload replaces the Collatz length function.
func WithWorkload(fn workload.Func[uint64, int]) Option {
	return func(s *Simulator) { s.compute = fn }
}

// Simulator runs coordinator/worker simulations.
type Simulator struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *sink.Registry
	console  io.Writer
	extra    []sink.Sink
	compute  workload.Func[uint64, int]
}

// New validates cfg and creates a simulator.
func New(cfg *config.Config, opts ...Option) (*Simulator, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Simulator{
		cfg:     cfg.Clone(),
		logger:  zap.NewNop(),
		compute: workload.Collatz,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.registry == nil {
		registry, err := sink.NewDefaultRegistry()
		if err != nil {
			return nil, err
		}
		s.registry = registry
	}
	return s, nil
}

// Inputs returns the input batch and the seed it was drawn with. An
// explicit list is returned unchanged with seed 0.
func (s *Simulator) Inputs() ([]uint64, uint64, error) {
	sim := s.cfg.Simulation
	if len(sim.Inputs) > 0 {
		return sim.Inputs, 0, nil
	}

	seed := sim.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	items, err := inputs.Generate(sim.InputCount, sim.InputMin, sim.InputMax, seed)
	if err != nil {
		return nil, 0, err
	}
	return items, seed, nil
}

func (s *Simulator) sinks() (*sink.Manager, error) {
	m := sink.NewManager(s.registry, s.logger.Named("sink"))
	out := s.cfg.Output

	configs := make([]sink.Config, 0, len(out.Sinks)+2)
	if out.Console {
		c := sink.Config{Type: sink.TypeConsole, Enabled: true}
		if s.console != nil {
			c.Config = map[string]any{"writer": s.console}
		}
		configs = append(configs, c)
	}
	if out.File != "" {
		configs = append(configs, sink.Config{
			Type:    sink.TypeCSV,
			Enabled: true,
			Config:  map[string]any{"file_path": out.File},
		})
	}
	configs = append(configs, slice.Map(out.Sinks, func(_ int, sc config.SinkConfig) sink.Config {
		return sink.Config{Type: sink.Type(sc.Type), Enabled: sc.Enabled, Config: sc.Config}
	})...)

	for _, c := range configs {
		if err := m.AddFromConfig(c); err != nil {
			return nil, err
		}
	}
	for _, extra := range s.extra {
		m.Add(extra)
	}
	return m, nil
}

// Run executes one simulation. On error no sink is written.
func (s *Simulator) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	processes := s.cfg.Simulation.Processes

	items, seed, err := s.Inputs()
	if err != nil {
		return nil, err
	}
	manager, err := s.sinks()
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := s.logger.With(zap.String("run_id", runID))
	logger.Info("run started",
		zap.Int("processes", processes),
		zap.Int("inputs", len(items)),
		zap.Uint64("seed", seed))

	f, err := fabric.New[Message](processes)
	if err != nil {
		return nil, err
	}

	recorder := metrics.NewRecorder[uint64, int]()
	run := sink.RunInfo{RunID: runID, Processes: processes}
	deliver := coordinator.SinkFunc[uint64, int](func(ctx context.Context, results []types.CollatzResult) error {
		return manager.Deliver(ctx, run, types.RowsFromResults(results))
	})

	coordPort, err := f.Endpoint(types.CoordinatorRank)
	if err != nil {
		return nil, err
	}
	coord, err := coordinator.New[uint64, int](coordPort, coordinator.Config[uint64, int]{
		Items:    items,
		Workers:  types.WorkerRanks(processes),
		Observer: recorder,
		Sink:     deliver,
		Logger:   logger.Named("coordinator"),
	})
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, rank := range types.WorkerRanks(processes) {
		port, err := f.Endpoint(rank)
		if err != nil {
			return nil, err
		}
		w, err := worker.New[uint64, int](port, s.compute, worker.Config{
			MaxDelay: s.cfg.Simulation.MaxDelay,
			Logger:   logger.Named("worker"),
		})
		if err != nil {
			return nil, err
		}
		g.Go(func() error { return w.Run(gctx) })
	}

	var results []types.CollatzResult
	g.Go(func() error {
		var err error
		results, err = coord.Run(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}

	report := &Report{
		RunID:     runID,
		Processes: processes,
		Seed:      seed,
		Inputs:    items,
		Results:   results,
		Metrics:   recorder.Summary(),
		Fabric:    f.Stats(),
		Elapsed:   time.Since(start),
	}
	report.Metrics.Log(logger)
	logger.Info("run finished",
		zap.Int("results", len(results)),
		zap.Int64("messages", report.Fabric.Sent),
		zap.Duration("elapsed", report.Elapsed))
	return report, nil
}
