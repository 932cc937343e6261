package coordinator

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"yqhp/mpi-simulator/internal/fabric"
	"yqhp/mpi-simulator/pkg/types"
)

var (
	// ErrUnexpectedResult is returned when a result arrives from a rank that
	// holds no outstanding item.
	ErrUnexpectedResult = errors.New("result from a worker with no outstanding item")

	// ErrUnexpectedMessage is returned when rank 0 receives anything but a result.
	ErrUnexpectedMessage = errors.New("coordinator received a non-result message")

	// ErrNoWorkers is returned when a coordinator is created without workers.
	ErrNoWorkers = errors.New("coordinator needs at least one worker")
)

// Config holds the coordinator settings for one run.
type Config[T, U any] struct {
	// Items is the work queue, dispatched front to back.
	Items []T

	// Workers lists the worker ranks in fan-out order.
	Workers []types.Rank

	// Observer receives protocol events. Optional.
	Observer Observer[T, U]

	// Sink receives the results after the drain. Optional.
	Sink ResultSink[T, U]

	// Logger defaults to zap.NewNop.
	Logger *zap.Logger
}

// Stats summarizes a finished run from the coordinator's point of view.
type Stats struct {
	Dispatched int
	Results    int
	Terminated int
}

// Coordinator runs the rank 0 side of the protocol.
// It is single use: Run may be called once.
type Coordinator[T, U any] struct {
	port     fabric.Port[types.Message[T, U]]
	workers  []types.Rank
	observer Observer[T, U]
	sink     ResultSink[T, U]
	logger   *zap.Logger

	queue       []T
	outstanding map[types.Rank]bool
	results     []types.Result[T, U]
	stats       Stats
}

// New creates a coordinator bound to port, which must be rank 0.
func New[T, U any](port fabric.Port[types.Message[T, U]], cfg Config[T, U]) (*Coordinator[T, U], error) {
	if port == nil {
		return nil, errors.New("coordinator port is nil")
	}
	if !port.Rank().IsCoordinator() {
		return nil, fmt.Errorf("coordinator must run on rank %d, got %d", types.CoordinatorRank, port.Rank())
	}
	if len(cfg.Workers) == 0 {
		return nil, ErrNoWorkers
	}

	seen := make(map[types.Rank]bool, len(cfg.Workers))
	for _, w := range cfg.Workers {
		if w.IsCoordinator() || seen[w] {
			return nil, fmt.Errorf("invalid worker rank %d", w)
		}
		seen[w] = true
	}

	observer := cfg.Observer
	if observer == nil {
		observer = NopObserver[T, U]{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Coordinator[T, U]{
		port:        port,
		workers:     slices.Clone(cfg.Workers),
		observer:    observer,
		sink:        cfg.Sink,
		logger:      logger.With(zap.Int("rank", int(types.CoordinatorRank))),
		queue:       slices.Clone(cfg.Items),
		outstanding: make(map[types.Rank]bool, len(cfg.Workers)),
		results:     make([]types.Result[T, U], 0, len(cfg.Items)),
	}, nil
}

// Run executes fan-out, steady state, drain and finalize. It returns the
// results in arrival order.
func (c *Coordinator[T, U]) Run(ctx context.Context) ([]types.Result[T, U], error) {
	c.logger.Debug("coordinator started",
		zap.Int("items", len(c.queue)),
		zap.Int("workers", len(c.workers)))

	// Initial fan-out: every worker gets an item or, once the queue is empty, its token.
	for _, w := range c.workers {
		if len(c.queue) > 0 {
			if err := c.dispatch(w); err != nil {
				return nil, err
			}
			continue
		}
		if err := c.terminate(w); err != nil {
			return nil, err
		}
	}

	// Steady state: the producer of each result gets the next item.
	for len(c.queue) > 0 {
		res, err := c.receive(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.dispatch(res.Producer); err != nil {
			return nil, err
		}
	}

	// Drain.
	for len(c.outstanding) > 0 {
		res, err := c.receive(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.terminate(res.Producer); err != nil {
			return nil, err
		}
	}

	c.logger.Debug("coordinator drained",
		zap.Int("results", len(c.results)),
		zap.Int("dispatched", c.stats.Dispatched))

	if c.sink != nil {
		if err := c.sink.Collect(ctx, c.results); err != nil {
			return c.results, fmt.Errorf("collect results: %w", err)
		}
	}
	return c.results, nil
}

// Stats returns the coordinator counters.
func (c *Coordinator[T, U]) Stats() Stats {
	return c.stats
}

// Outstanding returns the number of workers holding an unacknowledged item.
func (c *Coordinator[T, U]) Outstanding() int {
	return len(c.outstanding)
}

func (c *Coordinator[T, U]) dispatch(worker types.Rank) error {
	item := c.queue[0]
	if err := c.port.Send(types.WorkMessage[T, U](item), worker); err != nil {
		return fmt.Errorf("dispatch to worker %d: %w", worker, err)
	}
	c.queue = c.queue[1:]
	c.outstanding[worker] = true
	c.stats.Dispatched++
	c.observer.OnDispatch(worker, item)
	return nil
}

func (c *Coordinator[T, U]) terminate(worker types.Rank) error {
	if err := c.port.Send(types.TerminationMessage[T, U](), worker); err != nil {
		return fmt.Errorf("terminate worker %d: %w", worker, err)
	}
	c.stats.Terminated++
	c.observer.OnTerminate(worker)
	c.logger.Debug("worker terminated", zap.Int("worker", int(worker)))
	return nil
}

// receive waits for the next result and clears its producer's outstanding slot.
func (c *Coordinator[T, U]) receive(ctx context.Context) (types.Result[T, U], error) {
	d, err := c.port.Receive(ctx, fabric.AnySource)
	if err != nil {
		return types.Result[T, U]{}, fmt.Errorf("coordinator receive: %w", err)
	}
	if d.Payload.Kind != types.MessageKindResult {
		return types.Result[T, U]{}, fmt.Errorf("%w: %s from rank %d", ErrUnexpectedMessage, d.Payload.Kind, d.Source)
	}

	res := d.Payload.Result
	if res.Producer != d.Source || !c.outstanding[d.Source] {
		return types.Result[T, U]{}, fmt.Errorf("%w: rank %d", ErrUnexpectedResult, d.Source)
	}

	delete(c.outstanding, d.Source)
	c.results = append(c.results, res)
	c.stats.Results++
	c.observer.OnResult(res)
	return res, nil
}
