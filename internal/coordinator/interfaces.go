package coordinator

import (
	"context"

	"yqhp/mpi-simulator/pkg/types"
)

// Observer receives protocol events from the coordinator.
// Calls are made from the coordinator goroutine, in protocol order.
type Observer[T, U any] interface {
	// OnDispatch is called after item was sent to worker.
	OnDispatch(worker types.Rank, item T)

	// OnResult is called after a result was accepted.
	OnResult(result types.Result[T, U])

	// OnTerminate is called after the termination token was sent to worker.
	OnTerminate(worker types.Rank)
}

// ResultSink receives the final results collection in arrival order.
type ResultSink[T, U any] interface {
	Collect(ctx context.Context, results []types.Result[T, U]) error
}

// SinkFunc adapts a function to ResultSink.
type SinkFunc[T, U any] func(ctx context.Context, results []types.Result[T, U]) error

// Collect calls f.
func (f SinkFunc[T, U]) Collect(ctx context.Context, results []types.Result[T, U]) error {
	return f(ctx, results)
}

// NopObserver ignores every event.
type NopObserver[T, U any] struct{}

func (NopObserver[T, U]) OnDispatch(types.Rank, T) {}
func (NopObserver[T, U]) OnResult(types.Result[T, U]) {}
func (NopObserver[T, U]) OnTerminate(types.Rank) {}

// MultiObserver fans events out to several observers in order.
type MultiObserver[T, U any] []Observer[T, U]

func (m MultiObserver[T, U]) OnDispatch(worker types.Rank, item T) {
	for _, o := range m {
		o.OnDispatch(worker, item)
	}
}

func (m MultiObserver[T, U]) OnResult(result types.Result[T, U]) {
	for _, o := range m {
		o.OnResult(result)
	}
}

func (m MultiObserver[T, U]) OnTerminate(worker types.Rank) {
	for _, o := range m {
		o.OnTerminate(worker)
	}
}
