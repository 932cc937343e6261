package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"yqhp/mpi-simulator/internal/fabric"
	"yqhp/mpi-simulator/internal/worker"
	"yqhp/mpi-simulator/internal/workload"
	"yqhp/mpi-simulator/pkg/types"
)

type msg = types.Message[uint64, int]

type eventKind int

const (
	evDispatch eventKind = iota
	evResult
	evTerminate
)

type event struct {
	kind eventKind
	rank types.Rank
	item uint64
}

// recorder keeps every protocol event in order.
type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) add(e event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) OnDispatch(w types.Rank, item uint64) { r.add(event{evDispatch, w, item}) }
func (r *recorder) OnResult(res types.CollatzResult) { r.add(event{evResult, res.Producer, res.Item}) }
func (r *recorder) OnTerminate(w types.Rank) { r.add(event{evTerminate, w, 0}) }

func (r *recorder) snapshot() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

type runOpts struct {
	maxDelay time.Duration
	observer Observer[uint64, int]
	sink     ResultSink[uint64, int]
}

// tb is satisfied by both *testing.T and *rapid.T.
type tb interface {
	require.TestingT
	Helper()
}

func simulate(t tb, size int, items []uint64, opts runOpts) ([]types.CollatzResult, *fabric.Fabric[msg]) {
	t.Helper()

	f, err := fabric.New[msg](size)
	require.NoError(t, err)

	coordPort, err := f.Endpoint(types.CoordinatorRank)
	require.NoError(t, err)
	c, err := New[uint64, int](coordPort, Config[uint64, int]{
		Items:    items,
		Workers:  types.WorkerRanks(size),
		Observer: opts.observer,
		Sink:     opts.sink,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range types.WorkerRanks(size) {
		ep, err := f.Endpoint(r)
		require.NoError(t, err)
		w, err := worker.New[uint64, int](ep, workload.Collatz, worker.Config{MaxDelay: opts.maxDelay})
		require.NoError(t, err)
		g.Go(func() error { return w.Run(gctx) })
	}

	var results []types.CollatzResult
	g.Go(func() error {
		var err error
		results, err = c.Run(gctx)
		return err
	})
	require.NoError(t, g.Wait())
	return results, f
}

func TestNew_Validation(t *testing.T) {
	f, err := fabric.New[msg](3)
	require.NoError(t, err)
	coord, _ := f.Endpoint(0)
	w1, _ := f.Endpoint(1)

	_, err = New[uint64, int](coord, Config[uint64, int]{})
	assert.ErrorIs(t, err, ErrNoWorkers)

	_, err = New[uint64, int](w1, Config[uint64, int]{Workers: []types.Rank{2}})
	assert.Error(t, err)

	_, err = New[uint64, int](coord, Config[uint64, int]{Workers: []types.Rank{1, 1}})
	assert.Error(t, err)

	_, err = New[uint64, int](coord, Config[uint64, int]{Workers: []types.Rank{0}})
	assert.Error(t, err)
}

func TestRun_ComputesEveryInput(t *testing.T) {
	items := []uint64{1, 2, 7, 14, 19, 27, 97, 3, 5, 8, 13}
	results, f := simulate(t, 4, items, runOpts{maxDelay: time.Millisecond})

	require.Len(t, results, len(items))
	got := make(map[uint64]int)
	for _, r := range results {
		got[r.Item] = r.Metric
		assert.GreaterOrEqual(t, int(r.Producer), 1)
		assert.Less(t, int(r.Producer), 4)
	}
	for _, x := range items {
		assert.Equal(t, workload.CollatzLength(x), got[x], "input %d", x)
	}
	for r := 0; r < 4; r++ {
		assert.Equal(t, 0, f.Pending(types.Rank(r)))
	}
}

func TestRun_ZeroInputs(t *testing.T) {
	rec := &recorder{}
	results, f := simulate(t, 5, nil, runOpts{observer: rec})

	assert.Empty(t, results)
	events := rec.snapshot()
	require.Len(t, events, 4)
	for i, e := range events {
		assert.Equal(t, evTerminate, e.kind)
		assert.Equal(t, types.Rank(i+1), e.rank)
	}
	assert.Equal(t, fabric.Stats{Sent: 4, Delivered: 4}, f.Stats())
}

func TestRun_FewerInputsThanWorkers(t *testing.T) {
	rec := &recorder{}
	items := []uint64{7, 27}
	results, _ := simulate(t, 5, items, runOpts{observer: rec})
	require.Len(t, results, 2)

	events := rec.snapshot()
	// Fan-out: two dispatches to distinct workers, then two tokens, before any result.
	require.GreaterOrEqual(t, len(events), 4)
	assert.Equal(t, event{evDispatch, 1, 7}, events[0])
	assert.Equal(t, event{evDispatch, 2, 27}, events[1])
	assert.Equal(t, event{evTerminate, 3, 0}, events[2])
	assert.Equal(t, event{evTerminate, 4, 0}, events[3])

	dispatches := 0
	for _, e := range events {
		if e.kind == evDispatch {
			dispatches++
		}
	}
	assert.Equal(t, len(items), dispatches, "no redistribution")
}

func TestRun_SingleWorkerKeepsInputOrder(t *testing.T) {
	items := []uint64{27, 1, 97, 2, 7, 837799, 14}
	results, _ := simulate(t, 2, items, runOpts{})

	require.Len(t, results, len(items))
	for i, r := range results {
		assert.Equal(t, items[i], r.Item)
		assert.Equal(t, types.Rank(1), r.Producer)
	}
}

func TestRun_ProtocolEventOrdering(t *testing.T) {
	rec := &recorder{}
	items := make([]uint64, 40)
	for i := range items {
		items[i] = uint64(i + 1)
	}
	simulate(t, 4, items, runOpts{observer: rec, maxDelay: time.Millisecond})

	holding := make(map[types.Rank]bool)
	terminated := make(map[types.Rank]int)
	for _, e := range rec.snapshot() {
		switch e.kind {
		case evDispatch:
			assert.False(t, holding[e.rank], "worker %d already holds an item", e.rank)
			assert.Zero(t, terminated[e.rank], "dispatch after termination to %d", e.rank)
			holding[e.rank] = true
		case evResult:
			assert.True(t, holding[e.rank], "result from idle worker %d", e.rank)
			holding[e.rank] = false
		case evTerminate:
			assert.False(t, holding[e.rank], "worker %d terminated while busy", e.rank)
			terminated[e.rank]++
		}
	}
	for _, r := range types.WorkerRanks(4) {
		assert.Equal(t, 1, terminated[r], "worker %d", r)
	}
}

func TestRun_SinkReceivesArrivalOrder(t *testing.T) {
	var collected []types.CollatzResult
	sink := SinkFunc[uint64, int](func(_ context.Context, results []types.CollatzResult) error {
		collected = append(collected, results...)
		return nil
	})

	results, _ := simulate(t, 3, []uint64{5, 6, 7, 8}, runOpts{sink: sink})
	assert.Equal(t, results, collected)
}

func TestRun_UnexpectedResult(t *testing.T) {
	f, err := fabric.New[msg](3)
	require.NoError(t, err)
	coord, err := f.Endpoint(0)
	require.NoError(t, err)

	c, err := New[uint64, int](coord, Config[uint64, int]{Items: []uint64{5}, Workers: []types.Rank{1, 2}})
	require.NoError(t, err)

	// Rank 2 is terminated during fan-out and never holds an item.
	stray := types.ResultMessage(types.CollatzResult{Producer: 2, Item: 9, Metric: 19})
	require.NoError(t, f.Send(2, 0, stray))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = c.Run(ctx)
	assert.ErrorIs(t, err, ErrUnexpectedResult)
}

func TestRun_UnexpectedMessage(t *testing.T) {
	f, err := fabric.New[msg](2)
	require.NoError(t, err)
	coord, err := f.Endpoint(0)
	require.NoError(t, err)

	c, err := New[uint64, int](coord, Config[uint64, int]{Items: []uint64{5}, Workers: []types.Rank{1}})
	require.NoError(t, err)
	require.NoError(t, f.Send(1, 0, types.WorkMessage[uint64, int](3)))

	_, err = c.Run(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedMessage)
}

func TestRun_CancelledWhileWaiting(t *testing.T) {
	f, err := fabric.New[msg](2)
	require.NoError(t, err)
	coord, err := f.Endpoint(0)
	require.NoError(t, err)

	c, err := New[uint64, int](coord, Config[uint64, int]{Items: []uint64{5}, Workers: []types.Rank{1}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, c.Outstanding())
}

func TestStats(t *testing.T) {
	f, err := fabric.New[msg](3)
	require.NoError(t, err)
	coord, _ := f.Endpoint(0)
	c, err := New[uint64, int](coord, Config[uint64, int]{Items: []uint64{1, 2, 3}, Workers: types.WorkerRanks(3)})
	require.NoError(t, err)

	g, ctx := errgroup.WithContext(context.Background())
	for _, r := range types.WorkerRanks(3) {
		ep, _ := f.Endpoint(r)
		w, err := worker.New[uint64, int](ep, workload.Collatz, worker.Config{})
		require.NoError(t, err)
		g.Go(func() error { return w.Run(ctx) })
	}
	g.Go(func() error { _, err := c.Run(ctx); return err })
	require.NoError(t, g.Wait())

	assert.Equal(t, Stats{Dispatched: 3, Results: 3, Terminated: 2}, c.Stats())
}
