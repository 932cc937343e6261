// Package metrics records coordinator protocol events: per-worker load and
// the dispatch to result turnaround of every item.
package metrics

import (
	"slices"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/duke-git/lancet/v2/maputil"
	"go.uber.org/zap"

	"yqhp/mpi-simulator/pkg/types"
)

const (
	// turnaround is recorded in microseconds, up to one hour.
	minTrackable = 1
	maxTrackable = int64(time.Hour / time.Microsecond)
	sigFigs      = 3
)

// WorkerLoad holds the counters of a single worker.
type WorkerLoad struct {
	Rank       types.Rank `json:"rank"`
	Dispatched int        `json:"dispatched"`
	Completed  int        `json:"completed"`
	Terminated bool       `json:"terminated"`
}

// Summary is a snapshot of the recorded run.
type Summary struct {
	Results int           `json:"results"`
	Min     time.Duration `json:"min"`
	Mean    time.Duration `json:"mean"`
	P50     time.Duration `json:"p50"`
	P95     time.Duration `json:"p95"`
	P99     time.Duration `json:"p99"`
	Max     time.Duration `json:"max"`
	Workers []WorkerLoad  `json:"workers"`
}

// Recorder implements coordinator.Observer.
type Recorder[T, U any] struct {
	mu        sync.Mutex
	now       func() time.Time
	hist      *hdrhistogram.Histogram
	inFlight  map[types.Rank]time.Time
	workers   map[types.Rank]*WorkerLoad
	completed int
}

// NewRecorder creates an empty recorder.
func NewRecorder[T, U any]() *Recorder[T, U] {
	return newRecorder[T, U](time.Now)
}

func newRecorder[T, U any](now func() time.Time) *Recorder[T, U] {
	return &Recorder[T, U]{
		now:      now,
		hist:     hdrhistogram.New(minTrackable, maxTrackable, sigFigs),
		inFlight: make(map[types.Rank]time.Time),
		workers:  make(map[types.Rank]*WorkerLoad),
	}
}

func (r *Recorder[T, U]) load(rank types.Rank) *WorkerLoad {
	w, ok := r.workers[rank]
	if !ok {
		w = &WorkerLoad{Rank: rank}
		r.workers[rank] = w
	}
	return w
}

func (r *Recorder[T, U]) OnDispatch(worker types.Rank, _ T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.load(worker).Dispatched++
	r.inFlight[worker] = r.now()
}

func (r *Recorder[T, U]) OnResult(result types.Result[T, U]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.load(result.Producer).Completed++
	r.completed++

	start, ok := r.inFlight[result.Producer]
	if !ok {
		return
	}
	delete(r.inFlight, result.Producer)

	us := r.now().Sub(start).Microseconds()
	if us < minTrackable {
		us = minTrackable
	}
	// values above the trackable range are dropped by the histogram
	_ = r.hist.RecordValue(us)
}

func (r *Recorder[T, U]) OnTerminate(worker types.Rank) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.load(worker).Terminated = true
}

// Summary returns the current snapshot. Workers are sorted by rank.
func (r *Recorder[T, U]) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Summary{Results: r.completed}
	if r.hist.TotalCount() > 0 {
		s.Min = micros(r.hist.Min())
		s.Mean = time.Duration(r.hist.Mean() * float64(time.Microsecond))
		s.P50 = micros(r.hist.ValueAtQuantile(50))
		s.P95 = micros(r.hist.ValueAtQuantile(95))
		s.P99 = micros(r.hist.ValueAtQuantile(99))
		s.Max = micros(r.hist.Max())
	}

	ranks := maputil.Keys(r.workers)
	slices.Sort(ranks)
	s.Workers = make([]WorkerLoad, 0, len(ranks))
	for _, rank := range ranks {
		s.Workers = append(s.Workers, *r.workers[rank])
	}
	return s
}

// Log writes the summary at info level, one line per worker at debug level.
func (s Summary) Log(logger *zap.Logger) {
	logger.Info("run metrics",
		zap.Int("results", s.Results),
		zap.Duration("p50", s.P50),
		zap.Duration("p95", s.P95),
		zap.Duration("p99", s.P99),
		zap.Duration("max", s.Max))
	for _, w := range s.Workers {
		logger.Debug("worker load",
			zap.Int("rank", int(w.Rank)),
			zap.Int("dispatched", w.Dispatched),
			zap.Int("completed", w.Completed),
			zap.Bool("terminated", w.Terminated))
	}
}

func micros(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}
