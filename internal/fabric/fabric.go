package fabric

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"yqhp/mpi-simulator/pkg/types"
)

// AnySource matches messages from every sender.
const AnySource types.Rank = -1

var (
	// ErrUnknownRank is returned when a rank is outside [0, size).
	ErrUnknownRank = errors.New("unknown rank")
	// ErrInvalidSize is returned when a fabric is created with no participants.
	ErrInvalidSize = errors.New("fabric size must be positive")
)

// Delivery is a received message together with the rank that sent it.
type Delivery[M any] struct {
	Source  types.Rank
	Payload M
}

// Port is a participant-bound view of the fabric.
type Port[M any] interface {
	// Rank returns the rank owning this port.
	Rank() types.Rank

	// Send enqueues msg for dest. It never blocks.
	Send(msg M, dest types.Rank) error

	// Receive blocks until a message from source (or AnySource) arrives.
	Receive(ctx context.Context, source types.Rank) (Delivery[M], error)
}

// Stats holds fabric-wide message counters.
type Stats struct {
	Sent      int64
	Delivered int64
}

// Fabric is a fixed set of mailboxes, one per rank.
type Fabric[M any] struct {
	boxes []*mailbox[M]

	sent      atomic.Int64
	delivered atomic.Int64
}

// New creates a fabric for size participants.
func New[M any](size int) (*Fabric[M], error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}

	boxes := make([]*mailbox[M], size)
	for i := range boxes {
		boxes[i] = newMailbox[M]()
	}
	return &Fabric[M]{boxes: boxes}, nil
}

// Size returns the number of participants.
func (f *Fabric[M]) Size() int {
	return len(f.boxes)
}

// Send enqueues msg in the mailbox of to, recording from as its source.
func (f *Fabric[M]) Send(from, to types.Rank, msg M) error {
	if err := f.checkRank(from); err != nil {
		return fmt.Errorf("send from %d: %w", from, err)
	}
	box, err := f.box(to)
	if err != nil {
		return fmt.Errorf("send to %d: %w", to, err)
	}

	box.push(Delivery[M]{Source: from, Payload: msg})
	f.sent.Add(1)
	return nil
}

// Receive dequeues the oldest message in rank's mailbox whose sender matches
// source, blocking until one arrives or ctx is done.
func (f *Fabric[M]) Receive(ctx context.Context, rank, source types.Rank) (Delivery[M], error) {
	var zero Delivery[M]

	box, err := f.box(rank)
	if err != nil {
		return zero, fmt.Errorf("receive on %d: %w", rank, err)
	}
	if source != AnySource {
		if err := f.checkRank(source); err != nil {
			return zero, fmt.Errorf("receive from %d: %w", source, err)
		}
	}

	for {
		if d, ok := box.take(source); ok {
			f.delivered.Add(1)
			return d, nil
		}

		select {
		case <-box.ready:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Pending returns the number of messages waiting in rank's mailbox.
func (f *Fabric[M]) Pending(rank types.Rank) int {
	box, err := f.box(rank)
	if err != nil {
		return 0
	}
	return box.len()
}

// Stats returns a snapshot of the message counters.
func (f *Fabric[M]) Stats() Stats {
	return Stats{
		Sent:      f.sent.Load(),
		Delivered: f.delivered.Load(),
	}
}

// Endpoint returns the port owned by rank.
func (f *Fabric[M]) Endpoint(rank types.Rank) (*Endpoint[M], error) {
	if err := f.checkRank(rank); err != nil {
		return nil, fmt.Errorf("endpoint %d: %w", rank, err)
	}
	return &Endpoint[M]{fabric: f, rank: rank}, nil
}

func (f *Fabric[M]) box(rank types.Rank) (*mailbox[M], error) {
	if err := f.checkRank(rank); err != nil {
		return nil, err
	}
	return f.boxes[rank], nil
}

func (f *Fabric[M]) checkRank(rank types.Rank) error {
	if rank < 0 || int(rank) >= len(f.boxes) {
		return ErrUnknownRank
	}
	return nil
}

// Endpoint binds a fabric to the rank that owns it.
type Endpoint[M any] struct {
	fabric *Fabric[M]
	rank   types.Rank
}

var _ Port[struct{}] = (*Endpoint[struct{}])(nil)

// Rank returns the owning rank.
func (e *Endpoint[M]) Rank() types.Rank {
	return e.rank
}

// Send enqueues msg for dest.
func (e *Endpoint[M]) Send(msg M, dest types.Rank) error {
	return e.fabric.Send(e.rank, dest, msg)
}

// Receive blocks on the owner's mailbox.
func (e *Endpoint[M]) Receive(ctx context.Context, source types.Rank) (Delivery[M], error) {
	return e.fabric.Receive(ctx, e.rank, source)
}

// mailbox is an unbounded FIFO. ready holds at most one wake-up token; a
// receiver always re-checks the queue after waking.
type mailbox[M any] struct {
	mu    sync.Mutex
	queue []Delivery[M]
	ready chan struct{}
}

func newMailbox[M any]() *mailbox[M] {
	return &mailbox[M]{
		queue: make([]Delivery[M], 0),
		ready: make(chan struct{}, 1),
	}
}

func (b *mailbox[M]) push(d Delivery[M]) {
	b.mu.Lock()
	b.queue = append(b.queue, d)
	b.mu.Unlock()

	select {
	case b.ready <- struct{}{}:
	default:
	}
}

func (b *mailbox[M]) take(source types.Rank) (Delivery[M], bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero Delivery[M]
	for i, d := range b.queue {
		if source != AnySource && d.Source != source {
			continue
		}
		copy(b.queue[i:], b.queue[i+1:])
		b.queue[len(b.queue)-1] = zero
		b.queue = b.queue[:len(b.queue)-1]
		return d, true
	}
	return zero, false
}

func (b *mailbox[M]) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
