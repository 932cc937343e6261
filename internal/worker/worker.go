package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"yqhp/mpi-simulator/internal/fabric"
	"yqhp/mpi-simulator/internal/workload"
	"yqhp/mpi-simulator/pkg/types"
)

// ErrCoordinatorRank 工作节点不能运行在协调者的 rank 上。
var ErrCoordinatorRank = errors.New("worker cannot run on the coordinator rank")

// DelayFunc 返回一次回复前的等待时长。
type DelayFunc func() time.Duration

// Config 保存工作节点的配置信息。
type Config struct {
	// MaxDelay 是每次回复前随机等待的上限，0 表示不等待。
	MaxDelay time.Duration

	// Delay 覆盖默认的随机等待策略，主要用于测试。
	Delay DelayFunc

	// Logger 为空时使用 zap.NewNop。
	Logger *zap.Logger
}

// Worker 在一个 rank 上执行工作循环。
type Worker[T, U any] struct {
	port    fabric.Port[types.Message[T, U]]
	compute workload.Func[T, U]
	delay   DelayFunc
	logger  *zap.Logger

	processed atomic.Int64
}

// New 创建工作节点。
func New[T, U any](port fabric.Port[types.Message[T, U]], compute workload.Func[T, U], cfg Config) (*Worker[T, U], error) {
	if port == nil {
		return nil, errors.New("worker port is nil")
	}
	if compute == nil {
		return nil, errors.New("worker compute function is nil")
	}
	if port.Rank().IsCoordinator() {
		return nil, ErrCoordinatorRank
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	delay := cfg.Delay
	if delay == nil && cfg.MaxDelay > 0 {
		delay = UniformDelay(cfg.MaxDelay)
	}

	return &Worker[T, U]{
		port:    port,
		compute: compute,
		delay:   delay,
		logger:  logger.With(zap.Int("rank", int(port.Rank()))),
	}, nil
}

// UniformDelay 返回在 [0, limit) 内均匀分布的等待策略。
func UniformDelay(limit time.Duration) DelayFunc {
	return func() time.Duration {
		if limit <= 0 {
			return 0
		}
		return rand.N(limit)
	}
}

// Rank 返回工作节点所在的 rank。
func (w *Worker[T, U]) Rank() types.Rank {
	return w.port.Rank()
}

// Processed 返回已处理的工作项数量。
func (w *Worker[T, U]) Processed() int64 {
	return w.processed.Load()
}

// Run 执行工作循环，直到收到终止令牌或 ctx 被取消。
// 收到终止令牌时返回 nil。
func (w *Worker[T, U]) Run(ctx context.Context) error {
	for {
		d, err := w.port.Receive(ctx, fabric.AnySource)
		if err != nil {
			return fmt.Errorf("worker %d receive: %w", w.Rank(), err)
		}

		msg := d.Payload
		w.logger.Debug("received message",
			zap.Int("source", int(d.Source)),
			zap.Stringer("message", msg))

		switch msg.Kind {
		case types.MessageKindTerminate:
			w.logger.Debug("terminated", zap.Int64("processed", w.Processed()))
			return nil
		case types.MessageKindWork:
		default:
			w.logger.Warn("ignoring unexpected message", zap.String("kind", string(msg.Kind)))
			continue
		}

		metric := w.compute(msg.Item)

		if err := w.wait(ctx); err != nil {
			return fmt.Errorf("worker %d delay: %w", w.Rank(), err)
		}

		result := types.Result[T, U]{Producer: w.Rank(), Item: msg.Item, Metric: metric}
		if err := w.port.Send(types.ResultMessage(result), types.CoordinatorRank); err != nil {
			return fmt.Errorf("worker %d reply: %w", w.Rank(), err)
		}
		w.processed.Add(1)
	}
}

// wait 模拟异构的处理速度，可被 ctx 打断。
func (w *Worker[T, U]) wait(ctx context.Context) error {
	if w.delay == nil {
		return nil
	}
	d := w.delay()
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
