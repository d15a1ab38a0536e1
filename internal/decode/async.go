package decode

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"tapex-player/internal/frames"
	"tapex-player/internal/task"
)

// AsyncDecoder 单会话的异步解码入口，同一时刻最多一个任务
type AsyncDecoder struct {
	rd     *RangeDecoder
	active atomic.Bool

	mu   sync.Mutex
	last *task.Task
}

// NewAsyncDecoder 共享 RangeDecoder 的会话工厂与帧索引
func NewAsyncDecoder(rd *RangeDecoder) *AsyncDecoder {
	return &AsyncDecoder{rd: rd}
}

// DecodeAsync 已有任务在运行时返回 (nil, false)
func (a *AsyncDecoder) DecodeAsync(ctx context.Context, start, end int, tier frames.Tier) (*task.Task, bool) {
	if !a.active.CompareAndSwap(false, true) {
		return nil, false
	}

	w := frames.Window{Lo: start, Hi: end}.Clamp(a.rd.index.Len())
	t := task.Go(func() error {
		defer a.active.Store(false)
		if w.Empty() {
			return fmt.Errorf("%w: range [%d,%d]", ErrBounds, start, end)
		}
		_, err := a.rd.decodeSpan(ctx, w, tier)
		if err != nil {
			a.rd.failed.Store(true)
		}
		return err
	})

	a.mu.Lock()
	a.last = t
	a.mu.Unlock()
	return t, true
}

// Active 是否有任务在运行
func (a *AsyncDecoder) Active() bool {
	return a.active.Load()
}

// Wait 等待最近一次任务结束
func (a *AsyncDecoder) Wait() error {
	a.mu.Lock()
	t := a.last
	a.mu.Unlock()
	if t == nil {
		return nil
	}
	return t.Wait()
}
