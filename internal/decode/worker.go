package decode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"tapex-player/internal/frames"
	"tapex-player/internal/logger"
)

// SplitRange 把 [start, end] 平均切成最多 n 段连续子区间，余数分给前面的段
func SplitRange(start, end, n int) []frames.Window {
	total := end - start + 1
	if total <= 0 || n <= 0 {
		return nil
	}
	n = min(n, total)
	base, rem := total/n, total%n

	spans := make([]frames.Window, 0, n)
	lo := start
	for i := 0; i < n; i++ {
		size := base
		if i < rem {
			size++
		}
		spans = append(spans, frames.Window{Lo: lo, Hi: lo + size - 1})
		lo += size
	}
	return spans
}

// RangeDecoder 区间解码：每个子区间一个独立会话并发解码，写入帧索引
type RangeDecoder struct {
	opener  Opener
	path    string
	index   *frames.Index
	workers int

	failed  atomic.Bool
	decoded atomic.Int64
	stored  atomic.Int64
}

// NewRangeDecoder workers 为每次调用并发的会话数
func NewRangeDecoder(opener Opener, path string, index *frames.Index, workers int) *RangeDecoder {
	return &RangeDecoder{
		opener:  opener,
		path:    path,
		index:   index,
		workers: max(workers, 1),
	}
}

// Decode 解码 [start, end] 到 tier，阻塞到所有子区间结束
// 子区间失败只影响它自己，错误被合并返回并记录到 Failed；ctx 取消时返回的错误包含 ctx.Err()
func (d *RangeDecoder) Decode(ctx context.Context, start, end int, tier frames.Tier) error {
	if start < 0 || end >= d.index.Len() || start > end {
		return fmt.Errorf("%w: range [%d,%d] of %d frames", ErrBounds, start, end, d.index.Len())
	}

	spans := SplitRange(start, end, d.workers)
	errs := make([]error, len(spans))

	var wg sync.WaitGroup
	for i, span := range spans {
		wg.Add(1)
		go func(i int, span frames.Window) {
			defer wg.Done()
			n, err := d.decodeSpan(ctx, span, tier)
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				d.failed.Store(true)
				errs[i] = fmt.Errorf("sub-range %s: %w", span, err)
				logger.LogWarn("sub-range decode failed", "worker", i, "start", span.Lo, "end", span.Hi, "tier", tier, "err", err)
				return
			}
			logger.LogDebug("sub-range decoded", "worker", i, "start", span.Lo, "end", span.Hi, "tier", tier, "stored", n)
		}(i, span)
	}
	wg.Wait()

	// 取消时区间可能只填了一部分
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// decodeSpan 单个子区间：打开会话 -> seek 到起始帧 PTS -> 顺序解码写入
func (d *RangeDecoder) decodeSpan(ctx context.Context, span frames.Window, tier frames.Tier) (int, error) {
	startPTS, ok := d.index.PTS(span.Lo)
	if !ok {
		return 0, fmt.Errorf("%w: frame %d", ErrBounds, span.Lo)
	}

	sess, err := d.opener.Open(d.path, tier)
	if err != nil {
		return 0, err
	}
	defer sess.Close()

	if err := sess.SeekTo(startPTS); err != nil {
		return 0, err
	}

	stored := 0
	frameIdx := span.Lo
	for frameIdx <= span.Hi {
		if err := ctx.Err(); err != nil {
			return stored, err
		}

		pic, pts, err := sess.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stored, err
		}
		d.decoded.Add(1)

		// 关键帧到起始帧之间的预解码帧丢弃
		if pts < startPTS {
			continue
		}
		if d.index.Store(frameIdx, tier, pic, pts) {
			stored++
		}
		frameIdx++
	}
	d.stored.Add(int64(stored))
	return stored, nil
}

// Failed 是否有子区间失败过
func (d *RangeDecoder) Failed() bool {
	return d.failed.Load()
}

// ResetFailed 清除失败标记
func (d *RangeDecoder) ResetFailed() {
	d.failed.Store(false)
}

// Stats 解码帧数与写入帧数
func (d *RangeDecoder) Stats() (decoded, stored int64) {
	return d.decoded.Load(), d.stored.Load()
}
