package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"tapex-player/internal/frames"
	"tapex-player/internal/logger"
	"tapex-player/internal/task"
)

// Head 播放头位置
type Head interface {
	CurrentFrame() int
}

// RateSource 带方向的播放速度 (暂停为 0)
type RateSource interface {
	EffectiveRate() float64
}

// Decoder 区间解码，阻塞到完成
type Decoder interface {
	Decode(ctx context.Context, start, end int, tier frames.Tier) error
}

// Report 一个 tick 的结果
type Report struct {
	Windows
	LowSpan        frames.Window `json:"low_span"`
	HighSpan       frames.Window `json:"high_span"`
	HighDispatched bool          `json:"high_dispatched"`
	HighInFlight   bool          `json:"high_in_flight"`
	Cleaned        int           `json:"cleaned"`
	Downgraded     int           `json:"downgraded"`
	LowErr         error         `json:"-"`
	Elapsed        time.Duration `json:"elapsed"`
}

// Scheduler 预测式解码调度器
// 每个 tick：计算窗口 -> 低分辨率解码 (等待) + 高分辨率解码 (单飞) -> 清理 -> 降级
type Scheduler struct {
	index   *frames.Index
	cleaner *frames.Cleaner
	decoder Decoder
	head    Head
	rate    RateSource
	params  Params

	running atomic.Bool
	stopReq atomic.Bool
	ticks   atomic.Int64

	// 只在调度 goroutine 中访问
	hires *task.Task

	mu   sync.Mutex
	last Report
}

// New 创建调度器
func New(index *frames.Index, cleaner *frames.Cleaner, decoder Decoder, head Head, rate RateSource, p Params) *Scheduler {
	return &Scheduler{
		index:   index,
		cleaner: cleaner,
		decoder: decoder,
		head:    head,
		rate:    rate,
		params:  p,
	}
}

// Tick 执行一次调度
func (s *Scheduler) Tick(ctx context.Context) Report {
	began := time.Now()
	n := s.index.Len()
	cur := s.head.CurrentFrame()
	w := Compute(cur, s.rate.EffectiveRate(), n, s.params)
	r := Report{Windows: w, LowSpan: frames.NoWindow, HighSpan: frames.NoWindow}

	// 先发布驻留窗口，之后旧任务超出窗口的写入都会被丢弃
	s.index.SetResidency(frames.Residency{Buffer: w.Buffer, HighRes: w.HighRes})

	var low *task.Task
	if r.LowSpan = s.index.Pending(w.Buffer, frames.LowRes); !r.LowSpan.Empty() {
		span := r.LowSpan
		low = task.Go(func() error {
			return s.decoder.Decode(ctx, span.Lo, span.Hi, frames.LowRes)
		})
	}

	if !w.HighSpeed && !w.HighRes.Empty() {
		s.reapHighRes()
		if s.hires == nil {
			if r.HighSpan = s.index.Pending(w.HighRes, frames.FullRes); !r.HighSpan.Empty() {
				span := r.HighSpan
				s.hires = task.Go(func() error {
					return s.decoder.Decode(ctx, span.Lo, span.Hi, frames.FullRes)
				})
				r.HighDispatched = true
			}
		}
	}
	r.HighInFlight = s.hires != nil && !s.hires.Finished()

	if low != nil {
		r.LowErr = low.Wait()
	}

	// 清理 buffer 之外，当前帧除外
	for _, seg := range w.Buffer.Complement(n) {
		for _, part := range seg.Without(cur) {
			r.Cleaned += s.cleaner.Clean(part.Lo, part.Hi)
		}
	}
	// 降级 buffer 内 highRes 之外，当前帧除外 (高速时 highRes 为空，整个 buffer 降级)
	for _, seg := range downgradeRanges(w.Buffer, w.HighRes) {
		for _, part := range seg.Without(cur) {
			r.Downgraded += s.cleaner.Downgrade(part.Lo, part.Hi)
		}
	}

	r.Elapsed = time.Since(began)
	s.ticks.Add(1)
	s.mu.Lock()
	s.last = r
	s.mu.Unlock()
	return r
}

// Retarget 播放头跳转后立即按新位置发布驻留窗口
// 预取任务在下一个 tick 之前写入的帧不会被驻留检查丢弃
func (s *Scheduler) Retarget(frame int) Windows {
	w := Compute(frame, s.rate.EffectiveRate(), s.index.Len(), s.params)
	s.index.SetResidency(frames.Residency{Buffer: w.Buffer, HighRes: w.HighRes})
	return w
}

// reapHighRes 回收已经结束的高分辨率任务
func (s *Scheduler) reapHighRes() {
	if s.hires == nil || !s.hires.Finished() {
		return
	}
	if err := s.hires.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.LogDebug("high-res decode finished with error", "err", err)
	}
	s.hires = nil
}

// WaitHighRes 等待正在进行的高分辨率任务
func (s *Scheduler) WaitHighRes() {
	if s.hires != nil {
		_ = s.hires.Wait()
		s.hires = nil
	}
}

// Run 调度循环，直到 Stop 或 ctx 取消；返回前等待高分辨率任务结束
// 之前的 Stop 请求会被清除，同一个调度器可以再次运行
func (s *Scheduler) Run(ctx context.Context) error {
	s.stopReq.Store(false)
	return s.run(ctx)
}

func (s *Scheduler) run(ctx context.Context) error {
	s.running.Store(true)
	defer s.running.Store(false)
	defer s.WaitHighRes()

	timer := time.NewTimer(0)
	defer timer.Stop()

	fmt.Printf("[Scheduler] 启动: buffer=%d hires=%d predict=%d tick=%s\n",
		s.params.BufferSize, s.params.HighResWindowSize, s.params.PredictionFrames, s.params.UpdateInterval)

	for !s.stopReq.Load() {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		r := s.Tick(ctx)
		if r.LowErr != nil && !errors.Is(r.LowErr, context.Canceled) {
			logger.LogDebug("low-res decode incomplete", "span", r.LowSpan.String(), "err", r.LowErr)
		}
		logger.LogDebug("tick",
			"current", r.Current, "rate", r.Rate, "buffer", r.Buffer.String(), "hires", r.HighRes.String(),
			"low", r.LowSpan.String(), "high", r.HighSpan.String(), "cleaned", r.Cleaned, "downgraded", r.Downgraded,
			"elapsed", r.Elapsed)

		timer.Reset(s.params.UpdateInterval)
	}
	return nil
}

// Start 在后台运行调度循环，返回任务句柄
// stop 标志在这里同步清除，紧跟着的 Stop 不会丢失
func (s *Scheduler) Start(ctx context.Context) *task.Task {
	s.stopReq.Store(false)
	return task.Go(func() error { return s.run(ctx) })
}

// Stop 请求循环在下一次检查时退出
func (s *Scheduler) Stop() {
	s.stopReq.Store(true)
}

// Running 循环是否在运行
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Ticks 已执行的 tick 数
func (s *Scheduler) Ticks() int64 {
	return s.ticks.Load()
}

// LastReport 最近一次 tick 的结果
func (s *Scheduler) LastReport() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
