package playback

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"tapex-player/internal/config"
	"tapex-player/internal/task"
)

// TimeSource 播放时间来源 (音频时钟或墙钟)
type TimeSource interface {
	// CurrentTime 当前播放位置 (秒)
	CurrentTime() float64
	// Seek 跳到指定位置 (秒)
	Seek(seconds float64)
}

// Float64 原子 float64
type Float64 struct {
	bits atomic.Uint64
}

func (f *Float64) Load() float64   { return math.Float64frombits(f.bits.Load()) }
func (f *Float64) Store(v float64) { f.bits.Store(math.Float64bits(v)) }

// Clock 播放时钟：速度、方向、暂停、音量和时间来源
// 调度器、播放头、渲染、音频共享同一个 Clock，生命周期与打开的文件一致
type Clock struct {
	rate    Float64
	target  Float64
	volume  Float64
	reverse atomic.Bool
	paused  atomic.Bool

	fps      float64
	duration float64

	mu     sync.RWMutex
	source TimeSource
}

// NewClock fps 为原始帧率，duration 为总时长 (秒)
func NewClock(fps, duration float64) *Clock {
	if fps <= 0 {
		fps = config.FallbackFPS
	}
	c := &Clock{fps: fps, duration: duration}
	c.rate.Store(1)
	c.target.Store(1)
	c.volume.Store(1)
	return c
}

// SetSource 绑定时间来源，在启动播放前调用
func (c *Clock) SetSource(src TimeSource) {
	c.mu.Lock()
	c.source = src
	c.mu.Unlock()
}

func (c *Clock) timeSource() TimeSource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.source
}

// FPS 原始帧率
func (c *Clock) FPS() float64 { return c.fps }

// Duration 总时长 (秒)
func (c *Clock) Duration() float64 { return c.duration }

// CurrentTime 当前音频时间 (秒)，没有时间来源时为 0
func (c *Clock) CurrentTime() float64 {
	if src := c.timeSource(); src != nil {
		return src.CurrentTime()
	}
	return 0
}

// Seek 移动时间来源
func (c *Clock) Seek(seconds float64) {
	if src := c.timeSource(); src != nil {
		src.Seek(seconds)
	}
}

// Rate 当前速度 (绝对值)
func (c *Clock) Rate() float64 { return c.rate.Load() }

// SetRate 直接设置当前速度，目标速度同步
func (c *Clock) SetRate(v float64) {
	v = config.ClampSpeed(v)
	c.rate.Store(v)
	c.target.Store(v)
}

// TargetRate 目标速度
func (c *Clock) TargetRate() float64 { return c.target.Load() }

// SetTargetRate 设置目标速度，当前速度由 RunRamp 逐步逼近
func (c *Clock) SetTargetRate(v float64) {
	c.target.Store(config.ClampSpeed(v))
}

func (c *Clock) Reverse() bool       { return c.reverse.Load() }
func (c *Clock) SetReverse(v bool)   { c.reverse.Store(v) }
func (c *Clock) ToggleReverse() bool { return toggle(&c.reverse) }
func (c *Clock) Paused() bool        { return c.paused.Load() }
func (c *Clock) SetPaused(v bool)    { c.paused.Store(v) }
func (c *Clock) TogglePaused() bool  { return toggle(&c.paused) }
func (c *Clock) Volume() float64     { return c.volume.Load() }
func (c *Clock) SetVolume(v float64) { c.volume.Store(config.ClampVolume(v)) }

// toggle 取反并返回新值
func toggle(b *atomic.Bool) bool {
	for {
		old := b.Load()
		if b.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// EffectiveRate 带方向的速度，暂停时为 0
func (c *Clock) EffectiveRate() float64 {
	if c.paused.Load() {
		return 0
	}
	r := c.rate.Load()
	if c.reverse.Load() {
		return -r
	}
	return r
}

// Step 把当前速度向目标速度移动最多 maxDelta
func (c *Clock) Step(maxDelta float64) {
	r, t := c.rate.Load(), c.target.Load()
	switch {
	case math.Abs(t-r) <= maxDelta:
		r = t
	case t > r:
		r += maxDelta
	default:
		r -= maxDelta
	}
	c.rate.Store(r)
}

// RunRamp 后台平滑调速，ctx 取消后结束
func (c *Clock) RunRamp(ctx context.Context, perSecond float64) *task.Task {
	const tick = 10 * time.Millisecond
	return task.Go(func() error {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				c.Step(perSecond * tick.Seconds())
			}
		}
	})
}
