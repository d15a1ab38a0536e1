package playback

import (
	"sync"
	"time"
)

// WallClock 没有音频时的时间来源：按带符号速度对单调时间积分
type WallClock struct {
	mu       sync.Mutex
	pos      float64
	last     time.Time
	duration float64
	rate     func() float64
	now      func() time.Time
}

// NewWallClock rate 返回带方向的速度 (通常是 Clock.EffectiveRate)
func NewWallClock(duration float64, rate func() float64) *WallClock {
	return newWallClock(duration, rate, time.Now)
}

func newWallClock(duration float64, rate func() float64, now func() time.Time) *WallClock {
	return &WallClock{duration: duration, rate: rate, now: now, last: now()}
}

func (w *WallClock) advance() {
	t := w.now()
	w.pos += w.rate() * t.Sub(w.last).Seconds()
	w.last = t
	if w.pos < 0 {
		w.pos = 0
	}
	if w.duration > 0 && w.pos > w.duration {
		w.pos = w.duration
	}
}

func (w *WallClock) CurrentTime() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advance()
	return w.pos
}

func (w *WallClock) Seek(seconds float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.last = w.now()
	w.pos = max(seconds, 0)
}
