package playback

import (
	"fmt"
	"image"
	"math"
	"sync/atomic"
	"time"

	"tapex-player/internal/config"
	"tapex-player/internal/decode"
	"tapex-player/internal/frames"
	"tapex-player/internal/logger"
)

// Head 播放头：当前帧下标，从帧缓存取图交给 Renderer，自己从不解码
type Head struct {
	index       *frames.Index
	clock       *Clock
	renderer    Renderer
	placeholder *image.YCbCr

	current  atomic.Int64
	refresh  atomic.Bool
	debug    atomic.Bool
	prefetch atomic.Pointer[func(frame int)]

	// 以下只在 UI 线程使用
	lastIndex int
	lastTier  frames.Tier
	lastPic   *image.YCbCr
	states    []frames.Tier
}

// NewHead renderer 可以为 nil (只跟踪位置)
func NewHead(index *frames.Index, clock *Clock, renderer Renderer) *Head {
	h := &Head{
		index:       index,
		clock:       clock,
		renderer:    renderer,
		placeholder: frames.Black(config.PlaceholderWidth, config.PlaceholderHeight, config.BlackLuma, config.BlackChroma),
		lastIndex:   -1,
	}
	h.refresh.Store(true)
	return h
}

// SetPrefetch seek 之后调用的预取钩子
func (h *Head) SetPrefetch(fn func(frame int)) {
	h.prefetch.Store(&fn)
}

// CurrentFrame 当前帧下标
func (h *Head) CurrentFrame() int {
	return int(h.current.Load())
}

// Len 总帧数
func (h *Head) Len() int {
	return h.index.Len()
}

// FrameDelay 按原始帧率的名义帧间隔
func (h *Head) FrameDelay() time.Duration {
	return time.Duration(float64(time.Second) / h.clock.FPS())
}

// SeekTo 跳到指定帧，越界时记录日志并忽略
func (h *Head) SeekTo(frame int) error {
	n := h.index.Len()
	if frame < 0 || frame >= n {
		logger.LogWarn("seek rejected", "frame", frame, "frames", n)
		return fmt.Errorf("%w: seek to %d of %d frames", decode.ErrBounds, frame, n)
	}
	h.current.Store(int64(frame))
	h.clock.Seek(float64(frame) / h.clock.FPS())
	h.refresh.Store(true)

	if fn := h.prefetch.Load(); fn != nil {
		(*fn)(frame)
	}
	return nil
}

// SeekBy 相对跳转 (秒)，结果被限制在文件范围内
func (h *Head) SeekBy(seconds float64) error {
	target := h.CurrentFrame() + int(math.Round(seconds*h.clock.FPS()))
	return h.SeekTo(min(max(target, 0), h.index.Len()-1))
}

// Update 根据音频时钟刷新当前帧，返回新的下标
func (h *Head) Update() int {
	n := h.index.Len()
	if n == 0 {
		return 0
	}
	frame := int(math.Round(h.clock.CurrentTime() * h.clock.FPS()))
	frame = min(max(frame, 0), n-1)
	h.current.Store(int64(frame))
	return frame
}

// Refresh 请求下一次 Display 必须重绘
func (h *Head) Refresh() {
	h.refresh.Store(true)
}

// SetDebug 打开/关闭调试条
func (h *Head) SetDebug(on bool) {
	h.debug.Store(on)
	h.refresh.Store(true)
}

// ToggleDebug 切换调试条
func (h *Head) ToggleDebug() bool {
	on := toggle(&h.debug)
	h.refresh.Store(true)
	return on
}

// Debug 调试条是否打开
func (h *Head) Debug() bool {
	return h.debug.Load()
}

// Select 当前帧的最佳图像：全分辨率 > 低分辨率 > 黑色占位
func (h *Head) Select() View {
	idx := h.CurrentFrame()
	v := View{
		Index:      idx,
		Total:      h.index.Len(),
		TimeMillis: int64(float64(idx) * 1000 / h.clock.FPS()),
		Paused:     h.clock.Paused(),
		Rate:       h.clock.Rate(),
		Reverse:    h.clock.Reverse(),
		Volume:     h.clock.Volume(),
	}
	if f, ok := h.index.Snapshot(idx); ok && f.Tier != frames.Empty {
		v.Picture, v.Tier = f.Picture, f.Tier
	} else {
		v.Picture, v.Placeholder = h.placeholder, true
	}
	return v
}

// Display 把当前帧交给 Renderer，画面没变化时跳过 (调试模式每次都画)
func (h *Head) Display() error {
	if h.renderer == nil {
		return nil
	}
	v := h.Select()
	v.Debug = h.debug.Load()

	changed := v.Index != h.lastIndex || v.Tier != h.lastTier || v.Picture != h.lastPic
	refresh := h.refresh.Swap(false)
	if !changed && !v.Debug && !refresh {
		return nil
	}
	if v.Debug {
		h.states = h.index.States(h.states)
		v.States = h.states
	}

	h.lastIndex, h.lastTier, h.lastPic = v.Index, v.Tier, v.Picture
	return h.renderer.DisplayFrame(v)
}
