// Package decodetest 提供不依赖 FFmpeg 的假解码会话，供调度器/播放头测试使用
package decodetest

import (
	"errors"
	"image"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"tapex-player/internal/decode"
	"tapex-player/internal/frames"
	"tapex-player/internal/models"
)

// ErrInjected 注入的打开失败
var ErrInjected = errors.New("injected open failure")

// Opener 模拟一个固定帧数的视频文件
// 第 i 帧 PTS = i * PTSStep，每 GOP 帧一个关键帧
type Opener struct {
	Frames  int
	PTSStep int64
	GOP     int
	Width   int
	Height  int
	Divisor int
	// FrameDelay 每解码一帧的耗时
	FrameDelay time.Duration
	// FailOpen 返回 true 时这次 Open 失败，参数为第几次调用 (从 1 开始)
	FailOpen func(call int) bool

	calls  atomic.Int32
	active atomic.Int32
	mu     sync.Mutex
	opened []frames.Tier
	seeks  []int64
}

// New 默认参数：40ms 一帧，GOP 12，64x36
func New(n int) *Opener {
	return &Opener{Frames: n, PTSStep: 40, GOP: 12, Width: 64, Height: 36, Divisor: 4}
}

// Records 对应的包索引
func (o *Opener) Records() []models.PacketRecord {
	records := make([]models.PacketRecord, o.Frames)
	for i := range records {
		pts := int64(i) * o.PTSStep
		records[i] = models.PacketRecord{PTS: pts, RelativePTS: pts, TimeMillis: pts}
		if i%o.GOP == 0 {
			records[i].Flags = models.PacketFlagKey
		}
	}
	return records
}

// Index 由 Records 构建的帧索引 (时间基 1/1000)
func (o *Opener) Index() *frames.Index {
	return frames.New(o.Records(), frames.Rational{Num: 1, Den: 1000}, 0)
}

// Calls Open 被调用的次数
func (o *Opener) Calls() int {
	return int(o.calls.Load())
}

// Active 尚未关闭的会话数
func (o *Opener) Active() int {
	return int(o.active.Load())
}

// Seeks 所有会话 seek 的 PTS
func (o *Opener) Seeks() []int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]int64(nil), o.seeks...)
}

// OpenedTiers 每次 Open 请求的层级
func (o *Opener) OpenedTiers() []frames.Tier {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]frames.Tier(nil), o.opened...)
}

func (o *Opener) Open(path string, tier frames.Tier) (decode.Session, error) {
	call := int(o.calls.Add(1))
	o.mu.Lock()
	o.opened = append(o.opened, tier)
	o.mu.Unlock()

	if o.FailOpen != nil && o.FailOpen(call) {
		return nil, errors.Join(decode.ErrOpen, ErrInjected)
	}
	w, h := o.Width, o.Height
	if tier == frames.LowRes && o.Divisor > 1 {
		w, h = w/o.Divisor, h/o.Divisor
	}
	o.active.Add(1)
	return &session{o: o, w: max(w, 2), h: max(h, 2)}, nil
}

type session struct {
	o    *Opener
	w, h int
	pos  int
}

func (s *session) SeekTo(pts int64) error {
	s.o.mu.Lock()
	s.o.seeks = append(s.o.seeks, pts)
	s.o.mu.Unlock()

	target := int(pts / s.o.PTSStep)
	if target < 0 || target >= s.o.Frames {
		return decode.ErrDecode
	}
	// 向后对齐关键帧
	s.pos = target - target%s.o.GOP
	return nil
}

func (s *session) Next() (*image.YCbCr, int64, error) {
	if s.pos >= s.o.Frames {
		return nil, 0, io.EOF
	}
	if s.o.FrameDelay > 0 {
		time.Sleep(s.o.FrameDelay)
	}
	pic := frames.NewPicture(s.w, s.h)
	pic.Y[0] = uint8(s.pos)
	pts := int64(s.pos) * s.o.PTSStep
	s.pos++
	return pic, pts, nil
}

func (s *session) Close() error {
	s.o.active.Add(-1)
	return nil
}
