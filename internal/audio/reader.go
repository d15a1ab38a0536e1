package audio

import (
	"encoding/binary"
	"math"
	"sync"
)

// Controls 播放控制值的来源 (由 PlaybackClock 提供)
type Controls interface {
	// EffectiveRate 带方向的速度，暂停为 0
	EffectiveRate() float64
	Volume() float64
}

// Reader 按当前速度/方向/音量从 Track 取样的 io.Reader
// 变速采用最近邻取样，音调随速度变化
type Reader struct {
	track *Track
	ctl   Controls

	mu  sync.Mutex
	pos float64 // 采样帧位置
}

// NewReader 创建读取器，位置从 0 开始
func NewReader(track *Track, ctl Controls) *Reader {
	return &Reader{track: track, ctl: ctl}
}

// Read 填充 S16LE 立体声数据；越界和暂停时输出静音，不返回 EOF
func (r *Reader) Read(p []byte) (int, error) {
	n := len(p) / FrameBytes
	if n == 0 {
		return 0, nil
	}
	rate := r.ctl.EffectiveRate()
	vol := math.Max(0, math.Min(1, r.ctl.Volume()))
	total := r.track.Frames()

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < n; i++ {
		out := p[i*FrameBytes : (i+1)*FrameBytes]
		if rate == 0 {
			clear(out)
			continue
		}
		if idx := int(r.pos); r.pos >= 0 && idx < total {
			for ch := 0; ch < Channels; ch++ {
				v := float64(r.track.Samples[idx*Channels+ch]) * vol
				binary.LittleEndian.PutUint16(out[ch*2:], uint16(int16(v)))
			}
		} else {
			clear(out)
		}
		// 越界后停在边界外一格，反向时能立即回到有效范围
		r.pos = math.Max(-1, math.Min(float64(total), r.pos+rate))
	}
	return n * FrameBytes, nil
}

// Position 读取位置 (秒)，不含输出缓冲延迟
func (r *Reader) Position() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frameToSeconds(r.pos)
}

// Seek 跳到指定秒数
func (r *Reader) Seek(seconds float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos := seconds * float64(r.track.SampleRate)
	r.pos = math.Max(0, math.Min(float64(r.track.Frames()), pos))
}

func (r *Reader) frameToSeconds(pos float64) float64 {
	if r.track.SampleRate <= 0 {
		return 0
	}
	return math.Max(0, pos) / float64(r.track.SampleRate)
}
