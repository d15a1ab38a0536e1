package frames

import (
	"image"
	"sync"
	"sync/atomic"

	"tapex-player/internal/models"
)

// entry 单帧缓存条目
// tier 与 pic 只能在 mu 内一起修改：Empty <=> pic == nil
type entry struct {
	mu     sync.Mutex
	pts    int64 // 包 PTS，构建后不再变化
	relPTS int64
	millis int64
	tier   Tier
	pic    *image.YCbCr
}

// Residency 调度器发布的驻留窗口
// 解码线程写入前在条目锁内检查：低分辨率写入必须落在 Buffer 内，全分辨率写入必须落在 HighRes 内
type Residency struct {
	Buffer  Window
	HighRes Window
}

// Frame 某一帧的快照
type Frame struct {
	Index      int
	PTS        int64
	TimeMillis int64
	Tier       Tier
	Picture    *image.YCbCr
}

// Counts 驻留统计
type Counts struct {
	Low   int   `json:"low"`
	Full  int   `json:"full"`
	Bytes int64 `json:"bytes"`
}

// Index 帧索引：按读取顺序每个视频包一个条目，长度在构建后固定
type Index struct {
	entries   []entry
	timeBase  Rational
	start     int64
	residency atomic.Pointer[Residency]

	low   atomic.Int64
	full  atomic.Int64
	bytes atomic.Int64
}

// Rational 时间基
type Rational struct {
	Num int
	Den int
}

// New 由包索引创建帧索引，所有条目初始为 Empty
func New(records []models.PacketRecord, tb Rational, streamStart int64) *Index {
	if tb.Num <= 0 || tb.Den <= 0 {
		tb = Rational{Num: 1, Den: 1000}
	}
	x := &Index{
		entries:  make([]entry, len(records)),
		timeBase: tb,
		start:    streamStart,
	}
	for i, r := range records {
		x.entries[i].pts = r.PTS
		x.entries[i].relPTS = r.RelativePTS
		x.entries[i].millis = r.TimeMillis
	}
	return x
}

// Len 帧数
func (x *Index) Len() int {
	return len(x.entries)
}

func (x *Index) valid(i int) bool {
	return i >= 0 && i < len(x.entries)
}

// PTS 第 i 帧的包 PTS
func (x *Index) PTS(i int) (int64, bool) {
	if !x.valid(i) {
		return 0, false
	}
	return x.entries[i].pts, true
}

// Tier 第 i 帧当前层级
func (x *Index) Tier(i int) Tier {
	if !x.valid(i) {
		return Empty
	}
	e := &x.entries[i]
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tier
}

// Snapshot 读取第 i 帧。返回的 Picture 不会被修改 (替换时换新的 buffer)，可以在锁外使用
func (x *Index) Snapshot(i int) (Frame, bool) {
	if !x.valid(i) {
		return Frame{}, false
	}
	e := &x.entries[i]
	e.mu.Lock()
	defer e.mu.Unlock()
	return Frame{Index: i, PTS: e.pts, TimeMillis: e.millis, Tier: e.tier, Picture: e.pic}, true
}

// States 把所有条目层级写入 dst (长度不够会重新分配)，用于调试条和缓存地图
func (x *Index) States(dst []Tier) []Tier {
	if cap(dst) < len(x.entries) {
		dst = make([]Tier, len(x.entries))
	}
	dst = dst[:len(x.entries)]
	for i := range x.entries {
		e := &x.entries[i]
		e.mu.Lock()
		dst[i] = e.tier
		e.mu.Unlock()
	}
	return dst
}

// Counts 驻留统计
func (x *Index) Counts() Counts {
	return Counts{Low: int(x.low.Load()), Full: int(x.full.Load()), Bytes: x.bytes.Load()}
}

// SetResidency 发布新的驻留窗口
func (x *Index) SetResidency(r Residency) {
	x.residency.Store(&r)
}

// CurrentResidency 当前驻留窗口，未发布时 ok=false (此时不做限制)
func (x *Index) CurrentResidency() (Residency, bool) {
	r := x.residency.Load()
	if r == nil {
		return Residency{}, false
	}
	return *r, true
}

// Store 把解码结果交给条目 (所有权转移)
// 规则：
//   - 不在当前驻留窗口内的写入被丢弃
//   - 低分辨率写入不会覆盖已有的全分辨率
//
// 返回是否写入
func (x *Index) Store(i int, tier Tier, pic *image.YCbCr, pts int64) bool {
	if !x.valid(i) || tier == Empty || pic == nil {
		return false
	}
	e := &x.entries[i]
	e.mu.Lock()
	defer e.mu.Unlock()

	if r := x.residency.Load(); r != nil {
		switch tier {
		case LowRes:
			if !r.Buffer.Contains(i) {
				return false
			}
		case FullRes:
			if !r.HighRes.Contains(i) {
				return false
			}
		}
	}
	if tier == LowRes && e.tier == FullRes {
		return false
	}

	x.replace(e, tier, pic)
	e.relPTS = pts - x.start
	e.millis = e.relPTS * 1000 * int64(x.timeBase.Num) / int64(x.timeBase.Den)
	return true
}

// replace 调用方持有 e.mu
func (x *Index) replace(e *entry, tier Tier, pic *image.YCbCr) {
	x.account(e.tier, e.pic, -1)
	e.tier = tier
	e.pic = pic
	if tier == Empty {
		e.pic = nil
	}
	x.account(e.tier, e.pic, 1)
}

func (x *Index) account(t Tier, pic *image.YCbCr, sign int64) {
	switch t {
	case LowRes:
		x.low.Add(sign)
	case FullRes:
		x.full.Add(sign)
	default:
		return
	}
	x.bytes.Add(sign * PictureBytes(pic))
}

// Release 释放所有帧 (文件关闭/重新加载)
func (x *Index) Release() {
	for i := range x.entries {
		e := &x.entries[i]
		e.mu.Lock()
		x.replace(e, Empty, nil)
		e.mu.Unlock()
	}
	x.residency.Store(nil)
}

// Pending 窗口内层级低于 want 的最小连续覆盖区间，没有则返回空窗口
func (x *Index) Pending(w Window, want Tier) Window {
	w = w.Clamp(len(x.entries))
	if w.Empty() {
		return NoWindow
	}
	lo, hi := -1, -1
	for i := w.Lo; i <= w.Hi; i++ {
		if x.Tier(i) < want {
			if lo < 0 {
				lo = i
			}
			hi = i
		}
	}
	if lo < 0 {
		return NoWindow
	}
	return Window{Lo: lo, Hi: hi}
}

// PictureBytes 三个平面的字节数
func PictureBytes(pic *image.YCbCr) int64 {
	if pic == nil {
		return 0
	}
	return int64(len(pic.Y) + len(pic.Cb) + len(pic.Cr))
}
