package models

// PacketRecord 视频包索引记录 (32 bytes, 内存布局与 mmap 缓存文件一致)
// int64 字段放在开头保证 8 字节对齐，没有 padding
type PacketRecord struct {
	PTS         int64  // 原始 PTS (stream time base)
	RelativePTS int64  // PTS - stream start
	TimeMillis  int64  // 相对毫秒时间
	Size        uint32 // 包大小
	Flags       uint32 // PacketFlag*
}

// PacketFlag 包标记
const (
	PacketFlagKey     = 1 << 0
	PacketFlagNoPTS   = 1 << 1 // PTS 缺失，使用 DTS 代替
	PacketFlagCorrupt = 1 << 2
)

// IsKeyframe 是否关键帧
func (r PacketRecord) IsKeyframe() bool {
	return r.Flags&PacketFlagKey != 0
}

// MediaInfo 探测结果
type MediaInfo struct {
	Path        string
	FPS         float64
	DurationMs  int64
	Width       int
	Height      int
	VideoCodec  string
	HasAudio    bool
	VideoStream int
	TimeBaseNum int
	TimeBaseDen int
	StreamStart int64
}
