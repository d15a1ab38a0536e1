package playback

import (
	"image"

	"tapex-player/internal/frames"
)

// View 一次呈现需要的全部信息
type View struct {
	Picture *image.YCbCr
	Tier    frames.Tier
	// Placeholder 为 true 时 Picture 是黑色占位图
	Placeholder bool

	Index      int
	Total      int
	TimeMillis int64
	Paused     bool
	Rate       float64
	Reverse    bool
	Volume     float64

	// Debug 打开时 States 为每帧层级，用于三色调试条
	Debug  bool
	States []frames.Tier
}

// Renderer 呈现端
type Renderer interface {
	DisplayFrame(v View) error
}
