package decode

import (
	"image"

	"tapex-player/internal/frames"
)

// Session 独立的解码会话 (自己的容器句柄和解码器上下文)
// 一个会话只在一个 goroutine 中使用
type Session interface {
	// SeekTo 向后对齐到 pts 之前的关键帧，并清空解码器缓冲
	SeekTo(pts int64) error
	// Next 返回下一帧解码后的图像 (已按层级缩放) 和它的 PTS，流结束返回 io.EOF
	Next() (*image.YCbCr, int64, error)
	Close() error
}

// Opener 为某个层级打开新的解码会话
type Opener interface {
	Open(path string, tier frames.Tier) (Session, error)
}
