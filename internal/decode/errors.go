package decode

import (
	"errors"
	"fmt"
)

// 错误分类
var (
	// ErrOpen 容器或流无法打开/找不到
	ErrOpen = errors.New("open failure")
	// ErrCodec 解码器分配、参数拷贝或打开失败
	ErrCodec = errors.New("codec failure")
	// ErrDecode 读包/解码过程中的错误 (EAGAIN 和 EOF 不算)
	ErrDecode = errors.New("decode failure")
	// ErrBounds 下标或 seek 目标越界
	ErrBounds = errors.New("bounds failure")

	ErrNoVideoStream = fmt.Errorf("%w: no video stream", ErrOpen)
)
