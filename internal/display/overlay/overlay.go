// Package overlay 窗口叠加层的纯计算部分：画面布局、调试条、状态图标、标题文字、按键映射
package overlay

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/hako/durafmt"

	"tapex-player/internal/frames"
	"tapex-player/internal/playback"
)

// Rect 像素矩形
type Rect struct {
	X, Y, W, H int32
}

// Color RGB 颜色
type Color struct {
	R, G, B uint8
}

var (
	ColorEmpty = Color{R: 220, G: 40, B: 40}
	ColorLow   = Color{R: 40, G: 90, B: 230}
	ColorFull  = Color{R: 40, G: 200, B: 70}
	ColorHead  = Color{R: 255, G: 255, B: 255}
)

// TierColor 调试条颜色：红=空，蓝=低分辨率，绿=全分辨率
func TierColor(t frames.Tier) Color {
	switch t {
	case frames.LowRes:
		return ColorLow
	case frames.FullRes:
		return ColorFull
	default:
		return ColorEmpty
	}
}

// Letterbox 保持宽高比把画面放进窗口并居中
func Letterbox(videoW, videoH, screenW, screenH int32) Rect {
	if videoW <= 0 || videoH <= 0 || screenW <= 0 || screenH <= 0 {
		return Rect{W: max(screenW, 0), H: max(screenH, 0)}
	}
	w, h := screenW, screenH
	if int64(videoW)*int64(screenH) <= int64(screenW)*int64(videoH) {
		w = int32(int64(videoW) * int64(screenH) / int64(videoH))
	} else {
		h = int32(int64(videoH) * int64(screenW) / int64(videoW))
	}
	return Rect{X: (screenW - w) / 2, Y: (screenH - h) / 2, W: w, H: h}
}

// Segment 调试条上的一段
type Segment struct {
	Rect
	Color Color
}

// Bar 把每帧层级压成相同层级的连续段，再映射到 [0, width) 像素
// 最后一段是播放头标记
func Bar(states []frames.Tier, current int, width, y, height int32) []Segment {
	n := len(states)
	if n == 0 || width <= 0 || height <= 0 {
		return nil
	}
	px := func(i int) int32 { return int32(int64(i) * int64(width) / int64(n)) }

	var out []Segment
	for lo := 0; lo < n; {
		hi := lo
		for hi+1 < n && states[hi+1] == states[lo] {
			hi++
		}
		if x0, x1 := px(lo), px(hi+1); x1 > x0 {
			out = append(out, Segment{Rect: Rect{X: x0, Y: y, W: x1 - x0, H: height}, Color: TierColor(states[lo])})
		}
		lo = hi + 1
	}

	cur := min(max(current, 0), n-1)
	x := min(px(cur), width-2)
	out = append(out, Segment{Rect: Rect{X: max(x, 0), Y: y - 2, W: 2, H: height + 4}, Color: ColorHead})
	return out
}

// Glyph 播放/暂停图标：暂停为两条竖杠，播放为由横条堆成的三角形
func Glyph(paused bool, x, y, size int32) []Rect {
	if size <= 0 {
		return nil
	}
	if paused {
		bar := max(size/3, 1)
		return []Rect{
			{X: x, Y: y, W: bar, H: size},
			{X: x + size - bar, Y: y, W: bar, H: size},
		}
	}
	rows := make([]Rect, 0, size)
	half := size / 2
	for r := int32(0); r < size; r++ {
		d := r
		if r > half {
			d = size - 1 - r
		}
		if w := d * 2; w > 0 {
			rows = append(rows, Rect{X: x, Y: y + r, W: min(w, size), H: 1})
		}
	}
	return rows
}

// Timecode HH:MM:SS.mmm
func Timecode(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms%1000)
}

// Human 人读时长，只保留最大的两个单位
func Human(ms int64) string {
	if ms < 1000 {
		return "0 seconds"
	}
	return durafmt.Parse(time.Duration(ms) * time.Millisecond).LimitFirstN(2).String()
}

// Title 窗口标题：文件名、时间码、状态、速度、音量、帧号
func Title(path string, v playback.View, durationMs int64) string {
	state := "▶"
	if v.Paused {
		state = "❚❚"
	} else if v.Reverse {
		state = "◀"
	}
	tier := v.Tier.String()
	if v.Placeholder {
		tier = "BLACK"
	}
	return fmt.Sprintf("%s | %s / %s (%s) | %s %.2fx | vol %.1f | frame %d/%d [%s]",
		filepath.Base(path), Timecode(v.TimeMillis), Timecode(durationMs), Human(v.TimeMillis),
		state, v.Rate, v.Volume, v.Index+1, v.Total, tier)
}

var keyCommands = map[string]playback.Command{
	"space":  playback.CmdTogglePause,
	"r":      playback.CmdToggleReverse,
	"up":     playback.CmdSpeedUp,
	"down":   playback.CmdSpeedDown,
	"=":      playback.CmdVolumeUp,
	"+":      playback.CmdVolumeUp,
	"-":      playback.CmdVolumeDown,
	"right":  playback.CmdSeekForward,
	"left":   playback.CmdSeekBackward,
	"d":      playback.CmdToggleDebug,
	"q":      playback.CmdQuit,
	"escape": playback.CmdQuit,
}

// KeyCommand 按键名 (不区分大小写) 对应的操作
func KeyCommand(name string) playback.Command {
	return keyCommands[strings.ToLower(name)]
}
