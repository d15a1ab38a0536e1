package schedule

import (
	"math"
	"time"

	"tapex-player/internal/config"
	"tapex-player/internal/frames"
)

// Params 调度参数
type Params struct {
	BufferSize        int
	HighResWindowSize int
	PredictionFrames  int
	UpdateInterval    time.Duration
}

// ParamsFromConfig 从配置提取调度参数
func ParamsFromConfig(cfg config.Config) Params {
	return Params{
		BufferSize:        cfg.BufferSize,
		HighResWindowSize: cfg.HighResWindowSize,
		PredictionFrames:  cfg.PredictionFrames,
		UpdateInterval:    cfg.UpdateInterval,
	}
}

// Windows 一个 tick 的窗口计算结果
type Windows struct {
	Current   int           `json:"current"`
	Rate      float64       `json:"rate"`
	Predicted int           `json:"predicted"`
	Buffer    frames.Window `json:"buffer"`
	HighRes   frames.Window `json:"high_res"`
	// HighSpeed |rate| > 1，不做高分辨率窗口
	HighSpeed bool `json:"high_speed"`
}

// Compute 由当前帧和带符号速度计算窗口
//
//	predicted = current + rate * PredictionFrames
//	buffer    = [predicted - BufferSize/2, predicted + BufferSize/2] ∩ [0, n-1]
//	highRes   = [predicted - HighResWindowSize/2, predicted + HighResWindowSize/2] ∩ buffer   (|rate| <= 1)
func Compute(current int, rate float64, n int, p Params) Windows {
	predicted := current + int(math.Round(rate*float64(p.PredictionFrames)))
	w := Windows{
		Current:   current,
		Rate:      rate,
		Predicted: predicted,
		Buffer:    frames.Span(predicted, p.BufferSize).Clamp(n),
		HighRes:   frames.NoWindow,
	}
	if math.Abs(rate) > 1 {
		w.HighSpeed = true
		return w
	}
	w.HighRes = frames.Span(predicted, p.HighResWindowSize).Intersect(w.Buffer)
	return w
}

// downgradeRanges buffer 中不属于 highRes 的部分
func downgradeRanges(buffer, highRes frames.Window) []frames.Window {
	if buffer.Empty() {
		return nil
	}
	if highRes.Empty() {
		return []frames.Window{buffer}
	}
	var out []frames.Window
	if left := (frames.Window{Lo: buffer.Lo, Hi: highRes.Lo - 1}); !left.Empty() {
		out = append(out, left)
	}
	if right := (frames.Window{Lo: highRes.Hi + 1, Hi: buffer.Hi}); !right.Empty() {
		out = append(out, right)
	}
	return out
}
