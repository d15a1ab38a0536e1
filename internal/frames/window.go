package frames

import "fmt"

// Window 闭区间 [Lo, Hi] 的帧下标范围，Lo > Hi 表示空窗口
type Window struct {
	Lo int `json:"lo"`
	Hi int `json:"hi"`
}

// NoWindow 空窗口
var NoWindow = Window{Lo: 0, Hi: -1}

// Span 以 center 为中心、宽度 size 的窗口 [center-size/2, center+size/2]
func Span(center, size int) Window {
	half := size / 2
	return Window{Lo: center - half, Hi: center + half}
}

func (w Window) Empty() bool {
	return w.Lo > w.Hi
}

func (w Window) Len() int {
	if w.Empty() {
		return 0
	}
	return w.Hi - w.Lo + 1
}

func (w Window) Contains(i int) bool {
	return i >= w.Lo && i <= w.Hi
}

// ContainsWindow o 是否完全落在 w 内 (空窗口视为被任何窗口包含)
func (w Window) ContainsWindow(o Window) bool {
	if o.Empty() {
		return true
	}
	return w.Contains(o.Lo) && w.Contains(o.Hi)
}

// Intersect 交集
func (w Window) Intersect(o Window) Window {
	r := Window{Lo: max(w.Lo, o.Lo), Hi: min(w.Hi, o.Hi)}
	if r.Empty() {
		return NoWindow
	}
	return r
}

// Clamp 限制到 [0, n-1]
func (w Window) Clamp(n int) Window {
	return w.Intersect(Window{Lo: 0, Hi: n - 1})
}

// Without 去掉单个下标后剩下的 0~2 段
func (w Window) Without(i int) []Window {
	if w.Empty() {
		return nil
	}
	if !w.Contains(i) {
		return []Window{w}
	}
	var out []Window
	if left := (Window{Lo: w.Lo, Hi: i - 1}); !left.Empty() {
		out = append(out, left)
	}
	if right := (Window{Lo: i + 1, Hi: w.Hi}); !right.Empty() {
		out = append(out, right)
	}
	return out
}

// Complement w 在 [0, n-1] 中的补集 (0~2 段)
func (w Window) Complement(n int) []Window {
	all := Window{Lo: 0, Hi: n - 1}
	if w.Empty() {
		if all.Empty() {
			return nil
		}
		return []Window{all}
	}
	var out []Window
	if left := (Window{Lo: 0, Hi: min(w.Lo-1, n-1)}); !left.Empty() {
		out = append(out, left)
	}
	if right := (Window{Lo: max(w.Hi+1, 0), Hi: n - 1}); !right.Empty() {
		out = append(out, right)
	}
	return out
}

func (w Window) String() string {
	if w.Empty() {
		return "[]"
	}
	return fmt.Sprintf("[%d,%d]", w.Lo, w.Hi)
}
