// Package display SDL 窗口：YUV 纹理呈现、调试条、状态图标、标题时间码、键盘输入
// 所有方法必须在调用 Open 的同一个锁定 OS 线程上调用
package display

import (
	"fmt"

	"github.com/veandco/go-sdl2/sdl"

	"tapex-player/internal/display/overlay"
	"tapex-player/internal/playback"
)

const (
	barHeight  = 8
	barMargin  = 6
	glyphSize  = 18
	glyphInset = 12
)

// Window SDL 窗口，实现 playback.Renderer
type Window struct {
	path       string
	durationMs int64

	win      *sdl.Window
	renderer *sdl.Renderer
	texture  *sdl.Texture
	texW     int32
	texH     int32
	title    string
}

// Open 初始化 SDL 并创建窗口，初始大小为视频尺寸
func Open(path string, width, height int, durationMs int64) (*Window, error) {
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return nil, fmt.Errorf("sdl init: %w", err)
	}
	win, err := sdl.CreateWindow("tapex-player", sdl.WINDOWPOS_CENTERED, sdl.WINDOWPOS_CENTERED,
		int32(width), int32(height), sdl.WINDOW_SHOWN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.Quit()
		return nil, fmt.Errorf("create window: %w", err)
	}
	renderer, err := sdl.CreateRenderer(win, -1, sdl.RENDERER_ACCELERATED)
	if err != nil {
		win.Destroy()
		sdl.Quit()
		return nil, fmt.Errorf("create renderer: %w", err)
	}
	fmt.Printf("[Display] 窗口已创建: %dx%d\n", width, height)
	return &Window{path: path, durationMs: durationMs, win: win, renderer: renderer}, nil
}

// ensureTexture 纹理尺寸跟随画面 (低分辨率、全分辨率、占位图尺寸不同)
func (w *Window) ensureTexture(width, height int32) error {
	if w.texture != nil && w.texW == width && w.texH == height {
		return nil
	}
	if w.texture != nil {
		_ = w.texture.Destroy()
		w.texture = nil
	}
	tex, err := w.renderer.CreateTexture(uint32(sdl.PIXELFORMAT_IYUV), sdl.TEXTUREACCESS_STREAMING, width, height)
	if err != nil {
		return fmt.Errorf("create texture %dx%d: %w", width, height, err)
	}
	w.texture, w.texW, w.texH = tex, width, height
	return nil
}

// DisplayFrame 上传 4:2:0 平面并绘制叠加层
func (w *Window) DisplayFrame(v playback.View) error {
	pic := v.Picture
	if pic == nil {
		return nil
	}
	b := pic.Rect
	if err := w.ensureTexture(int32(b.Dx()), int32(b.Dy())); err != nil {
		return err
	}
	if err := w.texture.UpdateYUV(nil, pic.Y, pic.YStride, pic.Cb, pic.CStride, pic.Cr, pic.CStride); err != nil {
		return fmt.Errorf("upload frame: %w", err)
	}

	sw, sh, err := w.renderer.GetOutputSize()
	if err != nil {
		return err
	}
	_ = w.renderer.SetDrawColor(0, 0, 0, 255)
	_ = w.renderer.Clear()

	dst := overlay.Letterbox(w.texW, w.texH, sw, sh)
	if err := w.renderer.Copy(w.texture, nil, toSDL(dst)); err != nil {
		return fmt.Errorf("copy frame: %w", err)
	}

	if v.Debug && len(v.States) > 0 {
		y := sh - barHeight - barMargin
		for _, seg := range overlay.Bar(v.States, v.Index, sw, y, barHeight) {
			w.fill(seg.Rect, seg.Color)
		}
	}
	for _, r := range overlay.Glyph(v.Paused, glyphInset, glyphInset, glyphSize) {
		w.fill(r, overlay.ColorHead)
	}

	if title := overlay.Title(w.path, v, w.durationMs); title != w.title {
		w.win.SetTitle(title)
		w.title = title
	}
	w.renderer.Present()
	return nil
}

func (w *Window) fill(r overlay.Rect, c overlay.Color) {
	_ = w.renderer.SetDrawColor(c.R, c.G, c.B, 255)
	_ = w.renderer.FillRect(toSDL(r))
}

func toSDL(r overlay.Rect) *sdl.Rect {
	return &sdl.Rect{X: r.X, Y: r.Y, W: r.W, H: r.H}
}

// PollEvents 取出所有待处理事件并转换成操作；关闭窗口视为退出
// 窗口尺寸变化时 resized 为 true，调用方需要强制重绘
func (w *Window) PollEvents() (cmds []playback.Command, resized bool) {
	for ev := sdl.PollEvent(); ev != nil; ev = sdl.PollEvent() {
		switch e := ev.(type) {
		case *sdl.QuitEvent:
			cmds = append(cmds, playback.CmdQuit)
		case *sdl.KeyboardEvent:
			if e.Type != sdl.KEYDOWN || e.Repeat != 0 {
				continue
			}
			if cmd := overlay.KeyCommand(sdl.GetKeyName(e.Keysym.Sym)); cmd != playback.CmdNone {
				cmds = append(cmds, cmd)
			}
		case *sdl.WindowEvent:
			if e.Event == sdl.WINDOWEVENT_SIZE_CHANGED || e.Event == sdl.WINDOWEVENT_EXPOSED {
				resized = true
			}
		}
	}
	return cmds, resized
}

// Close 释放纹理、渲染器和窗口
func (w *Window) Close() {
	if w.texture != nil {
		_ = w.texture.Destroy()
	}
	if w.renderer != nil {
		_ = w.renderer.Destroy()
	}
	if w.win != nil {
		_ = w.win.Destroy()
	}
	sdl.Quit()
	fmt.Println("[Display] 窗口已关闭")
}
