package server

import (
	"errors"

	"github.com/kataras/iris/v12"

	"tapex-player/internal/decode"
)

// Handlers API 处理器
type Handlers struct {
	state *State
}

// NewHandlers 创建处理器
func NewHandlers(state *State) *Handlers {
	return &Handlers{state: state}
}

// ==================== API (v1) ====================

// GetStatus 播放状态
// GET /api/v1/status
func (h *Handlers) GetStatus(ctx iris.Context) {
	ctx.JSON(h.state.Status())
}

// GetCache 帧缓存地图
// GET /api/v1/cache
func (h *Handlers) GetCache(ctx iris.Context) {
	runs, compact := h.state.CacheMap()
	st := h.state.Status()
	ctx.JSON(iris.Map{
		"total":    st.Total,
		"current":  st.Frame,
		"low_res":  st.LowRes,
		"full_res": st.FullRes,
		"bytes":    st.CacheBytes,
		"buffer":   st.Buffer,
		"high_res": st.HighRes,
		"runs":     runs,
		"map":      compact,
	})
}

// Seek 跳转，frame 优先于 seconds
// POST /api/v1/seek
func (h *Handlers) Seek(ctx iris.Context) {
	var req struct {
		Frame   *int     `json:"frame"`
		Seconds *float64 `json:"seconds"`
	}
	if err := ctx.ReadJSON(&req); err != nil {
		ctx.StopWithJSON(iris.StatusBadRequest, iris.Map{"error": "无效的 JSON"})
		return
	}

	var err error
	switch {
	case req.Frame != nil:
		err = h.state.Seek(*req.Frame)
	case req.Seconds != nil:
		err = h.state.SeekSeconds(*req.Seconds)
	default:
		ctx.StopWithJSON(iris.StatusBadRequest, iris.Map{"error": "缺少 frame 或 seconds"})
		return
	}
	if err != nil {
		status := iris.StatusInternalServerError
		if errors.Is(err, decode.ErrBounds) {
			status = iris.StatusBadRequest
		}
		ctx.StopWithJSON(status, iris.Map{"error": err.Error()})
		return
	}
	ctx.JSON(h.state.Status())
}

// ControlRequest 控制请求 (HTTP 与 WebSocket 共用)
type ControlRequest struct {
	Action string  `json:"action" msgpack:"action"`
	Value  float64 `json:"value" msgpack:"value"`
	Frame  *int    `json:"frame,omitempty" msgpack:"frame,omitempty"`
}

// apply seek 带 frame；其余交给 State.Control
func (r ControlRequest) apply(s *State) error {
	if r.Action == "seek" {
		if r.Frame != nil {
			return s.Seek(*r.Frame)
		}
		return s.SeekSeconds(r.Value)
	}
	return s.Control(r.Action, r.Value)
}

// Control 执行操作
// POST /api/v1/control
func (h *Handlers) Control(ctx iris.Context) {
	var req ControlRequest
	if err := ctx.ReadJSON(&req); err != nil {
		ctx.StopWithJSON(iris.StatusBadRequest, iris.Map{"error": "无效的 JSON"})
		return
	}
	if err := req.apply(h.state); err != nil {
		ctx.StopWithJSON(iris.StatusBadRequest, iris.Map{"error": err.Error()})
		return
	}
	ctx.JSON(h.state.Status())
}

// GetConfig 生效中的配置与媒体信息
// GET /api/v1/config
func (h *Handlers) GetConfig(ctx iris.Context) {
	cfg, info := h.state.Config()
	ctx.JSON(iris.Map{
		"session_id": h.state.SessionID(),
		"media": iris.Map{
			"path":        info.Path,
			"fps":         info.FPS,
			"duration_ms": info.DurationMs,
			"width":       info.Width,
			"height":      info.Height,
			"codec":       info.VideoCodec,
			"has_audio":   info.HasAudio,
		},
		"scheduler": iris.Map{
			"buffer_size":          cfg.BufferSize,
			"high_res_window_size": cfg.HighResWindowSize,
			"prediction_frames":    cfg.PredictionFrames,
			"update_interval_ms":   cfg.UpdateInterval.Milliseconds(),
			"decode_workers":       cfg.DecodeWorkers,
			"low_res_divisor":      cfg.LowResDivisor,
			"prefer_hardware":      cfg.PreferHardware,
		},
	})
}

// ==================== 路由注册 ====================

// RegisterRoutes 注册路由
func RegisterRoutes(app *iris.Application, h *Handlers, events iris.Handler) {
	v1 := app.Party("/api/v1")
	{
		v1.Get("/status", h.GetStatus)
		v1.Get("/cache", h.GetCache)
		v1.Get("/config", h.GetConfig)
		v1.Post("/seek", h.Seek)
		v1.Post("/control", h.Control)
		v1.Get("/ws", h.HandleWebSocket) // 状态推送
		if events != nil {
			v1.Get("/events", events) // neffos 事件命名空间
		}
	}
}
