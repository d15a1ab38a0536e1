package server

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"tapex-player/internal/config"
	"tapex-player/internal/display/overlay"
	"tapex-player/internal/frames"
	"tapex-player/internal/models"
	"tapex-player/internal/playback"
	"tapex-player/internal/schedule"
)

// ErrUnknownAction 无法识别的控制操作
var ErrUnknownAction = errors.New("unknown action")

// Reporter 调度器最近一次 tick 的结果
type Reporter interface {
	LastReport() schedule.Report
}

// State 播放器对外暴露的状态与控制入口
// HTTP、WebSocket、neffos 三种接口共用
type State struct {
	id       string
	info     models.MediaInfo
	cfg      config.Config
	index    *frames.Index
	clock    *playback.Clock
	head     *playback.Head
	controls *playback.Controls
	reporter Reporter

	mu     sync.Mutex
	states []frames.Tier
}

// NewState 每打开一个文件生成一个新的会话 ID；reporter 可以为 nil
func NewState(info models.MediaInfo, cfg config.Config, index *frames.Index, clock *playback.Clock,
	head *playback.Head, controls *playback.Controls, reporter Reporter) *State {
	return &State{
		id:       uuid.NewString(),
		info:     info,
		cfg:      cfg,
		index:    index,
		clock:    clock,
		head:     head,
		controls: controls,
		reporter: reporter,
	}
}

// SessionID 播放会话 ID
func (s *State) SessionID() string { return s.id }

// Status 状态快照
type Status struct {
	SessionID     string        `json:"session_id" msgpack:"session_id"`
	File          string        `json:"file" msgpack:"file"`
	Frame         int           `json:"frame" msgpack:"frame"`
	Total         int           `json:"total" msgpack:"total"`
	TimeMillis    int64         `json:"time_ms" msgpack:"time_ms"`
	DurationMs    int64         `json:"duration_ms" msgpack:"duration_ms"`
	Timecode      string        `json:"timecode" msgpack:"timecode"`
	TimecodeHuman string        `json:"timecode_human" msgpack:"timecode_human"`
	Tier          string        `json:"tier" msgpack:"tier"`
	Rate          float64       `json:"rate" msgpack:"rate"`
	TargetRate    float64       `json:"target_rate" msgpack:"target_rate"`
	Reverse       bool          `json:"reverse" msgpack:"reverse"`
	Paused        bool          `json:"paused" msgpack:"paused"`
	Volume        float64       `json:"volume" msgpack:"volume"`
	Debug         bool          `json:"debug" msgpack:"debug"`
	LowRes        int           `json:"low_res" msgpack:"low_res"`
	FullRes       int           `json:"full_res" msgpack:"full_res"`
	CacheBytes    int64         `json:"cache_bytes" msgpack:"cache_bytes"`
	Buffer        frames.Window `json:"buffer" msgpack:"buffer"`
	HighRes       frames.Window `json:"high_res" msgpack:"high_res"`
}

// Status 当前状态
func (s *State) Status() Status {
	cur := s.head.CurrentFrame()
	st := Status{
		SessionID:  s.id,
		File:       filepath.Base(s.info.Path),
		Frame:      cur,
		Total:      s.index.Len(),
		DurationMs: s.info.DurationMs,
		Rate:       s.clock.Rate(),
		TargetRate: s.clock.TargetRate(),
		Reverse:    s.clock.Reverse(),
		Paused:     s.clock.Paused(),
		Volume:     s.clock.Volume(),
		Debug:      s.head.Debug(),
		Buffer:     frames.NoWindow,
		HighRes:    frames.NoWindow,
	}
	if f, ok := s.index.Snapshot(cur); ok {
		st.TimeMillis = f.TimeMillis
		st.Tier = f.Tier.String()
	}
	st.Timecode = overlay.Timecode(st.TimeMillis)
	st.TimecodeHuman = overlay.Human(st.TimeMillis)

	c := s.index.Counts()
	st.LowRes, st.FullRes, st.CacheBytes = c.Low, c.Full, c.Bytes
	if s.reporter != nil {
		r := s.reporter.LastReport()
		st.Buffer, st.HighRes = r.Buffer, r.HighRes
	}
	return st
}

// Run 游程编码中的一段
type Run struct {
	Tier  string `json:"tier"`
	Start int    `json:"start"`
	Count int    `json:"count"`
}

// CacheMap 每帧层级的游程编码，以及紧凑字符串形式 (如 "120.40L61F"，"." 为空)
func (s *State) CacheMap() ([]Run, string) {
	s.mu.Lock()
	s.states = s.index.States(s.states)
	runs := encodeRuns(s.states)
	s.mu.Unlock()

	compact := make([]byte, 0, len(runs)*6)
	for _, r := range runs {
		compact = fmt.Appendf(compact, "%d%s", r.Count, r.Tier)
	}
	return runs, string(compact)
}

func encodeRuns(states []frames.Tier) []Run {
	var runs []Run
	for i := 0; i < len(states); {
		j := i
		for j < len(states) && states[j] == states[i] {
			j++
		}
		runs = append(runs, Run{Tier: string(states[i].Code()), Start: i, Count: j - i})
		i = j
	}
	return runs
}

// Seek 跳到指定帧；越界返回包装了 decode.ErrBounds 的错误
func (s *State) Seek(frame int) error {
	return s.head.SeekTo(frame)
}

// SeekSeconds 跳到指定秒数 (限制在文件范围内)
func (s *State) SeekSeconds(seconds float64) error {
	frame := int(seconds * s.clock.FPS())
	return s.head.SeekTo(min(max(frame, 0), s.index.Len()-1))
}

// Control 执行一个命名操作；speed/volume 需要 value
func (s *State) Control(action string, value float64) error {
	switch action {
	case "speed":
		s.clock.SetTargetRate(value)
	case "volume":
		s.clock.SetVolume(value)
	default:
		cmd, ok := playback.ParseCommand(action)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownAction, action)
		}
		s.controls.Apply(cmd)
		return nil
	}
	s.head.Refresh()
	return nil
}

// Config 生效中的配置与媒体信息
func (s *State) Config() (config.Config, models.MediaInfo) {
	return s.cfg, s.info
}
