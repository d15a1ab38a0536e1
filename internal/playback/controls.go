package playback

import (
	"math"
	"sync"

	"tapex-player/internal/config"
	"tapex-player/internal/logger"
)

// Command 用户操作 (键盘、HTTP、WebSocket 共用)
type Command int

const (
	CmdNone Command = iota
	CmdTogglePause
	CmdToggleReverse
	CmdSpeedUp
	CmdSpeedDown
	CmdVolumeUp
	CmdVolumeDown
	CmdSeekForward
	CmdSeekBackward
	CmdToggleDebug
	CmdQuit
)

var commandNames = map[string]Command{
	"pause":       CmdTogglePause,
	"reverse":     CmdToggleReverse,
	"faster":      CmdSpeedUp,
	"slower":      CmdSpeedDown,
	"volume_up":   CmdVolumeUp,
	"volume_down": CmdVolumeDown,
	"forward":     CmdSeekForward,
	"backward":    CmdSeekBackward,
	"debug":       CmdToggleDebug,
	"quit":        CmdQuit,
}

// ParseCommand 由名字解析操作
func ParseCommand(name string) (Command, bool) {
	c, ok := commandNames[name]
	return c, ok
}

func (c Command) String() string {
	for name, cmd := range commandNames {
		if cmd == c {
			return name
		}
	}
	return "none"
}

// Controls 把操作应用到时钟和播放头
type Controls struct {
	clock *Clock
	head  *Head
	quit  chan struct{}
	once  sync.Once
}

// NewControls 创建控制器
func NewControls(clock *Clock, head *Head) *Controls {
	return &Controls{clock: clock, head: head, quit: make(chan struct{})}
}

// Quit 收到退出操作后关闭
func (c *Controls) Quit() <-chan struct{} {
	return c.quit
}

// Apply 执行操作，返回是否要求退出
func (c *Controls) Apply(cmd Command) bool {
	switch cmd {
	case CmdTogglePause:
		paused := c.clock.TogglePaused()
		logger.LogInfo("pause toggled", "paused", paused)
	case CmdToggleReverse:
		reverse := c.clock.ToggleReverse()
		logger.LogInfo("reverse toggled", "reverse", reverse)
	case CmdSpeedUp:
		c.clock.SetTargetRate(c.clock.TargetRate() * 2)
		logger.LogInfo("speed", "target", c.clock.TargetRate())
	case CmdSpeedDown:
		c.clock.SetTargetRate(c.clock.TargetRate() / 2)
		logger.LogInfo("speed", "target", c.clock.TargetRate())
	case CmdVolumeUp:
		c.clock.SetVolume(roundVolume(c.clock.Volume() + config.VolumeStep))
	case CmdVolumeDown:
		c.clock.SetVolume(roundVolume(c.clock.Volume() - config.VolumeStep))
	case CmdSeekForward:
		_ = c.head.SeekBy(config.SeekStepSeconds)
	case CmdSeekBackward:
		_ = c.head.SeekBy(-config.SeekStepSeconds)
	case CmdToggleDebug:
		c.head.ToggleDebug()
	case CmdQuit:
		c.once.Do(func() { close(c.quit) })
		return true
	default:
		return false
	}
	c.head.Refresh()
	return false
}

// roundVolume 音量保持在 0.1 的整数倍
func roundVolume(v float64) float64 {
	return math.Round(v*10) / 10
}
