package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// 播放速度范围 (键盘/HTTP 的 ×2 ÷2 都会被夹到这个区间)
	MinSpeed = 0.25
	MaxSpeed = 16.0

	// 音量
	VolumeStep = 0.1
	MinVolume  = 0.0
	MaxVolume  = 1.0

	// 键盘左右方向键跳转秒数
	SeekStepSeconds = 5.0

	// 空帧占位图尺寸 (YUV420 黑色)
	PlaceholderWidth  = 320
	PlaceholderHeight = 180
	BlackLuma         = 16
	BlackChroma       = 128

	// UI 线程轮询频率
	UIPollInterval = time.Second / 60

	// 没有帧率信息时的兜底
	FallbackFPS = 25.0
)

var (
	// 默认配置
	DefaultIndexCacheDir = ".index_cache"
	DefaultSampleRate    = 44100
)

// Config 播放器可调参数，可以由 -config 指定 YAML 文件覆盖
type Config struct {
	// BufferSize 低分辨率窗口大小 (帧)
	BufferSize int `yaml:"buffer_size"`
	// HighResWindowSize 全分辨率窗口大小 (帧)，必须不大于 BufferSize
	HighResWindowSize int `yaml:"high_res_window_size"`
	// PredictionFrames 预测帧数，predicted = current + rate * PredictionFrames
	// MaxSpeed * PredictionFrames 不能超过 BufferSize/2，否则高速时播放头落在 buffer 之外
	PredictionFrames int `yaml:"prediction_frames"`
	// UpdateInterval 调度器 tick 间隔
	UpdateInterval time.Duration `yaml:"update_interval"`
	// DecodeWorkers 每次区间解码并发的会话数
	DecodeWorkers int `yaml:"decode_workers"`
	// LowResDivisor 低分辨率层的缩放除数 (4 => 宽高各 1/4)
	LowResDivisor int `yaml:"low_res_divisor"`
	// PreferHardware 优先尝试硬件解码器
	PreferHardware bool `yaml:"prefer_hardware"`
	// SpeedRampPerSecond 实际速度向目标速度逼近的速率 (倍速/秒)
	SpeedRampPerSecond float64 `yaml:"speed_ramp_per_second"`

	AudioSampleRate int  `yaml:"audio_sample_rate"`
	NoAudio         bool `yaml:"no_audio"`

	IndexCacheDir string `yaml:"index_cache_dir"`
	// HTTPAddr 为空时不启动控制服务
	HTTPAddr string `yaml:"http_addr"`
	Debug    bool   `yaml:"debug"`
}

// Default 返回默认配置
func Default() Config {
	return Config{
		BufferSize:         200,
		HighResWindowSize:  60,
		PredictionFrames:   6,
		UpdateInterval:     50 * time.Millisecond,
		DecodeWorkers:      2,
		LowResDivisor:      4,
		PreferHardware:     true,
		SpeedRampPerSecond: 8,
		AudioSampleRate:    DefaultSampleRate,
		IndexCacheDir:      DefaultIndexCacheDir,
	}
}

// Load 在默认配置上叠加 YAML 文件，文件中缺失的键保持默认值
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("读取配置失败: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("解析配置失败: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate 检查参数之间的约束
func (c Config) Validate() error {
	if c.BufferSize <= 0 {
		return errors.New("buffer_size must be positive")
	}
	if c.HighResWindowSize <= 0 || c.HighResWindowSize > c.BufferSize {
		return errors.New("high_res_window_size must be in (0, buffer_size]")
	}
	if c.PredictionFrames < 0 {
		return errors.New("prediction_frames must not be negative")
	}
	if float64(c.PredictionFrames)*MaxSpeed > float64(c.BufferSize/2) {
		return fmt.Errorf("prediction_frames * %g must not exceed buffer_size/2 (%d)", MaxSpeed, c.BufferSize/2)
	}
	if c.UpdateInterval <= 0 {
		return errors.New("update_interval must be positive")
	}
	if c.DecodeWorkers <= 0 {
		return errors.New("decode_workers must be positive")
	}
	if c.LowResDivisor < 1 {
		return errors.New("low_res_divisor must be at least 1")
	}
	if c.SpeedRampPerSecond <= 0 {
		return errors.New("speed_ramp_per_second must be positive")
	}
	if c.AudioSampleRate <= 0 {
		return errors.New("audio_sample_rate must be positive")
	}
	return nil
}

func (c Config) String() string {
	return fmt.Sprintf("buffer=%d hires=%d predict=%d tick=%s workers=%d lowres=1/%d hw=%v http=%q",
		c.BufferSize, c.HighResWindowSize, c.PredictionFrames, c.UpdateInterval,
		c.DecodeWorkers, c.LowResDivisor, c.PreferHardware, c.HTTPAddr)
}

// ClampSpeed 把速度限制在 [MinSpeed, MaxSpeed]
func ClampSpeed(v float64) float64 {
	return min(max(v, MinSpeed), MaxSpeed)
}

// ClampVolume 把音量限制在 [0, 1]
func ClampVolume(v float64) float64 {
	return min(max(v, MinVolume), MaxVolume)
}
