package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

// 最高速度下预测点离播放头不超过半个 buffer
func TestDefaultKeepsPlayheadInBuffer(t *testing.T) {
	cfg := Default()
	if reach := float64(cfg.PredictionFrames) * MaxSpeed; reach > float64(cfg.BufferSize/2) {
		t.Errorf("prediction reach %.0f frames exceeds half buffer %d", reach, cfg.BufferSize/2)
	}

	cfg.BufferSize = 100
	cfg.HighResWindowSize = 50
	cfg.PredictionFrames = 3
	if err := cfg.Validate(); err != nil {
		t.Errorf("3 frames * 16 = 48 within 50: %v", err)
	}
	cfg.PredictionFrames = 4
	if cfg.Validate() == nil {
		t.Error("4 frames * 16 = 64 beyond 50 accepted")
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "player.yaml")
	data := "buffer_size: 300\nupdate_interval: 20ms\nhttp_addr: \":9000\"\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BufferSize != 300 {
		t.Errorf("BufferSize = %d, want 300", cfg.BufferSize)
	}
	if cfg.UpdateInterval != 20*time.Millisecond {
		t.Errorf("UpdateInterval = %s, want 20ms", cfg.UpdateInterval)
	}
	if cfg.HighResWindowSize != 60 {
		t.Errorf("HighResWindowSize = %d, want default 60", cfg.HighResWindowSize)
	}
	if cfg.HTTPAddr != ":9000" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg != Default() {
		t.Errorf("Load(\"\") = %+v, want defaults", cfg)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*Config)
	}{
		{"zero buffer", func(c *Config) { c.BufferSize = 0 }},
		{"hires larger than buffer", func(c *Config) { c.HighResWindowSize = c.BufferSize + 1 }},
		{"negative prediction", func(c *Config) { c.PredictionFrames = -1 }},
		{"prediction past buffer at max speed", func(c *Config) { c.PredictionFrames = c.BufferSize/2/int(MaxSpeed) + 1 }},
		{"no workers", func(c *Config) { c.DecodeWorkers = 0 }},
		{"zero divisor", func(c *Config) { c.LowResDivisor = 0 }},
		{"zero tick", func(c *Config) { c.UpdateInterval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mut(&cfg)
			if cfg.Validate() == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestClamp(t *testing.T) {
	if got := ClampSpeed(32); got != MaxSpeed {
		t.Errorf("ClampSpeed(32) = %v", got)
	}
	if got := ClampSpeed(0.1); got != MinSpeed {
		t.Errorf("ClampSpeed(0.1) = %v", got)
	}
	if got := ClampVolume(1.05); got != 1 {
		t.Errorf("ClampVolume(1.05) = %v", got)
	}
	if got := ClampVolume(-0.05); got != 0 {
		t.Errorf("ClampVolume(-0.05) = %v", got)
	}
}
