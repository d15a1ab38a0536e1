package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"tapex-player/internal/audio"
	"tapex-player/internal/config"
	"tapex-player/internal/decode"
	"tapex-player/internal/demux"
	"tapex-player/internal/display"
	"tapex-player/internal/frames"
	"tapex-player/internal/index"
	"tapex-player/internal/logger"
	"tapex-player/internal/playback"
	"tapex-player/internal/schedule"
	"tapex-player/internal/server"
	"tapex-player/internal/task"
)

// seek 后预取的低分辨率帧数 (目标帧两侧各一半)
const prefetchFrames = 30

func init() {
	// SDL 窗口和事件必须在主线程
	runtime.LockOSThread()
}

func main() {
	configPath := flag.String("config", "", "YAML config file (optional)")
	debug := flag.Bool("debug", false, "Enable debug logging and the cache bar")
	httpAddr := flag.String("http", "", "Control server address, e.g. 127.0.0.1:8090 (disabled when empty)")
	noAudio := flag.Bool("no-audio", false, "Disable audio output and use the wall clock")
	workers := flag.Int("workers", 0, "Decode sessions per range (0 = config value)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "用法: %s [flags] <video file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	path := flag.Arg(0)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("配置错误: %v\n", err)
		os.Exit(1)
	}
	if *debug {
		cfg.Debug = true
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *noAudio {
		cfg.NoAudio = true
	}
	if *workers > 0 {
		cfg.DecodeWorkers = *workers
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("配置错误: %v\n", err)
		os.Exit(1)
	}
	logger.SetDebugMode(cfg.Debug)

	fmt.Println("============================================================")
	fmt.Println("tapex-player 可拖动变速播放器")
	fmt.Println("============================================================")
	fmt.Printf("文件: %s\n", path)
	fmt.Printf("参数: %s\n", cfg)
	fmt.Println("============================================================")

	if err := run(path, cfg); err != nil {
		fmt.Printf("错误: %v\n", err)
		os.Exit(1)
	}
}

func run(path string, cfg config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ==================== 帧索引 ====================

	cache, err := index.NewCache(cfg.IndexCacheDir)
	if err != nil {
		logger.LogWarn("index cache disabled", "dir", cfg.IndexCacheDir, "err", err)
		cache = nil
	}
	records, info, err := demux.BuildIndex(path, cache)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("%w: %s has no video packets", decode.ErrOpen, path)
	}
	idx := frames.New(records, frames.Rational{Num: info.TimeBaseNum, Den: info.TimeBaseDen}, info.StreamStart)
	defer idx.Release()

	// ==================== 时钟与音频 ====================

	clock := playback.NewClock(info.FPS, float64(info.DurationMs)/1000)
	if out := openAudio(path, info.HasAudio, cfg, clock); out != nil {
		defer out.Close()
		clock.SetSource(out)
	} else {
		clock.SetSource(playback.NewWallClock(clock.Duration(), clock.EffectiveRate))
	}

	// ==================== 窗口与播放头 ====================

	win, err := display.Open(path, info.Width, info.Height, info.DurationMs)
	if err != nil {
		return err
	}
	defer win.Close()

	head := playback.NewHead(idx, clock, win)
	head.SetDebug(cfg.Debug)
	controls := playback.NewControls(clock, head)

	// ==================== 解码与调度 ====================

	opener := decode.FFmpegOpener{PreferHardware: cfg.PreferHardware, LowResDivisor: cfg.LowResDivisor}
	rd := decode.NewRangeDecoder(opener, path, idx, cfg.DecodeWorkers)
	prefetch := decode.NewAsyncDecoder(rd)
	sched := schedule.New(idx, frames.NewCleaner(idx, cfg.LowResDivisor), rd, head, clock, schedule.ParamsFromConfig(cfg))
	head.SetPrefetch(func(frame int) {
		// 只预取新 buffer 内的部分，其余写入会被驻留检查丢弃
		w := sched.Retarget(frame)
		span := frames.Span(frame, prefetchFrames).Intersect(w.Buffer)
		if !span.Empty() {
			prefetch.DecodeAsync(ctx, span.Lo, span.Hi, frames.LowRes)
		}
	})

	var tasks task.Group
	tasks.Add(sched.Start(ctx))
	tasks.Add(clock.RunRamp(ctx, cfg.SpeedRampPerSecond))

	var srv *server.Server
	if cfg.HTTPAddr != "" {
		srv = server.New(server.NewState(info, cfg, idx, clock, head, controls, sched))
		tasks.Add(srv.Start(cfg.HTTPAddr))
	}

	fmt.Printf("[Player] 开始播放: %d 帧, %.3f fps, %dx%d, %s\n",
		idx.Len(), info.FPS, info.Width, info.Height, info.VideoCodec)

	// ==================== UI 循环 ====================

	ticker := time.NewTicker(config.UIPollInterval)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-controls.Quit():
			break loop
		case <-ticker.C:
		}

		cmds, resized := win.PollEvents()
		for _, cmd := range cmds {
			controls.Apply(cmd)
		}
		if resized {
			head.Refresh()
		}
		head.Update()
		if err := head.Display(); err != nil {
			logger.LogWarn("display failed", "err", err)
		}
	}

	// ==================== 关闭 ====================

	fmt.Println("\n正在关闭...")
	sched.Stop()
	cancel()
	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.LogWarn("http shutdown", "err", err)
		}
		done()
	}
	if err := tasks.Wait(); err != nil {
		logger.LogWarn("background task", "err", err)
	}
	_ = prefetch.Wait()
	decoded, stored := rd.Stats()
	fmt.Printf("[Player] 已退出: 解码 %d 帧, 写入缓存 %d 帧\n", decoded, stored)
	return nil
}

// openAudio 没有音轨、禁用音频或打开失败时返回 nil (使用墙钟)
func openAudio(path string, hasAudio bool, cfg config.Config, clock *playback.Clock) *audio.Output {
	if !hasAudio || cfg.NoAudio {
		fmt.Println("[Audio] 未启用，使用墙钟")
		return nil
	}
	track, err := audio.DecodePCM(path, cfg.AudioSampleRate)
	if err != nil {
		logger.LogWarn("audio decode failed, falling back to wall clock", "err", err)
		return nil
	}
	out, err := audio.NewOutput(track, clock)
	if err != nil {
		logger.LogWarn("audio output failed, falling back to wall clock", "err", err)
		return nil
	}
	return out
}
