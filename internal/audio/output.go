package audio

import (
	"fmt"
	"math"

	"github.com/hajimehoshi/oto/v2"
)

// Output 音频输出，同时作为播放时钟的时间来源
type Output struct {
	ctx    *oto.Context
	player oto.Player
	reader *Reader
	ctl    Controls
}

// NewOutput 打开音频设备并开始播放
// oto 每个进程只允许一个 Context
func NewOutput(track *Track, ctl Controls) (*Output, error) {
	ctx, ready, err := oto.NewContext(track.SampleRate, Channels, oto.FormatSignedInt16LE)
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	<-ready

	reader := NewReader(track, ctl)
	player := ctx.NewPlayer(reader)
	player.Play()
	fmt.Printf("[Audio] 输出已启动: %dHz 立体声\n", track.SampleRate)
	return &Output{ctx: ctx, player: player, reader: reader, ctl: ctl}, nil
}

// CurrentTime 实际播放到的时间：读取位置扣除尚未播放的缓冲
func (o *Output) CurrentTime() float64 {
	buffered := o.player.UnplayedBufferSize() / FrameBytes
	return playedTime(o.reader.Position(), buffered, o.ctl.EffectiveRate(), o.reader.track)
}

// Seek 跳转并丢弃已缓冲的数据
func (o *Output) Seek(seconds float64) {
	o.reader.Seek(seconds)
	o.player.Reset()
	o.player.Play()
}

// Close 停止播放
func (o *Output) Close() error {
	o.player.Pause()
	if err := o.player.Close(); err != nil {
		return err
	}
	return o.player.Err()
}

// playedTime 缓冲中的数据按当前速度折算回时间
func playedTime(readPos float64, bufferedFrames int, rate float64, t *Track) float64 {
	if t.SampleRate <= 0 {
		return 0
	}
	played := readPos - float64(bufferedFrames)*rate/float64(t.SampleRate)
	return math.Max(0, math.Min(t.Duration(), played))
}
