package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/asticode/go-astiav"

	"tapex-player/internal/decode"
)

const (
	// Channels 输出固定为立体声
	Channels = 2
	// FrameBytes 一个立体声 S16 采样帧的字节数
	FrameBytes = Channels * 2
)

// Track 整条音轨解码后的 PCM (S16LE 交错立体声)
type Track struct {
	Samples    []int16
	SampleRate int
}

// Frames 采样帧数
func (t *Track) Frames() int {
	if t == nil {
		return 0
	}
	return len(t.Samples) / Channels
}

// Duration 音轨时长 (秒)
func (t *Track) Duration() float64 {
	if t == nil || t.SampleRate <= 0 {
		return 0
	}
	return float64(t.Frames()) / float64(t.SampleRate)
}

// DecodePCM 把文件的第一路音频完整解码并重采样为 S16 立体声
func DecodePCM(path string, sampleRate int) (*Track, error) {
	start := time.Now()
	in, err := decode.OpenInput(path, astiav.MediaTypeAudio)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	cc, name, err := decode.OpenDecoder(in.Stream, false, 1)
	if err != nil {
		return nil, err
	}
	defer cc.Free()

	pkt := astiav.AllocPacket()
	defer pkt.Free()
	frame := astiav.AllocFrame()
	defer frame.Free()
	out := astiav.AllocFrame()
	defer out.Free()
	swr := astiav.AllocSoftwareResampleContext()
	if swr == nil {
		return nil, fmt.Errorf("%w: alloc resampler", decode.ErrCodec)
	}
	defer swr.Free()

	var pcm []byte
	convert := func() error {
		out.SetChannelLayout(astiav.ChannelLayoutStereo)
		out.SetSampleFormat(astiav.SampleFormatS16)
		out.SetSampleRate(sampleRate)
		if err := swr.ConvertFrame(frame, out); err != nil {
			return fmt.Errorf("%w: resample: %v", decode.ErrDecode, err)
		}
		defer out.Unref()
		if out.NbSamples() == 0 {
			return nil
		}
		b, err := out.Data().Bytes(1)
		if err != nil {
			return fmt.Errorf("%w: read samples: %v", decode.ErrDecode, err)
		}
		pcm = append(pcm, b[:min(out.NbSamples()*FrameBytes, len(b))]...)
		return nil
	}
	drain := func() error {
		for {
			if err := cc.ReceiveFrame(frame); err != nil {
				if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
					return nil
				}
				return fmt.Errorf("%w: %v", decode.ErrDecode, err)
			}
			err := convert()
			frame.Unref()
			if err != nil {
				return err
			}
		}
	}

	bad := 0
	for {
		if err := in.FC.ReadFrame(pkt); err != nil {
			if errors.Is(err, astiav.ErrEof) || errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: read: %v", decode.ErrDecode, err)
		}
		if pkt.StreamIndex() != in.Stream.Index() {
			pkt.Unref()
			continue
		}
		err := cc.SendPacket(pkt)
		pkt.Unref()
		if err != nil && !errors.Is(err, astiav.ErrEagain) {
			bad++
			continue
		}
		if err := drain(); err != nil {
			bad++
		}
	}
	if err := cc.SendPacket(nil); err == nil {
		_ = drain()
	}

	t := &Track{Samples: bytesToSamples(pcm), SampleRate: sampleRate}
	fmt.Printf("[Audio] 解码完成: %s 解码器=%s 时长=%.1fs 丢弃=%d 耗时=%v\n",
		path, name, t.Duration(), bad, time.Since(start).Round(time.Millisecond))
	return t, nil
}

func bytesToSamples(b []byte) []int16 {
	n := len(b) / FrameBytes * Channels
	s := make([]int16, n)
	for i := range s {
		s[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return s
}
