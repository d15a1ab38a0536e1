package demux

import (
	"fmt"

	"github.com/asticode/go-astiav"

	"tapex-player/internal/config"
	"tapex-player/internal/decode"
	"tapex-player/internal/models"
)

// Probe 探测帧率、时长、尺寸和是否有音频
func Probe(path string) (models.MediaInfo, error) {
	in, err := decode.OpenInput(path, astiav.MediaTypeVideo)
	if err != nil {
		return models.MediaInfo{Path: path}, err
	}
	defer in.Close()
	return describe(path, in)
}

func describe(path string, in *decode.Input) (models.MediaInfo, error) {
	par := in.Stream.CodecParameters()
	tb := in.Stream.TimeBase()

	info := models.MediaInfo{
		Path:        path,
		Width:       par.Width(),
		Height:      par.Height(),
		VideoStream: in.Stream.Index(),
		TimeBaseNum: tb.Num(),
		TimeBaseDen: tb.Den(),
		StreamStart: in.Stream.StartTime(),
		FPS:         frameRate(in.Stream),
	}
	if d := in.FC.Duration(); d > 0 {
		info.DurationMs = d * 1000 / astiav.TimeBase
	}
	if c := astiav.FindDecoder(par.CodecID()); c != nil {
		info.VideoCodec = c.Name()
	}
	for _, s := range in.FC.Streams() {
		if s.CodecParameters().MediaType() == astiav.MediaTypeAudio {
			info.HasAudio = true
			break
		}
	}

	if info.Width <= 0 || info.Height <= 0 {
		return info, fmt.Errorf("%w: invalid video dimensions %dx%d", decode.ErrOpen, info.Width, info.Height)
	}
	return info, nil
}

func frameRate(s *astiav.Stream) float64 {
	for _, r := range []astiav.Rational{s.AvgFrameRate(), s.RFrameRate()} {
		if r.Num() > 0 && r.Den() > 0 {
			return float64(r.Num()) / float64(r.Den())
		}
	}
	return config.FallbackFPS
}
