package decode

import (
	"errors"
	"fmt"
	"image"
	"io"
	"runtime"
	"strconv"

	"github.com/asticode/go-astiav"

	"tapex-player/internal/frames"
	"tapex-player/internal/logger"
)

func init() {
	astiav.SetLogLevel(astiav.LogLevelError)
}

// hardwareSuffixes 同一编码的硬件解码器实现名后缀，按优先级尝试
var hardwareSuffixes = []string{"_cuvid", "_qsv", "_v4l2m2m", "_mediacodec"}

// ============================================================================
// 容器
// ============================================================================

// Input 打开的容器与选中的流
type Input struct {
	FC     *astiav.FormatContext
	Stream *astiav.Stream
}

// OpenInput 打开容器并选出给定类型的流 (视频取像素面积最大的那一路)
func OpenInput(path string, mt astiav.MediaType) (*Input, error) {
	fc := astiav.AllocFormatContext()
	if fc == nil {
		return nil, fmt.Errorf("%w: alloc format context", ErrOpen)
	}
	if err := fc.OpenInput(path, nil, nil); err != nil {
		fc.Free()
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, path, err)
	}
	in := &Input{FC: fc}
	if err := fc.FindStreamInfo(nil); err != nil {
		in.Close()
		return nil, fmt.Errorf("%w: stream info: %v", ErrOpen, err)
	}

	in.Stream = bestStream(fc, mt)
	if in.Stream == nil {
		in.Close()
		if mt == astiav.MediaTypeVideo {
			return nil, ErrNoVideoStream
		}
		return nil, fmt.Errorf("%w: no %v stream", ErrOpen, mt)
	}
	return in, nil
}

func bestStream(fc *astiav.FormatContext, mt astiav.MediaType) *astiav.Stream {
	var best *astiav.Stream
	bestArea := -1
	for _, s := range fc.Streams() {
		par := s.CodecParameters()
		if par.MediaType() != mt {
			continue
		}
		if mt != astiav.MediaTypeVideo {
			return s
		}
		if area := par.Width() * par.Height(); area > bestArea {
			best, bestArea = s, area
		}
	}
	return best
}

// Close 关闭容器
func (in *Input) Close() {
	if in.FC != nil {
		in.FC.CloseInput()
		in.FC.Free()
		in.FC = nil
	}
}

// ============================================================================
// 解码器
// ============================================================================

// OpenDecoder 为流打开解码器
// preferHW 时先尝试同编码的硬件实现，失败回退到软件解码器
func OpenDecoder(stream *astiav.Stream, preferHW bool, threads int) (*astiav.CodecContext, string, error) {
	par := stream.CodecParameters()
	sw := astiav.FindDecoder(par.CodecID())
	if sw == nil {
		return nil, "", fmt.Errorf("%w: no decoder for codec %d", ErrCodec, par.CodecID())
	}

	var candidates []*astiav.Codec
	if preferHW && par.MediaType() == astiav.MediaTypeVideo {
		for _, suffix := range hardwareSuffixes {
			if c := astiav.FindDecoderByName(sw.Name() + suffix); c != nil {
				candidates = append(candidates, c)
			}
		}
	}
	candidates = append(candidates, sw)

	var lastErr error
	for _, codec := range candidates {
		cc, err := openCodec(codec, par, threads)
		if err == nil {
			return cc, codec.Name(), nil
		}
		lastErr = err
		logger.LogDebug("decoder unavailable", "decoder", codec.Name(), "err", err)
	}
	return nil, "", lastErr
}

func openCodec(codec *astiav.Codec, par *astiav.CodecParameters, threads int) (*astiav.CodecContext, error) {
	cc := astiav.AllocCodecContext(codec)
	if cc == nil {
		return nil, fmt.Errorf("%w: alloc codec context", ErrCodec)
	}
	if err := par.ToCodecContext(cc); err != nil {
		cc.Free()
		return nil, fmt.Errorf("%w: copy parameters: %v", ErrCodec, err)
	}
	cc.SetThreadCount(threads)

	// 速度优先：帧/片级多线程、快速标志、跳过环路滤波、低延迟
	opts := astiav.NewDictionary()
	defer opts.Free()
	_ = opts.Set("threads", strconv.Itoa(threads), 0)
	_ = opts.Set("thread_type", "frame+slice", 0)
	_ = opts.Set("flags", "+low_delay", 0)
	_ = opts.Set("flags2", "+fast", 0)
	_ = opts.Set("skip_loop_filter", "all", 0)

	if err := cc.Open(codec, opts); err != nil {
		cc.Free()
		return nil, fmt.Errorf("%w: open %s: %v", ErrCodec, codec.Name(), err)
	}
	return cc, nil
}

// ============================================================================
// 解码会话
// ============================================================================

// FFmpegOpener 基于 FFmpeg 的会话工厂
type FFmpegOpener struct {
	PreferHardware bool
	// LowResDivisor 低分辨率层缩放除数
	LowResDivisor int
	// Threads 解码线程数，0 表示全部 CPU
	Threads int
}

// Open 打开独立会话：自己的容器句柄 + 自己的解码器上下文
func (o FFmpegOpener) Open(path string, tier frames.Tier) (Session, error) {
	in, err := OpenInput(path, astiav.MediaTypeVideo)
	if err != nil {
		return nil, err
	}

	threads := o.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	cc, name, err := OpenDecoder(in.Stream, o.PreferHardware, threads)
	if err != nil {
		in.Close()
		return nil, err
	}

	divisor := 1
	if tier == frames.LowRes {
		divisor = max(o.LowResDivisor, 1)
	}
	return &ffmpegSession{
		in:       in,
		cc:       cc,
		codec:    name,
		preferHW: o.PreferHardware,
		threads:  threads,
		divisor:  divisor,
		pkt:      astiav.AllocPacket(),
		frame:    astiav.AllocFrame(),
	}, nil
}

type ffmpegSession struct {
	in       *Input
	cc       *astiav.CodecContext
	codec    string
	preferHW bool
	threads  int
	divisor  int

	pkt     *astiav.Packet
	frame   *astiav.Frame
	scaler  yuvScaler
	buf     []byte
	sent    bool
	eof     bool
	lastPTS int64
}

// SeekTo 已经送过包的解码器会被重新打开，等价于清空缓冲
func (s *ffmpegSession) SeekTo(pts int64) error {
	if s.sent {
		s.cc.Free()
		cc, _, err := OpenDecoder(s.in.Stream, s.preferHW, s.threads)
		if err != nil {
			s.cc = nil
			return err
		}
		s.cc = cc
		s.sent = false
	}

	flags := astiav.NewSeekFlags(astiav.SeekFlagBackward)
	if err := s.in.FC.SeekFrame(s.in.Stream.Index(), pts, flags); err != nil {
		return fmt.Errorf("%w: seek to %d: %v", ErrDecode, pts, err)
	}
	s.eof = false
	return nil
}

func (s *ffmpegSession) Next() (*image.YCbCr, int64, error) {
	if s.cc == nil {
		return nil, 0, fmt.Errorf("%w: session closed", ErrCodec)
	}
	for {
		err := s.cc.ReceiveFrame(s.frame)
		switch receiveNext(err, s.eof) {
		case stepFrame:
			pts := s.frame.Pts()
			if pts == astiav.NoPtsValue {
				pts = s.lastPTS + 1
			}
			s.lastPTS = pts
			pic, cerr := s.convert(s.frame)
			s.frame.Unref()
			if cerr != nil {
				return nil, 0, cerr
			}
			return pic, pts, nil
		case stepEOF:
			return nil, 0, io.EOF
		}

		if !errors.Is(err, astiav.ErrEagain) {
			// 坏帧只丢弃当前包，继续送下一个包
			logger.LogDebug("receive frame failed", "codec", s.codec, "err", err)
		}
		if err := s.feed(); err != nil {
			return nil, 0, err
		}
	}
}

// receiveStep ReceiveFrame 之后的下一步
type receiveStep int

const (
	stepFrame receiveStep = iota
	stepFeed
	stepEOF
)

// receiveNext 除 EOF 之外的错误都只影响当前包，drained 之后没有包可送
func receiveNext(err error, drained bool) receiveStep {
	switch {
	case err == nil:
		return stepFrame
	case errors.Is(err, astiav.ErrEof), drained:
		return stepEOF
	default:
		return stepFeed
	}
}

// feed 读到下一个本流的包并送入解码器，文件结束时进入 drain
func (s *ffmpegSession) feed() error {
	for {
		if err := s.in.FC.ReadFrame(s.pkt); err != nil {
			if errors.Is(err, astiav.ErrEof) || errors.Is(err, io.EOF) {
				s.eof = true
				if err := s.cc.SendPacket(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
					return fmt.Errorf("%w: drain: %v", ErrDecode, err)
				}
				return nil
			}
			return fmt.Errorf("%w: read packet: %v", ErrDecode, err)
		}
		if s.pkt.StreamIndex() != s.in.Stream.Index() {
			s.pkt.Unref()
			continue
		}

		err := s.cc.SendPacket(s.pkt)
		s.pkt.Unref()
		s.sent = true
		if err != nil && !errors.Is(err, astiav.ErrEagain) {
			// 坏包只丢弃当前包，会话继续
			logger.LogDebug("packet dropped", "codec", s.codec, "err", err)
			continue
		}
		return nil
	}
}

// convert 缩放为 YUV420P 并拷贝到 Go 内存
func (s *ffmpegSession) convert(src *astiav.Frame) (*image.YCbCr, error) {
	dw := max(src.Width()/s.divisor, 2)
	dh := max(src.Height()/s.divisor, 2)
	if err := s.scaler.ensure(src, dw, dh); err != nil {
		return nil, err
	}
	if err := s.scaler.ssc.ScaleFrame(src, s.scaler.dst); err != nil {
		return nil, fmt.Errorf("%w: scale: %v", ErrDecode, err)
	}

	n, err := s.scaler.dst.ImageBufferSize(1)
	if err != nil {
		return nil, fmt.Errorf("%w: image buffer size: %v", ErrDecode, err)
	}
	if cap(s.buf) < n {
		s.buf = make([]byte, n)
	}
	buf := s.buf[:n]
	if _, err := s.scaler.dst.ImageCopyToBuffer(buf, 1); err != nil {
		return nil, fmt.Errorf("%w: image copy: %v", ErrDecode, err)
	}

	pic := frames.NewPicture(dw, dh)
	ySize := len(pic.Y)
	cSize := len(pic.Cb)
	if n < ySize+2*cSize {
		return nil, fmt.Errorf("%w: short image buffer %d", ErrDecode, n)
	}
	copy(pic.Y, buf[:ySize])
	copy(pic.Cb, buf[ySize:ySize+cSize])
	copy(pic.Cr, buf[ySize+cSize:ySize+2*cSize])
	return pic, nil
}

func (s *ffmpegSession) Close() error {
	s.scaler.close()
	if s.frame != nil {
		s.frame.Free()
		s.frame = nil
	}
	if s.pkt != nil {
		s.pkt.Free()
		s.pkt = nil
	}
	if s.cc != nil {
		s.cc.Free()
		s.cc = nil
	}
	s.in.Close()
	return nil
}

// yuvScaler 任意像素格式 -> 指定尺寸的 YUV420P
type yuvScaler struct {
	ssc        *astiav.SoftwareScaleContext
	dst        *astiav.Frame
	srcW, srcH int
	srcPix     astiav.PixelFormat
	dstW, dstH int
}

func (s *yuvScaler) close() {
	if s.dst != nil {
		s.dst.Free()
		s.dst = nil
	}
	if s.ssc != nil {
		s.ssc.Free()
		s.ssc = nil
	}
}

func (s *yuvScaler) ensure(src *astiav.Frame, dw, dh int) error {
	sw, sh, sp := src.Width(), src.Height(), src.PixelFormat()
	if s.ssc != nil && sw == s.srcW && sh == s.srcH && sp == s.srcPix && dw == s.dstW && dh == s.dstH {
		return nil
	}
	s.close()

	ssc, err := astiav.CreateSoftwareScaleContext(sw, sh, sp, dw, dh, astiav.PixelFormatYuv420P, astiav.NewSoftwareScaleContextFlags())
	if err != nil {
		return fmt.Errorf("%w: scaler %dx%d -> %dx%d: %v", ErrDecode, sw, sh, dw, dh, err)
	}
	dst := astiav.AllocFrame()
	dst.SetWidth(dw)
	dst.SetHeight(dh)
	dst.SetPixelFormat(astiav.PixelFormatYuv420P)
	if err := dst.AllocBuffer(1); err != nil {
		dst.Free()
		ssc.Free()
		return fmt.Errorf("%w: alloc scaled frame: %v", ErrDecode, err)
	}

	s.ssc, s.dst = ssc, dst
	s.srcW, s.srcH, s.srcPix = sw, sh, sp
	s.dstW, s.dstH = dw, dh
	return nil
}
