package audio

import (
	"encoding/binary"
	"math"
	"sync/atomic"
	"testing"
)

type fakeControls struct {
	rate, volume atomic.Uint64
}

func newControls(rate, volume float64) *fakeControls {
	c := &fakeControls{}
	c.rate.Store(math.Float64bits(rate))
	c.volume.Store(math.Float64bits(volume))
	return c
}

func (c *fakeControls) EffectiveRate() float64 { return math.Float64frombits(c.rate.Load()) }
func (c *fakeControls) Volume() float64        { return math.Float64frombits(c.volume.Load()) }

// rampTrack 第 i 帧左声道为 i，右声道为 -i
func rampTrack(frames int) *Track {
	t := &Track{SampleRate: 1000, Samples: make([]int16, frames*Channels)}
	for i := 0; i < frames; i++ {
		t.Samples[i*2] = int16(i)
		t.Samples[i*2+1] = int16(-i)
	}
	return t
}

func left(buf []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(buf[i*FrameBytes:]))
}

func right(buf []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(buf[i*FrameBytes+2:]))
}

func TestReaderForward(t *testing.T) {
	r := NewReader(rampTrack(100), newControls(1, 1))
	buf := make([]byte, 10*FrameBytes+3)
	n, err := r.Read(buf)
	if err != nil || n != 10*FrameBytes {
		t.Fatalf("Read = %d, %v", n, err)
	}
	for i := 0; i < 10; i++ {
		if left(buf, i) != int16(i) || right(buf, i) != int16(-i) {
			t.Fatalf("frame %d = %d/%d", i, left(buf, i), right(buf, i))
		}
	}
	if got := r.Position(); got != 0.01 {
		t.Errorf("position = %v, want 0.01", got)
	}
}

func TestReaderSpeedAndReverse(t *testing.T) {
	ctl := newControls(2, 1)
	r := NewReader(rampTrack(100), ctl)
	buf := make([]byte, 5*FrameBytes)
	r.Read(buf)
	for i, want := range []int16{0, 2, 4, 6, 8} {
		if left(buf, i) != want {
			t.Fatalf("2x frame %d = %d, want %d", i, left(buf, i), want)
		}
	}

	ctl.rate.Store(math.Float64bits(-1))
	r.Read(buf)
	for i, want := range []int16{10, 9, 8, 7, 6} {
		if left(buf, i) != want {
			t.Fatalf("reverse frame %d = %d, want %d", i, left(buf, i), want)
		}
	}
}

func TestReaderPausedAndBounds(t *testing.T) {
	ctl := newControls(0, 1)
	r := NewReader(rampTrack(8), ctl)
	r.Seek(0.004)
	buf := make([]byte, 4*FrameBytes)
	for i := range buf {
		buf[i] = 0xff
	}
	r.Read(buf)
	for i := 0; i < 4; i++ {
		if left(buf, i) != 0 {
			t.Fatal("paused reader produced sound")
		}
	}

	ctl.rate.Store(math.Float64bits(1))
	n, _ := r.Read(make([]byte, 16*FrameBytes))
	if n != 16*FrameBytes {
		t.Fatalf("Read past end = %d", n)
	}
	if got := r.Position(); got != 0.008 {
		t.Errorf("position past end = %v, want clamp to 0.008", got)
	}

	ctl.rate.Store(math.Float64bits(-4))
	r.Read(make([]byte, 16*FrameBytes))
	if got := r.Position(); got != 0 {
		t.Errorf("position before start = %v, want 0", got)
	}
}

func TestReaderVolume(t *testing.T) {
	tr := &Track{SampleRate: 1000, Samples: []int16{1000, -1000, 1000, -1000}}
	ctl := newControls(1, 0.5)
	r := NewReader(tr, ctl)
	buf := make([]byte, FrameBytes)
	r.Read(buf)
	if left(buf, 0) != 500 || right(buf, 0) != -500 {
		t.Errorf("half volume = %d/%d", left(buf, 0), right(buf, 0))
	}
	ctl.volume.Store(math.Float64bits(0))
	r.Read(buf)
	if left(buf, 0) != 0 {
		t.Error("muted reader produced sound")
	}
}

func TestPlayedTime(t *testing.T) {
	tr := rampTrack(2000) // 2 秒
	cases := []struct {
		pos      float64
		buffered int
		rate     float64
		want     float64
	}{
		{1.5, 500, 1, 1.0},
		{1.5, 250, 2, 1.0},
		{0.5, 250, -1, 0.75},
		{0.1, 500, 1, 0},
		{1.9, 500, -1, 2},
	}
	for _, c := range cases {
		if got := playedTime(c.pos, c.buffered, c.rate, tr); math.Abs(got-c.want) > 1e-9 {
			t.Errorf("playedTime(%v, %d, %v) = %v, want %v", c.pos, c.buffered, c.rate, got, c.want)
		}
	}
}

func TestTrackDuration(t *testing.T) {
	var nilTrack *Track
	if nilTrack.Frames() != 0 || nilTrack.Duration() != 0 {
		t.Error("nil track not empty")
	}
	if d := rampTrack(500).Duration(); d != 0.5 {
		t.Errorf("duration = %v", d)
	}
	s := bytesToSamples([]byte{1, 0, 0xff, 0xff, 9})
	if len(s) != 2 || s[0] != 1 || s[1] != -1 {
		t.Errorf("bytesToSamples = %v", s)
	}
}
