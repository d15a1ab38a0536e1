package frames

import (
	"image"
	"sync"
	"testing"

	"tapex-player/internal/models"
)

func newTestIndex(n int) *Index {
	records := make([]models.PacketRecord, n)
	for i := range records {
		records[i] = models.PacketRecord{PTS: int64(i) * 40, RelativePTS: int64(i) * 40, TimeMillis: int64(i) * 40}
	}
	return New(records, Rational{Num: 1, Den: 1000}, 0)
}

func pic(w int) *image.YCbCr {
	return NewPicture(w, w)
}

// checkTierExclusivity 每个条目的层级和 payload 必须一致
func checkTierExclusivity(t *testing.T, x *Index) {
	t.Helper()
	for i := 0; i < x.Len(); i++ {
		f, _ := x.Snapshot(i)
		if (f.Tier == Empty) != (f.Picture == nil) {
			t.Fatalf("frame %d: tier %s with picture %v", i, f.Tier, f.Picture != nil)
		}
	}
}

func TestWindow(t *testing.T) {
	w := Span(560, 200)
	if w != (Window{Lo: 460, Hi: 660}) {
		t.Fatalf("Span(560,200) = %v", w)
	}
	if got := Span(-50, 200).Clamp(1000); got != (Window{Lo: 0, Hi: 50}) {
		t.Errorf("clamped = %v", got)
	}
	if got := (Window{Lo: 530, Hi: 590}).Intersect(Window{Lo: 460, Hi: 660}); got != (Window{Lo: 530, Hi: 590}) {
		t.Errorf("Intersect = %v", got)
	}
	if !(Window{Lo: 10, Hi: 5}).Empty() || NoWindow.Len() != 0 {
		t.Error("expected empty window")
	}
	if got := (Window{Lo: 0, Hi: 9}).Without(4); len(got) != 2 || got[0] != (Window{0, 3}) || got[1] != (Window{5, 9}) {
		t.Errorf("Without = %v", got)
	}
	if got := (Window{Lo: 460, Hi: 660}).Complement(1000); len(got) != 2 || got[0] != (Window{0, 459}) || got[1] != (Window{661, 999}) {
		t.Errorf("Complement = %v", got)
	}
	if got := (Window{Lo: 0, Hi: 999}).Complement(1000); len(got) != 0 {
		t.Errorf("Complement of everything = %v", got)
	}
}

func TestStoreRules(t *testing.T) {
	x := newTestIndex(10)

	if !x.Store(3, FullRes, pic(8), 120) {
		t.Fatal("full-res store rejected")
	}
	if x.Store(3, LowRes, pic(2), 120) {
		t.Error("low-res store replaced a full-res payload")
	}
	if x.Tier(3) != FullRes {
		t.Errorf("tier = %s", x.Tier(3))
	}
	if x.Store(10, LowRes, pic(2), 0) || x.Store(-1, LowRes, pic(2), 0) {
		t.Error("out of range store accepted")
	}
	if x.Store(4, LowRes, nil, 0) {
		t.Error("nil picture accepted")
	}

	c := x.Counts()
	if c.Full != 1 || c.Low != 0 || c.Bytes != PictureBytes(pic(8)) {
		t.Errorf("counts = %+v", c)
	}
	checkTierExclusivity(t, x)
}

func TestResidencyGating(t *testing.T) {
	x := newTestIndex(100)
	x.SetResidency(Residency{Buffer: Window{Lo: 10, Hi: 50}, HighRes: Window{Lo: 20, Hi: 30}})

	tests := []struct {
		frame int
		tier  Tier
		want  bool
	}{
		{5, LowRes, false},
		{10, LowRes, true},
		{50, LowRes, true},
		{51, LowRes, false},
		{19, FullRes, false},
		{20, FullRes, true},
		{31, FullRes, false},
	}
	for _, tt := range tests {
		if got := x.Store(tt.frame, tt.tier, pic(4), 0); got != tt.want {
			t.Errorf("Store(%d, %s) = %v, want %v", tt.frame, tt.tier, got, tt.want)
		}
	}
}

func TestCleanAndDowngrade(t *testing.T) {
	x := newTestIndex(20)
	c := NewCleaner(x, 4)
	for i := 0; i < 20; i++ {
		tier := LowRes
		if i%2 == 0 {
			tier = FullRes
		}
		x.Store(i, tier, pic(16), int64(i)*40)
	}

	if n := c.Downgrade(-10, 9); n != 5 {
		t.Errorf("Downgrade = %d, want 5", n)
	}
	for i := 0; i < 10; i++ {
		f, _ := x.Snapshot(i)
		if f.Tier != LowRes {
			t.Errorf("frame %d tier %s after downgrade", i, f.Tier)
		}
		if i%2 == 0 && f.Picture.Rect.Dx() != 4 {
			t.Errorf("frame %d not downscaled: %v", i, f.Picture.Rect)
		}
	}
	if x.Tier(10) != FullRes {
		t.Error("frame outside downgrade range changed")
	}

	if n := c.Clean(15, 100); n != 5 {
		t.Errorf("Clean = %d, want 5", n)
	}
	for i := 15; i < 20; i++ {
		if x.Tier(i) != Empty {
			t.Errorf("frame %d not cleaned", i)
		}
	}
	counts := x.Counts()
	if counts.Low+counts.Full != 15 {
		t.Errorf("resident = %d, want 15", counts.Low+counts.Full)
	}
	checkTierExclusivity(t, x)

	x.Release()
	if got := x.Counts(); got != (Counts{}) {
		t.Errorf("counts after Release = %+v", got)
	}
}

func TestPending(t *testing.T) {
	x := newTestIndex(50)
	for i := 10; i <= 40; i++ {
		x.Store(i, LowRes, pic(2), 0)
	}
	x.Store(20, FullRes, pic(4), 0)

	if got := x.Pending(Window{Lo: 10, Hi: 40}, LowRes); !got.Empty() {
		t.Errorf("Pending low = %v, want empty", got)
	}
	if got := x.Pending(Window{Lo: 5, Hi: 45}, LowRes); got != (Window{Lo: 5, Hi: 45}) {
		t.Errorf("Pending low = %v", got)
	}
	if got := x.Pending(Window{Lo: 20, Hi: 25}, FullRes); got != (Window{Lo: 21, Hi: 25}) {
		t.Errorf("Pending full = %v", got)
	}
}

// 并发写入/降级/清理时层级与 payload 始终一致
func TestConcurrentWritersKeepTierExclusive(t *testing.T) {
	x := newTestIndex(64)
	c := NewCleaner(x, 2)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for round := 0; round < 200; round++ {
				for i := w; i < 64; i += 4 {
					tier := LowRes
					if round%3 == 0 {
						tier = FullRes
					}
					x.Store(i, tier, pic(8), 0)
				}
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for round := 0; round < 200; round++ {
			c.Downgrade(0, 63)
			c.Clean(round%64, round%64+8)
		}
	}()
	wg.Wait()

	checkTierExclusivity(t, x)
	states := x.States(nil)
	low, full := 0, 0
	for _, s := range states {
		switch s {
		case LowRes:
			low++
		case FullRes:
			full++
		}
	}
	counts := x.Counts()
	if counts.Low != low || counts.Full != full {
		t.Errorf("counters %+v disagree with states low=%d full=%d", counts, low, full)
	}
}

func TestDownscale(t *testing.T) {
	src := Black(64, 36, 16, 128)
	src.Y[0] = 255
	dst := Downscale(src, 4)
	if dst.Rect.Dx() != 16 || dst.Rect.Dy() != 9 {
		t.Fatalf("size = %v", dst.Rect)
	}
	if dst.Y[1] != 16 || dst.Cb[0] != 128 {
		t.Errorf("unexpected pixels y=%d cb=%d", dst.Y[1], dst.Cb[0])
	}
	if dst.Y[0] <= 16 {
		t.Errorf("box filter lost bright pixel: %d", dst.Y[0])
	}
	if Downscale(src, 1) != src {
		t.Error("divisor 1 should return the source")
	}
}
