package frames

// Cleaner 按区间释放/降级帧缓存，两个操作都不解码
type Cleaner struct {
	index   *Index
	divisor int
}

// NewCleaner divisor 为降级时的缩放除数 (与低分辨率解码一致)
func NewCleaner(index *Index, divisor int) *Cleaner {
	return &Cleaner{index: index, divisor: max(divisor, 1)}
}

// Clean 释放 [lo, hi] 内所有条目，区间会被限制在索引范围内
// 返回释放的条目数
func (c *Cleaner) Clean(lo, hi int) int {
	w := Window{Lo: lo, Hi: hi}.Clamp(c.index.Len())
	released := 0
	for i := w.Lo; i <= w.Hi; i++ {
		e := &c.index.entries[i]
		e.mu.Lock()
		if e.tier != Empty {
			c.index.replace(e, Empty, nil)
			released++
		}
		e.mu.Unlock()
	}
	return released
}

// Downgrade 把 [lo, hi] 内的 FULL_RES 条目降为 LOW_RES
// 全分辨率 buffer 被缩小后替换，条目不会变成 Empty
func (c *Cleaner) Downgrade(lo, hi int) int {
	w := Window{Lo: lo, Hi: hi}.Clamp(c.index.Len())
	downgraded := 0
	for i := w.Lo; i <= w.Hi; i++ {
		if c.downgradeOne(i) {
			downgraded++
		}
	}
	return downgraded
}

func (c *Cleaner) downgradeOne(i int) bool {
	e := &c.index.entries[i]
	e.mu.Lock()
	if e.tier != FullRes {
		e.mu.Unlock()
		return false
	}
	full := e.pic
	e.mu.Unlock()

	// 缩放在锁外做，回写前确认条目没有被换掉
	low := Downscale(full, c.divisor)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tier != FullRes || e.pic != full {
		return false
	}
	c.index.replace(e, LowRes, low)
	return true
}
