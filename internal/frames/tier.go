package frames

// Tier 帧缓存层级
type Tier uint8

const (
	Empty Tier = iota
	LowRes
	FullRes
)

func (t Tier) String() string {
	switch t {
	case Empty:
		return "EMPTY"
	case LowRes:
		return "LOW_RES"
	case FullRes:
		return "FULL_RES"
	}
	return "UNKNOWN"
}

// Code 单字符表示，用于缓存地图的游程编码
func (t Tier) Code() byte {
	switch t {
	case LowRes:
		return 'L'
	case FullRes:
		return 'F'
	}
	return '.'
}
