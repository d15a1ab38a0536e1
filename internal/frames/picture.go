package frames

import "image"

// NewPicture 分配 YUV420 图像
func NewPicture(w, h int) *image.YCbCr {
	return image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio420)
}

// Black 纯黑 YUV420 图像 (Y=16, U=V=128)
func Black(w, h int, luma, chroma uint8) *image.YCbCr {
	pic := NewPicture(w, h)
	fill(pic.Y, luma)
	fill(pic.Cb, chroma)
	fill(pic.Cr, chroma)
	return pic
}

func fill(b []byte, v uint8) {
	for i := range b {
		b[i] = v
	}
}

// Downscale 按整数除数做盒式缩小，divisor <= 1 时直接返回原图
func Downscale(src *image.YCbCr, divisor int) *image.YCbCr {
	if src == nil || divisor <= 1 {
		return src
	}
	sw, sh := src.Rect.Dx(), src.Rect.Dy()
	dw, dh := max(sw/divisor, 1), max(sh/divisor, 1)
	dst := NewPicture(dw, dh)

	boxPlane(dst.Y, dst.YStride, dw, dh, src.Y, src.YStride, sw, sh, divisor)

	scw, sch := (sw+1)/2, (sh+1)/2
	dcw, dch := (dw+1)/2, (dh+1)/2
	boxPlane(dst.Cb, dst.CStride, dcw, dch, src.Cb, src.CStride, scw, sch, divisor)
	boxPlane(dst.Cr, dst.CStride, dcw, dch, src.Cr, src.CStride, scw, sch, divisor)
	return dst
}

func boxPlane(dst []byte, dstStride, dw, dh int, src []byte, srcStride, sw, sh, k int) {
	for y := 0; y < dh; y++ {
		y0 := y * k
		y1 := min(y0+k, sh)
		for x := 0; x < dw; x++ {
			x0 := x * k
			x1 := min(x0+k, sw)
			sum, n := 0, 0
			for sy := y0; sy < y1; sy++ {
				row := src[sy*srcStride:]
				for sx := x0; sx < x1; sx++ {
					sum += int(row[sx])
					n++
				}
			}
			if n > 0 {
				dst[y*dstStride+x] = uint8(sum / n)
			}
		}
	}
}
