package demux

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/asticode/go-astiav"

	"tapex-player/internal/decode"
	"tapex-player/internal/index"
	"tapex-player/internal/logger"
	"tapex-player/internal/models"
)

// ScanPackets 顺序读一遍视频流的所有包，只记录时间戳不解码
// 打开失败、没有流信息、没有视频流都返回错误
func ScanPackets(path string) ([]models.PacketRecord, models.MediaInfo, error) {
	in, err := decode.OpenInput(path, astiav.MediaTypeVideo)
	if err != nil {
		return nil, models.MediaInfo{}, err
	}
	defer in.Close()

	info, err := describe(path, in)
	if err != nil {
		return nil, info, err
	}

	pkt := astiav.AllocPacket()
	defer pkt.Free()

	vidx := in.Stream.Index()
	var records []models.PacketRecord
	for {
		if err := in.FC.ReadFrame(pkt); err != nil {
			if errors.Is(err, astiav.ErrEof) || errors.Is(err, io.EOF) {
				break
			}
			return nil, info, fmt.Errorf("%w: read packet %d: %v", decode.ErrDecode, len(records), err)
		}
		if pkt.StreamIndex() != vidx {
			pkt.Unref()
			continue
		}

		rec := models.PacketRecord{PTS: pkt.Pts(), Size: uint32(pkt.Size())}
		if rec.PTS == astiav.NoPtsValue {
			rec.PTS = pkt.Dts()
			rec.Flags |= models.PacketFlagNoPTS
		}
		if pkt.Flags().Has(astiav.PacketFlagKey) {
			rec.Flags |= models.PacketFlagKey
		}
		if pkt.Flags().Has(astiav.PacketFlagCorrupt) {
			rec.Flags |= models.PacketFlagCorrupt
		}
		records = append(records, rec)
		pkt.Unref()
	}

	if len(records) == 0 {
		return nil, info, fmt.Errorf("%w: no video packets", decode.ErrOpen)
	}
	info.StreamStart = normalize(records, info.StreamStart, info.TimeBaseNum, info.TimeBaseDen)

	fmt.Printf("[Index] 解析: %s (%d 帧)\n", filepath.Base(path), len(records))
	return records, info, nil
}

// normalize 填充相对 PTS 和毫秒时间，start 未知时取第一个包的 PTS
func normalize(records []models.PacketRecord, start int64, num, den int) int64 {
	if start == astiav.NoPtsValue && len(records) > 0 {
		start = records[0].PTS
	}
	if num <= 0 || den <= 0 {
		num, den = 1, 1000
	}
	for i := range records {
		rel := records[i].PTS - start
		records[i].RelativePTS = rel
		records[i].TimeMillis = rel * 1000 * int64(num) / int64(den)
	}
	return start
}

// BuildIndex 读取包索引，优先使用磁盘缓存，未命中时扫描并写入缓存
// cache 为 nil 时总是扫描
func BuildIndex(path string, cache *index.Cache) ([]models.PacketRecord, models.MediaInfo, error) {
	info, err := Probe(path)
	if err != nil {
		return nil, info, err
	}

	if cache != nil {
		m, err := cache.Load(path)
		switch {
		case err == nil:
			records := append([]models.PacketRecord(nil), m.Records...)
			m.Close()
			if start := normalizedStart(records); start != astiav.NoPtsValue {
				info.StreamStart = start
			}
			fmt.Printf("[IndexCache] 命中: %s (%d 帧)\n", filepath.Base(path), len(records))
			return records, info, nil
		case errors.Is(err, index.ErrNotCached):
		default:
			logger.LogWarn("index cache unusable, rescanning", "path", path, "err", err)
		}
	}

	records, info, err := ScanPackets(path)
	if err != nil {
		return nil, info, err
	}
	if cache != nil {
		if err := cache.Save(path, records); err != nil {
			logger.LogWarn("index cache save failed", "path", path, "err", err)
		}
	}
	return records, info, nil
}

// normalizedStart 从已归一化的记录反推起始 PTS
func normalizedStart(records []models.PacketRecord) int64 {
	if len(records) == 0 {
		return astiav.NoPtsValue
	}
	return records[0].PTS - records[0].RelativePTS
}
