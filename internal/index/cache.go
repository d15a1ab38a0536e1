package index

import (
	"crypto/md5"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"tapex-player/internal/models"

	"golang.org/x/sys/unix"
)

// 缓存文件格式:
// Header (32 bytes):
//   Magic (4): "TXPI"
//   Version (4)
//   RecordCount (4)
//   SourceHash (16): md5(basename:size:mtime)
//   Reserved (4)
// Records (N * RecordSize) - 与 models.PacketRecord 内存布局一致

const (
	Magic      = "TXPI"
	Version    = 1
	HeaderSize = 32
	RecordSize = int(unsafe.Sizeof(models.PacketRecord{}))
)

// ErrNotCached 缓存不存在
var ErrNotCached = errors.New("index cache miss")

// Mapped mmap 映射的包索引，Records 直接指向映射内存 (只读)
type Mapped struct {
	data    []byte
	Records []models.PacketRecord
}

// Close 释放 mmap 映射，之后 Records 不可再访问
func (m *Mapped) Close() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	m.Records = nil
	return err
}

// Cache 包索引的磁盘缓存
type Cache struct {
	dir string
}

// NewCache 创建缓存目录
func NewCache(dir string) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("empty cache dir")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Cache{dir: dir}, nil
}

// Dir 缓存目录
func (c *Cache) Dir() string {
	return c.dir
}

// SourceHash 计算媒体文件的标识
// 文件名 + 大小 + 修改时间，文件被替换后自然得到新的缓存路径
func SourceHash(mediaPath string) ([16]byte, error) {
	info, err := os.Stat(mediaPath)
	if err != nil {
		return [16]byte{}, err
	}
	identifier := fmt.Sprintf("%s:%d:%d", filepath.Base(mediaPath), info.Size(), info.ModTime().UnixNano())
	return md5.Sum([]byte(identifier)), nil
}

func (c *Cache) path(hash [16]byte) string {
	return filepath.Join(c.dir, fmt.Sprintf("%x.txpi", hash))
}

// Exists 检查缓存文件是否存在
func (c *Cache) Exists(mediaPath string) bool {
	hash, err := SourceHash(mediaPath)
	if err != nil {
		return false
	}
	info, err := os.Stat(c.path(hash))
	return err == nil && info.Size() >= HeaderSize
}

// Save 把包索引写入缓存，通过 mmap 一次拷贝完成
func (c *Cache) Save(mediaPath string, records []models.PacketRecord) error {
	if len(records) == 0 {
		return errors.New("no records to cache")
	}
	hash, err := SourceHash(mediaPath)
	if err != nil {
		return err
	}

	cachePath := c.path(hash)
	totalSize := HeaderSize + len(records)*RecordSize

	f, err := os.Create(cachePath)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Truncate(int64(totalSize)); err != nil {
		return err
	}

	data, err := unix.Mmap(int(f.Fd()), 0, totalSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return err
	}
	defer unix.Munmap(data)

	copy(data[0:4], Magic)
	binary.LittleEndian.PutUint32(data[4:8], Version)
	binary.LittleEndian.PutUint32(data[8:12], uint32(len(records)))
	copy(data[12:28], hash[:])

	raw := unsafe.Slice((*byte)(unsafe.Pointer(&records[0])), len(records)*RecordSize)
	copy(data[HeaderSize:], raw)

	fmt.Printf("[IndexCache] 保存: %s -> %x.txpi (%d 条)\n", filepath.Base(mediaPath), hash, len(records))
	return nil
}

// Load 以 mmap 只读方式加载缓存 (零拷贝)
// 缓存不存在返回 ErrNotCached，其他错误表示缓存损坏
func (c *Cache) Load(mediaPath string) (*Mapped, error) {
	hash, err := SourceHash(mediaPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(c.path(hash))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotCached
		}
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := int(info.Size())
	if size < HeaderSize {
		return nil, fmt.Errorf("cache file too small: %d", size)
	}

	// mmap 完成后 fd 可以关闭，映射仍然有效
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}

	if string(data[0:4]) != Magic {
		unix.Munmap(data)
		return nil, errors.New("invalid cache magic")
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != Version {
		unix.Munmap(data)
		return nil, fmt.Errorf("cache version mismatch: got %d, want %d", v, Version)
	}
	if [16]byte(data[12:28]) != hash {
		unix.Munmap(data)
		return nil, errors.New("cache hash mismatch")
	}

	count := int(binary.LittleEndian.Uint32(data[8:12]))
	if size < HeaderSize+count*RecordSize || count == 0 {
		unix.Munmap(data)
		return nil, errors.New("cache file truncated")
	}

	records := unsafe.Slice((*models.PacketRecord)(unsafe.Pointer(&data[HeaderSize])), count)
	return &Mapped{data: data, Records: records}, nil
}

// Remove 删除某个媒体文件的缓存
func (c *Cache) Remove(mediaPath string) error {
	hash, err := SourceHash(mediaPath)
	if err != nil {
		return err
	}
	err = os.Remove(c.path(hash))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
