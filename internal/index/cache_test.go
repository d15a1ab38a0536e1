package index

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"tapex-player/internal/models"
)

func writeMedia(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(path, []byte("not really a movie"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRecordSize(t *testing.T) {
	if RecordSize != 32 {
		t.Fatalf("RecordSize = %d, want 32", RecordSize)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	media := writeMedia(t, dir)
	c, err := NewCache(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := c.Load(media); !errors.Is(err, ErrNotCached) {
		t.Fatalf("Load before Save: err = %v, want ErrNotCached", err)
	}

	records := make([]models.PacketRecord, 100)
	for i := range records {
		records[i] = models.PacketRecord{PTS: int64(i * 512), RelativePTS: int64(i * 512), TimeMillis: int64(i * 40)}
	}
	records[0].Flags = models.PacketFlagKey

	if err := c.Save(media, records); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !c.Exists(media) {
		t.Fatal("Exists = false after Save")
	}

	m, err := c.Load(media)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer m.Close()

	if len(m.Records) != len(records) {
		t.Fatalf("len = %d, want %d", len(m.Records), len(records))
	}
	if m.Records[99] != records[99] || !m.Records[0].IsKeyframe() {
		t.Errorf("records differ: %+v / %+v", m.Records[99], m.Records[0])
	}
}

func TestLoadRejectsCorruptHeader(t *testing.T) {
	dir := t.TempDir()
	media := writeMedia(t, dir)
	c, _ := NewCache(dir)

	if err := c.Save(media, []models.PacketRecord{{PTS: 1}}); err != nil {
		t.Fatal(err)
	}
	hash, _ := SourceHash(media)
	path := c.path(hash)
	data, _ := os.ReadFile(path)
	copy(data, "XXXX")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Load(media); err == nil || errors.Is(err, ErrNotCached) {
		t.Fatalf("Load corrupt cache: err = %v", err)
	}
	if err := c.Remove(media); err != nil {
		t.Fatal(err)
	}
	if c.Exists(media) {
		t.Error("Exists = true after Remove")
	}
}
