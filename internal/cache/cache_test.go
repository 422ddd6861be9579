package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEmbeddingKey(t *testing.T) {
	a := EmbeddingKey("model-a", "hello")
	if a != EmbeddingKey("model-a", "hello") {
		t.Error("Key should be deterministic")
	}
	if a == EmbeddingKey("model-b", "hello") {
		t.Error("Key should depend on model")
	}
	// Separator prevents ("ab","c") colliding with ("a","bc")
	if EmbeddingKey("ab", "c") == EmbeddingKey("a", "bc") {
		t.Error("Model/text boundary should be unambiguous")
	}
}

func TestEmbeddings_RoundTrip(t *testing.T) {
	e := NewEmbeddings(NewMemoryCache(time.Minute, time.Minute), 0)

	if _, ok := e.Lookup("m", "text"); ok {
		t.Fatal("Expected miss on empty cache")
	}

	vec := []float32{0.25, -1.5, 3}
	if err := e.Store("m", "text", vec); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	got, ok := e.Lookup("m", "text")
	if !ok {
		t.Fatal("Expected hit after store")
	}
	if len(got) != len(vec) {
		t.Fatalf("Expected %d values, got %d", len(vec), len(got))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("Value %d = %v, want %v", i, got[i], vec[i])
		}
	}
}

func TestDecodeVector_Corrupt(t *testing.T) {
	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("Expected error for truncated vector")
	}
}

func TestDiskCache_Expiry(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)

	if err := c.Set("k", []byte("v"), time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Error("Expected expired entry to miss")
	}
	if _, err := os.Stat(c.path("k")); !os.IsNotExist(err) {
		t.Error("Expected expired file to be removed")
	}
}

func TestDiskCache_CorruptFileIsMiss(t *testing.T) {
	c := NewDiskCache(t.TempDir(), time.Hour)
	path := c.path("k")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get("k"); ok {
		t.Error("Corrupt entry should be a miss")
	}
	if err := c.Delete("missing"); err != nil {
		t.Errorf("Deleting a missing key should succeed, got %v", err)
	}
}

func TestLayeredCache_PromotesDiskHits(t *testing.T) {
	dir := t.TempDir()
	first := NewLayeredCache(time.Minute, dir, time.Hour)
	if err := first.Set("k", []byte("v"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// A fresh instance only has the disk layer populated
	second := NewLayeredCache(time.Minute, dir, time.Hour)
	val, ok := second.Get("k")
	if !ok || string(val) != "v" {
		t.Fatalf("Expected disk hit, got %q %v", val, ok)
	}
	if n := second.memory.(*MemoryCache).Len(); n != 1 {
		t.Errorf("Expected promotion to memory, memory has %d items", n)
	}

	if err := second.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, ok := NewLayeredCache(time.Minute, dir, time.Hour).Get("k"); ok {
		t.Error("Expected miss after clear")
	}
}

func TestLayeredCache_MemoryOnly(t *testing.T) {
	c := NewLayeredCache(time.Minute, "", 0)
	if err := c.Set("k", []byte("v"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, ok := c.Get("k"); !ok {
		t.Error("Expected memory hit")
	}
	if err := c.Delete("k"); err != nil {
		t.Errorf("Delete failed: %v", err)
	}
}
