package fingerprint

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFingerprintBytesStable(t *testing.T) {
	buf := []byte("the quick brown fox jumps over the lazy dog")
	a := FingerprintBytes(buf)
	b := FingerprintBytes(buf)
	if a != b {
		t.Fatalf("FingerprintBytes not stable: %v != %v", a, b)
	}
}

func TestFingerprintMatchesBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	content := []byte("hi")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	e := New(Config{})
	fp, ok := e.Fingerprint(path)
	if !ok {
		t.Fatal("expected a fingerprint")
	}
	want := FingerprintBytes(content)
	if fp.Value != want.Value {
		t.Fatalf("fingerprint mismatch: %x != %x", fp.Value, want.Value)
	}
}

func TestFingerprintIncrementalAppend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grow.bin")

	base := make([]byte, 8<<20)
	for i := range base {
		base[i] = byte(i)
	}
	if err := os.WriteFile(path, base, 0o644); err != nil {
		t.Fatal(err)
	}

	e := New(Config{BlockSize: 4096})
	first, ok := e.Fingerprint(path)
	if !ok {
		t.Fatal("expected a fingerprint for base file")
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte{0xFF}); err != nil {
		t.Fatal(err)
	}
	f.Close()

	// Ensure mtime advances even on coarse filesystem clocks.
	future := mustStat(t, path).ModTime().Add(time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	second, ok := e.Fingerprint(path)
	if !ok {
		t.Fatal("expected a fingerprint after append")
	}
	if !second.Incremental {
		t.Error("expected the append path to be marked incremental")
	}
	if second.Value == first.Value {
		t.Error("fingerprint should change after appending a byte")
	}

	whole, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := FingerprintBytes(whole)
	if second.Value != want.Value {
		t.Fatalf("incremental fingerprint %x != full-buffer fingerprint %x", second.Value, want.Value)
	}
}

func TestInvalidateDropsEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	os.WriteFile(path, []byte("hi"), 0o644)

	e := New(Config{})
	e.Fingerprint(path)
	if e.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", e.Len())
	}
	e.Invalidate(path)
	if e.Len() != 0 {
		t.Fatalf("Len() = %d after invalidate, want 0", e.Len())
	}
}

func TestFingerprintSkipsOversizedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.bin")
	if err := os.WriteFile(path, make([]byte, 1024), 0o644); err != nil {
		t.Fatal(err)
	}

	e := New(Config{MaxFileSize: 100})
	if _, ok := e.Fingerprint(path); ok {
		t.Fatal("expected no fingerprint for an oversized file")
	}
}

func TestFingerprintUnreadablePathIsAbsentNotError(t *testing.T) {
	e := New(Config{})
	if _, ok := e.Fingerprint("/nonexistent/path/for/sure"); ok {
		t.Fatal("expected no fingerprint for a missing path")
	}
}

func mustStat(t *testing.T, path string) os.FileInfo {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	return info
}
