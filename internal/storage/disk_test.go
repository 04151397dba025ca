package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()

	f1 := filepath.Join(dir, "f1.txt")
	if err := os.WriteFile(f1, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := DiskUsageBytes(f1)
	if err != nil {
		t.Fatal(err)
	}
	if got != 5 {
		t.Errorf("single file: got %d bytes, want 5", got)
	}

	// Missing path and empty path are skipped
	got, err = DiskUsageBytes(f1, filepath.Join(dir, "nonexistent"), "")
	if err != nil {
		t.Fatal(err)
	}
	if got != 5 {
		t.Errorf("with missing: got %d bytes, want 5", got)
	}
}

func TestDatabaseBytes(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "cache.db")
	if err := os.WriteFile(db, []byte("abcd"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(db+"-wal", []byte("ef"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := DatabaseBytes(db)
	if err != nil {
		t.Fatal(err)
	}
	if got != 6 {
		t.Errorf("DatabaseBytes = %d, want 6", got)
	}
}
