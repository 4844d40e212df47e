package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiskUsage(t *testing.T) {
	dir := t.TempDir()

	db := filepath.Join(dir, "records.db")
	if err := os.WriteFile(db, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(db+"-wal", []byte("abc"), 0644); err != nil {
		t.Fatal(err)
	}

	bleveDir := filepath.Join(dir, "bleve", "web")
	if err := os.MkdirAll(bleveDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bleveDir, "a"), []byte("ab"), 0644); err != nil {
		t.Fatal(err)
	}
	vec := filepath.Join(dir, "web.idx")
	if err := os.WriteFile(vec, []byte("xyz"), 0644); err != nil {
		t.Fatal(err)
	}

	u, err := DiskUsage(db, map[string][]string{
		"web":   {bleveDir, vec},
		"email": {filepath.Join(dir, "missing")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if u.DatabaseBytes != 8 {
		t.Errorf("database bytes: got %d, want 8", u.DatabaseBytes)
	}
	if u.IndexBytes["web"] != 5 {
		t.Errorf("web index bytes: got %d, want 5", u.IndexBytes["web"])
	}
	if u.IndexBytes["email"] != 0 {
		t.Errorf("missing paths should count as 0, got %d", u.IndexBytes["email"])
	}
	if u.Total() != 13 {
		t.Errorf("total: got %d, want 13", u.Total())
	}
}
