package store

import (
	"os"
	"path/filepath"
	"testing"

	"snapstore/internal/codec"
)

// writeContainer backs up content under sourceName and writes the
// compressed container into storeDir as destName. Returns the source path.
func writeContainer(t *testing.T, storeDir, destName, sourceName, content string) string {
	t.Helper()
	source := writeTempFile(t, sourceName, content)

	c, err := CreateNew(source)
	if err != nil {
		t.Fatalf("CreateNew() error = %v", err)
	}
	compressed, err := c.Compress(codec.Gzip)
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if err := compressed.WriteTo(filepath.Join(storeDir, destName)); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
	return c.Meta().Path()
}

func TestOpen(t *testing.T) {
	t.Run("empty directory yields empty index", func(t *testing.T) {
		s, err := Open(t.TempDir(), codec.Gzip, nil)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if s.Len() != 0 {
			t.Errorf("Len() = %d, want 0", s.Len())
		}
	})

	t.Run("missing directory fails", func(t *testing.T) {
		_, err := Open(filepath.Join(t.TempDir(), "nope"), codec.Gzip, nil)
		if err == nil {
			t.Fatal("Open() expected error for missing directory")
		}
	})

	t.Run("indexes every container exactly once", func(t *testing.T) {
		dir := t.TempDir()
		srcA := writeContainer(t, dir, "a.bak", "a.txt", "contents of a")
		srcB := writeContainer(t, dir, "b.bak", "b.txt", "contents of b, a bit longer")

		s, err := Open(dir, codec.Gzip, nil)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}

		if s.Len() != 2 {
			t.Fatalf("Len() = %d, want 2", s.Len())
		}

		a, ok := s.Entry("a.bak")
		if !ok {
			t.Fatal("entry a.bak missing from index")
		}
		if a.Meta.Path() != srcA {
			t.Errorf("a.bak source = %q, want %q", a.Meta.Path(), srcA)
		}
		if a.Header.FileSize != 13 {
			t.Errorf("a.bak FileSize = %d, want 13", a.Header.FileSize)
		}
		if !a.Meta.Version().EqualValue(1) {
			t.Errorf("a.bak version = %s, want 1", a.Meta.Version())
		}

		b, ok := s.Entry("b.bak")
		if !ok {
			t.Fatal("entry b.bak missing from index")
		}
		if b.Meta.Path() != srcB {
			t.Errorf("b.bak source = %q, want %q", b.Meta.Path(), srcB)
		}

		// Every entry references a file that exists.
		for _, e := range s.Entries() {
			if _, err := os.Stat(e.Path); err != nil {
				t.Errorf("entry %s references nonexistent file: %v", e.Name, err)
			}
		}
	})

	t.Run("skips corrupt entries without failing the scan", func(t *testing.T) {
		dir := t.TempDir()
		writeContainer(t, dir, "good.bak", "good.txt", "healthy container")
		if err := os.WriteFile(filepath.Join(dir, "bad.bak"), []byte("not a container"), 0644); err != nil {
			t.Fatalf("writing corrupt file: %v", err)
		}

		s, err := Open(dir, codec.Gzip, NewNopLogger())
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}

		if s.Len() != 1 {
			t.Errorf("Len() = %d, want 1", s.Len())
		}
		if _, ok := s.Entry("good.bak"); !ok {
			t.Error("good.bak missing from index")
		}
		skipped := s.Skipped()
		if len(skipped) != 1 {
			t.Fatalf("Skipped() count = %d, want 1", len(skipped))
		}
		if filepath.Base(skipped[0].Path) != "bad.bak" {
			t.Errorf("skipped path = %q, want bad.bak", skipped[0].Path)
		}
		if skipped[0].Err == nil {
			t.Error("skipped entry has nil error")
		}
	})

	t.Run("ignores subdirectories", func(t *testing.T) {
		dir := t.TempDir()
		writeContainer(t, dir, "a.bak", "a.txt", "data")
		if err := os.Mkdir(filepath.Join(dir, "nested"), 0755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}

		s, err := Open(dir, codec.Gzip, nil)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if s.Len() != 1 {
			t.Errorf("Len() = %d, want 1", s.Len())
		}
	})
}

func TestStore_Refresh(t *testing.T) {
	dir := t.TempDir()
	writeContainer(t, dir, "a.bak", "a.txt", "first")

	s, err := Open(dir, codec.Gzip, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", s.Len())
	}

	writeContainer(t, dir, "b.bak", "b.txt", "second")

	if err := s.Refresh(); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("Len() after refresh = %d, want 2", s.Len())
	}
}

func TestStore_Reindex(t *testing.T) {
	dir := t.TempDir()
	source := writeTempFile(t, "a.txt", "v1 content")

	c, err := CreateNew(source)
	if err != nil {
		t.Fatalf("CreateNew() error = %v", err)
	}
	compressed, err := c.Compress(codec.Gzip)
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	dest := filepath.Join(dir, "a.bak")
	if err := compressed.WriteTo(dest); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}

	s, err := Open(dir, codec.Gzip, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	// Write a refreshed container over the same store file, then reindex
	// just that entry.
	if err := os.WriteFile(source, []byte("v2 content, changed"), 0644); err != nil {
		t.Fatalf("rewriting source: %v", err)
	}
	if err := c.Refresh(); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	compressed, err = c.Compress(codec.Gzip)
	if err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	if err := compressed.WriteTo(dest); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}

	if err := s.Reindex("a.bak"); err != nil {
		t.Fatalf("Reindex() error = %v", err)
	}

	entry, ok := s.Entry("a.bak")
	if !ok {
		t.Fatal("a.bak missing from index")
	}
	if !entry.Meta.Version().EqualValue(2) {
		t.Errorf("reindexed version = %s, want 2", entry.Meta.Version())
	}
	if entry.Header.FileSize != 19 {
		t.Errorf("reindexed FileSize = %d, want 19", entry.Header.FileSize)
	}
}

func TestStore_FindBySource(t *testing.T) {
	dir := t.TempDir()
	src := writeContainer(t, dir, "a.bak", "a.txt", "data")
	writeContainer(t, dir, "b.bak", "b.txt", "other")

	s, err := Open(dir, codec.Gzip, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	entry, ok := s.FindBySource(src)
	if !ok {
		t.Fatalf("FindBySource(%q) not found", src)
	}
	if entry.Name != "a.bak" {
		t.Errorf("entry name = %q, want a.bak", entry.Name)
	}

	if _, ok := s.FindBySource("/no/such/source"); ok {
		t.Error("FindBySource() found an entry for an unknown source")
	}
}

func TestReadEntry(t *testing.T) {
	t.Run("reads header and metadata only", func(t *testing.T) {
		dir := t.TempDir()
		src := writeContainer(t, dir, "a.bak", "a.txt", "payload bytes here")

		entry, err := ReadEntry(filepath.Join(dir, "a.bak"), codec.Gzip)
		if err != nil {
			t.Fatalf("ReadEntry() error = %v", err)
		}
		if entry.Meta.Path() != src {
			t.Errorf("source = %q, want %q", entry.Meta.Path(), src)
		}
		if entry.Header.FileSize != 18 {
			t.Errorf("FileSize = %d, want 18", entry.Header.FileSize)
		}
		if entry.Name != "a.bak" {
			t.Errorf("Name = %q, want a.bak", entry.Name)
		}
	})

	t.Run("fails strictly on corrupt bytes", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "bad.bak")
		if err := os.WriteFile(path, []byte("junk"), 0644); err != nil {
			t.Fatalf("writing corrupt file: %v", err)
		}

		if _, err := ReadEntry(path, codec.Gzip); err == nil {
			t.Error("ReadEntry() expected error for corrupt bytes")
		}
	})

	t.Run("fails for a missing file", func(t *testing.T) {
		if _, err := ReadEntry(filepath.Join(t.TempDir(), "nope.bak"), codec.Gzip); err == nil {
			t.Error("ReadEntry() expected error for missing file")
		}
	})
}
