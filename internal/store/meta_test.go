package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}

func TestNewMetadata(t *testing.T) {
	t.Run("captures a snapshot for an existing file", func(t *testing.T) {
		path := writeTempFile(t, "a.txt", "hello world")

		m, err := NewMetadata(path, NewVersion(Wrap))
		if err != nil {
			t.Fatalf("NewMetadata() error = %v", err)
		}

		if m.Path() != path {
			t.Errorf("Path() = %q, want %q", m.Path(), path)
		}
		if !m.Version().EqualValue(1) {
			t.Errorf("Version() = %s, want 1", m.Version())
		}
		if m.Snapshot().Size() != 11 {
			t.Errorf("Snapshot().Size() = %d, want 11", m.Snapshot().Size())
		}
		if m.Snapshot().Kind() != KindFile {
			t.Errorf("Snapshot().Kind() = %s, want file", m.Snapshot().Kind())
		}
		if m.Snapshot().Modified() == nil {
			t.Error("Snapshot().Modified() = nil, want a timestamp")
		}
		if m.BackupCreated() == 0 {
			t.Error("BackupCreated() = 0, want current time")
		}
	})

	t.Run("fails for a missing path", func(t *testing.T) {
		_, err := NewMetadata(filepath.Join(t.TempDir(), "nope"), NewVersion(Wrap))
		if err == nil {
			t.Fatal("NewMetadata() expected error for missing path")
		}
	})

	t.Run("classifies a directory", func(t *testing.T) {
		dir := t.TempDir()
		m, err := NewMetadata(dir, NewVersion(Wrap))
		if err != nil {
			t.Fatalf("NewMetadata() error = %v", err)
		}
		if m.Snapshot().Kind() != KindDir {
			t.Errorf("Snapshot().Kind() = %s, want dir", m.Snapshot().Kind())
		}
	})

	t.Run("classifies a symlink", func(t *testing.T) {
		target := writeTempFile(t, "target.txt", "x")
		link := filepath.Join(filepath.Dir(target), "link")
		if err := os.Symlink(target, link); err != nil {
			t.Skipf("symlinks unavailable: %v", err)
		}

		info, err := os.Lstat(link)
		if err != nil {
			t.Fatalf("lstat: %v", err)
		}
		m := NewMetadataFromInfo(link, time.Now().Unix(), info, NewVersion(Wrap))
		if m.Snapshot().Kind() != KindSymlink {
			t.Errorf("Snapshot().Kind() = %s, want symlink", m.Snapshot().Kind())
		}
	})
}

func TestMetadata_Refresh(t *testing.T) {
	path := writeTempFile(t, "a.txt", "short")

	m, err := NewMetadata(path, NewVersion(Wrap))
	if err != nil {
		t.Fatalf("NewMetadata() error = %v", err)
	}
	created := m.BackupCreated()

	if err := os.WriteFile(path, []byte("a longer content"), 0644); err != nil {
		t.Fatalf("rewriting file: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	m.Refresh(info)

	if m.Snapshot().Size() != 16 {
		t.Errorf("refreshed Size() = %d, want 16", m.Snapshot().Size())
	}
	// Refresh replaces only the snapshot.
	if m.Path() != path {
		t.Errorf("Path() changed to %q", m.Path())
	}
	if !m.Version().EqualValue(1) {
		t.Errorf("Version() changed to %s", m.Version())
	}
	if m.BackupCreated() != created {
		t.Errorf("BackupCreated() changed from %d to %d", created, m.BackupCreated())
	}
}

func TestMetadata_BumpVersion(t *testing.T) {
	path := writeTempFile(t, "a.txt", "x")

	m, err := NewMetadata(path, NewVersion(Wrap))
	if err != nil {
		t.Fatalf("NewMetadata() error = %v", err)
	}

	m.BumpVersion()
	m.BumpVersion()
	if !m.Version().EqualValue(3) {
		t.Errorf("Version() = %s after two bumps, want 3", m.Version())
	}
}

func TestMetadata_BumpVersionInvalidPanics(t *testing.T) {
	path := writeTempFile(t, "a.txt", "x")

	m, err := NewMetadata(path, InvalidVersion(Wrap))
	if err != nil {
		t.Fatalf("NewMetadata() error = %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Error("BumpVersion on invalid counter did not panic")
		}
	}()
	m.BumpVersion()
}

func TestMetadata_EncodeDecodeRoundTrip(t *testing.T) {
	path := writeTempFile(t, "roundtrip.txt", strings.Repeat("z", 99))

	m, err := NewMetadata(path, NewVersion(Wrap))
	if err != nil {
		t.Fatalf("NewMetadata() error = %v", err)
	}
	m.BumpVersion()

	encoded, err := m.encode()
	if err != nil {
		t.Fatalf("encode() error = %v", err)
	}

	decoded, err := decodeMetadata(encoded)
	if err != nil {
		t.Fatalf("decodeMetadata() error = %v", err)
	}

	if !decoded.Version().Equal(m.Version()) {
		t.Errorf("version = %s, want %s", decoded.Version(), m.Version())
	}
	if decoded.BackupCreated() != m.BackupCreated() {
		t.Errorf("backupCreated = %d, want %d", decoded.BackupCreated(), m.BackupCreated())
	}
	if decoded.Path() != m.Path() {
		t.Errorf("path = %q, want %q", decoded.Path(), m.Path())
	}
	if decoded.Snapshot().Size() != 99 {
		t.Errorf("size = %d, want 99", decoded.Snapshot().Size())
	}
	if decoded.Snapshot().Kind() != KindFile {
		t.Errorf("kind = %s, want file", decoded.Snapshot().Kind())
	}

	// The portable snapshot leaves created/accessed unset; they must
	// survive as nil, not zero times.
	if decoded.Snapshot().Created() != nil {
		t.Errorf("created = %v, want nil", decoded.Snapshot().Created())
	}
	if decoded.Snapshot().Accessed() != nil {
		t.Errorf("accessed = %v, want nil", decoded.Snapshot().Accessed())
	}
	if decoded.Snapshot().Modified() == nil {
		t.Fatal("modified = nil, want a timestamp")
	}
	if !decoded.Snapshot().Modified().Equal(*m.Snapshot().Modified()) {
		t.Errorf("modified = %v, want %v", decoded.Snapshot().Modified(), m.Snapshot().Modified())
	}
}

func TestDecodeMetadata_Garbage(t *testing.T) {
	if _, err := decodeMetadata([]byte{0xc1, 0xff, 0x00}); err == nil {
		t.Error("decodeMetadata() expected error for garbage input")
	}
}
