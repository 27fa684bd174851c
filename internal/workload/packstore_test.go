package workload

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPackStorePlaceFileAndDelete(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "download.nupkg")
	if err := os.WriteFile(src, []byte("payload"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	sibling := filepath.Join(root, "template-packs", "other.1.0.0.nupkg")
	if err := os.MkdirAll(filepath.Dir(sibling), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(sibling, []byte("keep"), 0o644); err != nil {
		t.Fatalf("write sibling: %v", err)
	}

	store := NewPackStore()
	pack := PackInfo{ID: "Foo", Version: "1.0.0", Kind: PackKindTemplate, Path: filepath.Join(root, "template-packs", "foo.1.0.0.nupkg")}
	if err := store.Place(pack, src); err != nil {
		t.Fatalf("place error: %v", err)
	}
	data, err := os.ReadFile(pack.Path)
	if err != nil || string(data) != "payload" {
		t.Fatalf("unexpected placed content: %q err=%v", data, err)
	}
	if !store.Exists(pack) {
		t.Fatalf("expected pack to exist")
	}

	if err := store.Delete(pack); err != nil {
		t.Fatalf("delete error: %v", err)
	}
	if store.Exists(pack) {
		t.Fatalf("expected pack file to be removed")
	}
	if !pathExists(sibling) {
		t.Fatalf("deleting a file pack must not touch its directory")
	}
}

func TestPackStoreTreeDeletePrunesIDDirectory(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "extracted")
	if err := os.MkdirAll(filepath.Join(src, "data"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "data", "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := NewPackStore()
	pack := PackInfo{ID: "Bar", Version: "2.0.0", Kind: PackKindSdk, Path: filepath.Join(root, "packs", "Bar", "2.0.0")}
	if err := store.Place(pack, src); err != nil {
		t.Fatalf("place error: %v", err)
	}
	if pathExists(src) {
		t.Fatalf("source directory should be moved")
	}
	if !pathExists(filepath.Join(pack.Path, "data", "a.txt")) {
		t.Fatalf("expected moved content")
	}

	if err := store.Delete(pack); err != nil {
		t.Fatalf("delete error: %v", err)
	}
	if pathExists(filepath.Join(root, "packs", "Bar")) {
		t.Fatalf("empty id directory should be pruned")
	}
	if !pathExists(filepath.Join(root, "packs")) {
		t.Fatalf("packs root must remain")
	}
}

func TestPackStoreExistsChecksKind(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "Foo", "1.0.0")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	store := NewPackStore()
	if store.Exists(PackInfo{ID: "Foo", Version: "1.0.0", Kind: PackKindLibrary, Path: dir}) {
		t.Fatalf("a directory must not satisfy a single-file pack")
	}
	if !store.Exists(PackInfo{ID: "Foo", Version: "1.0.0", Kind: PackKindFramework, Path: dir}) {
		t.Fatalf("expected directory pack to exist")
	}
}

func TestPackStoreMoveRetriesPermissionErrors(t *testing.T) {
	attempts := 0
	var slept []time.Duration
	store := &PackStore{
		rename: func(oldPath, newPath string) error {
			attempts++
			if attempts < 3 {
				return &os.LinkError{Op: "rename", Old: oldPath, New: newPath, Err: fs.ErrPermission}
			}
			return nil
		},
		sleep: func(d time.Duration) { slept = append(slept, d) },
	}
	if err := store.move("a", "b"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if attempts != 3 || len(slept) != 2 {
		t.Fatalf("unexpected retry pattern attempts=%d sleeps=%v", attempts, slept)
	}

	attempts = 0
	store.rename = func(string, string) error {
		attempts++
		return errors.New("boom")
	}
	if err := store.move("a", "b"); err == nil || attempts != 1 {
		t.Fatalf("non-permission errors must not be retried, attempts=%d", attempts)
	}
}
