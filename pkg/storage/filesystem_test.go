package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileSystemGet(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "assets", "logos"), 0o755); err != nil {
		t.Fatal(err)
	}
	want := []byte("overlay bytes")
	if err := os.WriteFile(filepath.Join(root, "assets", "logos", "logo.png"), want, 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewFileSystem(root)
	got, err := store.Get(context.Background(), "assets", "logos/logo.png")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("Get returned %q, want %q", got, want)
	}
}

func TestFileSystemGetMissing(t *testing.T) {
	store := NewFileSystem(t.TempDir())
	_, err := store.Get(context.Background(), "assets", "nope.png")
	if err == nil {
		t.Fatal("Get of a missing object should fail")
	}
	if !IsNotFound(err) {
		t.Errorf("missing object error %v should satisfy IsNotFound", err)
	}
}

func TestFileSystemGetValidation(t *testing.T) {
	store := NewFileSystem(t.TempDir())

	if _, err := store.Get(context.Background(), "", "key"); err == nil {
		t.Error("empty bucket should be rejected")
	}
	if _, err := store.Get(context.Background(), "bucket", ""); err == nil {
		t.Error("empty key should be rejected")
	}
}

func TestFileSystemGetTraversal(t *testing.T) {
	root := t.TempDir()
	secret := filepath.Join(root, "secret.txt")
	if err := os.WriteFile(secret, []byte("private"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "assets"), 0o755); err != nil {
		t.Fatal(err)
	}

	store := NewFileSystem(root)
	data, err := store.Get(context.Background(), "assets", "../secret.txt")
	if err == nil && string(data) == "private" {
		t.Error("traversal key escaped its bucket")
	}
}

func TestFileSystemGetCancelledContext(t *testing.T) {
	store := NewFileSystem(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.Get(ctx, "assets", "x.png"); err == nil {
		t.Error("Get should fail once the context is cancelled")
	}
}

func TestIsNotFound(t *testing.T) {
	if IsNotFound(os.ErrNotExist) {
		t.Error("plain fs errors are not KeyNotFoundError")
	}
	if !IsNotFound(&KeyNotFoundError{Bucket: "b", Key: "k"}) {
		t.Error("IsNotFound should match KeyNotFoundError")
	}
}
