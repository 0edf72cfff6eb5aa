package fsblob

import (
	"bytes"
	"context"
	"io"
	"testing"

	"jcrcore/internal/blobstore"
)

func TestPutGetRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()

	info, err := s.Put(ctx, "a/b.bin", bytes.NewReader([]byte("hello")), blobstore.PutOptions{ContentType: "application/octet-stream"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if info.Size != 5 {
		t.Errorf("Size = %d, want 5", info.Size)
	}
	if info.ETag == "" {
		t.Error("Put should compute a non-empty ETag")
	}

	gotInfo, r, err := s.Get(ctx, "a/b.bin")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer r.Close()
	b, _ := io.ReadAll(r)
	if string(b) != "hello" {
		t.Errorf("Get body = %q, want hello", b)
	}
	if gotInfo.ETag != info.ETag {
		t.Error("Head/Get metadata should round-trip the ETag written by Put")
	}
}

func TestPutDuplicateKeyFails(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if _, err := s.Put(ctx, "k", bytes.NewReader([]byte("x")), blobstore.PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := s.Put(ctx, "k", bytes.NewReader([]byte("y")), blobstore.PutOptions{}); err == nil {
		t.Fatal("Put should fail for an existing key")
	}
}

func TestRejectsPathTraversal(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Put(context.Background(), "../escape", bytes.NewReader([]byte("x")), blobstore.PutOptions{}); err == nil {
		t.Fatal("Put should reject a key containing '..'")
	}
}

func TestDeleteRemovesDataAndMeta(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if _, err := s.Put(ctx, "k", bytes.NewReader([]byte("x")), blobstore.PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	ok, err := s.Delete(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Delete = %v, %v, want true, nil", ok, err)
	}
	if _, err := s.Head(ctx, "k"); err == nil {
		t.Fatal("Head should fail after Delete")
	}
	ok2, err := s.Delete(ctx, "k")
	if err != nil || ok2 {
		t.Fatalf("Delete of an absent key = %v, %v, want false, nil", ok2, err)
	}
}

func TestListWalksTreeByPrefix(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	_, _ = s.Put(ctx, "docs/a", bytes.NewReader(nil), blobstore.PutOptions{})
	_, _ = s.Put(ctx, "docs/b", bytes.NewReader(nil), blobstore.PutOptions{})
	_, _ = s.Put(ctx, "other/c", bytes.NewReader(nil), blobstore.PutOptions{})

	infos, err := s.List(ctx, "docs/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("List(docs/) = %d entries, want 2", len(infos))
	}
}

func TestPresignURLReturnsLocalURL(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	url, err := s.PresignURL(context.Background(), "k", blobstore.SignedURLOptions{})
	if err != nil {
		t.Fatalf("PresignURL: %v", err)
	}
	if url == "" {
		t.Fatal("PresignURL should return a non-empty URL on the fs driver")
	}
}
