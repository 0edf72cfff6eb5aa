package memoryblob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"jcrcore/internal/blobstore"
)

func TestPutGetRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	info, err := s.Put(ctx, "a/b", bytes.NewReader([]byte("hello")), blobstore.PutOptions{ContentType: "text/plain"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if info.Size != 5 {
		t.Errorf("Size = %d, want 5", info.Size)
	}
	if info.ETag == "" {
		t.Error("Put should compute a non-empty ETag")
	}

	gotInfo, r, err := s.Get(ctx, "a/b")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer r.Close()
	b, _ := io.ReadAll(r)
	if string(b) != "hello" {
		t.Errorf("Get body = %q, want hello", b)
	}
	if gotInfo.ContentType != "text/plain" {
		t.Errorf("ContentType = %q, want text/plain", gotInfo.ContentType)
	}
	if gotInfo.ETag != info.ETag {
		t.Error("Get should report the same ETag computed by Put")
	}
}

func TestPutDuplicateKeyFails(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.Put(ctx, "k", bytes.NewReader([]byte("x")), blobstore.PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := s.Put(ctx, "k", bytes.NewReader([]byte("y")), blobstore.PutOptions{}); err == nil {
		t.Fatal("Put should fail for an existing key")
	}
}

func TestHeadAndDelete(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.Put(ctx, "k", bytes.NewReader([]byte("x")), blobstore.PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := s.Head(ctx, "k"); err != nil {
		t.Fatalf("Head: %v", err)
	}
	deleted, err := s.Delete(ctx, "k")
	if err != nil || !deleted {
		t.Fatalf("Delete = %v, %v, want true, nil", deleted, err)
	}
	if _, err := s.Head(ctx, "k"); err == nil {
		t.Fatal("Head should fail after Delete")
	}
	deletedAgain, err := s.Delete(ctx, "k")
	if err != nil || deletedAgain {
		t.Fatalf("Delete of an absent key = %v, %v, want false, nil", deletedAgain, err)
	}
}

func TestListFiltersByPrefix(t *testing.T) {
	s := New()
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

func TestPresignURLUnsupported(t *testing.T) {
	s := New()
	_, err := s.PresignURL(context.Background(), "k", blobstore.SignedURLOptions{})
	if !errors.Is(err, blobstore.ErrUnsupported) {
		t.Fatalf("PresignURL = %v, want ErrUnsupported", err)
	}
}

func TestGetReturnsIndependentCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, _ = s.Put(ctx, "k", bytes.NewReader([]byte("hello")), blobstore.PutOptions{})
	_, r, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, _ := io.ReadAll(r)
	b[0] = 'X'
	_, r2, _ := s.Get(ctx, "k")
	b2, _ := io.ReadAll(r2)
	if string(b2) != "hello" {
		t.Fatal("mutating a returned buffer must not affect stored data")
	}
}
