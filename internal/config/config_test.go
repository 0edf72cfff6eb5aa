package config

import (
	"context"
	"path/filepath"
	"testing"

	"jcrcore/internal/blobstore/fsblob"
	"jcrcore/internal/blobstore/memoryblob"
	"jcrcore/internal/persistence/memory"
	"jcrcore/internal/persistence/sqlite"
)

func withEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func TestOpenPersistenceEngineDefaultsToSQLite(t *testing.T) {
	withEnv(t, map[string]string{
		"JCRCORE_STORAGE_DRIVER": "",
		"JCRCORE_SQLITE_PATH":    filepath.Join(t.TempDir(), "jcrcore.db"),
	})
	eng, err := OpenPersistenceEngine()
	if err != nil {
		t.Fatalf("OpenPersistenceEngine: %v", err)
	}
	if _, ok := eng.(*sqlite.Store); !ok {
		t.Fatalf("OpenPersistenceEngine() = %T, want *sqlite.Store", eng)
	}
}

func TestOpenPersistenceEngineMemory(t *testing.T) {
	withEnv(t, map[string]string{"JCRCORE_STORAGE_DRIVER": "memory"})
	eng, err := OpenPersistenceEngine()
	if err != nil {
		t.Fatalf("OpenPersistenceEngine: %v", err)
	}
	if _, ok := eng.(*memory.Store); !ok {
		t.Fatalf("OpenPersistenceEngine() = %T, want *memory.Store", eng)
	}
}

func TestOpenPersistenceEngineUnknownDriver(t *testing.T) {
	withEnv(t, map[string]string{"JCRCORE_STORAGE_DRIVER": "bogus"})
	if _, err := OpenPersistenceEngine(); err == nil {
		t.Fatal("OpenPersistenceEngine with an unknown driver should fail")
	}
}

func TestOpenBlobStoreDefaultsToFilesystem(t *testing.T) {
	withEnv(t, map[string]string{
		"JCRCORE_BLOB_DRIVER":  "",
		"JCRCORE_BLOB_FS_ROOT": t.TempDir(),
	})
	store, err := OpenBlobStore(context.Background())
	if err != nil {
		t.Fatalf("OpenBlobStore: %v", err)
	}
	if _, ok := store.(*fsblob.Store); !ok {
		t.Fatalf("OpenBlobStore() = %T, want *fsblob.Store", store)
	}
}

func TestOpenBlobStoreMemory(t *testing.T) {
	withEnv(t, map[string]string{"JCRCORE_BLOB_DRIVER": "memory"})
	store, err := OpenBlobStore(context.Background())
	if err != nil {
		t.Fatalf("OpenBlobStore: %v", err)
	}
	if _, ok := store.(*memoryblob.Store); !ok {
		t.Fatalf("OpenBlobStore() = %T, want *memoryblob.Store", store)
	}
}

func TestOpenBlobStoreUnknownDriver(t *testing.T) {
	withEnv(t, map[string]string{"JCRCORE_BLOB_DRIVER": "bogus"})
	if _, err := OpenBlobStore(context.Background()); err == nil {
		t.Fatal("OpenBlobStore with an unknown driver should fail")
	}
}
