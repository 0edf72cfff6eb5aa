// Package config selects concrete persistence and blob-storage backends
// from environment variables, an env-var-driven factory pattern for
// storage and blob drivers.
package config

import (
	"context"
	"fmt"
	"os"

	"jcrcore/internal/blobstore"
	"jcrcore/internal/blobstore/fsblob"
	"jcrcore/internal/blobstore/memoryblob"
	"jcrcore/internal/blobstore/s3blob"
	"jcrcore/internal/persistence"
	"jcrcore/internal/persistence/memory"
	"jcrcore/internal/persistence/postgres"
	"jcrcore/internal/persistence/sqlite"
)

// StorageDriver identifies a concrete persistence.Engine implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"
	StorageSQLite   StorageDriver = "sqlite"
	StoragePostgres StorageDriver = "postgres"
)

// OpenPersistenceEngine selects a persistence.Engine backend using
// environment variables, defaulting to sqlite when unset.
//
//	JCRCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	JCRCORE_SQLITE_PATH: path to sqlite file (default ./jcrcore.db)
//	JCRCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistenceEngine() (persistence.Engine, error) {
	driver := os.Getenv("JCRCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(), nil
	case StorageSQLite:
		path := os.Getenv("JCRCORE_SQLITE_PATH")
		return sqlite.NewStore(path)
	case StoragePostgres:
		dsn := os.Getenv("JCRCORE_POSTGRES_DSN")
		return postgres.NewStore(dsn)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// OpenBlobStore selects a blobstore.Store backend using environment
// variables, defaulting to the filesystem driver when unset.
//
//	JCRCORE_BLOB_DRIVER: fs|s3|memory (default fs)
//	JCRCORE_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	(S3-specific variables are documented in blobstore/s3blob.)
func OpenBlobStore(ctx context.Context) (blobstore.Store, error) {
	driver := os.Getenv("JCRCORE_BLOB_DRIVER")
	if driver == "" {
		driver = string(blobstore.DriverFilesystem)
	}
	switch blobstore.Driver(driver) {
	case blobstore.DriverFilesystem:
		root := os.Getenv("JCRCORE_BLOB_FS_ROOT")
		return fsblob.New(root)
	case blobstore.DriverS3:
		return s3blob.OpenFromEnv(ctx)
	case blobstore.DriverMemory:
		return memoryblob.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
