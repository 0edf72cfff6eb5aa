package s3blob

import (
	"context"
	"os"
	"testing"
)

func TestOpenFromEnvRequiresBucket(t *testing.T) {
	old, had := os.LookupEnv("JCRCORE_BLOB_S3_BUCKET")
	os.Unsetenv("JCRCORE_BLOB_S3_BUCKET")
	defer func() {
		if had {
			os.Setenv("JCRCORE_BLOB_S3_BUCKET", old)
		}
	}()

	if _, err := OpenFromEnv(context.Background()); err == nil {
		t.Fatal("OpenFromEnv without JCRCORE_BLOB_S3_BUCKET should fail")
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("New with an empty bucket should fail")
	}
}
