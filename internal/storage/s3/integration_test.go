//go:build integration

package s3

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/dunefetch/dunefetch/internal/config"
	"github.com/dunefetch/dunefetch/internal/storage"
)

func TestStoreUploadAgainstMinIO(t *testing.T) {
	endpoint := envOr("DUNEFETCH_TEST_S3_ENDPOINT", "")
	if endpoint == "" {
		t.Skip("DUNEFETCH_TEST_S3_ENDPOINT is not set")
	}

	cfg := config.ObjectStoreConfig{
		Endpoint:         endpoint,
		Region:           envOr("DUNEFETCH_TEST_S3_REGION", "us-east-1"),
		Bucket:           envOr("DUNEFETCH_TEST_S3_BUCKET", "dunefetch-it"),
		AccessKeyID:      envOr("DUNEFETCH_TEST_S3_ACCESS_KEY", "minio"),
		SecretAccessKey:  envOr("DUNEFETCH_TEST_S3_SECRET_KEY", "miniostorage"),
		UseSSL:           false,
		Prefix:           "integration-tests",
		AutoCreateBucket: true,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	store, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	key := "query=1/date=2026-02-19/roundtrip.parquet"
	payload := []byte("dunefetch-integration")

	if _, err := store.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), storage.PutOptions{ContentType: "application/octet-stream"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	stat, err := store.Stat(ctx, key)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if stat.Size != int64(len(payload)) {
		t.Fatalf("Stat().Size = %d, want %d", stat.Size, len(payload))
	}
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
