package export

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/dunefetch/dunefetch/internal/storage"
)

const parquetContentType = "application/vnd.apache.parquet"

type ObjectStoreSink struct {
	Store storage.ObjectStore
}

func (s *ObjectStoreSink) Name() string {
	return "objectstore"
}

func (s *ObjectStoreSink) Write(ctx context.Context, result ResultSet) error {
	if s.Store == nil {
		return fmt.Errorf("object store is required")
	}
	key, err := storage.BuildResultObjectPath(result.QueryID, result.ExecutionID, result.FetchedAt)
	if err != nil {
		return err
	}
	encoded, err := EncodeResultSetToParquet(result)
	if err != nil {
		return err
	}

	size := int64(len(encoded.Data))
	if _, err := s.Store.Put(ctx, key, bytes.NewReader(encoded.Data), size, storage.PutOptions{
		ContentType: parquetContentType,
		Metadata: map[string]string{
			"query-id":     result.QueryID,
			"execution-id": result.ExecutionID,
			"row-count":    strconv.FormatInt(encoded.RecordCount, 10),
		},
	}); err != nil {
		return err
	}

	info, err := s.Store.Stat(ctx, key)
	if err != nil {
		return fmt.Errorf("verify uploaded object %q: %w", key, err)
	}
	if info.Size != size {
		return fmt.Errorf("uploaded object %q size mismatch: got %d want %d", key, info.Size, size)
	}
	return nil
}
