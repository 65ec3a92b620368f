package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"
)

type ParquetEncodeResult struct {
	Data        []byte
	RecordCount int64
}

type parquetRow struct {
	ExecutionID string `parquet:"execution_id"`
	QueryID     string `parquet:"query_id"`
	RowNumber   int64  `parquet:"row_number"`
	RowJSON     string `parquet:"row_json"`
}

// EncodeResultSetToParquet writes one parquet row per result row. Row values
// are kept as JSON objects in column order since result schemas vary per query.
func EncodeResultSetToParquet(result ResultSet) (ParquetEncodeResult, error) {
	if strings.TrimSpace(result.ExecutionID) == "" {
		return ParquetEncodeResult{}, fmt.Errorf("execution id is required")
	}

	rows := make([]parquetRow, 0, result.Table.Len())
	for i := range result.Table.Rows {
		encoded, err := result.Table.RowJSON(i)
		if err != nil {
			return ParquetEncodeResult{}, fmt.Errorf("encode row %d: %w", i, err)
		}
		rows = append(rows, parquetRow{
			ExecutionID: result.ExecutionID,
			QueryID:     result.QueryID,
			RowNumber:   int64(i),
			RowJSON:     string(encoded),
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetRow](buf)
	if len(rows) > 0 {
		if _, err := writer.Write(rows); err != nil {
			return ParquetEncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return ParquetEncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}

	return ParquetEncodeResult{
		Data:        buf.Bytes(),
		RecordCount: int64(len(rows)),
	}, nil
}

type ParquetFileSink struct {
	Path string
}

func (s *ParquetFileSink) Name() string {
	return "parquet"
}

func (s *ParquetFileSink) Write(_ context.Context, result ResultSet) error {
	if strings.TrimSpace(s.Path) == "" {
		return fmt.Errorf("parquet path is required")
	}
	encoded, err := EncodeResultSetToParquet(result)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create parquet dir: %w", err)
		}
	}

	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, encoded.Data, 0o644); err != nil {
		return fmt.Errorf("write parquet file %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename parquet file %q: %w", s.Path, err)
	}
	return nil
}
