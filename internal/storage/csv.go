package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"swapScope/internal/model"
)

// CSVHeader is the column order of exported sheets.
var CSVHeader = []string{
	"token0Address",
	"token0Symbol",
	"token1Address",
	"token1Symbol",
	"poolAddress",
	"date",
	"dexType",
}

// CSVStorage writes each report as a complete CSV sheet, replacing the file
// on every export.
type CSVStorage struct {
	path string
	mu   sync.Mutex
}

func NewCSVStorage(path string) *CSVStorage {
	return &CSVStorage{path: path}
}

func (s *CSVStorage) Export(_ context.Context, report model.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	file, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := WriteCSV(file, report.Rows); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// WriteCSV renders rows under CSVHeader.
func WriteCSV(w io.Writer, rows []model.AnalysisRow) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(CSVHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.Token0Address,
			row.Token0Symbol,
			row.Token1Address,
			row.Token1Symbol,
			row.PoolAddress,
			row.Date,
			row.DexType,
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}
