package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"ledgerScope/internal/model"
)

// CSVSink writes each group to <dir>/<group>.csv. The header is the union of the columns of the
// group's events in first-seen order; missing cells are empty.
type CSVSink struct {
	dir string
}

// NewCSVSink writes one CSV file per group under dir.
func NewCSVSink(dir string) *CSVSink {
	return &CSVSink{dir: dir}
}

// Path returns the file a group is written to.
func (s *CSVSink) Path(key string) string {
	return filepath.Join(s.dir, SafeName(key)+".csv")
}

func (s *CSVSink) WriteGroup(ctx context.Context, key string, events []model.DecodedEvent) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]map[string]string, 0, len(events))
	var header []string
	index := make(map[string]struct{})
	for _, event := range events {
		row := make(map[string]string)
		for _, col := range event.Row() {
			row[col.Key] = col.Value
			if _, ok := index[col.Key]; !ok {
				index[col.Key] = struct{}{}
				header = append(header, col.Key)
			}
		}
		rows = append(rows, row)
	}

	path := s.Path(key)
	if err := ensureDir(path); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(header))
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i, col := range header {
			record[i] = row[col]
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return file.Close()
}

// WriteTable writes a plain CSV table to path.
func WriteTable(path string, header []string, rows [][]string) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	return file.Close()
}
