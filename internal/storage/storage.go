package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/maltedev/mercadona-scraper/internal/models"
)

// Delimiter separates the columns of every table this package writes. Product
// names contain commas, semicolons and pipes but never a tilde.
const Delimiter = '~'

// TimestampLayout is used for collected_timestamp.
const TimestampLayout = "2006-01-02 15:04:05.000000"

var ErrMissingColumn = errors.New("required column missing")

// SnapshotPath names the checkpoint file of a run started at started.
func SnapshotPath(dir string, started time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("Mercadona Scraping %s.csv", started.Format("2006-01-02_15-04-05")))
}

// SnapshotWriter keeps the latest full product table on disk. Every write
// replaces the file through a rename so readers never see a partial table.
type SnapshotWriter struct {
	mu       sync.Mutex
	filename string
	writes   int
}

func NewSnapshotWriter(filename string) (*SnapshotWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	return &SnapshotWriter{filename: filename}, nil
}

func (w *SnapshotWriter) Path() string {
	return w.filename
}

// Writes returns how many snapshots have been written.
func (w *SnapshotWriter) Writes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes
}

func (w *SnapshotWriter) WriteSnapshot(rows []models.ProductRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := WriteProducts(w.filename, rows); err != nil {
		return err
	}
	w.writes++
	return nil
}

// writeTable writes header and records to filename atomically.
func writeTable(filename string, header []string, records [][]string) error {
	if err := ensureDir(filename); err != nil {
		return err
	}

	// Write to temp file first for atomicity
	tmpFile := filename + ".tmp"
	f, err := os.Create(tmpFile)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmpFile, err)
	}

	writer := csv.NewWriter(f)
	writer.Comma = Delimiter
	if err := writer.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := writer.WriteAll(records); err != nil {
		f.Close()
		return fmt.Errorf("failed to write records: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpFile, err)
	}

	return os.Rename(tmpFile, filename)
}

// table is a parsed file with its columns looked up by name.
type table struct {
	columns map[string]int
	records [][]string
}

func readTable(filename string, required ...string) (*table, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return parseTable(f, required...)
}

func parseTable(r io.Reader, required ...string) (*table, error) {
	reader := csv.NewReader(r)
	reader.Comma = Delimiter

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty table", ErrMissingColumn)
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	t := &table{columns: make(map[string]int, len(header))}
	for i, name := range header {
		t.columns[name] = i
	}
	for _, name := range required {
		if _, ok := t.columns[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}

	t.records, err = reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read records: %w", err)
	}
	return t, nil
}

func (t *table) get(record []string, column string) string {
	i, ok := t.columns[column]
	if !ok || i >= len(record) {
		return ""
	}
	return record[i]
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}
