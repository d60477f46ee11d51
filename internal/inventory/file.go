// Package inventory appends detected stock changes to durable logs.
package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/JakeFAU/stock-monitor/internal/stock"
)

// FileRecorder writes one JSON line per record into a file per UTC day.
type FileRecorder struct {
	root string
	mu   sync.Mutex
}

// NewFileRecorder returns a recorder rooted at dir.
func NewFileRecorder(root string) (*FileRecorder, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create inventory dir %s: %w", root, err)
	}
	return &FileRecorder{root: root}, nil
}

// Path returns the log file that holds records stamped on the record's UTC day.
func (r *FileRecorder) Path(record stock.Record) string {
	return filepath.Join(r.root, record.Timestamp.UTC().Format("2006-01-02")+".jsonl")
}

// Record implements stock.Recorder.
func (r *FileRecorder) Record(ctx context.Context, record stock.Record) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	if record.Entries == nil {
		record.Entries = []stock.Entry{}
	}
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal inventory record: %w", err)
	}
	line = append(line, '\n')

	path := r.Path(record)
	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open inventory log %s: %w", path, err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("append inventory log %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close inventory log %s: %w", path, err)
	}
	return nil
}

// Multi writes every record to all recorders and joins their errors.
type Multi []stock.Recorder

// Record implements stock.Recorder.
func (m Multi) Record(ctx context.Context, record stock.Record) error {
	var errs []error
	for _, r := range m {
		if err := r.Record(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
