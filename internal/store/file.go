package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileBackend stores one JSON object per line. Appends are buffered until
// Flush.
type FileBackend struct {
	Path string

	pending []Entry
	// Skipped counts malformed lines ignored by the last Load, such as a
	// line truncated by a crash mid-write.
	Skipped int
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{Path: path}
}

func (f *FileBackend) Load(context.Context) ([]Entry, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	f.Skipped = 0
	var out []Entry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			f.Skipped++
			continue
		}
		out = append(out, e)
	}
	return out, scanner.Err()
}

func (f *FileBackend) Append(_ context.Context, e Entry) error {
	f.pending = append(f.pending, e)
	return nil
}

func (f *FileBackend) Flush(context.Context) error {
	if len(f.pending) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	fh, err := os.OpenFile(f.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open store file: %w", err)
	}

	w := bufio.NewWriter(fh)
	enc := json.NewEncoder(w)
	for _, e := range f.pending {
		if err := enc.Encode(e); err != nil {
			fh.Close()
			return fmt.Errorf("encode entry: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		fh.Close()
		return fmt.Errorf("write store file: %w", err)
	}
	if err := fh.Sync(); err != nil {
		fh.Close()
		return fmt.Errorf("sync store file: %w", err)
	}
	if err := fh.Close(); err != nil {
		return err
	}
	f.pending = nil
	return nil
}

func (f *FileBackend) Close() error { return nil }
