// Package result persists extraction results.
package result

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dgallion1/papergest/internal/exam"
)

// DefaultPath is where results are written when no path is given.
const DefaultPath = "outputs/questions.json"

// Writer persists a result.
type Writer interface {
	Write(res *exam.Result) error
}

// JSONWriter writes the persisted record as indented JSON.
type JSONWriter struct {
	Path string
}

func (w JSONWriter) Write(res *exam.Result) error {
	var buf bytes.Buffer
	if err := EncodeJSON(&buf, res); err != nil {
		return err
	}
	path := w.Path
	if path == "" {
		path = DefaultPath
	}
	return writeFileAtomic(path, buf.Bytes())
}

// EncodeJSON writes res to w in the persisted record format.
func EncodeJSON(w io.Writer, res *exam.Result) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}

// ReadJSON loads a persisted record.
func ReadJSON(path string) (*exam.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var res exam.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &res, nil
}

// Print lists the questions numbered from 1, each preceded by a blank line.
func Print(w io.Writer, res *exam.Result) {
	for i, q := range res.Questions {
		fmt.Fprintf(w, "\n%d. %s\n", i+1, q)
	}
}

// Multi writes to each writer in turn and stops at the first error.
type Multi []Writer

func (m Multi) Write(res *exam.Result) error {
	for _, w := range m {
		if err := w.Write(res); err != nil {
			return err
		}
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
