// Package fsatomic provides crash-safe write-temp-then-rename primitives
// for JSON and JSONL files, the durability foundation every other chat-core
// store builds on.
package fsatomic

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// tempPath builds a sibling temp file name so the rename stays on the same
// filesystem (required for rename to be atomic on POSIX).
func tempPath(path string) string {
	return path + ".tmp-" + uuid.New().String()
}

// WriteJSON marshals value and writes it to path via a sibling temp file
// and rename, so readers only ever observe the previous or the new
// contents, never a partial write. The temp file is removed even on error.
func WriteJSON(path string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("fsatomic: marshal %s: %w", path, err)
	}
	return writeAtomic(path, data)
}

// WriteJSONL marshals each record as its own line and writes the whole set
// atomically (used for initializing an events.jsonl file; incremental
// appends use AppendLine instead since the whole file must not be rewritten
// on every event).
func WriteJSONL(path string, records []interface{}) error {
	buf := make([]byte, 0, 256*len(records))
	for _, r := range records {
		line, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("fsatomic: marshal record for %s: %w", path, err)
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	return writeAtomic(path, buf)
}

// ReadJSON reads and unmarshals path into dest.
func ReadJSON(path string, dest interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fsatomic: mkdir %s: %w", dir, err)
	}
	tmp := tempPath(path)
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("fsatomic: create temp for %s: %w", path, err)
	}
	defer os.Remove(tmp) // no-op once renamed away

	w := bufio.NewWriter(f)
	if _, err := w.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("fsatomic: write temp for %s: %w", path, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("fsatomic: flush temp for %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("fsatomic: fsync temp for %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("fsatomic: close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("fsatomic: rename into %s: %w", path, err)
	}
	return nil
}

// AppendLine appends one JSON-encoded line to path, creating the file (and
// its parent directory) if absent. It does not fsync-via-rename since an
// in-progress append is only ever read back by a caller already tolerant of
// a trailing partial line (see eventlog's scan logic); the file is opened
// in append mode so concurrent single-writer appends cannot interleave
// mid-line for typical line sizes.
func AppendLine(path string, value interface{}) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fsatomic: mkdir %s: %w", dir, err)
	}
	line, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("fsatomic: marshal line for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("fsatomic: open %s for append: %w", path, err)
	}
	defer f.Close()
	line = append(line, '\n')
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("fsatomic: append to %s: %w", path, err)
	}
	return f.Sync()
}
