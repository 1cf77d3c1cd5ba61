package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"
)

// TimeFormat is the layout of generatedAt and fetchedAt.
const TimeFormat = "2006-01-02T15:04:05.000Z"

// Store reads and atomically replaces the committed snapshot file.
type Store struct {
	path   string
	pretty bool
}

// NewStore creates a store for the snapshot at path.
func NewStore(path string, pretty bool) *Store {
	return &Store{path: path, pretty: pretty}
}

// Path returns the snapshot file path.
func (s *Store) Path() string {
	return s.path
}

// Load returns the raw bytes of the committed snapshot, or nil if none
// exists.
func (s *Store) Load() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	return data, nil
}

// Write serializes snap and atomically replaces the committed file: the
// bytes go to a temporary file in the same directory which is then renamed
// into place, so readers never observe a partial file.
func (s *Store) Write(snap *Snapshot) error {
	data, err := Encode(snap, s.pretty)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to set snapshot permissions: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	return nil
}

// Encode serializes a snapshot, minified or indented, with a trailing
// newline.
func Encode(snap *Snapshot, pretty bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(snap); err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// Changed reports whether candidate differs materially from the previous
// snapshot bytes. Volatile fields are ignored on both sides, as are key order
// and formatting. A nil previous always counts as changed.
func Changed(candidate *Snapshot, previous []byte) (bool, error) {
	if previous == nil {
		return true, nil
	}

	data, err := Encode(candidate, false)
	if err != nil {
		return false, err
	}

	var next, prev map[string]any
	if err := json.Unmarshal(data, &next); err != nil {
		return false, fmt.Errorf("failed to decode candidate snapshot: %w", err)
	}
	if err := json.Unmarshal(previous, &prev); err != nil {
		return false, fmt.Errorf("failed to decode previous snapshot: %w", err)
	}

	StripVolatile(next)
	StripVolatile(prev)

	return !reflect.DeepEqual(next, prev), nil
}

// StripVolatile removes the fields that change on every run from a decoded
// snapshot: generatedAt, metrics.runDurationMs and sources[].fetchedAt.
func StripVolatile(doc map[string]any) {
	delete(doc, "generatedAt")
	if metrics, ok := doc["metrics"].(map[string]any); ok {
		delete(metrics, "runDurationMs")
	}
	if sources, ok := doc["sources"].([]any); ok {
		for _, src := range sources {
			if entry, ok := src.(map[string]any); ok {
				delete(entry, "fetchedAt")
			}
		}
	}
}

// PreviousGeneratedAt extracts generatedAt from previous snapshot bytes. ok
// is false when there is no usable value.
func PreviousGeneratedAt(previous []byte) (t time.Time, ok bool) {
	if previous == nil {
		return time.Time{}, false
	}
	var head struct {
		GeneratedAt string `json:"generatedAt"`
	}
	if err := json.Unmarshal(previous, &head); err != nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, head.GeneratedAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// NextGeneratedAt returns now, bumped to one millisecond after prev when the
// clock has not moved past it. generatedAt strictly increases across
// commits.
func NextGeneratedAt(now, prev time.Time, hasPrev bool) time.Time {
	now = now.UTC().Truncate(time.Millisecond)
	if hasPrev && !now.After(prev) {
		return prev.UTC().Truncate(time.Millisecond).Add(time.Millisecond)
	}
	return now
}
